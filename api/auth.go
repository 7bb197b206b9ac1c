package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/policlinic/backoffice/payroll"
)

// =============================================================================
// BEARER TOKENS - HS256, subject is the staff id
// =============================================================================

// Claims is the token payload: sub carries the staff id, role the staff role.
type Claims struct {
	Role string `json:"role"`
	jwt.RegisteredClaims
}

var errForbidden = errors.New("forbidden")

type Auth struct {
	secret []byte
}

func NewAuth(secret string) *Auth {
	return &Auth{secret: []byte(secret)}
}

// Token signs an access token for actor, valid for ttl.
func (a *Auth) Token(actor payroll.Actor, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := &Claims{
		Role: actor.Role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   strconv.FormatInt(int64(actor.ID), 10),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(a.secret)
}

// Parse validates a token and returns the actor it names.
func (a *Auth) Parse(raw string) (payroll.Actor, error) {
	token, err := jwt.ParseWithClaims(raw, &Claims{}, func(*jwt.Token) (interface{}, error) {
		return a.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil || !token.Valid {
		return payroll.Actor{}, fmt.Errorf("invalid or expired token: %w", err)
	}
	claims, ok := token.Claims.(*Claims)
	if !ok {
		return payroll.Actor{}, errors.New("unexpected token claims")
	}
	id, err := strconv.ParseInt(claims.Subject, 10, 64)
	if err != nil || id <= 0 {
		return payroll.Actor{}, fmt.Errorf("token subject %q is not a staff id", claims.Subject)
	}
	return payroll.Actor{ID: payroll.StaffID(id), Role: claims.Role}, nil
}

type ctxKey string

const ctxActor ctxKey = "actor"

// Middleware rejects requests without a valid bearer token and stores the
// actor in the request context.
func (a *Auth) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodOptions {
			next.ServeHTTP(w, r)
			return
		}
		h := r.Header.Get("Authorization")
		if h == "" || !strings.HasPrefix(h, "Bearer ") {
			writeError(w, http.StatusUnauthorized, "unauthorized", errors.New("missing bearer token"))
			return
		}
		actor, err := a.Parse(strings.TrimPrefix(h, "Bearer "))
		if err != nil {
			writeError(w, http.StatusUnauthorized, "unauthorized", err)
			return
		}
		ctx := context.WithValue(r.Context(), ctxActor, actor)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// RequireAdmin lets only admin and administrator roles through.
func RequireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		actor, ok := actorFrom(r.Context())
		if !ok || !actor.IsAdmin() {
			writeError(w, http.StatusForbidden, "forbidden", errors.New("admin only"))
			return
		}
		next.ServeHTTP(w, r)
	})
}

func actorFrom(ctx context.Context) (payroll.Actor, bool) {
	actor, ok := ctx.Value(ctxActor).(payroll.Actor)
	return actor, ok
}

// canManage reports whether actor may touch staffID's records.
func canManage(actor payroll.Actor, staffID payroll.StaffID) bool {
	return actor.IsAdmin() || actor.ID == staffID
}
