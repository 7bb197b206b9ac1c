/*
main.go - Application entry point

PURPOSE:
  Initializes and starts the clinic back-office server.
  Handles configuration, dependency injection, and graceful shutdown.

STARTUP SEQUENCE:
  1. Load configuration (.env, environment, flags)
  2. Initialize logger
  3. Open and migrate the database
  4. Build payroll engine, reports and API handler
  5. Start server with graceful shutdown

COMMAND-LINE FLAGS (override the environment):
  -port    HTTP server port
  -db      Database DSN; a file path for SQLite
           Use ":memory:" for in-memory database

ENVIRONMENT:
  PORT, DB_DRIVER (sqlite3|postgres), DATABASE_URL, DB_MAX_OPEN_CONNS,
  DB_MAX_IDLE_CONNS, DB_CONN_MAX_LIFETIME, JWT_SECRET, CORS_ORIGINS,
  DOCTOR_COMMISSION_RATE, LOG_LEVEL, LOG_FILE_PATH

GRACEFUL SHUTDOWN:
  On SIGINT/SIGTERM:
  1. Stop accepting new connections
  2. Wait for active requests to complete (30s timeout)
  3. Close database connection
  4. Exit

EXAMPLES:
  # Run with file database
  ./server -db="./data/clinic.db"

  # Run against PostgreSQL
  DB_DRIVER=postgres DATABASE_URL="postgres://clinic@localhost/clinic?sslmode=disable" ./server

SEE ALSO:
  - config/config.go: Settings and defaults
  - api/server.go: Router configuration
  - store/sqlstore/sqlstore.go: Database implementation
*/
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/policlinic/backoffice/api"
	"github.com/policlinic/backoffice/config"
	"github.com/policlinic/backoffice/logger"
	"github.com/policlinic/backoffice/payroll"
	"github.com/policlinic/backoffice/report"
	"github.com/policlinic/backoffice/store/sqlstore"
	"golang.org/x/sync/errgroup"
)

// devSecret signs tokens when JWT_SECRET is unset. Never use it outside development.
const devSecret = "insecure-development-secret"

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	// Flags
	port := flag.Int("port", cfg.Port, "HTTP server port")
	dsn := flag.String("db", cfg.DatabaseURL, "Database DSN (file path for SQLite)")
	flag.Parse()

	logger.Init(cfg.LogLevel, cfg.LogFilePath)
	log := logger.Global()

	// Initialize store
	store, err := sqlstore.New(cfg.DBDriver, *dsn, sqlstore.Options{
		MaxOpenConns:    cfg.DBMaxOpenConns,
		MaxIdleConns:    cfg.DBMaxIdleConns,
		ConnMaxLifetime: cfg.DBConnMaxLifetime,
	})
	if err != nil {
		log.Fatal().Err(err).Str("driver", cfg.DBDriver).Msg("failed to initialize database")
	}
	defer store.Close()

	secret := cfg.JWTSecret
	if secret == "" {
		log.Warn().Msg("JWT_SECRET is not set, using an insecure development secret")
		secret = devSecret
	}

	payrollCfg := payroll.Config{DefaultCommissionRate: cfg.DoctorCommissionRate}
	handler := api.NewHandler(store, payroll.NewEngine(payrollCfg), report.NewService(store, payrollCfg), nil)
	router := api.NewRouter(handler, api.NewAuth(secret), cfg.CORSOrigins)

	// Create server
	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", *port),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info().Int("port", *port).Str("driver", cfg.DBDriver).Msg("server starting")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		log.Info().Msg("shutting down server")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		log.Error().Err(err).Msg("server stopped with error")
		return
	}
	log.Info().Msg("server stopped")
}
