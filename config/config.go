// Package config loads process settings from the environment, reading a
// .env file first when one exists.
package config

import (
	"errors"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
)

type Config struct {
	// server
	Port        int
	CORSOrigins []string
	JWTSecret   string

	// database
	DBDriver          string
	DatabaseURL       string
	DBMaxOpenConns    int
	DBMaxIdleConns    int
	DBConnMaxLifetime time.Duration

	// payroll
	DoctorCommissionRate decimal.Decimal

	// logger
	LogLevel    string
	LogFilePath string
}

// Load reads .env (if present) and then the environment. Unset or
// unparsable values fall back to defaults.
func Load(files ...string) (Config, error) {
	if err := godotenv.Load(files...); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return Config{}, err
	}

	return Config{
		Port:                 getEnvInt("PORT", 8080),
		CORSOrigins:          getEnvList("CORS_ORIGINS", []string{"*"}),
		JWTSecret:            getEnvString("JWT_SECRET", ""),
		DBDriver:             getEnvString("DB_DRIVER", "sqlite3"),
		DatabaseURL:          getEnvString("DATABASE_URL", "backoffice.db"),
		DBMaxOpenConns:       getEnvInt("DB_MAX_OPEN_CONNS", 25),
		DBMaxIdleConns:       getEnvInt("DB_MAX_IDLE_CONNS", 5),
		DBConnMaxLifetime:    getEnvDuration("DB_CONN_MAX_LIFETIME", 20*time.Minute),
		DoctorCommissionRate: getEnvDecimal("DOCTOR_COMMISSION_RATE", decimal.RequireFromString("0.3")),
		LogLevel:             getEnvString("LOG_LEVEL", "info"),
		LogFilePath:          getEnvString("LOG_FILE_PATH", ""),
	}, nil
}

func getEnvString(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if val := os.Getenv(key); val != "" {
		if i, err := strconv.Atoi(val); err == nil {
			return i
		}
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if val := os.Getenv(key); val != "" {
		if d, err := time.ParseDuration(val); err == nil {
			return d
		}
		if i, err := strconv.Atoi(val); err == nil {
			return time.Duration(i) * time.Second
		}
	}
	return fallback
}

// getEnvDecimal only accepts rates in [0, 1].
func getEnvDecimal(key string, fallback decimal.Decimal) decimal.Decimal {
	if val := os.Getenv(key); val != "" {
		if d, err := decimal.NewFromString(val); err == nil && !d.IsNegative() && d.LessThanOrEqual(decimal.NewFromInt(1)) {
			return d
		}
	}
	return fallback
}

func getEnvList(key string, fallback []string) []string {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	var out []string
	for _, part := range strings.Split(val, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	if len(out) == 0 {
		return fallback
	}
	return out
}
