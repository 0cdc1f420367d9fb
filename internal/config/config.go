// Package config loads application configuration from environment variables.
package config

import (
	"log"
	"os"
	"path/filepath"
	"time"
)

// Config holds all runtime configuration values.  Each field corresponds to
// an environment variable.
type Config struct {
	Env    string // application environment (e.g. "dev", "prod")
	Port   string // HTTP port to listen on
	DBUser string
	DBPass string // empty allowed
	DBHost string
	DBPort string
	DBName string

	AuthEnabled bool   // require a bearer token on mutating routes
	JWTSecret   string // required when AuthEnabled

	EventsEnabled bool   // publish ledger events and run the audit consumer
	AMQPURL       string // RABBITMQ_URL, falling back to AMQP_URL
	AuditLogPath  string // file the audit consumer appends to
}

// Load reads configuration values from environment variables and returns a
// Config.  Required variables are enforced by must() and missing values
// cause the program to exit with a fatal log message.
func Load() Config {
	cfg := Config{
		Env:           envStr("APP_ENV", "dev"),
		Port:          envStr("APP_PORT", "8080"),
		DBUser:        must("DB_USER"),
		DBPass:        os.Getenv("DB_PASS"),
		DBHost:        must("DB_HOST"),
		DBPort:        envStr("DB_PORT", "3306"),
		DBName:        must("DB_NAME"),
		AuthEnabled:   envBool("AUTH_ENABLED", false),
		EventsEnabled: envBool("EVENTS_ENABLED", false),
		AMQPURL:       amqpURL(),
		AuditLogPath:  envStr("AUDIT_LOG_PATH", filepath.Join("logs", "booking.log")),
	}
	if cfg.AuthEnabled {
		cfg.JWTSecret = must("JWT_SECRET")
	} else {
		cfg.JWTSecret = os.Getenv("JWT_SECRET")
	}
	return cfg
}

// AccessTokenTTL is the lifetime of tokens minted by cmd/tokengen, read from
// ACCESS_TOKEN_TTL_MIN.  Missing or non-positive values mean one hour.
func AccessTokenTTL() time.Duration {
	if m := envInt("ACCESS_TOKEN_TTL_MIN", 60); m > 0 {
		return time.Duration(m) * time.Minute
	}
	return time.Hour
}

func amqpURL() string {
	if v := os.Getenv("RABBITMQ_URL"); v != "" {
		return v
	}
	return os.Getenv("AMQP_URL")
}

// must retrieves the value of a required environment variable.  If the
// variable is unset or empty, the application logs a fatal error and exits.
func must(key string) string {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		log.Fatalf("missing required env var: %s", key)
	}
	return v
}
