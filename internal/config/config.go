// Package config loads process configuration from the environment.
package config

import (
	"fmt"
	"net/url"
	"os"
	"strconv"
)

// Environment names selecting which database the process points at.
const (
	EnvProduction  = "production"
	EnvDevelopment = "development"
	EnvTest        = "test"
)

// Config aggregates all runtime settings.
type Config struct {
	Env      string
	Server   ServerConfig
	Database DatabaseConfig
	Auth     AuthConfig
	Logging  LoggingConfig
}

// ServerConfig holds the HTTP listener settings.
type ServerConfig struct {
	Host      string
	Port      int
	RateLimit float64 // requests per second; 0 disables limiting
	RateBurst int
	AuditLog  string // optional JSONL audit trail path
}

// DatabaseConfig holds the connection pool settings.
type DatabaseConfig struct {
	Driver          string
	DSN             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime int // seconds
}

// AuthConfig holds token signing and password hashing settings.
type AuthConfig struct {
	JWTKey             string
	PasswordSalt       string
	PasswordIterations int
}

// LoggingConfig holds log output settings.
type LoggingConfig struct {
	Level  string
	Format string
	Output string
}

// Load reads configuration from the environment. The APP_ENV value picks the
// database name among PGDATABASE_PROD, PGDATABASE_DEV and PGDATABASE_TEST so
// the same process can target production, development or test databases.
func Load() (*Config, error) {
	env := getenv("APP_ENV", EnvDevelopment)

	dbName := databaseName(env)
	if dbName == "" {
		return nil, fmt.Errorf("no database configured for environment %q", env)
	}

	jwtKey := os.Getenv("JWT_KEY")
	if jwtKey == "" {
		return nil, fmt.Errorf("JWT_KEY is required")
	}
	pwSalt := os.Getenv("PWH_SALT")
	if pwSalt == "" {
		return nil, fmt.Errorf("PWH_SALT is required")
	}

	cfg := &Config{
		Env: env,
		Server: ServerConfig{
			Host:      getenv("APP_HOST", "0.0.0.0"),
			Port:      getint("APP_PORT", 3000),
			RateLimit: getfloat("APP_RATE_LIMIT", 0),
			RateBurst: getint("APP_RATE_BURST", 20),
			AuditLog:  os.Getenv("APP_AUDIT_LOG"),
		},
		Database: DatabaseConfig{
			Driver:          "postgres",
			DSN:             buildDSN(dbName),
			MaxOpenConns:    getint("PGPOOL_MAX_OPEN", 10),
			MaxIdleConns:    getint("PGPOOL_MAX_IDLE", 5),
			ConnMaxLifetime: getint("PGPOOL_CONN_LIFETIME", 0),
		},
		Auth: AuthConfig{
			JWTKey:             jwtKey,
			PasswordSalt:       pwSalt,
			PasswordIterations: getint("PWH_ITERATIONS", 50000),
		},
		Logging: LoggingConfig{
			Level:  getenv("LOG_LEVEL", "info"),
			Format: getenv("LOG_FORMAT", "text"),
			Output: getenv("LOG_OUTPUT", "stdout"),
		},
	}

	return cfg, nil
}

func databaseName(env string) string {
	switch env {
	case EnvProduction:
		return os.Getenv("PGDATABASE_PROD")
	case EnvDevelopment:
		return os.Getenv("PGDATABASE_DEV")
	default:
		return os.Getenv("PGDATABASE_TEST")
	}
}

func buildDSN(dbName string) string {
	user := getenv("PGUSER", "postgres")
	password := os.Getenv("PGPASSWORD")
	host := getenv("PGHOST", "localhost")
	port := getenv("PGPORT", "5432")
	sslMode := getenv("PGSSLMODE", "disable")

	u := url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(user, password),
		Host:     host + ":" + port,
		Path:     "/" + dbName,
		RawQuery: "sslmode=" + sslMode,
	}
	return u.String()
}

func getenv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getint(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func getfloat(key string, fallback float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return fallback
}
