package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const placeholderJWTSecret = "CHANGE_ME_PRODUCTION_JWT_SECRET"

type Config struct {
	ListenAddr string

	DBDriver          string
	DBPath            string
	DBDSN             string
	DBMaxOpenConns    int
	DBMaxIdleConns    int
	DBConnMaxLifetime time.Duration
	MigrationsDir     string

	JWTSecret          string
	JWTIssuer          string
	TrustProxy         bool
	CORSAllowedOrigins []string

	HTTPReadTimeoutSec       int
	HTTPReadHeaderTimeoutSec int
	HTTPWriteTimeoutSec      int
	HTTPIdleTimeoutSec       int

	LogLevel  string
	LogFormat string

	QueueDefaultLimit int
	QueueMaxLimit     int
	NotifyBuffer      int
	ReportRatePerMin  int
}

// Load reads configuration from the environment. Variables from the dotenv
// file named by ENV_FILE (default .env) fill in anything not already set.
func Load() (Config, error) {
	if err := loadDotEnv(env("ENV_FILE", ".env")); err != nil {
		return Config{}, err
	}
	cfg := Config{
		ListenAddr:               env("LISTEN_ADDR", ":8080"),
		DBDriver:                 strings.ToLower(env("DB_DRIVER", "sqlite")),
		DBPath:                   env("APP_DB_PATH", "./data/app.db"),
		DBDSN:                    env("DB_DSN", ""),
		DBMaxOpenConns:           envInt("APP_DB_MAX_OPEN_CONNS", 4),
		DBMaxIdleConns:           envInt("APP_DB_MAX_IDLE_CONNS", 2),
		DBConnMaxLifetime:        time.Duration(envInt("APP_DB_CONN_MAX_LIFETIME_MIN", 30)) * time.Minute,
		MigrationsDir:            env("MIGRATIONS_DIR", "migrations"),
		JWTSecret:                env("JWT_SECRET", placeholderJWTSecret),
		JWTIssuer:                env("JWT_ISSUER", ""),
		TrustProxy:               envBool("TRUST_PROXY", false),
		CORSAllowedOrigins:       envCSV("CORS_ALLOWED_ORIGINS"),
		HTTPReadTimeoutSec:       envInt("HTTP_READ_TIMEOUT_SEC", 10),
		HTTPReadHeaderTimeoutSec: envInt("HTTP_READ_HEADER_TIMEOUT_SEC", 5),
		HTTPWriteTimeoutSec:      envInt("HTTP_WRITE_TIMEOUT_SEC", 30),
		HTTPIdleTimeoutSec:       envInt("HTTP_IDLE_TIMEOUT_SEC", 60),
		LogLevel:                 strings.ToLower(env("LOG_LEVEL", "info")),
		LogFormat:                strings.ToLower(env("LOG_FORMAT", "json")),
		QueueDefaultLimit:        envInt("QUEUE_DEFAULT_LIMIT", 20),
		QueueMaxLimit:            envInt("QUEUE_MAX_LIMIT", 100),
		NotifyBuffer:             envInt("NOTIFY_BUFFER", 256),
		ReportRatePerMin:         envInt("REPORT_RATE_PER_MIN", 10),
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) Validate() error {
	switch c.DBDriver {
	case "sqlite":
		if strings.TrimSpace(c.DBPath) == "" {
			return fmt.Errorf("APP_DB_PATH is required for DB_DRIVER=sqlite")
		}
	case "pgx", "mysql":
		if strings.TrimSpace(c.DBDSN) == "" {
			return fmt.Errorf("DB_DSN is required for DB_DRIVER=%s", c.DBDriver)
		}
	default:
		return fmt.Errorf("DB_DRIVER must be one of: sqlite, pgx, mysql")
	}
	if c.DBMaxOpenConns <= 0 || c.DBMaxIdleConns < 0 {
		return fmt.Errorf("invalid DB pool config")
	}
	if strings.TrimSpace(c.JWTSecret) == "" || c.JWTSecret == placeholderJWTSecret || len(c.JWTSecret) < 32 {
		return fmt.Errorf("JWT_SECRET must be set to a strong non-default value (>=32 chars)")
	}
	if c.QueueDefaultLimit <= 0 || c.QueueMaxLimit < c.QueueDefaultLimit {
		return fmt.Errorf("queue limits must be positive and QUEUE_MAX_LIMIT >= QUEUE_DEFAULT_LIMIT")
	}
	if c.ReportRatePerMin <= 0 {
		return fmt.Errorf("REPORT_RATE_PER_MIN must be positive")
	}
	switch c.LogFormat {
	case "json", "text":
	default:
		return fmt.Errorf("LOG_FORMAT must be one of: json, text")
	}
	return nil
}

func (c Config) ReadTimeout() time.Duration {
	return time.Duration(c.HTTPReadTimeoutSec) * time.Second
}

func (c Config) ReadHeaderTimeout() time.Duration {
	return time.Duration(c.HTTPReadHeaderTimeoutSec) * time.Second
}

func (c Config) WriteTimeout() time.Duration {
	return time.Duration(c.HTTPWriteTimeoutSec) * time.Second
}

func (c Config) IdleTimeout() time.Duration {
	return time.Duration(c.HTTPIdleTimeoutSec) * time.Second
}

func loadDotEnv(path string) error {
	if path == "" {
		return nil
	}
	if err := godotenv.Load(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("load %s: %w", path, err)
	}
	return nil
}

func env(k, d string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return d
}

func envInt(k string, d int) int {
	v := os.Getenv(k)
	if v == "" {
		return d
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return d
	}
	return n
}

func envBool(k string, d bool) bool {
	v := os.Getenv(k)
	if v == "" {
		return d
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return d
	}
	return b
}

func envCSV(k string) []string {
	v := strings.TrimSpace(os.Getenv(k))
	if v == "" {
		return nil
	}
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}
