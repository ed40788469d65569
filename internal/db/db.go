package db

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/go-sql-driver/mysql"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"
)

const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "pgx"
	DriverMySQL    = "mysql"
)

type Options struct {
	Driver      string
	DSN         string
	Path        string
	MaxOpen     int
	MaxIdle     int
	MaxLifetime time.Duration
}

// Open connects to the configured driver and verifies the connection.
func Open(o Options) (*sqlx.DB, error) {
	switch o.Driver {
	case DriverSQLite, "":
		return OpenSQLite(o.Path, o.MaxOpen, o.MaxIdle, o.MaxLifetime)
	case DriverPostgres:
		if o.DSN == "" {
			return nil, fmt.Errorf("DB_DSN is required for driver %s", o.Driver)
		}
		return open(DriverPostgres, o.DSN, o.MaxOpen, o.MaxIdle, o.MaxLifetime)
	case DriverMySQL:
		if o.DSN == "" {
			return nil, fmt.Errorf("DB_DSN is required for driver %s", o.Driver)
		}
		dsn, err := mysqlDSN(o.DSN)
		if err != nil {
			return nil, err
		}
		return open(DriverMySQL, dsn, o.MaxOpen, o.MaxIdle, o.MaxLifetime)
	default:
		return nil, fmt.Errorf("unsupported DB driver %q", o.Driver)
	}
}

func OpenSQLite(path string, maxOpen, maxIdle int, maxLifetime time.Duration) (*sqlx.DB, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("mkdir db dir: %w", err)
	}
	// Write transactions begin IMMEDIATE so concurrent writers queue on the
	// busy timeout instead of failing on lock upgrade.
	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_time_format=sqlite&_txlock=immediate", path)
	return open(DriverSQLite, dsn, maxOpen, maxIdle, maxLifetime)
}

func open(driver, dsn string, maxOpen, maxIdle int, maxLifetime time.Duration) (*sqlx.DB, error) {
	db, err := sqlx.Open(driver, dsn)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(maxOpen)
	db.SetMaxIdleConns(maxIdle)
	db.SetConnMaxLifetime(maxLifetime)
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return db, nil
}

// mysqlDSN forces the options the store relies on: DATETIME columns scan
// into time.Time and are interpreted as UTC.
func mysqlDSN(raw string) (string, error) {
	cfg, err := mysql.ParseDSN(raw)
	if err != nil {
		return "", fmt.Errorf("parse mysql dsn: %w", err)
	}
	cfg.ParseTime = true
	cfg.Loc = time.UTC
	return cfg.FormatDSN(), nil
}

// Dialect returns the migrations subdirectory for a driver name.
func Dialect(driver string) string {
	switch driver {
	case DriverPostgres:
		return "postgres"
	case DriverMySQL:
		return "mysql"
	default:
		return "sqlite"
	}
}
