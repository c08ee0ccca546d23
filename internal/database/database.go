package database

import (
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"os"
	"path/filepath"
	"strconv"

	"github.com/go-sql-driver/mysql"
	"github.com/golang-migrate/migrate/v4"
	migratedb "github.com/golang-migrate/migrate/v4/database"
	migratemysql "github.com/golang-migrate/migrate/v4/database/mysql"
	migratesqlite "github.com/golang-migrate/migrate/v4/database/sqlite3"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/hashicorp/go-multierror"
	_ "github.com/mattn/go-sqlite3" // Import the sqlite3 driver.

	"beru/backend/internal/config"
)

//go:embed migrations
var migrationsFS embed.FS

// Open returns a handle for the configured database. No connection is made
// here; with the default DB_MAX_IDLE_CONNS=0 every Conn() call dials a fresh
// connection and Close() tears it down.
func Open(cfg *config.Config) (*sql.DB, error) {
	dsn, err := dataSourceName(cfg)
	if err != nil {
		return nil, err
	}

	db, err := sql.Open(cfg.DBDriver, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxIdleConns(cfg.DBMaxIdleConns)

	return db, nil
}

// EnsureSchema applies the embedded migrations for the configured dialect on
// a dedicated connection. Running it against an up-to-date schema is a no-op.
func EnsureSchema(cfg *config.Config) (err error) {
	db, err := Open(cfg)
	if err != nil {
		return err
	}
	defer func() {
		if cErr := db.Close(); cErr != nil {
			slog.Warn("Failed to close migration connection", "error", cErr)
		}
	}()

	if err := db.Ping(); err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}

	if cfg.DBDriver == config.DriverSQLite {
		// Readers then don't block the writer.
		if _, err := db.Exec("PRAGMA journal_mode=WAL;"); err != nil {
			slog.Warn("Failed to enable WAL mode for SQLite, continuing without it.", "error", err)
		}
	}

	src, err := iofs.New(migrationsFS, "migrations/"+cfg.DBDriver)
	if err != nil {
		return fmt.Errorf("failed to load migrations: %w", err)
	}

	var target migratedb.Driver
	switch cfg.DBDriver {
	case config.DriverMySQL:
		target, err = migratemysql.WithInstance(db, &migratemysql.Config{})
	case config.DriverSQLite:
		target, err = migratesqlite.WithInstance(db, &migratesqlite.Config{})
	default:
		err = fmt.Errorf("unsupported database driver %q", cfg.DBDriver)
	}
	if err != nil {
		return fmt.Errorf("failed to prepare migration driver: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", src, cfg.DBDriver, target)
	if err != nil {
		return fmt.Errorf("failed to create migrator: %w", err)
	}
	defer func() {
		srcErr, dbErr := m.Close()
		if closeErr := multierror.Append(nil, srcErr, dbErr).ErrorOrNil(); closeErr != nil && err == nil {
			err = fmt.Errorf("failed to close migrator: %w", closeErr)
		}
	}()

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("failed to apply migrations: %w", err)
	}

	version, dirty, err := m.Version()
	if err != nil {
		return fmt.Errorf("failed to read schema version: %w", err)
	}
	slog.Info("Database schema is up to date", "driver", cfg.DBDriver, "version", version, "dirty", dirty)

	return nil
}

func dataSourceName(cfg *config.Config) (string, error) {
	switch cfg.DBDriver {
	case config.DriverMySQL:
		mc := mysql.NewConfig()
		mc.User = cfg.DBUser
		mc.Passwd = cfg.DBPassword
		mc.Net = "tcp"
		mc.Addr = net.JoinHostPort(cfg.DBHost, strconv.Itoa(cfg.DBPort))
		mc.DBName = cfg.DBName
		mc.ParseTime = true
		return mc.FormatDSN(), nil
	case config.DriverSQLite:
		dir := filepath.Dir(cfg.DatabasePath)
		if err := os.MkdirAll(dir, 0750); err != nil {
			return "", fmt.Errorf("failed to create database directory: %w", err)
		}
		return cfg.DatabasePath, nil
	default:
		return "", fmt.Errorf("unsupported database driver %q", cfg.DBDriver)
	}
}
