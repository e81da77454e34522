package database

import (
	"context"
	"fmt"
	"os"
	"time"

	"tgmedia/internal/migrations"
	"tgmedia/internal/models"
	"tgmedia/internal/security"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"
)

// Database is the handle every repository method hangs off. It is built
// once in main and injected into the services that need it.
type Database struct {
	db        *sqlx.DB
	driver    string
	encryptor *encryptor
	now       func() time.Time
}

// Open connects to the configured database, optionally applies migrations
// and prepares the token encryptor.
func Open(ctx context.Context, cfg models.DatabaseConfig) (*Database, error) {
	dsn, err := dataSourceName(cfg)
	if err != nil {
		return nil, err
	}

	if cfg.AutoMigrate {
		if err := migrations.Up(cfg.Driver, dsn); err != nil {
			return nil, fmt.Errorf("failed to initialize schema: %w", err)
		}
	}

	db, err := sqlx.Open(cfg.Driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.PingContext(ctx); err != nil {
		if closeErr := db.Close(); closeErr != nil {
			return nil, fmt.Errorf("failed to ping database: %w (close error: %v)", err, closeErr)
		}
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	configurePool(db, cfg)

	enc, err := NewEncryptor(cfg.EncryptionKey, cfg.EncryptTokens)
	if err != nil {
		if closeErr := db.Close(); closeErr != nil {
			return nil, fmt.Errorf("failed to initialize encryptor: %w (close error: %v)", err, closeErr)
		}
		return nil, fmt.Errorf("failed to initialize encryptor: %w", err)
	}

	return &Database{db: db, driver: cfg.Driver, encryptor: enc, now: utcNow}, nil
}

func dataSourceName(cfg models.DatabaseConfig) (string, error) {
	switch cfg.Driver {
	case migrations.DriverPostgres:
		if cfg.URL == "" {
			return "", fmt.Errorf("DATABASE_URL is required for the postgres driver")
		}
		return cfg.URL, nil
	case migrations.DriverSQLite:
		if err := security.ValidateFilePath(cfg.Path); err != nil {
			return "", fmt.Errorf("invalid database path: %w", err)
		}
		file, err := os.OpenFile(cfg.Path, os.O_RDWR|os.O_CREATE, 0600)
		if err != nil {
			return "", fmt.Errorf("failed to create database file: %w", err)
		}
		if err := file.Close(); err != nil {
			return "", fmt.Errorf("failed to close database file: %w", err)
		}
		return cfg.Path + "?_busy_timeout=5000", nil
	default:
		return "", fmt.Errorf("unsupported database driver: %q", cfg.Driver)
	}
}

func configurePool(db *sqlx.DB, cfg models.DatabaseConfig) {
	if cfg.Driver == migrations.DriverSQLite {
		// one writer at a time; avoids SQLITE_BUSY under concurrent drains
		db.SetMaxOpenConns(1)
		return
	}
	if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		db.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(time.Duration(cfg.ConnMaxLifetime) * time.Second)
	}
}

func (d *Database) Close() error {
	return d.db.Close()
}

// Ping reports whether the database is reachable.
func (d *Database) Ping(ctx context.Context) error {
	return d.db.PingContext(ctx)
}

// Driver returns the sql driver name in use.
func (d *Database) Driver() string {
	return d.driver
}

func (d *Database) exec(ctx context.Context, query string, args ...interface{}) (int64, error) {
	res, err := d.db.ExecContext(ctx, d.db.Rebind(query), args...)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func (d *Database) get(ctx context.Context, dest interface{}, query string, args ...interface{}) error {
	return d.db.GetContext(ctx, dest, d.db.Rebind(query), args...)
}

func (d *Database) selectAll(ctx context.Context, dest interface{}, query string, args ...interface{}) error {
	return d.db.SelectContext(ctx, dest, d.db.Rebind(query), args...)
}

func utcNow() time.Time {
	return time.Now().UTC()
}
