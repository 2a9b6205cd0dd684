// Package database provides the relational run-index client and its
// embedded migrations. SQLite (the default, a single local file) and
// PostgreSQL share one schema; the dialect is chosen by whether a DSN
// is configured.
package database

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database"
	migratepgx "github.com/golang-migrate/migrate/v4/database/pgx/v5"
	migratesqlite "github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	_ "github.com/jackc/pgx/v5/stdlib" // register the pgx driver for database/sql
	_ "modernc.org/sqlite"             // register the sqlite driver for database/sql
)

// Dialects.
const (
	DialectSQLite   = "sqlite"
	DialectPostgres = "postgres"
)

// Client wraps the run-index database connection.
type Client struct {
	db      *sql.DB
	dialect string
}

// DB returns the underlying connection for queries and health checks.
func (c *Client) DB() *sql.DB { return c.db }

// Dialect reports which backend the client is connected to.
func (c *Client) Dialect() string { return c.dialect }

// Close closes the underlying connection.
func (c *Client) Close() error { return c.db.Close() }

// Open connects to the run index and applies pending migrations. A
// non-empty dsn selects PostgreSQL; otherwise SQLite at path (parent
// directories are created as needed).
func Open(ctx context.Context, path, dsn string) (*Client, error) {
	if dsn != "" {
		return openPostgres(ctx, dsn)
	}
	return openSQLite(ctx, path)
}

func openSQLite(ctx context.Context, path string) (*Client, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create run index directory: %w", err)
	}

	// WAL for concurrent readers; busy_timeout so concurrent run
	// inserts queue instead of erroring.
	db, err := sql.Open("sqlite", path+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)")
	if err != nil {
		return nil, fmt.Errorf("open sqlite run index %s: %w", path, err)
	}
	// SQLite serializes writers; a single connection avoids lock
	// contention between them.
	db.SetMaxOpenConns(1)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping sqlite run index: %w", err)
	}

	driver, err := migratesqlite.WithInstance(db, &migratesqlite.Config{})
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create sqlite migration driver: %w", err)
	}
	if err := runMigrations(DialectSQLite, driver); err != nil {
		_ = db.Close()
		return nil, err
	}

	slog.Info("Run index opened", "dialect", DialectSQLite, "path", path)
	return &Client{db: db, dialect: DialectSQLite}, nil
}

func openPostgres(ctx context.Context, dsn string) (*Client, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres run index: %w", err)
	}
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(time.Hour)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping postgres run index: %w", err)
	}

	driver, err := migratepgx.WithInstance(db, &migratepgx.Config{})
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create postgres migration driver: %w", err)
	}
	if err := runMigrations(DialectPostgres, driver); err != nil {
		_ = db.Close()
		return nil, err
	}

	slog.Info("Run index opened", "dialect", DialectPostgres)
	return &Client{db: db, dialect: DialectPostgres}, nil
}

func runMigrations(dialect string, driver database.Driver) error {
	sourceDriver, err := iofs.New(migrationsFS, "migrations/"+dialect)
	if err != nil {
		return fmt.Errorf("create migration source: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", sourceDriver, dialect, driver)
	if err != nil {
		return fmt.Errorf("create migrate instance: %w", err)
	}

	if err := m.Up(); err != nil && err != migrate.ErrNoChange {
		return fmt.Errorf("apply migrations: %w", err)
	}

	// Close only the source. m.Close() would also close the database
	// driver, which closes the shared *sql.DB.
	if err := sourceDriver.Close(); err != nil {
		return fmt.Errorf("close migration source: %w", err)
	}
	return nil
}
