// Package database persists run reports in SQLite or PostgreSQL.
package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	_ "github.com/lib/pq"           // PostgreSQL driver
	_ "github.com/mattn/go-sqlite3" // SQLite driver
	"go.uber.org/zap"
)

// DB represents the database connection
type DB struct {
	logger *zap.Logger
	db     *sql.DB
	driver string

	slowQuery time.Duration
}

// Config represents database configuration
type Config struct {
	Driver             string        `yaml:"driver" json:"driver"`
	DSN                string        `yaml:"dsn" json:"dsn"`
	MaxOpenConns       int           `yaml:"max_open_conns" json:"max_open_conns"`
	MaxIdleConns       int           `yaml:"max_idle_conns" json:"max_idle_conns"`
	ConnMaxLifetime    time.Duration `yaml:"conn_max_lifetime" json:"conn_max_lifetime"`
	SlowQueryThreshold time.Duration `yaml:"slow_query_threshold" json:"slow_query_threshold"`
}

// New opens the database, checks connectivity and creates the schema.
func New(ctx context.Context, logger *zap.Logger, config Config) (*DB, error) {
	driver := config.Driver
	switch driver {
	case "postgres", "sqlite3":
	case "sqlite":
		driver = "sqlite3"
	default:
		return nil, fmt.Errorf("unsupported database driver: %s", config.Driver)
	}

	db, err := sql.Open(driver, config.DSN)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Every connection to an in-memory SQLite database sees its own empty
	// database.
	if driver == "sqlite3" && strings.Contains(config.DSN, ":memory:") {
		config.MaxOpenConns = 1
	}
	if config.MaxOpenConns > 0 {
		db.SetMaxOpenConns(config.MaxOpenConns)
	} else {
		db.SetMaxOpenConns(10)
	}
	if config.MaxIdleConns > 0 {
		db.SetMaxIdleConns(config.MaxIdleConns)
	} else {
		db.SetMaxIdleConns(2)
	}
	if config.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(config.ConnMaxLifetime)
	} else {
		db.SetConnMaxLifetime(30 * time.Minute)
	}
	if config.SlowQueryThreshold <= 0 {
		config.SlowQueryThreshold = 100 * time.Millisecond
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	d := &DB{
		logger:    logger,
		db:        db,
		driver:    driver,
		slowQuery: config.SlowQueryThreshold,
	}
	if err := d.initializeSchema(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	logger.Info("Database connected", zap.String("driver", driver))
	return d, nil
}

// Close closes the database connection
func (d *DB) Close() error {
	return d.db.Close()
}

// Driver returns the normalized driver name.
func (d *DB) Driver() string {
	return d.driver
}

// Ping checks database connectivity
func (d *DB) Ping(ctx context.Context) error {
	if d.db == nil {
		return errors.New("database not initialized")
	}
	return d.db.PingContext(ctx)
}

// Begin starts a new transaction
func (d *DB) Begin(ctx context.Context) (*Transaction, error) {
	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	return &Transaction{tx: tx, db: d}, nil
}

// Execute executes a query without returning results. Queries use ?
// placeholders regardless of driver.
func (d *DB) Execute(ctx context.Context, query string, args ...any) (sql.Result, error) {
	query = d.rebind(query)
	start := time.Now()
	result, err := d.db.ExecContext(ctx, query, args...)
	d.observe(query, start)
	return result, err
}

// Query executes a query and returns rows
func (d *DB) Query(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	query = d.rebind(query)
	start := time.Now()
	rows, err := d.db.QueryContext(ctx, query, args...)
	d.observe(query, start)
	return rows, err
}

// QueryRow executes a query and returns a single row
func (d *DB) QueryRow(ctx context.Context, query string, args ...any) *sql.Row {
	return d.db.QueryRowContext(ctx, d.rebind(query), args...)
}

func (d *DB) observe(query string, start time.Time) {
	if duration := time.Since(start); duration > d.slowQuery {
		d.logger.Warn("Slow query",
			zap.String("query", query),
			zap.Duration("duration", duration),
		)
	}
}

// rebind rewrites ? placeholders to $n for PostgreSQL.
func (d *DB) rebind(query string) string {
	if d.driver != "postgres" {
		return query
	}
	var b strings.Builder
	b.Grow(len(query) + 8)
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// Transaction represents a database transaction
type Transaction struct {
	tx *sql.Tx
	db *DB
}

// Commit commits the transaction
func (t *Transaction) Commit() error {
	return t.tx.Commit()
}

// Rollback rolls back the transaction
func (t *Transaction) Rollback() error {
	return t.tx.Rollback()
}

// Execute executes a query within the transaction
func (t *Transaction) Execute(ctx context.Context, query string, args ...any) (sql.Result, error) {
	query = t.db.rebind(query)
	start := time.Now()
	result, err := t.tx.ExecContext(ctx, query, args...)
	t.db.observe(query, start)
	return result, err
}
