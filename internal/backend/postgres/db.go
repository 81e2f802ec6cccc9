// Package postgres implements the task gateway, account store and change
// feed on PostgreSQL. Changes are published by a trigger through
// LISTEN/NOTIFY, so every client of the database sees every write.
package postgres

import (
	"context"
	"fmt"
	"io"
	"log"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// DefaultTimeout bounds each gateway call unless WithTimeout overrides it.
const DefaultTimeout = 5 * time.Second

// DB is a connection pool to a tasktrack database.
type DB struct {
	pool    *pgxpool.Pool
	logger  *log.Logger
	timeout time.Duration
}

// Option configures a DB.
type Option func(*DB)

// WithLogger sets the logger.
func WithLogger(l *log.Logger) Option {
	return func(d *DB) { d.logger = l }
}

// WithTimeout sets the deadline of each gateway call. Zero disables it.
// Change subscriptions are long-lived and not bounded.
func WithTimeout(timeout time.Duration) Option {
	return func(d *DB) { d.timeout = timeout }
}

// Open connects to databaseURL and ensures the schema exists.
func Open(ctx context.Context, databaseURL string, opts ...Option) (*DB, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to connect: %w", err)
	}

	d := NewFromPool(pool, opts...)
	if err := d.EnsureSchema(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to create schema: %w", err)
	}
	return d, nil
}

// NewFromPool wraps an existing pool without touching the schema.
func NewFromPool(pool *pgxpool.Pool, opts ...Option) *DB {
	d := &DB{pool: pool, logger: log.New(io.Discard, "", 0), timeout: DefaultTimeout}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// EnsureSchema creates tables, indexes and the change trigger.
func (d *DB) EnsureSchema(ctx context.Context) error {
	return pgx.BeginFunc(ctx, d.pool, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock($1)`, int64(schemaLockID)); err != nil {
			return err
		}
		_, err := tx.Exec(ctx, schema)
		return err
	})
}

// Close closes the pool.
func (d *DB) Close() {
	d.pool.Close()
}

// Tasks returns the task gateway.
func (d *DB) Tasks() *Tasks {
	return &Tasks{pool: d.pool, timeout: d.timeout}
}

// Accounts returns the account store.
func (d *DB) Accounts() *Accounts {
	return &Accounts{pool: d.pool, timeout: d.timeout}
}

// bound applies timeout to ctx; zero leaves ctx unbounded.
func bound(ctx context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	if timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, timeout)
}

// Feed returns the change feed.
func (d *DB) Feed() *Feed {
	return &Feed{pool: d.pool, logger: d.logger}
}
