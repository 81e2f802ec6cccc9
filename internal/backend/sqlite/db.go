// Package sqlite implements the task gateway, account store and change feed
// on a single SQLite database. Change notifications are fanned out in
// process, so every client of one database must share the DB value.
package sqlite

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"io"
	"log"
	"path"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// timeLayout is fixed width so text order matches time order.
const timeLayout = "2006-01-02T15:04:05.000000000Z"

// DefaultTimeout bounds each gateway call unless WithTimeout overrides it.
const DefaultTimeout = 5 * time.Second

// DB is an open tasktrack database.
type DB struct {
	db      *sql.DB
	feed    *Feed
	now     func() time.Time
	newID   func() string
	logger  *log.Logger
	timeout time.Duration

	// writeMu orders task writes and their notifications alike.
	writeMu sync.Mutex
}

// Option configures a DB.
type Option func(*DB)

// WithClock sets the time source for created_at (for testing).
func WithClock(now func() time.Time) Option {
	return func(d *DB) { d.now = now }
}

// WithIDs sets the id generator (for testing).
func WithIDs(next func() string) Option {
	return func(d *DB) { d.newID = next }
}

// WithLogger sets the logger.
func WithLogger(l *log.Logger) Option {
	return func(d *DB) { d.logger = l }
}

// WithTimeout sets the deadline of each gateway call. Zero disables it.
func WithTimeout(timeout time.Duration) Option {
	return func(d *DB) { d.timeout = timeout }
}

// Open opens the database at dbPath and applies pending migrations.
// ":memory:" opens a private in-memory database.
func Open(dbPath string, opts ...Option) (*DB, error) {
	dsn := dbPath + "?_foreign_keys=on&_busy_timeout=5000"
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if dbPath == ":memory:" {
		// Each connection would otherwise get its own empty database.
		db.SetMaxOpenConns(1)
	}

	d := NewFromDB(db, opts...)
	if err := d.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	return d, nil
}

// NewFromDB wraps an already open database without migrating it.
func NewFromDB(db *sql.DB, opts ...Option) *DB {
	d := &DB{
		db:     db,
		now:     time.Now,
		newID:   func() string { return uuid.Must(uuid.NewV7()).String() },
		logger:  log.New(io.Discard, "", 0),
		timeout: DefaultTimeout,
	}
	for _, opt := range opts {
		opt(d)
	}
	d.feed = newFeed(d.logger)
	return d
}

// Close ends every change subscription and closes the database.
func (d *DB) Close() error {
	d.feed.closeAll()
	return d.db.Close()
}

// Tasks returns the task gateway.
func (d *DB) Tasks() *Tasks {
	return &Tasks{d: d}
}

// Accounts returns the account store.
func (d *DB) Accounts() *Accounts {
	return &Accounts{d: d}
}

// Feed returns the change feed.
func (d *DB) Feed() *Feed {
	return d.feed
}

// bound applies the call timeout to ctx.
func (d *DB) bound(ctx context.Context) (context.Context, context.CancelFunc) {
	if d.timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, d.timeout)
}

func (d *DB) timestamp() string {
	return d.now().UTC().Format(timeLayout)
}

func parseTime(s string) (time.Time, error) {
	return time.Parse(timeLayout, s)
}

type migration struct {
	version int
	name    string
	sql     string
}

func (d *DB) migrate() error {
	if _, err := d.db.Exec(`
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version INTEGER PRIMARY KEY,
			name TEXT NOT NULL,
			applied_at TEXT NOT NULL
		)`); err != nil {
		return err
	}

	migrations, err := loadMigrations()
	if err != nil {
		return err
	}

	applied := make(map[int]bool)
	rows, err := d.db.Query(`SELECT version FROM schema_migrations`)
	if err != nil {
		return err
	}
	for rows.Next() {
		var v int
		if err := rows.Scan(&v); err != nil {
			rows.Close()
			return err
		}
		applied[v] = true
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return err
	}

	for _, m := range migrations {
		if applied[m.version] {
			continue
		}
		tx, err := d.db.Begin()
		if err != nil {
			return err
		}
		if _, err := tx.Exec(m.sql); err != nil {
			tx.Rollback()
			return fmt.Errorf("migration %s: %w", m.name, err)
		}
		if _, err := tx.Exec(`INSERT INTO schema_migrations (version, name, applied_at) VALUES (?, ?, ?)`,
			m.version, m.name, d.timestamp()); err != nil {
			tx.Rollback()
			return err
		}
		if err := tx.Commit(); err != nil {
			return err
		}
	}
	return nil
}

func loadMigrations() ([]migration, error) {
	entries, err := migrationsFS.ReadDir("migrations")
	if err != nil {
		return nil, err
	}

	var out []migration
	for _, e := range entries {
		name := e.Name()
		prefix, _, ok := strings.Cut(name, "_")
		if !ok {
			return nil, fmt.Errorf("migration %s: missing version prefix", name)
		}
		version, err := strconv.Atoi(prefix)
		if err != nil {
			return nil, fmt.Errorf("migration %s: %w", name, err)
		}
		data, err := migrationsFS.ReadFile(path.Join("migrations", name))
		if err != nil {
			return nil, err
		}
		out = append(out, migration{version: version, name: name, sql: string(data)})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].version < out[j].version })
	return out, nil
}
