// Package sqlite provides the SQLite-backed durable action store.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"github.com/mattn/go-sqlite3"
)

const memoryPath = ":memory:"

// DefaultBusyTimeout is how long a writer waits on a locked database.
const DefaultBusyTimeout = 5 * time.Second

// ErrNotOpen is returned when the connection is used before Open or after Close.
var ErrNotOpen = errors.New("database not open")

// Option configures a Connection.
type Option func(*Connection)

// WithBusyTimeout overrides DefaultBusyTimeout.
func WithBusyTimeout(d time.Duration) Option {
	return func(c *Connection) {
		if d > 0 {
			c.busyTimeout = d
		}
	}
}

// Info describes an open store.
type Info struct {
	Path          string `json:"path"`
	SchemaVersion int    `json:"schema_version"`
	SQLiteVersion string `json:"sqlite_version"`
	SizeBytes     int64  `json:"size_bytes"`
}

// Connection owns the single *sql.DB behind the action store.
type Connection struct {
	dbPath      string
	busyTimeout time.Duration

	mu     sync.RWMutex
	db     *sql.DB
	closed bool
}

// NewConnection creates a connection to dbPath. An empty path selects
// ~/.ppesync/actions.db.
func NewConnection(dbPath string, opts ...Option) (*Connection, error) {
	if dbPath == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("could not determine home directory: %w", err)
		}
		dbPath = filepath.Join(homeDir, ".ppesync", "actions.db")
	}

	c := &Connection{dbPath: dbPath, busyTimeout: DefaultBusyTimeout}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// dsn builds the driver connection string.
func (c *Connection) dsn() string {
	q := url.Values{}
	q.Set("_busy_timeout", strconv.FormatInt(c.busyTimeout.Milliseconds(), 10))
	if c.dbPath != memoryPath {
		q.Set("_journal_mode", "WAL")
	}
	return "file:" + c.dbPath + "?" + q.Encode()
}

// Open creates the parent directory, opens the database and migrates it.
func (c *Connection) Open() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.db != nil {
		return errors.New("database already open")
	}

	if c.dbPath != memoryPath {
		if err := os.MkdirAll(filepath.Dir(c.dbPath), 0750); err != nil {
			return fmt.Errorf("could not create database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", c.dsn())
	if err != nil {
		return fmt.Errorf("could not open database: %w", err)
	}

	// One writer at a time; also keeps ":memory:" on a single database.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return fmt.Errorf("could not ping database: %w", err)
	}

	if err := applyMigrations(db); err != nil {
		_ = db.Close()
		return fmt.Errorf("could not run migrations: %w", err)
	}

	c.db = db
	c.closed = false
	return nil
}

// IsOpen reports whether Open has succeeded and Close has not been called since.
func (c *Connection) IsOpen() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.db != nil
}

// IsClosed reports whether Close has been called on an open database.
func (c *Connection) IsClosed() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.closed
}

// Close closes the database. Closing twice is a no-op.
func (c *Connection) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.db == nil {
		return nil
	}
	err := c.db.Close()
	c.db = nil
	c.closed = true
	if err != nil {
		return fmt.Errorf("could not close database: %w", err)
	}
	return nil
}

// DB returns the open database.
func (c *Connection) DB() (*sql.DB, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if c.db == nil {
		if c.closed {
			return nil, fmt.Errorf("database is closed: %w", ErrNotOpen)
		}
		return nil, ErrNotOpen
	}
	return c.db, nil
}

// Path returns the database file path.
func (c *Connection) Path() string {
	return c.dbPath
}

// Ping tests the database connection.
func (c *Connection) Ping(ctx context.Context) error {
	db, err := c.DB()
	if err != nil {
		return err
	}
	return db.PingContext(ctx)
}

// LibraryVersion returns the version of the linked SQLite library.
func LibraryVersion() string {
	v, _, _ := sqlite3.Version()
	return v
}

// Info reports the schema version, the linked SQLite library and the on-disk
// size including the write-ahead log.
func (c *Connection) Info(ctx context.Context) (Info, error) {
	info := Info{Path: c.dbPath, SQLiteVersion: LibraryVersion()}

	db, err := c.DB()
	if err != nil {
		return info, err
	}
	if err := db.QueryRowContext(ctx, "SELECT COALESCE(MAX(version), 0) FROM migrations").Scan(&info.SchemaVersion); err != nil {
		return info, fmt.Errorf("could not read schema version: %w", err)
	}

	if c.dbPath != memoryPath {
		for _, p := range []string{c.dbPath, c.dbPath + "-wal"} {
			if st, err := os.Stat(p); err == nil {
				info.SizeBytes += st.Size()
			}
		}
	}
	return info, nil
}
