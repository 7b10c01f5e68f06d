package sqlite

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestNewConnection_Path(t *testing.T) {
	homeDir, _ := os.UserHomeDir()

	tests := []struct {
		name string
		in   string
		want string
	}{
		{"explicit", "/tmp/actions.db", "/tmp/actions.db"},
		{"default", "", filepath.Join(homeDir, ".ppesync", "actions.db")},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			conn, err := NewConnection(tt.in)
			if err != nil {
				t.Fatalf("NewConnection() error = %v", err)
			}
			if got := conn.Path(); got != tt.want {
				t.Errorf("Path() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestConnection_DSN(t *testing.T) {
	tests := []struct {
		name    string
		path    string
		opts    []Option
		want    []string
		notWant []string
	}{
		{
			name: "file uses WAL and default timeout",
			path: "/data/actions.db",
			want: []string{"file:/data/actions.db?", "_busy_timeout=5000", "_journal_mode=WAL"},
		},
		{
			name:    "memory skips WAL",
			path:    memoryPath,
			want:    []string{"file::memory:?"},
			notWant: []string{"_journal_mode"},
		},
		{
			name: "custom busy timeout",
			path: "/data/actions.db",
			opts: []Option{WithBusyTimeout(250 * time.Millisecond)},
			want: []string{"_busy_timeout=250"},
		},
		{
			name: "non-positive timeout ignored",
			path: "/data/actions.db",
			opts: []Option{WithBusyTimeout(0)},
			want: []string{"_busy_timeout=5000"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			conn, err := NewConnection(tt.path, tt.opts...)
			if err != nil {
				t.Fatalf("NewConnection() error = %v", err)
			}
			dsn := conn.dsn()
			for _, w := range tt.want {
				if !strings.Contains(dsn, w) {
					t.Errorf("dsn %q missing %q", dsn, w)
				}
			}
			for _, w := range tt.notWant {
				if strings.Contains(dsn, w) {
					t.Errorf("dsn %q contains %q", dsn, w)
				}
			}
		})
	}
}

func TestConnection_Lifecycle(t *testing.T) {
	ctx := context.Background()
	dbPath := filepath.Join(t.TempDir(), "nested", "actions.db")

	conn, err := NewConnection(dbPath)
	if err != nil {
		t.Fatalf("NewConnection() error = %v", err)
	}

	if _, err := conn.DB(); !errors.Is(err, ErrNotOpen) {
		t.Errorf("DB() before Open error = %v, want ErrNotOpen", err)
	}
	if err := conn.Ping(ctx); err == nil {
		t.Error("Ping() before Open should fail")
	}

	if err := conn.Open(); err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	if !conn.IsOpen() {
		t.Error("IsOpen() = false after Open")
	}
	if _, err := os.Stat(dbPath); err != nil {
		t.Errorf("database file: %v", err)
	}
	if err := conn.Open(); err == nil {
		t.Error("second Open() should fail")
	}
	if err := conn.Ping(ctx); err != nil {
		t.Errorf("Ping() error = %v", err)
	}

	db, _ := conn.DB()
	var mode string
	if err := db.QueryRow("PRAGMA journal_mode").Scan(&mode); err != nil {
		t.Fatalf("journal_mode: %v", err)
	}
	if !strings.EqualFold(mode, "wal") {
		t.Errorf("journal_mode = %q, want wal", mode)
	}

	if err := conn.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if conn.IsOpen() {
		t.Error("IsOpen() = true after Close")
	}
	if _, err := conn.DB(); !errors.Is(err, ErrNotOpen) {
		t.Errorf("DB() after Close error = %v, want ErrNotOpen", err)
	}
	if err := conn.Close(); err != nil {
		t.Errorf("second Close() error = %v", err)
	}
}

func TestConnection_Info(t *testing.T) {
	ctx := context.Background()
	dbPath := filepath.Join(t.TempDir(), "actions.db")

	conn, err := NewConnection(dbPath)
	if err != nil {
		t.Fatalf("NewConnection() error = %v", err)
	}

	if _, err := conn.Info(ctx); !errors.Is(err, ErrNotOpen) {
		t.Errorf("Info() before Open error = %v, want ErrNotOpen", err)
	}

	if err := conn.Open(); err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	defer conn.Close()

	info, err := conn.Info(ctx)
	if err != nil {
		t.Fatalf("Info() error = %v", err)
	}
	if info.Path != dbPath {
		t.Errorf("Path = %q", info.Path)
	}
	if info.SchemaVersion != len(migrations) {
		t.Errorf("SchemaVersion = %d, want %d", info.SchemaVersion, len(migrations))
	}
	if info.SQLiteVersion == "" {
		t.Error("SQLiteVersion is empty")
	}
	if info.SizeBytes <= 0 {
		t.Errorf("SizeBytes = %d", info.SizeBytes)
	}
}
