// Package db opens the device's local SQLite database and prepares the
// schemas the sync layers need.
package db

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"

	"github.com/lanehq/possync/internal/kv"
	"github.com/lanehq/possync/internal/localstore"
)

const dbFile = "sync.db"

// DB bundles the shared connection with the stores built on it.
type DB struct {
	Conn  *sql.DB
	KV    *kv.Store
	Local *localstore.Store
}

// DefaultPath returns the database location, ~/.local/share/possync/sync.db.
// POSSYNC_DB overrides it.
func DefaultPath() (string, error) {
	if v := os.Getenv("POSSYNC_DB"); v != "" {
		return v, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("get home dir: %w", err)
	}
	return filepath.Join(home, ".local", "share", "possync", dbFile), nil
}

// Open opens (creating if needed) the database at path and initializes the
// kv and record stores.
func Open(path string) (*DB, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("create db dir: %w", err)
	}

	conn, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	// Enable WAL mode for concurrent reads while writes are serialized
	if _, err := conn.Exec("PRAGMA journal_mode=WAL"); err != nil {
		conn.Close()
		return nil, fmt.Errorf("enable WAL mode: %w", err)
	}

	// Set busy timeout as fallback protection
	if _, err := conn.Exec("PRAGMA busy_timeout=500"); err != nil {
		conn.Close()
		return nil, fmt.Errorf("set busy timeout: %w", err)
	}

	// Slightly faster writes, still safe with WAL
	conn.Exec("PRAGMA synchronous=NORMAL")

	kvStore, err := kv.Open(conn)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("init kv store: %w", err)
	}
	local, err := localstore.Open(conn)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("init record store: %w", err)
	}

	return &DB{Conn: conn, KV: kvStore, Local: local}, nil
}

// Close closes the underlying connection.
func (d *DB) Close() error {
	return d.Conn.Close()
}
