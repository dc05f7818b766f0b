// Package localdb is the on-device store: a mirror of the server's records,
// the queue of not-yet-synced mutations, the sync cursor, and a short
// telemetry log of recent sync activity.
package localdb

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"
)

const dbFile = "klettrack.db"

// DB wraps the local database connection.
type DB struct {
	conn    *sql.DB
	baseDir string
}

// Open opens an existing local database and runs any pending migrations.
func Open(baseDir string) (*DB, error) {
	dbPath := filepath.Join(baseDir, dbFile)

	if _, err := os.Stat(dbPath); os.IsNotExist(err) {
		return nil, fmt.Errorf("local database not found: run 'klettrack init' first")
	}

	return open(dbPath, baseDir)
}

// Initialize creates the local database and runs migrations.
func Initialize(baseDir string) (*DB, error) {
	dbPath := filepath.Join(baseDir, dbFile)

	if err := os.MkdirAll(baseDir, 0755); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}

	return open(dbPath, baseDir)
}

func open(dbPath, baseDir string) (*DB, error) {
	conn, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	// WAL for concurrent reads while writes are serialized.
	if _, err := conn.Exec("PRAGMA journal_mode=WAL"); err != nil {
		conn.Close()
		return nil, fmt.Errorf("enable WAL mode: %w", err)
	}
	if _, err := conn.Exec("PRAGMA busy_timeout=500"); err != nil {
		conn.Close()
		return nil, fmt.Errorf("set busy timeout: %w", err)
	}
	conn.Exec("PRAGMA synchronous=NORMAL")

	db := &DB{conn: conn, baseDir: baseDir}

	if _, err := db.RunMigrations(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return db, nil
}

// Conn returns the underlying *sql.DB connection for use in transactions
// (e.g., by the reconciler which applies pulled pages atomically).
func (db *DB) Conn() *sql.DB {
	return db.conn
}

// Close closes the database connection.
func (db *DB) Close() error {
	db.conn.Exec("PRAGMA wal_checkpoint(TRUNCATE)")
	return db.conn.Close()
}
