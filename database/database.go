// Package database records the emitted event stream into SQLite so past
// activity can be queried after the fact. Correlation state itself never
// touches disk; this is a write-only journal of what was reported.
package database

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "github.com/mattn/go-sqlite3"

	"github.com/haolipeng/agentsight/correlate"
)

// DB wraps the SQLite handle used for event recording.
type DB struct {
	db *sql.DB
}

// New opens (creating if needed) the events database under dataDir.
func New(dataDir string) (*DB, error) {
	if err := os.MkdirAll(dataDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	dbPath := filepath.Join(dataDir, "events.db")
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}

	if err := initSchema(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return &DB{db: db}, nil
}

func initSchema(db *sql.DB) error {
	schema := `
	CREATE TABLE IF NOT EXISTS events (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		timestamp INTEGER NOT NULL,
		event TEXT NOT NULL,
		comm TEXT,
		pid INTEGER,
		ppid INTEGER,
		exit_code INTEGER,
		duration_ms INTEGER,
		filename TEXT,
		full_command TEXT,
		command TEXT,
		filepath TEXT,
		flags INTEGER,
		count INTEGER,
		annotation TEXT
	);
	CREATE INDEX IF NOT EXISTS idx_events_pid ON events(pid);
	CREATE INDEX IF NOT EXISTS idx_events_event ON events(event);
	CREATE INDEX IF NOT EXISTS idx_events_timestamp ON events(timestamp);
	`
	_, err := db.Exec(schema)
	return err
}

// Emit implements correlate.Sink, inserting one row per record.
func (d *DB) Emit(record any) error {
	switch r := record.(type) {
	case correlate.ExecRecord:
		_, err := d.db.Exec(
			`INSERT INTO events (timestamp, event, comm, pid, ppid, filename, full_command)
			 VALUES (?, ?, ?, ?, ?, ?, ?)`,
			r.Timestamp, r.Event, r.Comm, r.PID, r.PPID, r.Filename, r.FullCommand)
		return err

	case correlate.ExitRecord:
		_, err := d.db.Exec(
			`INSERT INTO events (timestamp, event, comm, pid, ppid, exit_code, duration_ms, annotation)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			r.Timestamp, r.Event, r.Comm, r.PID, r.PPID, r.ExitCode, r.DurationMs, r.RateLimitWarning)
		return err

	case correlate.ReadlineRecord:
		_, err := d.db.Exec(
			`INSERT INTO events (timestamp, event, comm, pid, command)
			 VALUES (?, ?, ?, ?, ?)`,
			r.Timestamp, r.Event, r.Comm, r.PID, r.Command)
		return err

	case correlate.FileOpenRecord:
		annotation := r.RateLimitWarning
		if r.WindowExpired {
			annotation = "window_expired"
		} else if r.Reason != "" {
			annotation = r.Reason
		}
		_, err := d.db.Exec(
			`INSERT INTO events (timestamp, event, comm, pid, filepath, flags, count, annotation)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			r.Timestamp, r.Event, r.Comm, r.PID, r.Filepath, r.Flags, r.Count, annotation)
		return err

	default:
		return fmt.Errorf("unknown record type %T", record)
	}
}

// CountEvents returns the number of recorded events of the given kind, or
// of all kinds when kind is empty.
func (d *DB) CountEvents(kind string) (int, error) {
	var n int
	var err error
	if kind == "" {
		err = d.db.QueryRow(`SELECT COUNT(*) FROM events`).Scan(&n)
	} else {
		err = d.db.QueryRow(`SELECT COUNT(*) FROM events WHERE event = ?`, kind).Scan(&n)
	}
	return n, err
}

// Close closes the database.
func (d *DB) Close() error {
	return d.db.Close()
}
