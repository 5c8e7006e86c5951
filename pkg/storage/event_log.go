// Package storage persists rig events to SQLite so the status UI and
// API clients can review what the rig did while nobody was watching.
package storage

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/dougsko/rigd/pkg/logging"
	"github.com/dougsko/rigd/pkg/rig"
	_ "github.com/mattn/go-sqlite3"
)

// StoredEvent is one persisted rig event.
type StoredEvent struct {
	ID        int64     `json:"id"`
	Timestamp time.Time `json:"timestamp"`
	Type      string    `json:"type"`
	Op        string    `json:"op,omitempty"`
	State     string    `json:"state"`
	FreqHz    uint64    `json:"freq_hz"`
	Mode      string    `json:"mode"`
	Error     string    `json:"error,omitempty"`
	Snapshot  string    `json:"snapshot,omitempty"`
}

// EventLog handles persistent storage of rig events
type EventLog struct {
	db        *sql.DB
	dbPath    string
	maxEvents int
}

// NewEventLog creates an event log with SQLite backend
func NewEventLog(dbPath string, maxEvents int) (*EventLog, error) {
	if dbPath == "" {
		dbPath = "./rigd.db"
	}
	el := &EventLog{
		dbPath:    dbPath,
		maxEvents: maxEvents,
	}
	if err := el.initialize(); err != nil {
		return nil, fmt.Errorf("failed to initialize event log: %w", err)
	}
	return el, nil
}

// initialize sets up the database connection and creates tables
func (el *EventLog) initialize() error {
	if dir := filepath.Dir(el.dbPath); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	connectionString := el.dbPath + "?_busy_timeout=10000&_journal_mode=WAL"
	db, err := sql.Open("sqlite3", connectionString)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	el.db = db

	schema := `
	CREATE TABLE IF NOT EXISTS rig_events (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		timestamp DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
		event_type TEXT NOT NULL,
		op TEXT NOT NULL DEFAULT '',
		state TEXT NOT NULL,
		freq_hz INTEGER NOT NULL DEFAULT 0,
		mode TEXT NOT NULL DEFAULT '',
		error TEXT NOT NULL DEFAULT '',
		snapshot TEXT NOT NULL DEFAULT ''
	);

	CREATE INDEX IF NOT EXISTS idx_rig_events_timestamp ON rig_events(timestamp);
	CREATE INDEX IF NOT EXISTS idx_rig_events_type ON rig_events(event_type);
	`
	if _, err := el.db.Exec(schema); err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}

	logging.Infof("storage", "event log initialized: %s (max %d events)", el.dbPath, el.maxEvents)
	return nil
}

// Append stores one rig event and prunes the oldest rows when the log
// exceeds its configured maximum.
func (el *EventLog) Append(ev rig.Event) error {
	snapJSON, err := json.Marshal(ev.Snapshot)
	if err != nil {
		return fmt.Errorf("failed to encode snapshot: %w", err)
	}

	tx, err := el.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.Exec(`
		INSERT INTO rig_events (timestamp, event_type, op, state, freq_hz, mode, error, snapshot)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		ev.Time, string(ev.Type), ev.Op, ev.StateStr,
		ev.Snapshot.Status.Freq.Hz, string(ev.Snapshot.Status.Mode),
		ev.Err, string(snapJSON))
	if err != nil {
		return fmt.Errorf("failed to insert event: %w", err)
	}

	if el.maxEvents > 0 {
		_, err = tx.Exec(`
			DELETE FROM rig_events
			WHERE id NOT IN (
				SELECT id FROM rig_events ORDER BY id DESC LIMIT ?
			)`, el.maxEvents)
		if err != nil {
			return fmt.Errorf("failed to prune events: %w", err)
		}
	}

	return tx.Commit()
}

// Recent returns the newest events, newest first.
func (el *EventLog) Recent(limit int) ([]StoredEvent, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := el.db.Query(`
		SELECT id, timestamp, event_type, op, state, freq_hz, mode, error, snapshot
		FROM rig_events ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query events: %w", err)
	}
	defer rows.Close()

	var events []StoredEvent
	for rows.Next() {
		var ev StoredEvent
		if err := rows.Scan(&ev.ID, &ev.Timestamp, &ev.Type, &ev.Op,
			&ev.State, &ev.FreqHz, &ev.Mode, &ev.Error, &ev.Snapshot); err != nil {
			return nil, fmt.Errorf("failed to scan event: %w", err)
		}
		events = append(events, ev)
	}
	return events, rows.Err()
}

// Count returns the number of stored events.
func (el *EventLog) Count() (int, error) {
	var n int
	if err := el.db.QueryRow(`SELECT COUNT(*) FROM rig_events`).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count events: %w", err)
	}
	return n, nil
}

// Close closes the database connection
func (el *EventLog) Close() error {
	if el.db != nil {
		return el.db.Close()
	}
	return nil
}
