// Package observability is the SQLite-backed business-event log: document
// uploads, session lifecycle and speech calls are recorded for telemetry.
// It stores telemetry only; documents and sessions themselves stay in memory.
package observability

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/edulingo/edulingo/idgen"
)

const schema = `
CREATE TABLE IF NOT EXISTS business_event_logs (
	event_id    TEXT PRIMARY KEY,
	event_type  TEXT NOT NULL,
	entity_type TEXT NOT NULL,
	entity_id   TEXT NOT NULL,
	action      TEXT NOT NULL,
	details     TEXT,
	success     INTEGER NOT NULL,
	created_at  INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_event_logs_created ON business_event_logs(created_at);
CREATE INDEX IF NOT EXISTS idx_event_logs_type ON business_event_logs(event_type);
`

// OpenDB opens the observability database with WAL and busy-timeout pragmas,
// creating parent directories as needed.
func OpenDB(path string) (*sql.DB, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("observability: mkdir: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("observability: open: %w", err)
	}

	pragmas := []string{
		"PRAGMA foreign_keys = ON",
		"PRAGMA journal_mode = WAL",
		"PRAGMA busy_timeout = 10000",
		"PRAGMA synchronous = NORMAL",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			db.Close()
			return nil, fmt.Errorf("observability: %s: %w", p, err)
		}
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("observability: ping: %w", err)
	}
	return db, nil
}

// BusinessEvent is one domain-level event to record.
type BusinessEvent struct {
	EventType  string // "document", "session", "speech"
	EntityType string // "document", "session", "audio"
	EntityID   string
	Action     string // "uploaded", "created", "ended", "transcribed", ...
	Details    string // optional JSON
	Success    bool
}

// EventLogger writes business events and manages retention cleanup.
type EventLogger struct {
	db    *sql.DB
	newID idgen.Generator
}

// NewEventLogger creates a logger over an open observability database.
func NewEventLogger(db *sql.DB) *EventLogger {
	return &EventLogger{db: db, newID: idgen.Prefixed("evt_", idgen.UUIDv7())}
}

// Init creates the schema. Idempotent.
func (l *EventLogger) Init(ctx context.Context) error {
	if _, err := l.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("observability: schema: %w", err)
	}
	return nil
}

// LogEvent records a business event. Non-blocking: errors are logged via slog
// but never propagate, so a failing telemetry store cannot break the app.
func (l *EventLogger) LogEvent(ctx context.Context, event BusinessEvent) {
	_, err := l.db.ExecContext(ctx, `
		INSERT INTO business_event_logs (
			event_id, event_type, entity_type, entity_id, action, details, success, created_at
		) VALUES (?,?,?,?,?,?,?,?)`,
		l.newID(), event.EventType, event.EntityType, event.EntityID,
		event.Action, event.Details, event.Success, time.Now().Unix())
	if err != nil {
		slog.Error("observability event log failed", "error", err, "event_type", event.EventType)
	}
}

// Cleanup deletes events older than the retention window. Zero days disables
// cleanup.
func (l *EventLogger) Cleanup(ctx context.Context, retentionDays int) error {
	if retentionDays <= 0 {
		return nil
	}
	cutoff := time.Now().Unix() - int64(retentionDays)*86400
	if _, err := l.db.ExecContext(ctx, "DELETE FROM business_event_logs WHERE created_at < ?", cutoff); err != nil {
		return fmt.Errorf("observability: cleanup: %w", err)
	}
	return nil
}
