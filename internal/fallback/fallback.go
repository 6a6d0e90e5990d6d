// Package fallback implements the local write log used when a durable
// write fails.
//
// The log sits beside the persistence gateway: every operation that could
// not be written to Postgres is recorded here keyed by id, so the cleaner's
// record survives a durable outage and can be replayed later. It is a
// best-effort cache, never a second source of truth — a replayed entry is
// just another upsert, and the durable store always wins on read when both
// have the id.
package fallback

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	_ "modernc.org/sqlite"

	"github.com/reluceapp/reluce/internal/model"
)

// ErrNotFound is returned when an id has no fallback entry.
var ErrNotFound = errors.New("fallback: not found")

// Log is a SQLite-backed operation write log.
type Log struct {
	db     *sql.DB
	logger *slog.Logger
}

// Open creates or opens the fallback log at path. Returns nil if path is
// empty (fallback disabled); the gateway is nil-safe around a disabled log.
func Open(path string, logger *slog.Logger) (*Log, error) {
	if path == "" {
		return nil, nil
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("fallback: open %s: %w", path, err)
	}
	// A single writer avoids SQLITE_BUSY under concurrent gateway writes.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS pending_operations (
			id          TEXT PRIMARY KEY,
			payload     TEXT NOT NULL,
			recorded_at TEXT NOT NULL
		)
	`); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("fallback: create table: %w", err)
	}

	return &Log{db: db, logger: logger}, nil
}

// Record stores an operation in the log, replacing any previous entry for
// the same id. The full step array rides along, matching the durable
// store's last-write-wins contract.
func (l *Log) Record(ctx context.Context, op model.Operation) error {
	payload, err := json.Marshal(op)
	if err != nil {
		return fmt.Errorf("fallback: marshal operation %s: %w", op.ID, err)
	}

	_, err = l.db.ExecContext(ctx,
		`INSERT INTO pending_operations (id, payload, recorded_at) VALUES (?, ?, ?)
		 ON CONFLICT (id) DO UPDATE SET payload = excluded.payload, recorded_at = excluded.recorded_at`,
		op.ID, string(payload), time.Now().UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("fallback: record operation %s: %w", op.ID, err)
	}
	return nil
}

// Get returns the logged operation for an id, or ErrNotFound.
func (l *Log) Get(ctx context.Context, id string) (model.Operation, error) {
	var payload string
	err := l.db.QueryRowContext(ctx,
		`SELECT payload FROM pending_operations WHERE id = ?`, id,
	).Scan(&payload)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Operation{}, ErrNotFound
	}
	if err != nil {
		return model.Operation{}, fmt.Errorf("fallback: get operation %s: %w", id, err)
	}

	var op model.Operation
	if err := json.Unmarshal([]byte(payload), &op); err != nil {
		return model.Operation{}, fmt.Errorf("fallback: decode operation %s: %w", id, err)
	}
	return op, nil
}

// Pending returns all logged operations, oldest first.
func (l *Log) Pending(ctx context.Context) ([]model.Operation, error) {
	rows, err := l.db.QueryContext(ctx,
		`SELECT payload FROM pending_operations ORDER BY recorded_at ASC`)
	if err != nil {
		return nil, fmt.Errorf("fallback: list pending: %w", err)
	}
	defer rows.Close()

	var ops []model.Operation
	for rows.Next() {
		var payload string
		if err := rows.Scan(&payload); err != nil {
			return nil, fmt.Errorf("fallback: scan pending: %w", err)
		}
		var op model.Operation
		if err := json.Unmarshal([]byte(payload), &op); err != nil {
			l.logger.Warn("fallback: corrupted pending entry, skipping", "error", err)
			continue
		}
		ops = append(ops, op)
	}
	return ops, rows.Err()
}

// Remove deletes an entry after it has been replayed to the durable store.
func (l *Log) Remove(ctx context.Context, id string) error {
	if _, err := l.db.ExecContext(ctx,
		`DELETE FROM pending_operations WHERE id = ?`, id,
	); err != nil {
		return fmt.Errorf("fallback: remove operation %s: %w", id, err)
	}
	return nil
}

// Close closes the underlying database.
func (l *Log) Close() error {
	return l.db.Close()
}
