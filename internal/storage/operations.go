package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/reluceapp/reluce/internal/model"
)

const operationColumns = `id, room, room_type, start_time, end_time, session_id,
	complete, failed, failure_photo, reason, steps, created_at, updated_at`

// UpsertOperation writes an operation by id: insert if absent, replace
// fields if present. The stored created_at survives replacement; everything
// else, including the full steps array, is overwritten.
func (db *DB) UpsertOperation(ctx context.Context, op model.Operation) (model.Operation, error) {
	row := db.pool.QueryRow(ctx,
		`INSERT INTO operations (`+operationColumns+`)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		 ON CONFLICT (id) DO UPDATE SET
			room = EXCLUDED.room,
			room_type = EXCLUDED.room_type,
			start_time = EXCLUDED.start_time,
			end_time = EXCLUDED.end_time,
			session_id = EXCLUDED.session_id,
			complete = EXCLUDED.complete,
			failed = EXCLUDED.failed,
			failure_photo = EXCLUDED.failure_photo,
			reason = EXCLUDED.reason,
			steps = EXCLUDED.steps,
			updated_at = EXCLUDED.updated_at
		 RETURNING `+operationColumns,
		op.ID, op.Room, op.RoomType, op.StartTime, op.EndTime, op.SessionID,
		op.Complete, op.Failed, op.FailurePhoto, op.Reason, op.Steps,
		op.CreatedAt, op.UpdatedAt,
	)

	stored, err := scanOperation(row)
	if err != nil {
		return model.Operation{}, fmt.Errorf("storage: upsert operation %s: %w", op.ID, err)
	}
	return stored, nil
}

// GetOperation retrieves an operation by id.
func (db *DB) GetOperation(ctx context.Context, id string) (model.Operation, error) {
	row := db.pool.QueryRow(ctx,
		`SELECT `+operationColumns+` FROM operations WHERE id = $1`, id)

	op, err := scanOperation(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.Operation{}, ErrNotFound
		}
		return model.Operation{}, fmt.Errorf("storage: get operation %s: %w", id, err)
	}
	return op, nil
}

// ListFilter narrows ListOperations by start-time range. Nil bounds are open.
type ListFilter struct {
	From *time.Time
	To   *time.Time
}

// ListOperations returns operations matching the filter, ordered by
// creation time descending.
func (db *DB) ListOperations(ctx context.Context, filter ListFilter) ([]model.Operation, error) {
	query := `SELECT ` + operationColumns + ` FROM operations WHERE 1=1`
	args := []any{}
	if filter.From != nil {
		args = append(args, *filter.From)
		query += fmt.Sprintf(` AND start_time >= $%d`, len(args))
	}
	if filter.To != nil {
		args = append(args, *filter.To)
		query += fmt.Sprintf(` AND start_time <= $%d`, len(args))
	}
	query += ` ORDER BY created_at DESC`

	rows, err := db.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("storage: list operations: %w", err)
	}
	defer rows.Close()

	return collectOperations(rows)
}

// ListOpenOperations returns operations with no end time, oldest first.
// The sweeper applies the staleness policy on top of this scan.
func (db *DB) ListOpenOperations(ctx context.Context) ([]model.Operation, error) {
	rows, err := db.pool.Query(ctx,
		`SELECT `+operationColumns+` FROM operations
		 WHERE end_time IS NULL AND complete = false
		 ORDER BY start_time ASC`)
	if err != nil {
		return nil, fmt.Errorf("storage: list open operations: %w", err)
	}
	defer rows.Close()

	return collectOperations(rows)
}

func collectOperations(rows pgx.Rows) ([]model.Operation, error) {
	var ops []model.Operation
	for rows.Next() {
		op, err := scanOperation(rows)
		if err != nil {
			return nil, fmt.Errorf("storage: scan operation: %w", err)
		}
		ops = append(ops, op)
	}
	return ops, rows.Err()
}

func scanOperation(row pgx.Row) (model.Operation, error) {
	var op model.Operation
	err := row.Scan(
		&op.ID, &op.Room, &op.RoomType, &op.StartTime, &op.EndTime,
		&op.SessionID, &op.Complete, &op.Failed, &op.FailurePhoto,
		&op.Reason, &op.Steps, &op.CreatedAt, &op.UpdatedAt,
	)
	return op, err
}
