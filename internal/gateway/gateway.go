// Package gateway is the single canonical writer for operations.
//
// Every write path goes through Upsert: fields are normalized, the
// auto-close-on-save policy is applied, created/updated stamps are set,
// and the durable store is written by id. A durable-write failure falls
// back to the local write log and is reported to the caller as success —
// the cleaner's flow is never aborted by a storage outage. Only the
// combination of durable and fallback failure surfaces as a hard error.
package gateway

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/reluceapp/reluce/internal/fallback"
	"github.com/reluceapp/reluce/internal/model"
	"github.com/reluceapp/reluce/internal/policy"
	"github.com/reluceapp/reluce/internal/storage"
)

// ErrUnavailable is returned when both the durable store and the fallback
// log reject a write. It is the only persistence condition surfaced to the
// end user as a failure.
var ErrUnavailable = errors.New("gateway: persistence unavailable")

// Storer is the durable store contract the gateway depends on.
type Storer interface {
	UpsertOperation(ctx context.Context, op model.Operation) (model.Operation, error)
	GetOperation(ctx context.Context, id string) (model.Operation, error)
	ListOperations(ctx context.Context, filter storage.ListFilter) ([]model.Operation, error)
	ListOpenOperations(ctx context.Context) ([]model.Operation, error)
}

// FallbackLog is the local write log contract. Implementations must key by
// operation id and replace on conflict.
type FallbackLog interface {
	Record(ctx context.Context, op model.Operation) error
	Get(ctx context.Context, id string) (model.Operation, error)
	Pending(ctx context.Context) ([]model.Operation, error)
	Remove(ctx context.Context, id string) error
}

// Gateway canonicalizes and persists operations.
type Gateway struct {
	store  Storer
	fb     FallbackLog // nil = fallback disabled
	logger *slog.Logger
}

// New creates a Gateway. fb may be nil to disable the fallback log.
func New(store Storer, fb FallbackLog, logger *slog.Logger) *Gateway {
	return &Gateway{store: store, fb: fb, logger: logger}
}

// Upsert writes an operation by id. The returned operation reflects what
// was stored, including normalization, policy closure, and timestamps.
func (g *Gateway) Upsert(ctx context.Context, op model.Operation) (model.Operation, error) {
	now := time.Now().UTC()
	normalize(&op, now)

	if op.CreatedAt.IsZero() {
		op.CreatedAt = now
	}
	op.UpdatedAt = now
	if op.Steps == nil {
		op.Steps = []model.StepRecord{}
	}

	stored, err := g.store.UpsertOperation(ctx, op)
	if err == nil {
		// A durable write supersedes any stale fallback entry for this id.
		if g.fb != nil {
			if rmErr := g.fb.Remove(ctx, op.ID); rmErr != nil {
				g.logger.Warn("gateway: fallback cleanup failed", "id", op.ID, "error", rmErr)
			}
		}
		return stored, nil
	}

	g.logger.Error("gateway: durable write failed, falling back",
		"id", op.ID, "error", err)

	if g.fb == nil {
		return model.Operation{}, fmt.Errorf("%w: %s", ErrUnavailable, err)
	}
	if fbErr := g.fb.Record(ctx, op); fbErr != nil {
		g.logger.Error("gateway: fallback write failed", "id", op.ID, "error", fbErr)
		return model.Operation{}, fmt.Errorf("%w: durable: %s; fallback: %s", ErrUnavailable, err, fbErr)
	}

	g.logger.Warn("gateway: operation parked in fallback log", "id", op.ID)
	return op, nil
}

// GetByID reads an operation, preferring the durable store and falling
// back to the local log so a record parked during an outage stays visible.
func (g *Gateway) GetByID(ctx context.Context, id string) (model.Operation, error) {
	op, err := g.store.GetOperation(ctx, id)
	if err == nil {
		return op, nil
	}
	if g.fb != nil {
		if fbOp, fbErr := g.fb.Get(ctx, id); fbErr == nil {
			return fbOp, nil
		} else if !errors.Is(fbErr, fallback.ErrNotFound) {
			g.logger.Warn("gateway: fallback read failed", "id", id, "error", fbErr)
		}
	}
	if errors.Is(err, storage.ErrNotFound) {
		return model.Operation{}, storage.ErrNotFound
	}
	return model.Operation{}, fmt.Errorf("gateway: get %s: %w", id, err)
}

// List returns durable operations matching the filter, newest first.
// Fallback-only entries are not merged in; they reappear after resync.
func (g *Gateway) List(ctx context.Context, filter storage.ListFilter) ([]model.Operation, error) {
	return g.store.ListOperations(ctx, filter)
}

// ListOpen returns durable operations with no end time, oldest first.
func (g *Gateway) ListOpen(ctx context.Context) ([]model.Operation, error) {
	return g.store.ListOpenOperations(ctx)
}

// Resync replays pending fallback entries to the durable store,
// best-effort. Called once at startup; safe to call again at any time.
func (g *Gateway) Resync(ctx context.Context) (int, error) {
	if g.fb == nil {
		return 0, nil
	}

	pending, err := g.fb.Pending(ctx)
	if err != nil {
		return 0, fmt.Errorf("gateway: list pending: %w", err)
	}

	replayed := 0
	for _, op := range pending {
		if _, err := g.store.UpsertOperation(ctx, op); err != nil {
			g.logger.Warn("gateway: resync write failed, keeping entry",
				"id", op.ID, "error", err)
			continue
		}
		if err := g.fb.Remove(ctx, op.ID); err != nil {
			g.logger.Warn("gateway: resync cleanup failed", "id", op.ID, "error", err)
		}
		replayed++
	}

	if replayed > 0 {
		g.logger.Info("gateway: resynced fallback entries", "count", replayed)
	}
	return replayed, nil
}

// normalize enforces the complete/endTime invariant and applies the
// auto-close-on-save policy so a stale open payload can never be written
// back as open.
func normalize(op *model.Operation, now time.Time) {
	if op.Complete && op.EndTime == nil {
		end := now
		op.EndTime = &end
	}
	if op.EndTime != nil && !op.Complete {
		op.Complete = true
	}

	if policy.ShouldAutoClose(now, *op) {
		end := now
		op.EndTime = &end
		op.Complete = true
		reason := policy.AutoCloseReason
		op.Reason = &reason
	}
}
