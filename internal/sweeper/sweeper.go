// Package sweeper implements the auto-close batch policy: operations left
// open past the staleness threshold are force-closed. Inspect is a pure
// read; Commit mutates. Both only ever match operations lacking an end
// time, so re-running Commit is always safe.
package sweeper

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/reluceapp/reluce/internal/model"
	"github.com/reluceapp/reluce/internal/policy"
)

// commitConcurrency bounds parallel upserts during a commit.
const commitConcurrency = 4

// Gateway is the persistence contract the sweeper runs against.
type Gateway interface {
	ListOpen(ctx context.Context) ([]model.Operation, error)
	Upsert(ctx context.Context, op model.Operation) (model.Operation, error)
}

// Sweeper scans for stale open operations.
type Sweeper struct {
	gateway Gateway
	logger  *slog.Logger
}

// New creates a Sweeper.
func New(gateway Gateway, logger *slog.Logger) *Sweeper {
	return &Sweeper{gateway: gateway, logger: logger}
}

// Inspect returns the operations that would be closed at now, annotated
// with their computed duration. It never mutates state.
func (s *Sweeper) Inspect(ctx context.Context, now time.Time) (model.SweepResult, error) {
	stale, err := s.scan(ctx, now)
	if err != nil {
		return model.SweepResult{}, err
	}

	result := model.SweepResult{Count: len(stale), Operations: make([]model.SweptOperation, 0, len(stale))}
	for _, op := range stale {
		result.Operations = append(result.Operations, annotate(op, now))
	}
	return result, nil
}

// Commit closes every stale open operation: endTime=now, complete=true,
// and the auto-close reason. Writes run with bounded concurrency; a single
// failed write fails the whole commit but leaves already-written closures
// in place, and the next run picks up the remainder.
func (s *Sweeper) Commit(ctx context.Context, now time.Time) (model.SweepResult, error) {
	stale, err := s.scan(ctx, now)
	if err != nil {
		return model.SweepResult{}, err
	}

	closed := make([]model.SweptOperation, len(stale))
	var mu sync.Mutex

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(commitConcurrency)
	for i, op := range stale {
		g.Go(func() error {
			end := now
			reason := policy.AutoCloseReason
			op.EndTime = &end
			op.Complete = true
			op.Reason = &reason

			stored, err := s.gateway.Upsert(gctx, op)
			if err != nil {
				return fmt.Errorf("sweeper: close %s: %w", op.ID, err)
			}
			mu.Lock()
			closed[i] = annotate(stored, now)
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return model.SweepResult{}, err
	}

	if len(closed) > 0 {
		s.logger.Info("sweeper: auto-closed stale operations", "count", len(closed))
	}
	return model.SweepResult{Count: len(closed), Operations: closed}, nil
}

// scan lists open operations and filters them through the staleness policy.
func (s *Sweeper) scan(ctx context.Context, now time.Time) ([]model.Operation, error) {
	open, err := s.gateway.ListOpen(ctx)
	if err != nil {
		return nil, fmt.Errorf("sweeper: list open operations: %w", err)
	}

	var stale []model.Operation
	for _, op := range open {
		if policy.ShouldAutoClose(now, op) {
			stale = append(stale, op)
		}
	}
	return stale, nil
}

func annotate(op model.Operation, now time.Time) model.SweptOperation {
	return model.SweptOperation{
		Operation:     op,
		DurationHours: op.Duration(now).Hours(),
	}
}
