package sweeper

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/reluceapp/reluce/internal/model"
	"github.com/reluceapp/reluce/internal/policy"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type fakeGateway struct {
	mu      sync.Mutex
	ops     map[string]model.Operation
	upserts int
}

func newFakeGateway(ops ...model.Operation) *fakeGateway {
	g := &fakeGateway{ops: map[string]model.Operation{}}
	for _, op := range ops {
		g.ops[op.ID] = op
	}
	return g
}

func (g *fakeGateway) ListOpen(_ context.Context) ([]model.Operation, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	var out []model.Operation
	for _, op := range g.ops {
		if op.EndTime == nil && !op.Complete {
			out = append(out, op)
		}
	}
	return out, nil
}

func (g *fakeGateway) Upsert(_ context.Context, op model.Operation) (model.Operation, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.upserts++
	g.ops[op.ID] = op
	return op, nil
}

func openOp(id string, age time.Duration, now time.Time) model.Operation {
	return model.Operation{
		ID:        id,
		Room:      "Garden",
		RoomType:  "habitacion",
		StartTime: now.Add(-age),
		Steps:     []model.StepRecord{},
	}
}

func TestInspectMatchesOnlyStaleOpenOperations(t *testing.T) {
	now := time.Now().UTC()
	fresh := openOp("fresh", 5*time.Hour, now)
	stale := openOp("stale", 13*time.Hour, now)
	end := now.Add(-time.Hour)
	closed := openOp("closed", 20*time.Hour, now)
	closed.EndTime = &end
	closed.Complete = true

	gw := newFakeGateway(fresh, stale, closed)
	s := New(gw, testLogger())

	result, err := s.Inspect(context.Background(), now)
	require.NoError(t, err)
	assert.Equal(t, 1, result.Count)
	require.Len(t, result.Operations, 1)
	assert.Equal(t, "stale", result.Operations[0].Operation.ID)
	assert.InDelta(t, 13.0, result.Operations[0].DurationHours, 0.01)
	assert.Zero(t, gw.upserts, "inspect never writes")
}

func TestCommitClosesStaleOperations(t *testing.T) {
	now := time.Now().UTC()
	gw := newFakeGateway(
		openOp("a", 13*time.Hour, now),
		openOp("b", 14*time.Hour, now),
		openOp("c", 2*time.Hour, now),
	)
	s := New(gw, testLogger())

	result, err := s.Commit(context.Background(), now)
	require.NoError(t, err)
	assert.Equal(t, 2, result.Count)

	for _, swept := range result.Operations {
		op := swept.Operation
		assert.True(t, op.Complete)
		require.NotNil(t, op.EndTime)
		assert.True(t, op.EndTime.Equal(now))
		require.NotNil(t, op.Reason)
		assert.Equal(t, policy.AutoCloseReason, *op.Reason)
		assert.Greater(t, swept.DurationHours, 12.0)
	}

	// The fresh operation is untouched.
	untouched := gw.ops["c"]
	assert.False(t, untouched.Complete)
	assert.Nil(t, untouched.EndTime)
}

func TestCommitIsIdempotent(t *testing.T) {
	now := time.Now().UTC()
	gw := newFakeGateway(openOp("a", 13*time.Hour, now))
	s := New(gw, testLogger())

	first, err := s.Commit(context.Background(), now)
	require.NoError(t, err)
	assert.Equal(t, 1, first.Count)

	second, err := s.Commit(context.Background(), now.Add(time.Minute))
	require.NoError(t, err)
	assert.Equal(t, 0, second.Count)
	assert.Empty(t, second.Operations)
	assert.Equal(t, 1, gw.upserts, "already-closed operations are never rewritten")
}

func TestCommitWithNothingStale(t *testing.T) {
	now := time.Now().UTC()
	gw := newFakeGateway(openOp("a", time.Hour, now))
	s := New(gw, testLogger())

	result, err := s.Commit(context.Background(), now)
	require.NoError(t, err)
	assert.Equal(t, 0, result.Count)
	assert.Zero(t, gw.upserts)
}
