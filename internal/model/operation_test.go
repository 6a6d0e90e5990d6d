package model

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOperationValidate(t *testing.T) {
	now := time.Now().UTC()
	valid := Operation{
		ID:        "op-1",
		Room:      "Garden",
		RoomType:  "habitacion",
		StartTime: now,
		Steps:     []StepRecord{{ID: 1, StartTime: now}},
	}

	tests := []struct {
		name    string
		mutate  func(*Operation)
		wantErr string
	}{
		{name: "valid", mutate: func(o *Operation) {}},
		{name: "missing id", mutate: func(o *Operation) { o.ID = "" }, wantErr: "id is required"},
		{name: "missing room", mutate: func(o *Operation) { o.Room = "" }, wantErr: "room is required"},
		{name: "missing room type", mutate: func(o *Operation) { o.RoomType = "" }, wantErr: "roomType is required"},
		{name: "missing start time", mutate: func(o *Operation) { o.StartTime = time.Time{} }, wantErr: "startTime is required"},
		{name: "nil steps", mutate: func(o *Operation) { o.Steps = nil }, wantErr: "steps is required"},
		{
			name: "step completed before started",
			mutate: func(o *Operation) {
				before := now.Add(-time.Minute)
				o.Steps[0].CompletedTime = &before
			},
			wantErr: "completedTime precedes startTime",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			op := valid
			op.Steps = []StepRecord{valid.Steps[0]}
			tt.mutate(&op)
			err := op.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
			} else {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
			}
		})
	}
}

func TestDecodeOperation(t *testing.T) {
	start := time.Date(2026, 3, 14, 9, 30, 0, 0, time.UTC)

	t.Run("rfc3339 timestamps", func(t *testing.T) {
		op, err := DecodeOperation(map[string]any{
			"id":        "op-1",
			"room":      "Cocina Norte",
			"roomType":  "cocina",
			"startTime": start.Format(time.RFC3339),
			"steps": []any{
				map[string]any{"id": float64(1), "startTime": start.Format(time.RFC3339)},
			},
		})
		require.NoError(t, err)
		assert.Equal(t, "op-1", op.ID)
		assert.True(t, op.StartTime.Equal(start))
		require.Len(t, op.Steps, 1)
		assert.True(t, op.Steps[0].StartTime.Equal(start))
	})

	t.Run("epoch millisecond timestamps", func(t *testing.T) {
		op, err := DecodeOperation(map[string]any{
			"id":        "op-2",
			"room":      "Garden",
			"roomType":  "habitacion",
			"startTime": float64(start.UnixMilli()),
			"steps": []any{
				map[string]any{"id": float64(1), "startTime": float64(start.UnixMilli())},
			},
		})
		require.NoError(t, err)
		assert.True(t, op.StartTime.Equal(start))
		assert.True(t, op.Steps[0].StartTime.Equal(start))
	})
}

func TestOperationDuration(t *testing.T) {
	start := time.Now().UTC().Add(-3 * time.Hour)
	end := start.Add(2 * time.Hour)

	open := Operation{StartTime: start}
	assert.InDelta(t, 3*time.Hour, open.Duration(time.Now().UTC()), float64(time.Minute))
	assert.True(t, open.Open())

	closed := Operation{StartTime: start, EndTime: &end}
	assert.Equal(t, 2*time.Hour, closed.Duration(time.Now().UTC()))
	assert.False(t, closed.Open())
}
