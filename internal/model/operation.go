// Package model defines the core domain types for Reluce.
//
// All types use the canonical (English, storage-facing) field naming.
// The localized wire schema never appears here; translation happens once
// at the HTTP boundary via the fieldmap package.
package model

import (
	"fmt"
	"time"
)

// Operation is one cleaning pass through a room's checklist, from start
// to close. The id is client-generated and opaque; steps are value objects
// embedded in the operation and are never independently addressable.
type Operation struct {
	ID           string       `json:"id"`
	Room         string       `json:"room"`
	RoomType     string       `json:"roomType"`
	StartTime    time.Time    `json:"startTime"`
	EndTime      *time.Time   `json:"endTime,omitempty"`
	SessionID    *string      `json:"sessionId,omitempty"`
	Complete     bool         `json:"complete"`
	Failed       bool         `json:"failed,omitempty"`
	FailurePhoto *string      `json:"failurePhoto,omitempty"`
	Reason       *string      `json:"reason,omitempty"`
	Steps        []StepRecord `json:"steps"`
	CreatedAt    time.Time    `json:"createdAt"`
	UpdatedAt    time.Time    `json:"updatedAt"`
}

// StepRecord is one checklist item within an operation.
// A photo-gated step carries a photo reference and a validation verdict;
// once the step is recorded complete the verdict is immutable.
type StepRecord struct {
	ID             int                `json:"id"`
	StartTime      time.Time          `json:"startTime"`
	CompletedTime  *time.Time         `json:"completedTime,omitempty"`
	ElapsedSeconds *int64             `json:"elapsedSeconds,omitempty"`
	Photo          *string            `json:"photo,omitempty"`
	Verdict        *ValidationVerdict `json:"verdict,omitempty"`
	Corrected      bool               `json:"corrected,omitempty"`
	Ignored        bool               `json:"ignored,omitempty"`
	Failed         bool               `json:"failed,omitempty"`
	PhotoCategory  *string            `json:"photoCategory,omitempty"`
}

// ValidationVerdict is the outcome of an AI photo validation. Expected and
// Found are short sentences written for direct display to the cleaner.
type ValidationVerdict struct {
	Valid    bool   `json:"valid"`
	Expected string `json:"expected"`
	Found    string `json:"found"`
}

// Done reports whether the step has been recorded complete.
func (s StepRecord) Done() bool {
	return s.CompletedTime != nil
}

// Open reports whether the operation is still accepting step completions.
func (o Operation) Open() bool {
	return o.EndTime == nil
}

// Duration returns the elapsed time of the operation as of now, or the
// recorded span when the operation is closed.
func (o Operation) Duration(now time.Time) time.Duration {
	if o.EndTime != nil {
		return o.EndTime.Sub(o.StartTime)
	}
	return now.Sub(o.StartTime)
}

// Validate checks the required fields of an operation payload.
// It does not enforce the complete/endTime invariant; normalization at the
// persistence boundary repairs that rather than rejecting.
func (o Operation) Validate() error {
	if o.ID == "" {
		return fmt.Errorf("id is required")
	}
	if o.Room == "" {
		return fmt.Errorf("room is required")
	}
	if o.RoomType == "" {
		return fmt.Errorf("roomType is required")
	}
	if o.StartTime.IsZero() {
		return fmt.Errorf("startTime is required")
	}
	if o.Steps == nil {
		return fmt.Errorf("steps is required")
	}
	for i, s := range o.Steps {
		if s.StartTime.IsZero() {
			return fmt.Errorf("steps[%d].startTime is required", i)
		}
		if s.CompletedTime != nil && s.CompletedTime.Before(s.StartTime) {
			return fmt.Errorf("steps[%d].completedTime precedes startTime", i)
		}
	}
	return nil
}
