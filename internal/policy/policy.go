// Package policy centralizes the time-based heuristics applied to
// operations. Each policy is a pure function of (now, inputs) so it can be
// tested without a store or a clock abstraction.
package policy

import (
	"time"

	"github.com/reluceapp/reluce/internal/model"
)

const (
	// AutoCloseAfter is the staleness threshold past which an open
	// operation is force-closed by the sweeper.
	AutoCloseAfter = 12 * time.Hour

	// GapSplitAfter is the idle threshold between consecutive step
	// completions past which the operation is split.
	GapSplitAfter = time.Hour
)

// Closure reasons persisted on force-closed and split operations. The
// gap-split reason is stored in Spanish because the UI displays it raw.
const (
	AutoCloseReason = "Auto-closed: Session exceeded 12 hours"
	GapSplitReason  = "Pausa larga detectada (más de 1 hora)"
)

// ShouldAutoClose reports whether an operation has been left open past the
// staleness threshold. Closed operations never match, which keeps the
// sweeper idempotent.
func ShouldAutoClose(now time.Time, op model.Operation) bool {
	if !op.Open() {
		return false
	}
	return now.Sub(op.StartTime) > AutoCloseAfter
}

// ShouldSplit reports whether the idle time since the previous step start
// exceeds the gap threshold. The first step of an operation never splits.
func ShouldSplit(now, previousStepStart time.Time, stepIndex int) bool {
	if stepIndex == 0 {
		return false
	}
	return now.Sub(previousStepStart) > GapSplitAfter
}
