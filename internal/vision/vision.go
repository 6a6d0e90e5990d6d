// Package vision provides the photo validation boundary: given image
// evidence and an expectation, produce a pass/fail verdict with a short
// explanation written for direct display to the cleaner.
//
// Implementations must degrade, never fail: a timeout, network error, or
// malformed model response becomes a flagged-pass verdict so a broken AI
// dependency cannot block a cleaner's shift.
package vision

import (
	"context"

	"github.com/reluceapp/reluce/internal/model"
)

// Validator checks image evidence against an expectation.
// Validate never returns an error; see the package comment.
type Validator interface {
	Validate(ctx context.Context, image []byte, title, expectation string) model.ValidationVerdict
}

// DegradedVerdict is the flagged-pass verdict used when validation could
// not be performed. Valid is true so the step is not blocked; Found
// carries the annotation so the record shows validation was skipped.
func DegradedVerdict(expectation string) model.ValidationVerdict {
	return model.ValidationVerdict{
		Valid:    true,
		Expected: expectation,
		Found:    "upload/validation error — continuing without full validation",
	}
}
