package vision

import (
	"context"

	"github.com/reluceapp/reluce/internal/model"
)

// minPhotoBytes is the smallest image the stub accepts. Anything below it
// is almost certainly a failed capture rather than a real photo.
const minPhotoBytes = 1024

// StubValidator is the deterministic validator for environments without AI
// access. It accepts any plausible image and rejects only obviously broken
// captures, so demo flows pass while the correction loop stays reachable.
type StubValidator struct{}

// NewStubValidator creates a StubValidator.
func NewStubValidator() *StubValidator {
	return &StubValidator{}
}

// Validate implements Validator.
func (v *StubValidator) Validate(_ context.Context, image []byte, _, expectation string) model.ValidationVerdict {
	if len(image) < minPhotoBytes {
		return model.ValidationVerdict{
			Valid:    false,
			Expected: expectation,
			Found:    "imagen demasiado pequeña o vacía",
		}
	}
	return model.ValidationVerdict{
		Valid:    true,
		Expected: expectation,
		Found:    "evidencia aceptada (validación simulada)",
	}
}
