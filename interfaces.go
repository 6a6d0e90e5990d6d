package reluce

import "context"

// PhotoValidator checks photo evidence against an expectation.
// When provided via WithPhotoValidator, replaces the auto-detected
// OpenAI/stub validator. Implementations must degrade, never fail: on
// timeout or backend error return a passing Verdict whose Found text says
// validation was skipped, so a broken AI dependency cannot block a shift.
type PhotoValidator interface {
	Validate(ctx context.Context, image []byte, title, expectation string) Verdict
}

// PhotoStore persists evidence photos and serves them back by key.
// When provided via WithPhotoStore, replaces the configured disk/S3 store.
type PhotoStore interface {
	Store(ctx context.Context, data []byte, filename, subpath string) (key, url string, err error)
	Retrieve(ctx context.Context, key string) ([]byte, error)
}
