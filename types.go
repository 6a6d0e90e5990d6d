package reluce

// Verdict is the public shape of a photo validation result.
// Standalone struct with no internal imports so external validators can
// produce it without depending on internal packages.
type Verdict struct {
	// Valid reports whether the photo satisfied the expectation.
	Valid bool
	// Expected is the expectation text the photo was checked against.
	Expected string
	// Found is a short description of what the validator saw, written
	// for direct display to the cleaner.
	Found string
}
