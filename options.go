package reluce

import (
	"log/slog"
	"time"
)

// Option configures an App.
type Option func(*resolvedOptions)

// resolvedOptions holds all extension points after applying defaults.
// Unexported — callers use the With* functions.
type resolvedOptions struct {
	port           int
	databaseURL    string
	logger         *slog.Logger
	version        string
	photoValidator PhotoValidator
	photoStore     PhotoStore
	sweepInterval  *time.Duration
}

// WithPort overrides the TCP port from config (RELUCE_PORT env var).
func WithPort(port int) Option {
	return func(o *resolvedOptions) { o.port = port }
}

// WithDatabaseURL overrides the database connection string from config (DATABASE_URL env var).
func WithDatabaseURL(url string) Option {
	return func(o *resolvedOptions) { o.databaseURL = url }
}

// WithLogger sets the structured logger for the App.
// If not set, the default slog logger is used.
func WithLogger(logger *slog.Logger) Option {
	return func(o *resolvedOptions) { o.logger = logger }
}

// WithVersion sets the version string reported in the health endpoint and logs.
func WithVersion(version string) Option {
	return func(o *resolvedOptions) { o.version = version }
}

// WithPhotoValidator replaces the auto-detected photo validator (OpenAI/stub).
func WithPhotoValidator(v PhotoValidator) Option {
	return func(o *resolvedOptions) { o.photoValidator = v }
}

// WithPhotoStore replaces the configured photo store (disk/S3).
func WithPhotoStore(s PhotoStore) Option {
	return func(o *resolvedOptions) { o.photoStore = s }
}

// WithSweepInterval overrides the periodic auto-close sweep interval from
// config (RELUCE_SWEEP_INTERVAL env var). Zero disables the loop.
func WithSweepInterval(d time.Duration) Option {
	return func(o *resolvedOptions) { o.sweepInterval = &d }
}
