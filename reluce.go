// Package reluce is the public API for embedding the Reluce checklist server.
//
// Property-management platforms import this package to construct and extend
// the server without forking it:
//
//	app, err := reluce.New(
//	    reluce.WithVersion(version),
//	    reluce.WithLogger(logger),
//	    reluce.WithPhotoValidator(myValidator{}),
//	)
//	if err != nil { ... }
//	if err := app.Run(ctx); err != nil { ... }
//
// The import graph enforces a strict no-cycle rule: reluce (root) imports
// internal/*, but internal/* never imports reluce (root). Public types
// (Verdict) are standalone structs with no internal imports; conversion
// adapters live here because this is the only file that sees both sides of
// the boundary.
package reluce

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/joho/godotenv"

	"github.com/reluceapp/reluce/internal/config"
	"github.com/reluceapp/reluce/internal/fallback"
	"github.com/reluceapp/reluce/internal/gateway"
	"github.com/reluceapp/reluce/internal/model"
	"github.com/reluceapp/reluce/internal/photostore"
	"github.com/reluceapp/reluce/internal/server"
	"github.com/reluceapp/reluce/internal/storage"
	"github.com/reluceapp/reluce/internal/sweeper"
	"github.com/reluceapp/reluce/internal/telemetry"
	"github.com/reluceapp/reluce/internal/vision"
	"github.com/reluceapp/reluce/migrations"
)

// App is the Reluce server lifecycle. Construct with New(), run with Run().
// App has no public fields — use New() options to configure it.
type App struct {
	cfg          config.Config
	db           *storage.DB
	fb           *fallback.Log // nil when the fallback log is disabled
	gw           *gateway.Gateway
	sweep        *sweeper.Sweeper
	srv          *server.Server
	otelShutdown telemetry.Shutdown
	logger       *slog.Logger
	version      string
}

// New initialises the Reluce server. It connects to the database, runs
// migrations, replays the fallback log, and wires all subsystems, returning
// a ready-to-run App. It does NOT start any goroutines or accept HTTP
// connections — call Run().
func New(opts ...Option) (*App, error) {
	o := resolvedOptions{}
	for _, fn := range opts {
		fn(&o)
	}

	logger := o.logger
	if logger == nil {
		logger = slog.Default()
	}

	// Load .env file if present (non-fatal; production won't have one).
	_ = godotenv.Load()

	// Load configuration (env vars), then apply option overrides.
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if o.port != 0 {
		cfg.Port = o.port
	}
	if o.databaseURL != "" {
		cfg.DatabaseURL = o.databaseURL
	}
	if o.sweepInterval != nil {
		cfg.SweepInterval = *o.sweepInterval
	}
	version := o.version
	if version == "" {
		version = "dev"
	}

	logger.Info("reluce starting", "version", version, "port", cfg.Port)

	// Initialize OpenTelemetry.
	otelShutdown, err := telemetry.Init(context.Background(), cfg.OTELEndpoint, cfg.ServiceName, version, cfg.OTELInsecure)
	if err != nil {
		return nil, fmt.Errorf("telemetry: %w", err)
	}

	// Connect to database and run migrations.
	db, err := storage.New(context.Background(), cfg.DatabaseURL, logger)
	if err != nil {
		_ = otelShutdown(context.Background())
		return nil, fmt.Errorf("storage: %w", err)
	}
	if err := db.RunMigrations(context.Background(), migrations.FS); err != nil {
		db.Close()
		_ = otelShutdown(context.Background())
		return nil, fmt.Errorf("migrations: %w", err)
	}

	// Open the local fallback log and replay anything recorded while
	// Postgres was unreachable.
	var fbLog *fallback.Log
	var fb gateway.FallbackLog
	if cfg.FallbackPath != "" {
		fbLog, err = fallback.Open(cfg.FallbackPath, logger)
		if err != nil {
			db.Close()
			_ = otelShutdown(context.Background())
			return nil, fmt.Errorf("fallback: %w", err)
		}
		fb = fbLog
	} else {
		logger.Info("fallback log: disabled (no path)")
	}

	gw := gateway.New(db, fb, logger)
	if n, err := gw.Resync(context.Background()); err != nil {
		logger.Warn("fallback resync failed", "error", err)
	} else if n > 0 {
		logger.Info("fallback resync complete", "count", n)
	}

	// Photo store — external override takes priority over config.
	var photos photostore.Store
	if o.photoStore != nil {
		photos = o.photoStore
	} else {
		photos, err = newPhotoStore(context.Background(), cfg, logger)
		if err != nil {
			closeApp(fbLog, db, otelShutdown)
			return nil, fmt.Errorf("photostore: %w", err)
		}
	}

	// Photo validator — external override takes priority over auto-detect.
	var validator vision.Validator
	if o.photoValidator != nil {
		validator = &validatorAdapter{v: o.photoValidator}
	} else {
		validator = newVisionValidator(cfg, logger)
	}

	sweep := sweeper.New(gw, logger)

	srv := server.New(server.ServerConfig{
		Gateway:             gw,
		Sweeper:             sweep,
		Photos:              photos,
		Validator:           validator,
		Logger:              logger,
		Port:                cfg.Port,
		ReadTimeout:         cfg.ReadTimeout,
		WriteTimeout:        cfg.WriteTimeout,
		Version:             version,
		MaxRequestBodyBytes: cfg.MaxRequestBodyBytes,
	})

	return &App{
		cfg:          cfg,
		db:           db,
		fb:           fbLog,
		gw:           gw,
		sweep:        sweep,
		srv:          srv,
		otelShutdown: otelShutdown,
		logger:       logger,
		version:      version,
	}, nil
}

// Run starts background services and the HTTP server, blocking until ctx is
// cancelled or the server fails. On cancellation it shuts down gracefully.
func (a *App) Run(ctx context.Context) error {
	if a.cfg.SweepInterval > 0 {
		go a.sweepLoop(ctx)
	}

	errCh := make(chan error, 1)
	go func() {
		if err := a.srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
	case err := <-errCh:
		return err
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return a.Shutdown(shutdownCtx)
}

// Shutdown stops the HTTP server and releases resources. Safe to call after
// a failed Run; not safe to call concurrently with Run.
func (a *App) Shutdown(ctx context.Context) error {
	a.logger.Info("reluce shutting down")

	err := a.srv.Shutdown(ctx)
	closeApp(a.fb, a.db, a.otelShutdown)

	a.logger.Info("reluce stopped")
	return err
}

// Handler returns the root HTTP handler, for mounting under an existing mux
// or driving with httptest.
func (a *App) Handler() http.Handler {
	return a.srv.Handler()
}

// sweepLoop periodically commits the auto-close sweep.
func (a *App) sweepLoop(ctx context.Context) {
	ticker := time.NewTicker(a.cfg.SweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			result, err := a.sweep.Commit(ctx, time.Now().UTC())
			if err != nil {
				a.logger.Warn("auto-close sweep failed", "error", err)
				continue
			}
			if result.Count > 0 {
				a.logger.Info("auto-close sweep complete", "closed", result.Count)
			}
		}
	}
}

func closeApp(fb *fallback.Log, db *storage.DB, otelShutdown telemetry.Shutdown) {
	if fb != nil {
		_ = fb.Close()
	}
	db.Close()
	_ = otelShutdown(context.Background())
}

// validatorAdapter bridges the public PhotoValidator to the internal contract.
type validatorAdapter struct {
	v PhotoValidator
}

func (a *validatorAdapter) Validate(ctx context.Context, image []byte, title, expectation string) model.ValidationVerdict {
	verdict := a.v.Validate(ctx, image, title, expectation)
	return model.ValidationVerdict{
		Valid:    verdict.Valid,
		Expected: verdict.Expected,
		Found:    verdict.Found,
	}
}

// newPhotoStore creates a photo store based on configuration.
func newPhotoStore(ctx context.Context, cfg config.Config, logger *slog.Logger) (photostore.Store, error) {
	switch cfg.PhotoBackend {
	case "s3":
		logger.Info("photo store: s3", "bucket", cfg.S3Bucket, "endpoint", cfg.S3Endpoint)
		return photostore.NewS3Store(ctx, photostore.S3Config{
			Endpoint:  cfg.S3Endpoint,
			Region:    cfg.S3Region,
			Bucket:    cfg.S3Bucket,
			AccessKey: cfg.S3AccessKey,
			SecretKey: cfg.S3SecretKey,
			PublicURL: cfg.S3PublicURL,
		})
	default:
		logger.Info("photo store: disk", "dir", cfg.PhotoDir)
		return photostore.NewDiskStore(cfg.PhotoDir, cfg.PhotoBaseURL)
	}
}

// newVisionValidator creates a validator based on configuration.
// Provider selection: "openai", "stub", or "auto" (default).
// Auto mode uses OpenAI when a key is present, else the stub.
func newVisionValidator(cfg config.Config, logger *slog.Logger) vision.Validator {
	switch cfg.VisionProvider {
	case "openai":
		logger.Info("vision provider: openai", "model", cfg.VisionModel)
		v, err := vision.NewOpenAIValidator(cfg.OpenAIAPIKey, cfg.VisionModel, cfg.OpenAIBaseURL, logger)
		if err != nil {
			logger.Error("openai validator init failed, using stub", "error", err)
			return vision.NewStubValidator()
		}
		return v

	case "stub":
		logger.Info("vision provider: stub (photos accepted without inspection)")
		return vision.NewStubValidator()

	default:
		if cfg.OpenAIAPIKey != "" {
			logger.Info("vision provider: openai (auto-detected)", "model", cfg.VisionModel)
			v, err := vision.NewOpenAIValidator(cfg.OpenAIAPIKey, cfg.VisionModel, cfg.OpenAIBaseURL, logger)
			if err != nil {
				logger.Error("openai validator init failed, using stub", "error", err)
				return vision.NewStubValidator()
			}
			return v
		}
		logger.Warn("no vision provider configured, using stub (photos accepted without inspection)")
		return vision.NewStubValidator()
	}
}
