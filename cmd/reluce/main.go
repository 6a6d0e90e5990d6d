package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/reluceapp/reluce/internal/config"
	"github.com/reluceapp/reluce/internal/fallback"
	"github.com/reluceapp/reluce/internal/gateway"
	"github.com/reluceapp/reluce/internal/photostore"
	"github.com/reluceapp/reluce/internal/server"
	"github.com/reluceapp/reluce/internal/storage"
	"github.com/reluceapp/reluce/internal/sweeper"
	"github.com/reluceapp/reluce/internal/telemetry"
	"github.com/reluceapp/reluce/internal/vision"
	"github.com/reluceapp/reluce/migrations"
)

// version is set at build time via -ldflags.
var version = "dev"

func main() {
	os.Exit(run0())
}

func run0() int {
	level := slog.LevelInfo
	if os.Getenv("RELUCE_LOG_LEVEL") == "debug" {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: level,
	}))
	slog.SetDefault(logger)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, logger); err != nil {
		slog.Error("fatal error", "error", err)
		return 1
	}
	return 0
}

func run(ctx context.Context, logger *slog.Logger) error {
	// Load .env file if present (non-fatal; production won't have one).
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	slog.Info("reluce starting", "version", version, "port", cfg.Port)

	// Initialize OpenTelemetry.
	otelShutdown, err := telemetry.Init(ctx, cfg.OTELEndpoint, cfg.ServiceName, version, cfg.OTELInsecure)
	if err != nil {
		return fmt.Errorf("telemetry: %w", err)
	}
	defer func() { _ = otelShutdown(context.Background()) }()

	// Connect to Postgres.
	db, err := storage.New(ctx, cfg.DatabaseURL, logger)
	if err != nil {
		return fmt.Errorf("storage: %w", err)
	}
	defer db.Close()

	// RunMigrations tracks applied files in schema_migrations and skips
	// duplicates, so errors here indicate real failures.
	if err := db.RunMigrations(ctx, migrations.FS); err != nil {
		return fmt.Errorf("migrations: %w", err)
	}

	// Open the local fallback log. Writes survive Postgres outages here
	// and are replayed on the next startup.
	var fb gateway.FallbackLog
	if cfg.FallbackPath != "" {
		log, err := fallback.Open(cfg.FallbackPath, logger)
		if err != nil {
			return fmt.Errorf("fallback: %w", err)
		}
		defer func() { _ = log.Close() }()
		fb = log
	} else {
		logger.Info("fallback log: disabled (no path)")
	}

	gw := gateway.New(db, fb, logger)
	if n, err := gw.Resync(ctx); err != nil {
		logger.Warn("fallback resync failed", "error", err)
	} else if n > 0 {
		logger.Info("fallback resync complete", "count", n)
	}

	photos, err := newPhotoStore(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("photostore: %w", err)
	}

	validator := newVisionValidator(cfg, logger)

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

	// Start the periodic auto-close sweep if configured.
	if cfg.SweepInterval > 0 {
		go sweepLoop(ctx, sweep, logger, cfg.SweepInterval)
	}

	errCh := make(chan error, 1)
	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
	case err := <-errCh:
		return err
	}

	slog.Info("reluce shutting down")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("http shutdown error", "error", err)
	}

	slog.Info("reluce stopped")
	return nil
}

func sweepLoop(ctx context.Context, sweep *sweeper.Sweeper, logger *slog.Logger, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			result, err := sweep.Commit(ctx, time.Now().UTC())
			if err != nil {
				logger.Warn("auto-close sweep failed", "error", err)
				continue
			}
			if result.Count > 0 {
				logger.Info("auto-close sweep complete", "closed", result.Count)
			}
		}
	}
}

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
