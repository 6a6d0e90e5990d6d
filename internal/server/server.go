// Package server implements the HTTP API for Reluce.
package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/reluceapp/reluce/internal/photostore"
	"github.com/reluceapp/reluce/internal/vision"
)

// Server is the Reluce HTTP server.
type Server struct {
	httpServer *http.Server
	handler    http.Handler
	logger     *slog.Logger
}

// ServerConfig holds all dependencies and configuration for creating a Server.
type ServerConfig struct {
	Gateway   OperationGateway
	Sweeper   SweepRunner
	Photos    photostore.Store
	Validator vision.Validator
	Logger    *slog.Logger

	Port                int
	ReadTimeout         time.Duration
	WriteTimeout        time.Duration
	Version             string
	MaxRequestBodyBytes int64
}

// New creates a new HTTP server with all routes configured.
func New(cfg ServerConfig) *Server {
	h := NewHandlers(HandlersDeps{
		Gateway:             cfg.Gateway,
		Sweeper:             cfg.Sweeper,
		Photos:              cfg.Photos,
		Validator:           cfg.Validator,
		Logger:              cfg.Logger,
		Version:             cfg.Version,
		MaxRequestBodyBytes: cfg.MaxRequestBodyBytes,
	})

	mux := http.NewServeMux()

	// Operations: localized payloads in and out.
	mux.HandleFunc("POST /v1/operations", h.HandleUpsertOperation)
	mux.HandleFunc("GET /v1/operations/{id}", h.HandleGetOperation)
	mux.HandleFunc("GET /v1/operations", h.HandleListOperations)

	// Auto-close sweep.
	mux.HandleFunc("GET /v1/sweep", h.HandleSweepInspect)
	mux.HandleFunc("POST /v1/sweep", h.HandleSweepCommit)

	// Photo evidence.
	mux.HandleFunc("POST /v1/photos", h.HandleUploadPhoto)
	mux.HandleFunc("GET /photos/{key...}", h.HandleGetPhoto)

	// Standalone validation.
	mux.HandleFunc("POST /v1/validations", h.HandleValidatePhoto)

	// Health (no auth, no envelope surprises).
	mux.HandleFunc("GET /health", h.HandleHealth)

	// Middleware chain (outermost executes first):
	// request ID → tracing → logging → recovery → handler.
	var handler http.Handler = mux
	handler = recoveryMiddleware(cfg.Logger, handler)
	handler = loggingMiddleware(cfg.Logger, handler)
	handler = tracingMiddleware(handler)
	handler = requestIDMiddleware(handler)

	return &Server{
		httpServer: &http.Server{
			Addr:         fmt.Sprintf(":%d", cfg.Port),
			Handler:      handler,
			ReadTimeout:  cfg.ReadTimeout,
			WriteTimeout: cfg.WriteTimeout,
		},
		handler: handler,
		logger:  cfg.Logger,
	}
}

// Handler returns the root HTTP handler for use in tests.
func (s *Server) Handler() http.Handler {
	return s.handler
}

// Start begins serving HTTP requests.
func (s *Server) Start() error {
	s.logger.Info("http server starting", "addr", s.httpServer.Addr)
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully shuts down the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("http server shutting down")
	return s.httpServer.Shutdown(ctx)
}
