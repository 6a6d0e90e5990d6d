package server

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/reluceapp/reluce/internal/fieldmap"
	"github.com/reluceapp/reluce/internal/gateway"
	"github.com/reluceapp/reluce/internal/model"
	"github.com/reluceapp/reluce/internal/photostore"
	"github.com/reluceapp/reluce/internal/storage"
	"github.com/reluceapp/reluce/internal/vision"
)

// OperationGateway is the persistence surface the handlers use.
type OperationGateway interface {
	Upsert(ctx context.Context, op model.Operation) (model.Operation, error)
	GetByID(ctx context.Context, id string) (model.Operation, error)
	List(ctx context.Context, filter storage.ListFilter) ([]model.Operation, error)
}

// SweepRunner is the auto-close surface the handlers use.
type SweepRunner interface {
	Inspect(ctx context.Context, now time.Time) (model.SweepResult, error)
	Commit(ctx context.Context, now time.Time) (model.SweepResult, error)
}

// Handlers holds HTTP handler dependencies.
type Handlers struct {
	gateway             OperationGateway
	sweeper             SweepRunner
	photos              photostore.Store
	validator           vision.Validator
	logger              *slog.Logger
	startedAt           time.Time
	version             string
	maxRequestBodyBytes int64
}

// HandlersDeps holds all dependencies for constructing Handlers.
type HandlersDeps struct {
	Gateway             OperationGateway
	Sweeper             SweepRunner
	Photos              photostore.Store
	Validator           vision.Validator
	Logger              *slog.Logger
	Version             string
	MaxRequestBodyBytes int64
}

// NewHandlers creates a new Handlers with all dependencies.
func NewHandlers(d HandlersDeps) *Handlers {
	return &Handlers{
		gateway:             d.Gateway,
		sweeper:             d.Sweeper,
		photos:              d.Photos,
		validator:           d.Validator,
		logger:              d.Logger,
		startedAt:           time.Now(),
		version:             d.Version,
		maxRequestBodyBytes: d.MaxRequestBodyBytes,
	}
}

// HandleUpsertOperation handles POST /v1/operations.
// The payload arrives with localized field names; it is canonicalized once,
// validated, written through the gateway, and localized once on the way out.
func (h *Handlers) HandleUpsertOperation(w http.ResponseWriter, r *http.Request) {
	body := http.MaxBytesReader(w, r.Body, h.maxRequestBodyBytes)
	var localized map[string]any
	if err := json.NewDecoder(body).Decode(&localized); err != nil {
		writeError(w, r, http.StatusBadRequest, model.ErrCodeInvalidInput, "malformed JSON payload")
		return
	}

	op, err := model.DecodeOperation(fieldmap.ToCanonical(localized))
	if err != nil {
		writeError(w, r, http.StatusBadRequest, model.ErrCodeInvalidInput, err.Error())
		return
	}
	if err := op.Validate(); err != nil {
		writeError(w, r, http.StatusBadRequest, model.ErrCodeInvalidInput, err.Error())
		return
	}

	stored, err := h.gateway.Upsert(r.Context(), op)
	if err != nil {
		if errors.Is(err, gateway.ErrUnavailable) {
			writeError(w, r, http.StatusServiceUnavailable, model.ErrCodePersistenceUnavailable, "persistence unavailable")
			return
		}
		h.logger.Error("upsert operation failed", "id", op.ID, "error", err)
		writeError(w, r, http.StatusInternalServerError, model.ErrCodeInternal, "failed to store operation")
		return
	}

	h.writeLocalized(w, r, http.StatusOK, stored)
}

// HandleGetOperation handles GET /v1/operations/{id}.
func (h *Handlers) HandleGetOperation(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	op, err := h.gateway.GetByID(r.Context(), id)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			writeError(w, r, http.StatusNotFound, model.ErrCodeNotFound, fmt.Sprintf("operation %s not found", id))
			return
		}
		h.logger.Error("get operation failed", "id", id, "error", err)
		writeError(w, r, http.StatusInternalServerError, model.ErrCodeInternal, "failed to load operation")
		return
	}
	h.writeLocalized(w, r, http.StatusOK, op)
}

// HandleListOperations handles GET /v1/operations?from=&to=.
// Bounds are RFC 3339 timestamps; both are optional.
func (h *Handlers) HandleListOperations(w http.ResponseWriter, r *http.Request) {
	var filter storage.ListFilter
	for _, bound := range []struct {
		param  string
		target **time.Time
	}{
		{"from", &filter.From},
		{"to", &filter.To},
	} {
		raw := r.URL.Query().Get(bound.param)
		if raw == "" {
			continue
		}
		ts, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			writeError(w, r, http.StatusBadRequest, model.ErrCodeInvalidInput,
				fmt.Sprintf("invalid %s: expected RFC 3339 timestamp", bound.param))
			return
		}
		*bound.target = &ts
	}

	ops, err := h.gateway.List(r.Context(), filter)
	if err != nil {
		h.logger.Error("list operations failed", "error", err)
		writeError(w, r, http.StatusInternalServerError, model.ErrCodeInternal, "failed to list operations")
		return
	}

	out := make([]map[string]any, 0, len(ops))
	for _, op := range ops {
		m, err := localize(op)
		if err != nil {
			h.logger.Error("localize operation failed", "id", op.ID, "error", err)
			writeError(w, r, http.StatusInternalServerError, model.ErrCodeInternal, "failed to encode operations")
			return
		}
		out = append(out, m)
	}
	writeJSON(w, r, http.StatusOK, out)
}

// HandleSweepInspect handles GET /v1/sweep: a read-only report of the
// operations the auto-close policy would close right now.
func (h *Handlers) HandleSweepInspect(w http.ResponseWriter, r *http.Request) {
	result, err := h.sweeper.Inspect(r.Context(), time.Now().UTC())
	if err != nil {
		h.logger.Error("sweep inspect failed", "error", err)
		writeError(w, r, http.StatusInternalServerError, model.ErrCodeInternal, "sweep inspect failed")
		return
	}
	writeJSON(w, r, http.StatusOK, result)
}

// HandleSweepCommit handles POST /v1/sweep: force-closes stale operations.
func (h *Handlers) HandleSweepCommit(w http.ResponseWriter, r *http.Request) {
	result, err := h.sweeper.Commit(r.Context(), time.Now().UTC())
	if err != nil {
		h.logger.Error("sweep commit failed", "error", err)
		writeError(w, r, http.StatusInternalServerError, model.ErrCodeInternal, "sweep commit failed")
		return
	}
	writeJSON(w, r, http.StatusOK, result)
}

// HandleUploadPhoto handles POST /v1/photos (multipart). The file travels in
// the "photo" part; "session" optionally scopes the object key.
func (h *Handlers) HandleUploadPhoto(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, h.maxRequestBodyBytes)
	if err := r.ParseMultipartForm(h.maxRequestBodyBytes); err != nil {
		writeError(w, r, http.StatusBadRequest, model.ErrCodeInvalidInput, "malformed multipart form")
		return
	}

	file, header, err := r.FormFile("photo")
	if err != nil {
		writeError(w, r, http.StatusBadRequest, model.ErrCodeInvalidInput, "missing photo file")
		return
	}
	defer func() { _ = file.Close() }()

	data, err := io.ReadAll(file)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, model.ErrCodeInvalidInput, "unreadable photo file")
		return
	}

	key, url, err := h.photos.Store(r.Context(), data, header.Filename, r.FormValue("session"))
	if err != nil {
		h.logger.Error("photo upload failed", "filename", header.Filename, "error", err)
		writeError(w, r, http.StatusInternalServerError, model.ErrCodeInternal, "failed to store photo")
		return
	}

	writeJSON(w, r, http.StatusOK, model.PhotoUploadResponse{Key: key, URL: url})
}

// HandleGetPhoto handles GET /photos/{key...}, serving stored evidence.
func (h *Handlers) HandleGetPhoto(w http.ResponseWriter, r *http.Request) {
	key := r.PathValue("key")
	data, err := h.photos.Retrieve(r.Context(), key)
	if err != nil {
		if errors.Is(err, photostore.ErrNotFound) {
			writeError(w, r, http.StatusNotFound, model.ErrCodeNotFound, "photo not found")
			return
		}
		h.logger.Error("photo retrieve failed", "key", key, "error", err)
		writeError(w, r, http.StatusInternalServerError, model.ErrCodeInternal, "failed to load photo")
		return
	}

	w.Header().Set("Content-Type", http.DetectContentType(data))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

// HandleValidatePhoto handles POST /v1/validations: image + title +
// expectation in, verdict out. The validator never fails; a degraded
// verdict is still a 200.
func (h *Handlers) HandleValidatePhoto(w http.ResponseWriter, r *http.Request) {
	body := http.MaxBytesReader(w, r.Body, h.maxRequestBodyBytes)
	var req model.ValidationRequest
	if err := json.NewDecoder(body).Decode(&req); err != nil {
		writeError(w, r, http.StatusBadRequest, model.ErrCodeInvalidInput, "malformed JSON payload")
		return
	}
	if req.Expectation == "" || req.ImageBase64 == "" {
		writeError(w, r, http.StatusBadRequest, model.ErrCodeInvalidInput, "expectation and image_base64 are required")
		return
	}

	image, err := base64.StdEncoding.DecodeString(req.ImageBase64)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, model.ErrCodeInvalidInput, "image_base64 is not valid base64")
		return
	}

	verdict := h.validator.Validate(r.Context(), image, req.Title, req.Expectation)
	writeJSON(w, r, http.StatusOK, verdict)
}

// HandleHealth handles GET /health.
func (h *Handlers) HandleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, r, http.StatusOK, map[string]any{
		"status":         "ok",
		"version":        h.version,
		"uptime_seconds": int(time.Since(h.startedAt).Seconds()),
	})
}

// writeLocalized sends one operation with localized field names.
func (h *Handlers) writeLocalized(w http.ResponseWriter, r *http.Request, status int, op model.Operation) {
	m, err := localize(op)
	if err != nil {
		h.logger.Error("localize operation failed", "id", op.ID, "error", err)
		writeError(w, r, http.StatusInternalServerError, model.ErrCodeInternal, "failed to encode operation")
		return
	}
	writeJSON(w, r, status, m)
}

func localize(op model.Operation) (map[string]any, error) {
	m, err := model.EncodeOperation(op)
	if err != nil {
		return nil, err
	}
	return fieldmap.ToLocalized(m), nil
}

// writeJSON writes a JSON response with the standard envelope.
func writeJSON(w http.ResponseWriter, r *http.Request, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(model.APIResponse{
		Data: data,
		Meta: model.ResponseMeta{
			RequestID: RequestIDFromContext(r.Context()),
			Timestamp: time.Now().UTC(),
		},
	})
}

// writeError writes a JSON error response with the standard envelope.
func writeError(w http.ResponseWriter, r *http.Request, status int, code, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(model.APIError{
		Error: model.ErrorDetail{Code: code, Message: message},
		Meta: model.ResponseMeta{
			RequestID: RequestIDFromContext(r.Context()),
			Timestamp: time.Now().UTC(),
		},
	})
}
