package server

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/reluceapp/reluce/internal/gateway"
	"github.com/reluceapp/reluce/internal/model"
	"github.com/reluceapp/reluce/internal/photostore"
	"github.com/reluceapp/reluce/internal/storage"
	"github.com/reluceapp/reluce/internal/sweeper"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// memStore is an in-memory gateway.Storer for handler tests.
type memStore struct {
	mu  sync.Mutex
	ops map[string]model.Operation
}

func newMemStore() *memStore {
	return &memStore{ops: map[string]model.Operation{}}
}

func (s *memStore) UpsertOperation(_ context.Context, op model.Operation) (model.Operation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if existing, ok := s.ops[op.ID]; ok {
		op.CreatedAt = existing.CreatedAt
	}
	s.ops[op.ID] = op
	return op, nil
}

func (s *memStore) GetOperation(_ context.Context, id string) (model.Operation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	op, ok := s.ops[id]
	if !ok {
		return model.Operation{}, storage.ErrNotFound
	}
	return op, nil
}

func (s *memStore) ListOperations(_ context.Context, filter storage.ListFilter) ([]model.Operation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []model.Operation
	for _, op := range s.ops {
		if filter.From != nil && op.StartTime.Before(*filter.From) {
			continue
		}
		if filter.To != nil && op.StartTime.After(*filter.To) {
			continue
		}
		out = append(out, op)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (s *memStore) ListOpenOperations(_ context.Context) ([]model.Operation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []model.Operation
	for _, op := range s.ops {
		if op.EndTime == nil && !op.Complete {
			out = append(out, op)
		}
	}
	return out, nil
}

type staticValidator struct {
	verdict model.ValidationVerdict
}

func (v staticValidator) Validate(_ context.Context, _ []byte, _, expectation string) model.ValidationVerdict {
	out := v.verdict
	if out.Expected == "" {
		out.Expected = expectation
	}
	return out
}

func newTestServer(t *testing.T) (*Server, *memStore) {
	t.Helper()
	store := newMemStore()
	gw := gateway.New(store, nil, testLogger())
	photos, err := photostore.NewDiskStore(t.TempDir(), "http://localhost:8080/photos")
	require.NoError(t, err)

	srv := New(ServerConfig{
		Gateway:             gw,
		Sweeper:             sweeper.New(gw, testLogger()),
		Photos:              photos,
		Validator:           staticValidator{verdict: model.ValidationVerdict{Valid: true, Found: "todo correcto"}},
		Logger:              testLogger(),
		Port:                0,
		Version:             "test",
		MaxRequestBodyBytes: 10 << 20,
	})
	return srv, store
}

func doJSON(t *testing.T, srv *Server, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	return rec
}

func decodeData(t *testing.T, rec *httptest.ResponseRecorder, target any) {
	t.Helper()
	var envelope struct {
		Data json.RawMessage `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &envelope))
	require.NoError(t, json.Unmarshal(envelope.Data, target))
}

func localizedOp(id string, start time.Time) map[string]any {
	return map[string]any{
		"id":         id,
		"habitacion": "Garden",
		"tipo":       "habitacion",
		"horaInicio": start.Format(time.RFC3339),
		"pasos": []any{
			map[string]any{"id": 1, "horaInicio": start.Format(time.RFC3339)},
		},
	}
}

func TestUpsertOperationRoundTrip(t *testing.T) {
	srv, _ := newTestServer(t)
	start := time.Now().UTC().Truncate(time.Second)

	rec := doJSON(t, srv, http.MethodPost, "/v1/operations", localizedOp("op-1", start))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))

	var data map[string]any
	decodeData(t, rec, &data)

	// Response uses the localized schema.
	assert.Equal(t, "Garden", data["habitacion"])
	assert.Equal(t, "habitacion", data["tipo"])
	assert.Equal(t, false, data["completada"])
	assert.NotContains(t, data, "room")
	assert.NotContains(t, data, "steps")
	pasos, ok := data["pasos"].([]any)
	require.True(t, ok)
	require.Len(t, pasos, 1)

	// Read it back through the canonical path.
	rec = doJSON(t, srv, http.MethodGet, "/v1/operations/op-1", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	decodeData(t, rec, &data)
	assert.Equal(t, "Garden", data["habitacion"])
	assert.Equal(t, start.Format(time.RFC3339), data["horaInicio"])
}

func TestUpsertOperationEpochMillisTimestamps(t *testing.T) {
	srv, store := newTestServer(t)
	start := time.Now().UTC().Add(-30 * time.Minute)

	payload := localizedOp("op-ms", start)
	payload["horaInicio"] = float64(start.UnixMilli())
	payload["pasos"] = []any{map[string]any{"id": 1, "horaInicio": float64(start.UnixMilli())}}

	rec := doJSON(t, srv, http.MethodPost, "/v1/operations", payload)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	op, err := store.GetOperation(context.Background(), "op-ms")
	require.NoError(t, err)
	assert.WithinDuration(t, start, op.StartTime, time.Second)
}

func TestUpsertOperationMissingFields(t *testing.T) {
	srv, _ := newTestServer(t)

	rec := doJSON(t, srv, http.MethodPost, "/v1/operations", map[string]any{
		"id":         "op-1",
		"habitacion": "Garden",
	})
	require.Equal(t, http.StatusBadRequest, rec.Code)

	var envelope model.APIError
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &envelope))
	assert.Equal(t, model.ErrCodeInvalidInput, envelope.Error.Code)
}

func TestUpsertAppliesAutoCloseOnSave(t *testing.T) {
	srv, _ := newTestServer(t)
	start := time.Now().UTC().Add(-14 * time.Hour)

	rec := doJSON(t, srv, http.MethodPost, "/v1/operations", localizedOp("t1", start))
	require.Equal(t, http.StatusOK, rec.Code)

	rec = doJSON(t, srv, http.MethodGet, "/v1/operations/t1", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var data map[string]any
	decodeData(t, rec, &data)
	assert.Equal(t, true, data["completada"])
	assert.NotEmpty(t, data["horaFin"])
	razon, _ := data["razon"].(string)
	assert.Contains(t, razon, "exceeded 12 hours")
}

func TestGetOperationNotFound(t *testing.T) {
	srv, _ := newTestServer(t)

	rec := doJSON(t, srv, http.MethodGet, "/v1/operations/nope", nil)
	require.Equal(t, http.StatusNotFound, rec.Code)

	var envelope model.APIError
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &envelope))
	assert.Equal(t, model.ErrCodeNotFound, envelope.Error.Code)
}

func TestListOperationsDateFilter(t *testing.T) {
	srv, _ := newTestServer(t)
	now := time.Now().UTC()

	for i, age := range []time.Duration{time.Hour, 48 * time.Hour} {
		rec := doJSON(t, srv, http.MethodPost, "/v1/operations",
			localizedOp(fmt.Sprintf("op-%d", i), now.Add(-age)))
		require.Equal(t, http.StatusOK, rec.Code)
	}

	from := now.Add(-24 * time.Hour).Format(time.RFC3339)
	rec := doJSON(t, srv, http.MethodGet, "/v1/operations?from="+from, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var data []map[string]any
	decodeData(t, rec, &data)
	require.Len(t, data, 1)
	assert.Equal(t, "op-0", data[0]["id"])

	rec = doJSON(t, srv, http.MethodGet, "/v1/operations?from=ayer", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestSweepInspectAndCommit(t *testing.T) {
	srv, store := newTestServer(t)
	now := time.Now().UTC()

	// Seed directly so the auto-close-on-save normalization doesn't close
	// the stale operation before the sweep runs.
	_, err := store.UpsertOperation(context.Background(), model.Operation{
		ID: "stale", Room: "Garden", RoomType: "habitacion",
		StartTime: now.Add(-13 * time.Hour), Steps: []model.StepRecord{},
	})
	require.NoError(t, err)

	rec := doJSON(t, srv, http.MethodGet, "/v1/sweep", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var result model.SweepResult
	decodeData(t, rec, &result)
	assert.Equal(t, 1, result.Count)

	rec = doJSON(t, srv, http.MethodPost, "/v1/sweep", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	decodeData(t, rec, &result)
	require.Equal(t, 1, result.Count)
	assert.True(t, result.Operations[0].Operation.Complete)
	assert.Greater(t, result.Operations[0].DurationHours, 12.0)

	// Idempotent: a second commit finds nothing.
	rec = doJSON(t, srv, http.MethodPost, "/v1/sweep", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	decodeData(t, rec, &result)
	assert.Equal(t, 0, result.Count)
}

func TestPhotoUploadAndRetrieve(t *testing.T) {
	srv, _ := newTestServer(t)

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile("photo", "cama.jpg")
	require.NoError(t, err)
	_, err = part.Write([]byte("jpeg bytes"))
	require.NoError(t, err)
	require.NoError(t, mw.WriteField("session", "visita-1"))
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/v1/photos", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var upload model.PhotoUploadResponse
	decodeData(t, rec, &upload)
	assert.True(t, strings.HasPrefix(upload.Key, "visita-1/"))

	rec = doJSON(t, srv, http.MethodGet, "/photos/"+upload.Key, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "jpeg bytes", rec.Body.String())

	rec = doJSON(t, srv, http.MethodGet, "/photos/visita-1/nope.jpg", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestValidatePhoto(t *testing.T) {
	srv, _ := newTestServer(t)

	rec := doJSON(t, srv, http.MethodPost, "/v1/validations", model.ValidationRequest{
		Title:       "Hacer la cama",
		Expectation: "cama hecha con sábanas limpias",
		ImageBase64: base64.StdEncoding.EncodeToString([]byte("jpeg bytes")),
	})
	require.Equal(t, http.StatusOK, rec.Code)

	var verdict model.ValidationVerdict
	decodeData(t, rec, &verdict)
	assert.True(t, verdict.Valid)
	assert.Equal(t, "cama hecha con sábanas limpias", verdict.Expected)

	rec = doJSON(t, srv, http.MethodPost, "/v1/validations", model.ValidationRequest{
		Expectation: "cama hecha",
		ImageBase64: "no es base64!!",
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHealth(t *testing.T) {
	srv, _ := newTestServer(t)

	rec := doJSON(t, srv, http.MethodGet, "/health", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var data map[string]any
	decodeData(t, rec, &data)
	assert.Equal(t, "ok", data["status"])
	assert.Equal(t, "test", data["version"])
}

func TestRequestIDPropagation(t *testing.T) {
	srv, _ := newTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set("X-Request-ID", "req-42")
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	assert.Equal(t, "req-42", rec.Header().Get("X-Request-ID"))

	var envelope struct {
		Meta model.ResponseMeta `json:"meta"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &envelope))
	assert.Equal(t, "req-42", envelope.Meta.RequestID)
}
