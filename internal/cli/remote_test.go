package cli

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/reluceapp/reluce/internal/model"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestRemoteGatewayUpsertSpeaksLocalizedWire(t *testing.T) {
	var received map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "/v1/operations", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&received))

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{"data": received})
	}))
	defer srv.Close()

	gw := &remoteGateway{api: newAPIClient(srv.URL)}
	start := time.Date(2026, 8, 29, 9, 0, 0, 0, time.UTC)
	op, err := gw.Upsert(context.Background(), model.Operation{
		ID:        "op-1",
		Room:      "Suite 12",
		RoomType:  "habitacion",
		StartTime: start,
		Steps:     []model.StepRecord{{ID: 1, StartTime: start}},
	})
	require.NoError(t, err)

	assert.Contains(t, received, "habitacion")
	assert.Contains(t, received, "tipo")
	assert.Contains(t, received, "pasos")
	assert.NotContains(t, received, "room")
	assert.NotContains(t, received, "steps")

	assert.Equal(t, "op-1", op.ID)
	assert.Equal(t, "Suite 12", op.Room)
	assert.True(t, op.StartTime.Equal(start))
}

func TestRemoteGatewayUpsertServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusServiceUnavailable)
		_ = json.NewEncoder(w).Encode(map[string]any{
			"error": map[string]any{"code": "persistence_unavailable", "message": "store offline"},
		})
	}))
	defer srv.Close()

	gw := &remoteGateway{api: newAPIClient(srv.URL)}
	_, err := gw.Upsert(context.Background(), model.Operation{ID: "op-1"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "persistence_unavailable")
}

func TestRemotePhotosStoreUploadsMultipart(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/v1/photos", r.URL.Path)
		require.NoError(t, r.ParseMultipartForm(1<<20))

		file, header, err := r.FormFile("photo")
		require.NoError(t, err)
		defer func() { _ = file.Close() }()
		data, err := io.ReadAll(file)
		require.NoError(t, err)
		assert.Equal(t, "cama.jpg", header.Filename)
		assert.Equal(t, []byte("jpeg-bytes"), data)
		assert.Equal(t, "visita-1", r.FormValue("session"))

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"data": map[string]any{"key": "visita-1/abc-cama.jpg", "url": "http://photos/visita-1/abc-cama.jpg"},
		})
	}))
	defer srv.Close()

	photos := &remotePhotos{api: newAPIClient(srv.URL)}
	key, url, err := photos.Store(context.Background(), []byte("jpeg-bytes"), "cama.jpg", "visita-1")
	require.NoError(t, err)
	assert.Equal(t, "visita-1/abc-cama.jpg", key)
	assert.Equal(t, "http://photos/visita-1/abc-cama.jpg", url)
}

func TestRemoteValidatorDecodesVerdict(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/v1/validations", r.URL.Path)

		var req model.ValidationRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "Hacer la cama", req.Title)
		assert.NotEmpty(t, req.ImageBase64)

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"data": model.ValidationVerdict{Valid: false, Expected: req.Expectation, Found: "cama sin hacer"},
		})
	}))
	defer srv.Close()

	v := &remoteValidator{api: newAPIClient(srv.URL), logger: discardLogger()}
	verdict := v.Validate(context.Background(), []byte("jpeg-bytes"), "Hacer la cama", "cama hecha")
	assert.False(t, verdict.Valid)
	assert.Equal(t, "cama sin hacer", verdict.Found)
}

func TestRemoteValidatorDegradesOnTransportFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	srv.Close() // refuse connections

	v := &remoteValidator{api: newAPIClient(srv.URL), logger: discardLogger()}
	verdict := v.Validate(context.Background(), []byte("jpeg-bytes"), "Hacer la cama", "cama hecha")
	assert.True(t, verdict.Valid, "validation outage must not block the step")
	assert.Contains(t, verdict.Found, "continuing without full validation")
}
