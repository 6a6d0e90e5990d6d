package vision

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestStubValidator(t *testing.T) {
	v := NewStubValidator()
	ctx := context.Background()

	t.Run("accepts plausible image", func(t *testing.T) {
		verdict := v.Validate(ctx, bytes.Repeat([]byte{0xFF}, 4096), "Hacer la cama", "cama hecha")
		assert.True(t, verdict.Valid)
		assert.Equal(t, "cama hecha", verdict.Expected)
	})

	t.Run("rejects tiny image", func(t *testing.T) {
		verdict := v.Validate(ctx, []byte{0x01}, "Hacer la cama", "cama hecha")
		assert.False(t, verdict.Valid)
		assert.NotEmpty(t, verdict.Found)
	})
}

func TestOpenAIValidator(t *testing.T) {
	image := bytes.Repeat([]byte{0xAB}, 2048)

	t.Run("parses model verdict", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "/chat/completions", r.URL.Path)
			assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))

			content, _ := json.Marshal(map[string]any{
				"valid":    false,
				"expected": "cama hecha con sábanas limpias",
				"found":    "cama sin hacer, sábanas arrugadas",
			})
			_ = json.NewEncoder(w).Encode(map[string]any{
				"choices": []map[string]any{
					{"message": map[string]any{"content": string(content)}},
				},
			})
		}))
		defer srv.Close()

		v, err := NewOpenAIValidator("test-key", "gpt-4o-mini", srv.URL, discardLogger())
		require.NoError(t, err)

		verdict := v.Validate(context.Background(), image, "Hacer la cama", "cama hecha con sábanas limpias")
		assert.False(t, verdict.Valid)
		assert.Equal(t, "cama sin hacer, sábanas arrugadas", verdict.Found)
	})

	t.Run("server error degrades to flagged pass", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, "overloaded", http.StatusServiceUnavailable)
		}))
		defer srv.Close()

		v, err := NewOpenAIValidator("test-key", "", srv.URL, discardLogger())
		require.NoError(t, err)

		verdict := v.Validate(context.Background(), image, "Hacer la cama", "cama hecha")
		assert.True(t, verdict.Valid)
		assert.Contains(t, verdict.Found, "continuing without full validation")
	})

	t.Run("malformed response degrades to flagged pass", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			_ = json.NewEncoder(w).Encode(map[string]any{
				"choices": []map[string]any{
					{"message": map[string]any{"content": "not json at all"}},
				},
			})
		}))
		defer srv.Close()

		v, err := NewOpenAIValidator("test-key", "", srv.URL, discardLogger())
		require.NoError(t, err)

		verdict := v.Validate(context.Background(), image, "Hacer la cama", "cama hecha")
		assert.True(t, verdict.Valid)
	})

	t.Run("requires api key", func(t *testing.T) {
		_, err := NewOpenAIValidator("", "", "", discardLogger())
		assert.Error(t, err)
	})
}
