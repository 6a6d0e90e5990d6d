package cli

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
	"net/url"
	"time"

	"github.com/reluceapp/reluce/internal/fieldmap"
	"github.com/reluceapp/reluce/internal/model"
	"github.com/reluceapp/reluce/internal/vision"
)

// apiClient is a minimal client for the Reluce HTTP API, speaking the
// localized wire schema on the operations endpoints.
type apiClient struct {
	baseURL string
	client  *http.Client
}

func newAPIClient(baseURL string) *apiClient {
	return &apiClient{
		baseURL: baseURL,
		client:  &http.Client{Timeout: 60 * time.Second},
	}
}

type apiEnvelope struct {
	Data  json.RawMessage `json:"data"`
	Error *struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

func (c *apiClient) do(ctx context.Context, method, path string, body io.Reader, contentType string, dest any) error {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("cli: create request: %w", err)
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("cli: %s %s: %w", method, path, err)
	}
	defer func() { _ = resp.Body.Close() }()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("cli: read response: %w", err)
	}

	var envelope apiEnvelope
	if err := json.Unmarshal(raw, &envelope); err != nil {
		return fmt.Errorf("cli: decode response: %w", err)
	}
	if resp.StatusCode >= 400 {
		if envelope.Error != nil {
			return fmt.Errorf("cli: server error %s: %s", envelope.Error.Code, envelope.Error.Message)
		}
		return fmt.Errorf("cli: server returned status %d", resp.StatusCode)
	}
	if dest == nil {
		return nil
	}
	return json.Unmarshal(envelope.Data, dest)
}

func (c *apiClient) postJSON(ctx context.Context, path string, body, dest any) error {
	encoded, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("cli: marshal request: %w", err)
	}
	return c.do(ctx, http.MethodPost, path, bytes.NewReader(encoded), "application/json", dest)
}

// remoteGateway implements session.Upserter over the HTTP API. It localizes
// on the way out and canonicalizes the echoed record, so the machine only
// ever sees canonical operations.
type remoteGateway struct {
	api *apiClient
}

func (g *remoteGateway) Upsert(ctx context.Context, op model.Operation) (model.Operation, error) {
	canonical, err := model.EncodeOperation(op)
	if err != nil {
		return model.Operation{}, err
	}

	var echoed map[string]any
	if err := g.api.postJSON(ctx, "/v1/operations", fieldmap.ToLocalized(canonical), &echoed); err != nil {
		return model.Operation{}, err
	}
	return model.DecodeOperation(fieldmap.ToCanonical(echoed))
}

func (g *remoteGateway) get(ctx context.Context, id string) (model.Operation, error) {
	var echoed map[string]any
	if err := g.api.do(ctx, http.MethodGet, "/v1/operations/"+url.PathEscape(id), nil, "", &echoed); err != nil {
		return model.Operation{}, err
	}
	return model.DecodeOperation(fieldmap.ToCanonical(echoed))
}

// remotePhotos implements session.PhotoStore over POST /v1/photos.
type remotePhotos struct {
	api *apiClient
}

func (p *remotePhotos) Store(ctx context.Context, data []byte, filename, subpath string) (string, string, error) {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile("photo", filename)
	if err != nil {
		return "", "", fmt.Errorf("cli: build multipart form: %w", err)
	}
	if _, err := part.Write(data); err != nil {
		return "", "", fmt.Errorf("cli: build multipart form: %w", err)
	}
	if subpath != "" {
		if err := mw.WriteField("session", subpath); err != nil {
			return "", "", fmt.Errorf("cli: build multipart form: %w", err)
		}
	}
	if err := mw.Close(); err != nil {
		return "", "", fmt.Errorf("cli: build multipart form: %w", err)
	}

	var upload model.PhotoUploadResponse
	if err := p.api.do(ctx, http.MethodPost, "/v1/photos", &buf, mw.FormDataContentType(), &upload); err != nil {
		return "", "", err
	}
	return upload.Key, upload.URL, nil
}

// remoteValidator implements vision.Validator over POST /v1/validations.
// Transport failures degrade to the flagged pass, same as every validator.
type remoteValidator struct {
	api    *apiClient
	logger *slog.Logger
}

func (v *remoteValidator) Validate(ctx context.Context, image []byte, title, expectation string) model.ValidationVerdict {
	req := model.ValidationRequest{
		Title:       title,
		Expectation: expectation,
		ImageBase64: base64.StdEncoding.EncodeToString(image),
	}
	var verdict model.ValidationVerdict
	if err := v.api.postJSON(ctx, "/v1/validations", req, &verdict); err != nil {
		v.logger.Warn("cli: remote validation failed, continuing", "error", err)
		return vision.DegradedVerdict(expectation)
	}
	return verdict
}
