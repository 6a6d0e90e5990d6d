package reluce

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Config holds the settings needed to construct a Client.
type Config struct {
	// BaseURL is the root URL of the Reluce server (e.g. "http://localhost:8080").
	BaseURL string

	// HTTPClient is an optional custom HTTP client. If nil, a default client
	// with a 30-second timeout is used.
	HTTPClient *http.Client

	// Timeout applies to individual API requests. Defaults to 30 seconds.
	Timeout time.Duration
}

// Client is an HTTP client for the Reluce checklist session API.
// All methods are safe for concurrent use.
type Client struct {
	baseURL string
	client  *http.Client
}

// NewClient creates a Client from the given configuration.
func NewClient(cfg Config) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("reluce: BaseURL is required")
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		timeout := cfg.Timeout
		if timeout == 0 {
			timeout = 30 * time.Second
		}
		httpClient = &http.Client{Timeout: timeout}
	}

	return &Client{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		client:  httpClient,
	}, nil
}

// UpsertOperation creates or replaces an operation by id.
func (c *Client) UpsertOperation(ctx context.Context, op Operation) (*Operation, error) {
	var resp Operation
	if err := c.post(ctx, "/v1/operations", op, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// GetOperation retrieves an operation by id.
func (c *Client) GetOperation(ctx context.Context, id string) (*Operation, error) {
	var resp Operation
	if err := c.get(ctx, "/v1/operations/"+url.PathEscape(id), &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// ListOperations retrieves operations filtered by start-time range.
// Nil bounds are open.
func (c *Client) ListOperations(ctx context.Context, from, to *time.Time) ([]Operation, error) {
	params := url.Values{}
	if from != nil {
		params.Set("from", from.Format(time.RFC3339))
	}
	if to != nil {
		params.Set("to", to.Format(time.RFC3339))
	}

	path := "/v1/operations"
	if len(params) > 0 {
		path += "?" + params.Encode()
	}
	var resp []Operation
	if err := c.get(ctx, path, &resp); err != nil {
		return nil, err
	}
	return resp, nil
}

// SweepInspect reports the operations the auto-close policy would close,
// without mutating anything.
func (c *Client) SweepInspect(ctx context.Context) (*SweepResult, error) {
	var resp SweepResult
	if err := c.get(ctx, "/v1/sweep", &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// SweepCommit force-closes all stale open operations.
func (c *Client) SweepCommit(ctx context.Context) (*SweepResult, error) {
	var resp SweepResult
	if err := c.post(ctx, "/v1/sweep", nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// UploadPhoto stores photo evidence and returns its retrieval URL.
// session optionally scopes the object key.
func (c *Client) UploadPhoto(ctx context.Context, data []byte, filename, session string) (*PhotoUpload, error) {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile("photo", filename)
	if err != nil {
		return nil, fmt.Errorf("reluce: build multipart form: %w", err)
	}
	if _, err := part.Write(data); err != nil {
		return nil, fmt.Errorf("reluce: build multipart form: %w", err)
	}
	if session != "" {
		if err := mw.WriteField("session", session); err != nil {
			return nil, fmt.Errorf("reluce: build multipart form: %w", err)
		}
	}
	if err := mw.Close(); err != nil {
		return nil, fmt.Errorf("reluce: build multipart form: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/photos", &buf)
	if err != nil {
		return nil, fmt.Errorf("reluce: create request: %w", err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	var resp PhotoUpload
	if err := c.doRequest(req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// ValidatePhoto runs image evidence through the AI validator.
func (c *Client) ValidatePhoto(ctx context.Context, image []byte, title, expectation string) (*ValidationResult, error) {
	body := map[string]any{
		"title":        title,
		"expectation":  expectation,
		"image_base64": base64.StdEncoding.EncodeToString(image),
	}
	var resp ValidationResult
	if err := c.post(ctx, "/v1/validations", body, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Health checks the server's health status.
func (c *Client) Health(ctx context.Context) (*HealthResponse, error) {
	var resp HealthResponse
	if err := c.get(ctx, "/health", &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// ---------------------------------------------------------------------------
// HTTP transport
// ---------------------------------------------------------------------------

// apiEnvelope is the server's standard response wrapper.
type apiEnvelope struct {
	Data json.RawMessage `json:"data"`
}

// apiErrorEnvelope is the server's standard error response wrapper.
type apiErrorEnvelope struct {
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

func (c *Client) post(ctx context.Context, path string, body any, dest any) error {
	var reader io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("reluce: marshal request body: %w", err)
		}
		reader = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("reluce: create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	return c.doRequest(req, dest)
}

func (c *Client) get(ctx context.Context, path string, dest any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return fmt.Errorf("reluce: create request: %w", err)
	}

	return c.doRequest(req, dest)
}

func (c *Client) doRequest(req *http.Request, dest any) error {
	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("reluce: %s %s: %w", req.Method, req.URL.Path, err)
	}
	defer func() { _ = resp.Body.Close() }()

	bodyBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("reluce: read response body: %w", err)
	}

	if resp.StatusCode >= 400 {
		return parseErrorResponse(resp.StatusCode, bodyBytes)
	}
	if resp.StatusCode == http.StatusNoContent || dest == nil {
		return nil
	}

	// Unwrap the server's { "data": ... } envelope.
	var envelope apiEnvelope
	if err := json.Unmarshal(bodyBytes, &envelope); err != nil {
		return fmt.Errorf("reluce: decode response envelope: %w", err)
	}
	if envelope.Data == nil {
		return json.Unmarshal(bodyBytes, dest)
	}
	return json.Unmarshal(envelope.Data, dest)
}

func parseErrorResponse(statusCode int, body []byte) *Error {
	apiErr := &Error{StatusCode: statusCode}

	var envelope apiErrorEnvelope
	if err := json.Unmarshal(body, &envelope); err == nil && envelope.Error.Message != "" {
		apiErr.Code = envelope.Error.Code
		apiErr.Message = envelope.Error.Message
	} else {
		apiErr.Code = http.StatusText(statusCode)
		apiErr.Message = string(body)
	}

	return apiErr
}
