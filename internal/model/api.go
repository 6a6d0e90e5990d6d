package model

import "time"

// API error codes returned in the error envelope.
const (
	ErrCodeInvalidInput           = "invalid_input"
	ErrCodeNotFound               = "not_found"
	ErrCodeInternal               = "internal_error"
	ErrCodePersistenceUnavailable = "persistence_unavailable"
)

// APIResponse is the standard response envelope for all HTTP API responses.
type APIResponse struct {
	Data any          `json:"data,omitempty"`
	Meta ResponseMeta `json:"meta"`
}

// APIError is the standard error response envelope.
type APIError struct {
	Error ErrorDetail  `json:"error"`
	Meta  ResponseMeta `json:"meta"`
}

// ErrorDetail holds the machine-readable code and human-readable message.
type ErrorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// ResponseMeta carries per-request metadata on every response.
type ResponseMeta struct {
	RequestID string    `json:"request_id"`
	Timestamp time.Time `json:"timestamp"`
}

// SweepResult is the response body for auto-close inspect and commit.
// DurationHours is computed per operation at scan time.
type SweepResult struct {
	Count      int              `json:"count"`
	Operations []SweptOperation `json:"operations"`
}

// SweptOperation is an operation matched by the auto-close scan,
// annotated with its computed duration.
type SweptOperation struct {
	Operation     Operation `json:"operation"`
	DurationHours float64   `json:"duration_hours"`
}

// PhotoUploadResponse is returned by the photo store boundary.
type PhotoUploadResponse struct {
	Key string `json:"key"`
	URL string `json:"url"`
}

// ValidationRequest is the AI validation boundary input.
type ValidationRequest struct {
	Title       string `json:"title"`
	Expectation string `json:"expectation"`
	ImageBase64 string `json:"image_base64"`
}
