package vision

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/reluceapp/reluce/internal/model"
)

const defaultOpenAIBaseURL = "https://api.openai.com/v1"

// OpenAIValidator validates photos against expectations using an
// OpenAI-compatible vision model endpoint.
type OpenAIValidator struct {
	apiKey     string
	modelName  string
	baseURL    string
	httpClient *http.Client
	logger     *slog.Logger
}

// NewOpenAIValidator creates a validator backed by an OpenAI-compatible
// chat completions endpoint. Model should be a vision-capable model like
// "gpt-4o-mini". An empty baseURL uses the OpenAI API.
func NewOpenAIValidator(apiKey, modelName, baseURL string, logger *slog.Logger) (*OpenAIValidator, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("vision: API key is required")
	}
	if modelName == "" {
		modelName = "gpt-4o-mini"
	}
	if baseURL == "" {
		baseURL = defaultOpenAIBaseURL
	}
	return &OpenAIValidator{
		apiKey:    apiKey,
		modelName: modelName,
		baseURL:   strings.TrimSuffix(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		logger: logger,
	}, nil
}

const systemPrompt = `You check cleaning evidence photos. Answer with a JSON object:
{"valid": bool, "expected": "...", "found": "..."}.
"expected" restates the expectation and "found" describes what the photo
shows or is missing. Keep both to 5-7 words, in the language of the
expectation, written for the cleaner to read.`

type chatRequest struct {
	Model          string        `json:"model"`
	Messages       []chatMessage `json:"messages"`
	ResponseFormat *respFormat   `json:"response_format,omitempty"`
	MaxTokens      int           `json:"max_tokens,omitempty"`
}

type respFormat struct {
	Type string `json:"type"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content any    `json:"content"`
}

type contentPart struct {
	Type     string    `json:"type"`
	Text     string    `json:"text,omitempty"`
	ImageURL *imageURL `json:"image_url,omitempty"`
}

type imageURL struct {
	URL string `json:"url"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

// Validate implements Validator. Any transport or parse failure degrades
// to a flagged-pass verdict.
func (v *OpenAIValidator) Validate(ctx context.Context, image []byte, title, expectation string) model.ValidationVerdict {
	verdict, err := v.validate(ctx, image, title, expectation)
	if err != nil {
		v.logger.Warn("vision: validation degraded to flagged pass",
			"title", title, "error", err)
		return DegradedVerdict(expectation)
	}
	return verdict
}

func (v *OpenAIValidator) validate(ctx context.Context, image []byte, title, expectation string) (model.ValidationVerdict, error) {
	dataURL := "data:image/jpeg;base64," + base64.StdEncoding.EncodeToString(image)

	reqBody, err := json.Marshal(chatRequest{
		Model: v.modelName,
		Messages: []chatMessage{
			{Role: "system", Content: systemPrompt},
			{Role: "user", Content: []contentPart{
				{Type: "text", Text: fmt.Sprintf("Step: %s\nExpectation: %s", title, expectation)},
				{Type: "image_url", ImageURL: &imageURL{URL: dataURL}},
			}},
		},
		ResponseFormat: &respFormat{Type: "json_object"},
		MaxTokens:      200,
	})
	if err != nil {
		return model.ValidationVerdict{}, fmt.Errorf("vision: marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		v.baseURL+"/chat/completions", bytes.NewReader(reqBody))
	if err != nil {
		return model.ValidationVerdict{}, fmt.Errorf("vision: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+v.apiKey)

	resp, err := v.httpClient.Do(req)
	if err != nil {
		return model.ValidationVerdict{}, fmt.Errorf("vision: send request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return model.ValidationVerdict{}, fmt.Errorf("vision: status %d: %s", resp.StatusCode, string(body))
	}

	var result chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return model.ValidationVerdict{}, fmt.Errorf("vision: decode response: %w", err)
	}
	if len(result.Choices) == 0 {
		return model.ValidationVerdict{}, fmt.Errorf("vision: empty choices in response")
	}

	var verdict model.ValidationVerdict
	if err := json.Unmarshal([]byte(result.Choices[0].Message.Content), &verdict); err != nil {
		return model.ValidationVerdict{}, fmt.Errorf("vision: parse verdict JSON: %w", err)
	}
	if verdict.Expected == "" {
		verdict.Expected = expectation
	}
	return verdict, nil
}
