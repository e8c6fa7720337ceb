package extractor

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/use-agent/distill/config"
	"github.com/use-agent/distill/models"
)

// Extractor sends cleaned page content to an OpenAI-compatible chat API and
// returns the model's structured JSON output. It uses net/http directly — no
// third-party SDK needed for the chat completions surface.
//
// The prompt template is loaded once at construction; the service fails at
// startup rather than on the first request when the file is missing.
type Extractor struct {
	httpClient *http.Client
	cfg        config.LLMConfig
	prompt     *PromptTemplate
}

// NewExtractor loads the prompt template and creates the Extractor.
// Pass nil to use a default http.Client.
func NewExtractor(cfg config.LLMConfig, httpClient *http.Client) (*Extractor, error) {
	prompt, err := LoadPromptTemplate(cfg.PromptFile)
	if err != nil {
		return nil, err
	}
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	return &Extractor{
		httpClient: httpClient,
		cfg:        cfg,
		prompt:     prompt,
	}, nil
}

// chatRequest is the OpenAI chat completion request body.
type chatRequest struct {
	Model          string          `json:"model"`
	Messages       []chatMessage   `json:"messages"`
	Temperature    float64         `json:"temperature"`
	ResponseFormat *responseFormat `json:"response_format,omitempty"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type responseFormat struct {
	Type string `json:"type"`
}

// chatResponse is the minimal OpenAI chat completion response we need.
type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
	Usage struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
		TotalTokens      int `json:"total_tokens"`
	} `json:"usage"`
}

// chatErrorResponse captures an API error from the LLM provider.
type chatErrorResponse struct {
	Error struct {
		Message string `json:"message"`
		Type    string `json:"type"`
		Code    string `json:"code"`
	} `json:"error"`
}

// Usage reports token consumption from the last LLM call.
type Usage struct {
	PromptTokens     int
	CompletionTokens int
	TotalTokens      int
}

// Result holds the extraction output.
type Result struct {
	// Data is the model's JSON object, passed through byte-for-byte so the
	// key order the model produced survives to the API response.
	Data  json.RawMessage
	Usage Usage
}

// Extract composes the prompt from content and sourceURL, calls the model,
// and validates that the response is a JSON object. One attempt only; retry
// policy belongs to the caller.
//
// Failure modes are distinct: deadline expiry (EXTRACT_TIMEOUT), provider
// API errors (LLM_FAILURE and friends), and unusable model output
// (EXTRACT_PARSE_FAILED).
func (e *Extractor) Extract(ctx context.Context, content string, sourceURL string) (*Result, error) {
	ctx, cancel := context.WithTimeout(ctx, e.cfg.Timeout)
	defer cancel()

	reqBody := chatRequest{
		Model: e.cfg.Model,
		Messages: []chatMessage{
			{Role: "system", Content: e.prompt.System()},
			{Role: "user", Content: e.prompt.User(content, sourceURL)},
		},
		Temperature:    0,
		ResponseFormat: &responseFormat{Type: "json_object"},
	}

	bodyBytes, err := json.Marshal(reqBody)
	if err != nil {
		return nil, models.NewParseError(models.ErrCodeInternal, "marshal LLM request", err)
	}

	endpoint := strings.TrimRight(e.cfg.BaseURL, "/") + "/chat/completions"

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(bodyBytes))
	if err != nil {
		return nil, models.NewParseError(models.ErrCodeInternal, "create LLM request", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+e.cfg.APIKey)

	resp, err := e.httpClient.Do(req)
	if err != nil {
		return nil, categorizeTransportError(err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, categorizeTransportError(err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, classifyAPIError(resp.StatusCode, respBody)
	}

	var chatResp chatResponse
	if err := json.Unmarshal(respBody, &chatResp); err != nil {
		return nil, models.NewParseError(models.ErrCodeLLMFailure, "failed to parse LLM response envelope", err)
	}
	if len(chatResp.Choices) == 0 {
		return nil, models.NewParseError(models.ErrCodeLLMFailure, "LLM returned no choices", nil)
	}

	raw := strings.TrimSpace(chatResp.Choices[0].Message.Content)
	if raw == "" {
		return nil, models.NewParseError(models.ErrCodeExtractParse, "LLM returned an empty response", nil)
	}

	// Some providers fence their JSON in markdown even when response_format
	// requests a bare object. Recover the fenced block before giving up.
	if !json.Valid([]byte(raw)) {
		fenced, ok := extractFencedJSON(raw)
		if !ok || !json.Valid([]byte(fenced)) {
			return nil, models.NewParseError(models.ErrCodeExtractParse, "model output is not valid JSON", nil)
		}
		raw = fenced
	}

	// The only schema guarantee: the top-level value is a JSON object.
	// Field names and types are dictated by the prompt template, not here.
	if raw[0] != '{' {
		return nil, models.NewParseError(models.ErrCodeExtractParse, "model output is valid JSON but not an object", nil)
	}

	return &Result{
		Data: json.RawMessage(raw),
		Usage: Usage{
			PromptTokens:     chatResp.Usage.PromptTokens,
			CompletionTokens: chatResp.Usage.CompletionTokens,
			TotalTokens:      chatResp.Usage.TotalTokens,
		},
	}, nil
}

// categorizeTransportError separates deadline expiry from other transport
// failures so a slow model maps to 504 and a broken provider to 500.
func categorizeTransportError(err error) *models.ParseError {
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return models.NewParseError(models.ErrCodeExtractTimeout, "LLM request timed out", err)
	case errors.Is(err, context.Canceled):
		return models.NewParseError(models.ErrCodeExtractTimeout, "LLM request canceled", err)
	default:
		return models.NewParseError(models.ErrCodeLLMFailure, "LLM request failed", err)
	}
}

// classifyAPIError maps provider HTTP status codes to error codes.
func classifyAPIError(statusCode int, body []byte) *models.ParseError {
	var errResp chatErrorResponse
	msg := "LLM API error"
	if err := json.Unmarshal(body, &errResp); err == nil && errResp.Error.Message != "" {
		msg = errResp.Error.Message
	}

	switch {
	case statusCode == http.StatusUnauthorized || statusCode == http.StatusForbidden:
		return models.NewParseError(models.ErrCodeLLMAuthFailure, msg, nil)
	case statusCode == http.StatusTooManyRequests:
		return models.NewParseError(models.ErrCodeLLMRateLimited, msg, nil)
	default:
		return models.NewParseError(models.ErrCodeLLMFailure, fmt.Sprintf("LLM API returned %d: %s", statusCode, msg), nil)
	}
}

// extractFencedJSON pulls the body of the first markdown code fence out of s,
// preferring a ```json fence over a bare one. Returns false when no closed
// fence exists.
func extractFencedJSON(s string) (string, bool) {
	marker := "```json"
	start := strings.Index(s, marker)
	if start < 0 {
		marker = "```"
		start = strings.Index(s, marker)
	}
	if start < 0 {
		return "", false
	}
	rest := s[start+len(marker):]
	end := strings.Index(rest, "```")
	if end < 0 {
		return "", false
	}
	return strings.TrimSpace(rest[:end]), true
}
