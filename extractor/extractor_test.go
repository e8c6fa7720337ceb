package extractor

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/use-agent/distill/config"
	"github.com/use-agent/distill/models"
)

// newTestExtractor builds an Extractor pointed at a stub LLM server.
func newTestExtractor(baseURL string, timeout time.Duration) *Extractor {
	return &Extractor{
		httpClient: &http.Client{},
		cfg: config.LLMConfig{
			APIKey:  "test-key",
			Model:   "gpt-4-turbo-preview",
			BaseURL: baseURL,
			Timeout: timeout,
		},
		prompt: NewPromptTemplate("Extract {\"title\": string}."),
	}
}

// stubLLM returns a chat-completions server whose single choice contains
// the given message content.
func stubLLM(t *testing.T, content string) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/chat/completions" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer test-key" {
			t.Errorf("unexpected Authorization header %q", got)
		}

		resp := map[string]any{
			"choices": []map[string]any{
				{"message": map[string]any{"content": content}},
			},
			"usage": map[string]int{
				"prompt_tokens":     120,
				"completion_tokens": 15,
				"total_tokens":      135,
			},
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(resp)
	}))
}

func TestExtract_Success(t *testing.T) {
	srv := stubLLM(t, `{"title": "Example Domain", "author": null}`)
	defer srv.Close()

	ex := newTestExtractor(srv.URL, 5*time.Second)

	result, err := ex.Extract(context.Background(), "some cleaned content", "https://example.com/")
	if err != nil {
		t.Fatalf("Extract returned error: %v", err)
	}

	// The payload must pass through byte-for-byte (key order preserved).
	want := `{"title": "Example Domain", "author": null}`
	if string(result.Data) != want {
		t.Errorf("Data = %s, want %s", result.Data, want)
	}
	if result.Usage.TotalTokens != 135 {
		t.Errorf("TotalTokens = %d, want 135", result.Usage.TotalTokens)
	}
}

func TestExtract_FencedOutput(t *testing.T) {
	tests := []struct {
		name    string
		content string
		want    string
	}{
		{
			"json fence",
			"```json\n{\"title\": \"Example Domain\"}\n```",
			`{"title": "Example Domain"}`,
		},
		{
			"bare fence",
			"```\n{\"title\": \"Example Domain\"}\n```",
			`{"title": "Example Domain"}`,
		},
		{
			"fence with surrounding prose",
			"Here is the extracted data:\n```json\n{\"title\": \"Example Domain\"}\n```\nLet me know if you need anything else.",
			`{"title": "Example Domain"}`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := stubLLM(t, tt.content)
			defer srv.Close()

			ex := newTestExtractor(srv.URL, 5*time.Second)

			result, err := ex.Extract(context.Background(), "content", "https://example.com/")
			if err != nil {
				t.Fatalf("Extract returned error: %v", err)
			}
			if string(result.Data) != tt.want {
				t.Errorf("Data = %s, want %s", result.Data, tt.want)
			}
		})
	}
}

func TestExtract_InvalidModelOutput(t *testing.T) {
	tests := []struct {
		name    string
		content string
		wantMsg string
	}{
		{"not json", "Sure! Here is the data you asked for.", "not valid JSON"},
		{"truncated json", `{"title": "Example`, "not valid JSON"},
		{"json array", `["a", "b"]`, "not an object"},
		{"json string", `"just a string"`, "not an object"},
		{"empty content", "", "empty response"},
		{"unclosed fence", "```json\n{\"title\": \"Example Domain\"}", "not valid JSON"},
		{"fenced array", "```json\n[1, 2]\n```", "not an object"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := stubLLM(t, tt.content)
			defer srv.Close()

			ex := newTestExtractor(srv.URL, 5*time.Second)

			_, err := ex.Extract(context.Background(), "content", "https://example.com/")
			if err == nil {
				t.Fatal("expected error, got nil")
			}

			var parseErr *models.ParseError
			if !errors.As(err, &parseErr) {
				t.Fatalf("error is not a ParseError: %v", err)
			}
			if parseErr.Code != models.ErrCodeExtractParse {
				t.Errorf("Code = %s, want %s", parseErr.Code, models.ErrCodeExtractParse)
			}
			if !strings.Contains(parseErr.Message, tt.wantMsg) {
				t.Errorf("Message = %q, want substring %q", parseErr.Message, tt.wantMsg)
			}
		})
	}
}

func TestExtract_Timeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-time.After(2 * time.Second):
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()

	ex := newTestExtractor(srv.URL, 50*time.Millisecond)

	start := time.Now()
	_, err := ex.Extract(context.Background(), "content", "https://example.com/")
	elapsed := time.Since(start)

	if err == nil {
		t.Fatal("expected timeout error, got nil")
	}

	var parseErr *models.ParseError
	if !errors.As(err, &parseErr) {
		t.Fatalf("error is not a ParseError: %v", err)
	}
	if parseErr.Code != models.ErrCodeExtractTimeout {
		t.Errorf("Code = %s, want %s", parseErr.Code, models.ErrCodeExtractTimeout)
	}
	// Timeout must be distinguishable from a parse failure.
	if parseErr.Code == models.ErrCodeExtractParse {
		t.Error("timeout reported as parse failure")
	}
	if elapsed > time.Second {
		t.Errorf("timeout took %v, deadline was 50ms", elapsed)
	}
}

func TestExtract_APIErrors(t *testing.T) {
	tests := []struct {
		name     string
		status   int
		wantCode string
	}{
		{"unauthorized", http.StatusUnauthorized, models.ErrCodeLLMAuthFailure},
		{"forbidden", http.StatusForbidden, models.ErrCodeLLMAuthFailure},
		{"rate limited", http.StatusTooManyRequests, models.ErrCodeLLMRateLimited},
		{"server error", http.StatusInternalServerError, models.ErrCodeLLMFailure},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				fmt.Fprint(w, `{"error": {"message": "provider says no"}}`)
			}))
			defer srv.Close()

			ex := newTestExtractor(srv.URL, 5*time.Second)

			_, err := ex.Extract(context.Background(), "content", "https://example.com/")
			if err == nil {
				t.Fatal("expected error, got nil")
			}

			var parseErr *models.ParseError
			if !errors.As(err, &parseErr) {
				t.Fatalf("error is not a ParseError: %v", err)
			}
			if parseErr.Code != tt.wantCode {
				t.Errorf("Code = %s, want %s", parseErr.Code, tt.wantCode)
			}
		})
	}
}

func TestLoadPromptTemplate(t *testing.T) {
	t.Run("missing file", func(t *testing.T) {
		_, err := LoadPromptTemplate(filepath.Join(t.TempDir(), "nope.txt"))
		if err == nil {
			t.Fatal("expected error for missing file")
		}
	})

	t.Run("empty file", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "prompt.txt")
		if err := os.WriteFile(path, []byte("  \n"), 0o644); err != nil {
			t.Fatal(err)
		}
		_, err := LoadPromptTemplate(path)
		if err == nil {
			t.Fatal("expected error for empty template")
		}
	})

	t.Run("valid file", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "prompt.txt")
		if err := os.WriteFile(path, []byte("Extract the title.\n"), 0o644); err != nil {
			t.Fatal(err)
		}
		p, err := LoadPromptTemplate(path)
		if err != nil {
			t.Fatalf("LoadPromptTemplate: %v", err)
		}
		if p.System() != "Extract the title." {
			t.Errorf("System() = %q", p.System())
		}
	})
}

func TestPromptTemplate_User(t *testing.T) {
	p := NewPromptTemplate("Extract the title.")
	msg := p.User("# Heading\n\nBody.", "https://example.com/page")

	if !strings.Contains(msg, "https://example.com/page") {
		t.Errorf("user message missing URL:\n%s", msg)
	}
	if !strings.Contains(msg, "# Heading") {
		t.Errorf("user message missing content:\n%s", msg)
	}
	if !strings.Contains(msg, "valid JSON only") {
		t.Errorf("user message missing JSON instruction:\n%s", msg)
	}
}
