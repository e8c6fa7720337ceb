package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/use-agent/distill/extractor"
	"github.com/use-agent/distill/models"
	"github.com/use-agent/distill/renderer"
)

// fakeRenderer records calls and returns a canned page or error.
type fakeRenderer struct {
	calls int
	page  *renderer.RenderedPage
	err   error
}

func (f *fakeRenderer) Render(ctx context.Context, url string) (*renderer.RenderedPage, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return f.page, nil
}

func (f *fakeRenderer) ActivePages() int { return 0 }

// fakeCleaner passes HTML through so tests control the extractor input.
type fakeCleaner struct{}

func (fakeCleaner) Clean(rawHTML string, sourceURL string) string { return rawHTML }

// fakeExtractor returns a canned result or error.
type fakeExtractor struct {
	result *extractor.Result
	err    error
}

func (f *fakeExtractor) Extract(ctx context.Context, content string, sourceURL string) (*extractor.Result, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.result, nil
}

func newTestRouter(rend PageRenderer, ex DataExtractor) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.POST("/parse", Parse(rend, fakeCleaner{}, ex))
	return r
}

func doParse(r *gin.Engine, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/parse", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func decodeError(t *testing.T, w *httptest.ResponseRecorder) models.ErrorDetail {
	t.Helper()
	var resp models.ErrorResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("error body is not valid JSON: %v\n%s", err, w.Body.String())
	}
	if resp.Error == nil {
		t.Fatalf("error body has no error field: %s", w.Body.String())
	}
	return *resp.Error
}

func TestParse_InvalidURL(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"missing url", `{}`},
		{"empty url", `{"url": ""}`},
		{"no scheme", `{"url": "example.com/page"}`},
		{"bad scheme", `{"url": "ftp://example.com/file"}`},
		{"relative path", `{"url": "/just/a/path"}`},
		{"not json", `url=x`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rend := &fakeRenderer{}
			r := newTestRouter(rend, &fakeExtractor{})

			w := doParse(r, tt.body)

			if w.Code != http.StatusBadRequest {
				t.Errorf("status = %d, want 400", w.Code)
			}
			// Invalid input must be rejected before any rendering cost.
			if rend.calls != 0 {
				t.Errorf("renderer was invoked %d times for invalid input", rend.calls)
			}
		})
	}
}

func TestParse_RenderTimeout(t *testing.T) {
	rend := &fakeRenderer{
		err: models.NewParseError(models.ErrCodeRenderTimeout, "page did not finish rendering in time", context.DeadlineExceeded),
	}
	r := newTestRouter(rend, &fakeExtractor{})

	w := doParse(r, `{"url": "https://example.com/"}`)

	if w.Code != http.StatusGatewayTimeout {
		t.Errorf("status = %d, want 504", w.Code)
	}
	if detail := decodeError(t, w); detail.Code != models.ErrCodeRenderTimeout {
		t.Errorf("error code = %s, want %s", detail.Code, models.ErrCodeRenderTimeout)
	}
}

func TestParse_RenderFailure(t *testing.T) {
	rend := &fakeRenderer{
		err: models.NewParseError(models.ErrCodeRenderFailure, "navigation to target URL failed", nil),
	}
	r := newTestRouter(rend, &fakeExtractor{})

	w := doParse(r, `{"url": "https://example.com/"}`)

	if w.Code != http.StatusInternalServerError {
		t.Errorf("status = %d, want 500", w.Code)
	}
	if detail := decodeError(t, w); detail.Code != models.ErrCodeRenderFailure {
		t.Errorf("error code = %s, want %s", detail.Code, models.ErrCodeRenderFailure)
	}
}

func TestParse_ExtractParseFailure(t *testing.T) {
	rend := &fakeRenderer{page: &renderer.RenderedPage{HTML: "<p>x</p>", FinalURL: "https://example.com/"}}
	ex := &fakeExtractor{
		err: models.NewParseError(models.ErrCodeExtractParse, "model output is not valid JSON", nil),
	}
	r := newTestRouter(rend, ex)

	w := doParse(r, `{"url": "https://example.com/"}`)

	if w.Code != http.StatusInternalServerError {
		t.Errorf("status = %d, want 500", w.Code)
	}
	detail := decodeError(t, w)
	// A bad model response must be distinguishable from a timeout.
	if detail.Code != models.ErrCodeExtractParse {
		t.Errorf("error code = %s, want %s", detail.Code, models.ErrCodeExtractParse)
	}
}

func TestParse_ExtractTimeout(t *testing.T) {
	rend := &fakeRenderer{page: &renderer.RenderedPage{HTML: "<p>x</p>", FinalURL: "https://example.com/"}}
	ex := &fakeExtractor{
		err: models.NewParseError(models.ErrCodeExtractTimeout, "LLM request timed out", context.DeadlineExceeded),
	}
	r := newTestRouter(rend, ex)

	w := doParse(r, `{"url": "https://example.com/"}`)

	if w.Code != http.StatusGatewayTimeout {
		t.Errorf("status = %d, want 504", w.Code)
	}
}

func TestParse_Success(t *testing.T) {
	rend := &fakeRenderer{page: &renderer.RenderedPage{
		HTML:     "<html><head><title>Example Domain</title></head><body><h1>Example Domain</h1></body></html>",
		Title:    "Example Domain",
		FinalURL: "https://example.com/",
	}}
	ex := &fakeExtractor{result: &extractor.Result{
		Data: json.RawMessage(`{"title": "Example Domain"}`),
	}}
	r := newTestRouter(rend, ex)

	w := doParse(r, `{"url": "https://example.com/"}`)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200; body: %s", w.Code, w.Body.String())
	}
	// The response body is the extractor's JSON object verbatim.
	if got := w.Body.String(); got != `{"title": "Example Domain"}` {
		t.Errorf("body = %s", got)
	}
	if ct := w.Header().Get("Content-Type"); !strings.HasPrefix(ct, "application/json") {
		t.Errorf("Content-Type = %s", ct)
	}
	if rend.calls != 1 {
		t.Errorf("renderer invoked %d times, want 1", rend.calls)
	}
}

func TestHealth(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.GET("/health", Health(&fakeRenderer{}, time.Now().Add(-3*time.Second)))

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}

	var resp models.HealthResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("body is not valid JSON: %v", err)
	}
	if resp.Status != "healthy" {
		t.Errorf("status = %q, want healthy", resp.Status)
	}
}
