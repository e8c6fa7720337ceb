package handler

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/use-agent/distill/cleaner"
	"github.com/use-agent/distill/extractor"
	"github.com/use-agent/distill/models"
	"github.com/use-agent/distill/renderer"
)

// PageRenderer renders a URL into a DOM snapshot.
// *renderer.Renderer satisfies it; tests substitute fakes.
type PageRenderer interface {
	Render(ctx context.Context, url string) (*renderer.RenderedPage, error)
}

// ContentCleaner reduces rendered HTML to prompt-ready content.
type ContentCleaner interface {
	Clean(rawHTML string, sourceURL string) string
}

// DataExtractor turns cleaned content into structured JSON via the LLM.
type DataExtractor interface {
	Extract(ctx context.Context, content string, sourceURL string) (*extractor.Result, error)
}

// Parse returns the handler for POST /parse.
//
// Pipeline, strictly sequential, each stage's output the next stage's sole
// input:
//
//  1. Validate the URL — invalid input fails before any browser or LLM cost.
//  2. Render   (own deadline inside the Renderer)
//  3. Clean    (synchronous, never fails)
//  4. Extract  (own deadline inside the Extractor)
//
// On success the response body is the model's JSON object, byte-for-byte.
// Any stage error short-circuits; no partial results.
func Parse(rend PageRenderer, cl ContentCleaner, ex DataExtractor) gin.HandlerFunc {
	return func(c *gin.Context) {
		totalStart := time.Now()

		// ── 1. Parse and validate request ───────────────────────────
		var req models.ParseRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, models.ErrorResponse{
				Error: &models.ErrorDetail{
					Code:    models.ErrCodeInvalidInput,
					Message: err.Error(),
				},
			})
			return
		}
		if err := models.ValidateURL(req.URL); err != nil {
			respondError(c, err)
			return
		}

		slog.Info("parse request", "url", req.URL)

		// ── 2. Render ───────────────────────────────────────────────
		renderStart := time.Now()
		page, err := rend.Render(c.Request.Context(), req.URL)
		renderMs := time.Since(renderStart).Milliseconds()
		if err != nil {
			respondError(c, err)
			return
		}

		// ── 3. Clean ────────────────────────────────────────────────
		cleanStart := time.Now()
		content := cl.Clean(page.HTML, page.FinalURL)
		cleanMs := time.Since(cleanStart).Milliseconds()

		slog.Info("page cleaned",
			"url", req.URL,
			"original_tokens", cleaner.EstimateTokens(page.HTML),
			"cleaned_tokens", cleaner.EstimateTokens(content),
		)

		// ── 4. Extract ──────────────────────────────────────────────
		extractStart := time.Now()
		result, err := ex.Extract(c.Request.Context(), content, page.FinalURL)
		extractMs := time.Since(extractStart).Milliseconds()
		if err != nil {
			respondError(c, err)
			return
		}

		slog.Info("parse complete",
			"url", req.URL,
			"total_ms", time.Since(totalStart).Milliseconds(),
			"render_ms", renderMs,
			"clean_ms", cleanMs,
			"extract_ms", extractMs,
			"llm_tokens", result.Usage.TotalTokens,
		)

		// c.Data instead of c.JSON: the model's object goes out untouched,
		// preserving its key order.
		c.Data(http.StatusOK, "application/json; charset=utf-8", result.Data)
	}
}

// respondError maps a ParseError to the contract's status codes and writes
// a structured JSON error body. The contract promises exactly three failure
// statuses: 400 for invalid input, 504 for a stage timeout, 500 for
// everything else. Finer distinctions travel in the body's error code.
func respondError(c *gin.Context, err error) {
	parseErr, ok := err.(*models.ParseError)
	if !ok {
		parseErr = models.NewParseError(models.ErrCodeInternal, err.Error(), err)
	}

	status := http.StatusInternalServerError
	switch {
	case parseErr.Code == models.ErrCodeInvalidInput:
		status = http.StatusBadRequest
	case parseErr.IsTimeout():
		status = http.StatusGatewayTimeout
	}

	slog.Error("parse failed", "code", parseErr.Code, "error", parseErr.Error())

	c.JSON(status, models.ErrorResponse{Error: parseErr.ToDetail()})
}
