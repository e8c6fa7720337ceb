package cleaner

import (
	"log/slog"

	"github.com/JohannesKaufmann/html-to-markdown/v2/converter"
)

// Cleaner turns a rendered DOM snapshot into a compact Markdown payload for
// the extraction prompt:
//
//	Stage 1 (boilerplate): drop script/style/nav/chrome nodes and comments
//	Stage 2 (readability): locate the main content, with landmark fallback
//	Stage 3 (markdown):    convert clean HTML → Markdown
//
// The converter is created once and reused across all requests
// (goroutine-safe). Clean holds no other state, so the same input always
// produces the same output.
type Cleaner struct {
	mdConverter *converter.Converter
}

// NewCleaner initialises the Cleaner with a pre-configured Markdown converter.
func NewCleaner() *Cleaner {
	return &Cleaner{
		mdConverter: newMarkdownConverter(),
	}
}

// Clean runs the full pipeline and returns the reduced content.
//
// It never fails: malformed or partial HTML degrades to best-effort tag
// stripping, and each stage falls back to the previous stage's output when
// it cannot improve on it. The worst case is the boilerplate-stripped text.
func (c *Cleaner) Clean(rawHTML string, sourceURL string) string {
	// ── 1. Boilerplate removal ──────────────────────────────────────
	stripped := StripBoilerplate(rawHTML)

	// ── 2. Main-content extraction ──────────────────────────────────
	article, ok := ExtractContent(stripped, sourceURL)
	content := article.Content
	if !ok {
		// Readability could not locate an article body. Try the common
		// content landmarks before settling for the whole stripped page.
		if landmark, found := selectContentLandmark(stripped); found {
			content = landmark
		}
	}

	// ── 3. Markdown conversion ──────────────────────────────────────
	markdown, err := ToMarkdown(c.mdConverter, content, sourceURL)
	if err != nil {
		slog.Warn("markdown conversion failed, falling back to plain text",
			"url", sourceURL, "error", err,
		)
		if article.TextContent != "" {
			return article.TextContent
		}
		return stripTags(content)
	}

	return markdown
}
