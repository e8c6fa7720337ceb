package renderer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/proto"
	"github.com/go-rod/stealth"
	"github.com/ysmood/gson"

	"github.com/use-agent/distill/models"
)

// Render navigates to targetURL in a fresh page and returns the rendered DOM.
//
// Lifecycle (numbered steps match the inline comments):
//
//  1. Timeout guard    – hard deadline on the entire render
//  2. Create page      – a new tab is the per-request isolation unit
//  3. DEFER: close     – the page is closed on every exit path
//  4. Stealth          – mask navigator.webdriver etc. (before navigation!)
//  5. Headers/viewport – Referer + desktop viewport
//  6. Hijack mount     – abort images/CSS/fonts/media (before navigation!)
//  7. Navigate         – triggers page load
//  8. Settle           – short DOM-stable wait for late JS hydration
//  9. Extract          – page.HTML() + title + final URL + status code
//
// Steps 4 and 6 must happen before step 7: stealth JS and resource blocking
// only take effect for navigations that start after they are installed.
func (r *Renderer) Render(ctx context.Context, targetURL string) (*RenderedPage, error) {
	// ── 1. Timeout guard ────────────────────────────────────────────
	ctx, cancel := context.WithTimeout(ctx, r.rendererCfg.Timeout)
	defer cancel()

	// ── 2. Create page ──────────────────────────────────────────────
	r.activePages.Add(1)
	defer r.activePages.Add(-1)

	page, err := r.browser.Page(proto.TargetCreateTarget{})
	if err != nil {
		return nil, models.NewParseError(
			models.ErrCodeBrowserCrash,
			"failed to create page",
			err,
		)
	}

	// ── 3. CRITICAL DEFER: the close uses the ORIGINAL page reference
	// (without the request context), so it succeeds even after the
	// request deadline has expired.
	defer func() {
		if closeErr := page.Close(); closeErr != nil {
			slog.Warn("cleanup: failed to close page", "error", closeErr)
		}
	}()

	// ── 4. Stealth injection ────────────────────────────────────────
	if r.rendererCfg.Stealth {
		if _, evalErr := page.EvalOnNewDocument(stealth.JS); evalErr != nil {
			slog.Warn("stealth injection failed, proceeding without stealth",
				"error", evalErr,
			)
		}
	}

	// ── 5. Referer + viewport ───────────────────────────────────────
	if u, parseErr := url.Parse(targetURL); parseErr == nil {
		_ = proto.NetworkSetExtraHTTPHeaders{
			Headers: proto.NetworkHeaders{
				"Referer": gson.New("https://www.google.com/search?q=" + url.QueryEscape(u.Hostname())),
			},
		}.Call(page)
	}
	_ = page.SetViewport(&proto.EmulationSetDeviceMetricsOverride{
		Width:  1920,
		Height: 1080,
	})

	// ── 6. Mount hijack router (aborts Image/Stylesheet/Font/Media) ──
	router := setupHijack(page, r.rendererCfg.BlockedResourceTypes)
	if router != nil {
		defer func() { _ = router.Stop() }()
	}

	// ── 7. Navigate with the request context bound ──────────────────
	p := page.Context(ctx)
	if navErr := p.Navigate(targetURL); navErr != nil {
		return nil, categorizeError(navErr, "navigation to target URL failed")
	}

	// ── 8. Settle: give late JS a short window, then take the DOM as-is.
	// Full network idle is deliberately not awaited; pages that hydrate
	// slowly lose that content rather than blowing the latency budget.
	if stableErr := p.WaitDOMStable(300*time.Millisecond, 0.1); stableErr != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, categorizeError(ctxErr, "page did not finish rendering in time")
		}
		slog.Debug("WaitDOMStable did not converge, proceeding with current DOM",
			"error", stableErr,
		)
	}

	// ── 8b. Main document status (best-effort, no CDP listeners) ────
	statusCode := 0
	if res, evalErr := p.Eval(`() => {
		try {
			const entries = performance.getEntriesByType("navigation");
			if (entries.length > 0) return entries[0].responseStatus || 0;
		} catch(e) {}
		return 0;
	}`); evalErr == nil {
		statusCode = res.Value.Int()
	}
	if statusCode >= 400 {
		return nil, models.NewParseError(
			models.ErrCodeRenderFailure,
			fmt.Sprintf("target site returned HTTP %d", statusCode),
			nil,
		)
	}

	// ── 9. Extract rendered HTML ────────────────────────────────────
	html, htmlErr := p.HTML()
	if htmlErr != nil {
		return nil, categorizeError(htmlErr, "failed to extract page HTML")
	}

	title := evalStringOrEmpty(p, `() => document.title`)
	finalURL := evalStringOrEmpty(p, `() => window.location.href`)
	if finalURL == "" {
		finalURL = targetURL
	}

	return &RenderedPage{
		HTML:       html,
		Title:      title,
		FinalURL:   finalURL,
		StatusCode: statusCode,
	}, nil
}

// evalStringOrEmpty evaluates a JS expression and returns the string result,
// swallowing any errors (useful for optional metadata extraction).
func evalStringOrEmpty(page *rod.Page, js string) string {
	res, err := page.Eval(js)
	if err != nil {
		return ""
	}
	return res.Value.Str()
}

// categorizeError wraps raw errors into typed ParseErrors so the API layer
// can map them to appropriate HTTP status codes. Deadline expiry becomes a
// render timeout, everything else a navigation failure (DNS, TLS, refused
// connections, bad redirects).
func categorizeError(err error, msg string) *models.ParseError {
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return models.NewParseError(models.ErrCodeRenderTimeout, msg, err)
	case errors.Is(err, context.Canceled):
		return models.NewParseError(models.ErrCodeRenderTimeout, "render canceled", err)
	default:
		return models.NewParseError(models.ErrCodeRenderFailure, msg, err)
	}
}
