package renderer

import (
	"log/slog"
	"sync/atomic"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/launcher/flags"

	"github.com/use-agent/distill/config"
	"github.com/use-agent/distill/models"
)

// Renderer owns the single long-lived browser process shared by all requests.
// Each Render call derives its own page from it, so the Renderer is safe for
// concurrent use without additional locking.
type Renderer struct {
	browser     *rod.Browser
	rendererCfg config.RendererConfig
	activePages atomic.Int32
}

// NewRenderer launches a headless browser and connects to it.
// Close must be called on shutdown to kill the browser process.
func NewRenderer(browserCfg config.BrowserConfig, rendererCfg config.RendererConfig) (*Renderer, error) {
	l := launcher.New().
		Headless(browserCfg.Headless).
		NoSandbox(browserCfg.NoSandbox)

	if browserCfg.BrowserBin != "" {
		l = l.Bin(browserCfg.BrowserBin)
	}

	// Mask the most obvious automation signals and strip background
	// features that only slow down a disposable rendering browser.
	l.Set(flags.Flag("disable-blink-features"), "AutomationControlled")
	l.Delete(flags.Flag("enable-automation"))
	l.Set(flags.Flag("disable-features"), "AudioServiceOutOfProcess,TranslateUI")
	l.Set(flags.Flag("disable-background-timer-throttling"))
	l.Set(flags.Flag("disable-backgrounding-occluded-windows"))
	l.Set(flags.Flag("disable-component-update"))
	l.Set(flags.Flag("disable-default-apps"))
	l.Set(flags.Flag("disable-dev-shm-usage"))
	l.Set(flags.Flag("disable-extensions"))
	l.Set(flags.Flag("no-first-run"))

	controlURL, err := l.Launch()
	if err != nil {
		return nil, models.NewParseError(
			models.ErrCodeBrowserCrash,
			"failed to launch browser",
			err,
		)
	}
	slog.Info("browser launched", "controlURL", controlURL)

	browser := rod.New().ControlURL(controlURL)
	if err := browser.Connect(); err != nil {
		l.Kill()
		return nil, models.NewParseError(
			models.ErrCodeBrowserCrash,
			"failed to connect to browser",
			err,
		)
	}

	return &Renderer{
		browser:     browser,
		rendererCfg: rendererCfg,
	}, nil
}

// ActivePages returns the number of currently open page contexts.
func (r *Renderer) ActivePages() int {
	return int(r.activePages.Load())
}

// Close kills the browser process. Call this on graceful shutdown to
// prevent zombie Chrome processes.
func (r *Renderer) Close() {
	slog.Info("renderer shutting down: closing browser")
	r.browser.MustClose()
	slog.Info("renderer shutdown complete")
}
