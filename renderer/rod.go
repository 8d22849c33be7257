package renderer

import (
	"context"
	"log/slog"
	"net/url"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/launcher/flags"
	"github.com/go-rod/rod/lib/proto"
	"github.com/go-rod/stealth"
	"github.com/ysmood/gson"

	"github.com/use-agent/storesleuth/config"
	"github.com/use-agent/storesleuth/models"
)

// RodBackend drives a shared headless Chrome process; each session is a
// separate browser page.
type RodBackend struct {
	browser *rod.Browser
	cfg     config.BrowserConfig
}

// NewRodBackend launches a headless browser and connects to it.
func NewRodBackend(cfg config.BrowserConfig) (*RodBackend, error) {
	l := launcher.New().
		Headless(cfg.Headless).
		NoSandbox(cfg.NoSandbox)

	if cfg.BrowserBin != "" {
		l = l.Bin(cfg.BrowserBin)
	}
	if cfg.DefaultProxy != "" {
		l = l.Proxy(cfg.DefaultProxy)
	}

	// ── Stealth flags ────────────────────────────────────────────────
	l.Set(flags.Flag("disable-blink-features"), "AutomationControlled")
	l.Delete(flags.Flag("enable-automation"))
	l.Set(flags.Flag("disable-features"), "AudioServiceOutOfProcess,TranslateUI")
	l.Set(flags.Flag("disable-ipc-flooding-protection"))
	l.Set(flags.Flag("disable-popup-blocking"))
	l.Set(flags.Flag("disable-prompt-on-repost"))
	l.Set(flags.Flag("disable-renderer-backgrounding"))
	l.Set(flags.Flag("disable-background-timer-throttling"))
	l.Set(flags.Flag("disable-backgrounding-occluded-windows"))
	l.Set(flags.Flag("disable-component-update"))
	l.Set(flags.Flag("disable-default-apps"))
	l.Set(flags.Flag("disable-dev-shm-usage"))
	l.Set(flags.Flag("disable-extensions"))
	l.Set(flags.Flag("no-first-run"))

	controlURL, err := l.Launch()
	if err != nil {
		return nil, models.NewExtractError(
			models.ErrKindRenderCrash,
			"failed to launch browser",
			err,
		)
	}
	slog.Info("browser launched", "controlURL", controlURL)

	browser := rod.New().ControlURL(controlURL)
	if err := browser.Connect(); err != nil {
		return nil, models.NewExtractError(
			models.ErrKindRenderCrash,
			"failed to connect to browser",
			err,
		)
	}

	return &RodBackend{browser: browser, cfg: cfg}, nil
}

// OpenSession creates a fresh browser page.
func (b *RodBackend) OpenSession(ctx context.Context) (Session, error) {
	page, err := b.browser.Context(ctx).Page(proto.TargetCreateTarget{})
	if err != nil {
		return nil, models.NewExtractError(
			models.ErrKindRenderCrash,
			"failed to create browser page",
			err,
		)
	}
	return &rodSession{page: page, cfg: b.cfg}, nil
}

// Close kills the browser process. Call on shutdown to prevent zombie
// Chrome processes.
func (b *RodBackend) Close() error {
	slog.Info("renderer shutting down: closing browser")
	return b.browser.Close()
}

type rodSession struct {
	page *rod.Page
	cfg  config.BrowserConfig
}

// Navigate loads url and snapshots the rendered document.
//
// Lifecycle:
//
//  1. Stealth injection      – mask navigator.webdriver etc. (before navigation!)
//  2. Extra headers          – custom + Google Referer
//  3. Hijack mount           – block images/CSS/fonts/media + tracker hosts (before navigation!)
//  4. Context binding        – propagate timeout to all Rod operations
//  5. Navigate               – triggers page load
//  6. Wait                   – DOM stable within the settle window
//  7. Status capture         – via the Performance API, no CDP listeners needed
//  8. Snapshot               – page.HTML() + document.title + location.href
//
// Steps 1-3 MUST happen before step 5: stealth JS and resource blocking only
// take effect for navigations that happen after they are installed.
func (s *rodSession) Navigate(ctx context.Context, targetURL string, opts NavigateOptions) (*NavigateResult, error) {
	// ── 1. Stealth injection ──────────────────────────────────────────
	if opts.Stealth {
		if _, evalErr := s.page.EvalOnNewDocument(stealth.JS); evalErr != nil {
			slog.Warn("stealth injection failed, proceeding without stealth",
				"error", evalErr,
			)
		}
	}

	// ── 2. Extra headers (custom + Google Referer) ───────────────────
	extraHeaders := make(map[string]string, len(opts.Headers)+1)
	if _, hasReferer := opts.Headers["Referer"]; !hasReferer {
		if u, parseErr := url.Parse(targetURL); parseErr == nil {
			extraHeaders["Referer"] = "https://www.google.com/search?q=" + url.QueryEscape(u.Hostname())
		}
	}
	for k, v := range opts.Headers {
		extraHeaders[k] = v
	}
	if len(extraHeaders) > 0 {
		_ = proto.NetworkSetExtraHTTPHeaders{
			Headers: toHeadersMap(extraHeaders),
		}.Call(s.page)
	}

	// ── 3. Mount hijack router (blocks Image/Stylesheet/Font/Media + ads) ──
	router := setupHijack(s.page, s.cfg.BlockedResourceTypes, true)
	if router != nil {
		defer func() { _ = router.Stop() }()
	}

	// ── 4. Bind request context to page ───────────────────────────────
	p := s.page.Context(ctx)

	// ── 5. Navigate ───────────────────────────────────────────────────
	if navErr := p.Navigate(targetURL); navErr != nil {
		return nil, navErr
	}

	// ── 6. Wait strategy ──────────────────────────────────────────────
	// WaitRequestIdle uses the Fetch domain which conflicts with
	// HijackRequests on Chromium 145+, so readiness is a bounded
	// DOM-stable window instead.
	settle := opts.SettleWindow
	if settle <= 0 {
		settle = 300 * time.Millisecond
	}
	if stableErr := p.WaitDOMStable(settle, 0.1); stableErr != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		slog.Debug("WaitDOMStable did not converge, proceeding with current DOM",
			"error", stableErr,
		)
	}

	// ── 7. Collect status code via JS (best-effort) ──────────────────
	// performance.getEntriesByType("navigation") exposes the HTTP status
	// without needing CDP event listeners.
	var statusCode int
	if res, err := p.Eval(`() => {
		try {
			const entries = performance.getEntriesByType("navigation");
			if (entries.length > 0) return entries[0].responseStatus || 0;
		} catch(e) {}
		return 0;
	}`); err == nil {
		statusCode = res.Value.Int()
	}

	// ── 7b. Remove overlays (cookie banners, popups) ─────────────────
	if opts.RemoveOverlays {
		removeOverlays(p)
	}

	// ── 8. Snapshot ───────────────────────────────────────────────────
	rawHTML, htmlErr := p.HTML()
	if htmlErr != nil {
		return nil, htmlErr
	}

	title := evalStringOrEmpty(p, `() => document.title`)
	finalURL := evalStringOrEmpty(p, `() => window.location.href`)
	if finalURL == "" {
		finalURL = targetURL
	}

	return &NavigateResult{
		HTML:       rawHTML,
		Title:      title,
		FinalURL:   finalURL,
		StatusCode: statusCode,
	}, nil
}

// Reset navigates to about:blank so the next lease starts from a clean
// document (prevents DOM memory leaks across leases).
func (s *rodSession) Reset() error {
	return s.page.Navigate("about:blank")
}

func (s *rodSession) Close() error {
	return s.page.Close()
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

// toHeadersMap converts a plain string map to the proto.NetworkHeaders type
// (map[string]gson.JSON) required by NetworkSetExtraHTTPHeaders.
func toHeadersMap(headers map[string]string) proto.NetworkHeaders {
	m := make(proto.NetworkHeaders, len(headers))
	for k, v := range headers {
		m[k] = gson.New(v)
	}
	return m
}

// removeOverlays injects JS to remove fixed/sticky positioned elements with
// high z-index, which are typically cookie consent banners and popup overlays.
func removeOverlays(p *rod.Page) {
	const js = `() => {
		const els = document.querySelectorAll('*');
		for (const el of els) {
			const style = window.getComputedStyle(el);
			const pos = style.position;
			if (pos === 'fixed' || pos === 'sticky') {
				const z = parseInt(style.zIndex, 10);
				if (z >= 900 || style.zIndex === 'auto') {
					el.remove();
				}
			}
		}
		const selectors = [
			'[class*="cookie"]', '[class*="consent"]', '[class*="overlay"]',
			'[id*="cookie"]', '[id*="consent"]', '[id*="overlay"]',
			'[class*="popup"]', '[id*="popup"]',
			'[class*="gdpr"]', '[id*="gdpr"]',
		];
		for (const sel of selectors) {
			document.querySelectorAll(sel).forEach(el => {
				const style = window.getComputedStyle(el);
				if (style.position === 'fixed' || style.position === 'sticky' || style.position === 'absolute') {
					el.remove();
				}
			});
		}
		document.documentElement.style.overflow = '';
		document.body.style.overflow = '';
	}`
	_, _ = p.Eval(js)
}
