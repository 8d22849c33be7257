// Package fetcher turns a URL into a rendered page snapshot. It tries a
// plain-HTTP probe with a Chrome TLS fingerprint first and promotes to a
// full browser session only when the page needs JS rendering. The winning
// path is remembered per host so repeat fetches skip the probe.
package fetcher

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/use-agent/storesleuth/config"
	"github.com/use-agent/storesleuth/models"
	"github.com/use-agent/storesleuth/renderer"
	"github.com/use-agent/storesleuth/session"
)

// Options controls one fetch.
type Options struct {
	// Mode forces a fetch path: "http", "browser", or "auto" (default).
	Mode string

	// Stealth enables anti-bot evasions on the browser path.
	Stealth bool
}

// Fetcher resolves URLs to page snapshots using the probe-then-promote
// strategy. Safe for concurrent use.
type Fetcher struct {
	pool  *session.Pool
	probe *httpProbe
	mem   *HostMemory
	cfg   config.FetchConfig
}

// New creates a Fetcher backed by the given session pool.
func New(pool *session.Pool, cfg config.FetchConfig, proxy string) *Fetcher {
	return &Fetcher{
		pool:  pool,
		probe: newHTTPProbe(proxy),
		mem:   NewHostMemory(cfg.HostMemoryTTL),
		cfg:   cfg,
	}
}

// Stop terminates background goroutines. The session pool is owned by the
// caller and is not closed here.
func (f *Fetcher) Stop() {
	f.mem.Stop()
}

// errNeedsBrowser signals that the probe succeeded but the content looks
// like an unrendered JS shell.
var errNeedsBrowser = errors.New("page needs browser rendering")

// Fetch retrieves targetURL and returns the rendered snapshot. The context
// deadline bounds the whole fetch; on expiry the error kind is FETCH_TIMEOUT.
func (f *Fetcher) Fetch(ctx context.Context, targetURL string, opts Options) (*models.PageContent, error) {
	parsed, err := url.Parse(targetURL)
	if err != nil || parsed.Hostname() == "" {
		return nil, models.NewExtractError(models.ErrKindInvalidInput,
			fmt.Sprintf("invalid url %q", targetURL), err)
	}
	host := parsed.Hostname()

	mode := opts.Mode
	if mode == "" {
		mode = "auto"
	}
	if mode == "auto" {
		if remembered := f.mem.Get(host); remembered != "" {
			mode = remembered
		}
	}

	start := time.Now()

	if mode == models.FetchMethodHTTP || mode == "auto" {
		page, probeErr := f.fetchHTTP(ctx, targetURL)
		switch {
		case probeErr == nil:
			f.mem.Set(host, models.FetchMethodHTTP)
			page.Elapsed = time.Since(start)
			return page, nil
		case mode == models.FetchMethodHTTP:
			// Forced HTTP: no fallback.
			if errors.Is(probeErr, errNeedsBrowser) {
				return nil, models.NewExtractError(models.ErrKindUnsupportedPage,
					"page requires JS rendering but fetch mode is http", nil)
			}
			return nil, probeErr
		case models.ErrKind(probeErr) == models.ErrKindBlocked:
			// The probe got an explicit block; a browser with stealth may
			// still get through, so fall through to the slow path.
			slog.Debug("probe blocked, promoting to browser", "host", host)
		case errors.Is(probeErr, errNeedsBrowser):
			slog.Debug("probe content needs rendering, promoting to browser", "host", host)
		case ctx.Err() != nil:
			return nil, classifyFetchErr(ctx, probeErr, 0)
		default:
			slog.Debug("probe failed, promoting to browser",
				"host", host, "error", probeErr)
		}
	}

	page, err := f.fetchBrowser(ctx, targetURL, opts)
	if err != nil {
		// A stale "browser" memory should not pin a now-broken host.
		f.mem.Delete(host)
		return nil, err
	}
	f.mem.Set(host, models.FetchMethodBrowser)
	page.Elapsed = time.Since(start)
	return page, nil
}

// fetchHTTP runs the probe fast path. It returns errNeedsBrowser when the
// body looks like an unrendered shell.
func (f *Fetcher) fetchHTTP(ctx context.Context, targetURL string) (*models.PageContent, error) {
	probeCtx, cancel := context.WithTimeout(ctx, f.cfg.ProbeTimeout)
	defer cancel()

	res, err := f.probe.get(probeCtx, targetURL)
	if err != nil {
		return nil, classifyFetchErr(probeCtx, err, 0)
	}
	if res.statusCode >= 400 {
		return nil, classifyFetchErr(probeCtx, nil, res.statusCode)
	}
	if needsBrowser(res.body) {
		return nil, errNeedsBrowser
	}

	return &models.PageContent{
		URL:         targetURL,
		FinalURL:    res.finalURL,
		HTML:        string(res.body),
		Title:       extractTitle(res.body),
		StatusCode:  res.statusCode,
		FetchMethod: models.FetchMethodHTTP,
	}, nil
}

// fetchBrowser leases a render session and navigates. The lease is released
// on every path; the session is reported unhealthy when the failure implies
// the browsing context itself may be damaged.
func (f *Fetcher) fetchBrowser(ctx context.Context, targetURL string, opts Options) (*models.PageContent, error) {
	lease, err := f.pool.Acquire(ctx)
	if err != nil {
		if errors.Is(err, session.ErrClosed) {
			return nil, models.NewExtractError(models.ErrKindPoolExhausted,
				"session pool is shut down", err)
		}
		return nil, err
	}

	res, navErr := lease.Session().Navigate(ctx, targetURL, sessionOpts(f.cfg, opts))
	if navErr != nil {
		werr := classifyFetchErr(ctx, navErr, 0)
		lease.Release(!sessionDamaged(werr))
		return nil, werr
	}

	if res.StatusCode >= 400 {
		// The navigation itself succeeded; the session is fine.
		lease.Release(true)
		return nil, classifyFetchErr(ctx, nil, res.StatusCode)
	}

	lease.Release(true)
	return &models.PageContent{
		URL:         targetURL,
		FinalURL:    res.FinalURL,
		HTML:        res.HTML,
		Title:       res.Title,
		StatusCode:  res.StatusCode,
		FetchMethod: models.FetchMethodBrowser,
	}, nil
}

func sessionOpts(cfg config.FetchConfig, opts Options) renderer.NavigateOptions {
	return renderer.NavigateOptions{
		SettleWindow:   cfg.SettleWindow,
		Stealth:        opts.Stealth,
		RemoveOverlays: true,
	}
}

// sessionDamaged reports whether an error implies the browsing context is no
// longer trustworthy. Render crashes obviously qualify. Timeouts qualify too,
// on purpose: a navigation cut off mid-load can leave the page wedged, and an
// unhealthy release only adds a strike to the session's error score rather
// than destroying it, so one slow target never costs a session by itself.
func sessionDamaged(err error) bool {
	switch models.ErrKind(err) {
	case models.ErrKindRenderCrash, models.ErrKindFetchTimeout:
		return true
	}
	return false
}

// classifyFetchErr maps a raw fetch failure (or an HTTP status) onto the
// error taxonomy. Unknown browser-side failures are treated as render
// crashes, which is the conservative choice: the session gets penalized.
func classifyFetchErr(ctx context.Context, err error, statusCode int) error {
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return models.NewExtractError(models.ErrKindFetchTimeout,
				"fetch deadline exceeded", err)
		}
		if errors.Is(err, context.Canceled) {
			return models.NewExtractError(models.ErrKindCancelled,
				"fetch cancelled", err)
		}
		// Context errors wrapped beyond recognition by transport layers.
		if ctx != nil && ctx.Err() != nil {
			if errors.Is(ctx.Err(), context.DeadlineExceeded) {
				return models.NewExtractError(models.ErrKindFetchTimeout,
					"fetch deadline exceeded", err)
			}
			return models.NewExtractError(models.ErrKindCancelled,
				"fetch cancelled", err)
		}
		var ee *models.ExtractError
		if errors.As(err, &ee) {
			return ee
		}
		msg := err.Error()
		if strings.Contains(msg, "net::ERR_") ||
			strings.Contains(msg, "no such host") ||
			strings.Contains(msg, "connection refused") ||
			strings.Contains(msg, "connection reset") {
			return models.NewExtractError(models.ErrKindNavigation,
				"navigation failed", err)
		}
		return models.NewExtractError(models.ErrKindRenderCrash,
			"browser session failed", err)
	}

	switch statusCode {
	case 403, 429, 503:
		return models.NewExtractError(models.ErrKindBlocked,
			fmt.Sprintf("request blocked with status %d", statusCode), nil)
	default:
		return models.NewExtractError(models.ErrKindNavigation,
			fmt.Sprintf("page returned status %d", statusCode), nil)
	}
}
