// Package renderer defines the abstract page-rendering capability and its
// headless-Chrome implementation. The rest of the system only sees the
// Backend and Session interfaces, so any rendering engine satisfying them
// can be swapped in (tests use an in-memory fake).
package renderer

import (
	"context"
	"time"
)

// Backend owns a rendering engine and opens isolated browsing contexts.
type Backend interface {
	// OpenSession creates a new isolated browsing context.
	OpenSession(ctx context.Context) (Session, error)

	// Close tears down the engine and every remaining session.
	Close() error
}

// Session is one isolated browsing context. A session is stateful: Navigate
// mutates its current document. Sessions are not safe for concurrent use;
// the session pool guarantees exclusive leasing.
type Session interface {
	// Navigate loads url and waits for the readiness signal, returning a
	// snapshot of the rendered document.
	Navigate(ctx context.Context, url string, opts NavigateOptions) (*NavigateResult, error)

	// Reset returns the session to a clean state between leases.
	Reset() error

	// Close destroys the browsing context.
	Close() error
}

// NavigateOptions controls one navigation.
type NavigateOptions struct {
	// SettleWindow is the DOM-stable window used as the readiness signal.
	SettleWindow time.Duration

	// Stealth enables anti-bot-detection evasions before navigation.
	Stealth bool

	// Headers are extra HTTP headers sent with the navigation.
	Headers map[string]string

	// RemoveOverlays strips cookie banners and modal overlays before the
	// snapshot is taken.
	RemoveOverlays bool
}

// NavigateResult is the rendered-document snapshot.
type NavigateResult struct {
	HTML       string
	Title      string
	FinalURL   string
	StatusCode int
}
