// Package session implements the bounded render-session pool. Sessions are
// handed out as exclusive leases and reclaimed on release; unhealthy
// sessions are destroyed and their capacity slot freed for a replacement.
package session

import (
	"context"
	"errors"
	"log/slog"
	"math"
	"sync"
	"sync/atomic"
	"time"

	"github.com/use-agent/storesleuth/config"
	"github.com/use-agent/storesleuth/models"
	"github.com/use-agent/storesleuth/renderer"
)

// ErrClosed is returned by Acquire after the pool has been shut down.
var ErrClosed = errors.New("session pool is closed")

// handle wraps a renderer session with health tracking metadata.
type handle struct {
	sess     renderer.Session
	errScore float64
	useCount int
	created  time.Time
	mu       sync.Mutex
}

// recordOutcome updates the health score: failures add a full point,
// successes claw back half a point (min 0).
func (h *handle) recordOutcome(healthy bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.useCount++
	if healthy {
		h.errScore = math.Max(0, h.errScore-0.5)
	} else {
		h.errScore += 1.0
	}
}

// shouldRetire reports whether the session has accumulated too many errors,
// too many uses, or too much age to be worth reusing.
func (h *handle) shouldRetire(maxUses int, maxAge time.Duration) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.errScore >= 3.0 {
		return true
	}
	if maxUses > 0 && h.useCount >= maxUses {
		return true
	}
	if maxAge > 0 && time.Since(h.created) >= maxAge {
		return true
	}
	return false
}

// Pool is a bounded set of render sessions. It is safe for concurrent use.
type Pool struct {
	backend renderer.Backend
	cfg     config.SessionConfig

	idle  chan *handle
	slots chan struct{} // capacity tokens; one per open session

	// stateMu serializes the closed flag with parking into idle, so Close
	// cannot drain idle between a release's closed check and its park.
	stateMu sync.Mutex
	closed  bool

	done      chan struct{}
	closeOnce sync.Once
	active    atomic.Int32
	open      atomic.Int32
}

// New creates a Pool with capacity cfg.MaxSessions. Sessions are created
// lazily on first demand, never beyond capacity.
func New(backend renderer.Backend, cfg config.SessionConfig) *Pool {
	if cfg.MaxSessions < 1 {
		cfg.MaxSessions = 1
	}
	return &Pool{
		backend: backend,
		cfg:     cfg,
		idle:    make(chan *handle, cfg.MaxSessions),
		slots:   make(chan struct{}, cfg.MaxSessions),
		done:    make(chan struct{}),
	}
}

// Lease is an exclusive hold on one session. Exactly one Release must be
// called per lease, on every path including error and cancellation.
type Lease struct {
	pool     *Pool
	handle   *handle
	released atomic.Bool
}

// Session returns the leased render session.
func (l *Lease) Session() renderer.Session {
	return l.handle.sess
}

// Release returns the session to the pool. healthy=false adds a full point
// to the session's error score; at three points the session is destroyed and
// its slot freed for a replacement. Healthy sessions are reset and reused
// until their retire criteria trip. Release is idempotent.
func (l *Lease) Release(healthy bool) {
	if !l.released.CompareAndSwap(false, true) {
		return
	}
	l.pool.release(l.handle, healthy)
}

// Acquire leases a session, blocking until one is idle or capacity allows
// creating a new one. It fails with ctx.Err() on cancellation and ErrClosed
// after shutdown. Session creation failure is reported to the caller and is
// not retried here; retry is the orchestrator's responsibility.
func (p *Pool) Acquire(ctx context.Context) (*Lease, error) {
	select {
	case <-p.done:
		return nil, ErrClosed
	default:
	}

	// Fast path: an idle session is available.
	select {
	case h := <-p.idle:
		p.active.Add(1)
		return &Lease{pool: p, handle: h}, nil
	default:
	}

	// Try to create a new session if under capacity.
	select {
	case p.slots <- struct{}{}:
		h, err := p.create(ctx)
		if err != nil {
			<-p.slots
			return nil, err
		}
		p.active.Add(1)
		return &Lease{pool: p, handle: h}, nil
	default:
	}

	// At capacity: block until a session frees up.
	select {
	case h := <-p.idle:
		p.active.Add(1)
		return &Lease{pool: p, handle: h}, nil
	case p.slots <- struct{}{}:
		// A slot opened because an unhealthy session was destroyed.
		h, err := p.create(ctx)
		if err != nil {
			<-p.slots
			return nil, err
		}
		p.active.Add(1)
		return &Lease{pool: p, handle: h}, nil
	case <-ctx.Done():
		return nil, models.NewExtractError(models.ErrKindPoolExhausted,
			"timed out waiting for a render session", ctx.Err())
	case <-p.done:
		return nil, ErrClosed
	}
}

// Stats returns a snapshot of the pool's current state.
func (p *Pool) Stats() models.PoolStats {
	return models.PoolStats{
		MaxSessions:    p.cfg.MaxSessions,
		ActiveSessions: int(p.active.Load()),
		OpenSessions:   int(p.open.Load()),
	}
}

// Close shuts the pool down: idle sessions are destroyed and pending
// Acquire calls fail with ErrClosed. Sessions still leased are destroyed
// when released.
func (p *Pool) Close() {
	p.closeOnce.Do(func() {
		p.stateMu.Lock()
		p.closed = true
		for {
			select {
			case h := <-p.idle:
				p.destroy(h)
			default:
				p.stateMu.Unlock()
				close(p.done)
				return
			}
		}
	})
}

func (p *Pool) create(ctx context.Context) (*handle, error) {
	sess, err := p.backend.OpenSession(ctx)
	if err != nil {
		return nil, err
	}
	p.open.Add(1)
	return &handle{sess: sess, created: time.Now()}, nil
}

func (p *Pool) destroy(h *handle) {
	if err := h.sess.Close(); err != nil {
		slog.Warn("session close failed", "error", err)
	}
	p.open.Add(-1)
	<-p.slots
}

func (p *Pool) release(h *handle, healthy bool) {
	p.active.Add(-1)
	h.recordOutcome(healthy)

	p.stateMu.Lock()
	closed := p.closed
	p.stateMu.Unlock()
	if closed {
		p.destroy(h)
		return
	}

	if h.shouldRetire(p.cfg.MaxUses, p.cfg.MaxAge) {
		h.mu.Lock()
		score, uses := h.errScore, h.useCount
		h.mu.Unlock()
		slog.Debug("retiring session",
			"errScore", score, "useCount", uses, "healthy", healthy)
		p.destroy(h)
		return
	}

	if err := h.sess.Reset(); err != nil {
		slog.Warn("session reset failed, destroying", "error", err)
		p.destroy(h)
		return
	}

	// Re-check under stateMu: a Close that ran since the first check has
	// already drained idle, and a handle parked now would never be reclaimed.
	p.stateMu.Lock()
	if p.closed {
		p.stateMu.Unlock()
		p.destroy(h)
		return
	}
	p.idle <- h
	p.stateMu.Unlock()
}
