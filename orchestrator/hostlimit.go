package orchestrator

import (
	"context"
	"sync"

	"golang.org/x/time/rate"
)

// hostLimiter enforces a polite per-host request rate across all jobs.
type hostLimiter struct {
	mu       sync.Mutex
	limiters map[string]*rate.Limiter
	rps      rate.Limit
	burst    int
}

func newHostLimiter(rps float64, burst int) *hostLimiter {
	return &hostLimiter{
		limiters: make(map[string]*rate.Limiter),
		rps:      rate.Limit(rps),
		burst:    burst,
	}
}

// wait blocks until the host's limiter grants a token or ctx is done.
func (h *hostLimiter) wait(ctx context.Context, host string) error {
	h.mu.Lock()
	lim, ok := h.limiters[host]
	if !ok {
		lim = rate.NewLimiter(h.rps, h.burst)
		h.limiters[host] = lim
	}
	h.mu.Unlock()

	return lim.Wait(ctx)
}
