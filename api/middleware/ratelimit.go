package middleware

import (
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/use-agent/storesleuth/config"
	"github.com/use-agent/storesleuth/models"
	"golang.org/x/time/rate"
)

// limiterIdleTTL is how long an identity may stay quiet before its bucket is
// forgotten; limiterSweepEvery is how often the sweep runs.
const (
	limiterIdleTTL    = time.Hour
	limiterSweepEvery = 5 * time.Minute
)

// clientLimiters hands out one token bucket per caller identity and forgets
// identities that have gone quiet, so a churn of one-off callers cannot grow
// the map without bound.
type clientLimiters struct {
	mu      sync.Mutex
	buckets map[string]*clientBucket
	rps     rate.Limit
	burst   int
}

type clientBucket struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

func newClientLimiters(cfg config.RateLimitConfig) *clientLimiters {
	l := &clientLimiters{
		buckets: make(map[string]*clientBucket),
		rps:     rate.Limit(cfg.RequestsPerSecond),
		burst:   cfg.Burst,
	}
	go l.sweep()
	return l
}

func (l *clientLimiters) allow(identity string) bool {
	l.mu.Lock()
	b, ok := l.buckets[identity]
	if !ok {
		b = &clientBucket{limiter: rate.NewLimiter(l.rps, l.burst)}
		l.buckets[identity] = b
	}
	b.lastSeen = time.Now()
	l.mu.Unlock()
	return b.limiter.Allow()
}

func (l *clientLimiters) sweep() {
	ticker := time.NewTicker(limiterSweepEvery)
	defer ticker.Stop()
	for range ticker.C {
		cutoff := time.Now().Add(-limiterIdleTTL)
		l.mu.Lock()
		for id, b := range l.buckets {
			if b.lastSeen.Before(cutoff) {
				delete(l.buckets, id)
			}
		}
		l.mu.Unlock()
	}
}

// RateLimit throttles per caller: the API key when auth is on, the client IP
// otherwise. Scraping clients tend to arrive in bursts, so each bucket allows
// a burst up front and then settles to the sustained rate.
func RateLimit(cfg config.RateLimitConfig) gin.HandlerFunc {
	limiters := newClientLimiters(cfg)

	return func(c *gin.Context) {
		identity := c.ClientIP()
		if key, ok := c.Get("api_key"); ok {
			identity = key.(string)
		}

		if !limiters.allow(identity) {
			c.AbortWithStatusJSON(http.StatusTooManyRequests, models.ExtractResponse{
				Success: false,
				Error: &models.ErrorDetail{
					Kind:    models.ErrKindRateLimited,
					Message: "rate limit exceeded, please slow down",
				},
			})
			return
		}

		c.Next()
	}
}
