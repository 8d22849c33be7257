// Package cache keeps recently extracted entities in memory, keyed by the
// canonical form of the page URL. Entries past their TTL are kept around
// until pruned so callers that opt in can still be served stale data.
package cache

import (
	"sync"
	"time"

	"github.com/use-agent/storesleuth/models"
)

// Status values reported to API clients.
const (
	StatusHit   = "hit"
	StatusStale = "stale"
	StatusMiss  = "miss"
)

type entry struct {
	product   *models.ProductEntity
	createdAt time.Time
}

// Cache is an in-memory TTL cache of extracted entities.
// Safe for concurrent use.
type Cache struct {
	mu          sync.RWMutex
	store       map[string]*entry
	ttl         time.Duration
	maxEntries  int
	stripParams []string
	done        chan struct{}
	closeOnce   sync.Once
}

// New creates a Cache and starts a background pruner that evicts entries
// older than twice the TTL (expired-but-recent entries stay eligible for
// stale reads).
func New(ttl time.Duration, maxEntries int, stripParams []string) *Cache {
	c := &Cache{
		store:       make(map[string]*entry),
		ttl:         ttl,
		maxEntries:  maxEntries,
		stripParams: stripParams,
		done:        make(chan struct{}),
	}
	go c.cleanupLoop()
	return c
}

// Get looks up url (canonicalized internally) and returns the entity with a
// status. maxAge overrides the default TTL when > 0; allowStale permits
// returning an expired entry flagged StatusStale. A nil entity always comes
// with StatusMiss.
func (c *Cache) Get(url string, maxAge time.Duration, allowStale bool) (*models.ProductEntity, string) {
	key := Canonicalize(url, c.stripParams)

	c.mu.RLock()
	e, ok := c.store[key]
	c.mu.RUnlock()

	if !ok {
		return nil, StatusMiss
	}

	ttl := c.ttl
	if maxAge > 0 {
		ttl = maxAge
	}

	age := time.Since(e.createdAt)
	if age <= ttl {
		return e.product, StatusHit
	}
	if allowStale {
		return e.product, StatusStale
	}
	return nil, StatusMiss
}

// Put stores an entity under the canonical form of url. At capacity one
// arbitrary entry is evicted (map iteration order is random).
func (c *Cache) Put(url string, product *models.ProductEntity) {
	key := Canonicalize(url, c.stripParams)

	c.mu.Lock()
	defer c.mu.Unlock()

	if _, exists := c.store[key]; !exists && len(c.store) >= c.maxEntries {
		for k := range c.store {
			delete(c.store, k)
			break
		}
	}

	c.store[key] = &entry{product: product, createdAt: time.Now()}
}

// Invalidate drops the entry for url. Returns whether an entry existed.
func (c *Cache) Invalidate(url string) bool {
	key := Canonicalize(url, c.stripParams)

	c.mu.Lock()
	defer c.mu.Unlock()
	_, existed := c.store[key]
	delete(c.store, key)
	return existed
}

// Len reports the number of stored entries.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.store)
}

// Close stops the background pruner.
func (c *Cache) Close() {
	c.closeOnce.Do(func() { close(c.done) })
}

func (c *Cache) cleanupLoop() {
	ticker := time.NewTicker(5 * time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-c.done:
			return
		case <-ticker.C:
			cutoff := time.Now().Add(-2 * c.ttl)
			c.mu.Lock()
			for k, e := range c.store {
				if e.createdAt.Before(cutoff) {
					delete(c.store, k)
				}
			}
			c.mu.Unlock()
		}
	}
}
