package fetcher

import (
	"sync"
	"time"
)

// hostEntry stores the fetch method that worked for a host, with a TTL.
type hostEntry struct {
	method    string
	expiresAt time.Time
}

// HostMemory remembers which fetch path ("http" or "browser") last worked
// for each host, so repeat extractions skip the probe-and-promote dance.
// Entries expire after the configured TTL and are pruned periodically.
type HostMemory struct {
	store sync.Map // host (string) -> *hostEntry
	ttl   time.Duration
	done  chan struct{}
}

// NewHostMemory creates a HostMemory with the given TTL and starts a
// background goroutine that prunes expired entries every hour.
func NewHostMemory(ttl time.Duration) *HostMemory {
	hm := &HostMemory{
		ttl:  ttl,
		done: make(chan struct{}),
	}
	go hm.cleanupLoop()
	return hm
}

// Get returns the remembered fetch method for a host, or "" if not found /
// expired.
func (hm *HostMemory) Get(host string) string {
	val, ok := hm.store.Load(host)
	if !ok {
		return ""
	}
	entry := val.(*hostEntry)
	if time.Now().After(entry.expiresAt) {
		hm.store.Delete(host)
		return ""
	}
	return entry.method
}

// Set records which fetch method succeeded for a host.
func (hm *HostMemory) Set(host, method string) {
	hm.store.Store(host, &hostEntry{
		method:    method,
		expiresAt: time.Now().Add(hm.ttl),
	})
}

// Delete removes the memory for a host (e.g. after the remembered method fails).
func (hm *HostMemory) Delete(host string) {
	hm.store.Delete(host)
}

// Stop terminates the background cleanup goroutine.
func (hm *HostMemory) Stop() {
	close(hm.done)
}

// cleanupLoop runs every hour, deleting expired entries.
func (hm *HostMemory) cleanupLoop() {
	ticker := time.NewTicker(1 * time.Hour)
	defer ticker.Stop()
	for {
		select {
		case <-hm.done:
			return
		case <-ticker.C:
			now := time.Now()
			hm.store.Range(func(key, value any) bool {
				if now.After(value.(*hostEntry).expiresAt) {
					hm.store.Delete(key)
				}
				return true
			})
		}
	}
}
