// Package cache holds recently completed call results in memory so the
// orchestrator and API can read them without hitting the execution backends.
package cache

import (
	"context"
	"maps"
	"sync"
	"time"

	"hireline_backend/internal/calls/domain"
	"hireline_backend/platform/logger"
)

// Stats is a point-in-time snapshot of cache contents for the admin API.
type Stats struct {
	Entries        int            `json:"entries"`
	ByCompleteness map[string]int `json:"byCompleteness"`
	ByStatus       map[string]int `json:"byStatus"`
}

type entry struct {
	mu        sync.Mutex
	result    domain.CallResult
	expiresAt time.Time
}

// Cache is a TTL map of call results keyed by call ID. Mutations to a single
// entry are serialized on the entry's own lock so a completion notification
// and an enrichment merge for the same call cannot interleave. Expired
// entries are dropped lazily on read and swept periodically.
type Cache struct {
	mu      sync.RWMutex
	entries map[string]*entry
	ttl     time.Duration
	now     func() time.Time
}

// New creates a cache whose entries live for ttl after their last write.
func New(ttl time.Duration) *Cache {
	return &Cache{
		entries: make(map[string]*entry),
		ttl:     ttl,
		now:     time.Now,
	}
}

// lookup returns the live entry for callID, dropping it first if expired.
func (c *Cache) lookup(callID string) (*entry, bool) {
	c.mu.RLock()
	e, ok := c.entries[callID]
	c.mu.RUnlock()
	if !ok {
		return nil, false
	}
	if c.now().After(e.expiresAt) {
		c.mu.Lock()
		// Re-check under the write lock; a concurrent write may have renewed it.
		if cur, still := c.entries[callID]; still && cur == e && c.now().After(cur.expiresAt) {
			delete(c.entries, callID)
		}
		c.mu.Unlock()
		return nil, false
	}
	return e, true
}

// Get returns a copy of the cached result for callID.
func (c *Cache) Get(callID string) (domain.CallResult, bool) {
	e, ok := c.lookup(callID)
	if !ok {
		return domain.CallResult{}, false
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return clone(e.result), true
}

// Upsert applies mutate to the entry for callID, creating it when absent,
// and renews the TTL. The mutation runs under the entry lock. It returns a
// copy of the stored result.
func (c *Cache) Upsert(callID string, mutate func(r *domain.CallResult)) domain.CallResult {
	c.mu.Lock()
	e, ok := c.entries[callID]
	if ok && c.now().After(e.expiresAt) {
		// Expired but not yet swept: start fresh rather than merging into
		// stale data.
		delete(c.entries, callID)
		ok = false
	}
	if !ok {
		e = &entry{result: domain.CallResult{CallID: callID, Completeness: domain.CompletenessPartial}}
		c.entries[callID] = e
	}
	c.mu.Unlock()

	e.mu.Lock()
	defer e.mu.Unlock()
	mutate(&e.result)
	e.result.CallID = callID
	e.expiresAt = c.now().Add(c.ttl)
	return clone(e.result)
}

// Update applies mutate to an existing unexpired entry and renews the TTL.
// It reports false when the entry is gone, which callers treat as eviction.
func (c *Cache) Update(callID string, mutate func(r *domain.CallResult)) (domain.CallResult, bool) {
	e, ok := c.lookup(callID)
	if !ok {
		return domain.CallResult{}, false
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	mutate(&e.result)
	e.expiresAt = c.now().Add(c.ttl)
	return clone(e.result), true
}

// Delete removes a single entry.
func (c *Cache) Delete(callID string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.entries[callID]; !ok {
		return false
	}
	delete(c.entries, callID)
	return true
}

// Flush drops every entry and returns how many were removed.
func (c *Cache) Flush() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := len(c.entries)
	c.entries = make(map[string]*entry)
	return n
}

// Sweep removes expired entries and returns how many were dropped.
func (c *Cache) Sweep() int {
	now := c.now()
	c.mu.Lock()
	defer c.mu.Unlock()
	dropped := 0
	for id, e := range c.entries {
		if now.After(e.expiresAt) {
			delete(c.entries, id)
			dropped++
		}
	}
	return dropped
}

// Stats snapshots entry counts grouped by completeness and status.
func (c *Cache) Stats() Stats {
	now := c.now()
	c.mu.RLock()
	defer c.mu.RUnlock()
	s := Stats{
		ByCompleteness: make(map[string]int),
		ByStatus:       make(map[string]int),
	}
	for _, e := range c.entries {
		if now.After(e.expiresAt) {
			continue
		}
		e.mu.Lock()
		s.Entries++
		s.ByCompleteness[string(e.result.Completeness)]++
		s.ByStatus[string(e.result.Status)]++
		e.mu.Unlock()
	}
	return s
}

// RunSweeper sweeps the cache on the given interval until ctx is done.
func (c *Cache) RunSweeper(ctx context.Context, interval time.Duration, log *logger.Logger) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if dropped := c.Sweep(); dropped > 0 {
				log.Debug("cache sweep removed expired results", "dropped", dropped)
			}
		}
	}
}

// clone returns a copy safe to hand out while the entry keeps mutating.
func clone(r domain.CallResult) domain.CallResult {
	out := r
	if r.Analysis != nil {
		a := *r.Analysis
		if r.Analysis.StructuredData != nil {
			a.StructuredData = maps.Clone(r.Analysis.StructuredData)
		}
		out.Analysis = &a
	}
	if r.EnrichedAt != nil {
		ts := *r.EnrichedAt
		out.EnrichedAt = &ts
	}
	return out
}
