// Package cache provides read-through caches for assessments. Cache errors
// are never surfaced to callers: a failing cache behaves as a miss.
package cache

import (
	"context"
	"sync"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/imwg-risk-server/internal/domain"
)

// MemoryCache is an in-process LRU with per-entry expiry.
// It stores copies so callers can freely mutate what they get back.
type MemoryCache struct {
	mu      sync.Mutex
	lru     *expirable.LRU[string, *domain.Assessment]
	deleted *expirable.LRU[string, struct{}]
}

// NewMemoryCache creates a cache holding at most maxItems assessments for ttl.
// Deleted ids are remembered for the same ttl.
func NewMemoryCache(maxItems int, ttl time.Duration) *MemoryCache {
	if maxItems <= 0 {
		maxItems = 1000
	}
	return &MemoryCache{
		lru:     expirable.NewLRU[string, *domain.Assessment](maxItems, nil, ttl),
		deleted: expirable.NewLRU[string, struct{}](maxItems, nil, ttl),
	}
}

// Get returns a copy of the cached assessment.
func (c *MemoryCache) Get(_ context.Context, id string) (*domain.Assessment, bool) {
	a, ok := c.lru.Get(id)
	if !ok {
		return nil, false
	}
	return a.Clone(), true
}

// Set stores a copy of the assessment unless the cache already holds a newer
// version of it or the id was deleted.
func (c *MemoryCache) Set(_ context.Context, assessment *domain.Assessment) {
	if assessment == nil {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.deleted.Contains(assessment.ID) {
		return
	}
	if current, ok := c.lru.Peek(assessment.ID); ok && current.Version > assessment.Version {
		return
	}
	c.lru.Add(assessment.ID, assessment.Clone())
}

// Delete drops the entry for id and refuses later fills of it.
func (c *MemoryCache) Delete(_ context.Context, id string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.deleted.Add(id, struct{}{})
	c.lru.Remove(id)
}

// Len returns the number of live entries.
func (c *MemoryCache) Len() int {
	return c.lru.Len()
}

// NoopCache never stores anything.
type NoopCache struct{}

func (NoopCache) Get(context.Context, string) (*domain.Assessment, bool) { return nil, false }
func (NoopCache) Set(context.Context, *domain.Assessment) {}
func (NoopCache) Delete(context.Context, string) {}
