// Package tags serves the read-only tag vocabulary with a TTL cache in
// front of the database, since the set changes only by operator action.
package tags

import (
	"context"
	"sync"
	"time"

	"github.com/handihand/backend/internal/models"
)

// Lister loads the full tag vocabulary.
type Lister interface {
	List(ctx context.Context) ([]models.Tag, error)
}

// CachingLister wraps a Lister with a TTL-based in-memory cache.
type CachingLister struct {
	base Lister
	ttl  time.Duration

	mu      sync.RWMutex
	cached  []models.Tag
	expires time.Time
}

// NewCachingLister returns a Lister that caches the vocabulary for the
// provided TTL.
func NewCachingLister(base Lister, ttl time.Duration) *CachingLister {
	if ttl <= 0 {
		ttl = time.Minute
	}
	return &CachingLister{base: base, ttl: ttl}
}

// List returns the cached vocabulary when fresh, otherwise it reloads from
// the underlying lister. Callers receive a copy they may mutate freely.
func (c *CachingLister) List(ctx context.Context) ([]models.Tag, error) {
	now := time.Now()

	c.mu.RLock()
	cached, expires := c.cached, c.expires
	c.mu.RUnlock()
	if cached != nil && now.Before(expires) {
		return copyTags(cached), nil
	}

	tags, err := c.base.List(ctx)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	c.cached = tags
	c.expires = now.Add(c.ttl)
	c.mu.Unlock()

	return copyTags(tags), nil
}

// Invalidate drops the cached vocabulary, forcing the next List to reload.
func (c *CachingLister) Invalidate() {
	c.mu.Lock()
	c.cached = nil
	c.mu.Unlock()
}

func copyTags(tags []models.Tag) []models.Tag {
	out := make([]models.Tag, len(tags))
	copy(out, tags)
	return out
}
