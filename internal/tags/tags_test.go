package tags

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/handihand/backend/internal/models"
)

type countingLister struct {
	calls int
	tags  []models.Tag
	fail  error
}

func (c *countingLister) List(context.Context) ([]models.Tag, error) {
	c.calls++
	if c.fail != nil {
		return nil, c.fail
	}
	return c.tags, nil
}

func TestCachingListerServesFromCache(t *testing.T) {
	base := &countingLister{tags: []models.Tag{{ID: 1, Word: "ceramics"}, {ID: 2, Word: "woodwork"}}}
	lister := NewCachingLister(base, time.Minute)
	ctx := context.Background()

	first, err := lister.List(ctx)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(first) != 2 {
		t.Fatalf("got %d tags, want 2", len(first))
	}

	if _, err := lister.List(ctx); err != nil {
		t.Fatalf("List: %v", err)
	}
	if base.calls != 1 {
		t.Fatalf("base queried %d times, want 1", base.calls)
	}

	// Mutating the returned slice must not poison the cache.
	first[0].Word = "mangled"
	again, err := lister.List(ctx)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if again[0].Word != "ceramics" {
		t.Fatalf("cache was mutated through a returned slice: %q", again[0].Word)
	}
}

func TestCachingListerReloadsAfterInvalidate(t *testing.T) {
	base := &countingLister{tags: []models.Tag{{ID: 1, Word: "ceramics"}}}
	lister := NewCachingLister(base, time.Minute)
	ctx := context.Background()

	if _, err := lister.List(ctx); err != nil {
		t.Fatalf("List: %v", err)
	}
	lister.Invalidate()
	if _, err := lister.List(ctx); err != nil {
		t.Fatalf("List: %v", err)
	}
	if base.calls != 2 {
		t.Fatalf("base queried %d times, want 2", base.calls)
	}
}

func TestCachingListerPropagatesErrors(t *testing.T) {
	base := &countingLister{fail: errors.New("db down")}
	lister := NewCachingLister(base, time.Minute)

	if _, err := lister.List(context.Background()); err == nil {
		t.Fatal("expected the lister error to propagate")
	}
}
