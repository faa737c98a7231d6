package cache

import (
	"context"
	"log"
	"strconv"
	"sync"
	"time"

	"geofeed/internal/model"
)

const (
	// DefaultCountTTL is how long a computed aggregate stays fresh
	DefaultCountTTL = 30 * time.Second

	// anonymousViewer is the viewer key used when no viewer is signed in
	anonymousViewer = "anon"
)

// Clock abstracts time retrieval so staleness checks are deterministic in tests.
type Clock interface {
	Now() time.Time
}

// RealClock returns the actual current time.
type RealClock struct{}

func (RealClock) Now() time.Time { return time.Now() }

// CountCache holds recently computed engagement aggregates.
// Entries are keyed by post and viewer because LikedByViewer depends on who
// is asking. Expired entries are ignored on read (lazy eviction).
type CountCache interface {
	// Get returns the cached aggregate, or found=false if absent or stale.
	Get(ctx context.Context, postID int64, viewerID *int64) (agg model.EngagementAggregate, found bool, err error)

	// Put stores an aggregate computed at now, replacing any previous entry.
	Put(ctx context.Context, postID int64, viewerID *int64, agg model.EngagementAggregate, now time.Time) error

	// Invalidate drops the entries of every viewer for a post.
	Invalidate(ctx context.Context, postID int64) error
}

// viewerKey returns the per-viewer key within a post's entries.
func viewerKey(viewerID *int64) string {
	if viewerID == nil {
		return anonymousViewer
	}
	return strconv.FormatInt(*viewerID, 10)
}

// isStale reports whether an entry computed at computedAt is past its TTL.
func isStale(now, computedAt time.Time, ttl time.Duration) bool {
	return now.Sub(computedAt) > ttl
}

// MemoryCountCache is an in-process CountCache guarded by a mutex.
type MemoryCountCache struct {
	mu      sync.Mutex
	ttl     time.Duration
	clock   Clock
	entries map[int64]map[string]model.CountEntry
}

// NewMemoryCountCache creates an in-process cache. A nil clock uses RealClock.
func NewMemoryCountCache(ttl time.Duration, clock Clock) *MemoryCountCache {
	if ttl <= 0 {
		ttl = DefaultCountTTL
	}
	if clock == nil {
		clock = RealClock{}
	}
	return &MemoryCountCache{
		ttl:     ttl,
		clock:   clock,
		entries: make(map[int64]map[string]model.CountEntry),
	}
}

// Get returns a fresh entry. Stale entries are deleted as they are found.
func (c *MemoryCountCache) Get(_ context.Context, postID int64, viewerID *int64) (model.EngagementAggregate, bool, error) {
	key := viewerKey(viewerID)

	c.mu.Lock()
	defer c.mu.Unlock()

	byViewer, ok := c.entries[postID]
	if !ok {
		return model.EngagementAggregate{}, false, nil
	}
	entry, ok := byViewer[key]
	if !ok {
		return model.EngagementAggregate{}, false, nil
	}

	if isStale(c.clock.Now(), entry.ComputedAt, c.ttl) {
		delete(byViewer, key)
		if len(byViewer) == 0 {
			delete(c.entries, postID)
		}
		return model.EngagementAggregate{}, false, nil
	}
	return entry.Aggregate, true, nil
}

// Put stores or replaces an entry.
func (c *MemoryCountCache) Put(_ context.Context, postID int64, viewerID *int64, agg model.EngagementAggregate, now time.Time) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	byViewer, ok := c.entries[postID]
	if !ok {
		byViewer = make(map[string]model.CountEntry)
		c.entries[postID] = byViewer
	}
	byViewer[viewerKey(viewerID)] = model.CountEntry{Aggregate: agg, ComputedAt: now}
	return nil
}

// Invalidate removes all entries for a post.
func (c *MemoryCountCache) Invalidate(_ context.Context, postID int64) error {
	c.mu.Lock()
	removed := len(c.entries[postID])
	delete(c.entries, postID)
	c.mu.Unlock()

	log.Printf("[CountCache] Invalidate OK: post=%d removed=%d", postID, removed)
	return nil
}

// Len returns the number of cached (post, viewer) entries, stale ones included.
func (c *MemoryCountCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	n := 0
	for _, byViewer := range c.entries {
		n += len(byViewer)
	}
	return n
}
