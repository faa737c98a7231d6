package feed

import (
	"context"
	"log"
	"sync"
	"time"

	"geofeed/internal/model"
)

const (
	// DefaultViewportDebounce is the quiet period a viewport must hold before it is fetched
	DefaultViewportDebounce = 500 * time.Millisecond

	// DefaultViewportFetchTimeout bounds a single viewport fetch
	DefaultViewportFetchTimeout = 10 * time.Second
)

// ViewportState is the coordinator's position in its state machine.
type ViewportState int

const (
	ViewportIdle ViewportState = iota
	ViewportPendingSettle
	ViewportFetching
)

func (s ViewportState) String() string {
	switch s {
	case ViewportIdle:
		return "idle"
	case ViewportPendingSettle:
		return "pending_settle"
	case ViewportFetching:
		return "fetching"
	default:
		return "unknown"
	}
}

// ViewportFetchFunc loads and annotates the posts inside a viewport.
type ViewportFetchFunc func(ctx context.Context, req model.ViewportRequest) ([]model.FeedPost, error)

// viewportCall is one viewport-change signal and the caller waiting on it.
type viewportCall struct {
	ctx  context.Context
	req  model.ViewportRequest
	key  string
	gen  uint64
	done chan struct{}

	// followers are identical requests that settled while this call was in flight
	followers []*viewportCall

	items []model.FeedPost
	err   error
}

func (c *viewportCall) finish(items []model.FeedPost, err error) {
	c.items, c.err = items, err
	close(c.done)
}

// ViewportCoordinator debounces viewport changes for one map view, suppresses
// duplicate fetches and discards responses that were superseded while in flight.
//
// Every fetch carries a generation number. A response is applied only if its
// generation is still the latest one issued and no different viewport is
// waiting to settle.
type ViewportCoordinator struct {
	debounce     time.Duration
	fetchTimeout time.Duration
	fetch        ViewportFetchFunc

	mu         sync.Mutex
	state      ViewportState
	timer      *time.Timer
	pending    *viewportCall
	inflight   *viewportCall
	generation uint64
	lastIssued string
	lastResult []model.FeedPost
	fetches    int
	closed     bool
}

// NewViewportCoordinator creates an idle coordinator.
func NewViewportCoordinator(debounce time.Duration, fetch ViewportFetchFunc) *ViewportCoordinator {
	if debounce < 0 {
		debounce = DefaultViewportDebounce
	}
	return &ViewportCoordinator{
		debounce:     debounce,
		fetchTimeout: DefaultViewportFetchTimeout,
		fetch:        fetch,
	}
}

// Request signals a viewport change and waits for its outcome.
//
// It returns ErrViewportSuperseded when a newer signal replaces this one
// before it settles or while its fetch is in flight. An identical viewport to
// the last issued one is answered without a new fetch. The returned slice may
// be shared with other callers and must not be modified.
func (c *ViewportCoordinator) Request(ctx context.Context, req model.ViewportRequest) ([]model.FeedPost, error) {
	call := &viewportCall{
		ctx:  ctx,
		req:  req,
		key:  req.Canonical(),
		done: make(chan struct{}),
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil, ErrViewportSuperseded
	}
	if c.pending != nil {
		c.pending.finish(nil, ErrViewportSuperseded)
	}
	c.pending = call
	c.state = ViewportPendingSettle
	if c.timer != nil {
		c.timer.Stop()
	}
	c.timer = time.AfterFunc(c.debounce, func() { c.settle(call) })
	c.mu.Unlock()

	select {
	case <-call.done:
		return call.items, call.err
	case <-ctx.Done():
		c.mu.Lock()
		if c.pending == call {
			c.pending = nil
			c.timer.Stop()
			c.updateStateLocked()
		}
		c.mu.Unlock()
		return nil, ctx.Err()
	}
}

// settle runs when call's debounce timer elapses uninterrupted.
func (c *ViewportCoordinator) settle(call *viewportCall) {
	c.mu.Lock()
	if c.pending != call {
		// Replaced or cancelled after the timer fired
		c.mu.Unlock()
		return
	}
	c.pending = nil

	if call.key == c.lastIssued {
		if c.inflight != nil {
			c.inflight.followers = append(c.inflight.followers, call)
			c.state = ViewportFetching
			c.mu.Unlock()
			log.Printf("[Viewport] Duplicate joined in-flight fetch: key=%s", call.key)
			return
		}
		items := c.lastResult
		c.state = ViewportIdle
		c.mu.Unlock()
		log.Printf("[Viewport] Duplicate suppressed: key=%s", call.key)
		call.finish(items, nil)
		return
	}

	c.generation++
	call.gen = c.generation
	c.lastIssued = call.key
	c.inflight = call
	c.fetches++
	c.state = ViewportFetching
	c.mu.Unlock()

	log.Printf("[Viewport] Fetch issued: key=%s generation=%d", call.key, call.gen)
	go c.run(call)
}

// run performs the fetch outside the lock. The fetch is detached from the
// caller's cancellation so a completed result can still serve followers.
func (c *ViewportCoordinator) run(call *viewportCall) {
	startTime := time.Now()

	ctx, cancel := context.WithTimeout(context.WithoutCancel(call.ctx), c.fetchTimeout)
	items, err := c.fetch(ctx, call.req)
	cancel()

	c.complete(call, items, err, time.Since(startTime))
}

// complete applies or discards the result of call's fetch.
func (c *ViewportCoordinator) complete(call *viewportCall, items []model.FeedPost, err error, took time.Duration) {
	c.mu.Lock()
	waiters := append([]*viewportCall{call}, call.followers...)
	if c.inflight == call {
		c.inflight = nil
	}

	stale := call.gen != c.generation || (c.pending != nil && c.pending.key != call.key)
	if stale {
		if call.gen == c.generation {
			// Nothing newer was issued yet; forget the discarded viewport so
			// it is fetched again if requested.
			c.lastIssued = ""
		}
		c.updateStateLocked()
		c.mu.Unlock()

		log.Printf("[Viewport] Stale response discarded: key=%s generation=%d duration=%v", call.key, call.gen, took)
		for _, w := range waiters {
			w.finish(nil, ErrViewportSuperseded)
		}
		return
	}

	if err != nil {
		c.lastIssued = ""
		c.lastResult = nil
	} else {
		c.lastResult = items
	}
	c.updateStateLocked()
	c.mu.Unlock()

	if err != nil {
		log.Printf("[Viewport] Fetch FAILED: key=%s generation=%d err=%v", call.key, call.gen, err)
	} else {
		log.Printf("[Viewport] Fetch OK: key=%s generation=%d items=%d waiters=%d duration=%v",
			call.key, call.gen, len(items), len(waiters), took)
	}
	for _, w := range waiters {
		w.finish(items, err)
	}
}

func (c *ViewportCoordinator) updateStateLocked() {
	switch {
	case c.pending != nil:
		c.state = ViewportPendingSettle
	case c.inflight != nil:
		c.state = ViewportFetching
	default:
		c.state = ViewportIdle
	}
}

// State returns the current state.
func (c *ViewportCoordinator) State() ViewportState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Fetches returns how many fetches have been issued.
func (c *ViewportCoordinator) Fetches() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.fetches
}

// Close releases a pending signal. An in-flight fetch still completes and
// answers its waiters.
func (c *ViewportCoordinator) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.closed = true
	if c.timer != nil {
		c.timer.Stop()
	}
	if c.pending != nil {
		c.pending.finish(nil, ErrViewportSuperseded)
		c.pending = nil
	}
	c.updateStateLocked()
}
