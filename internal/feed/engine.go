package feed

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"geofeed/internal/cache"
	"geofeed/internal/model"
)

// EdgeFetcher is the Count Store client: it returns the like and comment
// edges for a set of post ids in one request.
type EdgeFetcher interface {
	FetchEdges(ctx context.Context, postIDs []int64) ([]model.EngagementEdge, error)
}

// EngineConfig holds the tuning of the aggregation pipeline.
type EngineConfig struct {
	Batch          BatchConstraints
	Concurrency    int
	InterWaveDelay time.Duration
}

// Engine turns posts into annotated feed posts: it plans id chunks, fetches
// their edges in paced waves and reduces them into aggregates.
type Engine struct {
	edges     EdgeFetcher
	counts    cache.CountCache
	clock     cache.Clock
	batch     BatchConstraints
	scheduler *Scheduler
}

// NewEngine wires the pipeline around an injected count cache.
// A nil clock uses cache.RealClock.
func NewEngine(edges EdgeFetcher, counts cache.CountCache, cfg EngineConfig, clock cache.Clock) *Engine {
	if clock == nil {
		clock = cache.RealClock{}
	}
	return &Engine{
		edges:     edges,
		counts:    counts,
		clock:     clock,
		batch:     cfg.Batch,
		scheduler: NewScheduler(cfg.Concurrency, cfg.InterWaveDelay),
	}
}

// Annotate computes fresh aggregates for posts on behalf of viewerID (nil for
// anonymous). It never consults the count cache. Failed chunks lower the
// counts of their posts rather than failing the call; an error is only
// returned when ctx is cancelled.
func (e *Engine) Annotate(ctx context.Context, posts []model.Post, viewerID *int64) ([]model.FeedPost, error) {
	if len(posts) == 0 {
		return []model.FeedPost{}, nil
	}

	ids := make([]int64, len(posts))
	for i, p := range posts {
		ids[i] = p.ID
	}

	result, err := e.fetchEdges(ctx, ids)
	if err != nil {
		return nil, err
	}

	aggregates := Aggregate(posts, result.Edges, viewerID)
	return Annotate(posts, aggregates), nil
}

// RefreshCounts returns the aggregate for a single post, serving it from the
// count cache when a fresh entry exists. A recomputed value is stored unless
// its fetch failed, so an understated count is never cached.
func (e *Engine) RefreshCounts(ctx context.Context, postID int64, viewerID *int64) (model.EngagementAggregate, error) {
	agg, found, err := e.counts.Get(ctx, postID, viewerID)
	if err != nil {
		// Continue without cache - recompute below
		log.Printf("[Engine] Cache read failed for post=%d: %v", postID, err)
	}
	if found {
		return agg, nil
	}

	result, err := e.fetchEdges(ctx, []int64{postID})
	if err != nil {
		return model.EngagementAggregate{}, err
	}

	aggregates := Aggregate([]model.Post{{ID: postID}}, result.Edges, viewerID)
	agg = aggregates[postID]

	if result.FailedChunks > 0 {
		log.Printf("[Engine] RefreshCounts degraded: post=%d (not cached)", postID)
		return agg, nil
	}

	if err := e.counts.Put(ctx, postID, viewerID, agg, e.clock.Now()); err != nil {
		log.Printf("[Engine] Cache write failed for post=%d: %v", postID, err)
	}
	return agg, nil
}

// Invalidate drops every cached aggregate for a post. Callers invoke it
// after writes that change the post's engagement.
func (e *Engine) Invalidate(ctx context.Context, postID int64) error {
	if err := e.counts.Invalidate(ctx, postID); err != nil {
		return fmt.Errorf("invalidate counts: %w", err)
	}
	return nil
}

// fetchEdges plans the chunks and runs them through the paced scheduler.
func (e *Engine) fetchEdges(ctx context.Context, ids []int64) (FetchResult, error) {
	chunks, err := Plan(ids, e.batch)
	if err != nil {
		var cfgErr *ConfigurationError
		if !errors.As(err, &cfgErr) {
			return FetchResult{}, err
		}
		log.Printf("[Engine] %v; falling back to default constraints", cfgErr)
		chunks, err = Plan(ids, DefaultBatchConstraints())
		if err != nil {
			return FetchResult{}, err
		}
	}

	result, err := e.scheduler.Fetch(ctx, chunks, e.edges.FetchEdges)
	if err != nil {
		return result, fmt.Errorf("fetch edges: %w", err)
	}
	return result, nil
}
