package feed

import (
	"context"
	"log"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"geofeed/internal/model"
)

const (
	// DefaultFetchConcurrency is the number of chunk fetches per wave
	DefaultFetchConcurrency = 3

	// DefaultInterWaveDelay is the pause between two waves
	DefaultInterWaveDelay = 100 * time.Millisecond
)

// ChunkFetcher fetches the engagement edges for one chunk of post ids.
type ChunkFetcher func(ctx context.Context, chunk []int64) ([]model.EngagementEdge, error)

// FetchResult is the merged output of a paced fetch.
type FetchResult struct {
	Edges        []model.EngagementEdge
	Waves        int
	FailedChunks int
}

// Scheduler issues chunk fetches in bounded-concurrency waves. Wave N+1 is
// never dispatched before every fetch of wave N has returned, and
// InterWaveDelay is awaited before each wave except the first.
type Scheduler struct {
	Concurrency    int
	InterWaveDelay time.Duration

	// sleep is swapped in tests to observe pacing without waiting.
	sleep func(ctx context.Context, d time.Duration) error
}

// NewScheduler returns a Scheduler, substituting defaults for non-positive values.
func NewScheduler(concurrency int, interWaveDelay time.Duration) *Scheduler {
	if concurrency <= 0 {
		concurrency = DefaultFetchConcurrency
	}
	if interWaveDelay < 0 {
		interWaveDelay = 0
	}
	return &Scheduler{
		Concurrency:    concurrency,
		InterWaveDelay: interWaveDelay,
		sleep:          sleepContext,
	}
}

// Fetch runs fetch for every chunk and merges the returned edges.
// A failed chunk is logged and contributes no edges. The only error returned
// is the context error when ctx is cancelled between waves; the result
// gathered so far is returned alongside it.
func (s *Scheduler) Fetch(ctx context.Context, chunks [][]int64, fetch ChunkFetcher) (FetchResult, error) {
	var result FetchResult
	if len(chunks) == 0 {
		return result, nil
	}

	startTime := time.Now()
	concurrency := max(s.Concurrency, 1)
	sleep := s.sleep
	if sleep == nil {
		sleep = sleepContext
	}

	for start := 0; start < len(chunks); start += concurrency {
		if start > 0 && s.InterWaveDelay > 0 {
			if err := sleep(ctx, s.InterWaveDelay); err != nil {
				log.Printf("[Scheduler] Fetch interrupted: waves=%d/%d err=%v",
					result.Waves, wavesFor(len(chunks), concurrency), err)
				return result, err
			}
		}

		wave := chunks[start:min(start+concurrency, len(chunks))]
		waveIndex := result.Waves
		result.Waves++

		edges, failed := s.runWave(ctx, waveIndex, wave, fetch)
		result.Edges = append(result.Edges, edges...)
		result.FailedChunks += failed
	}

	log.Printf("[Scheduler] Fetch OK: chunks=%d waves=%d failed=%d edges=%d duration=%v",
		len(chunks), result.Waves, result.FailedChunks, len(result.Edges), time.Since(startTime))
	return result, nil
}

// runWave fetches every chunk of one wave concurrently and waits for all of them.
func (s *Scheduler) runWave(ctx context.Context, waveIndex int, wave [][]int64, fetch ChunkFetcher) ([]model.EngagementEdge, int) {
	results := make([][]model.EngagementEdge, len(wave))

	var mu sync.Mutex
	failed := 0

	var g errgroup.Group
	for i, chunk := range wave {
		i, chunk := i, chunk
		g.Go(func() error {
			edges, err := fetch(ctx, chunk)
			if err != nil {
				ferr := &FetchError{Wave: waveIndex, ChunkSize: len(chunk), Err: err}
				log.Printf("[Scheduler] Chunk FAILED (treated as empty): %v", ferr)
				mu.Lock()
				failed++
				mu.Unlock()
				return nil
			}
			results[i] = edges
			return nil
		})
	}
	// Chunk failures are absorbed above, so Wait only acts as the wave barrier.
	_ = g.Wait()

	total := 0
	for _, r := range results {
		total += len(r)
	}
	merged := make([]model.EngagementEdge, 0, total)
	for _, r := range results {
		merged = append(merged, r...)
	}
	return merged, failed
}

func wavesFor(chunks, concurrency int) int {
	return (chunks + concurrency - 1) / concurrency
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
