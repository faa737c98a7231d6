package feed

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"geofeed/internal/model"
)

// recordingSleep counts pacing delays without waiting.
type recordingSleep struct {
	mu     sync.Mutex
	delays []time.Duration
}

func (r *recordingSleep) sleep(ctx context.Context, d time.Duration) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.delays = append(r.delays, d)
	return ctx.Err()
}

func likeEdges(chunk []int64) []model.EngagementEdge {
	edges := make([]model.EngagementEdge, len(chunk))
	for i, id := range chunk {
		edges[i] = model.EngagementEdge{PostID: id, ActorID: 1, Kind: model.EdgeLike}
	}
	return edges
}

func TestScheduler_WavesAndPacing(t *testing.T) {
	rec := &recordingSleep{}
	s := NewScheduler(3, 100*time.Millisecond)
	s.sleep = rec.sleep

	chunks := make([][]int64, 7)
	for i := range chunks {
		chunks[i] = []int64{int64(i)}
	}

	result, err := s.Fetch(context.Background(), chunks, func(ctx context.Context, chunk []int64) ([]model.EngagementEdge, error) {
		return likeEdges(chunk), nil
	})
	if err != nil {
		t.Fatalf("Fetch failed: %v", err)
	}

	if result.Waves != 3 {
		t.Errorf("Waves = %d, want 3", result.Waves)
	}
	if len(result.Edges) != 7 {
		t.Errorf("Edges = %d, want 7", len(result.Edges))
	}
	if len(rec.delays) != 2 {
		t.Errorf("delay awaited %d times, want 2", len(rec.delays))
	}
	for _, d := range rec.delays {
		if d != 100*time.Millisecond {
			t.Errorf("delay = %v, want 100ms", d)
		}
	}
}

func TestScheduler_WaveBarrier(t *testing.T) {
	s := NewScheduler(2, 0)

	var inFlight, maxInFlight atomic.Int32
	var mu sync.Mutex
	var finished []int64

	chunks := [][]int64{{1}, {2}, {3}, {4}, {5}}
	_, err := s.Fetch(context.Background(), chunks, func(ctx context.Context, chunk []int64) ([]model.EngagementEdge, error) {
		n := inFlight.Add(1)
		for {
			m := maxInFlight.Load()
			if n <= m || maxInFlight.CompareAndSwap(m, n) {
				break
			}
		}

		// The first chunk of each wave is slow; a later wave must still wait for it
		if chunk[0]%2 == 1 {
			time.Sleep(20 * time.Millisecond)
		}

		mu.Lock()
		finished = append(finished, chunk[0])
		mu.Unlock()
		inFlight.Add(-1)
		return nil, nil
	})
	if err != nil {
		t.Fatalf("Fetch failed: %v", err)
	}

	if got := maxInFlight.Load(); got > 2 {
		t.Errorf("max concurrent fetches = %d, want <= 2", got)
	}

	// Every id of wave k finishes before any id of wave k+1
	waveOf := func(id int64) int { return int(id-1) / 2 }
	for i := 1; i < len(finished); i++ {
		if waveOf(finished[i]) < waveOf(finished[i-1]) {
			t.Fatalf("completion order %v crosses a wave barrier", finished)
		}
	}
}

func TestScheduler_FailedChunkIsAbsorbed(t *testing.T) {
	s := NewScheduler(3, 0)

	chunks := [][]int64{{1, 2}, {3, 4}, {5}}
	result, err := s.Fetch(context.Background(), chunks, func(ctx context.Context, chunk []int64) ([]model.EngagementEdge, error) {
		if chunk[0] == 3 {
			return nil, errors.New("connection reset")
		}
		return likeEdges(chunk), nil
	})
	if err != nil {
		t.Fatalf("Fetch should not fail on a chunk error: %v", err)
	}

	if result.FailedChunks != 1 {
		t.Errorf("FailedChunks = %d, want 1", result.FailedChunks)
	}
	if len(result.Edges) != 3 {
		t.Errorf("Edges = %d, want 3", len(result.Edges))
	}
	for _, e := range result.Edges {
		if e.PostID == 3 || e.PostID == 4 {
			t.Errorf("edge for failed chunk post %d should be absent", e.PostID)
		}
	}
}

func TestScheduler_CancelBetweenWaves(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	s := NewScheduler(1, 10*time.Millisecond)

	calls := 0
	chunks := [][]int64{{1}, {2}, {3}}
	result, err := s.Fetch(ctx, chunks, func(ctx context.Context, chunk []int64) ([]model.EngagementEdge, error) {
		calls++
		cancel()
		return likeEdges(chunk), nil
	})

	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if calls != 1 {
		t.Errorf("fetch called %d times, want 1", calls)
	}
	if result.Waves != 1 || len(result.Edges) != 1 {
		t.Errorf("partial result = %+v, want 1 wave with 1 edge", result)
	}
}

func TestScheduler_NoChunks(t *testing.T) {
	s := NewScheduler(3, time.Second)

	result, err := s.Fetch(context.Background(), nil, func(ctx context.Context, chunk []int64) ([]model.EngagementEdge, error) {
		t.Fatal("fetch should not be called")
		return nil, nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Waves != 0 {
		t.Errorf("Waves = %d, want 0", result.Waves)
	}
}

func TestNewScheduler_Defaults(t *testing.T) {
	s := NewScheduler(0, -time.Second)
	if s.Concurrency != DefaultFetchConcurrency {
		t.Errorf("Concurrency = %d, want %d", s.Concurrency, DefaultFetchConcurrency)
	}
	if s.InterWaveDelay != 0 {
		t.Errorf("InterWaveDelay = %v, want 0", s.InterWaveDelay)
	}
}
