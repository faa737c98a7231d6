package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"geofeed/internal/feed"
	"geofeed/internal/model"
)

func newTestFeedService(t *testing.T, repo *mockPostRepository, engine *mockEngine) *FeedService {
	t.Helper()
	s, err := NewFeedService(engine, repo, FeedConfig{
		PageSize:         10,
		ViewportDebounce: 5 * time.Millisecond,
		ViewportMaxItems: 50,
		SessionCacheSize: 16,
	})
	if err != nil {
		t.Fatalf("NewFeedService failed: %v", err)
	}
	return s
}

// pagedRepo returns a listRecentFn serving total posts.
func pagedRepo(total int) func(ctx context.Context, offset, limit int) ([]model.Post, error) {
	return func(ctx context.Context, offset, limit int) ([]model.Post, error) {
		n := min(limit, max(total-offset, 0))
		return makePosts(offset, n), nil
	}
}

// =============================================================================
// LOAD PAGE TESTS
// =============================================================================

func TestFeedService_LoadPage_SessionAdvances(t *testing.T) {
	repo := &mockPostRepository{listRecentFn: pagedRepo(24)}
	s := newTestFeedService(t, repo, &mockEngine{})
	ctx := context.Background()

	var sizes []int
	for i := 0; i < 3; i++ {
		page, err := s.LoadPage(ctx, "sess-1", model.FeedModeList, model.FeedFilter{}, nil, false)
		if err != nil {
			t.Fatalf("LoadPage %d failed: %v", i+1, err)
		}
		sizes = append(sizes, len(page.Items))
		if page.Page != i+1 {
			t.Errorf("Page = %d, want %d", page.Page, i+1)
		}
		if page.Exhausted != (i == 2) {
			t.Errorf("call %d Exhausted = %v", i+1, page.Exhausted)
		}
	}
	if want := []int{10, 10, 4}; sizes[0] != want[0] || sizes[1] != want[1] || sizes[2] != want[2] {
		t.Errorf("page sizes = %v, want %v", sizes, want)
	}
}

func TestFeedService_LoadPage_ResetAndIsolation(t *testing.T) {
	repo := &mockPostRepository{listRecentFn: pagedRepo(100)}
	s := newTestFeedService(t, repo, &mockEngine{})
	ctx := context.Background()

	s.LoadPage(ctx, "a", model.FeedModeList, model.FeedFilter{}, nil, false)
	s.LoadPage(ctx, "a", model.FeedModeList, model.FeedFilter{}, nil, false)

	other, _ := s.LoadPage(ctx, "b", model.FeedModeList, model.FeedFilter{}, nil, false)
	if other.Items[0].ID != 1 {
		t.Errorf("session b starts at post %d, want 1", other.Items[0].ID)
	}

	reset, _ := s.LoadPage(ctx, "a", model.FeedModeList, model.FeedFilter{}, nil, true)
	if reset.Page != 1 || reset.Items[0].ID != 1 {
		t.Errorf("reset page = %d first=%d, want page 1 starting at post 1", reset.Page, reset.Items[0].ID)
	}

	// A different viewer restarts the session too
	viewer, _ := s.LoadPage(ctx, "a", model.FeedModeList, model.FeedFilter{}, int64Ptr(9), false)
	if viewer.Page != 1 {
		t.Errorf("viewer change page = %d, want 1", viewer.Page)
	}
}

func TestFeedService_LoadPage_Search(t *testing.T) {
	var gotQuery string
	repo := &mockPostRepository{
		searchFn: func(ctx context.Context, query string, offset, limit int) ([]model.Post, error) {
			gotQuery = query
			return makePosts(offset, 2), nil
		},
	}
	s := newTestFeedService(t, repo, &mockEngine{})
	ctx := context.Background()

	page, err := s.LoadPage(ctx, "s", model.FeedModeSearch, model.FeedFilter{Query: "  ben thanh  "}, nil, false)
	if err != nil {
		t.Fatalf("LoadPage failed: %v", err)
	}
	if gotQuery != "ben thanh" {
		t.Errorf("query = %q, want trimmed", gotQuery)
	}
	if !page.Exhausted {
		t.Error("short search page should exhaust")
	}

	_, err = s.LoadPage(ctx, "s", model.FeedModeSearch, model.FeedFilter{Query: " "}, nil, false)
	if !errors.Is(err, model.ErrQueryRequired) {
		t.Errorf("blank query err = %v, want ErrQueryRequired", err)
	}

	_, err = s.LoadPage(ctx, "s", model.FeedModeMap, model.FeedFilter{}, nil, false)
	if !errors.Is(err, model.ErrInvalidFeedMode) {
		t.Errorf("map mode err = %v, want ErrInvalidFeedMode", err)
	}
}

func TestFeedService_LoadPage_PrimaryQueryError(t *testing.T) {
	repo := &mockPostRepository{
		listRecentFn: func(ctx context.Context, offset, limit int) ([]model.Post, error) {
			return nil, errors.New("connection refused")
		},
	}
	s := newTestFeedService(t, repo, &mockEngine{})

	_, err := s.LoadPage(context.Background(), "x", model.FeedModeList, model.FeedFilter{}, nil, false)
	var pqErr *feed.PrimaryQueryError
	if !errors.As(err, &pqErr) {
		t.Fatalf("expected PrimaryQueryError, got %v", err)
	}
}

func TestFeedService_LoadPage_ConcurrentLoadRejected(t *testing.T) {
	release := make(chan struct{})
	started := make(chan struct{})
	var once sync.Once
	repo := &mockPostRepository{
		listRecentFn: func(ctx context.Context, offset, limit int) ([]model.Post, error) {
			once.Do(func() { close(started) })
			<-release
			return makePosts(offset, limit), nil
		},
	}
	s := newTestFeedService(t, repo, &mockEngine{})
	ctx := context.Background()

	done := make(chan error, 1)
	go func() {
		_, err := s.LoadPage(ctx, "busy", model.FeedModeList, model.FeedFilter{}, nil, false)
		done <- err
	}()
	<-started

	_, err := s.LoadPage(ctx, "busy", model.FeedModeList, model.FeedFilter{}, nil, false)
	if !errors.Is(err, model.ErrLoadInProgress) {
		t.Errorf("overlapping load err = %v, want ErrLoadInProgress", err)
	}

	close(release)
	if err := <-done; err != nil {
		t.Errorf("first load failed: %v", err)
	}
}

// =============================================================================
// LOAD VIEWPORT TESTS
// =============================================================================

func TestFeedService_LoadViewport(t *testing.T) {
	var mu sync.Mutex
	calls := 0
	repo := &mockPostRepository{
		listInBoundsFn: func(ctx context.Context, bounds model.ViewportRequest, limit int) ([]model.Post, error) {
			mu.Lock()
			calls++
			mu.Unlock()
			if limit != 50 {
				t.Errorf("limit = %d, want 50", limit)
			}
			return makePosts(0, 3), nil
		},
	}
	engine := &mockEngine{
		annotateFn: func(ctx context.Context, posts []model.Post, viewerID *int64) ([]model.FeedPost, error) {
			out := make([]model.FeedPost, len(posts))
			for i, p := range posts {
				out[i] = model.FeedPost{Post: p, EngagementAggregate: model.EngagementAggregate{LikeCount: 1}}
			}
			return out, nil
		},
	}
	s := newTestFeedService(t, repo, engine)
	ctx := context.Background()

	bounds := model.ViewportRequest{
		NorthEast: model.Coordinate{Lat: 10.8, Lng: 106.7},
		SouthWest: model.Coordinate{Lat: 10.7, Lng: 106.6},
	}
	resp, err := s.LoadViewport(ctx, "m", bounds, nil)
	if err != nil {
		t.Fatalf("LoadViewport failed: %v", err)
	}
	if len(resp.Items) != 3 || resp.Items[0].LikeCount != 1 {
		t.Errorf("items = %+v, want 3 annotated posts", resp.Items)
	}

	// Same viewport again is served without a query
	if _, err := s.LoadViewport(ctx, "m", bounds, nil); err != nil {
		t.Fatalf("second LoadViewport failed: %v", err)
	}
	// Another viewer gets its own coordinator
	if _, err := s.LoadViewport(ctx, "m", bounds, int64Ptr(4)); err != nil {
		t.Fatalf("viewer LoadViewport failed: %v", err)
	}

	mu.Lock()
	defer mu.Unlock()
	if calls != 2 {
		t.Errorf("ListInBounds called %d times, want 2", calls)
	}
}

func TestFeedService_LoadViewport_Invalid(t *testing.T) {
	s := newTestFeedService(t, &mockPostRepository{}, &mockEngine{})

	bounds := model.ViewportRequest{
		NorthEast: model.Coordinate{Lat: 10, Lng: 106},
		SouthWest: model.Coordinate{Lat: 20, Lng: 105},
	}
	_, err := s.LoadViewport(context.Background(), "m", bounds, nil)
	if !errors.Is(err, model.ErrInvalidViewport) {
		t.Errorf("err = %v, want ErrInvalidViewport", err)
	}
}

func TestFeedService_LoadViewport_PrimaryQueryError(t *testing.T) {
	repo := &mockPostRepository{
		listInBoundsFn: func(ctx context.Context, bounds model.ViewportRequest, limit int) ([]model.Post, error) {
			return nil, errors.New("timeout")
		},
	}
	s := newTestFeedService(t, repo, &mockEngine{})

	bounds := model.ViewportRequest{NorthEast: model.Coordinate{Lat: 1, Lng: 1}}
	_, err := s.LoadViewport(context.Background(), "m", bounds, nil)
	var pqErr *feed.PrimaryQueryError
	if !errors.As(err, &pqErr) || pqErr.Mode != model.FeedModeMap {
		t.Errorf("err = %v, want map PrimaryQueryError", err)
	}
}

// =============================================================================
// REFRESH COUNTS TESTS
// =============================================================================

func TestFeedService_RefreshCounts(t *testing.T) {
	engine := &mockEngine{
		refreshFn: func(ctx context.Context, postID int64, viewerID *int64) (model.EngagementAggregate, error) {
			return model.EngagementAggregate{LikeCount: 5, LikedByViewer: viewerID != nil}, nil
		},
	}
	repo := &mockPostRepository{
		existsFn: func(ctx context.Context, postID int64) (bool, error) { return postID == 1, nil },
	}
	s := newTestFeedService(t, repo, engine)
	ctx := context.Background()

	agg, err := s.RefreshCounts(ctx, 1, int64Ptr(2))
	if err != nil {
		t.Fatalf("RefreshCounts failed: %v", err)
	}
	if agg.LikeCount != 5 || !agg.LikedByViewer {
		t.Errorf("agg = %+v", agg)
	}

	if _, err := s.RefreshCounts(ctx, 99, nil); !errors.Is(err, model.ErrPostNotFound) {
		t.Errorf("unknown post err = %v, want ErrPostNotFound", err)
	}
}
