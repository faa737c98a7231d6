package service

import (
	"context"
	"fmt"
	"log"
	"strconv"
	"strings"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"geofeed/internal/feed"
	"geofeed/internal/model"
	"geofeed/internal/repository"
)

const (
	// DefaultViewportMaxItems caps the posts returned for one viewport
	DefaultViewportMaxItems = 200

	// DefaultSessionCacheSize bounds the number of live feed sessions
	DefaultSessionCacheSize = 10000
)

// CountEngine annotates posts with engagement aggregates.
// Implemented by feed.Engine.
type CountEngine interface {
	Annotate(ctx context.Context, posts []model.Post, viewerID *int64) ([]model.FeedPost, error)
	RefreshCounts(ctx context.Context, postID int64, viewerID *int64) (model.EngagementAggregate, error)
	Invalidate(ctx context.Context, postID int64) error
}

// FeedConfig holds the feed session tuning.
type FeedConfig struct {
	PageSize         int
	ViewportDebounce time.Duration
	ViewportMaxItems int
	SessionCacheSize int
}

// pageSession is the paginated feed of one client session.
type pageSession struct {
	mu        sync.Mutex // held for the duration of a page load
	mode      model.FeedMode
	filter    model.FeedFilter
	viewerID  *int64
	paginator *feed.Paginator
}

func (p *pageSession) matches(mode model.FeedMode, filter model.FeedFilter, viewerID *int64) bool {
	return p.mode == mode && p.filter == filter && viewerKey(p.viewerID) == viewerKey(viewerID)
}

// FeedService exposes the three feed consumption modes. Pagination state and
// viewport coordinators live in bounded per-session registries.
type FeedService struct {
	engine   CountEngine
	postRepo repository.PostRepository
	cfg      FeedConfig

	mu        sync.Mutex // serializes get-or-create on the registries
	pages     *lru.Cache[string, *pageSession]
	viewports *lru.Cache[string, *feed.ViewportCoordinator]
}

func NewFeedService(engine CountEngine, postRepo repository.PostRepository, cfg FeedConfig) (*FeedService, error) {
	if cfg.PageSize <= 0 {
		cfg.PageSize = feed.DefaultPageSize
	}
	if cfg.ViewportDebounce < 0 {
		cfg.ViewportDebounce = feed.DefaultViewportDebounce
	}
	if cfg.ViewportMaxItems <= 0 {
		cfg.ViewportMaxItems = DefaultViewportMaxItems
	}
	if cfg.SessionCacheSize <= 0 {
		cfg.SessionCacheSize = DefaultSessionCacheSize
	}

	pages, err := lru.New[string, *pageSession](cfg.SessionCacheSize)
	if err != nil {
		return nil, fmt.Errorf("create page session cache: %w", err)
	}
	viewports, err := lru.NewWithEvict[string, *feed.ViewportCoordinator](cfg.SessionCacheSize,
		func(_ string, c *feed.ViewportCoordinator) { c.Close() })
	if err != nil {
		return nil, fmt.Errorf("create viewport session cache: %w", err)
	}

	return &FeedService{
		engine:    engine,
		postRepo:  postRepo,
		cfg:       cfg,
		pages:     pages,
		viewports: viewports,
	}, nil
}

// LoadPage returns the next page of the list or search feed of a session.
// The session restarts from the first page when reset is set or when mode,
// filter or viewer differ from the session's previous call.
func (s *FeedService) LoadPage(ctx context.Context, sessionID string, mode model.FeedMode, filter model.FeedFilter, viewerID *int64, reset bool) (*model.FeedPage, error) {
	filter.Query = strings.TrimSpace(filter.Query)
	switch mode {
	case model.FeedModeList:
		filter = model.FeedFilter{}
	case model.FeedModeSearch:
		if filter.Query == "" {
			return nil, model.ErrQueryRequired
		}
	default:
		return nil, model.ErrInvalidFeedMode
	}

	session := s.pageSession(sessionID, mode, filter, viewerID, reset)
	if !session.mu.TryLock() {
		return nil, model.ErrLoadInProgress
	}
	defer session.mu.Unlock()

	startTime := time.Now()
	items, err := session.paginator.LoadNext(ctx)
	if err != nil {
		log.Printf("[FeedService] LoadPage FAILED: session=%s mode=%s err=%v", sessionID, mode, err)
		return nil, err
	}

	log.Printf("[FeedService] LoadPage OK: session=%s mode=%s page=%d items=%d exhausted=%v duration=%v",
		sessionID, mode, session.paginator.PageIndex(), len(items), session.paginator.Exhausted(), time.Since(startTime))

	return &model.FeedPage{
		Items:     items,
		Page:      session.paginator.PageIndex(),
		Exhausted: session.paginator.Exhausted(),
		SessionID: sessionID,
	}, nil
}

func (s *FeedService) pageSession(sessionID string, mode model.FeedMode, filter model.FeedFilter, viewerID *int64, reset bool) *pageSession {
	s.mu.Lock()
	defer s.mu.Unlock()

	if existing, ok := s.pages.Get(sessionID); ok && !reset && existing.matches(mode, filter, viewerID) {
		return existing
	}

	session := &pageSession{
		mode:     mode,
		filter:   filter,
		viewerID: viewerID,
	}
	session.paginator = feed.NewPaginator(mode, s.cfg.PageSize,
		func(ctx context.Context, offset, limit int) ([]model.Post, error) {
			if mode == model.FeedModeSearch {
				return s.postRepo.Search(ctx, filter.Query, offset, limit)
			}
			return s.postRepo.ListRecent(ctx, offset, limit)
		},
		func(ctx context.Context, posts []model.Post) ([]model.FeedPost, error) {
			return s.engine.Annotate(ctx, posts, viewerID)
		},
	)
	s.pages.Add(sessionID, session)
	return session
}

// LoadViewport returns the posts inside a settled viewport. It blocks for the
// debounce period and returns feed.ErrViewportSuperseded when a newer
// viewport of the same session replaces this one.
func (s *FeedService) LoadViewport(ctx context.Context, sessionID string, bounds model.ViewportRequest, viewerID *int64) (*model.ViewportResponse, error) {
	if err := bounds.Validate(); err != nil {
		return nil, err
	}

	coordinator := s.viewportCoordinator(sessionID, viewerID)
	items, err := coordinator.Request(ctx, bounds)
	if err != nil {
		return nil, err
	}

	return &model.ViewportResponse{Items: items, Bounds: bounds}, nil
}

// viewportCoordinator is keyed by session and viewer: a cached result is only
// valid for the viewer it was annotated for.
func (s *FeedService) viewportCoordinator(sessionID string, viewerID *int64) *feed.ViewportCoordinator {
	key := sessionID + "|" + viewerKey(viewerID)

	s.mu.Lock()
	defer s.mu.Unlock()

	if c, ok := s.viewports.Get(key); ok {
		return c
	}

	c := feed.NewViewportCoordinator(s.cfg.ViewportDebounce, func(ctx context.Context, req model.ViewportRequest) ([]model.FeedPost, error) {
		posts, err := s.postRepo.ListInBounds(ctx, req, s.cfg.ViewportMaxItems)
		if err != nil {
			return nil, &feed.PrimaryQueryError{Mode: model.FeedModeMap, Err: err}
		}
		return s.engine.Annotate(ctx, posts, viewerID)
	})
	s.viewports.Add(key, c)
	return c
}

// RefreshCounts returns the aggregate of a single post, cache-first.
func (s *FeedService) RefreshCounts(ctx context.Context, postID int64, viewerID *int64) (*model.EngagementAggregate, error) {
	exists, err := s.postRepo.Exists(ctx, postID)
	if err != nil {
		return nil, fmt.Errorf("check post exists: %w", err)
	}
	if !exists {
		return nil, model.ErrPostNotFound
	}

	agg, err := s.engine.RefreshCounts(ctx, postID, viewerID)
	if err != nil {
		return nil, fmt.Errorf("refresh counts: %w", err)
	}
	return &agg, nil
}

func viewerKey(viewerID *int64) string {
	if viewerID == nil {
		return "anon"
	}
	return strconv.FormatInt(*viewerID, 10)
}
