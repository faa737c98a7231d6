package service

import (
	"context"
	"sync"

	"geofeed/internal/model"
	"geofeed/internal/queue"
)

// =============================================================================
// MOCK REPOSITORIES
// =============================================================================
//
// Each mock implements a repository interface with optional func fields.
// A nil func returns a neutral default.

type mockPostRepository struct {
	createFn       func(ctx context.Context, authorID int64, req model.CreatePostRequest) (*model.Post, error)
	getByIDFn      func(ctx context.Context, postID int64) (*model.Post, error)
	updateFn       func(ctx context.Context, postID, authorID int64, req model.UpdatePostRequest) (*model.Post, error)
	deleteFn       func(ctx context.Context, postID, authorID int64) error
	existsFn       func(ctx context.Context, postID int64) (bool, error)
	listRecentFn   func(ctx context.Context, offset, limit int) ([]model.Post, error)
	searchFn       func(ctx context.Context, query string, offset, limit int) ([]model.Post, error)
	listInBoundsFn func(ctx context.Context, bounds model.ViewportRequest, limit int) ([]model.Post, error)
}

func (m *mockPostRepository) Create(ctx context.Context, authorID int64, req model.CreatePostRequest) (*model.Post, error) {
	if m.createFn != nil {
		return m.createFn(ctx, authorID, req)
	}
	return &model.Post{ID: 1, AuthorID: authorID, Body: req.Body}, nil
}

func (m *mockPostRepository) GetByID(ctx context.Context, postID int64) (*model.Post, error) {
	if m.getByIDFn != nil {
		return m.getByIDFn(ctx, postID)
	}
	return nil, model.ErrPostNotFound
}

func (m *mockPostRepository) Update(ctx context.Context, postID, authorID int64, req model.UpdatePostRequest) (*model.Post, error) {
	if m.updateFn != nil {
		return m.updateFn(ctx, postID, authorID, req)
	}
	return &model.Post{ID: postID, AuthorID: authorID}, nil
}

func (m *mockPostRepository) Delete(ctx context.Context, postID, authorID int64) error {
	if m.deleteFn != nil {
		return m.deleteFn(ctx, postID, authorID)
	}
	return nil
}

func (m *mockPostRepository) Exists(ctx context.Context, postID int64) (bool, error) {
	if m.existsFn != nil {
		return m.existsFn(ctx, postID)
	}
	return true, nil
}

func (m *mockPostRepository) ListRecent(ctx context.Context, offset, limit int) ([]model.Post, error) {
	if m.listRecentFn != nil {
		return m.listRecentFn(ctx, offset, limit)
	}
	return []model.Post{}, nil
}

func (m *mockPostRepository) Search(ctx context.Context, query string, offset, limit int) ([]model.Post, error) {
	if m.searchFn != nil {
		return m.searchFn(ctx, query, offset, limit)
	}
	return []model.Post{}, nil
}

func (m *mockPostRepository) ListInBounds(ctx context.Context, bounds model.ViewportRequest, limit int) ([]model.Post, error) {
	if m.listInBoundsFn != nil {
		return m.listInBoundsFn(ctx, bounds, limit)
	}
	return []model.Post{}, nil
}

type mockEngagementRepository struct {
	likeFn          func(ctx context.Context, postID, userID int64) (bool, error)
	unlikeFn        func(ctx context.Context, postID, userID int64) (bool, error)
	createCommentFn func(ctx context.Context, postID, userID int64, content string) (*model.Comment, error)
	deleteCommentFn func(ctx context.Context, postID, commentID, userID int64) error
	listCommentsFn  func(ctx context.Context, postID int64, cursor *string, limit int) ([]model.Comment, *string, error)
}

func (m *mockEngagementRepository) FetchEdges(ctx context.Context, postIDs []int64) ([]model.EngagementEdge, error) {
	return nil, nil
}

func (m *mockEngagementRepository) Like(ctx context.Context, postID, userID int64) (bool, error) {
	if m.likeFn != nil {
		return m.likeFn(ctx, postID, userID)
	}
	return true, nil
}

func (m *mockEngagementRepository) Unlike(ctx context.Context, postID, userID int64) (bool, error) {
	if m.unlikeFn != nil {
		return m.unlikeFn(ctx, postID, userID)
	}
	return true, nil
}

func (m *mockEngagementRepository) CreateComment(ctx context.Context, postID, userID int64, content string) (*model.Comment, error) {
	if m.createCommentFn != nil {
		return m.createCommentFn(ctx, postID, userID, content)
	}
	return &model.Comment{ID: 1, PostID: postID, AuthorID: userID, Content: content}, nil
}

func (m *mockEngagementRepository) DeleteComment(ctx context.Context, postID, commentID, userID int64) error {
	if m.deleteCommentFn != nil {
		return m.deleteCommentFn(ctx, postID, commentID, userID)
	}
	return nil
}

func (m *mockEngagementRepository) ListComments(ctx context.Context, postID int64, cursor *string, limit int) ([]model.Comment, *string, error) {
	if m.listCommentsFn != nil {
		return m.listCommentsFn(ctx, postID, cursor, limit)
	}
	return []model.Comment{}, nil, nil
}

// =============================================================================
// MOCK ENGINE AND PUBLISHER
// =============================================================================

type mockEngine struct {
	mu          sync.Mutex
	annotateFn  func(ctx context.Context, posts []model.Post, viewerID *int64) ([]model.FeedPost, error)
	refreshFn   func(ctx context.Context, postID int64, viewerID *int64) (model.EngagementAggregate, error)
	invalidated []int64
}

func (m *mockEngine) Annotate(ctx context.Context, posts []model.Post, viewerID *int64) ([]model.FeedPost, error) {
	if m.annotateFn != nil {
		return m.annotateFn(ctx, posts, viewerID)
	}
	out := make([]model.FeedPost, len(posts))
	for i, p := range posts {
		out[i] = model.FeedPost{Post: p}
	}
	return out, nil
}

func (m *mockEngine) RefreshCounts(ctx context.Context, postID int64, viewerID *int64) (model.EngagementAggregate, error) {
	if m.refreshFn != nil {
		return m.refreshFn(ctx, postID, viewerID)
	}
	return model.EngagementAggregate{}, nil
}

func (m *mockEngine) Invalidate(ctx context.Context, postID int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.invalidated = append(m.invalidated, postID)
	return nil
}

func (m *mockEngine) Invalidated() []int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]int64(nil), m.invalidated...)
}

type mockPublisher struct {
	mu     sync.Mutex
	events []queue.EngagementEvent
	err    error
}

func (m *mockPublisher) Publish(ctx context.Context, stream string, event queue.EngagementEvent) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return "", m.err
	}
	m.events = append(m.events, event)
	return "1-0", nil
}

func (m *mockPublisher) Events() []queue.EngagementEvent {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]queue.EngagementEvent(nil), m.events...)
}

func int64Ptr(v int64) *int64 { return &v }

func makePosts(offset, n int) []model.Post {
	posts := make([]model.Post, n)
	for i := range posts {
		posts[i] = model.Post{ID: int64(offset + i + 1)}
	}
	return posts
}
