package repository

import (
	"context"

	"geofeed/internal/model"
)

// PostRepository is the primary content store. Every listing is ordered by
// created_at DESC, id DESC.
type PostRepository interface {
	Create(ctx context.Context, authorID int64, req model.CreatePostRequest) (*model.Post, error)
	GetByID(ctx context.Context, postID int64) (*model.Post, error)
	Update(ctx context.Context, postID, authorID int64, req model.UpdatePostRequest) (*model.Post, error)
	Delete(ctx context.Context, postID, authorID int64) error
	Exists(ctx context.Context, postID int64) (bool, error)

	// Primary queries of the three feed modes
	ListRecent(ctx context.Context, offset, limit int) ([]model.Post, error)
	Search(ctx context.Context, query string, offset, limit int) ([]model.Post, error)
	ListInBounds(ctx context.Context, bounds model.ViewportRequest, limit int) ([]model.Post, error)
}

// EngagementRepository is the Count Store: it owns like and comment edges.
type EngagementRepository interface {
	// FetchEdges returns every like and comment edge of the given posts in one request.
	FetchEdges(ctx context.Context, postIDs []int64) ([]model.EngagementEdge, error)

	// Like is idempotent; created is false when the like already existed.
	Like(ctx context.Context, postID, userID int64) (created bool, err error)
	// Unlike is idempotent; removed is false when there was no like.
	Unlike(ctx context.Context, postID, userID int64) (removed bool, err error)

	CreateComment(ctx context.Context, postID, userID int64, content string) (*model.Comment, error)
	DeleteComment(ctx context.Context, postID, commentID, userID int64) error
	ListComments(ctx context.Context, postID int64, cursor *string, limit int) ([]model.Comment, *string, error)
}
