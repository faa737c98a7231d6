package model

import (
	"errors"
	"time"
)

// EdgeKind discriminates engagement edges.
type EdgeKind string

const (
	EdgeLike    EdgeKind = "like"
	EdgeComment EdgeKind = "comment"
)

// EngagementEdge is a single like or comment relationship between an actor and a post.
type EngagementEdge struct {
	PostID  int64    `db:"post_id" json:"post_id"`
	ActorID int64    `db:"user_id" json:"actor_id"`
	Kind    EdgeKind `db:"kind" json:"kind"`
	Body    *string  `db:"body" json:"body,omitempty"` // Comment edges only
}

// EngagementAggregate is the derived engagement tuple for one post.
// It is computed from edges on demand and never persisted.
type EngagementAggregate struct {
	LikeCount     int  `json:"like_count"`
	CommentCount  int  `json:"comment_count"`
	LikedByViewer bool `json:"is_liked"`
}

// CountEntry is a cached aggregate together with the time it was computed.
type CountEntry struct {
	Aggregate  EngagementAggregate `json:"aggregate"`
	ComputedAt time.Time           `json:"computed_at"`
}

// Comment represents a comment on a post.
type Comment struct {
	ID        int64     `db:"id" json:"id"`
	PostID    int64     `db:"post_id" json:"post_id"`
	AuthorID  int64     `db:"user_id" json:"author_id"`
	Content   string    `db:"content" json:"content"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

// CreateCommentRequest is the request body for creating a comment.
type CreateCommentRequest struct {
	Content string `json:"content"`
}

// CommentListResponse is the paginated comment list response.
type CommentListResponse struct {
	Comments   []Comment `json:"comments"`
	NextCursor *string   `json:"next_cursor,omitempty"`
	HasMore    bool      `json:"has_more"`
}

// Comment constraints
const (
	MaxCommentLength = 2200
)

// Engagement errors
var (
	ErrCommentNotFound = errors.New("comment not found")
	ErrNotCommentOwner = errors.New("not the owner of this comment")
	ErrContentRequired = errors.New("comment content is required")
	ErrContentTooLong  = errors.New("comment content too long")
	ErrInvalidCursor   = errors.New("invalid cursor")
)
