package model

import (
	"errors"
	"time"
)

// Post is a user-authored, geo-anchored content item.
type Post struct {
	ID         int64     `db:"id" json:"id"`
	AuthorID   int64     `db:"user_id" json:"author_id"`
	Body       string    `db:"body" json:"body"`
	Lat        float64   `db:"lat" json:"lat"`
	Lng        float64   `db:"lng" json:"lng"`
	PlaceLabel *string   `db:"place_label" json:"place_label,omitempty"`
	CreatedAt  time.Time `db:"created_at" json:"created_at"`
	UpdatedAt  time.Time `db:"updated_at" json:"updated_at"`

	// Joined field (post_attachments table), ordered by position
	Attachments []string `db:"-" json:"attachments"`
}

// FeedPost is a post annotated with its engagement signals.
// Both embedded structs flatten into a single JSON object.
type FeedPost struct {
	Post
	EngagementAggregate
}

// FeedMode selects the primary query that produces candidate posts.
type FeedMode string

const (
	FeedModeList   FeedMode = "list"
	FeedModeSearch FeedMode = "search"
	FeedModeMap    FeedMode = "map"
)

// FeedFilter carries the mode-specific predicate for paginated modes.
type FeedFilter struct {
	Query string // Only used by FeedModeSearch
}

// FeedPage is one page of the list/search feed.
type FeedPage struct {
	Items     []FeedPost `json:"items"`
	Page      int        `json:"page"` // Pages loaded so far in this session
	Exhausted bool       `json:"exhausted"`
	SessionID string     `json:"session_id"`
}

// ViewportResponse is the map feed for one settled viewport.
type ViewportResponse struct {
	Items  []FeedPost      `json:"items"`
	Bounds ViewportRequest `json:"bounds"`
}

// CreatePostRequest is the request body for creating a post.
type CreatePostRequest struct {
	Body        string   `json:"body"`
	Lat         float64  `json:"lat"`
	Lng         float64  `json:"lng"`
	PlaceLabel  *string  `json:"place_label"`
	Attachments []string `json:"attachments"` // Opaque references produced by the asset store
}

// UpdatePostRequest edits the mutable parts of a post. Nil fields are left unchanged.
type UpdatePostRequest struct {
	Body       *string `json:"body"`
	PlaceLabel *string `json:"place_label"`
}

// Post constraints
const (
	MaxPostBodyLength   = 2200
	MaxPlaceLabelLength = 200
	MaxPostAttachments  = 10
)

// Post errors
var (
	ErrPostNotFound       = errors.New("post not found")
	ErrNotPostOwner       = errors.New("not the owner of this post")
	ErrBodyRequired       = errors.New("post body is required")
	ErrBodyTooLong        = errors.New("post body too long")
	ErrPlaceLabelTooLong  = errors.New("place label too long")
	ErrTooManyAttachments = errors.New("too many attachments")
	ErrInvalidCoordinate  = errors.New("invalid coordinate")
	ErrNothingToUpdate    = errors.New("nothing to update")
)

// Feed errors
var (
	ErrInvalidFeedMode = errors.New("invalid feed mode")
	ErrQueryRequired   = errors.New("search query is required")
	ErrLoadInProgress  = errors.New("a page load is already in progress for this session")
)
