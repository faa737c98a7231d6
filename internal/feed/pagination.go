package feed

import (
	"context"
	"fmt"
	"log"

	"geofeed/internal/model"
)

// DefaultPageSize is the number of posts per page
const DefaultPageSize = 10

// PageFetchFunc runs the primary query for one page.
type PageFetchFunc func(ctx context.Context, offset, limit int) ([]model.Post, error)

// AnnotateFunc attaches engagement aggregates to a page of posts.
type AnnotateFunc func(ctx context.Context, posts []model.Post) ([]model.FeedPost, error)

// Paginator drives the list and search feeds one page at a time.
//
// A page shorter than the page size marks the feed as exhausted. When the
// remaining posts fill the last page exactly, one more call is needed and
// returns an empty page before Exhausted reports true.
//
// Paginator is not safe for concurrent use: callers must not invoke LoadNext
// again before the previous call returns.
type Paginator struct {
	mode      model.FeedMode
	pageSize  int
	fetchPage PageFetchFunc
	annotate  AnnotateFunc

	pageIndex int
	exhausted bool
}

// NewPaginator returns a Paginator positioned on the first page.
func NewPaginator(mode model.FeedMode, pageSize int, fetchPage PageFetchFunc, annotate AnnotateFunc) *Paginator {
	if pageSize <= 0 {
		pageSize = DefaultPageSize
	}
	return &Paginator{
		mode:      mode,
		pageSize:  pageSize,
		fetchPage: fetchPage,
		annotate:  annotate,
	}
}

// LoadNext fetches and annotates the next page.
// Once exhausted it returns an empty slice without querying. A failed primary
// query leaves the position unchanged so the call can be retried.
func (p *Paginator) LoadNext(ctx context.Context) ([]model.FeedPost, error) {
	if p.exhausted {
		return []model.FeedPost{}, nil
	}

	posts, err := p.fetchPage(ctx, p.pageIndex*p.pageSize, p.pageSize)
	if err != nil {
		return nil, &PrimaryQueryError{Mode: p.mode, Err: err}
	}

	items, err := p.annotate(ctx, posts)
	if err != nil {
		return nil, fmt.Errorf("annotate page %d: %w", p.pageIndex, err)
	}

	p.pageIndex++
	if len(posts) < p.pageSize {
		p.exhausted = true
	}

	log.Printf("[Paginator] LoadNext OK: mode=%s page=%d items=%d exhausted=%v",
		p.mode, p.pageIndex-1, len(items), p.exhausted)
	return items, nil
}

// PageIndex returns the zero-based index of the next page to load.
func (p *Paginator) PageIndex() int { return p.pageIndex }

// Exhausted reports whether the end of the feed has been reached.
func (p *Paginator) Exhausted() bool { return p.exhausted }
