package worker

import (
	"context"
	"fmt"
	"log"
	"time"

	"geofeed/internal/queue"
)

// Invalidator drops cached engagement aggregates of a post.
// Implemented by feed.Engine.
type Invalidator interface {
	Invalidate(ctx context.Context, postID int64) error
}

// Handler processes engagement events from the queue.
type Handler struct {
	counts Invalidator
	origin string
}

// NewHandler creates a new event handler for the instance identified by origin.
func NewHandler(counts Invalidator, origin string) *Handler {
	return &Handler{counts: counts, origin: origin}
}

// HandleEvent invalidates the cached counts an event made stale. Events
// published by this instance are skipped: the write path already invalidated.
func (h *Handler) HandleEvent(ctx context.Context, event queue.EngagementEvent) error {
	if event.Origin == h.origin {
		return nil
	}

	startTime := time.Now()

	switch event.Type {
	case queue.EventPostLiked, queue.EventPostUnliked,
		queue.EventCommentCreated, queue.EventCommentDeleted,
		queue.EventPostDeleted:
		// All of them change what a cached aggregate would say
	default:
		log.Printf("[Worker] Unknown event type: %s", event.Type)
		return fmt.Errorf("unknown event type: %s", event.Type)
	}

	if err := h.counts.Invalidate(ctx, event.PostID); err != nil {
		log.Printf("[Worker] HandleEvent FAILED: type=%s post=%d origin=%s duration=%v err=%v",
			event.Type, event.PostID, event.Origin, time.Since(startTime), err)
		return fmt.Errorf("invalidate post %d: %w", event.PostID, err)
	}

	log.Printf("[Worker] HandleEvent OK: type=%s post=%d origin=%s duration=%v",
		event.Type, event.PostID, event.Origin, time.Since(startTime))
	return nil
}
