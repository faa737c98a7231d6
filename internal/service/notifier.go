package service

import (
	"context"
	"log"

	"geofeed/internal/queue"
)

// countInvalidator drops cached aggregates of a post.
type countInvalidator interface {
	Invalidate(ctx context.Context, postID int64) error
}

// countNotifier invalidates this instance's cached counts after a write and
// tells the other instances through the engagement stream.
type countNotifier struct {
	counts    countInvalidator
	publisher queue.Publisher // nil when running without Redis
	origin    string
}

func newCountNotifier(counts countInvalidator, publisher queue.Publisher, origin string) *countNotifier {
	return &countNotifier{counts: counts, publisher: publisher, origin: origin}
}

// changed is best-effort: the write already committed, and a missed
// invalidation only lasts until the entry's TTL.
func (n *countNotifier) changed(ctx context.Context, event queue.EngagementEvent) {
	if err := n.counts.Invalidate(ctx, event.PostID); err != nil {
		log.Printf("[CountNotifier] Local invalidate failed: post=%d err=%v", event.PostID, err)
	}

	if n.publisher == nil {
		return
	}
	if _, err := n.publisher.Publish(ctx, queue.StreamEngagement, event); err != nil {
		log.Printf("[CountNotifier] Failed to publish %s event: post=%d err=%v", event.Type, event.PostID, err)
	}
}
