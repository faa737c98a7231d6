package queue

import (
	"encoding/json"
	"fmt"
	"time"
)

// Event types for the engagement stream
const (
	EventPostDeleted    = "post_deleted"
	EventPostLiked      = "post_liked"
	EventPostUnliked    = "post_unliked"
	EventCommentCreated = "comment_created"
	EventCommentDeleted = "comment_deleted"
)

// Stream names
const (
	StreamEngagement = "stream:engagement"
)

// ConsumerGroupPrefix prefixes the per-instance consumer group. Every instance
// owns a group so each one sees every event.
const (
	ConsumerGroupPrefix = "count_invalidators:"
)

// ConsumerGroup returns the consumer group of an instance.
func ConsumerGroup(instanceID string) string {
	return ConsumerGroupPrefix + instanceID
}

// EngagementEvent tells other instances that cached counts of a post changed.
type EngagementEvent struct {
	Type      string `json:"type"`
	Timestamp int64  `json:"timestamp"` // Unix timestamp when event occurred
	PostID    int64  `json:"post_id"`
	ActorID   int64  `json:"actor_id"`

	// Origin is the instance id of the publisher. The publisher has already
	// invalidated its own cache.
	Origin string `json:"origin"`
}

func newEvent(eventType string, postID, actorID int64, origin string) EngagementEvent {
	return EngagementEvent{
		Type:      eventType,
		Timestamp: time.Now().Unix(),
		PostID:    postID,
		ActorID:   actorID,
		Origin:    origin,
	}
}

// NewPostLikedEvent creates an event for when a user likes a post.
func NewPostLikedEvent(postID, actorID int64, origin string) EngagementEvent {
	return newEvent(EventPostLiked, postID, actorID, origin)
}

// NewPostUnlikedEvent creates an event for when a user removes a like.
func NewPostUnlikedEvent(postID, actorID int64, origin string) EngagementEvent {
	return newEvent(EventPostUnliked, postID, actorID, origin)
}

// NewCommentCreatedEvent creates an event for a new comment on a post.
func NewCommentCreatedEvent(postID, actorID int64, origin string) EngagementEvent {
	return newEvent(EventCommentCreated, postID, actorID, origin)
}

// NewCommentDeletedEvent creates an event for a removed comment.
func NewCommentDeletedEvent(postID, actorID int64, origin string) EngagementEvent {
	return newEvent(EventCommentDeleted, postID, actorID, origin)
}

// NewPostDeletedEvent creates an event for a deleted post. Its edges are gone
// with it.
func NewPostDeletedEvent(postID, actorID int64, origin string) EngagementEvent {
	return newEvent(EventPostDeleted, postID, actorID, origin)
}

// ToMap converts the event to a map for Redis XADD.
// Redis Streams store field-value pairs, so we serialize to JSON in a "data" field.
func (e EngagementEvent) ToMap() (map[string]interface{}, error) {
	data, err := json.Marshal(e)
	if err != nil {
		return nil, fmt.Errorf("marshal event: %w", err)
	}
	return map[string]interface{}{
		"type": e.Type,
		"data": string(data),
	}, nil
}

// ParseEngagementEvent parses an EngagementEvent from Redis stream message values.
func ParseEngagementEvent(values map[string]interface{}) (EngagementEvent, error) {
	data, ok := values["data"].(string)
	if !ok {
		return EngagementEvent{}, fmt.Errorf("missing or invalid 'data' field")
	}

	var event EngagementEvent
	if err := json.Unmarshal([]byte(data), &event); err != nil {
		return EngagementEvent{}, fmt.Errorf("unmarshal event: %w", err)
	}
	return event, nil
}
