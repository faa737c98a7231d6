package service

import (
	"context"
	"errors"
	"strings"
	"testing"

	"geofeed/internal/model"
	"geofeed/internal/queue"
)

func newTestEngagementService(repo *mockEngagementRepository, posts *mockPostRepository, engine *mockEngine, pub *mockPublisher) *EngagementService {
	return NewEngagementService(repo, posts, engine, pub, "node-a")
}

func TestEngagementService_Like_InvalidatesAndPublishes(t *testing.T) {
	engine := &mockEngine{
		refreshFn: func(ctx context.Context, postID int64, viewerID *int64) (model.EngagementAggregate, error) {
			return model.EngagementAggregate{LikeCount: 1, LikedByViewer: true}, nil
		},
	}
	pub := &mockPublisher{}
	s := newTestEngagementService(&mockEngagementRepository{}, &mockPostRepository{}, engine, pub)

	agg, err := s.Like(context.Background(), 10, 3)
	if err != nil {
		t.Fatalf("Like failed: %v", err)
	}
	if !agg.LikedByViewer || agg.LikeCount != 1 {
		t.Errorf("agg = %+v", agg)
	}

	if got := engine.Invalidated(); len(got) != 1 || got[0] != 10 {
		t.Errorf("invalidated %v, want [10]", got)
	}
	events := pub.Events()
	if len(events) != 1 {
		t.Fatalf("published %d events, want 1", len(events))
	}
	if e := events[0]; e.Type != queue.EventPostLiked || e.PostID != 10 || e.ActorID != 3 || e.Origin != "node-a" {
		t.Errorf("event = %+v", e)
	}
}

func TestEngagementService_Like_Idempotent(t *testing.T) {
	repo := &mockEngagementRepository{
		likeFn: func(ctx context.Context, postID, userID int64) (bool, error) { return false, nil },
	}
	engine := &mockEngine{}
	pub := &mockPublisher{}
	s := newTestEngagementService(repo, &mockPostRepository{}, engine, pub)

	if _, err := s.Like(context.Background(), 10, 3); err != nil {
		t.Fatalf("repeated Like should succeed: %v", err)
	}
	if len(engine.Invalidated()) != 0 || len(pub.Events()) != 0 {
		t.Error("an unchanged like must not invalidate or publish")
	}
}

func TestEngagementService_Like_PostNotFound(t *testing.T) {
	repo := &mockEngagementRepository{
		likeFn: func(ctx context.Context, postID, userID int64) (bool, error) { return false, model.ErrPostNotFound },
	}
	s := newTestEngagementService(repo, &mockPostRepository{}, &mockEngine{}, &mockPublisher{})

	if _, err := s.Like(context.Background(), 10, 3); !errors.Is(err, model.ErrPostNotFound) {
		t.Errorf("err = %v, want ErrPostNotFound", err)
	}
}

func TestEngagementService_Unlike(t *testing.T) {
	engine := &mockEngine{}
	pub := &mockPublisher{}
	s := newTestEngagementService(&mockEngagementRepository{}, &mockPostRepository{}, engine, pub)

	if _, err := s.Unlike(context.Background(), 10, 3); err != nil {
		t.Fatalf("Unlike failed: %v", err)
	}
	if events := pub.Events(); len(events) != 1 || events[0].Type != queue.EventPostUnliked {
		t.Errorf("events = %+v, want one post_unliked", events)
	}

	missing := &mockPostRepository{existsFn: func(ctx context.Context, postID int64) (bool, error) { return false, nil }}
	s = newTestEngagementService(&mockEngagementRepository{}, missing, engine, pub)
	if _, err := s.Unlike(context.Background(), 10, 3); !errors.Is(err, model.ErrPostNotFound) {
		t.Errorf("err = %v, want ErrPostNotFound", err)
	}
}

func TestEngagementService_PublishFailureIsNotFatal(t *testing.T) {
	engine := &mockEngine{}
	pub := &mockPublisher{err: errors.New("redis down")}
	s := newTestEngagementService(&mockEngagementRepository{}, &mockPostRepository{}, engine, pub)

	if _, err := s.CreateComment(context.Background(), 5, 1, model.CreateCommentRequest{Content: "nice"}); err != nil {
		t.Fatalf("CreateComment should succeed despite publish failure: %v", err)
	}
	if got := engine.Invalidated(); len(got) != 1 {
		t.Errorf("local invalidation still expected, got %v", got)
	}
}

func TestEngagementService_NilPublisher(t *testing.T) {
	engine := &mockEngine{}
	s := NewEngagementService(&mockEngagementRepository{}, &mockPostRepository{}, engine, nil, "solo")

	if _, err := s.Like(context.Background(), 1, 1); err != nil {
		t.Fatalf("Like failed without publisher: %v", err)
	}
	if len(engine.Invalidated()) != 1 {
		t.Error("expected local invalidation")
	}
}

func TestEngagementService_CreateComment_Validation(t *testing.T) {
	s := newTestEngagementService(&mockEngagementRepository{}, &mockPostRepository{}, &mockEngine{}, &mockPublisher{})
	ctx := context.Background()

	tests := []struct {
		name    string
		content string
		wantErr error
	}{
		{"empty", "", model.ErrContentRequired},
		{"whitespace", "   \n", model.ErrContentRequired},
		{"too long", strings.Repeat("á", model.MaxCommentLength+1), model.ErrContentTooLong},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := s.CreateComment(ctx, 1, 1, model.CreateCommentRequest{Content: tt.content})
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("err = %v, want %v", err, tt.wantErr)
			}
		})
	}

	// Multi-byte content at the limit is accepted
	c, err := s.CreateComment(ctx, 1, 1, model.CreateCommentRequest{Content: strings.Repeat("á", model.MaxCommentLength)})
	if err != nil || c == nil {
		t.Errorf("comment at limit rejected: %v", err)
	}
}

func TestEngagementService_DeleteComment(t *testing.T) {
	repo := &mockEngagementRepository{
		deleteCommentFn: func(ctx context.Context, postID, commentID, userID int64) error {
			if userID != 1 {
				return model.ErrNotCommentOwner
			}
			return nil
		},
	}
	engine := &mockEngine{}
	pub := &mockPublisher{}
	s := newTestEngagementService(repo, &mockPostRepository{}, engine, pub)
	ctx := context.Background()

	if err := s.DeleteComment(ctx, 5, 9, 2); !errors.Is(err, model.ErrNotCommentOwner) {
		t.Errorf("err = %v, want ErrNotCommentOwner", err)
	}
	if len(pub.Events()) != 0 {
		t.Error("failed delete must not publish")
	}

	if err := s.DeleteComment(ctx, 5, 9, 1); err != nil {
		t.Fatalf("DeleteComment failed: %v", err)
	}
	if events := pub.Events(); len(events) != 1 || events[0].Type != queue.EventCommentDeleted || events[0].PostID != 5 {
		t.Errorf("events = %+v", events)
	}
}

func TestEngagementService_ListComments_Limits(t *testing.T) {
	var gotLimit int
	next := "7:1700000000000000"
	repo := &mockEngagementRepository{
		listCommentsFn: func(ctx context.Context, postID int64, cursor *string, limit int) ([]model.Comment, *string, error) {
			gotLimit = limit
			return []model.Comment{{ID: 8}}, &next, nil
		},
	}
	s := newTestEngagementService(repo, &mockPostRepository{}, &mockEngine{}, &mockPublisher{})
	ctx := context.Background()

	resp, err := s.ListComments(ctx, 1, nil, 0)
	if err != nil {
		t.Fatalf("ListComments failed: %v", err)
	}
	if gotLimit != CommentDefaultLimit {
		t.Errorf("default limit = %d, want %d", gotLimit, CommentDefaultLimit)
	}
	if !resp.HasMore || resp.NextCursor == nil || *resp.NextCursor != next {
		t.Errorf("resp = %+v, want has_more with cursor", resp)
	}

	s.ListComments(ctx, 1, nil, 500)
	if gotLimit != CommentMaxLimit {
		t.Errorf("capped limit = %d, want %d", gotLimit, CommentMaxLimit)
	}
}
