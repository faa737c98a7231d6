package service

import (
	"context"
	"errors"
	"strings"
	"testing"

	"geofeed/internal/model"
	"geofeed/internal/queue"
)

func strPtr(s string) *string { return &s }

func TestPostService_Create_Validation(t *testing.T) {
	s := NewPostService(&mockPostRepository{}, &mockEngine{}, &mockPublisher{}, "node-a")
	ctx := context.Background()

	valid := model.CreatePostRequest{Body: "sunset at the pier", Lat: 10.77, Lng: 106.7}

	tests := []struct {
		name    string
		mutate  func(r *model.CreatePostRequest)
		wantErr error
	}{
		{"empty body", func(r *model.CreatePostRequest) { r.Body = "  " }, model.ErrBodyRequired},
		{"body too long", func(r *model.CreatePostRequest) { r.Body = strings.Repeat("x", model.MaxPostBodyLength+1) }, model.ErrBodyTooLong},
		{"place label too long", func(r *model.CreatePostRequest) {
			r.PlaceLabel = strPtr(strings.Repeat("p", model.MaxPlaceLabelLength+1))
		}, model.ErrPlaceLabelTooLong},
		{"too many attachments", func(r *model.CreatePostRequest) {
			r.Attachments = make([]string, model.MaxPostAttachments+1)
		}, model.ErrTooManyAttachments},
		{"latitude out of range", func(r *model.CreatePostRequest) { r.Lat = 91 }, model.ErrInvalidCoordinate},
		{"longitude out of range", func(r *model.CreatePostRequest) { r.Lng = -181 }, model.ErrInvalidCoordinate},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := valid
			tt.mutate(&req)
			if _, err := s.Create(ctx, 1, req); !errors.Is(err, tt.wantErr) {
				t.Errorf("err = %v, want %v", err, tt.wantErr)
			}
		})
	}

	post, err := s.Create(ctx, 1, valid)
	if err != nil {
		t.Fatalf("valid Create failed: %v", err)
	}
	if post.LikeCount != 0 || post.CommentCount != 0 {
		t.Errorf("new post has counts %+v", post.EngagementAggregate)
	}
}

func TestPostService_GetByID_AttachesCounts(t *testing.T) {
	repo := &mockPostRepository{
		getByIDFn: func(ctx context.Context, postID int64) (*model.Post, error) {
			return &model.Post{ID: postID, Body: "hello"}, nil
		},
	}
	engine := &mockEngine{
		refreshFn: func(ctx context.Context, postID int64, viewerID *int64) (model.EngagementAggregate, error) {
			return model.EngagementAggregate{LikeCount: 4, CommentCount: 2}, nil
		},
	}
	s := NewPostService(repo, engine, nil, "node-a")

	got, err := s.GetByID(context.Background(), 3, nil)
	if err != nil {
		t.Fatalf("GetByID failed: %v", err)
	}
	if got.Body != "hello" || got.LikeCount != 4 || got.CommentCount != 2 {
		t.Errorf("got %+v", got)
	}

	repo.getByIDFn = nil
	if _, err := s.GetByID(context.Background(), 3, nil); !errors.Is(err, model.ErrPostNotFound) {
		t.Errorf("err = %v, want ErrPostNotFound", err)
	}
}

func TestPostService_Update_Validation(t *testing.T) {
	s := NewPostService(&mockPostRepository{}, &mockEngine{}, nil, "node-a")
	ctx := context.Background()

	if _, err := s.Update(ctx, 1, 1, model.UpdatePostRequest{}); !errors.Is(err, model.ErrNothingToUpdate) {
		t.Errorf("empty update err = %v, want ErrNothingToUpdate", err)
	}
	if _, err := s.Update(ctx, 1, 1, model.UpdatePostRequest{Body: strPtr(" ")}); !errors.Is(err, model.ErrBodyRequired) {
		t.Errorf("blank body err = %v, want ErrBodyRequired", err)
	}
	if _, err := s.Update(ctx, 1, 1, model.UpdatePostRequest{PlaceLabel: strPtr("")}); err != nil {
		t.Errorf("clearing the place label failed: %v", err)
	}
}

func TestPostService_Delete_InvalidatesAndPublishes(t *testing.T) {
	engine := &mockEngine{}
	pub := &mockPublisher{}
	repo := &mockPostRepository{
		deleteFn: func(ctx context.Context, postID, authorID int64) error {
			if authorID != 1 {
				return model.ErrNotPostOwner
			}
			return nil
		},
	}
	s := NewPostService(repo, engine, pub, "node-a")
	ctx := context.Background()

	if err := s.Delete(ctx, 8, 2); !errors.Is(err, model.ErrNotPostOwner) {
		t.Errorf("err = %v, want ErrNotPostOwner", err)
	}
	if len(engine.Invalidated()) != 0 {
		t.Error("failed delete must not invalidate")
	}

	if err := s.Delete(ctx, 8, 1); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	if got := engine.Invalidated(); len(got) != 1 || got[0] != 8 {
		t.Errorf("invalidated %v, want [8]", got)
	}
	if events := pub.Events(); len(events) != 1 || events[0].Type != queue.EventPostDeleted {
		t.Errorf("events = %+v", events)
	}
}
