package service

import (
	"context"
	"fmt"
	"log"
	"strings"
	"unicode/utf8"

	"geofeed/internal/model"
	"geofeed/internal/queue"
	"geofeed/internal/repository"
)

type PostService struct {
	postRepo repository.PostRepository
	engine   CountEngine
	notifier *countNotifier
}

func NewPostService(
	postRepo repository.PostRepository,
	engine CountEngine,
	publisher queue.Publisher,
	instanceID string,
) *PostService {
	return &PostService{
		postRepo: postRepo,
		engine:   engine,
		notifier: newCountNotifier(engine, publisher, instanceID),
	}
}

// Create validates and stores a new post. A new post has no engagement yet.
func (s *PostService) Create(ctx context.Context, authorID int64, req model.CreatePostRequest) (*model.FeedPost, error) {
	req.Body = strings.TrimSpace(req.Body)
	if req.Body == "" {
		return nil, model.ErrBodyRequired
	}
	if utf8.RuneCountInString(req.Body) > model.MaxPostBodyLength {
		return nil, model.ErrBodyTooLong
	}
	if err := validatePlaceLabel(req.PlaceLabel); err != nil {
		return nil, err
	}
	if len(req.Attachments) > model.MaxPostAttachments {
		return nil, model.ErrTooManyAttachments
	}
	if !(model.Coordinate{Lat: req.Lat, Lng: req.Lng}).Valid() {
		return nil, model.ErrInvalidCoordinate
	}

	post, err := s.postRepo.Create(ctx, authorID, req)
	if err != nil {
		return nil, fmt.Errorf("create post: %w", err)
	}

	log.Printf("[PostService] Created post=%d author=%d", post.ID, authorID)
	return &model.FeedPost{Post: *post}, nil
}

// GetByID retrieves a single post with its counts for the viewer.
func (s *PostService) GetByID(ctx context.Context, postID int64, viewerID *int64) (*model.FeedPost, error) {
	post, err := s.postRepo.GetByID(ctx, postID)
	if err != nil {
		return nil, err
	}

	agg, err := s.engine.RefreshCounts(ctx, postID, viewerID)
	if err != nil {
		return nil, fmt.Errorf("refresh counts: %w", err)
	}

	return &model.FeedPost{Post: *post, EngagementAggregate: agg}, nil
}

// Update edits the body or place label of a post owned by authorID.
func (s *PostService) Update(ctx context.Context, postID, authorID int64, req model.UpdatePostRequest) (*model.Post, error) {
	if req.Body == nil && req.PlaceLabel == nil {
		return nil, model.ErrNothingToUpdate
	}
	if req.Body != nil {
		body := strings.TrimSpace(*req.Body)
		if body == "" {
			return nil, model.ErrBodyRequired
		}
		if utf8.RuneCountInString(body) > model.MaxPostBodyLength {
			return nil, model.ErrBodyTooLong
		}
		req.Body = &body
	}
	if err := validatePlaceLabel(req.PlaceLabel); err != nil {
		return nil, err
	}

	return s.postRepo.Update(ctx, postID, authorID, req)
}

// Delete removes a post owned by authorID and drops its cached counts on
// every instance.
func (s *PostService) Delete(ctx context.Context, postID, authorID int64) error {
	if err := s.postRepo.Delete(ctx, postID, authorID); err != nil {
		return err
	}

	s.notifier.changed(ctx, queue.NewPostDeletedEvent(postID, authorID, s.notifier.origin))
	log.Printf("[PostService] Deleted post=%d author=%d", postID, authorID)
	return nil
}

func validatePlaceLabel(label *string) error {
	if label != nil && utf8.RuneCountInString(*label) > model.MaxPlaceLabelLength {
		return model.ErrPlaceLabelTooLong
	}
	return nil
}
