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

const (
	// CommentDefaultLimit is the default number of comments per page
	CommentDefaultLimit = 20

	// CommentMaxLimit is the maximum number of comments per page
	CommentMaxLimit = 50
)

// EngagementService handles likes and comments. Every change invalidates the
// cached counts of the affected post.
type EngagementService struct {
	engagementRepo repository.EngagementRepository
	postRepo       repository.PostRepository
	engine         CountEngine
	notifier       *countNotifier
}

func NewEngagementService(
	engagementRepo repository.EngagementRepository,
	postRepo repository.PostRepository,
	engine CountEngine,
	publisher queue.Publisher,
	instanceID string,
) *EngagementService {
	return &EngagementService{
		engagementRepo: engagementRepo,
		postRepo:       postRepo,
		engine:         engine,
		notifier:       newCountNotifier(engine, publisher, instanceID),
	}
}

// Like records a like and returns the post's counts as seen by the user.
// Liking twice is not an error.
func (s *EngagementService) Like(ctx context.Context, postID, userID int64) (*model.EngagementAggregate, error) {
	created, err := s.engagementRepo.Like(ctx, postID, userID)
	if err != nil {
		return nil, err
	}

	if created {
		s.notifier.changed(ctx, queue.NewPostLikedEvent(postID, userID, s.notifier.origin))
		log.Printf("[EngagementService] User %d liked post %d", userID, postID)
	}
	return s.counts(ctx, postID, userID)
}

// Unlike removes a like and returns the post's counts as seen by the user.
// Unliking a post that is not liked is not an error.
func (s *EngagementService) Unlike(ctx context.Context, postID, userID int64) (*model.EngagementAggregate, error) {
	exists, err := s.postRepo.Exists(ctx, postID)
	if err != nil {
		return nil, fmt.Errorf("check post exists: %w", err)
	}
	if !exists {
		return nil, model.ErrPostNotFound
	}

	removed, err := s.engagementRepo.Unlike(ctx, postID, userID)
	if err != nil {
		return nil, err
	}

	if removed {
		s.notifier.changed(ctx, queue.NewPostUnlikedEvent(postID, userID, s.notifier.origin))
		log.Printf("[EngagementService] User %d unliked post %d", userID, postID)
	}
	return s.counts(ctx, postID, userID)
}

// CreateComment adds a comment to a post.
func (s *EngagementService) CreateComment(ctx context.Context, postID, userID int64, req model.CreateCommentRequest) (*model.Comment, error) {
	content := strings.TrimSpace(req.Content)
	if content == "" {
		return nil, model.ErrContentRequired
	}
	if utf8.RuneCountInString(content) > model.MaxCommentLength {
		return nil, model.ErrContentTooLong
	}

	comment, err := s.engagementRepo.CreateComment(ctx, postID, userID, content)
	if err != nil {
		return nil, err
	}

	s.notifier.changed(ctx, queue.NewCommentCreatedEvent(postID, userID, s.notifier.origin))
	log.Printf("[EngagementService] User %d commented on post %d", userID, postID)
	return comment, nil
}

// DeleteComment removes a comment owned by userID.
func (s *EngagementService) DeleteComment(ctx context.Context, postID, commentID, userID int64) error {
	if err := s.engagementRepo.DeleteComment(ctx, postID, commentID, userID); err != nil {
		return err
	}

	s.notifier.changed(ctx, queue.NewCommentDeletedEvent(postID, userID, s.notifier.origin))
	log.Printf("[EngagementService] User %d deleted comment %d on post %d", userID, commentID, postID)
	return nil
}

// ListComments returns a page of comments, newest first.
func (s *EngagementService) ListComments(ctx context.Context, postID int64, cursor *string, limit int) (*model.CommentListResponse, error) {
	if limit <= 0 {
		limit = CommentDefaultLimit
	}
	if limit > CommentMaxLimit {
		limit = CommentMaxLimit
	}

	exists, err := s.postRepo.Exists(ctx, postID)
	if err != nil {
		return nil, fmt.Errorf("check post exists: %w", err)
	}
	if !exists {
		return nil, model.ErrPostNotFound
	}

	comments, nextCursor, err := s.engagementRepo.ListComments(ctx, postID, cursor, limit)
	if err != nil {
		return nil, err
	}

	return &model.CommentListResponse{
		Comments:   comments,
		NextCursor: nextCursor,
		HasMore:    nextCursor != nil,
	}, nil
}

func (s *EngagementService) counts(ctx context.Context, postID, userID int64) (*model.EngagementAggregate, error) {
	agg, err := s.engine.RefreshCounts(ctx, postID, &userID)
	if err != nil {
		return nil, fmt.Errorf("refresh counts: %w", err)
	}
	return &agg, nil
}
