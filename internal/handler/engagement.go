package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"geofeed/internal/httputil"
	"geofeed/internal/model"
	"geofeed/internal/transport/http/middleware"
)

// EngagementManager is implemented by service.EngagementService.
type EngagementManager interface {
	Like(ctx context.Context, postID, userID int64) (*model.EngagementAggregate, error)
	Unlike(ctx context.Context, postID, userID int64) (*model.EngagementAggregate, error)
	CreateComment(ctx context.Context, postID, userID int64, req model.CreateCommentRequest) (*model.Comment, error)
	DeleteComment(ctx context.Context, postID, commentID, userID int64) error
	ListComments(ctx context.Context, postID int64, cursor *string, limit int) (*model.CommentListResponse, error)
}

type EngagementHandler struct {
	engagementService EngagementManager
}

func NewEngagementHandler(engagementService EngagementManager) *EngagementHandler {
	return &EngagementHandler{
		engagementService: engagementService,
	}
}

// Like handles POST /posts/{id}/like
// Idempotent: liking twice returns the same counts.
func (h *EngagementHandler) Like(w http.ResponseWriter, r *http.Request) {
	h.toggleLike(w, r, h.engagementService.Like, "Like")
}

// Unlike handles DELETE /posts/{id}/like
func (h *EngagementHandler) Unlike(w http.ResponseWriter, r *http.Request) {
	h.toggleLike(w, r, h.engagementService.Unlike, "Unlike")
}

func (h *EngagementHandler) toggleLike(
	w http.ResponseWriter,
	r *http.Request,
	op func(ctx context.Context, postID, userID int64) (*model.EngagementAggregate, error),
	name string,
) {
	userID, ok := middleware.GetUserIDFromContext(r.Context())
	if !ok {
		httputil.WriteUnauthorized(w, "Authentication required")
		return
	}
	postID, ok := postIDParam(w, r)
	if !ok {
		return
	}

	agg, err := op(r.Context(), postID, userID)
	if err != nil {
		if errors.Is(err, model.ErrPostNotFound) {
			httputil.WriteNotFound(w, "Post not found")
			return
		}
		log.Printf("[ERROR] %s handler: user=%d post=%d err=%v", name, userID, postID, err)
		httputil.WriteInternalError(w, r, err, "Failed to update like")
		return
	}

	httputil.WriteJSON(w, http.StatusOK, agg)
}

// CreateComment handles POST /posts/{id}/comments
func (h *EngagementHandler) CreateComment(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserIDFromContext(r.Context())
	if !ok {
		httputil.WriteUnauthorized(w, "Authentication required")
		return
	}
	postID, ok := postIDParam(w, r)
	if !ok {
		return
	}

	var req model.CreateCommentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.WriteBadRequest(w, "Invalid request body")
		return
	}

	comment, err := h.engagementService.CreateComment(r.Context(), postID, userID, req)
	if err != nil {
		switch {
		case errors.Is(err, model.ErrPostNotFound):
			httputil.WriteNotFound(w, "Post not found")
		case errors.Is(err, model.ErrContentRequired):
			httputil.WriteBadRequest(w, "Comment content is required")
		case errors.Is(err, model.ErrContentTooLong):
			httputil.WriteBadRequest(w, "Comment content too long")
		default:
			log.Printf("[ERROR] Create comment handler: user=%d post=%d err=%v", userID, postID, err)
			httputil.WriteInternalError(w, r, err, "Failed to create comment")
		}
		return
	}

	httputil.WriteJSON(w, http.StatusCreated, comment)
}

// DeleteComment handles DELETE /posts/{id}/comments/{commentId}
// Deletes a comment (only owner can delete).
func (h *EngagementHandler) DeleteComment(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserIDFromContext(r.Context())
	if !ok {
		httputil.WriteUnauthorized(w, "Authentication required")
		return
	}
	postID, ok := postIDParam(w, r)
	if !ok {
		return
	}
	commentID, err := strconv.ParseInt(chi.URLParam(r, "commentId"), 10, 64)
	if err != nil {
		httputil.WriteBadRequest(w, "Invalid comment ID")
		return
	}

	err = h.engagementService.DeleteComment(r.Context(), postID, commentID, userID)
	if err != nil {
		switch {
		case errors.Is(err, model.ErrCommentNotFound):
			httputil.WriteNotFound(w, "Comment not found")
		case errors.Is(err, model.ErrNotCommentOwner):
			httputil.WriteForbidden(w, "You can only delete your own comments")
		default:
			log.Printf("[ERROR] Delete comment handler: user=%d comment=%d err=%v", userID, commentID, err)
			httputil.WriteInternalError(w, r, err, "Failed to delete comment")
		}
		return
	}

	httputil.WriteJSON(w, http.StatusOK, map[string]string{
		"message": "Comment deleted successfully",
	})
}

// ListComments handles GET /posts/{id}/comments
// Returns comments newest first with keyset pagination.
func (h *EngagementHandler) ListComments(w http.ResponseWriter, r *http.Request) {
	postID, ok := postIDParam(w, r)
	if !ok {
		return
	}

	var cursor *string
	if c := r.URL.Query().Get("cursor"); c != "" {
		cursor = &c
	}

	limit := 0 // service default
	if l := r.URL.Query().Get("limit"); l != "" {
		parsed, err := strconv.Atoi(l)
		if err != nil || parsed <= 0 {
			httputil.WriteBadRequest(w, "Invalid limit parameter")
			return
		}
		limit = parsed
	}

	comments, err := h.engagementService.ListComments(r.Context(), postID, cursor, limit)
	if err != nil {
		switch {
		case errors.Is(err, model.ErrPostNotFound):
			httputil.WriteNotFound(w, "Post not found")
		case errors.Is(err, model.ErrInvalidCursor):
			httputil.WriteBadRequestWithCode(w, httputil.ErrCodeInvalidCursor, "Invalid cursor")
		default:
			log.Printf("[ERROR] List comments handler: post=%d err=%v", postID, err)
			httputil.WriteInternalError(w, r, err, "Failed to get comments")
		}
		return
	}

	httputil.WriteJSON(w, http.StatusOK, comments)
}
