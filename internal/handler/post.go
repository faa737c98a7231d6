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

// PostManager is implemented by service.PostService.
type PostManager interface {
	Create(ctx context.Context, authorID int64, req model.CreatePostRequest) (*model.FeedPost, error)
	GetByID(ctx context.Context, postID int64, viewerID *int64) (*model.FeedPost, error)
	Update(ctx context.Context, postID, authorID int64, req model.UpdatePostRequest) (*model.Post, error)
	Delete(ctx context.Context, postID, authorID int64) error
}

type PostHandler struct {
	postService PostManager
}

func NewPostHandler(postService PostManager) *PostHandler {
	return &PostHandler{
		postService: postService,
	}
}

// Create handles POST /posts
// Creates a new post for the authenticated user.
func (h *PostHandler) Create(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserIDFromContext(r.Context())
	if !ok {
		httputil.WriteUnauthorized(w, "Authentication required")
		return
	}

	var req model.CreatePostRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.WriteBadRequest(w, "Invalid request body")
		return
	}

	post, err := h.postService.Create(r.Context(), userID, req)
	if err != nil {
		if writePostValidationError(w, err) {
			return
		}
		log.Printf("[ERROR] Create post handler: user=%d err=%v", userID, err)
		httputil.WriteInternalError(w, r, err, "Failed to create post")
		return
	}

	httputil.WriteJSON(w, http.StatusCreated, post)
}

// GetByID handles GET /posts/{id}
// Returns a single post with its engagement counts.
func (h *PostHandler) GetByID(w http.ResponseWriter, r *http.Request) {
	postID, ok := postIDParam(w, r)
	if !ok {
		return
	}

	post, err := h.postService.GetByID(r.Context(), postID, middleware.ViewerFromContext(r.Context()))
	if err != nil {
		if errors.Is(err, model.ErrPostNotFound) {
			httputil.WriteNotFound(w, "Post not found")
			return
		}
		log.Printf("[ERROR] Get post handler: post=%d err=%v", postID, err)
		httputil.WriteInternalError(w, r, err, "Failed to get post")
		return
	}

	httputil.WriteJSON(w, http.StatusOK, post)
}

// Update handles PATCH /posts/{id}
// Edits the body or place label (only owner can edit).
func (h *PostHandler) Update(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserIDFromContext(r.Context())
	if !ok {
		httputil.WriteUnauthorized(w, "Authentication required")
		return
	}
	postID, ok := postIDParam(w, r)
	if !ok {
		return
	}

	var req model.UpdatePostRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.WriteBadRequest(w, "Invalid request body")
		return
	}

	post, err := h.postService.Update(r.Context(), postID, userID, req)
	if err != nil {
		switch {
		case writePostValidationError(w, err):
		case errors.Is(err, model.ErrNothingToUpdate):
			httputil.WriteBadRequest(w, "Nothing to update")
		case errors.Is(err, model.ErrPostNotFound):
			httputil.WriteNotFound(w, "Post not found")
		case errors.Is(err, model.ErrNotPostOwner):
			httputil.WriteForbidden(w, "You can only edit your own posts")
		default:
			log.Printf("[ERROR] Update post handler: user=%d post=%d err=%v", userID, postID, err)
			httputil.WriteInternalError(w, r, err, "Failed to update post")
		}
		return
	}

	httputil.WriteJSON(w, http.StatusOK, post)
}

// Delete handles DELETE /posts/{id}
// Deletes a post and its engagement (only owner can delete).
func (h *PostHandler) Delete(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserIDFromContext(r.Context())
	if !ok {
		httputil.WriteUnauthorized(w, "Authentication required")
		return
	}
	postID, ok := postIDParam(w, r)
	if !ok {
		return
	}

	err := h.postService.Delete(r.Context(), postID, userID)
	if err != nil {
		switch {
		case errors.Is(err, model.ErrPostNotFound):
			httputil.WriteNotFound(w, "Post not found")
		case errors.Is(err, model.ErrNotPostOwner):
			httputil.WriteForbidden(w, "You can only delete your own posts")
		default:
			log.Printf("[ERROR] Delete post handler: user=%d post=%d err=%v", userID, postID, err)
			httputil.WriteInternalError(w, r, err, "Failed to delete post")
		}
		return
	}

	httputil.WriteJSON(w, http.StatusOK, map[string]string{
		"message": "Post deleted successfully",
	})
}

// writePostValidationError answers input errors of create and update and
// reports whether err was one of them.
func writePostValidationError(w http.ResponseWriter, err error) bool {
	switch {
	case errors.Is(err, model.ErrBodyRequired):
		httputil.WriteBadRequest(w, "Post body is required")
	case errors.Is(err, model.ErrBodyTooLong):
		httputil.WriteBadRequest(w, "Post body too long (max 2200 characters)")
	case errors.Is(err, model.ErrPlaceLabelTooLong):
		httputil.WriteBadRequest(w, "Place label too long (max 200 characters)")
	case errors.Is(err, model.ErrTooManyAttachments):
		httputil.WriteBadRequest(w, "Too many attachments (max 10)")
	case errors.Is(err, model.ErrInvalidCoordinate):
		httputil.WriteBadRequest(w, "Latitude or longitude out of range")
	default:
		return false
	}
	return true
}

func postIDParam(w http.ResponseWriter, r *http.Request) (int64, bool) {
	postID, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		httputil.WriteBadRequest(w, "Invalid post ID")
		return 0, false
	}
	return postID, true
}
