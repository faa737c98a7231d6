package handler

import (
	"context"
	"errors"
	"log"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"geofeed/internal/feed"
	"geofeed/internal/httputil"
	"geofeed/internal/model"
	"geofeed/internal/transport/http/middleware"
)

// SessionHeader carries the client's feed session id. A new id is issued when
// the request has none, and it is always echoed back.
const SessionHeader = "X-Feed-Session"

// FeedLoader is the feed surface used by FeedHandler.
// Implemented by service.FeedService.
type FeedLoader interface {
	LoadPage(ctx context.Context, sessionID string, mode model.FeedMode, filter model.FeedFilter, viewerID *int64, reset bool) (*model.FeedPage, error)
	LoadViewport(ctx context.Context, sessionID string, bounds model.ViewportRequest, viewerID *int64) (*model.ViewportResponse, error)
	RefreshCounts(ctx context.Context, postID int64, viewerID *int64) (*model.EngagementAggregate, error)
}

type FeedHandler struct {
	feedService FeedLoader
}

func NewFeedHandler(feedService FeedLoader) *FeedHandler {
	return &FeedHandler{
		feedService: feedService,
	}
}

// GetFeed handles GET /feed
// Returns the next page of the session's list or search feed.
//
// Query params:
//   - mode: optional, "list" (default) or "search"
//   - q: required for search
//   - reset: optional, "1" or "true" restarts the session from the first page
func (h *FeedHandler) GetFeed(w http.ResponseWriter, r *http.Request) {
	sessionID := sessionFromRequest(w, r)
	query := r.URL.Query()

	mode := model.FeedMode(query.Get("mode"))
	if mode == "" {
		mode = model.FeedModeList
	}

	reset := false
	if v := query.Get("reset"); v != "" {
		parsed, err := strconv.ParseBool(v)
		if err != nil {
			httputil.WriteBadRequest(w, "Invalid reset parameter")
			return
		}
		reset = parsed
	}

	viewerID := middleware.ViewerFromContext(r.Context())
	page, err := h.feedService.LoadPage(r.Context(), sessionID, mode, model.FeedFilter{Query: query.Get("q")}, viewerID, reset)
	if err != nil {
		writeFeedError(w, r, err, "GetFeed", sessionID)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, page)
}

// GetMap handles GET /feed/map
// Returns the posts inside the viewport once it has settled.
//
// Query params: ne_lat, ne_lng, sw_lat, sw_lng (all required)
func (h *FeedHandler) GetMap(w http.ResponseWriter, r *http.Request) {
	sessionID := sessionFromRequest(w, r)

	bounds, err := parseViewport(r)
	if err != nil {
		httputil.WriteBadRequestWithCode(w, httputil.ErrCodeInvalidViewport, "Viewport requires numeric ne_lat, ne_lng, sw_lat, sw_lng")
		return
	}

	viewerID := middleware.ViewerFromContext(r.Context())
	resp, err := h.feedService.LoadViewport(r.Context(), sessionID, bounds, viewerID)
	if err != nil {
		writeFeedError(w, r, err, "GetMap", sessionID)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, resp)
}

// GetCounts handles GET /posts/{id}/counts
// Returns the engagement counts of a single post.
func (h *FeedHandler) GetCounts(w http.ResponseWriter, r *http.Request) {
	postID, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		httputil.WriteBadRequest(w, "Invalid post ID")
		return
	}

	agg, err := h.feedService.RefreshCounts(r.Context(), postID, middleware.ViewerFromContext(r.Context()))
	if err != nil {
		if errors.Is(err, model.ErrPostNotFound) {
			httputil.WriteNotFound(w, "Post not found")
			return
		}
		log.Printf("[ERROR] GetCounts handler: post=%d err=%v", postID, err)
		httputil.WriteInternalError(w, r, err, "Failed to get counts")
		return
	}

	httputil.WriteJSON(w, http.StatusOK, agg)
}

func writeFeedError(w http.ResponseWriter, r *http.Request, err error, op, sessionID string) {
	var primaryErr *feed.PrimaryQueryError
	switch {
	case errors.Is(err, model.ErrInvalidFeedMode):
		httputil.WriteBadRequest(w, "Mode must be list or search")
	case errors.Is(err, model.ErrQueryRequired):
		httputil.WriteBadRequest(w, "Search query is required")
	case errors.Is(err, model.ErrInvalidViewport):
		httputil.WriteBadRequestWithCode(w, httputil.ErrCodeInvalidViewport, "Invalid viewport bounds")
	case errors.Is(err, model.ErrLoadInProgress):
		httputil.WriteConflictWithCode(w, httputil.ErrCodeLoadInProgress, "A page is already loading for this session")
	case errors.Is(err, feed.ErrViewportSuperseded):
		httputil.WriteConflictWithCode(w, httputil.ErrCodeSuperseded, "Viewport superseded by a newer request")
	case errors.As(err, &primaryErr):
		log.Printf("[ERROR] %s handler: session=%s err=%v", op, sessionID, err)
		httputil.WritePrimaryQueryFailed(w, r, err)
	case errors.Is(err, context.Canceled):
		// Client went away; nothing to answer
	default:
		log.Printf("[ERROR] %s handler: session=%s err=%v", op, sessionID, err)
		httputil.WriteInternalError(w, r, err, "Failed to load feed")
	}
}

// sessionFromRequest reads the session id from the header or the "session"
// query param, issuing a new one when absent.
func sessionFromRequest(w http.ResponseWriter, r *http.Request) string {
	sessionID := r.Header.Get(SessionHeader)
	if sessionID == "" {
		sessionID = r.URL.Query().Get("session")
	}
	if sessionID == "" {
		sessionID = uuid.NewString()
	}
	w.Header().Set(SessionHeader, sessionID)
	return sessionID
}

func parseViewport(r *http.Request) (model.ViewportRequest, error) {
	query := r.URL.Query()
	var values [4]float64
	for i, key := range []string{"ne_lat", "ne_lng", "sw_lat", "sw_lng"} {
		v, err := strconv.ParseFloat(query.Get(key), 64)
		if err != nil {
			return model.ViewportRequest{}, err
		}
		values[i] = v
	}
	return model.ViewportRequest{
		NorthEast: model.Coordinate{Lat: values[0], Lng: values[1]},
		SouthWest: model.Coordinate{Lat: values[2], Lng: values[3]},
	}, nil
}
