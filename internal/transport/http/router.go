package http

import (
	"net/http"

	sentryhttp "github.com/getsentry/sentry-go/http"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"geofeed/internal/handler"
	"geofeed/internal/httputil"
	authmw "geofeed/internal/transport/http/middleware"
)

// RouterConfig holds the dependencies needed to create routes
type RouterConfig struct {
	FeedHandler       *handler.FeedHandler
	PostHandler       *handler.PostHandler
	EngagementHandler *handler.EngagementHandler
	JWTSecret         string

	// EnableSentry attaches the Sentry hub to every request context
	EnableSentry bool
}

// NewRouter creates and configures a new Chi router with all route groups
func NewRouter(cfg RouterConfig) chi.Router {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.Logger)
	if cfg.EnableSentry {
		// Repanic lets Recoverer still answer 500 after Sentry records the panic
		r.Use(sentryhttp.New(sentryhttp.Options{Repanic: true}).Handle)
	}
	r.Use(middleware.Recoverer)

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		httputil.WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	// Public routes; the viewer is attached when a token is present
	r.Group(func(r chi.Router) {
		r.Use(authmw.OptionalAuthMiddleware(cfg.JWTSecret))

		r.Get("/feed", cfg.FeedHandler.GetFeed)
		r.Get("/feed/map", cfg.FeedHandler.GetMap)

		r.Get("/posts/{id}", cfg.PostHandler.GetByID)
		r.Get("/posts/{id}/counts", cfg.FeedHandler.GetCounts)
		r.Get("/posts/{id}/comments", cfg.EngagementHandler.ListComments)
	})

	// Protected routes - require authentication
	r.Group(func(r chi.Router) {
		r.Use(authmw.AuthMiddleware(cfg.JWTSecret))

		r.Post("/posts", cfg.PostHandler.Create)
		r.Patch("/posts/{id}", cfg.PostHandler.Update)
		r.Delete("/posts/{id}", cfg.PostHandler.Delete)

		r.Post("/posts/{id}/like", cfg.EngagementHandler.Like)
		r.Delete("/posts/{id}/like", cfg.EngagementHandler.Unlike)

		r.Post("/posts/{id}/comments", cfg.EngagementHandler.CreateComment)
		r.Delete("/posts/{id}/comments/{commentId}", cfg.EngagementHandler.DeleteComment)
	})

	return r
}
