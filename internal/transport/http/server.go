package http

import (
	"context"
	"errors"
	"fmt"
	"log"
	stdhttp "net/http"
	"time"

	"geofeed/internal/cache"
	"geofeed/internal/config"
	"geofeed/internal/database"
	"geofeed/internal/database/migrations"
	"geofeed/internal/feed"
	"geofeed/internal/handler"
	"geofeed/internal/queue"
	"geofeed/internal/redis"
	"geofeed/internal/repository"
	"geofeed/internal/service"
	"geofeed/internal/worker"
)

// shutdownTimeout bounds the graceful drain of in-flight requests
const shutdownTimeout = 15 * time.Second

// Run wires the feed engine and serves HTTP until ctx is cancelled.
func Run(ctx context.Context, cfg *config.Config) error {
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	// 1. Connect to Database
	db, err := database.Connect(cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	if err := migrations.CheckStatus(db.DB); err != nil {
		return fmt.Errorf("schema check failed (run `geofeed migrate up`): %w", err)
	}

	// 2. Connect to Redis (optional unless the count cache lives there)
	var redisClient *redis.Client
	if cfg.RedisURL != "" {
		redisClient, err = redis.Connect(ctx, cfg.RedisURL)
		if err != nil {
			return err
		}
		defer redisClient.Close()
	}

	// 3. Count cache and engine
	var counts cache.CountCache
	switch cfg.CountCacheBackend {
	case config.CountCacheRedis:
		counts = cache.NewRedisCountCache(redisClient.Client, cfg.CountCacheTTL, nil)
	default:
		counts = cache.NewMemoryCountCache(cfg.CountCacheTTL, nil)
	}
	log.Printf("[Server] Count cache: backend=%s ttl=%v", cfg.CountCacheBackend, cfg.CountCacheTTL)

	postRepo := repository.NewPostRepository(db)
	engagementRepo := repository.NewEngagementRepository(db)

	engine := feed.NewEngine(engagementRepo, counts, feed.EngineConfig{
		Batch:          cfg.Batch,
		Concurrency:    cfg.FetchConcurrency,
		InterWaveDelay: cfg.FetchInterWaveDelay,
	}, nil)

	// 4. Cross-instance invalidation
	var publisher queue.Publisher
	var manager *worker.Manager
	if redisClient != nil {
		publisher = queue.NewPublisher(redisClient.Client)
		manager = worker.NewManager(
			queue.NewConsumer(redisClient.Client),
			worker.NewHandler(engine, cfg.InstanceID),
			worker.DefaultManagerConfig(cfg.InstanceID),
		)
		if err := manager.Start(ctx); err != nil {
			return fmt.Errorf("start invalidation workers: %w", err)
		}
		defer manager.Stop()
	} else {
		log.Printf("[Server] REDIS_URL not set: count invalidation stays local to instance=%s", cfg.InstanceID)
	}

	// 5. Services and handlers
	feedService, err := service.NewFeedService(engine, postRepo, service.FeedConfig{
		PageSize:         cfg.FeedPageSize,
		ViewportDebounce: cfg.ViewportDebounce,
		ViewportMaxItems: cfg.ViewportMaxItems,
		SessionCacheSize: cfg.FeedSessionCacheSize,
	})
	if err != nil {
		return err
	}
	postService := service.NewPostService(postRepo, engine, publisher, cfg.InstanceID)
	engagementService := service.NewEngagementService(engagementRepo, postRepo, engine, publisher, cfg.InstanceID)

	router := NewRouter(RouterConfig{
		FeedHandler:       handler.NewFeedHandler(feedService),
		PostHandler:       handler.NewPostHandler(postService),
		EngagementHandler: handler.NewEngagementHandler(engagementService),
		JWTSecret:         cfg.JWTSecret,
		EnableSentry:      cfg.SentryDSN != "",
	})

	// 6. Serve
	srv := &stdhttp.Server{
		Addr:              ":" + cfg.ServerPort,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Printf("[Server] Listening on %s instance=%s", srv.Addr, cfg.InstanceID)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, stdhttp.ErrServerClosed) {
			return fmt.Errorf("listen: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	log.Println("[Server] Shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}
