package config

import (
	"errors"
	"fmt"
	"log"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/google/uuid"
	"github.com/joho/godotenv"

	"geofeed/internal/feed"
)

const (
	CountCacheMemory = "memory"
	CountCacheRedis  = "redis"
)

type Config struct {
	DBHost     string
	DBPort     string
	DBUser     string
	DBPassword string
	DBName     string
	DBSSLMode  string

	ServerPort string

	JWTSecret string

	RedisURL string

	// InstanceID names this process on the engagement stream
	InstanceID string

	CountCacheBackend string
	CountCacheTTL     time.Duration

	Batch               feed.BatchConstraints
	FetchConcurrency    int
	FetchInterWaveDelay time.Duration

	ViewportDebounce     time.Duration
	ViewportMaxItems     int
	FeedPageSize         int
	FeedSessionCacheSize int

	LogFile   string
	SentryDSN string

	TuningFile string
}

// tuningFile is the TOML overlay for engine constants. Keys absent from the
// file keep the value loaded from the environment.
type tuningFile struct {
	CountCacheTTLMs       int64                 `toml:"count_cache_ttl_ms"`
	Batch                 feed.BatchConstraints `toml:"batch"`
	FetchConcurrency      int                   `toml:"fetch_concurrency"`
	FetchInterWaveDelayMs int64                 `toml:"fetch_inter_wave_delay_ms"`
	ViewportDebounceMs    int64                 `toml:"viewport_debounce_ms"`
	ViewportMaxItems      int                   `toml:"viewport_max_items"`
	FeedPageSize          int                   `toml:"feed_page_size"`
	FeedSessionCacheSize  int                   `toml:"feed_session_cache_size"`
}

func LoadConfig() (*Config, error) {
	err := godotenv.Load()
	if err != nil {
		log.Println("No .env file found or error loading it, relying on environment variables")
	}

	defaults := feed.DefaultBatchConstraints()

	cfg := &Config{
		DBHost:     os.Getenv("DB_HOST"),
		DBPort:     getEnv("DB_PORT", "5432"),
		DBUser:     os.Getenv("DB_USER"),
		DBPassword: os.Getenv("DB_PASSWORD"),
		DBName:     os.Getenv("DB_NAME"),
		DBSSLMode:  getEnv("DB_SSLMODE", "require"),

		ServerPort: getEnv("SERVER_PORT", "8080"),

		JWTSecret: os.Getenv("JWT_SECRET"),

		RedisURL: os.Getenv("REDIS_URL"),

		InstanceID: getEnv("INSTANCE_ID", uuid.NewString()),

		CountCacheBackend: strings.ToLower(getEnv("COUNT_CACHE_BACKEND", CountCacheMemory)),
		CountCacheTTL:     getEnvMillis("COUNT_CACHE_TTL_MS", 30*time.Second),

		Batch: feed.BatchConstraints{
			MaxBatchSize:      getEnvInt("BATCH_MAX_SIZE", defaults.MaxBatchSize),
			MaxRequestLength:  getEnvInt("BATCH_MAX_REQUEST_LENGTH", defaults.MaxRequestLength),
			EstimatedIDLength: getEnvInt("BATCH_ESTIMATED_ID_LENGTH", defaults.EstimatedIDLength),
		},
		FetchConcurrency:    getEnvInt("FETCH_CONCURRENCY", feed.DefaultFetchConcurrency),
		FetchInterWaveDelay: getEnvMillis("FETCH_INTER_WAVE_DELAY_MS", feed.DefaultInterWaveDelay),

		ViewportDebounce:     getEnvMillis("VIEWPORT_DEBOUNCE_MS", feed.DefaultViewportDebounce),
		ViewportMaxItems:     getEnvInt("VIEWPORT_MAX_ITEMS", 200),
		FeedPageSize:         getEnvInt("FEED_PAGE_SIZE", feed.DefaultPageSize),
		FeedSessionCacheSize: getEnvInt("FEED_SESSION_CACHE_SIZE", 10000),

		LogFile:   os.Getenv("LOG_FILE"),
		SentryDSN: os.Getenv("SENTRY_DSN"),

		TuningFile: os.Getenv("FEED_TUNING_FILE"),
	}

	if cfg.TuningFile != "" {
		if err := cfg.applyTuningFile(cfg.TuningFile); err != nil {
			return nil, err
		}
		log.Printf("[Config] Applied tuning file: path=%s", cfg.TuningFile)
	}

	return cfg, nil
}

func (c *Config) applyTuningFile(path string) error {
	t := tuningFile{
		CountCacheTTLMs:       c.CountCacheTTL.Milliseconds(),
		Batch:                 c.Batch,
		FetchConcurrency:      c.FetchConcurrency,
		FetchInterWaveDelayMs: c.FetchInterWaveDelay.Milliseconds(),
		ViewportDebounceMs:    c.ViewportDebounce.Milliseconds(),
		ViewportMaxItems:      c.ViewportMaxItems,
		FeedPageSize:          c.FeedPageSize,
		FeedSessionCacheSize:  c.FeedSessionCacheSize,
	}

	md, err := toml.DecodeFile(path, &t)
	if err != nil {
		return fmt.Errorf("decode tuning file %s: %w", path, err)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, len(undecoded))
		for i, k := range undecoded {
			keys[i] = k.String()
		}
		sort.Strings(keys)
		return fmt.Errorf("tuning file %s: unknown keys %s", path, strings.Join(keys, ", "))
	}

	c.CountCacheTTL = time.Duration(t.CountCacheTTLMs) * time.Millisecond
	c.Batch = t.Batch
	c.FetchConcurrency = t.FetchConcurrency
	c.FetchInterWaveDelay = time.Duration(t.FetchInterWaveDelayMs) * time.Millisecond
	c.ViewportDebounce = time.Duration(t.ViewportDebounceMs) * time.Millisecond
	c.ViewportMaxItems = t.ViewportMaxItems
	c.FeedPageSize = t.FeedPageSize
	c.FeedSessionCacheSize = t.FeedSessionCacheSize
	return nil
}

// Validate rejects settings the server cannot start with.
func (c *Config) Validate() error {
	var errs []error

	if c.JWTSecret == "" {
		errs = append(errs, errors.New("JWT_SECRET is required"))
	}
	if _, err := feed.SafeBatchSize(0, c.Batch); err != nil {
		errs = append(errs, err)
	}
	if c.FetchConcurrency <= 0 {
		errs = append(errs, fmt.Errorf("fetch concurrency must be positive, got %d", c.FetchConcurrency))
	}
	if c.FetchInterWaveDelay < 0 {
		errs = append(errs, fmt.Errorf("inter-wave delay must not be negative, got %v", c.FetchInterWaveDelay))
	}
	if c.CountCacheTTL <= 0 {
		errs = append(errs, fmt.Errorf("count cache ttl must be positive, got %v", c.CountCacheTTL))
	}
	if c.ViewportDebounce < 0 {
		errs = append(errs, fmt.Errorf("viewport debounce must not be negative, got %v", c.ViewportDebounce))
	}
	if c.FeedPageSize <= 0 {
		errs = append(errs, fmt.Errorf("feed page size must be positive, got %d", c.FeedPageSize))
	}

	switch c.CountCacheBackend {
	case CountCacheMemory:
	case CountCacheRedis:
		if c.RedisURL == "" {
			errs = append(errs, errors.New("REDIS_URL is required for the redis count cache"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown count cache backend %q", c.CountCacheBackend))
	}

	return errors.Join(errs...)
}

// DSN returns the PostgreSQL connection string.
func (c *Config) DSN() string {
	return fmt.Sprintf("host=%s user=%s password=%s dbname=%s port=%s sslmode=%s",
		c.DBHost, c.DBUser, c.DBPassword, c.DBName, c.DBPort, c.DBSSLMode)
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// getEnvInt returns fallback when the variable is unset or not a number.
// Range checks are left to Validate.
func getEnvInt(key string, fallback int) int {
	v, err := strconv.Atoi(os.Getenv(key))
	if err != nil {
		return fallback
	}
	return v
}

func getEnvMillis(key string, fallback time.Duration) time.Duration {
	v, err := strconv.ParseInt(os.Getenv(key), 10, 64)
	if err != nil {
		return fallback
	}
	return time.Duration(v) * time.Millisecond
}
