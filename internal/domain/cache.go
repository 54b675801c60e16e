package domain

import (
	"context"
	"time"
)

// Cache defines the interface for caching operations. Completed results are
// keyed by the car record fingerprint so identical requests skip the model
// pipeline; windowed counters back the recheck-velocity signal.
type Cache interface {
	// Get retrieves a value from cache.
	// Returns nil, nil if key not found.
	Get(ctx context.Context, key string) ([]byte, error)

	// Set stores a value in cache with expiration.
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error

	// Delete removes a value from cache.
	Delete(ctx context.Context, key string) error

	// GetResult retrieves a cached check result for a car fingerprint.
	GetResult(ctx context.Context, fingerprint string) (*FraudCheckResult, error)

	// SetResult caches a check result for a car fingerprint.
	SetResult(ctx context.Context, fingerprint string, result *FraudCheckResult, ttl time.Duration) error

	// IncrementCounter atomically increments a counter and returns the new
	// value. Used for recheck counting (checks of the same car in a window).
	IncrementCounter(ctx context.Context, key string, window time.Duration) (int64, error)

	// Health check
	Ping(ctx context.Context) error

	// Lifecycle
	Close() error
}

// CacheConfig holds configuration for cache initialization.
type CacheConfig struct {
	// Type is the cache type: "memory" or "redis"
	Type string

	// Local LRU cache settings
	LocalMaxSize int
	LocalTTL     time.Duration

	// Redis settings
	RedisAddr     string
	RedisPassword string
	RedisDB       int

	// Two-phase settings
	EnableTwoPhase bool // If true, check local first, then Redis

	// ResultTTL is how long completed check results stay cached.
	ResultTTL time.Duration
}
