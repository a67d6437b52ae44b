package cache

import (
	"context"
	"time"
)

// Cache defines the interface for cache and change broadcasting operations
type Cache interface {
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, value string, expiration time.Duration) error
	Delete(ctx context.Context, key string) error
	Exists(ctx context.Context, key string) (bool, error)

	// Publish broadcasts a change notification to other instances
	Publish(ctx context.Context, channel, payload string) error
	// Subscribe returns a channel of payloads published on the channel.
	// The returned cancel func stops the subscription.
	Subscribe(ctx context.Context, channel string) (<-chan string, func(), error)

	HealthCheck(ctx context.Context) error
	Close() error
}

// Config represents Redis configuration
type Config struct {
	Enabled  bool
	Addr     string
	Password string
	DB       int
	PoolSize int
}

// NewCache creates a cache instance based on configuration. When Redis is
// disabled or unreachable, the in-memory fallback is used.
func NewCache(cfg *Config) (Cache, error) {
	if cfg != nil && cfg.Enabled {
		return NewRedisCache(cfg)
	}
	return NewMemoryCache(), nil
}
