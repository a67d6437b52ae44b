package cache

import (
	"context"
	"sync"
	"time"
)

type memoryItem struct {
	value     string
	expiresAt time.Time
}

// MemoryCache is an in-process fallback used when Redis is unavailable.
// Publish/Subscribe only reaches subscribers in the same process.
type MemoryCache struct {
	items       map[string]memoryItem
	subscribers map[string][]chan string
	mu          sync.RWMutex
	closed      bool
}

// NewMemoryCache creates an in-memory cache
func NewMemoryCache() *MemoryCache {
	c := &MemoryCache{
		items:       make(map[string]memoryItem),
		subscribers: make(map[string][]chan string),
	}
	go c.janitor()
	return c
}

func (c *MemoryCache) janitor() {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()

	for range ticker.C {
		c.mu.Lock()
		if c.closed {
			c.mu.Unlock()
			return
		}
		now := time.Now()
		for key, item := range c.items {
			if !item.expiresAt.IsZero() && now.After(item.expiresAt) {
				delete(c.items, key)
			}
		}
		c.mu.Unlock()
	}
}

// Get retrieves a value
func (c *MemoryCache) Get(ctx context.Context, key string) (string, bool, error) {
	c.mu.RLock()
	item, exists := c.items[key]
	c.mu.RUnlock()

	if !exists {
		return "", false, nil
	}
	if !item.expiresAt.IsZero() && time.Now().After(item.expiresAt) {
		c.mu.Lock()
		delete(c.items, key)
		c.mu.Unlock()
		return "", false, nil
	}
	return item.value, true, nil
}

// Set stores a value with optional expiration (0 = no expiry)
func (c *MemoryCache) Set(ctx context.Context, key, value string, expiration time.Duration) error {
	item := memoryItem{value: value}
	if expiration > 0 {
		item.expiresAt = time.Now().Add(expiration)
	}

	c.mu.Lock()
	c.items[key] = item
	c.mu.Unlock()
	return nil
}

// Delete removes a key
func (c *MemoryCache) Delete(ctx context.Context, key string) error {
	c.mu.Lock()
	delete(c.items, key)
	c.mu.Unlock()
	return nil
}

// Exists checks if a key exists
func (c *MemoryCache) Exists(ctx context.Context, key string) (bool, error) {
	_, found, err := c.Get(ctx, key)
	return found, err
}

// Publish delivers the payload to in-process subscribers
func (c *MemoryCache) Publish(ctx context.Context, channel, payload string) error {
	c.mu.RLock()
	subs := append([]chan string(nil), c.subscribers[channel]...)
	c.mu.RUnlock()

	for _, sub := range subs {
		select {
		case sub <- payload:
		default:
			// 订阅者处理不过来时丢弃，避免阻塞发布方
		}
	}
	return nil
}

// Subscribe registers an in-process subscriber
func (c *MemoryCache) Subscribe(ctx context.Context, channel string) (<-chan string, func(), error) {
	ch := make(chan string, 16)

	c.mu.Lock()
	c.subscribers[channel] = append(c.subscribers[channel], ch)
	c.mu.Unlock()

	cancel := func() {
		c.mu.Lock()
		subs := c.subscribers[channel]
		for i, sub := range subs {
			if sub == ch {
				c.subscribers[channel] = append(subs[:i], subs[i+1:]...)
				break
			}
		}
		c.mu.Unlock()
		close(ch)
	}
	return ch, cancel, nil
}

// HealthCheck always succeeds for the in-memory cache
func (c *MemoryCache) HealthCheck(ctx context.Context) error {
	return nil
}

// Close releases the cache
func (c *MemoryCache) Close() error {
	c.mu.Lock()
	c.closed = true
	c.items = make(map[string]memoryItem)
	c.mu.Unlock()
	return nil
}
