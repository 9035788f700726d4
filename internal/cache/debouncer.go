package cache

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/go-redis/redis/v8"
	lru "github.com/hashicorp/golang-lru/v2/expirable"
)

// viewKeyPrefix namespaces view debounce markers
const viewKeyPrefix = "asset_view"

// ViewKey builds the debounce key of one viewer of one asset
func ViewKey(assetID int64, viewer string) string {
	return fmt.Sprintf("%s:%d:%s", viewKeyPrefix, assetID, viewer)
}

// RedisDebouncer claims debounce windows with SET NX, shared by every API instance
type RedisDebouncer struct {
	client *redis.Client
	window time.Duration
}

// NewRedisDebouncer creates a debouncer on top of an existing client
func NewRedisDebouncer(client *redis.Client, window time.Duration) *RedisDebouncer {
	return &RedisDebouncer{
		client: client,
		window: window,
	}
}

// Claim reports whether key was free and marks it for the window
func (d *RedisDebouncer) Claim(ctx context.Context, key string) (bool, error) {
	ok, err := d.client.SetNX(ctx, key, 1, d.window).Result()
	if err != nil {
		return false, fmt.Errorf("failed to claim view window: %w", err)
	}
	return ok, nil
}

// MemoryDebouncer is the single-process fallback used when Redis is not configured
type MemoryDebouncer struct {
	mu      sync.Mutex
	entries *lru.LRU[string, struct{}]
}

// NewMemoryDebouncer creates a debouncer that remembers at most size keys
func NewMemoryDebouncer(size int, window time.Duration) *MemoryDebouncer {
	if size < 1 {
		size = 1
	}
	return &MemoryDebouncer{
		entries: lru.NewLRU[string, struct{}](size, nil, window),
	}
}

// Claim reports whether key was free and marks it for the window
func (d *MemoryDebouncer) Claim(ctx context.Context, key string) (bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if _, ok := d.entries.Get(key); ok {
		return false, nil
	}
	d.entries.Add(key, struct{}{})
	return true, nil
}
