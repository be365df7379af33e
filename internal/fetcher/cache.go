package fetcher

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/redis/go-redis/v9"

	"github.com/translatekit/chatbridge/config"
)

// Cache stores successful chapter fetches keyed by canonical URL. It is
// unbounded and cleared only by an explicit call.
type Cache interface {
	Get(ctx context.Context, key string) (Chapter, bool, error)
	Set(ctx context.Context, key string, ch Chapter) error
	Clear(ctx context.Context) error
}

// NewCache builds the configured backend: inmemory (default) or redis.
func NewCache(cfg config.CacheConfig) (Cache, error) {
	switch cfg.Backend {
	case "", "inmemory":
		return NewMemoryCache(), nil
	case "redis":
		return NewRedisCache(
			fmt.Sprintf("%s:%s", cfg.Redis.Host, cfg.Redis.Port),
			cfg.Redis.Password,
			cfg.Redis.DB,
		), nil
	default:
		return nil, fmt.Errorf("unknown cache backend %q", cfg.Backend)
	}
}

// MemoryCache is the default process-local backend.
type MemoryCache struct {
	mu       sync.RWMutex
	chapters map[string]Chapter
}

func NewMemoryCache() *MemoryCache {
	return &MemoryCache{chapters: make(map[string]Chapter)}
}

func (c *MemoryCache) Get(_ context.Context, key string) (Chapter, bool, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	ch, ok := c.chapters[key]
	return ch, ok, nil
}

func (c *MemoryCache) Set(_ context.Context, key string, ch Chapter) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.chapters[key] = ch
	return nil
}

func (c *MemoryCache) Clear(_ context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.chapters = make(map[string]Chapter)
	return nil
}

// RedisCache shares cached chapters across processes. Entries carry no
// TTL; Clear removes every tracked key.
type RedisCache struct {
	client *redis.Client
}

const (
	redisChapterPrefix = "chapter:"
	redisChapterIndex  = "chapter:keys"
)

func NewRedisCache(addr, password string, db int) *RedisCache {
	return &RedisCache{client: redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})}
}

func (c *RedisCache) Get(ctx context.Context, key string) (Chapter, bool, error) {
	val, err := c.client.Get(ctx, redisChapterPrefix+key).Result()
	if err == redis.Nil {
		return Chapter{}, false, nil
	}
	if err != nil {
		return Chapter{}, false, fmt.Errorf("cache get: %w", err)
	}
	var ch Chapter
	if err := json.Unmarshal([]byte(val), &ch); err != nil {
		return Chapter{}, false, fmt.Errorf("cache decode: %w", err)
	}
	return ch, true, nil
}

func (c *RedisCache) Set(ctx context.Context, key string, ch Chapter) error {
	data, err := json.Marshal(ch)
	if err != nil {
		return fmt.Errorf("cache encode: %w", err)
	}
	if err := c.client.Set(ctx, redisChapterPrefix+key, data, 0).Err(); err != nil {
		return fmt.Errorf("cache set: %w", err)
	}
	return c.client.SAdd(ctx, redisChapterIndex, key).Err()
}

func (c *RedisCache) Clear(ctx context.Context) error {
	keys, err := c.client.SMembers(ctx, redisChapterIndex).Result()
	if err != nil {
		return fmt.Errorf("cache clear: %w", err)
	}
	for _, key := range keys {
		if err := c.client.Del(ctx, redisChapterPrefix+key).Err(); err != nil {
			return fmt.Errorf("cache clear: %w", err)
		}
	}
	return c.client.Del(ctx, redisChapterIndex).Err()
}
