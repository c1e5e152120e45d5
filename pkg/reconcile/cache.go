// ABOUTME: Cache adapters: an in-process LRU store and a Redis DEL+PUBLISH invalidator
// ABOUTME: CachedStore reads conversation messages through the memory cache until they are invalidated

package reconcile

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/redis/go-redis/v9"

	"github.com/mauromedda/pi-chat-stream/internal/log"
	"github.com/mauromedda/pi-chat-stream/internal/lru"
	"github.com/mauromedda/pi-chat-stream/pkg/stream"
)

// DefaultMemoryCacheSize bounds a MemoryCache created with size 0.
const DefaultMemoryCacheSize = 128

// MemoryCache is a bounded in-process key/value cache.
type MemoryCache struct {
	entries *lru.Cache[string, any]

	mu     sync.Mutex
	counts map[string]int
}

// NewMemoryCache returns a MemoryCache holding at most size entries.
func NewMemoryCache(size int) *MemoryCache {
	if size <= 0 {
		size = DefaultMemoryCacheSize
	}
	return &MemoryCache{
		entries: lru.New[string, any](size),
		counts:  make(map[string]int),
	}
}

// Get returns the value cached under key.
func (c *MemoryCache) Get(key string) (any, bool) {
	return c.entries.Get(key)
}

// Put caches value under key.
func (c *MemoryCache) Put(key string, value any) {
	c.entries.Put(key, value)
}

// Invalidate drops keys. It never fails.
func (c *MemoryCache) Invalidate(_ context.Context, keys ...string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, k := range keys {
		c.entries.Remove(k)
		c.counts[k]++
	}
	return nil
}

// Invalidations returns how many times key has been invalidated.
func (c *MemoryCache) Invalidations(key string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.counts[key]
}

// CachedStore reads messages through a MemoryCache. A conversation is
// fetched from the wrapped store again only after its MessagesKey has been
// invalidated or evicted.
type CachedStore struct {
	store Store
	cache *MemoryCache
}

// NewCachedStore wraps store with cache.
func NewCachedStore(store Store, cache *MemoryCache) *CachedStore {
	return &CachedStore{store: store, cache: cache}
}

// Messages implements Store.
func (s *CachedStore) Messages(ctx context.Context, conversationID string) ([]stream.Message, error) {
	key := MessagesKey(conversationID)
	if v, ok := s.cache.Get(key); ok {
		if msgs, ok := v.([]stream.Message); ok {
			log.Debug("reconcile: cached messages of %s", conversationID)
			return append([]stream.Message(nil), msgs...), nil
		}
	}
	msgs, err := s.store.Messages(ctx, conversationID)
	if err != nil {
		return nil, err
	}
	s.cache.Put(key, append([]stream.Message(nil), msgs...))
	return msgs, nil
}

// Caches invalidates every cache in turn and joins their errors.
type Caches []Cache

// Invalidate implements Cache.
func (cs Caches) Invalidate(ctx context.Context, keys ...string) error {
	var errs []error
	for _, c := range cs {
		if err := c.Invalidate(ctx, keys...); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// redisClient is the subset of *redis.Client used by RedisCache.
type redisClient interface {
	Del(ctx context.Context, keys ...string) *redis.IntCmd
	Publish(ctx context.Context, channel string, message interface{}) *redis.IntCmd
}

// RedisCache invalidates keys in a shared Redis: it deletes them and
// announces each on a pub/sub channel so other clients drop their copies.
type RedisCache struct {
	client  redisClient
	closer  func() error
	channel string
	prefix  string
}

// RedisOption configures a RedisCache.
type RedisOption func(*RedisCache)

// WithKeyPrefix namespaces every key.
func WithKeyPrefix(prefix string) RedisOption {
	return func(c *RedisCache) { c.prefix = prefix }
}

// NewRedisCache connects to the Redis server at addr. Invalidations are
// published on channel; an empty channel disables publishing.
func NewRedisCache(addr, channel string, opts ...RedisOption) *RedisCache {
	log.Debug("reconcile: using redis at %s", addr)
	client := redis.NewClient(&redis.Options{Addr: addr})
	c := newRedisCache(client, channel, opts...)
	c.closer = client.Close
	return c
}

func newRedisCache(client redisClient, channel string, opts ...RedisOption) *RedisCache {
	c := &RedisCache{client: client, channel: channel}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Invalidate deletes keys and publishes each invalidated key.
func (c *RedisCache) Invalidate(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	full := make([]string, len(keys))
	for i, k := range keys {
		full[i] = c.prefix + k
	}
	if err := c.client.Del(ctx, full...).Err(); err != nil {
		return fmt.Errorf("deleting %v: %w", full, err)
	}
	if c.channel == "" {
		return nil
	}
	for _, k := range full {
		if err := c.client.Publish(ctx, c.channel, k).Err(); err != nil {
			return fmt.Errorf("publishing invalidation of %s: %w", k, err)
		}
	}
	return nil
}

// Close releases the connection pool.
func (c *RedisCache) Close() error {
	if c.closer == nil {
		return nil
	}
	return c.closer()
}
