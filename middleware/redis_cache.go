package middleware

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	redisKeyPrefix = "humdb:lookup"
	redisGenKey    = "humdb:lookup:gen"
)

// RedisLookupCache caches hash-lookup results in Redis so several matcher
// processes can share one warm cache. Invalidation bumps a generation
// counter instead of scanning keys; entries of older generations simply
// stop being addressed and age out via their TTL.
type RedisLookupCache struct {
	Client *redis.Client
}

// NewRedisCache connects to Redis and verifies the connection.
func NewRedisCache(opt *redis.Options) (*RedisLookupCache, error) {
	client := redis.NewClient(opt)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return &RedisLookupCache{Client: client}, nil
}

func (r *RedisLookupCache) Name() string { return "RedisLookupCache" }

func (r *RedisLookupCache) Get(ctx context.Context, key string) ([]byte, bool) {
	val, err := r.Client.Get(ctx, r.entryKey(ctx, key)).Bytes()
	if err != nil {
		return nil, false
	}
	return val, true
}

func (r *RedisLookupCache) Set(ctx context.Context, key string, val []byte, ttl time.Duration) {
	r.Client.Set(ctx, r.entryKey(ctx, key), val, ttl)
}

func (r *RedisLookupCache) Invalidate(ctx context.Context) error {
	return r.Client.Incr(ctx, redisGenKey).Err()
}

func (r *RedisLookupCache) Close() error {
	return r.Client.Close()
}

func (r *RedisLookupCache) entryKey(ctx context.Context, key string) string {
	gen, err := r.Client.Get(ctx, redisGenKey).Int64()
	if err != nil {
		gen = 0
	}
	return fmt.Sprintf("%s:%d:%s", redisKeyPrefix, gen, key)
}
