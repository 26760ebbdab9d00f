package cache

import (
	"context"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"

	"github.com/kagemask/kagemask/internal/config"
	"github.com/kagemask/kagemask/internal/pii"
)

// Redis is a ResultCache backed by a Redis server. Entry expiry is native:
// values are stored with a TTL and Redis evicts them itself.
type Redis struct {
	client    *redis.Client
	keyPrefix string
	logger    *zap.Logger
	hits      int64
	misses    int64
}

// NewRedis connects to the server in cfg.RedisURL and verifies the
// connection before returning.
func NewRedis(cfg config.CacheConfig, logger *zap.Logger) (*Redis, error) {
	opts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
	}

	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	logger.Info("Redis result cache initialized",
		zap.String("redis_url", maskRedisURL(cfg.RedisURL)),
		zap.String("key_prefix", cfg.KeyPrefix),
		zap.Duration("default_ttl", cfg.TTL))

	return &Redis{
		client:    client,
		keyPrefix: cfg.KeyPrefix,
		logger:    logger,
	}, nil
}

// Get returns the cached result for key. Transport failures are logged
// and reported as a miss so a Redis outage degrades to recomputation; a
// value that does not decode is a CacheError.
func (r *Redis) Get(ctx context.Context, key string) (*pii.MaskingResult, error) {
	data, err := r.client.Get(ctx, key).Result()
	if err == redis.Nil {
		atomic.AddInt64(&r.misses, 1)
		return nil, nil
	}
	if err != nil {
		atomic.AddInt64(&r.misses, 1)
		r.logger.Error("Cache lookup failed", zap.Error(err))
		return nil, nil
	}

	result, err := decodeResult([]byte(data))
	if err != nil {
		return nil, err
	}
	atomic.AddInt64(&r.hits, 1)
	return result, nil
}

// Set stores the result under key with the given TTL. A non-positive ttl
// stores it without expiry.
func (r *Redis) Set(ctx context.Context, key string, result *pii.MaskingResult, ttl time.Duration) error {
	data, err := encodeResult(result)
	if err != nil {
		return pii.NewCacheError("set", "failed to serialize result", err)
	}
	if ttl < 0 {
		ttl = 0
	}
	if err := r.client.Set(ctx, key, data, ttl).Err(); err != nil {
		return pii.NewCacheError("set", "failed to store result", err)
	}
	return nil
}

// Delete removes key if present.
func (r *Redis) Delete(ctx context.Context, key string) error {
	if err := r.client.Del(ctx, key).Err(); err != nil {
		return pii.NewCacheError("delete", "failed to delete key", err)
	}
	return nil
}

// Clear removes every key under the configured prefix using SCAN and
// batched deletes, never FLUSHDB, so co-tenants of the database survive.
func (r *Redis) Clear(ctx context.Context) error {
	keys, err := r.scanKeys(ctx)
	if err != nil {
		return pii.NewCacheError("clear", "failed to scan keys", err)
	}
	if len(keys) == 0 {
		return nil
	}

	batchSize := 100
	for i := 0; i < len(keys); i += batchSize {
		end := i + batchSize
		if end > len(keys) {
			end = len(keys)
		}
		if err := r.client.Del(ctx, keys[i:end]...).Err(); err != nil {
			return pii.NewCacheError("clear", "failed to delete keys", err)
		}
	}

	r.logger.Info("Cache cleared", zap.Int("deleted_keys", len(keys)))
	return nil
}

// ClearExpired is a no-op: Redis evicts expired keys natively.
func (r *Redis) ClearExpired(ctx context.Context) (int, error) {
	return 0, nil
}

// Stats reports hit/miss counters and the live key count under the prefix.
func (r *Redis) Stats(ctx context.Context) (*Stats, error) {
	keys, err := r.scanKeys(ctx)
	if err != nil {
		return nil, pii.NewCacheError("stats", "failed to scan keys", err)
	}

	stats := &Stats{
		Backend: string(RedisBackend),
		Hits:    atomic.LoadInt64(&r.hits),
		Misses:  atomic.LoadInt64(&r.misses),
		Entries: int64(len(keys)),
	}
	if total := stats.Hits + stats.Misses; total > 0 {
		stats.HitRate = float64(stats.Hits) / float64(total) * 100
	}
	return stats, nil
}

// Close closes the Redis connection.
func (r *Redis) Close() error {
	if r.client != nil {
		return r.client.Close()
	}
	return nil
}

func (r *Redis) scanKeys(ctx context.Context) ([]string, error) {
	pattern := "*"
	if r.keyPrefix != "" {
		pattern = r.keyPrefix + ":*"
	}

	var keys []string
	iter := r.client.Scan(ctx, 0, pattern, 0).Iterator()
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return nil, err
	}
	return keys, nil
}

// maskRedisURL hides the password portion of a Redis URL for logging.
func maskRedisURL(url string) string {
	at := strings.LastIndex(url, "@")
	if at < 0 {
		return url
	}
	head := url[:at]
	if colon := strings.LastIndex(head, ":"); colon > strings.Index(head, "//") {
		return head[:colon+1] + "***" + url[at:]
	}
	return url
}
