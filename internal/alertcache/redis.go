package alertcache

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

const redisEntryTTL = 48 * time.Hour // covers timezone edge cases around day rollover

// RedisCache keeps delivered-alert fingerprints in a per-day Redis hash so
// multiple instances share one deduplication view. When Redis is unreachable
// it degrades to an in-process map and keeps working.
type RedisCache struct {
	client *redis.Client
	now    func() time.Time
	logger zerolog.Logger

	mu       sync.Mutex
	fallback map[string]bool
}

// NewRedisCache connects to Redis at addr. A failed initial ping is logged
// and the cache returned in degraded mode rather than treated as fatal.
func NewRedisCache(addr string, db int, now func() time.Time, logger zerolog.Logger) *RedisCache {
	client := redis.NewClient(&redis.Options{
		Addr:         addr,
		DB:           db,
		MaxRetries:   3,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
	})

	rc := &RedisCache{
		client:   client,
		now:      now,
		logger:   logger.With().Str("component", "alertcache").Str("backend", "redis").Logger(),
		fallback: make(map[string]bool),
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		rc.logger.Warn().Err(err).Msg("Initial Redis connection failed, running in degraded mode")
	} else {
		rc.logger.Info().Str("addr", addr).Msg("Redis alert cache connected")
	}
	return rc
}

func (rc *RedisCache) hashKey() string {
	return fmt.Sprintf("fvg:alerts:%s", rc.now().Format("20060102"))
}

// Seen reports whether fp was already committed today, consulting Redis first
// and the in-process fallback when Redis fails.
func (rc *RedisCache) Seen(fp Fingerprint) bool {
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	exists, err := rc.client.HExists(ctx, rc.hashKey(), fp.Key()).Result()
	if err != nil {
		rc.logger.Warn().Err(err).Msg("Redis lookup failed, using in-memory fallback")
		rc.mu.Lock()
		defer rc.mu.Unlock()
		return rc.fallback[fp.Key()]
	}
	return exists
}

// Commit records fp in the day hash. On failure the fingerprint is retained
// in memory so this process still deduplicates.
func (rc *RedisCache) Commit(fp Fingerprint) error {
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	key := rc.hashKey()
	if err := rc.client.HSet(ctx, key, fp.Key(), rc.now().Format(time.RFC3339)).Err(); err != nil {
		rc.logger.Warn().Err(err).Msg("Redis commit failed, keeping fingerprint in memory")
		rc.mu.Lock()
		rc.fallback[fp.Key()] = true
		rc.mu.Unlock()
		return nil
	}
	rc.client.Expire(ctx, key, redisEntryTTL)

	rc.mu.Lock()
	rc.fallback[fp.Key()] = true
	rc.mu.Unlock()
	return nil
}

// Close closes the Redis connection.
func (rc *RedisCache) Close() error {
	return rc.client.Close()
}
