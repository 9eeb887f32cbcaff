package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	appErrors "github.com/noah-isme/lesson-scheduler-api/pkg/errors"
)

const scanBatch = 100

// CacheRepository stores JSON-encoded schedule results in Redis.
type CacheRepository struct {
	client redis.UniversalClient
	logger *zap.Logger
}

// NewCacheRepository constructs a cache repository.
func NewCacheRepository(client redis.UniversalClient, logger *zap.Logger) *CacheRepository {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CacheRepository{client: client, logger: logger}
}

// Get decodes the value under key into dest. Missing and undecodable entries are both misses.
func (r *CacheRepository) Get(ctx context.Context, key string, dest interface{}) error {
	if r.client == nil {
		return appErrors.ErrCacheMiss
	}

	raw, err := r.client.Get(ctx, key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return appErrors.ErrCacheMiss
		}
		return fmt.Errorf("redis get %s: %w", key, err)
	}

	if err := json.Unmarshal(raw, dest); err != nil {
		r.logger.Warn("dropping undecodable cache entry", zap.String("key", key), zap.Error(err))
		_ = r.client.Del(ctx, key).Err()
		return appErrors.ErrCacheMiss
	}
	return nil
}

// Set encodes value as JSON and stores it with ttl.
func (r *CacheRepository) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	if r.client == nil {
		return nil
	}

	payload, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("marshal cache value for %s: %w", key, err)
	}
	if err := r.client.Set(ctx, key, payload, ttl).Err(); err != nil {
		return fmt.Errorf("redis set %s: %w", key, err)
	}
	return nil
}

// DeleteByPattern unlinks keys matching pattern in scan-sized batches.
func (r *CacheRepository) DeleteByPattern(ctx context.Context, pattern string) (int, error) {
	if r.client == nil {
		return 0, nil
	}

	removed := 0
	batch := make([]string, 0, scanBatch)
	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		n, err := r.client.Unlink(ctx, batch...).Result()
		if err != nil {
			return fmt.Errorf("redis unlink: %w", err)
		}
		removed += int(n)
		batch = batch[:0]
		return nil
	}

	iter := r.client.Scan(ctx, 0, pattern, scanBatch).Iterator()
	for iter.Next(ctx) {
		batch = append(batch, iter.Val())
		if len(batch) == scanBatch {
			if err := flush(); err != nil {
				return removed, err
			}
		}
	}
	if err := iter.Err(); err != nil {
		return removed, fmt.Errorf("redis scan pattern %s: %w", pattern, err)
	}
	if err := flush(); err != nil {
		return removed, err
	}
	return removed, nil
}

// Ping checks the connection.
func (r *CacheRepository) Ping(ctx context.Context) error {
	if r.client == nil {
		return errors.New("redis client not configured")
	}
	return r.client.Ping(ctx).Err()
}

// Close releases the underlying Redis connection if present.
func (r *CacheRepository) Close() error {
	if r.client == nil {
		return nil
	}
	return r.client.Close()
}
