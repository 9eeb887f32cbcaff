package service

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	appErrors "github.com/noah-isme/lesson-scheduler-api/pkg/errors"
)

// CacheRepository abstracts the key-value store behind generated results.
type CacheRepository interface {
	Get(ctx context.Context, key string, dest interface{}) error
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error
	DeleteByPattern(ctx context.Context, pattern string) (int, error)
}

type cacheObserver interface {
	RecordCacheOperation(hit bool, duration time.Duration)
	ObserveCacheWrite(duration time.Duration)
}

// CacheService fronts the result cache. A nil or disabled service behaves as a permanent miss.
type CacheService struct {
	repo       CacheRepository
	metrics    cacheObserver
	defaultTTL time.Duration
	logger     *zap.Logger
	enabled    bool
}

// NewCacheService constructs a cache service.
func NewCacheService(repo CacheRepository, metrics cacheObserver, defaultTTL time.Duration, logger *zap.Logger, enabled bool) *CacheService {
	if defaultTTL <= 0 {
		defaultTTL = time.Hour
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CacheService{repo: repo, metrics: metrics, defaultTTL: defaultTTL, logger: logger, enabled: enabled}
}

// Enabled indicates whether caching is active.
func (s *CacheService) Enabled() bool {
	return s != nil && s.enabled && s.repo != nil
}

// Get loads key into dest and reports a hit. Store failures are logged and returned with hit=false.
func (s *CacheService) Get(ctx context.Context, key string, dest interface{}) (bool, error) {
	if !s.Enabled() {
		return false, nil
	}
	start := time.Now()
	err := s.repo.Get(ctx, key, dest)
	s.record(err == nil, time.Since(start))
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, appErrors.ErrCacheMiss):
		return false, nil
	default:
		s.logger.Warn("result cache get failed", zap.String("key", key), zap.Error(err))
		return false, err
	}
}

// Set stores value under key. A non-positive ttl uses the default.
func (s *CacheService) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	if !s.Enabled() {
		return nil
	}
	if ttl <= 0 {
		ttl = s.defaultTTL
	}
	start := time.Now()
	err := s.repo.Set(ctx, key, value, ttl)
	if s.metrics != nil {
		s.metrics.ObserveCacheWrite(time.Since(start))
	}
	if err != nil {
		s.logger.Warn("result cache set failed", zap.String("key", key), zap.Error(err))
	}
	return err
}

// Invalidate drops every key matching pattern and returns how many were removed.
func (s *CacheService) Invalidate(ctx context.Context, pattern string) (int, error) {
	if !s.Enabled() {
		return 0, nil
	}
	removed, err := s.repo.DeleteByPattern(ctx, pattern)
	if err != nil {
		s.logger.Warn("result cache invalidate failed", zap.String("pattern", pattern), zap.Error(err))
		return removed, err
	}
	s.logger.Info("result cache invalidated", zap.String("pattern", pattern), zap.Int("removed", removed))
	return removed, nil
}

func (s *CacheService) record(hit bool, duration time.Duration) {
	if s.metrics != nil {
		s.metrics.RecordCacheOperation(hit, duration)
	}
}
