package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	appErrors "github.com/noah-isme/lesson-scheduler-api/pkg/errors"
)

type cacheRepoStub struct {
	value   string
	getErr  error
	setTTL  time.Duration
	pattern string
}

func (r *cacheRepoStub) Get(ctx context.Context, key string, dest interface{}) error {
	if r.getErr != nil {
		return r.getErr
	}
	*(dest.(*string)) = r.value
	return nil
}

func (r *cacheRepoStub) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	r.setTTL = ttl
	return nil
}

func (r *cacheRepoStub) DeleteByPattern(ctx context.Context, pattern string) (int, error) {
	r.pattern = pattern
	return 3, nil
}

type cacheObserverStub struct {
	hits, misses, writes int
}

func (o *cacheObserverStub) RecordCacheOperation(hit bool, _ time.Duration) {
	if hit {
		o.hits++
		return
	}
	o.misses++
}

func (o *cacheObserverStub) ObserveCacheWrite(time.Duration) { o.writes++ }

func TestCacheServiceHitAndMiss(t *testing.T) {
	repo := &cacheRepoStub{value: "cached"}
	observer := &cacheObserverStub{}
	cache := NewCacheService(repo, observer, 0, nil, true)

	var dest string
	hit, err := cache.Get(context.Background(), "k", &dest)
	require.NoError(t, err)
	assert.True(t, hit)
	assert.Equal(t, "cached", dest)

	repo.getErr = appErrors.ErrCacheMiss
	hit, err = cache.Get(context.Background(), "k", &dest)
	require.NoError(t, err)
	assert.False(t, hit)

	repo.getErr = errors.New("connection reset")
	hit, err = cache.Get(context.Background(), "k", &dest)
	assert.Error(t, err)
	assert.False(t, hit)

	assert.Equal(t, 1, observer.hits)
	assert.Equal(t, 2, observer.misses)
}

func TestCacheServiceSetUsesDefaultTTL(t *testing.T) {
	repo := &cacheRepoStub{}
	observer := &cacheObserverStub{}
	cache := NewCacheService(repo, observer, 20*time.Minute, nil, true)

	require.NoError(t, cache.Set(context.Background(), "k", "v", 0))
	assert.Equal(t, 20*time.Minute, repo.setTTL)
	require.NoError(t, cache.Set(context.Background(), "k", "v", time.Minute))
	assert.Equal(t, time.Minute, repo.setTTL)
	assert.Equal(t, 2, observer.writes)
}

func TestCacheServiceInvalidate(t *testing.T) {
	repo := &cacheRepoStub{}
	cache := NewCacheService(repo, nil, 0, nil, true)

	removed, err := cache.Invalidate(context.Background(), "schedule:result:*")
	require.NoError(t, err)
	assert.Equal(t, 3, removed)
	assert.Equal(t, "schedule:result:*", repo.pattern)
}

func TestCacheServiceDisabled(t *testing.T) {
	var nilCache *CacheService
	var dest string
	hit, err := nilCache.Get(context.Background(), "k", &dest)
	require.NoError(t, err)
	assert.False(t, hit)
	assert.NoError(t, nilCache.Set(context.Background(), "k", "v", 0))

	repo := &cacheRepoStub{value: "cached"}
	disabled := NewCacheService(repo, nil, 0, nil, false)
	hit, err = disabled.Get(context.Background(), "k", &dest)
	require.NoError(t, err)
	assert.False(t, hit)
	removed, err := disabled.Invalidate(context.Background(), "*")
	require.NoError(t, err)
	assert.Zero(t, removed)
	assert.Empty(t, repo.pattern)
}
