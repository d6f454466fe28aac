package service

import (
	"context"
	"encoding/json"
	"errors"
	"path"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/noah-isme/sma-admission-api/internal/dto"
	appErrors "github.com/noah-isme/sma-admission-api/pkg/errors"
)

type memoryCacheRepo struct {
	mu       sync.Mutex
	items    map[string][]byte
	counters map[string]int64
	failIncr bool
}

func newMemoryCacheRepo() *memoryCacheRepo {
	return &memoryCacheRepo{items: map[string][]byte{}, counters: map[string]int64{}}
}

func (r *memoryCacheRepo) Get(_ context.Context, key string, dest interface{}) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	raw, ok := r.items[key]
	if !ok {
		return appErrors.ErrCacheMiss
	}
	return json.Unmarshal(raw, dest)
}

func (r *memoryCacheRepo) Set(_ context.Context, key string, value interface{}, _ time.Duration) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.items[key] = raw
	return nil
}

func (r *memoryCacheRepo) DeleteByPattern(_ context.Context, pattern string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for key := range r.items {
		if ok, _ := path.Match(pattern, key); ok {
			delete(r.items, key)
		}
	}
	return nil
}

func (r *memoryCacheRepo) IncrementWithin(_ context.Context, key string, _ time.Duration) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.failIncr {
		return 0, errors.New("redis unavailable")
	}
	r.counters[key]++
	return r.counters[key], nil
}

func TestCacheServiceBacksCalendarReads(t *testing.T) {
	repo := newMemoryCacheRepo()
	metrics := NewMetricsService()
	cache := NewCacheService(repo, metrics, time.Minute, zap.NewNop(), true)
	db := newFakeDB()
	svc := NewCalendarService(&fakeCalendarStore{db: db}, cache, time.Minute, nil, zap.NewNop())
	ctx := context.Background()

	_, err := svc.CreateYear(ctx, activeYearRequest("2025/2026", "2025-07-01", "2026-06-30"))
	require.NoError(t, err)

	years, err := svc.ListYears(ctx)
	require.NoError(t, err)
	require.Len(t, years, 1)
	assert.Contains(t, repo.items, calendarYearsKey)

	active, err := svc.GetActiveYear(ctx)
	require.NoError(t, err)
	assert.Equal(t, "2025/2026", active.Name)
	cachedActive, err := svc.GetActiveYear(ctx)
	require.NoError(t, err)
	assert.Equal(t, active.ID, cachedActive.ID)

	_, err = svc.CreateYear(ctx, dto.CreateYearRequest{Name: "2026/2027"})
	require.NoError(t, err)
	assert.NotContains(t, repo.items, calendarYearsKey)
	assert.NotContains(t, repo.items, calendarActiveYearKey)

	years, err = svc.ListYears(ctx)
	require.NoError(t, err)
	assert.Len(t, years, 2)
}

func TestCacheServiceDisabledSkipsReads(t *testing.T) {
	repo := newMemoryCacheRepo()
	cache := NewCacheService(repo, nil, 0, nil, false)
	ctx := context.Background()

	require.NoError(t, cache.Set(ctx, "calendar:years", []string{"x"}, 0))
	assert.Empty(t, repo.items)

	var dest []string
	hit, err := cache.Get(ctx, "calendar:years", &dest)
	require.NoError(t, err)
	assert.False(t, hit)

	count, err := cache.Increment(ctx, "voucher:verify:ABC", time.Minute)
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)
}

func TestCacheServiceThrottleFailsOpen(t *testing.T) {
	repo := newMemoryCacheRepo()
	repo.failIncr = true
	cache := NewCacheService(repo, nil, 0, zap.NewNop(), true)

	h := newLedgerHarness(t, VoucherServiceConfig{VerifyMaxAttempts: 1, VerifyWindow: time.Minute})
	h.vouchers.attempts = cache

	for i := 0; i < 3; i++ {
		resp := h.verify(t, "NOPE2345", "0000")
		assert.False(t, resp.Valid)
	}
}
