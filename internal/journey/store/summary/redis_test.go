package summary

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"jornada/internal/journey/models"
	"jornada/pkg/domain"
	"jornada/pkg/platform/circuit"
)

func setupMiniRedis(t *testing.T, opts ...CacheOption) (*miniredis.Miniredis, *RedisCache) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return mr, NewRedisCache(client, opts...)
}

func newSummary(driverID domain.DriverID, date string) *models.WorkdaySummary {
	return &models.WorkdaySummary{
		DriverID:              driverID,
		Date:                  date,
		TotalWorked:           8*time.Hour + 30*time.Minute,
		TotalMeal:             30 * time.Minute,
		LongestContinuousWork: 4 * time.Hour,
		Anomalies:             []string{"daily work exceeds limit: 08:30 > 08:00"},
		CalculatedAt:          time.Date(2025, 3, 10, 18, 0, 0, 0, time.UTC),
	}
}

func TestRedisCache_SetGet(t *testing.T) {
	mr, cache := setupMiniRedis(t, WithTTL(time.Hour))
	ctx := context.Background()
	driverID := domain.NewDriverID()
	summary := newSummary(driverID, "2025-03-10")

	require.NoError(t, cache.Set(ctx, summary))
	assert.True(t, mr.Exists("workday:"+driverID.String()+":2025-03-10"))
	assert.Equal(t, time.Hour, mr.TTL("workday:"+driverID.String()+":2025-03-10"))

	got, err := cache.Get(ctx, driverID, "2025-03-10")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, summary.TotalWorked, got.TotalWorked)
	assert.Equal(t, summary.Anomalies, got.Anomalies)
	assert.True(t, summary.CalculatedAt.Equal(got.CalculatedAt))
}

func TestRedisCache_MissReturnsNil(t *testing.T) {
	_, cache := setupMiniRedis(t)

	got, err := cache.Get(context.Background(), domain.NewDriverID(), "2025-03-10")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestRedisCache_Expires(t *testing.T) {
	mr, cache := setupMiniRedis(t, WithTTL(time.Minute))
	ctx := context.Background()
	driverID := domain.NewDriverID()
	require.NoError(t, cache.Set(ctx, newSummary(driverID, "2025-03-10")))

	mr.FastForward(2 * time.Minute)

	got, err := cache.Get(ctx, driverID, "2025-03-10")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestRedisCache_InvalidateDeletesOnlyGivenDays(t *testing.T) {
	_, cache := setupMiniRedis(t)
	ctx := context.Background()
	driverID := domain.NewDriverID()
	for _, d := range []string{"2025-03-10", "2025-03-11", "2025-03-12"} {
		require.NoError(t, cache.Set(ctx, newSummary(driverID, d)))
	}

	require.NoError(t, cache.Invalidate(ctx, driverID, "2025-03-10", "2025-03-11"))

	got, err := cache.Get(ctx, driverID, "2025-03-10")
	require.NoError(t, err)
	assert.Nil(t, got)
	got, err = cache.Get(ctx, driverID, "2025-03-12")
	require.NoError(t, err)
	assert.NotNil(t, got)

	assert.NoError(t, cache.Invalidate(ctx, driverID))
}

func TestRedisCache_BreakerOpensOnOutage(t *testing.T) {
	now := time.Date(2025, 3, 10, 8, 0, 0, 0, time.UTC)
	breaker := NewBreaker(circuit.WithClock(func() time.Time { return now }))
	mr, cache := setupMiniRedis(t, WithBreaker(breaker))
	ctx := context.Background()
	driverID := domain.NewDriverID()

	mr.SetError("ERR backend unavailable")
	for i := 0; i < BreakerFailureThreshold; i++ {
		_, err := cache.Get(ctx, driverID, "2025-03-10")
		require.Error(t, err)
		assert.NotErrorIs(t, err, ErrCacheUnavailable)
	}
	assert.True(t, breaker.IsOpen())

	_, err := cache.Get(ctx, driverID, "2025-03-10")
	assert.ErrorIs(t, err, ErrCacheUnavailable)
	assert.ErrorIs(t, cache.Set(ctx, newSummary(driverID, "2025-03-10")), ErrCacheUnavailable)

	mr.SetError("")
	now = now.Add(BreakerCooldown)
	got, err := cache.Get(ctx, driverID, "2025-03-10")
	require.NoError(t, err)
	assert.Nil(t, got)
	assert.False(t, breaker.IsOpen())
}

func TestRedisCache_InvalidateBypassesOpenBreaker(t *testing.T) {
	now := time.Date(2025, 3, 10, 8, 0, 0, 0, time.UTC)
	breaker := NewBreaker(circuit.WithClock(func() time.Time { return now }))
	mr, cache := setupMiniRedis(t, WithBreaker(breaker))
	ctx := context.Background()
	driverID := domain.NewDriverID()
	require.NoError(t, cache.Set(ctx, newSummary(driverID, "2025-03-10")))

	for i := 0; i < BreakerFailureThreshold; i++ {
		breaker.RecordFailure()
	}
	require.True(t, breaker.IsOpen())

	require.NoError(t, cache.Invalidate(ctx, driverID, "2025-03-10"))
	assert.False(t, mr.Exists("workday:"+driverID.String()+":2025-03-10"))
	assert.False(t, breaker.IsOpen(), "a successful delete closes the breaker")
}
