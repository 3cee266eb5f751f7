package summary

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"jornada/internal/journey/models"
	"jornada/pkg/domain"
	"jornada/pkg/platform/circuit"
)

const (
	keyPrefix  = "workday:"
	DefaultTTL = 24 * time.Hour

	// BreakerFailureThreshold consecutive Redis errors take the cache out of
	// the path for BreakerCooldown, after which one trial call goes to Redis.
	BreakerFailureThreshold = 3
	BreakerCooldown         = 30 * time.Second
)

// ErrCacheUnavailable is returned while the breaker keeps Redis out of the path.
var ErrCacheUnavailable = errors.New("workday cache unavailable")

// RedisCache caches workday summaries under workday:{driver}:{date}. A
// breaker stops calling Redis after repeated failures so a Redis outage
// costs one recalculation per request instead of a timeout.
type RedisCache struct {
	client  redis.UniversalClient
	ttl     time.Duration
	breaker *circuit.Breaker
	logger  *slog.Logger
}

type CacheOption func(*RedisCache)

func WithTTL(ttl time.Duration) CacheOption {
	return func(c *RedisCache) {
		if ttl > 0 {
			c.ttl = ttl
		}
	}
}

func WithBreaker(b *circuit.Breaker) CacheOption {
	return func(c *RedisCache) {
		c.breaker = b
	}
}

func WithLogger(logger *slog.Logger) CacheOption {
	return func(c *RedisCache) {
		c.logger = logger
	}
}

// NewBreaker builds the breaker the cache uses by default. opts override the
// defaults, which tests use to inject a clock.
func NewBreaker(opts ...circuit.Option) *circuit.Breaker {
	defaults := []circuit.Option{
		circuit.WithFailureThreshold(BreakerFailureThreshold),
		circuit.WithCooldown(BreakerCooldown),
	}
	return circuit.New("workday-cache", append(defaults, opts...)...)
}

func NewRedisCache(client redis.UniversalClient, opts ...CacheOption) *RedisCache {
	c := &RedisCache{
		client:  client,
		ttl:     DefaultTTL,
		breaker: NewBreaker(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func cacheKey(driverID domain.DriverID, date string) string {
	return keyPrefix + driverID.String() + ":" + date
}

// Get returns (nil, nil) on a miss.
func (c *RedisCache) Get(ctx context.Context, driverID domain.DriverID, date string) (*models.WorkdaySummary, error) {
	if !c.breaker.Allow() {
		return nil, ErrCacheUnavailable
	}
	raw, err := c.client.Get(ctx, cacheKey(driverID, date)).Bytes()
	if errors.Is(err, redis.Nil) {
		c.recordSuccess()
		return nil, nil
	}
	if err != nil {
		c.recordFailure(err)
		return nil, fmt.Errorf("get workday summary: %w", err)
	}
	c.recordSuccess()

	var summary models.WorkdaySummary
	if err := json.Unmarshal(raw, &summary); err != nil {
		return nil, fmt.Errorf("decode workday summary: %w", err)
	}
	return &summary, nil
}

func (c *RedisCache) Set(ctx context.Context, summary *models.WorkdaySummary) error {
	if !c.breaker.Allow() {
		return ErrCacheUnavailable
	}
	payload, err := json.Marshal(summary)
	if err != nil {
		return fmt.Errorf("encode workday summary: %w", err)
	}
	if err := c.client.Set(ctx, cacheKey(summary.DriverID, summary.Date), payload, c.ttl).Err(); err != nil {
		c.recordFailure(err)
		return fmt.Errorf("set workday summary: %w", err)
	}
	c.recordSuccess()
	return nil
}

// Invalidate deletes the given days in one round trip. It bypasses the
// breaker: a skipped delete would serve a stale summary after recovery.
func (c *RedisCache) Invalidate(ctx context.Context, driverID domain.DriverID, dates ...string) error {
	if len(dates) == 0 {
		return nil
	}
	keys := make([]string, len(dates))
	for i, d := range dates {
		keys[i] = cacheKey(driverID, d)
	}
	if err := c.client.Del(ctx, keys...).Err(); err != nil {
		c.recordFailure(err)
		return fmt.Errorf("invalidate workday summaries: %w", err)
	}
	c.recordSuccess()
	return nil
}

func (c *RedisCache) recordFailure(err error) {
	if _, change := c.breaker.RecordFailure(); change.Opened && c.logger != nil {
		c.logger.Warn("workday cache circuit opened", "error", err)
	}
}

func (c *RedisCache) recordSuccess() {
	if _, change := c.breaker.RecordSuccess(); change.Closed && c.logger != nil {
		c.logger.Info("workday cache circuit closed")
	}
}
