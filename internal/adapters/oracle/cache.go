package oracle

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/okian/callscore/internal/domain/pricing"
	"github.com/okian/callscore/pkg/logger"
	"github.com/okian/callscore/pkg/metrics"
)

const (
	defaultCacheTTL = 24 * time.Hour
	sourceCache     = "cache"
)

var _ pricing.Oracle = (*CachedOracle)(nil)

// CachedOracle is a read-through Redis cache in front of another oracle.
// Historical prices do not change, so entries are keyed by symbol and minute.
// It works at minute resolution: every instant inside one minute is served
// the price first fetched for that minute. Redis failures are logged and
// bypassed; they never fail a lookup.
type CachedOracle struct {
	inner  pricing.Oracle
	client redis.Cmdable
	ttl    time.Duration
	now    func() time.Time
	logger logger.Logger
}

// CacheOption configures a CachedOracle.
type CacheOption func(*CachedOracle)

// WithTTL sets the entry lifetime.
func WithTTL(ttl time.Duration) CacheOption {
	return func(c *CachedOracle) {
		if ttl > 0 {
			c.ttl = ttl
		}
	}
}

// WithCacheClock overrides the clock used to skip still-forming minutes.
func WithCacheClock(now func() time.Time) CacheOption {
	return func(c *CachedOracle) {
		if now != nil {
			c.now = now
		}
	}
}

// WithCacheLogger sets the logger.
func WithCacheLogger(l logger.Logger) CacheOption {
	return func(c *CachedOracle) {
		if l != nil {
			c.logger = l
		}
	}
}

// NewCachedOracle wraps inner with a cache backed by client.
func NewCachedOracle(inner pricing.Oracle, client redis.Cmdable, opts ...CacheOption) *CachedOracle {
	c := &CachedOracle{
		inner:  inner,
		client: client,
		ttl:    defaultCacheTTL,
		now:    time.Now,
		logger: logger.Nop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// CacheKey is the Redis key for symbol at the minute containing when.
// Seconds and below are truncated, so instants in the same minute collide.
func CacheKey(symbol string, when time.Time) string {
	return fmt.Sprintf("price:%s:%d", strings.ToUpper(symbol), when.Unix()/60)
}

// PriceAt implements pricing.Oracle.
func (c *CachedOracle) PriceAt(ctx context.Context, symbol string, when time.Time) (float64, error) {
	// The current minute may still move.
	if !when.Before(c.now().Truncate(time.Minute)) {
		metrics.RecordOracleCache("bypass")
		return c.inner.PriceAt(ctx, symbol, when)
	}

	key := CacheKey(symbol, when)
	start := time.Now()
	raw, err := c.client.Get(ctx, key).Result()
	switch {
	case err == nil:
		if price, perr := strconv.ParseFloat(raw, 64); perr == nil && price > 0 {
			metrics.RecordOracleCache("hit")
			metrics.RecordOracleLatency(sourceCache, float64(time.Since(start).Milliseconds()))
			return price, nil
		}
		c.logger.Warn(ctx, "discarding malformed cached price", logger.String("key", key), logger.String("value", raw))
		metrics.RecordOracleCache("miss")
	case errors.Is(err, redis.Nil):
		metrics.RecordOracleCache("miss")
	default:
		metrics.RecordOracleCache("error")
		c.logger.Warn(ctx, "price cache read failed", logger.String("key", key), logger.Error(err))
	}

	price, err := c.inner.PriceAt(ctx, symbol, when)
	if err != nil {
		return 0, err
	}

	if err := c.client.Set(ctx, key, strconv.FormatFloat(price, 'f', -1, 64), c.ttl).Err(); err != nil {
		metrics.RecordOracleCache("error")
		c.logger.Warn(ctx, "price cache write failed", logger.String("key", key), logger.Error(err))
	}
	return price, nil
}
