package cache

import (
	"context"
	"time"

	"go.uber.org/zap"

	"swarna/backend/internal/domain"
)

type RateSource interface {
	GetRate(ctx context.Context, metal string, purity string) (*domain.Rate, error)
}

// CachedRates is a read-through rate reader. Cache failures fall back to the
// source and are only logged. Read-through fills never overwrite an entry, so
// a fill racing with Refresh cannot replace the newer rate.
type CachedRates struct {
	source RateSource
	cache  RateCache
	ttl    time.Duration
	logger *zap.Logger
}

func NewCachedRates(source RateSource, cache RateCache, ttl time.Duration, logger *zap.Logger) *CachedRates {
	if cache == nil {
		cache = NoopRateCache{}
	}
	if ttl <= 0 {
		ttl = time.Minute
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CachedRates{source: source, cache: cache, ttl: ttl, logger: logger}
}

func (c *CachedRates) GetRate(ctx context.Context, metal string, purity string) (*domain.Rate, error) {
	key := RateKey(metal, purity)
	cached, ok, err := c.cache.Get(ctx, key)
	if err != nil {
		c.logger.Warn("rate cache read failed", zap.String("key", key), zap.Error(err))
	}
	if ok {
		return cached, nil
	}

	rate, err := c.source.GetRate(ctx, metal, purity)
	if err != nil {
		return nil, err
	}
	if _, err := c.cache.SetIfAbsent(ctx, key, rate, c.ttl); err != nil {
		c.logger.Warn("rate cache write failed", zap.String("key", key), zap.Error(err))
	}
	return rate, nil
}

// Refresh replaces the cached entry with a freshly stored rate. If the write
// fails the entry is dropped instead.
func (c *CachedRates) Refresh(ctx context.Context, rate domain.Rate) {
	key := RateKey(rate.Metal, rate.Purity)
	if err := c.cache.Set(ctx, key, &rate, c.ttl); err != nil {
		c.logger.Warn("rate cache refresh failed", zap.String("key", key), zap.Error(err))
		c.Invalidate(ctx, rate.Metal, rate.Purity)
	}
}

func (c *CachedRates) Invalidate(ctx context.Context, metal string, purity string) {
	key := RateKey(metal, purity)
	if err := c.cache.Delete(ctx, key); err != nil {
		c.logger.Warn("rate cache invalidate failed", zap.String("key", key), zap.Error(err))
	}
}
