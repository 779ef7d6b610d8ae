package cache

import (
	"context"
	"time"

	"swarna/backend/internal/domain"
)

type RateCache interface {
	Get(ctx context.Context, key string) (*domain.Rate, bool, error)
	Set(ctx context.Context, key string, value *domain.Rate, ttl time.Duration) error
	// SetIfAbsent stores value only when key holds nothing and reports
	// whether it did.
	SetIfAbsent(ctx context.Context, key string, value *domain.Rate, ttl time.Duration) (bool, error)
	Delete(ctx context.Context, key string) error
}

type NoopRateCache struct{}

func (NoopRateCache) Get(_ context.Context, _ string) (*domain.Rate, bool, error) {
	return nil, false, nil
}

func (NoopRateCache) Set(_ context.Context, _ string, _ *domain.Rate, _ time.Duration) error {
	return nil
}

func (NoopRateCache) SetIfAbsent(_ context.Context, _ string, _ *domain.Rate, _ time.Duration) (bool, error) {
	return false, nil
}

func (NoopRateCache) Delete(_ context.Context, _ string) error {
	return nil
}

func RateKey(metal string, purity string) string {
	return "rate:" + metal + ":" + purity
}
