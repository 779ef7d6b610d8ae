package cache

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"swarna/backend/internal/domain"
	"swarna/backend/internal/store"
)

type mapCache struct {
	mu     sync.Mutex
	values map[string]domain.Rate
}

func (m *mapCache) Get(_ context.Context, key string) (*domain.Rate, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.values[key]
	if !ok {
		return nil, false, nil
	}
	return &v, true, nil
}

func (m *mapCache) Set(_ context.Context, key string, value *domain.Rate, _ time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.values[key] = *value
	return nil
}

func (m *mapCache) SetIfAbsent(_ context.Context, key string, value *domain.Rate, _ time.Duration) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.values[key]; ok {
		return false, nil
	}
	m.values[key] = *value
	return true, nil
}

func (m *mapCache) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.values, key)
	return nil
}

type countingSource struct {
	calls int
	rate  *domain.Rate
}

func (s *countingSource) GetRate(_ context.Context, _ string, _ string) (*domain.Rate, error) {
	s.calls++
	if s.rate == nil {
		return nil, store.ErrRateNotFound
	}
	r := *s.rate
	return &r, nil
}

func TestCachedRatesReadsThroughOnce(t *testing.T) {
	source := &countingSource{rate: &domain.Rate{Metal: "gold", Purity: "22K", PricePerGram: decimal.NewFromInt(6000)}}
	rates := NewCachedRates(source, &mapCache{values: map[string]domain.Rate{}}, time.Minute, nil)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		rate, err := rates.GetRate(ctx, "gold", "22K")
		require.NoError(t, err)
		assert.True(t, rate.PricePerGram.Equal(decimal.NewFromInt(6000)))
	}
	assert.Equal(t, 1, source.calls)

	rates.Invalidate(ctx, "gold", "22K")
	_, err := rates.GetRate(ctx, "gold", "22K")
	require.NoError(t, err)
	assert.Equal(t, 2, source.calls)
}

func TestCachedRatesDoesNotCacheMisses(t *testing.T) {
	source := &countingSource{}
	rates := NewCachedRates(source, &mapCache{values: map[string]domain.Rate{}}, time.Minute, nil)

	_, err := rates.GetRate(context.Background(), "silver", "")
	require.ErrorIs(t, err, store.ErrRateNotFound)
	_, err = rates.GetRate(context.Background(), "silver", "")
	require.ErrorIs(t, err, store.ErrRateNotFound)
	assert.Equal(t, 2, source.calls)
}

// gatedSource parks the first read until released, returning the rate it saw
// on entry.
type gatedSource struct {
	rate    domain.Rate
	entered chan struct{}
	release chan struct{}
	once    sync.Once
}

func (s *gatedSource) GetRate(_ context.Context, _ string, _ string) (*domain.Rate, error) {
	r := s.rate
	s.once.Do(func() {
		close(s.entered)
		<-s.release
	})
	return &r, nil
}

func TestRefreshWinsOverConcurrentReadThrough(t *testing.T) {
	oldRate := domain.Rate{Metal: "gold", Purity: "22K", PricePerGram: decimal.NewFromInt(6000)}
	newRate := domain.Rate{Metal: "gold", Purity: "22K", PricePerGram: decimal.NewFromInt(6200)}
	source := &gatedSource{rate: oldRate, entered: make(chan struct{}), release: make(chan struct{})}
	rates := NewCachedRates(source, &mapCache{values: map[string]domain.Rate{}}, time.Minute, nil)
	ctx := context.Background()

	done := make(chan struct{})
	go func() {
		defer close(done)
		_, _ = rates.GetRate(ctx, "gold", "22K")
	}()

	<-source.entered
	rates.Refresh(ctx, newRate)
	close(source.release)
	<-done

	rate, err := rates.GetRate(ctx, "gold", "22K")
	require.NoError(t, err)
	assert.True(t, rate.PricePerGram.Equal(decimal.NewFromInt(6200)), "stale rate cached: %s", rate.PricePerGram)
}
