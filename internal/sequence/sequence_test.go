package sequence

import (
	"context"
	"errors"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"swarna/backend/internal/store"
	"swarna/backend/internal/store/memory"
)

type stubSequencer struct {
	mu    sync.Mutex
	keys  []string
	value int64
	err   error
}

func (s *stubSequencer) NextSequenceValue(_ context.Context, key string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.keys = append(s.keys, key)
	if s.err != nil {
		return 0, s.err
	}
	s.value++
	return s.value, nil
}

func fixedClock(year int) func() time.Time {
	return func() time.Time {
		return time.Date(year, 3, 14, 10, 0, 0, 0, time.UTC)
	}
}

func TestFormatIdentifier(t *testing.T) {
	assert.Equal(t, "ORD-2024-0007", FormatIdentifier("ORD", "-", 2024, 7))
	assert.Equal(t, "INV/2024/0007", FormatIdentifier("INV", "/", 2024, 7))
	assert.Equal(t, "ORD-2024-12345", FormatIdentifier("ORD", "-", 2024, 12345))
}

func TestNextUsesGlobalCounterByDefault(t *testing.T) {
	seq := &stubSequencer{}
	alloc := NewAllocator(Options{Clock: fixedClock(2025)})

	id, err := alloc.Next(context.Background(), seq, OrderID)
	require.NoError(t, err)
	assert.Equal(t, "ORD-2025-0001", id)

	inv, err := alloc.Next(context.Background(), seq, InvoiceNumber)
	require.NoError(t, err)
	assert.Equal(t, "INV/2025/0002", inv)

	assert.Equal(t, []string{"ORD", "INV"}, seq.keys)
}

func TestNextScopesKeyPerYearWhenResetting(t *testing.T) {
	seq := &stubSequencer{}
	alloc := NewAllocator(Options{ResetYearly: true, Clock: fixedClock(2026)})

	_, err := alloc.Next(context.Background(), seq, OrderID)
	require.NoError(t, err)
	assert.Equal(t, []string{"ORD:2026"}, seq.keys)
}

func TestNextValuePropagatesStorageErrors(t *testing.T) {
	boom := errors.New("connection reset")
	seq := &stubSequencer{err: store.Storage("next sequence", boom)}
	alloc := NewAllocator(Options{})

	_, err := alloc.NextValue(context.Background(), seq, "ORD", 2025)
	require.ErrorIs(t, err, store.ErrStorage)

	_, err = alloc.NextValue(context.Background(), seq, " ", 2025)
	require.ErrorIs(t, err, store.ErrValidation)
}

func TestNextSKU(t *testing.T) {
	seq := &stubSequencer{}
	alloc := NewAllocator(Options{})

	sku, err := alloc.NextSKU(context.Background(), seq, "gold")
	require.NoError(t, err)
	assert.Equal(t, "GLD-000001", sku)

	sku, err = alloc.NextSKU(context.Background(), seq, "silver")
	require.NoError(t, err)
	assert.Equal(t, "SLV-000002", sku)
}

func TestConcurrentNextValueIsDistinctAndConsecutive(t *testing.T) {
	repo := memory.New()
	alloc := NewAllocator(Options{})
	const workers = 64

	values := make([]int64, workers)
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			v, err := alloc.NextValue(context.Background(), repo, "ORD", 2025)
			if err != nil {
				t.Errorf("next value: %v", err)
				return
			}
			values[i] = v
		}(i)
	}
	wg.Wait()

	sort.Slice(values, func(i, j int) bool { return values[i] < values[j] })
	for i, v := range values {
		require.Equal(t, int64(i+1), v)
	}
}
