package memory

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"swarna/backend/internal/domain"
	"swarna/backend/internal/store"
)

func seedProduct(t *testing.T, s *Store, sku string, stock int) {
	t.Helper()
	_, err := s.CreateProduct(context.Background(), domain.Product{
		SKU:         sku,
		Name:        "Test " + sku,
		Metal:       domain.MetalSilver,
		WeightGrams: decimal.NewFromInt(1),
		Stock:       stock,
	})
	require.NoError(t, err)
}

func TestDecrementStockPolicies(t *testing.T) {
	s := New()
	seedProduct(t, s, "RING-001", 1)
	ctx := context.Background()

	_, err := s.DecrementStock(ctx, "RING-001", 2, store.StockRejectOversell)
	require.ErrorIs(t, err, store.ErrInsufficientStock)

	left, err := s.DecrementStock(ctx, "RING-001", 2, store.StockAllowNegative)
	require.NoError(t, err)
	assert.Equal(t, -1, left)

	_, err = s.DecrementStock(ctx, "NOPE", 1, store.StockAllowNegative)
	require.ErrorIs(t, err, store.ErrProductNotFound)
}

func TestConcurrentDecrementsDoNotLoseUpdates(t *testing.T) {
	s := New()
	seedProduct(t, s, "CHAIN-001", 100)

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = s.DecrementStock(context.Background(), "CHAIN-001", 2, store.StockAllowNegative)
		}()
	}
	wg.Wait()

	product, err := s.GetProductBySKU(context.Background(), "CHAIN-001")
	require.NoError(t, err)
	assert.Equal(t, 0, product.Stock)
}

func TestWithinTxRollsBackOrderAndStock(t *testing.T) {
	s := New()
	seedProduct(t, s, "RING-001", 5)
	ctx := context.Background()

	err := s.WithinTx(ctx, func(tx store.Tx) error {
		if _, err := tx.NextSequenceValue(ctx, "ORD"); err != nil {
			return err
		}
		if err := tx.InsertOrder(ctx, domain.Order{OrderID: "ORD-2025-0001", InvoiceNumber: "INV/2025/0001"}); err != nil {
			return err
		}
		if _, err := tx.DecrementStock(ctx, "RING-001", 2, store.StockAllowNegative); err != nil {
			return err
		}
		_, err := tx.DecrementStock(ctx, "MISSING", 1, store.StockAllowNegative)
		return err
	})
	require.ErrorIs(t, err, store.ErrProductNotFound)

	product, err := s.GetProductBySKU(ctx, "RING-001")
	require.NoError(t, err)
	assert.Equal(t, 5, product.Stock)

	_, err = s.FindOrderByID(ctx, "ORD-2025-0001")
	assert.ErrorIs(t, err, store.ErrOrderNotFound)

	// The counter is not handed back; the next allocation leaves a gap.
	next, err := s.NextSequenceValue(ctx, "ORD")
	require.NoError(t, err)
	assert.Equal(t, int64(2), next)
}

func TestInsertOrderRejectsDuplicateIdentifiers(t *testing.T) {
	s := New()
	ctx := context.Background()
	order := domain.Order{OrderID: "ORD-2025-0001", InvoiceNumber: "INV/2025/0001"}

	require.NoError(t, s.WithinTx(ctx, func(tx store.Tx) error {
		return tx.InsertOrder(ctx, order)
	}))

	err := s.WithinTx(ctx, func(tx store.Tx) error {
		return tx.InsertOrder(ctx, domain.Order{OrderID: "ORD-2025-0002", InvoiceNumber: "INV/2025/0001"})
	})
	require.ErrorIs(t, err, store.ErrOrderPersistence)
}

func TestCreateReturnIsUniquePerOrder(t *testing.T) {
	s := New()
	ctx := context.Background()

	var wg sync.WaitGroup
	var mu sync.Mutex
	created, duplicates := 0, 0
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := s.CreateReturn(ctx, domain.Return{OrderID: "ORD-2025-0003", ReturnReason: "defective", ReturnType: "cash"})
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				created++
			case errors.Is(err, store.ErrDuplicateReturn):
				duplicates++
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, created)
	assert.Equal(t, 9, duplicates)

	exists, err := s.ReturnExistsForOrder(ctx, "ORD-2025-0003")
	require.NoError(t, err)
	assert.True(t, exists)
}

func TestUpsertRateRejectsNonPositive(t *testing.T) {
	s := New()
	_, err := s.UpsertRate(context.Background(), domain.Rate{Metal: domain.MetalSilver, PricePerGram: decimal.Zero})
	require.ErrorIs(t, err, store.ErrInvalidRate)

	_, err = s.GetRate(context.Background(), domain.MetalSilver, "")
	require.ErrorIs(t, err, store.ErrRateNotFound)
}
