package store

import (
	"context"
	"strings"
	"time"

	"swarna/backend/internal/domain"
)

// StockPolicy decides what a decrement does when stock would go below zero.
type StockPolicy string

const (
	StockAllowNegative  StockPolicy = "allow_negative"
	StockRejectOversell StockPolicy = "reject"
)

func ParseStockPolicy(raw string) StockPolicy {
	if StockPolicy(strings.ToLower(strings.TrimSpace(raw))) == StockRejectOversell {
		return StockRejectOversell
	}
	return StockAllowNegative
}

// Sequencer hands out the next value of a named counter. Values are never
// reused; a rolled back allocation may leave a gap.
type Sequencer interface {
	NextSequenceValue(ctx context.Context, key string) (int64, error)
}

// Tx is the unit of work used for order creation. Everything done through it
// commits or rolls back together.
type Tx interface {
	Sequencer
	GetProductBySKU(ctx context.Context, sku string) (*domain.Product, error)
	InsertOrder(ctx context.Context, order domain.Order) error
	DecrementStock(ctx context.Context, sku string, qty int, policy StockPolicy) (int, error)
}

type Repository interface {
	Sequencer

	GetRate(ctx context.Context, metal string, purity string) (*domain.Rate, error)
	UpsertRate(ctx context.Context, rate domain.Rate) (*domain.Rate, error)
	ListRates(ctx context.Context) ([]domain.Rate, error)

	CreateProduct(ctx context.Context, product domain.Product) (*domain.Product, error)
	GetProductBySKU(ctx context.Context, sku string) (*domain.Product, error)
	ListProducts(ctx context.Context) ([]domain.Product, error)
	ListProductsByRate(ctx context.Context, metal string, purity string) ([]domain.Product, error)
	UpdateProductPrice(ctx context.Context, sku string, price int64, at time.Time) error
	DecrementStock(ctx context.Context, sku string, qty int, policy StockPolicy) (int, error)

	WithinTx(ctx context.Context, fn func(tx Tx) error) error
	FindOrderByID(ctx context.Context, orderID string) (*domain.Order, error)
	ListOrders(ctx context.Context) ([]domain.Order, error)

	ReturnExistsForOrder(ctx context.Context, orderID string) (bool, error)
	CreateReturn(ctx context.Context, ret domain.Return) (*domain.Return, error)
	ListReturns(ctx context.Context) ([]domain.Return, error)

	CreateAuditLog(ctx context.Context, entry domain.AuditLog) error
	ListAuditLogs(ctx context.Context, limit int) ([]domain.AuditLog, error)

	CreateUser(ctx context.Context, user domain.UserAccount) error
	ListUsers(ctx context.Context) ([]domain.UserAccount, error)
	UpdateUserPassword(ctx context.Context, username string, password string) error
}
