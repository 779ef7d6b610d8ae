package service

import (
	"cmp"
	"context"
	"fmt"
	"slices"
	"strings"

	"go.uber.org/zap"

	"swarna/backend/internal/domain"
	"swarna/backend/internal/events"
	"swarna/backend/internal/sequence"
	"swarna/backend/internal/store"
)

const paymentModeSplit = "split"

var supportedPaymentMethods = map[string]struct{}{
	"cash":   {},
	"card":   {},
	"upi":    {},
	"wallet": {},
}

// CreateOrder allocates the order and invoice identifiers, stores the order
// and decrements stock for every line in a single transaction. Totals are
// computed here; a line with no name or unit price takes them from the
// catalog.
func (s *Service) CreateOrder(ctx context.Context, req domain.OrderCreateRequest) (domain.Order, error) {
	lines, err := normalizeLines(req.Items)
	if err != nil {
		return domain.Order{}, err
	}
	if req.Discount < 0 || req.Tax < 0 {
		return domain.Order{}, fmt.Errorf("%w: discount and tax must not be negative", store.ErrValidation)
	}
	if req.Discount > domain.MaxAmount || req.Tax > domain.MaxAmount {
		return domain.Order{}, fmt.Errorf("%w: discount and tax", store.ErrAmountOutOfRange)
	}
	mode, splits, err := normalizePayment(req.PaymentMode, req.PaymentMethods)
	if err != nil {
		return domain.Order{}, err
	}

	var created domain.Order
	err = s.repo.WithinTx(ctx, func(tx store.Tx) error {
		orderID, err := s.allocator.Next(ctx, tx, sequence.OrderID)
		if err != nil {
			return err
		}
		invoiceNumber, err := s.allocator.Next(ctx, tx, sequence.InvoiceNumber)
		if err != nil {
			return err
		}

		items := make([]domain.LineItem, 0, len(lines))
		for _, line := range lines {
			if line.Name == "" || line.UnitPrice == 0 {
				product, err := tx.GetProductBySKU(ctx, line.SKU)
				if err != nil {
					return fmt.Errorf("sku %s: %w", line.SKU, err)
				}
				if line.Name == "" {
					line.Name = product.Name
				}
				if line.UnitPrice == 0 {
					line.UnitPrice = product.Price
				}
			}
			if line.UnitPrice > domain.MaxAmount {
				return fmt.Errorf("%w: price for %s", store.ErrAmountOutOfRange, line.SKU)
			}
			items = append(items, line)
		}

		order := domain.Order{
			OrderID:        orderID,
			InvoiceNumber:  invoiceNumber,
			Customer:       normalizeCustomer(req.Customer),
			Items:          items,
			PaymentMode:    mode,
			PaymentMethods: splits,
			Discount:       req.Discount,
			Tax:            req.Tax,
			CreatedBy:      actorName(ctx),
			CreatedAt:      s.now(),
		}
		if err := applyTotals(&order); err != nil {
			return err
		}
		if err := validateTotals(order); err != nil {
			return err
		}

		if err := tx.InsertOrder(ctx, order); err != nil {
			return err
		}
		for _, d := range stockDemand(order.Items) {
			if _, err := tx.DecrementStock(ctx, d.sku, d.qty, s.stockPolicy); err != nil {
				return fmt.Errorf("sku %s: %w", d.sku, err)
			}
		}
		created = order
		return nil
	})
	if err != nil {
		s.metrics.OrderFailures.WithLabelValues(store.Kind(err)).Inc()
		s.logger.Info("order rejected", zap.String("kind", store.Kind(err)), zap.Error(err))
		return domain.Order{}, err
	}

	s.metrics.OrdersCreated.Inc()
	s.metrics.OrderValue.Add(float64(created.GrandTotal))
	s.logAudit(ctx, "order_create", "order", created.OrderID, fmt.Sprintf("invoice=%s,grand_total=%d,lines=%d", created.InvoiceNumber, created.GrandTotal, len(created.Items)))
	s.publish(ctx, events.TypeOrderCreated, created.OrderID, created)

	return created, nil
}

func (s *Service) GetOrder(ctx context.Context, orderID string) (domain.Order, error) {
	orderID = strings.TrimSpace(orderID)
	if orderID == "" {
		return domain.Order{}, store.ErrInvalidInput
	}
	order, err := s.repo.FindOrderByID(ctx, orderID)
	if err != nil {
		return domain.Order{}, err
	}
	return *order, nil
}

// ListOrders returns every order, newest first.
func (s *Service) ListOrders(ctx context.Context) ([]domain.Order, error) {
	return s.repo.ListOrders(ctx)
}

// applyTotals recomputes subtotal and grand total from the lines. Every line
// is already bounded, so a running sum above domain.MaxAmount is the only
// overflow risk and is rejected.
func applyTotals(order *domain.Order) error {
	subtotal := int64(0)
	for _, item := range order.Items {
		subtotal += item.Total()
		if subtotal > domain.MaxAmount {
			return fmt.Errorf("%w: order subtotal", store.ErrAmountOutOfRange)
		}
	}
	order.Subtotal = subtotal
	order.GrandTotal = subtotal - order.Discount + order.Tax
	return nil
}

func validateTotals(order domain.Order) error {
	if order.GrandTotal < 0 {
		return fmt.Errorf("%w: discount exceeds order value", store.ErrValidation)
	}
	if order.GrandTotal > domain.MaxAmount {
		return fmt.Errorf("%w: order grand total", store.ErrAmountOutOfRange)
	}
	if len(order.PaymentMethods) == 0 {
		return nil
	}
	paid := int64(0)
	for _, split := range order.PaymentMethods {
		paid += split.Amount
		if paid > order.GrandTotal {
			break
		}
	}
	if paid != order.GrandTotal {
		return fmt.Errorf("%w: payments do not add up to the order total %d", store.ErrValidation, order.GrandTotal)
	}
	return nil
}

type skuDemand struct {
	sku string
	qty int
}

// stockDemand merges lines per SKU and orders them by SKU so concurrent
// orders lock product rows in the same order.
func stockDemand(items []domain.LineItem) []skuDemand {
	totals := make(map[string]int, len(items))
	for _, item := range items {
		totals[item.SKU] += item.Qty
	}
	demand := make([]skuDemand, 0, len(totals))
	for sku, qty := range totals {
		demand = append(demand, skuDemand{sku: sku, qty: qty})
	}
	slices.SortFunc(demand, func(a, b skuDemand) int {
		return cmp.Compare(a.sku, b.sku)
	})
	return demand
}

func normalizeLines(items []domain.LineItem) ([]domain.LineItem, error) {
	if len(items) == 0 {
		return nil, fmt.Errorf("%w: order has no items", store.ErrValidation)
	}
	lines := make([]domain.LineItem, 0, len(items))
	for _, item := range items {
		item.SKU = normalizeSKU(item.SKU)
		item.Name = strings.TrimSpace(item.Name)
		if item.SKU == "" {
			return nil, fmt.Errorf("%w: line item sku is required", store.ErrValidation)
		}
		if item.Qty < 1 {
			return nil, fmt.Errorf("%w: quantity for %s must be at least 1", store.ErrValidation, item.SKU)
		}
		if item.Qty > domain.MaxLineQty {
			return nil, fmt.Errorf("%w: quantity for %s", store.ErrAmountOutOfRange, item.SKU)
		}
		if item.UnitPrice < 0 {
			return nil, fmt.Errorf("%w: price for %s must not be negative", store.ErrValidation, item.SKU)
		}
		if item.UnitPrice > domain.MaxAmount {
			return nil, fmt.Errorf("%w: price for %s", store.ErrAmountOutOfRange, item.SKU)
		}
		lines = append(lines, item)
	}
	return lines, nil
}

func normalizePayment(mode string, methods []domain.PaymentSplit) (string, []domain.PaymentSplit, error) {
	mode = strings.ToLower(strings.TrimSpace(mode))
	if len(methods) == 0 {
		if mode == "" {
			mode = "cash"
		}
		if _, ok := supportedPaymentMethods[mode]; !ok {
			return "", nil, fmt.Errorf("%w: unsupported payment mode %q", store.ErrValidation, mode)
		}
		return mode, nil, nil
	}

	splits := make([]domain.PaymentSplit, 0, len(methods))
	for _, split := range methods {
		method := strings.ToLower(strings.TrimSpace(split.Method))
		if _, ok := supportedPaymentMethods[method]; !ok {
			return "", nil, fmt.Errorf("%w: unsupported payment method %q", store.ErrValidation, split.Method)
		}
		if split.Amount < 1 {
			return "", nil, fmt.Errorf("%w: payment amounts must be positive", store.ErrValidation)
		}
		if split.Amount > domain.MaxAmount {
			return "", nil, fmt.Errorf("%w: payment amount", store.ErrAmountOutOfRange)
		}
		splits = append(splits, domain.PaymentSplit{Method: method, Amount: split.Amount})
	}

	switch {
	case mode == "" && len(splits) == 1:
		mode = splits[0].Method
	case mode == "":
		mode = paymentModeSplit
	case mode == paymentModeSplit:
		if len(splits) < 2 {
			return "", nil, fmt.Errorf("%w: split payment needs at least two methods", store.ErrValidation)
		}
	case len(splits) == 1 && mode == splits[0].Method:
	default:
		return "", nil, fmt.Errorf("%w: payment mode %q does not match the payment methods", store.ErrValidation, mode)
	}
	return mode, splits, nil
}

func normalizeCustomer(c domain.CustomerSnapshot) domain.CustomerSnapshot {
	return domain.CustomerSnapshot{
		Name:  strings.TrimSpace(c.Name),
		Phone: strings.TrimSpace(c.Phone),
		Email: strings.ToLower(strings.TrimSpace(c.Email)),
	}
}
