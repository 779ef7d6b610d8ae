package service

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"go.uber.org/zap"

	"swarna/backend/internal/domain"
	"swarna/backend/internal/events"
	"swarna/backend/internal/store"
)

var returnReasons = map[string]struct{}{
	"defective":             {},
	"wrong_item":            {},
	"size_issue":            {},
	"quality_issue":         {},
	"customer_changed_mind": {},
	"other":                 {},
}

var returnTypes = map[string]struct{}{
	"cash":   {},
	"card":   {},
	"upi":    {},
	"wallet": {},
}

var returnStatuses = map[string]struct{}{
	domain.ReturnStatusCompleted: {},
	"pending":                    {},
}

// ReturnExists reports whether a return was already recorded for orderID.
// It is advisory; CreateReturn is guarded by the store's unique constraint.
func (s *Service) ReturnExists(ctx context.Context, orderID string) (bool, error) {
	orderID = strings.TrimSpace(orderID)
	if orderID == "" {
		return false, store.ErrInvalidInput
	}
	return s.repo.ReturnExistsForOrder(ctx, orderID)
}

// CreateReturn records the single permitted return for an order. The order
// and stock are left untouched.
func (s *Service) CreateReturn(ctx context.Context, req domain.ReturnCreateRequest) (domain.Return, error) {
	ret, err := s.buildReturn(ctx, req)
	if err != nil {
		s.metrics.ReturnRejected.WithLabelValues(store.Kind(err)).Inc()
		return domain.Return{}, err
	}

	created, err := s.repo.CreateReturn(ctx, ret)
	if err != nil {
		if errors.Is(err, store.ErrDuplicateReturn) {
			s.logger.Info("concurrent duplicate return rejected", zap.String("order_id", ret.OrderID))
		}
		s.metrics.ReturnRejected.WithLabelValues(store.Kind(err)).Inc()
		return domain.Return{}, err
	}

	s.metrics.ReturnsCreated.Inc()
	s.logAudit(ctx, "return_create", "return", created.ID, fmt.Sprintf("order=%s,reason=%s,type=%s,amount=%d", created.OrderID, created.ReturnReason, created.ReturnType, created.GrandTotal))
	s.publish(ctx, events.TypeReturnCreated, created.OrderID, created)
	return *created, nil
}

func (s *Service) ListReturns(ctx context.Context) ([]domain.Return, error) {
	return s.repo.ListReturns(ctx)
}

func (s *Service) buildReturn(ctx context.Context, req domain.ReturnCreateRequest) (domain.Return, error) {
	orderID := strings.TrimSpace(req.OrderID)
	if orderID == "" {
		return domain.Return{}, fmt.Errorf("%w: orderId is required", store.ErrValidation)
	}
	reason := strings.ToLower(strings.TrimSpace(req.ReturnReason))
	if _, ok := returnReasons[reason]; !ok {
		return domain.Return{}, store.ErrInvalidReturnReason
	}
	returnType := strings.ToLower(strings.TrimSpace(req.ReturnType))
	if _, ok := returnTypes[returnType]; !ok {
		return domain.Return{}, store.ErrInvalidReturnType
	}
	status := strings.ToLower(strings.TrimSpace(req.Status))
	if status == "" {
		status = domain.ReturnStatusCompleted
	}
	if _, ok := returnStatuses[status]; !ok {
		return domain.Return{}, fmt.Errorf("%w: unsupported return status %q", store.ErrValidation, req.Status)
	}
	returnedAt, err := s.parseReturnedAt(req.ReturnDate, req.ReturnTime)
	if err != nil {
		return domain.Return{}, err
	}

	order, err := s.repo.FindOrderByID(ctx, orderID)
	if err != nil {
		return domain.Return{}, err
	}
	exists, err := s.repo.ReturnExistsForOrder(ctx, orderID)
	if err != nil {
		return domain.Return{}, err
	}
	if exists {
		return domain.Return{}, store.ErrDuplicateReturn
	}

	ret := domain.Return{
		OrderID:       order.OrderID,
		InvoiceNumber: strings.TrimSpace(req.InvoiceNumber),
		Customer:      order.Customer,
		Items:         slices.Clone(order.Items),
		GrandTotal:    order.GrandTotal,
		ReturnReason:  reason,
		ReturnType:    returnType,
		Status:        status,
		ProcessedBy:   actorName(ctx),
		ReturnedAt:    returnedAt,
		CreatedAt:     s.now(),
	}
	if ret.InvoiceNumber == "" {
		ret.InvoiceNumber = order.InvoiceNumber
	}
	if req.Customer != nil {
		ret.Customer = normalizeCustomer(*req.Customer)
	}
	if len(req.Items) > 0 {
		items, err := normalizeLines(req.Items)
		if err != nil {
			return domain.Return{}, err
		}
		ret.Items = items
	}
	if req.GrandTotal != nil {
		if *req.GrandTotal < 0 {
			return domain.Return{}, fmt.Errorf("%w: grandTotal must not be negative", store.ErrValidation)
		}
		ret.GrandTotal = *req.GrandTotal
	}
	return ret, nil
}

// parseReturnedAt reads the till's local date and time. Missing values fall
// back to now.
func (s *Service) parseReturnedAt(date string, clock string) (time.Time, error) {
	date = strings.TrimSpace(date)
	clock = strings.TrimSpace(clock)
	if date == "" {
		return s.now(), nil
	}
	if clock == "" {
		clock = "00:00"
	}
	for _, layout := range []string{"2006-01-02 15:04:05", "2006-01-02 15:04"} {
		if at, err := time.ParseInLocation(layout, date+" "+clock, s.loc); err == nil {
			return at.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("%w: invalid returnDate/returnTime", store.ErrValidation)
}
