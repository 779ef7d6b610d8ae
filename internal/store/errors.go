package store

import (
	"errors"
	"fmt"
)

// Error kinds. Every error surfaced by the stores and the service wraps exactly
// one of these so callers can dispatch with errors.Is.
var (
	ErrValidation = errors.New("validation failed")
	ErrNotFound   = errors.New("not found")
	ErrConflict   = errors.New("conflict")
	ErrStorage    = errors.New("storage failure")
)

var (
	ErrInvalidInput        = fmt.Errorf("%w: invalid input", ErrValidation)
	ErrInvalidRate         = fmt.Errorf("%w: rate must be greater than zero", ErrValidation)
	ErrInvalidMetal        = fmt.Errorf("%w: unsupported metal", ErrValidation)
	ErrInvalidPurity       = fmt.Errorf("%w: unsupported purity", ErrValidation)
	ErrAmountOutOfRange    = fmt.Errorf("%w: amount out of range", ErrValidation)
	ErrInvalidReturnReason = fmt.Errorf("%w: unsupported return reason", ErrValidation)
	ErrInvalidReturnType   = fmt.Errorf("%w: unsupported return type", ErrValidation)

	ErrRateNotFound    = fmt.Errorf("%w: rate", ErrNotFound)
	ErrProductNotFound = fmt.Errorf("%w: product", ErrNotFound)
	ErrOrderNotFound   = fmt.Errorf("%w: order", ErrNotFound)

	ErrDuplicateReturn   = fmt.Errorf("%w: a return already exists for this order", ErrConflict)
	ErrOrderPersistence  = fmt.Errorf("%w: order could not be persisted", ErrConflict)
	ErrInsufficientStock = fmt.Errorf("%w: insufficient stock", ErrConflict)
	ErrDuplicateProduct  = fmt.Errorf("%w: sku already exists", ErrConflict)
)

// Storage wraps a raw driver error as a storage failure. The driver error stays
// in the chain for errors.As.
func Storage(op string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%w: %s: %w", ErrStorage, op, err)
}

// Kind names the error kind of err for metrics and logs.
func Kind(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrValidation):
		return "validation"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrConflict):
		return "conflict"
	case errors.Is(err, ErrStorage):
		return "storage"
	default:
		return "unknown"
	}
}
