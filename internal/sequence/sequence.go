// Package sequence mints human-readable order, invoice and SKU identifiers
// from durable counters.
package sequence

import (
	"context"
	"fmt"
	"strings"
	"time"

	"swarna/backend/internal/domain"
	"swarna/backend/internal/store"
)

const padLength = 4

// Kind describes one family of identifiers backed by one counter key.
type Kind struct {
	Key       string
	Prefix    string
	Separator string
}

var (
	OrderID       = Kind{Key: "ORD", Prefix: "ORD", Separator: "-"}
	InvoiceNumber = Kind{Key: "INV", Prefix: "INV", Separator: "/"}
)

type Options struct {
	// ResetYearly scopes every counter to the calendar year, so numbering
	// restarts at 1 each January. When false the counter is global and the
	// year in an identifier is only a label.
	ResetYearly bool
	Clock       func() time.Time
	Location    *time.Location
}

type Allocator struct {
	resetYearly bool
	clock       func() time.Time
	loc         *time.Location
}

func NewAllocator(opts Options) *Allocator {
	if opts.Clock == nil {
		opts.Clock = time.Now
	}
	if opts.Location == nil {
		opts.Location = time.UTC
	}
	return &Allocator{
		resetYearly: opts.ResetYearly,
		clock:       opts.Clock,
		loc:         opts.Location,
	}
}

// Year returns the current calendar year in the store's time zone.
func (a *Allocator) Year() int {
	return a.clock().In(a.loc).Year()
}

// NextValue atomically increments the counter for key and returns the new
// value. yearScope only affects the storage key when yearly reset is on.
func (a *Allocator) NextValue(ctx context.Context, seq store.Sequencer, key string, yearScope int) (int64, error) {
	key = strings.TrimSpace(key)
	if key == "" {
		return 0, fmt.Errorf("%w: sequence key is required", store.ErrValidation)
	}
	value, err := seq.NextSequenceValue(ctx, a.counterKey(key, yearScope))
	if err != nil {
		return 0, err
	}
	return value, nil
}

// Next allocates the next identifier of the given kind for the current year.
func (a *Allocator) Next(ctx context.Context, seq store.Sequencer, kind Kind) (string, error) {
	year := a.Year()
	value, err := a.NextValue(ctx, seq, kind.Key, year)
	if err != nil {
		return "", err
	}
	return FormatIdentifier(kind.Prefix, kind.Separator, year, value), nil
}

// NextSKU allocates a catalog SKU such as GLD-000012. SKU counters are never
// year scoped.
func (a *Allocator) NextSKU(ctx context.Context, seq store.Sequencer, metal string) (string, error) {
	prefix := "SLV"
	if metal == domain.MetalGold {
		prefix = "GLD"
	}
	value, err := seq.NextSequenceValue(ctx, "SKU-"+prefix)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%s-%06d", prefix, value), nil
}

func (a *Allocator) counterKey(key string, year int) string {
	if a.resetYearly && year > 0 {
		return fmt.Sprintf("%s:%d", key, year)
	}
	return key
}

// FormatIdentifier renders prefix, year and counter joined by separator, with
// the counter zero padded to four digits. Larger counters print in full.
func FormatIdentifier(prefix string, separator string, year int, counter int64) string {
	return fmt.Sprintf("%s%s%d%s%0*d", prefix, separator, year, separator, padLength, counter)
}
