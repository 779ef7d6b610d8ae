// Package pricing computes jewellery sale prices from metal rates.
//
// price = round_half_up(weight*rate + weight*rate*wastage/100 + making + stone)
//
// All arithmetic runs on decimal values; only the final amount is rounded to
// whole rupees.
package pricing

import (
	"context"
	"errors"
	"strings"

	"github.com/shopspring/decimal"

	"swarna/backend/internal/domain"
	"swarna/backend/internal/store"
)

// MissingRatePolicy controls what happens when no rate is stored for an item.
type MissingRatePolicy string

const (
	MissingRateError MissingRatePolicy = "error"
	MissingRateZero  MissingRatePolicy = "zero"
)

func ParseMissingRatePolicy(raw string) MissingRatePolicy {
	if MissingRatePolicy(strings.ToLower(strings.TrimSpace(raw))) == MissingRateZero {
		return MissingRateZero
	}
	return MissingRateError
}

var goldPurities = map[string]struct{}{
	"24K": {},
	"22K": {},
	"18K": {},
	"14K": {},
}

var (
	hundred   = decimal.NewFromInt(100)
	maxAmount = decimal.NewFromInt(domain.MaxAmount)
)

type RateReader interface {
	GetRate(ctx context.Context, metal string, purity string) (*domain.Rate, error)
}

type Input struct {
	Metal          string
	Purity         string
	WeightGrams    decimal.Decimal
	WastagePercent decimal.Decimal
	MakingCharge   int64
	StonePrice     int64
}

func InputFromProduct(p domain.Product) Input {
	return Input{
		Metal:          p.Metal,
		Purity:         p.Purity,
		WeightGrams:    p.WeightGrams,
		WastagePercent: p.WastagePercent,
		MakingCharge:   p.MakingCharge,
		StonePrice:     p.StonePrice,
	}
}

// NormalizeRateKey validates a (metal, purity) pair and returns its canonical
// form. Silver has no purity grade, so any supplied purity is dropped.
func NormalizeRateKey(metal string, purity string) (string, string, error) {
	metal = strings.ToLower(strings.TrimSpace(metal))
	purity = strings.ToUpper(strings.TrimSpace(purity))

	switch metal {
	case domain.MetalGold:
		if _, ok := goldPurities[purity]; !ok {
			return "", "", store.ErrInvalidPurity
		}
		return metal, purity, nil
	case domain.MetalSilver:
		return metal, "", nil
	default:
		return "", "", store.ErrInvalidMetal
	}
}

type Engine struct {
	rates   RateReader
	missing MissingRatePolicy
}

func NewEngine(rates RateReader, missing MissingRatePolicy) *Engine {
	if missing == "" {
		missing = MissingRateError
	}
	return &Engine{rates: rates, missing: missing}
}

// ComputePrice looks up the current rate for the input's metal and purity and
// returns the sale price in whole rupees.
func (e *Engine) ComputePrice(ctx context.Context, in Input) (int64, error) {
	metal, purity, err := NormalizeRateKey(in.Metal, in.Purity)
	if err != nil {
		return 0, err
	}
	in.Metal, in.Purity = metal, purity
	if err := validate(in); err != nil {
		return 0, err
	}

	if in.WeightGrams.IsZero() {
		return Calculate(decimal.Zero, in)
	}

	rate, err := e.rates.GetRate(ctx, metal, purity)
	if err != nil {
		if errors.Is(err, store.ErrRateNotFound) && e.missing == MissingRateZero {
			return Calculate(decimal.Zero, in)
		}
		return 0, err
	}
	return Calculate(rate.PricePerGram, in)
}

// Calculate applies the price formula with an explicit rate. Inputs are
// assumed to be validated. A price above domain.MaxAmount is rejected with
// ErrAmountOutOfRange.
func Calculate(ratePerGram decimal.Decimal, in Input) (int64, error) {
	base := in.WeightGrams.Mul(ratePerGram)
	wastage := base.Mul(in.WastagePercent).Div(hundred)
	total := base.
		Add(wastage).
		Add(decimal.NewFromInt(in.MakingCharge)).
		Add(decimal.NewFromInt(in.StonePrice))
	return roundHalfUp(total)
}

func roundHalfUp(d decimal.Decimal) (int64, error) {
	rounded := d.Add(decimal.New(5, -1)).Floor()
	if rounded.GreaterThan(maxAmount) {
		return 0, store.ErrAmountOutOfRange
	}
	return rounded.IntPart(), nil
}

func validate(in Input) error {
	if in.WeightGrams.IsNegative() || in.WastagePercent.IsNegative() {
		return store.ErrInvalidInput
	}
	if in.MakingCharge < 0 || in.StonePrice < 0 {
		return store.ErrInvalidInput
	}
	return nil
}
