package service

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"swarna/backend/internal/domain"
	"swarna/backend/internal/pricing"
	"swarna/backend/internal/store"
)

func (s *Service) ListRates(ctx context.Context) ([]domain.Rate, error) {
	return s.repo.ListRates(ctx)
}

func (s *Service) GetRate(ctx context.Context, metal string, purity string) (domain.Rate, error) {
	metal, purity, err := pricing.NormalizeRateKey(metal, purity)
	if err != nil {
		return domain.Rate{}, err
	}
	rate, err := s.rates.GetRate(ctx, metal, purity)
	if err != nil {
		return domain.Rate{}, err
	}
	return *rate, nil
}

// SetRate stores a new price per gram and reprices every product of that
// metal and purity. A product that fails to reprice keeps its old price and
// is logged; the rate update itself still succeeds.
func (s *Service) SetRate(ctx context.Context, metal string, req domain.RateUpdateRequest) (domain.RateUpdateResponse, error) {
	metal, purity, err := pricing.NormalizeRateKey(metal, req.Purity)
	if err != nil {
		return domain.RateUpdateResponse{}, err
	}
	if !req.Price.IsPositive() {
		return domain.RateUpdateResponse{}, store.ErrInvalidRate
	}

	saved, err := s.repo.UpsertRate(ctx, domain.Rate{
		Metal:        metal,
		Purity:       purity,
		PricePerGram: req.Price,
		UpdatedAt:    s.now(),
	})
	if err != nil {
		return domain.RateUpdateResponse{}, err
	}
	s.rates.Refresh(ctx, *saved)
	s.metrics.RatesUpdated.WithLabelValues(metal).Inc()

	repriced := s.repriceProducts(ctx, *saved)
	s.logAudit(ctx, "rate_update", "rate", metal+"/"+purity, fmt.Sprintf("price_per_gram=%s,repriced=%d", saved.PricePerGram.String(), repriced))

	return domain.RateUpdateResponse{Rate: *saved, RepricedCount: repriced}, nil
}

func (s *Service) repriceProducts(ctx context.Context, rate domain.Rate) int {
	products, err := s.repo.ListProductsByRate(ctx, rate.Metal, rate.Purity)
	if err != nil {
		s.logger.Error("failed to list products for repricing",
			zap.String("metal", rate.Metal),
			zap.String("purity", rate.Purity),
			zap.Error(err),
		)
		return 0
	}

	repriced := 0
	for _, product := range products {
		price, err := pricing.Calculate(rate.PricePerGram, pricing.InputFromProduct(product))
		if err != nil {
			s.logger.Warn("product cannot be repriced at new rate", zap.String("sku", product.SKU), zap.Error(err))
			continue
		}
		if price == product.Price {
			continue
		}
		if err := s.repo.UpdateProductPrice(ctx, product.SKU, price, s.now()); err != nil {
			s.logger.Warn("failed to reprice product", zap.String("sku", product.SKU), zap.Error(err))
			continue
		}
		repriced++
	}
	return repriced
}

func (s *Service) QuotePrice(ctx context.Context, req domain.PriceQuoteRequest) (domain.PriceQuoteResponse, error) {
	price, err := s.pricer.ComputePrice(ctx, pricing.Input{
		Metal:          req.Metal,
		Purity:         req.Purity,
		WeightGrams:    req.WeightGrams,
		WastagePercent: req.WastagePercent,
		MakingCharge:   req.MakingCharge,
		StonePrice:     req.StonePrice,
	})
	if err != nil {
		return domain.PriceQuoteResponse{}, err
	}
	return domain.PriceQuoteResponse{Price: price}, nil
}

func (s *Service) ListProducts(ctx context.Context) ([]domain.Product, error) {
	return s.repo.ListProducts(ctx)
}

func (s *Service) GetProduct(ctx context.Context, sku string) (domain.Product, error) {
	sku = normalizeSKU(sku)
	if sku == "" {
		return domain.Product{}, store.ErrInvalidInput
	}
	product, err := s.repo.GetProductBySKU(ctx, sku)
	if err != nil {
		return domain.Product{}, err
	}
	return *product, nil
}

// CreateProduct prices the item from the current rate and stores it. A SKU is
// minted from the sequence allocator when none is given.
func (s *Service) CreateProduct(ctx context.Context, req domain.ProductCreateRequest) (domain.Product, error) {
	metal, purity, err := pricing.NormalizeRateKey(req.Metal, req.Purity)
	if err != nil {
		return domain.Product{}, err
	}
	req.Name = strings.TrimSpace(req.Name)
	if req.Name == "" || req.Stock < 0 {
		return domain.Product{}, store.ErrInvalidInput
	}

	product := domain.Product{
		SKU:            normalizeSKU(req.SKU),
		Name:           req.Name,
		Metal:          metal,
		Purity:         purity,
		WeightGrams:    req.WeightGrams,
		WastagePercent: req.WastagePercent,
		MakingCharge:   req.MakingCharge,
		StonePrice:     req.StonePrice,
		Stock:          req.Stock,
	}

	product.Price, err = s.pricer.ComputePrice(ctx, pricing.InputFromProduct(product))
	if err != nil {
		return domain.Product{}, err
	}

	if product.SKU == "" {
		product.SKU, err = s.allocator.NextSKU(ctx, s.repo, metal)
		if err != nil {
			return domain.Product{}, err
		}
	}

	created, err := s.repo.CreateProduct(ctx, product)
	if err != nil {
		return domain.Product{}, err
	}

	s.logAudit(ctx, "product_create", "product", created.SKU, fmt.Sprintf("price=%d,stock=%d", created.Price, created.Stock))
	return *created, nil
}
