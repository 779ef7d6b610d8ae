package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"go.uber.org/zap"

	"swarna/backend/internal/cache"
	"swarna/backend/internal/config"
	"swarna/backend/internal/events"
	"swarna/backend/internal/httpapi"
	"swarna/backend/internal/metrics"
	"swarna/backend/internal/observability"
	"swarna/backend/internal/pricing"
	"swarna/backend/internal/sequence"
	"swarna/backend/internal/service"
	"swarna/backend/internal/store"
	"swarna/backend/internal/store/memory"
	pgstore "swarna/backend/internal/store/postgres"
)

func main() {
	cfg := config.Load()

	logger, err := observability.NewLogger(cfg.LogLevel, cfg.LogEncoding)
	if err != nil {
		log.Fatalf("failed to build logger: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	if err := validateSecurityConfig(cfg); err != nil {
		logger.Fatal("invalid security configuration", zap.Error(err))
	}
	loc, err := time.LoadLocation(cfg.StoreTimezone)
	if err != nil {
		logger.Fatal("invalid STORE_TIMEZONE", zap.String("timezone", cfg.StoreTimezone), zap.Error(err))
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	var repo store.Repository
	closers := make([]func() error, 0, 3)

	if cfg.DatabaseURL != "" {
		pg, err := pgstore.New(ctx, cfg.DatabaseURL, logger)
		if err != nil {
			logger.Fatal("postgres unavailable and DATABASE_URL is set; refusing to start with in-memory fallback", zap.Error(err))
		}
		if cfg.MigrateOnStart {
			if err := pg.Migrate(ctx); err != nil {
				logger.Fatal("schema migration failed", zap.Error(err))
			}
		}
		repo = pg
		closers = append(closers, pg.Close)
		logger.Info("repository: postgres")
	} else {
		repo = memory.NewSeeded(logger)
		logger.Info("repository: in-memory")
	}

	rateCache := cache.RateCache(cache.NoopRateCache{})
	if cfg.RedisAddr != "" {
		redisCache := cache.NewRedisRateCache(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
		if err := redisCache.Ping(ctx); err != nil {
			logger.Warn("redis unavailable, rates are read from the repository", zap.Error(err))
		} else {
			rateCache = redisCache
			closers = append(closers, redisCache.Close)
			logger.Info("rate cache: redis", zap.String("addr", cfg.RedisAddr))
		}
	}

	publisher := events.Publisher(events.NoopPublisher{})
	if len(cfg.KafkaBrokers) > 0 {
		kafkaPublisher := events.NewKafkaPublisher(cfg.KafkaBrokers, cfg.KafkaTopic)
		publisher = kafkaPublisher
		closers = append(closers, kafkaPublisher.Close)
		logger.Info("events: kafka", zap.Strings("brokers", cfg.KafkaBrokers), zap.String("topic", cfg.KafkaTopic))
	}

	m := metrics.New()
	svc := service.New(service.Deps{
		Repository:        repo,
		RateCache:         rateCache,
		RateCacheTTL:      time.Duration(cfg.RateCacheTTLSeconds) * time.Second,
		MissingRatePolicy: pricing.ParseMissingRatePolicy(cfg.MissingRatePolicy),
		StockPolicy:       store.ParseStockPolicy(cfg.StockPolicy),
		SequenceOptions:   sequence.Options{ResetYearly: cfg.SequenceResetYearly},
		Publisher:         publisher,
		PublishTimeout:    time.Duration(cfg.PublishTimeoutSeconds) * time.Second,
		Metrics:           m,
		Logger:            logger,
		Location:          loc,
	})

	auth := httpapi.NewAuthManager(cfg.AuthSecret, time.Duration(cfg.AccessTokenTTLMinutes)*time.Minute, repo, logger)
	if cfg.BootstrapAdminPass != "" {
		if err := auth.EnsureAdmin(ctx, cfg.BootstrapAdminUser, cfg.BootstrapAdminPass); err != nil {
			logger.Fatal("failed to bootstrap admin account", zap.Error(err))
		}
	}
	api := httpapi.New(svc, auth, m, logger, cfg.AllowedOrigin)

	server := &http.Server{
		Addr:              cfg.Address(),
		Handler:           api.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		logger.Info("POS backend listening",
			zap.String("addr", cfg.Address()),
			zap.String("stock_policy", cfg.StockPolicy),
			zap.String("missing_rate_policy", cfg.MissingRatePolicy),
			zap.Bool("sequence_reset_yearly", cfg.SequenceResetYearly),
		)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("server error", zap.Error(err))
		}
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 8*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown error", zap.Error(err))
	}
	if err := svc.Drain(shutdownCtx); err != nil {
		logger.Warn("event deliveries still pending at shutdown", zap.Error(err))
	}

	for _, closeFn := range closers {
		if err := closeFn(); err != nil {
			logger.Error("close error", zap.Error(err))
		}
	}

	logger.Info("server stopped")
}

func validateSecurityConfig(cfg config.Config) error {
	if len(cfg.AuthSecret) < 32 {
		return fmt.Errorf("AUTH_SECRET must be set and at least 32 characters")
	}
	if cfg.BootstrapAdminPass != "" && len(cfg.BootstrapAdminPass) < 8 {
		return fmt.Errorf("BOOTSTRAP_ADMIN_PASSWORD must be at least 8 characters")
	}
	switch store.StockPolicy(normalizePolicy(cfg.StockPolicy)) {
	case store.StockAllowNegative, store.StockRejectOversell:
	default:
		return fmt.Errorf("STOCK_POLICY must be %q or %q", store.StockAllowNegative, store.StockRejectOversell)
	}
	switch pricing.MissingRatePolicy(normalizePolicy(cfg.MissingRatePolicy)) {
	case pricing.MissingRateError, pricing.MissingRateZero:
	default:
		return fmt.Errorf("MISSING_RATE_POLICY must be %q or %q", pricing.MissingRateError, pricing.MissingRateZero)
	}
	return nil
}

// normalizePolicy matches the case and whitespace folding of the policy parsers.
func normalizePolicy(raw string) string {
	return strings.ToLower(strings.TrimSpace(raw))
}
