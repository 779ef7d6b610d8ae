package service

import (
	"context"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"swarna/backend/internal/cache"
	"swarna/backend/internal/domain"
	"swarna/backend/internal/events"
	"swarna/backend/internal/metrics"
	"swarna/backend/internal/pricing"
	"swarna/backend/internal/sequence"
	"swarna/backend/internal/store"
	"swarna/backend/internal/xid"
)

type actorContextKey struct{}

func WithActor(ctx context.Context, actor domain.Actor) context.Context {
	return context.WithValue(ctx, actorContextKey{}, actor)
}

func ActorFromContext(ctx context.Context) (domain.Actor, bool) {
	actor, ok := ctx.Value(actorContextKey{}).(domain.Actor)
	return actor, ok
}

// Deps wires the collaborators of a Service. Only Repository is required.
type Deps struct {
	Repository        store.Repository
	RateCache         cache.RateCache
	RateCacheTTL      time.Duration
	MissingRatePolicy pricing.MissingRatePolicy
	StockPolicy       store.StockPolicy
	SequenceOptions   sequence.Options
	Publisher         events.Publisher
	Metrics           *metrics.Metrics
	Logger            *zap.Logger
	Clock             func() time.Time
	Location          *time.Location
	PublishTimeout    time.Duration
}

type Service struct {
	repo        store.Repository
	rates       *cache.CachedRates
	pricer      *pricing.Engine
	allocator   *sequence.Allocator
	stockPolicy store.StockPolicy
	publisher   events.Publisher
	metrics     *metrics.Metrics
	logger      *zap.Logger
	clock       func() time.Time
	loc         *time.Location

	publishTimeout time.Duration
	inflight       sync.WaitGroup
}

func New(deps Deps) *Service {
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	if deps.Publisher == nil {
		deps.Publisher = events.NoopPublisher{}
	}
	if deps.Metrics == nil {
		deps.Metrics = metrics.New()
	}
	if deps.Clock == nil {
		deps.Clock = time.Now
	}
	if deps.Location == nil {
		deps.Location = time.UTC
	}
	if deps.PublishTimeout <= 0 {
		deps.PublishTimeout = 5 * time.Second
	}
	if deps.StockPolicy == "" {
		deps.StockPolicy = store.StockAllowNegative
	}
	if deps.SequenceOptions.Clock == nil {
		deps.SequenceOptions.Clock = deps.Clock
	}
	if deps.SequenceOptions.Location == nil {
		deps.SequenceOptions.Location = deps.Location
	}

	logger := deps.Logger.Named("service")
	rates := cache.NewCachedRates(deps.Repository, deps.RateCache, deps.RateCacheTTL, logger)

	return &Service{
		repo:        deps.Repository,
		rates:       rates,
		pricer:      pricing.NewEngine(rates, deps.MissingRatePolicy),
		allocator:   sequence.NewAllocator(deps.SequenceOptions),
		stockPolicy: deps.StockPolicy,
		publisher:   deps.Publisher,
		metrics:     deps.Metrics,
		logger:      logger,
		clock:       deps.Clock,
		loc:         deps.Location,

		publishTimeout: deps.PublishTimeout,
	}
}

func (s *Service) now() time.Time {
	return s.clock().UTC()
}

func (s *Service) ListAuditLogs(ctx context.Context, limit int) ([]domain.AuditLog, error) {
	if limit < 1 || limit > 500 {
		limit = 100
	}
	return s.repo.ListAuditLogs(ctx, limit)
}

func (s *Service) logAudit(ctx context.Context, action string, entityType string, entityID string, detail string) {
	actor, ok := ActorFromContext(ctx)
	if !ok {
		actor = domain.Actor{Username: "system", Role: "system"}
	}

	if err := s.repo.CreateAuditLog(ctx, domain.AuditLog{
		ID:            xid.New("audit"),
		ActorUsername: actor.Username,
		ActorRole:     actor.Role,
		Action:        action,
		EntityType:    entityType,
		EntityID:      entityID,
		Detail:        detail,
		CreatedAt:     s.now(),
	}); err != nil {
		s.logger.Warn("failed to write audit log",
			zap.String("action", action),
			zap.String("entity", entityType+"/"+entityID),
			zap.Error(err),
		)
	}
}

// publish hands the event to the publisher in the background. The order or
// return is already committed, so delivery is best effort and never holds up
// the caller; each attempt is bounded by the publish timeout.
func (s *Service) publish(ctx context.Context, eventType string, key string, payload any) {
	event, err := events.New(eventType, key, payload)
	if err != nil {
		s.logger.Warn("failed to encode event", zap.String("type", eventType), zap.Error(err))
		return
	}

	pubCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.publishTimeout)
	s.inflight.Add(1)
	go func() {
		defer s.inflight.Done()
		defer cancel()
		if err := s.publisher.Publish(pubCtx, event); err != nil {
			s.logger.Warn("failed to publish event",
				zap.String("type", eventType),
				zap.String("key", key),
				zap.Error(err),
			)
		}
	}()
}

// Drain waits for in-flight event deliveries, or until ctx is done.
func (s *Service) Drain(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		s.inflight.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func actorName(ctx context.Context) string {
	if actor, ok := ActorFromContext(ctx); ok {
		return actor.Username
	}
	return ""
}

func normalizeSKU(sku string) string {
	return strings.ToUpper(strings.TrimSpace(sku))
}
