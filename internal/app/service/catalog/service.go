package catalog

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/samber/lo"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/fatflowers/agentbilling/internal/models"
	"github.com/fatflowers/agentbilling/internal/platform/cache"
	"github.com/fatflowers/agentbilling/pkg/config"
	"github.com/fatflowers/agentbilling/pkg/logctx"
	"github.com/fatflowers/agentbilling/pkg/types"
)

// ErrPlanNotFound is returned in strict mode when a price matches no plan.
var ErrPlanNotFound = errors.New("no subscription plan matches price")

const cacheKeyPrefix = "agentbilling:plan:"

// Resolution is the plan and entitlement role a Stripe price maps to.
type Resolution struct {
	PlanID   string     `json:"plan_id"`
	Role     types.Role `json:"role"`
	Fallback bool       `json:"fallback"`
}

// PlanSource loads catalog rows matching a price id, ordered by plan id.
type PlanSource interface {
	FindByPrice(ctx context.Context, priceID string) ([]*models.SubscriptionPlan, error)
	List(ctx context.Context) ([]*models.SubscriptionPlan, error)
	Upsert(ctx context.Context, plan *models.SubscriptionPlan) error
}

type Service struct {
	source   PlanSource
	cache    *cache.Cache
	cacheTTL time.Duration
	fallback Resolution
	strict   bool
	log      *zap.SugaredLogger
}

func NewService(cfg *config.Config, source PlanSource, c *cache.Cache, log *zap.SugaredLogger) *Service {
	return &Service{
		source:   source,
		cache:    c,
		cacheTTL: cfg.Redis.PlanCacheTTL,
		fallback: Resolution{PlanID: cfg.Billing.FallbackPlanID, Role: cfg.Billing.FallbackRole, Fallback: true},
		strict:   cfg.Billing.StrictPlanMatch,
		log:      log,
	}
}

// Resolve maps a Stripe price id to a plan and role. The first plan whose
// monthly or annual price matches wins. Unknown prices resolve to the
// configured fallback, or ErrPlanNotFound in strict mode.
func (s *Service) Resolve(ctx context.Context, priceID string) (Resolution, error) {
	lg := logctx.FromCtx(ctx, s.log)

	if priceID != "" {
		var cached Resolution
		found, err := s.cache.Get(ctx, cacheKeyPrefix+priceID, &cached)
		if err != nil {
			lg.Warnw("plan cache read failed", "price_id", priceID, "err", err)
		} else if found {
			return cached, nil
		}

		plans, err := s.source.FindByPrice(ctx, priceID)
		if err != nil {
			return Resolution{}, fmt.Errorf("failed to look up plan for price %s: %w", priceID, err)
		}
		if plan, ok := lo.Find(plans, func(p *models.SubscriptionPlan) bool { return p.MatchesPrice(priceID) }); ok {
			res := Resolution{PlanID: plan.ID, Role: plan.Role}
			if err := s.cache.Set(ctx, cacheKeyPrefix+priceID, res, s.cacheTTL); err != nil {
				lg.Warnw("plan cache write failed", "price_id", priceID, "err", err)
			}
			return res, nil
		}
	}

	if s.strict {
		return Resolution{}, fmt.Errorf("%w: %q", ErrPlanNotFound, priceID)
	}
	lg.Warnw("no plan match, using fallback plan", "price_id", priceID, "plan_id", s.fallback.PlanID, "role", s.fallback.Role)
	return s.fallback, nil
}

func (s *Service) ListPlans(ctx context.Context) ([]*models.SubscriptionPlan, error) {
	return s.source.List(ctx)
}

// UpsertPlan writes a catalog row and drops every cached resolution.
func (s *Service) UpsertPlan(ctx context.Context, plan *models.SubscriptionPlan) error {
	if plan == nil || plan.ID == "" || plan.Role == "" {
		return fmt.Errorf("invalid plan: id and role are required")
	}
	if err := s.source.Upsert(ctx, plan); err != nil {
		return err
	}
	if err := s.cache.DeletePrefix(ctx, cacheKeyPrefix); err != nil {
		logctx.FromCtx(ctx, s.log).Warnw("plan cache invalidation failed", "err", err)
	}
	return nil
}

type gormSource struct {
	db *gorm.DB
}

func NewGormSource(db *gorm.DB) PlanSource {
	return &gormSource{db: db}
}

func (g *gormSource) FindByPrice(ctx context.Context, priceID string) ([]*models.SubscriptionPlan, error) {
	var plans []*models.SubscriptionPlan
	err := g.db.WithContext(ctx).
		Where("stripe_price_id_monthly = ? OR stripe_price_id_annual = ?", priceID, priceID).
		Order("id").
		Find(&plans).Error
	if err != nil {
		return nil, err
	}
	return plans, nil
}

func (g *gormSource) List(ctx context.Context) ([]*models.SubscriptionPlan, error) {
	var plans []*models.SubscriptionPlan
	if err := g.db.WithContext(ctx).Order("id").Find(&plans).Error; err != nil {
		return nil, fmt.Errorf("failed to list plans: %w", err)
	}
	return plans, nil
}

func (g *gormSource) Upsert(ctx context.Context, plan *models.SubscriptionPlan) error {
	err := g.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		DoUpdates: clause.AssignmentColumns([]string{"role", "stripe_price_id_monthly", "stripe_price_id_annual", "updated_at"}),
	}).Create(plan).Error
	if err != nil {
		return fmt.Errorf("failed to upsert plan %s: %w", plan.ID, err)
	}
	return nil
}

// Module exposes the plan catalog via Fx.
var Module = fx.Options(
	fx.Provide(NewGormSource, NewService),
)
