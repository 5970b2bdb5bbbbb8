package catalog

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/samber/lo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/fatflowers/agentbilling/internal/models"
	"github.com/fatflowers/agentbilling/internal/platform/cache"
	"github.com/fatflowers/agentbilling/pkg/config"
	"github.com/fatflowers/agentbilling/pkg/types"
)

type fakeSource struct {
	plans   []*models.SubscriptionPlan
	err     error
	lookups int
}

func (f *fakeSource) FindByPrice(ctx context.Context, priceID string) ([]*models.SubscriptionPlan, error) {
	f.lookups++
	if f.err != nil {
		return nil, f.err
	}
	return lo.Filter(f.plans, func(p *models.SubscriptionPlan, _ int) bool { return p.MatchesPrice(priceID) }), nil
}

func (f *fakeSource) List(ctx context.Context) ([]*models.SubscriptionPlan, error) {
	return f.plans, f.err
}

func (f *fakeSource) Upsert(ctx context.Context, plan *models.SubscriptionPlan) error {
	if f.err != nil {
		return f.err
	}
	f.plans = append(f.plans, plan)
	return nil
}

func testConfig(strict bool) *config.Config {
	return &config.Config{
		Billing: config.BillingConfig{
			FallbackPlanID:  "agent_pro",
			FallbackRole:    types.RoleAgentPro,
			StrictPlanMatch: strict,
		},
		Redis: config.RedisConfig{PlanCacheTTL: time.Minute},
	}
}

func catalogPlans() []*models.SubscriptionPlan {
	return []*models.SubscriptionPlan{
		{ID: "manager_pro", Role: types.RoleManagerPro, StripePriceIDMonthly: lo.ToPtr("price_mp_m"), StripePriceIDAnnual: lo.ToPtr("price_mp_y")},
		{ID: "manager_pro_gold", Role: types.RoleManagerProGold, StripePriceIDMonthly: lo.ToPtr("price_gold_m")},
		{ID: "manager_pro_gold_legacy", Role: types.RoleManagerProPlatinum, StripePriceIDMonthly: lo.ToPtr("price_gold_m")},
	}
}

func TestResolve(t *testing.T) {
	tests := []struct {
		name    string
		priceID string
		want    Resolution
	}{
		{"monthly price", "price_mp_m", Resolution{PlanID: "manager_pro", Role: types.RoleManagerPro}},
		{"annual price", "price_mp_y", Resolution{PlanID: "manager_pro", Role: types.RoleManagerPro}},
		{"first match wins", "price_gold_m", Resolution{PlanID: "manager_pro_gold", Role: types.RoleManagerProGold}},
		{"unknown price falls back", "price_nope", Resolution{PlanID: "agent_pro", Role: types.RoleAgentPro, Fallback: true}},
		{"empty price falls back", "", Resolution{PlanID: "agent_pro", Role: types.RoleAgentPro, Fallback: true}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := NewService(testConfig(false), &fakeSource{plans: catalogPlans()}, nil, zap.NewNop().Sugar())
			got, err := svc.Resolve(context.Background(), tt.priceID)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestResolve_Strict(t *testing.T) {
	svc := NewService(testConfig(true), &fakeSource{plans: catalogPlans()}, nil, zap.NewNop().Sugar())

	_, err := svc.Resolve(context.Background(), "price_nope")
	assert.ErrorIs(t, err, ErrPlanNotFound)

	got, err := svc.Resolve(context.Background(), "price_mp_m")
	require.NoError(t, err)
	assert.Equal(t, "manager_pro", got.PlanID)
}

func TestResolve_LookupError(t *testing.T) {
	svc := NewService(testConfig(false), &fakeSource{err: errors.New("db down")}, nil, zap.NewNop().Sugar())
	_, err := svc.Resolve(context.Background(), "price_mp_m")
	assert.ErrorContains(t, err, "db down")
}

func newCache(t *testing.T) (*cache.Cache, *miniredis.Miniredis) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return cache.NewClient(client), mr
}

func TestResolve_Cached(t *testing.T) {
	c, mr := newCache(t)
	src := &fakeSource{plans: catalogPlans()}
	svc := NewService(testConfig(false), src, c, zap.NewNop().Sugar())
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		got, err := svc.Resolve(ctx, "price_mp_y")
		require.NoError(t, err)
		assert.Equal(t, "manager_pro", got.PlanID)
	}
	assert.Equal(t, 1, src.lookups)
	assert.True(t, mr.Exists(cacheKeyPrefix+"price_mp_y"))

	// fallbacks are never cached
	_, err := svc.Resolve(ctx, "price_nope")
	require.NoError(t, err)
	assert.False(t, mr.Exists(cacheKeyPrefix+"price_nope"))

	require.NoError(t, svc.UpsertPlan(ctx, &models.SubscriptionPlan{ID: "agent_pro", Role: types.RoleAgentPro}))
	assert.False(t, mr.Exists(cacheKeyPrefix+"price_mp_y"))
}

func TestResolve_CacheDownFallsThrough(t *testing.T) {
	c, mr := newCache(t)
	mr.Close()
	src := &fakeSource{plans: catalogPlans()}
	svc := NewService(testConfig(false), src, c, zap.NewNop().Sugar())

	got, err := svc.Resolve(context.Background(), "price_mp_m")
	require.NoError(t, err)
	assert.Equal(t, "manager_pro", got.PlanID)
}

func TestUpsertPlan_Validation(t *testing.T) {
	svc := NewService(testConfig(false), &fakeSource{}, nil, zap.NewNop().Sugar())
	assert.Error(t, svc.UpsertPlan(context.Background(), nil))
	assert.Error(t, svc.UpsertPlan(context.Background(), &models.SubscriptionPlan{ID: "x"}))

	plans, err := svc.ListPlans(context.Background())
	require.NoError(t, err)
	assert.Empty(t, plans)
}
