package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fatflowers/agentbilling/pkg/types"
)

func TestNew_Defaults(t *testing.T) {
	t.Setenv("APP_CONFIG_NAME", "does-not-exist")
	c, err := New()
	require.NoError(t, err)

	assert.Equal(t, types.RoleAgent, c.Billing.BaseRole)
	assert.Equal(t, "agent_pro", c.Billing.FallbackPlanID)
	assert.False(t, c.Billing.StrictPlanMatch)
	assert.False(t, c.Billing.PropagateRoleErrors)
	assert.Equal(t, "user_id", c.Billing.UserIDMetadataKey)
	assert.Equal(t, 5*time.Minute, c.Redis.PlanCacheTTL)
	assert.True(t, c.Stripe.IgnoreAPIVersionMismatch)

	rank, ok := c.Ranking().Rank(types.RoleManagerProPlatinum)
	require.True(t, ok)
	assert.Equal(t, 4, rank)
	assert.True(t, c.Ranking().IsBase(types.RoleAgent))
}

func TestNew_EnvOverrides(t *testing.T) {
	t.Setenv("APP_CONFIG_NAME", "does-not-exist")
	t.Setenv("STRIPE_WEBHOOK_SECRET", "whsec_env")
	t.Setenv("APP_BILLING_STRICT_PLAN_MATCH", "true")
	t.Setenv("APP_ADMIN_JWT_SECRET", "s3cret")

	c, err := New()
	require.NoError(t, err)
	assert.Equal(t, "whsec_env", c.Stripe.WebhookSecret)
	assert.True(t, c.Billing.StrictPlanMatch)
	assert.Equal(t, "s3cret", c.Admin.JWTSecret)
}
