package models

import (
	"time"

	"github.com/fatflowers/agentbilling/pkg/types"
)

// SubscriptionPlan is a catalog entry mapping Stripe prices to the role the plan grants.
type SubscriptionPlan struct {
	ID                   string     `gorm:"column:id;type:varchar(64);primaryKey" json:"id"`
	Role                 types.Role `gorm:"column:role;type:varchar(64);not null" json:"role"`
	StripePriceIDMonthly *string    `gorm:"column:stripe_price_id_monthly;type:varchar(128);index" json:"stripe_price_id_monthly"`
	StripePriceIDAnnual  *string    `gorm:"column:stripe_price_id_annual;type:varchar(128);index" json:"stripe_price_id_annual"`
	CreatedAt            time.Time  `json:"created_at"`
	UpdatedAt            time.Time  `json:"updated_at"`
}

func (SubscriptionPlan) TableName() string {
	return "subscription_plans"
}

// MatchesPrice reports whether priceID is the plan's monthly or annual price.
func (p *SubscriptionPlan) MatchesPrice(priceID string) bool {
	if p == nil || priceID == "" {
		return false
	}
	return (p.StripePriceIDMonthly != nil && *p.StripePriceIDMonthly == priceID) ||
		(p.StripePriceIDAnnual != nil && *p.StripePriceIDAnnual == priceID)
}
