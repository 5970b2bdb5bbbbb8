package models

import (
	"time"

	"github.com/fatflowers/agentbilling/pkg/types"
)

// Subscription is the denormalized copy of a Stripe subscription, one row per
// Stripe subscription id.
type Subscription struct {
	ID                   string                   `gorm:"column:id;type:uuid;primaryKey" json:"id"`
	UserID               string                   `gorm:"column:user_id;type:varchar(64);not null;index" json:"user_id"`
	StripeCustomerID     string                   `gorm:"column:stripe_customer_id;type:varchar(128)" json:"stripe_customer_id"`
	StripeSubscriptionID string                   `gorm:"column:stripe_subscription_id;type:varchar(128);not null;uniqueIndex" json:"stripe_subscription_id"`
	PlanID               string                   `gorm:"column:plan_id;type:varchar(64);not null" json:"plan_id"`
	Status               types.SubscriptionStatus `gorm:"column:status;type:varchar(64);not null" json:"status"`
	CurrentPeriodStart   time.Time                `gorm:"column:current_period_start" json:"current_period_start"`
	CurrentPeriodEnd     time.Time                `gorm:"column:current_period_end" json:"current_period_end"`
	TrialEnd             *time.Time               `gorm:"column:trial_end;default:null" json:"trial_end"`
	// LastEventAt is the creation time of the Stripe event that last wrote this row.
	LastEventAt time.Time `gorm:"column:last_event_at;not null" json:"last_event_at"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

func (Subscription) TableName() string {
	return "subscriptions"
}

func (s *Subscription) Entitled() bool {
	return s != nil && s.Status.Entitled()
}
