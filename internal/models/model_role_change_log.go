package models

import (
	"time"

	"gorm.io/datatypes"

	"github.com/fatflowers/agentbilling/pkg/types"
)

// RoleChangeLog records every role mutation done by reconciliation.
// Use case: troubleshooting and support.
type RoleChangeLog struct {
	ID                   string      `gorm:"column:id;type:uuid;primaryKey;index:idx_role_change_log_user_id,priority:2,sort:desc" json:"id"`
	UserID               string      `gorm:"column:user_id;type:varchar(64);not null;index:idx_role_change_log_user_id,priority:1" json:"user_id"`
	Transition           string      `gorm:"column:transition;type:varchar(32);not null" json:"transition"`
	FromRole             *types.Role `gorm:"column:from_role;type:varchar(64)" json:"from_role"`
	ToRole               *types.Role `gorm:"column:to_role;type:varchar(64)" json:"to_role"`
	StripeSubscriptionID string      `gorm:"column:stripe_subscription_id;type:varchar(128)" json:"stripe_subscription_id"`
	EventID              string      `gorm:"column:event_id;type:varchar(128)" json:"event_id"`
	// Extra holds event type, subscription status and plan id.
	Extra     datatypes.JSONMap `gorm:"column:extra;type:jsonb;default:'{}'" json:"extra"`
	CreatedAt time.Time         `json:"created_at"`
}

func (RoleChangeLog) TableName() string {
	return "role_change_log"
}
