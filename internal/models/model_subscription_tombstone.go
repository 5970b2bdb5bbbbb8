package models

import "time"

// SubscriptionTombstone outlives a deleted subscription row and keeps its
// event fence, so a delayed older event cannot bring the row back.
type SubscriptionTombstone struct {
	StripeSubscriptionID string `gorm:"column:stripe_subscription_id;type:varchar(128);primaryKey" json:"stripe_subscription_id"`
	UserID               string `gorm:"column:user_id;type:varchar(64);not null;index" json:"user_id"`
	// DeletedEventAt is the creation time of the deletion event.
	DeletedEventAt time.Time `gorm:"column:deleted_event_at;not null" json:"deleted_event_at"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

func (SubscriptionTombstone) TableName() string {
	return "subscription_tombstones"
}
