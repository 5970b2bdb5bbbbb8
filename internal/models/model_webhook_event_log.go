package models

import (
	"time"

	"gorm.io/datatypes"

	"github.com/fatflowers/agentbilling/pkg/types"
)

type WebhookEventLog struct {
	ID               string                   `gorm:"column:id;type:uuid;primaryKey" json:"id"`
	EventID          string                   `gorm:"column:event_id;type:varchar(128);not null;index" json:"event_id"`
	EventType        string                   `gorm:"column:event_type;type:varchar(128);not null" json:"event_type"`
	UserID           *string                  `gorm:"column:user_id;type:varchar(64)" json:"user_id"`
	TraceID          string                   `gorm:"column:trace_id;type:varchar(128)" json:"trace_id"`
	NotificationTime time.Time                `gorm:"column:notification_time" json:"notification_time"`
	Data             datatypes.JSON           `gorm:"column:data;type:jsonb" json:"data"`
	Result           *datatypes.JSON          `gorm:"column:result;type:jsonb" json:"result"`
	Status           types.WebhookEventStatus `gorm:"column:status;type:varchar(64);not null" json:"status"`
	CreatedAt        time.Time                `json:"created_at"`
	UpdatedAt        time.Time                `json:"updated_at"`
}

func (WebhookEventLog) TableName() string { return "webhook_event_log" }
