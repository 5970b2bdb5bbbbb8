package models

import (
	"time"

	"github.com/fatflowers/agentbilling/pkg/types"
)

// UserRole is one role assignment. A user's current role is the row with the
// latest AssignedAt; older rows are history.
type UserRole struct {
	ID         string     `gorm:"column:id;type:uuid;primaryKey" json:"id"`
	UserID     string     `gorm:"column:user_id;type:varchar(64);not null;index:idx_user_roles_user_assigned,priority:1" json:"user_id"`
	Role       types.Role `gorm:"column:role;type:varchar(64);not null" json:"role"`
	AssignedAt time.Time  `gorm:"column:assigned_at;not null;index:idx_user_roles_user_assigned,priority:2" json:"assigned_at"`
}

func (UserRole) TableName() string {
	return "user_roles"
}
