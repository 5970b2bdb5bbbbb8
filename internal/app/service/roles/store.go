package roles

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/fatflowers/agentbilling/internal/models"
	"github.com/fatflowers/agentbilling/pkg/tool"
	"github.com/fatflowers/agentbilling/pkg/types"
)

// Store runs role mutations for one user atomically.
type Store interface {
	// WithUserLock runs fn in a single transaction that holds an exclusive lock on userID.
	WithUserLock(ctx context.Context, userID string, fn func(tx Tx) error) error
	// ListRoles returns the role history of a user, newest first.
	ListRoles(ctx context.Context, userID string) ([]*models.UserRole, error)
}

// Tx is the set of role operations available inside WithUserLock.
type Tx interface {
	// LatestRole returns the most recently assigned row, or nil.
	LatestRole(ctx context.Context, userID string) (*models.UserRole, error)
	InsertRole(ctx context.Context, userID string, role types.Role, at time.Time) error
	// DeleteRole removes every row of the user holding exactly role.
	DeleteRole(ctx context.Context, userID string, role types.Role) (int64, error)
	// UpsertRole refreshes assigned_at of existing rows with role, inserting one if there are none.
	UpsertRole(ctx context.Context, userID string, role types.Role, at time.Time) error
	// SetAllRoles rewrites the role of every row of the user.
	SetAllRoles(ctx context.Context, userID string, role types.Role) (int64, error)
	SetRoleByID(ctx context.Context, id string, role types.Role) error
	// DeleteRolesExcept removes every row of the user whose role is not keep.
	DeleteRolesExcept(ctx context.Context, userID string, keep types.Role) (int64, error)
}

const lockNamespace = "user_roles"

type gormStore struct {
	db *gorm.DB
}

func NewGormStore(db *gorm.DB) Store {
	return &gormStore{db: db}
}

func (s *gormStore) WithUserLock(ctx context.Context, userID string, fn func(tx Tx) error) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Exec("SELECT pg_advisory_xact_lock(?)", tool.AdvisoryLockKey(lockNamespace, userID)).Error; err != nil {
			return fmt.Errorf("failed to lock user %s: %w", userID, err)
		}
		return fn(&gormTx{db: tx})
	})
}

func (s *gormStore) ListRoles(ctx context.Context, userID string) ([]*models.UserRole, error) {
	var rows []*models.UserRole
	err := s.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("assigned_at DESC").Order("id DESC").
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list roles: %w", err)
	}
	return rows, nil
}

type gormTx struct {
	db *gorm.DB
}

func (t *gormTx) LatestRole(ctx context.Context, userID string) (*models.UserRole, error) {
	var row models.UserRole
	err := t.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order(clause.OrderBy{Columns: []clause.OrderByColumn{
			{Column: clause.Column{Name: "assigned_at"}, Desc: true},
			{Column: clause.Column{Name: "id"}, Desc: true},
		}}).
		Take(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get latest role: %w", err)
	}
	return &row, nil
}

func (t *gormTx) InsertRole(ctx context.Context, userID string, role types.Role, at time.Time) error {
	row := &models.UserRole{ID: tool.GenerateUUIDV7(), UserID: userID, Role: role, AssignedAt: at}
	if err := t.db.WithContext(ctx).Create(row).Error; err != nil {
		return fmt.Errorf("failed to insert role: %w", err)
	}
	return nil
}

func (t *gormTx) DeleteRole(ctx context.Context, userID string, role types.Role) (int64, error) {
	res := t.db.WithContext(ctx).Where("user_id = ? AND role = ?", userID, role).Delete(&models.UserRole{})
	if res.Error != nil {
		return 0, fmt.Errorf("failed to delete role: %w", res.Error)
	}
	return res.RowsAffected, nil
}

func (t *gormTx) UpsertRole(ctx context.Context, userID string, role types.Role, at time.Time) error {
	res := t.db.WithContext(ctx).Model(&models.UserRole{}).
		Where("user_id = ? AND role = ?", userID, role).
		Update("assigned_at", at)
	if res.Error != nil {
		return fmt.Errorf("failed to refresh role: %w", res.Error)
	}
	if res.RowsAffected > 0 {
		return nil
	}
	return t.InsertRole(ctx, userID, role, at)
}

func (t *gormTx) SetAllRoles(ctx context.Context, userID string, role types.Role) (int64, error) {
	res := t.db.WithContext(ctx).Model(&models.UserRole{}).Where("user_id = ?", userID).Update("role", role)
	if res.Error != nil {
		return 0, fmt.Errorf("failed to update roles: %w", res.Error)
	}
	return res.RowsAffected, nil
}

func (t *gormTx) SetRoleByID(ctx context.Context, id string, role types.Role) error {
	if err := t.db.WithContext(ctx).Model(&models.UserRole{}).Where("id = ?", id).Update("role", role).Error; err != nil {
		return fmt.Errorf("failed to update role %s: %w", id, err)
	}
	return nil
}

func (t *gormTx) DeleteRolesExcept(ctx context.Context, userID string, keep types.Role) (int64, error) {
	res := t.db.WithContext(ctx).Where("user_id = ? AND role <> ?", userID, keep).Delete(&models.UserRole{})
	if res.Error != nil {
		return 0, fmt.Errorf("failed to delete roles: %w", res.Error)
	}
	return res.RowsAffected, nil
}
