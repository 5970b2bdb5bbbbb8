package subscription

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/samber/lo"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	models "github.com/fatflowers/agentbilling/internal/models"
	"github.com/fatflowers/agentbilling/internal/platform/stripeclient"
	"github.com/fatflowers/agentbilling/pkg/logctx"
	"github.com/fatflowers/agentbilling/pkg/tool"
	types "github.com/fatflowers/agentbilling/pkg/types"
)

// ErrStaleEvent means a newer event already wrote the subscription row.
var ErrStaleEvent = errors.New("subscription event is older than the stored state")

type Service struct {
	db  *gorm.DB
	log *zap.SugaredLogger
}

func NewService(db *gorm.DB, log *zap.SugaredLogger) *Service {
	return &Service{db: db, log: log}
}

// Record is one subscription state to persist.
type Record struct {
	UserID   string
	PlanID   string
	Snapshot *stripeclient.SubscriptionSnapshot
	// EventAt is the creation time of the Stripe event carrying Snapshot.
	EventAt time.Time
}

func (r *Record) toModel() *models.Subscription {
	return &models.Subscription{
		ID:                   tool.GenerateUUIDV7(),
		UserID:               r.UserID,
		StripeCustomerID:     r.Snapshot.CustomerID,
		StripeSubscriptionID: r.Snapshot.ID,
		PlanID:               r.PlanID,
		Status:               r.Snapshot.Status,
		CurrentPeriodStart:   r.Snapshot.CurrentPeriodStart,
		CurrentPeriodEnd:     r.Snapshot.CurrentPeriodEnd,
		TrialEnd:             r.Snapshot.TrialEnd,
		LastEventAt:          r.EventAt.UTC(),
	}
}

const lockNamespace = "subscriptions"

func lockUser(tx *gorm.DB, userID string) error {
	if err := tx.Exec("SELECT pg_advisory_xact_lock(?)", tool.AdvisoryLockKey(lockNamespace, userID)).Error; err != nil {
		return fmt.Errorf("failed to lock subscriptions of user %s: %w", userID, err)
	}
	return nil
}

// Upsert writes the subscription row keyed on the Stripe subscription id.
// A row already written by a newer event, or deleted by a deletion event that is not
// older than rec, is left untouched and ErrStaleEvent is returned.
func (s *Service) Upsert(ctx context.Context, rec *Record) (*models.Subscription, error) {
	if rec == nil || rec.Snapshot == nil || rec.Snapshot.ID == "" {
		return nil, fmt.Errorf("invalid subscription record")
	}
	m := rec.toModel()
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := lockUser(tx, rec.UserID); err != nil {
			return err
		}
		var deleted int64
		err := tx.Model(&models.SubscriptionTombstone{}).
			Where("stripe_subscription_id = ? AND deleted_event_at >= ?", rec.Snapshot.ID, m.LastEventAt).
			Count(&deleted).Error
		if err != nil {
			return fmt.Errorf("failed to check tombstone of %s: %w", rec.Snapshot.ID, err)
		}
		if deleted > 0 {
			return ErrStaleEvent
		}

		res := tx.Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "stripe_subscription_id"}},
			DoUpdates: clause.AssignmentColumns([]string{
				"user_id", "stripe_customer_id", "plan_id", "status",
				"current_period_start", "current_period_end", "trial_end",
				"last_event_at", "updated_at",
			}),
			Where: clause.Where{Exprs: []clause.Expression{
				clause.Expr{SQL: `"subscriptions"."last_event_at" <= "excluded"."last_event_at"`},
			}},
		}).Create(m)
		if res.Error != nil {
			return fmt.Errorf("failed to upsert subscription %s: %w", rec.Snapshot.ID, res.Error)
		}
		if res.RowsAffected == 0 {
			return ErrStaleEvent
		}
		return nil
	})
	if errors.Is(err, ErrStaleEvent) {
		logctx.FromCtx(ctx, s.log).Infow("stale subscription event skipped",
			"stripe_subscription_id", rec.Snapshot.ID, "event_at", rec.EventAt)
		return nil, ErrStaleEvent
	}
	if err != nil {
		return nil, err
	}
	return m, nil
}

// DeleteByUser removes every subscription row of the user and leaves a tombstone at
// eventAt for each of them and for stripeSubscriptionID.
func (s *Service) DeleteByUser(ctx context.Context, userID, stripeSubscriptionID string, eventAt time.Time) (int64, error) {
	var deleted int64
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := lockUser(tx, userID); err != nil {
			return err
		}
		var ids []string
		if err := tx.Model(&models.Subscription{}).Where("user_id = ?", userID).Pluck("stripe_subscription_id", &ids).Error; err != nil {
			return fmt.Errorf("failed to list subscriptions of user %s: %w", userID, err)
		}
		ids = lo.Uniq(lo.Compact(append(ids, stripeSubscriptionID)))
		if len(ids) > 0 {
			tombstones := lo.Map(ids, func(id string, _ int) *models.SubscriptionTombstone {
				return &models.SubscriptionTombstone{StripeSubscriptionID: id, UserID: userID, DeletedEventAt: eventAt.UTC()}
			})
			err := tx.Clauses(clause.OnConflict{
				Columns: []clause.Column{{Name: "stripe_subscription_id"}},
				DoUpdates: clause.Set{
					{Column: clause.Column{Name: "user_id"}, Value: gorm.Expr(`"excluded"."user_id"`)},
					{Column: clause.Column{Name: "deleted_event_at"}, Value: gorm.Expr(`GREATEST("subscription_tombstones"."deleted_event_at", "excluded"."deleted_event_at")`)},
					{Column: clause.Column{Name: "updated_at"}, Value: gorm.Expr(`"excluded"."updated_at"`)},
				},
			}).Create(&tombstones).Error
			if err != nil {
				return fmt.Errorf("failed to write subscription tombstones: %w", err)
			}
		}

		res := tx.Where("user_id = ?", userID).Delete(&models.Subscription{})
		if res.Error != nil {
			return fmt.Errorf("failed to delete subscriptions of user %s: %w", userID, res.Error)
		}
		deleted = res.RowsAffected
		return nil
	})
	if err != nil {
		return 0, err
	}
	return deleted, nil
}

func (s *Service) GetByStripeID(ctx context.Context, stripeSubscriptionID string) (*models.Subscription, error) {
	var m models.Subscription
	err := s.db.WithContext(ctx).Where("stripe_subscription_id = ?", stripeSubscriptionID).Take(&m).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get subscription %s: %w", stripeSubscriptionID, err)
	}
	return &m, nil
}

// Scan subscriptions request/response.
type ScanSubscriptionsRequest struct {
	Filters   []*types.CommonFilter `json:"filters"`
	From      int                   `json:"from"`
	Size      int                   `json:"size"`
	SortBy    string                `json:"sort_by"`
	SortOrder string                `json:"sort_order"`
}

type ScanSubscriptionsResponse struct {
	Items []*models.Subscription `json:"items"`
	Total int64                  `json:"total"`
}

var sortableColumns = map[string]bool{
	"created_at": true, "updated_at": true, "last_event_at": true,
	"current_period_end": true, "status": true, "plan_id": true,
}

// ScanSubscriptions implements paginated/admin listing with filters
func (s *Service) ScanSubscriptions(ctx context.Context, req *ScanSubscriptionsRequest) (*ScanSubscriptionsResponse, error) {
	if req == nil {
		return nil, fmt.Errorf("nil request")
	}
	if req.Size <= 0 || req.Size > 500 {
		req.Size = 10
	}
	if req.From < 0 {
		req.From = 0
	}
	if req.SortBy != "" && !sortableColumns[req.SortBy] {
		return nil, fmt.Errorf("unsupported sort_by: %s", req.SortBy)
	}

	tx := s.db.WithContext(ctx).Model(&models.Subscription{})
	if len(req.Filters) > 0 {
		tx = tx.Where(clause.Where{Exprs: []clause.Expression{types.FiltersAnd(req.Filters)}})
	}

	var total int64
	if err := tx.Count(&total).Error; err != nil {
		return nil, fmt.Errorf("failed to count subscriptions: %w", err)
	}

	q := tx.Limit(req.Size)
	if req.From > 0 {
		q = q.Offset(req.From)
	}
	sortBy := req.SortBy
	if sortBy == "" {
		sortBy = "updated_at"
	}
	q = q.Order(clause.OrderBy{Columns: []clause.OrderByColumn{{Column: clause.Column{Name: sortBy}, Desc: req.SortOrder != "asc"}}})

	var rows []*models.Subscription
	if err := q.Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("failed to list subscriptions: %w", err)
	}
	return &ScanSubscriptionsResponse{Items: rows, Total: total}, nil
}
