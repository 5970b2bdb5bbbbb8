package statistics

import (
	"context"
	"fmt"
	"sync"

	"github.com/samber/lo"
	"go.uber.org/fx"
	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/fatflowers/agentbilling/internal/models"
	"github.com/fatflowers/agentbilling/pkg/types"
)

type StatisticType string

const (
	// Current state
	StatisticTypeCurrentRoleCount        StatisticType = "current_role_count"
	StatisticTypeSubscriptionStatusCount StatisticType = "subscription_status_count"
	StatisticTypeSubscriptionPlanCount   StatisticType = "subscription_plan_count"

	// Daily series
	StatisticTypeDailyNewSubscriptionCount StatisticType = "daily_new_subscription_count"
	StatisticTypeDailyRoleChangeCount      StatisticType = "daily_role_change_count"
)

// source is the table a statistic reads from. Filters only apply to the source they name columns of.
type source string

const (
	sourceSubscriptions source = "subscriptions"
	sourceUserRoles     source = "user_roles"
	sourceRoleChanges   source = "role_change_log"
)

var statisticSources = map[StatisticType]source{
	StatisticTypeCurrentRoleCount:          sourceUserRoles,
	StatisticTypeSubscriptionStatusCount:   sourceSubscriptions,
	StatisticTypeSubscriptionPlanCount:     sourceSubscriptions,
	StatisticTypeDailyNewSubscriptionCount: sourceSubscriptions,
	StatisticTypeDailyRoleChangeCount:      sourceRoleChanges,
}

var filterableColumns = map[source][]string{
	sourceSubscriptions: {"status", "plan_id", "user_id", "created_at", "current_period_end"},
	sourceUserRoles:     {"role", "user_id", "assigned_at"},
	sourceRoleChanges:   {"transition", "user_id", "to_role", "from_role", "created_at"},
}

type RoleStatisticDataItem struct {
	ID StatisticType `json:"id"`
}

type RoleStatisticRequest struct {
	Filters   []*types.CommonFilter    `json:"filters"`
	DataItems []*RoleStatisticDataItem `json:"data_items"`
}

// filtersFor keeps the filters whose field is a column of src.
func (r *RoleStatisticRequest) filtersFor(src source) types.FiltersAnd {
	var result types.FiltersAnd
	for _, f := range r.Filters {
		for _, col := range filterableColumns[src] {
			if f.Field == col {
				result = append(result, f)
				break
			}
		}
	}
	return result
}

type RoleStatisticResponseDataItem struct {
	Date  string `json:"date,omitempty"`
	Label string `json:"label,omitempty"`
	Value int64  `json:"value"`
}

type RoleStatisticResponse struct {
	DataItems map[StatisticType][]RoleStatisticResponseDataItem `json:"data_items"`
}

// Service provides statistics operations
type Service struct {
	db *gorm.DB
}

func New(db *gorm.DB) *Service { return &Service{db: db} }

func where(f types.FiltersAnd) clause.Where {
	return clause.Where{Exprs: []clause.Expression{f}}
}

// splitFilters separates the filters on any of cols from the rest.
func splitFilters(f types.FiltersAnd, cols ...string) (matched, rest types.FiltersAnd) {
	for _, filter := range f {
		if lo.Contains(cols, filter.Field) {
			matched = append(matched, filter)
		} else {
			rest = append(rest, filter)
		}
	}
	return matched, rest
}

// getCurrentRoleCount counts users by the role of their most recently assigned row.
// Role filters apply to that row only, never to the history it is picked from.
func (s *Service) getCurrentRoleCount(ctx context.Context, request *RoleStatisticRequest) ([]RoleStatisticResponseDataItem, error) {
	var results []RoleStatisticResponseDataItem
	current, history := splitFilters(request.filtersFor(sourceUserRoles), "role")
	latest := s.db.WithContext(ctx).Table((models.UserRole{}).TableName()).
		Select("DISTINCT ON (user_id) user_id, role").
		Where(where(history)).
		Order("user_id").Order("assigned_at DESC").Order("id DESC")
	q := s.db.WithContext(ctx).Table("(?) AS latest", latest).
		Select("role AS label, count(*) AS value").
		Where(where(current)).
		Group("role").
		Order("label")
	if err := q.Find(&results).Error; err != nil {
		return nil, err
	}
	return results, nil
}

func (s *Service) countSubscriptionsBy(ctx context.Context, column string, request *RoleStatisticRequest) ([]RoleStatisticResponseDataItem, error) {
	var results []RoleStatisticResponseDataItem
	q := s.db.WithContext(ctx).Table((models.Subscription{}).TableName()).
		Select(column + " AS label, count(*) AS value").
		Where(where(request.filtersFor(sourceSubscriptions))).
		Group(column).
		Order("label")
	if err := q.Find(&results).Error; err != nil {
		return nil, err
	}
	return results, nil
}

func (s *Service) getDailyNewSubscriptionCount(ctx context.Context, request *RoleStatisticRequest) ([]RoleStatisticResponseDataItem, error) {
	var results []RoleStatisticResponseDataItem
	q := s.db.WithContext(ctx).Table((models.Subscription{}).TableName()).
		Select("TO_CHAR(created_at, 'YYYY-MM-DD') AS date, count(DISTINCT user_id) AS value").
		Where(where(request.filtersFor(sourceSubscriptions))).
		Group("TO_CHAR(created_at, 'YYYY-MM-DD')").
		Order(clause.OrderByColumn{Column: clause.Column{Name: "date"}, Desc: true})
	if err := q.Find(&results).Error; err != nil {
		return nil, err
	}
	return results, nil
}

func (s *Service) getDailyRoleChangeCount(ctx context.Context, request *RoleStatisticRequest) ([]RoleStatisticResponseDataItem, error) {
	var results []RoleStatisticResponseDataItem
	q := s.db.WithContext(ctx).Table((models.RoleChangeLog{}).TableName()).
		Select("TO_CHAR(created_at, 'YYYY-MM-DD') AS date, transition AS label, count(*) AS value").
		Where(where(request.filtersFor(sourceRoleChanges))).
		Group("TO_CHAR(created_at, 'YYYY-MM-DD')").
		Group("transition").
		Order(clause.OrderByColumn{Column: clause.Column{Name: "date"}, Desc: true}).
		Order("label")
	if err := q.Find(&results).Error; err != nil {
		return nil, err
	}
	return results, nil
}

func (s *Service) getRoleStatistic(ctx context.Context, request *RoleStatisticRequest, dataItem *RoleStatisticDataItem) ([]RoleStatisticResponseDataItem, error) {
	switch dataItem.ID {
	case StatisticTypeCurrentRoleCount:
		return s.getCurrentRoleCount(ctx, request)
	case StatisticTypeSubscriptionStatusCount:
		return s.countSubscriptionsBy(ctx, "status", request)
	case StatisticTypeSubscriptionPlanCount:
		return s.countSubscriptionsBy(ctx, "plan_id", request)
	case StatisticTypeDailyNewSubscriptionCount:
		return s.getDailyNewSubscriptionCount(ctx, request)
	case StatisticTypeDailyRoleChangeCount:
		return s.getDailyRoleChangeCount(ctx, request)
	default:
		return nil, fmt.Errorf("invalid data item id: %s", dataItem.ID)
	}
}

// GetRoleStatistic computes every requested data item concurrently.
func (s *Service) GetRoleStatistic(ctx context.Context, request *RoleStatisticRequest) (*RoleStatisticResponse, error) {
	for _, item := range request.DataItems {
		if _, ok := statisticSources[item.ID]; !ok {
			return nil, fmt.Errorf("invalid data item id: %s", item.ID)
		}
	}

	var mu sync.Mutex
	results := make(map[StatisticType][]RoleStatisticResponseDataItem, len(request.DataItems))
	g, gctx := errgroup.WithContext(ctx)
	for _, item := range request.DataItems {
		g.Go(func() error {
			res, err := s.getRoleStatistic(gctx, request, item)
			if err != nil {
				return fmt.Errorf("%s: %w", item.ID, err)
			}
			mu.Lock()
			results[item.ID] = res
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return &RoleStatisticResponse{DataItems: results}, nil
}

var Module = fx.Options(
	fx.Provide(New),
)
