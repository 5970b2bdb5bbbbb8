package handlers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/samber/lo"

	"github.com/fatflowers/agentbilling/internal/app/service/statistics"
	subsvc "github.com/fatflowers/agentbilling/internal/app/service/subscription"
	wh "github.com/fatflowers/agentbilling/internal/app/service/webhook_handler"
	models "github.com/fatflowers/agentbilling/internal/models"
	"github.com/fatflowers/agentbilling/pkg/response"
	"github.com/fatflowers/agentbilling/pkg/types"
)

type SubscriptionScanner interface {
	ScanSubscriptions(ctx context.Context, req *subsvc.ScanSubscriptionsRequest) (*subsvc.ScanSubscriptionsResponse, error)
}

type RoleLister interface {
	ListRoles(ctx context.Context, userID string) ([]*models.UserRole, error)
}

type PlanCatalog interface {
	ListPlans(ctx context.Context) ([]*models.SubscriptionPlan, error)
	UpsertPlan(ctx context.Context, plan *models.SubscriptionPlan) error
}

type SubscriptionResyncer interface {
	Resync(ctx context.Context, stripeSubscriptionID string) (*wh.Outcome, error)
}

type RoleStatistician interface {
	GetRoleStatistic(ctx context.Context, req *statistics.RoleStatisticRequest) (*statistics.RoleStatisticResponse, error)
}

// AdminDeps groups the services behind the admin API.
type AdminDeps struct {
	Subscriptions SubscriptionScanner
	Roles         RoleLister
	Plans         PlanCatalog
	Resync        SubscriptionResyncer
	Statistics    RoleStatistician
	BaseRole      types.Role
}

type ListSubscriptionsRequest struct {
	Filters   []*types.CommonFilter `json:"filters"`
	From      int                   `json:"from"`
	Size      int                   `json:"size"`
	SortBy    string                `json:"sort_by"`
	SortOrder string                `json:"sort_order"`
}

type UserRolesResponse struct {
	UserID      string             `json:"user_id"`
	CurrentRole types.Role         `json:"current_role"`
	History     []*models.UserRole `json:"history"`
}

type ResyncSubscriptionRequest struct {
	StripeSubscriptionID string `json:"stripe_subscription_id"`
}

// @Summary      List Subscriptions (Admin)
// @Description  Retrieves a paginated and filterable list of subscription records.
// @Tags         Admin
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        request body ListSubscriptionsRequest true "Filters, pagination and sorting"
// @Success      200  {object}  handlers.RespListSubscriptions
// @Router       /api/v1/admin/list_subscriptions [post]
func ApiListSubscriptions(svc SubscriptionScanner) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req ListSubscriptionsRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusOK, response.ErrorT[any](response.APIResponseCodeBadRequest, err.Error()))
			return
		}
		res, err := svc.ScanSubscriptions(c.Request.Context(), &subsvc.ScanSubscriptionsRequest{
			Filters: req.Filters, From: req.From, Size: req.Size, SortBy: req.SortBy, SortOrder: req.SortOrder,
		})
		if err != nil {
			c.JSON(http.StatusOK, response.ErrorT[any](response.APIResponseCodeError, err.Error()))
			return
		}
		c.JSON(http.StatusOK, response.OKT(res))
	}
}

// @Summary      User Roles (Admin)
// @Description  Returns the role history of a user, newest first, and the role currently in effect.
// @Tags         Admin
// @Produce      json
// @Security     BearerAuth
// @Param        user_id query string true "CRM user id"
// @Success      200  {object}  handlers.RespUserRoles
// @Router       /api/v1/admin/user_roles [get]
func ApiUserRoles(svc RoleLister, base types.Role) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID := c.Query("user_id")
		if userID == "" {
			c.JSON(http.StatusOK, response.ErrorT[any](response.APIResponseCodeBadRequest, "missing user_id"))
			return
		}
		rows, err := svc.ListRoles(c.Request.Context(), userID)
		if err != nil {
			c.JSON(http.StatusOK, response.ErrorT[any](response.APIResponseCodeError, err.Error()))
			return
		}
		current := base
		if len(rows) > 0 {
			current = rows[0].Role
		}
		c.JSON(http.StatusOK, response.OKT(&UserRolesResponse{
			UserID:      userID,
			CurrentRole: current,
			History:     lo.Ternary(rows == nil, []*models.UserRole{}, rows),
		}))
	}
}

// @Summary      List Plans (Admin)
// @Description  Lists the subscription plan catalog.
// @Tags         Admin
// @Produce      json
// @Security     BearerAuth
// @Success      200  {object}  handlers.RespPlans
// @Router       /api/v1/admin/plans [get]
func ApiListPlans(svc PlanCatalog) gin.HandlerFunc {
	return func(c *gin.Context) {
		plans, err := svc.ListPlans(c.Request.Context())
		if err != nil {
			c.JSON(http.StatusOK, response.ErrorT[any](response.APIResponseCodeError, err.Error()))
			return
		}
		c.JSON(http.StatusOK, response.OKT(plans))
	}
}

// @Summary      Upsert Plan (Admin)
// @Description  Creates or replaces a catalog plan and invalidates the price lookup cache.
// @Tags         Admin
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        request body models.SubscriptionPlan true "Plan"
// @Success      200  {object}  handlers.RespOK
// @Router       /api/v1/admin/plans [post]
func ApiUpsertPlan(svc PlanCatalog) gin.HandlerFunc {
	return func(c *gin.Context) {
		var plan models.SubscriptionPlan
		if err := c.ShouldBindJSON(&plan); err != nil {
			c.JSON(http.StatusOK, response.ErrorT[any](response.APIResponseCodeBadRequest, err.Error()))
			return
		}
		if err := svc.UpsertPlan(c.Request.Context(), &plan); err != nil {
			c.JSON(http.StatusOK, response.ErrorT[any](response.APIResponseCodeError, err.Error()))
			return
		}
		c.JSON(http.StatusOK, response.OKT[any](nil))
	}
}

// @Summary      Resync Subscription (Admin)
// @Description  Fetches a subscription from Stripe and reconciles it as if an update event had just arrived.
// @Tags         Admin
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        request body ResyncSubscriptionRequest true "Stripe subscription id"
// @Success      200  {object}  handlers.RespResync
// @Router       /api/v1/admin/resync_subscription [post]
func ApiResyncSubscription(svc SubscriptionResyncer) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req ResyncSubscriptionRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusOK, response.ErrorT[any](response.APIResponseCodeBadRequest, err.Error()))
			return
		}
		if req.StripeSubscriptionID == "" {
			c.JSON(http.StatusOK, response.ErrorT[any](response.APIResponseCodeBadRequest, "missing stripe_subscription_id"))
			return
		}
		out, err := svc.Resync(c.Request.Context(), req.StripeSubscriptionID)
		if err != nil {
			c.JSON(http.StatusOK, response.ErrorT[any](response.APIResponseCodeError, err.Error()))
			return
		}
		c.JSON(http.StatusOK, response.OKT(out))
	}
}

// @Summary      Role Statistics (Admin)
// @Description  Counts users per current role and subscriptions per status or plan.
// @Tags         Admin
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        request body statistics.RoleStatisticRequest true "Statistic request parameters"
// @Success      200  {object}  handlers.RespRoleStatistic
// @Router       /api/v1/admin/get_role_statistic [post]
func ApiGetRoleStatistic(svc RoleStatistician) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req statistics.RoleStatisticRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusOK, response.ErrorT[any](response.APIResponseCodeBadRequest, err.Error()))
			return
		}
		res, err := svc.GetRoleStatistic(c.Request.Context(), &req)
		if err != nil {
			c.JSON(http.StatusOK, response.ErrorT[any](response.APIResponseCodeError, err.Error()))
			return
		}
		c.JSON(http.StatusOK, response.OKT(res))
	}
}

func RegisterAdminRoutes(r gin.IRouter, d AdminDeps) {
	r.POST("/list_subscriptions", ApiListSubscriptions(d.Subscriptions))
	r.GET("/user_roles", ApiUserRoles(d.Roles, d.BaseRole))
	r.GET("/plans", ApiListPlans(d.Plans))
	r.POST("/plans", ApiUpsertPlan(d.Plans))
	r.POST("/resync_subscription", ApiResyncSubscription(d.Resync))
	r.POST("/get_role_statistic", ApiGetRoleStatistic(d.Statistics))
}
