package handlers

import (
	"github.com/fatflowers/agentbilling/internal/app/service/statistics"
	subsvc "github.com/fatflowers/agentbilling/internal/app/service/subscription"
	wh "github.com/fatflowers/agentbilling/internal/app/service/webhook_handler"
	models "github.com/fatflowers/agentbilling/internal/models"
	"github.com/fatflowers/agentbilling/pkg/response"
)

// RespOK is a generic OK envelope for endpoints returning no specific data.
type RespOK struct {
	Code    response.APIResponseCode `json:"code"`
	Message string                   `json:"message"`
	Data    interface{}              `json:"data"`
}

// RespWebhookReceived is the body Stripe receives for an accepted delivery.
type RespWebhookReceived struct {
	Received bool `json:"received"`
}

type RespListSubscriptions struct {
	Code    response.APIResponseCode         `json:"code"`
	Message string                           `json:"message"`
	Data    subsvc.ScanSubscriptionsResponse `json:"data"`
}

type RespUserRoles struct {
	Code    response.APIResponseCode `json:"code"`
	Message string                   `json:"message"`
	Data    UserRolesResponse        `json:"data"`
}

type RespPlans struct {
	Code    response.APIResponseCode  `json:"code"`
	Message string                    `json:"message"`
	Data    []models.SubscriptionPlan `json:"data"`
}

type RespResync struct {
	Code    response.APIResponseCode `json:"code"`
	Message string                   `json:"message"`
	Data    wh.Outcome               `json:"data"`
}

type RespRoleStatistic struct {
	Code    response.APIResponseCode         `json:"code"`
	Message string                           `json:"message"`
	Data    statistics.RoleStatisticResponse `json:"data"`
}
