// Package docs holds the Swagger document served at /swagger; regenerate with `swag init -g cmd/api/main.go`.
package docs

import "github.com/swaggo/swag"

const docTemplate = `{
    "schemes": {{ marshal .Schemes }},
    "swagger": "2.0",
    "info": {
        "description": "{{escape .Description}}",
        "title": "{{.Title}}",
        "contact": {},
        "version": "{{.Version}}"
    },
    "host": "{{.Host}}",
    "basePath": "{{.BasePath}}",
    "paths": {
        "/healthz": {
            "get": {
                "description": "Returns service status",
                "produces": ["application/json"],
                "tags": ["System"],
                "summary": "Health check",
                "responses": {"200": {"description": "OK", "schema": {"type": "object", "additionalProperties": {"type": "string"}}}}
            }
        },
        "/api/v1/billing/webhook/stripe": {
            "post": {
                "description": "Receives Stripe subscription and invoice events. The raw body is verified against the Stripe-Signature header.",
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "tags": ["Webhook"],
                "summary": "Stripe Webhook",
                "parameters": [
                    {"type": "string", "description": "Stripe webhook signature", "name": "Stripe-Signature", "in": "header", "required": true},
                    {"description": "Stripe event JSON", "name": "payload", "in": "body", "required": true, "schema": {"type": "string"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/handlers.RespWebhookReceived"}},
                    "400": {"description": "No signature | Webhook error: <message>", "schema": {"type": "string"}}
                }
            }
        },
        "/api/v1/admin/list_subscriptions": {
            "post": {
                "security": [{"BearerAuth": []}],
                "description": "Retrieves a paginated and filterable list of subscription records.",
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "tags": ["Admin"],
                "summary": "List Subscriptions (Admin)",
                "parameters": [{"description": "Filters, pagination and sorting", "name": "request", "in": "body", "required": true, "schema": {"$ref": "#/definitions/handlers.ListSubscriptionsRequest"}}],
                "responses": {"200": {"description": "OK", "schema": {"$ref": "#/definitions/handlers.RespOK"}}}
            }
        },
        "/api/v1/admin/user_roles": {
            "get": {
                "security": [{"BearerAuth": []}],
                "description": "Returns the role history of a user, newest first, and the role currently in effect.",
                "produces": ["application/json"],
                "tags": ["Admin"],
                "summary": "User Roles (Admin)",
                "parameters": [{"type": "string", "description": "CRM user id", "name": "user_id", "in": "query", "required": true}],
                "responses": {"200": {"description": "OK", "schema": {"$ref": "#/definitions/handlers.RespOK"}}}
            }
        },
        "/api/v1/admin/plans": {
            "get": {
                "security": [{"BearerAuth": []}],
                "description": "Lists the subscription plan catalog.",
                "produces": ["application/json"],
                "tags": ["Admin"],
                "summary": "List Plans (Admin)",
                "responses": {"200": {"description": "OK", "schema": {"$ref": "#/definitions/handlers.RespOK"}}}
            },
            "post": {
                "security": [{"BearerAuth": []}],
                "description": "Creates or replaces a catalog plan and invalidates the price lookup cache.",
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "tags": ["Admin"],
                "summary": "Upsert Plan (Admin)",
                "parameters": [{"description": "Plan", "name": "request", "in": "body", "required": true, "schema": {"type": "object"}}],
                "responses": {"200": {"description": "OK", "schema": {"$ref": "#/definitions/handlers.RespOK"}}}
            }
        },
        "/api/v1/admin/resync_subscription": {
            "post": {
                "security": [{"BearerAuth": []}],
                "description": "Fetches a subscription from Stripe and reconciles it as if an update event had just arrived.",
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "tags": ["Admin"],
                "summary": "Resync Subscription (Admin)",
                "parameters": [{"description": "Stripe subscription id", "name": "request", "in": "body", "required": true, "schema": {"$ref": "#/definitions/handlers.ResyncSubscriptionRequest"}}],
                "responses": {"200": {"description": "OK", "schema": {"$ref": "#/definitions/handlers.RespOK"}}}
            }
        },
        "/api/v1/admin/get_role_statistic": {
            "post": {
                "security": [{"BearerAuth": []}],
                "description": "Counts users per current role and subscriptions per status or plan.",
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "tags": ["Admin"],
                "summary": "Role Statistics (Admin)",
                "parameters": [{"description": "Statistic request parameters", "name": "request", "in": "body", "required": true, "schema": {"type": "object"}}],
                "responses": {"200": {"description": "OK", "schema": {"$ref": "#/definitions/handlers.RespOK"}}}
            }
        }
    },
    "definitions": {
        "handlers.RespOK": {
            "type": "object",
            "properties": {"code": {"type": "integer"}, "data": {}, "message": {"type": "string"}}
        },
        "handlers.RespWebhookReceived": {
            "type": "object",
            "properties": {"received": {"type": "boolean"}}
        },
        "handlers.ListSubscriptionsRequest": {
            "type": "object",
            "properties": {
                "filters": {"type": "array", "items": {"type": "object"}},
                "from": {"type": "integer"},
                "size": {"type": "integer"},
                "sort_by": {"type": "string"},
                "sort_order": {"type": "string"}
            }
        },
        "handlers.ResyncSubscriptionRequest": {
            "type": "object",
            "properties": {"stripe_subscription_id": {"type": "string"}}
        }
    },
    "securityDefinitions": {
        "BearerAuth": {"type": "apiKey", "name": "Authorization", "in": "header"}
    }
}`

// SwaggerInfo holds exported Swagger Info so clients can modify it
var SwaggerInfo = &swag.Spec{
	Version:          "1.0",
	Host:             "localhost:8888",
	BasePath:         "/",
	Schemes:          []string{},
	Title:            "Agent Billing API",
	Description:      "Stripe subscription webhook and role reconciliation for the agent CRM.",
	InfoInstanceName: "swagger",
	SwaggerTemplate:  docTemplate,
	LeftDelim:        "{{",
	RightDelim:       "}}",
}

func init() {
	swag.Register(SwaggerInfo.InstanceName(), SwaggerInfo)
}
