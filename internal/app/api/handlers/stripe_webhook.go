package handlers

import (
	"context"
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	wh "github.com/fatflowers/agentbilling/internal/app/service/webhook_handler"
	"github.com/fatflowers/agentbilling/internal/platform/stripeclient"
	"github.com/fatflowers/agentbilling/pkg/logctx"
)

// maxWebhookBody matches the payload limit Stripe documents for webhook deliveries.
const maxWebhookBody = 1 << 20

type WebhookProcessor interface {
	HandleWebhook(ctx context.Context, payload []byte, sigHeader string) (*wh.Outcome, error)
}

// @Summary      Stripe Webhook
// @Description  Receives Stripe subscription and invoice events. The raw body is verified against the Stripe-Signature header.
// @Tags         Webhook
// @Accept       json
// @Produce      json
// @Param        Stripe-Signature header string true "Stripe webhook signature"
// @Param        payload body string true "Stripe event JSON"
// @Success      200  {object}  handlers.RespWebhookReceived
// @Failure      400  {string}  string "No signature | Webhook error: <message>"
// @Router       /api/v1/billing/webhook/stripe [post]
func ApiStripeWebhook(h WebhookProcessor, log *zap.SugaredLogger) gin.HandlerFunc {
	return func(c *gin.Context) {
		lg := logctx.FromGin(c, log)

		sig := c.GetHeader(stripeclient.SignatureHeader)
		if sig == "" {
			lg.Warnw("webhook_stripe_no_signature")
			c.String(http.StatusBadRequest, "No signature")
			return
		}
		payload, err := io.ReadAll(http.MaxBytesReader(c.Writer, c.Request.Body, maxWebhookBody))
		if err != nil {
			c.String(http.StatusBadRequest, "Webhook error: "+err.Error())
			return
		}

		out, err := h.HandleWebhook(c.Request.Context(), payload, sig)
		if err != nil {
			if errors.Is(err, wh.ErrNoSignature) {
				c.String(http.StatusBadRequest, "No signature")
				return
			}
			lg.Errorw("webhook_stripe_handle_error", "err", err)
			c.String(http.StatusBadRequest, "Webhook error: "+err.Error())
			return
		}
		lg.Infow("webhook_stripe_handled", "event_id", out.EventID, "event_type", out.EventType, "status", out.Status)
		c.JSON(http.StatusOK, gin.H{"received": true})
	}
}

// RegisterStripeWebhookRoutes mounts the webhook on r at path.
func RegisterStripeWebhookRoutes(r gin.IRouter, path string, h WebhookProcessor, log *zap.SugaredLogger) {
	r.POST(path, ApiStripeWebhook(h, log))
}
