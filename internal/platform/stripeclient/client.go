package stripeclient

import (
	"context"
	"errors"
	"fmt"

	"github.com/stripe/stripe-go/v82"
	"github.com/stripe/stripe-go/v82/subscription"
	"github.com/stripe/stripe-go/v82/webhook"
	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/fatflowers/agentbilling/pkg/config"
)

// SignatureHeader is the header Stripe signs webhook deliveries with.
const SignatureHeader = "Stripe-Signature"

var ErrNotConfigured = errors.New("stripe secret key is not configured")

// Client wraps the stripe-go SDK: webhook verification and subscription lookups.
type Client struct {
	webhookSecret string
	hasAPIKey     bool
	verifyOpts    webhook.ConstructEventOptions
	log           *zap.SugaredLogger
}

func New(cfg *config.Config, l *zap.SugaredLogger) *Client {
	if cfg.Stripe.SecretKey != "" {
		stripe.Key = cfg.Stripe.SecretKey
	} else {
		l.Warnw("stripe secret key is empty, subscription lookups are disabled")
	}
	if cfg.Stripe.WebhookSecret == "" {
		l.Warnw("stripe webhook secret is empty, every webhook will fail verification")
	}
	return &Client{
		webhookSecret: cfg.Stripe.WebhookSecret,
		hasAPIKey:     cfg.Stripe.SecretKey != "",
		verifyOpts: webhook.ConstructEventOptions{
			IgnoreAPIVersionMismatch: cfg.Stripe.IgnoreAPIVersionMismatch,
		},
		log: l,
	}
}

// ConstructEvent verifies sigHeader against the raw payload and decodes the event.
func (c *Client) ConstructEvent(payload []byte, sigHeader string) (stripe.Event, error) {
	if c.webhookSecret == "" {
		return stripe.Event{}, errors.New("webhook secret is not configured")
	}
	return webhook.ConstructEventWithOptions(payload, sigHeader, c.webhookSecret, c.verifyOpts)
}

// FetchSubscription retrieves the current state of a subscription from the Stripe API.
func (c *Client) FetchSubscription(ctx context.Context, id string) (*stripe.Subscription, error) {
	if !c.hasAPIKey {
		return nil, ErrNotConfigured
	}
	params := &stripe.SubscriptionParams{}
	params.Context = ctx
	sub, err := subscription.Get(id, params)
	if err != nil {
		return nil, fmt.Errorf("stripe get subscription %s: %w", id, err)
	}
	return sub, nil
}

var Module = fx.Options(
	fx.Provide(New),
)
