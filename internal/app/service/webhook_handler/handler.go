package webhook_handler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/samber/lo"
	"github.com/stripe/stripe-go/v82"
	"go.uber.org/zap"
	"gorm.io/datatypes"

	"github.com/fatflowers/agentbilling/internal/app/service/catalog"
	"github.com/fatflowers/agentbilling/internal/app/service/roles"
	"github.com/fatflowers/agentbilling/internal/app/service/subscription"
	"github.com/fatflowers/agentbilling/internal/models"
	"github.com/fatflowers/agentbilling/internal/platform/stripeclient"
	"github.com/fatflowers/agentbilling/pkg/config"
	"github.com/fatflowers/agentbilling/pkg/logctx"
	"github.com/fatflowers/agentbilling/pkg/metrics"
	"github.com/fatflowers/agentbilling/pkg/types"
)

var (
	ErrNoSignature   = errors.New("no signature")
	ErrMissingUserID = errors.New("subscription metadata has no user id")
)

type EventSource interface {
	ConstructEvent(payload []byte, sigHeader string) (stripe.Event, error)
	FetchSubscription(ctx context.Context, id string) (*stripe.Subscription, error)
}

type PlanResolver interface {
	Resolve(ctx context.Context, priceID string) (catalog.Resolution, error)
}

type RecordWriter interface {
	Upsert(ctx context.Context, rec *subscription.Record) (*models.Subscription, error)
	DeleteByUser(ctx context.Context, userID, stripeSubscriptionID string, eventAt time.Time) (int64, error)
}

type RoleReconciler interface {
	Reconcile(ctx context.Context, ev roles.Event) (*roles.Result, error)
	Cleanup(ctx context.Context, ev roles.Event) (*roles.Result, error)
}

type EventLogger interface {
	SaveWebhookEvent(ctx context.Context, entry *models.WebhookEventLog)
}

// Outcome summarizes how one event was handled.
type Outcome struct {
	EventID    string                   `json:"event_id"`
	EventType  types.EventType          `json:"event_type"`
	UserID     string                   `json:"user_id,omitempty"`
	PlanID     string                   `json:"plan_id,omitempty"`
	Status     types.WebhookEventStatus `json:"status"`
	Reason     string                   `json:"reason,omitempty"`
	Transition *roles.Transition        `json:"transition,omitempty"`
}

type Handler struct {
	source    EventSource
	plans     PlanResolver
	records   RecordWriter
	roles     RoleReconciler
	events    EventLogger
	metrics   *metrics.Recorder
	userIDKey string
	log       *zap.SugaredLogger
	now       func() time.Time
}

func New(cfg *config.Config, source EventSource, plans PlanResolver, records RecordWriter, reconciler RoleReconciler, events EventLogger, rec *metrics.Recorder, log *zap.SugaredLogger) *Handler {
	return &Handler{
		source:    source,
		plans:     plans,
		records:   records,
		roles:     reconciler,
		events:    events,
		metrics:   rec,
		userIDKey: cfg.Billing.UserIDMetadataKey,
		log:       log,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// HandleWebhook verifies a Stripe delivery and processes it. A returned error
// means the delivery must be answered with a client error so Stripe retries.
// Nothing is written before the signature is verified.
func (h *Handler) HandleWebhook(ctx context.Context, payload []byte, sigHeader string) (*Outcome, error) {
	if sigHeader == "" {
		h.metrics.WebhookEvent("unknown", "no_signature")
		return nil, ErrNoSignature
	}
	event, err := h.source.ConstructEvent(payload, sigHeader)
	if err != nil {
		h.metrics.WebhookEvent("unknown", "invalid_signature")
		logctx.FromCtx(ctx, h.log).Warnw("stripe signature verification failed", "err", err)
		return nil, err
	}
	return h.process(ctx, &event)
}

// Resync fetches a subscription from Stripe and runs it through the update path
// as if an event had just arrived.
func (h *Handler) Resync(ctx context.Context, stripeSubscriptionID string) (*Outcome, error) {
	sub, err := h.source.FetchSubscription(ctx, stripeSubscriptionID)
	if err != nil {
		return nil, err
	}
	var raw []byte
	if sub.LastResponse != nil && len(sub.LastResponse.RawJSON) > 0 {
		raw = sub.LastResponse.RawJSON
	} else if raw, err = json.Marshal(sub); err != nil {
		return nil, fmt.Errorf("encode subscription: %w", err)
	}
	event := &stripe.Event{
		ID:      "resync_" + stripeSubscriptionID,
		Type:    stripe.EventType(types.EventSubscriptionUpdated),
		Created: h.now().Unix(),
		Data:    &stripe.EventData{Raw: raw},
	}
	return h.process(ctx, event)
}

func (h *Handler) process(ctx context.Context, event *stripe.Event) (out *Outcome, resErr error) {
	start := time.Now()
	eventType := types.EventType(event.Type)
	out = &Outcome{EventID: event.ID, EventType: eventType, Status: types.WebhookEventStatusHandled}

	var raw json.RawMessage
	if event.Data != nil {
		raw = event.Data.Raw
	}
	eventAt := stripeclient.FromUnix(event.Created)
	lg := logctx.FromCtx(ctx, h.log).With("event_id", event.ID, "event_type", eventType)
	ctx = logctx.WithLogger(ctx, lg)
	lg.Infow("stripe event received")

	h.saveEvent(ctx, out, types.WebhookEventStatusReceived, eventAt, raw)
	defer func() {
		if resErr != nil {
			out.Status = types.WebhookEventStatusHandleFailed
			out.Reason = resErr.Error()
		}
		h.saveEvent(ctx, out, out.Status, eventAt, raw)
		h.metrics.WebhookEvent(string(eventType), string(out.Status))
		h.metrics.ObserveProcessing(string(eventType), start)
	}()

	switch eventType {
	case types.EventSubscriptionCreated, types.EventSubscriptionUpdated:
		resErr = h.handleUpsert(ctx, event, eventAt, raw, out)
	case types.EventSubscriptionDeleted:
		resErr = h.handleDeleted(ctx, event, eventAt, raw, out)
	case types.EventInvoicePaymentSucceed, types.EventInvoicePaymentFailed:
		h.handleInvoice(ctx, raw, out)
	default:
		lg.Infow("unhandled stripe event type")
		out.Status = types.WebhookEventStatusIgnored
		out.Reason = "unhandled event type"
	}
	return out, resErr
}

func (h *Handler) handleUpsert(ctx context.Context, event *stripe.Event, eventAt time.Time, raw json.RawMessage, out *Outcome) error {
	snap, err := stripeclient.ParseSubscription(raw)
	if err != nil {
		return err
	}
	userID, ok := h.userID(ctx, snap, out)
	if !ok {
		return nil
	}
	ctx = logctx.WithUserID(ctx, userID)
	lg := logctx.FromCtx(ctx, h.log).With("stripe_subscription_id", snap.ID)

	plan, err := h.plans.Resolve(ctx, snap.PriceID)
	if err != nil {
		if errors.Is(err, catalog.ErrPlanNotFound) {
			return fmt.Errorf("price %s: %w", snap.PriceID, err)
		}
		lg.Errorw("plan lookup failed, event abandoned", "price_id", snap.PriceID, "err", err)
		out.Status = types.WebhookEventStatusHandleFailed
		out.Reason = "plan lookup failed"
		return nil
	}
	if plan.Fallback {
		lg.Warnw("no plan matches price, using fallback plan", "price_id", snap.PriceID, "plan_id", plan.PlanID)
	}
	out.PlanID = plan.PlanID

	_, err = h.records.Upsert(ctx, &subscription.Record{UserID: userID, PlanID: plan.PlanID, Snapshot: snap, EventAt: eventAt})
	if errors.Is(err, subscription.ErrStaleEvent) {
		out.Status = types.WebhookEventStatusIgnored
		out.Reason = "stale event"
		return nil
	}
	if err != nil {
		return err
	}

	res, err := h.roles.Reconcile(ctx, roles.Event{
		ID:                   event.ID,
		Type:                 out.EventType,
		UserID:               userID,
		StripeSubscriptionID: snap.ID,
		Status:               snap.Status,
		PlanID:               plan.PlanID,
		Role:                 plan.Role,
	})
	h.applyRoleResult(res, out)
	return err
}

func (h *Handler) handleDeleted(ctx context.Context, event *stripe.Event, eventAt time.Time, raw json.RawMessage, out *Outcome) error {
	snap, err := stripeclient.ParseSubscription(raw)
	if err != nil {
		return err
	}
	userID, ok := h.userID(ctx, snap, out)
	if !ok {
		return nil
	}
	ctx = logctx.WithUserID(ctx, userID)

	n, err := h.records.DeleteByUser(ctx, userID, snap.ID, eventAt)
	if err != nil {
		return err
	}
	logctx.FromCtx(ctx, h.log).Infow("subscription rows deleted", "stripe_subscription_id", snap.ID, "rows", n)

	res, err := h.roles.Cleanup(ctx, roles.Event{
		ID:                   event.ID,
		Type:                 out.EventType,
		UserID:               userID,
		StripeSubscriptionID: snap.ID,
		Status:               snap.Status,
	})
	h.applyRoleResult(res, out)
	return err
}

func (h *Handler) applyRoleResult(res *roles.Result, out *Outcome) {
	if res == nil {
		return
	}
	out.Transition = &res.Transition
	if res.Failed {
		out.Status = types.WebhookEventStatusHandleFailed
		out.Reason = "role reconciliation failed"
	}
}

func (h *Handler) handleInvoice(ctx context.Context, raw json.RawMessage, out *Outcome) {
	lg := logctx.FromCtx(ctx, h.log)
	inv, err := stripeclient.ParseInvoice(raw)
	if err != nil {
		lg.Warnw("failed to decode invoice", "err", err)
		out.Status = types.WebhookEventStatusIgnored
		return
	}
	lg.Infow("invoice event",
		"invoice_id", inv.ID,
		"customer_id", inv.CustomerID,
		"amount_paid", inv.AmountPaid,
		"amount_due", inv.AmountDue,
		"currency", inv.Currency,
	)
}

// userID reads the CRM user id from subscription metadata. Events without one
// can never be processed, so they are acknowledged and dropped.
func (h *Handler) userID(ctx context.Context, snap *stripeclient.SubscriptionSnapshot, out *Outcome) (string, bool) {
	userID := snap.Metadata[h.userIDKey]
	if userID == "" {
		logctx.FromCtx(ctx, h.log).Warnw("subscription event dropped", "stripe_subscription_id", snap.ID, "err", ErrMissingUserID)
		out.Status = types.WebhookEventStatusIgnored
		out.Reason = ErrMissingUserID.Error()
		return "", false
	}
	out.UserID = userID
	return userID, true
}

func (h *Handler) saveEvent(ctx context.Context, out *Outcome, status types.WebhookEventStatus, eventAt time.Time, raw json.RawMessage) {
	if h.events == nil {
		return
	}
	entry := &models.WebhookEventLog{
		EventID:          out.EventID,
		EventType:        string(out.EventType),
		TraceID:          logctx.TraceID(ctx),
		NotificationTime: eventAt,
		Data:             datatypes.JSON(lo.Ternary(len(raw) > 0, []byte(raw), []byte("null"))),
		Status:           status,
	}
	if out.UserID != "" {
		entry.UserID = lo.ToPtr(out.UserID)
	}
	if status != types.WebhookEventStatusReceived {
		if b, err := json.Marshal(out); err == nil {
			entry.Result = lo.ToPtr(datatypes.JSON(b))
		}
	}
	h.events.SaveWebhookEvent(ctx, entry)
}
