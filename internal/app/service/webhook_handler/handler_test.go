package webhook_handler

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stripe/stripe-go/v82"
	"github.com/stripe/stripe-go/v82/webhook"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/fatflowers/agentbilling/internal/app/service/catalog"
	"github.com/fatflowers/agentbilling/internal/app/service/roles"
	"github.com/fatflowers/agentbilling/internal/app/service/subscription"
	"github.com/fatflowers/agentbilling/internal/models"
	"github.com/fatflowers/agentbilling/internal/platform/stripeclient"
	"github.com/fatflowers/agentbilling/pkg/config"
	"github.com/fatflowers/agentbilling/pkg/types"
)

const secret = "whsec_test"

type fakePlans struct {
	byPrice map[string]catalog.Resolution
	err     error
}

func (f *fakePlans) Resolve(ctx context.Context, priceID string) (catalog.Resolution, error) {
	if f.err != nil {
		return catalog.Resolution{}, f.err
	}
	if r, ok := f.byPrice[priceID]; ok {
		return r, nil
	}
	return catalog.Resolution{PlanID: "agent_pro", Role: types.RoleAgentPro, Fallback: true}, nil
}

type fakeRecords struct {
	upserts  []*subscription.Record
	deletes  []string
	deleteAt []time.Time
	err      error
}

func (f *fakeRecords) Upsert(ctx context.Context, rec *subscription.Record) (*models.Subscription, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.upserts = append(f.upserts, rec)
	return &models.Subscription{StripeSubscriptionID: rec.Snapshot.ID}, nil
}

func (f *fakeRecords) DeleteByUser(ctx context.Context, userID, stripeSubscriptionID string, eventAt time.Time) (int64, error) {
	if f.err != nil {
		return 0, f.err
	}
	f.deletes = append(f.deletes, userID+"/"+stripeSubscriptionID)
	f.deleteAt = append(f.deleteAt, eventAt)
	return 1, nil
}

type fakeRoles struct {
	reconciled []roles.Event
	cleaned    []roles.Event
	err        error
	// failed reports a rolled back transition whose error was swallowed.
	failed bool
}

func (f *fakeRoles) Reconcile(ctx context.Context, ev roles.Event) (*roles.Result, error) {
	f.reconciled = append(f.reconciled, ev)
	return &roles.Result{Transition: roles.Transition{Kind: roles.TransitionGrant, To: ev.Role}, Affected: 1, Failed: f.failed}, f.err
}

func (f *fakeRoles) Cleanup(ctx context.Context, ev roles.Event) (*roles.Result, error) {
	f.cleaned = append(f.cleaned, ev)
	return &roles.Result{Transition: roles.Transition{Kind: roles.TransitionCleanup, To: types.RoleAgent}, Failed: f.failed}, f.err
}

type fakeEvents struct {
	entries []*models.WebhookEventLog
}

func (f *fakeEvents) SaveWebhookEvent(ctx context.Context, entry *models.WebhookEventLog) {
	f.entries = append(f.entries, entry)
}

type fakeStripe struct {
	*stripeclient.Client
	sub *stripe.Subscription
	err error
}

func (f *fakeStripe) FetchSubscription(ctx context.Context, id string) (*stripe.Subscription, error) {
	return f.sub, f.err
}

type fixture struct {
	h       *Handler
	plans   *fakePlans
	records *fakeRecords
	roles   *fakeRoles
	events  *fakeEvents
	stripe  *fakeStripe
}

func newFixture() *fixture {
	cfg := &config.Config{
		Stripe:  config.StripeConfig{WebhookSecret: secret, IgnoreAPIVersionMismatch: true},
		Billing: config.BillingConfig{UserIDMetadataKey: "user_id"},
	}
	log := zap.NewNop().Sugar()
	f := &fixture{
		plans: &fakePlans{byPrice: map[string]catalog.Resolution{
			"price_mp_m": {PlanID: "manager_pro", Role: types.RoleManagerPro},
		}},
		records: &fakeRecords{},
		roles:   &fakeRoles{},
		events:  &fakeEvents{},
		stripe:  &fakeStripe{Client: stripeclient.New(cfg, log)},
	}
	f.h = New(cfg, f.stripe, f.plans, f.records, f.roles, f.events, nil, log)
	return f
}

func subscriptionJSON(userID, status, priceID string) string {
	metadata := "{}"
	if userID != "" {
		metadata = fmt.Sprintf(`{"user_id": %q}`, userID)
	}
	return fmt.Sprintf(`{"id": "sub_1", "object": "subscription", "customer": "cus_1", "status": %q, "metadata": %s,
		"items": {"object": "list", "data": [{"id": "si_1", "price": {"id": %q}, "current_period_start": 1700000000, "current_period_end": 1702592000}]}}`,
		status, metadata, priceID)
}

func eventJSON(eventType types.EventType, object string) []byte {
	return []byte(fmt.Sprintf(`{"id": "evt_1", "object": "event", "type": %q, "created": 1700000100, "data": {"object": %s}}`, eventType, object))
}

func sign(payload []byte) string {
	return webhook.GenerateTestSignedPayload(&webhook.UnsignedPayload{Payload: payload, Secret: secret, Timestamp: time.Now()}).Header
}

func TestHandleWebhook_Signature(t *testing.T) {
	f := newFixture()
	payload := eventJSON(types.EventSubscriptionUpdated, subscriptionJSON("u1", "active", "price_mp_m"))

	_, err := f.h.HandleWebhook(context.Background(), payload, "")
	assert.ErrorIs(t, err, ErrNoSignature)

	_, err = f.h.HandleWebhook(context.Background(), payload, "t=1,v1=bad")
	assert.Error(t, err)

	assert.Empty(t, f.events.entries)
	assert.Empty(t, f.records.upserts)
	assert.Empty(t, f.roles.reconciled)
}

func TestHandleWebhook_Updated(t *testing.T) {
	f := newFixture()
	payload := eventJSON(types.EventSubscriptionUpdated, subscriptionJSON("u1", "active", "price_mp_m"))

	out, err := f.h.HandleWebhook(context.Background(), payload, sign(payload))
	require.NoError(t, err)
	assert.Equal(t, types.WebhookEventStatusHandled, out.Status)
	assert.Equal(t, "manager_pro", out.PlanID)
	require.NotNil(t, out.Transition)
	assert.Equal(t, roles.TransitionGrant, out.Transition.Kind)

	require.Len(t, f.records.upserts, 1)
	rec := f.records.upserts[0]
	assert.Equal(t, "u1", rec.UserID)
	assert.Equal(t, "manager_pro", rec.PlanID)
	assert.Equal(t, time.Unix(1700000100, 0).UTC(), rec.EventAt)
	assert.Equal(t, time.Unix(1700000000, 0).UTC(), rec.Snapshot.CurrentPeriodStart)

	require.Len(t, f.roles.reconciled, 1)
	ev := f.roles.reconciled[0]
	assert.Equal(t, roles.Event{
		ID:                   "evt_1",
		Type:                 types.EventSubscriptionUpdated,
		UserID:               "u1",
		StripeSubscriptionID: "sub_1",
		Status:               types.SubscriptionStatusActive,
		PlanID:               "manager_pro",
		Role:                 types.RoleManagerPro,
	}, ev)

	require.Len(t, f.events.entries, 2)
	assert.Equal(t, types.WebhookEventStatusReceived, f.events.entries[0].Status)
	assert.Equal(t, types.WebhookEventStatusHandled, f.events.entries[1].Status)
	assert.NotNil(t, f.events.entries[1].Result)
}

func TestHandleWebhook_FallbackPlan(t *testing.T) {
	f := newFixture()
	payload := eventJSON(types.EventSubscriptionCreated, subscriptionJSON("u1", "trialing", "price_unknown"))

	out, err := f.h.HandleWebhook(context.Background(), payload, sign(payload))
	require.NoError(t, err)
	assert.Equal(t, "agent_pro", out.PlanID)
	require.Len(t, f.roles.reconciled, 1)
	assert.Equal(t, types.RoleAgentPro, f.roles.reconciled[0].Role)
}

func TestHandleWebhook_Abandoned(t *testing.T) {
	tests := []struct {
		name       string
		userID     string
		planErr    error
		wantErr    bool
		wantStatus types.WebhookEventStatus
	}{
		{"missing user id is acknowledged", "", nil, false, types.WebhookEventStatusIgnored},
		{"plan lookup failure is swallowed", "u1", errors.New("db down"), false, types.WebhookEventStatusHandleFailed},
		{"strict plan miss fails the delivery", "u1", fmt.Errorf("price x: %w", catalog.ErrPlanNotFound), true, types.WebhookEventStatusHandleFailed},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture()
			f.plans.err = tt.planErr
			payload := eventJSON(types.EventSubscriptionUpdated, subscriptionJSON(tt.userID, "active", "price_mp_m"))

			out, err := f.h.HandleWebhook(context.Background(), payload, sign(payload))
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
			assert.Equal(t, tt.wantStatus, out.Status)
			assert.Empty(t, f.records.upserts)
			assert.Empty(t, f.roles.reconciled)
		})
	}
}

func TestHandleWebhook_UpsertError(t *testing.T) {
	f := newFixture()
	f.records.err = errors.New("constraint violation")
	payload := eventJSON(types.EventSubscriptionUpdated, subscriptionJSON("u1", "active", "price_mp_m"))

	out, err := f.h.HandleWebhook(context.Background(), payload, sign(payload))
	assert.ErrorContains(t, err, "constraint violation")
	assert.Equal(t, types.WebhookEventStatusHandleFailed, out.Status)
	assert.Empty(t, f.roles.reconciled)
}

func TestHandleWebhook_StaleEvent(t *testing.T) {
	f := newFixture()
	f.records.err = subscription.ErrStaleEvent
	payload := eventJSON(types.EventSubscriptionUpdated, subscriptionJSON("u1", "canceled", "price_mp_m"))

	out, err := f.h.HandleWebhook(context.Background(), payload, sign(payload))
	require.NoError(t, err)
	assert.Equal(t, types.WebhookEventStatusIgnored, out.Status)
	assert.Empty(t, f.roles.reconciled)
}

func TestHandleWebhook_RoleErrorPropagates(t *testing.T) {
	f := newFixture()
	f.roles.err = errors.New("lock timeout")
	payload := eventJSON(types.EventSubscriptionUpdated, subscriptionJSON("u1", "active", "price_mp_m"))

	_, err := f.h.HandleWebhook(context.Background(), payload, sign(payload))
	assert.ErrorContains(t, err, "lock timeout")
	assert.Len(t, f.records.upserts, 1)
}

func TestHandleWebhook_SwallowedRoleErrorIsAudited(t *testing.T) {
	tests := []struct {
		name      string
		eventType types.EventType
	}{
		{"reconcile", types.EventSubscriptionUpdated},
		{"cleanup", types.EventSubscriptionDeleted},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture()
			f.roles.failed = true
			payload := eventJSON(tt.eventType, subscriptionJSON("u1", "active", "price_mp_m"))

			out, err := f.h.HandleWebhook(context.Background(), payload, sign(payload))
			require.NoError(t, err)
			assert.Equal(t, types.WebhookEventStatusHandleFailed, out.Status)
			assert.Equal(t, "role reconciliation failed", out.Reason)

			require.Len(t, f.events.entries, 2)
			assert.Equal(t, types.WebhookEventStatusHandleFailed, f.events.entries[1].Status)
		})
	}
}

func TestHandleWebhook_Deleted(t *testing.T) {
	f := newFixture()
	payload := eventJSON(types.EventSubscriptionDeleted, subscriptionJSON("u1", "canceled", "price_mp_m"))

	out, err := f.h.HandleWebhook(context.Background(), payload, sign(payload))
	require.NoError(t, err)
	assert.Equal(t, types.WebhookEventStatusHandled, out.Status)
	assert.Equal(t, []string{"u1/sub_1"}, f.records.deletes)
	assert.Equal(t, []time.Time{time.Unix(1700000100, 0).UTC()}, f.records.deleteAt)
	require.Len(t, f.roles.cleaned, 1)
	assert.Equal(t, "u1", f.roles.cleaned[0].UserID)
	assert.Empty(t, f.roles.reconciled)
}

func TestHandleWebhook_LogOnly(t *testing.T) {
	tests := []struct {
		name       string
		payload    []byte
		wantStatus types.WebhookEventStatus
	}{
		{"invoice paid", eventJSON(types.EventInvoicePaymentSucceed, `{"id": "in_1", "object": "invoice", "customer": "cus_1", "amount_paid": 4900, "currency": "usd"}`), types.WebhookEventStatusHandled},
		{"invoice failed", eventJSON(types.EventInvoicePaymentFailed, `{"id": "in_2", "object": "invoice", "customer": "cus_1", "amount_due": 4900, "currency": "usd"}`), types.WebhookEventStatusHandled},
		{"unrelated type", eventJSON("charge.refunded", `{"id": "ch_1", "object": "charge"}`), types.WebhookEventStatusIgnored},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture()
			out, err := f.h.HandleWebhook(context.Background(), tt.payload, sign(tt.payload))
			require.NoError(t, err)
			assert.Equal(t, tt.wantStatus, out.Status)
			assert.Empty(t, f.records.upserts)
			assert.Empty(t, f.records.deletes)
			assert.Empty(t, f.roles.reconciled)
			assert.Empty(t, f.roles.cleaned)
		})
	}
}

func TestResync(t *testing.T) {
	f := newFixture()
	now := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	f.h.now = func() time.Time { return now }
	f.stripe.sub = &stripe.Subscription{
		ID:       "sub_9",
		Customer: &stripe.Customer{ID: "cus_9"},
		Status:   stripe.SubscriptionStatusActive,
		Metadata: map[string]string{"user_id": "u9"},
		Items: &stripe.SubscriptionItemList{Data: []*stripe.SubscriptionItem{
			{ID: "si_9", Price: &stripe.Price{ID: "price_mp_m"}, CurrentPeriodStart: 1700000000, CurrentPeriodEnd: 1702592000},
		}},
	}

	out, err := f.h.Resync(context.Background(), "sub_9")
	require.NoError(t, err)
	assert.Equal(t, "resync_sub_9", out.EventID)
	require.Len(t, f.records.upserts, 1)
	assert.Equal(t, now, f.records.upserts[0].EventAt)
	assert.Equal(t, "sub_9", f.records.upserts[0].Snapshot.ID)
	require.Len(t, f.roles.reconciled, 1)
	assert.Equal(t, types.RoleManagerPro, f.roles.reconciled[0].Role)

	f.stripe.err = stripeclient.ErrNotConfigured
	_, err = f.h.Resync(context.Background(), "sub_9")
	assert.ErrorIs(t, err, stripeclient.ErrNotConfigured)
}
