package stripeclient

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/stripe/stripe-go/v82"

	"github.com/fatflowers/agentbilling/pkg/types"
)

// SubscriptionSnapshot is the part of a Stripe subscription object this service acts on.
type SubscriptionSnapshot struct {
	ID                 string
	CustomerID         string
	Metadata           map[string]string
	PriceID            string
	Status             types.SubscriptionStatus
	CurrentPeriodStart time.Time
	CurrentPeriodEnd   time.Time
	TrialEnd           *time.Time
}

// legacyPeriod picks up the top-level period fields older API versions still send.
type legacyPeriod struct {
	CurrentPeriodStart int64 `json:"current_period_start"`
	CurrentPeriodEnd   int64 `json:"current_period_end"`
}

// ParseSubscription decodes event.data.object of a customer.subscription.* event.
func ParseSubscription(raw json.RawMessage) (*SubscriptionSnapshot, error) {
	var sub stripe.Subscription
	if err := json.Unmarshal(raw, &sub); err != nil {
		return nil, fmt.Errorf("decode subscription: %w", err)
	}
	snap := Snapshot(&sub)
	if snap.CurrentPeriodStart.IsZero() || snap.CurrentPeriodEnd.IsZero() {
		var lp legacyPeriod
		if err := json.Unmarshal(raw, &lp); err == nil {
			if snap.CurrentPeriodStart.IsZero() && lp.CurrentPeriodStart > 0 {
				snap.CurrentPeriodStart = FromUnix(lp.CurrentPeriodStart)
			}
			if snap.CurrentPeriodEnd.IsZero() && lp.CurrentPeriodEnd > 0 {
				snap.CurrentPeriodEnd = FromUnix(lp.CurrentPeriodEnd)
			}
		}
	}
	return snap, nil
}

// Snapshot extracts the fields of sub. Price and period come from the first item.
func Snapshot(sub *stripe.Subscription) *SubscriptionSnapshot {
	snap := &SubscriptionSnapshot{
		ID:       sub.ID,
		Metadata: sub.Metadata,
		Status:   types.SubscriptionStatus(sub.Status),
	}
	if sub.Customer != nil {
		snap.CustomerID = sub.Customer.ID
	}
	if sub.TrialEnd > 0 {
		t := FromUnix(sub.TrialEnd)
		snap.TrialEnd = &t
	}
	if sub.Items != nil && len(sub.Items.Data) > 0 {
		item := sub.Items.Data[0]
		if item.Price != nil {
			snap.PriceID = item.Price.ID
		}
		if item.CurrentPeriodStart > 0 {
			snap.CurrentPeriodStart = FromUnix(item.CurrentPeriodStart)
		}
		if item.CurrentPeriodEnd > 0 {
			snap.CurrentPeriodEnd = FromUnix(item.CurrentPeriodEnd)
		}
	}
	return snap
}

// InvoiceSummary is logged for invoice.payment_* events.
type InvoiceSummary struct {
	ID         string
	CustomerID string
	AmountPaid int64
	AmountDue  int64
	Currency   string
}

func ParseInvoice(raw json.RawMessage) (*InvoiceSummary, error) {
	var inv stripe.Invoice
	if err := json.Unmarshal(raw, &inv); err != nil {
		return nil, fmt.Errorf("decode invoice: %w", err)
	}
	s := &InvoiceSummary{
		ID:         inv.ID,
		AmountPaid: inv.AmountPaid,
		AmountDue:  inv.AmountDue,
		Currency:   string(inv.Currency),
	}
	if inv.Customer != nil {
		s.CustomerID = inv.Customer.ID
	}
	return s, nil
}

// FromUnix converts Stripe epoch seconds to UTC.
func FromUnix(sec int64) time.Time {
	return time.Unix(sec, 0).UTC()
}
