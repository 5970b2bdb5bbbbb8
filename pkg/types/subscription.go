package types

// SubscriptionStatus mirrors the Stripe subscription status values.
type SubscriptionStatus string

const (
	SubscriptionStatusActive            SubscriptionStatus = "active"
	SubscriptionStatusTrialing          SubscriptionStatus = "trialing"
	SubscriptionStatusCanceled          SubscriptionStatus = "canceled"
	SubscriptionStatusPastDue           SubscriptionStatus = "past_due"
	SubscriptionStatusIncomplete        SubscriptionStatus = "incomplete"
	SubscriptionStatusIncompleteExpired SubscriptionStatus = "incomplete_expired"
	SubscriptionStatusUnpaid            SubscriptionStatus = "unpaid"
	SubscriptionStatusPaused            SubscriptionStatus = "paused"
)

// Entitled reports whether the status grants the plan's role.
func (s SubscriptionStatus) Entitled() bool {
	return s == SubscriptionStatusActive || s == SubscriptionStatusTrialing
}

// Terminal reports whether the status drops the user back to the base role.
func (s SubscriptionStatus) Terminal() bool {
	switch s {
	case SubscriptionStatusCanceled, SubscriptionStatusPastDue, SubscriptionStatusIncompleteExpired, SubscriptionStatusUnpaid:
		return true
	}
	return false
}

type EventType string

const (
	EventSubscriptionCreated   EventType = "customer.subscription.created"
	EventSubscriptionUpdated   EventType = "customer.subscription.updated"
	EventSubscriptionDeleted   EventType = "customer.subscription.deleted"
	EventInvoicePaymentSucceed EventType = "invoice.payment_succeeded"
	EventInvoicePaymentFailed  EventType = "invoice.payment_failed"
)

type WebhookEventStatus string

const (
	WebhookEventStatusReceived     WebhookEventStatus = "received"
	WebhookEventStatusHandled      WebhookEventStatus = "handled"
	WebhookEventStatusHandleFailed WebhookEventStatus = "handle_failed"
	WebhookEventStatusIgnored      WebhookEventStatus = "ignored"
)
