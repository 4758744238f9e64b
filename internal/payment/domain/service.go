package domain

import (
	"context"
	"errors"
)

var (
	ErrInvalidSignature = errors.New("invalid_signature")
	ErrInvalidPayload   = errors.New("invalid_payload")
	ErrInvalidEvent     = errors.New("invalid_event")
	ErrHandlerFailed    = errors.New("webhook_handler_failed")
)

const (
	EventCheckoutSessionCompleted    = "checkout.session.completed"
	EventPaymentIntentSucceeded      = "payment_intent.succeeded"
	EventPaymentIntentFailed         = "payment_intent.payment_failed"
	EventInvoicePaymentSucceeded     = "invoice.payment_succeeded"
	EventInvoicePaymentFailed        = "invoice.payment_failed"
	EventCustomerSubscriptionUpdated = "customer.subscription.updated"
	EventCustomerSubscriptionDeleted = "customer.subscription.deleted"
	EventPaymentMethodAttached       = "payment_method.attached"
	EventPaymentMethodDetached       = "payment_method.detached"
)

// Result describes what happened to one delivery.
type Result struct {
	EventID string `json:"event_id"`
	Type    string `json:"type"`
	Outcome string `json:"outcome"`
}

// Reconciler applies provider webhook deliveries to local state.
type Reconciler interface {
	// HandleWebhook returns ErrInvalidSignature or ErrInvalidPayload for
	// deliveries that must be rejected, and ErrHandlerFailed when the
	// provider should retry. Duplicates succeed without side effects.
	HandleWebhook(ctx context.Context, payload []byte, signature string) (*Result, error)
}
