package webhook

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/smallbiznis/controlplane/internal/payment/domain"
	subscriptiondomain "github.com/smallbiznis/controlplane/internal/subscription/domain"
)

type providerEvent struct {
	ID      string            `json:"id"`
	Type    string            `json:"type"`
	Created int64             `json:"created"`
	Data    providerEventData `json:"data"`
}

type providerEventData struct {
	Object json.RawMessage `json:"object"`
}

type checkoutSessionObject struct {
	ID            string            `json:"id"`
	Customer      string            `json:"customer"`
	Subscription  string            `json:"subscription"`
	PaymentStatus string            `json:"payment_status"`
	Metadata      map[string]string `json:"metadata"`
}

type paymentIntentObject struct {
	ID               string            `json:"id"`
	Amount           int64             `json:"amount"`
	AmountReceived   int64             `json:"amount_received"`
	Currency         string            `json:"currency"`
	Customer         string            `json:"customer"`
	Metadata         map[string]string `json:"metadata"`
	LastPaymentError *struct {
		Message string `json:"message"`
	} `json:"last_payment_error"`
}

type invoiceObject struct {
	ID               string            `json:"id"`
	Customer         string            `json:"customer"`
	Subscription     string            `json:"subscription"`
	AmountDue        int64             `json:"amount_due"`
	AmountPaid       int64             `json:"amount_paid"`
	Currency         string            `json:"currency"`
	HostedInvoiceURL string            `json:"hosted_invoice_url"`
	Metadata         map[string]string `json:"metadata"`
}

type subscriptionObject struct {
	ID                 string            `json:"id"`
	Customer           string            `json:"customer"`
	Status             string            `json:"status"`
	CurrentPeriodStart int64             `json:"current_period_start"`
	CurrentPeriodEnd   int64             `json:"current_period_end"`
	CancelAtPeriodEnd  bool              `json:"cancel_at_period_end"`
	Metadata           map[string]string `json:"metadata"`
}

type paymentMethodObject struct {
	ID       string            `json:"id"`
	Customer string            `json:"customer"`
	Metadata map[string]string `json:"metadata"`
	Card     *struct {
		Brand string `json:"brand"`
		Last4 string `json:"last4"`
	} `json:"card"`
}

func parseEvent(payload []byte) (*providerEvent, error) {
	var event providerEvent
	if err := json.Unmarshal(payload, &event); err != nil {
		return nil, domain.ErrInvalidPayload
	}
	event.ID = strings.TrimSpace(event.ID)
	event.Type = strings.TrimSpace(event.Type)
	if event.ID == "" || event.Type == "" {
		return nil, domain.ErrInvalidEvent
	}
	return &event, nil
}

func decodeObject(event *providerEvent, dst any) error {
	if len(event.Data.Object) == 0 {
		return domain.ErrInvalidPayload
	}
	if err := json.Unmarshal(event.Data.Object, dst); err != nil {
		return domain.ErrInvalidPayload
	}
	return nil
}

// mapProviderStatus translates provider subscription statuses.
func mapProviderStatus(raw string) (subscriptiondomain.Status, bool) {
	switch strings.TrimSpace(raw) {
	case "active":
		return subscriptiondomain.StatusActive, true
	case "trialing":
		return subscriptiondomain.StatusTrial, true
	case "past_due", "unpaid":
		return subscriptiondomain.StatusPastDue, true
	case "canceled":
		return subscriptiondomain.StatusCanceled, true
	case "incomplete", "paused":
		return subscriptiondomain.StatusPending, true
	case "incomplete_expired":
		return subscriptiondomain.StatusExpired, true
	}
	return "", false
}

func unixTime(value int64) *time.Time {
	if value <= 0 {
		return nil
	}
	t := time.Unix(value, 0).UTC()
	return &t
}
