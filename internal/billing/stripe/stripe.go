// Package stripe implements the billing provider against the Stripe API.
package stripe

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/smallbiznis/controlplane/internal/billing/domain"
	stripego "github.com/stripe/stripe-go/v81"
	"github.com/stripe/stripe-go/v81/client"
	"go.uber.org/zap"
)

const providerName = "stripe"

var ErrMissingAPIKey = errors.New("stripe_api_key_missing")

type Adapter struct {
	api *client.API
	log *zap.Logger
}

func New(secretKey string, timeout time.Duration, log *zap.Logger) (*Adapter, error) {
	secretKey = strings.TrimSpace(secretKey)
	if secretKey == "" {
		return nil, ErrMissingAPIKey
	}
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	backends := stripego.NewBackendsWithConfig(&stripego.BackendConfig{
		HTTPClient:    &http.Client{Timeout: timeout},
		LeveledLogger: log.Named("stripe").Sugar(),
	})
	return &Adapter{
		api: client.New(secretKey, backends),
		log: log.Named("billing.stripe"),
	}, nil
}

func (a *Adapter) Name() string { return providerName }

func (a *Adapter) EnsureCustomer(ctx context.Context, req domain.CustomerRequest) (string, error) {
	search := &stripego.CustomerSearchParams{}
	search.Context = ctx
	search.Query = fmt.Sprintf("metadata['%s']:'%s'", domain.MetadataTenantID, req.TenantID)
	iter := a.api.Customers.Search(search)
	for iter.Next() {
		if c := iter.Customer(); c != nil && !c.Deleted {
			return c.ID, nil
		}
	}
	if err := iter.Err(); err != nil {
		return "", unavailable(err)
	}

	params := &stripego.CustomerParams{
		Name: stripego.String(req.Name),
	}
	if req.Email != "" {
		params.Email = stripego.String(req.Email)
	}
	params.Context = ctx
	params.AddMetadata(domain.MetadataTenantID, req.TenantID)
	customer, err := a.api.Customers.New(params)
	if err != nil {
		return "", unavailable(err)
	}
	a.log.Info("stripe customer created",
		zap.String("tenant_id", req.TenantID),
		zap.String("customer_id", customer.ID),
	)
	return customer.ID, nil
}

func (a *Adapter) CreateCheckoutSession(ctx context.Context, req domain.CheckoutSessionRequest) (*domain.CheckoutSession, error) {
	params := &stripego.CheckoutSessionParams{
		Mode:       stripego.String(string(stripego.CheckoutSessionModeSubscription)),
		Customer:   stripego.String(req.CustomerID),
		SuccessURL: stripego.String(req.SuccessURL),
		CancelURL:  stripego.String(req.CancelURL),
		LineItems: []*stripego.CheckoutSessionLineItemParams{
			{Price: stripego.String(req.PriceID), Quantity: stripego.Int64(1)},
		},
		SubscriptionData: &stripego.CheckoutSessionSubscriptionDataParams{
			Metadata: req.Metadata,
		},
	}
	params.Context = ctx
	for key, value := range req.Metadata {
		params.AddMetadata(key, value)
	}

	session, err := a.api.CheckoutSessions.New(params)
	if err != nil {
		return nil, unavailable(err)
	}
	return toSession(session), nil
}

func (a *Adapter) GetCheckoutSession(ctx context.Context, sessionID string) (*domain.CheckoutSession, error) {
	params := &stripego.CheckoutSessionParams{}
	params.Context = ctx
	session, err := a.api.CheckoutSessions.Get(sessionID, params)
	if err != nil {
		var stripeErr *stripego.Error
		if errors.As(err, &stripeErr) && stripeErr.HTTPStatusCode == http.StatusNotFound {
			return nil, domain.ErrCheckoutNotFound
		}
		return nil, unavailable(err)
	}
	return toSession(session), nil
}

func toSession(session *stripego.CheckoutSession) *domain.CheckoutSession {
	out := &domain.CheckoutSession{
		ID:            session.ID,
		URL:           session.URL,
		PaymentStatus: string(session.PaymentStatus),
		Metadata:      session.Metadata,
	}
	if session.Subscription != nil {
		out.SubscriptionID = session.Subscription.ID
	}
	if session.Customer != nil {
		out.CustomerID = session.Customer.ID
	}
	if out.Metadata == nil {
		out.Metadata = map[string]string{}
	}
	return out
}

func unavailable(err error) error {
	return fmt.Errorf("%w: %v", domain.ErrBillingUnavailable, err)
}
