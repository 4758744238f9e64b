// Package simulated is an in-process billing provider with deterministic
// identifiers. It performs no network I/O.
package simulated

import (
	"context"
	"fmt"
	"sync"

	"github.com/smallbiznis/controlplane/internal/billing/domain"
)

const providerName = "simulated"

type Adapter struct {
	mu       sync.Mutex
	seq      int
	sessions map[string]domain.CheckoutSession
}

func New() *Adapter {
	return &Adapter{sessions: map[string]domain.CheckoutSession{}}
}

func (a *Adapter) Name() string { return providerName }

func (a *Adapter) EnsureCustomer(_ context.Context, req domain.CustomerRequest) (string, error) {
	return "cus_sim_" + req.TenantID, nil
}

func (a *Adapter) CreateCheckoutSession(_ context.Context, req domain.CheckoutSessionRequest) (*domain.CheckoutSession, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.seq++
	id := fmt.Sprintf("cs_sim_%06d", a.seq)
	metadata := make(map[string]string, len(req.Metadata))
	for k, v := range req.Metadata {
		metadata[k] = v
	}
	session := domain.CheckoutSession{
		ID:             id,
		URL:            "https://checkout.simulated.local/" + id,
		PaymentStatus:  domain.PaymentStatusPaid,
		SubscriptionID: fmt.Sprintf("sub_sim_%06d", a.seq),
		CustomerID:     req.CustomerID,
		Metadata:       metadata,
	}
	a.sessions[id] = session
	out := session
	return &out, nil
}

func (a *Adapter) GetCheckoutSession(_ context.Context, sessionID string) (*domain.CheckoutSession, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	session, ok := a.sessions[sessionID]
	if !ok {
		return nil, domain.ErrCheckoutNotFound
	}
	return &session, nil
}
