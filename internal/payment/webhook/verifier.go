package webhook

import (
	"strings"
	"time"

	"github.com/smallbiznis/controlplane/internal/config"
	"github.com/smallbiznis/controlplane/internal/payment/domain"
	stripewebhook "github.com/stripe/stripe-go/v81/webhook"
)

const signatureTolerance = 5 * time.Minute

// Verifier checks the provider signature header on webhook deliveries.
type Verifier struct {
	secret string
	mode   string
}

func NewVerifier(cfg config.Config) *Verifier {
	return &Verifier{
		secret: strings.TrimSpace(cfg.Billing.WebhookSecret),
		mode:   cfg.Billing.Mode,
	}
}

// Verify accepts unsigned deliveries only when no secret is configured
// outside live mode. A signature that cannot be checked is rejected.
func (v *Verifier) Verify(payload []byte, signature string) error {
	signature = strings.TrimSpace(signature)
	if v.secret == "" {
		if v.mode == config.BillingModeLive || signature != "" {
			return domain.ErrInvalidSignature
		}
		return nil
	}
	if signature == "" {
		return domain.ErrInvalidSignature
	}
	if err := stripewebhook.ValidatePayloadWithTolerance(payload, signature, v.secret, signatureTolerance); err != nil {
		return domain.ErrInvalidSignature
	}
	return nil
}
