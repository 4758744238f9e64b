package webhook

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/controlplane/internal/clock"
	"github.com/smallbiznis/controlplane/internal/observability/metrics"
	"github.com/smallbiznis/controlplane/internal/payment/domain"
	"github.com/smallbiznis/controlplane/internal/payment/repository"
	subscriptiondomain "github.com/smallbiznis/controlplane/internal/subscription/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB            *gorm.DB
	Log           *zap.Logger
	GenID         *snowflake.Node
	Clock         clock.Clock
	Verifier      *Verifier
	Subscriptions subscriptiondomain.Service
	Metrics       *metrics.Metrics `optional:"true"`
}

type Service struct {
	db       *gorm.DB
	log      *zap.Logger
	genID    *snowflake.Node
	clock    clock.Clock
	verifier *Verifier
	subs     subscriptiondomain.Service
	metrics  *metrics.Metrics
	repo     domain.Repository
	handlers map[string]handlerFunc
}

// handlerFunc applies one event inside tx and reports the outcome to record.
type handlerFunc func(ctx context.Context, tx *gorm.DB, event *providerEvent) (string, error)

func NewService(p Params) domain.Reconciler {
	s := &Service{
		db:       p.DB,
		log:      p.Log.Named("payment.webhook"),
		genID:    p.GenID,
		clock:    p.Clock,
		verifier: p.Verifier,
		subs:     p.Subscriptions,
		metrics:  p.Metrics,
		repo:     repository.Provide(),
	}
	s.handlers = map[string]handlerFunc{
		domain.EventCheckoutSessionCompleted:    s.handleCheckoutCompleted,
		domain.EventPaymentIntentSucceeded:      s.handlePaymentSucceeded,
		domain.EventPaymentIntentFailed:         s.handlePaymentFailed,
		domain.EventInvoicePaymentSucceeded:     s.handleInvoicePaid,
		domain.EventInvoicePaymentFailed:        s.handleInvoiceFailed,
		domain.EventCustomerSubscriptionUpdated: s.handleSubscriptionUpdated,
		domain.EventCustomerSubscriptionDeleted: s.handleSubscriptionDeleted,
		domain.EventPaymentMethodAttached:       s.handlePaymentMethodAttached,
		domain.EventPaymentMethodDetached:       s.handlePaymentMethodDetached,
	}
	return s
}

func (s *Service) HandleWebhook(ctx context.Context, payload []byte, signature string) (*domain.Result, error) {
	if err := s.verifier.Verify(payload, signature); err != nil {
		s.log.Warn("webhook signature rejected", zap.Bool("signed", strings.TrimSpace(signature) != ""))
		s.metrics.RecordWebhookEvent(ctx, "unknown", "rejected")
		return nil, err
	}
	event, err := parseEvent(payload)
	if err != nil {
		s.metrics.RecordWebhookEvent(ctx, "unknown", "invalid")
		return nil, err
	}
	log := s.log.With(zap.String("event_id", event.ID), zap.String("event_type", event.Type))
	result := &domain.Result{EventID: event.ID, Type: event.Type}

	claimed, err := s.claim(ctx, event, payload)
	if err != nil {
		return nil, err
	}
	if !claimed {
		log.Info("duplicate webhook delivery")
		result.Outcome = domain.OutcomeDuplicate
		s.metrics.RecordWebhookEvent(ctx, event.Type, result.Outcome)
		return result, nil
	}

	outcome, handleErr := s.dispatch(ctx, event)
	errMsg := ""
	if handleErr != nil {
		outcome = domain.OutcomeFailed
		errMsg = handleErr.Error()
	}
	if err := s.repo.FinishEvent(ctx, s.db, event.ID, outcome, errMsg, s.clock.Now()); err != nil {
		log.Error("failed to record webhook outcome", zap.String("outcome", outcome), zap.Error(err))
		if handleErr == nil {
			return nil, err
		}
	}
	s.metrics.RecordWebhookEvent(ctx, event.Type, outcome)
	result.Outcome = outcome

	if handleErr != nil {
		log.Error("webhook handler failed", zap.Error(handleErr))
		return result, errors.Join(domain.ErrHandlerFailed, handleErr)
	}
	log.Info("webhook processed", zap.String("outcome", outcome))
	return result, nil
}

// claimLease bounds how long a delivery may stay in processing before a
// retry takes it over.
const claimLease = 5 * time.Minute

// claim logs the delivery. A previously failed delivery, or one whose worker
// died past claimLease, is claimed again so the provider's retry can
// complete it.
func (s *Service) claim(ctx context.Context, event *providerEvent, payload []byte) (bool, error) {
	now := s.clock.Now()
	inserted, err := s.repo.InsertEvent(ctx, s.db, &domain.WebhookEvent{
		ID:              s.genID.Generate(),
		ProviderEventID: event.ID,
		Type:            event.Type,
		Payload:         datatypes.JSON(payload),
		ReceivedAt:      now,
		Outcome:         domain.OutcomeProcessing,
	})
	if err != nil || inserted {
		return inserted, err
	}
	return s.repo.ReclaimEvent(ctx, s.db, event.ID, now, now.Add(-claimLease))
}

func (s *Service) dispatch(ctx context.Context, event *providerEvent) (string, error) {
	handler, ok := s.handlers[event.Type]
	if !ok {
		return domain.OutcomeIgnored, nil
	}
	var outcome string
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		outcome, err = handler(ctx, tx, event)
		return err
	})
	return outcome, err
}

func (s *Service) handleCheckoutCompleted(ctx context.Context, tx *gorm.DB, event *providerEvent) (string, error) {
	var session checkoutSessionObject
	if err := decodeObject(event, &session); err != nil {
		return "", err
	}
	tenantID, err := s.attribute(ctx, tx, session.Metadata, session.Customer)
	if err != nil {
		return "", err
	}
	if tenantID == 0 {
		return s.unattributed(event, session.Customer), nil
	}
	planID, err := snowflake.ParseString(strings.TrimSpace(session.Metadata["plan_id"]))
	if err != nil || planID == 0 {
		return "", domain.ErrInvalidEvent
	}

	sub, err := s.subs.ApplyCheckout(ctx, tx, subscriptiondomain.CheckoutCompletion{
		TenantID:               tenantID,
		PlanID:                 planID,
		BillingCycle:           session.Metadata["billing_cycle"],
		ProviderSubscriptionID: session.Subscription,
		ProviderCustomerID:     session.Customer,
	})
	if err != nil {
		return "", err
	}
	s.log.Info("subscription activated from checkout",
		zap.String("tenant_id", tenantID.String()),
		zap.String("plan_id", planID.String()),
		zap.Time("period_end", sub.PeriodEnd),
	)
	return domain.OutcomeProcessed, nil
}

func (s *Service) handlePaymentSucceeded(ctx context.Context, tx *gorm.DB, event *providerEvent) (string, error) {
	var intent paymentIntentObject
	if err := decodeObject(event, &intent); err != nil {
		return "", err
	}
	tenantID, err := s.attribute(ctx, tx, intent.Metadata, intent.Customer)
	if err != nil {
		return "", err
	}
	if tenantID == 0 {
		return s.unattributed(event, intent.Customer), nil
	}
	now := s.clock.Now()
	amount := intent.AmountReceived
	if amount <= 0 {
		amount = intent.Amount
	}
	payment, err := s.newPayment(ctx, tx, tenantID, intent)
	if err != nil {
		return "", err
	}
	payment.Amount = amount
	payment.Status = domain.PaymentStatusSucceeded
	payment.PaidAt = &now
	err = s.repo.UpsertPayment(ctx, tx, payment, []string{"amount", "currency", "status", "paid_at", "updated_at"})
	if err != nil {
		return "", err
	}
	return domain.OutcomeProcessed, nil
}

func (s *Service) handlePaymentFailed(ctx context.Context, tx *gorm.DB, event *providerEvent) (string, error) {
	var intent paymentIntentObject
	if err := decodeObject(event, &intent); err != nil {
		return "", err
	}
	tenantID, err := s.attribute(ctx, tx, intent.Metadata, intent.Customer)
	if err != nil {
		return "", err
	}
	if tenantID == 0 {
		return s.unattributed(event, intent.Customer), nil
	}
	now := s.clock.Now()
	payment, err := s.newPayment(ctx, tx, tenantID, intent)
	if err != nil {
		return "", err
	}
	payment.Status = domain.PaymentStatusFailed
	payment.FailedAt = &now
	if intent.LastPaymentError != nil {
		payment.FailureReason = intent.LastPaymentError.Message
	}
	err = s.repo.UpsertPayment(ctx, tx, payment, []string{"status", "failed_at", "failure_reason", "updated_at"})
	if err != nil {
		return "", err
	}
	return domain.OutcomeProcessed, nil
}

func (s *Service) newPayment(ctx context.Context, tx *gorm.DB, tenantID snowflake.ID, intent paymentIntentObject) (*domain.Payment, error) {
	if strings.TrimSpace(intent.ID) == "" {
		return nil, domain.ErrInvalidEvent
	}
	subscriptionID, err := s.repo.SubscriptionIDForTenant(ctx, tx, tenantID)
	if err != nil {
		return nil, err
	}
	now := s.clock.Now()
	intentID := intent.ID
	return &domain.Payment{
		ID:                      s.genID.Generate(),
		TenantID:                tenantID,
		SubscriptionID:          subscriptionID,
		ProviderPaymentIntentID: &intentID,
		Amount:                  intent.Amount,
		Currency:                strings.ToUpper(strings.TrimSpace(intent.Currency)),
		CreatedAt:               now,
		UpdatedAt:               now,
	}, nil
}

func (s *Service) handleInvoicePaid(ctx context.Context, tx *gorm.DB, event *providerEvent) (string, error) {
	var invoice invoiceObject
	if err := decodeObject(event, &invoice); err != nil {
		return "", err
	}
	tenantID, err := s.attributeInvoice(ctx, tx, invoice)
	if err != nil {
		return "", err
	}
	if tenantID == 0 {
		return s.unattributed(event, invoice.Customer), nil
	}
	now := s.clock.Now()
	row, err := s.newInvoice(tenantID, invoice)
	if err != nil {
		return "", err
	}
	row.IsPaid = true
	row.PaidAt = &now
	err = s.repo.UpsertInvoice(ctx, tx, row, []string{"amount_due", "amount_paid", "currency", "is_paid", "paid_at", "hosted_url", "updated_at"})
	if err != nil {
		return "", err
	}
	return domain.OutcomeProcessed, nil
}

func (s *Service) handleInvoiceFailed(ctx context.Context, tx *gorm.DB, event *providerEvent) (string, error) {
	var invoice invoiceObject
	if err := decodeObject(event, &invoice); err != nil {
		return "", err
	}
	tenantID, err := s.attributeInvoice(ctx, tx, invoice)
	if err != nil {
		return "", err
	}
	if tenantID == 0 {
		return s.unattributed(event, invoice.Customer), nil
	}
	row, err := s.newInvoice(tenantID, invoice)
	if err != nil {
		return "", err
	}
	row.IsPaid = false
	err = s.repo.UpsertInvoice(ctx, tx, row, []string{"amount_due", "amount_paid", "currency", "is_paid", "hosted_url", "updated_at"})
	if err != nil {
		return "", err
	}
	sub, err := s.subs.MarkPastDueByProviderID(ctx, tx, invoice.Subscription)
	if err != nil {
		return "", err
	}
	if sub == nil {
		s.log.Warn("invoice failure without a known subscription",
			zap.String("tenant_id", tenantID.String()),
			zap.String("provider_subscription_id", invoice.Subscription),
		)
	}
	return domain.OutcomeProcessed, nil
}

func (s *Service) newInvoice(tenantID snowflake.ID, invoice invoiceObject) (*domain.Invoice, error) {
	if strings.TrimSpace(invoice.ID) == "" {
		return nil, domain.ErrInvalidEvent
	}
	now := s.clock.Now()
	invoiceID := invoice.ID
	return &domain.Invoice{
		ID:                s.genID.Generate(),
		TenantID:          tenantID,
		ProviderInvoiceID: &invoiceID,
		AmountDue:         invoice.AmountDue,
		AmountPaid:        invoice.AmountPaid,
		Currency:          strings.ToUpper(strings.TrimSpace(invoice.Currency)),
		HostedURL:         invoice.HostedInvoiceURL,
		CreatedAt:         now,
		UpdatedAt:         now,
	}, nil
}

func (s *Service) handleSubscriptionUpdated(ctx context.Context, tx *gorm.DB, event *providerEvent) (string, error) {
	var obj subscriptionObject
	if err := decodeObject(event, &obj); err != nil {
		return "", err
	}
	status, ok := mapProviderStatus(obj.Status)
	if !ok {
		s.log.Warn("unknown provider subscription status", zap.String("status", obj.Status))
		return domain.OutcomeIgnored, nil
	}
	sub, err := s.subs.SyncFromProvider(ctx, tx, subscriptiondomain.ProviderSync{
		ProviderSubscriptionID: obj.ID,
		Status:                 status,
		PeriodStart:            unixTime(obj.CurrentPeriodStart),
		PeriodEnd:              unixTime(obj.CurrentPeriodEnd),
		CancelAtPeriodEnd:      obj.CancelAtPeriodEnd,
	})
	if err != nil {
		return "", err
	}
	if sub == nil {
		return s.unattributed(event, obj.Customer), nil
	}
	return domain.OutcomeProcessed, nil
}

func (s *Service) handleSubscriptionDeleted(ctx context.Context, tx *gorm.DB, event *providerEvent) (string, error) {
	var obj subscriptionObject
	if err := decodeObject(event, &obj); err != nil {
		return "", err
	}
	sub, err := s.subs.CancelByProviderID(ctx, tx, obj.ID)
	if err != nil {
		return "", err
	}
	if sub == nil {
		return s.unattributed(event, obj.Customer), nil
	}
	return domain.OutcomeProcessed, nil
}

func (s *Service) handlePaymentMethodAttached(ctx context.Context, tx *gorm.DB, event *providerEvent) (string, error) {
	var obj paymentMethodObject
	if err := decodeObject(event, &obj); err != nil {
		return "", err
	}
	if strings.TrimSpace(obj.ID) == "" {
		return "", domain.ErrInvalidEvent
	}
	tenantID, err := s.attribute(ctx, tx, obj.Metadata, obj.Customer)
	if err != nil {
		return "", err
	}
	if tenantID == 0 {
		return s.unattributed(event, obj.Customer), nil
	}
	now := s.clock.Now()
	methodID := obj.ID
	method := &domain.PaymentMethod{
		ID:                      s.genID.Generate(),
		TenantID:                tenantID,
		ProviderPaymentMethodID: &methodID,
		ProviderCustomerID:      obj.Customer,
		Active:                  true,
		CreatedAt:               now,
		UpdatedAt:               now,
	}
	if obj.Card != nil {
		method.Brand = obj.Card.Brand
		method.Last4 = obj.Card.Last4
	}
	if err := s.repo.UpsertPaymentMethod(ctx, tx, method); err != nil {
		return "", err
	}
	return domain.OutcomeProcessed, nil
}

func (s *Service) handlePaymentMethodDetached(ctx context.Context, tx *gorm.DB, event *providerEvent) (string, error) {
	var obj paymentMethodObject
	if err := decodeObject(event, &obj); err != nil {
		return "", err
	}
	if strings.TrimSpace(obj.ID) == "" {
		return "", domain.ErrInvalidEvent
	}
	found, err := s.repo.DeactivatePaymentMethod(ctx, tx, obj.ID, s.clock.Now())
	if err != nil {
		return "", err
	}
	if !found {
		return domain.OutcomeIgnored, nil
	}
	return domain.OutcomeProcessed, nil
}

// attribute resolves the tenant from metadata.tenant_id, falling back to the
// provider customer id. Zero means the event is not ours.
func (s *Service) attribute(ctx context.Context, tx *gorm.DB, metadata map[string]string, customerID string) (snowflake.ID, error) {
	if raw := strings.TrimSpace(metadata["tenant_id"]); raw != "" {
		tenantID, err := snowflake.ParseString(raw)
		if err == nil && tenantID != 0 {
			exists, err := s.repo.TenantExists(ctx, tx, tenantID)
			if err != nil {
				return 0, err
			}
			if exists {
				return tenantID, nil
			}
		}
	}
	return s.repo.TenantByCustomer(ctx, tx, strings.TrimSpace(customerID))
}

func (s *Service) attributeInvoice(ctx context.Context, tx *gorm.DB, invoice invoiceObject) (snowflake.ID, error) {
	tenantID, err := s.repo.TenantByProviderSubscription(ctx, tx, strings.TrimSpace(invoice.Subscription))
	if err != nil || tenantID != 0 {
		return tenantID, err
	}
	return s.attribute(ctx, tx, invoice.Metadata, invoice.Customer)
}

func (s *Service) unattributed(event *providerEvent, customerID string) string {
	s.log.Info("webhook event not attributable to a tenant",
		zap.String("event_id", event.ID),
		zap.String("event_type", event.Type),
		zap.String("customer_id", customerID),
	)
	return domain.OutcomeUnattributed
}
