package metrics

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetrichttp"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// Config configures the metrics provider.
type Config struct {
	Enabled          bool
	ExporterEndpoint string
	ExporterProtocol string
	ServiceName      string
	Environment      string
}

// Metrics exposes control plane instruments. A nil *Metrics is a valid no-op.
type Metrics struct {
	admissions     metric.Int64Counter
	reservations   metric.Int64Counter
	webhookEvents  metric.Int64Counter
	provisionings  metric.Int64Counter
	provisionTime  metric.Float64Histogram
	billingCalls   metric.Int64Counter
	signupOutcomes metric.Int64Counter
}

// NewProvider configures and registers the meter provider.
func NewProvider(lc fx.Lifecycle, cfg Config, log *zap.Logger) (metric.MeterProvider, error) {
	if !cfg.Enabled {
		provider := noop.NewMeterProvider()
		otel.SetMeterProvider(provider)
		return provider, nil
	}

	exporter, err := newExporter(cfg.ExporterProtocol, cfg.ExporterEndpoint)
	if err != nil {
		return nil, err
	}

	reader := sdkmetric.NewPeriodicReader(exporter, sdkmetric.WithInterval(10*time.Second))
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	otel.SetMeterProvider(provider)

	if lc != nil {
		lc.Append(fx.Hook{
			OnStop: func(ctx context.Context) error {
				log.Info("shutting down meter provider")
				return provider.Shutdown(ctx)
			},
		})
	}

	log.Info("metrics initialized",
		zap.String("endpoint", cfg.ExporterEndpoint),
		zap.String("protocol", cfg.ExporterProtocol),
	)

	return provider, nil
}

// New configures the domain metrics instruments.
func New(cfg Config, provider metric.MeterProvider) (*Metrics, error) {
	name := strings.TrimSpace(cfg.ServiceName)
	if name == "" {
		name = "controlplane"
	}
	meter := provider.Meter(name)

	m := &Metrics{}
	var err error
	if m.admissions, err = meter.Int64Counter("controlplane_admission_decisions_total"); err != nil {
		return nil, err
	}
	if m.reservations, err = meter.Int64Counter("controlplane_quota_reservations_total"); err != nil {
		return nil, err
	}
	if m.webhookEvents, err = meter.Int64Counter("controlplane_webhook_events_total"); err != nil {
		return nil, err
	}
	if m.provisionings, err = meter.Int64Counter("controlplane_provisionings_total"); err != nil {
		return nil, err
	}
	if m.provisionTime, err = meter.Float64Histogram("controlplane_provisioning_seconds", metric.WithUnit("s")); err != nil {
		return nil, err
	}
	if m.billingCalls, err = meter.Int64Counter("controlplane_billing_calls_total"); err != nil {
		return nil, err
	}
	if m.signupOutcomes, err = meter.Int64Counter("controlplane_signups_total"); err != nil {
		return nil, err
	}
	return m, nil
}

// RecordAdmission counts one admission decision (allowed, payment_required, quota_exceeded, not_found).
func (m *Metrics) RecordAdmission(ctx context.Context, decision string) {
	if m == nil {
		return
	}
	attrs := FilterAttributes(attribute.String("decision", strings.TrimSpace(decision)))
	m.admissions.Add(ctx, 1, metric.WithAttributes(attrs...))
}

// RecordReservation counts a quota reservation attempt.
func (m *Metrics) RecordReservation(ctx context.Context, kind string, granted bool) {
	if m == nil {
		return
	}
	attrs := FilterAttributes(
		attribute.String("quota_kind", strings.TrimSpace(kind)),
		attribute.String("outcome", outcome(granted, "granted", "denied")),
	)
	m.reservations.Add(ctx, 1, metric.WithAttributes(attrs...))
}

// RecordWebhookEvent counts a webhook delivery by type and outcome.
func (m *Metrics) RecordWebhookEvent(ctx context.Context, eventType, result string) {
	if m == nil {
		return
	}
	attrs := FilterAttributes(
		attribute.String("event_type", strings.TrimSpace(eventType)),
		attribute.String("outcome", strings.TrimSpace(result)),
	)
	m.webhookEvents.Add(ctx, 1, metric.WithAttributes(attrs...))
}

// RecordProvisioning counts a namespace provisioning and observes its duration.
func (m *Metrics) RecordProvisioning(ctx context.Context, strategy string, elapsed time.Duration, err error) {
	if m == nil {
		return
	}
	attrs := FilterAttributes(
		attribute.String("strategy", strings.TrimSpace(strategy)),
		attribute.String("outcome", outcome(err == nil, "ok", "error")),
	)
	m.provisionings.Add(ctx, 1, metric.WithAttributes(attrs...))
	m.provisionTime.Record(ctx, elapsed.Seconds(), metric.WithAttributes(attrs...))
}

// RecordBillingCall counts an outbound billing provider call.
func (m *Metrics) RecordBillingCall(ctx context.Context, provider, operation string, err error) {
	if m == nil {
		return
	}
	attrs := FilterAttributes(
		attribute.String("provider", strings.TrimSpace(provider)),
		attribute.String("operation", strings.TrimSpace(operation)),
		attribute.String("outcome", outcome(err == nil, "ok", "error")),
	)
	m.billingCalls.Add(ctx, 1, metric.WithAttributes(attrs...))
}

// RecordSignup counts a signup attempt by outcome.
func (m *Metrics) RecordSignup(ctx context.Context, result string) {
	if m == nil {
		return
	}
	attrs := FilterAttributes(attribute.String("outcome", strings.TrimSpace(result)))
	m.signupOutcomes.Add(ctx, 1, metric.WithAttributes(attrs...))
}

func outcome(ok bool, yes, no string) string {
	if ok {
		return yes
	}
	return no
}

func newExporter(protocol, endpoint string) (sdkmetric.Exporter, error) {
	protocol = strings.ToLower(strings.TrimSpace(protocol))
	switch protocol {
	case "http", "http/protobuf":
		opts := []otlpmetrichttp.Option{}
		if endpoint != "" {
			opts = append(opts, otlpmetrichttp.WithEndpoint(endpoint))
		}
		return otlpmetrichttp.New(context.Background(), opts...)
	case "grpc", "grpc/protobuf", "":
		opts := []otlpmetricgrpc.Option{otlpmetricgrpc.WithInsecure()}
		if endpoint != "" {
			opts = append(opts, otlpmetricgrpc.WithEndpoint(endpoint))
		}
		return otlpmetricgrpc.New(context.Background(), opts...)
	default:
		return nil, fmt.Errorf("unsupported OTLP protocol %q", protocol)
	}
}

// tenant ids are deliberately absent: one series per tenant does not scale
var allowedLabelKeys = map[attribute.Key]struct{}{
	"decision":    {},
	"quota_kind":  {},
	"outcome":     {},
	"event_type":  {},
	"strategy":    {},
	"provider":    {},
	"operation":   {},
	"status_code": {},
	"route":       {},
	"method":      {},
}

// FilterAttributes strips disallowed labels to keep metrics low-cardinality.
func FilterAttributes(attrs ...attribute.KeyValue) []attribute.KeyValue {
	filtered := make([]attribute.KeyValue, 0, len(attrs))
	for _, attr := range attrs {
		if _, ok := allowedLabelKeys[attr.Key]; !ok {
			continue
		}
		filtered = append(filtered, attr)
	}
	return filtered
}
