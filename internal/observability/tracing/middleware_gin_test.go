package tracing

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	obscontext "github.com/smallbiznis/controlplane/internal/observability/context"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func TestGinMiddlewareTagsTenantSpans(t *testing.T) {
	gin.SetMode(gin.TestMode)
	recorder := tracetest.NewSpanRecorder()
	provider := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	previous := otel.GetTracerProvider()
	otel.SetTracerProvider(provider)
	defer otel.SetTracerProvider(previous)

	r := gin.New()
	r.Use(GinMiddleware("/health"))
	r.GET("/health", func(c *gin.Context) { c.Status(http.StatusOK) })
	r.POST("/api/companies/", func(c *gin.Context) {
		ctx := obscontext.WithTenantID(c.Request.Context(), "42")
		c.Request = c.Request.WithContext(obscontext.WithActor(ctx, "user", "7"))
		c.Status(http.StatusPaymentRequired)
	})

	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/health", nil))
	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodPost, "/api/companies/", nil))

	spans := recorder.Ended()
	if len(spans) != 1 {
		t.Fatalf("expected one span, got %d", len(spans))
	}
	span := spans[0]
	if span.Name() != "POST /api/companies/" {
		t.Fatalf("unexpected span name %q", span.Name())
	}
	attrs := map[attribute.Key]attribute.Value{}
	for _, kv := range span.Attributes() {
		attrs[kv.Key] = kv.Value
	}
	if attrs["controlplane.tenant_id"].AsString() != "42" {
		t.Fatalf("missing tenant attribute: %v", attrs)
	}
	if attrs["controlplane.actor_type"].AsString() != "user" {
		t.Fatalf("missing actor attribute: %v", attrs)
	}
	if attrs["controlplane.admission"].AsString() != "subscription_inactive" {
		t.Fatalf("missing admission attribute: %v", attrs)
	}
	if attrs["http.status_code"].AsInt64() != http.StatusPaymentRequired {
		t.Fatalf("unexpected status attribute: %v", attrs)
	}
}
