package tracing

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	obscontext "github.com/smallbiznis/controlplane/internal/observability/context"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/baggage"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "controlplane/http"

// GinMiddleware opens a server span per request. Requests whose path is in
// untraced pass through without one.
func GinMiddleware(untraced ...string) gin.HandlerFunc {
	tracer := otel.Tracer(tracerName)
	skip := make(map[string]struct{}, len(untraced))
	for _, path := range untraced {
		skip[path] = struct{}{}
	}

	return func(c *gin.Context) {
		if _, ok := skip[c.Request.URL.Path]; ok {
			c.Next()
			return
		}

		method := strings.ToUpper(c.Request.Method)
		ctx := ExtractContext(c.Request.Context(), propagation.HeaderCarrier(c.Request.Header))
		ctx, span := tracer.Start(ctx, method+" "+c.Request.URL.Path, trace.WithSpanKind(trace.SpanKindServer))
		defer span.End()

		if requestID := obscontext.RequestIDFromContext(ctx); requestID != "" {
			if member, err := baggage.NewMember("request_id", requestID); err == nil {
				if bag, err := baggage.New(member); err == nil {
					ctx = baggage.ContextWithBaggage(ctx, bag)
				}
			}
			span.SetAttributes(attribute.String("request_id", requestID))
		}

		c.Request = c.Request.WithContext(ctx)
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		status := c.Writer.Status()
		span.SetName(method + " " + route)
		span.SetAttributes(SafeAttributes(
			attribute.String("http.method", method),
			attribute.String("http.route", route),
			attribute.Int("http.status_code", status),
		)...)
		span.SetAttributes(requestAttributes(c, status)...)

		if status >= http.StatusInternalServerError {
			if lastErr := c.Errors.Last(); lastErr != nil {
				if safeErr := SafeError(lastErr.Err); safeErr != nil {
					span.RecordError(safeErr)
				}
			}
			span.SetStatus(codes.Error, http.StatusText(status))
		}
	}
}

// requestAttributes tags the span with the tenant and actor of the request
// and with the refusal reason for 402 and 429 answers.
func requestAttributes(c *gin.Context, status int) []attribute.KeyValue {
	ctx := c.Request.Context()
	var attrs []attribute.KeyValue
	if tenantID := obscontext.TenantIDFromContext(ctx); tenantID != "" {
		attrs = append(attrs, attribute.String("controlplane.tenant_id", tenantID))
	}
	if actorType, _ := obscontext.ActorFromContext(ctx); actorType != "" {
		attrs = append(attrs, attribute.String("controlplane.actor_type", actorType))
	}
	switch status {
	case http.StatusPaymentRequired:
		attrs = append(attrs, attribute.String("controlplane.admission", "subscription_inactive"))
	case http.StatusTooManyRequests:
		attrs = append(attrs, attribute.String("controlplane.admission", "rate_limited"))
	}
	return attrs
}
