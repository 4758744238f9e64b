package tracing

import (
	"errors"
	"testing"

	"go.opentelemetry.io/otel/attribute"
)

func TestSafeAttributesDropsCredentials(t *testing.T) {
	attrs := SafeAttributes(
		attribute.String("http.route", "/api/public/signup/"),
		attribute.String("admin_password", "secret"),
		attribute.String("http.authorization", "Bearer x"),
	)
	if len(attrs) != 1 || attrs[0].Key != "http.route" {
		t.Fatalf("expected only http.route, got %v", attrs)
	}
}

func TestSafeErrorRedactsSensitiveMessages(t *testing.T) {
	if got := SafeError(errors.New("invalid token abc")); got.Error() != "redacted error" {
		t.Fatalf("expected redaction, got %q", got)
	}
	if got := SafeError(errors.New("connection refused")); got.Error() != "connection refused" {
		t.Fatalf("expected message kept, got %q", got)
	}
	if SafeError(nil) != nil {
		t.Fatalf("expected nil")
	}
}
