package observability

import (
	"testing"

	"github.com/smallbiznis/controlplane/internal/config"
)

func TestLoadConfigPrefersControlPlaneKeys(t *testing.T) {
	t.Setenv("LOG_LEVEL", "warn")
	t.Setenv("CONTROLPLANE_LOG_LEVEL", "debug")
	t.Setenv("OTEL_SAMPLING_RATIO", "7")
	t.Setenv("CONTROLPLANE_UNTRACED_ROUTES", "/health, /readyz,")

	cfg := LoadConfig(config.Config{Environment: "production", OTLPEndpoint: "collector:4317"})

	if cfg.ServiceName != "controlplane" {
		t.Fatalf("unexpected service name %q", cfg.ServiceName)
	}
	if cfg.LogLevel != "debug" || !cfg.Debug() {
		t.Fatalf("expected prefixed log level, got %q", cfg.LogLevel)
	}
	if cfg.LogFormat != "json" {
		t.Fatalf("expected json outside development, got %q", cfg.LogFormat)
	}
	if cfg.OtelSamplingRatio != 1 {
		t.Fatalf("expected ratio clamped to 1, got %v", cfg.OtelSamplingRatio)
	}
	if !cfg.OtelEnabled {
		t.Fatalf("expected tracing enabled with an endpoint")
	}
	if len(cfg.UntracedRoutes) != 2 || cfg.UntracedRoutes[1] != "/readyz" {
		t.Fatalf("unexpected untraced routes %v", cfg.UntracedRoutes)
	}
}

func TestLoadConfigDevelopmentDefaults(t *testing.T) {
	cfg := LoadConfig(config.Config{AppName: "cp-edge", Environment: "test"})

	if cfg.ServiceName != "cp-edge" {
		t.Fatalf("unexpected service name %q", cfg.ServiceName)
	}
	if cfg.LogFormat != "console" || cfg.OtelSamplingRatio != 1 {
		t.Fatalf("unexpected development defaults %+v", cfg)
	}
	if cfg.OtelEnabled {
		t.Fatalf("expected tracing disabled in test without an endpoint")
	}
	if len(cfg.UntracedRoutes) != 2 || cfg.UntracedRoutes[0] != "/health" {
		t.Fatalf("unexpected untraced routes %v", cfg.UntracedRoutes)
	}
}
