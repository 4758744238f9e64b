package logger

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	obscontext "github.com/smallbiznis/controlplane/internal/observability/context"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
	gormlogger "gorm.io/gorm/logger"
)

func TestWithContextAddsCorrelationFields(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	base := zap.New(core)

	ctx := obscontext.WithRequestID(context.Background(), "req-1")
	ctx = obscontext.WithTenantID(ctx, "42")
	ctx = obscontext.WithActor(ctx, "user", "7")

	WithContext(ctx, base).Info("hello")

	entries := logs.All()
	if len(entries) != 1 {
		t.Fatalf("expected 1 entry, got %d", len(entries))
	}
	fields := entries[0].ContextMap()
	if fields["request_id"] != "req-1" || fields["tenant_id"] != "42" || fields["actor_id"] != "7" {
		t.Fatalf("unexpected fields: %v", fields)
	}
}

func TestGinMiddlewareSetsRequestID(t *testing.T) {
	gin.SetMode(gin.TestMode)
	core, logs := observer.New(zap.InfoLevel)
	restore := zap.ReplaceGlobals(zap.New(core))
	defer restore()

	r := gin.New()
	r.Use(GinMiddleware(MiddlewareConfig{}))
	r.GET("/ping", func(c *gin.Context) { c.Status(http.StatusNoContent) })

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/ping", nil))

	if rec.Header().Get("X-Request-Id") == "" {
		t.Fatalf("expected X-Request-Id header")
	}
	if logs.FilterMessage("http_request").Len() != 1 {
		t.Fatalf("expected one http_request log line")
	}
}

func TestOperationFromSQL(t *testing.T) {
	cases := map[string]string{
		"SELECT * FROM tenants":                   "SELECT",
		"UPDATE quota_usages SET users_count = 1": "UPDATE",
		"CREATE SCHEMA IF NOT EXISTS acme":        "DDL",
		"":                                        "UNKNOWN",
	}
	for sql, want := range cases {
		if got := operationFromSQL(sql); got != want {
			t.Fatalf("operationFromSQL(%q) = %q, want %q", sql, got, want)
		}
	}
}

func TestGormLoggerLogMode(t *testing.T) {
	l := NewGormLogger(DefaultGormLoggerConfig())
	silent := l.LogMode(gormlogger.Silent).(*GormLogger)
	if silent.level != gormlogger.Silent || l.level != gormlogger.Warn {
		t.Fatalf("LogMode must copy the logger")
	}
}
