package server

import (
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	authdomain "github.com/smallbiznis/controlplane/internal/auth/domain"
	"github.com/smallbiznis/controlplane/internal/auth/password"
	"github.com/smallbiznis/controlplane/internal/authorization"
	billingdomain "github.com/smallbiznis/controlplane/internal/billing/domain"
	catalogdomain "github.com/smallbiznis/controlplane/internal/catalog/domain"
	paymentdomain "github.com/smallbiznis/controlplane/internal/payment/domain"
	quotadomain "github.com/smallbiznis/controlplane/internal/quota/domain"
	registrydomain "github.com/smallbiznis/controlplane/internal/registry/domain"
	signupdomain "github.com/smallbiznis/controlplane/internal/signup/domain"
	subscriptiondomain "github.com/smallbiznis/controlplane/internal/subscription/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMapError(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status int
		typ    string
	}{
		{"domain taken", signupdomain.ErrDomainTaken, http.StatusBadRequest, "validation_error"},
		{"duplicate user", authdomain.ErrUserExists, http.StatusBadRequest, "validation_error"},
		{"invalid plan", catalogdomain.ErrInvalidPlan, http.StatusBadRequest, "validation_error"},
		{"plan repricing", catalogdomain.ErrPlanPriceImmutable, http.StatusBadRequest, "validation_error"},
		{"missing price", billingdomain.ErrPriceNotConfigured, http.StatusBadRequest, "validation_error"},
		{"bad signature", paymentdomain.ErrInvalidSignature, http.StatusBadRequest, "validation_error"},
		{"wrapped validation", fmt.Errorf("signup: %w", signupdomain.ErrInvalidRequest), http.StatusBadRequest, "validation_error"},
		{"bad credentials", authdomain.ErrInvalidCredentials, http.StatusUnauthorized, "unauthorized"},
		{"expired token", authdomain.ErrTokenExpired, http.StatusUnauthorized, "unauthorized"},
		{"inactive", subscriptiondomain.ErrSubscriptionInactive, http.StatusPaymentRequired, "payment_required"},
		{"policy denied", authorization.ErrForbidden, http.StatusForbidden, "forbidden"},
		{"foreign checkout", billingdomain.ErrCheckoutForbidden, http.StatusForbidden, "forbidden"},
		{"unknown tenant", catalogdomain.ErrTenantNotFound, http.StatusNotFound, "not_found"},
		{"unknown company", registrydomain.ErrCompanyNotFound, http.StatusNotFound, "not_found"},
		{"primary company", registrydomain.ErrPrimaryCompany, http.StatusConflict, "conflict"},
		{"owner delete", authdomain.ErrCannotDeleteOwner, http.StatusConflict, "conflict"},
		{"namespace dropped", registrydomain.ErrNamespaceNotReady, http.StatusConflict, "conflict"},
		{"oversized body", ErrPayloadTooLarge, http.StatusRequestEntityTooLarge, "payload_too_large"},
		{"rate limited", ErrRateLimited, http.StatusTooManyRequests, "rate_limited"},
		{"provider down", errors.Join(billingdomain.ErrBillingUnavailable, errors.New("dial tcp: timeout")), http.StatusBadGateway, "billing_unavailable"},
		{"provisioning", signupdomain.ErrProvisioningFailed, http.StatusInternalServerError, "provisioning_failed"},
		{"webhook handler", paymentdomain.ErrHandlerFailed, http.StatusInternalServerError, "internal_error"},
		{"unexpected", errors.New("boom"), http.StatusInternalServerError, "internal_error"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status, payload := mapError(tt.err)
			assert.Equal(t, tt.status, status)
			assert.Equal(t, tt.typ, payload.Type)
		})
	}
}

func TestValidationErrorFields(t *testing.T) {
	_, payload := mapError(signupdomain.ErrDomainTaken)
	require.Len(t, payload.Errors, 1)
	assert.Equal(t, "domain", payload.Errors[0].Field)
	assert.Equal(t, "domain_taken", payload.Errors[0].Code)

	_, payload = mapError(fmt.Errorf("create owner: %w", password.ErrTooShort))
	require.Len(t, payload.Errors, 1)
	assert.Equal(t, "password", payload.Errors[0].Field)

	_, payload = mapError(newValidationError("days", "invalid_days", "days must be positive"))
	require.Len(t, payload.Errors, 1)
	assert.Equal(t, "days", payload.Errors[0].Field)
}

func TestErrorHandlingMiddlewareFlatBodies(t *testing.T) {
	gin.SetMode(gin.TestMode)

	engine := gin.New()
	engine.Use(ErrorHandlingMiddleware())
	engine.GET("/inactive", func(c *gin.Context) {
		AbortWithError(c, fmt.Errorf("admit: %w", &subscriptiondomain.InactiveError{
			Status: subscriptiondomain.StatusExpired,
			Reason: "subscription period ended",
		}))
	})
	engine.GET("/exceeded", func(c *gin.Context) {
		AbortWithError(c, &quotadomain.ExceededError{Kind: quotadomain.KindBranches, Current: 2, Limit: 2})
	})
	engine.GET("/missing", func(c *gin.Context) {
		AbortWithError(c, catalogdomain.ErrTenantNotFound)
	})

	w := httptest.NewRecorder()
	engine.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/inactive", nil))
	assert.Equal(t, http.StatusPaymentRequired, w.Code)
	assert.JSONEq(t, `{"reason":"subscription period ended","status":"expired"}`, w.Body.String())

	w = httptest.NewRecorder()
	engine.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/exceeded", nil))
	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.JSONEq(t, `{"quota_type":"branches","current":2,"limit":2}`, w.Body.String())

	w = httptest.NewRecorder()
	engine.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/missing", nil))
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.JSONEq(t, `{"error":{"type":"not_found","message":"not found"}}`, w.Body.String())
}

func TestClassifyErrorForLog(t *testing.T) {
	typ, code := classifyErrorForLog(&quotadomain.ExceededError{Kind: quotadomain.KindUsers, Current: 3, Limit: 3})
	assert.Equal(t, "quota_exceeded", typ)
	assert.Equal(t, "users", code)

	typ, code = classifyErrorForLog(registrydomain.ErrInvalidSize)
	assert.Equal(t, "validation_error", typ)
	assert.Equal(t, "invalid_size", code)
}
