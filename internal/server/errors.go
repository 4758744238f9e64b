package server

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/smallbiznis/controlplane/internal/admission"
	auditdomain "github.com/smallbiznis/controlplane/internal/audit/domain"
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
	"gorm.io/gorm"
)

type ValidationError struct {
	Field   string `json:"field"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

type ValidationErrors struct {
	Errors []ValidationError `json:"errors"`
}

func (v ValidationErrors) Error() string {
	return "validation error"
}

type errorPayload struct {
	Type    string            `json:"type"`
	Message string            `json:"message"`
	Errors  []ValidationError `json:"errors,omitempty"`
}

type errorResponse struct {
	Error errorPayload `json:"error"`
}

var (
	ErrUnauthorized       = errors.New("unauthorized")
	ErrForbidden          = errors.New("forbidden")
	ErrConflict           = errors.New("conflict")
	ErrInternal           = errors.New("internal_error")
	ErrNotFound           = errors.New("not_found")
	ErrInvalidRequest     = errors.New("invalid_request")
	ErrRateLimited        = errors.New("rate_limited")
	ErrServiceUnavailable = errors.New("service_unavailable")
	ErrPayloadTooLarge    = errors.New("payload_too_large")
)

var validationErrors = []error{
	ErrInvalidRequest,
	signupdomain.ErrInvalidRequest,
	signupdomain.ErrDomainTaken,
	catalogdomain.ErrInvalidHost,
	catalogdomain.ErrReservedHost,
	catalogdomain.ErrInvalidName,
	catalogdomain.ErrInvalidSchemaName,
	catalogdomain.ErrInvalidPlan,
	catalogdomain.ErrPlanInactive,
	catalogdomain.ErrPlanPriceImmutable,
	catalogdomain.ErrDuplicateName,
	authdomain.ErrUserExists,
	authdomain.ErrInvalidUsername,
	authdomain.ErrInvalidEmail,
	authdomain.ErrInvalidRole,
	password.ErrTooShort,
	registrydomain.ErrInvalidName,
	registrydomain.ErrInvalidSize,
	billingdomain.ErrPriceNotConfigured,
	billingdomain.ErrInvalidBillingCycle,
	billingdomain.ErrInvalidSessionID,
	subscriptiondomain.ErrInvalidBillingCycle,
	subscriptiondomain.ErrInvalidPeriod,
	quotadomain.ErrInvalidCounts,
	paymentdomain.ErrInvalidSignature,
	paymentdomain.ErrInvalidPayload,
	paymentdomain.ErrInvalidEvent,
	auditdomain.ErrInvalidPageToken,
	auditdomain.ErrInvalidTenant,
}

var notFoundErrors = []error{
	ErrNotFound,
	catalogdomain.ErrTenantNotFound,
	catalogdomain.ErrTenantInactive,
	catalogdomain.ErrPlanNotFound,
	authdomain.ErrUserNotFound,
	registrydomain.ErrCompanyNotFound,
	registrydomain.ErrBranchNotFound,
	registrydomain.ErrDocumentNotFound,
	billingdomain.ErrCheckoutNotFound,
	subscriptiondomain.ErrSubscriptionNotFound,
	quotadomain.ErrUsageNotFound,
	gorm.ErrRecordNotFound,
}

var conflictErrors = []error{
	ErrConflict,
	registrydomain.ErrCompanyExists,
	registrydomain.ErrPrimaryCompany,
	registrydomain.ErrNamespaceNotReady,
	authdomain.ErrCannotDeleteOwner,
	subscriptiondomain.ErrInvalidTransition,
	catalogdomain.ErrPlanExists,
	subscriptiondomain.ErrSubscriptionExists,
}

// validationFields names the request field behind a validation code when it
// is not derivable from the code itself.
var validationFields = map[string]string{
	"domain_taken":          "domain",
	"reserved_host":         "domain",
	"invalid_host":          "domain",
	"duplicate_name":        "domain",
	"invalid_plan":          "plan_id",
	"plan_inactive":         "plan_id",
	"user_exists":           "admin_username",
	"password_too_short":    "password",
	"invalid_display_name":  "tenant_name",
	"price_not_configured":  "billing_cycle",
	"invalid_billing_cycle": "billing_cycle",
	"invalid_signature":     "Stripe-Signature",
}

func ErrorHandlingMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if c.Writer.Written() {
			return
		}

		lastErr := c.Errors.Last()
		if lastErr == nil {
			return
		}

		// Admission rejections keep their flat bodies wherever they surface.
		var inactive *subscriptiondomain.InactiveError
		if errors.As(lastErr.Err, &inactive) {
			admission.WritePaymentRequired(c, inactive)
			return
		}
		var exceeded *quotadomain.ExceededError
		if errors.As(lastErr.Err, &exceeded) {
			admission.WriteQuotaExceeded(c, exceeded)
			return
		}

		status, payload := mapError(lastErr.Err)
		c.Header("Content-Type", "application/json")
		c.AbortWithStatusJSON(status, errorResponse{Error: payload})
	}
}

func AbortWithError(c *gin.Context, err error) {
	if err == nil {
		return
	}
	_ = c.Error(err)
	c.Abort()
}

func invalidRequestError() error {
	return newValidationError("request", "invalid_request", "invalid request")
}

func newValidationError(field, code, message string) error {
	return &ValidationErrors{
		Errors: []ValidationError{
			{
				Field:   field,
				Code:    code,
				Message: message,
			},
		},
	}
}

func mapError(err error) (int, errorPayload) {
	if err == nil {
		return http.StatusInternalServerError, errorPayload{
			Type:    "internal_error",
			Message: "internal server error",
		}
	}

	if vErr := asValidationErrors(err); vErr != nil {
		return http.StatusBadRequest, errorPayload{
			Type:    "validation_error",
			Message: "validation error",
			Errors:  vErr.Errors,
		}
	}

	if code, ok := matchAny(err, validationErrors); ok {
		return http.StatusBadRequest, errorPayload{
			Type:    "validation_error",
			Message: "validation error",
			Errors: []ValidationError{
				{
					Field:   validationErrorField(code),
					Code:    code,
					Message: validationErrorMessage(code),
				},
			},
		}
	}

	switch {
	case errors.Is(err, ErrUnauthorized),
		errors.Is(err, authdomain.ErrInvalidCredentials),
		errors.Is(err, authdomain.ErrTokenInvalid),
		errors.Is(err, authdomain.ErrTokenExpired):
		return http.StatusUnauthorized, errorPayload{
			Type:    "unauthorized",
			Message: "unauthorized",
		}
	case errors.Is(err, subscriptiondomain.ErrSubscriptionInactive):
		return http.StatusPaymentRequired, errorPayload{
			Type:    "payment_required",
			Message: "subscription inactive",
		}
	case errors.Is(err, ErrForbidden),
		errors.Is(err, authorization.ErrForbidden),
		errors.Is(err, billingdomain.ErrCheckoutForbidden):
		return http.StatusForbidden, errorPayload{
			Type:    "forbidden",
			Message: "forbidden",
		}
	case isAny(err, notFoundErrors):
		return http.StatusNotFound, errorPayload{
			Type:    "not_found",
			Message: "not found",
		}
	case isAny(err, conflictErrors):
		return http.StatusConflict, errorPayload{
			Type:    "conflict",
			Message: conflictMessage(err),
		}
	case errors.Is(err, ErrPayloadTooLarge):
		return http.StatusRequestEntityTooLarge, errorPayload{
			Type:    "payload_too_large",
			Message: "request body too large",
		}
	case errors.Is(err, ErrRateLimited):
		return http.StatusTooManyRequests, errorPayload{
			Type:    "rate_limited",
			Message: "too many requests",
		}
	case errors.Is(err, billingdomain.ErrBillingUnavailable):
		return http.StatusBadGateway, errorPayload{
			Type:    "billing_unavailable",
			Message: "billing provider unavailable, retry later",
		}
	case errors.Is(err, ErrServiceUnavailable):
		return http.StatusServiceUnavailable, errorPayload{
			Type:    "service_unavailable",
			Message: "service unavailable",
		}
	case errors.Is(err, signupdomain.ErrProvisioningFailed):
		return http.StatusInternalServerError, errorPayload{
			Type:    "provisioning_failed",
			Message: "tenant provisioning failed",
		}
	default:
		return http.StatusInternalServerError, errorPayload{
			Type:    "internal_error",
			Message: "internal server error",
		}
	}
}

// classifyErrorForLog tags request log lines with the mapped error type and code.
func classifyErrorForLog(err error) (string, string) {
	var inactive *subscriptiondomain.InactiveError
	if errors.As(err, &inactive) {
		return "payment_required", string(inactive.Status)
	}
	var exceeded *quotadomain.ExceededError
	if errors.As(err, &exceeded) {
		return "quota_exceeded", string(exceeded.Kind)
	}
	_, payload := mapError(err)
	code := ""
	if len(payload.Errors) > 0 {
		code = payload.Errors[0].Code
	} else if err != nil {
		code = err.Error()
	}
	return payload.Type, code
}

func asValidationErrors(err error) *ValidationErrors {
	var vErr *ValidationErrors
	if errors.As(err, &vErr) && vErr != nil {
		return vErr
	}
	return nil
}

func matchAny(err error, targets []error) (string, bool) {
	for _, target := range targets {
		if errors.Is(err, target) {
			return target.Error(), true
		}
	}
	return "", false
}

func isAny(err error, targets []error) bool {
	_, ok := matchAny(err, targets)
	return ok
}

func conflictMessage(err error) string {
	code, ok := matchAny(err, conflictErrors)
	if !ok || code == ErrConflict.Error() {
		return "conflict"
	}
	return strings.ReplaceAll(code, "_", " ")
}

func validationErrorField(code string) string {
	if field, ok := validationFields[code]; ok {
		return field
	}
	if code == "invalid_request" {
		return "request"
	}
	if strings.HasPrefix(code, "invalid_") {
		return strings.TrimPrefix(code, "invalid_")
	}
	return ""
}

func validationErrorMessage(code string) string {
	switch code {
	case "invalid_request":
		return "invalid request"
	case "domain_taken", "duplicate_name":
		return "domain is already in use"
	case "reserved_host":
		return "domain is reserved"
	case "user_exists":
		return "username is already taken"
	case "invalid_plan":
		return "plan does not exist or is inactive"
	case "password_too_short":
		return "password must have at least 8 characters"
	case "price_not_configured":
		return "plan has no provider price for this billing cycle"
	case "invalid_signature":
		return "webhook signature verification failed"
	default:
		return "invalid value"
	}
}
