package server

import (
	"crypto/subtle"
	"math"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/smallbiznis/controlplane/internal/admission"
	authdomain "github.com/smallbiznis/controlplane/internal/auth/domain"
	catalogdomain "github.com/smallbiznis/controlplane/internal/catalog/domain"
	obscontext "github.com/smallbiznis/controlplane/internal/observability/context"
	"go.uber.org/zap"
)

const (
	contextPrincipalKey = "auth.principal"
	contextOperatorKey  = "auth.operator"
	bearerPrefix        = "Bearer "
)

// AuthRequired authenticates the bearer token against the tenant admission
// resolved from Host.
func (s *Server) AuthRequired() gin.HandlerFunc {
	return func(c *gin.Context) {
		tenant, ok := admission.TenantFromContext(c)
		if !ok {
			AbortWithError(c, catalogdomain.ErrTenantNotFound)
			return
		}

		raw, ok := bearerToken(c)
		if !ok {
			AbortWithError(c, ErrUnauthorized)
			return
		}

		principal, err := s.authsvc.Authenticate(c.Request.Context(), tenant.ID, raw)
		if err != nil {
			AbortWithError(c, err)
			return
		}

		c.Set(contextPrincipalKey, principal)
		ctx := obscontext.WithActor(c.Request.Context(), "user", principal.UserID.String())
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}

// OperatorRequired gates the platform operator API. An empty configured
// token disables the API entirely.
func (s *Server) OperatorRequired() gin.HandlerFunc {
	return func(c *gin.Context) {
		expected := strings.TrimSpace(s.cfg.OperatorToken)
		if expected == "" {
			AbortWithError(c, ErrNotFound)
			return
		}

		raw, ok := bearerToken(c)
		if !ok || subtle.ConstantTimeCompare([]byte(raw), []byte(expected)) != 1 {
			AbortWithError(c, ErrUnauthorized)
			return
		}

		c.Set(contextOperatorKey, true)
		ctx := obscontext.WithActor(c.Request.Context(), "operator", "operator")
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}

// PublicRateLimit throttles an unauthenticated endpoint per client address.
// Limiter failures let the request through.
func (s *Server) PublicRateLimit(scope string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if !s.limiter.Enabled() {
			c.Next()
			return
		}

		result, err := s.limiter.Allow(c.Request.Context(), scope, c.ClientIP())
		if err != nil {
			s.log.Warn("public rate limit unavailable", zap.String("scope", scope), zap.Error(err))
			c.Next()
			return
		}

		if result.Limit > 0 {
			c.Header("X-RateLimit-Limit", strconv.Itoa(result.Limit))
			c.Header("X-RateLimit-Remaining", strconv.Itoa(result.Remaining))
		}
		if !result.Allowed {
			if result.RetryAfter > 0 {
				c.Header("Retry-After", strconv.Itoa(int(math.Ceil(result.RetryAfter.Seconds()))))
			}
			AbortWithError(c, ErrRateLimited)
			return
		}
		c.Next()
	}
}

func principalFromContext(c *gin.Context) (*authdomain.Principal, bool) {
	value, ok := c.Get(contextPrincipalKey)
	if !ok {
		return nil, false
	}
	principal, ok := value.(*authdomain.Principal)
	return principal, ok && principal != nil
}

// tenantAndPrincipal returns the request tenant with its authenticated user.
func tenantAndPrincipal(c *gin.Context) (*catalogdomain.Tenant, *authdomain.Principal, error) {
	tenant, ok := admission.TenantFromContext(c)
	if !ok {
		return nil, nil, catalogdomain.ErrTenantNotFound
	}
	principal, ok := principalFromContext(c)
	if !ok || principal.TenantID != tenant.ID {
		return nil, nil, ErrUnauthorized
	}
	return tenant, principal, nil
}

func bearerToken(c *gin.Context) (string, bool) {
	header := strings.TrimSpace(c.GetHeader("Authorization"))
	if len(header) <= len(bearerPrefix) || !strings.EqualFold(header[:len(bearerPrefix)], bearerPrefix) {
		return "", false
	}
	token := strings.TrimSpace(header[len(bearerPrefix):])
	return token, token != ""
}

func isOperator(c *gin.Context) bool {
	return c.GetBool(contextOperatorKey)
}
