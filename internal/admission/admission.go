package admission

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	catalogdomain "github.com/smallbiznis/controlplane/internal/catalog/domain"
	"github.com/smallbiznis/controlplane/internal/config"
	obsctx "github.com/smallbiznis/controlplane/internal/observability/context"
	"github.com/smallbiznis/controlplane/internal/observability/metrics"
	quotadomain "github.com/smallbiznis/controlplane/internal/quota/domain"
	subscriptiondomain "github.com/smallbiznis/controlplane/internal/subscription/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

const tenantContextKey = "admission.tenant"

const (
	decisionAllowed         = "allowed"
	decisionPaymentRequired = "payment_required"
	decisionQuotaExceeded   = "quota_exceeded"
	decisionNotFound        = "not_found"
)

type Params struct {
	fx.In

	Log           *zap.Logger
	Catalog       catalogdomain.Service
	Subscriptions subscriptiondomain.Service
	Ledger        quotadomain.Ledger
	Config        *config.AdmissionConfigHolder `optional:"true"`
	Metrics       *metrics.Metrics              `optional:"true"`
}

type Admission struct {
	log     *zap.Logger
	catalog catalogdomain.Service
	subs    subscriptiondomain.Service
	ledger  quotadomain.Ledger
	cfg     *config.AdmissionConfigHolder
	metrics *metrics.Metrics
}

func New(p Params) *Admission {
	return &Admission{
		log:     p.Log.Named("admission"),
		catalog: p.Catalog,
		subs:    p.Subscriptions,
		ledger:  p.Ledger,
		cfg:     p.Config,
		metrics: p.Metrics,
	}
}

// PaymentRequiredBody is the 402 response.
type PaymentRequiredBody struct {
	Reason string `json:"reason"`
	Status string `json:"status"`
}

// QuotaExceededBody is the 403 response.
type QuotaExceededBody struct {
	QuotaType string `json:"quota_type"`
	Current   int64  `json:"current"`
	Limit     int64  `json:"limit"`
}

// Middleware runs the whole admission pipeline in one handler: Resolve
// followed by Gate.
func (a *Admission) Middleware(table *Table) gin.HandlerFunc {
	return func(c *gin.Context) {
		if !a.resolve(c, table) {
			return
		}
		a.gate(c, table)
	}
}

// Resolve binds the tenant named by Host to the request. Unknown hosts are
// 404 unless the route is public.
func (a *Admission) Resolve(table *Table) gin.HandlerFunc {
	return func(c *gin.Context) {
		if a.resolve(c, table) {
			c.Next()
		}
	}
}

// Gate requires an active subscription for mutating tenant routes and
// reserves one unit of the route's quota kind, released when the handler
// fails. It must run after the caller is authenticated so rejections never
// reach anonymous callers.
func (a *Admission) Gate(table *Table) gin.HandlerFunc {
	return func(c *gin.Context) {
		a.gate(c, table)
	}
}

func (a *Admission) resolve(c *gin.Context, table *Table) bool {
	ctx := c.Request.Context()
	public := a.isPublic(c, table)

	tenant, err := a.catalog.ResolveByHost(ctx, catalogdomain.HostWithoutPort(c.Request.Host))
	if err != nil && !errors.Is(err, catalogdomain.ErrTenantNotFound) {
		_ = c.Error(err)
		c.Abort()
		return false
	}
	if tenant == nil {
		if public {
			return true
		}
		a.metrics.RecordAdmission(ctx, decisionNotFound)
		_ = c.Error(catalogdomain.ErrTenantNotFound)
		c.Abort()
		return false
	}

	c.Set(tenantContextKey, tenant)
	c.Request = c.Request.WithContext(obsctx.WithTenantID(ctx, tenant.ID.String()))
	return true
}

func (a *Admission) gate(c *gin.Context, table *Table) {
	ctx := c.Request.Context()
	route, _ := table.Lookup(c.Request.Method, c.FullPath())
	if a.isPublic(c, table) || !isMutating(c.Request.Method) {
		c.Next()
		return
	}

	tenant, ok := TenantFromContext(c)
	if !ok {
		_ = c.Error(catalogdomain.ErrTenantNotFound)
		c.Abort()
		return
	}

	if _, err := a.subs.Admit(ctx, tenant.ID); err != nil {
		var inactive *subscriptiondomain.InactiveError
		if errors.As(err, &inactive) {
			a.metrics.RecordAdmission(ctx, decisionPaymentRequired)
			WritePaymentRequired(c, inactive)
			return
		}
		_ = c.Error(err)
		c.Abort()
		return
	}

	if route.QuotaKind == "" {
		a.metrics.RecordAdmission(ctx, decisionAllowed)
		c.Next()
		return
	}

	if err := a.ledger.Reserve(ctx, tenant.ID, route.QuotaKind, 1); err != nil {
		var exceeded *quotadomain.ExceededError
		if errors.As(err, &exceeded) {
			a.metrics.RecordAdmission(ctx, decisionQuotaExceeded)
			WriteQuotaExceeded(c, exceeded)
			return
		}
		_ = c.Error(err)
		c.Abort()
		return
	}
	a.metrics.RecordAdmission(ctx, decisionAllowed)

	c.Next()

	if handlerFailed(c) {
		a.ledger.Release(context.WithoutCancel(ctx), tenant.ID, route.QuotaKind, 1)
		a.log.Debug("reservation released after failed handler",
			zap.String("tenant_id", tenant.ID.String()),
			zap.String("quota_kind", string(route.QuotaKind)),
			zap.String("path", c.FullPath()),
		)
	}
}

func (a *Admission) isPublic(c *gin.Context, table *Table) bool {
	route, declared := table.Lookup(c.Request.Method, c.FullPath())
	return (declared && route.Public) || a.isConfiguredPublic(c.FullPath())
}

// TenantFromContext returns the tenant resolved by Middleware.
func TenantFromContext(c *gin.Context) (*catalogdomain.Tenant, bool) {
	value, ok := c.Get(tenantContextKey)
	if !ok {
		return nil, false
	}
	tenant, ok := value.(*catalogdomain.Tenant)
	return tenant, ok && tenant != nil
}

func WritePaymentRequired(c *gin.Context, err *subscriptiondomain.InactiveError) {
	status := string(err.Status)
	if status == "" {
		status = "none"
	}
	c.AbortWithStatusJSON(http.StatusPaymentRequired, PaymentRequiredBody{
		Reason: err.Reason,
		Status: status,
	})
}

func WriteQuotaExceeded(c *gin.Context, err *quotadomain.ExceededError) {
	c.AbortWithStatusJSON(http.StatusForbidden, QuotaExceededBody{
		QuotaType: string(err.Kind),
		Current:   err.Current,
		Limit:     err.Limit,
	})
}

// handlerFailed reports a non-2xx outcome. Errors recorded with c.Error are
// rendered later by the error middleware, so they count as failures too.
func handlerFailed(c *gin.Context) bool {
	return len(c.Errors) > 0 || c.Writer.Status() >= http.StatusBadRequest
}

func (a *Admission) isConfiguredPublic(path string) bool {
	if a.cfg == nil || path == "" {
		return false
	}
	for _, public := range a.cfg.Get().PublicPaths {
		public = strings.TrimSpace(public)
		if public == "" {
			continue
		}
		if path == public || (strings.HasSuffix(public, "*") && strings.HasPrefix(path, strings.TrimSuffix(public, "*"))) {
			return true
		}
	}
	return false
}
