package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/smallbiznis/controlplane/internal/admission"
	auditdomain "github.com/smallbiznis/controlplane/internal/audit/domain"
	authdomain "github.com/smallbiznis/controlplane/internal/auth/domain"
	"github.com/smallbiznis/controlplane/internal/authorization"
	billingdomain "github.com/smallbiznis/controlplane/internal/billing/domain"
	catalogdomain "github.com/smallbiznis/controlplane/internal/catalog/domain"
	"github.com/smallbiznis/controlplane/internal/config"
	"github.com/smallbiznis/controlplane/internal/observability"
	obsmiddleware "github.com/smallbiznis/controlplane/internal/observability/logger"
	obsmetrics "github.com/smallbiznis/controlplane/internal/observability/metrics"
	obstracing "github.com/smallbiznis/controlplane/internal/observability/tracing"
	paymentdomain "github.com/smallbiznis/controlplane/internal/payment/domain"
	quotadomain "github.com/smallbiznis/controlplane/internal/quota/domain"
	"github.com/smallbiznis/controlplane/internal/ratelimit"
	registrydomain "github.com/smallbiznis/controlplane/internal/registry/domain"
	signupdomain "github.com/smallbiznis/controlplane/internal/signup/domain"
	subscriptiondomain "github.com/smallbiznis/controlplane/internal/subscription/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("http.server",
	fx.Provide(registerGin),
	fx.Invoke(NewServer),
	fx.Invoke(run),
)

// Route patterns shared by the router and the admission table.
const (
	routePublicPlans       = "/api/public/plans/"
	routePublicCheckDomain = "/api/public/check-domain/"
	routePublicSignup      = "/api/public/signup/"
	routeLogin             = "/api/auth/login/"
	routeUsers             = "/api/users/"
	routeUser              = "/api/users/:id"
	routeCompanies         = "/api/companies/"
	routeCompany           = "/api/companies/:id"
	routeBranches          = "/api/branches/"
	routeBranch            = "/api/branches/:id"
	routeDocuments         = "/api/documents/"
	routeDocument          = "/api/documents/:id"
	routeUsage             = "/api/usage/"
	routeSubscription      = "/api/subscription/"
	routeSubscriptionStop  = "/api/subscription/cancel/"
	routeCheckout          = "/api/payments/checkout/"
	routeCheckoutSession   = "/api/payments/checkout/:session_id/"
	routeStripeWebhook     = "/api/stripe/webhook/"
	routeAdminDeactivate   = "/api/admin/tenants/:id/deactivate"
	routeAdminTenant       = "/api/admin/tenants/:id"
	routeAdminRenew        = "/api/admin/tenants/:id/renew"
	routeAdminRecount      = "/api/admin/tenants/:id/recount"
	routeAdminAudit        = "/api/admin/tenants/:id/audit"
)

// routeTable declares which routes skip tenant admission and which quota a
// mutating route consumes. Checkout stays reachable for lapsed tenants so
// they can pay; the handler still requires a tenant and a bearer token.
func routeTable() *admission.Table {
	return admission.NewTable(
		admission.Route{Method: http.MethodGet, Path: routePublicPlans, Public: true},
		admission.Route{Method: http.MethodPost, Path: routePublicCheckDomain, Public: true},
		admission.Route{Method: http.MethodPost, Path: routePublicSignup, Public: true},
		admission.Route{Method: http.MethodPost, Path: routeLogin, Public: true},
		admission.Route{Method: http.MethodPost, Path: routeCheckout, Public: true},
		admission.Route{Method: http.MethodPost, Path: routeStripeWebhook, Public: true},
		admission.Route{Method: http.MethodPost, Path: routeAdminDeactivate, Public: true},
		admission.Route{Method: http.MethodDelete, Path: routeAdminTenant, Public: true},
		admission.Route{Method: http.MethodPost, Path: routeAdminRenew, Public: true},
		admission.Route{Method: http.MethodPost, Path: routeAdminRecount, Public: true},
		admission.Route{Method: http.MethodGet, Path: routeAdminAudit, Public: true},

		admission.Route{Method: http.MethodPost, Path: routeUsers, QuotaKind: quotadomain.KindUsers},
		admission.Route{Method: http.MethodPost, Path: routeCompanies, QuotaKind: quotadomain.KindCompanies},
		admission.Route{Method: http.MethodPost, Path: routeBranches, QuotaKind: quotadomain.KindBranches},
		admission.Route{Method: http.MethodPost, Path: routeDocuments},
		admission.Route{Method: http.MethodPost, Path: routeSubscriptionStop},
	)
}

func NewEngine(obsCfg observability.Config, httpMetrics *obsmetrics.HTTPMetrics, gate *admission.Admission) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(obsmiddleware.GinMiddleware(obsmiddleware.MiddlewareConfig{
		Debug:           obsCfg.Debug(),
		ErrorClassifier: classifyErrorForLog,
	}))
	r.Use(obstracing.GinMiddleware(obsCfg.UntracedRoutes...))
	r.Use(obsmetrics.GinMiddleware(httpMetrics))
	r.Use(ErrorHandlingMiddleware())
	r.Use(gate.Resolve(routeTable()))

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	return r
}

func registerGin(obsCfg observability.Config, httpMetrics *obsmetrics.HTTPMetrics, gate *admission.Admission) *gin.Engine {
	return NewEngine(obsCfg, httpMetrics, gate)
}

func run(lc fx.Lifecycle, cfg config.Config, r *gin.Engine, log *zap.Logger) {
	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}
	log = log.Named("http.server")

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			go func() {
				if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					log.Fatal("http server stopped", zap.Error(err))
				}
			}()
			log.Info("http server listening", zap.String("addr", cfg.HTTPAddr))
			return nil
		},
		OnStop: func(ctx context.Context) error {
			shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		},
	})
}

type Server struct {
	engine        *gin.Engine
	cfg           config.Config
	log           *zap.Logger
	catalog       catalogdomain.Service
	authsvc       authdomain.Service
	authzSvc      authorization.Service
	registry      registrydomain.Service
	ledger        quotadomain.Ledger
	subscriptions subscriptiondomain.Service
	billing       billingdomain.Service
	signupsvc     signupdomain.Service
	webhooks      paymentdomain.Reconciler
	audit         auditdomain.Service
	gate          *admission.Admission
	limiter       *ratelimit.PublicLimiter
}

type ServerParams struct {
	fx.In

	Gin           *gin.Engine
	Cfg           config.Config
	Log           *zap.Logger
	Catalog       catalogdomain.Service
	Authsvc       authdomain.Service
	AuthzSvc      authorization.Service
	Registry      registrydomain.Service
	Ledger        quotadomain.Ledger
	Subscriptions subscriptiondomain.Service
	Billing       billingdomain.Service
	Signup        signupdomain.Service
	Webhooks      paymentdomain.Reconciler
	Audit         auditdomain.Service
	Gate          *admission.Admission
	Limiter       *ratelimit.PublicLimiter `optional:"true"`
}

func NewServer(p ServerParams) *Server {
	svc := &Server{
		engine:        p.Gin,
		cfg:           p.Cfg,
		log:           p.Log.Named("http.server"),
		catalog:       p.Catalog,
		authsvc:       p.Authsvc,
		authzSvc:      p.AuthzSvc,
		registry:      p.Registry,
		ledger:        p.Ledger,
		subscriptions: p.Subscriptions,
		billing:       p.Billing,
		signupsvc:     p.Signup,
		webhooks:      p.Webhooks,
		audit:         p.Audit,
		gate:          p.Gate,
		limiter:       p.Limiter,
	}

	svc.registerPublicRoutes()
	svc.registerTenantRoutes()
	svc.registerAdminRoutes()

	return svc
}

func (s *Server) Engine() *gin.Engine {
	return s.engine
}

func (s *Server) registerPublicRoutes() {
	r := s.engine

	r.GET(routePublicPlans, s.ListPlans)
	r.POST(routePublicCheckDomain, s.PublicRateLimit("check-domain"), s.CheckDomain)
	r.POST(routePublicSignup, s.PublicRateLimit("signup"), s.Signup)
	r.POST(routeLogin, s.PublicRateLimit("login"), s.Login)

	r.POST(routeStripeWebhook, s.HandleStripeWebhook)
}

func (s *Server) registerTenantRoutes() {
	// Subscription and quota admission run only once the bearer token is valid.
	api := s.engine.Group("/api", s.AuthRequired(), s.gate.Gate(routeTable()))

	// -------- Users --------
	api.POST("/users/", s.authorizeTenantAction(authorization.ObjectUser, authorization.ActionUserCreate), s.CreateUser)
	api.DELETE("/users/:id", s.authorizeTenantAction(authorization.ObjectUser, authorization.ActionUserDelete), s.DeleteUser)

	// -------- Registry --------
	api.POST("/companies/", s.authorizeTenantAction(authorization.ObjectCompany, authorization.ActionCompanyCreate), s.CreateCompany)
	api.DELETE("/companies/:id", s.authorizeTenantAction(authorization.ObjectCompany, authorization.ActionCompanyDelete), s.DeleteCompany)
	api.POST("/branches/", s.authorizeTenantAction(authorization.ObjectBranch, authorization.ActionBranchCreate), s.CreateBranch)
	api.DELETE("/branches/:id", s.authorizeTenantAction(authorization.ObjectBranch, authorization.ActionBranchDelete), s.DeleteBranch)
	api.POST("/documents/", s.authorizeTenantAction(authorization.ObjectDocument, authorization.ActionDocumentCreate), s.CreateDocument)
	api.DELETE("/documents/:id", s.authorizeTenantAction(authorization.ObjectDocument, authorization.ActionDocumentDelete), s.DeleteDocument)

	api.GET("/usage/", s.authorizeTenantAction(authorization.ObjectUsage, authorization.ActionUsageView), s.GetUsage)

	// -------- Subscription --------
	api.GET("/subscription/", s.authorizeTenantAction(authorization.ObjectSubscription, authorization.ActionSubscriptionView), s.GetSubscription)
	api.POST("/subscription/cancel/", s.authorizeTenantAction(authorization.ObjectSubscription, authorization.ActionSubscriptionCancel), s.CancelSubscription)

	// -------- Payments --------
	api.POST("/payments/checkout/", s.authorizeTenantAction(authorization.ObjectBilling, authorization.ActionBillingCheckout), s.CreateCheckout)
	api.GET("/payments/checkout/:session_id/", s.authorizeTenantAction(authorization.ObjectBilling, authorization.ActionBillingCheckout), s.GetCheckout)
}

func (s *Server) registerAdminRoutes() {
	admin := s.engine.Group("/api/admin/tenants", s.OperatorRequired())

	admin.POST("/:id/deactivate", s.authorizeOperatorAction(authorization.ActionTenantDeactivate), s.DeactivateTenant)
	admin.DELETE("/:id", s.authorizeOperatorAction(authorization.ActionTenantDelete), s.DeleteTenant)
	admin.POST("/:id/renew", s.authorizeOperatorAction(authorization.ActionTenantRenew), s.RenewTenant)
	admin.POST("/:id/recount", s.authorizeOperatorAction(authorization.ActionTenantRecount), s.RecountTenant)
	admin.GET("/:id/audit", s.authorizeOperatorAction(authorization.ActionTenantAuditView), s.ListTenantAudit)
}
