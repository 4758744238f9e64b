// Package testutil wires the control plane services against an in-memory
// catalog for package tests.
package testutil

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	"github.com/redis/go-redis/v9"
	auditdomain "github.com/smallbiznis/controlplane/internal/audit/domain"
	auditrepository "github.com/smallbiznis/controlplane/internal/audit/repository"
	auditservice "github.com/smallbiznis/controlplane/internal/audit/service"
	authdomain "github.com/smallbiznis/controlplane/internal/auth/domain"
	authservice "github.com/smallbiznis/controlplane/internal/auth/service"
	"github.com/smallbiznis/controlplane/internal/authorization"
	billingdomain "github.com/smallbiznis/controlplane/internal/billing/domain"
	billingservice "github.com/smallbiznis/controlplane/internal/billing/service"
	"github.com/smallbiznis/controlplane/internal/billing/simulated"
	catalogdomain "github.com/smallbiznis/controlplane/internal/catalog/domain"
	catalogservice "github.com/smallbiznis/controlplane/internal/catalog/service"
	"github.com/smallbiznis/controlplane/internal/clock"
	"github.com/smallbiznis/controlplane/internal/config"
	"github.com/smallbiznis/controlplane/internal/migration"
	paymentdomain "github.com/smallbiznis/controlplane/internal/payment/domain"
	"github.com/smallbiznis/controlplane/internal/payment/webhook"
	"github.com/smallbiznis/controlplane/internal/provisioner"
	quotadomain "github.com/smallbiznis/controlplane/internal/quota/domain"
	quotaservice "github.com/smallbiznis/controlplane/internal/quota/service"
	registrydomain "github.com/smallbiznis/controlplane/internal/registry/domain"
	registryservice "github.com/smallbiznis/controlplane/internal/registry/service"
	"github.com/smallbiznis/controlplane/internal/signup"
	signupdomain "github.com/smallbiznis/controlplane/internal/signup/domain"
	subscriptiondomain "github.com/smallbiznis/controlplane/internal/subscription/domain"
	subscriptionservice "github.com/smallbiznis/controlplane/internal/subscription/service"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

const BaseDomain = "example.test"

// Epoch is the fake clock start for every Env.
var Epoch = time.Date(2026, time.January, 5, 12, 0, 0, 0, time.UTC)

// NewDB opens a migrated in-memory catalog. One connection keeps every
// query on the same memory database.
func NewDB(t testing.TB) *gorm.DB {
	t.Helper()

	conn, err := gorm.Open(sqlite.Open("file::memory:?_pragma=foreign_keys(1)"), &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Silent),
		NowFunc:        func() time.Time { return time.Now().UTC() },
		TranslateError: true,
	})
	require.NoError(t, err)

	sqlDB, err := conn.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	require.NoError(t, migration.Migrate(conn))
	return conn
}

func NewRedis(t testing.TB) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return mr, client
}

// Config returns a simulated-billing configuration for tests.
func Config() config.Config {
	return config.Config{
		AppName:     "controlplane",
		Environment: "test",
		DBType:      "sqlite",
		Billing: config.BillingConfig{
			Mode:       config.BillingModeSimulated,
			SuccessURL: "https://{host}/billing/success",
			CancelURL:  "https://{host}/billing/cancel",
		},
		Tenancy: config.TenancyConfig{
			BaseDomain:       BaseDomain,
			LoginURLTemplate: "https://{host}/login",
			HostCacheTTL:     time.Minute,
		},
		Scheduler: config.SchedulerConfig{BatchSize: 100},
	}
}

type Option func(*options)

type options struct {
	cfg      config.Config
	provider billingdomain.Provider
	redis    *redis.Client
	wrapProv func(provisioner.Provisioner) provisioner.Provisioner
}

func WithConfig(fn func(*config.Config)) Option {
	return func(o *options) { fn(&o.cfg) }
}

func WithProvider(p billingdomain.Provider) Option {
	return func(o *options) { o.provider = p }
}

func WithRedis(client *redis.Client) Option {
	return func(o *options) { o.redis = client }
}

// WithProvisioner decorates the namespace provisioner every service shares.
func WithProvisioner(wrap func(provisioner.Provisioner) provisioner.Provisioner) Option {
	return func(o *options) { o.wrapProv = wrap }
}

// Env holds one fully wired control plane.
type Env struct {
	DB            *gorm.DB
	Log           *zap.Logger
	Clock         *clock.FakeClock
	GenID         *snowflake.Node
	Cfg           config.Config
	Admission     *config.AdmissionConfigHolder
	Redis         *redis.Client
	Provisioner   provisioner.Provisioner
	Authz         *authorization.ServiceImpl
	Catalog       catalogdomain.Service
	Ledger        quotadomain.Ledger
	Subscriptions subscriptiondomain.Service
	Auth          authdomain.Service
	Registry      registrydomain.Service
	Provider      billingdomain.Provider
	Billing       billingdomain.Service
	Signup        signupdomain.Service
	Webhooks      paymentdomain.Reconciler
	Audit         auditdomain.Service
}

func NewEnv(t testing.TB, opts ...Option) *Env {
	t.Helper()

	o := options{cfg: Config()}
	for _, opt := range opts {
		opt(&o)
	}
	if o.provider == nil {
		o.provider = simulated.New()
	}

	db := NewDB(t)
	log := zap.NewNop()
	genID, err := snowflake.NewNode(1)
	require.NoError(t, err)
	clk := clock.NewFakeClock(Epoch)
	admission := config.NewStaticAdmissionHolder(config.DefaultAdmissionConfig())

	enforcer, err := authorization.NewEnforcer(db)
	require.NoError(t, err)
	authz := authorization.NewService(authorization.Params{DB: db, Log: log, Enforcer: enforcer})

	prov := provisioner.New(provisioner.Params{DB: db, Log: log})
	if o.wrapProv != nil {
		prov = o.wrapProv(prov)
	}

	catalog := catalogservice.NewService(catalogservice.Params{
		DB:          db,
		Log:         log,
		GenID:       genID,
		Clock:       clk,
		Cfg:         o.cfg,
		Admission:   admission,
		Provisioner: prov,
		Redis:       o.redis,
		Cleanups:    []catalogdomain.TenantCleanup{authz},
	})
	ledger := quotaservice.NewService(quotaservice.Params{DB: db, Log: log, Clock: clk})
	subs := subscriptionservice.NewService(subscriptionservice.Params{DB: db, Log: log, GenID: genID, Clock: clk})
	auth := authservice.NewService(authservice.Params{DB: db, Log: log, GenID: genID, Clock: clk, Ledger: ledger})
	registry := registryservice.NewService(registryservice.Params{
		DB:          db,
		Log:         log,
		GenID:       genID,
		Clock:       clk,
		Provisioner: prov,
		Ledger:      ledger,
		Members:     auth,
	})
	billing := billingservice.NewService(billingservice.Params{
		DB:       db,
		Log:      log,
		Cfg:      o.cfg,
		Provider: o.provider,
		Catalog:  catalog,

		Subscriptions: subs,
	})
	signupSvc := signup.NewService(signup.Params{
		DB:            db,
		Log:           log,
		Cfg:           o.cfg,
		Catalog:       catalog,
		Auth:          auth,
		Subscriptions: subs,
		Ledger:        ledger,
		Provisioner:   prov,
		Registry:      registry,
		Billing:       billing,
	})
	webhooks := webhook.NewService(webhook.Params{
		DB:            db,
		Log:           log,
		GenID:         genID,
		Clock:         clk,
		Verifier:      webhook.NewVerifier(o.cfg),
		Subscriptions: subs,
	})

	audit := auditservice.NewService(auditservice.Params{
		DB:    db,
		Log:   log,
		GenID: genID,
		Clock: clk,
		Repo:  auditrepository.Provide(),
	})

	return &Env{
		DB:            db,
		Log:           log,
		Clock:         clk,
		GenID:         genID,
		Cfg:           o.cfg,
		Admission:     admission,
		Redis:         o.redis,
		Provisioner:   prov,
		Authz:         authz,
		Catalog:       catalog,
		Ledger:        ledger,
		Subscriptions: subs,
		Auth:          auth,
		Registry:      registry,
		Provider:      o.provider,
		Billing:       billing,
		Signup:        signupSvc,
		Webhooks:      webhooks,
		Audit:         audit,
	}
}

// SeedPlan upserts a plan and returns it.
func (e *Env) SeedPlan(t testing.TB, req catalogdomain.UpsertPlanRequest) *catalogdomain.Plan {
	t.Helper()

	plan, _, err := e.Catalog.UpsertPlan(context.Background(), req)
	require.NoError(t, err)
	return plan
}

// BasicPlan is a 14 day trial plan with small limits.
func BasicPlan() catalogdomain.UpsertPlanRequest {
	return catalogdomain.UpsertPlanRequest{
		Slug:              "basic",
		Name:              "Basic",
		PriceMonthlyCents: 9900,
		PriceYearlyCents:  99000,
		MaxUsers:          3,
		MaxCompanies:      1,
		MaxBranches:       2,
		MaxStorageGB:      1,
		TrialDays:         14,
		SortOrder:         1,
		Features:          []string{"registries"},
	}
}

// ProPlan is a paid plan sold on both cycles.
func ProPlan() catalogdomain.UpsertPlanRequest {
	return catalogdomain.UpsertPlanRequest{
		Slug:                   "pro",
		Name:                   "Pro",
		PriceMonthlyCents:      19900,
		PriceYearlyCents:       199000,
		MaxUsers:               10,
		MaxCompanies:           5,
		MaxBranches:            10,
		MaxStorageGB:           10,
		SortOrder:              2,
		ProviderPriceIDMonthly: "price_pro_monthly",
		ProviderPriceIDYearly:  "price_pro_yearly",
		Features:               []string{"registries", "reports"},
	}
}

// SignupRequest builds a valid signup for label on plan.
func SignupRequest(label string, plan *catalogdomain.Plan) signupdomain.Request {
	return signupdomain.Request{
		TenantName:     "Tenant " + label,
		Domain:         label,
		PlanID:         plan.ID.String(),
		AdminUsername:  label + "_owner",
		AdminEmail:     label + "@example.com",
		AdminPassword:  OwnerPassword,
		AdminFirstName: "Ana",
		AdminLastName:  "Souza",
		CompanyName:    "Company " + label,
		CompanyTaxID:   "12345678000190",
	}
}

// SignupTenant signs up label on plan and returns the created tenant.
func (e *Env) SignupTenant(t testing.TB, label string, plan *catalogdomain.Plan) *catalogdomain.Tenant {
	t.Helper()

	ctx := context.Background()
	_, err := e.Signup.Signup(ctx, SignupRequest(label, plan))
	require.NoError(t, err)
	tenant, err := e.Catalog.ResolveByHost(ctx, label+"."+BaseDomain)
	require.NoError(t, err)
	return tenant
}
