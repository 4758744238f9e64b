package admission_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/smallbiznis/controlplane/internal/admission"
	catalogdomain "github.com/smallbiznis/controlplane/internal/catalog/domain"
	quotadomain "github.com/smallbiznis/controlplane/internal/quota/domain"
	"github.com/smallbiznis/controlplane/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func newEngine(env *testutil.Env) *gin.Engine {
	adm := admission.New(admission.Params{
		Log:           env.Log,
		Catalog:       env.Catalog,
		Subscriptions: env.Subscriptions,
		Ledger:        env.Ledger,
		Config:        env.Admission,
	})
	table := admission.NewTable(
		admission.Route{Method: http.MethodPost, Path: "/api/companies/", QuotaKind: quotadomain.KindCompanies},
		admission.Route{Method: http.MethodPost, Path: "/api/public/signup/", Public: true},
		admission.Route{Method: http.MethodPost, Path: "/api/subscription/cancel/"},
	)

	engine := gin.New()
	engine.Use(func(c *gin.Context) {
		c.Next()
		if len(c.Errors) == 0 || c.Writer.Written() {
			return
		}
		if errors.Is(c.Errors.Last().Err, catalogdomain.ErrTenantNotFound) {
			c.AbortWithStatus(http.StatusNotFound)
			return
		}
		c.AbortWithStatus(http.StatusInternalServerError)
	})
	engine.Use(adm.Middleware(table))

	engine.POST("/api/companies/", func(c *gin.Context) {
		if c.Query("fail") != "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "rejected"})
			return
		}
		tenant, ok := admission.TenantFromContext(c)
		if !ok {
			c.Status(http.StatusInternalServerError)
			return
		}
		c.JSON(http.StatusCreated, gin.H{"tenant_id": tenant.ID.String()})
	})
	engine.POST("/api/public/signup/", func(c *gin.Context) { c.Status(http.StatusCreated) })
	engine.POST("/api/subscription/cancel/", func(c *gin.Context) { c.Status(http.StatusOK) })
	engine.GET("/api/usage/", func(c *gin.Context) { c.Status(http.StatusOK) })
	engine.GET("/health", func(c *gin.Context) { c.Status(http.StatusOK) })
	return engine
}

func do(engine *gin.Engine, method, host, path string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, nil)
	req.Host = host
	rec := httptest.NewRecorder()
	engine.ServeHTTP(rec, req)
	return rec
}

func companiesUsed(t *testing.T, env *testutil.Env, tenant *catalogdomain.Tenant) int64 {
	t.Helper()
	view, err := env.Ledger.Usage(context.Background(), tenant.ID)
	require.NoError(t, err)
	return view.Usage.CompaniesCount
}

func TestUnknownHost(t *testing.T) {
	env := testutil.NewEnv(t)
	engine := newEngine(env)

	rec := do(engine, http.MethodPost, "nobody.example.test", "/api/companies/")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = do(engine, http.MethodPost, "nobody.example.test", "/api/public/signup/")
	assert.Equal(t, http.StatusCreated, rec.Code)

	rec = do(engine, http.MethodGet, "nobody.example.test", "/health")
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestReserveThenQuotaExceeded(t *testing.T) {
	env := testutil.NewEnv(t)
	tenant := env.SignupTenant(t, "acme", env.SeedPlan(t, testutil.BasicPlan()))
	engine := newEngine(env)

	rec := do(engine, http.MethodPost, "acme.example.test:8080", "/api/companies/")
	require.Equal(t, http.StatusCreated, rec.Code)
	assert.EqualValues(t, 1, companiesUsed(t, env, tenant))

	rec = do(engine, http.MethodPost, "acme.example.test", "/api/companies/")
	require.Equal(t, http.StatusForbidden, rec.Code)

	var body admission.QuotaExceededBody
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, admission.QuotaExceededBody{QuotaType: "companies", Current: 1, Limit: 1}, body)
	assert.EqualValues(t, 1, companiesUsed(t, env, tenant))
}

func TestFailedHandlerReleasesReservation(t *testing.T) {
	env := testutil.NewEnv(t)
	tenant := env.SignupTenant(t, "acme", env.SeedPlan(t, testutil.BasicPlan()))
	engine := newEngine(env)

	rec := do(engine, http.MethodPost, "acme.example.test", "/api/companies/?fail=1")
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Zero(t, companiesUsed(t, env, tenant))

	rec = do(engine, http.MethodPost, "acme.example.test", "/api/companies/")
	assert.Equal(t, http.StatusCreated, rec.Code)
}

func TestLapsedSubscriptionIsPaymentRequired(t *testing.T) {
	env := testutil.NewEnv(t)
	tenant := env.SignupTenant(t, "acme", env.SeedPlan(t, testutil.BasicPlan()))
	engine := newEngine(env)

	env.Clock.Advance(15 * 24 * time.Hour)

	for _, path := range []string{"/api/companies/", "/api/subscription/cancel/"} {
		rec := do(engine, http.MethodPost, "acme.example.test", path)
		require.Equal(t, http.StatusPaymentRequired, rec.Code, path)

		var body admission.PaymentRequiredBody
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
		assert.Equal(t, "subscription period ended", body.Reason)
		assert.Equal(t, "trial", body.Status)
	}
	assert.Zero(t, companiesUsed(t, env, tenant))

	rec := do(engine, http.MethodGet, "acme.example.test", "/api/usage/")
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestTableLookup(t *testing.T) {
	table := admission.NewTable(admission.Route{Method: "post", Path: " /api/users/ ", QuotaKind: quotadomain.KindUsers})

	route, ok := table.Lookup(http.MethodPost, "/api/users/")
	require.True(t, ok)
	assert.Equal(t, quotadomain.KindUsers, route.QuotaKind)

	_, ok = table.Lookup(http.MethodGet, "/api/users/")
	assert.False(t, ok)
	assert.Len(t, table.Routes(), 1)

	var nilTable *admission.Table
	_, ok = nilTable.Lookup(http.MethodPost, "/api/users/")
	assert.False(t, ok)
}
