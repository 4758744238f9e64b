package testutil

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/smallbiznis/controlplane/internal/admission"
	"github.com/smallbiznis/controlplane/internal/observability"
	"github.com/smallbiznis/controlplane/internal/server"
	"github.com/stretchr/testify/require"
)

// NewHTTP mounts the full HTTP surface, admission included, on env's services.
func (e *Env) NewHTTP(t testing.TB) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)

	gate := admission.New(admission.Params{
		Log:           e.Log,
		Catalog:       e.Catalog,
		Subscriptions: e.Subscriptions,
		Ledger:        e.Ledger,
		Config:        e.Admission,
	})
	engine := server.NewEngine(observability.Config{}, nil, gate)
	server.NewServer(server.ServerParams{
		Gin:           engine,
		Cfg:           e.Cfg,
		Log:           e.Log,
		Catalog:       e.Catalog,
		Authsvc:       e.Auth,
		AuthzSvc:      e.Authz,
		Registry:      e.Registry,
		Ledger:        e.Ledger,
		Subscriptions: e.Subscriptions,
		Billing:       e.Billing,
		Signup:        e.Signup,
		Webhooks:      e.Webhooks,
		Audit:         e.Audit,
		Gate:          gate,
	})
	return engine
}

// Request is one call against an engine built by NewHTTP.
type Request struct {
	Method  string
	Host    string
	Path    string
	Token   string
	Body    any
	Headers map[string]string
}

// Do serves req and returns the recorded response. A []byte body is sent verbatim.
func Do(t testing.TB, h http.Handler, req Request) *httptest.ResponseRecorder {
	t.Helper()

	var body io.Reader
	switch b := req.Body.(type) {
	case nil:
	case []byte:
		body = bytes.NewReader(b)
	default:
		raw, err := json.Marshal(b)
		require.NoError(t, err)
		body = bytes.NewReader(raw)
	}

	r := httptest.NewRequest(req.Method, req.Path, body)
	if req.Host != "" {
		r.Host = req.Host
	}
	if body != nil {
		r.Header.Set("Content-Type", "application/json")
	}
	if req.Token != "" {
		r.Header.Set("Authorization", "Bearer "+req.Token)
	}
	for key, value := range req.Headers {
		r.Header.Set(key, value)
	}

	w := httptest.NewRecorder()
	h.ServeHTTP(w, r)
	return w
}

// DecodeJSON unmarshals a recorded response body.
func DecodeJSON(t testing.TB, w *httptest.ResponseRecorder, out any) {
	t.Helper()
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), out), w.Body.String())
}

// Host returns the primary host SignupTenant assigns to label.
func Host(label string) string {
	return label + "." + BaseDomain
}

// OwnerPassword is the admin password used by SignupRequest.
const OwnerPassword = "S3cure-passw0rd!"

// Login authenticates username on the tenant at host and returns the bearer token.
func Login(t testing.TB, h http.Handler, host, username, password string) string {
	t.Helper()

	w := Do(t, h, Request{
		Method: http.MethodPost,
		Host:   host,
		Path:   "/api/auth/login/",
		Body:   map[string]string{"username": username, "password": password},
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var resp struct {
		Token string `json:"token"`
	}
	DecodeJSON(t, w, &resp)
	require.NotEmpty(t, resp.Token)
	return resp.Token
}

// LoginOwner signs in the owner created by SignupTenant for label.
func LoginOwner(t testing.TB, h http.Handler, label string) string {
	t.Helper()
	return Login(t, h, Host(label), label+"_owner", OwnerPassword)
}
