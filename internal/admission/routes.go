// Package admission resolves the tenant of every request and gates mutating
// requests on subscription state and quota headroom.
package admission

import (
	"net/http"
	"strings"

	quotadomain "github.com/smallbiznis/controlplane/internal/quota/domain"
)

// Route declares how admission treats one endpoint. Path is the gin route
// pattern, e.g. "/api/companies/".
type Route struct {
	Method    string
	Path      string
	QuotaKind quotadomain.Kind
	Public    bool
}

// Table is the explicit admission declaration of every routed endpoint.
type Table struct {
	routes map[string]Route
}

func NewTable(routes ...Route) *Table {
	t := &Table{routes: make(map[string]Route, len(routes))}
	for _, route := range routes {
		t.routes[routeKey(route.Method, route.Path)] = route
	}
	return t
}

func (t *Table) Lookup(method, path string) (Route, bool) {
	if t == nil {
		return Route{}, false
	}
	route, ok := t.routes[routeKey(method, path)]
	return route, ok
}

func (t *Table) Routes() []Route {
	out := make([]Route, 0, len(t.routes))
	for _, route := range t.routes {
		out = append(out, route)
	}
	return out
}

func routeKey(method, path string) string {
	return strings.ToUpper(strings.TrimSpace(method)) + " " + strings.TrimSpace(path)
}

func isMutating(method string) bool {
	switch method {
	case http.MethodPost, http.MethodPut, http.MethodPatch:
		return true
	}
	return false
}
