package hxnet

import (
	"log/slog"
	"net/http"
	"strings"
	"sync"
)

// ComponentRoute is a component's endpoint: {baseRoute}/{name}_{id}.
type ComponentRoute struct {
	full    string
	segment string
}

// NewComponentRoute builds the route of component name/id below baseRoute.
// An id with characters other than letters, digits, '_' and '-' is
// replaced by its hash, so the route is always a single path element.
func NewComponentRoute(baseRoute, name, id string) ComponentRoute {
	segment := name + "_" + pathSafeID(id)
	return ComponentRoute{
		full:    strings.TrimSuffix(baseRoute, "/") + "/" + segment,
		segment: segment,
	}
}

// String returns the full route.
func (r ComponentRoute) String() string { return r.full }

// Segment returns the last path element, {name}_{id}.
func (r ComponentRoute) Segment() string { return r.segment }

// APIRouter dispatches requests below a page's API path to the sub-routers
// of the page's components. The component segment is stripped, so a
// component's mux sees paths relative to its endpoint.
type APIRouter struct {
	mu     sync.RWMutex
	base   string
	routes map[string]http.Handler
	logger *slog.Logger
}

// NewAPIRouter creates a router for requests below base.
func NewAPIRouter(base string, logger *slog.Logger) *APIRouter {
	if logger == nil {
		logger = slog.Default()
	}
	return &APIRouter{
		base:   strings.TrimSuffix(base, "/"),
		routes: make(map[string]http.Handler),
		logger: logger,
	}
}

// Mount attaches h at route. Mounting a route again replaces its handler,
// which happens when a component is rebuilt.
func (a *APIRouter) Mount(route ComponentRoute, h http.Handler) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if _, ok := a.routes[route.Segment()]; ok {
		a.logger.Debug("replacing component router", "route", route.String())
	}
	a.routes[route.Segment()] = h
}

// Len returns the number of mounted component routers.
func (a *APIRouter) Len() int {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return len(a.routes)
}

// ServeHTTP routes r to the component router named by the first path
// element below the base.
func (a *APIRouter) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	rest, ok := strings.CutPrefix(r.URL.Path, a.base+"/")
	if !ok {
		http.Error(w, "API route does not exist", http.StatusNotFound)
		return
	}
	segment, _, _ := strings.Cut(rest, "/")

	a.mu.RLock()
	h, ok := a.routes[segment]
	a.mu.RUnlock()
	if !ok {
		http.Error(w, "API route does not exist", http.StatusNotFound)
		return
	}

	prefix := a.base + "/" + segment
	r2 := r.Clone(r.Context())
	r2.URL.Path = strings.TrimPrefix(r.URL.Path, prefix)
	if r2.URL.RawPath != "" {
		r2.URL.RawPath = strings.TrimPrefix(r.URL.RawPath, prefix)
	}
	if r2.URL.Path == "" {
		r2.URL.Path = "/"
	}
	h.ServeHTTP(w, r2)
}
