package routing

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"bbkernel/internal/apperr"
)

// Handler serves a matched route.
type Handler func(w http.ResponseWriter, r *http.Request, m *Match) error

// ErrorHandler renders a handler or routing error.
type ErrorHandler func(w http.ResponseWriter, r *http.Request, err error)

// Match describes the route serving a request.
type Match struct {
	Route  Route
	Params map[string]string
}

type matchKey struct{}

// MatchFrom returns the match stored in ctx by the router.
func MatchFrom(ctx context.Context) (*Match, bool) {
	m, ok := ctx.Value(matchKey{}).(*Match)
	return m, ok
}

// Router dispatches requests to route handlers. Routes are tried in
// declaration order; the first whose path, method and header requirements
// all match serves the request.
type Router struct {
	routes   []*compiledRoute
	handlers map[string]Handler
	onError  ErrorHandler
}

// Option configures a Router.
type Option func(*Router)

// WithErrorHandler replaces the default JSON error renderer.
func WithErrorHandler(h ErrorHandler) Option {
	return func(rt *Router) { rt.onError = h }
}

// New compiles routes. Every route must name a handler in handlers.
func New(routes []Route, handlers map[string]Handler, opts ...Option) (*Router, error) {
	rt := &Router{handlers: handlers, onError: writeError}
	for _, opt := range opts {
		opt(rt)
	}
	for _, r := range routes {
		cr, err := compile(r)
		if err != nil {
			return nil, err
		}
		if _, ok := handlers[cr.Action()]; !ok {
			return nil, apperr.Newf(apperr.CodeInvalidConfig, "route %q: no handler for action %q", cr.Name, cr.Action())
		}
		rt.routes = append(rt.routes, cr)
	}
	return rt, nil
}

// Routes returns the routes in declaration order.
func (rt *Router) Routes() []Route {
	out := make([]Route, len(rt.routes))
	for i, cr := range rt.routes {
		out[i] = cr.Route
	}
	return out
}

func (rt *Router) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	m, rctx, err := rt.match(r)
	if err != nil {
		rt.onError(w, r, err)
		return
	}
	ctx := context.WithValue(r.Context(), chi.RouteCtxKey, rctx)
	r = r.WithContext(context.WithValue(ctx, matchKey{}, m))
	if err := rt.handlers[m.Route.Action()](w, r, m); err != nil {
		rt.onError(w, r, err)
	}
}

func (rt *Router) match(r *http.Request) (*Match, *chi.Context, error) {
	path := r.URL.RawPath
	if path == "" {
		path = r.URL.Path
	}
	pathSeen, methodSeen := false, false
	for _, cr := range rt.routes {
		rctx := chi.NewRouteContext()
		if !cr.matcher.Match(rctx, http.MethodGet, path) {
			continue
		}
		pathSeen = true
		if !cr.allowsMethod(r.Method) {
			continue
		}
		methodSeen = true
		if !cr.matchesHeaders(r.Header) {
			continue
		}
		return &Match{Route: cr.Route, Params: params(rctx, cr.Route)}, rctx, nil
	}
	if pathSeen && !methodSeen {
		return nil, nil, apperr.Newf(apperr.CodeMethodNotAllowed, "method %s not allowed for %s", r.Method, r.URL.Path)
	}
	return nil, nil, apperr.Newf(apperr.CodeNotFound, "no route matches %s %s", r.Method, r.URL.Path)
}

// params merges path parameters over the route's non-reserved defaults.
func params(rctx *chi.Context, route Route) map[string]string {
	out := map[string]string{}
	for k, v := range route.Defaults {
		if !strings.HasPrefix(k, "_") {
			out[k] = v
		}
	}
	for i, k := range rctx.URLParams.Keys {
		if k != "*" {
			out[k] = rctx.URLParams.Values[i]
		}
	}
	return out
}

func writeError(w http.ResponseWriter, _ *http.Request, err error) {
	status := apperr.StatusCode(err)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]any{
		"error": err.Error(),
		"code":  apperr.CodeOf(err),
	})
}
