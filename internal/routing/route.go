// Package routing serves application routes declared in a routing file.
// Besides path requirements, a route may declare HTTP-<Header> requirements:
// regular expressions the named request header must match.
package routing

import (
	"fmt"
	"net/http"
	"regexp"
	"sort"
	"strings"

	"github.com/go-chi/chi/v5"

	"bbkernel/internal/apperr"
)

const (
	// HeaderRequirementPrefix marks a requirement evaluated against a header.
	HeaderRequirementPrefix = "HTTP-"
	// ActionKey is the default naming the handler of a route.
	ActionKey = "_action"
)

// Route is one routing file entry.
type Route struct {
	Name         string            `yaml:"-" json:"name"`
	Path         string            `yaml:"path" json:"path"`
	Methods      []string          `yaml:"methods,omitempty" json:"methods,omitempty"`
	Defaults     map[string]string `yaml:"defaults,omitempty" json:"defaults,omitempty"`
	Requirements map[string]string `yaml:"requirements,omitempty" json:"requirements,omitempty"`
}

// Action returns the handler name from defaults.
func (rt Route) Action() string { return rt.Defaults[ActionKey] }

type headerRequirement struct {
	header string
	re     *regexp.Regexp
}

type compiledRoute struct {
	Route
	pattern string
	matcher *chi.Mux
	methods map[string]bool
	headers []headerRequirement
}

func compile(rt Route) (*compiledRoute, error) {
	if rt.Path == "" || rt.Path[0] != '/' {
		return nil, apperr.Newf(apperr.CodeInvalidConfig, "route %q: path must start with /", rt.Name)
	}
	cr := &compiledRoute{Route: rt, methods: map[string]bool{}}
	for _, m := range rt.Methods {
		cr.methods[strings.ToUpper(m)] = true
	}
	if cr.methods[http.MethodGet] {
		cr.methods[http.MethodHead] = true
	}

	pathReqs := map[string]string{}
	for _, key := range sortedKeys(rt.Requirements) {
		expr := rt.Requirements[key]
		if name, ok := strings.CutPrefix(key, HeaderRequirementPrefix); ok {
			re, err := regexp.Compile(expr)
			if err != nil {
				return nil, apperr.Wrap(apperr.CodeInvalidConfig, err, fmt.Sprintf("route %q: requirement %s", rt.Name, key))
			}
			cr.headers = append(cr.headers, headerRequirement{header: http.CanonicalHeaderKey(name), re: re})
			continue
		}
		if _, err := regexp.Compile(expr); err != nil {
			return nil, apperr.Wrap(apperr.CodeInvalidConfig, err, fmt.Sprintf("route %q: requirement %s", rt.Name, key))
		}
		if strings.Contains(expr, "/") {
			return nil, apperr.Newf(apperr.CodeInvalidConfig, "route %q: requirement %s may not match '/'", rt.Name, key)
		}
		pathReqs[key] = expr
	}
	cr.pattern = pattern(rt.Path, pathReqs)
	cr.matcher = chi.NewRouter()
	cr.matcher.Get(cr.pattern, func(http.ResponseWriter, *http.Request) {})
	return cr, nil
}

// pattern turns "/page/{uid}" into "/page/{uid:[a-f0-9]+}" for each
// constrained placeholder.
func pattern(path string, reqs map[string]string) string {
	for name, expr := range reqs {
		path = strings.ReplaceAll(path, "{"+name+"}", "{"+name+":"+expr+"}")
	}
	return path
}

func (cr *compiledRoute) allowsMethod(method string) bool {
	return len(cr.methods) == 0 || cr.methods[method]
}

func (cr *compiledRoute) matchesHeaders(h http.Header) bool {
	for _, req := range cr.headers {
		if !req.re.MatchString(strings.Join(h.Values(req.header), ", ")) {
			return false
		}
	}
	return true
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
