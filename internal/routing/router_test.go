package routing

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bbkernel/internal/apperr"
)

const routingYAML = `
page_json:
  path: /rest/{version}/page/{uid}
  methods: [GET]
  defaults: {_action: page.json, version: "2", format: json}
  requirements:
    uid: "[a-f0-9]{8}"
    HTTP-Accept: "json"
page_html:
  path: /rest/{version}/page/{uid}
  methods: [GET]
  defaults: {_action: page.html}
  requirements:
    uid: "[a-f0-9]{8}"
foo_only:
  path: /foo
  defaults: {_action: foo}
  requirements:
    HTTP-X-Foo: ^bar$
page_delete:
  path: /rest/{version}/page/{uid}
  methods: [DELETE]
  defaults: {_action: page.delete}
  requirements:
    uid: "[a-f0-9]{8}"
`

func echo(name string) Handler {
	return func(w http.ResponseWriter, _ *http.Request, m *Match) error {
		w.Header().Set("Content-Type", "application/json")
		return json.NewEncoder(w).Encode(map[string]any{"handler": name, "route": m.Route.Name, "params": m.Params})
	}
}

func newRouter(t *testing.T) *Router {
	t.Helper()
	routes, err := Parse([]byte(routingYAML))
	require.NoError(t, err)
	rt, err := New(routes, map[string]Handler{
		"page.json":   echo("json"),
		"page.html":   echo("html"),
		"page.delete": echo("delete"),
		"foo": func(w http.ResponseWriter, r *http.Request, m *Match) error {
			got, ok := MatchFrom(r.Context())
			if !ok || got != m {
				return apperr.New(apperr.CodeInternal, "match missing from context")
			}
			_, err := io.WriteString(w, "foo")
			return err
		},
	})
	require.NoError(t, err)
	return rt
}

type reply struct {
	Handler string            `json:"handler"`
	Route   string            `json:"route"`
	Params  map[string]string `json:"params"`
	Code    int               `json:"code"`
}

func serve(t *testing.T, rt http.Handler, method, path string, headers map[string]string) (*httptest.ResponseRecorder, reply) {
	t.Helper()
	req := httptest.NewRequest(method, path, nil)
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	rt.ServeHTTP(rec, req)
	var out reply
	_ = json.Unmarshal(rec.Body.Bytes(), &out)
	return rec, out
}

func TestHeaderRequirement(t *testing.T) {
	rt := newRouter(t)
	rec, _ := serve(t, rt, http.MethodGet, "/foo", map[string]string{"X-Foo": "bar"})
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "foo", rec.Body.String())

	rec, out := serve(t, rt, http.MethodGet, "/foo", map[string]string{"X-Foo": "baz"})
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, apperr.CodeNotFound, out.Code)

	rec, _ = serve(t, rt, http.MethodGet, "/foo", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code, "missing header fails ^bar$")
}

func TestFirstMatchingRouteWins(t *testing.T) {
	rt := newRouter(t)
	_, out := serve(t, rt, http.MethodGet, "/rest/1/page/deadbeef", map[string]string{"Accept": "application/json"})
	assert.Equal(t, "json", out.Handler)
	assert.Equal(t, map[string]string{"version": "1", "uid": "deadbeef", "format": "json"}, out.Params)

	_, out = serve(t, rt, http.MethodGet, "/rest/1/page/deadbeef", map[string]string{"Accept": "text/html"})
	assert.Equal(t, "html", out.Handler)
	assert.Equal(t, "page_html", out.Route)

	_, out = serve(t, rt, http.MethodDelete, "/rest/1/page/deadbeef", nil)
	assert.Equal(t, "delete", out.Handler)
}

func TestRouting_Errors(t *testing.T) {
	rt := newRouter(t)
	rec, out := serve(t, rt, http.MethodGet, "/rest/1/page/not-hex!", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, apperr.CodeNotFound, out.Code)

	rec, out = serve(t, rt, http.MethodPost, "/rest/1/page/deadbeef", nil)
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
	assert.Equal(t, apperr.CodeMethodNotAllowed, out.Code)

	rec, out = serve(t, rt, http.MethodDelete, "/rest/1/page/not-hex!", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code, "uid requirement applies to every method")
	assert.Equal(t, apperr.CodeNotFound, out.Code)

	rec, out = serve(t, rt, http.MethodGet, "/nowhere", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, apperr.CodeNotFound, out.Code)
}

func TestHandlerErrorsUseErrorHandler(t *testing.T) {
	var got error
	rt, err := New([]Route{{Name: "x", Path: "/x", Defaults: map[string]string{ActionKey: "x"}}},
		map[string]Handler{"x": func(http.ResponseWriter, *http.Request, *Match) error {
			return apperr.New(apperr.CodeBadRequest, "bad")
		}},
		WithErrorHandler(func(w http.ResponseWriter, _ *http.Request, err error) {
			got = err
			w.WriteHeader(apperr.StatusCode(err))
		}))
	require.NoError(t, err)
	rec, _ := serve(t, rt, http.MethodGet, "/x", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.True(t, apperr.HasCode(got, apperr.CodeBadRequest))
}

func TestNew_Rejects(t *testing.T) {
	h := map[string]Handler{"a": echo("a")}
	cases := map[string]Route{
		"relative path":   {Name: "r", Path: "x", Defaults: map[string]string{ActionKey: "a"}},
		"unknown action":  {Name: "r", Path: "/x", Defaults: map[string]string{ActionKey: "missing"}},
		"bad header re":   {Name: "r", Path: "/x", Defaults: map[string]string{ActionKey: "a"}, Requirements: map[string]string{"HTTP-X": "("}},
		"bad path re":     {Name: "r", Path: "/x/{id}", Defaults: map[string]string{ActionKey: "a"}, Requirements: map[string]string{"id": "["}},
		"slash in req re": {Name: "r", Path: "/x/{id}", Defaults: map[string]string{ActionKey: "a"}, Requirements: map[string]string{"id": "a/b"}},
	}
	for name, r := range cases {
		_, err := New([]Route{r}, h)
		assert.True(t, apperr.HasCode(err, apperr.CodeInvalidConfig), name)
	}
}

func TestLoadFile(t *testing.T) {
	p := filepath.Join(t.TempDir(), "routing.yml")
	require.NoError(t, os.WriteFile(p, []byte(routingYAML), 0o644))
	routes, err := LoadFile(p)
	require.NoError(t, err)
	require.Len(t, routes, 4)
	names := []string{routes[0].Name, routes[1].Name, routes[2].Name, routes[3].Name}
	assert.Equal(t, []string{"page_json", "page_html", "foo_only", "page_delete"}, names)
	assert.Equal(t, "page.json", routes[0].Action())

	_, err = Parse([]byte("a: {path: /a}\na: {path: /b}\n"))
	assert.Error(t, err)
	_, err = Parse([]byte("- not a mapping"))
	assert.True(t, apperr.HasCode(err, apperr.CodeConfigParse))
	_, err = LoadFile(filepath.Join(t.TempDir(), "missing.yml"))
	assert.True(t, apperr.HasCode(err, apperr.CodeInvalidConfig))

	empty, err := Parse(nil)
	assert.NoError(t, err)
	assert.Empty(t, empty)
}

func TestPattern(t *testing.T) {
	assert.Equal(t, "/p/{uid:[0-9]+}/{x}", pattern("/p/{uid}/{x}", map[string]string{"uid": "[0-9]+"}))
}
