package e2e

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"

	"bbkernel/internal/config"
	"bbkernel/internal/container"
	"bbkernel/internal/event"
	"bbkernel/internal/httpapi"
	"bbkernel/internal/kernel"
	"bbkernel/internal/rest"
	"bbkernel/internal/routing"
)

const servicesYAML = `
parameters:
  app.greeting: hello
services:
  greeter:
    kind: greeter
    arguments: ["%app.greeting%"]
    tags:
      - {name: event.listener, event: bbapplication.init, method: onInit, priority: 5}
`

const routingYAML = `
page_list:
  path: /rest/{version}/pages
  methods: [GET]
  defaults: {_action: page.list, version: "1"}
  requirements: {version: '\d+', HTTP-Accept: json}
status:
  path: /status
  defaults: {_action: kernel.status}
`

const annotationsYAML = `
pageQuery:
  class:
    - {kind: pagination, count_default: 5, count_max: 20}
  properties:
    Search:
      - {kind: query_param, name: q}
`

// greeter counts the init events it receives.
type greeter struct {
	greeting string
	inits    *atomic.Int32
}

func (g *greeter) EventHandler(method string) (event.Handler, bool) {
	if method != "onInit" {
		return nil, false
	}
	return func(context.Context, *event.Event) error {
		g.inits.Add(1)
		return nil
	}, true
}

type pageQuery struct {
	Search string `json:"q"`
	Page   rest.Page
}

type pageList struct {
	Version  string `json:"version"`
	Search   string `json:"q"`
	Start    int    `json:"start"`
	Count    int    `json:"count"`
	Greeting string `json:"greeting"`
}

// newConfig lays out a service directory, a routing file and an annotations
// file under a fresh temp dir.
func newConfig(t *testing.T) config.Config {
	t.Helper()
	dir := t.TempDir()
	write := func(name, body string) string {
		p := filepath.Join(dir, name)
		if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
			t.Fatalf("mkdir: %v", err)
		}
		if err := os.WriteFile(p, []byte(body), 0o644); err != nil {
			t.Fatalf("write %s: %v", p, err)
		}
		return p
	}
	write("config/services.yml", servicesYAML)
	cfg := config.Config{
		ConfigDir:       filepath.Join(dir, "config"),
		ContainerDir:    filepath.Join(dir, "var", "cache", "container"),
		RoutingFile:     write("config/routing.yml", routingYAML),
		AnnotationsFile: write("config/annotations.yml", annotationsYAML),
	}
	cfg.ApplyDefaults()
	return cfg
}

// newServer boots an application for cfg and serves it over HTTP.
func newServer(t *testing.T, cfg config.Config, inits *atomic.Int32) (*httptest.Server, *kernel.Application) {
	t.Helper()
	var app *kernel.Application
	app = kernel.New(cfg,
		kernel.WithKinds(container.WithFactory("greeter", func(_ *container.Container, args container.Args) (any, error) {
			s, err := args.String(0)
			if err != nil {
				return nil, err
			}
			return &greeter{greeting: s, inits: inits}, nil
		})),
		kernel.WithHandler("page.list", func(w http.ResponseWriter, r *http.Request, m *routing.Match) error {
			var q pageQuery
			if err := rest.Bind(r, &q, app.AnnotationReader()); err != nil {
				return err
			}
			svc, err := app.Container().Get("greeter")
			if err != nil {
				return err
			}
			w.Header().Set("Content-Type", "application/json")
			return json.NewEncoder(w).Encode(pageList{
				Version:  m.Params["version"],
				Search:   q.Search,
				Start:    q.Page.Start,
				Count:    q.Page.Count,
				Greeting: svc.(*greeter).greeting,
			})
		}),
	)
	if err := app.Boot(context.Background()); err != nil {
		t.Fatalf("boot: %v", err)
	}
	t.Cleanup(func() { _ = app.Close() })
	srv := httptest.NewServer(httpapi.NewMux(app))
	t.Cleanup(srv.Close)
	return srv, app
}

func doRequest(t *testing.T, method, url, accept, body string) (*http.Response, []byte) {
	t.Helper()
	var rd io.Reader
	if body != "" {
		rd = strings.NewReader(body)
	}
	req, err := http.NewRequest(method, url, rd)
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	if accept != "" {
		req.Header.Set("Accept", accept)
	}
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, url, err)
	}
	defer resp.Body.Close()
	b, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	return resp, b
}

func decode[T any](t *testing.T, b []byte) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(b, &v); err != nil {
		t.Fatalf("decode %q: %v", b, err)
	}
	return v
}
