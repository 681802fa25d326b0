package config

import (
	"os"
	"path/filepath"
	"testing"

	"bbkernel/internal/apperr"
)

func TestPersistorPath(t *testing.T) {
	p := NewPersistor("/repo/Config")
	cases := []struct {
		scope Scope
		want  string
	}{
		{Scope{Bundle: "demo"}, "/repo/Config/bundle/demo/config.yml"},
		{Scope{Context: "default", Environment: "prod", Bundle: "demo"}, "/repo/Config/prod/bundle/demo/config.yml"},
		{Scope{Context: "site", Environment: "dev", Bundle: "demo"}, "/repo/Config/site/dev/bundle/demo/config.yml"},
	}
	for _, c := range cases {
		got, err := p.Path(c.scope)
		if err != nil {
			t.Fatalf("path %+v: %v", c.scope, err)
		}
		if got != filepath.FromSlash(c.want) {
			t.Fatalf("path %+v = %s, want %s", c.scope, got, c.want)
		}
	}
}

func TestPersistorRejectsBadBundle(t *testing.T) {
	p := NewPersistor(t.TempDir())
	for _, id := range []string{"", "..", "a/b"} {
		if _, err := p.Persist(Scope{Bundle: id}, nil); !apperr.HasCode(err, apperr.CodeInvalidBundle) {
			t.Fatalf("bundle %q: expected invalid bundle, got %v", id, err)
		}
	}
}

func TestPersistorRejectsEscapingScope(t *testing.T) {
	root := t.TempDir()
	p := NewPersistor(root)
	for _, s := range []Scope{
		{Context: "..", Bundle: "demo"},
		{Context: "a/b", Bundle: "demo"},
		{Environment: "..", Bundle: "demo"},
		{Environment: `x\y`, Bundle: "demo"},
	} {
		if _, err := p.Persist(s, map[string]any{"k": 1}); !apperr.HasCode(err, apperr.CodeInvalidArgument) {
			t.Fatalf("scope %+v: expected invalid argument, got %v", s, err)
		}
		if _, err := p.Read(s); !apperr.HasCode(err, apperr.CodeInvalidArgument) {
			t.Fatalf("read %+v: expected invalid argument, got %v", s, err)
		}
	}
	if _, err := os.Stat(filepath.Join(filepath.Dir(root), "bundle")); !os.IsNotExist(err) {
		t.Fatalf("config written outside root: %v", err)
	}
}

func TestPersistAndRead(t *testing.T) {
	root := t.TempDir()
	p := NewPersistor(root)
	scope := Scope{Context: "site", Environment: "prod", Bundle: "news"}
	path, err := p.Persist(scope, map[string]any{"enabled": true, "limit": 10})
	if err != nil {
		t.Fatalf("persist: %v", err)
	}
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("stat: %v", err)
	}
	got, err := p.Read(scope)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if got["enabled"] != true || got["limit"] != 10 {
		t.Fatalf("unexpected values: %#v", got)
	}
	empty, err := p.Read(Scope{Bundle: "missing"})
	if err != nil || len(empty) != 0 {
		t.Fatalf("missing read: %v %v", empty, err)
	}
}
