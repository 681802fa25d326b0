package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"bbkernel/internal/apperr"
	"bbkernel/internal/common/fsutil"
)

const (
	bundleConfigFile = "config.yml"
	defaultContext   = "default"
)

// Scope addresses one bundle configuration inside the context/environment tree.
type Scope struct {
	Context     string
	Environment string
	Bundle      string
}

// Persistor writes bundle configuration overrides as YAML files laid out as
// <root>/[<context>/][<environment>/]bundle/<bundle>/config.yml.
type Persistor struct {
	Root string
}

// NewPersistor returns a persistor rooted at root.
func NewPersistor(root string) *Persistor { return &Persistor{Root: root} }

// Path returns the config.yml location for s.
func (p *Persistor) Path(s Scope) (string, error) {
	if err := validBundleID(s.Bundle); err != nil {
		return "", err
	}
	if err := validSegment("context", s.Context); err != nil {
		return "", err
	}
	if err := validSegment("environment", s.Environment); err != nil {
		return "", err
	}
	parts := []string{p.Root}
	if s.Context != "" && s.Context != defaultContext {
		parts = append(parts, s.Context)
	}
	if s.Environment != "" {
		parts = append(parts, s.Environment)
	}
	parts = append(parts, "bundle", s.Bundle, bundleConfigFile)
	return filepath.Join(parts...), nil
}

// Persist serializes values to the scope's config.yml, replacing any previous content.
func (p *Persistor) Persist(s Scope, values map[string]any) (string, error) {
	path, err := p.Path(s)
	if err != nil {
		return "", err
	}
	if err := fsutil.EnsureWritableDir(filepath.Dir(path)); err != nil {
		return "", apperr.Wrap(apperr.CodeBundleConfigWrite, err, "prepare "+filepath.Dir(path))
	}
	if values == nil {
		values = map[string]any{}
	}
	b, err := yaml.Marshal(values)
	if err != nil {
		return "", apperr.Wrap(apperr.CodeBundleConfigWrite, err, "encode bundle config")
	}
	if err := fsutil.WriteFileAtomic(path, b, 0o644); err != nil {
		return "", apperr.Wrap(apperr.CodeBundleConfigWrite, err, "write "+path)
	}
	return path, nil
}

// Read loads the scope's config.yml. A missing file yields an empty map.
func (p *Persistor) Read(s Scope) (map[string]any, error) {
	path, err := p.Path(s)
	if err != nil {
		return nil, err
	}
	b, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return map[string]any{}, nil
	}
	if err != nil {
		return nil, apperr.Wrap(apperr.CodeBundleConfigRead, err, "read "+path)
	}
	out := map[string]any{}
	if err := yaml.Unmarshal(b, &out); err != nil {
		return nil, apperr.Wrap(apperr.CodeBundleConfigRead, err, "decode "+path)
	}
	return out, nil
}

func validBundleID(id string) error {
	if id == "" || !pathSafe(id) {
		return apperr.Newf(apperr.CodeInvalidBundle, "invalid bundle id %q", id)
	}
	return nil
}

// validSegment checks an optional context or environment name. Empty means unset.
func validSegment(what, v string) error {
	if v != "" && !pathSafe(v) {
		return apperr.Newf(apperr.CodeInvalidArgument, "invalid %s %q", what, v)
	}
	return nil
}

func pathSafe(s string) bool {
	return s != "." && s != ".." && !strings.ContainsAny(s, `/\`)
}
