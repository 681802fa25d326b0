package container

import (
	"fmt"
	"sort"
	"strings"
)

// Scope controls how long a service instance lives.
type Scope string

const (
	// ScopeContainer shares one instance for the container's lifetime.
	ScopeContainer Scope = "container"
	// ScopePrototype builds a new instance on every Get.
	ScopePrototype Scope = "prototype"
	// ScopeRequest shares one instance per RequestScope.
	ScopeRequest Scope = "request"
)

func (s Scope) normalize() Scope {
	if s == "" {
		return ScopeContainer
	}
	return s
}

func (s Scope) valid() bool {
	switch s.normalize() {
	case ScopeContainer, ScopePrototype, ScopeRequest:
		return true
	}
	return false
}

// Definition describes how to build a service.
type Definition struct {
	Kind      string `json:"kind,omitempty" yaml:"kind,omitempty" toml:"kind,omitempty"`
	Arguments []any  `json:"arguments,omitempty" yaml:"arguments,omitempty" toml:"arguments,omitempty"`
	Scope     Scope  `json:"scope,omitempty" yaml:"scope,omitempty" toml:"scope,omitempty"`
	Tags      []Tag  `json:"tags,omitempty" yaml:"tags,omitempty" toml:"tags,omitempty"`
	Synthetic bool   `json:"synthetic,omitempty" yaml:"synthetic,omitempty" toml:"synthetic,omitempty"`
}

// Tag is a service tag: a "name" key plus free-form attributes.
type Tag map[string]any

// Name returns the tag name.
func (t Tag) Name() string { return t.Attr("name") }

// Attr returns an attribute rendered as a string, "" when absent.
func (t Tag) Attr(key string) string {
	v, ok := t[key]
	if !ok || v == nil {
		return ""
	}
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprint(v)
}

// Attributes returns every attribute except the name.
func (t Tag) Attributes() map[string]string {
	out := make(map[string]string, len(t))
	for k := range t {
		if k != "name" {
			out[k] = t.Attr(k)
		}
	}
	return out
}

// Clone returns a deep copy.
func (d *Definition) Clone() *Definition {
	if d == nil {
		return nil
	}
	c := *d
	c.Arguments = cloneValue(d.Arguments).([]any)
	if d.Tags != nil {
		c.Tags = make([]Tag, len(d.Tags))
		for i, t := range d.Tags {
			nt := make(Tag, len(t))
			for k, v := range t {
				nt[k] = v
			}
			c.Tags[i] = nt
		}
	}
	return &c
}

func cloneValue(v any) any {
	switch t := v.(type) {
	case []any:
		if t == nil {
			return []any(nil)
		}
		out := make([]any, len(t))
		for i, e := range t {
			out[i] = cloneValue(e)
		}
		return out
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, e := range t {
			out[k] = cloneValue(e)
		}
		return out
	default:
		return v
	}
}

// Reference is a parsed "@id" / "@?id" argument.
type Reference struct {
	ID       string
	Optional bool
}

// String renders the reference in argument syntax.
func (r Reference) String() string {
	if r.Optional {
		return "@?" + r.ID
	}
	return "@" + r.ID
}

// ParseReference reports whether s is a service reference. "@@" escapes a
// literal leading '@'.
func ParseReference(s string) (Reference, bool) {
	if !strings.HasPrefix(s, "@") || strings.HasPrefix(s, "@@") || len(s) < 2 {
		return Reference{}, false
	}
	if strings.HasPrefix(s, "@?") {
		if len(s) == 2 {
			return Reference{}, false
		}
		return Reference{ID: s[2:], Optional: true}, true
	}
	return Reference{ID: s[1:]}, true
}

// references collects every service reference in v, depth first.
func references(v any, out *[]Reference) {
	switch t := v.(type) {
	case string:
		if r, ok := ParseReference(t); ok {
			*out = append(*out, r)
		}
	case []any:
		for _, e := range t {
			references(e, out)
		}
	case map[string]any:
		keys := make([]string, 0, len(t))
		for k := range t {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			references(t[k], out)
		}
	}
}
