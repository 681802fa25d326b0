// Package annotation reads declarative metadata attached to Go types. The set
// of annotations is closed: consumers switch on the concrete type.
package annotation

import (
	"fmt"
	"reflect"

	"gopkg.in/yaml.v3"
)

// Kind names an annotation type in tags and mapping files.
type Kind string

const (
	KindQueryParam   Kind = "query_param"
	KindRequestParam Kind = "request_param"
	KindPagination   Kind = "pagination"
	KindEntity       Kind = "entity"
	KindColumn       Kind = "column"
	KindIndex        Kind = "index"
)

// Annotation is implemented by QueryParam, RequestParam, Pagination, Entity,
// Column and Index.
type Annotation interface {
	Kind() Kind
}

// QueryParam binds a URL query parameter. Requirements holds validator rules.
type QueryParam struct {
	Name         string `yaml:"name" json:"name"`
	Field        string `yaml:"field,omitempty" json:"field,omitempty"`
	Default      string `yaml:"default,omitempty" json:"default,omitempty"`
	Requirements string `yaml:"requirements,omitempty" json:"requirements,omitempty"`
	Description  string `yaml:"description,omitempty" json:"description,omitempty"`
}

// RequestParam binds a form or JSON body parameter.
type RequestParam struct {
	Name         string `yaml:"name" json:"name"`
	Field        string `yaml:"field,omitempty" json:"field,omitempty"`
	Default      string `yaml:"default,omitempty" json:"default,omitempty"`
	Requirements string `yaml:"requirements,omitempty" json:"requirements,omitempty"`
	Description  string `yaml:"description,omitempty" json:"description,omitempty"`
}

// Pagination declares start/count query parameters and their bounds.
type Pagination struct {
	StartDefault int `yaml:"start_default" json:"start_default"`
	CountDefault int `yaml:"count_default" json:"count_default"`
	CountMin     int `yaml:"count_min" json:"count_min"`
	CountMax     int `yaml:"count_max" json:"count_max"`
}

// DefaultPagination is applied before a pagination annotation's own values.
var DefaultPagination = Pagination{StartDefault: 0, CountDefault: 100, CountMin: 1, CountMax: 1000}

// Entity maps a type to a table.
type Entity struct {
	Table      string `yaml:"table" json:"table"`
	Repository string `yaml:"repository,omitempty" json:"repository,omitempty"`
}

// Column maps a field to a column.
type Column struct {
	Name     string `yaml:"name" json:"name"`
	Type     string `yaml:"type,omitempty" json:"type,omitempty"`
	Length   int    `yaml:"length,omitempty" json:"length,omitempty"`
	Nullable bool   `yaml:"nullable,omitempty" json:"nullable,omitempty"`
}

// Index declares a table index.
type Index struct {
	Name    string   `yaml:"name" json:"name"`
	Columns []string `yaml:"columns" json:"columns"`
	Unique  bool     `yaml:"unique,omitempty" json:"unique,omitempty"`
}

func (QueryParam) Kind() Kind   { return KindQueryParam }
func (RequestParam) Kind() Kind { return KindRequestParam }
func (Pagination) Kind() Kind   { return KindPagination }
func (Entity) Kind() Kind       { return KindEntity }
func (Column) Kind() Kind       { return KindColumn }
func (Index) Kind() Kind        { return KindIndex }

// decode builds the annotation of the given kind from a YAML node. A nil node
// yields the kind's defaults.
func decode(kind Kind, node *yaml.Node) (Annotation, error) {
	switch kind {
	case KindQueryParam:
		return decodeInto(node, QueryParam{})
	case KindRequestParam:
		return decodeInto(node, RequestParam{})
	case KindPagination:
		return decodeInto(node, DefaultPagination)
	case KindEntity:
		return decodeInto(node, Entity{})
	case KindColumn:
		return decodeInto(node, Column{})
	case KindIndex:
		return decodeInto(node, Index{})
	}
	return nil, fmt.Errorf("unknown annotation %q", kind)
}

func decodeInto[T Annotation](node *yaml.Node, v T) (Annotation, error) {
	if node == nil {
		return v, nil
	}
	if err := node.Decode(&v); err != nil {
		return nil, err
	}
	return v, nil
}

// TypeName is the key mapping files and the registry use for t.
func TypeName(t reflect.Type) string {
	for t != nil && t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	if t == nil {
		return ""
	}
	return t.Name()
}

// First returns the first annotation of type T.
func First[T Annotation](anns []Annotation) (T, bool) {
	for _, a := range anns {
		if v, ok := a.(T); ok {
			return v, true
		}
	}
	var zero T
	return zero, false
}

// All returns every annotation of type T, in order.
func All[T Annotation](anns []Annotation) []T {
	var out []T
	for _, a := range anns {
		if v, ok := a.(T); ok {
			out = append(out, v)
		}
	}
	return out
}
