package annotation

import (
	"fmt"
	"reflect"
	"strings"

	"gopkg.in/yaml.v3"
)

// DefaultTagKey is the struct tag TagReader reads.
const DefaultTagKey = "bb"

// TagReader reads annotations from struct tags. Each tag holds annotations
// separated by ';', each a kind optionally followed by a YAML flow mapping:
//
//	Title string `bb:"column{name: title, length: 255}; query_param{name: q}"`
//
// Class annotations go on blank fields:
//
//	_ struct{} `bb:"entity{table: page}"`
type TagReader struct {
	Key string
}

// NewTagReader returns a reader for the "bb" tag.
func NewTagReader() *TagReader { return &TagReader{Key: DefaultTagKey} }

func (r *TagReader) key() string {
	if r.Key == "" {
		return DefaultTagKey
	}
	return r.Key
}

func (r *TagReader) ClassAnnotations(t reflect.Type) ([]Annotation, error) {
	st, ok := structType(t)
	if !ok {
		return nil, nil
	}
	var out []Annotation
	for i := 0; i < st.NumField(); i++ {
		f := st.Field(i)
		if f.Name != "_" {
			continue
		}
		anns, err := r.parseField(st, f)
		if err != nil {
			return nil, err
		}
		out = append(out, anns...)
	}
	return out, nil
}

func (r *TagReader) PropertyAnnotations(t reflect.Type, field string) ([]Annotation, error) {
	st, ok := structType(t)
	if !ok || field == "_" {
		return nil, nil
	}
	f, ok := st.FieldByName(field)
	if !ok {
		return nil, nil
	}
	return r.parseField(st, f)
}

// MethodAnnotations is always empty: Go methods carry no tags.
func (r *TagReader) MethodAnnotations(reflect.Type, string) ([]Annotation, error) {
	return nil, nil
}

func (r *TagReader) parseField(st reflect.Type, f reflect.StructField) ([]Annotation, error) {
	tag, ok := f.Tag.Lookup(r.key())
	if !ok {
		return nil, nil
	}
	anns, err := ParseTag(tag)
	if err != nil {
		return nil, parseErr(st.Name()+"."+f.Name, err)
	}
	return anns, nil
}

// ParseTag parses one tag value.
func ParseTag(tag string) ([]Annotation, error) {
	var out []Annotation
	s := tag
	for {
		s = strings.TrimLeft(s, " \t;")
		if s == "" {
			return out, nil
		}
		end := strings.IndexAny(s, "{;")
		if end < 0 {
			end = len(s)
		}
		kind := Kind(strings.TrimSpace(s[:end]))
		s = s[end:]
		var node *yaml.Node
		if strings.HasPrefix(s, "{") {
			closing, err := matchBrace(s)
			if err != nil {
				return nil, fmt.Errorf("%s: %w", kind, err)
			}
			var doc yaml.Node
			if err := yaml.Unmarshal([]byte(s[:closing+1]), &doc); err != nil {
				return nil, fmt.Errorf("%s: %w", kind, err)
			}
			node = doc.Content[0]
			s = s[closing+1:]
		}
		a, err := decode(kind, node)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
}

// matchBrace returns the index of the brace closing s[0], skipping quoted
// text.
func matchBrace(s string) (int, error) {
	depth := 0
	var quote byte
	for i := 0; i < len(s); i++ {
		ch := s[i]
		switch {
		case quote != 0:
			if ch == quote {
				quote = 0
			}
		case ch == '\'' || ch == '"':
			quote = ch
		case ch == '{' || ch == '[':
			depth++
		case ch == '}' || ch == ']':
			depth--
			if depth == 0 {
				return i, nil
			}
		}
	}
	return 0, fmt.Errorf("unbalanced braces in %q", s)
}

func structType(t reflect.Type) (reflect.Type, bool) {
	for t != nil && t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	if t == nil || t.Kind() != reflect.Struct {
		return nil, false
	}
	return t, true
}
