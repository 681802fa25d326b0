package annotation

import (
	"os"
	"reflect"
	"sync"

	"gopkg.in/yaml.v3"

	"bbkernel/internal/apperr"
)

// FileReader reads annotations from a YAML mapping keyed by type name:
//
//	PageController:
//	  class:
//	    - {kind: pagination, count_max: 50}
//	  properties:
//	    Title:
//	      - {kind: column, name: title}
//	  methods:
//	    List:
//	      - {kind: query_param, name: q}
//
// The file is loaded on first use. A malformed file makes every lookup fail
// with *ParseError.
type FileReader struct {
	source string
	load   func() ([]byte, error)

	once    sync.Once
	types   map[string]typeMapping
	loadErr error
}

type typeMapping struct {
	Class      []yaml.Node            `yaml:"class"`
	Properties map[string][]yaml.Node `yaml:"properties"`
	Methods    map[string][]yaml.Node `yaml:"methods"`
}

// NewFileReader reads the mapping at path.
func NewFileReader(path string) *FileReader {
	return &FileReader{source: path, load: func() ([]byte, error) { return os.ReadFile(path) }}
}

// NewBytesReader reads a mapping held in memory; source names it in errors.
func NewBytesReader(source string, b []byte) *FileReader {
	return &FileReader{source: source, load: func() ([]byte, error) { return b, nil }}
}

func (r *FileReader) ClassAnnotations(t reflect.Type) ([]Annotation, error) {
	m, ok, err := r.mapping(t)
	if !ok {
		return nil, err
	}
	return r.decodeList(TypeName(t), m.Class)
}

func (r *FileReader) PropertyAnnotations(t reflect.Type, field string) ([]Annotation, error) {
	m, ok, err := r.mapping(t)
	if !ok {
		return nil, err
	}
	return r.decodeList(TypeName(t)+"."+field, m.Properties[field])
}

func (r *FileReader) MethodAnnotations(t reflect.Type, method string) ([]Annotation, error) {
	m, ok, err := r.mapping(t)
	if !ok {
		return nil, err
	}
	return r.decodeList(TypeName(t)+"::"+method, m.Methods[method])
}

func (r *FileReader) mapping(t reflect.Type) (typeMapping, bool, error) {
	r.once.Do(func() {
		b, err := r.load()
		if err != nil {
			r.loadErr = apperr.Wrap(apperr.CodeInvalidConfig, err, "read annotation mapping")
			return
		}
		types := map[string]typeMapping{}
		if err := yaml.Unmarshal(b, &types); err != nil {
			r.loadErr = parseErr(r.source, err)
			return
		}
		r.types = types
	})
	if r.loadErr != nil {
		return typeMapping{}, false, r.loadErr
	}
	m, ok := r.types[TypeName(t)]
	return m, ok, nil
}

func (r *FileReader) decodeList(target string, nodes []yaml.Node) ([]Annotation, error) {
	out := make([]Annotation, 0, len(nodes))
	for i := range nodes {
		var head struct {
			Kind Kind `yaml:"kind"`
		}
		if err := nodes[i].Decode(&head); err != nil {
			return nil, parseErr(r.source+": "+target, err)
		}
		a, err := decode(head.Kind, &nodes[i])
		if err != nil {
			return nil, parseErr(r.source+": "+target, err)
		}
		out = append(out, a)
	}
	return out, nil
}
