package annotation

import (
	"reflect"
	"sync"
)

// Registry holds annotations declared in code.
type Registry struct {
	mu      sync.RWMutex
	class   map[reflect.Type][]Annotation
	props   map[reflect.Type]map[string][]Annotation
	methods map[reflect.Type]map[string][]Annotation
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		class:   make(map[reflect.Type][]Annotation),
		props:   make(map[reflect.Type]map[string][]Annotation),
		methods: make(map[reflect.Type]map[string][]Annotation),
	}
}

// Class appends class annotations for t.
func (r *Registry) Class(t reflect.Type, anns ...Annotation) *Registry {
	r.mu.Lock()
	defer r.mu.Unlock()
	t = deref(t)
	r.class[t] = append(r.class[t], anns...)
	return r
}

// Property appends annotations for a field of t.
func (r *Registry) Property(t reflect.Type, field string, anns ...Annotation) *Registry {
	r.mu.Lock()
	defer r.mu.Unlock()
	add(r.props, deref(t), field, anns)
	return r
}

// Method appends annotations for a method of t.
func (r *Registry) Method(t reflect.Type, method string, anns ...Annotation) *Registry {
	r.mu.Lock()
	defer r.mu.Unlock()
	add(r.methods, deref(t), method, anns)
	return r
}

func (r *Registry) ClassAnnotations(t reflect.Type) ([]Annotation, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]Annotation(nil), r.class[deref(t)]...), nil
}

func (r *Registry) PropertyAnnotations(t reflect.Type, field string) ([]Annotation, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]Annotation(nil), r.props[deref(t)][field]...), nil
}

func (r *Registry) MethodAnnotations(t reflect.Type, method string) ([]Annotation, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]Annotation(nil), r.methods[deref(t)][method]...), nil
}

func add(m map[reflect.Type]map[string][]Annotation, t reflect.Type, name string, anns []Annotation) {
	byName, ok := m[t]
	if !ok {
		byName = make(map[string][]Annotation)
		m[t] = byName
	}
	byName[name] = append(byName[name], anns...)
}

func deref(t reflect.Type) reflect.Type {
	for t != nil && t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	return t
}
