package container

import (
	"strings"
	"sync"
)

// RequestScope is a view of the container that shares request-scoped services
// for its lifetime. Container- and prototype-scoped lookups go to the parent.
type RequestScope struct {
	c        *Container
	mu       sync.Mutex
	services map[string]any
}

// NewRequestScope opens a request scope.
func (c *Container) NewRequestScope() *RequestScope {
	return &RequestScope{c: c, services: make(map[string]any)}
}

// Get resolves id within the scope.
func (rs *RequestScope) Get(id string) (any, error) {
	return rs.get(strings.ToLower(id), nil)
}

// Has reports whether id is defined on the parent container.
func (rs *RequestScope) Has(id string) bool { return rs.c.Has(id) }

// Close drops the scope's instances.
func (rs *RequestScope) Close() {
	rs.mu.Lock()
	rs.services = make(map[string]any)
	rs.mu.Unlock()
}

func (rs *RequestScope) get(id string, chain []string) (any, error) {
	return rs.c.get(id, chain, rs)
}

func (rs *RequestScope) getScoped(id string, def *Definition, chain []string) (any, error) {
	rs.mu.Lock()
	if inst, ok := rs.services[id]; ok {
		rs.mu.Unlock()
		return inst, nil
	}
	rs.mu.Unlock()
	inst, err := rs.c.build(id, def, chain, rs)
	if err != nil {
		return nil, err
	}
	rs.mu.Lock()
	defer rs.mu.Unlock()
	if existing, ok := rs.services[id]; ok {
		return existing, nil
	}
	rs.services[id] = inst
	return inst, nil
}
