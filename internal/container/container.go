package container

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/rs/zerolog"

	"bbkernel/internal/apperr"
)

// Reserved parameter names.
const (
	ParamIsCompiled   = "is_compiled"
	ParamServicesDump = "services_dump"
)

// Factory builds a service instance from its resolved arguments.
type Factory func(c *Container, args Args) (any, error)

// Locator is the read side of the container handed to restoring services.
type Locator interface {
	Get(id string) (any, error)
	Has(id string) bool
}

// Container holds service definitions, parameters and shared instances.
// It is safe for concurrent use.
type Container struct {
	mu          sync.RWMutex
	definitions map[string]*Definition
	parameters  map[string]any
	services    map[string]any
	factories   map[string]Factory
	blanks      map[string]BlankFunc
	snapshots   map[string][]byte
	compiled    bool
	restored    bool
	log         zerolog.Logger
}

// Option configures a Container.
type Option func(*Container)

// WithFactory registers the factory for a service kind.
func WithFactory(kind string, f Factory) Option {
	return func(c *Container) { c.factories[kind] = f }
}

// WithBlank registers the constructor used to rehydrate a dumpable kind.
func WithBlank(kind string, fn BlankFunc) Option {
	return func(c *Container) { c.blanks[kind] = fn }
}

// WithLogger sets the container's logger.
func WithLogger(l zerolog.Logger) Option {
	return func(c *Container) { c.log = l }
}

// New returns an empty container.
func New(opts ...Option) *Container {
	c := &Container{
		definitions: make(map[string]*Definition),
		parameters:  make(map[string]any),
		services:    make(map[string]any),
		factories:   make(map[string]Factory),
		blanks:      make(map[string]BlankFunc),
		snapshots:   make(map[string][]byte),
		log:         zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// RegisterFactory adds or replaces a kind factory.
func (c *Container) RegisterFactory(kind string, f Factory) {
	c.mu.Lock()
	c.factories[kind] = f
	c.mu.Unlock()
}

// RegisterBlank adds or replaces a kind's rehydration constructor.
func (c *Container) RegisterBlank(kind string, fn BlankFunc) {
	c.mu.Lock()
	c.blanks[kind] = fn
	c.mu.Unlock()
}

// Register adds or replaces a service definition.
func (c *Container) Register(id string, def *Definition) error {
	if id == "" || def == nil {
		return apperr.New(apperr.CodeInvalidArgument, "service id and definition are required")
	}
	if !def.Scope.valid() {
		return apperr.Newf(apperr.CodeInvalidArgument, "service %q: unknown scope %q", id, def.Scope)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.compiled {
		return apperr.Newf(apperr.CodeFrozen, "cannot register %q on a compiled container", id)
	}
	d := def.Clone()
	d.Scope = d.Scope.normalize()
	c.definitions[strings.ToLower(id)] = d
	delete(c.services, strings.ToLower(id))
	return nil
}

// Set injects an instance. Ids without a definition get a synthetic one, so a
// compiled container only accepts instances for synthetic services.
func (c *Container) Set(id string, instance any) error {
	key := strings.ToLower(id)
	c.mu.Lock()
	defer c.mu.Unlock()
	def, ok := c.definitions[key]
	switch {
	case !ok && c.compiled:
		return apperr.Newf(apperr.CodeFrozen, "cannot set undefined service %q on a compiled container", id)
	case !ok:
		c.definitions[key] = &Definition{Scope: ScopeContainer, Synthetic: true}
	case c.compiled && !def.Synthetic:
		return apperr.Newf(apperr.CodeFrozen, "cannot replace non-synthetic service %q on a compiled container", id)
	}
	c.services[key] = instance
	return nil
}

// Has reports whether id is defined.
func (c *Container) Has(id string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	_, ok := c.definitions[strings.ToLower(id)]
	return ok
}

// Definition returns a copy of id's definition.
func (c *Container) Definition(id string) (*Definition, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	d, ok := c.definitions[strings.ToLower(id)]
	return d.Clone(), ok
}

// IDs lists every defined service id, sorted.
func (c *Container) IDs() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	ids := make([]string, 0, len(c.definitions))
	for id := range c.definitions {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Initialized reports whether a shared instance of id exists.
func (c *Container) Initialized(id string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	_, ok := c.services[strings.ToLower(id)]
	return ok
}

// Get returns the service instance for id, building it on first use.
func (c *Container) Get(id string) (any, error) {
	return c.get(strings.ToLower(id), nil, nil)
}

// TaggedService is one FindTaggedServiceIDs result.
type TaggedService struct {
	ID   string
	Tags []Tag
}

// FindTaggedServiceIDs lists services carrying tag name, sorted by id.
func (c *Container) FindTaggedServiceIDs(name string) []TaggedService {
	c.mu.RLock()
	defer c.mu.RUnlock()
	var out []TaggedService
	for id, d := range c.definitions {
		var tags []Tag
		for _, t := range d.Tags {
			if t.Name() == name {
				tags = append(tags, t)
			}
		}
		if len(tags) > 0 {
			out = append(out, TaggedService{ID: id, Tags: tags})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// SetParameter sets a parameter. Names are case-insensitive.
func (c *Container) SetParameter(name string, value any) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.compiled {
		return apperr.Newf(apperr.CodeFrozen, "cannot set parameter %q on a compiled container", name)
	}
	c.parameters[strings.ToLower(name)] = value
	return nil
}

// Parameter returns a parameter with placeholders resolved.
func (c *Container) Parameter(name string) (any, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	v, ok := c.parameters[strings.ToLower(name)]
	if !ok {
		return nil, apperr.Newf(apperr.CodeParameterNotFound, "parameter %q not found", name)
	}
	return c.resolveParams(v, map[string]bool{strings.ToLower(name): true})
}

// HasParameter reports whether name is set.
func (c *Container) HasParameter(name string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	_, ok := c.parameters[strings.ToLower(name)]
	return ok
}

// Parameters returns a copy of the raw parameter bag.
func (c *Container) Parameters() map[string]any {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return cloneValue(c.parameters).(map[string]any)
}

// IsCompiled reports whether Compile has run (or the dump was compiled).
func (c *Container) IsCompiled() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.compiled
}

// IsRestored reports whether the container was rebuilt from a dump.
func (c *Container) IsRestored() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.restored
}

func (c *Container) get(id string, chain []string, rs *RequestScope) (any, error) {
	c.mu.RLock()
	if inst, ok := c.services[id]; ok {
		c.mu.RUnlock()
		return inst, nil
	}
	def, ok := c.definitions[id]
	c.mu.RUnlock()
	if !ok {
		return nil, apperr.Newf(apperr.CodeServiceNotFound, "service %q not found", id)
	}
	for _, seen := range chain {
		if seen == id {
			return nil, apperr.Newf(apperr.CodeCircularReference, "circular reference: %s -> %s", strings.Join(chain, " -> "), id)
		}
	}
	if def.Synthetic {
		return nil, apperr.Newf(apperr.CodeServiceNotFound, "synthetic service %q has not been set", id)
	}
	switch def.Scope {
	case ScopeRequest:
		if rs == nil {
			return nil, apperr.Newf(apperr.CodeServiceNotFound, "service %q is request scoped and no request scope is active", id)
		}
		return rs.getScoped(id, def, extend(chain, id))
	case ScopePrototype:
		return c.build(id, def, extend(chain, id), rs)
	}
	// shared instances never see request-scoped dependencies
	inst, err := c.build(id, def, extend(chain, id), nil)
	if err != nil {
		return nil, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if existing, ok := c.services[id]; ok {
		return existing, nil
	}
	c.services[id] = inst
	return inst, nil
}

func (c *Container) build(id string, def *Definition, chain []string, rs *RequestScope) (any, error) {
	c.mu.RLock()
	snap, hasSnap := c.snapshots[id]
	blank := c.blanks[def.Kind]
	factory, hasFactory := c.factories[def.Kind]
	c.mu.RUnlock()

	if hasSnap && blank != nil {
		inst := blank()
		if err := inst.Restore(c, snap); err != nil {
			return nil, apperr.Wrap(apperr.CodeInvalidDump, err, "restore "+id)
		}
		c.log.Debug().Str("service", id).Msg("service restored from dump")
		return inst, nil
	}
	if !hasFactory {
		return nil, apperr.Newf(apperr.CodeUnknownKind, "service %q: no factory for kind %q", id, def.Kind)
	}
	args, err := c.resolveArgs(def.Arguments, chain, rs)
	if err != nil {
		return nil, err
	}
	inst, err := factory(c, args)
	if err != nil {
		return nil, fmt.Errorf("build %s: %w", id, err)
	}
	return inst, nil
}

func extend(chain []string, id string) []string {
	out := make([]string, len(chain), len(chain)+1)
	copy(out, chain)
	return append(out, id)
}
