package container

import (
	"strings"

	"bbkernel/internal/apperr"
)

// Compile resolves parameter placeholders in parameters and definitions,
// checks that every required reference exists, rejects reference cycles and
// scope widening, and freezes the container. Compiling twice is a no-op.
func (c *Container) Compile() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.compiled {
		return nil
	}

	params := make(map[string]any, len(c.parameters))
	for _, name := range sortedKeys(c.parameters) {
		v, err := c.resolveParams(c.parameters[name], map[string]bool{name: true})
		if err != nil {
			return err
		}
		params[name] = v
	}

	defs := make(map[string]*Definition, len(c.definitions))
	for _, id := range sortedKeys(c.definitions) {
		d := c.definitions[id].Clone()
		resolved, err := c.resolveParams(d.Arguments, map[string]bool{})
		if err != nil {
			return apperr.Wrap(apperr.CodeInvalidArgument, err, "service "+id)
		}
		if resolved != nil {
			d.Arguments = resolved.([]any)
		}
		if !d.Synthetic {
			if _, ok := c.factories[d.Kind]; !ok {
				if _, ok := c.blanks[d.Kind]; !ok {
					return apperr.Newf(apperr.CodeUnknownKind, "service %q: no factory for kind %q", id, d.Kind)
				}
			}
		}
		defs[id] = d
	}

	if err := checkReferences(defs); err != nil {
		return err
	}

	c.parameters = params
	c.definitions = defs
	c.parameters[ParamIsCompiled] = true
	c.compiled = true
	c.log.Debug().Int("services", len(defs)).Msg("container compiled")
	return nil
}

func checkReferences(defs map[string]*Definition) error {
	const (
		unvisited = iota
		visiting
		done
	)
	state := make(map[string]int, len(defs))
	var path []string

	var visit func(id string) error
	visit = func(id string) error {
		switch state[id] {
		case visiting:
			return apperr.Newf(apperr.CodeCircularReference, "circular reference: %s -> %s", strings.Join(path, " -> "), id)
		case done:
			return nil
		}
		state[id] = visiting
		path = append(path, id)
		d := defs[id]
		var refs []Reference
		references(d.Arguments, &refs)
		for _, r := range refs {
			target := strings.ToLower(r.ID)
			td, ok := defs[target]
			if !ok {
				if r.Optional {
					continue
				}
				return apperr.Newf(apperr.CodeServiceNotFound, "service %q references missing service %q", id, r.ID)
			}
			if d.Scope == ScopeContainer && td.Scope == ScopeRequest {
				return apperr.Newf(apperr.CodeInvalidArgument, "service %q (container scope) cannot depend on request-scoped %q", id, r.ID)
			}
			if err := visit(target); err != nil {
				return err
			}
		}
		path = path[:len(path)-1]
		state[id] = done
		return nil
	}

	for _, id := range sortedKeys(defs) {
		if err := visit(id); err != nil {
			return err
		}
	}
	return nil
}
