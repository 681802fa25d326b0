package container

import (
	"time"

	"github.com/google/uuid"
	jsoniter "github.com/json-iterator/go"

	"bbkernel/internal/apperr"
)

// DumpFormatVersion is bumped whenever the dump layout changes.
const DumpFormatVersion = 1

var codec = jsoniter.Config{
	EscapeHTML:             true,
	SortMapKeys:            true,
	ValidateJsonRawMessage: true,
	UseNumber:              true,
}.Froze()

// Dumpable services snapshot their runtime state into the container dump and
// are rebuilt from it on restore without running their factory.
type Dumpable interface {
	Dump() ([]byte, error)
	Restore(l Locator, dump []byte) error
	IsRestored() bool
}

// BlankFunc returns a zero instance ready for Restore.
type BlankFunc func() Dumpable

// Dump is the serialized form of a compiled container.
type Dump struct {
	Version    int                            `json:"version"`
	BuildID    string                         `json:"build_id"`
	CreatedAt  time.Time                      `json:"created_at"`
	Parameters map[string]any                 `json:"parameters"`
	Services   map[string]*Definition         `json:"services"`
	Snapshots  map[string]jsoniter.RawMessage `json:"snapshots,omitempty"`
}

// Dump captures definitions, parameters and the snapshots of every
// instantiated Dumpable service. The container must be compiled.
func (c *Container) Dump() (*Dump, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if !c.compiled {
		return nil, apperr.New(apperr.CodeInvalidDump, "container must be compiled before dumping")
	}
	d := &Dump{
		Version:    DumpFormatVersion,
		BuildID:    uuid.NewString(),
		CreatedAt:  time.Now().UTC(),
		Parameters: cloneValue(c.parameters).(map[string]any),
		Services:   make(map[string]*Definition, len(c.definitions)),
		Snapshots:  make(map[string]jsoniter.RawMessage),
	}
	d.Parameters[ParamServicesDump] = true
	d.Parameters[ParamIsCompiled] = c.compiled
	for id, def := range c.definitions {
		d.Services[id] = def.Clone()
	}
	for _, id := range sortedKeys(c.services) {
		dd, ok := c.services[id].(Dumpable)
		if !ok || c.definitions[id].Synthetic {
			continue
		}
		snap, err := dd.Dump()
		if err != nil {
			return nil, apperr.Wrap(apperr.CodeInvalidDump, err, "dump service "+id)
		}
		d.Snapshots[id] = snap
	}
	return d, nil
}

// Encode serializes the dump.
func (d *Dump) Encode() ([]byte, error) {
	b, err := codec.MarshalIndent(d, "", "  ")
	if err != nil {
		return nil, apperr.Wrap(apperr.CodeInvalidDump, err, "encode container dump")
	}
	return b, nil
}

// DecodeDump parses an encoded dump.
func DecodeDump(b []byte) (*Dump, error) {
	var d Dump
	if err := codec.Unmarshal(b, &d); err != nil {
		return nil, apperr.Wrap(apperr.CodeInvalidDump, err, "decode container dump")
	}
	if d.Version != DumpFormatVersion {
		return nil, apperr.Newf(apperr.CodeInvalidDump, "unsupported dump version %d", d.Version)
	}
	if d.Services == nil {
		d.Services = map[string]*Definition{}
	}
	if d.Parameters == nil {
		d.Parameters = map[string]any{}
	}
	return &d, nil
}

// Restore rebuilds a container from d. Factories and blanks are registered
// through opts exactly as for New. The result reports IsRestored and keeps the
// dumped compiled flag; synthetic services must be Set again.
func Restore(d *Dump, opts ...Option) (*Container, error) {
	if d == nil {
		return nil, apperr.New(apperr.CodeInvalidDump, "nil dump")
	}
	c := New(opts...)
	for id, def := range d.Services {
		if def == nil {
			return nil, apperr.Newf(apperr.CodeInvalidDump, "service %q has no definition", id)
		}
		nd := def.Clone()
		nd.Scope = nd.Scope.normalize()
		if !nd.Synthetic {
			_, hasFactory := c.factories[nd.Kind]
			_, hasBlank := c.blanks[nd.Kind]
			if !hasFactory && !hasBlank {
				return nil, apperr.Newf(apperr.CodeUnknownKind, "service %q: no factory for kind %q", id, nd.Kind)
			}
		}
		c.definitions[id] = nd
	}
	c.parameters = cloneValue(d.Parameters).(map[string]any)
	for id, snap := range d.Snapshots {
		c.snapshots[id] = []byte(snap)
	}
	compiled, _ := c.parameters[ParamIsCompiled].(bool)
	c.compiled = compiled
	c.restored = true
	c.log.Debug().Str("build_id", d.BuildID).Int("services", len(c.definitions)).Msg("container restored")
	return c, nil
}
