// Package kernel boots the application: it builds or restores the service
// container, wires the built-in services and announces the boot on the
// event dispatcher.
package kernel

import (
	"context"
	"errors"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"bbkernel/internal/annotation"
	"bbkernel/internal/apperr"
	"bbkernel/internal/config"
	"bbkernel/internal/container"
	"bbkernel/internal/event"
	"bbkernel/internal/routing"
	"bbkernel/internal/sequence"
)

// InitEvent is dispatched once the container and the dispatcher are ready.
const InitEvent = "bbapplication.init"

// Built-in service ids and kinds.
const (
	ListenerServiceID  = "container.listener"
	ListenerKind       = "container.listener"
	SequencerServiceID = "sequence.sequencer"
	SequencerKind      = "sequence.sequencer"
)

// Parameters the kernel sets on freshly built containers.
const (
	ParamDebug             = "kernel.debug"
	ParamContainerDir      = "container.dir"
	ParamContainerFilename = "container.filename"
)

// Application is the booted kernel.
type Application struct {
	cfg      config.Config
	log      zerolog.Logger
	closures []container.Closure
	kinds    []container.Option
	handlers map[string]routing.Handler
	registry *annotation.Registry

	mu        sync.RWMutex
	container *container.Container
	seq       *sequence.Sequencer
	closeSeq  func() error
	reader    *annotation.ChainReader
	router    *routing.Router
	started   time.Time
	ready     atomic.Bool
}

// Option configures an Application.
type Option func(*Application)

// WithLogger sets the application logger.
func WithLogger(l zerolog.Logger) Option {
	return func(a *Application) { a.log = l }
}

// WithClosure adds a service source run after the configuration directory is
// loaded.
func WithClosure(fn container.Closure) Option {
	return func(a *Application) { a.closures = append(a.closures, fn) }
}

// WithKinds registers additional factories and blanks on the container.
func WithKinds(opts ...container.Option) Option {
	return func(a *Application) { a.kinds = append(a.kinds, opts...) }
}

// WithHandler registers a route action.
func WithHandler(action string, h routing.Handler) Option {
	return func(a *Application) { a.handlers[action] = h }
}

// WithSequencer uses s instead of opening the configured database.
func WithSequencer(s *sequence.Sequencer) Option {
	return func(a *Application) { a.seq = s }
}

// WithAnnotations adds programmatic annotations to the reader chain.
func WithAnnotations(r *annotation.Registry) Option {
	return func(a *Application) { a.registry = r }
}

// New returns an application for cfg. Call Boot before use.
func New(cfg config.Config, opts ...Option) *Application {
	a := &Application{
		cfg:      cfg,
		log:      zerolog.Nop(),
		handlers: map[string]routing.Handler{},
		registry: annotation.NewRegistry(),
	}
	for _, opt := range opts {
		opt(a)
	}
	for action, h := range builtinHandlers(a) {
		if _, ok := a.handlers[action]; !ok {
			a.handlers[action] = h
		}
	}
	return a
}

// Boot restores the container from its dump when one exists outside debug
// mode, otherwise builds it from the configuration directory and closures.
// It then dispatches InitEvent; a listener error aborts the boot.
func (a *Application) Boot(ctx context.Context) error {
	a.started = time.Now()
	if a.seq == nil && a.cfg.Database.Driver != "" {
		seq, closeFn, err := sequence.Open(ctx, a.cfg.Database, a.log)
		if err != nil {
			return err
		}
		a.seq, a.closeSeq = seq, closeFn
	}

	c := a.restore()
	if c == nil {
		var err error
		if c, err = a.build(); err != nil {
			return err
		}
	}
	if err := c.Set(event.ApplicationService, a); err != nil {
		return err
	}
	a.mu.Lock()
	a.container = c
	a.mu.Unlock()

	if err := a.loadExtras(); err != nil {
		return err
	}

	d, err := a.Dispatcher()
	if err != nil {
		return err
	}
	if err := d.Dispatch(ctx, InitEvent, event.New(a, nil)); err != nil {
		return err
	}
	a.ready.Store(true)
	a.log.Info().
		Bool("restored", c.IsRestored()).
		Bool("compiled", c.IsCompiled()).
		Int("services", len(c.IDs())).
		Dur("took", time.Since(a.started)).
		Msg("application booted")
	return nil
}

func (a *Application) options() []container.Option {
	opts := []container.Option{container.WithLogger(a.log)}
	opts = append(opts, event.Kinds(a.log)...)
	opts = append(opts,
		container.WithFactory(ListenerKind, listenerFactory(a.log)),
		container.WithFactory(SequencerKind, a.sequencerFactory),
	)
	return append(opts, a.kinds...)
}

// restore returns nil when there is no usable dump.
func (a *Application) restore() *container.Container {
	if a.cfg.Debug {
		return nil
	}
	path := a.cfg.DumpPath()
	b, err := os.ReadFile(path)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			a.log.Warn().Err(err).Str("path", path).Msg("container dump unreadable, rebuilding")
		}
		return nil
	}
	d, err := container.DecodeDump(b)
	if err == nil {
		var c *container.Container
		if c, err = container.Restore(d, a.options()...); err == nil {
			if a.seq != nil && !c.Has(SequencerServiceID) {
				a.log.Warn().Str("path", path).Msg("container dump predates the database configuration, rebuilding")
				return nil
			}
			containerRestores.Inc()
			a.log.Debug().Str("path", path).Str("build_id", d.BuildID).Msg("container restored from dump")
			return c
		}
	}
	a.log.Warn().Err(err).Str("path", path).Msg("container dump unusable, rebuilding")
	return nil
}

func (a *Application) build() (*container.Container, error) {
	c := container.New(a.options()...)
	for name, v := range map[string]any{
		ParamDebug:             a.cfg.Debug,
		ParamContainerDir:      a.cfg.ContainerDir,
		ParamContainerFilename: a.cfg.ContainerFilename,
	} {
		if err := c.SetParameter(name, v); err != nil {
			return nil, err
		}
	}
	if a.cfg.ConfigDir != "" {
		n, err := container.LoadDir(c, a.cfg.ConfigDir)
		if err != nil {
			return nil, err
		}
		a.log.Debug().Str("dir", a.cfg.ConfigDir).Int("files", n).Msg("service definitions loaded")
	}
	for _, fn := range a.closures {
		if err := container.LoadFunc(c, fn); err != nil {
			return nil, err
		}
	}
	if err := registerBuiltins(c, a.seq != nil); err != nil {
		return nil, err
	}
	return c, nil
}

func registerBuiltins(c *container.Container, withSequencer bool) error {
	defs := map[string]*container.Definition{
		event.ServiceID: {Kind: event.Kind},
		ListenerServiceID: {
			Kind: ListenerKind,
			Arguments: []any{
				"%" + ParamContainerDir + "%",
				"%" + ParamContainerFilename + "%",
				"%" + ParamDebug + "%",
			},
			Tags: []container.Tag{{
				"name":     event.ListenerTag,
				"event":    InitEvent,
				"method":   listenerMethod,
				"priority": 0,
			}},
		},
	}
	if withSequencer {
		defs[SequencerServiceID] = &container.Definition{Kind: SequencerKind}
	}
	for id, def := range defs {
		if c.Has(id) {
			continue
		}
		if err := c.Register(id, def); err != nil {
			return err
		}
	}
	return nil
}

func (a *Application) sequencerFactory(*container.Container, container.Args) (any, error) {
	if a.seq == nil {
		return nil, apperr.New(apperr.CodeConnectionFailed, "no database configured for the sequencer")
	}
	return a.seq, nil
}

// loadExtras builds the annotation reader chain and the application router.
func (a *Application) loadExtras() error {
	chain := annotation.NewChain(annotation.NewTagReader())
	if a.cfg.AnnotationsFile != "" {
		chain.Add(annotation.NewFileReader(a.cfg.AnnotationsFile))
	}
	chain.Add(a.registry)

	var router *routing.Router
	if a.cfg.RoutingFile != "" {
		routes, err := routing.LoadFile(a.cfg.RoutingFile)
		if err != nil {
			return err
		}
		if router, err = routing.New(routes, a.handlers); err != nil {
			return err
		}
		a.log.Debug().Str("file", a.cfg.RoutingFile).Int("routes", len(routes)).Msg("routes loaded")
	}
	a.mu.Lock()
	a.reader, a.router = chain, router
	a.mu.Unlock()
	return nil
}

// Config returns the configuration the application was created with.
func (a *Application) Config() config.Config { return a.cfg }

// Container returns the booted container, or nil before Boot.
func (a *Application) Container() *container.Container {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.container
}

// Dispatcher returns the container's event dispatcher.
func (a *Application) Dispatcher() (*event.Dispatcher, error) {
	c := a.Container()
	if c == nil {
		return nil, apperr.New(apperr.CodeServiceNotFound, "application is not booted")
	}
	svc, err := c.Get(event.ServiceID)
	if err != nil {
		return nil, err
	}
	d, ok := svc.(*event.Dispatcher)
	if !ok {
		return nil, apperr.Newf(apperr.CodeInvalidArgument, "service %q is %T, not a dispatcher", event.ServiceID, svc)
	}
	return d, nil
}

// Sequencer returns the sequencer service.
func (a *Application) Sequencer() (*sequence.Sequencer, error) {
	c := a.Container()
	if c == nil {
		return nil, apperr.New(apperr.CodeServiceNotFound, "application is not booted")
	}
	if !c.Has(SequencerServiceID) {
		return nil, apperr.New(apperr.CodeServiceNotFound, "no sequencer configured")
	}
	svc, err := c.Get(SequencerServiceID)
	if err != nil {
		return nil, err
	}
	s, ok := svc.(*sequence.Sequencer)
	if !ok {
		return nil, apperr.Newf(apperr.CodeInvalidArgument, "service %q is %T, not a sequencer", SequencerServiceID, svc)
	}
	return s, nil
}

// AnnotationReader returns the reader chain: struct tags, then the
// annotations file when configured, then programmatic annotations.
func (a *Application) AnnotationReader() annotation.Reader {
	a.mu.RLock()
	defer a.mu.RUnlock()
	if a.reader == nil {
		return annotation.NewChain(annotation.NewTagReader(), a.registry)
	}
	return a.reader
}

// Ready reports whether Boot completed.
func (a *Application) Ready() bool { return a.ready.Load() }

// DumpPath is where the compiled container is written.
func (a *Application) DumpPath() string { return a.cfg.DumpPath() }

// Close releases the database connection opened by Boot.
func (a *Application) Close() error {
	a.ready.Store(false)
	if a.closeSeq != nil {
		return a.closeSeq()
	}
	return nil
}
