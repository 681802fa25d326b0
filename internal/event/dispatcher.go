package event

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/rs/zerolog"

	"bbkernel/internal/apperr"
	"bbkernel/internal/container"
)

// DefaultPriority is used by callers that do not care about ordering.
const DefaultPriority = 0

// Dispatcher maps event names to prioritized listeners. It is safe for
// concurrent use.
type Dispatcher struct {
	mu        sync.RWMutex
	listeners map[string]map[int][]Listener
	locator   container.Locator
	app       any
	restored  bool
	log       zerolog.Logger
}

// Option configures a Dispatcher.
type Option func(*Dispatcher)

// WithLocator sets the container used to resolve Ref listeners.
func WithLocator(l container.Locator) Option {
	return func(d *Dispatcher) { d.locator = l }
}

// WithApplication sets the owning application.
func WithApplication(app any) Option {
	return func(d *Dispatcher) { d.app = app }
}

// WithLogger sets the dispatcher's logger.
func WithLogger(l zerolog.Logger) Option {
	return func(d *Dispatcher) { d.log = l }
}

// NewDispatcher returns an empty dispatcher.
func NewDispatcher(opts ...Option) *Dispatcher {
	d := &Dispatcher{
		listeners: make(map[string]map[int][]Listener),
		log:       zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Application returns the owning application, nil when unset.
func (d *Dispatcher) Application() any {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.app
}

// Locator returns the container the dispatcher resolves services from.
func (d *Dispatcher) Locator() container.Locator {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.locator
}

// AddListener registers l for name. Higher priorities run first; listeners
// with equal priority run in registration order.
func (d *Dispatcher) AddListener(name string, l Listener, priority int) error {
	if name == "" || l == nil {
		return apperr.New(apperr.CodeInvalidArgument, "event name and listener are required")
	}
	if f, ok := l.(Func); ok && f.Handle == nil {
		return apperr.Newf(apperr.CodeInvalidArgument, "listener %s has no handler", f)
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	byPrio, ok := d.listeners[name]
	if !ok {
		byPrio = make(map[int][]Listener)
		d.listeners[name] = byPrio
	}
	byPrio[priority] = append(byPrio[priority], l)
	return nil
}

// RemoveListener drops every registration of l for name.
func (d *Dispatcher) RemoveListener(name string, l Listener) {
	d.mu.Lock()
	defer d.mu.Unlock()
	byPrio := d.listeners[name]
	for prio, ls := range byPrio {
		kept := ls[:0:0]
		for _, x := range ls {
			if !sameListener(x, l) {
				kept = append(kept, x)
			}
		}
		if len(kept) == 0 {
			delete(byPrio, prio)
		} else {
			byPrio[prio] = kept
		}
	}
	if len(byPrio) == 0 {
		delete(d.listeners, name)
	}
}

// Listeners returns name's listeners in call order.
func (d *Dispatcher) Listeners(name string) []Listener {
	d.mu.RLock()
	defer d.mu.RUnlock()
	byPrio := d.listeners[name]
	var out []Listener
	for _, p := range priorities(byPrio) {
		out = append(out, byPrio[p]...)
	}
	return out
}

// ListenerMap returns a copy of every registration: event name, then
// priority, then listeners in registration order.
func (d *Dispatcher) ListenerMap() map[string]map[int][]Listener {
	d.mu.RLock()
	defer d.mu.RUnlock()
	out := make(map[string]map[int][]Listener, len(d.listeners))
	for name, byPrio := range d.listeners {
		cp := make(map[int][]Listener, len(byPrio))
		for p, ls := range byPrio {
			cp[p] = append([]Listener(nil), ls...)
		}
		out[name] = cp
	}
	return out
}

// HasListeners reports whether name has listeners; with name "" whether any
// event has.
func (d *Dispatcher) HasListeners(name string) bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if name == "" {
		return len(d.listeners) > 0
	}
	return len(d.listeners[name]) > 0
}

// Dispatch calls name's listeners with e until one fails or stops
// propagation, and returns the first error. A dispatch of the same name for
// the same target nested inside itself is skipped.
func (d *Dispatcher) Dispatch(ctx context.Context, name string, e *Event) error {
	if e == nil {
		e = &Event{}
	}
	e.Name = name
	if running(ctx, name, e.Target) {
		d.log.Debug().Str("event", name).Msg("nested dispatch skipped")
		return nil
	}
	ctx = withRunning(ctx, name, e.Target)
	for _, l := range d.Listeners(name) {
		if err := ctx.Err(); err != nil {
			return err
		}
		h, err := d.handler(l)
		if err != nil {
			return err
		}
		if err := h(ctx, e); err != nil {
			return fmt.Errorf("listener %s on %s: %w", l, name, err)
		}
		if e.IsPropagationStopped() {
			break
		}
	}
	return nil
}

// Trigger dispatches "<target type>.<name>", for example page.prerender.
func (d *Dispatcher) Trigger(ctx context.Context, name string, target any, args map[string]any) error {
	full := name
	if prefix := TargetName(target); prefix != "" {
		full = prefix + "." + name
	}
	return d.Dispatch(ctx, full, New(target, args))
}

func (d *Dispatcher) handler(l Listener) (Handler, error) {
	switch x := l.(type) {
	case Func:
		return x.Handle, nil
	case Ref:
		loc := d.Locator()
		if loc == nil {
			return nil, apperr.Newf(apperr.CodeServiceNotFound, "listener %s: dispatcher has no container", x)
		}
		svc, err := loc.Get(x.Service)
		if err != nil {
			return nil, err
		}
		sub, ok := svc.(Subscriber)
		if !ok {
			return nil, apperr.Newf(apperr.CodeInvalidArgument, "listener %s: service %T does not handle events", x, svc)
		}
		h, ok := sub.EventHandler(x.Method)
		if !ok {
			return nil, apperr.Newf(apperr.CodeInvalidArgument, "listener %s: unknown method", x)
		}
		return h, nil
	}
	return nil, apperr.Newf(apperr.CodeInvalidArgument, "unsupported listener %T", l)
}

// priorities returns byPrio's keys, highest first.
func priorities[V any](byPrio map[int]V) []int {
	out := make([]int, 0, len(byPrio))
	for p := range byPrio {
		out = append(out, p)
	}
	sort.Sort(sort.Reverse(sort.IntSlice(out)))
	return out
}
