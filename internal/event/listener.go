package event

import (
	"context"
	"fmt"
)

// Handler handles one event.
type Handler func(ctx context.Context, e *Event) error

// Subscriber is implemented by services that expose named handler methods for
// Ref listeners.
type Subscriber interface {
	EventHandler(method string) (Handler, bool)
}

// Listener is either a Ref or a Func.
type Listener interface {
	fmt.Stringer
	listener()
}

// Ref points at a method of a container service. It is resolved on every
// dispatch and can be dumped.
type Ref struct {
	Service string `json:"service" yaml:"service"`
	Method  string `json:"method" yaml:"method"`
}

func (Ref) listener() {}

func (r Ref) String() string { return r.Service + "::" + r.Method }

// Func is an in-process listener. ID identifies it for RemoveListener; Func
// listeners are left out of dumps.
type Func struct {
	ID     string
	Handle Handler
}

func (Func) listener() {}

func (f Func) String() string { return "func:" + f.ID }

func sameListener(a, b Listener) bool {
	switch x := a.(type) {
	case Ref:
		y, ok := b.(Ref)
		return ok && x == y
	case Func:
		y, ok := b.(Func)
		return ok && x.ID == y.ID
	}
	return false
}
