// Package event implements the kernel's event dispatcher. Listeners are
// either references to container services or in-process closures; only the
// former survive a container dump.
package event

import (
	"reflect"
	"strings"
)

// Event is passed to every listener of a dispatch.
type Event struct {
	Name   string
	Target any
	Args   map[string]any

	stopped bool
}

// New returns an event about target.
func New(target any, args map[string]any) *Event {
	return &Event{Target: target, Args: args}
}

// Arg returns an argument, nil when absent.
func (e *Event) Arg(key string) any {
	if e.Args == nil {
		return nil
	}
	return e.Args[key]
}

// StopPropagation prevents later listeners from running.
func (e *Event) StopPropagation() { e.stopped = true }

// IsPropagationStopped reports whether a listener stopped the dispatch.
func (e *Event) IsPropagationStopped() bool { return e.stopped }

// TargetName returns the lower-cased type name of target, without package or
// pointer, or "" for nil.
func TargetName(target any) string {
	if target == nil {
		return ""
	}
	t := reflect.TypeOf(target)
	for t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	return strings.ToLower(t.Name())
}
