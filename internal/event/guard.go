package event

import (
	"context"
	"reflect"
)

type guardKey struct{}

type inFlight struct {
	name   string
	target any
}

// running reports whether a dispatch of name for target is already in
// progress further up ctx's call chain.
func running(ctx context.Context, name string, target any) bool {
	active, _ := ctx.Value(guardKey{}).([]inFlight)
	for _, f := range active {
		if f.name == name && sameTarget(f.target, target) {
			return true
		}
	}
	return false
}

func withRunning(ctx context.Context, name string, target any) context.Context {
	active, _ := ctx.Value(guardKey{}).([]inFlight)
	next := make([]inFlight, len(active), len(active)+1)
	copy(next, active)
	return context.WithValue(ctx, guardKey{}, append(next, inFlight{name: name, target: target}))
}

func sameTarget(a, b any) (same bool) {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	ta, tb := reflect.TypeOf(a), reflect.TypeOf(b)
	if ta != tb || !ta.Comparable() {
		return false
	}
	// interface fields inside a comparable struct may still hold
	// incomparable values
	defer func() {
		if recover() != nil {
			same = false
		}
	}()
	return a == b
}
