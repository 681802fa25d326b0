package event

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bbkernel/internal/apperr"
)

func record(calls *[]string, id string) Func {
	return Func{ID: id, Handle: func(context.Context, *Event) error {
		*calls = append(*calls, id)
		return nil
	}}
}

func TestListeners_Order(t *testing.T) {
	d := NewDispatcher()
	var calls []string
	require.NoError(t, d.AddListener("page.render", record(&calls, "low"), -10))
	require.NoError(t, d.AddListener("page.render", record(&calls, "first"), 5))
	require.NoError(t, d.AddListener("page.render", record(&calls, "default"), DefaultPriority))
	require.NoError(t, d.AddListener("page.render", record(&calls, "second"), 5))

	var ids []string
	for _, l := range d.Listeners("page.render") {
		ids = append(ids, l.(Func).ID)
	}
	assert.Equal(t, []string{"first", "second", "default", "low"}, ids)

	require.NoError(t, d.Dispatch(context.Background(), "page.render", nil))
	assert.Equal(t, ids, calls)
	assert.True(t, d.HasListeners("page.render"))
	assert.True(t, d.HasListeners(""))
	assert.False(t, d.HasListeners("page.save"))
}

func TestAddListener_Rejects(t *testing.T) {
	d := NewDispatcher()
	assert.Error(t, d.AddListener("", Ref{Service: "s", Method: "m"}, 0))
	assert.Error(t, d.AddListener("x", nil, 0))
	assert.Error(t, d.AddListener("x", Func{ID: "nil"}, 0))
}

func TestRemoveListener(t *testing.T) {
	d := NewDispatcher()
	var calls []string
	ref := Ref{Service: "svc", Method: "onX"}
	require.NoError(t, d.AddListener("x", ref, 1))
	require.NoError(t, d.AddListener("x", record(&calls, "f"), 0))
	require.NoError(t, d.AddListener("x", ref, 0))

	d.RemoveListener("x", ref)
	ls := d.Listeners("x")
	require.Len(t, ls, 1)
	assert.Equal(t, "func:f", ls[0].String())

	d.RemoveListener("x", Func{ID: "f"})
	assert.False(t, d.HasListeners("x"))
	assert.Empty(t, d.ListenerMap())
}

func TestDispatch_StopAndErrors(t *testing.T) {
	d := NewDispatcher()
	var calls []string
	require.NoError(t, d.AddListener("e", Func{ID: "stopper", Handle: func(_ context.Context, e *Event) error {
		calls = append(calls, "stopper")
		e.StopPropagation()
		return nil
	}}, 10))
	require.NoError(t, d.AddListener("e", record(&calls, "never"), 0))
	ev := New(nil, nil)
	require.NoError(t, d.Dispatch(context.Background(), "e", ev))
	assert.Equal(t, []string{"stopper"}, calls)
	assert.True(t, ev.IsPropagationStopped())
	assert.Equal(t, "e", ev.Name)

	boom := apperr.New(apperr.CodeDirectoryWritable, "not writable")
	require.NoError(t, d.AddListener("fail", Func{ID: "a", Handle: func(context.Context, *Event) error { return boom }}, 1))
	require.NoError(t, d.AddListener("fail", record(&calls, "after"), 0))
	err := d.Dispatch(context.Background(), "fail", nil)
	assert.True(t, errors.Is(err, boom))
	assert.True(t, apperr.HasCode(err, apperr.CodeDirectoryWritable))
	assert.NotContains(t, calls, "after")

	require.NoError(t, d.AddListener("orphan", Ref{Service: "svc", Method: "m"}, 0))
	err = d.Dispatch(context.Background(), "orphan", nil)
	assert.True(t, apperr.HasCode(err, apperr.CodeServiceNotFound))
}

type page struct{ uid string }

func TestTrigger_PrefixesTargetType(t *testing.T) {
	d := NewDispatcher()
	var got *Event
	require.NoError(t, d.AddListener("page.prerender", Func{ID: "f", Handle: func(_ context.Context, e *Event) error {
		got = e
		return nil
	}}, 0))
	p := &page{uid: "p1"}
	require.NoError(t, d.Trigger(context.Background(), "prerender", p, map[string]any{"mode": "full"}))
	require.NotNil(t, got)
	assert.Equal(t, "page.prerender", got.Name)
	assert.Same(t, p, got.Target)
	assert.Equal(t, "full", got.Arg("mode"))
	assert.Nil(t, got.Arg("absent"))

	assert.Equal(t, "", TargetName(nil))
	assert.Equal(t, "page", TargetName(page{}))
}

func TestDispatch_ReentrancyGuard(t *testing.T) {
	d := NewDispatcher()
	p1, p2 := &page{uid: "1"}, &page{uid: "2"}
	var visits []string
	require.NoError(t, d.AddListener("page.flush", Func{ID: "flush", Handle: func(ctx context.Context, e *Event) error {
		target := e.Target.(*page)
		visits = append(visits, target.uid)
		if target == p1 {
			// nested dispatch for the same page is skipped, another page runs
			if err := d.Dispatch(ctx, "page.flush", New(p1, nil)); err != nil {
				return err
			}
			return d.Dispatch(ctx, "page.flush", New(p2, nil))
		}
		return nil
	}}, 0))
	require.NoError(t, d.Dispatch(context.Background(), "page.flush", New(p1, nil)))
	assert.Equal(t, []string{"1", "2"}, visits)

	// the guard does not leak into unrelated dispatches
	visits = nil
	require.NoError(t, d.Dispatch(context.Background(), "page.flush", New(p1, nil)))
	assert.Equal(t, []string{"1", "2"}, visits)

	assert.False(t, sameTarget(map[string]any{}, map[string]any{}))
	assert.True(t, sameTarget(nil, nil))
	assert.True(t, sameTarget("a", "a"))
}

func TestMethodOr(t *testing.T) {
	assert.Equal(t, "onPageRender", methodOr("", "page.render"))
	assert.Equal(t, "custom", methodOr("custom", "page.render"))
	assert.Equal(t, "onBbapplicationInit", methodOr("", "bbapplication.init"))
}

func TestDispatcher_Concurrent(t *testing.T) {
	d := NewDispatcher()
	var hits atomic.Int64
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(2)
		go func(i int) {
			defer wg.Done()
			assert.NoError(t, d.AddListener("tick", Func{ID: fmt.Sprint(i), Handle: func(context.Context, *Event) error {
				hits.Add(1)
				return nil
			}}, i%3))
		}(i)
		go func() {
			defer wg.Done()
			assert.NoError(t, d.Dispatch(context.Background(), "tick", nil))
		}()
	}
	wg.Wait()
	assert.Len(t, d.Listeners("tick"), 20)

	hits.Store(0)
	require.NoError(t, d.Dispatch(context.Background(), "tick", nil))
	assert.Equal(t, int64(20), hits.Load())
}
