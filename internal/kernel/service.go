package kernel

import (
	"context"
	"encoding/json"
	"net/http"
	"sort"
	"strings"
	"time"

	"bbkernel/internal/apperr"
	"bbkernel/internal/routing"
	"bbkernel/pkg/types"
)

// Status summarizes the booted kernel.
func (a *Application) Status() types.StatusResponse {
	st := types.StatusResponse{
		State:          "booting",
		Debug:          a.cfg.Debug,
		DumpPath:       a.cfg.DumpPath(),
		ServerTimeUnix: time.Now().Unix(),
	}
	if !a.started.IsZero() {
		st.UptimeSeconds = int64(time.Since(a.started).Seconds())
	}
	if a.Ready() {
		st.State = "ready"
	}
	c := a.Container()
	if c == nil {
		return st
	}
	st.Restored = c.IsRestored()
	st.Compiled = c.IsCompiled()
	st.Services = len(c.IDs())
	st.Listeners = len(a.Listeners().Listeners)
	return st
}

// Services lists service definitions matching f.
func (a *Application) Services(f types.ServiceFilter) types.ServicesResponse {
	resp := types.ServicesResponse{Services: []types.ServiceInfo{}, Start: f.Start, Count: f.Count}
	c := a.Container()
	if c == nil {
		return resp
	}
	var matched []types.ServiceInfo
	for _, id := range c.IDs() {
		if !strings.HasPrefix(id, strings.ToLower(f.Prefix)) {
			continue
		}
		def, ok := c.Definition(id)
		if !ok {
			continue
		}
		info := types.ServiceInfo{
			ID:          id,
			Kind:        def.Kind,
			Scope:       string(def.Scope),
			Synthetic:   def.Synthetic,
			Initialized: c.Initialized(id),
		}
		tagged := f.Tag == ""
		for _, t := range def.Tags {
			info.Tags = append(info.Tags, t.Name())
			tagged = tagged || t.Name() == f.Tag
		}
		if tagged {
			matched = append(matched, info)
		}
	}
	resp.Total = len(matched)
	start := min(max(f.Start, 0), len(matched))
	end := len(matched)
	if f.Count > 0 && start+f.Count < end {
		end = start + f.Count
	}
	resp.Services = append(resp.Services, matched[start:end]...)
	return resp
}

// Listeners lists dispatcher listeners by event name, then invocation order.
func (a *Application) Listeners() types.ListenersResponse {
	resp := types.ListenersResponse{Listeners: []types.ListenerInfo{}}
	d, err := a.Dispatcher()
	if err != nil {
		return resp
	}
	m := d.ListenerMap()
	names := make([]string, 0, len(m))
	for name := range m {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		prios := make([]int, 0, len(m[name]))
		for p := range m[name] {
			prios = append(prios, p)
		}
		sort.Sort(sort.Reverse(sort.IntSlice(prios)))
		for _, p := range prios {
			for _, l := range m[name][p] {
				resp.Listeners = append(resp.Listeners, types.ListenerInfo{Event: name, Priority: p, Listener: l.String()})
			}
		}
	}
	return resp
}

// Routes lists application routes in declaration order.
func (a *Application) Routes() types.RoutesResponse {
	resp := types.RoutesResponse{Routes: []types.RouteInfo{}}
	rt := a.Router()
	if rt == nil {
		return resp
	}
	for _, r := range rt.Routes() {
		resp.Routes = append(resp.Routes, types.RouteInfo{
			Name:         r.Name,
			Path:         r.Path,
			Methods:      r.Methods,
			Action:       r.Action(),
			Requirements: r.Requirements,
		})
	}
	return resp
}

// Router returns the application router, or nil without a routing file.
func (a *Application) Router() *routing.Router {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.router
}

// AppHandler returns the application router as an http.Handler, or nil.
func (a *Application) AppHandler() http.Handler {
	if rt := a.Router(); rt != nil {
		return rt
	}
	return nil
}

// NextSequence increments name, starting at def for a new sequence.
func (a *Application) NextSequence(ctx context.Context, name string, def int64) (types.SequenceValue, error) {
	s, err := a.Sequencer()
	if err != nil {
		return types.SequenceValue{}, err
	}
	v, err := s.Next(ctx, name, def)
	observeSequence("next", err)
	if err != nil {
		return types.SequenceValue{}, err
	}
	return types.SequenceValue{Name: name, Value: v}, nil
}

// RaiseSequence raises name to value; it never lowers it.
func (a *Application) RaiseSequence(ctx context.Context, name string, value int64) (types.SequenceValue, error) {
	s, err := a.Sequencer()
	if err != nil {
		return types.SequenceValue{}, err
	}
	v, err := s.IncreaseTo(ctx, name, value)
	observeSequence("raise", err)
	if err != nil {
		return types.SequenceValue{}, err
	}
	return types.SequenceValue{Name: name, Value: v}, nil
}

// Route actions every application can reference from its routing file.
const (
	ActionStatus    = "kernel.status"
	ActionListeners = "kernel.listeners"
)

func builtinHandlers(a *Application) map[string]routing.Handler {
	return map[string]routing.Handler{
		ActionStatus: func(w http.ResponseWriter, _ *http.Request, _ *routing.Match) error {
			return writeJSON(w, a.Status())
		},
		ActionListeners: func(w http.ResponseWriter, _ *http.Request, _ *routing.Match) error {
			return writeJSON(w, a.Listeners())
		},
	}
}

func writeJSON(w http.ResponseWriter, v any) error {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		return apperr.Wrap(apperr.CodeInternal, err, "failed to encode response")
	}
	return nil
}
