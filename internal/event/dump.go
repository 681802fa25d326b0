package event

import (
	jsoniter "github.com/json-iterator/go"

	"bbkernel/internal/apperr"
	"bbkernel/internal/container"
)

// ApplicationService is the container id of the owning application.
const ApplicationService = "bbapp"

var json = jsoniter.ConfigCompatibleWithStandardLibrary

type snapshot struct {
	Listeners      map[string]map[int][]Ref `json:"listeners"`
	HasApplication bool                     `json:"has_application"`
	HasContainer   bool                     `json:"has_container"`
}

// Dump serializes the Ref listeners and whether application and container
// back-references are set.
func (d *Dispatcher) Dump() ([]byte, error) {
	d.mu.RLock()
	snap := snapshot{
		Listeners:      make(map[string]map[int][]Ref, len(d.listeners)),
		HasApplication: d.app != nil,
		HasContainer:   d.locator != nil,
	}
	for name, byPrio := range d.listeners {
		for p, ls := range byPrio {
			for _, l := range ls {
				ref, ok := l.(Ref)
				if !ok {
					d.log.Warn().Str("event", name).Str("listener", l.String()).Msg("closure listener left out of dump")
					continue
				}
				if snap.Listeners[name] == nil {
					snap.Listeners[name] = make(map[int][]Ref)
				}
				snap.Listeners[name][p] = append(snap.Listeners[name][p], ref)
			}
		}
	}
	d.mu.RUnlock()
	return json.Marshal(snap)
}

// Restore re-registers the dumped listeners through AddListener, highest
// priority first and in dumped order, and rehydrates the back-references the
// dump flags as present.
func (d *Dispatcher) Restore(l container.Locator, dump []byte) error {
	var snap snapshot
	if err := json.Unmarshal(dump, &snap); err != nil {
		return apperr.Wrap(apperr.CodeInvalidDump, err, "decode dispatcher dump")
	}
	if snap.HasContainer {
		d.mu.Lock()
		d.locator = l
		d.mu.Unlock()
	}
	if snap.HasApplication && l != nil && l.Has(ApplicationService) {
		app, err := l.Get(ApplicationService)
		if err != nil {
			return err
		}
		d.mu.Lock()
		d.app = app
		d.mu.Unlock()
	}
	for _, name := range sortedNames(snap.Listeners) {
		byPrio := snap.Listeners[name]
		for _, p := range priorities(byPrio) {
			for _, ref := range byPrio[p] {
				if err := d.AddListener(name, ref, p); err != nil {
					return err
				}
			}
		}
	}
	d.mu.Lock()
	d.restored = true
	d.mu.Unlock()
	return nil
}

// IsRestored reports whether the dispatcher was rebuilt from a dump.
func (d *Dispatcher) IsRestored() bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.restored
}
