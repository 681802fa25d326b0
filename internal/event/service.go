package event

import (
	"sort"
	"strings"

	"github.com/rs/zerolog"

	"bbkernel/internal/apperr"
	"bbkernel/internal/container"
)

// Container wiring.
const (
	Kind        = "event.dispatcher"
	ServiceID   = "event.dispatcher"
	ListenerTag = "event.listener"
	// EventsParameter holds listeners declared in configuration:
	// {event: [{service, method, priority}, ...]}.
	EventsParameter = "events"
)

// Kinds returns the container options that build and restore dispatchers.
func Kinds(log zerolog.Logger) []container.Option {
	return []container.Option{
		container.WithFactory(Kind, Factory(log)),
		container.WithBlank(Kind, func() container.Dumpable {
			return NewDispatcher(WithLogger(log))
		}),
	}
}

// Factory builds a dispatcher wired to the container. Listeners come from the
// events parameter and from services tagged event.listener
// (attributes: event, method, priority).
func Factory(log zerolog.Logger) container.Factory {
	return func(c *container.Container, _ container.Args) (any, error) {
		opts := []Option{WithLocator(c), WithLogger(log)}
		if c.Has(ApplicationService) && c.Initialized(ApplicationService) {
			app, err := c.Get(ApplicationService)
			if err != nil {
				return nil, err
			}
			opts = append(opts, WithApplication(app))
		}
		d := NewDispatcher(opts...)
		if err := addConfigured(d, c); err != nil {
			return nil, err
		}
		for _, ts := range c.FindTaggedServiceIDs(ListenerTag) {
			for _, tag := range ts.Tags {
				name := tag.Attr("event")
				if name == "" {
					return nil, apperr.Newf(apperr.CodeInvalidArgument, "service %q: %s tag without event", ts.ID, ListenerTag)
				}
				prio, err := priority(tag["priority"])
				if err != nil {
					return nil, apperr.Wrap(apperr.CodeInvalidArgument, err, "service "+ts.ID)
				}
				if err := d.AddListener(name, Ref{Service: ts.ID, Method: methodOr(tag.Attr("method"), name)}, prio); err != nil {
					return nil, err
				}
			}
		}
		return d, nil
	}
}

func addConfigured(d *Dispatcher, c *container.Container) error {
	if !c.HasParameter(EventsParameter) {
		return nil
	}
	raw, err := c.Parameter(EventsParameter)
	if err != nil {
		return err
	}
	events, err := container.ToMap(raw)
	if err != nil {
		return apperr.Wrap(apperr.CodeInvalidConfig, err, "events parameter")
	}
	for _, name := range sortedNames(events) {
		list, ok := events[name].([]any)
		if !ok {
			return apperr.Newf(apperr.CodeInvalidConfig, "events.%s: expected a list of listeners", name)
		}
		for i, item := range list {
			m, err := container.ToMap(item)
			if err != nil {
				return apperr.Wrap(apperr.CodeInvalidConfig, err, "events."+name)
			}
			svc, _ := m["service"].(string)
			if svc == "" {
				return apperr.Newf(apperr.CodeInvalidConfig, "events.%s[%d]: service is required", name, i)
			}
			method, _ := m["method"].(string)
			prio, err := priority(m["priority"])
			if err != nil {
				return apperr.Wrap(apperr.CodeInvalidConfig, err, "events."+name)
			}
			if err := d.AddListener(name, Ref{Service: strings.TrimPrefix(svc, "@"), Method: methodOr(method, name)}, prio); err != nil {
				return err
			}
		}
	}
	return nil
}

func priority(v any) (int, error) {
	if v == nil {
		return DefaultPriority, nil
	}
	return container.ToInt(v)
}

// methodOr derives "onPageRender" from "page.render" when method is empty.
func methodOr(method, event string) string {
	if method != "" {
		return method
	}
	var b strings.Builder
	b.WriteString("on")
	for _, part := range strings.FieldsFunc(event, func(r rune) bool { return r == '.' || r == '_' || r == '-' }) {
		b.WriteString(strings.ToUpper(part[:1]) + part[1:])
	}
	return b.String()
}

func sortedNames[V any](m map[string]V) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
