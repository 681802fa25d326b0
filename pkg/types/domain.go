package types

// ServiceInfo describes a container service definition.
type ServiceInfo struct {
	// Service id.
	// example: event.dispatcher
	ID string `json:"id" example:"event.dispatcher"`
	// Factory kind building the service.
	// example: event.dispatcher
	Kind string `json:"kind,omitempty" example:"event.dispatcher"`
	// Lifetime: container, prototype or request.
	// example: container
	Scope string `json:"scope" example:"container"`
	// Set at runtime rather than built by a factory.
	Synthetic bool `json:"synthetic,omitempty"`
	// Whether a shared instance exists.
	// example: true
	Initialized bool `json:"initialized" example:"true"`
	// Tag names carried by the definition.
	// example: ["event.listener"]
	Tags []string `json:"tags,omitempty" example:"event.listener"`
}

// ListenerInfo is one registered listener.
type ListenerInfo struct {
	// Event name.
	// example: bbapplication.init
	Event string `json:"event" example:"bbapplication.init"`
	// Priority; higher runs first.
	// example: 0
	Priority int `json:"priority" example:"0"`
	// Listener reference, service::method or func:id.
	// example: container.listener::onApplicationInit
	Listener string `json:"listener" example:"container.listener::onApplicationInit"`
}

// RouteInfo describes an application route.
type RouteInfo struct {
	// Route name.
	// example: page_json
	Name string `json:"name" example:"page_json"`
	// Path pattern.
	// example: /rest/{version}/page/{uid}
	Path string `json:"path" example:"/rest/{version}/page/{uid}"`
	// Allowed methods; empty allows any.
	Methods []string `json:"methods,omitempty"`
	// Handler action.
	// example: page.get
	Action string `json:"action" example:"page.get"`
	// Path and HTTP-<Header> requirements.
	Requirements map[string]string `json:"requirements,omitempty"`
}

// ServiceFilter selects services for listing.
type ServiceFilter struct {
	// Only ids starting with Prefix.
	Prefix string `json:"prefix,omitempty"`
	// Only services carrying this tag.
	Tag string `json:"tag,omitempty"`
	// Offset of the first service returned.
	Start int `json:"start"`
	// Maximum number of services returned; zero returns all.
	Count int `json:"count"`
}
