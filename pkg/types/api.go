package types

// ErrorResponse is a consistent JSON error payload.
type ErrorResponse struct {
	// Error message.
	// example: no route matches GET /nowhere
	Error string `json:"error" example:"no route matches GET /nowhere"`
	// Namespaced kernel error code. Front-controller codes are 6000 + HTTP status.
	// example: 6404
	Code int `json:"code" example:"6404"`
}

// ServicesResponse is returned by GET /_kernel/services.
type ServicesResponse struct {
	// Services in id order, limited to the requested page.
	Services []ServiceInfo `json:"services"`
	// Number of services matching the filter before pagination.
	// example: 12
	Total int `json:"total" example:"12"`
	// Offset of the first returned service.
	// example: 0
	Start int `json:"start" example:"0"`
	// Page size that was applied.
	// example: 50
	Count int `json:"count" example:"50"`
}

// ListenersResponse is returned by GET /_kernel/listeners.
type ListenersResponse struct {
	// Listeners grouped by event, in invocation order.
	Listeners []ListenerInfo `json:"listeners"`
}

// RoutesResponse is returned by GET /_kernel/routes.
type RoutesResponse struct {
	// Application routes in declaration order.
	Routes []RouteInfo `json:"routes"`
}

// RaiseRequest is the body of PUT /_kernel/sequences/{name}.
type RaiseRequest struct {
	// Value the sequence is raised to. Lower values leave it unchanged.
	// example: 1000
	Value int64 `json:"value" example:"1000" validate:"gt=0"`
}

// SequenceValue is returned by the sequence endpoints.
type SequenceValue struct {
	// Sequence name.
	// example: invoice
	Name string `json:"name" example:"invoice"`
	// Stored value after the operation.
	// example: 1001
	Value int64 `json:"value" example:"1001"`
}

// StatusResponse is returned by GET /_kernel/status.
type StatusResponse struct {
	// Overall state: booting or ready.
	// example: ready
	State string `json:"state" example:"ready"`
	// Whether the kernel runs in debug mode.
	// example: false
	Debug bool `json:"debug" example:"false"`
	// Whether the container was restored from a dump.
	// example: true
	Restored bool `json:"restored" example:"true"`
	// Whether the container is compiled.
	// example: true
	Compiled bool `json:"compiled" example:"true"`
	// Path of the container dump.
	// example: var/cache/container/bbapp_container.json
	DumpPath string `json:"dump_path" example:"var/cache/container/bbapp_container.json"`
	// Number of defined services.
	// example: 12
	Services int `json:"services" example:"12"`
	// Number of registered listeners across all events.
	// example: 3
	Listeners int `json:"listeners" example:"3"`
	// Uptime of the server in seconds.
	// example: 3600
	UptimeSeconds int64 `json:"uptime_seconds" example:"3600"`
	// Server time in unix seconds.
	// example: 1700000000
	ServerTimeUnix int64 `json:"server_time_unix" example:"1700000000"`
}
