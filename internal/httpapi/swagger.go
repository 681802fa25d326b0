package httpapi

import (
	"github.com/go-chi/chi/v5"
	httpSwagger "github.com/swaggo/http-swagger"
	"github.com/swaggo/swag"
)

// SwaggerInfo holds the exported Swagger Info so clients can modify it.
var SwaggerInfo = &swag.Spec{
	Version:          "1.0",
	BasePath:         "/",
	Schemes:          []string{"http"},
	Title:            "bbkernel API",
	Description:      "Introspection and sequence endpoints of the application kernel.",
	InfoInstanceName: "swagger",
	SwaggerTemplate:  docTemplate,
	LeftDelim:        "{{",
	RightDelim:       "}}",
}

func init() {
	swag.Register(SwaggerInfo.InstanceName(), SwaggerInfo)
}

// MountSwagger serves the Swagger UI and doc.json under /swagger/.
func MountSwagger(r chi.Router) {
	r.Get("/swagger/*", httpSwagger.Handler(
		httpSwagger.URL("/swagger/doc.json"),
		httpSwagger.InstanceName(SwaggerInfo.InstanceName()),
	))
}

const docTemplate = `{
    "schemes": {{ marshal .Schemes }},
    "swagger": "2.0",
    "info": {
        "description": "{{escape .Description}}",
        "title": "{{.Title}}",
        "license": {"name": "MIT", "url": "https://opensource.org/licenses/MIT"},
        "version": "{{.Version}}"
    },
    "host": "{{.Host}}",
    "basePath": "{{.BasePath}}",
    "paths": {
        "/_kernel/status": {
            "get": {
                "produces": ["application/json"],
                "tags": ["kernel"],
                "summary": "Kernel status",
                "responses": {"200": {"description": "OK", "schema": {"$ref": "#/definitions/types.StatusResponse"}}}
            }
        },
        "/_kernel/services": {
            "get": {
                "produces": ["application/json"],
                "tags": ["kernel"],
                "summary": "List container services",
                "parameters": [
                    {"type": "string", "name": "prefix", "in": "query"},
                    {"type": "string", "name": "tag", "in": "query"},
                    {"type": "integer", "name": "start", "in": "query"},
                    {"type": "integer", "name": "count", "in": "query"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/types.ServicesResponse"}},
                    "400": {"description": "Bad Request", "schema": {"$ref": "#/definitions/types.ErrorResponse"}}
                }
            }
        },
        "/_kernel/listeners": {
            "get": {
                "produces": ["application/json"],
                "tags": ["kernel"],
                "summary": "List event listeners",
                "responses": {"200": {"description": "OK", "schema": {"$ref": "#/definitions/types.ListenersResponse"}}}
            }
        },
        "/_kernel/routes": {
            "get": {
                "produces": ["application/json"],
                "tags": ["kernel"],
                "summary": "List application routes",
                "responses": {"200": {"description": "OK", "schema": {"$ref": "#/definitions/types.RoutesResponse"}}}
            }
        },
        "/_kernel/sequences/{name}/next": {
            "post": {
                "produces": ["application/json"],
                "tags": ["sequences"],
                "summary": "Increment a sequence",
                "parameters": [
                    {"type": "string", "name": "name", "in": "path", "required": true},
                    {"type": "integer", "name": "default", "in": "query"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/types.SequenceValue"}},
                    "400": {"description": "Bad Request", "schema": {"$ref": "#/definitions/types.ErrorResponse"}}
                }
            }
        },
        "/_kernel/sequences/{name}": {
            "put": {
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "tags": ["sequences"],
                "summary": "Raise a sequence",
                "parameters": [
                    {"type": "string", "name": "name", "in": "path", "required": true},
                    {"name": "body", "in": "body", "required": true, "schema": {"$ref": "#/definitions/types.RaiseRequest"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/types.SequenceValue"}},
                    "400": {"description": "Bad Request", "schema": {"$ref": "#/definitions/types.ErrorResponse"}},
                    "415": {"description": "Unsupported Media Type", "schema": {"$ref": "#/definitions/types.ErrorResponse"}}
                }
            }
        }
    },
    "definitions": {
        "types.ErrorResponse": {
            "type": "object",
            "properties": {"error": {"type": "string"}, "code": {"type": "integer", "example": 6404}}
        },
        "types.ServiceInfo": {
            "type": "object",
            "properties": {
                "id": {"type": "string"}, "kind": {"type": "string"}, "scope": {"type": "string"},
                "synthetic": {"type": "boolean"}, "initialized": {"type": "boolean"},
                "tags": {"type": "array", "items": {"type": "string"}}
            }
        },
        "types.ServicesResponse": {
            "type": "object",
            "properties": {
                "services": {"type": "array", "items": {"$ref": "#/definitions/types.ServiceInfo"}},
                "total": {"type": "integer"}, "start": {"type": "integer"}, "count": {"type": "integer"}
            }
        },
        "types.ListenerInfo": {
            "type": "object",
            "properties": {"event": {"type": "string"}, "priority": {"type": "integer"}, "listener": {"type": "string"}}
        },
        "types.ListenersResponse": {
            "type": "object",
            "properties": {"listeners": {"type": "array", "items": {"$ref": "#/definitions/types.ListenerInfo"}}}
        },
        "types.RouteInfo": {
            "type": "object",
            "properties": {
                "name": {"type": "string"}, "path": {"type": "string"}, "action": {"type": "string"},
                "methods": {"type": "array", "items": {"type": "string"}},
                "requirements": {"type": "object", "additionalProperties": {"type": "string"}}
            }
        },
        "types.RoutesResponse": {
            "type": "object",
            "properties": {"routes": {"type": "array", "items": {"$ref": "#/definitions/types.RouteInfo"}}}
        },
        "types.RaiseRequest": {
            "type": "object",
            "properties": {"value": {"type": "integer", "example": 1000}}
        },
        "types.SequenceValue": {
            "type": "object",
            "properties": {"name": {"type": "string"}, "value": {"type": "integer"}}
        },
        "types.StatusResponse": {
            "type": "object",
            "properties": {
                "state": {"type": "string"}, "debug": {"type": "boolean"}, "restored": {"type": "boolean"},
                "compiled": {"type": "boolean"}, "dump_path": {"type": "string"}, "services": {"type": "integer"},
                "listeners": {"type": "integer"}, "uptime_seconds": {"type": "integer"}, "server_time_unix": {"type": "integer"}
            }
        }
    }
}`
