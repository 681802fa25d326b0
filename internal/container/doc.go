// Package container is the kernel's service container. It is structured into
// small files by concern:
//
//   - definition.go: Definition, Scope, Tag and argument references.
//   - container.go: Container type, registration, lookup and parameters.
//   - args.go: Args helpers handed to factories.
//   - compile.go: Compile (placeholder resolution, reference checks, freezing).
//   - dump.go: Dump/Restore and the Dumpable contract.
//   - scope.go: request-scoped service views.
//   - loader.go: service definition sources (YAML, XML, TOML, JSON, closures).
//
// Services are built by factories registered per kind. Definitions are data,
// so a compiled container can be written to disk and restored on later boots
// with the same factories registered again; services implementing Dumpable are
// rebuilt from their snapshot instead of their factory.
package container
