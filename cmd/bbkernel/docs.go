// General API documentation for swaggo. The served document lives in
// internal/httpapi and is kept in sync with these annotations.
//
// @title           bbkernel API
// @version         1.0
// @description     Introspection and sequence endpoints of the application kernel.
//
// @license.name   MIT
// @license.url    https://opensource.org/licenses/MIT
//
// @BasePath  /
//
// @schemes http
package main
