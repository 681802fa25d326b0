// Package apperr defines the kernel's coded errors. Codes are namespaced per
// subsystem in blocks of one thousand; front-controller codes translate to HTTP
// statuses by subtracting NamespaceFrontController.
package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

// Namespaces.
const (
	NamespaceGeneric         = 1000
	NamespaceFactory         = 2000
	NamespaceConfig          = 4000
	NamespaceFrontController = 6000
	NamespaceContainer       = 8000
	NamespaceTransport       = 10000
	NamespaceBundle          = 20000
	NamespaceBundleConfig    = 21000
	namespaceWidth           = 1000
)

// Generic.
const (
	CodeUnknown          = NamespaceGeneric
	CodeInvalidArgument  = NamespaceGeneric + 1
	CodeMissingParameter = NamespaceGeneric + 2
)

// Service factory resolution.
const (
	CodeUnknownKind = NamespaceFactory + 1
)

// Configuration.
const (
	CodeInvalidConfig     = NamespaceConfig + 1
	CodeUnsupportedFormat = NamespaceConfig + 2
	CodeConfigParse       = NamespaceConfig + 3
)

// Front controller. Status is code - NamespaceFrontController.
const (
	CodeBadRequest       = NamespaceFrontController + http.StatusBadRequest
	CodeNotFound         = NamespaceFrontController + http.StatusNotFound
	CodeMethodNotAllowed = NamespaceFrontController + http.StatusMethodNotAllowed
	CodeInternal         = NamespaceFrontController + http.StatusInternalServerError
)

// Container.
const (
	CodeDirectoryCreate   = NamespaceContainer + 1
	CodeDirectoryWritable = NamespaceContainer + 2
	CodeServiceNotFound   = NamespaceContainer + 3
	CodeCircularReference = NamespaceContainer + 4
	CodeFrozen            = NamespaceContainer + 5
	CodeInvalidDump       = NamespaceContainer + 6
	CodeParameterNotFound = NamespaceContainer + 7
)

// Transport and storage.
const (
	CodeConnectionFailed = NamespaceTransport + 1
	CodeQueryFailed      = NamespaceTransport + 2
)

// Bundles.
const (
	CodeInvalidBundle     = NamespaceBundle + 1
	CodeBundleConfigWrite = NamespaceBundleConfig + 1
	CodeBundleConfigRead  = NamespaceBundleConfig + 2
)

// Error is a coded kernel error.
type Error struct {
	Code    int
	Message string
	Cause   error
}

// New returns an error with the given code and message.
func New(code int, msg string) *Error {
	return &Error{Code: code, Message: msg}
}

// Newf is New with formatting.
func Newf(code int, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// Wrap returns an error with code and message that unwraps to cause.
func Wrap(code int, cause error, msg string) *Error {
	return &Error{Code: code, Message: msg, Cause: cause}
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%d] %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%d] %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error { return e.Cause }

// Is matches another *Error with the same code.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Code == t.Code
}

// Namespace returns the subsystem block the code belongs to.
func (e *Error) Namespace() int {
	return (e.Code / namespaceWidth) * namespaceWidth
}

// StatusCode implements the HTTP layer's HTTPError interface.
func (e *Error) StatusCode() int {
	if e.Namespace() == NamespaceFrontController {
		status := e.Code - NamespaceFrontController
		if status >= 100 && status <= 599 {
			return status
		}
	}
	return http.StatusInternalServerError
}

// CodeOf returns the code carried by err, or CodeUnknown.
func CodeOf(err error) int {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return CodeUnknown
}

// HasCode reports whether err carries the given code anywhere in its chain.
func HasCode(err error, code int) bool {
	return errors.Is(err, &Error{Code: code})
}

// StatusCode maps err to an HTTP status.
func StatusCode(err error) int {
	var e *Error
	if errors.As(err, &e) {
		return e.StatusCode()
	}
	return http.StatusInternalServerError
}

// ExitCode maps err to a process exit code: 0 for nil, the namespace block
// (code/1000) for coded errors and 1 otherwise.
func ExitCode(err error) int {
	if err == nil {
		return 0
	}
	var e *Error
	if errors.As(err, &e) {
		if n := e.Code / namespaceWidth; n > 0 && n < 126 {
			return n
		}
	}
	return 1
}
