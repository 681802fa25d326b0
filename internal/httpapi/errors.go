package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"

	"bbkernel/internal/apperr"
	"bbkernel/pkg/types"
)

// HTTPError allows services to provide an HTTP status code for an error.
type HTTPError interface {
	error
	StatusCode() int
}

// writeJSONError writes a consistent JSON error payload.
func writeJSONError(w http.ResponseWriter, status, code int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(types.ErrorResponse{Error: msg, Code: code})
}

// writeError maps err to a status: HTTPError implementations choose their
// own, everything else is a 500. The payload carries the kernel error code.
func writeError(w http.ResponseWriter, err error) int {
	status := http.StatusInternalServerError
	var he HTTPError
	if errors.As(err, &he) {
		status = he.StatusCode()
	}
	code := apperr.CodeOf(err)
	if code == apperr.CodeUnknown && status != http.StatusInternalServerError {
		code = apperr.NamespaceFrontController + status
	}
	IncrementErrors(code)
	writeJSONError(w, status, code, err.Error())
	return status
}
