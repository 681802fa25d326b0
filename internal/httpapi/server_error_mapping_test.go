package httpapi

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"testing"

	"bbkernel/internal/apperr"
)

type mockHTTPError struct {
	msg  string
	code int
}

func (e mockHTTPError) Error() string   { return e.msg }
func (e mockHTTPError) StatusCode() int { return e.code }

func TestSequenceErrorMapping(t *testing.T) {
	cases := []struct {
		name   string
		err    error
		status int
		code   int
	}{
		{"invalid argument", apperr.New(apperr.CodeInvalidArgument, "value must be positive"), http.StatusBadRequest, apperr.CodeBadRequest},
		{"no sequencer", apperr.New(apperr.CodeServiceNotFound, "no sequencer configured"), http.StatusNotFound, apperr.CodeNotFound},
		{"timeout", fmt.Errorf("query: %w", context.DeadlineExceeded), http.StatusGatewayTimeout, apperr.NamespaceFrontController + http.StatusGatewayTimeout},
		{"query failed", apperr.New(apperr.CodeQueryFailed, "boom"), http.StatusInternalServerError, apperr.CodeQueryFailed},
		{"foreign http error", mockHTTPError{msg: "slow down", code: http.StatusTooManyRequests}, http.StatusTooManyRequests, apperr.NamespaceFrontController + http.StatusTooManyRequests},
		{"plain error", errors.New("boom"), http.StatusInternalServerError, apperr.CodeUnknown},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			w := do(t, NewMux(&mockService{seqErr: tc.err}), http.MethodPost, "/_kernel/sequences/invoice/next", "", nil)
			if w.Code != tc.status {
				t.Fatalf("status=%d want %d", w.Code, tc.status)
			}
			if e := decodeError(t, w); e.Code != tc.code {
				t.Fatalf("code=%d want %d", e.Code, tc.code)
			}
		})
	}
}
