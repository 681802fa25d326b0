package annotation

import (
	"errors"
	"fmt"
)

// ParseError reports malformed annotation input. The chain reader skips
// readers that fail with it.
type ParseError struct {
	Source string
	Err    error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("annotation parse error in %s: %v", e.Source, e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

// IsParseError reports whether err is or wraps a *ParseError.
func IsParseError(err error) bool {
	var pe *ParseError
	return errors.As(err, &pe)
}

func parseErr(source string, err error) error {
	return &ParseError{Source: source, Err: err}
}
