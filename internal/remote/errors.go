package remote

import (
	"errors"
	"fmt"
)

// Error is a structured remote API failure. Code carries the remote error
// code (e.g. UNABLE_TO_LOCK_ROW) used by retry policies; Fields lists the
// fields implicated by a validation response when the API supplies them.
type Error struct {
	Code    string
	Message string
	Fields  []string
}

func (e *Error) Error() string {
	if e.Code == "" {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// ErrorCode extracts the remote error code from an error chain, or "" when
// the error carries none.
func ErrorCode(err error) string {
	var remoteErr *Error
	if errors.As(err, &remoteErr) {
		return remoteErr.Code
	}
	return ""
}

// ErrorFields extracts the implicated field list from an error chain.
func ErrorFields(err error) []string {
	var remoteErr *Error
	if errors.As(err, &remoteErr) {
		return remoteErr.Fields
	}
	return nil
}
