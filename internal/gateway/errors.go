package gateway

import (
	"errors"
	"fmt"
)

// MaxErrorBody is the number of response body bytes kept on a StatusError.
const MaxErrorBody = 512

// StatusError is returned for any non-2xx backend response.
// The gateway attaches the status and leaves its meaning to the caller.
type StatusError struct {
	Status int
	Method string
	URL    string
	Body   string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("%s %s: status %d", e.Method, e.URL, e.Status)
	}
	return fmt.Sprintf("%s %s: status %d: %s", e.Method, e.URL, e.Status, e.Body)
}

// TransportError is returned when no response was received, including timeouts.
type TransportError struct {
	Method string
	URL    string
	Err    error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Method, e.URL, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// StatusOf returns the backend status carried by err, or 0.
func StatusOf(err error) int {
	var se *StatusError
	if errors.As(err, &se) {
		return se.Status
	}
	return 0
}

// IsStatus reports whether err carries one of codes.
func IsStatus(err error, codes ...int) bool {
	st := StatusOf(err)
	if st == 0 {
		return false
	}
	for _, c := range codes {
		if st == c {
			return true
		}
	}
	return false
}
