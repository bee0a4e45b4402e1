package client

import (
	"errors"
	"fmt"
)

var (
	// ErrFetchFailed wraps a failed mirror refresh. The mirror returned with
	// it is the last known one.
	ErrFetchFailed = errors.New("fetch notifications failed")
	// ErrClosed is returned by a Coordinator after Close.
	ErrClosed = errors.New("coordinator closed")
)

// HTTPError represents a non-2xx HTTP response from the API.
type HTTPError struct {
	StatusCode int
	Message    string
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("HTTP %d: %s", e.StatusCode, e.Message)
}

// IsStatus returns true if err (or any wrapped error) is an HTTPError with the given status code.
func IsStatus(err error, code int) bool {
	var httpErr *HTTPError
	if errors.As(err, &httpErr) {
		return httpErr.StatusCode == code
	}
	return false
}
