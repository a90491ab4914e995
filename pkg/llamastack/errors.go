package llamastack

import (
	"errors"
	"fmt"
)

// Sentinel errors distinguishing the failure classes the gateway maps to
// distinct HTTP responses.
var (
	// ErrUnavailable wraps connection-level failures to the upstream.
	ErrUnavailable = errors.New("upstream unavailable")

	// ErrRateLimited wraps upstream 429 responses.
	ErrRateLimited = errors.New("upstream rate limited")

	// ErrNotFound wraps upstream 404 responses.
	ErrNotFound = errors.New("upstream resource not found")
)

// APIError is a non-2xx upstream response that is none of the sentinels.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("upstream returned status %d: %s", e.StatusCode, e.Body)
}
