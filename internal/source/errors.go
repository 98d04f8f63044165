package source

import (
	"errors"
	"fmt"
	"net/http"
)

// AuthError reports a 401/403 from an external endpoint. Authentication
// failures are never retried: a rotated or revoked key does not heal on
// its own.
type AuthError struct {
	Endpoint string
	Status   int
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("authentication failed against %s (status %d)", e.Endpoint, e.Status)
}

// IsAuthError reports whether err is (or wraps) an AuthError.
func IsAuthError(err error) bool {
	var ae *AuthError
	return errors.As(err, &ae)
}

// StatusError reports a non-2xx HTTP response that is not an auth failure.
type StatusError struct {
	Endpoint string
	Status   int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("unexpected status %d from %s", e.Status, e.Endpoint)
}

// retryable classifies a fetch error. Network failures and 5xx responses
// are transient; auth failures and other 4xx responses are not.
func retryable(err error) bool {
	var ae *AuthError
	if errors.As(err, &ae) {
		return false
	}
	var se *StatusError
	if errors.As(err, &se) {
		return se.Status >= http.StatusInternalServerError
	}
	// Transport-level errors (timeouts, refused connections) are transient.
	return true
}
