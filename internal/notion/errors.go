package notion

import (
	"errors"
	"fmt"
)

var (
	// ErrUnauthenticated is returned before any request when no session token is stored.
	ErrUnauthenticated = errors.New("not logged in")
	// ErrAuthExpired means the stored session token was rejected (HTTP 401).
	ErrAuthExpired = errors.New("session expired")
	// ErrAuthRequest means the one-time code could not be requested.
	ErrAuthRequest = errors.New("one-time code request failed")
	// ErrAuthExchange means the one-time code was not exchanged for a session token.
	ErrAuthExchange = errors.New("one-time code login failed")
	// ErrRateLimited means the service answered HTTP 429.
	ErrRateLimited = errors.New("rate limited")
	// ErrRemote covers any other failed call, transport failures included.
	ErrRemote = errors.New("remote call failed")
	// ErrTaskNotFound means getTasks returned no entry for the requested id.
	ErrTaskNotFound = errors.New("export task not found")
	// ErrUnexpectedResponse means a 2xx body lacked a field the workflow needs.
	ErrUnexpectedResponse = errors.New("unexpected response")
)

// HTTPError describes a non-2xx answer. It matches the sentinel chosen for the
// status through errors.Is.
type HTTPError struct {
	Op         string
	StatusCode int
	Body       string
	kind       error
}

func (e *HTTPError) Error() string {
	body := e.Body
	if len(body) > 200 {
		body = body[:200] + "..."
	}
	if body == "" {
		return fmt.Sprintf("%s: %v (HTTP %d)", e.Op, e.kind, e.StatusCode)
	}
	return fmt.Sprintf("%s: %v (HTTP %d): %s", e.Op, e.kind, e.StatusCode, body)
}

func (e *HTTPError) Unwrap() error { return e.kind }

// TransportError wraps a failure below HTTP (DNS, TLS, reset, cancellation).
// It matches both ErrRemote and the underlying cause.
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() []error { return []error{ErrRemote, e.Err} }

// classifyStatus picks the sentinel for an authenticated call status.
func classifyStatus(status int) error {
	switch {
	case status == 401:
		return ErrAuthExpired
	case status == 429:
		return ErrRateLimited
	default:
		return ErrRemote
	}
}
