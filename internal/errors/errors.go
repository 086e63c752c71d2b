package errors

import (
	"errors"
	"fmt"
)

// Sync errors. Transport failures are classified into one of these so
// callers can branch on the failure mode instead of parsing messages.
var (
	// ErrNetwork covers unreachable hosts, timeouts, and any response
	// the server never produced a status for.
	ErrNetwork = errors.New("cloud unreachable")

	// ErrAuth is a 401 from the remote store. The session is gone;
	// retrying without re-authenticating will not help.
	ErrAuth = errors.New("authentication rejected")

	// ErrNotFound is a 404 on update or delete. Upload falls back to
	// create on this; delete treats it as already done.
	ErrNotFound = errors.New("remote record not found")

	// ErrValidation is a 400 for a malformed note payload.
	ErrValidation = errors.New("note rejected as invalid")
)

// TransportError wraps a failed cloud call with the operation that
// failed and the HTTP status observed (0 when the request never got a
// response). Unwraps to one of the sentinel errors above.
type TransportError struct {
	Op         string // "upload", "download", "delete", "batch"
	StatusCode int
	Kind       error  // one of the sentinels
	Message    string // server-provided detail, may be empty
}

func (e *TransportError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("%s: %v (status %d): %s", e.Op, e.Kind, e.StatusCode, e.Message)
	}
	if e.StatusCode == 0 {
		return fmt.Sprintf("%s: %v", e.Op, e.Kind)
	}
	return fmt.Sprintf("%s: %v (status %d)", e.Op, e.Kind, e.StatusCode)
}

func (e *TransportError) Unwrap() error {
	return e.Kind
}

// Classify maps an HTTP status code to the matching sentinel.
// Statuses with no specific meaning for the sync engine fall back to
// ErrNetwork, which is retried on the next cycle.
func Classify(statusCode int) error {
	switch statusCode {
	case 400:
		return ErrValidation
	case 401:
		return ErrAuth
	case 404:
		return ErrNotFound
	default:
		return ErrNetwork
	}
}
