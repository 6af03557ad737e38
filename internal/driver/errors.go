package driver

import (
	"errors"
	"fmt"
)

// Sentinel errors for driver-layer classification. Concrete Driver
// implementations should wrap one of these so callers can use errors.Is,
// following the graph.GraphError pattern of a typed wrapper plus an Unwrap
// back to a sentinel.
var (
	ErrTransient = errors.New("driver: transient error")
	ErrAuth      = errors.New("driver: authentication error")
	ErrNotFound  = errors.New("driver: not found")
	ErrOther     = errors.New("driver: other error")
)

// Error wraps a sentinel with a human-readable message and the raw
// underlying error, if any.
type Error struct {
	Sentinel error
	Message  string
	Cause    error
}

func (e *Error) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("%s: %s", e.Sentinel, e.Message)
	}

	return e.Sentinel.Error()
}

// Unwrap exposes both the sentinel and the cause (when present) so
// errors.Is(err, driver.ErrTransient) still matches even when Cause is set
// — retry.Classify depends on the sentinel surviving the chain regardless
// of what wrapped it.
func (e *Error) Unwrap() []error {
	if e.Cause != nil {
		return []error{e.Sentinel, e.Cause}
	}

	return []error{e.Sentinel}
}

// NewTransient wraps err as a transient driver error.
func NewTransient(message string, cause error) error {
	return &Error{Sentinel: ErrTransient, Message: message, Cause: cause}
}

// NewAuth wraps err as an authentication/permission driver error.
func NewAuth(message string, cause error) error {
	return &Error{Sentinel: ErrAuth, Message: message, Cause: cause}
}

// NewNotFound wraps err as a not-found driver error.
func NewNotFound(message string, cause error) error {
	return &Error{Sentinel: ErrNotFound, Message: message, Cause: cause}
}

// NewOther wraps err as an unclassified driver error.
func NewOther(message string, cause error) error {
	return &Error{Sentinel: ErrOther, Message: message, Cause: cause}
}
