// Package retry classifies Remote Driver errors and drives bounded
// re-execution with exponential backoff and jitter, grounded on
// the prior engine's internal/graph error classification (HTTP status →
// sentinel) and internal/graph/client.go's calcBackoff.
package retry

import (
	"errors"

	"github.com/tonimelisma/drivemirror/internal/driver"
)

// ErrorKind is the classification of a driver error, per §4.3.
type ErrorKind int

// Error classifications. Order matches the decision table in §4.3.
const (
	KindTransient ErrorKind = iota
	KindPermanentAuth
	KindPermanentNotFound
	KindPermanentOther
)

// String renders the kind for logging.
func (k ErrorKind) String() string {
	switch k {
	case KindTransient:
		return "transient"
	case KindPermanentAuth:
		return "permanent-auth"
	case KindPermanentNotFound:
		return "permanent-not-found"
	case KindPermanentOther:
		return "permanent-other"
	default:
		return "unknown"
	}
}

// Classify maps a raw driver error to its retry classification. Unknown
// error types (anything not wrapping a driver.Error sentinel) are
// Permanent-Other, matching §4.3's "unknown exception type" row.
func Classify(err error) ErrorKind {
	if err == nil {
		return KindPermanentOther
	}

	switch {
	case errors.Is(err, driver.ErrTransient):
		return KindTransient
	case errors.Is(err, driver.ErrAuth):
		return KindPermanentAuth
	case errors.Is(err, driver.ErrNotFound):
		return KindPermanentNotFound
	default:
		return KindPermanentOther
	}
}

// IsTransient is a convenience predicate over Classify.
func IsTransient(err error) bool {
	return Classify(err) == KindTransient
}
