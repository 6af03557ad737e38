package retry_test

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/tonimelisma/drivemirror/internal/driver"
	"github.com/tonimelisma/drivemirror/internal/retry"
)

func TestClassifySentinels(t *testing.T) {
	assert.Equal(t, retry.KindTransient, retry.Classify(driver.ErrTransient))
	assert.Equal(t, retry.KindPermanentAuth, retry.Classify(driver.ErrAuth))
	assert.Equal(t, retry.KindPermanentNotFound, retry.Classify(driver.ErrNotFound))
	assert.Equal(t, retry.KindPermanentOther, retry.Classify(driver.ErrOther))
}

func TestClassifyUnknownErrorIsPermanentOther(t *testing.T) {
	assert.Equal(t, retry.KindPermanentOther, retry.Classify(errors.New("boom")))
}

func TestClassifyDriverErrorWithCauseStillClassifiesBySentinel(t *testing.T) {
	cause := errors.New("dial tcp: connection refused")
	wrapped := driver.NewTransient("upstream unreachable", cause)

	assert.Equal(t, retry.KindTransient, retry.Classify(wrapped),
		"a driver.Error carrying a cause must still retry as transient")
}
