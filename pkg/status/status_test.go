package status_test

import (
	"errors"
	"testing"

	"github.com/moleksy/mxl/pkg/status"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOfNilIsOK(t *testing.T) {
	assert.Equal(t, status.OK, status.Of(nil))
}

func TestOfPlainErrorIsUnknown(t *testing.T) {
	assert.Equal(t, status.Unknown, status.Of(errors.New("boom")))
}

func TestWrapPreservesCause(t *testing.T) {
	cause := errors.New("disk full")
	err := status.Wrap(status.IOError, "creating flow", cause)

	require.Equal(t, status.IOError, status.Of(err))
	assert.ErrorIs(t, err, cause)
	assert.Contains(t, err.Error(), "IO_ERROR")
	assert.Contains(t, err.Error(), "disk full")
}

func TestIs(t *testing.T) {
	err := status.New(status.NotFound, "no such flow")
	assert.True(t, status.Is(err, status.NotFound))
	assert.False(t, status.Is(err, status.OutOfRange))
}

func TestStringers(t *testing.T) {
	cases := map[status.Status]string{
		status.OK:          "OK",
		status.OutOfRange:  "OUT_OF_RANGE",
		status.Timeout:     "TIMEOUT",
		status.NotFound:    "NOT_FOUND",
		status.InvalidArg:  "INVALID_ARG",
		status.IOError:     "IO_ERROR",
		status.Unsupported: "UNSUPPORTED",
		status.Unknown:     "UNKNOWN",
	}
	for s, want := range cases {
		assert.Equal(t, want, s.String())
	}
}
