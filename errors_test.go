package synchrophasor

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFrameErrorIs(t *testing.T) {
	err := newFrameError(CrcMismatch, "", nil)
	assert.True(t, errors.Is(err, ErrCRCFailed))
	assert.False(t, errors.Is(err, ErrInvalidFrame))
}

func TestFrameErrorMessage(t *testing.T) {
	err := newFrameError(FieldOutOfRange, "data_rate", int16(0))
	assert.Equal(t, "field out of range: data_rate = 0", err.Error())

	bare := newFrameError(CrcMismatch, "", nil)
	assert.Equal(t, "crc mismatch", bare.Error())
}

func TestPdcErrorUnwrap(t *testing.T) {
	wrapped := &PdcError{Op: "read_frame", Err: ErrInvalidResponse}
	assert.True(t, errors.Is(wrapped, ErrInvalidResponse))
	require.EqualError(t, wrapped, "pdc: read_frame: pdc: invalid response frame")
}

func TestTransportErrorUnwrap(t *testing.T) {
	wrapped := &TransportError{Op: "read_frame", Err: ErrConnectionClosed}
	assert.True(t, errors.Is(wrapped, ErrConnectionClosed))
}
