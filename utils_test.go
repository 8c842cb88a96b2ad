package synchrophasor

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPadString(t *testing.T) {
	assert.Equal(t, "Station A       ", padString("Station A"))
	assert.Len(t, padString("Station A"), 16)
	assert.Equal(t, "0123456789abcdef", padString("0123456789abcdefGHI"))
}

func TestWriteReadBinaryRoundTrip(t *testing.T) {
	buf := new(bytes.Buffer)
	require.NoError(t, writeBinary(buf, uint16(0xAA01), uint32(12345), int16(-7)))

	var sync uint16
	var soc uint32
	var val int16
	require.NoError(t, readBinary(buf, &sync, &soc, &val))

	assert.Equal(t, uint16(0xAA01), sync)
	assert.Equal(t, uint32(12345), soc)
	assert.Equal(t, int16(-7), val)
}
