package synchrophasor

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCalcCRCKnownVector(t *testing.T) {
	// From the §8 command-frame scenario: CRC over the first 16 bytes of
	// the "start" command frame is 0xce00.
	data := []byte{
		0xaa, 0x41, 0x00, 0x12, 0x1e, 0x36, 0x44, 0x85,
		0x60, 0x30, 0x0f, 0x0b, 0xbf, 0xd0, 0x00, 0x02,
	}
	assert.Equal(t, uint16(0xce00), CalcCRC(data))
}

func TestCalcCRCEmpty(t *testing.T) {
	assert.Equal(t, uint16(0xFFFF), CalcCRC(nil))
}

func TestCalcCRCSingleBitFlipChangesResult(t *testing.T) {
	data := []byte{0xaa, 0x01, 0x00, 0x34, 0x1e, 0x36}
	base := CalcCRC(data)

	flipped := append([]byte(nil), data...)
	flipped[0] ^= 0x01
	assert.NotEqual(t, base, CalcCRC(flipped))
}
