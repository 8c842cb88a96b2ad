package synchrophasor

import "time"

// C37118 is the common wire envelope shared by every frame family: SYNC,
// FRAMESIZE, IDCODE, SOC, FRASEC and the trailing CHK (CRC), which each
// frame type's Pack/Unpack appends/verifies separately.
type C37118 struct {
	Sync      uint16
	FrameSize uint16
	IDCode    uint16
	SOC       uint32
	FracSec   uint32
	CHK       uint16
}

// FRASEC bit layout (big-endian 32-bit word): bit 7 of the high byte is
// reserved; bit 6 is leap-second direction; bit 5 is leap-second-occurred;
// bit 4 is leap-second-pending; bits 3..0 are the time-quality code. The
// low 24 bits are the fractional-second count in units of 1/TIME_BASE.
const (
	fracSecLeapDirBit  = 1 << 6
	fracSecLeapOccBit  = 1 << 5
	fracSecLeapPendBit = 1 << 4
	fracSecQualityMask = 0x0F
	fracSecFractionMask = 0x00FFFFFF
)

// SetIDCode validates and sets IDCODE (1..65534).
func (c *C37118) SetIDCode(id uint16) error {
	if id < 1 || id > 65534 {
		return newFrameError(FieldOutOfRange, "id_code", id)
	}
	c.IDCode = id
	return nil
}

// SetTime sets SOC and FracSec from the supplied pointers, or from the wall
// clock when nil: SOC from whole seconds, FracSec's fraction from the six
// most significant decimal digits of the sub-second remainder scaled to
// TIME_BASE=1e6, per the "set_time" timing rule.
func (c *C37118) SetTime(soc *uint32, fracSec *uint32) {
	now := time.Now()

	if soc != nil {
		c.SOC = *soc
	} else {
		c.SOC = uint32(now.Unix())
	}

	if fracSec != nil {
		c.FracSec = *fracSec
		return
	}

	nanos := now.Nanosecond()
	fraction := uint32(nanos / 1000) // microsecond resolution, TIME_BASE=1e6
	c.FracSec = fraction & fracSecFractionMask
}

// SetTimeWithQuality sets SOC and FracSec from explicit components: the
// fractional-second count, leap-second direction ("+" or "-"), the
// leap-second occurred/pending flags, and the 4-bit time-quality code.
func (c *C37118) SetTimeWithQuality(soc uint32, fracSeconds uint32, leapDir string, leapOccurred, leapPending bool, timeQuality uint8) {
	c.SOC = soc

	var high uint32
	if leapDir == "-" {
		high |= fracSecLeapDirBit
	}
	if leapOccurred {
		high |= fracSecLeapOccBit
	}
	if leapPending {
		high |= fracSecLeapPendBit
	}
	high |= uint32(timeQuality) & fracSecQualityMask

	c.FracSec = (high << 24) | (fracSeconds & fracSecFractionMask)
}

// FracSecInfo is the decoded form of the FRASEC word.
type FracSecInfo struct {
	Fraction     uint32
	LeapDir      string
	LeapOccurred bool
	LeapPending  bool
	TimeQuality  uint8
}

// DecodeFracSec splits a raw FRASEC word into its component fields.
func DecodeFracSec(fracSec uint32) FracSecInfo {
	high := (fracSec >> 24) & 0xFF
	info := FracSecInfo{
		Fraction:     fracSec & fracSecFractionMask,
		LeapDir:      "+",
		LeapOccurred: high&fracSecLeapOccBit != 0,
		LeapPending:  high&fracSecLeapPendBit != 0,
		TimeQuality:  uint8(high & fracSecQualityMask),
	}
	if high&fracSecLeapDirBit != 0 {
		info.LeapDir = "-"
	}
	return info
}
