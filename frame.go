// Package synchrophasor implements the IEEE C37.118.2-2011 protocol for
// synchrophasor data transfer: frame codecs, a PMU session server, a PDC
// client, and a stream splitter.
package synchrophasor

// Frame type constants (the high nibble of the second SYNC byte).
const (
	FrameTypeData   = 0
	FrameTypeHeader = 1
	FrameTypeCfg1   = 2
	FrameTypeCfg2   = 3
	FrameTypeCmd    = 4
	FrameTypeCfg3   = 5
)

// Sync byte constants: 0xAA high byte, low byte = (type<<4)|version.
const (
	SyncAA   = 0xAA
	SyncData = 0x01
	SyncHdr  = 0x11
	SyncCfg1 = 0x21
	SyncCfg2 = 0x31
	SyncCmd  = 0x41
	SyncCfg3 = 0x51
)

// Nominal frequency constants for the FNOM bit.
const (
	FreqNom60Hz = 0
	FreqNom50Hz = 1
)

// Phasor unit types (PHUNIT high byte).
const (
	PhunitVoltage = 0
	PhunitCurrent = 1
)

// Analog unit types (ANUNIT high byte).
const (
	AnunitPow  = 0
	AnunitRMS  = 1
	AnunitPeak = 2
)

// FrameType identifies which of the five frame families a buffer holds.
type FrameType int

// GetFrameType extracts the frame type from the SYNC byte pair without
// verifying CRC or parsing the rest of the buffer. Prefer SniffFrameType
// when CRC-checked classification is required (§4.6).
func GetFrameType(data []byte) (FrameType, error) {
	if len(data) < 2 {
		return -1, newFrameError(ShapeMismatch, "frame_size", len(data))
	}

	if data[0] != SyncAA {
		return -1, newFrameError(BadFrameType, "sync", data[0])
	}

	frameType := (data[1] >> 4) & 0x07
	return FrameType(frameType), nil
}

// UnpackFrame unpacks any frame type from bytes, dispatching on the SYNC
// type nibble. cfg is required to decode a Data frame and may be nil for
// every other frame type.
func UnpackFrame(data []byte, cfg *ConfigFrame) (interface{}, error) {
	frameType, err := GetFrameType(data)
	if err != nil {
		return nil, err
	}

	switch frameType {
	case FrameTypeData:
		if cfg == nil {
			return nil, newFrameError(MissingConfig, "cfg", nil)
		}
		df := NewDataFrame(cfg)
		err := df.Unpack(data)
		return df, err

	case FrameTypeHeader:
		hf := &HeaderFrame{}
		err := hf.Unpack(data)
		return hf, err

	case FrameTypeCfg1:
		cf := NewConfig1Frame()
		err := cf.Unpack(data)
		return cf, err

	case FrameTypeCfg2:
		cf := NewConfigFrame()
		err := cf.Unpack(data)
		return cf, err

	case FrameTypeCfg3:
		cf := &Config3Frame{}
		err := cf.Unpack(data)
		return cf, err

	case FrameTypeCmd:
		cmd := NewCommandFrame()
		err := cmd.Unpack(data)
		return cmd, err

	default:
		return nil, newFrameError(BadFrameType, "frame_type", int(frameType))
	}
}
