package synchrophasor

import "encoding/binary"

// SniffFrameType classifies a buffer the way GetFrameType does but also
// verifies FRAMESIZE against len(data) and the trailing CHK against an
// independently recomputed CRC-16/XMODEM. Use this at a stream boundary
// where a mis-synced reader could otherwise hand a frame decoder bytes
// that merely start with a plausible SYNC byte.
func SniffFrameType(data []byte) (FrameType, error) {
	frameType, err := GetFrameType(data)
	if err != nil {
		return -1, err
	}

	if len(data) < 4 {
		return -1, newFrameError(ShapeMismatch, "frame_size", len(data))
	}

	frameSize := binary.BigEndian.Uint16(data[2:4])
	if int(frameSize) != len(data) {
		return -1, newFrameError(ShapeMismatch, "frame_size", frameSize)
	}

	if len(data) < 2 {
		return -1, newFrameError(ShapeMismatch, "frame_size", len(data))
	}

	want := binary.BigEndian.Uint16(data[len(data)-2:])
	got := CalcCRC(data[:len(data)-2])
	if want != got {
		return -1, newFrameError(CrcMismatch, "", nil)
	}

	return frameType, nil
}
