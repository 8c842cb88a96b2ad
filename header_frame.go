package synchrophasor

import (
	"bytes"
	"encoding/binary"
	"io"
)

// headerFrameBaseSize is SYNC+FRAMESIZE+IDCODE+SOC+FRASEC+CHK.
const headerFrameBaseSize = 16

// HeaderFrame represents a header frame. Its payload is free-form ASCII
// text read verbatim with no internal length field beyond FRAMESIZE.
type HeaderFrame struct {
	C37118
	Data string
}

// NewHeaderFrame creates a new header frame.
func NewHeaderFrame(idCode uint16, info string) *HeaderFrame {
	h := &HeaderFrame{Data: info}
	h.Sync = (SyncAA << 8) | SyncHdr
	h.FrameSize = headerFrameBaseSize
	h.IDCode = idCode
	return h
}

// Pack converts header frame to bytes.
func (h *HeaderFrame) Pack() ([]byte, error) {
	h.FrameSize = uint16(headerFrameBaseSize + len(h.Data))

	buf := new(bytes.Buffer)

	if err := writeBinary(buf, h.Sync, h.FrameSize, h.IDCode, h.SOC, h.FracSec); err != nil {
		return nil, err
	}

	buf.WriteString(h.Data)

	data := buf.Bytes()
	crc := CalcCRC(data)
	if err := binary.Write(buf, binary.BigEndian, crc); err != nil {
		return nil, err
	}

	return buf.Bytes(), nil
}

// Unpack parses bytes into a header frame.
func (h *HeaderFrame) Unpack(data []byte) error {
	if len(data) < headerFrameBaseSize {
		return newFrameError(ShapeMismatch, "frame_size", len(data))
	}

	buf := bytes.NewReader(data)

	if err := readBinary(buf, &h.Sync, &h.FrameSize); err != nil {
		return err
	}

	if int(h.FrameSize) < headerFrameBaseSize || int(h.FrameSize) != len(data) {
		return newFrameError(ShapeMismatch, "frame_size", h.FrameSize)
	}

	if err := readBinary(buf, &h.IDCode, &h.SOC, &h.FracSec); err != nil {
		return err
	}

	dataSize := int(h.FrameSize) - headerFrameBaseSize
	if dataSize > 0 {
		dataBytes := make([]byte, dataSize)
		if _, err := io.ReadFull(buf, dataBytes); err != nil {
			return err
		}
		h.Data = string(dataBytes)
	}

	if err := binary.Read(buf, binary.BigEndian, &h.CHK); err != nil {
		return err
	}

	crcData := data[:h.FrameSize-2]
	if CalcCRC(crcData) != h.CHK {
		return newFrameError(CrcMismatch, "", nil)
	}

	return nil
}
