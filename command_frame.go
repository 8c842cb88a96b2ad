package synchrophasor

import (
	"bytes"
	"encoding/binary"
)

// Command codes (§4.4). Values outside this set pass through as
// user-defined and are preserved verbatim on decode.
const (
	CmdStop   = 0x01
	CmdStart  = 0x02
	CmdHeader = 0x03
	CmdCfg1   = 0x04
	CmdCfg2   = 0x05
	CmdCfg3   = 0x06
	CmdExt    = 0x08
)

// maxExtraFrameBytes is the largest opaque payload a command frame may
// carry when CMD is CmdExt.
const maxExtraFrameBytes = 65518

// commandFrameBaseSize is SYNC+FRAMESIZE+IDCODE+SOC+FRASEC+CMD+CHK.
const commandFrameBaseSize = 18

// CommandFrame represents a command frame.
type CommandFrame struct {
	C37118
	CMD        uint16
	ExtraFrame []byte
}

// NewCommandFrame creates a new command frame.
func NewCommandFrame() *CommandFrame {
	cmd := &CommandFrame{}
	cmd.Sync = (SyncAA << 8) | SyncCmd
	cmd.FrameSize = commandFrameBaseSize
	return cmd
}

// IsKnownCommand reports whether CMD is one of the codes the protocol
// assigns meaning to.
func (c *CommandFrame) IsKnownCommand() bool {
	switch c.CMD {
	case CmdStop, CmdStart, CmdHeader, CmdCfg1, CmdCfg2, CmdCfg3, CmdExt:
		return true
	default:
		return false
	}
}

// Pack converts command frame to bytes.
func (c *CommandFrame) Pack() ([]byte, error) {
	if len(c.ExtraFrame) > maxExtraFrameBytes {
		return nil, newFrameError(ShapeMismatch, "extra_frame", len(c.ExtraFrame))
	}

	c.FrameSize = uint16(commandFrameBaseSize + len(c.ExtraFrame))

	buf := new(bytes.Buffer)

	if err := writeBinary(buf, c.Sync, c.FrameSize, c.IDCode, c.SOC, c.FracSec, c.CMD); err != nil {
		return nil, err
	}

	if c.ExtraFrame != nil {
		buf.Write(c.ExtraFrame)
	}

	data := buf.Bytes()
	crc := CalcCRC(data)
	if err := binary.Write(buf, binary.BigEndian, crc); err != nil {
		return nil, err
	}

	return buf.Bytes(), nil
}

// Unpack parses bytes into a command frame.
func (c *CommandFrame) Unpack(data []byte) error {
	if len(data) < commandFrameBaseSize {
		return newFrameError(ShapeMismatch, "frame_size", len(data))
	}

	buf := bytes.NewReader(data)

	if err := readBinary(buf, &c.Sync, &c.FrameSize); err != nil {
		return err
	}

	if int(c.FrameSize) < commandFrameBaseSize || int(c.FrameSize) != len(data) {
		return newFrameError(ShapeMismatch, "frame_size", c.FrameSize)
	}

	if err := readBinary(buf, &c.IDCode, &c.SOC, &c.FracSec, &c.CMD); err != nil {
		return err
	}

	extraSize := int(c.FrameSize) - commandFrameBaseSize
	if extraSize > 0 {
		if extraSize > maxExtraFrameBytes {
			return newFrameError(ShapeMismatch, "extra_frame", extraSize)
		}
		c.ExtraFrame = make([]byte, extraSize)
		if _, err := buf.Read(c.ExtraFrame); err != nil {
			return err
		}
	}

	if err := binary.Read(buf, binary.BigEndian, &c.CHK); err != nil {
		return err
	}

	crcData := data[:c.FrameSize-2]
	if CalcCRC(crcData) != c.CHK {
		return newFrameError(CrcMismatch, "", nil)
	}

	return nil
}
