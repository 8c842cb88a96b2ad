package synchrophasor

import (
	"bytes"
	"encoding/binary"
	"io"
	"strings"
)

// configFrameBaseSize is SYNC+FRAMESIZE+IDCODE+SOC+FRASEC+TIMEBASE+NUMPMU,
// plus the trailing DATA_RATE and CHK that every configuration carries.
const configFrameBaseSize = 24

// maxReasonablePMUStations bounds NUM_PMU and channel counts during decode
// so a corrupt FRAMESIZE can't drive unbounded allocation before the CRC
// check ever runs.
const (
	maxReasonablePMUStations = 1000
	maxReasonableChannels    = 1000
	maxReasonableDigitalWords = 100
)

// ConfigFrame represents a Cfg1 or Cfg2 configuration frame — the two
// share an identical wire layout and differ only in the SYNC type nibble.
type ConfigFrame struct {
	C37118
	TimeBase       uint32
	NumPMU         uint16
	DataRate       int16
	PMUStationList []*PMUStation
}

// NewConfigFrame creates a new Cfg2 configuration frame.
func NewConfigFrame() *ConfigFrame {
	cfg := &ConfigFrame{
		NumPMU:         0,
		PMUStationList: make([]*PMUStation, 0),
	}
	cfg.Sync = (SyncAA << 8) | SyncCfg2
	return cfg
}

// SetTimeBase validates and sets TIME_BASE (1..16777215, a 24-bit value).
func (c *ConfigFrame) SetTimeBase(tb uint32) error {
	if tb < 1 || tb > 0x00FFFFFF {
		return newFrameError(FieldOutOfRange, "time_base", tb)
	}
	c.TimeBase = tb
	return nil
}

// SetDataRate validates and sets DATA_RATE. Positive values are frames per
// second, negative values are seconds per frame; zero is not meaningful.
func (c *ConfigFrame) SetDataRate(rate int16) error {
	if rate == 0 {
		return newFrameError(FieldOutOfRange, "data_rate", rate)
	}
	c.DataRate = rate
	return nil
}

// AddPMUStation adds a PMU station to the configuration.
func (c *ConfigFrame) AddPMUStation(pmu *PMUStation) {
	c.PMUStationList = append(c.PMUStationList, pmu)
	c.NumPMU++
}

// GetPMUStationByIDCode returns PMU station by ID code.
func (c *ConfigFrame) GetPMUStationByIDCode(idCode uint16) *PMUStation {
	for _, pmu := range c.PMUStationList {
		if pmu.IDCode == idCode {
			return pmu
		}
	}
	return nil
}

// validateShape enforces the NUM_PMU / per-station list-length invariant
// (§3 Invariants) before Pack commits anything to the wire.
func (c *ConfigFrame) validateShape() error {
	if int(c.NumPMU) != len(c.PMUStationList) {
		return newFrameError(ShapeMismatch, "num_pmu", c.NumPMU)
	}
	for _, pmu := range c.PMUStationList {
		if err := pmu.validateShape(); err != nil {
			return err
		}
	}
	return nil
}

// Pack converts configuration frame to bytes.
func (c *ConfigFrame) Pack() ([]byte, error) {
	if err := c.validateShape(); err != nil {
		return nil, err
	}

	size := uint16(configFrameBaseSize)

	for _, pmu := range c.PMUStationList {
		size += 30 // STN + IDCODE + FORMAT + PHNMR + ANNMR + DGNMR + FNOM + CFGCNT
		size += 16 * (pmu.Phnmr + pmu.Annmr + 16*pmu.Dgnmr)
		size += 4 * (pmu.Phnmr + pmu.Annmr + pmu.Dgnmr)
	}

	c.FrameSize = size

	buf := new(bytes.Buffer)

	if err := writeBinary(buf, c.Sync, c.FrameSize, c.IDCode, c.SOC, c.FracSec, c.TimeBase, c.NumPMU); err != nil {
		return nil, err
	}

	for _, pmu := range c.PMUStationList {
		buf.WriteString(padString(pmu.STN))

		if err := writeBinary(buf, pmu.IDCode, pmu.Format, pmu.Phnmr, pmu.Annmr, pmu.Dgnmr); err != nil {
			return nil, err
		}

		for _, name := range pmu.CHNAMPhasor {
			buf.WriteString(padString(name))
		}
		for _, name := range pmu.CHNAMAnalog {
			buf.WriteString(padString(name))
		}
		for i := 0; i < int(pmu.Dgnmr*16); i++ {
			if i < len(pmu.CHNAMDigital) {
				buf.WriteString(padString(pmu.CHNAMDigital[i]))
			} else {
				buf.WriteString(padString(""))
			}
		}

		for _, unit := range pmu.Phunit {
			if err := binary.Write(buf, binary.BigEndian, unit); err != nil {
				return nil, err
			}
		}
		for _, unit := range pmu.Anunit {
			if err := binary.Write(buf, binary.BigEndian, unit); err != nil {
				return nil, err
			}
		}
		for _, unit := range pmu.Dgunit {
			if err := binary.Write(buf, binary.BigEndian, unit); err != nil {
				return nil, err
			}
		}

		if err := writeBinary(buf, pmu.Fnom, pmu.CfgCnt); err != nil {
			return nil, err
		}
	}

	if err := binary.Write(buf, binary.BigEndian, c.DataRate); err != nil {
		return nil, err
	}

	data := buf.Bytes()
	crc := CalcCRC(data)
	if err := binary.Write(buf, binary.BigEndian, crc); err != nil {
		return nil, err
	}

	return buf.Bytes(), nil
}

// unpackPMUStation reads a single PMU station from the buffer.
func (c *ConfigFrame) unpackPMUStation(buf *bytes.Reader) (*PMUStation, error) {
	pmu := &PMUStation{}

	stnBytes := make([]byte, 16)
	if _, err := io.ReadFull(buf, stnBytes); err != nil {
		return nil, err
	}
	pmu.STN = strings.TrimSpace(string(stnBytes))

	if err := readBinary(buf, &pmu.IDCode, &pmu.Format); err != nil {
		return nil, err
	}

	var phnmr, annmr, dgnmr uint16
	if err := readBinary(buf, &phnmr, &annmr, &dgnmr); err != nil {
		return nil, err
	}

	if phnmr > maxReasonableChannels || annmr > maxReasonableChannels || dgnmr > maxReasonableDigitalWords {
		return nil, newFrameError(ShapeMismatch, "channel_count", nil)
	}

	pmu.Phnmr = phnmr
	pmu.Annmr = annmr
	pmu.Dgnmr = dgnmr

	channelBytes := 16 * (phnmr + annmr + 16*dgnmr)

	channelPos := buf.Size() - int64(buf.Len())

	if _, err := buf.Seek(int64(channelBytes), io.SeekCurrent); err != nil {
		return nil, err
	}

	pmu.Phunit = make([]uint32, phnmr)
	for j := 0; j < int(phnmr); j++ {
		if err := binary.Read(buf, binary.BigEndian, &pmu.Phunit[j]); err != nil {
			return nil, err
		}
	}

	pmu.Anunit = make([]uint32, annmr)
	for j := 0; j < int(annmr); j++ {
		if err := binary.Read(buf, binary.BigEndian, &pmu.Anunit[j]); err != nil {
			return nil, err
		}
	}

	pmu.Dgunit = make([]uint32, dgnmr)
	for j := 0; j < int(dgnmr); j++ {
		if err := binary.Read(buf, binary.BigEndian, &pmu.Dgunit[j]); err != nil {
			return nil, err
		}
	}

	if err := readBinary(buf, &pmu.Fnom, &pmu.CfgCnt); err != nil {
		return nil, err
	}

	currentPos := buf.Size() - int64(buf.Len())
	if _, err := buf.Seek(channelPos, io.SeekStart); err != nil {
		return nil, err
	}

	if err := c.readChannelNames(buf, pmu, phnmr, annmr, dgnmr); err != nil {
		return nil, err
	}

	if _, err := buf.Seek(currentPos, io.SeekStart); err != nil {
		return nil, err
	}

	pmu.PhasorValues = make([]complex128, phnmr)
	pmu.AnalogValues = make([]float32, annmr)
	pmu.DigitalValues = make([][]bool, dgnmr)
	for j := 0; j < int(dgnmr); j++ {
		pmu.DigitalValues[j] = make([]bool, 16)
	}

	return pmu, nil
}

// readChannelNames reads the PHNMR+ANNMR+16*DGNMR channel-name block for a
// PMU station.
func (c *ConfigFrame) readChannelNames(buf *bytes.Reader, pmu *PMUStation, phnmr, annmr, dgnmr uint16) error {
	pmu.CHNAMPhasor = make([]string, phnmr)
	for j := 0; j < int(phnmr); j++ {
		nameBytes := make([]byte, 16)
		if _, err := io.ReadFull(buf, nameBytes); err != nil {
			return err
		}
		pmu.CHNAMPhasor[j] = strings.TrimSpace(string(nameBytes))
	}

	pmu.CHNAMAnalog = make([]string, annmr)
	for j := 0; j < int(annmr); j++ {
		nameBytes := make([]byte, 16)
		if _, err := io.ReadFull(buf, nameBytes); err != nil {
			return err
		}
		pmu.CHNAMAnalog[j] = strings.TrimSpace(string(nameBytes))
	}

	pmu.CHNAMDigital = make([]string, 16*dgnmr)
	for j := 0; j < int(16*dgnmr); j++ {
		nameBytes := make([]byte, 16)
		if _, err := io.ReadFull(buf, nameBytes); err != nil {
			return err
		}
		pmu.CHNAMDigital[j] = strings.TrimSpace(string(nameBytes))
	}

	return nil
}

// Unpack parses bytes into a configuration frame.
func (c *ConfigFrame) Unpack(data []byte) error {
	if len(data) < configFrameBaseSize {
		return newFrameError(ShapeMismatch, "frame_size", len(data))
	}

	buf := bytes.NewReader(data)

	if err := readBinary(buf, &c.Sync, &c.FrameSize); err != nil {
		return err
	}

	if int(c.FrameSize) < configFrameBaseSize || int(c.FrameSize) != len(data) {
		return newFrameError(ShapeMismatch, "frame_size", c.FrameSize)
	}

	if err := readBinary(buf, &c.IDCode, &c.SOC, &c.FracSec, &c.TimeBase); err != nil {
		return err
	}
	c.TimeBase &= 0x00FFFFFF

	var numPMU uint16
	if err := binary.Read(buf, binary.BigEndian, &numPMU); err != nil {
		return err
	}

	if numPMU > maxReasonablePMUStations {
		return newFrameError(ShapeMismatch, "num_pmu", numPMU)
	}

	for i := 0; i < int(numPMU); i++ {
		pmu, err := c.unpackPMUStation(buf)
		if err != nil {
			return err
		}
		c.AddPMUStation(pmu)
	}

	if err := binary.Read(buf, binary.BigEndian, &c.DataRate); err != nil {
		return err
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

// Config1Frame is a Cfg1 frame: identical layout to ConfigFrame, tagged by
// the SYNC type nibble alone.
type Config1Frame struct {
	ConfigFrame
}

// NewConfig1Frame creates a new Cfg1 configuration frame.
func NewConfig1Frame() *Config1Frame {
	cfg := &Config1Frame{}
	cfg.Sync = (SyncAA << 8) | SyncCfg1
	cfg.NumPMU = 0
	cfg.PMUStationList = make([]*PMUStation, 0)
	return cfg
}

// Config3Frame is a placeholder for Cfg3: the envelope decodes but the
// payload is kept as opaque bytes. Config v3 is declared by the protocol
// but not implemented here — out of scope per the design notes.
type Config3Frame struct {
	C37118
	Payload []byte
}

// Unpack records the envelope and raw payload of a Cfg3 frame without
// attempting field-level decode.
func (c *Config3Frame) Unpack(data []byte) error {
	if len(data) < configFrameBaseSize {
		return newFrameError(ShapeMismatch, "frame_size", len(data))
	}

	buf := bytes.NewReader(data)
	if err := readBinary(buf, &c.Sync, &c.FrameSize); err != nil {
		return err
	}
	if int(c.FrameSize) != len(data) {
		return newFrameError(ShapeMismatch, "frame_size", c.FrameSize)
	}
	if err := readBinary(buf, &c.IDCode, &c.SOC, &c.FracSec); err != nil {
		return err
	}

	payloadLen := len(data) - 14 - 2
	if payloadLen > 0 {
		c.Payload = make([]byte, payloadLen)
		if _, err := io.ReadFull(buf, c.Payload); err != nil {
			return err
		}
	}

	if err := binary.Read(buf, binary.BigEndian, &c.CHK); err != nil {
		return err
	}

	crcData := data[:len(data)-2]
	if CalcCRC(crcData) != c.CHK {
		return newFrameError(CrcMismatch, "", nil)
	}
	return nil
}
