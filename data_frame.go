package synchrophasor

import (
	"bytes"
	"encoding/binary"
	"io"
	"math"
	"math/cmplx"
)

// dataFrameBaseSize is SYNC+FRAMESIZE+IDCODE+SOC+FRASEC+CHK.
const dataFrameBaseSize = 16

const (
	maxPolarAngleInt   = 31416
	maxPolarAngleFloat = 3.142
	maxAnalogInt16     = 32767
)

// DataFrame represents a data frame. Its wire shape is entirely driven by
// the associated configuration: phasor/analog/frequency widths and
// per-station channel counts come from AssociatedConfig, not from the
// frame itself.
type DataFrame struct {
	C37118
	AssociatedConfig *ConfigFrame
}

// NewDataFrame creates a new data frame bound to cfg.
func NewDataFrame(cfg *ConfigFrame) *DataFrame {
	df := &DataFrame{AssociatedConfig: cfg}
	df.Sync = (SyncAA << 8) | SyncData
	return df
}

// Pack converts data frame to bytes using AssociatedConfig to determine
// per-station layout.
func (d *DataFrame) Pack() ([]byte, error) {
	if d.AssociatedConfig == nil {
		return nil, newFrameError(MissingConfig, "associated_config", nil)
	}

	size := uint16(dataFrameBaseSize)

	for _, pmu := range d.AssociatedConfig.PMUStationList {
		size += 2 // STAT

		if pmu.FormatPhasorType() {
			size += 8 * pmu.Phnmr
		} else {
			size += 4 * pmu.Phnmr
		}

		if pmu.FormatFreqType() {
			size += 8
		} else {
			size += 4
		}

		if pmu.FormatAnalogType() {
			size += 4 * pmu.Annmr
		} else {
			size += 2 * pmu.Annmr
		}

		size += 2 * pmu.Dgnmr
	}

	d.FrameSize = size

	buf := new(bytes.Buffer)

	if err := writeBinary(buf, d.Sync, d.FrameSize, d.IDCode, d.SOC, d.FracSec); err != nil {
		return nil, err
	}

	for _, pmu := range d.AssociatedConfig.PMUStationList {
		if err := binary.Write(buf, binary.BigEndian, pmu.Stat); err != nil {
			return nil, err
		}

		for j := 0; j < int(pmu.Phnmr); j++ {
			if err := packPhasor(buf, pmu, j); err != nil {
				return nil, err
			}
		}

		if err := packFreq(buf, pmu); err != nil {
			return nil, err
		}

		for j := 0; j < int(pmu.Annmr); j++ {
			if err := packAnalog(buf, pmu, j); err != nil {
				return nil, err
			}
		}

		for j := 0; j < int(pmu.Dgnmr); j++ {
			var digWord uint16
			for k := 0; k < 16; k++ {
				if pmu.DigitalValues[j][k] {
					digWord |= 1 << uint(k)
				}
			}
			if err := binary.Write(buf, binary.BigEndian, digWord); err != nil {
				return nil, err
			}
		}
	}

	data := buf.Bytes()
	crc := CalcCRC(data)
	if err := binary.Write(buf, binary.BigEndian, crc); err != nil {
		return nil, err
	}

	return buf.Bytes(), nil
}

func packPhasor(buf *bytes.Buffer, pmu *PMUStation, j int) error {
	val := pmu.PhasorValues[j]

	if pmu.FormatPhasorType() {
		if pmu.FormatCoord() {
			mag := float32(cmplx.Abs(val))
			ang := float32(cmplx.Phase(val))
			return writeBinary(buf, mag, ang)
		}
		re := float32(real(val))
		im := float32(imag(val))
		return writeBinary(buf, re, im)
	}

	factor := float64(pmu.GetPhasorFactor(j))
	if pmu.FormatCoord() {
		mag := cmplx.Abs(val)
		ang := cmplx.Phase(val)
		angInt := int32(math.Round(ang * 1e4))
		if angInt < -maxPolarAngleInt || angInt > maxPolarAngleInt {
			return newFrameError(FieldOutOfRange, "phasor_angle", angInt)
		}
		magInt := uint16(mag * 1e5 / factor)
		return writeBinary(buf, magInt, int16(angInt))
	}

	re := real(val)
	im := imag(val)
	reInt := int16(re * 1e5 / factor)
	imInt := int16(im * 1e5 / factor)
	return writeBinary(buf, reInt, imInt)
}

func packFreq(buf *bytes.Buffer, pmu *PMUStation) error {
	if pmu.FormatFreqType() {
		return writeBinary(buf, pmu.Freq, pmu.DFreq)
	}
	freqOffset := pmu.Freq - pmu.GetNominalFrequency()
	freqInt := int16(freqOffset * 1000)
	dfreqInt := int16(pmu.DFreq * 100)
	return writeBinary(buf, freqInt, dfreqInt)
}

func packAnalog(buf *bytes.Buffer, pmu *PMUStation, j int) error {
	if pmu.FormatAnalogType() {
		return binary.Write(buf, binary.BigEndian, pmu.AnalogValues[j])
	}
	v := pmu.AnalogValues[j]
	if v < -maxAnalogInt16 || v > maxAnalogInt16 {
		return newFrameError(FieldOutOfRange, "analog_value", v)
	}
	return binary.Write(buf, binary.BigEndian, int16(v))
}

// Unpack parses bytes into a data frame using AssociatedConfig to
// determine per-station layout.
func (d *DataFrame) Unpack(data []byte) error {
	if d.AssociatedConfig == nil {
		return newFrameError(MissingConfig, "associated_config", nil)
	}

	if len(data) < dataFrameBaseSize {
		return newFrameError(ShapeMismatch, "frame_size", len(data))
	}

	buf := bytes.NewReader(data)

	if err := readBinary(buf, &d.Sync, &d.FrameSize); err != nil {
		return err
	}

	if int(d.FrameSize) < dataFrameBaseSize || int(d.FrameSize) != len(data) {
		return newFrameError(ShapeMismatch, "frame_size", d.FrameSize)
	}

	if err := readBinary(buf, &d.IDCode, &d.SOC, &d.FracSec); err != nil {
		return err
	}

	for _, pmu := range d.AssociatedConfig.PMUStationList {
		if err := binary.Read(buf, binary.BigEndian, &pmu.Stat); err != nil {
			return err
		}

		for j := 0; j < int(pmu.Phnmr); j++ {
			if err := unpackPhasor(buf, pmu, j); err != nil {
				return err
			}
		}

		if err := unpackFreq(buf, pmu); err != nil {
			return err
		}

		for j := 0; j < int(pmu.Annmr); j++ {
			if err := unpackAnalog(buf, pmu, j); err != nil {
				return err
			}
		}

		for j := 0; j < int(pmu.Dgnmr); j++ {
			var digWord uint16
			if err := binary.Read(buf, binary.BigEndian, &digWord); err != nil {
				return err
			}
			for k := 0; k < 16; k++ {
				pmu.DigitalValues[j][k] = (digWord & (1 << uint(k))) != 0
			}
		}
	}

	if _, err := buf.Seek(int64(d.FrameSize-2), io.SeekStart); err != nil {
		return err
	}
	if err := binary.Read(buf, binary.BigEndian, &d.CHK); err != nil {
		return err
	}

	crcData := data[:d.FrameSize-2]
	if CalcCRC(crcData) != d.CHK {
		return newFrameError(CrcMismatch, "", nil)
	}

	return nil
}

func unpackPhasor(buf *bytes.Reader, pmu *PMUStation, j int) error {
	if pmu.FormatPhasorType() {
		var val1, val2 float32
		if err := readBinary(buf, &val1, &val2); err != nil {
			return err
		}
		if pmu.FormatCoord() {
			pmu.PhasorValues[j] = cmplx.Rect(float64(val1), float64(val2))
		} else {
			pmu.PhasorValues[j] = complex(float64(val1), float64(val2))
		}
		return nil
	}

	factor := float64(pmu.GetPhasorFactor(j))
	if pmu.FormatCoord() {
		var mag uint16
		var ang int16
		if err := readBinary(buf, &mag, &ang); err != nil {
			return err
		}
		magFloat := float64(mag) * factor / 1e5
		angFloat := float64(ang) / 1e4
		pmu.PhasorValues[j] = cmplx.Rect(magFloat, angFloat)
		return nil
	}

	var re, im int16
	if err := readBinary(buf, &re, &im); err != nil {
		return err
	}
	reFloat := float64(re) * factor / 1e5
	imFloat := float64(im) * factor / 1e5
	pmu.PhasorValues[j] = complex(reFloat, imFloat)
	return nil
}

func unpackFreq(buf *bytes.Reader, pmu *PMUStation) error {
	if pmu.FormatFreqType() {
		return readBinary(buf, &pmu.Freq, &pmu.DFreq)
	}
	var freqInt, dfreqInt int16
	if err := readBinary(buf, &freqInt, &dfreqInt); err != nil {
		return err
	}
	pmu.Freq = pmu.GetNominalFrequency() + float32(freqInt)/1000.0
	pmu.DFreq = float32(dfreqInt) / 100.0
	return nil
}

func unpackAnalog(buf *bytes.Reader, pmu *PMUStation, j int) error {
	if pmu.FormatAnalogType() {
		return binary.Read(buf, binary.BigEndian, &pmu.AnalogValues[j])
	}
	var analogInt int16
	if err := binary.Read(buf, binary.BigEndian, &analogInt); err != nil {
		return err
	}
	pmu.AnalogValues[j] = float32(analogInt)
	return nil
}

// PolarPhasor is a phasor expressed as magnitude and angle (radians),
// the representation get_measurements reports regardless of the wire
// format (rectangular or polar) the data frame itself used.
type PolarPhasor struct {
	Magnitude float64
	Angle     float64
}

// Measurement is one PMU station's decoded values from a data frame.
type Measurement struct {
	StreamID     uint16
	Stat         uint16
	Phasors      []complex128
	PhasorsPolar []PolarPhasor
	Analog       []float32
	Digital      [][]bool
	Frequency    float32
	ROCOF        float32
}

// MeasurementSet is the result of decoding a data frame: the stream
// timestamp plus one Measurement per configured PMU station.
type MeasurementSet struct {
	PMUID        uint16
	Time         float64
	Measurements []Measurement
}

// GetMeasurements returns the decoded, engineering-unit measurements
// carried by this data frame. Rectangular phasor values are additionally
// converted to polar as (sqrt(re^2+im^2), atan2(im,re)) so callers never
// need to do that conversion themselves.
func (d *DataFrame) GetMeasurements() MeasurementSet {
	measurements := make([]Measurement, 0, len(d.AssociatedConfig.PMUStationList))

	for _, pmu := range d.AssociatedConfig.PMUStationList {
		polar := make([]PolarPhasor, len(pmu.PhasorValues))
		for i, val := range pmu.PhasorValues {
			polar[i] = PolarPhasor{Magnitude: cmplx.Abs(val), Angle: cmplx.Phase(val)}
		}

		measurements = append(measurements, Measurement{
			StreamID:     pmu.IDCode,
			Stat:         pmu.Stat,
			Phasors:      pmu.PhasorValues,
			PhasorsPolar: polar,
			Analog:       pmu.AnalogValues,
			Digital:      pmu.DigitalValues,
			Frequency:    pmu.Freq,
			ROCOF:        pmu.DFreq,
		})
	}

	timestamp := float64(d.SOC) + float64(d.FracSec&0x00FFFFFF)/float64(d.AssociatedConfig.TimeBase)

	return MeasurementSet{
		PMUID:        d.IDCode,
		Time:         timestamp,
		Measurements: measurements,
	}
}
