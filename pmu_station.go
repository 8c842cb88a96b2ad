package synchrophasor

// PMUStation represents one measurement sub-stream within a configuration:
// its channel layout (phasor/analog/digital counts, names, units) plus the
// live values a data frame carries for it.
type PMUStation struct {
	C37118
	STN           string
	Format        uint16
	Phnmr         uint16
	Annmr         uint16
	Dgnmr         uint16
	CHNAMPhasor   []string
	CHNAMAnalog   []string
	CHNAMDigital  []string
	Phunit        []uint32
	Anunit        []uint32
	Dgunit        []uint32
	Fnom          uint16
	CfgCnt        uint16
	Stat          uint16
	PhasorValues  []complex128
	AnalogValues  []float32
	DigitalValues [][]bool
	Freq          float32
	DFreq         float32
}

// NewPMUStation creates a new PMU station with given parameters.
func NewPMUStation(name string, idCode uint16, freqType, analogType, phasorType, coordType bool) *PMUStation {
	pmu := &PMUStation{
		STN:           name,
		CHNAMPhasor:   make([]string, 0),
		CHNAMAnalog:   make([]string, 0),
		CHNAMDigital:  make([]string, 0),
		Phunit:        make([]uint32, 0),
		Anunit:        make([]uint32, 0),
		Dgunit:        make([]uint32, 0),
		PhasorValues:  make([]complex128, 0),
		AnalogValues:  make([]float32, 0),
		DigitalValues: make([][]bool, 0),
	}
	pmu.IDCode = idCode
	pmu.SetFormat(freqType, analogType, phasorType, coordType)
	return pmu
}

// SetFormat sets the FORMAT word's four meaningful low bits.
func (p *PMUStation) SetFormat(freqType, analogType, phasorType, coordType bool) {
	p.Format = 0
	if coordType {
		p.Format |= 1
	}
	if phasorType {
		p.Format |= 1 << 1
	}
	if analogType {
		p.Format |= 1 << 2
	}
	if freqType {
		p.Format |= 1 << 3
	}
}

// FormatCoord returns true if phasor format is polar.
func (p *PMUStation) FormatCoord() bool { return (p.Format & 0x01) != 0 }

// FormatPhasorType returns true if phasor format is float.
func (p *PMUStation) FormatPhasorType() bool { return (p.Format & 0x02) != 0 }

// FormatAnalogType returns true if analog format is float.
func (p *PMUStation) FormatAnalogType() bool { return (p.Format & 0x04) != 0 }

// FormatFreqType returns true if freq/dfreq format is float.
func (p *PMUStation) FormatFreqType() bool { return (p.Format & 0x08) != 0 }

// AddPhasor adds a phasor channel. phType is 0 (voltage) or 1 (current);
// factor is the unsigned 24-bit scale in units of 1e-5 V or A per bit.
func (p *PMUStation) AddPhasor(name string, factor uint32, phType uint8) error {
	if factor > 0x00FFFFFF {
		return newFrameError(FieldOutOfRange, "phunit_scale", factor)
	}
	p.CHNAMPhasor = append(p.CHNAMPhasor, padString(name))
	p.Phunit = append(p.Phunit, (uint32(phType)<<24)|(factor&0x00FFFFFF))
	p.Phnmr++
	p.PhasorValues = append(p.PhasorValues, complex(0, 0))
	return nil
}

// AddAnalog adds an analog channel. anType is 0 (pow), 1 (rms) or 2 (peak);
// factor is the signed 24-bit user scale.
func (p *PMUStation) AddAnalog(name string, factor uint32, anType uint8) error {
	if factor > 0x00FFFFFF {
		return newFrameError(FieldOutOfRange, "anunit_scale", factor)
	}
	p.CHNAMAnalog = append(p.CHNAMAnalog, padString(name))
	p.Anunit = append(p.Anunit, (uint32(anType)<<24)|(factor&0x00FFFFFF))
	p.Annmr++
	p.AnalogValues = append(p.AnalogValues, 0.0)
	return nil
}

// AddDigital adds one digital word (up to 16 channel labels, padded with
// blank names to fill the word) with its normal-status and valid-inputs
// masks.
func (p *PMUStation) AddDigital(names []string, normal, valid uint16) error {
	if len(names) > 16 {
		return newFrameError(ShapeMismatch, "digital_names", len(names))
	}
	word := make([]string, 16)
	copy(word, names)
	for i := range word {
		p.CHNAMDigital = append(p.CHNAMDigital, padString(word[i]))
	}
	p.Dgunit = append(p.Dgunit, (uint32(normal)<<16)|uint32(valid))
	p.Dgnmr++
	p.DigitalValues = append(p.DigitalValues, make([]bool, 16))
	return nil
}

// GetPhasorFactor returns the scale factor for a phasor channel.
func (p *PMUStation) GetPhasorFactor(index int) uint32 {
	if index >= len(p.Phunit) {
		return 1
	}
	return p.Phunit[index] & 0x00FFFFFF
}

// GetNominalFrequency returns the nominal frequency based on the FNOM bit.
func (p *PMUStation) GetNominalFrequency() float32 {
	if p.Fnom&0x01 == FreqNom50Hz {
		return 50.0
	}
	return 60.0
}

// validateShape enforces that every per-station list field has exactly the
// count its PHNMR/ANNMR/DGNMR declares (§3 Invariants).
func (p *PMUStation) validateShape() error {
	if len(p.CHNAMPhasor) != int(p.Phnmr) || len(p.Phunit) != int(p.Phnmr) || len(p.PhasorValues) != int(p.Phnmr) {
		return newFrameError(ShapeMismatch, "phnmr", p.Phnmr)
	}
	if len(p.CHNAMAnalog) != int(p.Annmr) || len(p.Anunit) != int(p.Annmr) || len(p.AnalogValues) != int(p.Annmr) {
		return newFrameError(ShapeMismatch, "annmr", p.Annmr)
	}
	if len(p.Dgunit) != int(p.Dgnmr) || len(p.DigitalValues) != int(p.Dgnmr) {
		return newFrameError(ShapeMismatch, "dgnmr", p.Dgnmr)
	}
	if len(p.CHNAMDigital) != int(p.Dgnmr)*16 {
		return newFrameError(ShapeMismatch, "channel_names", len(p.CHNAMDigital))
	}
	return nil
}
