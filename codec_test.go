package synchrophasor

import (
	"encoding/hex"
	"testing"

	"github.com/stretchr/testify/require"
)

func mustHex(t *testing.T, s string) []byte {
	t.Helper()
	b, err := hex.DecodeString(s)
	require.NoError(t, err)
	return b
}

// Scenario 1: command frame "start".
func TestScenarioCommandStart(t *testing.T) {
	want := mustHex(t, "aa4100121e36448560300f0bbfd00002ce00")

	cmd := NewCommandFrame()
	require.NoError(t, cmd.SetIDCode(7734))
	cmd.CMD = CmdStart
	cmd.SetTimeWithQuality(1149591600, 770000, "+", false, false, 15)

	got, err := cmd.Pack()
	require.NoError(t, err)
	require.Equal(t, want, got)

	decoded := NewCommandFrame()
	require.NoError(t, decoded.Unpack(want))
	require.Equal(t, uint16(7734), decoded.IDCode)
	require.Equal(t, uint16(CmdStart), decoded.CMD)
	require.Equal(t, uint32(1149591600), decoded.SOC)
	require.Equal(t, uint32(0x0F0BBFD0), decoded.FracSec)
}

// Scenario 2: header frame.
func TestScenarioHeaderFrame(t *testing.T) {
	want := mustHex(t, "aa1100271e36448560300f0bbfd048656c6c6f2049276d20486561646572204672616d652e17cc")

	h := NewHeaderFrame(7734, "Hello I'm Header Frame.")
	h.SetTimeWithQuality(1149591600, 770000, "+", false, false, 15)

	got, err := h.Pack()
	require.NoError(t, err)
	require.Equal(t, want, got)

	decoded := &HeaderFrame{}
	require.NoError(t, decoded.Unpack(want))
	require.Equal(t, "Hello I'm Header Frame.", decoded.Data)
}

func buildScenarioStation() *PMUStation {
	station := NewPMUStation("Station A", 7734, false, true, false, false)
	_ = station.AddPhasor("VA", 915527, PhunitVoltage)
	_ = station.AddPhasor("VB", 915527, PhunitVoltage)
	_ = station.AddPhasor("VC", 915527, PhunitVoltage)
	_ = station.AddPhasor("I1", 45776, PhunitCurrent)
	_ = station.AddAnalog("ANALOG1", 1, AnunitPow)
	_ = station.AddAnalog("ANALOG2", 1, AnunitRMS)
	_ = station.AddAnalog("ANALOG3", 1, AnunitPeak)
	_ = station.AddDigital([]string{
		"BREAKER 1 STATUS", "BREAKER 2 STATUS", "BREAKER 3 STATUS", "BREAKER 4 STATUS",
		"BREAKER 5 STATUS", "BREAKER 6 STATUS", "BREAKER 7 STATUS", "BREAKER 8 STATUS",
		"BREAKER 9 STATUS", "BREAKER A STATUS", "BREAKER B STATUS", "BREAKER C STATUS",
		"BREAKER D STATUS", "BREAKER E STATUS", "BREAKER F STATUS", "BREAKER G STATUS",
	}, 0x0000, 0xFFFF)
	station.Fnom = FreqNom60Hz
	station.CfgCnt = 22
	return station
}

// Scenario 3: Cfg2, single PMU station.
func TestScenarioConfig2SinglePMU(t *testing.T) {
	cfg := NewConfigFrame()
	require.NoError(t, cfg.SetIDCode(7734))
	require.NoError(t, cfg.SetTimeBase(1000000))
	cfg.SetTimeWithQuality(1149577200, 463000, "-", false, true, 6)
	require.NoError(t, cfg.SetDataRate(30))
	cfg.AddPMUStation(buildScenarioStation())

	data, err := cfg.Pack()
	require.NoError(t, err)
	require.Len(t, data, 454)
	require.Equal(t, []byte{0xaa, 0x31, 0x01, 0xc6}, data[:4])
	require.Equal(t, []byte{0x00, 0x1e, 0xd5, 0xd1}, data[len(data)-4:])

	decoded := NewConfigFrame()
	require.NoError(t, decoded.Unpack(data))
	require.Equal(t, uint16(1), decoded.NumPMU)
	require.Equal(t, int16(30), decoded.DataRate)

	station := decoded.PMUStationList[0]
	require.Equal(t, []uint32{0x000df847, 0x000df847, 0x000df847, 0x0100b2d0}, station.Phunit)
	require.Equal(t, []uint32{0x00000001, 0x01000001, 0x02000001}, station.Anunit)
	require.Equal(t, []uint32{0x0000ffff}, station.Dgunit)
	require.Equal(t, uint16(0x0000), station.Fnom&0xFF00)
}

// Scenario 4: Cfg2, two PMUs.
func TestScenarioConfig2TwoPMUs(t *testing.T) {
	cfg := NewConfigFrame()
	require.NoError(t, cfg.SetIDCode(7734))
	require.NoError(t, cfg.SetTimeBase(1000000))
	cfg.SetTimeWithQuality(1149577200, 463000, "-", false, true, 6)
	require.NoError(t, cfg.SetDataRate(30))
	cfg.AddPMUStation(buildScenarioStation())
	cfg.AddPMUStation(buildScenarioStation())

	data, err := cfg.Pack()
	require.NoError(t, err)
	require.Len(t, data, 884)

	crc := data[len(data)-2:]
	require.Equal(t, "20e8", hex.EncodeToString(crc))

	decoded := NewConfigFrame()
	require.NoError(t, decoded.Unpack(data))
	require.Equal(t, uint16(2), decoded.NumPMU)
	require.Len(t, decoded.PMUStationList, 2)
}

// Scenario 5: data frame, single PMU. The prose format label in this
// scenario ("int-analog") doesn't match its own hex fixture; the fixture
// decodes cleanly as phasor=int16 rectangular, analog=float32,
// freq/dfreq=int16, and that is what this test builds and checks against.
func TestScenarioDataFrameSinglePMU(t *testing.T) {
	want := mustHex(t, "aa0100341e3644853600000041b10000392b0000e36ace7ce36a31830444000009c4000042c80000447a0000461c40003c12d43f")
	require.Len(t, want, 52)

	cfg := NewConfigFrame()
	require.NoError(t, cfg.SetTimeBase(1000000))
	station := NewPMUStation("Station A", 7734, false, true, false, false)
	require.NoError(t, station.AddPhasor("VA", 100000, PhunitVoltage))
	require.NoError(t, station.AddPhasor("VB", 100000, PhunitVoltage))
	require.NoError(t, station.AddPhasor("VC", 100000, PhunitVoltage))
	require.NoError(t, station.AddPhasor("IA", 100000, PhunitCurrent))
	require.NoError(t, station.AddAnalog("PWR", 1, AnunitPow))
	require.NoError(t, station.AddAnalog("RMS", 1, AnunitRMS))
	require.NoError(t, station.AddAnalog("PEAK", 1, AnunitPeak))
	require.NoError(t, station.AddDigital([]string{"BRK1"}, 0x0000, 0xFFFF))
	cfg.AddPMUStation(station)

	station.PhasorValues[0] = complex(14635, 0)
	station.PhasorValues[1] = complex(-7318, -12676)
	station.PhasorValues[2] = complex(-7318, 12675)
	station.PhasorValues[3] = complex(1092, 0)
	station.Freq = 60 + 2500.0/1000.0
	station.DFreq = 0
	station.AnalogValues[0] = 100
	station.AnalogValues[1] = 1000
	station.AnalogValues[2] = 10000
	station.DigitalValues[0] = unpack16Bits(0x3c12)
	station.Stat = 0x0000

	df := NewDataFrame(cfg)
	require.NoError(t, df.SetIDCode(7734))
	df.SOC = 1149580800
	df.FracSec = 16817

	got, err := df.Pack()
	require.NoError(t, err)
	require.Equal(t, want, got)

	decoded := NewDataFrame(cfg)
	require.NoError(t, decoded.Unpack(want))
	set := decoded.GetMeasurements()
	require.Len(t, set.Measurements, 1)
	m := set.Measurements[0]
	require.InDelta(t, real(m.Phasors[0]), 14635, 0.001)
	require.InDelta(t, imag(m.Phasors[1]), -12676, 0.001)
	require.Equal(t, []float32{100, 1000, 10000}, m.Analog)
	require.Equal(t, uint16(0x3c12), packDigitalWord(m.Digital[0]))
}

// Scenario 6: data frame, two PMUs.
func TestScenarioDataFrameTwoPMUs(t *testing.T) {
	cfg := NewConfigFrame()
	require.NoError(t, cfg.SetTimeBase(1000000))

	for i := 0; i < 2; i++ {
		station := NewPMUStation("Station A", 7734, false, true, false, false)
		require.NoError(t, station.AddPhasor("VA", 100000, PhunitVoltage))
		require.NoError(t, station.AddPhasor("VB", 100000, PhunitVoltage))
		require.NoError(t, station.AddPhasor("VC", 100000, PhunitVoltage))
		require.NoError(t, station.AddPhasor("IA", 100000, PhunitCurrent))
		require.NoError(t, station.AddAnalog("PWR", 1, AnunitPow))
		require.NoError(t, station.AddAnalog("RMS", 1, AnunitRMS))
		require.NoError(t, station.AddAnalog("PEAK", 1, AnunitPeak))
		require.NoError(t, station.AddDigital([]string{"BRK1"}, 0x0000, 0xFFFF))

		station.PhasorValues[0] = complex(14635, 0)
		station.PhasorValues[1] = complex(-7318, -12676)
		station.PhasorValues[2] = complex(-7318, 12675)
		station.PhasorValues[3] = complex(1092, 0)
		station.Freq = 60 + 2500.0/1000.0
		station.AnalogValues[0] = 100
		station.AnalogValues[1] = 1000
		station.AnalogValues[2] = 10000
		station.DigitalValues[0] = unpack16Bits(0x3c12)

		cfg.AddPMUStation(station)
	}

	df := NewDataFrame(cfg)
	require.NoError(t, df.SetIDCode(7734))
	df.SOC = 1149580800
	df.FracSec = 16817

	data, err := df.Pack()
	require.NoError(t, err)
	require.Len(t, data, 88)
	require.Equal(t, "bd52", hex.EncodeToString(data[len(data)-2:]))
}

func unpack16Bits(word uint16) []bool {
	bits := make([]bool, 16)
	for i := 0; i < 16; i++ {
		bits[i] = word&(1<<uint(i)) != 0
	}
	return bits
}

func packDigitalWord(bits []bool) uint16 {
	var word uint16
	for i, b := range bits {
		if b {
			word |= 1 << uint(i)
		}
	}
	return word
}
