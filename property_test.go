package synchrophasor

import (
	"io"
	"math/rand"
	"net"
	"testing"

	"github.com/stretchr/testify/require"
)

func randomConfigFrame(r *rand.Rand) *ConfigFrame {
	cfg := NewConfigFrame()
	_ = cfg.SetIDCode(uint16(1 + r.Intn(60000)))
	_ = cfg.SetTimeBase(1000000)
	_ = cfg.SetDataRate(int16(1 + r.Intn(60)))
	cfg.SetTime(nil, nil)

	numStations := 1 + r.Intn(3)
	for s := 0; s < numStations; s++ {
		station := NewPMUStation("Station", uint16(1+r.Intn(60000)), r.Intn(2) == 0, r.Intn(2) == 0, r.Intn(2) == 0, r.Intn(2) == 0)

		numPhasors := r.Intn(4)
		for i := 0; i < numPhasors; i++ {
			_ = station.AddPhasor("CH", uint32(1+r.Intn(1000000)), uint8(r.Intn(2)))
		}
		numAnalog := r.Intn(3)
		for i := 0; i < numAnalog; i++ {
			_ = station.AddAnalog("AN", uint32(1+r.Intn(1000000)), uint8(r.Intn(3)))
		}
		if r.Intn(2) == 0 {
			_ = station.AddDigital([]string{"D1"}, 0, 0xFFFF)
		}
		station.Fnom = uint16(r.Intn(2))
		station.CfgCnt = uint16(r.Intn(100))
		cfg.AddPMUStation(station)
	}
	return cfg
}

func randomizeDataValues(r *rand.Rand, cfg *ConfigFrame) {
	for _, station := range cfg.PMUStationList {
		for i := range station.PhasorValues {
			station.PhasorValues[i] = complex(float64(r.Intn(2000)-1000), float64(r.Intn(2000)-1000))
		}
		for i := range station.AnalogValues {
			station.AnalogValues[i] = float32(r.Intn(2000) - 1000)
		}
		station.Freq = station.GetNominalFrequency() + float32(r.Intn(200)-100)/100
		station.DFreq = float32(r.Intn(100)-50) / 100
		for _, word := range station.DigitalValues {
			for i := range word {
				word[i] = r.Intn(2) == 0
			}
		}
	}
}

// TestConfigRoundTrip: encode then decode a random valid configuration
// yields an equal value.
func TestConfigRoundTrip(t *testing.T) {
	r := rand.New(rand.NewSource(1))

	for i := 0; i < 20; i++ {
		cfg := randomConfigFrame(r)

		data, err := cfg.Pack()
		require.NoError(t, err)

		decoded := NewConfigFrame()
		require.NoError(t, decoded.Unpack(data))

		require.Equal(t, cfg.IDCode, decoded.IDCode)
		require.Equal(t, cfg.TimeBase, decoded.TimeBase)
		require.Equal(t, cfg.DataRate, decoded.DataRate)
		require.Equal(t, cfg.NumPMU, decoded.NumPMU)
		require.Len(t, decoded.PMUStationList, len(cfg.PMUStationList))

		for s, station := range cfg.PMUStationList {
			ds := decoded.PMUStationList[s]
			require.Equal(t, station.Phunit, ds.Phunit)
			require.Equal(t, station.Anunit, ds.Anunit)
			require.Equal(t, station.Dgunit, ds.Dgunit)
			require.Equal(t, station.Format, ds.Format)
		}
	}
}

// TestDataFrameRoundTrip covers every combination of the 4 format bits
// with a randomized data frame (format-matrix exhaustion).
func TestDataFrameRoundTrip(t *testing.T) {
	r := rand.New(rand.NewSource(2))

	for freqFloat := 0; freqFloat < 2; freqFloat++ {
		for analogFloat := 0; analogFloat < 2; analogFloat++ {
			for phasorFloat := 0; phasorFloat < 2; phasorFloat++ {
				for coordPolar := 0; coordPolar < 2; coordPolar++ {
					cfg := NewConfigFrame()
					_ = cfg.SetTimeBase(1000000)

					station := NewPMUStation("S", 1, freqFloat == 1, analogFloat == 1, phasorFloat == 1, coordPolar == 1)
					_ = station.AddPhasor("VA", 100000, PhunitVoltage)
					_ = station.AddAnalog("AN", 1, AnunitPow)
					_ = station.AddDigital([]string{"D"}, 0, 0xFFFF)
					cfg.AddPMUStation(station)

					randomizeDataValues(r, cfg)

					df := NewDataFrame(cfg)
					_ = df.SetIDCode(1)
					df.SetTime(nil, nil)

					data, err := df.Pack()
					require.NoError(t, err)

					decoded := NewDataFrame(cfg)
					require.NoError(t, decoded.Unpack(data))
				}
			}
		}
	}
}

// TestCRCCorruptionDetected: flipping any single bit in a valid command
// frame causes decode to fail. A flip outside FRAMESIZE fails with
// CrcMismatch; a flip inside FRAMESIZE fails the frame-size check with
// ShapeMismatch before the CRC is compared.
func TestCRCCorruptionDetected(t *testing.T) {
	cmd := NewCommandFrame()
	_ = cmd.SetIDCode(42)
	cmd.CMD = CmdStart
	cmd.SetTime(nil, nil)

	data, err := cmd.Pack()
	require.NoError(t, err)

	for byteIdx := 0; byteIdx < len(data); byteIdx++ {
		for bit := 0; bit < 8; bit++ {
			corrupted := append([]byte(nil), data...)
			corrupted[byteIdx] ^= 1 << uint(bit)

			decoded := NewCommandFrame()
			err := decoded.Unpack(corrupted)
			if err == nil {
				// Flipping bits inside FRAMESIZE can produce a length
				// mismatch instead of reaching the CRC check; either
				// failure mode is acceptable, but silent success is not.
				t.Fatalf("byte %d bit %d: corruption was not detected", byteIdx, bit)
			}
		}
	}
}

// fakeConn feeds ReadFrame fixed-size chunks to simulate a TCP stream
// split into small reads.
type fakeConn struct {
	net.Conn
	data      []byte
	pos       int
	chunkSize int
}

func (f *fakeConn) Read(p []byte) (int, error) {
	if f.pos >= len(f.data) {
		return 0, io.EOF
	}
	n := f.chunkSize
	if n > len(p) {
		n = len(p)
	}
	if f.pos+n > len(f.data) {
		n = len(f.data) - f.pos
	}
	copy(p, f.data[f.pos:f.pos+n])
	f.pos += n
	return n, nil
}

// TestFramedReaderPartialReads: chunk a valid frame into arbitrary
// byte-sized pieces and feed a framed reader; it yields the original
// buffer exactly once.
func TestFramedReaderPartialReads(t *testing.T) {
	cmd := NewCommandFrame()
	_ = cmd.SetIDCode(7734)
	cmd.CMD = CmdStart
	cmd.SetTime(nil, nil)
	data, err := cmd.Pack()
	require.NoError(t, err)

	for chunkSize := 1; chunkSize <= len(data); chunkSize++ {
		conn := &fakeConn{data: data, chunkSize: chunkSize}
		reader := NewFramedReader(conn)

		got, err := reader.ReadFrame()
		require.NoError(t, err, "chunk size %d", chunkSize)
		require.Equal(t, data, got, "chunk size %d", chunkSize)

		_, err = reader.ReadFrame()
		require.ErrorIs(t, err, io.EOF)
	}
}
