package synchrophasor

import (
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func newTestPMU(t *testing.T) *PMU {
	t.Helper()

	pmu := NewPMU()
	cfg := NewConfigFrame()
	require.NoError(t, cfg.SetIDCode(7734))
	require.NoError(t, cfg.SetTimeBase(1000000))
	require.NoError(t, cfg.SetDataRate(30))

	station := NewPMUStation("Station A", 7734, false, false, false, false)
	require.NoError(t, station.AddPhasor("VA", 100000, PhunitVoltage))
	require.NoError(t, station.AddAnalog("PWR", 1, AnunitPow))
	require.NoError(t, station.AddDigital([]string{"BRK1"}, 0, 0xFFFF))
	cfg.AddPMUStation(station)

	require.NoError(t, pmu.SetConfiguration(cfg))
	require.NoError(t, pmu.SetHeader("test pmu"))
	return pmu
}

func startTestPMU(t *testing.T) (*PMU, string) {
	t.Helper()

	pmu := newTestPMU(t)
	require.NoError(t, pmu.Run("127.0.0.1:0", "", ""))
	t.Cleanup(pmu.Stop)

	addr := pmu.tcpListener.Addr().String()
	return pmu, addr
}

func dialWithReader(t *testing.T, addr string) (net.Conn, *FramedReader) {
	t.Helper()
	conn, err := net.Dial("tcp", addr)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return conn, NewFramedReader(conn)
}

func TestPMURunRejectsEmptyConfiguration(t *testing.T) {
	pmu := NewPMU()
	pmu.Config2.PMUStationList = nil
	pmu.Config2.NumPMU = 0
	require.ErrorIs(t, pmu.Run("127.0.0.1:0", "", ""), ErrNoConfiguration)
}

func TestPMUServesHeaderOnRequest(t *testing.T) {
	_, addr := startTestPMU(t)
	conn, reader := dialWithReader(t, addr)

	cmd := NewCommandFrame()
	cmd.CMD = CmdHeader
	cmd.SetTime(nil, nil)
	data, err := cmd.Pack()
	require.NoError(t, err)

	require.NoError(t, conn.SetWriteDeadline(time.Now().Add(time.Second)))
	_, err = conn.Write(data)
	require.NoError(t, err)

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	frameData, err := reader.ReadFrame()
	require.NoError(t, err)

	header := &HeaderFrame{}
	require.NoError(t, header.Unpack(frameData))
	require.Equal(t, "test pmu", header.Data)
}

func TestPMUServesConfig2OnRequest(t *testing.T) {
	_, addr := startTestPMU(t)
	conn, reader := dialWithReader(t, addr)

	cmd := NewCommandFrame()
	cmd.CMD = CmdCfg2
	cmd.SetTime(nil, nil)
	data, err := cmd.Pack()
	require.NoError(t, err)

	require.NoError(t, conn.SetWriteDeadline(time.Now().Add(time.Second)))
	_, err = conn.Write(data)
	require.NoError(t, err)

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	frameData, err := reader.ReadFrame()
	require.NoError(t, err)

	cfg := NewConfigFrame()
	require.NoError(t, cfg.Unpack(frameData))
	require.Equal(t, uint16(1), cfg.NumPMU)
	require.Equal(t, int16(30), cfg.DataRate)
}

func TestPMUStartStreamsDataFrames(t *testing.T) {
	pmu, addr := startTestPMU(t)
	pmu.Config2.PMUStationList[0].PhasorValues[0] = complex(12345, 0)
	pmu.Config2.PMUStationList[0].AnalogValues[0] = 42
	pmu.Config2.PMUStationList[0].Freq = 60

	conn, reader := dialWithReader(t, addr)

	cmd := NewCommandFrame()
	cmd.CMD = CmdStart
	cmd.SetTime(nil, nil)
	data, err := cmd.Pack()
	require.NoError(t, err)

	require.NoError(t, conn.SetWriteDeadline(time.Now().Add(time.Second)))
	_, err = conn.Write(data)
	require.NoError(t, err)

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(3*time.Second)))
	frameData, err := reader.ReadFrame()
	require.NoError(t, err)

	frameType, err := GetFrameType(frameData)
	require.NoError(t, err)
	require.Equal(t, FrameType(FrameTypeData), frameType)
}

func TestPMUStopClosesClientConnections(t *testing.T) {
	pmu, addr := startTestPMU(t)
	conn, err := net.Dial("tcp", addr)
	require.NoError(t, err)
	defer conn.Close()

	// give the accept loop a moment to register the client
	time.Sleep(50 * time.Millisecond)

	pmu.Stop()
	require.False(t, pmu.isRunning())

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(time.Second)))
	buf := make([]byte, 1)
	_, err = conn.Read(buf)
	require.Error(t, err)
}
