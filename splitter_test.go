package synchrophasor

import (
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func pickFreeAddr(t *testing.T) string {
	t.Helper()
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := l.Addr().String()
	require.NoError(t, l.Close())
	return addr
}

func TestSplitterRelaysDataFramesToDownstream(t *testing.T) {
	pmu, upstreamAddr := startTestPMU(t)
	pmu.Config2.PMUStationList[0].Freq = 60
	pmu.Config2.PMUStationList[0].PhasorValues[0] = complex(1000, 0)

	listenAddr := pickFreeAddr(t)
	splitter := NewStreamSplitter(upstreamAddr, listenAddr, 55)
	t.Cleanup(splitter.Stop)

	runErr := make(chan error, 1)
	go func() { runErr <- splitter.Run() }()

	// wait for the splitter's downstream listener to come up
	var conn net.Conn
	var err error
	for i := 0; i < 50; i++ {
		conn, err = net.Dial("tcp", listenAddr)
		if err == nil {
			break
		}
		time.Sleep(20 * time.Millisecond)
	}
	require.NoError(t, err)
	defer conn.Close()

	reader := NewFramedReader(conn)

	downPDC := NewPDC(66)
	downPDC.conn = conn
	downPDC.reader = reader

	require.NoError(t, downPDC.Start())

	for {
		require.NoError(t, conn.SetReadDeadline(time.Now().Add(3*time.Second)))
		frameData, err := reader.ReadFrame()
		require.NoError(t, err)

		frameType, err := SniffFrameType(frameData)
		require.NoError(t, err)
		if frameType == FrameTypeData {
			break
		}
	}
}

func TestSplitterServesCachedHeaderAndConfig(t *testing.T) {
	_, upstreamAddr := startTestPMU(t)

	listenAddr := pickFreeAddr(t)
	splitter := NewStreamSplitter(upstreamAddr, listenAddr, 55)
	t.Cleanup(splitter.Stop)

	go func() { _ = splitter.Run() }()

	var conn net.Conn
	var err error
	for i := 0; i < 50; i++ {
		conn, err = net.Dial("tcp", listenAddr)
		if err == nil {
			break
		}
		time.Sleep(20 * time.Millisecond)
	}
	require.NoError(t, err)
	defer conn.Close()

	reader := NewFramedReader(conn)

	cmd := NewCommandFrame()
	cmd.CMD = CmdHeader
	cmd.SetTime(nil, nil)
	data, err := cmd.Pack()
	require.NoError(t, err)

	require.NoError(t, conn.SetWriteDeadline(time.Now().Add(time.Second)))
	_, err = conn.Write(data)
	require.NoError(t, err)

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(3*time.Second)))
	frameData, err := reader.ReadFrame()
	require.NoError(t, err)

	header := &HeaderFrame{}
	require.NoError(t, header.Unpack(frameData))
	require.Equal(t, "test pmu", header.Data)

	cmd = NewCommandFrame()
	cmd.CMD = CmdCfg2
	cmd.SetTime(nil, nil)
	data, err = cmd.Pack()
	require.NoError(t, err)

	require.NoError(t, conn.SetWriteDeadline(time.Now().Add(time.Second)))
	_, err = conn.Write(data)
	require.NoError(t, err)

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(3*time.Second)))
	frameData, err = reader.ReadFrame()
	require.NoError(t, err)

	cfg := NewConfigFrame()
	require.NoError(t, cfg.Unpack(frameData))
	require.Equal(t, uint16(1), cfg.NumPMU)
	require.Equal(t, int16(30), cfg.DataRate)
}
