package synchrophasor

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestPDCGetHeaderStartAndReadDataFrame(t *testing.T) {
	_, addr := startTestPMU(t)

	pdc := NewPDC(99)
	require.NoError(t, pdc.Connect(addr))
	t.Cleanup(pdc.Disconnect)

	header, err := pdc.GetHeader()
	require.NoError(t, err)
	require.Equal(t, "test pmu", header.Data)

	cfg, err := pdc.GetConfig(2)
	require.NoError(t, err)
	require.Equal(t, uint16(1), cfg.NumPMU)

	require.NoError(t, pdc.Start())

	for {
		frame, err := pdc.ReadFrame()
		require.NoError(t, err)
		if df, ok := frame.(*DataFrame); ok {
			set := df.GetMeasurements()
			require.Len(t, set.Measurements, 1)
			break
		}
	}
}

func TestPDCReadFrameFailsWithoutConfig(t *testing.T) {
	pmu, addr := startTestPMU(t)
	pmu.Config2.PMUStationList[0].Freq = 60

	pdc := NewPDC(99)
	require.NoError(t, pdc.Connect(addr))
	t.Cleanup(pdc.Disconnect)

	require.NoError(t, pdc.Start())

	_, err := pdc.ReadFrame()
	require.Error(t, err)
	require.ErrorIs(t, err, ErrMissingConfig)
}

func TestPDCQuitUnblocksInFlightRead(t *testing.T) {
	_, addr := startTestPMU(t)

	pdc := NewPDC(99)
	require.NoError(t, pdc.Connect(addr))

	done := make(chan error, 1)
	go func() {
		_, err := pdc.ReadFrame()
		done <- err
	}()

	time.Sleep(50 * time.Millisecond)
	pdc.Quit()

	select {
	case err := <-done:
		require.Error(t, err)
		require.ErrorIs(t, err, ErrConnectionClosed)
	case <-time.After(2 * time.Second):
		t.Fatal("ReadFrame did not unblock after Quit")
	}
}
