package synchrophasor

import (
	"errors"
	"net"
	"sync"
)

// PDC is a synchrophasor data concentrator client: it connects to one PMU,
// issues START/STOP/CONFIG/HEADER commands, and decodes the data frames
// that follow using the most recently retrieved configuration.
type PDC struct {
	IDCode     uint16
	PMUConfig1 *Config1Frame
	PMUConfig2 *ConfigFrame
	PMUHeader  *HeaderFrame

	conn   net.Conn
	reader *FramedReader

	quitOnce sync.Once
	quit     chan struct{}
}

// NewPDC creates a PDC client that will identify itself with idCode on
// every command frame it sends.
func NewPDC(idCode uint16) *PDC {
	return &PDC{
		IDCode: idCode,
		quit:   make(chan struct{}),
	}
}

// Connect opens a TCP connection to a PMU at address.
func (p *PDC) Connect(address string) error {
	conn, err := net.Dial("tcp", address)
	if err != nil {
		return &PdcError{Op: "connect", Err: err}
	}
	p.conn = conn
	p.reader = NewFramedReader(conn)
	return nil
}

// Disconnect closes the connection. It is safe to call more than once.
func (p *PDC) Disconnect() {
	if p.conn != nil {
		_ = p.conn.Close()
		p.conn = nil
	}
}

// Quit signals any in-flight ReadFrame to return ErrConnectionClosed by
// closing the underlying connection; subsequent calls are no-ops.
func (p *PDC) Quit() {
	p.quitOnce.Do(func() {
		close(p.quit)
		p.Disconnect()
	})
}

// SendCommand packs and sends a command frame with the given code.
func (p *PDC) SendCommand(cmdCode uint16) error {
	cmd := NewCommandFrame()
	cmd.IDCode = p.IDCode
	cmd.CMD = cmdCode
	cmd.SetTime(nil, nil)

	data, err := cmd.Pack()
	if err != nil {
		return &PdcError{Op: "pack_command", Err: err}
	}

	if _, err := p.conn.Write(data); err != nil {
		return &PdcError{Op: "send_command", Err: err}
	}
	return nil
}

// Start requests the PMU begin sending data frames.
func (p *PDC) Start() error { return p.SendCommand(CmdStart) }

// Stop requests the PMU stop sending data frames.
func (p *PDC) Stop() error { return p.SendCommand(CmdStop) }

// GetHeader requests and returns the PMU's header frame.
func (p *PDC) GetHeader() (*HeaderFrame, error) {
	if err := p.SendCommand(CmdHeader); err != nil {
		return nil, err
	}

	frame, err := p.ReadFrame()
	if err != nil {
		return nil, err
	}

	header, ok := frame.(*HeaderFrame)
	if !ok {
		return nil, &PdcError{Op: "get_header", Err: ErrInvalidResponse}
	}

	p.PMUHeader = header
	return header, nil
}

// GetConfig requests and returns configuration version 1, 2, or 3 (any
// other value defaults to 2). A Cfg3 reply is recognized by its envelope
// only (see Config3Frame) and GetConfig returns a PdcError wrapping
// ErrNotImpl for it.
func (p *PDC) GetConfig(version int) (*ConfigFrame, error) {
	var cmdCode uint16
	switch version {
	case 1:
		cmdCode = CmdCfg1
	case 3:
		cmdCode = CmdCfg3
	default:
		cmdCode = CmdCfg2
	}

	if err := p.SendCommand(cmdCode); err != nil {
		return nil, err
	}

	frame, err := p.ReadFrame()
	if err != nil {
		return nil, err
	}

	switch cfg := frame.(type) {
	case *ConfigFrame:
		p.PMUConfig2 = cfg
		return cfg, nil

	case *Config1Frame:
		p.PMUConfig1 = cfg
		cfg2 := &ConfigFrame{}
		cfg2.C37118 = cfg.C37118
		cfg2.TimeBase = cfg.TimeBase
		cfg2.NumPMU = cfg.NumPMU
		cfg2.DataRate = cfg.DataRate
		cfg2.PMUStationList = cfg.PMUStationList
		p.PMUConfig2 = cfg2
		return cfg2, nil

	case *Config3Frame:
		return nil, &PdcError{Op: "get_config", Err: ErrNotImpl}

	default:
		return nil, &PdcError{Op: "get_config", Err: ErrInvalidResponse}
	}
}

// ReadFrame blocks for the next complete frame on the connection and
// decodes it against the most recently retrieved CONFIG2 (nil if none
// has been fetched yet, in which case a Data frame cannot be decoded and
// ErrMissingConfig is returned). ReadFrame returns ErrConnectionClosed if
// Quit was called while the read was in flight.
func (p *PDC) ReadFrame() (interface{}, error) {
	frameData, err := p.reader.ReadFrame()
	if err != nil {
		select {
		case <-p.quit:
			return nil, &TransportError{Op: "read_frame", Err: ErrConnectionClosed}
		default:
		}
		return nil, &PdcError{Op: "read_frame", Err: err}
	}

	frame, err := UnpackFrame(frameData, p.PMUConfig2)
	if err != nil {
		var fe *FrameError
		if errors.As(err, &fe) && fe.Kind == MissingConfig {
			return nil, &PdcError{Op: "read_frame", Err: ErrMissingConfig}
		}
		return nil, &PdcError{Op: "read_frame", Err: err}
	}

	return frame, nil
}
