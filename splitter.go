package synchrophasor

import (
	"errors"
	"io"
	"net"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"
)

// splitterClient is one downstream PDC attached to a StreamSplitter: it
// gets a raw byte copy of every frame the upstream PMU sends once it has
// issued START, and can request the cached Header/Cfg1/Cfg2/Cfg3 bytes the
// splitter captured from the upstream (Header, Cfg2 and Cfg1 on connect;
// any of the four when seen in the upstream stream).
type splitterClient struct {
	conn      net.Conn
	sendData  bool
	sendMu    sync.Mutex
	queue     *clientQueue
	closeOnce sync.Once
}

func (c *splitterClient) setSendData(v bool) {
	c.sendMu.Lock()
	c.sendData = v
	c.sendMu.Unlock()
}

func (c *splitterClient) wantsData() bool {
	c.sendMu.Lock()
	defer c.sendMu.Unlock()
	return c.sendData
}

// StreamSplitter connects to one upstream PMU as a PDC, and re-serves its
// data frame stream to any number of downstream PDCs over TCP, the way a
// substation-level concentrator fans a single PMU feed out to multiple
// control-center subscribers without re-decoding every frame.
type StreamSplitter struct {
	SourceAddress string
	ListenAddress string
	IDCode        uint16

	upstreamConn   net.Conn
	upstreamReader *FramedReader

	cacheMu      sync.RWMutex
	headerBytes  []byte
	cfg1Bytes    []byte
	cfg2Bytes    []byte
	cfg3Bytes    []byte
	liveCfg2     *ConfigFrame

	listener net.Listener
	clients  map[net.Conn]*splitterClient
	mu       sync.Mutex

	Running bool
	runMu   sync.Mutex

	logger  *log.Logger
	metrics MetricsRecorder
}

// NewStreamSplitter creates a splitter that will connect to sourceAddress
// as PDC idCode and re-serve its stream on listenAddress.
func NewStreamSplitter(sourceAddress, listenAddress string, idCode uint16) *StreamSplitter {
	return &StreamSplitter{
		SourceAddress: sourceAddress,
		ListenAddress: listenAddress,
		IDCode:        idCode,
		clients:       make(map[net.Conn]*splitterClient),
	}
}

// SetLogger sets the logger used for all splitter activity.
func (s *StreamSplitter) SetLogger(logger *log.Logger) { s.logger = logger }

// SetMetrics sets the metrics recorder. Nil disables metric recording.
func (s *StreamSplitter) SetMetrics(m MetricsRecorder) { s.metrics = m }

func (s *StreamSplitter) log() *log.Logger {
	if s.logger == nil {
		s.logger = log.New()
	}
	return s.logger
}

func (s *StreamSplitter) isRunning() bool {
	s.runMu.Lock()
	defer s.runMu.Unlock()
	return s.Running
}

// Run connects to the upstream PMU, retrieves its Header and Cfg2 frames,
// starts its data stream, and begins accepting downstream connections. It
// blocks relaying frames until Stop is called or the upstream connection
// is lost.
func (s *StreamSplitter) Run() error {
	conn, err := net.Dial("tcp", s.SourceAddress)
	if err != nil {
		return &PdcError{Op: "connect_upstream", Err: err}
	}
	s.upstreamConn = conn
	s.upstreamReader = NewFramedReader(conn)

	listener, err := net.Listen("tcp", s.ListenAddress)
	if err != nil {
		_ = conn.Close()
		return &PmuError{Op: "listen", Err: err}
	}
	s.listener = listener

	s.runMu.Lock()
	s.Running = true
	s.runMu.Unlock()

	s.log().WithFields(log.Fields{"source": s.SourceAddress, "listen": s.ListenAddress}).Info("stream splitter started")

	if err := s.primeCache(); err != nil {
		s.log().WithError(err).Warn("error priming configuration cache from upstream")
	}

	if err := s.sendUpstreamCommand(CmdStart); err != nil {
		return err
	}

	go s.acceptLoop()

	return s.relayLoop()
}

// primeCache requests Header, Cfg2 and then Cfg1 from the upstream PMU and
// caches the raw bytes, also keeping the decoded Cfg2 in liveCfg2. The
// Cfg1 request is best-effort. Cfg3 is not requested; its cache is filled
// only when a Cfg3 frame arrives in the upstream stream.
func (s *StreamSplitter) primeCache() error {
	if err := s.sendUpstreamCommand(CmdHeader); err != nil {
		return err
	}
	headerData, err := s.upstreamReader.ReadFrame()
	if err != nil {
		return &PdcError{Op: "read_header", Err: err}
	}
	s.cacheMu.Lock()
	s.headerBytes = append([]byte(nil), headerData...)
	s.cacheMu.Unlock()

	if err := s.sendUpstreamCommand(CmdCfg2); err != nil {
		return err
	}
	cfg2Data, err := s.upstreamReader.ReadFrame()
	if err != nil {
		return &PdcError{Op: "read_cfg2", Err: err}
	}
	cfg2 := NewConfigFrame()
	if err := cfg2.Unpack(cfg2Data); err != nil {
		return err
	}
	s.cacheMu.Lock()
	s.cfg2Bytes = append([]byte(nil), cfg2Data...)
	s.liveCfg2 = cfg2
	s.cacheMu.Unlock()

	if err := s.sendUpstreamCommand(CmdCfg1); err == nil {
		if cfg1Data, err := s.upstreamReader.ReadFrame(); err == nil {
			s.cacheMu.Lock()
			s.cfg1Bytes = append([]byte(nil), cfg1Data...)
			s.cacheMu.Unlock()
		}
	}

	return nil
}

func (s *StreamSplitter) sendUpstreamCommand(cmdCode uint16) error {
	cmd := NewCommandFrame()
	cmd.IDCode = s.IDCode
	cmd.CMD = cmdCode
	cmd.SetTime(nil, nil)

	data, err := cmd.Pack()
	if err != nil {
		return err
	}
	_, err = s.upstreamConn.Write(data)
	return err
}

// relayLoop reads every frame the upstream sends and forwards its raw
// bytes, unmodified, to every downstream client requesting data. Header
// and configuration frames observed mid-stream refresh the cache so a
// client connecting later still sees a current configuration.
func (s *StreamSplitter) relayLoop() error {
	defer s.Stop()

	for s.isRunning() {
		frameData, err := s.upstreamReader.ReadFrame()
		if err != nil {
			if errors.Is(err, io.EOF) {
				s.log().Info("upstream closed connection")
				return nil
			}
			return &PdcError{Op: "relay", Err: err}
		}

		frameCopy := append([]byte(nil), frameData...)

		frameType, err := SniffFrameType(frameCopy)
		if err != nil {
			s.log().WithError(err).Warn("dropping frame that failed CRC validation")
			if s.metrics != nil {
				s.metrics.RecordFrameError("crc_mismatch")
			}
			continue
		}
		s.refreshCache(frameType, frameCopy)

		s.mu.Lock()
		for _, client := range s.clients {
			if client.wantsData() {
				if client.queue.push(frameCopy) && s.metrics != nil {
					s.metrics.RecordFrameError("client_queue_drop")
				}
			}
		}
		s.mu.Unlock()

		if s.metrics != nil {
			s.metrics.RecordBytesReceived(len(frameCopy))
		}
	}

	return nil
}

// refreshCache updates the cached header/config bytes from a frame whose
// type and CRC have already been validated by the caller (SniffFrameType).
func (s *StreamSplitter) refreshCache(frameType FrameType, frameData []byte) {
	switch frameType {
	case FrameTypeHeader:
		s.cacheMu.Lock()
		s.headerBytes = frameData
		s.cacheMu.Unlock()

	case FrameTypeCfg1:
		s.cacheMu.Lock()
		s.cfg1Bytes = frameData
		s.cacheMu.Unlock()

	case FrameTypeCfg2:
		cfg2 := NewConfigFrame()
		if err := cfg2.Unpack(frameData); err != nil {
			return
		}
		s.cacheMu.Lock()
		s.cfg2Bytes = frameData
		s.liveCfg2 = cfg2
		s.cacheMu.Unlock()

	case FrameTypeCfg3:
		s.cacheMu.Lock()
		s.cfg3Bytes = frameData
		s.cacheMu.Unlock()
	}
}

// Stop closes the upstream connection, the downstream listener, and every
// downstream client connection.
func (s *StreamSplitter) Stop() {
	s.runMu.Lock()
	if !s.Running {
		s.runMu.Unlock()
		return
	}
	s.Running = false
	s.runMu.Unlock()

	if s.upstreamConn != nil {
		_ = s.upstreamConn.Close()
	}
	if s.listener != nil {
		_ = s.listener.Close()
	}

	s.mu.Lock()
	for conn := range s.clients {
		_ = conn.Close()
	}
	s.clients = make(map[net.Conn]*splitterClient)
	s.mu.Unlock()

	s.log().Info("stream splitter stopped")
}

func (s *StreamSplitter) acceptLoop() {
	for s.isRunning() {
		conn, err := s.listener.Accept()
		if err != nil {
			if s.isRunning() {
				s.log().WithError(err).Error("error accepting downstream connection")
			}
			continue
		}

		client := &splitterClient{conn: conn, queue: newClientQueue()}

		s.mu.Lock()
		s.clients[conn] = client
		s.mu.Unlock()

		if s.metrics != nil {
			s.metrics.RecordClientConnected()
		}

		go s.handleClient(client)
		go s.sendLoop(client)
	}
}

func (s *StreamSplitter) handleClient(client *splitterClient) {
	conn := client.conn
	clientAddr := conn.RemoteAddr().String()

	defer func() {
		client.closeOnce.Do(func() { _ = conn.Close() })
		s.mu.Lock()
		delete(s.clients, conn)
		s.mu.Unlock()
		if s.metrics != nil {
			s.metrics.RecordClientDisconnected()
		}
		s.log().WithField("client", clientAddr).Info("downstream PDC disconnected")
	}()

	reader := NewFramedReader(conn)

	for s.isRunning() {
		if err := conn.SetReadDeadline(time.Now().Add(1 * time.Second)); err != nil {
			return
		}

		frameData, err := reader.ReadFrame()
		if err != nil {
			var netErr net.Error
			if errors.As(err, &netErr) && netErr.Timeout() {
				continue
			}
			return
		}

		frame, err := UnpackFrame(frameData, nil)
		if err != nil {
			if s.metrics != nil {
				s.metrics.RecordFrameError("unpack_error")
			}
			continue
		}

		cmd, ok := frame.(*CommandFrame)
		if !ok {
			continue
		}

		s.handleCommand(client, cmd)
	}
}

func (s *StreamSplitter) handleCommand(client *splitterClient, cmd *CommandFrame) {
	conn := client.conn

	var response []byte
	var cmdName string

	s.cacheMu.RLock()
	switch cmd.CMD {
	case CmdStart:
		cmdName = "START"
		client.setSendData(true)
	case CmdStop:
		cmdName = "STOP"
		client.setSendData(false)
	case CmdHeader:
		cmdName = "HEADER"
		response = s.headerBytes
	case CmdCfg1:
		cmdName = "CONFIG1"
		response = s.cfg1Bytes
	case CmdCfg2:
		cmdName = "CONFIG2"
		response = s.cfg2Bytes
	case CmdCfg3:
		cmdName = "CONFIG3"
		response = s.cfg3Bytes
	default:
		cmdName = "UNKNOWN"
	}
	s.cacheMu.RUnlock()

	if s.metrics != nil {
		s.metrics.RecordCommand(cmdName)
	}

	if response == nil {
		return
	}
	if _, err := conn.Write(response); err != nil {
		s.log().WithField("client", conn.RemoteAddr().String()).WithError(err).Error("error writing cached frame")
	}
}

func (s *StreamSplitter) sendLoop(client *splitterClient) {
	conn := client.conn
	ticker := time.NewTicker(10 * time.Millisecond)
	defer ticker.Stop()

	for s.isRunning() {
		<-ticker.C

		frames := client.queue.drain()
		if len(frames) == 0 {
			continue
		}

		for _, data := range frames {
			if err := conn.SetWriteDeadline(time.Now().Add(100 * time.Millisecond)); err != nil {
				return
			}
			if _, err := conn.Write(data); err != nil {
				return
			}
		}
	}
}
