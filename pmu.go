package synchrophasor

import (
	"errors"
	"fmt"
	"io"
	"net"
	"strings"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"
)

// pmuClient tracks one connected PDC: its transport, whether it has
// requested data, and its bounded outbound queue.
type pmuClient struct {
	conn      net.Conn
	sendData  bool
	sendMu    sync.Mutex
	queue     *clientQueue
	closeOnce sync.Once
}

func (c *pmuClient) setSendData(v bool) {
	c.sendMu.Lock()
	c.sendData = v
	c.sendMu.Unlock()
}

func (c *pmuClient) wantsData() bool {
	c.sendMu.Lock()
	defer c.sendMu.Unlock()
	return c.sendData
}

// PMU is a synchrophasor data source: it serves Header/Config/Data frames
// to any number of PDC clients over TCP, accepts START/STOP/CONFIG
// commands, and optionally broadcasts data frames over UDP.
type PMU struct {
	Config1  *Config1Frame
	Config2  *ConfigFrame
	Header   *HeaderFrame
	DataRate int16

	tcpListener  net.Listener
	udpConn      net.PacketConn
	udpBroadcast net.Addr

	clients      map[net.Conn]*pmuClient
	clientsMutex sync.Mutex

	Running bool
	runMu   sync.Mutex

	logger  *log.Logger
	metrics MetricsRecorder
}

// NewPMU creates a PMU with a minimal default configuration. Callers
// should replace Config1/Config2/Header before calling Run.
func NewPMU() *PMU {
	pmu := &PMU{
		clients: make(map[net.Conn]*pmuClient),
	}

	pmu.Config2 = NewConfigFrame()
	pmu.Config2.IDCode = 7
	pmu.Config2.SOC = uint32(time.Now().Unix())
	pmu.Config2.FracSec = 0
	pmu.Config2.TimeBase = 1000000
	pmu.Config2.DataRate = 15

	pmu.Config1 = NewConfig1Frame()
	pmu.Config1.ConfigFrame = *pmu.Config2
	pmu.Config1.Sync = (SyncAA << 8) | SyncCfg1

	pmu.Header = NewHeaderFrame(pmu.Config2.IDCode, "")

	return pmu
}

// SetLogger sets the logger used for all PMU activity.
func (p *PMU) SetLogger(logger *log.Logger) {
	p.logger = logger
}

// SetMetrics sets the metrics recorder. Nil disables metric recording.
func (p *PMU) SetMetrics(m MetricsRecorder) {
	p.metrics = m
}

func (p *PMU) log() *log.Logger {
	if p.logger == nil {
		p.logger = log.New()
	}
	return p.logger
}

// SetConfiguration replaces Config1/Config2, increments CFGCNT on every
// PMU station of cfg (the STAT word of later data frames is left
// unchanged), and broadcasts the new Cfg2 to every connected client,
// mirroring the original set_configuration's
// self.send(self.cfg2) (_examples/original_source/synchrophasor/pmu.py).
func (p *PMU) SetConfiguration(cfg *ConfigFrame) error {
	p.clientsMutex.Lock()
	for _, station := range cfg.PMUStationList {
		station.CfgCnt++
	}

	p.Config2 = cfg
	c1 := NewConfig1Frame()
	c1.ConfigFrame = *cfg
	c1.Sync = (SyncAA << 8) | SyncCfg1
	p.Config1 = c1
	p.clientsMutex.Unlock()

	return p.broadcastConfig()
}

// SetID updates the stream's ID code on both Config1 and Config2 and
// broadcasts the new Cfg2, mirroring the original set_id's
// self.send(self.cfg2).
func (p *PMU) SetID(id uint16) error {
	if id == 0 {
		return newFrameError(FieldOutOfRange, "id_code", id)
	}

	p.clientsMutex.Lock()
	p.Config2.IDCode = id
	p.Config1.IDCode = id
	p.clientsMutex.Unlock()

	return p.broadcastConfig()
}

// SetDataRate updates the configured reporting rate and broadcasts the
// new Cfg2. dataSender re-reads Config2.DataRate on every tick, so the
// new pacing takes effect on the tick following the change.
func (p *PMU) SetDataRate(rate int16) error {
	if rate == 0 {
		return newFrameError(FieldOutOfRange, "data_rate", rate)
	}
	p.clientsMutex.Lock()
	p.Config2.DataRate = rate
	p.Config1.DataRate = rate
	p.clientsMutex.Unlock()

	return p.broadcastConfig()
}

// SetDataFormat updates the FREQ/ANALOG/PHASOR/coordinate FORMAT flags on
// every station of both Config1 and Config2 and broadcasts the new Cfg2,
// mirroring the original set_data_format's self.send(self.cfg2).
func (p *PMU) SetDataFormat(freqType, analogType, phasorType, coordType bool) error {
	p.clientsMutex.Lock()
	for _, station := range p.Config2.PMUStationList {
		station.SetFormat(freqType, analogType, phasorType, coordType)
	}
	for _, station := range p.Config1.PMUStationList {
		station.SetFormat(freqType, analogType, phasorType, coordType)
	}
	p.clientsMutex.Unlock()

	return p.broadcastConfig()
}

// SetHeader replaces the free-form header text served on CmdHeader and
// broadcasts it to every connected client, mirroring the original
// set_header's self.send(self.header).
func (p *PMU) SetHeader(info string) error {
	p.clientsMutex.Lock()
	p.Header = NewHeaderFrame(p.Config2.IDCode, info)
	p.clientsMutex.Unlock()

	return p.broadcastHeader()
}

// broadcastConfig packs the current Cfg2 with a fresh timestamp and
// enqueues it onto every connected client's outbound queue, independent
// of each client's start/stop state.
func (p *PMU) broadcastConfig() error {
	p.clientsMutex.Lock()
	p.Config2.SetTime(nil, nil)
	data, err := p.Config2.Pack()
	p.clientsMutex.Unlock()
	if err != nil {
		return &PmuError{Op: "broadcast_config", Err: err}
	}

	p.broadcastToClients(data)
	if p.metrics != nil {
		p.metrics.RecordConfigFrameSent(len(data))
	}
	return nil
}

// broadcastHeader packs the current header with a fresh timestamp and
// enqueues it onto every connected client's outbound queue.
func (p *PMU) broadcastHeader() error {
	p.clientsMutex.Lock()
	p.Header.SetTime(nil, nil)
	data, err := p.Header.Pack()
	p.clientsMutex.Unlock()
	if err != nil {
		return &PmuError{Op: "broadcast_header", Err: err}
	}

	p.broadcastToClients(data)
	if p.metrics != nil {
		p.metrics.RecordHeaderFrameSent(len(data))
	}
	return nil
}

// broadcastToClients enqueues data onto every connected client's outbound
// queue regardless of that client's sendData state. Used for
// configuration/header change notifications, as distinct from
// dataSender's per-tick fan-out which only reaches clients that issued
// START.
func (p *PMU) broadcastToClients(data []byte) {
	p.clientsMutex.Lock()
	defer p.clientsMutex.Unlock()
	for _, client := range p.clients {
		if client.queue.push(data) && p.metrics != nil {
			p.metrics.RecordFrameError("client_queue_drop")
		}
	}
}

// sendableFrame is any typed frame PMU.Send can timestamp, pack, and
// broadcast.
type sendableFrame interface {
	Pack() ([]byte, error)
	SetTime(soc *uint32, fracSec *uint32)
}

// Send broadcasts frame to every connected client. frame must be a typed
// frame (anything with Pack/SetTime, e.g. *HeaderFrame, *ConfigFrame,
// *Config1Frame, *CommandFrame, *DataFrame) or raw []byte; anything else
// fails, mirroring the original send()'s type check.
func (p *PMU) Send(frame interface{}) error {
	var data []byte

	switch v := frame.(type) {
	case []byte:
		data = v
	case sendableFrame:
		v.SetTime(nil, nil)
		packed, err := v.Pack()
		if err != nil {
			return &PmuError{Op: "send", Err: err}
		}
		data = packed
	default:
		return &PmuError{Op: "send", Err: ErrInvalidSendFrame}
	}

	p.broadcastToClients(data)
	return nil
}

// SendData packs one data frame from Config2's stations' current values
// and enqueues it to every client that has issued START, broadcasting
// over UDP too if configured. It is the single-shot form of what
// dataSender repeats every tick; phasor/analog/freq coercion to each
// station's configured integer or float FORMAT happens inside
// DataFrame.Pack, so callers always work in engineering units, mirroring
// the original send_data.
func (p *PMU) SendData() error {
	_, err := p.sendOneDataFrame()
	return err
}

// Run starts serving on a TCP address. If udpLocalAddress is non-empty it
// also opens a UDP socket bound there and, when udpTargetAddress is also
// set, broadcasts every data frame to that fixed remote address (the
// C37.118 UDP path has no session handshake to discover subscribers).
// Run returns ErrNoConfiguration if Config2 has no PMU stations.
func (p *PMU) Run(tcpAddress, udpLocalAddress, udpTargetAddress string) error {
	if p.Config2 == nil || len(p.Config2.PMUStationList) == 0 {
		return ErrNoConfiguration
	}

	listener, err := net.Listen("tcp", tcpAddress)
	if err != nil {
		return &PmuError{Op: "listen", Err: err}
	}
	p.tcpListener = listener

	if udpLocalAddress != "" {
		udpConn, err := net.ListenPacket("udp", udpLocalAddress)
		if err != nil {
			_ = listener.Close()
			return &PmuError{Op: "listen_udp", Err: err}
		}
		p.udpConn = udpConn

		if udpTargetAddress != "" {
			target, err := net.ResolveUDPAddr("udp", udpTargetAddress)
			if err != nil {
				_ = listener.Close()
				_ = udpConn.Close()
				return &PmuError{Op: "resolve_udp_target", Err: err}
			}
			p.udpBroadcast = target
		}
	}

	p.runMu.Lock()
	p.Running = true
	p.runMu.Unlock()

	p.log().WithFields(log.Fields{"tcp": tcpAddress, "udp": udpLocalAddress, "udp_target": udpTargetAddress}).Info("PMU server listening")

	go p.acceptLoop()
	go p.dataSender()

	return nil
}

func (p *PMU) isRunning() bool {
	p.runMu.Lock()
	defer p.runMu.Unlock()
	return p.Running
}

// Stop shuts down the listeners and closes every connected client.
func (p *PMU) Stop() {
	p.runMu.Lock()
	p.Running = false
	p.runMu.Unlock()

	if p.tcpListener != nil {
		_ = p.tcpListener.Close()
	}
	if p.udpConn != nil {
		_ = p.udpConn.Close()
	}

	p.clientsMutex.Lock()
	for conn := range p.clients {
		_ = conn.Close()
	}
	p.clients = make(map[net.Conn]*pmuClient)
	p.clientsMutex.Unlock()

	p.log().Info("PMU server stopped")
}

func (p *PMU) acceptLoop() {
	for p.isRunning() {
		conn, err := p.tcpListener.Accept()
		if err != nil {
			if p.isRunning() {
				p.log().WithError(err).Error("error accepting connection")
			}
			continue
		}

		clientAddr := conn.RemoteAddr().String()
		p.log().WithField("client", clientAddr).Info("PDC client connected")

		client := &pmuClient{conn: conn, queue: newClientQueue()}

		p.clientsMutex.Lock()
		p.clients[conn] = client
		p.clientsMutex.Unlock()

		if p.metrics != nil {
			p.metrics.RecordClientConnected()
		}

		go p.handleClient(client)
		go p.sendLoop(client)
	}
}

func (p *PMU) handleClient(client *pmuClient) {
	conn := client.conn
	clientAddr := conn.RemoteAddr().String()

	defer func() {
		client.closeOnce.Do(func() { _ = conn.Close() })

		p.clientsMutex.Lock()
		delete(p.clients, conn)
		p.clientsMutex.Unlock()

		if p.metrics != nil {
			p.metrics.RecordClientDisconnected()
		}
		p.log().WithField("client", clientAddr).Info("PDC client disconnected")
	}()

	reader := NewFramedReader(conn)

	for p.isRunning() {
		if err := conn.SetReadDeadline(time.Now().Add(1 * time.Second)); err != nil {
			p.log().WithField("client", clientAddr).WithError(err).Error("error setting read deadline")
			return
		}

		frameData, err := reader.ReadFrame()
		if err != nil {
			var netErr net.Error
			if errors.As(err, &netErr) && netErr.Timeout() {
				continue
			}
			if !errors.Is(err, io.EOF) {
				p.log().WithFields(log.Fields{"client": clientAddr, "error": err}).Error("error reading from client")
			}
			return
		}

		if p.metrics != nil {
			p.metrics.RecordBytesReceived(len(frameData))
		}

		frame, err := UnpackFrame(frameData, nil)
		if err != nil {
			p.log().WithFields(log.Fields{"client": clientAddr, "error": err}).Error("error unpacking frame")
			if p.metrics != nil {
				p.metrics.RecordFrameError("unpack_error")
			}
			continue
		}

		if cmd, ok := frame.(*CommandFrame); ok {
			p.handleCommand(client, cmd)
		}
	}
}

func (p *PMU) handleCommand(client *pmuClient, cmd *CommandFrame) {
	conn := client.conn
	clientAddr := conn.RemoteAddr().String()
	var response []byte
	var err error
	var cmdName string

	switch cmd.CMD {
	case CmdStart:
		cmdName = "START"
		client.setSendData(true)
		p.log().WithField("client", clientAddr).Info("started data transmission")

	case CmdStop:
		cmdName = "STOP"
		client.setSendData(false)
		p.log().WithField("client", clientAddr).Info("stopped data transmission")

	case CmdHeader:
		cmdName = "HEADER"
		p.Header.SetTime(nil, nil)
		response, err = p.Header.Pack()
		if err == nil && p.metrics != nil {
			p.metrics.RecordHeaderFrameSent(len(response))
		}

	case CmdCfg1:
		cmdName = "CONFIG1"
		p.Config1.SetTime(nil, nil)
		response, err = p.Config1.Pack()
		if err == nil && p.metrics != nil {
			p.metrics.RecordConfigFrameSent(len(response))
		}

	case CmdCfg2:
		cmdName = "CONFIG2"
		p.Config2.SetTime(nil, nil)
		response, err = p.Config2.Pack()
		if err == nil && p.metrics != nil {
			p.metrics.RecordConfigFrameSent(len(response))
		}

	case CmdCfg3:
		cmdName = "CONFIG3"
		err = ErrNotImpl

	default:
		cmdName = fmt.Sprintf("UNKNOWN(0x%04X)", cmd.CMD)
	}

	if p.metrics != nil {
		p.metrics.RecordCommand(cmdName)
	}

	p.log().WithFields(log.Fields{
		"client":  clientAddr,
		"command": cmdName,
		"cmd_id":  cmd.IDCode,
	}).Debug("received command")

	if response != nil && err == nil {
		if _, err := conn.Write(response); err != nil {
			p.log().WithFields(log.Fields{"client": clientAddr, "command": cmdName, "error": err}).Error("error writing response")
		}
		return
	}

	if err != nil {
		p.log().WithFields(log.Fields{"client": clientAddr, "command": cmdName, "error": err}).Error("error handling command")
		if p.metrics != nil {
			p.metrics.RecordFrameError("pack_error")
		}
	}
}

// sendLoop drains client's outbound queue and writes frames to its
// connection, applying a short write deadline so one stalled client
// cannot block the others.
func (p *PMU) sendLoop(client *pmuClient) {
	conn := client.conn
	ticker := time.NewTicker(10 * time.Millisecond)
	defer ticker.Stop()

	for p.isRunning() {
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
				p.log().WithFields(log.Fields{"client": conn.RemoteAddr().String(), "error": err}).Debug("error sending data frame")
				return
			}
		}
	}
}

// dataRateInterval converts a DATA_RATE value into a tick interval: a
// positive rate is frames per second (interval = 1/rate), a negative
// rate is seconds per frame (interval = |rate| seconds), per the wire
// format's DATA_RATE field.
func dataRateInterval(rate int16) time.Duration {
	switch {
	case rate > 0:
		d := time.Duration(float64(time.Second) / float64(rate))
		if d <= 0 {
			d = time.Millisecond
		}
		return d
	case rate < 0:
		return time.Duration(-rate) * time.Second
	default:
		return time.Second
	}
}

// dataSender ticks at the configured data rate, packs a data frame from
// whatever values are currently set on Config2's stations, and enqueues
// it for every client that has issued START, plus broadcasts it over UDP
// if enabled. Callers own measurement generation: set PhasorValues,
// AnalogValues, Freq, DFreq and DigitalValues on the station between
// ticks (see cmd/pmu-sim for a config-driven generator). The tick
// interval is re-read from Config2.DataRate every iteration so a
// SetDataRate call takes effect on the following tick.
func (p *PMU) dataSender() {
	framesSent := 0
	lastRateUpdate := time.Now()

	interval := dataRateInterval(p.Config2.DataRate)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for p.isRunning() {
		<-ticker.C

		if newInterval := dataRateInterval(p.Config2.DataRate); newInterval != interval {
			interval = newInterval
			ticker.Reset(interval)
		}

		activeClients, err := p.sendOneDataFrame()
		if err != nil {
			p.log().WithError(err).Error("error packing data frame")
			continue
		}

		if activeClients > 0 {
			framesSent++
		}

		if time.Since(lastRateUpdate) >= time.Second {
			actualRate := float64(framesSent) / time.Since(lastRateUpdate).Seconds()
			if p.metrics != nil {
				p.metrics.UpdateDataFrameRate(actualRate)
			}
			framesSent = 0
			lastRateUpdate = time.Now()
		}
	}
}

// sendOneDataFrame packs one data frame from Config2's stations' current
// values and enqueues it to every client that has issued START, plus
// broadcasts it over UDP if enabled. It returns the number of clients the
// frame was queued for.
func (p *PMU) sendOneDataFrame() (int, error) {
	df := NewDataFrame(p.Config2)
	df.IDCode = p.Config2.IDCode
	df.SetTime(nil, nil)

	data, err := df.Pack()
	if err != nil {
		if p.metrics != nil {
			p.metrics.RecordFrameError("data_pack_error")
		}
		return 0, &PmuError{Op: "send_data", Err: err}
	}

	activeClients := 0
	p.clientsMutex.Lock()
	for _, client := range p.clients {
		if client.wantsData() {
			activeClients++
			if client.queue.push(data) && p.metrics != nil {
				p.metrics.RecordFrameError("client_queue_drop")
			}
		}
	}
	p.clientsMutex.Unlock()

	if p.udpConn != nil && p.udpBroadcast != nil {
		if _, err := p.udpConn.WriteTo(data, p.udpBroadcast); err != nil {
			p.log().WithError(err).Debug("error broadcasting udp data frame")
		}
	}

	if activeClients > 0 && p.metrics != nil {
		p.metrics.RecordDataFrameSent(len(data))
	}

	return activeClients, nil
}

// LogConfiguration logs the complete PMU configuration at Info/Debug
// level, mirroring the structure a PDC would discover via CONFIG2.
func (p *PMU) LogConfiguration() {
	if p.Config2 == nil {
		p.log().Warn("no configuration available to log")
		return
	}

	p.log().WithFields(log.Fields{
		"id_code":   p.Config2.IDCode,
		"time_base": p.Config2.TimeBase,
		"data_rate": p.Config2.DataRate,
		"num_pmu":   p.Config2.NumPMU,
	}).Info("PMU configuration")

	for i, station := range p.Config2.PMUStationList {
		stationLog := p.log().WithFields(log.Fields{
			"index":             i,
			"station_name":      station.STN,
			"station_id":        station.IDCode,
			"nominal_frequency": station.GetNominalFrequency(),
			"config_count":      station.CfgCnt,
		})

		stationLog = stationLog.WithFields(log.Fields{
			"format": map[string]bool{
				"coord_polar":  station.FormatCoord(),
				"phasor_float": station.FormatPhasorType(),
				"analog_float": station.FormatAnalogType(),
				"freq_float":   station.FormatFreqType(),
			},
		})

		stationLog = stationLog.WithFields(log.Fields{
			"channels": map[string]int{
				"phasor":  int(station.Phnmr),
				"analog":  int(station.Annmr),
				"digital": int(station.Dgnmr),
			},
		})

		stationLog.Info("PMU station configuration")

		for j, name := range station.CHNAMPhasor {
			phUnit := station.Phunit[j]
			phType := (phUnit >> 24) & 0xFF
			phScale := phUnit & 0x0FFFFFF

			p.log().WithFields(log.Fields{
				"station":      station.STN,
				"channel_type": "phasor",
				"index":        j,
				"name":         strings.TrimSpace(name),
				"unit_type":    map[uint32]string{0: "voltage", 1: "current"}[phType],
				"scale_factor": phScale,
			}).Debug("phasor channel configuration")
		}

		for j, name := range station.CHNAMAnalog {
			anUnit := station.Anunit[j]
			anScale := anUnit & 0x0FFFFFF

			p.log().WithFields(log.Fields{
				"station":      station.STN,
				"channel_type": "analog",
				"index":        j,
				"name":         strings.TrimSpace(name),
				"unit_type":    (anUnit >> 24) & 0xFF,
				"scale_factor": anScale,
			}).Debug("analog channel configuration")
		}

		if len(station.CHNAMDigital) > 0 {
			digitalNames := make([]string, 0)
			for _, name := range station.CHNAMDigital {
				digitalNames = append(digitalNames, strings.TrimSpace(name))
			}

			for j, dgUnit := range station.Dgunit {
				normalMask := (dgUnit >> 16) & 0xFFFF
				validMask := dgUnit & 0xFFFF

				p.log().WithFields(log.Fields{
					"station":      station.STN,
					"channel_type": "digital",
					"word_index":   j,
					"channels":     digitalNames[j*16 : min((j+1)*16, len(digitalNames))],
					"normal_mask":  fmt.Sprintf("0x%04X", normalMask),
					"valid_mask":   fmt.Sprintf("0x%04X", validMask),
				}).Debug("digital channel configuration")
			}
		}
	}

	if p.Header != nil {
		p.log().WithField("header", p.Header.Data).Info("PMU header information")
	}
}
