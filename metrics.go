package synchrophasor

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// MetricsRecorder is an interface for tracking various metrics related to
// client connections and data processing. Implementations are shared
// across PMU and StreamSplitter; PDC takes no MetricsRecorder.
// RecordClientConnected logs a new client connection.
// RecordClientDisconnected logs a client disconnection.
// RecordCommand tracks the type of command being processed.
// RecordDataFrameSent tracks the size of data frames sent out.
// RecordConfigFrameSent tracks the size of configuration frames sent out.
// RecordHeaderFrameSent tracks the size of header frames sent out.
// RecordBytesReceived logs the size of data received.
// RecordFrameError tracks the type of frame error encountered.
// UpdateDataFrameRate updates the rate of data frame processing.
type MetricsRecorder interface {
	RecordClientConnected()
	RecordClientDisconnected()
	RecordCommand(cmdType string)
	RecordDataFrameSent(size int)
	RecordConfigFrameSent(size int)
	RecordHeaderFrameSent(size int)
	RecordBytesReceived(size int)
	RecordFrameError(errorType string)
	UpdateDataFrameRate(rate float64)
}

// PromMetrics is a MetricsRecorder backed by Prometheus client_golang
// collectors registered under the default registry. component labels
// every series so a single process hosting a PMU, a PDC, and a splitter
// at once still produces distinguishable metrics.
type PromMetrics struct {
	component string

	clientsConnected prometheus.Gauge
	commandsTotal    *prometheus.CounterVec
	dataFramesSent   prometheus.Counter
	dataBytesSent    prometheus.Counter
	configFramesSent prometheus.Counter
	headerFramesSent prometheus.Counter
	bytesReceived    prometheus.Counter
	frameErrorsTotal *prometheus.CounterVec
	dataFrameRateHz  prometheus.Gauge
}

// NewPromMetrics registers a new set of collectors for component (e.g.
// "pmu", "pdc", "splitter") and returns a MetricsRecorder backed by them.
func NewPromMetrics(component string) *PromMetrics {
	labels := prometheus.Labels{"component": component}

	return &PromMetrics{
		component: component,

		clientsConnected: promauto.NewGauge(prometheus.GaugeOpts{
			Name:        "synchrophasor_clients_connected",
			Help:        "Number of currently connected clients.",
			ConstLabels: labels,
		}),
		commandsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Name:        "synchrophasor_commands_total",
			Help:        "Command frames processed, by command name.",
			ConstLabels: labels,
		}, []string{"command"}),
		dataFramesSent: promauto.NewCounter(prometheus.CounterOpts{
			Name:        "synchrophasor_data_frames_sent_total",
			Help:        "Data frames sent to clients.",
			ConstLabels: labels,
		}),
		dataBytesSent: promauto.NewCounter(prometheus.CounterOpts{
			Name:        "synchrophasor_data_bytes_sent_total",
			Help:        "Bytes of data, configuration and header frames sent to clients.",
			ConstLabels: labels,
		}),
		configFramesSent: promauto.NewCounter(prometheus.CounterOpts{
			Name:        "synchrophasor_config_frames_sent_total",
			Help:        "Configuration frames sent to clients.",
			ConstLabels: labels,
		}),
		headerFramesSent: promauto.NewCounter(prometheus.CounterOpts{
			Name:        "synchrophasor_header_frames_sent_total",
			Help:        "Header frames sent to clients.",
			ConstLabels: labels,
		}),
		bytesReceived: promauto.NewCounter(prometheus.CounterOpts{
			Name:        "synchrophasor_bytes_received_total",
			Help:        "Bytes received from clients or upstream.",
			ConstLabels: labels,
		}),
		frameErrorsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Name:        "synchrophasor_frame_errors_total",
			Help:        "Frame errors encountered, by error type.",
			ConstLabels: labels,
		}, []string{"error_type"}),
		dataFrameRateHz: promauto.NewGauge(prometheus.GaugeOpts{
			Name:        "synchrophasor_data_frame_rate_hz",
			Help:        "Measured data frame transmission rate in Hz.",
			ConstLabels: labels,
		}),
	}
}

func (m *PromMetrics) RecordClientConnected()    { m.clientsConnected.Inc() }
func (m *PromMetrics) RecordClientDisconnected() { m.clientsConnected.Dec() }

func (m *PromMetrics) RecordCommand(cmdType string) {
	m.commandsTotal.WithLabelValues(cmdType).Inc()
}

func (m *PromMetrics) RecordDataFrameSent(size int) {
	m.dataFramesSent.Inc()
	m.dataBytesSent.Add(float64(size))
}

func (m *PromMetrics) RecordConfigFrameSent(size int) {
	m.configFramesSent.Inc()
	m.dataBytesSent.Add(float64(size))
}

func (m *PromMetrics) RecordHeaderFrameSent(size int) {
	m.headerFramesSent.Inc()
	m.dataBytesSent.Add(float64(size))
}

func (m *PromMetrics) RecordBytesReceived(size int) {
	m.bytesReceived.Add(float64(size))
}

func (m *PromMetrics) RecordFrameError(errorType string) {
	m.frameErrorsTotal.WithLabelValues(errorType).Inc()
}

func (m *PromMetrics) UpdateDataFrameRate(rate float64) {
	m.dataFrameRateHz.Set(rate)
}
