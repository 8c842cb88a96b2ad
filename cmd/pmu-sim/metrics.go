package main

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	pmuInfo = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "pmu_sim_info",
		Help: "pmu-sim build and identity information",
	}, []string{"version", "name", "id"})

	pmuConfig = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "pmu_sim_config_info",
		Help: "pmu-sim configuration information",
	}, []string{"ip", "port", "data_rate", "time_base", "nominal_frequency"})

	wallTickerSkew = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "pmu_sim_wall_ticker_skew",
		Help: "wallTicker timing skew factor",
	})

	pmuChannels = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "pmu_sim_channels_configured",
		Help: "Number of configured channels by type",
	}, []string{"type"})

	frequencyValue = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "pmu_sim_frequency_hz",
		Help: "Current simulated frequency value in Hz",
	})

	rocofValue = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "pmu_sim_rocof_hz_per_sec",
		Help: "Simulated rate of change of frequency in Hz/s",
	})

	analogGauges = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "pmu_sim_analog_value",
		Help: "Simulated analog channel values",
	}, []string{"channel", "unit"})

	digitalGauges = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "pmu_sim_digital_value",
		Help: "Simulated digital channel values",
	}, []string{"channel"})
)

func initMetrics(version string, cfg *Config) {
	pmuInfo.WithLabelValues(version, cfg.PMU.Name, fmt.Sprintf("%d", cfg.PMU.ID)).Set(1)

	pmuConfig.WithLabelValues(
		cfg.PMU.IP,
		fmt.Sprintf("%d", cfg.PMU.Port),
		fmt.Sprintf("%d", cfg.PMU.DataRate),
		fmt.Sprintf("%d", cfg.PMU.TimeBase),
		fmt.Sprintf("%.1f", cfg.PMU.FrequencyBase),
	).Set(1)

	pmuChannels.WithLabelValues("phasor").Set(float64(cfg.GetPhasorCount()))
	pmuChannels.WithLabelValues("analog").Set(float64(cfg.GetAnalogCount()))
	pmuChannels.WithLabelValues("digital").Set(float64(cfg.GetDigitalCount()))

	for _, analog := range cfg.PMU.AnalogChannels {
		analogGauges.WithLabelValues(analog.Name, analog.Unit).Set(0)
	}
	for _, digital := range cfg.PMU.DigitalChannels {
		digitalGauges.WithLabelValues(digital.Name).Set(0)
	}
}

func updateWallTickerMetrics(skew float64) {
	wallTickerSkew.Set(skew)
}

func updateFrequencyMetrics(freq, rocof float64) {
	frequencyValue.Set(freq)
	rocofValue.Set(rocof)
}

func updateAnalogMetrics(cfg *Config, values []float32) {
	for i, analog := range cfg.PMU.AnalogChannels {
		if i < len(values) {
			analogGauges.WithLabelValues(analog.Name, analog.Unit).Set(float64(values[i]))
		}
	}
}

func updateDigitalMetrics(cfg *Config, states []uint16) {
	for i, ch := range cfg.PMU.DigitalChannels {
		if i < len(states) {
			digitalGauges.WithLabelValues(ch.Name).Set(float64(states[i]))
		}
	}
}
