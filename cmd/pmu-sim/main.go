// pmu-sim simulates a single-station PMU server driven by a YAML config:
// it synthesizes phasor/analog/digital values on a wall-clock ticker and
// serves them to any number of PDC clients over TCP (and, optionally,
// broadcasts over UDP).
package main

import (
	"fmt"
	"math"
	"math/cmplx"
	"math/rand"
	"net/http"
	"time"

	"github.com/foxriver76/go-synchrophasor"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	log "github.com/sirupsen/logrus"
)

const appVersion = "dev"

// digitalChannelState tracks the state of each digital channel.
type digitalChannelState struct {
	LastChange   time.Time
	CurrentValue bool
	Interval     time.Duration
}

func randomValue(base, variation float64) float64 {
	rMin := base - (base * variation)
	rMax := base + (base * variation)
	return rMin + rand.Float64()*(rMax-rMin)
}

func generatePhasorValue(cfg *Config, phasor PhasorDefinition) complex128 {
	baseValue := cfg.GetBaseValue(phasor)
	variation := cfg.GetVariation(phasor)
	magnitude := randomValue(baseValue, variation)
	return cmplx.Rect(magnitude, phasor.PhaseAngle)
}

func generateAnalogValue(channel AnalogChannel, timeOffset float64) float32 {
	switch channel.GeneratorType {
	case "sine":
		freq := 0.1
		offset := channel.BaseValue
		amplitude := channel.BaseValue * channel.Variation

		if params := channel.GeneratorParams; params != nil {
			if f, ok := params["frequency"].(float64); ok {
				freq = f
			}
			if o, ok := params["offset"].(float64); ok {
				offset = o
			}
			if a, ok := params["amplitude"].(float64); ok {
				amplitude = a
			}
		}

		return float32(offset + amplitude*math.Sin(2*math.Pi*freq*timeOffset))

	case "constant":
		return float32(channel.BaseValue)

	default:
		return float32(randomValue(channel.BaseValue, channel.Variation))
	}
}

func main() {
	rand.New(rand.NewSource(time.Now().UnixNano()))

	cfg, err := loadConfig()
	if err != nil {
		log.Fatalf("failed to load configuration: %v", err)
	}

	setupLogging(cfg.PMU.LogLevel)

	log.WithFields(log.Fields{
		"version":       appVersion,
		"pmu_name":      cfg.PMU.Name,
		"pmu_id":        cfg.PMU.ID,
		"station":       cfg.PMU.Station,
		"phasor_count":  cfg.GetPhasorCount(),
		"analog_count":  cfg.GetAnalogCount(),
		"digital_count": cfg.GetDigitalCount(),
	}).Info("starting pmu-sim")

	initMetrics(appVersion, cfg)

	go func() {
		metricsAddr := fmt.Sprintf(":%d", cfg.PMU.MetricsPort)
		log.WithField("address", metricsAddr).Info("starting metrics server")
		http.Handle("/metrics", promhttp.Handler())
		http.HandleFunc("/health", func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusNoContent)
		})

		if err := http.ListenAndServe(metricsAddr, nil); err != nil {
			log.WithError(err).Fatal("failed to start metrics server")
		}
	}()

	pmu := synchrophasor.NewPMU()
	pmu.SetLogger(log.StandardLogger())
	pmu.SetMetrics(synchrophasor.NewPromMetrics("pmu"))

	configFrame := synchrophasor.NewConfigFrame()
	configFrame.IDCode = cfg.PMU.ID
	if err := configFrame.SetTimeBase(cfg.PMU.TimeBase); err != nil {
		log.WithError(err).Fatal("invalid time base")
	}
	if err := configFrame.SetDataRate(cfg.PMU.DataRate); err != nil {
		log.WithError(err).Fatal("invalid data rate")
	}

	station := synchrophasor.NewPMUStation(
		cfg.PMU.Station,
		cfg.PMU.ID,
		cfg.PMU.DataFormat.FreqFloat,
		cfg.PMU.DataFormat.AnalogFloat,
		cfg.PMU.DataFormat.PhasorFloat,
		cfg.PMU.DataFormat.Polar,
	)

	for _, phasor := range cfg.PMU.Phasors {
		if err := station.AddPhasor(phasor.Name, phasor.Scale, phasor.Type); err != nil {
			log.WithError(err).Fatalf("invalid phasor channel %q", phasor.Name)
		}
	}

	for _, analog := range cfg.PMU.AnalogChannels {
		if err := station.AddAnalog(analog.Name, uint32(analog.Scale), 0); err != nil {
			log.WithError(err).Fatalf("invalid analog channel %q", analog.Name)
		}
	}

	if cfg.GetDigitalCount() > 0 {
		digitalNames := make([]string, 0, cfg.GetDigitalCount())
		for _, ch := range cfg.PMU.DigitalChannels {
			digitalNames = append(digitalNames, ch.Name)
		}
		if err := station.AddDigital(digitalNames, 0x0000, 0xFFFF); err != nil {
			log.WithError(err).Fatal("invalid digital channel set")
		}
	}

	if cfg.PMU.FrequencyBase == 50 {
		station.Fnom = synchrophasor.FreqNom50Hz
	} else {
		station.Fnom = synchrophasor.FreqNom60Hz
	}
	station.CfgCnt = 1

	configFrame.AddPMUStation(station)

	if err := pmu.SetConfiguration(configFrame); err != nil {
		log.WithError(err).Fatal("failed to set initial configuration")
	}
	if err := pmu.SetHeader(cfg.PMU.Header); err != nil {
		log.WithError(err).Fatal("failed to set initial header")
	}
	pmu.LogConfiguration()

	tcpAddress := fmt.Sprintf("%s:%d", cfg.PMU.IP, cfg.PMU.Port)
	udpLocalAddress := ""
	if cfg.PMU.UDPPort > 0 {
		udpLocalAddress = fmt.Sprintf("%s:%d", cfg.PMU.IP, cfg.PMU.UDPPort)
	}

	if err := pmu.Run(tcpAddress, udpLocalAddress, cfg.PMU.UDPTarget); err != nil {
		log.WithError(err).Fatal("failed to start pmu-sim server")
	}
	defer pmu.Stop()

	log.WithField("address", tcpAddress).Info("pmu-sim server started, waiting for PDC connections")

	cycleDuration := time.Duration(float64(time.Second) / cfg.PMU.FrequencyBase)
	ticker := newWallTicker(cycleDuration, 0)
	defer ticker.Stop()

	digitalStates := make([]digitalChannelState, cfg.GetDigitalCount())
	for i, ch := range cfg.PMU.DigitalChannels {
		interval, _ := time.ParseDuration(ch.Interval)
		digitalStates[i] = digitalChannelState{
			LastChange:   time.Now(),
			CurrentValue: ch.InitialValue,
			Interval:     interval,
		}
	}

	startTime := time.Now()

	for range ticker.C {
		currentTime := time.Now()
		timeOffset := currentTime.Sub(startTime).Seconds()

		for i, phasor := range cfg.PMU.Phasors {
			station.PhasorValues[i] = generatePhasorValue(cfg, phasor)
		}

		for i, analog := range cfg.PMU.AnalogChannels {
			station.AnalogValues[i] = generateAnalogValue(analog, timeOffset)
		}

		station.Freq = float32(randomValue(cfg.PMU.FrequencyBase, cfg.PMU.FrequencyVariation))
		dfreqBase := cfg.PMU.FrequencyBase / 100
		station.DFreq = float32(randomValue(dfreqBase, cfg.PMU.DFreqVariation))

		updateFrequencyMetrics(float64(station.Freq), float64(station.DFreq))
		updateAnalogMetrics(cfg, station.AnalogValues)

		digitalValues := make([]uint16, cfg.GetDigitalCount())
		wordIndex := 0
		bitIndex := 0

		for chIdx := range cfg.PMU.DigitalChannels {
			state := &digitalStates[chIdx]

			if state.Interval > 0 {
				elapsed := currentTime.Sub(state.LastChange)
				if elapsed >= state.Interval {
					state.LastChange = currentTime
					state.CurrentValue = !state.CurrentValue
				}
			}

			if wordIndex < len(station.DigitalValues) {
				station.DigitalValues[wordIndex][bitIndex] = state.CurrentValue
			}

			if state.CurrentValue {
				digitalValues[chIdx] = 1
			}

			bitIndex++
			if bitIndex >= 16 {
				bitIndex = 0
				wordIndex++
			}
		}

		updateDigitalMetrics(cfg, digitalValues)

		station.Stat = synchrophasor.EncodeStat(synchrophasor.StatInfo{
			MeasurementStatus: synchrophasor.MeasurementOK,
		})
	}
}
