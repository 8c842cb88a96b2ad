// splitter connects to a single upstream PMU as a PDC and re-serves its
// data frame stream to any number of downstream PDCs without re-decoding
// every frame, the way a substation concentrator fans one feed out to
// several control centers.
package main

import (
	"fmt"
	"net/http"

	"github.com/foxriver76/go-synchrophasor"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	log "github.com/sirupsen/logrus"
)

func setupLogging(logLevel string) {
	log.SetFormatter(&log.JSONFormatter{
		TimestampFormat: "2006-01-02T15:04:05.000Z07:00",
		FieldMap: log.FieldMap{
			log.FieldKeyTime:  "timestamp",
			log.FieldKeyLevel: "level",
			log.FieldKeyMsg:   "message",
		},
	})

	level, err := log.ParseLevel(logLevel)
	if err != nil {
		log.WithError(err).Warn("invalid log level, defaulting to INFO")
		level = log.InfoLevel
	}
	log.SetLevel(level)
}

func main() {
	cfg, err := loadConfig()
	if err != nil {
		log.Fatalf("failed to load configuration: %v", err)
	}

	setupLogging(cfg.Splitter.LogLevel)

	go func() {
		metricsAddr := fmt.Sprintf(":%d", cfg.Splitter.MetricsPort)
		log.WithField("address", metricsAddr).Info("starting metrics server")
		http.Handle("/metrics", promhttp.Handler())
		if err := http.ListenAndServe(metricsAddr, nil); err != nil {
			log.WithError(err).Fatal("failed to start metrics server")
		}
	}()

	source := fmt.Sprintf("%s:%d", cfg.Splitter.SourceIP, cfg.Splitter.SourcePort)
	listen := fmt.Sprintf("%s:%d", cfg.Splitter.ListenIP, cfg.Splitter.ListenPort)

	splitter := synchrophasor.NewStreamSplitter(source, listen, cfg.Splitter.ID)
	splitter.SetLogger(log.StandardLogger())
	splitter.SetMetrics(synchrophasor.NewPromMetrics("splitter"))

	log.WithFields(log.Fields{"source": source, "listen": listen}).Info("starting splitter")

	if err := splitter.Run(); err != nil {
		log.WithError(err).Fatal("splitter exited with error")
	}
}
