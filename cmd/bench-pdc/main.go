// bench-pdc connects to a PMU as one or more concurrent PDC jobs and
// measures how long each takes to receive one data-rate-minute's worth of
// data frames, recording aggregate throughput and error counts to a
// per-run log file.
package main

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/foxriver76/go-synchrophasor"
	log "github.com/sirupsen/logrus"
	"gopkg.in/natefinch/lumberjack.v2"
)

// jobResult is one PDC job's outcome: how long it took to receive its
// full quota of data frames and how many read errors it hit along the way.
type jobResult struct {
	jobIndex int
	elapsed  float64
	errCount int
}

func runJob(jobIndex int, idCode uint16, address string, dataRate int) jobResult {
	pdc := synchrophasor.NewPDC(idCode)

	if err := pdc.Connect(address); err != nil {
		log.WithError(err).WithField("job", jobIndex).Error("failed to connect")
		return jobResult{jobIndex: jobIndex, errCount: 1}
	}
	defer pdc.Disconnect()

	if _, err := pdc.GetHeader(); err != nil {
		log.WithError(err).WithField("job", jobIndex).Warn("failed to get header")
	}
	if _, err := pdc.GetConfig(2); err != nil {
		log.WithError(err).WithField("job", jobIndex).Error("failed to get config")
		return jobResult{jobIndex: jobIndex, errCount: 1}
	}

	if err := pdc.Start(); err != nil {
		log.WithError(err).WithField("job", jobIndex).Error("failed to start data transmission")
		return jobResult{jobIndex: jobIndex, errCount: 1}
	}

	measurementsToReceive := 60 * dataRate
	errCount := 0

	startTime := time.Now()
	stopTime := startTime

	for measurementsToReceive > 0 {
		frame, err := pdc.ReadFrame()
		if err != nil {
			if errors.Is(err, synchrophasor.ErrConnectionClosed) {
				break
			}
			errCount++
			continue
		}

		if _, ok := frame.(*synchrophasor.DataFrame); !ok {
			continue
		}

		if measurementsToReceive == 1 {
			stopTime = time.Now()
		}

		measurementsToReceive--
	}

	return jobResult{jobIndex: jobIndex, elapsed: stopTime.Sub(startTime).Seconds(), errCount: errCount}
}

func main() {
	idCode := flag.Int("i", 7734, "PDC ID code (job N uses i+N)")
	ip := flag.String("ip", "", "PMU IP (required)")
	port := flag.Int("p", 0, "PMU port (required)")
	dataRate := flag.Int("r", 30, "data reporting rate of the PMU")
	jobs := flag.Int("j", 1, "how many jobs in parallel")
	method := flag.String("m", "tcp", "transmission method: tcp or udp")
	bufferSize := flag.Int("b", 2048, "transmission buffer size")
	logDir := flag.String("l", "./results", "directory for per-run result logs")
	flag.Parse()

	if *ip == "" || *port == 0 {
		fmt.Fprintln(os.Stderr, "bench-pdc: -ip and -p are required")
		os.Exit(2)
	}
	if *method != "tcp" {
		fmt.Fprintln(os.Stderr, "bench-pdc: only tcp is currently supported")
		os.Exit(2)
	}
	if *jobs < 1 {
		*jobs = 1
	}

	if err := os.MkdirAll(*logDir, 0o755); err != nil {
		log.WithError(err).Fatal("failed to create results directory")
	}

	timestamp := time.Now().Format("20060102_150405")
	logPath := fmt.Sprintf("%s/result_%d_%d_%d_%s.log", *logDir, *dataRate, *jobs, *idCode, timestamp)

	runLog := &lumberjack.Logger{
		Filename:   logPath,
		MaxSize:    10,
		MaxBackups: 3,
		MaxAge:     7,
	}
	defer runLog.Close()

	address := fmt.Sprintf("%s:%d", *ip, *port)
	fmt.Printf("connecting %d job(s) to PMU at %s...\n", *jobs, address)

	results := make([]jobResult, *jobs)
	var totalErrors int64
	var wg sync.WaitGroup

	for j := 0; j < *jobs; j++ {
		wg.Add(1)
		go func(j int) {
			defer wg.Done()
			res := runJob(j, uint16(*idCode)+uint16(j), address, *dataRate)
			results[j] = res
			atomic.AddInt64(&totalErrors, int64(res.errCount))
		}(j)
	}
	wg.Wait()

	var totalElapsed float64
	for _, res := range results {
		totalElapsed += res.elapsed
		fmt.Fprintf(runLog, "Job %d: PDC ID %d, elapsed %fs, errors %d\n", res.jobIndex, int(*idCode)+res.jobIndex, res.elapsed, res.errCount)
	}
	avgElapsed := totalElapsed / float64(*jobs)

	fmt.Fprintf(runLog, "Jobs: %d\n", *jobs)
	fmt.Fprintf(runLog, "AverageResult: %f\n", avgElapsed)
	fmt.Fprintf(runLog, "TotalErrors: %d\n", totalErrors)

	log.WithFields(log.Fields{
		"jobs":         *jobs,
		"avg_elapsed":  avgElapsed,
		"total_errors": totalErrors,
		"log":          logPath,
		"buffer_size":  *bufferSize,
	}).Info("bench-pdc run complete")
}
