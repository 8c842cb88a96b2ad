// pdc-client is a minimal interactive PDC: it connects to a PMU, prints
// its header and configuration, then streams and prints data frames
// until interrupted.
package main

import (
	"fmt"
	"log"
	"math"
	"os"
	"time"

	"github.com/foxriver76/go-synchrophasor"
)

func main() {
	pdc := synchrophasor.NewPDC(1)

	address := "localhost:4712"
	if len(os.Args) > 1 {
		address = os.Args[1]
	}

	fmt.Printf("Connecting to PMU at %s...\n", address)
	if err := pdc.Connect(address); err != nil {
		log.Fatalf("Failed to connect: %v", err)
	}
	defer pdc.Disconnect()
	fmt.Println("Connected!")

	fmt.Println("\n1. Requesting Header Frame...")
	header, err := pdc.GetHeader()
	if err != nil {
		log.Printf("Failed to get header: %v", err)
	} else {
		fmt.Printf("Header: %s\n", header.Data)
	}

	fmt.Println("\n2. Requesting Configuration Frame...")
	cfg, err := pdc.GetConfig(2)
	if err != nil {
		log.Fatalf("Failed to get config: %v", err)
	}

	fmt.Printf("Configuration received:\n")
	fmt.Printf("  PMU Count: %d\n", cfg.NumPMU)
	fmt.Printf("  Data Rate: %d fps\n", cfg.DataRate)
	fmt.Printf("  Time Base: %d\n", cfg.TimeBase)

	for i, pmu := range cfg.PMUStationList {
		fmt.Printf("\n  PMU Station %d:\n", i+1)
		fmt.Printf("    Name: %s\n", pmu.STN)
		fmt.Printf("    ID: %d\n", pmu.IDCode)
		fmt.Printf("    Phasors: %d\n", pmu.Phnmr)
		fmt.Printf("    Analog: %d\n", pmu.Annmr)
		fmt.Printf("    Digital: %d\n", pmu.Dgnmr)
		fmt.Printf("    Format: 0x%04X\n", pmu.Format)

		if len(pmu.CHNAMPhasor) > 0 {
			fmt.Printf("    Phasor channels:\n")
			for j, name := range pmu.CHNAMPhasor {
				fmt.Printf("      %d: %s\n", j+1, name)
			}
		}
	}

	fmt.Println("\n3. Starting data transmission...")
	if err := pdc.Start(); err != nil {
		log.Fatalf("Failed to start: %v", err)
	}

	fmt.Println("\n4. Reading data frames (press Ctrl+C to stop)...")
	frameCount := 0
	startTime := time.Now()

	for {
		frame, err := pdc.ReadFrame()
		if err != nil {
			log.Printf("Error reading frame: %v", err)
			continue
		}

		df, ok := frame.(*synchrophasor.DataFrame)
		if !ok {
			continue
		}

		frameCount++
		if frameCount%10 != 0 {
			continue
		}

		elapsed := time.Since(startTime).Seconds()
		fps := float64(frameCount) / elapsed

		set := df.GetMeasurements()
		fmt.Printf("\n--- Frame %d (%.1f fps) ---\n", frameCount, fps)
		fmt.Printf("Timestamp: %.6f\n", set.Time)

		for i, meas := range set.Measurements {
			fmt.Printf("\nStation %d:\n", i+1)
			fmt.Printf("  Frequency: %.3f Hz\n", meas.Frequency)
			fmt.Printf("  ROCOF: %.3f Hz/s\n", meas.ROCOF)

			if len(meas.Phasors) > 0 {
				mag := abs(meas.Phasors[0])
				angle := phase(meas.Phasors[0]) * 180 / math.Pi
				fmt.Printf("  VA: %.1f V @ %.1f°\n", mag, angle)
			}

			if len(meas.Digital) > 0 && len(meas.Digital[0]) > 0 {
				fmt.Printf("  Digital word 1 bit 1: %v\n", meas.Digital[0][0])
			}
		}
	}
}

func abs(c complex128) float64 {
	r, i := real(c), imag(c)
	return math.Sqrt(r*r + i*i)
}

func phase(c complex128) float64 {
	return math.Atan2(imag(c), real(c))
}
