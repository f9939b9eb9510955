package main

import (
	"context"
	"fmt"
	"io"
	"math/rand"
	"time"
)

// RunFakeDevice writes a simulated balloon flight to w until ctx is done.
// Every tenth line is boot noise or a truncated frame so the relay's
// filtering is visible in the logs.
func RunFakeDevice(ctx context.Context, w io.Writer, every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()

	var (
		lat, lon = 51.4779, -0.0015
		alt      = 50.0
		vz       = 5.0
		temp     = 15.0
	)
	for tick := 1; ; tick++ {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		vx := rand.Float64()*2 - 1
		vy := rand.Float64()*2 - 1
		lat += vy / 111_000
		lon += vx / 70_000
		alt += vz * every.Seconds()
		temp -= 0.0065 * vz * every.Seconds()
		pressure := 1013.25 * (1 - alt/44_330)
		humidity := 40 + rand.Float64()*10

		var line string
		switch tick % 10 {
		case 0:
			line = "GPS fix ok"
		case 5:
			line = fmt.Sprintf("$$HAR,%d,%.4f", tick, lat)
		default:
			line = fmt.Sprintf("$$HAR,%d,%.6f,%.6f,%.1f,%.2f,%.2f,%.2f,%.1f,%.2f,%.1f,seq=%d",
				tick, lat, lon, alt, vx, vy, vz, temp, pressure, humidity, tick)
		}
		if _, err := fmt.Fprintf(w, "%s\r\n", line); err != nil {
			return
		}
	}
}
