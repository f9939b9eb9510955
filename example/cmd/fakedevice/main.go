// Standalone fake device for testing the CLI without hardware.
//
// Usage:
//
//	go run ./example/cmd/fakedevice | go run ./cmd/harcast serve -c example/config.yaml --stdin
package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"math/rand"
	"os"
	"os/signal"
	"syscall"
	"time"
)

func main() {
	every := flag.Duration("every", 200*time.Millisecond, "time between frames")
	sentinel := flag.String("sentinel", "$$HAR", "frame prefix")
	flag.Parse()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	out := bufio.NewWriter(os.Stdout)
	ticker := time.NewTicker(*every)
	defer ticker.Stop()

	alt := 0.0
	for tick := 1; ; tick++ {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		alt += 5 * every.Seconds()
		fmt.Fprintf(out, "%s,%d,%.6f,%.6f,%.1f,%.2f,%.2f,%.2f,%.1f,%.2f,%.1f\r\n",
			*sentinel, tick,
			51.4779+rand.Float64()/1000, -0.0015+rand.Float64()/1000, alt,
			rand.Float64()*2-1, rand.Float64()*2-1, 5.0,
			15-0.0065*alt, 1013.25*(1-alt/44_330), 40+rand.Float64()*10,
		)
		if err := out.Flush(); err != nil {
			// downstream closed the pipe
			return
		}
	}
}
