// Command bench starts several senders against one arbiter at the same time
// and reports how much contention the channel produced.
package main

import (
	"bytes"
	"context"
	"flag"
	"fmt"
	"math/rand/v2"
	"net"
	"os"
	"sync"
	"time"

	"github.com/ryandielhenn/slotchan/internal/logging"
	"github.com/ryandielhenn/slotchan/pkg/sender"
)

func main() {
	addr := flag.String("addr", "127.0.0.1:5000", "arbiter address")
	conc := flag.Int("c", 4, "concurrent senders")
	size := flag.Int("size", 10_000, "bytes per sender")
	frameSize := flag.Int("frame", 1000, "frame size in bytes, header included")
	slot := flag.Duration("slot", 10*time.Millisecond, "slot duration")
	timeout := flag.Duration("timeout", time.Minute, "per-transfer timeout")
	seed := flag.Int64("seed", 1, "base seed; sender i uses seed+i")
	logLevel := flag.String("log-level", "error", "debug, info, warn or error")
	flag.Parse()

	logger, err := logging.New(logging.Options{Level: *logLevel})
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	defer logger.Sync()

	reports := make([]*sender.Report, *conc)
	errs := make([]error, *conc)
	wg := sync.WaitGroup{}
	start := time.Now()

	for i := 0; i < *conc; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			s := *seed + int64(i)
			rng := rand.New(rand.NewPCG(uint64(s), 1))
			payload := make([]byte, *size)
			for j := range payload {
				payload[j] = byte(rng.IntN(256))
			}

			conn, err := net.DialTimeout("tcp", *addr, 5*time.Second)
			if err != nil {
				errs[i] = err
				return
			}
			defer conn.Close()

			sess, err := sender.NewSession(conn, sender.Config{
				Addr:         *addr,
				FrameSize:    *frameSize,
				SlotDuration: *slot,
				Seed:         s,
				Timeout:      *timeout,
			}, sender.WithLogger(logger.Named(fmt.Sprintf("sender-%d", i))))
			if err != nil {
				errs[i] = err
				return
			}
			reports[i], errs[i] = sess.Transfer(context.Background(), bytes.NewReader(payload), int64(len(payload)))
		}(i)
	}
	wg.Wait()
	dur := time.Since(start)

	var frames, tx, coll int64
	ok := 0
	for i, rep := range reports {
		if rep == nil {
			fmt.Printf("sender %d: setup failed: %v\n", i, errs[i])
			continue
		}
		result := "ok"
		if !rep.Success {
			result = fmt.Sprintf("FAILED (%v)", rep.Err)
		} else {
			ok++
		}
		fmt.Printf("sender %d: %s, %d/%d frames, %d transmissions, %d collisions, max %d attempts, %.3f Mbps\n",
			i, result, rep.Confirmed, rep.Frames, rep.Transmissions, rep.Collisions, rep.MaxAttempts, rep.ThroughputMbps())
		frames += int64(rep.Frames)
		tx += rep.Transmissions
		coll += rep.Collisions
	}

	avg := 0.0
	if frames > 0 {
		avg = float64(tx+coll) / float64(frames)
	}
	fmt.Printf("Completed %d/%d transfers in %s (%d frames, avg %.2f transmissions/frame, %d collisions)\n",
		ok, *conc, dur, frames, avg, coll)
}
