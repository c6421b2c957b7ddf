package sender

import (
	"fmt"
	"io"
	"time"
)

// Report holds the statistics of one transfer.
type Report struct {
	File     string
	FileSize int64
	Frames   int
	// Confirmed counts frames the arbiter acknowledged.
	Confirmed int
	Elapsed   time.Duration

	Transmissions int64
	Collisions    int64
	// MaxAttempts is the largest number of attempts any frame needed.
	MaxAttempts int

	Success bool
	Err     error
}

// AvgTransmissions is (transmissions + collisions) / frames.
func (r *Report) AvgTransmissions() float64 {
	if r.Frames == 0 {
		return 0
	}
	return float64(r.Transmissions+r.Collisions) / float64(r.Frames)
}

// ThroughputMbps is the file size over the total elapsed time.
func (r *Report) ThroughputMbps() float64 {
	secs := float64(r.Elapsed.Milliseconds()) / 1000
	if secs <= 0 {
		return 0
	}
	return float64(r.FileSize) * 8 / (secs * 1e6)
}

func (r *Report) Print(w io.Writer) {
	fmt.Fprintf(w, "Sent file %s\n", r.File)
	if r.Success {
		fmt.Fprintln(w, "Result: Success :)")
	} else {
		fmt.Fprintln(w, "Result: Failure :(")
	}
	fmt.Fprintf(w, "File size: %d Bytes (%d frames)\n", r.FileSize, r.Frames)
	fmt.Fprintf(w, "Total transfer time: %d milliseconds\n", r.Elapsed.Milliseconds())
	fmt.Fprintf(w, "Transmissions/frame: average %.2f, maximum %d\n", r.AvgTransmissions(), r.MaxAttempts)
	fmt.Fprintf(w, "Average bandwidth: %.3f Mbps\n", r.ThroughputMbps())
}
