package sender

import (
	"fmt"
	"io"
)

// FrameCount returns ceil(size / payloadSize).
func FrameCount(size int64, payloadSize int) int {
	if size <= 0 || payloadSize <= 0 {
		return 0
	}
	p := int64(payloadSize)
	return int((size + p - 1) / p)
}

// segmenter cuts a stream of known size into ordered payloads; every payload
// is full except possibly the last.
type segmenter struct {
	r         io.Reader
	remaining int64
	payload   int
}

func newSegmenter(r io.Reader, size int64, payloadSize int) *segmenter {
	return &segmenter{r: r, remaining: size, payload: payloadSize}
}

// Next returns io.EOF once size bytes have been handed out.
func (s *segmenter) Next() ([]byte, error) {
	if s.remaining <= 0 {
		return nil, io.EOF
	}
	n := int64(s.payload)
	if s.remaining < n {
		n = s.remaining
	}
	buf := make([]byte, n)
	if _, err := io.ReadFull(s.r, buf); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrFileRead, err)
	}
	s.remaining -= n
	return buf, nil
}
