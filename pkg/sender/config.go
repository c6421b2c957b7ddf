package sender

import (
	"errors"
	"fmt"
	"time"

	"github.com/ryandielhenn/slotchan/pkg/frame"
)

// MaxBackoffAttempts bounds the attempts spent on a single frame.
const MaxBackoffAttempts = 10

var (
	ErrConfig      = errors.New("sender: invalid configuration")
	ErrSetup       = errors.New("sender: setup failed")
	ErrTransport   = errors.New("sender: transport failure")
	ErrTimeout     = errors.New("sender: transfer timeout exceeded")
	ErrMaxAttempts = errors.New("sender: attempt bound reached")
	ErrFileRead    = errors.New("sender: reading file")
)

type Config struct {
	// Addr is the arbiter's host:port.
	Addr     string
	FilePath string
	// FrameSize is the negotiated frame size, header included.
	FrameSize    int
	SlotDuration time.Duration
	Seed         int64
	// Timeout bounds the whole transfer, measured from its start.
	Timeout time.Duration
	// MaxAttempts defaults to MaxBackoffAttempts.
	MaxAttempts int
}

// PayloadSize is the payload carried by every frame but possibly the last.
func (c Config) PayloadSize() int { return c.FrameSize - frame.HeaderSize }

// FeedbackWindow is how long the sender waits for the arbiter's reply.
func (c Config) FeedbackWindow() time.Duration { return 2 * c.SlotDuration }

func (c *Config) validate() error {
	if c.FrameSize <= frame.HeaderSize {
		return fmt.Errorf("%w: frame size %d must exceed header size %d", ErrConfig, c.FrameSize, frame.HeaderSize)
	}
	if c.PayloadSize() > frame.MaxPayload {
		return fmt.Errorf("%w: frame size %d exceeds %d", ErrConfig, c.FrameSize, frame.HeaderSize+frame.MaxPayload)
	}
	if c.SlotDuration < 0 {
		return fmt.Errorf("%w: negative slot duration", ErrConfig)
	}
	if c.Timeout < 0 {
		return fmt.Errorf("%w: negative timeout", ErrConfig)
	}
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = MaxBackoffAttempts
	}
	return nil
}
