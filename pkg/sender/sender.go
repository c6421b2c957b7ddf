// Package sender implements the backoff sender: it cuts a file into frames
// and pushes them through the arbiter one at a time, retrying collided
// frames after a binary exponential backoff.
//
// A transfer is strictly sequential. Each attempt writes the frame, waits at
// most two slots for the arbiter's verdict and either moves on (ACK) or backs
// off and tries again (COLLISION, silence, or an unrecognised reply).
package sender

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"time"

	"go.uber.org/zap"

	"github.com/ryandielhenn/slotchan/internal/telemetry"
	"github.com/ryandielhenn/slotchan/pkg/frame"
)

type Option func(*Session)

func WithLogger(l *zap.Logger) Option {
	return func(s *Session) { s.log = l }
}

func WithClock(c Clock) Option {
	return func(s *Session) { s.clock = c }
}

// Session drives one arbiter connection. It is not safe for concurrent use.
type Session struct {
	cfg     Config
	conn    net.Conn
	enc     *frame.Encoder
	dec     *frame.Decoder
	backoff *Backoff
	clock   Clock
	log     *zap.Logger
}

func NewSession(conn net.Conn, cfg Config, opts ...Option) (*Session, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	s := &Session{
		cfg:     cfg,
		conn:    conn,
		enc:     frame.NewEncoder(conn),
		dec:     frame.NewDecoder(conn, frame.MaxFrameSize),
		backoff: NewBackoff(cfg.Seed, cfg.SlotDuration, cfg.MaxAttempts),
		clock:   systemClock{},
		log:     zap.NewNop(),
	}
	for _, o := range opts {
		o(s)
	}
	return s, nil
}

// Run opens cfg.FilePath, connects to cfg.Addr and transfers the file. A
// non-nil Report is returned whenever the transfer started, successful or
// not; the error is then the cause of failure. Configuration and setup
// failures return a nil Report.
func Run(ctx context.Context, cfg Config, opts ...Option) (*Report, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	f, err := os.Open(cfg.FilePath)
	if err != nil {
		return nil, fmt.Errorf("%w: open file: %w", ErrSetup, err)
	}
	defer f.Close()
	info, err := f.Stat()
	if err != nil {
		return nil, fmt.Errorf("%w: stat file: %w", ErrSetup, err)
	}

	d := net.Dialer{Timeout: 5 * time.Second}
	conn, err := d.DialContext(ctx, "tcp", cfg.Addr)
	if err != nil {
		return nil, fmt.Errorf("%w: connect %s: %w", ErrSetup, cfg.Addr, err)
	}
	defer conn.Close()

	s, err := NewSession(conn, cfg, opts...)
	if err != nil {
		return nil, err
	}
	rep, err := s.Transfer(ctx, f, info.Size())
	rep.File = cfg.FilePath
	return rep, err
}

// Transfer sends size bytes read from r. The returned Report is never nil.
func (s *Session) Transfer(ctx context.Context, r io.Reader, size int64) (*Report, error) {
	payloadSize := s.cfg.PayloadSize()
	rep := &Report{
		FileSize: size,
		Frames:   FrameCount(size, payloadSize),
	}
	start := s.clock.Now()
	s.log.Info("transfer starting",
		zap.String("arbiter", s.conn.RemoteAddr().String()),
		zap.Int64("size", size),
		zap.Int("frames", rep.Frames),
		zap.Int("frame_size", s.cfg.FrameSize),
		zap.Duration("slot", s.cfg.SlotDuration),
		zap.Duration("timeout", s.cfg.Timeout))

	seg := newSegmenter(r, size, payloadSize)
	var err error
	for i := 0; i < rep.Frames; i++ {
		var payload []byte
		if payload, err = seg.Next(); err != nil {
			break
		}
		var attempts int
		attempts, err = s.sendFrame(ctx, i, payload, start, rep)
		rep.MaxAttempts = max(rep.MaxAttempts, attempts)
		if err != nil {
			break
		}
		rep.Confirmed++
	}

	rep.Elapsed = s.clock.Now().Sub(start)
	rep.Success = err == nil
	rep.Err = err
	if rep.Success {
		telemetry.TransfersTotal.WithLabelValues("success").Inc()
		s.log.Info("transfer complete", zap.Int("frames", rep.Frames), zap.Duration("elapsed", rep.Elapsed))
	} else {
		telemetry.TransfersTotal.WithLabelValues("failure").Inc()
		s.log.Warn("transfer failed",
			zap.Error(err),
			zap.Int("confirmed", rep.Confirmed),
			zap.Int("frames", rep.Frames),
			zap.Duration("elapsed", rep.Elapsed))
	}
	return rep, err
}

// sendFrame runs the attempt loop for one frame and returns the attempts it
// used.
func (s *Session) sendFrame(ctx context.Context, idx int, payload []byte, start time.Time, rep *Report) (int, error) {
	f := frame.Data(payload)
	attempts := 0
	for {
		if err := ctx.Err(); err != nil {
			return attempts, err
		}
		attempts++
		rep.Transmissions++
		telemetry.TransmissionsTotal.Inc()

		if err := s.enc.Encode(f); err != nil {
			return attempts, fmt.Errorf("%w: send frame %d: %w", ErrTransport, idx, err)
		}

		if elapsed := s.clock.Now().Sub(start); elapsed >= s.cfg.Timeout {
			return attempts, fmt.Errorf("%w: %s elapsed, limit %s", ErrTimeout, elapsed.Round(time.Millisecond), s.cfg.Timeout)
		}

		acked, err := s.awaitFeedback(idx, attempts)
		if err != nil {
			return attempts, err
		}
		if acked {
			s.log.Debug("frame acknowledged", zap.Int("frame", idx), zap.Int("attempt", attempts))
			return attempts, nil
		}
		rep.Collisions++

		if attempts >= s.cfg.MaxAttempts {
			return attempts, fmt.Errorf("%w: frame %d after %d attempts", ErrMaxAttempts, idx, attempts)
		}
		delay := s.backoff.Delay(attempts)
		telemetry.BackoffDelay.Observe(delay.Seconds())
		s.log.Debug("backing off",
			zap.Int("frame", idx),
			zap.Int("attempt", attempts),
			zap.Int("window", s.backoff.Window(attempts)),
			zap.Duration("delay", delay))
		if err := s.clock.Sleep(ctx, delay); err != nil {
			return attempts, err
		}
	}
}

// awaitFeedback waits one feedback window for the arbiter's verdict on the
// frame just sent. It reports true only for an ACK; silence, COLLISION and
// unrecognised replies all count as a collision.
func (s *Session) awaitFeedback(idx, attempt int) (bool, error) {
	if err := s.conn.SetReadDeadline(time.Now().Add(s.cfg.FeedbackWindow())); err != nil {
		return false, fmt.Errorf("%w: set read deadline: %w", ErrTransport, err)
	}
	reply, err := s.dec.Decode()
	if err != nil {
		if errors.Is(err, os.ErrDeadlineExceeded) {
			telemetry.SenderCollisionsTotal.WithLabelValues("silence").Inc()
			s.log.Debug("no feedback", zap.Int("frame", idx), zap.Int("attempt", attempt))
			return false, nil
		}
		return false, fmt.Errorf("%w: await feedback for frame %d: %w", ErrTransport, idx, err)
	}

	switch reply.Type {
	case frame.TypeAck:
		return true, nil
	case frame.TypeCollision:
		telemetry.SenderCollisionsTotal.WithLabelValues("collision").Inc()
		s.log.Debug("collision", zap.Int("frame", idx), zap.Int("attempt", attempt))
	default:
		telemetry.SenderCollisionsTotal.WithLabelValues("anomaly").Inc()
		s.log.Debug("unrecognised feedback treated as collision",
			zap.Int("frame", idx), zap.Stringer("type", reply.Type))
	}
	return false, nil
}
