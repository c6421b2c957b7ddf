// Package arbiter implements the slot arbiter: it multiplexes any number of
// sender connections (up to a fixed capacity) over a fixed slot, and at the
// end of every slot answers ACK to a lone DATA frame or COLLISION to every
// participant that transmitted when two or more did.
//
// All participant state lives on the goroutine running Run. The accept loop
// and the per-connection readers only do blocking I/O and hand their results
// to it over channels, so nothing is locked.
package arbiter

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"slices"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/ryandielhenn/slotchan/internal/telemetry"
	"github.com/ryandielhenn/slotchan/pkg/frame"
)

const (
	DefaultCapacity = 100
)

var (
	ErrConfig = errors.New("arbiter: invalid configuration")
	ErrSetup  = errors.New("arbiter: setup failed")
)

type Config struct {
	// Addr is the TCP listen address, e.g. ":5000".
	Addr         string
	SlotDuration time.Duration
	// Capacity bounds the participant table; connections beyond it are
	// accepted and closed straight away.
	Capacity int
	// MaxFrameSize bounds a single inbound frame, header included.
	MaxFrameSize int
}

func (c *Config) validate() error {
	if c.SlotDuration <= 0 {
		return fmt.Errorf("%w: slot duration must be positive, got %s", ErrConfig, c.SlotDuration)
	}
	if c.Capacity <= 0 {
		c.Capacity = DefaultCapacity
	}
	if c.MaxFrameSize <= 0 {
		c.MaxFrameSize = frame.MaxFrameSize
	}
	if c.MaxFrameSize < frame.HeaderSize || c.MaxFrameSize > frame.HeaderSize+frame.MaxPayload {
		return fmt.Errorf("%w: max frame size %d outside [%d, %d]",
			ErrConfig, c.MaxFrameSize, frame.HeaderSize, frame.HeaderSize+frame.MaxPayload)
	}
	return nil
}

type Option func(*Arbiter)

func WithLogger(l *zap.Logger) Option {
	return func(a *Arbiter) { a.log = l }
}

// arrival is one reader's result for the current slot: a frame or the error
// that ended the connection.
type arrival struct {
	id  uint64
	f   frame.Frame
	err error
}

type Arbiter struct {
	cfg Config
	log *zap.Logger
	ln  net.Listener

	table  *Table
	nextID uint64
	counts SlotCounts

	conns    chan net.Conn
	arrivals chan arrival
	done     chan struct{}

	snap atomic.Pointer[Snapshot]
}

// New validates cfg and binds the listening socket. The arbiter does not
// accept anyone until Run is called.
func New(cfg Config, opts ...Option) (*Arbiter, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	a := &Arbiter{
		cfg:      cfg,
		log:      zap.NewNop(),
		table:    NewTable(cfg.Capacity),
		conns:    make(chan net.Conn),
		arrivals: make(chan arrival, cfg.Capacity),
		done:     make(chan struct{}),
	}
	for _, o := range opts {
		o(a)
	}
	ln, err := net.Listen("tcp", cfg.Addr)
	if err != nil {
		return nil, fmt.Errorf("%w: listen %s: %w", ErrSetup, cfg.Addr, err)
	}
	a.ln = ln
	a.publish()
	return a, nil
}

// Run binds cfg.Addr and arbitrates until ctx is cancelled.
func Run(ctx context.Context, cfg Config, opts ...Option) ([]ParticipantStats, error) {
	a, err := New(cfg, opts...)
	if err != nil {
		return nil, err
	}
	return a.Run(ctx)
}

func (a *Arbiter) Addr() net.Addr { return a.ln.Addr() }

// Snapshot returns the state published at the end of the latest slot. It is
// safe to call from any goroutine.
func (a *Arbiter) Snapshot() Snapshot { return *a.snap.Load() }

// Run arbitrates one slot after another until ctx is cancelled. Cancellation
// is observed once per slot, after the slot's replies are sent. On return
// every connection is closed and the final counters of the participants that
// were still connected are returned in admission order.
func (a *Arbiter) Run(ctx context.Context) ([]ParticipantStats, error) {
	a.log.Info("arbiter listening",
		zap.String("addr", a.ln.Addr().String()),
		zap.Duration("slot", a.cfg.SlotDuration),
		zap.Int("capacity", a.cfg.Capacity))

	go a.acceptLoop()

	ticker := time.NewTicker(a.cfg.SlotDuration)
	defer ticker.Stop()

	slot := make(map[uint64]frame.Frame, a.cfg.Capacity)
	for {
	collect:
		for {
			select {
			case conn := <-a.conns:
				a.admit(conn)
			case arr := <-a.arrivals:
				a.receive(arr, slot)
			case <-ticker.C:
				break collect
			}
		}

		a.closeSlot(slot)
		clear(slot)
		a.publish()

		if ctx.Err() != nil {
			break
		}
	}
	return a.shutdown(), nil
}

func (a *Arbiter) acceptLoop() {
	for {
		conn, err := a.ln.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				return
			}
			a.log.Warn("accept failed", zap.Error(err))
			select {
			case <-a.done:
				return
			case <-time.After(5 * time.Millisecond):
			}
			continue
		}
		select {
		case a.conns <- conn:
		case <-a.done:
			_ = conn.Close()
			return
		}
	}
}

// readLoop decodes at most one frame per slot: after handing a frame over it
// waits for closeSlot to release it.
func (a *Arbiter) readLoop(p *Participant) {
	dec := frame.NewDecoder(p.conn, a.cfg.MaxFrameSize)
	for {
		f, err := dec.Decode()
		select {
		case a.arrivals <- arrival{id: p.ID, f: f, err: err}:
		case <-a.done:
			return
		}
		if err != nil {
			return
		}
		select {
		case _, ok := <-p.next:
			if !ok {
				return
			}
		case <-a.done:
			return
		}
	}
}

func (a *Arbiter) admit(conn net.Conn) {
	if a.table.Full() {
		telemetry.RejectedTotal.Inc()
		a.log.Warn("too many participants, rejecting connection",
			zap.String("remote", conn.RemoteAddr().String()),
			zap.Int("capacity", a.table.Cap()))
		_ = conn.Close()
		return
	}
	a.nextID++
	p := newParticipant(a.nextID, conn, time.Now())
	a.table.Add(p)
	telemetry.Participants.Set(float64(a.table.Len()))
	a.log.Info("participant connected", zap.Uint64("id", p.ID), zap.String("remote", p.Addr))
	go a.readLoop(p)
}

func (a *Arbiter) receive(arr arrival, slot map[uint64]frame.Frame) {
	p, ok := a.table.Get(arr.id)
	if !ok {
		// already removed; its reader is draining
		return
	}
	if arr.err != nil {
		reason := "read"
		if errors.Is(arr.err, io.EOF) {
			reason = "disconnect"
		}
		a.remove(p, reason, arr.err)
		return
	}
	slot[arr.id] = arr.f
}

// closeSlot classifies the slot and sends the replies it calls for.
func (a *Arbiter) closeSlot(slot map[uint64]frame.Frame) {
	outcome := Classify(len(slot))
	a.counts.add(outcome)
	telemetry.SlotsTotal.WithLabelValues(outcome.String()).Inc()

	ids := make([]uint64, 0, len(slot))
	for id := range slot {
		ids = append(ids, id)
	}
	slices.Sort(ids)

	switch outcome {
	case Idle:
		return
	case Success:
		p, _ := a.table.Get(ids[0])
		f := slot[ids[0]]
		p.Frames++
		p.Bytes += int64(f.Size())
		telemetry.FramesTotal.Inc()
		telemetry.BytesTotal.Add(float64(f.Size()))
		a.log.Debug("slot success", zap.Uint64("id", p.ID), zap.Stringer("type", f.Type), zap.Int("len", f.Len()))
		// A lone non-DATA frame is counted but gets no reply.
		if f.Type == frame.TypeData {
			a.reply(p, frame.Ack())
		}
	case Collision:
		a.log.Debug("slot collision", zap.Int("participants", len(ids)))
		for _, id := range ids {
			p, _ := a.table.Get(id)
			p.Collisions++
			telemetry.CollisionsTotal.Inc()
		}
		for _, id := range ids {
			p, _ := a.table.Get(id)
			a.reply(p, frame.Collision())
		}
	}

	for _, id := range ids {
		if p, ok := a.table.Get(id); ok {
			p.next <- struct{}{}
		}
	}
}

func (a *Arbiter) reply(p *Participant, f frame.Frame) {
	_ = p.conn.SetWriteDeadline(time.Now().Add(a.cfg.SlotDuration))
	if err := p.enc.Encode(f); err != nil {
		a.remove(p, "write", err)
	}
}

func (a *Arbiter) remove(p *Participant, reason string, cause error) {
	if _, ok := a.table.Remove(p.ID); !ok {
		return
	}
	close(p.next)
	_ = p.conn.Close()
	telemetry.Participants.Set(float64(a.table.Len()))
	telemetry.RemovedTotal.WithLabelValues(reason).Inc()
	a.log.Info("participant removed",
		zap.Uint64("id", p.ID),
		zap.String("remote", p.Addr),
		zap.String("reason", reason),
		zap.NamedError("cause", cause),
		zap.Int64("frames", p.Frames),
		zap.Int64("collisions", p.Collisions),
		zap.Int64("bytes", p.Bytes))
}

func (a *Arbiter) shutdown() []ParticipantStats {
	close(a.done)
	_ = a.ln.Close()

	stats := a.table.Stats()
	for _, p := range a.table.All() {
		_ = p.conn.Close()
		a.table.Remove(p.ID)
	}
	telemetry.Participants.Set(0)
	a.publish()

	for _, s := range stats {
		host, port, err := net.SplitHostPort(s.Addr)
		if err != nil {
			host, port = s.Addr, "?"
		}
		a.log.Info(fmt.Sprintf("From %s port %s: %d frames, %d collisions", host, port, s.Frames, s.Collisions),
			zap.Uint64("id", s.ID),
			zap.Int64("bytes", s.Bytes))
	}
	a.log.Info("arbiter done", zap.Int64("slots", a.counts.Total()))
	return stats
}
