package arbiter

import (
	"cmp"
	"net"
	"slices"
	"time"

	"github.com/ryandielhenn/slotchan/pkg/frame"
)

// Participant is the arbiter's record of one connected sender. It is owned
// by the arbitration goroutine and never touched from anywhere else.
type Participant struct {
	ID          uint64
	Addr        string
	ConnectedAt time.Time

	Frames     int64
	Collisions int64
	Bytes      int64

	conn net.Conn
	enc  *frame.Encoder
	// next releases the reader goroutine for the participant's next frame.
	next chan struct{}
}

func newParticipant(id uint64, conn net.Conn, now time.Time) *Participant {
	return &Participant{
		ID:          id,
		Addr:        conn.RemoteAddr().String(),
		ConnectedAt: now,
		conn:        conn,
		enc:         frame.NewEncoder(conn),
		next:        make(chan struct{}, 1),
	}
}

// ParticipantStats is a copy of a participant's counters.
type ParticipantStats struct {
	ID          uint64    `json:"id"`
	Addr        string    `json:"addr"`
	ConnectedAt time.Time `json:"connected_at"`
	Frames      int64     `json:"frames"`
	Collisions  int64     `json:"collisions"`
	Bytes       int64     `json:"bytes"`
}

func (p *Participant) Stats() ParticipantStats {
	return ParticipantStats{
		ID:          p.ID,
		Addr:        p.Addr,
		ConnectedAt: p.ConnectedAt,
		Frames:      p.Frames,
		Collisions:  p.Collisions,
		Bytes:       p.Bytes,
	}
}

// Table is a capacity-bounded participant set keyed by participant id.
// Add, Remove and Get are O(1); removal swaps the last entry into the hole.
type Table struct {
	cap   int
	items []*Participant
	index map[uint64]int
}

func NewTable(capacity int) *Table {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Table{
		cap:   capacity,
		items: make([]*Participant, 0, capacity),
		index: make(map[uint64]int, capacity),
	}
}

// Add inserts p and reports whether there was room for it.
func (t *Table) Add(p *Participant) bool {
	if len(t.items) >= t.cap {
		return false
	}
	if _, ok := t.index[p.ID]; ok {
		return false
	}
	t.index[p.ID] = len(t.items)
	t.items = append(t.items, p)
	return true
}

func (t *Table) Remove(id uint64) (*Participant, bool) {
	i, ok := t.index[id]
	if !ok {
		return nil, false
	}
	p := t.items[i]
	last := len(t.items) - 1
	if i != last {
		t.items[i] = t.items[last]
		t.index[t.items[i].ID] = i
	}
	t.items[last] = nil
	t.items = t.items[:last]
	delete(t.index, id)
	return p, true
}

func (t *Table) Get(id uint64) (*Participant, bool) {
	i, ok := t.index[id]
	if !ok {
		return nil, false
	}
	return t.items[i], true
}

func (t *Table) Len() int { return len(t.items) }
func (t *Table) Cap() int { return t.cap }
func (t *Table) Full() bool { return len(t.items) >= t.cap }

// All returns the participants in admission order.
func (t *Table) All() []*Participant {
	out := slices.Clone(t.items)
	slices.SortFunc(out, func(a, b *Participant) int { return cmp.Compare(a.ID, b.ID) })
	return out
}

// Stats snapshots every participant's counters in admission order.
func (t *Table) Stats() []ParticipantStats {
	all := t.All()
	out := make([]ParticipantStats, len(all))
	for i, p := range all {
		out[i] = p.Stats()
	}
	return out
}
