package arbiter

import (
	"net"
	"testing"
	"time"
)

func newTableParticipant(id uint64) *Participant {
	c := &recordConn{remote: &net.TCPAddr{IP: net.IPv4(127, 0, 0, 1), Port: 40000 + int(id)}}
	return newParticipant(id, c, time.Now())
}

func TestTableAddGetRemove(t *testing.T) {
	tb := NewTable(3)
	for id := uint64(1); id <= 3; id++ {
		if !tb.Add(newTableParticipant(id)) {
			t.Fatalf("Add(%d) = false, want true", id)
		}
	}
	if got := tb.Len(); got != 3 {
		t.Fatalf("Len = %d, want 3", got)
	}
	if !tb.Full() {
		t.Fatalf("Full = false with 3/3")
	}

	if tb.Add(newTableParticipant(4)) {
		t.Fatalf("Add beyond capacity succeeded")
	}

	p, ok := tb.Remove(1)
	if !ok || p.ID != 1 {
		t.Fatalf("Remove(1) = (%v,%v)", p, ok)
	}
	if _, ok := tb.Remove(1); ok {
		t.Fatalf("second Remove(1) succeeded")
	}

	// the swapped-in entry must still be reachable by id
	for _, id := range []uint64{2, 3} {
		got, ok := tb.Get(id)
		if !ok || got.ID != id {
			t.Fatalf("Get(%d) = (%v,%v) after removal of 1", id, got, ok)
		}
	}
	if !tb.Add(newTableParticipant(5)) {
		t.Fatalf("Add after removal failed")
	}
}

func TestTableRejectsDuplicateID(t *testing.T) {
	tb := NewTable(4)
	tb.Add(newTableParticipant(7))
	if tb.Add(newTableParticipant(7)) {
		t.Fatalf("duplicate id admitted")
	}
}

func TestTableStatsAdmissionOrder(t *testing.T) {
	tb := NewTable(10)
	for id := uint64(1); id <= 6; id++ {
		tb.Add(newTableParticipant(id))
	}
	tb.Remove(2)
	tb.Remove(5)

	p, _ := tb.Get(4)
	p.Frames = 9
	p.Collisions = 2

	stats := tb.Stats()
	want := []uint64{1, 3, 4, 6}
	if len(stats) != len(want) {
		t.Fatalf("len(Stats) = %d, want %d", len(stats), len(want))
	}
	for i, id := range want {
		if stats[i].ID != id {
			t.Fatalf("Stats[%d].ID = %d, want %d", i, stats[i].ID, id)
		}
	}
	if stats[2].Frames != 9 || stats[2].Collisions != 2 {
		t.Fatalf("Stats[2] = %+v, want frames=9 collisions=2", stats[2])
	}
}

func TestTableDefaultCapacity(t *testing.T) {
	if got := NewTable(0).Cap(); got != DefaultCapacity {
		t.Fatalf("Cap = %d, want %d", got, DefaultCapacity)
	}
}
