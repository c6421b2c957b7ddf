package arbiter

import "time"

// SlotCounts tallies closed slots by outcome.
type SlotCounts struct {
	Idle      int64 `json:"idle"`
	Success   int64 `json:"success"`
	Collision int64 `json:"collision"`
}

func (c *SlotCounts) add(o Outcome) {
	switch o {
	case Idle:
		c.Idle++
	case Success:
		c.Success++
	case Collision:
		c.Collision++
	}
}

func (c SlotCounts) Total() int64 { return c.Idle + c.Success + c.Collision }

// Snapshot is an immutable copy of the arbiter state, published after every
// slot for readers outside the arbitration goroutine.
type Snapshot struct {
	Addr         string             `json:"addr"`
	SlotDuration time.Duration      `json:"slot_duration"`
	Capacity     int                `json:"capacity"`
	Slots        SlotCounts         `json:"slots"`
	Participants []ParticipantStats `json:"participants"`
	UpdatedAt    time.Time          `json:"updated_at"`
}

func (a *Arbiter) publish() {
	a.snap.Store(&Snapshot{
		Addr:         a.ln.Addr().String(),
		SlotDuration: a.cfg.SlotDuration,
		Capacity:     a.cfg.Capacity,
		Slots:        a.counts,
		Participants: a.table.Stats(),
		UpdatedAt:    time.Now(),
	})
}
