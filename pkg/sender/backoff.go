package sender

import (
	"math/rand/v2"
	"time"
)

// Backoff draws binary exponential backoff delays. After the k-th failed
// attempt the delay is a whole number of slots drawn uniformly from
// [0, 2^k), with k capped at maxExp. The draws are reproducible for a seed.
type Backoff struct {
	rng    *rand.Rand
	slot   time.Duration
	maxExp int
}

func NewBackoff(seed int64, slot time.Duration, maxExp int) *Backoff {
	if maxExp <= 0 {
		maxExp = MaxBackoffAttempts
	}
	return &Backoff{
		rng:    rand.New(rand.NewPCG(uint64(seed), 0)),
		slot:   slot,
		maxExp: maxExp,
	}
}

// Window returns the number of slot units the draw for attempt can pick from.
func (b *Backoff) Window(attempt int) int {
	k := min(max(attempt, 0), b.maxExp)
	return 1 << k
}

// Slots draws a slot count in [0, Window(attempt)).
func (b *Backoff) Slots(attempt int) int {
	return b.rng.IntN(b.Window(attempt))
}

func (b *Backoff) Delay(attempt int) time.Duration {
	return time.Duration(b.Slots(attempt)) * b.slot
}
