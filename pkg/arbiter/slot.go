package arbiter

// Outcome classifies one slot by how many participants delivered a frame.
type Outcome int

const (
	Idle Outcome = iota
	Success
	Collision
)

func (o Outcome) String() string {
	switch o {
	case Idle:
		return "idle"
	case Success:
		return "success"
	case Collision:
		return "collision"
	}
	return "unknown"
}

// Classify depends only on the number of arrivals, so the order in which
// participants were read cannot change the outcome.
func Classify(arrivals int) Outcome {
	switch {
	case arrivals <= 0:
		return Idle
	case arrivals == 1:
		return Success
	default:
		return Collision
	}
}
