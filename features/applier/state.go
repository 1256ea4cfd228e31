package applier

// State is the applier's re-entrancy token.
type State int

const (
	StateIdle State = iota
	StateRunning
	// StateQueued means a pass is running and exactly one more will follow it.
	StateQueued
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateRunning:
		return "running"
	case StateQueued:
		return "queued"
	}
	return "unknown"
}
