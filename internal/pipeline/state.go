package pipeline

// State is the lifecycle state of a Controller.
type State int

const (
	// StateIdle means constructed but never started.
	StateIdle State = iota
	// StateRunning means workers are up and sentences are accepted.
	StateRunning
	// StateDraining means FinishAndSave is in progress.
	StateDraining
	// StateStopped means the last session has finished or been aborted.
	StateStopped
)

// String returns the string representation of the state.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateRunning:
		return "running"
	case StateDraining:
		return "draining"
	case StateStopped:
		return "stopped"
	default:
		return "unknown"
	}
}
