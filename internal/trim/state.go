package trim

// State is the state of a job.
type State int

// states.
const (
	StateIdle State = iota
	StateValidating
	StateCopying
	StateCompleted
	StateCancelled
	StateFailed
)

// String implements fmt.Stringer.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateValidating:
		return "validating"
	case StateCopying:
		return "copying"
	case StateCompleted:
		return "completed"
	case StateCancelled:
		return "cancelled"
	case StateFailed:
		return "failed"
	}
	return "unknown"
}

// IsTerminal returns whether the state is final.
func (s State) IsTerminal() bool {
	return s == StateCompleted || s == StateCancelled || s == StateFailed
}
