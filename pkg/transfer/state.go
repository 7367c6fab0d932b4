package transfer

// State is the position of a session in the block transfer state machine.
type State int

const (
	// StateIdle is a session that has not started.
	StateIdle State = iota
	// StateAwaitingInitialAck is a write initiator waiting for ACK 0.
	StateAwaitingInitialAck
	// StateSending is waiting for the ACK of the current DATA block.
	StateSending
	// StateReceiving is waiting for the next expected DATA block.
	StateReceiving
	// StateDone is a transfer that finished successfully.
	StateDone
	// StateFailed is a transfer aborted by an error.
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateAwaitingInitialAck:
		return "awaiting-initial-ack"
	case StateSending:
		return "sending"
	case StateReceiving:
		return "receiving"
	case StateDone:
		return "done"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// IsTerminal returns true for Done and Failed.
func (s State) IsTerminal() bool {
	return s == StateDone || s == StateFailed
}

// CanTransitionTo checks if a state transition is valid
func (s State) CanTransitionTo(next State) bool {
	if s.IsTerminal() {
		return false
	}
	if next == StateFailed {
		return true
	}

	switch s {
	case StateIdle:
		return next == StateAwaitingInitialAck || next == StateSending || next == StateReceiving
	case StateAwaitingInitialAck:
		return next == StateSending
	case StateSending:
		return next == StateSending || next == StateDone
	case StateReceiving:
		return next == StateReceiving || next == StateDone
	default:
		return false
	}
}
