package job

import "fmt"

// State is the lifecycle state of a job slot.
type State string

// Strict slot states
const (
	StatePending  State = "pending"  // Popped from the queue, process not started yet
	StateRunning  State = "running"  // Child process launched, not yet exited
	StateRetrying State = "retrying" // Attempt failed, slot waits for relaunch
	StatePassed   State = "passed"   // Terminal: exit 0 with empty stderr
	StateSkipped  State = "skipped"  // Terminal: exit code 77
	StateFailed   State = "failed"   // Terminal: failure after the last attempt
)

// validTransitions maps from-state to allowed to-states
var validTransitions = map[State]map[State]bool{
	StatePending: {
		StateRunning: true, // Pending → Running (process launched)
	},
	StateRunning: {
		StatePassed:   true,
		StateSkipped:  true,
		StateFailed:   true,
		StateRetrying: true, // Running → Retrying (attempts left)
	},
	StateRetrying: {
		StateRunning: true, // Retrying → Running (relaunch with attempt+1)
	},
	// Terminal states (no transitions allowed)
	StatePassed:  {},
	StateSkipped: {},
	StateFailed:  {},
}

// ValidateTransition checks if a state transition is valid
func ValidateTransition(from, to State) error {
	allowed, exists := validTransitions[from]
	if !exists {
		return fmt.Errorf("unknown source state: %s", from)
	}
	if !allowed[to] {
		return fmt.Errorf("invalid transition from %s to %s", from, to)
	}
	return nil
}

// IsTerminal returns true if no further transitions are possible from state.
func IsTerminal(state State) bool {
	return state == StatePassed || state == StateSkipped || state == StateFailed
}

// StatusOf maps a terminal state to the status recorded in a Result.
func StatusOf(state State) (Status, error) {
	switch state {
	case StatePassed:
		return StatusPassed, nil
	case StateSkipped:
		return StatusSkipped, nil
	case StateFailed:
		return StatusFailed, nil
	default:
		return "", fmt.Errorf("state %s is not terminal", state)
	}
}
