package job

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"
)

// Slot is one entry of the pending queue from the moment it is popped until
// it produces its Result. Retries reuse the slot, so the port seed and the
// working directory never change across attempts.
type Slot struct {
	Name     string   // full specification, e.g. "wallet_hd.py --descriptors"
	Script   string   // first token of Name
	Args     []string // remaining tokens of Name
	PortSeed int
	TestDir  string

	Attempt   int
	State     State
	StartTime time.Time
}

// NewSlot parses a whitespace-delimited job specification and assigns its
// working directory under tmpDir.
func NewSlot(spec string, portSeed int, tmpDir string) (*Slot, error) {
	argv := strings.Fields(spec)
	if len(argv) == 0 {
		return nil, fmt.Errorf("empty job specification")
	}
	return &Slot{
		Name:     spec,
		Script:   argv[0],
		Args:     argv[1:],
		PortSeed: portSeed,
		TestDir:  TestDir(tmpDir, argv[0], portSeed),
		State:    StatePending,
	}, nil
}

// TestDir returns <tmpDir>/<script without .py>_<portSeed>.
func TestDir(tmpDir, script string, portSeed int) string {
	return filepath.Join(tmpDir, fmt.Sprintf("%s_%d", strings.TrimSuffix(script, ".py"), portSeed))
}

// Transition moves the slot to state `to`, rejecting invalid moves.
func (s *Slot) Transition(to State) error {
	if err := ValidateTransition(s.State, to); err != nil {
		return fmt.Errorf("job %q: %w", s.Name, err)
	}
	s.State = to
	return nil
}

// Start marks the beginning of a new attempt.
func (s *Slot) Start(now time.Time) error {
	if err := s.Transition(StateRunning); err != nil {
		return err
	}
	s.Attempt++
	s.StartTime = now
	return nil
}

// Finish moves the slot into a terminal state and builds its Result.
func (s *Slot) Finish(to State, exitCode int, now time.Time) (Result, error) {
	if !IsTerminal(to) {
		return Result{}, fmt.Errorf("job %q: %s is not a terminal state", s.Name, to)
	}
	if err := s.Transition(to); err != nil {
		return Result{}, err
	}
	status, err := StatusOf(to)
	if err != nil {
		return Result{}, err
	}
	return NewResult(s.Name, status, exitCode, s.Attempt, s.StartTime, now), nil
}
