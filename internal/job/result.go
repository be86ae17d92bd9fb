package job

import (
	"strings"
	"time"
)

// Status is the terminal outcome of a job slot.
type Status string

const (
	StatusPassed  Status = "Passed"
	StatusSkipped Status = "Skipped"
	StatusFailed  Status = "Failed"
)

// Result is the immutable terminal record of a job slot. It is handed out by
// value; nothing mutates it after the scheduler builds it.
type Result struct {
	// Identity: script name plus its arguments
	Name string `json:"name"`

	Status Status `json:"status"`

	// Timing of the final attempt
	StartTime time.Time     `json:"start_time"`
	EndTime   time.Time     `json:"end_time"`
	Elapsed   time.Duration `json:"elapsed"`

	ExitCode int `json:"exit_code"`
	Attempts int `json:"attempts"`

	// Only set for Skipped results
	SkipReason string `json:"skip_reason,omitempty"`
}

// NewResult creates a result for the final attempt of a slot.
func NewResult(name string, status Status, exitCode, attempts int, startTime, endTime time.Time) Result {
	return Result{
		Name:      name,
		Status:    status,
		StartTime: startTime,
		EndTime:   endTime,
		Elapsed:   endTime.Sub(startTime),
		ExitCode:  exitCode,
		Attempts:  attempts,
	}
}

// Seconds returns the elapsed time truncated to whole seconds.
func (r Result) Seconds() int64 {
	return int64(r.Elapsed / time.Second)
}

// WasSuccessful reports whether the result counts towards an overall pass.
// Skipped tests do not fail a run.
func (r Result) WasSuccessful() bool {
	return r.Status != StatusFailed
}

// SortKey orders Passed before Skipped before Failed, then by lower-cased
// name.
func (r Result) SortKey() (int, string) {
	rank := 2
	switch r.Status {
	case StatusPassed:
		rank = 0
	case StatusSkipped:
		rank = 1
	}
	return rank, strings.ToLower(r.Name)
}

// Less reports whether a sorts before b.
func Less(a, b Result) bool {
	ra, na := a.SortKey()
	rb, nb := b.SortKey()
	if ra != rb {
		return ra < rb
	}
	return na < nb
}
