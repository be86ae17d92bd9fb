package observe

import "time"

// Timing records the wall-clock span of a run or an attempt.
type Timing struct {
	StartedAt   time.Time
	CompletedAt time.Time
}

// NewTiming starts a timing at now.
func NewTiming(now time.Time) *Timing {
	return &Timing{StartedAt: now}
}

// Complete records completion time
func (t *Timing) Complete(now time.Time) {
	t.CompletedAt = now
}

// Duration returns the span so far, or the final span once completed.
func (t *Timing) Duration() time.Duration {
	if t.CompletedAt.IsZero() {
		return time.Since(t.StartedAt)
	}
	return t.CompletedAt.Sub(t.StartedAt)
}

// Seconds returns Duration truncated to whole seconds.
func (t *Timing) Seconds() int64 {
	return int64(t.Duration() / time.Second)
}
