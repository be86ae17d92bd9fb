package job

import (
	"sort"
	"testing"
	"time"
)

func TestResultOrdering(t *testing.T) {
	now := time.Now()
	results := []Result{
		NewResult("b.py", StatusFailed, 1, 1, now, now),
		NewResult("Z.py", StatusPassed, 0, 1, now, now),
		NewResult("c.py", StatusSkipped, 77, 1, now, now),
		NewResult("a.py", StatusPassed, 0, 1, now, now),
	}
	sort.Slice(results, func(i, j int) bool { return Less(results[i], results[j]) })

	want := []string{"a.py", "Z.py", "c.py", "b.py"}
	for i, name := range want {
		if results[i].Name != name {
			t.Errorf("position %d: got %s, want %s", i, results[i].Name, name)
		}
	}
}

func TestWasSuccessful(t *testing.T) {
	tests := []struct {
		status   Status
		expected bool
	}{
		{StatusPassed, true},
		{StatusSkipped, true},
		{StatusFailed, false},
	}
	for _, tt := range tests {
		if got := (Result{Status: tt.status}).WasSuccessful(); got != tt.expected {
			t.Errorf("WasSuccessful(%s) = %v, want %v", tt.status, got, tt.expected)
		}
	}
}
