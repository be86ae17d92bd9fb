// Package discover finds node processes that already run on the host and
// may compete with the tests for ports and CPU.
package discover

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/shirou/gopsutil/v3/process"
)

// DefaultCommands are the daemon names looked for by default.
var DefaultCommands = []string{"dashd"}

// Process is a discovered running process.
type Process struct {
	PID         int
	Command     string
	CommandLine []string
	StartTime   time.Time
}

// Scanner discovers running processes by exact command name.
type Scanner struct {
	targetCommands map[string]bool
	ownPID         int // Scanner's own PID (to filter out self)
}

// NewScanner creates a new process scanner
func NewScanner(targetCommands ...string) *Scanner {
	if len(targetCommands) == 0 {
		targetCommands = DefaultCommands
	}
	targets := make(map[string]bool, len(targetCommands))
	for _, c := range targetCommands {
		targets[c] = true
	}
	return &Scanner{
		targetCommands: targets,
		ownPID:         os.Getpid(),
	}
}

// Scan returns every running process whose name matches a target command.
// Processes that exit while being inspected are skipped.
func (s *Scanner) Scan(ctx context.Context) ([]*Process, error) {
	procs, err := process.ProcessesWithContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list processes: %w", err)
	}

	var found []*Process
	for _, p := range procs {
		if int(p.Pid) == s.ownPID {
			continue
		}
		name, err := p.NameWithContext(ctx)
		if err != nil || !s.targetCommands[name] {
			continue
		}

		proc := &Process{PID: int(p.Pid), Command: name}
		if cmdline, err := p.CmdlineSliceWithContext(ctx); err == nil {
			proc.CommandLine = cmdline
		}
		if created, err := p.CreateTimeWithContext(ctx); err == nil {
			proc.StartTime = time.UnixMilli(created)
		}
		found = append(found, proc)
	}
	return found, nil
}

// Running reports whether any target process runs.
func (s *Scanner) Running(ctx context.Context) (bool, error) {
	found, err := s.Scan(ctx)
	if err != nil {
		return false, err
	}
	return len(found) > 0, nil
}
