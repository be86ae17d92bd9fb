// Package combine prints the tail of the merged logs of a failed test.
package combine

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"io"
	"os/exec"
	"path/filepath"
)

// Script is the log combiner shipped with the functional tests.
const Script = "combine_logs.py"

// Combiner runs the log combiner of a tests directory.
type Combiner struct {
	Interpreter string
	TestsDir    string
	Color       bool
}

// Tail returns the last n lines of the combined logs of testDir.
func (c Combiner) Tail(ctx context.Context, testDir string, n int) ([]string, error) {
	args := []string{filepath.Join(c.TestsDir, Script), testDir}
	if c.Color {
		args = append(args, "--color")
	}

	var stdout bytes.Buffer
	cmd := exec.CommandContext(ctx, c.Interpreter, args...)
	cmd.Stdout = &stdout
	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("failed to combine logs of %s: %w", testDir, err)
	}
	return LastLines(&stdout, n)
}

// LastLines returns at most the final n lines of r.
func LastLines(r io.Reader, n int) ([]string, error) {
	if n <= 0 {
		return nil, nil
	}

	ring := make([]string, 0, n)
	next := 0
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), 16*1024*1024)
	for scanner.Scan() {
		if len(ring) < n {
			ring = append(ring, scanner.Text())
			continue
		}
		ring[next] = scanner.Text()
		next = (next + 1) % n
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return append(ring[next:], ring[:next]...), nil
}
