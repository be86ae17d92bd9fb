// Package coverage collects the RPC commands exercised by a run and reports
// the ones no test called.
package coverage

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

const (
	// ReferenceFile lists every RPC command of the node, one per line.
	ReferenceFile = "rpc_interface.txt"
	// FilePrefix starts the name of every per-node coverage file.
	FilePrefix = "coverage."
)

// ErrNoReference is returned when no test wrote the reference file.
var ErrNoReference = errors.New("no coverage reference found")

// alwaysCovered are commands the coverage files never show, e.g. because
// the test framework wraps them.
var alwaysCovered = []string{"generate", "voteraw", "getmerkleblocks"}

// RPC is a coverage directory shared by the tests of one run.
type RPC struct {
	Dir string
}

// New creates a fresh coverage directory under parent (the default temp
// dir when empty).
func New(parent string) (*RPC, error) {
	dir, err := os.MkdirTemp(parent, "coverage")
	if err != nil {
		return nil, fmt.Errorf("failed to create coverage directory: %w", err)
	}
	return &RPC{Dir: dir}, nil
}

// Flag is passed on to every test script.
func (c *RPC) Flag() string {
	return "--coveragedir=" + c.Dir
}

// Uncovered returns the sorted commands of the reference file that appear
// in no coverage file.
func (c *RPC) Uncovered() ([]string, error) {
	all, err := readLines(filepath.Join(c.Dir, ReferenceFile))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, ErrNoReference
	}
	if err != nil {
		return nil, err
	}

	covered := make(map[string]bool)
	for _, cmd := range alwaysCovered {
		covered[cmd] = true
	}

	err = filepath.WalkDir(c.Dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || !strings.HasPrefix(d.Name(), FilePrefix) {
			return nil
		}
		cmds, err := readLines(path)
		if err != nil {
			return err
		}
		for _, cmd := range cmds {
			covered[cmd] = true
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to read coverage files: %w", err)
	}

	seen := make(map[string]bool)
	var uncovered []string
	for _, cmd := range all {
		if cmd == "" || covered[cmd] || seen[cmd] {
			continue
		}
		seen[cmd] = true
		uncovered = append(uncovered, cmd)
	}
	sort.Strings(uncovered)
	return uncovered, nil
}

// Report prints the uncovered commands to w and reports whether every
// command was covered.
func (c *RPC) Report(w io.Writer) (bool, error) {
	uncovered, err := c.Uncovered()
	if err != nil {
		return false, err
	}
	if len(uncovered) == 0 {
		fmt.Fprintln(w, "All RPC commands covered.")
		return true, nil
	}

	var b strings.Builder
	b.WriteString("Uncovered RPC commands:\n")
	for _, cmd := range uncovered {
		fmt.Fprintf(&b, "  - %s\n", cmd)
	}
	fmt.Fprintln(w, b.String())
	return false, nil
}

// Cleanup removes the coverage directory.
func (c *RPC) Cleanup() error {
	return os.RemoveAll(c.Dir)
}

func readLines(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var lines []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		lines = append(lines, strings.TrimSpace(scanner.Text()))
	}
	return lines, scanner.Err()
}
