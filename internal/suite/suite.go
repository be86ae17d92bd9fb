// Package suite holds the functional test lists and selects the jobs of a run.
package suite

import (
	_ "embed"
	"errors"
	"fmt"
	"os"
	"regexp"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

//go:embed suites.yaml
var defaultSuites []byte

// ErrEmptySelection is returned when no test matched the selection.
var ErrEmptySelection = errors.New("no valid test scripts specified")

var goodPrefixes = regexp.MustCompile(`^(example|feature|interface|mempool|mining|p2p|rpc|wallet|tool)_`)

// Suites are the test lists. Each job is a script name optionally followed
// by whitespace-separated script arguments.
type Suites struct {
	FrameworkModules []string `yaml:"framework_modules"`
	Extended         []string `yaml:"extended"`
	Base             []string `yaml:"base"`
	NonScripts       []string `yaml:"non_scripts"`
}

// Default returns the built-in test lists.
func Default() (*Suites, error) {
	return Parse(defaultSuites)
}

// Load reads test lists from a YAML file.
func Load(path string) (*Suites, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read suite file: %w", err)
	}
	return Parse(data)
}

// Parse decodes and validates YAML test lists.
func Parse(data []byte) (*Suites, error) {
	var s Suites
	if err := yaml.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("failed to parse suite file: %w", err)
	}
	for _, list := range [][]string{s.Extended, s.Base, s.NonScripts} {
		for _, spec := range list {
			if strings.TrimSpace(spec) == "" {
				return nil, fmt.Errorf("suite file contains an empty job")
			}
		}
	}
	return &s, nil
}

// All returns the extended tests followed by the base tests.
func (s *Suites) All() []string {
	all := make([]string, 0, len(s.Extended)+len(s.Base))
	all = append(all, s.Extended...)
	return append(all, s.Base...)
}

// Selection describes which tests a run should execute.
type Selection struct {
	Tests    []string // explicit names, paths or prefixes
	Extended bool     // include the extended list when Tests is empty
	Exclude  string   // comma-separated script names
	Filter   string   // regular expression over job names
}

// Select builds the test list of a run. Warnings are returned for names
// that could not be matched.
func (s *Suites) Select(sel Selection) ([]string, []string, error) {
	var (
		list     []string
		warnings []string
	)

	switch {
	case len(sel.Tests) > 0:
		all := s.All()
		for _, test := range sel.Tests {
			matched := matchPrefix(all, test)
			if len(matched) == 0 {
				warnings = append(warnings, fmt.Sprintf("Test '%s' not found in full test list.", test))
				continue
			}
			list = append(list, matched...)
		}
	case sel.Extended:
		list = s.All()
	default:
		list = append(list, s.Base...)
	}

	if sel.Exclude != "" {
		for _, name := range strings.Split(sel.Exclude, ",") {
			exclude := scriptStem(name)
			kept := list[:0]
			found := false
			for _, spec := range list {
				if scriptStem(spec) == exclude {
					found = true
					continue
				}
				kept = append(kept, spec)
			}
			list = kept
			if !found {
				warnings = append(warnings, fmt.Sprintf("Test '%s' not found in current test list.", exclude))
			}
		}
	}

	if sel.Filter != "" {
		re, err := regexp.Compile(sel.Filter)
		if err != nil {
			return nil, warnings, fmt.Errorf("invalid filter: %w", err)
		}
		filtered := list[:0]
		for _, spec := range list {
			if re.MatchString(spec) {
				filtered = append(filtered, spec)
			}
		}
		list = filtered
	}

	if len(list) == 0 {
		return nil, warnings, ErrEmptySelection
	}
	return list, warnings, nil
}

// matchPrefix returns every job whose name starts with the script named by
// test. Directories are stripped and ".py" is appended when missing; a
// trailing "*" matches any script with that prefix.
func matchPrefix(all []string, test string) []string {
	script := test[strings.LastIndex(test, "/")+1:]
	if strings.HasSuffix(script, "*") {
		script = strings.TrimRight(script, "*")
	} else if !strings.Contains(script, ".py") {
		script += ".py"
	}
	if script == "" {
		return nil
	}

	var matched []string
	for _, spec := range all {
		if strings.HasPrefix(spec, script) {
			matched = append(matched, spec)
		}
	}
	return matched
}

// scriptStem returns everything before the first ".py".
func scriptStem(spec string) string {
	return strings.SplitN(spec, ".py", 2)[0]
}

// NamingError lists scripts that do not follow the naming convention.
type NamingError struct {
	Names []string
}

func (e *NamingError) Error() string {
	return fmt.Sprintf("%d tests not meeting naming conventions:\n  %s", len(e.Names), strings.Join(e.Names, "\n  "))
}

// CheckPrefixes verifies that every test script starts with one of the
// allowed category prefixes.
func (s *Suites) CheckPrefixes() error {
	var bad []string
	for _, spec := range s.All() {
		if !goodPrefixes.MatchString(spec) {
			bad = append(bad, spec)
		}
	}
	if len(bad) == 0 {
		return nil
	}
	sort.Strings(bad)
	return &NamingError{Names: bad}
}

// Unlisted returns the .py files in dir that are neither a test script nor
// a known helper.
func (s *Suites) Unlisted(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read tests directory: %w", err)
	}

	known := make(map[string]bool)
	for _, spec := range append(s.All(), s.NonScripts...) {
		if fields := strings.Fields(spec); len(fields) > 0 {
			known[fields[0]] = true
		}
	}

	var missed []string
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasSuffix(name, ".py") || known[name] {
			continue
		}
		missed = append(missed, name)
	}
	sort.Strings(missed)
	return missed, nil
}
