package runner

import (
	"os"
	"strings"
	"time"
)

// Options are the command line settings of a run.
type Options struct {
	Tests  []string // selected test names, paths or prefixes
	PassOn []string // arguments passed on to every test script

	ConfigFile  string // path of config.ini
	SuiteFile   string // optional test lists replacing the built-in ones
	Interpreter string

	Ansi    bool // colors and progress dots
	Unicode bool // status glyphs

	Attempts        int
	Jobs            int
	CombinedLogsLen int
	PollInterval    time.Duration

	Coverage  bool
	CI        bool
	Extended  bool
	KeepCache bool
	FailFast  bool

	Exclude      string
	Filter       string
	TmpDirPrefix string

	MetricsFile string
	StatusAddr  string
}

// DefaultOptions returns the defaults of the command line flags.
func DefaultOptions() Options {
	return Options{
		ConfigFile:   "test/config.ini",
		Interpreter:  "python3",
		Unicode:      UnicodeLocale(os.Getenv),
		Attempts:     1,
		Jobs:         4,
		PollInterval: 500 * time.Millisecond,
		TmpDirPrefix: os.TempDir(),
	}
}

// SplitArgs separates positional arguments into test names and arguments
// passed on to the test scripts, which always start with two dashes.
func SplitArgs(args []string) (tests, passOn []string) {
	for _, arg := range args {
		if strings.HasPrefix(arg, "--") {
			passOn = append(passOn, arg)
		} else {
			tests = append(tests, arg)
		}
	}
	return tests, passOn
}

// UnicodeLocale reports whether the locale can display the status glyphs.
// An unset locale is assumed to be UTF-8.
func UnicodeLocale(getenv func(string) string) bool {
	for _, key := range []string{"LC_ALL", "LC_CTYPE", "LANG"} {
		v := getenv(key)
		if v == "" {
			continue
		}
		v = strings.ToLower(v)
		return strings.Contains(v, "utf-8") || strings.Contains(v, "utf8")
	}
	return true
}
