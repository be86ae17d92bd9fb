package report

import (
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/dashpay/functest-runner/internal/job"
)

// Summary is the aggregate line of a results table.
type Summary struct {
	AllPassed bool
	TimeSum   int64
}

// PrintResults writes the results table sorted Passed, Skipped, Failed:
//
//	TEST    | STATUS    | DURATION
//
//	a.py    | ✓ Passed  | 3 s
//	ALL     | ✓ Passed  | 3 s (accumulated)
//	Runtime: 4 s
//
// maxLenName pads the name column; runtime is the wall-clock total.
func PrintResults(w io.Writer, results []job.Result, maxLenName int, runtime int64, style Style) (Summary, error) {
	sorted := make([]job.Result, len(results))
	copy(sorted, results)
	sort.SliceStable(sorted, func(i, j int) bool { return job.Less(sorted[i], sorted[j]) })

	var b strings.Builder
	b.WriteString("\n")
	b.WriteString(style.Bold(fmt.Sprintf("%-*s | %s | %s", maxLenName, "TEST", "STATUS   ", "DURATION")))
	b.WriteString("\n\n")

	sum := Summary{AllPassed: true}
	for _, r := range sorted {
		sum.AllPassed = sum.AllPassed && r.WasSuccessful()
		sum.TimeSum += r.Seconds()
		b.WriteString(FormatRow(r, maxLenName, style))
		b.WriteString("\n")
	}

	status := style.Glyphs.Tick + "Passed"
	if !sum.AllPassed {
		status = style.Glyphs.Cross + "Failed"
	}
	footer := style.Bold(fmt.Sprintf("%-*s | %-9s | %d s (accumulated) ", maxLenName, "ALL", status, sum.TimeSum))
	if !sum.AllPassed {
		footer = style.Red(footer)
	}
	b.WriteString("\n")
	b.WriteString(footer)
	b.WriteString("\n")
	b.WriteString(fmt.Sprintf("Runtime: %d s\n", runtime))

	_, err := io.WriteString(w, b.String())
	return sum, err
}

// FormatRow renders one result line without the trailing newline.
func FormatRow(r job.Result, padding int, style Style) string {
	glyph := style.Glyphs.Circle
	paint := func(s string) string { return s }
	switch r.Status {
	case job.StatusPassed:
		glyph = style.Glyphs.Tick
		paint = style.Green
	case job.StatusFailed:
		glyph = style.Glyphs.Cross
		paint = style.Red
	}
	return paint(fmt.Sprintf("%-*s | %s%-7s | %d s", padding, r.Name, glyph, r.Status, r.Seconds()))
}

// MaxNameLen returns the length of the longest specification, in runes.
func MaxNameLen(specs []string) int {
	max := 0
	for _, s := range specs {
		if n := len([]rune(s)); n > max {
			max = n
		}
	}
	return max
}
