package report

import "github.com/fatih/color"

// Glyphs prefix the status column.
type Glyphs struct {
	Tick   string
	Cross  string
	Circle string
}

var (
	// UnicodeGlyphs are used when the output encoding can carry them.
	UnicodeGlyphs = Glyphs{Tick: "✓ ", Cross: "✖ ", Circle: "○ "}
	// ASCIIGlyphs are the fallback.
	ASCIIGlyphs = Glyphs{Tick: "P ", Cross: "x ", Circle: "o "}
)

// Style is the formatting configuration of everything the runner prints.
// It is passed explicitly; there is no package-level color state.
type Style struct {
	Glyphs Glyphs

	bold  *color.Color
	green *color.Color
	red   *color.Color
}

// NewStyle returns a style with ANSI colors when ansi is set.
func NewStyle(ansi, unicode bool) Style {
	s := Style{
		Glyphs: ASCIIGlyphs,
		bold:   color.New(color.Bold),
		green:  color.New(color.FgGreen),
		red:    color.New(color.FgRed),
	}
	if unicode {
		s.Glyphs = UnicodeGlyphs
	}
	for _, c := range []*color.Color{s.bold, s.green, s.red} {
		if ansi {
			c.EnableColor()
		} else {
			c.DisableColor()
		}
	}
	return s
}

// Plain is a style without colors and with ASCII glyphs.
func Plain() Style {
	return NewStyle(false, false)
}

func (s Style) apply(c *color.Color, text string) string {
	if c == nil {
		return text
	}
	return c.Sprint(text)
}

// Bold renders text in bold.
func (s Style) Bold(text string) string { return s.apply(s.bold, text) }

// Green renders text in green.
func (s Style) Green(text string) string { return s.apply(s.green, text) }

// Red renders text in red.
func (s Style) Red(text string) string { return s.apply(s.red, text) }
