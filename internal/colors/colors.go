// Package colors provides centralized color output with TTY-aware defaults.
//
// Colors are automatically disabled when stdout is not a terminal (piped or
// redirected to a file). This behavior is provided by the underlying fatih/color
// library and respected by default. Use Init() to override based on CLI flags.
package colors

import "github.com/fatih/color"

// Init allows overriding the auto-detected color setting.
//   - forceColor == nil: keep auto-detected value
//   - forceColor == true: force colors on (--color)
//   - forceColor == false: force colors off
func Init(forceColor *bool) {
	if forceColor != nil {
		color.NoColor = !*forceColor
	}
}

// Enabled returns true if colors are currently enabled.
func Enabled() bool {
	return !color.NoColor
}

func Bold() *color.Color         { return color.New(color.Bold) }
func Faint() *color.Color        { return color.New(color.Faint) }
func BoldHiYellow() *color.Color { return color.New(color.Bold, color.FgHiYellow) }
func BoldHiRed() *color.Color    { return color.New(color.Bold, color.FgHiRed) }
func BoldHiBlue() *color.Color   { return color.New(color.Bold, color.FgHiBlue) }

// Palette groups the sprint funcs used when printing a symbolicated report.
// A disabled palette returns its input untouched.
type Palette struct {
	Header  func(a ...any) string
	Stack   func(a ...any) string
	Warning func(a ...any) string
	Missing func(a ...any) string
	Samples func(a ...any) string
}

// NewPalette returns a colorized palette when enabled is true, otherwise a
// plain one.
func NewPalette(enabled bool) Palette {
	if !enabled {
		return Palette{
			Header:  plain,
			Stack:   plain,
			Warning: plain,
			Missing: plain,
			Samples: plain,
		}
	}
	return Palette{
		Header:  forced(Bold()).SprintFunc(),
		Stack:   forced(BoldHiBlue()).SprintFunc(),
		Warning: forced(BoldHiYellow()).SprintFunc(),
		Missing: forced(BoldHiRed()).SprintFunc(),
		Samples: forced(Faint()).SprintFunc(),
	}
}

func forced(c *color.Color) *color.Color {
	c.EnableColor()
	return c
}

func plain(a ...any) string {
	if len(a) == 1 {
		if s, ok := a[0].(string); ok {
			return s
		}
	}
	return color.New().Sprint(a...)
}
