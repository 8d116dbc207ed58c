package display

import (
	"fmt"
	"io"
	"os"

	"github.com/fatih/color"
	"github.com/mattn/go-isatty"
	"github.com/muesli/termenv"
)

// Color is a terminal foreground color
type Color int

const (
	ColorReset Color = iota
	ColorRed
	ColorGreen
	ColorYellow
	ColorBlue
	ColorCyan
	ColorWhite
	ColorBrightRed
	ColorBrightGreen
	ColorBrightYellow
	ColorBrightBlue
	ColorBrightCyan
)

// ColorTheme assigns colors to message roles
type ColorTheme struct {
	Primary Color
	Success Color
	Warning Color
	Error   Color
	Info    Color
	Muted   Color
}

// DarkColorTheme is tuned for dark terminals
func DarkColorTheme() ColorTheme {
	return ColorTheme{
		Primary: ColorBrightBlue,
		Success: ColorBrightGreen,
		Warning: ColorBrightYellow,
		Error:   ColorBrightRed,
		Info:    ColorCyan,
		Muted:   ColorWhite,
	}
}

// LightColorTheme is tuned for light terminals
func LightColorTheme() ColorTheme {
	return ColorTheme{
		Primary: ColorBlue,
		Success: ColorGreen,
		Warning: ColorYellow,
		Error:   ColorRed,
		Info:    ColorCyan,
		Muted:   ColorBlue,
	}
}

// ThemeByName falls back to the dark theme for unknown names
func ThemeByName(name string) ColorTheme {
	if name == "light" {
		return LightColorTheme()
	}
	return DarkColorTheme()
}

var attributes = map[Color]color.Attribute{
	ColorReset:        color.Reset,
	ColorRed:          color.FgRed,
	ColorGreen:        color.FgGreen,
	ColorYellow:       color.FgYellow,
	ColorBlue:         color.FgBlue,
	ColorCyan:         color.FgCyan,
	ColorWhite:        color.FgWhite,
	ColorBrightRed:    color.FgHiRed,
	ColorBrightGreen:  color.FgHiGreen,
	ColorBrightYellow: color.FgHiYellow,
	ColorBrightBlue:   color.FgHiBlue,
	ColorBrightCyan:   color.FgHiCyan,
}

// colorizer wraps text in escape codes when enabled
type colorizer struct {
	enabled bool
	colors  map[Color]*color.Color
}

func newColorizer(enabled bool) *colorizer {
	c := &colorizer{enabled: enabled, colors: make(map[Color]*color.Color, len(attributes))}
	for k, attr := range attributes {
		fc := color.New(attr)
		if enabled {
			fc.EnableColor()
		} else {
			fc.DisableColor()
		}
		c.colors[k] = fc
	}
	return c
}

func (c *colorizer) Sprint(clr Color, text string) string {
	if !c.enabled || clr == ColorReset {
		return text
	}
	if fc, ok := c.colors[clr]; ok {
		return fc.Sprint(text)
	}
	return text
}

func (c *colorizer) Sprintf(clr Color, format string, args ...interface{}) string {
	return c.Sprint(clr, fmt.Sprintf(format, args...))
}

// colorSupported checks the writer is a color-capable terminal
func colorSupported(w io.Writer) bool {
	if os.Getenv("NO_COLOR") != "" {
		return false
	}
	if os.Getenv("FORCE_COLOR") != "" {
		return true
	}
	if !isTerminal(w) {
		return false
	}
	return termenv.EnvColorProfile() != termenv.Ascii
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}
