package display

import (
	"os"
	"strings"
)

// Icon has a Unicode glyph and an ASCII fallback
type Icon struct {
	Unicode string
	ASCII   string
	Color   Color
}

var icons = map[string]Icon{
	"success":  {Unicode: "✔", ASCII: "[OK]", Color: ColorGreen},
	"error":    {Unicode: "✖", ASCII: "[ERR]", Color: ColorRed},
	"warning":  {Unicode: "⚠", ASCII: "[WARN]", Color: ColorYellow},
	"info":     {Unicode: "ℹ", ASCII: "[INFO]", Color: ColorCyan},
	"project":  {Unicode: "📁", ASCII: "[P]", Color: ColorBlue},
	"database": {Unicode: "🗄", ASCII: "[D]", Color: ColorBlue},
	"complete": {Unicode: "📦", ASCII: "[C]", Color: ColorBlue},
	"remote":   {Unicode: "☁", ASCII: "[R]", Color: ColorCyan},
	"restore":  {Unicode: "↺", ASCII: "[<]", Color: ColorYellow},
	"delete":   {Unicode: "🗑", ASCII: "[X]", Color: ColorRed},
}

// iconSet renders icons as Unicode, ASCII or not at all
type iconSet struct {
	enabled bool
	unicode bool
}

func (s iconSet) Render(name string) string {
	if !s.enabled {
		return ""
	}
	icon, ok := icons[name]
	if !ok {
		return ""
	}
	if s.unicode {
		return icon.Unicode
	}
	return icon.ASCII
}

// unicodeSupported follows the locale; FORCE_UNICODE and NO_UNICODE override it
func unicodeSupported() bool {
	if os.Getenv("FORCE_UNICODE") != "" {
		return true
	}
	if os.Getenv("NO_UNICODE") != "" {
		return false
	}
	switch os.Getenv("TERM") {
	case "dumb", "vt100":
		return false
	}
	for _, key := range []string{"LC_ALL", "LC_CTYPE", "LANG"} {
		if v := os.Getenv(key); v != "" {
			v = strings.ToUpper(v)
			return strings.Contains(v, "UTF-8") || strings.Contains(v, "UTF8")
		}
	}
	return false
}
