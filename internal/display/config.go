// Package display renders engine results on the terminal.
package display

import (
	"fmt"
	"io"
	"os"
	"strings"

	appErrors "suite-backup/internal/errors"
)

// OutputFormat selects how results are printed
type OutputFormat string

const (
	FormatTable OutputFormat = "table"
	FormatJSON  OutputFormat = "json"
	FormatYAML  OutputFormat = "yaml"
)

// ParseFormat accepts a format name case-insensitively; empty means table
func ParseFormat(name string) (OutputFormat, error) {
	switch OutputFormat(strings.ToLower(strings.TrimSpace(name))) {
	case "", FormatTable:
		return FormatTable, nil
	case FormatJSON:
		return FormatJSON, nil
	case FormatYAML, "yml":
		return FormatYAML, nil
	}
	return "", appErrors.NewValidationError(
		fmt.Sprintf("invalid output format %q, must be one of: table, json, yaml", name), nil)
}

// Config holds display options
type Config struct {
	Format OutputFormat
	Theme  string
	Color  bool
	Icons  bool
	Quiet  bool

	// Out receives results, Err receives status messages
	Out io.Writer
	Err io.Writer
}

// DefaultConfig prints tables to stdout with color when the terminal allows it
func DefaultConfig() Config {
	return Config{
		Format: FormatTable,
		Theme:  "dark",
		Color:  true,
		Icons:  true,
		Out:    os.Stdout,
		Err:    os.Stderr,
	}
}

func (c *Config) setDefaults() {
	if c.Format == "" {
		c.Format = FormatTable
	}
	if c.Out == nil {
		c.Out = os.Stdout
	}
	if c.Err == nil {
		c.Err = os.Stderr
	}
}

// Structured reports whether results are machine-readable
func (c Config) Structured() bool {
	return c.Format == FormatJSON || c.Format == FormatYAML
}
