package display

import (
	"io"
	"os"
	"strings"
	"unicode/utf8"

	"golang.org/x/term"
)

const (
	defaultWidth = 120
	minColumn    = 6
	ellipsis     = "..."
)

// Alignment of a table column
type Alignment int

const (
	AlignLeft Alignment = iota
	AlignRight
)

// Table is a simple bordered ASCII table
type Table struct {
	headers  []string
	rows     [][]string
	align    map[int]Alignment
	maxWidth int
}

// NewTable creates a table with the given headers
func NewTable(headers ...string) *Table {
	return &Table{headers: headers, align: map[int]Alignment{}}
}

// AlignRight right-aligns a column
func (t *Table) AlignRight(column int) *Table {
	t.align[column] = AlignRight
	return t
}

// SetMaxWidth limits the rendered width; zero means the terminal width
func (t *Table) SetMaxWidth(width int) *Table {
	t.maxWidth = width
	return t
}

// AddRow appends a row, padding or cutting it to the header count
func (t *Table) AddRow(cells ...string) {
	row := make([]string, len(t.headers))
	copy(row, cells)
	t.rows = append(t.rows, row)
}

// Len is the number of data rows
func (t *Table) Len() int {
	return len(t.rows)
}

func (t *Table) widths() []int {
	widths := make([]int, len(t.headers))
	for i, h := range t.headers {
		widths[i] = utf8.RuneCountInString(h)
	}
	for _, row := range t.rows {
		for i, cell := range row {
			if n := utf8.RuneCountInString(cell); n > widths[i] {
				widths[i] = n
			}
		}
	}

	limit := t.maxWidth
	if limit <= 0 {
		limit = terminalWidth()
	}
	// borders and padding take three columns per cell plus one
	for total(widths)+3*len(widths)+1 > limit {
		widest := 0
		for i := range widths {
			if widths[i] > widths[widest] {
				widest = i
			}
		}
		if widths[widest] <= minColumn {
			break
		}
		widths[widest]--
	}
	return widths
}

func total(widths []int) int {
	sum := 0
	for _, w := range widths {
		sum += w
	}
	return sum
}

// Render writes the table to w
func (t *Table) Render(w io.Writer) {
	widths := t.widths()

	var b strings.Builder
	separator := func() {
		b.WriteString("+")
		for _, width := range widths {
			b.WriteString(strings.Repeat("-", width+2))
			b.WriteString("+")
		}
		b.WriteString("\n")
	}
	line := func(cells []string) {
		b.WriteString("|")
		for i, width := range widths {
			b.WriteString(" ")
			b.WriteString(t.pad(truncate(cells[i], width), width, t.align[i]))
			b.WriteString(" |")
		}
		b.WriteString("\n")
	}

	separator()
	line(t.headers)
	separator()
	for _, row := range t.rows {
		line(row)
	}
	separator()
	io.WriteString(w, b.String())
}

func (t *Table) pad(s string, width int, align Alignment) string {
	gap := width - utf8.RuneCountInString(s)
	if gap <= 0 {
		return s
	}
	if align == AlignRight {
		return strings.Repeat(" ", gap) + s
	}
	return s + strings.Repeat(" ", gap)
}

func truncate(s string, width int) string {
	if utf8.RuneCountInString(s) <= width {
		return s
	}
	if width <= len(ellipsis) {
		return string([]rune(s)[:width])
	}
	return string([]rune(s)[:width-len(ellipsis)]) + ellipsis
}

func terminalWidth() int {
	width, _, err := term.GetSize(int(os.Stdout.Fd()))
	if err != nil || width <= 0 {
		return defaultWidth
	}
	return width
}
