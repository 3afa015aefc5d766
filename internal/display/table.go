package display

import (
	"fmt"
	"io"
	"os"
	"strings"
	"unicode/utf8"

	"golang.org/x/term"
)

// Alignment represents column alignment options
type Alignment int

const (
	AlignLeft Alignment = iota
	AlignRight
)

// BorderStyle defines table border characters
type BorderStyle struct {
	Corner     string
	Horizontal string
	Vertical   string
}

// Border styles
var (
	ASCIIBorderStyle = BorderStyle{Corner: "+", Horizontal: "-", Vertical: "|"}
	NoBorderStyle    = BorderStyle{}
)

// Table lays out rows in aligned columns
type Table struct {
	headers    []string
	rows       [][]string
	alignments map[int]Alignment
	border     BorderStyle
	padding    int
	maxWidth   int
	colors     *ColorSystem
	cellColors map[[2]int]Color
}

// NewTable creates an ASCII table sized to the terminal
func NewTable(colors *ColorSystem, headers ...string) *Table {
	return &Table{
		headers:    headers,
		alignments: map[int]Alignment{},
		border:     ASCIIBorderStyle,
		padding:    1,
		maxWidth:   getTerminalWidth(),
		colors:     colors,
		cellColors: map[[2]int]Color{},
	}
}

// SetBorder changes the border characters
func (t *Table) SetBorder(b BorderStyle) {
	t.border = b
}

// SetMaxWidth overrides the detected terminal width; zero disables wrapping
func (t *Table) SetMaxWidth(width int) {
	t.maxWidth = width
}

// SetColumnAlignment sets the alignment for a specific column
func (t *Table) SetColumnAlignment(column int, alignment Alignment) {
	t.alignments[column] = alignment
}

// AddRow adds a row to the table
func (t *Table) AddRow(cells ...string) {
	t.rows = append(t.rows, cells)
}

// ColorCell colors one cell of the last added row
func (t *Table) ColorCell(column int, c Color) {
	if len(t.rows) == 0 {
		return
	}
	t.cellColors[[2]int{len(t.rows) - 1, column}] = c
}

// Render returns the formatted table
func (t *Table) Render() string {
	if len(t.headers) == 0 && len(t.rows) == 0 {
		return ""
	}
	widths := t.fit(t.columnWidths())

	var b strings.Builder
	rule := t.rule(widths)
	if rule != "" {
		b.WriteString(rule + "\n")
	}
	if len(t.headers) > 0 {
		b.WriteString(t.renderRow(-1, t.headers, widths) + "\n")
		if rule != "" {
			b.WriteString(rule + "\n")
		}
	}
	for i, row := range t.rows {
		b.WriteString(t.renderRow(i, row, widths) + "\n")
	}
	if rule != "" {
		b.WriteString(rule + "\n")
	}
	return b.String()
}

// RenderTo renders the table to the specified writer
func (t *Table) RenderTo(w io.Writer) {
	fmt.Fprint(w, t.Render())
}

func (t *Table) columnWidths() []int {
	n := len(t.headers)
	for _, row := range t.rows {
		n = max(n, len(row))
	}
	widths := make([]int, n)
	for i, h := range t.headers {
		widths[i] = utf8.RuneCountInString(h)
	}
	for _, row := range t.rows {
		for i, cell := range row {
			widths[i] = max(widths[i], utf8.RuneCountInString(cell))
		}
	}
	return widths
}

// fit shrinks the widest column until the table fits maxWidth
func (t *Table) fit(widths []int) []int {
	if t.maxWidth <= 0 || len(widths) == 0 {
		return widths
	}
	for t.totalWidth(widths) > t.maxWidth {
		widest := 0
		for i, w := range widths {
			if w > widths[widest] {
				widest = i
			}
		}
		if widths[widest] <= 8 {
			break
		}
		widths[widest]--
	}
	return widths
}

func (t *Table) totalWidth(widths []int) int {
	total := 0
	for _, w := range widths {
		total += w + 2*t.padding
	}
	if t.border.Vertical != "" {
		total += len(widths) + 1
	}
	return total
}

func (t *Table) rule(widths []int) string {
	if t.border.Horizontal == "" {
		return ""
	}
	var b strings.Builder
	b.WriteString(t.border.Corner)
	for _, w := range widths {
		b.WriteString(strings.Repeat(t.border.Horizontal, w+2*t.padding))
		b.WriteString(t.border.Corner)
	}
	return b.String()
}

func (t *Table) renderRow(index int, row []string, widths []int) string {
	var b strings.Builder
	b.WriteString(t.border.Vertical)
	for i, w := range widths {
		var cell string
		if i < len(row) {
			cell = row[i]
		}
		b.WriteString(t.formatCell(index, i, cell, w))
		b.WriteString(t.border.Vertical)
	}
	return strings.TrimRight(b.String(), " ")
}

// formatCell pads before coloring so escape codes do not count as width
func (t *Table) formatCell(row, col int, content string, width int) string {
	if utf8.RuneCountInString(content) > width {
		runes := []rune(content)
		if width > 3 {
			content = string(runes[:width-3]) + "..."
		} else {
			content = string(runes[:width])
		}
	}

	pad := strings.Repeat(" ", width-utf8.RuneCountInString(content))
	if t.colors != nil {
		if row < 0 {
			content = t.colors.Colorize(content, t.colors.Theme().Primary)
		} else if c, ok := t.cellColors[[2]int{row, col}]; ok {
			content = t.colors.Colorize(content, c)
		}
	}

	edge := strings.Repeat(" ", t.padding)
	if t.alignments[col] == AlignRight {
		return edge + pad + content + edge
	}
	return edge + content + pad + edge
}

// getTerminalWidth returns the current terminal width
func getTerminalWidth() int {
	width, _, err := term.GetSize(int(os.Stdout.Fd()))
	if err != nil {
		return 0
	}
	return width
}
