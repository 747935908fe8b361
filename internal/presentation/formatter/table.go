package formatter

import (
	"bytes"
	"strings"

	"github.com/penwyp/go-coro-inspect/internal/util"
)

// maxCellWidth caps a column so one long coroutine message cannot blow up
// the whole table.
const maxCellWidth = 48

// Table renders rows inside a box-drawing border, aligning cells by display
// width.
type Table struct {
	headers    []string
	rightAlign map[int]bool
	rows       [][]string
	separators map[int]bool // separator before row index
}

func NewTable(headers ...string) *Table {
	return &Table{
		headers:    headers,
		rightAlign: make(map[int]bool),
		separators: make(map[int]bool),
	}
}

// AlignRight right-aligns the given columns, typically numbers.
func (t *Table) AlignRight(cols ...int) *Table {
	for _, c := range cols {
		t.rightAlign[c] = true
	}
	return t
}

func (t *Table) AddRow(values ...string) {
	row := make([]string, len(t.headers))
	for i := range row {
		if i < len(values) {
			row[i] = util.Truncate(values[i], maxCellWidth)
		}
	}
	t.rows = append(t.rows, row)
}

// AddSeparator draws a horizontal rule before the next row.
func (t *Table) AddSeparator() {
	t.separators[len(t.rows)] = true
}

func (t *Table) calculateColumnWidths() []int {
	widths := make([]int, len(t.headers))
	for i, header := range t.headers {
		widths[i] = util.GetDisplayWidth(header)
	}
	for _, row := range t.rows {
		for i, value := range row {
			if w := util.GetDisplayWidth(value); w > widths[i] {
				widths[i] = w
			}
		}
	}
	return widths
}

// Render writes the table to buf, with the header in bold when color is set.
func (t *Table) Render(buf *bytes.Buffer, color bool) {
	widths := t.calculateColumnWidths()

	t.printBorder(buf, widths, "top")
	header := make([]string, len(t.headers))
	for i, h := range t.headers {
		header[i] = util.Colorize(util.PadString(h, widths[i], true), util.ColorBold, color)
	}
	t.printCells(buf, header)
	t.printBorder(buf, widths, "middle")

	for i, row := range t.rows {
		if t.separators[i] && i > 0 {
			t.printBorder(buf, widths, "middle")
		}
		cells := make([]string, len(row))
		for j, value := range row {
			cells[j] = util.PadString(value, widths[j], !t.rightAlign[j])
		}
		t.printCells(buf, cells)
	}
	t.printBorder(buf, widths, "bottom")
}

func (t *Table) printBorder(buf *bytes.Buffer, widths []int, borderType string) {
	var left, middle, right string
	switch borderType {
	case "top":
		left, middle, right = "┌", "┬", "┐"
	case "middle":
		left, middle, right = "├", "┼", "┤"
	case "bottom":
		left, middle, right = "└", "┴", "┘"
	}

	buf.WriteString(left)
	for i, width := range widths {
		buf.WriteString(strings.Repeat("─", width+2))
		if i < len(widths)-1 {
			buf.WriteString(middle)
		}
	}
	buf.WriteString(right)
	buf.WriteByte('\n')
}

func (t *Table) printCells(buf *bytes.Buffer, cells []string) {
	buf.WriteString("│")
	for _, cell := range cells {
		buf.WriteString(" ")
		buf.WriteString(cell)
		buf.WriteString(" │")
	}
	buf.WriteByte('\n')
}
