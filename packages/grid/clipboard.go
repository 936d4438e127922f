package grid

import (
	"strings"

	"github.com/vogtb/gridsync/packages/formula"
)

// CopyText serializes the raw values of the normalized selection as
// tab-separated columns and newline-separated rows.
func CopyText(s *Sheet, sel Range) string {
	n := sel.Normalized()
	var b strings.Builder
	for r := n.Start.Row; r <= n.End.Row; r++ {
		if r > n.Start.Row {
			b.WriteByte('\n')
		}
		for c := n.Start.Col; c <= n.End.Col; c++ {
			if c > n.Start.Col {
				b.WriteByte('\t')
			}
			b.WriteString(s.Cell(r, c))
		}
	}
	return b.String()
}

// DetectDelimiter picks the column separator from the first row: a tab
// wins, then a semicolon or a comma when it yields at least two columns,
// and tab otherwise.
func DetectDelimiter(firstRow string) string {
	if strings.Contains(firstRow, "\t") {
		return "\t"
	}
	for _, d := range []string{";", ","} {
		if len(strings.Split(firstRow, d)) >= 2 {
			return d
		}
	}
	return "\t"
}

// ParseClipboard splits pasted text into a matrix. line endings are
// normalized, a single trailing empty row is dropped and blank rows in
// the middle are kept.
func ParseClipboard(text string) [][]string {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	text = strings.ReplaceAll(text, "\r", "\n")
	if text == "" {
		return nil
	}
	lines := strings.Split(text, "\n")
	if len(lines) > 1 && lines[len(lines)-1] == "" {
		lines = lines[:len(lines)-1]
	}
	delim := DetectDelimiter(lines[0])
	out := make([][]string, len(lines))
	for i, line := range lines {
		out[i] = strings.Split(line, delim)
	}
	return out
}

// PasteChanges turns a pasted matrix into cell changes anchored at `at`.
// cells beyond the grid edge are clipped; non-editable targets are left
// to SetCellsCommand. when shift is true every formula
// is moved by (dRow, dCol) the way copied formulas follow their cells.
func PasteChanges(s *Sheet, at CellAddr, matrix [][]string, dRow, dCol int, shift bool) []CellChange {
	var changes []CellChange
	for i, row := range matrix {
		r := at.Row + i
		if r >= s.Rows {
			break
		}
		for j, value := range row {
			c := at.Col + j
			if c >= s.Cols {
				break
			}
			if r < 0 || c < 0 {
				continue
			}
			if shift && formula.IsFormula(value) {
				value = formula.ShiftByOffset(value, dRow, dCol)
			}
			changes = append(changes, CellChange{Row: r, Col: c, Value: value})
		}
	}
	return changes
}
