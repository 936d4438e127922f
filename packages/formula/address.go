package formula

import (
	"fmt"
	"strconv"
	"strings"
)

// CellRef is a parsed A1 reference. Row and Col are zero-based.
type CellRef struct {
	Row    int
	Col    int
	AbsRow bool // "$" before the row number
	AbsCol bool // "$" before the column letters
}

// String formats the reference back into A1 notation, keeping any
// absolute markers.
func (r CellRef) String() string {
	var b strings.Builder
	if r.AbsCol {
		b.WriteByte('$')
	}
	b.WriteString(ColumnName(r.Col))
	if r.AbsRow {
		b.WriteByte('$')
	}
	b.WriteString(strconv.Itoa(r.Row + 1))
	return b.String()
}

// ColumnName converts a zero-based column index into letters
// (0 -> A, 25 -> Z, 26 -> AA).
func ColumnName(col int) string {
	if col < 0 {
		return ""
	}
	var letters []byte
	for col >= 0 {
		letters = append([]byte{byte('A' + col%26)}, letters...)
		col = col/26 - 1
	}
	return string(letters)
}

// FormatAddress formats zero-based coordinates as an A1 address
func FormatAddress(row, col int) string {
	return CellRef{Row: row, Col: col}.String()
}

// ParseCellRef parses an address like "B12" or "$B$12" into a CellRef
func ParseCellRef(cell string) (CellRef, error) {
	var ref CellRef
	s := cell
	if strings.HasPrefix(s, "$") {
		ref.AbsCol = true
		s = s[1:]
	}

	// find where letters end
	letterEnd := 0
	for i, ch := range s {
		if ch >= 'A' && ch <= 'Z' || ch >= 'a' && ch <= 'z' {
			letterEnd = i + 1
		} else {
			break
		}
	}
	if letterEnd == 0 {
		return CellRef{}, NewSpreadsheetError(ErrorCodeRef, fmt.Sprintf("invalid cell reference: %s", cell))
	}

	// parse column (A=0, B=1, ..., Z=25, AA=26, AB=27, ...)
	colStr := strings.ToUpper(s[:letterEnd])
	col := 0
	for _, ch := range colStr {
		col = col*26 + int(ch-'A') + 1
	}
	ref.Col = col - 1

	rest := s[letterEnd:]
	if strings.HasPrefix(rest, "$") {
		ref.AbsRow = true
		rest = rest[1:]
	}
	if rest == "" {
		return CellRef{}, NewSpreadsheetError(ErrorCodeRef, fmt.Sprintf("invalid cell reference: %s", cell))
	}
	for i := 0; i < len(rest); i++ {
		if rest[i] < '0' || rest[i] > '9' {
			return CellRef{}, NewSpreadsheetError(ErrorCodeRef, fmt.Sprintf("invalid row number: %s", rest))
		}
	}

	// 1-based in notation, 0-based internally
	rowNum, err := strconv.Atoi(rest)
	if err != nil {
		return CellRef{}, NewSpreadsheetError(ErrorCodeRef, fmt.Sprintf("invalid row number: %s", rest))
	}
	if rowNum < 1 {
		return CellRef{}, NewSpreadsheetError(ErrorCodeRef, fmt.Sprintf("row number must be positive: %d", rowNum))
	}
	ref.Row = rowNum - 1

	return ref, nil
}

// ParseRangeRef parses "A1:B2" into its two corners, in written order
func ParseRangeRef(rangeStr string) (CellRef, CellRef, error) {
	parts := strings.Split(rangeStr, ":")
	if len(parts) != 2 {
		return CellRef{}, CellRef{}, NewSpreadsheetError(ErrorCodeRef, fmt.Sprintf("invalid range format: %s", rangeStr))
	}
	start, err := ParseCellRef(parts[0])
	if err != nil {
		return CellRef{}, CellRef{}, err
	}
	end, err := ParseCellRef(parts[1])
	if err != nil {
		return CellRef{}, CellRef{}, err
	}
	return start, end, nil
}
