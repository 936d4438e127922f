package grid

import (
	"slices"
	"strings"
)

// SortCommand reorders rows by the display value of one column. numeric
// keys compare numerically, text keys compare case-insensitively through
// the locale collator, empty cells always go last and remaining ties are
// broken by row id. formulas keep their text when their row moves.
type SortCommand struct {
	Col        int
	Descending bool

	prev *Sheet
}

func NewSortCommand(col int, descending bool) *SortCommand {
	return &SortCommand{Col: col, Descending: descending}
}

func (c *SortCommand) Name() string { return "sort" }

type sortKey struct {
	row    int
	id     string
	text   string
	num    float64
	empty  bool
	number bool
}

// sortKeys extracts one key per row. a column sorts numerically when its
// type is numeric or when every non-empty value parses as a number.
func (s *Sheet) sortKeys(col int) ([]sortKey, bool) {
	loc := s.Locale()
	keys := make([]sortKey, s.Rows)
	allNumeric := true
	// values are stale until the first recompute
	useRaw := len(s.Values) != s.Rows
	for r := 0; r < s.Rows; r++ {
		text := s.Value(r, col)
		if useRaw {
			text = s.Cell(r, col)
		}
		text = strings.TrimSpace(text)
		k := sortKey{row: r, id: s.RowIDs[r], text: text, empty: text == ""}
		if !k.empty {
			k.num, k.number = loc.ParseNumber(text)
			if !k.number {
				k.num, k.number = loc.ParseNumber(strings.TrimSuffix(text, " "+loc.Currency))
			}
			allNumeric = allNumeric && k.number
		}
		keys[r] = k
	}
	return keys, allNumeric || s.Column(col).Type.Kind().IsNumeric()
}

// SortPermutation returns perm where perm[newRow] is the old row index.
func (s *Sheet) SortPermutation(col int, descending bool) []int {
	keys, numeric := s.sortKeys(col)
	collator := s.Locale().NewCollator()

	slices.SortStableFunc(keys, func(a, b sortKey) int {
		if a.empty != b.empty {
			if a.empty {
				return 1
			}
			return -1
		}
		cmp := 0
		if !a.empty {
			switch {
			case numeric && a.number && b.number:
				cmp = compareFloat(a.num, b.num)
			case numeric && a.number != b.number:
				// text in a numeric column sorts after numbers
				if a.number {
					cmp = -1
				} else {
					cmp = 1
				}
			default:
				cmp = collator.CompareString(a.text, b.text)
			}
			if descending {
				cmp = -cmp
			}
		}
		if cmp != 0 {
			return cmp
		}
		return strings.Compare(a.id, b.id)
	})

	perm := make([]int, len(keys))
	for i, k := range keys {
		perm[i] = k.row
	}
	return perm
}

func compareFloat(a, b float64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	}
	return 0
}

func (c *SortCommand) Do(s *Sheet) error {
	if c.Col < 0 || c.Col >= s.Cols {
		return invalidArgument("sort column %d out of range", c.Col)
	}
	if err := s.checkShape(); err != nil {
		return err
	}
	c.prev = s.Clone()
	perm := s.SortPermutation(c.Col, c.Descending)
	s.applyPermutation(perm)
	return nil
}

func (c *SortCommand) Undo(s *Sheet) error {
	if c.prev == nil {
		return NewApplicationError(FailedPrecondition, "undo sort: command was never applied")
	}
	*s = *c.prev.Clone()
	return nil
}

func (s *Sheet) applyPermutation(perm []int) {
	raw := make([][]string, len(perm))
	ids := make([]string, len(perm))
	heights := make(map[int]int, len(s.RowHeights))
	newIndex := make([]int, len(perm))
	for newRow, oldRow := range perm {
		raw[newRow] = s.Raw[oldRow]
		ids[newRow] = s.RowIDs[oldRow]
		if h, ok := s.RowHeights[oldRow]; ok {
			heights[newRow] = h
		}
		newIndex[oldRow] = newRow
	}
	if len(s.Values) == len(perm) {
		values := make([][]string, len(perm))
		for newRow, oldRow := range perm {
			values[newRow] = s.Values[oldRow]
		}
		s.Values = values
	}
	s.Raw = raw
	s.RowIDs = ids
	s.RowHeights = heights
	s.Styles = remapCellMap(s.Styles, perm)
	s.CellErrors = remapCellMap(s.CellErrors, perm)
	s.Comments = remapCellMap(s.Comments, perm)

	move := func(a CellAddr) CellAddr {
		if a.Row >= 0 && a.Row < len(newIndex) {
			a.Row = newIndex[a.Row]
		}
		return a
	}
	s.Active = move(s.Active)
	s.Anchor = move(s.Anchor)
	s.Selection = Range{Start: move(s.Selection.Start), End: move(s.Selection.End)}
}
