package grid

import (
	"maps"
	"slices"

	"github.com/vogtb/gridsync/packages/formula"
)

// layout is everything besides raw values that a structural edit moves
// around. structural commands capture it before running and put it back
// on undo.
type layout struct {
	columns      []Column
	styles       map[string]CellStyle
	columnWidths map[int]int
	rowHeights   map[int]int
	rowIDs       []string
	active       CellAddr
	selection    Range
	anchor       CellAddr
	cellErrors   map[string]string
	filters      map[int]Filter
	freeze       Freeze
	comments     map[string]string
}

func captureLayout(s *Sheet) layout {
	return layout{
		columns:      slices.Clone(s.Columns),
		styles:       maps.Clone(s.Styles),
		columnWidths: maps.Clone(s.ColumnWidths),
		rowHeights:   maps.Clone(s.RowHeights),
		rowIDs:       slices.Clone(s.RowIDs),
		active:       s.Active,
		selection:    s.Selection,
		anchor:       s.Anchor,
		cellErrors:   maps.Clone(s.CellErrors),
		filters:      maps.Clone(s.Filters),
		freeze:       s.Freeze,
		comments:     maps.Clone(s.Comments),
	}
}

func (l layout) restore(s *Sheet) {
	s.Columns = slices.Clone(l.columns)
	s.Styles = maps.Clone(l.styles)
	s.ColumnWidths = maps.Clone(l.columnWidths)
	s.RowHeights = maps.Clone(l.rowHeights)
	s.RowIDs = slices.Clone(l.rowIDs)
	s.Active = l.active
	s.Selection = l.selection
	s.Anchor = l.anchor
	s.CellErrors = maps.Clone(l.cellErrors)
	s.Filters = maps.Clone(l.filters)
	s.Freeze = l.freeze
	s.Comments = maps.Clone(l.comments)
}

// shiftIndex moves one index for an insert (delta 1) or delete (delta -1)
// at index. ok is false when the index itself was deleted.
func shiftIndex(i, index, delta int) (int, bool) {
	switch {
	case delta > 0 && i >= index:
		return i + 1, true
	case delta < 0 && i == index:
		return i, false
	case delta < 0 && i > index:
		return i - 1, true
	}
	return i, true
}

func shiftIndexMap[V any](m map[int]V, index, delta int) map[int]V {
	out := make(map[int]V, len(m))
	for i, v := range m {
		if j, ok := shiftIndex(i, index, delta); ok {
			out[j] = v
		}
	}
	return out
}

func shiftCellMap[V any](m map[string]V, axis formula.Axis, index, delta int) map[string]V {
	out := make(map[string]V, len(m))
	for key, v := range m {
		row, col, ok := ParseCellKey(key)
		if !ok {
			continue
		}
		if axis == formula.AxisRow {
			row, ok = shiftIndex(row, index, delta)
		} else {
			col, ok = shiftIndex(col, index, delta)
		}
		if ok {
			out[CellKey(row, col)] = v
		}
	}
	return out
}

// remapCellMap moves row-keyed entries through a permutation where
// perm[newRow] = oldRow.
func remapCellMap[V any](m map[string]V, perm []int) map[string]V {
	inverse := make(map[int]int, len(perm))
	for newRow, oldRow := range perm {
		inverse[oldRow] = newRow
	}
	out := make(map[string]V, len(m))
	for key, v := range m {
		row, col, ok := ParseCellKey(key)
		if !ok {
			continue
		}
		if newRow, found := inverse[row]; found {
			out[CellKey(newRow, col)] = v
		}
	}
	return out
}

// shiftAddr moves a tracked address along axis and keeps it on the grid.
func (s *Sheet) shiftAddr(a CellAddr, axis formula.Axis, index, delta int) CellAddr {
	if axis == formula.AxisRow {
		if delta > 0 && a.Row >= index || delta < 0 && a.Row > index {
			a.Row += delta
		}
	} else {
		if delta > 0 && a.Col >= index || delta < 0 && a.Col > index {
			a.Col += delta
		}
	}
	return s.Clamp(a)
}

// shiftLayout moves every position-keyed field for a structural edit.
// dimensions must already reflect the edit.
func (s *Sheet) shiftLayout(axis formula.Axis, index, delta int) {
	s.Styles = shiftCellMap(s.Styles, axis, index, delta)
	s.CellErrors = shiftCellMap(s.CellErrors, axis, index, delta)
	s.Comments = shiftCellMap(s.Comments, axis, index, delta)
	s.Active = s.shiftAddr(s.Active, axis, index, delta)
	s.Anchor = s.shiftAddr(s.Anchor, axis, index, delta)
	s.Selection = Range{
		Start: s.shiftAddr(s.Selection.Start, axis, index, delta),
		End:   s.shiftAddr(s.Selection.End, axis, index, delta),
	}
	if axis == formula.AxisRow {
		s.RowHeights = shiftIndexMap(s.RowHeights, index, delta)
		if index < s.Freeze.Rows {
			s.Freeze.Rows = max(s.Freeze.Rows+delta, 0)
		}
		return
	}
	s.ColumnWidths = shiftIndexMap(s.ColumnWidths, index, delta)
	s.Filters = shiftIndexMap(s.Filters, index, delta)
	if index < s.Freeze.Cols {
		s.Freeze.Cols = max(s.Freeze.Cols+delta, 0)
	}
}
