package grid

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vogtb/gridsync/packages/formula"
)

func emptyState() *Sheet {
	return NewSheet(4, 3)
}

func formulaState() *Sheet {
	s := NewSheet(5, 3)
	s.Raw[0] = []string{"1", "2", "=A1+B1"}
	s.Raw[1] = []string{"3", "4", "=SUM(A1:B2)"}
	s.Raw[2] = []string{"", "=A2*2", "=$A$1"}
	s.Raw[4] = []string{"=A5", "x", "=AVERAGE(A1:A4)"}
	return s
}

func styledState() *Sheet {
	s := formulaState()
	s.Columns = []Column{
		{ID: "qty", Title: "Qty", Type: ColumnNumber},
		{ID: "name", Title: "Name", Type: ColumnText},
		{ID: "total", Title: "Total", Type: ColumnCurrency, Expression: "=A1*2"},
	}
	s.Styles[CellKey(0, 0)] = CellStyle{Bold: true}
	s.Styles[CellKey(3, 1)] = CellStyle{NumberFormat: formula.FormatPercent, Fill: "#ffee00"}
	s.ColumnWidths[1] = 120
	s.RowHeights[3] = 30
	s.Comments[CellKey(1, 1)] = "check"
	s.CellErrors[CellKey(4, 1)] = msgExpectedNumber
	s.Active = CellAddr{3, 2}
	s.Selection = Range{Start: CellAddr{4, 2}, End: CellAddr{1, 0}}
	s.Anchor = CellAddr{4, 2}
	return s
}

func filteredState() *Sheet {
	s := styledState()
	s.FiltersEnabled = true
	s.Filters[1] = Filter{Op: FilterNotEmpty}
	s.Freeze = Freeze{Rows: 2, Cols: 1}
	return s
}

var states = map[string]func() *Sheet{
	"empty":    emptyState,
	"formulas": formulaState,
	"styles":   styledState,
	"filters":  filteredState,
}

func commandsFor() map[string]func() Command {
	return map[string]func() Command{
		"set cells": func() Command {
			return NewSetCellsCommand("edit", []CellChange{{Row: 0, Col: 0, Value: "9"}, {Row: 1, Col: 1, Value: "=A1"}, {Row: 0, Col: 0, Value: "abc"}, {Row: 99, Col: 0, Value: "clipped"}})
		},
		"set styles": func() Command {
			return NewSetStylesCommand([]StyleChange{{Row: 0, Col: 0, Style: CellStyle{Italic: true}}, {Row: 3, Col: 1}})
		},
		"insert row":     func() Command { return NewInsertRowCommand(1) },
		"insert row end": func() Command { return NewInsertRowCommand(4) },
		"delete row":     func() Command { return NewDeleteRowCommand(0) },
		"insert column":  func() Command { return NewInsertColumnCommand(0) },
		"delete column":  func() Command { return NewDeleteColumnCommand(1) },
		"delete rows":    func() Command { return NewDeleteRowsCommand([]int{0, 2, 2}) },
		"insert rows":    func() Command { return NewInsertRowsCommand(2, 3) },
		"sort":           func() Command { return NewSortCommand(0, true) },
		"filters":        func() Command { return &SetFiltersEnabledCommand{Enabled: true} },
		"filter":         func() Command { return &SetFilterCommand{Col: 0, Filter: &Filter{Op: FilterGreater, Value: "1"}} },
		"clear filter":   func() Command { return &SetFilterCommand{Col: 1} },
		"freeze":         func() Command { return &SetFreezeCommand{Freeze: Freeze{Rows: 1, Cols: 1}} },
		"resize column":  func() Command { return NewResizeColumnCommand(1, 5000) },
		"resize row":     func() Command { return NewResizeRowCommand(3, 1) },
		"comment":        func() Command { return &SetCommentCommand{Row: 1, Col: 1, Text: "new"} },
		"clear comment":  func() Command { return &SetCommentCommand{Row: 1, Col: 1} },
	}
}

func TestCommandsAreReversible(t *testing.T) {
	for stateName, build := range states {
		for cmdName, newCmd := range commandsFor() {
			t.Run(stateName+"/"+cmdName, func(t *testing.T) {
				s := build()
				before := s.Clone()
				cmd := newCmd()

				err := cmd.Do(s)
				if err != nil {
					// a rejected command must leave the sheet alone
					assert.Equal(t, before, s)
					return
				}
				require.NoError(t, cmd.Undo(s))
				assert.Equal(t, before, s)

				// redo after undo lands on the same state again
				require.NoError(t, cmd.Do(s))
				once := s.Clone()
				require.NoError(t, cmd.Undo(s))
				require.NoError(t, cmd.Do(s))
				assert.Equal(t, once, s)
			})
		}
	}
}

func TestFillAndRenameAreReversible(t *testing.T) {
	s := styledState()
	before := s.Clone()

	plan, err := PlanFill(s, Range{Start: CellAddr{0, 0}, End: CellAddr{1, 1}}, Range{Start: CellAddr{0, 0}, End: CellAddr{4, 2}})
	require.NoError(t, err)
	cmd := NewBatchCommand("", plan.Command(), &RenameColumnCommand{Col: 1, Title: "Label"})
	require.NoError(t, cmd.Do(s))
	assert.Equal(t, "Label", s.Columns[1].Title)
	require.NoError(t, cmd.Undo(s))
	assert.Equal(t, before, s)
}

func TestSetCellsValidation(t *testing.T) {
	s := styledState()
	cmd := NewSetCellsCommand("edit", []CellChange{{Row: 0, Col: 0, Value: "abc"}, {Row: 1, Col: 0, Value: "1,234.5"}})
	require.NoError(t, cmd.Do(s))
	assert.Equal(t, msgExpectedNumber, s.CellErrors[CellKey(0, 0)])
	assert.NotContains(t, s.CellErrors, CellKey(1, 0))

	// only the computed column is targeted
	err := NewSetCellsCommand("edit", []CellChange{{Row: 0, Col: 2, Value: "1"}}).Do(s)
	assert.ErrorIs(t, err, ErrNotEditable)
	assert.Equal(t, FailedPrecondition, CodeOf(err))
}

func TestStructureCommandRewritesFormulas(t *testing.T) {
	s := formulaState()
	insert := NewInsertRowCommand(1)
	require.NoError(t, insert.Do(s))
	assert.Equal(t, 6, s.Rows)
	assert.Equal(t, "=SUM(A1:B3)", s.Raw[2][2])
	assert.Equal(t, "=A3*2", s.Raw[3][1])
	assert.Equal(t, "=$A$1", s.Raw[3][2])
	assert.Equal(t, 4, insert.Edits())

	s = formulaState()
	del := NewDeleteColumnCommand(0)
	require.NoError(t, del.Do(s))
	assert.Equal(t, "=#REF!+A1", s.Raw[0][1])
	assert.Equal(t, msgRefError, s.CellErrors[CellKey(0, 1)])
	assert.Equal(t, "=SUM(A1:A2)", s.Raw[1][1])

	err := NewDeleteRowCommand(7).Do(s)
	assert.Equal(t, InvalidArgument, CodeOf(err))
	one := NewSheet(1, 1)
	assert.Equal(t, FailedPrecondition, CodeOf(NewDeleteRowCommand(0).Do(one)))
}

func TestStructureCommandShiftsComputedColumns(t *testing.T) {
	s := styledState()
	require.NoError(t, NewInsertColumnCommand(0).Do(s))
	assert.Equal(t, 4, len(s.Columns))
	assert.Equal(t, "=B1*2", s.Columns[3].Expression)
	assert.Equal(t, ColumnText, s.Columns[0].Type)
	assert.Equal(t, 120, s.ColumnWidths[2])
	assert.Equal(t, CellStyle{Bold: true}, s.Style(0, 1))
}

func TestDeleteRowsBatchOrder(t *testing.T) {
	s := NewSheet(4, 1)
	for i, v := range []string{"a", "b", "c", "d"} {
		s.Raw[i][0] = v
	}
	ids := s.RowIDs
	cmd := NewDeleteRowsCommand([]int{0, 2})
	require.NoError(t, cmd.Do(s))
	assert.Equal(t, [][]string{{"b"}, {"d"}}, s.Raw)
	assert.Equal(t, []string{ids[1], ids[3]}, s.RowIDs)
	require.NoError(t, cmd.Undo(s))
	assert.Equal(t, [][]string{{"a"}, {"b"}, {"c"}, {"d"}}, s.Raw)
}

func TestBatchRollsBackOnFailure(t *testing.T) {
	s := formulaState()
	before := s.Clone()
	cmd := NewBatchCommand("broken", NewSetCellsCommand("edit", []CellChange{{Row: 0, Col: 0, Value: "7"}}), NewDeleteRowCommand(40))
	assert.Error(t, cmd.Do(s))
	assert.Equal(t, before, s)
}

func TestRangeNormalization(t *testing.T) {
	r := Range{Start: CellAddr{4, 3}, End: CellAddr{1, 0}}
	assert.Equal(t, Range{Start: CellAddr{1, 0}, End: CellAddr{4, 3}}, r.Normalized())
	assert.Equal(t, 4, r.Height())
	assert.Equal(t, 4, r.Width())
	assert.True(t, r.Contains(2, 2))
	assert.False(t, r.Contains(0, 2))
	assert.Equal(t, "A2:D5", r.String())
}

func TestClampSizes(t *testing.T) {
	assert.Equal(t, MinColumnWidth, ClampColumnWidth(1))
	assert.Equal(t, MaxColumnWidth, ClampColumnWidth(9000))
	assert.Equal(t, 100, ClampColumnWidth(100))
	assert.Equal(t, MinRowHeight, ClampRowHeight(-5))
	assert.Equal(t, MaxRowHeight, ClampRowHeight(401))
}
