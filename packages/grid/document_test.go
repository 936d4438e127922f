package grid

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestDocument(t *testing.T, rows, cols int, cells map[string]string) *Document {
	t.Helper()
	doc := NewDocument(rows, cols)
	var changes []CellChange
	for key, value := range cells {
		row, col, ok := ParseCellKey(key)
		require.True(t, ok, key)
		changes = append(changes, CellChange{Row: row, Col: col, Value: value})
	}
	if len(changes) > 0 {
		require.NoError(t, doc.Execute(NewSetCellsCommand("seed", changes)))
	}
	return doc
}

func TestFormulaReferenceIntegrity(t *testing.T) {
	doc := newTestDocument(t, 6, 2, map[string]string{
		"0:0": "=SUM(A3:A5)",
		"0:1": "=A3*2",
		"2:0": "1",
		"3:0": "2",
		"4:0": "3",
	})
	s := doc.Sheet()
	assert.Equal(t, "6", s.Values[0][0])
	assert.Equal(t, "2", s.Values[0][1])

	// insert inside the referenced range
	require.NoError(t, doc.Execute(NewInsertRowCommand(3)))
	s = doc.Sheet()
	assert.Equal(t, "=SUM(A3:A6)", s.Raw[0][0])
	assert.Equal(t, "6", s.Values[0][0])
	require.NoError(t, doc.Undo())
	assert.Equal(t, "=SUM(A3:A5)", doc.Sheet().Raw[0][0])

	// delete the referenced row
	require.NoError(t, doc.Execute(NewDeleteRowCommand(2)))
	s = doc.Sheet()
	assert.Equal(t, "=#REF!*2", s.Raw[0][1])
	assert.Equal(t, "#REF!", s.Values[0][1])
	assert.Equal(t, msgRefError, s.CellErrors[CellKey(0, 1)])
	assert.Equal(t, "=SUM(A3:A4)", s.Raw[0][0])

	require.NoError(t, doc.Undo())
	s = doc.Sheet()
	assert.Equal(t, "=A3*2", s.Raw[0][1])
	assert.Equal(t, "=SUM(A3:A5)", s.Raw[0][0])
	assert.Equal(t, "2", s.Values[0][1])
	assert.NotContains(t, s.CellErrors, CellKey(0, 1))
}

func TestHistoryAndVersion(t *testing.T) {
	doc := NewDocument(3, 3)
	var changes []Change
	cancel := doc.Subscribe(func(c Change) { changes = append(changes, c) })

	assert.ErrorIs(t, doc.Undo(), ErrNothingToUndo)
	require.NoError(t, doc.SetCell(0, 0, "1"))
	require.NoError(t, doc.SetCell(0, 1, "=A1+1"))
	assert.Equal(t, int64(2), doc.Version())
	assert.Equal(t, "2", doc.Sheet().Values[0][1])

	require.NoError(t, doc.Undo())
	assert.Equal(t, "", doc.Sheet().Raw[0][1])
	assert.True(t, doc.CanRedo())
	require.NoError(t, doc.Redo())
	assert.Equal(t, "=A1+1", doc.Sheet().Raw[0][1])
	assert.Equal(t, int64(4), doc.Version())

	// a new command clears redo
	require.NoError(t, doc.Undo())
	require.NoError(t, doc.SetCell(2, 2, "x"))
	assert.False(t, doc.CanRedo())
	assert.ErrorIs(t, doc.Redo(), ErrNothingToRedo)

	cancel()
	require.NoError(t, doc.SetCell(1, 1, "y"))
	require.Len(t, changes, 6)
	assert.Equal(t, Change{Kind: ChangeUndo, Command: "edit", Version: 3}, changes[2])
	assert.Equal(t, ChangeCommit, changes[5].Kind)
}

func TestSelectionIsNotACommand(t *testing.T) {
	doc := NewDocument(3, 3)
	doc.Select(Range{Start: CellAddr{2, 2}, End: CellAddr{0, 7}})
	s := doc.Sheet()
	assert.Equal(t, CellAddr{0, 2}, s.Selection.End)
	assert.Equal(t, CellAddr{2, 2}, s.Active)
	assert.Equal(t, int64(0), doc.Version())
	assert.False(t, doc.CanUndo())
}

func TestReadOnlyRejectsMutations(t *testing.T) {
	doc := newTestDocument(t, 2, 2, map[string]string{"0:0": "keep"})
	version := doc.Version()
	doc.SetReadOnly(true)

	assert.ErrorIs(t, doc.SetCell(0, 0, "changed"), ErrReadOnly)
	assert.ErrorIs(t, doc.Execute(NewInsertRowCommand(0)), ErrReadOnly)
	assert.ErrorIs(t, doc.Paste(CellAddr{0, 0}, "a\tb"), ErrReadOnly)
	_, err := doc.Fill(CellRange(0, 0), Range{Start: CellAddr{0, 0}, End: CellAddr{1, 0}})
	assert.ErrorIs(t, err, ErrReadOnly)
	assert.ErrorIs(t, doc.Undo(), ErrReadOnly)
	assert.ErrorIs(t, doc.BeginEdit(0, 0), ErrReadOnly)

	assert.Equal(t, "keep", doc.Sheet().Raw[0][0])
	assert.Equal(t, version, doc.Version())

	// remote state is still displayed
	doc.Hydrate(Snapshot{Rows: 2, Cols: 2, Raw: [][]string{{"remote"}}})
	assert.Equal(t, "remote", doc.Sheet().Raw[0][0])
}

func TestComputedColumns(t *testing.T) {
	doc := NewDocumentFromSnapshot(Snapshot{
		Rows: 2,
		Cols: 2,
		Raw:  [][]string{{"3", "ignored"}, {"abc", ""}},
		Columns: []Column{
			{ID: "qty", Title: "Qty", Type: ColumnNumber},
			{ID: "double", Title: "Double", Expression: "A1*2"},
		},
	})
	s := doc.Sheet()
	assert.Equal(t, "3.00", s.Values[0][0])
	assert.Equal(t, "6", s.Values[0][1])
	assert.Equal(t, "#VALUE!", s.Values[1][1])
	assert.Equal(t, msgExpectedNumber, s.CellErrors[CellKey(1, 0)])

	assert.ErrorIs(t, doc.SetCell(0, 1, "5"), ErrNotEditable)
	assert.ErrorIs(t, doc.BeginEdit(0, 1), ErrNotEditable)
	assert.Equal(t, int64(0), doc.Version())
}

func TestEditBuffer(t *testing.T) {
	doc := NewDocument(2, 2)
	var states []EditState
	doc.SubscribeEdits(func(s EditState) { states = append(states, s) })

	require.NoError(t, doc.BeginEdit(1, 1))
	assert.True(t, doc.IsEditing())
	doc.UpdateEdit("=1+1")
	assert.Equal(t, EditState{Editing: true, Cell: CellAddr{1, 1}, Value: "=1+1"}, doc.Edit())
	assert.Equal(t, int64(0), doc.Version())

	require.NoError(t, doc.CommitEdit())
	assert.False(t, doc.IsEditing())
	assert.Equal(t, "2", doc.Sheet().Values[1][1])
	assert.Equal(t, int64(1), doc.Version())

	require.NoError(t, doc.BeginEdit(0, 0))
	doc.UpdateEdit("discarded")
	doc.CancelEdit()
	assert.Equal(t, "", doc.Sheet().Raw[0][0])

	// committing an unchanged value is not a command
	require.NoError(t, doc.BeginEdit(1, 1))
	require.NoError(t, doc.CommitEdit())
	assert.Equal(t, int64(1), doc.Version())
	assert.Len(t, states, 8)
}

func TestHydrateResetsHistoryNotVersion(t *testing.T) {
	doc := newTestDocument(t, 2, 2, map[string]string{"0:0": "1"})
	require.NoError(t, doc.BeginEdit(0, 0))

	doc.Hydrate(Snapshot{Rows: 3, Cols: 1, Raw: [][]string{{"5"}, {"=A1*3"}}})
	s := doc.Sheet()
	assert.Equal(t, 3, s.Rows)
	assert.Equal(t, 1, s.Cols)
	assert.Equal(t, "15", s.Values[1][0])
	assert.Equal(t, int64(1), doc.Version())
	assert.False(t, doc.CanUndo())
	assert.False(t, doc.IsEditing())
}

func TestFillSeriesAndCopy(t *testing.T) {
	doc := newTestDocument(t, 4, 1, map[string]string{"0:0": "1", "1:0": "2"})
	mode, err := doc.Fill(Range{Start: CellAddr{0, 0}, End: CellAddr{1, 0}}, Range{Start: CellAddr{0, 0}, End: CellAddr{3, 0}})
	require.NoError(t, err)
	assert.Equal(t, FillSeries, mode)
	s := doc.Sheet()
	assert.Equal(t, "3", s.Raw[2][0])
	assert.Equal(t, "4", s.Raw[3][0])

	doc = newTestDocument(t, 4, 1, map[string]string{"0:0": "1", "1:0": "x"})
	mode, err = doc.Fill(Range{Start: CellAddr{1, 0}, End: CellAddr{0, 0}}, Range{Start: CellAddr{0, 0}, End: CellAddr{3, 0}})
	require.NoError(t, err)
	assert.Equal(t, FillCopy, mode)
	s = doc.Sheet()
	assert.Equal(t, "1", s.Raw[2][0])
	assert.Equal(t, "x", s.Raw[3][0])

	// one undo reverses values and styles together
	require.NoError(t, doc.Undo())
	assert.Equal(t, "", doc.Sheet().Raw[3][0])
}

func TestFillDetails(t *testing.T) {
	doc := newTestDocument(t, 5, 2, map[string]string{"1:0": "2", "2:0": "2.5", "1:1": "=A2*2"})
	require.NoError(t, doc.Execute(NewSetStylesCommand([]StyleChange{
		{Row: 1, Col: 1, Style: CellStyle{Bold: true}},
		{Row: 4, Col: 1, Style: CellStyle{NumberFormat: "percent"}},
	})))

	// upward series extrapolates backwards
	_, err := doc.Fill(Range{Start: CellAddr{1, 0}, End: CellAddr{2, 0}}, Range{Start: CellAddr{0, 0}, End: CellAddr{4, 0}})
	require.NoError(t, err)
	s := doc.Sheet()
	assert.Equal(t, []string{"1.5", "2", "2.5", "3", "3.5"}, []string{s.Raw[0][0], s.Raw[1][0], s.Raw[2][0], s.Raw[3][0], s.Raw[4][0]})

	// copied formulas follow their cells and carry styles unless the
	// destination has its own number format
	_, err = doc.Fill(CellRange(1, 1), Range{Start: CellAddr{1, 1}, End: CellAddr{4, 1}})
	require.NoError(t, err)
	s = doc.Sheet()
	assert.Equal(t, "=A3*2", s.Raw[2][1])
	assert.Equal(t, "=A5*2", s.Raw[4][1])
	assert.True(t, s.Style(3, 1).Bold)
	assert.False(t, s.Style(4, 1).Bold)

	_, err = doc.Fill(CellRange(1, 1), CellRange(1, 1))
	assert.Equal(t, InvalidArgument, CodeOf(err))
}

func TestSortCommand(t *testing.T) {
	doc := newTestDocument(t, 4, 2, map[string]string{
		"0:0": "10", "0:1": "ten",
		"1:0": "2", "1:1": "two",
		"3:0": "7", "3:1": "seven",
	})
	require.NoError(t, doc.Execute(NewSetStylesCommand([]StyleChange{{Row: 0, Col: 1, Style: CellStyle{Bold: true}}})))
	require.NoError(t, doc.Execute(NewResizeRowCommand(0, 50)))
	doc.SetActive(CellAddr{0, 1})
	before := doc.Snapshot()

	require.NoError(t, doc.Execute(NewSortCommand(0, false)))
	s := doc.Sheet()
	assert.Equal(t, []string{"two", "seven", "ten", ""}, column(s, 1))
	assert.True(t, s.Style(2, 1).Bold)
	assert.Equal(t, 50, s.RowHeights[2])
	assert.Equal(t, CellAddr{2, 1}, s.Active)

	require.NoError(t, doc.Execute(NewSortCommand(0, true)))
	assert.Equal(t, []string{"ten", "seven", "two", ""}, column(doc.Sheet(), 1))

	require.NoError(t, doc.Undo())
	require.NoError(t, doc.Undo())
	assert.Equal(t, before, doc.Snapshot())
}

func TestSortTextIgnoresCase(t *testing.T) {
	doc := newTestDocument(t, 4, 1, map[string]string{"0:0": "banana", "1:0": "", "2:0": "Apple", "3:0": "cherry"})
	require.NoError(t, doc.Execute(NewSortCommand(0, false)))
	assert.Equal(t, []string{"Apple", "banana", "cherry", ""}, column(doc.Sheet(), 0))
}

func TestVisibleRows(t *testing.T) {
	doc := newTestDocument(t, 4, 2, map[string]string{
		"0:0": "5", "0:1": "alpha",
		"1:0": "15", "1:1": "beta",
		"2:0": "25",
		"3:0": "x", "3:1": "Alphabet",
	})
	require.NoError(t, doc.Execute(&SetFilterCommand{Col: 1, Filter: &Filter{Op: FilterContains, Value: "ALPHA"}}))
	assert.Equal(t, []int{0, 1, 2, 3}, doc.Sheet().VisibleRows())

	require.NoError(t, doc.Execute(&SetFiltersEnabledCommand{Enabled: true}))
	assert.Equal(t, []int{0, 3}, doc.Sheet().VisibleRows())

	require.NoError(t, doc.Execute(&SetFilterCommand{Col: 1, Filter: &Filter{Op: FilterEmpty}}))
	require.NoError(t, doc.Execute(&SetFilterCommand{Col: 0, Filter: &Filter{Op: FilterGreater, Value: "10"}}))
	assert.Equal(t, []int{2}, doc.Sheet().VisibleRows())

	err := doc.Execute(&SetFilterCommand{Col: 0, Filter: &Filter{Op: "between"}})
	assert.Equal(t, InvalidArgument, CodeOf(err))
}

func column(s *Sheet, col int) []string {
	out := make([]string, s.Rows)
	for r := range out {
		out[r] = s.Raw[r][col]
	}
	return out
}
