package grid

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSnapshotRoundTrip(t *testing.T) {
	doc := newTestDocument(t, 3, 2, map[string]string{"0:0": "4", "1:1": "=A1/2"})
	require.NoError(t, doc.Execute(NewSetStylesCommand([]StyleChange{{Row: 1, Col: 1, Style: CellStyle{Italic: true, Align: "right"}}})))
	require.NoError(t, doc.Execute(&SetFreezeCommand{Freeze: Freeze{Rows: 1}}))
	require.NoError(t, doc.Execute(&SetCommentCommand{Row: 0, Col: 0, Text: "base"}))
	require.NoError(t, doc.Execute(NewResizeColumnCommand(1, 90)))

	snap := doc.Snapshot()
	data, err := json.Marshal(snap)
	require.NoError(t, err)

	var decoded Snapshot
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, snap, decoded)

	other := NewDocumentFromSnapshot(decoded)
	assert.Equal(t, "2", other.Sheet().Values[1][1])
	assert.Equal(t, doc.Sheet().RowIDs, other.Sheet().RowIDs)
}

func TestDecodeLegacySnapshot(t *testing.T) {
	legacy := `{
		"data": [["1", "=A1+1"], [2, null, true]],
		"rows": 2,
		"cols": 3,
		"colWidths": {"0": 10, "2": 200},
		"row_ids": ["r1", "r1"],
		"notes": {"0:0": "hi", "9:9": "gone"},
		"frozenRows": 1,
		"frozenCols": 7
	}`
	snap, err := DecodeSnapshot([]byte(legacy))
	require.NoError(t, err)

	assert.Equal(t, 2, snap.Rows)
	assert.Equal(t, 3, snap.Cols)
	assert.Equal(t, [][]string{{"1", "=A1+1", ""}, {"2", "", "TRUE"}}, snap.Raw)
	assert.Equal(t, map[int]int{0: MinColumnWidth, 2: 200}, snap.ColumnWidths)
	assert.Equal(t, "r1", snap.RowIDs[0])
	assert.NotEqual(t, "r1", snap.RowIDs[1])
	assert.NotEmpty(t, snap.RowIDs[1])
	assert.Equal(t, map[string]string{"0:0": "hi"}, snap.Comments)
	assert.Equal(t, Freeze{Rows: 1, Cols: 3}, snap.Freeze)
}

func TestDecodeLegacyRowsGrid(t *testing.T) {
	snap, err := DecodeSnapshot([]byte(`{"rows": [["a", "b"], ["c"]], "row_ids": null}`))
	require.NoError(t, err)
	assert.Equal(t, 2, snap.Rows)
	assert.Equal(t, 2, snap.Cols)
	assert.Equal(t, [][]string{{"a", "b"}, {"c", ""}}, snap.Raw)
	assert.Len(t, snap.RowIDs, 2)

	// display values stand in for raw values in the oldest documents
	snap, err = DecodeSnapshot([]byte(`{"values": [["x"]]}`))
	require.NoError(t, err)
	assert.Equal(t, [][]string{{"x"}}, snap.Raw)

	_, err = DecodeSnapshot([]byte(`[1, 2]`))
	assert.Error(t, err)
	_, err = DecodeSnapshot([]byte(`null`))
	assert.Equal(t, InvalidArgument, CodeOf(err))
}

func TestNormalizePadsAndTruncates(t *testing.T) {
	snap := Snapshot{
		Rows:       1,
		Cols:       2,
		Raw:        [][]string{{"a", "b", "c"}, {"d"}},
		Styles:     map[string]CellStyle{"0:1": {Bold: true}, "0:5": {Bold: true}, "bad": {Bold: true}, "0:0": {}},
		RowHeights: map[int]int{0: 1000, 3: 30},
		Filters:    map[int]Filter{0: {Op: FilterEmpty}, 1: {Op: "nope"}},
		Columns:    []Column{{Title: "Only"}},
	}
	n := snap.Normalize()
	assert.Equal(t, [][]string{{"a", "b"}}, n.Raw)
	assert.Equal(t, [][]string{{"", ""}}, n.Values)
	assert.Equal(t, map[string]CellStyle{"0:1": {Bold: true}}, n.Styles)
	assert.Equal(t, map[int]int{0: MaxRowHeight}, n.RowHeights)
	assert.Equal(t, map[int]Filter{0: {Op: FilterEmpty}}, n.Filters)
	require.Len(t, n.Columns, 2)
	assert.Equal(t, "A", n.Columns[0].ID)
	assert.Equal(t, Column{ID: "B", Type: ColumnText}, n.Columns[1])

	// normalizing twice is stable
	assert.Equal(t, n, n.Normalize())
}

func TestHydrateDerivesCellErrors(t *testing.T) {
	doc := NewDocumentFromSnapshot(Snapshot{
		Rows:    1,
		Cols:    2,
		Raw:     [][]string{{"n/a", "=#REF!+1"}},
		Columns: []Column{{ID: "amount", Type: ColumnCurrency}, {ID: "calc"}},
	})
	s := doc.Sheet()
	assert.Equal(t, msgExpectedNumber, s.CellErrors["0:0"])
	assert.Equal(t, msgRefError, s.CellErrors["0:1"])
	assert.Equal(t, "#REF!", s.Values[0][1])
}
