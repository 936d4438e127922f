package grid

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseClipboard(t *testing.T) {
	tests := []struct {
		name string
		text string
		want [][]string
	}{
		{"tabs", "a\tb\n1\t2", [][]string{{"a", "b"}, {"1", "2"}}},
		{"semicolons", "a;b;c\n1;2;3\n", [][]string{{"a", "b", "c"}, {"1", "2", "3"}}},
		{"commas", "a,b\r\n1,2\r\n", [][]string{{"a", "b"}, {"1", "2"}}},
		{"tab wins over semicolon", "a\tb;c", [][]string{{"a", "b;c"}}},
		{"single value", "single", [][]string{{"single"}}},
		{"old mac line endings", "x\ry", [][]string{{"x"}, {"y"}}},
		{"blank middle row kept", "x\n\ny\n", [][]string{{"x"}, {""}, {"y"}}},
		{"only one trailing row dropped", "x\n\n", [][]string{{"x"}, {""}}},
		{"empty", "", nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ParseClipboard(tt.text))
		})
	}
}

func TestDetectDelimiter(t *testing.T) {
	assert.Equal(t, ";", DetectDelimiter("1;2"))
	assert.Equal(t, ",", DetectDelimiter("1,2"))
	assert.Equal(t, ";", DetectDelimiter("1,5;2,5"))
	assert.Equal(t, "\t", DetectDelimiter("plain"))
}

func TestClipboardRoundTrip(t *testing.T) {
	doc := newTestDocument(t, 8, 2, map[string]string{
		"0:0": "2", "0:1": "=A1*10",
		"1:0": "3", "1:1": "=A2+A1",
	})
	doc.Select(Range{Start: CellAddr{1, 1}, End: CellAddr{0, 0}})
	text := doc.Copy()
	assert.Equal(t, "2\t=A1*10\n3\t=A2+A1", text)

	require.NoError(t, doc.Paste(CellAddr{3, 0}, text))
	s := doc.Sheet()
	assert.Equal(t, "=A4*10", s.Raw[3][1])
	assert.Equal(t, "=A5+A4", s.Raw[4][1])
	assert.Equal(t, []string{s.Values[0][0], s.Values[0][1], s.Values[1][0], s.Values[1][1]},
		[]string{s.Values[3][0], s.Values[3][1], s.Values[4][0], s.Values[4][1]})
	assert.Equal(t, "20", s.Values[3][1])
	assert.Equal(t, "5", s.Values[4][1])

	// one undo removes the whole paste
	require.NoError(t, doc.Undo())
	assert.Equal(t, "", doc.Sheet().Raw[3][1])
}

func TestPasteForeignTextAndClipping(t *testing.T) {
	doc := newTestDocument(t, 3, 2, map[string]string{"0:0": "1"})

	// text that did not come from this document is pasted verbatim
	require.NoError(t, doc.Paste(CellAddr{1, 0}, "=A1\t7"))
	s := doc.Sheet()
	assert.Equal(t, "=A1", s.Raw[1][0])
	assert.Equal(t, "7", s.Raw[1][1])

	require.NoError(t, doc.Paste(CellAddr{2, 1}, "a;b;c\nd;e;f"))
	s = doc.Sheet()
	assert.Equal(t, "a", s.Raw[2][1])
	assert.Equal(t, 3, s.Rows)
	assert.Equal(t, 2, s.Cols)

	// a paste fully off the grid changes nothing
	version := doc.Version()
	require.NoError(t, doc.Paste(CellAddr{5, 5}, "z"))
	assert.Equal(t, version, doc.Version())
}

func TestCopyUsesRawValues(t *testing.T) {
	s := NewSheet(2, 2)
	s.Raw[0] = []string{"=1+1", ""}
	s.Raw[1] = []string{"x", "y"}
	assert.Equal(t, "=1+1\t\nx\ty", CopyText(s, Range{Start: CellAddr{1, 1}, End: CellAddr{0, 0}}))
}
