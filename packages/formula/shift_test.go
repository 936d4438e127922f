package formula

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestShiftForInsert(t *testing.T) {
	tests := []struct {
		name    string
		formula string
		axis    Axis
		index   int
		want    string
	}{
		{"reference after insert point moves", "=A3+1", AxisRow, 1, "=A4+1"},
		{"reference at insert point moves", "=A2", AxisRow, 1, "=A3"},
		{"reference before insert point stays", "=A1*2", AxisRow, 1, "=A1*2"},
		{"range spanning insert point expands", "=SUM(A2:A5)", AxisRow, 3, "=SUM(A2:A6)"},
		{"range below insert point shifts", "=SUM(A2:A5)", AxisRow, 0, "=SUM(A3:A6)"},
		{"column insert", "=B1+C1", AxisColumn, 2, "=B1+D1"},
		{"reversed range keeps its order", "=SUM(B5:A2)", AxisRow, 3, "=SUM(B6:A2)"},
		{"absolute marker opts out", "=$A$3+A3", AxisRow, 0, "=$A$3+A3"},
		{"unparseable formula unchanged", "=A3+", AxisRow, 0, "=A3+"},
		{"literal unchanged", "A3", AxisRow, 0, "A3"},
		{"spacing preserved", "= A3 +  B4", AxisRow, 2, "= A4 +  B5"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ShiftForInsert(tt.formula, tt.axis, tt.index))
		})
	}
}

func TestShiftForDelete(t *testing.T) {
	tests := []struct {
		name    string
		formula string
		axis    Axis
		index   int
		want    string
	}{
		{"reference to deleted row", "=A3+1", AxisRow, 2, "=#REF!+1"},
		{"reference after deleted row", "=A5", AxisRow, 2, "=A4"},
		{"reference before deleted row", "=A1", AxisRow, 2, "=A1"},
		{"range containing deleted row shrinks", "=SUM(A2:A5)", AxisRow, 2, "=SUM(A2:A4)"},
		{"range starting at deleted row shrinks", "=SUM(A2:A5)", AxisRow, 1, "=SUM(A2:A4)"},
		{"range ending at deleted row shrinks", "=SUM(A2:A5)", AxisRow, 4, "=SUM(A2:A4)"},
		{"range after deleted row shifts", "=SUM(A4:A5)", AxisRow, 0, "=SUM(A3:A4)"},
		{"single row range collapses", "=SUM(A3:B3)", AxisRow, 2, "=SUM(#REF!)"},
		{"reversed range shrinks", "=SUM(A5:A2)", AxisRow, 2, "=SUM(A4:A2)"},
		{"column delete", "=A1+C1+B1", AxisColumn, 1, "=A1+B1+#REF!"},
		{"absolute marker opts out", "=A$3", AxisRow, 2, "=A$3"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ShiftForDelete(tt.formula, tt.axis, tt.index))
		})
	}
}

func TestShiftByOffset(t *testing.T) {
	tests := []struct {
		name    string
		formula string
		dRow    int
		dCol    int
		want    string
	}{
		{"down three rows", "=A1+B2", 3, 0, "=A4+B5"},
		{"right one column", "=SUM(A1:A3)", 0, 1, "=SUM(B1:B3)"},
		{"off the top edge", "=A1+A3", -2, 0, "=#REF!+A1"},
		{"range off the left edge", "=SUM(A1:B1)", 0, -1, "=SUM(#REF!)"},
		{"zero offset is identity", "=a1", 0, 0, "=a1"},
		{"absolute marker opts out", "=$A1", 5, 5, "=$A1"},
		{"existing #REF! is kept", "=#REF!+A1", 1, 0, "=#REF!+A2"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ShiftByOffset(tt.formula, tt.dRow, tt.dCol))
		})
	}
}

func TestIntroducedRefError(t *testing.T) {
	assert.True(t, IntroducedRefError("=A3", "=#REF!"))
	assert.False(t, IntroducedRefError("=#REF!+A3", "=#REF!+A2"))
	assert.False(t, IntroducedRefError("=A3", "=A2"))
}

func TestColumnNames(t *testing.T) {
	for col, name := range map[int]string{0: "A", 25: "Z", 26: "AA", 27: "AB", 701: "ZZ", 702: "AAA"} {
		assert.Equal(t, name, ColumnName(col))
		ref, err := ParseCellRef(name + "1")
		assert.NoError(t, err)
		assert.Equal(t, col, ref.Col)
	}

	ref, err := ParseCellRef("$c$12")
	assert.NoError(t, err)
	assert.Equal(t, CellRef{Row: 11, Col: 2, AbsRow: true, AbsCol: true}, ref)
	assert.Equal(t, "$C$12", ref.String())

	for _, bad := range []string{"", "12", "A", "A0", "A-1", "$", "A1B"} {
		_, err := ParseCellRef(bad)
		assert.Error(t, err, bad)
	}
}
