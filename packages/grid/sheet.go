package grid

import (
	"fmt"
	"maps"
	"slices"
	"strconv"
	"strings"

	"github.com/google/uuid"

	"github.com/vogtb/gridsync/packages/formula"
)

// Size bounds in pixels. widths and heights outside are clamped.
const (
	MinColumnWidth = 40
	MaxColumnWidth = 800
	MinRowHeight   = 20
	MaxRowHeight   = 400
)

// CellAddr is a zero-based cell coordinate
type CellAddr struct {
	Row int `json:"row"`
	Col int `json:"col"`
}

func (a CellAddr) String() string {
	return formula.FormatAddress(a.Row, a.Col)
}

// Range is a rectangle given by two corners in no particular order.
// callers normalize before use.
type Range struct {
	Start CellAddr `json:"start"`
	End   CellAddr `json:"end"`
}

// CellRange returns the one-cell range at row, col
func CellRange(row, col int) Range {
	return Range{Start: CellAddr{row, col}, End: CellAddr{row, col}}
}

// Normalized returns the range with Start at the top-left corner.
func (r Range) Normalized() Range {
	return Range{
		Start: CellAddr{Row: min(r.Start.Row, r.End.Row), Col: min(r.Start.Col, r.End.Col)},
		End:   CellAddr{Row: max(r.Start.Row, r.End.Row), Col: max(r.Start.Col, r.End.Col)},
	}
}

// Height is the number of rows covered
func (r Range) Height() int {
	n := r.Normalized()
	return n.End.Row - n.Start.Row + 1
}

// Width is the number of columns covered
func (r Range) Width() int {
	n := r.Normalized()
	return n.End.Col - n.Start.Col + 1
}

// Contains reports whether the cell lies inside the range.
func (r Range) Contains(row, col int) bool {
	n := r.Normalized()
	return row >= n.Start.Row && row <= n.End.Row && col >= n.Start.Col && col <= n.End.Col
}

func (r Range) String() string {
	n := r.Normalized()
	return n.Start.String() + ":" + n.End.String()
}

// ColumnType is the value type of a column
type ColumnType string

const (
	ColumnText     ColumnType = "text"
	ColumnNumber   ColumnType = "number"
	ColumnCurrency ColumnType = "currency"
	ColumnPercent  ColumnType = "percent"
)

// Kind maps the column type onto a display format.
func (t ColumnType) Kind() formula.FormatKind {
	switch t {
	case ColumnNumber:
		return formula.FormatNumber
	case ColumnCurrency:
		return formula.FormatCurrency
	case ColumnPercent:
		return formula.FormatPercent
	default:
		return formula.FormatPlain
	}
}

// Column is an ordered column definition.
type Column struct {
	ID         string     `json:"id"`
	Title      string     `json:"title"`
	Type       ColumnType `json:"type,omitempty"`
	Expression string     `json:"expression,omitempty"`
	ReadOnly   bool       `json:"readOnly,omitempty"`
	Wrap       bool       `json:"wrap,omitempty"`
}

// Computed reports whether the column derives its values from an expression
func (c Column) Computed() bool {
	return strings.TrimSpace(c.Expression) != ""
}

// Editable reports whether users may write raw values into the column
func (c Column) Editable() bool {
	return !c.ReadOnly && !c.Computed()
}

// CellStyle is the per-cell presentation. the zero value is the default style.
type CellStyle struct {
	Bold         bool               `json:"bold,omitempty"`
	Italic       bool               `json:"italic,omitempty"`
	Align        string             `json:"align,omitempty"`
	NumberFormat formula.FormatKind `json:"numberFormat,omitempty"`
	Fill         string             `json:"fill,omitempty"`
}

// IsZero reports whether the style is the default one
func (s CellStyle) IsZero() bool {
	return s == CellStyle{}
}

// Freeze holds pane-freeze counts
type Freeze struct {
	Rows int `json:"rows"`
	Cols int `json:"cols"`
}

// CellKey formats the sparse-map key for a cell
func CellKey(row, col int) string {
	return strconv.Itoa(row) + ":" + strconv.Itoa(col)
}

// ParseCellKey is the inverse of CellKey
func ParseCellKey(key string) (row, col int, ok bool) {
	r, c, found := strings.Cut(key, ":")
	if !found {
		return 0, 0, false
	}
	row, err := strconv.Atoi(r)
	if err != nil {
		return 0, 0, false
	}
	col, err = strconv.Atoi(c)
	if err != nil {
		return 0, 0, false
	}
	return row, col, row >= 0 && col >= 0
}

// Sheet is the data of one document. it is mutated only by commands.
type Sheet struct {
	Rows int
	Cols int

	// Raw holds user input including formulas. Values is derived from Raw,
	// Columns and the locale and is never written by commands.
	Raw    [][]string
	Values [][]string

	Columns      []Column
	Styles       map[string]CellStyle
	ColumnWidths map[int]int
	RowHeights   map[int]int
	RowIDs       []string

	Active    CellAddr
	Selection Range
	Anchor    CellAddr

	CellErrors     map[string]string
	FiltersEnabled bool
	Filters        map[int]Filter
	Freeze         Freeze
	Comments       map[string]string

	locale *formula.Locale
}

// NewSheet creates an empty rows x cols sheet with fresh row ids.
func NewSheet(rows, cols int) *Sheet {
	rows, cols = max(rows, 1), max(cols, 1)
	s := &Sheet{
		Rows:         rows,
		Cols:         cols,
		Raw:          emptyGrid(rows, cols),
		Values:       emptyGrid(rows, cols),
		Styles:       map[string]CellStyle{},
		ColumnWidths: map[int]int{},
		RowHeights:   map[int]int{},
		RowIDs:       make([]string, rows),
		CellErrors:   map[string]string{},
		Filters:      map[int]Filter{},
		Comments:     map[string]string{},
	}
	for i := range s.RowIDs {
		s.RowIDs[i] = uuid.NewString()
	}
	return s
}

func emptyGrid(rows, cols int) [][]string {
	grid := make([][]string, rows)
	for i := range grid {
		grid[i] = make([]string, cols)
	}
	return grid
}

func cloneGrid(grid [][]string) [][]string {
	if grid == nil {
		return nil
	}
	out := make([][]string, len(grid))
	for i, row := range grid {
		out[i] = slices.Clone(row)
	}
	return out
}

// Clone returns a deep copy.
func (s *Sheet) Clone() *Sheet {
	c := *s
	c.Raw = cloneGrid(s.Raw)
	c.Values = cloneGrid(s.Values)
	c.Columns = slices.Clone(s.Columns)
	c.Styles = maps.Clone(s.Styles)
	c.ColumnWidths = maps.Clone(s.ColumnWidths)
	c.RowHeights = maps.Clone(s.RowHeights)
	c.RowIDs = slices.Clone(s.RowIDs)
	c.CellErrors = maps.Clone(s.CellErrors)
	c.Filters = maps.Clone(s.Filters)
	c.Comments = maps.Clone(s.Comments)
	return &c
}

// ensureMaps replaces nil sparse maps so commands can write into them.
func (s *Sheet) ensureMaps() {
	if s.Styles == nil {
		s.Styles = map[string]CellStyle{}
	}
	if s.ColumnWidths == nil {
		s.ColumnWidths = map[int]int{}
	}
	if s.RowHeights == nil {
		s.RowHeights = map[int]int{}
	}
	if s.CellErrors == nil {
		s.CellErrors = map[string]string{}
	}
	if s.Filters == nil {
		s.Filters = map[int]Filter{}
	}
	if s.Comments == nil {
		s.Comments = map[string]string{}
	}
}

// Locale returns the locale used for validation and display
func (s *Sheet) Locale() *formula.Locale {
	if s.locale == nil {
		return formula.DefaultLocale
	}
	return s.locale
}

// InBounds reports whether the coordinate is on the grid
func (s *Sheet) InBounds(row, col int) bool {
	return row >= 0 && row < s.Rows && col >= 0 && col < s.Cols
}

// Cell returns the raw text of a cell, or "" off the grid.
func (s *Sheet) Cell(row, col int) string {
	if !s.InBounds(row, col) {
		return ""
	}
	return s.Raw[row][col]
}

// Value returns the display value of a cell, or "" off the grid.
func (s *Sheet) Value(row, col int) string {
	if !s.InBounds(row, col) || row >= len(s.Values) || col >= len(s.Values[row]) {
		return ""
	}
	return s.Values[row][col]
}

// Column returns the definition of col. sheets without definitions treat
// every column as editable text.
func (s *Sheet) Column(col int) Column {
	if col < 0 || col >= len(s.Columns) {
		return Column{}
	}
	return s.Columns[col]
}

// Style returns the explicit style of a cell, or the default.
func (s *Sheet) Style(row, col int) CellStyle {
	return s.Styles[CellKey(row, col)]
}

// Editable reports whether a raw value may be written at row, col
func (s *Sheet) Editable(row, col int) bool {
	return s.InBounds(row, col) && s.Column(col).Editable()
}

// RowIndex returns the current position of a row id, or -1.
func (s *Sheet) RowIndex(id string) int {
	return slices.Index(s.RowIDs, id)
}

// Clamp returns the address moved onto the grid.
func (s *Sheet) Clamp(a CellAddr) CellAddr {
	return CellAddr{Row: clamp(a.Row, 0, s.Rows-1), Col: clamp(a.Col, 0, s.Cols-1)}
}

func clamp(v, lo, hi int) int {
	if hi < lo {
		return lo
	}
	return min(max(v, lo), hi)
}

// ClampColumnWidth bounds a width to the allowed range
func ClampColumnWidth(w int) int {
	return clamp(w, MinColumnWidth, MaxColumnWidth)
}

// ClampRowHeight bounds a height to the allowed range
func ClampRowHeight(h int) int {
	return clamp(h, MinRowHeight, MaxRowHeight)
}

// EvalOptions describes the sheet to the formula engine.
func (s *Sheet) EvalOptions() formula.Options {
	specs := make([]formula.ColumnSpec, len(s.Columns))
	for i, c := range s.Columns {
		specs[i] = formula.ColumnSpec{Kind: c.Type.Kind(), Expression: c.Expression}
	}
	return formula.Options{
		Locale:  s.Locale(),
		Columns: specs,
		CellFormat: func(row, col int) formula.FormatKind {
			return s.Styles[CellKey(row, col)].NumberFormat
		},
	}
}

// Recompute rebuilds Values from Raw.
func (s *Sheet) Recompute(engine *formula.Engine) {
	s.Values = engine.Evaluate(s.Raw, s.EvalOptions())
}

const msgExpectedNumber = "expected a number"

// validate refreshes the validation error of one cell after its raw value
// changed. reference errors from rewriting are cleared as well since the
// cell now holds fresh input.
func (s *Sheet) validate(row, col int) {
	key := CellKey(row, col)
	delete(s.CellErrors, key)
	raw := strings.TrimSpace(s.Raw[row][col])
	if raw == "" || formula.IsFormula(raw) {
		return
	}
	kind := s.Column(col).Type.Kind()
	if !kind.IsNumeric() {
		return
	}
	if _, ok := s.Locale().ParseNumber(raw); !ok {
		s.CellErrors[key] = msgExpectedNumber
	}
}

// checkShape verifies the internal consistency the commands rely on.
func (s *Sheet) checkShape() error {
	if len(s.Raw) != s.Rows || len(s.RowIDs) != s.Rows {
		return NewApplicationError(Internal, fmt.Sprintf("sheet has %d rows but %d raw rows and %d row ids", s.Rows, len(s.Raw), len(s.RowIDs)))
	}
	for i, row := range s.Raw {
		if len(row) != s.Cols {
			return NewApplicationError(Internal, fmt.Sprintf("row %d has %d cells, want %d", i, len(row), s.Cols))
		}
	}
	return nil
}
