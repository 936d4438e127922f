package formula

import (
	"sort"
	"strings"
)

// ColumnSpec is what the engine needs to know about a column
type ColumnSpec struct {
	Kind FormatKind
	// Expression is a formula written for the first row. when set, raw
	// cells of the column are ignored and each row gets the expression
	// shifted down by its row index.
	Expression string
}

// Options control one evaluation pass
type Options struct {
	Locale  *Locale
	Columns []ColumnSpec
	// CellFormat returns the style-level number format for a cell, which
	// takes precedence over the column kind. may be nil.
	CellFormat func(row, col int) FormatKind
}

func (o Options) locale() *Locale {
	if o.Locale == nil {
		return DefaultLocale
	}
	return o.Locale
}

func (o Options) column(col int) ColumnSpec {
	if col < 0 || col >= len(o.Columns) {
		return ColumnSpec{}
	}
	return o.Columns[col]
}

// formatFor resolves the display kind for a cell
func (o Options) formatFor(row, col int) FormatKind {
	if o.CellFormat != nil {
		if kind := o.CellFormat(row, col); kind != FormatPlain {
			return kind
		}
	}
	return o.column(col).Kind
}

// Engine evaluates raw grids into display values
type Engine struct {
	cache *FormulaCache
}

// NewEngine creates an engine. a nil cache gets a fresh unbounded one.
func NewEngine(cache *FormulaCache) *Engine {
	if cache == nil {
		cache = NewFormulaCache(0)
	}
	return &Engine{cache: cache}
}

// Cache exposes the engine's parse cache
func (e *Engine) Cache() *FormulaCache {
	return e.cache
}

// IsFormula reports whether raw cell text is a formula
func IsFormula(raw string) bool {
	return strings.HasPrefix(raw, "=")
}

// Compute evaluates every cell and returns typed results
func (e *Engine) Compute(raw [][]string, opts Options) [][]Primitive {
	ev := newEvaluation(e, raw, opts)
	out := make([][]Primitive, ev.rows)
	for row := 0; row < ev.rows; row++ {
		out[row] = make([]Primitive, ev.cols)
		for col := 0; col < ev.cols; col++ {
			out[row][col] = ev.CellValue(row, col)
		}
	}
	return out
}

// Evaluate evaluates raw and renders display strings. values is always a
// pure function of raw, the column specs, cell formats and the locale.
func (e *Engine) Evaluate(raw [][]string, opts Options) [][]string {
	ev := newEvaluation(e, raw, opts)
	loc := opts.locale()
	out := make([][]string, ev.rows)
	for row := 0; row < ev.rows; row++ {
		out[row] = make([]string, len(raw[row]))
		for col := range raw[row] {
			value := ev.CellValue(row, col)
			out[row][col] = ev.display(loc, row, col, value)
		}
	}
	return out
}

// FormulaText returns the formula that drives a cell, or "" for a literal
func (e *Engine) FormulaText(raw [][]string, row, col int, opts Options) string {
	if expr := opts.column(col).Expression; expr != "" {
		return columnFormula(expr, row)
	}
	if row < len(raw) && col < len(raw[row]) && IsFormula(raw[row][col]) {
		return raw[row][col]
	}
	return ""
}

// columnFormula shifts a first-row column expression down to row
func columnFormula(expr string, row int) string {
	if !IsFormula(expr) {
		expr = "=" + expr
	}
	if row == 0 {
		return expr
	}
	return ShiftByOffset(expr, row, 0)
}

type cellKey struct {
	row int
	col int
}

// evaluation is a single pass over one grid. it implements EvalContext
// and evaluates referenced cells on demand.
type evaluation struct {
	engine  *Engine
	raw     [][]string
	opts    Options
	rows    int
	cols    int
	results map[cellKey]Primitive
	stack   *CalculationStack
}

func newEvaluation(e *Engine, raw [][]string, opts Options) *evaluation {
	cols := 0
	for _, r := range raw {
		cols = max(cols, len(r))
	}
	return &evaluation{
		engine:  e,
		raw:     raw,
		opts:    opts,
		rows:    len(raw),
		cols:    cols,
		results: make(map[cellKey]Primitive),
		stack:   NewCalculationStack(),
	}
}

func (ev *evaluation) InBounds(row, col int) bool {
	return row >= 0 && col >= 0 && row < ev.rows && col < ev.cols
}

func (ev *evaluation) CellValue(row, col int) Primitive {
	key := cellKey{row, col}
	if ev.stack.isCompleted(key) {
		return ev.results[key]
	}
	if ev.stack.isProcessing(key) {
		// cell is already being calculated, we have a circular reference
		return NewSpreadsheetError(ErrorCodeRef, "Circular reference detected")
	}

	ev.stack.push(key)
	result := ev.calculateCell(row, col)
	ev.stack.pop()
	ev.stack.markCompleted(key)
	ev.results[key] = result
	return result
}

func (ev *evaluation) calculateCell(row, col int) Primitive {
	text := ev.engine.FormulaText(ev.raw, row, col, ev.opts)
	if text == "" {
		return ev.literal(row, col)
	}

	ast, err := ev.engine.cache.Get(text)
	if err != nil {
		return NewSpreadsheetError(ErrorCodeOther, err.Error())
	}

	result, err := ast.Eval(ev)
	if err != nil {
		return asSpreadsheetError(err)
	}
	// a range on its own is not a value
	if _, isRange := result.(Range); isRange {
		return NewSpreadsheetError(ErrorCodeValue, "range used as a value")
	}
	// empty referenced cells read as zero in a formula result
	if result == nil {
		return 0.0
	}
	return result
}

// literal converts non-formula raw text: numbers through the locale,
// anything else stays text
func (ev *evaluation) literal(row, col int) Primitive {
	if row >= len(ev.raw) || col >= len(ev.raw[row]) {
		return nil
	}
	text := ev.raw[row][col]
	if strings.TrimSpace(text) == "" {
		return nil
	}
	if num, ok := ev.opts.locale().ParseNumber(text); ok {
		return num
	}
	return text
}

func (ev *evaluation) display(loc *Locale, row, col int, value Primitive) string {
	switch v := value.(type) {
	case nil:
		return ""
	case *SpreadsheetError:
		return v.Display()
	case float64:
		kind := ev.opts.formatFor(row, col)
		if kind.IsNumeric() {
			return loc.Format(kind, v)
		}
		if ev.engine.FormulaText(ev.raw, row, col, ev.opts) != "" {
			return loc.FormatPlain(v)
		}
		// literal text passes through unchanged
		return ev.raw[row][col]
	default:
		return toString(v)
	}
}

// CalculationStack tracks cells being evaluated (cycle detection) and
// cells already evaluated in this pass (memoization)
type CalculationStack struct {
	items      []cellKey
	processing map[cellKey]struct{}
	completed  map[cellKey]struct{}
}

// NewCalculationStack creates a new calculation stack
func NewCalculationStack() *CalculationStack {
	return &CalculationStack{
		items:      make([]cellKey, 0),
		processing: make(map[cellKey]struct{}),
		completed:  make(map[cellKey]struct{}),
	}
}

func (cs *CalculationStack) push(key cellKey) {
	cs.items = append(cs.items, key)
	cs.processing[key] = struct{}{}
}

func (cs *CalculationStack) pop() (cellKey, bool) {
	if len(cs.items) == 0 {
		return cellKey{}, false
	}
	key := cs.items[len(cs.items)-1]
	cs.items = cs.items[:len(cs.items)-1]
	delete(cs.processing, key)
	return key, true
}

func (cs *CalculationStack) isProcessing(key cellKey) bool {
	_, exists := cs.processing[key]
	return exists
}

func (cs *CalculationStack) markCompleted(key cellKey) {
	cs.completed[key] = struct{}{}
}

func (cs *CalculationStack) isCompleted(key cellKey) bool {
	_, exists := cs.completed[key]
	return exists
}

// References lists the cells a formula reads, with ranges expanded, in
// row-major order. unparseable formulas have none.
func (e *Engine) References(formula string) []CellRef {
	ast, err := e.cache.Get(formula)
	if err != nil {
		return nil
	}
	seen := make(map[cellKey]struct{})
	var refs []CellRef
	add := func(row, col int) {
		key := cellKey{row, col}
		if _, ok := seen[key]; ok {
			return
		}
		seen[key] = struct{}{}
		refs = append(refs, CellRef{Row: row, Col: col})
	}
	walkAST(ast, func(node ASTNode) {
		switch n := node.(type) {
		case *CellRefNode:
			add(n.Ref.Row, n.Ref.Col)
		case *RangeNode:
			for row := min(n.Start.Row, n.End.Row); row <= max(n.Start.Row, n.End.Row); row++ {
				for col := min(n.Start.Col, n.End.Col); col <= max(n.Start.Col, n.End.Col); col++ {
					add(row, col)
				}
			}
		}
	})
	sort.Slice(refs, func(i, j int) bool {
		if refs[i].Row != refs[j].Row {
			return refs[i].Row < refs[j].Row
		}
		return refs[i].Col < refs[j].Col
	})
	return refs
}

// walkAST visits every node depth first
func walkAST(node ASTNode, visit func(ASTNode)) {
	if node == nil {
		return
	}
	visit(node)
	switch n := node.(type) {
	case *BinaryOpNode:
		walkAST(n.Left, visit)
		walkAST(n.Right, visit)
	case *UnaryOpNode:
		walkAST(n.Operand, visit)
	case *FunctionCallNode:
		for _, arg := range n.Args {
			walkAST(arg, visit)
		}
	}
}
