package grid

import (
	"fmt"
	"slices"

	"github.com/google/uuid"

	"github.com/vogtb/gridsync/packages/formula"
)

const msgRefError = "reference to a deleted cell"

// formulaEdit records one rewritten formula at its pre-edit position
type formulaEdit struct {
	Row, Col      int
	Before, After string
}

// StructureCommand inserts or deletes one row or column and rewrites every
// formula and computed-column expression that references past it.
type StructureCommand struct {
	Axis   formula.Axis
	Index  int
	Delete bool

	before  layout
	removed []string // raw cells of the deleted line, in order
	edits   []formulaEdit
	newID   string
	colID   string
}

func NewInsertRowCommand(index int) *StructureCommand {
	return &StructureCommand{Axis: formula.AxisRow, Index: index}
}

func NewDeleteRowCommand(index int) *StructureCommand {
	return &StructureCommand{Axis: formula.AxisRow, Index: index, Delete: true}
}

func NewInsertColumnCommand(index int) *StructureCommand {
	return &StructureCommand{Axis: formula.AxisColumn, Index: index}
}

func NewDeleteColumnCommand(index int) *StructureCommand {
	return &StructureCommand{Axis: formula.AxisColumn, Index: index, Delete: true}
}

func (c *StructureCommand) Name() string {
	op := "insert"
	if c.Delete {
		op = "delete"
	}
	return op + "-" + c.Axis.String()
}

// Edits returns how many formula cells the last Do rewrote
func (c *StructureCommand) Edits() int {
	return len(c.edits)
}

func (c *StructureCommand) size(s *Sheet) int {
	if c.Axis == formula.AxisRow {
		return s.Rows
	}
	return s.Cols
}

func (c *StructureCommand) shift(text string) string {
	if c.Delete {
		return formula.ShiftForDelete(text, c.Axis, c.Index)
	}
	return formula.ShiftForInsert(text, c.Axis, c.Index)
}

func (c *StructureCommand) Do(s *Sheet) error {
	if err := s.checkShape(); err != nil {
		return err
	}
	limit := c.size(s)
	if c.Delete {
		if c.Index < 0 || c.Index >= limit {
			return invalidArgument("%s: index %d out of range", c.Name(), c.Index)
		}
		if limit == 1 {
			return NewApplicationError(FailedPrecondition, fmt.Sprintf("cannot delete the last %s", c.Axis))
		}
	} else if c.Index < 0 || c.Index > limit {
		return invalidArgument("%s: index %d out of range", c.Name(), c.Index)
	}

	c.before = captureLayout(s)
	c.edits = c.edits[:0]
	c.removed = nil

	for r, row := range s.Raw {
		for col, text := range row {
			if c.Delete && c.deleted(r, col) {
				continue
			}
			if !formula.IsFormula(text) {
				continue
			}
			if after := c.shift(text); after != text {
				c.edits = append(c.edits, formulaEdit{Row: r, Col: col, Before: text, After: after})
				row[col] = after
			}
		}
	}
	if c.Axis == formula.AxisColumn {
		for i := range s.Columns {
			if c.Delete && i == c.Index {
				continue
			}
			expr := s.Columns[i].Expression
			if expr == "" {
				continue
			}
			if after := c.shift(ensureEquals(expr)); after != ensureEquals(expr) {
				s.Columns[i].Expression = after
			}
		}
	}

	if c.Delete {
		c.deleteLine(s)
	} else {
		c.insertLine(s)
	}
	s.shiftLayout(c.Axis, c.Index, c.delta())

	for _, e := range c.edits {
		if !formula.IntroducedRefError(e.Before, e.After) {
			continue
		}
		row, col := e.Row, e.Col
		if c.Axis == formula.AxisRow {
			row, _ = shiftIndex(row, c.Index, c.delta())
		} else {
			col, _ = shiftIndex(col, c.Index, c.delta())
		}
		s.CellErrors[CellKey(row, col)] = msgRefError
	}
	return nil
}

func (c *StructureCommand) Undo(s *Sheet) error {
	if c.Delete {
		c.restoreLine(s)
	} else {
		c.removeInserted(s)
	}
	for _, e := range c.edits {
		s.Raw[e.Row][e.Col] = e.Before
	}
	// restores column definitions and their expressions too
	c.before.restore(s)
	return nil
}

func (c *StructureCommand) delta() int {
	if c.Delete {
		return -1
	}
	return 1
}

func (c *StructureCommand) deleted(row, col int) bool {
	if c.Axis == formula.AxisRow {
		return row == c.Index
	}
	return col == c.Index
}

func (c *StructureCommand) insertLine(s *Sheet) {
	if c.Axis == formula.AxisRow {
		if c.newID == "" {
			c.newID = uuid.NewString()
		}
		s.Raw = slices.Insert(s.Raw, c.Index, make([]string, s.Cols))
		s.RowIDs = slices.Insert(s.RowIDs, c.Index, c.newID)
		s.Rows++
		return
	}
	for i := range s.Raw {
		s.Raw[i] = slices.Insert(s.Raw[i], c.Index, "")
	}
	if len(s.Columns) > 0 && c.Index <= len(s.Columns) {
		if c.colID == "" {
			c.colID = uuid.NewString()
		}
		s.Columns = slices.Insert(s.Columns, c.Index, Column{ID: c.colID, Type: ColumnText})
	}
	s.Cols++
}

func (c *StructureCommand) deleteLine(s *Sheet) {
	if c.Axis == formula.AxisRow {
		c.removed = slices.Clone(s.Raw[c.Index])
		s.Raw = slices.Delete(s.Raw, c.Index, c.Index+1)
		s.RowIDs = slices.Delete(s.RowIDs, c.Index, c.Index+1)
		s.Rows--
		return
	}
	c.removed = make([]string, len(s.Raw))
	for i := range s.Raw {
		c.removed[i] = s.Raw[i][c.Index]
		s.Raw[i] = slices.Delete(s.Raw[i], c.Index, c.Index+1)
	}
	if c.Index < len(s.Columns) {
		s.Columns = slices.Delete(s.Columns, c.Index, c.Index+1)
	}
	s.Cols--
}

func (c *StructureCommand) removeInserted(s *Sheet) {
	if c.Axis == formula.AxisRow {
		s.Raw = slices.Delete(s.Raw, c.Index, c.Index+1)
		s.Rows--
		return
	}
	for i := range s.Raw {
		s.Raw[i] = slices.Delete(s.Raw[i], c.Index, c.Index+1)
	}
	s.Cols--
}

func (c *StructureCommand) restoreLine(s *Sheet) {
	if c.Axis == formula.AxisRow {
		s.Raw = slices.Insert(s.Raw, c.Index, slices.Clone(c.removed))
		s.Rows++
		return
	}
	for i := range s.Raw {
		s.Raw[i] = slices.Insert(s.Raw[i], c.Index, c.removed[i])
	}
	s.Cols++
}

func ensureEquals(expr string) string {
	if formula.IsFormula(expr) {
		return expr
	}
	return "=" + expr
}

// NewDeleteRowsCommand deletes several rows as one history entry. indices
// are applied in descending order so earlier deletions do not move later
// ones.
func NewDeleteRowsCommand(indices []int) *BatchCommand {
	return deleteMany("delete-rows", indices, NewDeleteRowCommand)
}

// NewDeleteColumnsCommand is NewDeleteRowsCommand for columns
func NewDeleteColumnsCommand(indices []int) *BatchCommand {
	return deleteMany("delete-columns", indices, NewDeleteColumnCommand)
}

func deleteMany(label string, indices []int, build func(int) *StructureCommand) *BatchCommand {
	sorted := slices.Clone(indices)
	slices.Sort(sorted)
	sorted = slices.Compact(sorted)
	slices.Reverse(sorted)
	cmds := make([]Command, len(sorted))
	for i, idx := range sorted {
		cmds[i] = build(idx)
	}
	return NewBatchCommand(label, cmds...)
}

// NewInsertRowsCommand inserts count empty rows at index
func NewInsertRowsCommand(index, count int) *BatchCommand {
	cmds := make([]Command, max(count, 0))
	for i := range cmds {
		cmds[i] = NewInsertRowCommand(index)
	}
	return NewBatchCommand("insert-rows", cmds...)
}
