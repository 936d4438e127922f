package grid

import (
	"fmt"
	"strings"
)

// Command is a reversible mutation of a Sheet. Undo(Do(s)) restores s
// exactly. a Do that fails leaves the sheet untouched.
type Command interface {
	Name() string
	Do(s *Sheet) error
	Undo(s *Sheet) error
}

// CellChange writes Value into the raw cell at Row, Col
type CellChange struct {
	Row   int    `json:"row"`
	Col   int    `json:"col"`
	Value string `json:"value"`
}

type prevCell struct {
	row, col int
	raw      string
	err      string
	hadErr   bool
}

// SetCellsCommand writes raw values. changes off the grid are clipped and
// changes to non-editable columns are skipped.
type SetCellsCommand struct {
	Label   string
	Changes []CellChange

	prev []prevCell
}

// NewSetCellsCommand creates a command writing changes. label names the
// gesture ("edit", "clear", "paste", ...).
func NewSetCellsCommand(label string, changes []CellChange) *SetCellsCommand {
	return &SetCellsCommand{Label: label, Changes: changes}
}

func (c *SetCellsCommand) Name() string {
	if c.Label == "" {
		return "set-cells"
	}
	return c.Label
}

func (c *SetCellsCommand) Do(s *Sheet) error {
	applicable := make([]CellChange, 0, len(c.Changes))
	blocked := 0
	for _, ch := range c.Changes {
		if !s.InBounds(ch.Row, ch.Col) {
			continue
		}
		if !s.Column(ch.Col).Editable() {
			blocked++
			continue
		}
		applicable = append(applicable, ch)
	}
	if len(applicable) == 0 && blocked > 0 {
		return ErrNotEditable
	}

	c.prev = c.prev[:0]
	for _, ch := range applicable {
		key := CellKey(ch.Row, ch.Col)
		msg, had := s.CellErrors[key]
		c.prev = append(c.prev, prevCell{row: ch.Row, col: ch.Col, raw: s.Raw[ch.Row][ch.Col], err: msg, hadErr: had})
	}
	for _, ch := range applicable {
		s.Raw[ch.Row][ch.Col] = ch.Value
		s.validate(ch.Row, ch.Col)
	}
	return nil
}

func (c *SetCellsCommand) Undo(s *Sheet) error {
	// reverse order so a cell written twice ends on its first previous value
	for i := len(c.prev) - 1; i >= 0; i-- {
		p := c.prev[i]
		if !s.InBounds(p.row, p.col) {
			return NewApplicationError(Internal, fmt.Sprintf("undo %s: cell %s is off the grid", c.Name(), CellAddr{p.row, p.col}))
		}
		s.Raw[p.row][p.col] = p.raw
		key := CellKey(p.row, p.col)
		if p.hadErr {
			s.CellErrors[key] = p.err
		} else {
			delete(s.CellErrors, key)
		}
	}
	return nil
}

// StyleChange sets the style of one cell. a zero style removes the entry.
type StyleChange struct {
	Row   int       `json:"row"`
	Col   int       `json:"col"`
	Style CellStyle `json:"style"`
}

type prevStyle struct {
	key   string
	style CellStyle
	had   bool
}

// SetStylesCommand writes cell styles
type SetStylesCommand struct {
	Changes []StyleChange

	prev []prevStyle
}

func NewSetStylesCommand(changes []StyleChange) *SetStylesCommand {
	return &SetStylesCommand{Changes: changes}
}

func (c *SetStylesCommand) Name() string { return "set-styles" }

func (c *SetStylesCommand) Do(s *Sheet) error {
	c.prev = c.prev[:0]
	for _, ch := range c.Changes {
		if !s.InBounds(ch.Row, ch.Col) {
			continue
		}
		key := CellKey(ch.Row, ch.Col)
		old, had := s.Styles[key]
		c.prev = append(c.prev, prevStyle{key: key, style: old, had: had})
		if ch.Style.IsZero() {
			delete(s.Styles, key)
		} else {
			s.Styles[key] = ch.Style
		}
	}
	return nil
}

func (c *SetStylesCommand) Undo(s *Sheet) error {
	for i := len(c.prev) - 1; i >= 0; i-- {
		p := c.prev[i]
		if p.had {
			s.Styles[p.key] = p.style
		} else {
			delete(s.Styles, p.key)
		}
	}
	return nil
}

// BatchCommand runs sub-commands in order as one history entry and undoes
// them in reverse.
type BatchCommand struct {
	Label    string
	Commands []Command
}

func NewBatchCommand(label string, cmds ...Command) *BatchCommand {
	return &BatchCommand{Label: label, Commands: cmds}
}

func (c *BatchCommand) Name() string {
	if c.Label != "" {
		return c.Label
	}
	names := make([]string, len(c.Commands))
	for i, sub := range c.Commands {
		names[i] = sub.Name()
	}
	return "batch(" + strings.Join(names, ",") + ")"
}

func (c *BatchCommand) Do(s *Sheet) error {
	for i, sub := range c.Commands {
		if err := sub.Do(s); err != nil {
			for j := i - 1; j >= 0; j-- {
				if undoErr := c.Commands[j].Undo(s); undoErr != nil {
					return fmt.Errorf("rolling back %s after %w: %v", c.Commands[j].Name(), err, undoErr)
				}
			}
			return err
		}
	}
	return nil
}

func (c *BatchCommand) Undo(s *Sheet) error {
	for i := len(c.Commands) - 1; i >= 0; i-- {
		if err := c.Commands[i].Undo(s); err != nil {
			return fmt.Errorf("undo %s: %w", c.Commands[i].Name(), err)
		}
	}
	return nil
}

// SetFiltersEnabledCommand toggles filtering
type SetFiltersEnabledCommand struct {
	Enabled bool
	prev    bool
}

func (c *SetFiltersEnabledCommand) Name() string { return "set-filters-enabled" }

func (c *SetFiltersEnabledCommand) Do(s *Sheet) error {
	c.prev = s.FiltersEnabled
	s.FiltersEnabled = c.Enabled
	return nil
}

func (c *SetFiltersEnabledCommand) Undo(s *Sheet) error {
	s.FiltersEnabled = c.prev
	return nil
}

// SetFilterCommand sets or, with a nil Filter, clears the filter of a column
type SetFilterCommand struct {
	Col    int
	Filter *Filter

	prev    Filter
	hadPrev bool
}

func (c *SetFilterCommand) Name() string { return "set-filter" }

func (c *SetFilterCommand) Do(s *Sheet) error {
	if c.Col < 0 || c.Col >= s.Cols {
		return invalidArgument("filter column %d out of range", c.Col)
	}
	if c.Filter != nil {
		if err := c.Filter.Validate(); err != nil {
			return err
		}
	}
	c.prev, c.hadPrev = s.Filters[c.Col]
	if c.Filter == nil {
		delete(s.Filters, c.Col)
	} else {
		s.Filters[c.Col] = *c.Filter
	}
	return nil
}

func (c *SetFilterCommand) Undo(s *Sheet) error {
	if c.hadPrev {
		s.Filters[c.Col] = c.prev
	} else {
		delete(s.Filters, c.Col)
	}
	return nil
}

// SetFreezeCommand sets the frozen pane counts
type SetFreezeCommand struct {
	Freeze Freeze
	prev   Freeze
}

func (c *SetFreezeCommand) Name() string { return "set-freeze" }

func (c *SetFreezeCommand) Do(s *Sheet) error {
	if c.Freeze.Rows < 0 || c.Freeze.Rows > s.Rows || c.Freeze.Cols < 0 || c.Freeze.Cols > s.Cols {
		return invalidArgument("freeze %d rows, %d cols outside a %dx%d grid", c.Freeze.Rows, c.Freeze.Cols, s.Rows, s.Cols)
	}
	c.prev = s.Freeze
	s.Freeze = c.Freeze
	return nil
}

func (c *SetFreezeCommand) Undo(s *Sheet) error {
	s.Freeze = c.prev
	return nil
}

// RenameColumnCommand changes a column title
type RenameColumnCommand struct {
	Col   int
	Title string
	prev  string
}

func (c *RenameColumnCommand) Name() string { return "rename-column" }

func (c *RenameColumnCommand) Do(s *Sheet) error {
	if c.Col < 0 || c.Col >= len(s.Columns) {
		return NewApplicationError(NotFound, fmt.Sprintf("no column definition at %d", c.Col))
	}
	c.prev = s.Columns[c.Col].Title
	s.Columns[c.Col].Title = c.Title
	return nil
}

func (c *RenameColumnCommand) Undo(s *Sheet) error {
	if c.Col >= len(s.Columns) {
		return NewApplicationError(Internal, "undo rename-column: column vanished")
	}
	s.Columns[c.Col].Title = c.prev
	return nil
}

// ResizeCommand sets a column width or row height, clamped to the bounds
type ResizeCommand struct {
	Row   bool
	Index int
	Size  int

	prev    int
	hadPrev bool
}

// NewResizeColumnCommand resizes column col to width pixels
func NewResizeColumnCommand(col, width int) *ResizeCommand {
	return &ResizeCommand{Index: col, Size: width}
}

// NewResizeRowCommand resizes row to height pixels
func NewResizeRowCommand(row, height int) *ResizeCommand {
	return &ResizeCommand{Row: true, Index: row, Size: height}
}

func (c *ResizeCommand) Name() string {
	if c.Row {
		return "resize-row"
	}
	return "resize-column"
}

func (c *ResizeCommand) target(s *Sheet) (map[int]int, int, int) {
	if c.Row {
		return s.RowHeights, s.Rows, ClampRowHeight(c.Size)
	}
	return s.ColumnWidths, s.Cols, ClampColumnWidth(c.Size)
}

func (c *ResizeCommand) Do(s *Sheet) error {
	m, limit, size := c.target(s)
	if c.Index < 0 || c.Index >= limit {
		return invalidArgument("%s: index %d out of range", c.Name(), c.Index)
	}
	c.prev, c.hadPrev = m[c.Index]
	m[c.Index] = size
	return nil
}

func (c *ResizeCommand) Undo(s *Sheet) error {
	m, _, _ := c.target(s)
	if c.hadPrev {
		m[c.Index] = c.prev
	} else {
		delete(m, c.Index)
	}
	return nil
}

// SetCommentCommand sets the comment on a cell. empty text removes it.
type SetCommentCommand struct {
	Row, Col int
	Text     string

	prev    string
	hadPrev bool
}

func (c *SetCommentCommand) Name() string { return "set-comment" }

func (c *SetCommentCommand) Do(s *Sheet) error {
	if !s.InBounds(c.Row, c.Col) {
		return NewApplicationError(OutOfRange, fmt.Sprintf("comment target %s is off the grid", CellAddr{c.Row, c.Col}))
	}
	key := CellKey(c.Row, c.Col)
	c.prev, c.hadPrev = s.Comments[key]
	if c.Text == "" {
		delete(s.Comments, key)
	} else {
		s.Comments[key] = c.Text
	}
	return nil
}

func (c *SetCommentCommand) Undo(s *Sheet) error {
	key := CellKey(c.Row, c.Col)
	if c.hadPrev {
		s.Comments[key] = c.prev
	} else {
		delete(s.Comments, key)
	}
	return nil
}
