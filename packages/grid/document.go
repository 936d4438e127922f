package grid

import (
	"log/slog"
	"sync"

	"github.com/vogtb/gridsync/packages/formula"
)

// DefaultHistoryLimit bounds the undo stack
const DefaultHistoryLimit = 200

// ChangeKind tells listeners how the document changed
type ChangeKind string

const (
	ChangeCommit  ChangeKind = "commit"
	ChangeUndo    ChangeKind = "undo"
	ChangeRedo    ChangeKind = "redo"
	ChangeHydrate ChangeKind = "hydrate"
)

// Change is delivered to commit listeners after the document mutex is
// released.
type Change struct {
	Kind    ChangeKind
	Command string
	Version int64
}

// EditState is the transient single-cell edit buffer
type EditState struct {
	Editing bool
	Cell    CellAddr
	Value   string
}

type clipboardOrigin struct {
	text   string
	origin CellAddr
}

// Document owns a sheet and is the only path through which it changes.
// it is safe for concurrent use; listeners run outside the lock.
type Document struct {
	mu sync.Mutex

	sheet      *Sheet
	engine     *formula.Engine
	locale     *formula.Locale
	logger     *slog.Logger
	undo       []Command
	redo       []Command
	limit      int
	version    int64
	readOnly   bool
	edit       EditState
	clip       *clipboardOrigin
	listeners  map[int]func(Change)
	editSubs   map[int]func(EditState)
	nextListen int
}

// Option configures a Document
type Option func(*Document)

// WithLocale sets the locale used to parse and display numbers
func WithLocale(l *formula.Locale) Option {
	return func(d *Document) {
		if l != nil {
			d.locale = l
		}
	}
}

// WithEngine shares a formula engine, and so its formula cache, between
// documents.
func WithEngine(e *formula.Engine) Option {
	return func(d *Document) {
		if e != nil {
			d.engine = e
		}
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(d *Document) {
		if logger != nil {
			d.logger = logger
		}
	}
}

// WithHistoryLimit bounds the undo stack. zero or less means unbounded.
func WithHistoryLimit(n int) Option {
	return func(d *Document) {
		d.limit = n
	}
}

func newDocument(opts []Option) *Document {
	d := &Document{
		locale:    formula.DefaultLocale,
		logger:    slog.Default(),
		limit:     DefaultHistoryLimit,
		listeners: map[int]func(Change){},
		editSubs:  map[int]func(EditState){},
	}
	for _, opt := range opts {
		opt(d)
	}
	if d.engine == nil {
		d.engine = formula.NewEngine(nil)
	}
	return d
}

// NewDocument creates an empty rows x cols document
func NewDocument(rows, cols int, opts ...Option) *Document {
	d := newDocument(opts)
	d.sheet = NewSheet(rows, cols)
	d.sheet.locale = d.locale
	d.sheet.Recompute(d.engine)
	return d
}

// NewDocumentFromSnapshot creates a document hydrated from snap
func NewDocumentFromSnapshot(snap Snapshot, opts ...Option) *Document {
	d := newDocument(opts)
	d.sheet = sheetFromSnapshot(snap, d.locale)
	d.sheet.Recompute(d.engine)
	return d
}

// Locale returns the document locale
func (d *Document) Locale() *formula.Locale {
	return d.locale
}

// Sheet returns a copy of the current sheet.
func (d *Document) Sheet() *Sheet {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.sheet.Clone()
}

// View runs fn with the live sheet under the document lock. fn must not
// keep the pointer or mutate the sheet.
func (d *Document) View(fn func(*Sheet)) {
	d.mu.Lock()
	defer d.mu.Unlock()
	fn(d.sheet)
}

// Snapshot returns the persisted form of the current state
func (d *Document) Snapshot() Snapshot {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.sheet.Snapshot()
}

// VersionedSnapshot returns the snapshot together with the version it
// reflects, read under one lock.
func (d *Document) VersionedSnapshot() (Snapshot, int64) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.sheet.Snapshot(), d.version
}

// Version counts committed local changes, including undo and redo.
func (d *Document) Version() int64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.version
}

func (d *Document) CanUndo() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.undo) > 0
}

func (d *Document) CanRedo() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.redo) > 0
}

// ReadOnly reports whether mutating commands are rejected
func (d *Document) ReadOnly() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.readOnly
}

// SetReadOnly switches read-only mode. entering it discards an open edit.
func (d *Document) SetReadOnly(readOnly bool) {
	d.mu.Lock()
	d.readOnly = readOnly
	closed := false
	if readOnly && d.edit.Editing {
		d.edit = EditState{}
		closed = true
	}
	d.mu.Unlock()
	if closed {
		d.notifyEdit(EditState{})
	}
}

// Execute runs cmd, records it for undo and bumps the version.
func (d *Document) Execute(cmd Command) error {
	d.mu.Lock()
	change, err := d.executeLocked(cmd)
	d.mu.Unlock()
	if err != nil {
		return err
	}
	d.notify(change)
	return nil
}

func (d *Document) executeLocked(cmd Command) (Change, error) {
	if d.readOnly {
		return Change{}, ErrReadOnly
	}
	if err := cmd.Do(d.sheet); err != nil {
		d.logger.Debug("command rejected", "command", cmd.Name(), "error", err)
		return Change{}, err
	}
	d.undo = append(d.undo, cmd)
	if d.limit > 0 && len(d.undo) > d.limit {
		d.undo = d.undo[len(d.undo)-d.limit:]
	}
	d.redo = nil
	return d.commitLocked(ChangeCommit, cmd), nil
}

func (d *Document) commitLocked(kind ChangeKind, cmd Command) Change {
	d.version++
	d.sheet.Recompute(d.engine)
	return Change{Kind: kind, Command: cmd.Name(), Version: d.version}
}

// Undo reverses the most recent local command
func (d *Document) Undo() error {
	d.mu.Lock()
	if d.readOnly {
		d.mu.Unlock()
		return ErrReadOnly
	}
	if len(d.undo) == 0 {
		d.mu.Unlock()
		return ErrNothingToUndo
	}
	cmd := d.undo[len(d.undo)-1]
	if err := cmd.Undo(d.sheet); err != nil {
		d.mu.Unlock()
		return err
	}
	d.undo = d.undo[:len(d.undo)-1]
	d.redo = append(d.redo, cmd)
	change := d.commitLocked(ChangeUndo, cmd)
	d.mu.Unlock()

	d.notify(change)
	return nil
}

// Redo reapplies the most recently undone command
func (d *Document) Redo() error {
	d.mu.Lock()
	if d.readOnly {
		d.mu.Unlock()
		return ErrReadOnly
	}
	if len(d.redo) == 0 {
		d.mu.Unlock()
		return ErrNothingToRedo
	}
	cmd := d.redo[len(d.redo)-1]
	if err := cmd.Do(d.sheet); err != nil {
		d.mu.Unlock()
		return err
	}
	d.redo = d.redo[:len(d.redo)-1]
	d.undo = append(d.undo, cmd)
	change := d.commitLocked(ChangeRedo, cmd)
	d.mu.Unlock()

	d.notify(change)
	return nil
}

// Hydrate replaces the document state with snap. history and the edit
// buffer are cleared and the version is left alone: hydration is not a
// local change.
func (d *Document) Hydrate(snap Snapshot) {
	d.mu.Lock()
	sheet := sheetFromSnapshot(snap, d.locale)
	sheet.Active = sheet.Clamp(d.sheet.Active)
	sheet.Anchor = sheet.Clamp(d.sheet.Anchor)
	sheet.Selection = Range{Start: sheet.Clamp(d.sheet.Selection.Start), End: sheet.Clamp(d.sheet.Selection.End)}
	sheet.Recompute(d.engine)
	d.sheet = sheet
	d.undo = nil
	d.redo = nil
	hadEdit := d.edit.Editing
	d.edit = EditState{}
	change := Change{Kind: ChangeHydrate, Version: d.version}
	d.mu.Unlock()

	if hadEdit {
		d.notifyEdit(EditState{})
	}
	d.notify(change)
}

// SetCell writes one raw value as an edit command
func (d *Document) SetCell(row, col int, value string) error {
	return d.Execute(NewSetCellsCommand("edit", []CellChange{{Row: row, Col: col, Value: value}}))
}

// ClearSelection empties every editable cell of the selection
func (d *Document) ClearSelection() error {
	d.mu.Lock()
	sel := d.sheet.Selection.Normalized()
	var changes []CellChange
	for r := sel.Start.Row; r <= sel.End.Row; r++ {
		for c := sel.Start.Col; c <= sel.End.Col; c++ {
			if d.sheet.Editable(r, c) && d.sheet.Cell(r, c) != "" {
				changes = append(changes, CellChange{Row: r, Col: c})
			}
		}
	}
	d.mu.Unlock()
	if len(changes) == 0 {
		return nil
	}
	return d.Execute(NewSetCellsCommand("clear", changes))
}

// Select moves the selection. it is not a command and does not touch
// history or the version.
func (d *Document) Select(sel Range) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.sheet.Selection = Range{Start: d.sheet.Clamp(sel.Start), End: d.sheet.Clamp(sel.End)}
	d.sheet.Anchor = d.sheet.Selection.Start
	d.sheet.Active = d.sheet.Selection.Start
}

// SetActive moves the active cell and collapses the selection onto it
func (d *Document) SetActive(a CellAddr) {
	d.Select(Range{Start: a, End: a})
}

// BeginEdit opens the edit buffer on a cell with its raw value
func (d *Document) BeginEdit(row, col int) error {
	d.mu.Lock()
	if d.readOnly {
		d.mu.Unlock()
		return ErrReadOnly
	}
	if !d.sheet.Editable(row, col) {
		d.mu.Unlock()
		return ErrNotEditable
	}
	d.edit = EditState{Editing: true, Cell: CellAddr{row, col}, Value: d.sheet.Cell(row, col)}
	d.sheet.Active = CellAddr{row, col}
	state := d.edit
	d.mu.Unlock()

	d.notifyEdit(state)
	return nil
}

// UpdateEdit replaces the edit buffer text. it is a no-op without an open edit.
func (d *Document) UpdateEdit(value string) {
	d.mu.Lock()
	if !d.edit.Editing {
		d.mu.Unlock()
		return
	}
	d.edit.Value = value
	state := d.edit
	d.mu.Unlock()

	d.notifyEdit(state)
}

// CommitEdit writes the edit buffer as one command and closes it. an
// unchanged value closes the buffer without a command.
func (d *Document) CommitEdit() error {
	d.mu.Lock()
	if !d.edit.Editing {
		d.mu.Unlock()
		return nil
	}
	state := d.edit
	d.edit = EditState{}
	var (
		change Change
		err    error
		commit = d.sheet.Cell(state.Cell.Row, state.Cell.Col) != state.Value
	)
	if commit {
		change, err = d.executeLocked(NewSetCellsCommand("edit", []CellChange{{Row: state.Cell.Row, Col: state.Cell.Col, Value: state.Value}}))
	}
	d.mu.Unlock()

	d.notifyEdit(EditState{})
	if err != nil {
		return err
	}
	if commit {
		d.notify(change)
	}
	return nil
}

// CancelEdit discards the edit buffer
func (d *Document) CancelEdit() {
	d.mu.Lock()
	was := d.edit.Editing
	d.edit = EditState{}
	d.mu.Unlock()
	if was {
		d.notifyEdit(EditState{})
	}
}

// Edit returns the edit buffer
func (d *Document) Edit() EditState {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.edit
}

// IsEditing reports whether the edit buffer is open
func (d *Document) IsEditing() bool {
	return d.Edit().Editing
}

// Copy serializes the current selection and remembers it so a paste of
// the same text into this document shifts its formulas.
func (d *Document) Copy() string {
	d.mu.Lock()
	defer d.mu.Unlock()
	sel := d.sheet.Selection.Normalized()
	text := CopyText(d.sheet, sel)
	d.clip = &clipboardOrigin{text: text, origin: sel.Start}
	return text
}

// Paste writes clipboard text at `at`. formulas are shifted by the
// distance from the copy origin when text is this document's own last
// copy and pasted verbatim otherwise.
func (d *Document) Paste(at CellAddr, text string) error {
	matrix := ParseClipboard(text)
	if len(matrix) == 0 {
		return nil
	}
	d.mu.Lock()
	if d.readOnly {
		d.mu.Unlock()
		return ErrReadOnly
	}
	shift := d.clip != nil && d.clip.text == text
	var dRow, dCol int
	if shift {
		dRow, dCol = at.Row-d.clip.origin.Row, at.Col-d.clip.origin.Col
	}
	changes := PasteChanges(d.sheet, at, matrix, dRow, dCol, shift)
	if len(changes) == 0 {
		d.mu.Unlock()
		return nil
	}
	change, err := d.executeLocked(NewSetCellsCommand("paste", changes))
	d.mu.Unlock()
	if err != nil {
		return err
	}
	d.notify(change)
	return nil
}

// Fill drag-fills target from source as one command
func (d *Document) Fill(source, target Range) (FillMode, error) {
	d.mu.Lock()
	plan, err := PlanFill(d.sheet, source, target)
	if err != nil {
		d.mu.Unlock()
		return FillCopy, err
	}
	change, err := d.executeLocked(plan.Command())
	d.mu.Unlock()
	if err != nil {
		return plan.Mode, err
	}
	d.notify(change)
	return plan.Mode, nil
}

// Subscribe registers a commit listener and returns its cancel func.
func (d *Document) Subscribe(fn func(Change)) func() {
	d.mu.Lock()
	defer d.mu.Unlock()
	id := d.nextListen
	d.nextListen++
	d.listeners[id] = fn
	return func() {
		d.mu.Lock()
		defer d.mu.Unlock()
		delete(d.listeners, id)
	}
}

// SubscribeEdits registers an edit-buffer listener
func (d *Document) SubscribeEdits(fn func(EditState)) func() {
	d.mu.Lock()
	defer d.mu.Unlock()
	id := d.nextListen
	d.nextListen++
	d.editSubs[id] = fn
	return func() {
		d.mu.Lock()
		defer d.mu.Unlock()
		delete(d.editSubs, id)
	}
}

func (d *Document) notify(change Change) {
	d.mu.Lock()
	fns := make([]func(Change), 0, len(d.listeners))
	for _, fn := range d.listeners {
		fns = append(fns, fn)
	}
	d.mu.Unlock()
	for _, fn := range fns {
		fn(change)
	}
}

func (d *Document) notifyEdit(state EditState) {
	d.mu.Lock()
	fns := make([]func(EditState), 0, len(d.editSubs))
	for _, fn := range d.editSubs {
		fns = append(fns, fn)
	}
	d.mu.Unlock()
	for _, fn := range fns {
		fn(state)
	}
}
