package grid

import (
	"bytes"
	"encoding/json"
	"fmt"
	"maps"
	"slices"
	"strconv"
	"strings"

	"github.com/google/uuid"

	"github.com/vogtb/gridsync/packages/formula"
)

// Snapshot is the persisted form of a sheet. transient state (selection,
// edit buffer, history, validation errors) is not part of it.
type Snapshot struct {
	Rows           int                  `json:"rowCount"`
	Cols           int                  `json:"colCount"`
	Raw            [][]string           `json:"rawValues"`
	Values         [][]string           `json:"values"`
	Styles         map[string]CellStyle `json:"styles,omitempty"`
	Columns        []Column             `json:"columns,omitempty"`
	ColumnWidths   map[int]int          `json:"columnWidths,omitempty"`
	RowHeights     map[int]int          `json:"rowHeights,omitempty"`
	RowIDs         []string             `json:"rowIds,omitempty"`
	FiltersEnabled bool                 `json:"filtersEnabled,omitempty"`
	Filters        map[int]Filter       `json:"filters,omitempty"`
	Freeze         Freeze               `json:"freeze"`
	Comments       map[string]string    `json:"comments,omitempty"`
}

// Snapshot serializes the persisted subset of the sheet
func (s *Sheet) Snapshot() Snapshot {
	return Snapshot{
		Rows:           s.Rows,
		Cols:           s.Cols,
		Raw:            cloneGrid(s.Raw),
		Values:         cloneGrid(s.Values),
		Styles:         maps.Clone(s.Styles),
		Columns:        slices.Clone(s.Columns),
		ColumnWidths:   maps.Clone(s.ColumnWidths),
		RowHeights:     maps.Clone(s.RowHeights),
		RowIDs:         slices.Clone(s.RowIDs),
		FiltersEnabled: s.FiltersEnabled,
		Filters:        maps.Clone(s.Filters),
		Freeze:         s.Freeze,
		Comments:       maps.Clone(s.Comments),
	}
}

// Clone returns a deep copy
func (snap Snapshot) Clone() Snapshot {
	snap.Raw = cloneGrid(snap.Raw)
	snap.Values = cloneGrid(snap.Values)
	snap.Styles = maps.Clone(snap.Styles)
	snap.Columns = slices.Clone(snap.Columns)
	snap.ColumnWidths = maps.Clone(snap.ColumnWidths)
	snap.RowHeights = maps.Clone(snap.RowHeights)
	snap.RowIDs = slices.Clone(snap.RowIDs)
	snap.Filters = maps.Clone(snap.Filters)
	snap.Comments = maps.Clone(snap.Comments)
	return snap
}

// Normalize returns a copy whose grids match the declared dimensions.
// missing dimensions are taken from the raw grid, missing cells become
// empty strings and extra cells are dropped. missing or duplicate row ids
// are replaced with fresh ones and sizes are clamped.
func (snap Snapshot) Normalize() Snapshot {
	if snap.Raw == nil && snap.Values != nil {
		snap.Raw = snap.Values
	}
	rows, cols := snap.Rows, snap.Cols
	if rows <= 0 {
		rows = len(snap.Raw)
	}
	if cols <= 0 {
		for _, row := range snap.Raw {
			cols = max(cols, len(row))
		}
	}
	rows, cols = max(rows, 1), max(cols, 1)

	out := Snapshot{
		Rows:           rows,
		Cols:           cols,
		Raw:            fitGrid(snap.Raw, rows, cols),
		Values:         fitGrid(snap.Values, rows, cols),
		Styles:         map[string]CellStyle{},
		ColumnWidths:   map[int]int{},
		RowHeights:     map[int]int{},
		RowIDs:         make([]string, rows),
		FiltersEnabled: snap.FiltersEnabled,
		Filters:        map[int]Filter{},
		Freeze:         Freeze{Rows: clamp(snap.Freeze.Rows, 0, rows), Cols: clamp(snap.Freeze.Cols, 0, cols)},
		Comments:       map[string]string{},
	}
	if len(snap.Columns) > 0 {
		out.Columns = make([]Column, cols)
		copy(out.Columns, snap.Columns)
		for i := range out.Columns {
			if out.Columns[i].ID == "" {
				out.Columns[i].ID = formula.ColumnName(i)
			}
			if out.Columns[i].Type == "" {
				out.Columns[i].Type = ColumnText
			}
		}
	}
	for key, style := range snap.Styles {
		if r, c, ok := ParseCellKey(key); ok && r < rows && c < cols && !style.IsZero() {
			out.Styles[CellKey(r, c)] = style
		}
	}
	for key, text := range snap.Comments {
		if r, c, ok := ParseCellKey(key); ok && r < rows && c < cols && text != "" {
			out.Comments[CellKey(r, c)] = text
		}
	}
	for c, w := range snap.ColumnWidths {
		if c >= 0 && c < cols {
			out.ColumnWidths[c] = ClampColumnWidth(w)
		}
	}
	for r, h := range snap.RowHeights {
		if r >= 0 && r < rows {
			out.RowHeights[r] = ClampRowHeight(h)
		}
	}
	for c, f := range snap.Filters {
		if c >= 0 && c < cols && f.Validate() == nil {
			out.Filters[c] = f
		}
	}

	seen := make(map[string]bool, rows)
	for i := range out.RowIDs {
		if i < len(snap.RowIDs) && snap.RowIDs[i] != "" && !seen[snap.RowIDs[i]] {
			out.RowIDs[i] = snap.RowIDs[i]
		} else {
			out.RowIDs[i] = uuid.NewString()
		}
		seen[out.RowIDs[i]] = true
	}
	return out
}

func fitGrid(grid [][]string, rows, cols int) [][]string {
	out := emptyGrid(rows, cols)
	for r := 0; r < rows && r < len(grid); r++ {
		copy(out[r], grid[r])
	}
	return out
}

// sheetFromSnapshot builds a sheet from a normalized snapshot. validation
// errors are derived again from the raw values.
func sheetFromSnapshot(snap Snapshot, locale *formula.Locale) *Sheet {
	snap = snap.Normalize()
	s := &Sheet{
		Rows:           snap.Rows,
		Cols:           snap.Cols,
		Raw:            snap.Raw,
		Values:         snap.Values,
		Columns:        snap.Columns,
		Styles:         snap.Styles,
		ColumnWidths:   snap.ColumnWidths,
		RowHeights:     snap.RowHeights,
		RowIDs:         snap.RowIDs,
		CellErrors:     map[string]string{},
		FiltersEnabled: snap.FiltersEnabled,
		Filters:        snap.Filters,
		Freeze:         snap.Freeze,
		Comments:       snap.Comments,
		locale:         locale,
	}
	for r := range s.Raw {
		for c, raw := range s.Raw[r] {
			s.validate(r, c)
			if formula.IsFormula(raw) && strings.Contains(strings.ToUpper(raw), formula.RefErrorMarker) {
				s.CellErrors[CellKey(r, c)] = msgRefError
			}
		}
	}
	return s
}

// legacyAliases lists accepted spellings per canonical field, canonical
// first.
var legacyAliases = map[string][]string{
	"rowCount":       {"rowCount", "rows", "rowsCount"},
	"colCount":       {"colCount", "cols", "columnCount", "colsCount"},
	"rawValues":      {"rawValues", "raw", "data", "cells"},
	"values":         {"values", "displayValues"},
	"styles":         {"styles", "cellStyles"},
	"columns":        {"columns"},
	"columnWidths":   {"columnWidths", "colWidths"},
	"rowHeights":     {"rowHeights"},
	"rowIds":         {"rowIds", "row_ids", "rowIDs"},
	"filtersEnabled": {"filtersEnabled"},
	"filters":        {"filters"},
	"freeze":         {"freeze"},
	"comments":       {"comments", "cellComments", "notes"},
}

// DecodeSnapshot parses a persisted snapshot in the canonical shape or
// any accepted legacy shape and returns it normalized.
func DecodeSnapshot(data []byte) (Snapshot, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil {
		return Snapshot{}, fmt.Errorf("decode snapshot: %w", err)
	}
	if fields == nil {
		return Snapshot{}, invalidArgument("decode snapshot: null document")
	}

	pick := func(canonical string) (json.RawMessage, bool) {
		for _, name := range legacyAliases[canonical] {
			if v, ok := fields[name]; ok && !isNull(v) {
				return v, true
			}
		}
		return nil, false
	}

	var snap Snapshot
	// legacy documents used "rows" for the grid itself
	if v, ok := fields["rows"]; ok && isArray(v) {
		delete(fields, "rows")
		if _, has := pick("rawValues"); !has {
			fields["rawValues"] = v
		}
	}
	if v, ok := pick("rowCount"); ok {
		if err := json.Unmarshal(v, &snap.Rows); err != nil {
			return Snapshot{}, fmt.Errorf("decode snapshot rowCount: %w", err)
		}
	}
	if v, ok := pick("colCount"); ok {
		if err := json.Unmarshal(v, &snap.Cols); err != nil {
			return Snapshot{}, fmt.Errorf("decode snapshot colCount: %w", err)
		}
	}
	if v, ok := pick("rawValues"); ok {
		grid, err := decodeCells(v)
		if err != nil {
			return Snapshot{}, fmt.Errorf("decode snapshot rawValues: %w", err)
		}
		snap.Raw = grid
	}
	if v, ok := pick("values"); ok {
		grid, err := decodeCells(v)
		if err != nil {
			return Snapshot{}, fmt.Errorf("decode snapshot values: %w", err)
		}
		snap.Values = grid
	}

	targets := []struct {
		field string
		dst   any
	}{
		{"styles", &snap.Styles},
		{"columns", &snap.Columns},
		{"columnWidths", &snap.ColumnWidths},
		{"rowHeights", &snap.RowHeights},
		{"rowIds", &snap.RowIDs},
		{"filtersEnabled", &snap.FiltersEnabled},
		{"filters", &snap.Filters},
		{"freeze", &snap.Freeze},
		{"comments", &snap.Comments},
	}
	for _, t := range targets {
		v, ok := pick(t.field)
		if !ok {
			continue
		}
		if err := json.Unmarshal(v, t.dst); err != nil {
			return Snapshot{}, fmt.Errorf("decode snapshot %s: %w", t.field, err)
		}
	}
	if _, ok := pick("freeze"); !ok {
		for name, dst := range map[string]*int{"frozenRows": &snap.Freeze.Rows, "frozenCols": &snap.Freeze.Cols} {
			if v, ok := fields[name]; ok {
				if err := json.Unmarshal(v, dst); err != nil {
					return Snapshot{}, fmt.Errorf("decode snapshot %s: %w", name, err)
				}
			}
		}
	}
	return snap.Normalize(), nil
}

func isNull(v json.RawMessage) bool {
	return bytes.Equal(bytes.TrimSpace(v), []byte("null"))
}

func isArray(v json.RawMessage) bool {
	v = bytes.TrimSpace(v)
	return len(v) > 0 && v[0] == '['
}

// decodeCells accepts grids of strings, numbers, booleans and nulls.
func decodeCells(v json.RawMessage) ([][]string, error) {
	var rows [][]any
	dec := json.NewDecoder(bytes.NewReader(v))
	dec.UseNumber()
	if err := dec.Decode(&rows); err != nil {
		return nil, err
	}
	out := make([][]string, len(rows))
	for i, row := range rows {
		out[i] = make([]string, len(row))
		for j, cell := range row {
			out[i][j] = cellText(cell)
		}
	}
	return out, nil
}

func cellText(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case json.Number:
		return t.String()
	case bool:
		return strings.ToUpper(strconv.FormatBool(t))
	default:
		return fmt.Sprint(t)
	}
}

// MarshalJSON always writes the canonical shape
func (snap Snapshot) MarshalJSON() ([]byte, error) {
	type canonical Snapshot
	return json.Marshal(canonical(snap))
}

// UnmarshalJSON accepts legacy shapes through DecodeSnapshot
func (snap *Snapshot) UnmarshalJSON(data []byte) error {
	if isNull(data) {
		return nil
	}
	decoded, err := DecodeSnapshot(data)
	if err != nil {
		return err
	}
	*snap = decoded
	return nil
}
