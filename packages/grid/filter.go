package grid

import (
	"slices"
	"strings"

	"golang.org/x/text/collate"
)

// FilterOp is a per-column predicate
type FilterOp string

const (
	FilterContains  FilterOp = "contains"
	FilterEquals    FilterOp = "equals"
	FilterNotEquals FilterOp = "notEquals"
	FilterGreater   FilterOp = "gt"
	FilterLess      FilterOp = "lt"
	FilterEmpty     FilterOp = "empty"
	FilterNotEmpty  FilterOp = "notEmpty"
)

var filterOps = []FilterOp{FilterContains, FilterEquals, FilterNotEquals, FilterGreater, FilterLess, FilterEmpty, FilterNotEmpty}

// Filter keeps rows whose display value in the filtered column satisfies Op
type Filter struct {
	Op    FilterOp `json:"op"`
	Value string   `json:"value,omitempty"`
}

// Validate rejects unknown operators
func (f Filter) Validate() error {
	if !slices.Contains(filterOps, f.Op) {
		return invalidArgument("unknown filter operator %q", f.Op)
	}
	return nil
}

type filterMatcher struct {
	sheet    *Sheet
	collator *collate.Collator
}

func (m *filterMatcher) match(f Filter, cell string) bool {
	cell = strings.TrimSpace(cell)
	switch f.Op {
	case FilterEmpty:
		return cell == ""
	case FilterNotEmpty:
		return cell != ""
	case FilterContains:
		return strings.Contains(strings.ToLower(cell), strings.ToLower(f.Value))
	case FilterEquals:
		return m.collator.CompareString(cell, strings.TrimSpace(f.Value)) == 0
	case FilterNotEquals:
		return m.collator.CompareString(cell, strings.TrimSpace(f.Value)) != 0
	case FilterGreater, FilterLess:
		loc := m.sheet.Locale()
		a, okA := loc.ParseNumber(cell)
		b, okB := loc.ParseNumber(f.Value)
		if !okA || !okB {
			return false
		}
		if f.Op == FilterGreater {
			return a > b
		}
		return a < b
	}
	return true
}

// VisibleRows returns the row indices that pass every filter, in order.
// with filtering disabled every row is visible.
func (s *Sheet) VisibleRows() []int {
	rows := make([]int, 0, s.Rows)
	if !s.FiltersEnabled || len(s.Filters) == 0 {
		for r := 0; r < s.Rows; r++ {
			rows = append(rows, r)
		}
		return rows
	}
	m := &filterMatcher{sheet: s, collator: s.Locale().NewCollator()}
	cols := make([]int, 0, len(s.Filters))
	for col := range s.Filters {
		cols = append(cols, col)
	}
	slices.Sort(cols)

	for r := 0; r < s.Rows; r++ {
		visible := true
		for _, col := range cols {
			if !m.match(s.Filters[col], s.Value(r, col)) {
				visible = false
				break
			}
		}
		if visible {
			rows = append(rows, r)
		}
	}
	return rows
}
