package grid

import (
	"github.com/vogtb/gridsync/packages/formula"
)

// FillMode is how a drag-fill derives target values
type FillMode int

const (
	FillCopy FillMode = iota
	FillSeries
)

func (m FillMode) String() string {
	if m == FillSeries {
		return "series"
	}
	return "copy"
}

// FillPlan is the outcome of planning a drag-fill
type FillPlan struct {
	Mode   FillMode
	Values []CellChange
	Styles []StyleChange
}

// Command wraps the plan as one history entry: values, then styles.
func (p FillPlan) Command() Command {
	return NewBatchCommand("fill", NewSetCellsCommand("fill", p.Values), NewSetStylesCommand(p.Styles))
}

// detectSeries reports the first value and per-row step when the source
// is a single column of two or more rows whose first and last raw values
// are numbers.
func detectSeries(s *Sheet, src Range) (first, step float64, ok bool) {
	if src.Width() != 1 || src.Height() < 2 {
		return 0, 0, false
	}
	loc := s.Locale()
	first, okFirst := loc.ParseNumber(s.Cell(src.Start.Row, src.Start.Col))
	last, okLast := loc.ParseNumber(s.Cell(src.End.Row, src.Start.Col))
	if !okFirst || !okLast {
		return 0, 0, false
	}
	return first, (last - first) / float64(src.Height()-1), true
}

func wrap(v, n int) int {
	return ((v % n) + n) % n
}

// PlanFill derives the changes that fill target from source. target is
// expected to contain source; cells of target outside source are filled.
// computed columns are never filled.
func PlanFill(s *Sheet, source, target Range) (FillPlan, error) {
	src := source.Normalized()
	tgt := target.Normalized()
	if !s.InBounds(src.Start.Row, src.Start.Col) || !s.InBounds(src.End.Row, src.End.Col) {
		return FillPlan{}, NewApplicationError(OutOfRange, "fill source "+src.String()+" is off the grid")
	}
	if !tgt.Contains(src.Start.Row, src.Start.Col) || !tgt.Contains(src.End.Row, src.End.Col) {
		return FillPlan{}, invalidArgument("fill target %s does not extend source %s", tgt, src)
	}

	plan := FillPlan{Mode: FillCopy}
	first, step, series := detectSeries(s, src)
	if series {
		plan.Mode = FillSeries
	}
	loc := s.Locale()
	h, w := src.Height(), src.Width()

	for r := max(tgt.Start.Row, 0); r <= min(tgt.End.Row, s.Rows-1); r++ {
		for c := max(tgt.Start.Col, 0); c <= min(tgt.End.Col, s.Cols-1); c++ {
			if src.Contains(r, c) || s.Column(c).Computed() {
				continue
			}
			sr := src.Start.Row + wrap(r-src.Start.Row, h)
			sc := src.Start.Col + wrap(c-src.Start.Col, w)

			var value string
			if series && (r < src.Start.Row || r > src.End.Row) {
				value = loc.FormatPlain(first + step*float64(r-src.Start.Row))
			} else {
				value = s.Cell(sr, sc)
				if formula.IsFormula(value) {
					value = formula.ShiftByOffset(value, r-sr, c-sc)
				}
			}
			plan.Values = append(plan.Values, CellChange{Row: r, Col: c, Value: value})

			srcStyle := s.Style(sr, sc)
			dst := s.Style(r, c)
			if dst.NumberFormat != formula.FormatPlain && dst.NumberFormat != srcStyle.NumberFormat {
				continue
			}
			if srcStyle != dst {
				plan.Styles = append(plan.Styles, StyleChange{Row: r, Col: c, Style: srcStyle})
			}
		}
	}
	if len(plan.Values) == 0 {
		return FillPlan{}, invalidArgument("fill target %s adds no fillable cells to %s", tgt, src)
	}
	return plan, nil
}
