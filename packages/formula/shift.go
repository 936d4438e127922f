package formula

import "strings"

// Axis selects rows or columns for structural rewrites
type Axis int

const (
	AxisRow Axis = iota
	AxisColumn
)

func (a Axis) String() string {
	if a == AxisColumn {
		return "column"
	}
	return "row"
}

// coord reads the axis component of a reference
func (a Axis) coord(ref CellRef) int {
	if a == AxisColumn {
		return ref.Col
	}
	return ref.Row
}

func (a Axis) with(ref CellRef, v int) CellRef {
	if a == AxisColumn {
		ref.Col = v
	} else {
		ref.Row = v
	}
	return ref
}

// refRewriter maps a single reference to its new text. ok=false turns the
// reference into #REF!.
type refRewriter struct {
	cell  func(ref CellRef) (CellRef, bool)
	rng   func(start, end CellRef) (CellRef, CellRef, bool)
	dirty bool
}

// ShiftForInsert rewrites references after a row or column was inserted
// at index: references at or after it move by one, ranges spanning it grow.
func ShiftForInsert(formula string, axis Axis, index int) string {
	bump := func(ref CellRef) CellRef {
		if c := axis.coord(ref); c >= index {
			return axis.with(ref, c+1)
		}
		return ref
	}
	return rewriteRefs(formula, &refRewriter{
		cell: func(ref CellRef) (CellRef, bool) {
			return bump(ref), true
		},
		rng: func(start, end CellRef) (CellRef, CellRef, bool) {
			return bump(start), bump(end), true
		},
	})
}

// ShiftForDelete rewrites references after the row or column at index was
// deleted. a reference to index becomes #REF!, later ones move back by
// one. ranges containing index shrink, and a range that would become
// empty becomes #REF!.
func ShiftForDelete(formula string, axis Axis, index int) string {
	return rewriteRefs(formula, &refRewriter{
		cell: func(ref CellRef) (CellRef, bool) {
			c := axis.coord(ref)
			switch {
			case c == index:
				return ref, false
			case c > index:
				return axis.with(ref, c-1), true
			default:
				return ref, true
			}
		},
		rng: func(start, end CellRef) (CellRef, CellRef, bool) {
			s, e := axis.coord(start), axis.coord(end)
			lo, hi := min(s, e), max(s, e)
			if lo == index && hi == index {
				return start, end, false
			}
			// the low corner stays when it sits on the deleted index,
			// the high corner always moves back once the index is at or
			// below it.
			move := func(ref CellRef, c int, isHigh bool) CellRef {
				if c > index || (isHigh && c == index) {
					return axis.with(ref, c-1)
				}
				return ref
			}
			startHigh := s > e
			return move(start, s, startHigh), move(end, e, !startHigh), true
		},
	})
}

// ShiftByOffset moves every reference by the given delta, as when a
// formula is pasted or filled into another cell. a reference shifted off
// the top or left edge becomes #REF!.
func ShiftByOffset(formula string, dRow, dCol int) string {
	if dRow == 0 && dCol == 0 {
		return formula
	}
	move := func(ref CellRef) (CellRef, bool) {
		ref.Row += dRow
		ref.Col += dCol
		return ref, ref.Row >= 0 && ref.Col >= 0
	}
	return rewriteRefs(formula, &refRewriter{
		cell: move,
		rng: func(start, end CellRef) (CellRef, CellRef, bool) {
			s, okStart := move(start)
			e, okEnd := move(end)
			return s, e, okStart && okEnd
		},
	})
}

// IntroducedRefError reports whether a rewrite produced a #REF! that the
// original formula did not have
func IntroducedRefError(before, after string) bool {
	return strings.Count(after, RefErrorMarker) > strings.Count(before, RefErrorMarker)
}

// HasAbsoluteMarker reports whether a formula opts out of rewriting
func HasAbsoluteMarker(formula string) bool {
	return strings.ContainsRune(formula, charDollar)
}

// rewriteRefs replaces cell and range tokens in formula, leaving every
// other character untouched. formulas with an absolute marker, non
// formulas and formulas that fail to tokenize are returned as they are.
func rewriteRefs(formula string, rw *refRewriter) string {
	if !IsFormula(formula) || HasAbsoluteMarker(formula) {
		return formula
	}

	lexer := NewLexer(formula)
	tokens, lexErrors := lexer.Tokenize()
	if len(lexErrors) > 0 {
		return formula
	}
	runes := lexer.Runes()

	var b strings.Builder
	last := 0
	for _, tok := range tokens {
		var replacement string
		switch tok.Type {
		case TokenCell:
			ref, err := ParseCellRef(tok.Value)
			if err != nil {
				continue
			}
			next, ok := rw.cell(ref)
			if ok && next == ref {
				continue
			}
			if ok {
				replacement = next.String()
			} else {
				replacement = RefErrorMarker
			}
		case TokenRange:
			start, end, err := ParseRangeRef(tok.Value)
			if err != nil {
				continue
			}
			s, e, ok := rw.rng(start, end)
			if ok && s == start && e == end {
				continue
			}
			if ok {
				replacement = s.String() + ":" + e.String()
			} else {
				replacement = RefErrorMarker
			}
		default:
			continue
		}
		rw.dirty = true
		b.WriteString(string(runes[last:tok.Pos]))
		b.WriteString(replacement)
		last = tok.End
	}
	if !rw.dirty {
		return formula
	}
	b.WriteString(string(runes[last:]))
	return b.String()
}
