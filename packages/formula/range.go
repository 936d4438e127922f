package formula

import "iter"

// RangeAddress is a normalized rectangle of cells, zero-based and inclusive
type RangeAddress struct {
	StartRow    int
	StartColumn int
	EndRow      int
	EndColumn   int
}

// Contains reports whether the cell lies inside the rectangle
func (a RangeAddress) Contains(row, col int) bool {
	return row >= a.StartRow && row <= a.EndRow && col >= a.StartColumn && col <= a.EndColumn
}

// Range represents a lazy range type for memory-efficient formula evaluation
type Range interface {
	GetBounds() RangeAddress
	IterateValues() iter.Seq[Primitive]
}

// CellRange implements Range by reading values through an EvalContext
type CellRange struct {
	bounds RangeAddress
	ctx    EvalContext
}

// GetBounds returns the range boundaries
func (r *CellRange) GetBounds() RangeAddress {
	return r.bounds
}

// IterateValues returns an iterator over cell values in row-major order
func (r *CellRange) IterateValues() iter.Seq[Primitive] {
	return func(yield func(Primitive) bool) {
		if r.ctx == nil {
			return
		}
		for row := r.bounds.StartRow; row <= r.bounds.EndRow; row++ {
			for col := r.bounds.StartColumn; col <= r.bounds.EndColumn; col++ {
				if !yield(r.ctx.CellValue(row, col)) {
					return
				}
			}
		}
	}
}
