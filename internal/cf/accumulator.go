// Itemwise - Incremental Item-Based Collaborative Filtering Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/itemwise

package cf

// pairCell is the canonical cell address of an unordered index pair:
// Lo <= Hi always holds.
type pairCell struct {
	Lo, Hi int
}

// cell returns the canonical address for (i, j).
func cell(i, j int) pairCell {
	if i > j {
		i, j = j, i
	}
	return pairCell{Lo: i, Hi: j}
}

// Accumulator is a growable sparse symmetric matrix holding raw
// co-occurrence sums. Only the upper triangle (i <= j) is stored; Get
// and Add accept either orientation. The matrix dimension is implied by
// the item Index it is used with and grows with it.
//
// Accumulator is not safe for concurrent mutation. A single writer may
// mutate it; concurrent readers are safe only while no writer is
// active.
type Accumulator struct {
	cells map[pairCell]float64
}

// NewAccumulator creates an empty accumulator.
func NewAccumulator() *Accumulator {
	return &Accumulator{cells: make(map[pairCell]float64)}
}

// Add adds v to the cell (i, j). Adding to (j, i) is equivalent.
// Cells that sum to exactly zero are kept; sparsity tracks observed
// pairs, not current magnitude.
func (a *Accumulator) Add(i, j int, v float64) {
	a.cells[cell(i, j)] += v
}

// Set overwrites the cell (i, j) with v. Used when loading persisted
// absolute scores, where re-applying an overlapping fetch must stay
// idempotent.
func (a *Accumulator) Set(i, j int, v float64) {
	a.cells[cell(i, j)] = v
}

// Get returns the value of cell (i, j), or 0 for never-touched pairs.
func (a *Accumulator) Get(i, j int) float64 {
	return a.cells[cell(i, j)]
}

// Len returns the number of stored upper-triangle cells.
func (a *Accumulator) Len() int {
	return len(a.cells)
}

// Range calls fn for every stored cell with i <= j, stopping early if
// fn returns false. Iteration order is unspecified.
func (a *Accumulator) Range(fn func(i, j int, v float64) bool) {
	for c, v := range a.cells {
		if !fn(c.Lo, c.Hi, v) {
			return
		}
	}
}

// Merge adds every cell of other into a.
func (a *Accumulator) Merge(other *Accumulator) {
	for c, v := range other.cells {
		a.cells[c] += v
	}
}

// Reset removes all cells.
func (a *Accumulator) Reset() {
	a.cells = make(map[pairCell]float64)
}
