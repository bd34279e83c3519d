// Itemwise - Incremental Item-Based Collaborative Filtering Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/itemwise

package cf

import "math"

// Evaluator accumulates prediction error for offline quality
// measurement. Pairs where either value is NaN are silently skipped.
type Evaluator interface {
	// Add records one predicted/actual pair.
	Add(predicted, actual float64)

	// Evaluate returns the accumulated error, 0 when nothing was
	// added.
	Evaluate() float64

	// Count returns the number of pairs that contributed.
	Count() int
}

// MAE accumulates mean absolute error.
type MAE struct {
	sum float64
	n   int
}

// NewMAE creates an empty mean-absolute-error evaluator.
func NewMAE() *MAE { return &MAE{} }

// Add records one predicted/actual pair.
func (m *MAE) Add(predicted, actual float64) {
	if math.IsNaN(predicted) || math.IsNaN(actual) {
		return
	}
	m.sum += math.Abs(predicted - actual)
	m.n++
}

// Evaluate returns the mean absolute error over the added pairs.
func (m *MAE) Evaluate() float64 {
	if m.n == 0 {
		return 0
	}
	return m.sum / float64(m.n)
}

// Count returns the number of contributing pairs.
func (m *MAE) Count() int { return m.n }

// RMSE accumulates root mean squared error.
type RMSE struct {
	sumSq float64
	n     int
}

// NewRMSE creates an empty root-mean-squared-error evaluator.
func NewRMSE() *RMSE { return &RMSE{} }

// Add records one predicted/actual pair.
func (r *RMSE) Add(predicted, actual float64) {
	if math.IsNaN(predicted) || math.IsNaN(actual) {
		return
	}
	d := predicted - actual
	r.sumSq += d * d
	r.n++
}

// Evaluate returns the root mean squared error over the added pairs.
func (r *RMSE) Evaluate() float64 {
	if r.n == 0 {
		return 0
	}
	return math.Sqrt(r.sumSq / float64(r.n))
}

// Count returns the number of contributing pairs.
func (r *RMSE) Count() int { return r.n }

// Ensure interface compliance.
var (
	_ Evaluator = (*MAE)(nil)
	_ Evaluator = (*RMSE)(nil)
)
