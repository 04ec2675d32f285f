// Copyright 2024 The booster Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package rf

// LinearTransformation converts raw analog readings into calibrated
// physical units (and back) through an affine mapping:
//
//	y = slope*x + offset
//
// Transformations are immutable values: a property write replaces both
// fields wholesale, partial updates are not supported.
type LinearTransformation struct {
	Slope  float64 `json:"slope"`
	Offset float64 `json:"offset"`
}

// NewLinearTransformation returns the transformation y = slope*x + offset.
func NewLinearTransformation(slope, offset float64) LinearTransformation {
	return LinearTransformation{Slope: slope, Offset: offset}
}

// Apply maps a raw reading x into the calibrated unit.
func (t LinearTransformation) Apply(x float64) float64 {
	return t.Slope*x + t.Offset
}

// Invert maps a calibrated value y back into the raw domain.
func (t LinearTransformation) Invert(y float64) float64 {
	return (y - t.Offset) / t.Slope
}
