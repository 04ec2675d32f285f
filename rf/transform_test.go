// Copyright 2024 The booster Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package rf

import (
	"encoding/json"
	"math"
	"testing"
)

func TestLinearTransformation(t *testing.T) {
	for _, tc := range []struct {
		name  string
		tr    LinearTransformation
		x, y  float64
	}{
		{
			name: "identity",
			tr:   NewLinearTransformation(1, 0),
			x:    1.5, y: 1.5,
		},
		{
			name: "output-detector",
			tr:   NewLinearTransformation(1.0/0.035, -35.6+19.8+10.0),
			x:    1.0, y: 1.0/0.035 - 5.8,
		},
		{
			name: "input-detector",
			tr:   NewLinearTransformation(1.5/0.035, -35.6+8.9),
			x:    0.7, y: 0.7*1.5/0.035 - 26.7,
		},
	} {
		t.Run(tc.name, func(t *testing.T) {
			if got := tc.tr.Apply(tc.x); math.Abs(got-tc.y) > 1e-9 {
				t.Errorf("invalid transform: got=%v, want=%v", got, tc.y)
			}
			if got := tc.tr.Invert(tc.tr.Apply(tc.x)); math.Abs(got-tc.x) > 1e-9 {
				t.Errorf("invalid round-trip: got=%v, want=%v", got, tc.x)
			}
		})
	}
}

func TestLinearTransformationJSON(t *testing.T) {
	raw := []byte(`{"slope":28.571,"offset":-5.8}`)
	var tr LinearTransformation
	if err := json.Unmarshal(raw, &tr); err != nil {
		t.Fatalf("could not unmarshal transform: %+v", err)
	}
	if got, want := tr.Slope, 28.571; got != want {
		t.Fatalf("invalid slope: got=%v, want=%v", got, want)
	}
	if got, want := tr.Offset, -5.8; got != want {
		t.Fatalf("invalid offset: got=%v, want=%v", got, want)
	}
}
