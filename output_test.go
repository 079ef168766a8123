/*
Copyright © 2025 the EMC2 authors.
This file is part of EMC2.

EMC2 is free software: you can redistribute it and/or modify
it under the terms of the GNU General Public License as published by
the Free Software Foundation, either version 3 of the License, or
(at your option) any later version.

EMC2 is distributed in the hope that it will be useful,
but WITHOUT ANY WARRANTY; without even the implied warranty of
MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
GNU General Public License for more details.

You should have received a copy of the GNU General Public License
along with EMC2.  If not, see <http://www.gnu.org/licenses/>.
*/
package emc2

import (
	"errors"
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/Knetic/govaluate"
	"github.com/ctessum/sparse"
	"gonum.org/v1/gonum/floats/scalar"
)

// outputModel returns a model with subcolumns and a column-only
// variable.
func outputModel(t *testing.T) *Model {
	m := newTestModel(t, 2)
	cfg := testConfig()
	cfg.SubcolGenOnly = true
	if _, err := MakeSimulatedData(m, mustInstrument(t, "KAZR"), 4, cfg); err != nil {
		t.Fatal(err)
	}
	sfc := sparse.ZerosDense(2)
	sfc.Elements[0], sfc.Elements[1] = 1, 2
	if err := m.AddVariable("surface", []string{m.ColumnDim}, "surface", "", sfc); err != nil {
		t.Fatal(err)
	}
	return m
}

func TestOutputterResults(t *testing.T) {
	m := outputModel(t)
	q := SubQName("cl", Stratiform)
	o, err := NewOutputter("", map[string]string{
		"T_C":     "temperature - 273.15",
		"T_K":     "T_C + 273.15",
		"qT":      q + " * temperature",
		"warm":    "temperature > 273.15",
		"zdb":     "dBZ(" + q + ")",
		"doubled": "double(height)",
	}, map[string]govaluate.ExpressionFunction{
		"double": func(arg ...interface{}) (interface{}, error) { return arg[0].(float64) * 2, nil },
	})
	if err != nil {
		t.Fatal(err)
	}
	r, err := o.Results(m)
	if err != nil {
		t.Fatal(err)
	}
	temp := m.Data["temperature"]
	height := m.Data["height"].Data
	for i, tk := range temp.Data.Elements {
		if !scalar.EqualWithinAbs(r["T_K"].Data.Elements[i], tk, 1e-9) {
			t.Errorf("T_K[%d] = %g, want %g", i, r["T_K"].Data.Elements[i], tk)
		}
		want := 0.
		if tk > 273.15 {
			want = 1
		}
		if r["warm"].Data.Elements[i] != want {
			t.Errorf("warm[%d] = %g", i, r["warm"].Data.Elements[i])
		}
		if r["doubled"].Data.Elements[i] != 2*height.Elements[i] {
			t.Errorf("doubled[%d] = %g", i, r["doubled"].Data.Elements[i])
		}
	}
	if !sameStrings(r["T_C"].Dims, temp.Dims) {
		t.Errorf("T_C dims %v", r["T_C"].Dims)
	}

	qv := m.Data[q]
	qT := r["qT"]
	if !sameStrings(qT.Dims, qv.Dims) || !sameInts(qT.Data.Shape, qv.Data.Shape) {
		t.Fatalf("qT has dims %v and shape %v", qT.Dims, qT.Data.Shape)
	}
	for s := 0; s < m.NumSubcolumns; s++ {
		for c := 0; c < m.NumColumns; c++ {
			for k := 0; k < m.NumLevels; k++ {
				si := m.subIndex(s, c, k)
				want := qv.Data.Elements[si] * temp.Data.Elements[m.gridIndex(c, k)]
				if qT.Data.Elements[si] != want {
					t.Fatalf("qT[%d] = %g, want %g", si, qT.Data.Elements[si], want)
				}
				z := r["zdb"].Data.Elements[si]
				if (qv.Data.Elements[si] == 0) != math.IsNaN(z) {
					t.Fatalf("dBZ of %g is %g", qv.Data.Elements[si], z)
				}
			}
		}
	}
}

func TestOutputterErrors(t *testing.T) {
	m := outputModel(t)
	tests := []struct {
		name string
		vars map[string]string
		want error
	}{
		{"cycle", map[string]string{"a": "b + 1", "b": "a * 2"}, ErrConfiguration},
		{"self", map[string]string{"a": "a + 1"}, ErrConfiguration},
		{"undefined", map[string]string{"x": "nosuch * 2"}, ErrConfiguration},
		{"constant", map[string]string{"c": "1 + 2"}, ErrConfiguration},
		{"dims", map[string]string{"x": "surface * height"}, ErrConsistency},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			o, err := NewOutputter("", test.vars, nil)
			if err != nil {
				t.Fatal(err)
			}
			if _, err := o.Results(m); !errors.Is(err, test.want) {
				t.Errorf("have error %v, want %v", err, test.want)
			}
		})
	}
	if _, err := NewOutputter("", map[string]string{"x": "height +"}, nil); err == nil {
		t.Error("malformed expression should fail")
	}
}

func TestOutput(t *testing.T) {
	m := outputModel(t)
	path := filepath.Join(t.TempDir(), "out.nc")
	o, err := NewOutputter(path, map[string]string{"T_C": "temperature - 273.15"}, nil)
	if err != nil {
		t.Fatal(err)
	}
	if err := o.Output(m); err != nil {
		t.Fatal(err)
	}
	f, err := os.Open(path)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	out, err := LoadModel(f)
	if err != nil {
		t.Fatal(err)
	}
	if len(out.Data) != 1 {
		t.Errorf("output has %d variables", len(out.Data))
	}
	tc, err := out.Variable("T_C")
	if err != nil {
		t.Fatal(err)
	}
	if !scalar.EqualWithinAbs(tc.Data.Elements[0], m.Data["temperature"].Data.Elements[0]-273.15, 1e-9) {
		t.Errorf("T_C[0] = %g", tc.Data.Elements[0])
	}
	if out.NumSubcolumns != m.NumSubcolumns || out.Attributes["emc2_instrument"] != m.Attributes["emc2_instrument"] {
		t.Error("output metadata was not kept")
	}

	// With no expressions every model variable is written.
	all, err := NewOutputter(path, nil, nil)
	if err != nil {
		t.Fatal(err)
	}
	if err := all.Output(m); err != nil {
		t.Fatal(err)
	}
	f2, err := os.Open(path)
	if err != nil {
		t.Fatal(err)
	}
	defer f2.Close()
	out2, err := LoadModel(f2)
	if err != nil {
		t.Fatal(err)
	}
	if len(out2.Data) != len(m.Data) {
		t.Errorf("wrote %d of %d variables", len(out2.Data), len(m.Data))
	}
}
