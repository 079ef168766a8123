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
	"testing"

	"github.com/ctessum/sparse"
	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
)

const testLevels = 10

// testGridField returns a grid field with value f(k) at every level.
func testGridField(nCols int, f func(k int) float64) *sparse.DenseArray {
	a := sparse.ZerosDense(nCols, testLevels)
	for c := 0; c < nCols; c++ {
		for k := 0; k < testLevels; k++ {
			a.Elements[c*testLevels+k] = f(k)
		}
	}
	return a
}

// newTestModel returns a model with nCols identical columns of testLevels
// levels spaced 500 m apart, with warm liquid cloud and rain near the
// surface and ice cloud and snow aloft.
func newTestModel(t *testing.T, nCols int) *Model {
	m := NewModel("test", "mg2", "", nCols, testLevels, DefaultClasses())
	h := func(k int) float64 { return 500 * float64(k+1) }
	add := func(name, units string, f func(k int) float64) {
		if err := m.AddVariable(name, m.GridDims(), name, units, testGridField(nCols, f)); err != nil {
			t.Fatal(err)
		}
	}
	between := func(lo, hi int, v float64) func(k int) float64 {
		return func(k int) float64 {
			if k >= lo && k <= hi {
				return v
			}
			return 0
		}
	}
	add("height", "m", h)
	add("temperature", "K", func(k int) float64 { return 290 - 6.5e-3*h(k) })
	add("pressure", "Pa", func(k int) float64 { return 1e5 * math.Exp(-h(k)/8000) })
	add(RegimeFracName(Stratiform), "1", func(k int) float64 {
		switch {
		case k >= 2 && k <= 3:
			return 0.6
		case k >= 7 && k <= 8:
			return 0.4
		}
		return 0
	})
	add(QName("cl", Stratiform), "kg kg-1", between(2, 3, 3e-4))
	add(NName("cl", Stratiform), "kg-1", between(2, 3, 1e8))
	add(QName("ci", Stratiform), "kg kg-1", between(7, 8, 5e-5))
	add(QName("pl", Stratiform), "kg kg-1", between(0, 2, 1e-4))
	add(QName("pi", Stratiform), "kg kg-1", between(5, 7, 1e-4))
	return m
}

func TestAddVariable(t *testing.T) {
	m := newTestModel(t, 2)
	if err := m.AddVariable("bad", m.GridDims(), "", "", sparse.ZerosDense(3, testLevels)); !errors.Is(err, ErrConsistency) {
		t.Errorf("wrong column count: have error %v, want ErrConsistency", err)
	}
	if err := m.AddVariable("height", []string{DimTime}, "", "", sparse.ZerosDense(2)); !errors.Is(err, ErrConsistency) {
		t.Errorf("replacing with different dims: have error %v, want ErrConsistency", err)
	}
	if err := m.AddVariable("height", m.GridDims(), "new", "m", m.newGrid()); err != nil {
		t.Errorf("replacing with same dims: %v", err)
	}
	if _, err := m.Variable("missing"); !errors.Is(err, ErrConfiguration) {
		t.Errorf("missing variable: have error %v, want ErrConfiguration", err)
	}
}

func TestDetectSubcolumns(t *testing.T) {
	m := newTestModel(t, 1)
	if m.HasSubcolumns() {
		t.Fatal("new model should not have subcolumns")
	}
	if err := m.AddVariable("x", []string{DimSubcolumn, m.ColumnDim, DimHeight}, "", "", sparse.ZerosDense(7, 1, testLevels)); err != nil {
		t.Fatal(err)
	}
	if n := m.DetectSubcolumns(); n != 7 {
		t.Errorf("have %d subcolumns, want 7", n)
	}
	if m.NumSubcolumns != 7 {
		t.Errorf("NumSubcolumns = %d, want 7", m.NumSubcolumns)
	}
	if err := m.SetSubcolumns(8); !errors.Is(err, ErrConsistency) {
		t.Errorf("changing subcolumn count: have error %v, want ErrConsistency", err)
	}
}

func TestLayerThickness(t *testing.T) {
	m := newTestModel(t, 1)
	h, _ := m.gridData("height")
	dz := m.layerThickness(h, 0)
	for k, v := range dz {
		if v != 500 {
			t.Errorf("level %d: thickness %g, want 500", k, v)
		}
	}
	down := m.levelOrder(h, 0, true)
	if down[0] != testLevels-1 || down[testLevels-1] != 0 {
		t.Errorf("top-down order %v", down)
	}
}

func TestFinalizeSubcolumnFields(t *testing.T) {
	m := newTestModel(t, 1)
	m.NumSubcolumns = 2
	v := m.newSubcol()
	v.Elements[0] = 1
	if err := m.AddVariable("sub", m.SubcolumnDims(), "", "", v); err != nil {
		t.Fatal(err)
	}
	if err := m.addMask("mask", m.SubcolumnDims(), "", m.newSubcol()); err != nil {
		t.Fatal(err)
	}
	m.FinalizeSubcolumnFields()
	if !math.IsNaN(v.Elements[1]) || v.Elements[0] != 1 {
		t.Errorf("subcolumn field not finalized: %v", v.Elements[:2])
	}
	if math.IsNaN(m.Data["mask"].Data.Elements[0]) {
		t.Error("mask should not be finalized")
	}
	if math.IsNaN(m.Data["height"].Data.Elements[0]) {
		t.Error("grid field should not be finalized")
	}
	if m.Stage != StageFinalized {
		t.Errorf("stage = %v", m.Stage)
	}
}

func TestUnstack(t *testing.T) {
	m := NewModel("wrf", "", DimStacked, 6, 2, DefaultClasses())
	m.Stacked = &Stacking{Dims: []string{"Time", "south_north", "west_east"}, Lengths: []int{1, 2, 3}}
	d := sparse.ZerosDense(6, 2)
	for i := range d.Elements {
		d.Elements[i] = float64(i)
	}
	if err := m.AddVariable("x", m.GridDims(), "", "", d); err != nil {
		t.Fatal(err)
	}
	if err := m.Unstack(nil); err != nil {
		t.Fatal(err)
	}
	v := m.Data["x"]
	if !sameStrings(v.Dims, []string{"Time", "south_north", "west_east", DimHeight}) {
		t.Errorf("dims = %v", v.Dims)
	}
	if !sameInts(v.Data.Shape, []int{1, 2, 3, 2}) {
		t.Errorf("shape = %v", v.Data.Shape)
	}
	if got := v.Data.Get(0, 1, 2, 1); got != 11 {
		t.Errorf("element (0,1,2,1) = %g, want 11", got)
	}
	if !m.Unstacked {
		t.Error("model is not marked as unstacked")
	}
	if _, err := m.gridData("x"); !errors.Is(err, ErrConsistency) {
		t.Errorf("grid data after unstacking: have error %v, want ErrConsistency", err)
	}
	if _, err := MakeSimulatedData(m, mustInstrument(t, "KAZR"), 5, testConfig()); !errors.Is(err, ErrConsistency) {
		t.Errorf("simulating an unstacked model: have error %v, want ErrConsistency", err)
	}
	l, err := NewLoader("emc2")
	if err != nil {
		t.Fatal(err)
	}
	reloaded, err := l.Load(writeTemp(t, m))
	if err != nil {
		t.Fatal(err)
	}
	if !reloaded.Unstacked {
		t.Error("unstacked marker was lost when writing to netCDF")
	}

	log, hook := test.NewNullLogger()
	m2 := newTestModel(t, 1)
	if err := m2.Unstack(log); err != nil {
		t.Fatal(err)
	}
	if len(hook.Entries) != 1 || hook.LastEntry().Level != logrus.InfoLevel {
		t.Errorf("expected one info notice, got %d entries", len(hook.Entries))
	}
}
