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
	"math"
	"os"
	"path/filepath"
	"reflect"
	"testing"
)

// writeTemp writes m to a file in a temporary directory and returns its
// path.
func writeTemp(t *testing.T, m *Model) string {
	path := filepath.Join(t.TempDir(), "model.nc")
	f, err := os.Create(path)
	if err != nil {
		t.Fatal(err)
	}
	if err := m.Write(f); err != nil {
		t.Fatal(err)
	}
	if err := f.Close(); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestNetCDFRoundTrip(t *testing.T) {
	m := newTestModel(t, 2)
	addConvection(t, m)
	cfg := testConfig()
	cfg.DoClassify = true
	if _, err := MakeSimulatedData(m, mustInstrument(t, "KAZR"), 8, cfg); err != nil {
		t.Fatal(err)
	}
	m.Stacked = &Stacking{Dims: []string{"Time", "west_east"}, Lengths: []int{1, 2}}

	path := writeTemp(t, m)
	l, err := NewLoader("emc2")
	if err != nil {
		t.Fatal(err)
	}
	m2, err := l.Load(path)
	if err != nil {
		t.Fatal(err)
	}

	if m2.Name != m.Name || m2.Scheme != m.Scheme || m2.ProcessConv != m.ProcessConv ||
		m2.ColumnDim != m.ColumnDim || m2.NumColumns != m.NumColumns ||
		m2.NumLevels != m.NumLevels || m2.NumSubcolumns != m.NumSubcolumns ||
		m2.Stage != m.Stage {
		t.Errorf("metadata differs:\n%+v\n%+v", m2, m)
	}
	if !reflect.DeepEqual(m2.Classes, m.Classes) {
		t.Errorf("classes differ: %+v", m2.Classes)
	}
	if !reflect.DeepEqual(m2.Stacked, m.Stacked) {
		t.Errorf("stacking %+v, want %+v", m2.Stacked, m.Stacked)
	}
	if !reflect.DeepEqual(m2.Attributes, m.Attributes) {
		t.Errorf("attributes %v, want %v", m2.Attributes, m.Attributes)
	}
	if len(m2.Data) != len(m.Data) {
		t.Fatalf("%d variables, want %d", len(m2.Data), len(m.Data))
	}
	for name, v := range m.Data {
		v2, ok := m2.Data[name]
		if !ok {
			t.Errorf("missing variable %s", name)
			continue
		}
		if !sameStrings(v.Dims, v2.Dims) || v.Mask != v2.Mask || v.Description != v2.Description {
			t.Errorf("%s: metadata differs", name)
		}
		for i, e := range v.Data.Elements {
			e2 := v2.Data.Elements[i]
			if e != e2 && !(math.IsNaN(e) && math.IsNaN(e2)) {
				t.Errorf("%s[%d] = %g, want %g", name, i, e2, e)
				break
			}
		}
	}

	// Simulating again from the file reuses its subcolumns.
	cfg.SkipSubcolGen = true
	if _, err := MakeSimulatedData(m2, mustInstrument(t, "KAZR"), 0, cfg); err != nil {
		t.Fatal(err)
	}
}

func TestLoadModelVersion(t *testing.T) {
	m := newTestModel(t, 1)
	path := writeTemp(t, m)
	f, err := os.OpenFile(path, os.O_RDWR, 0644)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	if _, err := LoadModel(f); err != nil {
		t.Fatal(err)
	}
	if _, err := LoadModel(emptyFile(t)); err == nil {
		t.Error("loading an empty file should fail")
	}
}

func emptyFile(t *testing.T) *os.File {
	f, err := os.Create(filepath.Join(t.TempDir(), "empty.nc"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { f.Close() })
	return f
}
