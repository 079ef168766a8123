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
	"testing"

	"gonum.org/v1/gonum/floats/scalar"
)

func TestSizeDistMoments(t *testing.T) {
	inst, _ := BuiltinInstrument("KAZR")
	for _, c := range DefaultClasses() {
		t.Run(c.Name, func(t *testing.T) {
			tab := getTable(inst, c, false)
			buf := make([]float64, numBins)
			n := make([]float64, numBins)
			const w = 1e-4 // kg m-3

			// Mass is always recovered exactly.
			for _, nt := range []float64{0, 1e5, 1e7} {
				d := fitSizeDist(c, tab, w, nt, 0, buf)
				d.sample(tab, n)
				mass := moment(tab, n, func(i int) float64 { return tab.mass[i] }, buf)
				if !scalar.EqualWithinRel(mass, w, 1e-10) {
					t.Errorf("nt=%g: mass content %g, want %g", nt, mass, w)
				}
			}

			// Number is recovered for spheres when the implied mean
			// size is well inside the table.
			if c.Ice {
				return
			}
			dMid := 2 * math.Sqrt(c.DMin*c.DMax)
			nt := w / c.mass(dMid)
			d := fitSizeDist(c, tab, w, nt, 0, buf)
			d.sample(tab, n)
			num := moment(tab, n, func(int) float64 { return 1 }, buf)
			if !scalar.EqualWithinRel(num, nt, 0.1) {
				t.Errorf("number concentration %g, want %g", num, nt)
			}
		})
	}
}

func TestTableCache(t *testing.T) {
	inst, _ := BuiltinInstrument("HSRL")
	c := DefaultClasses()[1]
	a := getTable(inst, c, true)
	b := getTable(inst, c, true)
	if a != b {
		t.Error("identical requests should share a table")
	}
	if getTable(inst, c, false) == a {
		t.Error("different scattering methods should not share a table")
	}
	for i := 1; i < numBins; i++ {
		if a.d[i] <= a.d[i-1] {
			t.Fatalf("diameters are not increasing at bin %d", i)
		}
	}
	if !scalar.EqualWithinRel(a.d[0], c.DMin, 1e-12) || !scalar.EqualWithinRel(a.d[numBins-1], c.DMax, 1e-12) {
		t.Errorf("table spans [%g, %g], want [%g, %g]", a.d[0], a.d[numBins-1], c.DMin, c.DMax)
	}
}
