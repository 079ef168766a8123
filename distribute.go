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
	"fmt"
	"math"

	"github.com/emc2sim/emc2/internal/hash"
	"golang.org/x/exp/rand"
	"gonum.org/v1/gonum/stat/distuv"
)

// DistributeMassNumber divides the grid mass and number mixing ratios of
// class c in regime r among the occupied subcolumns, so that the mean over
// all subcolumns equals the grid value. Unoccupied subcolumns are zero.
//
// Mass is divided evenly unless qcFlag is true, in which case sub-grid
// variability is drawn from a gamma distribution with shape
// c.SubgridShape. Number is divided in proportion to mass so that the mean
// particle mass in each subcolumn equals the grid mean. Number without
// mass is divided evenly.
//
// Negative and NaN grid values are treated as zero. It is an error for a
// grid cell to have mass or number but no occupied subcolumns.
func DistributeMassNumber(m *Model, c HydrometeorClass, r Regime, qcFlag bool, o SubcolumnOptions) error {
	n := m.NumSubcolumns
	q, err := m.gridData(QName(c.Name, r))
	if err != nil {
		return err
	}
	num := m.gridOrZero(NName(c.Name, r))
	frac, err := m.subcolData(SubFracName(c.Name, r))
	if err != nil {
		return err
	}
	qOut := m.newSubcol()
	nOut := m.newSubcol()

	err = o.forEachChunk(m.NumColumns, func(c0, c1 int) error {
		on := make([]int, 0, n)
		w := make([]float64, n)
		for col := c0; col < c1; col++ {
			var gamma distuv.Gamma
			if qcFlag && c.SubgridShape > 0 {
				gamma = distuv.Gamma{
					Alpha: c.SubgridShape,
					Beta:  c.SubgridShape,
					Src:   rand.NewSource(hash.Seed(o.Seed, "q_n", r, c.Name, col)),
				}
			}
			for k := 0; k < m.NumLevels; k++ {
				i := m.gridIndex(col, k)
				qv, nv := math.Max(at(q, i), 0), math.Max(at(num, i), 0)
				if qv == 0 && nv == 0 {
					continue
				}
				on = on[:0]
				for s := 0; s < n; s++ {
					if frac.Elements[m.subIndex(s, col, k)] > 0 {
						on = append(on, s)
					}
				}
				if len(on) == 0 {
					return fmt.Errorf("%w: %s %s has q=%g and n=%g at column %d level %d "+
						"but no occupied subcolumns", ErrConsistency, regimeLabel(r), c.Name, qv, nv, col, k)
				}
				var sum float64
				for j := range on {
					if gamma.Src != nil && qv > 0 {
						w[j] = gamma.Rand()
					} else {
						w[j] = 1
					}
					sum += w[j]
				}
				for j, s := range on {
					frac := w[j] / sum
					qOut.Elements[m.subIndex(s, col, k)] = qv * float64(n) * frac
					nOut.Elements[m.subIndex(s, col, k)] = nv * float64(n) * frac
				}
			}
		}
		return nil
	})
	if err != nil {
		return err
	}
	if err := m.AddVariable(SubQName(c.Name, r), m.SubcolumnDims(),
		fmt.Sprintf("%s %s subcolumn mass mixing ratio", regimeLabel(r), c.Name), "kg kg-1", qOut); err != nil {
		return err
	}
	return m.AddVariable(SubNName(c.Name, r), m.SubcolumnDims(),
		fmt.Sprintf("%s %s subcolumn number mixing ratio", regimeLabel(r), c.Name), "kg-1", nOut)
}
