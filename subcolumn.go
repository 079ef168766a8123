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

	"github.com/ctessum/sparse"
	"github.com/emc2sim/emc2/internal/hash"
	"golang.org/x/exp/rand"
)

// SetSubcolumns sets the number of subcolumns in m. The number cannot be
// changed once subcolumn data exist.
func (m *Model) SetSubcolumns(n int) error {
	if n <= 0 {
		return fmt.Errorf("%w: number of subcolumns must be positive, not %d", ErrConfiguration, n)
	}
	if existing := m.DetectSubcolumns(); existing > 0 && existing != n {
		return fmt.Errorf("%w: model already has %d subcolumns; cannot use %d",
			ErrConsistency, existing, n)
	}
	m.NumSubcolumns = n
	return nil
}

// SubcolumnOptions control subcolumn generation.
type SubcolumnOptions struct {
	// Seed is the base seed for the random numbers used to place
	// hydrometeors. Each column derives its own seed from it.
	Seed uint64

	// UseRadLogic specifies whether coverage fractions from the model's
	// radiation scheme are preferred.
	UseRadLogic bool

	// Parallel specifies whether columns are processed concurrently.
	Parallel bool

	// Chunk is the number of columns given to each worker at a time.
	// If it is not positive the columns are divided evenly among the
	// processors.
	Chunk int
}

func (o SubcolumnOptions) forEachChunk(nCols int, fn func(c0, c1 int) error) error {
	return forEachChunk(nCols, o.Chunk, o.Parallel, fn)
}

// subcolumnCount returns the number of subcolumns out of n that should be
// occupied by a hydrometeor with coverage fraction f. Cells without
// condensate get none, whatever their fraction, and any cell with
// condensate gets at least one.
func subcolumnCount(f float64, present bool, n int) int {
	if !present {
		return 0
	}
	if math.IsNaN(f) {
		f = 0
	}
	f = math.Max(0, math.Min(1, f))
	k := int(math.Round(f * float64(n)))
	if k == 0 {
		k = 1
	}
	return k
}

// coverage returns the coverage fraction field that applies to class c in
// regime r, in order of preference: the radiation fraction (when
// useRadLogic is true), the class fraction, and the fraction shared by
// the regime.
func (m *Model) coverage(c string, r Regime, useRadLogic bool) (*sparse.DenseArray, bool) {
	return m.firstGrid(fracNames(c, r, useRadLogic, true)...)
}

// precipCoverage is like coverage, but the fraction shared by the regime
// describes cloud and is not used.
func (m *Model) precipCoverage(c string, r Regime, useRadLogic bool) (*sparse.DenseArray, bool) {
	return m.firstGrid(fracNames(c, r, useRadLogic, false)...)
}

func fracNames(c string, r Regime, useRadLogic, shared bool) []string {
	var names []string
	if useRadLogic {
		names = append(names, RadFracName(c, r))
	}
	names = append(names, FracName(c, r))
	if shared {
		names = append(names, RegimeFracName(r))
	}
	return names
}

// firstGrid returns the first of the named grid variables that exists.
func (m *Model) firstGrid(names ...string) (*sparse.DenseArray, bool) {
	for _, n := range names {
		if d, err := m.gridData(n); err == nil {
			return d, true
		}
	}
	return nil, false
}

// gridOrZero returns the named grid variable, or nil if it does not exist.
func (m *Model) gridOrZero(name string) *sparse.DenseArray {
	d, err := m.gridData(name)
	if err != nil {
		return nil
	}
	return d
}

// condensate holds the grid mass and number mixing ratios of one class in
// one regime. Either may be nil.
type condensate struct{ q, n *sparse.DenseArray }

func (m *Model) condensate(c string, r Regime) condensate {
	return condensate{q: m.gridOrZero(QName(c, r)), n: m.gridOrZero(NName(c, r))}
}

// present returns whether there is mass or number at grid index i.
// Negative and NaN values, which come from numerical noise in model
// output, count as none.
func (d condensate) present(i int) bool {
	return at(d.q, i) > 0 || at(d.n, i) > 0
}

func at(a *sparse.DenseArray, i int) float64 {
	if a == nil {
		return 0
	}
	v := a.Elements[i]
	if math.IsNaN(v) {
		return 0
	}
	return v
}

// cloudClasses returns the non-precipitating classes that have mass
// fields in regime r.
func (m *Model) cloudClasses(r Regime) []HydrometeorClass {
	var o []HydrometeorClass
	for _, c := range m.Classes {
		if !c.Precip && m.Has(QName(c.Name, r)) {
			o = append(o, c)
		}
	}
	return o
}

// precipClasses returns the precipitating classes that have mass fields
// in regime r.
func (m *Model) precipClasses(r Regime) []HydrometeorClass {
	var o []HydrometeorClass
	for _, c := range m.Classes {
		if c.Precip && m.Has(QName(c.Name, r)) {
			o = append(o, c)
		}
	}
	return o
}

// ConvectiveSubcolumnFraction assigns convective cloud to subcolumns.
// For each non-precipitating class, the first round(f·N) subcolumns of
// every level are occupied, so that convective cloud is maximally
// overlapped in the vertical. No random numbers are used.
func ConvectiveSubcolumnFraction(m *Model, o SubcolumnOptions) error {
	n := m.NumSubcolumns
	if n <= 0 {
		return fmt.Errorf("%w: number of subcolumns is not set", ErrConfiguration)
	}
	for _, c := range m.cloudClasses(Convective) {
		frac, ok := m.coverage(c.Name, Convective, o.UseRadLogic)
		if !ok {
			return fmt.Errorf("%w: no convective fraction for class %s; expected %s or %s",
				ErrConfiguration, c.Name, FracName(c.Name, Convective), RegimeFracName(Convective))
		}
		cond := m.condensate(c.Name, Convective)
		out := m.newSubcol()
		err := o.forEachChunk(m.NumColumns, func(c0, c1 int) error {
			for col := c0; col < c1; col++ {
				for k := 0; k < m.NumLevels; k++ {
					i := m.gridIndex(col, k)
					on := subcolumnCount(at(frac, i), cond.present(i), n)
					for s := 0; s < on; s++ {
						out.Elements[m.subIndex(s, col, k)] = 1
					}
				}
			}
			return nil
		})
		if err != nil {
			return err
		}
		if err := m.addMask(SubFracName(c.Name, Convective), m.SubcolumnDims(),
			fmt.Sprintf("Convective %s subcolumn occupancy", c.Name), out); err != nil {
			return err
		}
	}
	return nil
}

// StratiformSubcolumnFraction assigns stratiform cloud to subcolumns
// using maximum-random overlap. Levels are visited from the top of each
// column down. The total cloud occupies max over classes of round(f·N)
// subcolumns per level; subcolumns that were cloudy in the level above are
// reused first and the rest are drawn at random. Each cloud class is then
// placed within the total cloud in the same way.
func StratiformSubcolumnFraction(m *Model, o SubcolumnOptions) error {
	n := m.NumSubcolumns
	if n <= 0 {
		return fmt.Errorf("%w: number of subcolumns is not set", ErrConfiguration)
	}
	classes := m.cloudClasses(Stratiform)
	if len(classes) == 0 {
		return nil
	}
	height, err := m.gridData("height")
	if err != nil {
		return err
	}
	fracs := make([]*sparse.DenseArray, len(classes))
	conds := make([]condensate, len(classes))
	outs := make([]*sparse.DenseArray, len(classes))
	for j, c := range classes {
		var ok bool
		fracs[j], ok = m.coverage(c.Name, Stratiform, o.UseRadLogic)
		if !ok {
			return fmt.Errorf("%w: no stratiform fraction for class %s; expected %s or %s",
				ErrConfiguration, c.Name, FracName(c.Name, Stratiform), RegimeFracName(Stratiform))
		}
		conds[j] = m.condensate(c.Name, Stratiform)
		outs[j] = m.newSubcol()
	}

	err = o.forEachChunk(m.NumColumns, func(c0, c1 int) error {
		for col := c0; col < c1; col++ {
			rng := rand.New(rand.NewSource(hash.Seed(o.Seed, "strat_frac", col)))
			prevTot := make([]bool, n)
			prev := make([][]bool, len(classes))
			for j := range prev {
				prev[j] = make([]bool, n)
			}
			counts := make([]int, len(classes))
			for _, k := range m.levelOrder(height, col, true) {
				i := m.gridIndex(col, k)
				nTot := 0
				for j := range classes {
					counts[j] = subcolumnCount(at(fracs[j], i), conds[j].present(i), n)
					if counts[j] > nTot {
						nTot = counts[j]
					}
				}
				tot := allocate(rng, nTot, partition(n, prevTot)...)
				totOn := make([]bool, n)
				for _, s := range tot {
					totOn[s] = true
				}
				for j := range classes {
					reuse, fresh := split(tot, prev[j])
					on := allocate(rng, counts[j], reuse, fresh)
					cur := make([]bool, n)
					for _, s := range on {
						cur[s] = true
						outs[j].Elements[m.subIndex(s, col, k)] = 1
					}
					prev[j] = cur
				}
				prevTot = totOn
			}
		}
		return nil
	})
	if err != nil {
		return err
	}
	for j, c := range classes {
		if err := m.addMask(SubFracName(c.Name, Stratiform), m.SubcolumnDims(),
			fmt.Sprintf("Stratiform %s subcolumn occupancy", c.Name), outs[j]); err != nil {
			return err
		}
	}
	return nil
}

// PrecipSubcolumnFraction assigns precipitation in regime r to
// subcolumns. The precipitation fraction comes from a fraction field when
// the model provides one. Otherwise it is the largest cloud fraction of the
// same regime at or above each level where there is precipitation mass.
// Subcolumns are chosen preferentially where the same precipitation fell in
// the level above, then where there is cloud at the same level, then at
// random. Cloud subcolumns for regime r must already exist.
func PrecipSubcolumnFraction(m *Model, r Regime, o SubcolumnOptions) error {
	n := m.NumSubcolumns
	if n <= 0 {
		return fmt.Errorf("%w: number of subcolumns is not set", ErrConfiguration)
	}
	classes := m.precipClasses(r)
	if len(classes) == 0 {
		return nil
	}
	height, err := m.gridData("height")
	if err != nil {
		return err
	}
	var clouds []*sparse.DenseArray
	for _, c := range m.cloudClasses(r) {
		d, err := m.subcolData(SubFracName(c.Name, r))
		if err != nil {
			return fmt.Errorf("emc2: precipitation subcolumns need cloud subcolumns: %w", err)
		}
		clouds = append(clouds, d)
	}
	cloudy := func(s, col, k int) bool {
		for _, d := range clouds {
			if d.Elements[m.subIndex(s, col, k)] > 0 {
				return true
			}
		}
		return false
	}

	for _, c := range classes {
		cond := m.condensate(c.Name, r)
		frac, haveFrac := m.precipCoverage(c.Name, r, o.UseRadLogic)
		var derived *sparse.DenseArray
		if !haveFrac {
			derived = m.newGrid()
		}
		out := m.newSubcol()
		err := o.forEachChunk(m.NumColumns, func(c0, c1 int) error {
			for col := c0; col < c1; col++ {
				rng := rand.New(rand.NewSource(hash.Seed(o.Seed, "precip_frac", r, c.Name, col)))
				prev := make([]bool, n)
				maxCloudAbove := 0.
				for _, k := range m.levelOrder(height, col, true) {
					i := m.gridIndex(col, k)
					var cloudHere []bool
					nCloud := 0
					for s := 0; s < n; s++ {
						v := cloudy(s, col, k)
						cloudHere = append(cloudHere, v)
						if v {
							nCloud++
						}
					}
					maxCloudAbove = math.Max(maxCloudAbove, float64(nCloud)/float64(n))
					var f float64
					if haveFrac {
						f = at(frac, i)
					} else if cond.present(i) {
						f = maxCloudAbove
						derived.Elements[i] = f
					}
					count := subcolumnCount(f, cond.present(i), n)
					tier1 := make([]int, 0, n)
					tier2 := make([]int, 0, n)
					tier3 := make([]int, 0, n)
					for s := 0; s < n; s++ {
						switch {
						case prev[s]:
							tier1 = append(tier1, s)
						case cloudHere[s]:
							tier2 = append(tier2, s)
						default:
							tier3 = append(tier3, s)
						}
					}
					cur := make([]bool, n)
					for _, s := range allocate(rng, count, tier1, tier2, tier3) {
						cur[s] = true
						out.Elements[m.subIndex(s, col, k)] = 1
					}
					prev = cur
				}
			}
			return nil
		})
		if err != nil {
			return err
		}
		if !haveFrac {
			if err := m.AddVariable(FracName(c.Name, r), m.GridDims(),
				fmt.Sprintf("%s %s fraction derived from overlying cloud", regimeLabel(r), c.Name),
				"1", derived); err != nil {
				return err
			}
		}
		if err := m.addMask(SubFracName(c.Name, r), m.SubcolumnDims(),
			fmt.Sprintf("%s %s subcolumn occupancy", regimeLabel(r), c.Name), out); err != nil {
			return err
		}
	}
	return nil
}

func regimeLabel(r Regime) string {
	if r == Convective {
		return "Convective"
	}
	return "Stratiform"
}

// allocate chooses n subcolumns, taking whole tiers in order and
// choosing at random within the tier that is only partly needed. The
// tiers must not overlap.
func allocate(rng *rand.Rand, n int, tiers ...[]int) []int {
	o := make([]int, 0, n)
	for _, tier := range tiers {
		need := n - len(o)
		if need <= 0 {
			break
		}
		if len(tier) <= need {
			o = append(o, tier...)
			continue
		}
		for _, p := range rng.Perm(len(tier))[:need] {
			o = append(o, tier[p])
		}
	}
	return o
}

// partition splits subcolumns 0..n-1 into those that are set in on and
// those that are not.
func partition(n int, on []bool) [][]int {
	var a, b []int
	for s := 0; s < n; s++ {
		if on[s] {
			a = append(a, s)
		} else {
			b = append(b, s)
		}
	}
	return [][]int{a, b}
}

// split splits set into the members that are set in on and those that
// are not.
func split(set []int, on []bool) (in, out []int) {
	for _, s := range set {
		if on[s] {
			in = append(in, s)
		} else {
			out = append(out, s)
		}
	}
	return in, out
}
