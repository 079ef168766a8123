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
)

const g = 9.80665 // m/s2

// WRFLoader reads WRF output files. All time steps and horizontal grid
// cells are stacked into a single column axis. WRF has no separate
// convective condensate, so convective processing is disabled.
type WRFLoader struct{}

// Format helps fulfill the Loader interface.
func (WRFLoader) Format() string { return "wrf" }

// Version helps fulfill the Loader interface.
func (WRFLoader) Version() string { return "4" }

// wrfClassVars maps hydrometeor classes to the WRF mass and number
// mixing ratio variables they are built from. Masses of several
// variables are summed.
var wrfClassVars = []struct {
	class string
	q     []string
	n     string
	re    string
}{
	{class: "cl", q: []string{"QCLOUD"}, n: "QNCLOUD", re: "RE_CLOUD"},
	{class: "ci", q: []string{"QICE"}, n: "QNICE", re: "RE_ICE"},
	{class: "pl", q: []string{"QRAIN"}, n: "QNRAIN"},
	{class: "pi", q: []string{"QSNOW", "QGRAUP"}, n: "QNSNOW", re: "RE_SNOW"},
}

// Load helps fulfill the Loader interface.
func (WRFLoader) Load(path string) (*Model, error) {
	f, err := openNCF(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	shape := f.lengths("T") // (Time, bottom_top, south_north, west_east)
	if len(shape) != 4 {
		return nil, fmt.Errorf("emc2: WRF variable T has %d dimensions; expected 4", len(shape))
	}
	m := NewModel("WRF", "", DimStacked, shape[0]*shape[2]*shape[3], shape[1], DefaultClasses())
	m.Stacked = &Stacking{
		Dims:    []string{"Time", "south_north", "west_east"},
		Lengths: []int{shape[0], shape[2], shape[3]},
	}
	m.Attributes["source_file"] = path

	read := func(name string) (*sparse.DenseArray, error) {
		d, err := f.read(name)
		if err != nil {
			return nil, err
		}
		return toColumns(d), nil
	}

	p, err := read("P") // perturbation pressure [Pa]
	if err != nil {
		return nil, err
	}
	pb, err := read("PB") // baseline pressure [Pa]
	if err != nil {
		return nil, err
	}
	p.AddDense(pb)
	tp, err := read("T") // perturbation potential temperature [K]
	if err != nil {
		return nil, err
	}
	t := sparse.ZerosDense(tp.Shape...)
	for i, v := range tp.Elements {
		t.Elements[i] = thetaPerturbToTemperature(v, p.Elements[i])
	}
	ph, err := f.read("PH")
	if err != nil {
		return nil, err
	}
	phb, err := f.read("PHB")
	if err != nil {
		return nil, err
	}
	height := toColumns(geopotentialToHeight(ph, phb))
	vars := []gridVar{
		{name: "height", description: "Height of level above ground", units: "m", data: height},
		{name: "temperature", description: "Air temperature", units: "K", data: t},
		{name: "pressure", description: "Air pressure", units: "Pa", data: p},
	}

	if f.has("CLDFRA") {
		fr, err := read("CLDFRA")
		if err != nil {
			return nil, err
		}
		vars = append(vars, gridVar{name: RegimeFracName(Stratiform),
			description: "Stratiform cloud fraction", units: "1", data: fr})
	}
	for _, cv := range wrfClassVars {
		var q *sparse.DenseArray
		for _, name := range cv.q {
			if !f.has(name) {
				continue
			}
			d, err := read(name)
			if err != nil {
				return nil, err
			}
			if q == nil {
				q = d
			} else {
				q.AddDense(d)
			}
		}
		if q == nil {
			continue
		}
		vars = append(vars, gridVar{name: QName(cv.class, Stratiform),
			description: fmt.Sprintf("Mass mixing ratio of %s", cv.class), units: "kg kg-1", data: q})
		if f.has(cv.n) {
			n, err := read(cv.n)
			if err != nil {
				return nil, err
			}
			vars = append(vars, gridVar{name: NName(cv.class, Stratiform),
				description: fmt.Sprintf("Number mixing ratio of %s", cv.class), units: "kg-1", data: n})
		}
		if cv.re != "" && f.has(cv.re) {
			re, err := read(cv.re)
			if err != nil {
				return nil, err
			}
			vars = append(vars, gridVar{name: ReName(cv.class, Stratiform),
				description: fmt.Sprintf("Radiation effective radius of %s", cv.class), units: "m", data: re})
		}
	}
	if err := m.addGridVars(vars...); err != nil {
		return nil, err
	}
	return m, nil
}

// geopotentialToHeight converts geopotential on staggered levels with
// dimensions (time, level, y, x) to height above the ground at the mass
// levels between them.
func geopotentialToHeight(ph, phb *sparse.DenseArray) *sparse.DenseArray {
	nt, nz, ny, nx := ph.Shape[0], ph.Shape[1]-1, ph.Shape[2], ph.Shape[3]
	o := sparse.ZerosDense(nt, nz, ny, nx)
	for t := 0; t < nt; t++ {
		for j := 0; j < ny; j++ {
			for i := 0; i < nx; i++ {
				z := func(k int) float64 {
					return (ph.Get(t, k, j, i) + phb.Get(t, k, j, i) -
						ph.Get(t, 0, j, i) - phb.Get(t, 0, j, i)) / g // m
				}
				for k := 0; k < nz; k++ {
					o.Set((z(k)+z(k+1))/2, t, k, j, i)
				}
			}
		}
	}
	return o
}

// thetaPerturbToTemperature converts perturbation potential temperature
// to ambient temperature for the given pressure (p [Pa]).
func thetaPerturbToTemperature(thetaPerturb, p float64) float64 {
	const (
		po    = 100000. // Pa, reference pressure
		kappa = 0.2854  // R/cp for dry air
	)
	// potential temperature, K
	θ := thetaPerturb + 300.
	return θ * math.Pow(p/po, kappa)
}
