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

// e3smClassVar describes where the fields of a hydrometeor class are
// found in E3SM output.
type e3smClassVar struct {
	class string
	q, n  string

	// nPerVolume is true when n is a number concentration [m-3] rather
	// than a mixing ratio.
	nPerVolume bool

	re string // effective radius [μm]
}

// E3SMLoader reads E3SM single-column or regional output with
// dimensions (time, lev, ncol).
type E3SMLoader struct {
	format, version string
	classes         []e3smClassVar
}

// NewE3SMv1Loader returns a loader for E3SM version 1 output, where
// precipitation is diagnostic and reported as the grid-mean AQRAIN and
// AQSNOW fields.
func NewE3SMv1Loader() E3SMLoader {
	return E3SMLoader{
		format:  "e3sm-v1",
		version: "1",
		classes: []e3smClassVar{
			{class: "cl", q: "CLDLIQ", n: "NUMLIQ", re: "REL"},
			{class: "ci", q: "CLDICE", n: "NUMICE", re: "REI"},
			{class: "pl", q: "AQRAIN", n: "ANRAIN", nPerVolume: true},
			{class: "pi", q: "AQSNOW", n: "ANSNOW", nPerVolume: true},
		},
	}
}

// NewE3SMv2Loader returns a loader for E3SM version 2 output, where rain
// and snow are prognostic.
func NewE3SMv2Loader() E3SMLoader {
	return E3SMLoader{
		format:  "e3sm-v2",
		version: "2",
		classes: []e3smClassVar{
			{class: "cl", q: "CLDLIQ", n: "NUMLIQ", re: "REL"},
			{class: "ci", q: "CLDICE", n: "NUMICE", re: "REI"},
			{class: "pl", q: "RAINQM", n: "NUMRAI"},
			{class: "pi", q: "SNOWQM", n: "NUMSNO"},
		},
	}
}

// Format helps fulfill the Loader interface.
func (l E3SMLoader) Format() string { return l.format }

// Version helps fulfill the Loader interface.
func (l E3SMLoader) Version() string { return l.version }

// Assumed fall speeds used to convert convective precipitation fluxes
// to mixing ratios.
const (
	convRainVt = 5.0 // [m s-1]
	convSnowVt = 1.0 // [m s-1]
)

// Load helps fulfill the Loader interface.
func (l E3SMLoader) Load(path string) (*Model, error) {
	f, err := openNCF(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	shape := f.lengths("T") // (time, lev, ncol)
	if len(shape) != 3 {
		return nil, fmt.Errorf("emc2: E3SM variable T has %d dimensions; expected 3", len(shape))
	}
	nt, nk, ncol := shape[0], shape[1], shape[2]
	colDim := DimTime
	if ncol > 1 {
		colDim = DimStacked
	}
	m := NewModel("E3SM", "mg2", colDim, nt*ncol, nk, DefaultClasses())
	if ncol > 1 {
		m.Stacked = &Stacking{Dims: []string{"time", "ncol"}, Lengths: []int{nt, ncol}}
	}
	m.Attributes["source_file"] = path
	m.Attributes["model_version"] = l.version

	read := func(name string) (*sparse.DenseArray, error) {
		d, err := f.read(name)
		if err != nil {
			return nil, err
		}
		return toColumns(d), nil
	}

	t, err := read("T")
	if err != nil {
		return nil, err
	}
	height, err := read("Z3")
	if err != nil {
		return nil, err
	}
	if f.has("PHIS") {
		phis, err := f.read("PHIS") // (time, ncol)
		if err != nil {
			return nil, err
		}
		for c := 0; c < m.NumColumns; c++ {
			for k := 0; k < nk; k++ {
				height.Elements[m.gridIndex(c, k)] -= phis.Elements[c] / g
			}
		}
	}
	p, err := l.pressure(f, m)
	if err != nil {
		return nil, err
	}
	rho := sparse.ZerosDense(p.Shape...)
	for i := range rho.Elements {
		rho.Elements[i] = airDensity(p.Elements[i], t.Elements[i])
	}
	vars := []gridVar{
		{name: "height", description: "Height of level above ground", units: "m", data: height},
		{name: "temperature", description: "Air temperature", units: "K", data: t},
		{name: "pressure", description: "Air pressure", units: "Pa", data: p},
	}

	var conv *sparse.DenseArray
	if f.has("CONCLD") {
		if conv, err = read("CONCLD"); err != nil {
			return nil, err
		}
		vars = append(vars, gridVar{name: RegimeFracName(Convective),
			description: "Convective cloud fraction", units: "1", data: conv})
	}
	if f.has("CLOUD") {
		total, err := read("CLOUD")
		if err != nil {
			return nil, err
		}
		strat := total.Copy()
		for i, v := range strat.Elements {
			strat.Elements[i] = math.Max(v-at(conv, i), 0)
		}
		vars = append(vars, gridVar{name: RegimeFracName(Stratiform),
			description: "Stratiform cloud fraction", units: "1", data: strat})
	}

	for _, cv := range l.classes {
		if !f.has(cv.q) {
			continue
		}
		q, err := read(cv.q)
		if err != nil {
			return nil, err
		}
		vars = append(vars, gridVar{name: QName(cv.class, Stratiform),
			description: fmt.Sprintf("Mass mixing ratio of %s", cv.class), units: "kg kg-1", data: q})
		if f.has(cv.n) {
			n, err := read(cv.n)
			if err != nil {
				return nil, err
			}
			if cv.nPerVolume {
				for i := range n.Elements {
					if rho.Elements[i] > 0 {
						n.Elements[i] /= rho.Elements[i]
					}
				}
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
				description: fmt.Sprintf("Radiation effective radius of %s", cv.class), units: "m",
				data: re.ScaleCopy(1e-6)})
		}
	}

	convVars, err := l.convective(f, m, rho, read)
	if err != nil {
		return nil, err
	}
	vars = append(vars, convVars...)
	m.ProcessConv = conv != nil && len(convVars) > 0
	if err := m.addGridVars(vars...); err != nil {
		return nil, err
	}
	return m, nil
}

// pressure returns mid-level pressure [Pa], either directly or from the
// hybrid coordinate coefficients and surface pressure.
func (l E3SMLoader) pressure(f *ncFile, m *Model) (*sparse.DenseArray, error) {
	if f.has("PMID") {
		d, err := f.read("PMID")
		if err != nil {
			return nil, err
		}
		return toColumns(d), nil
	}
	const p0 = 100000. // Pa, hybrid coordinate reference pressure
	hyam, err := f.read("hyam")
	if err != nil {
		return nil, err
	}
	hybm, err := f.read("hybm")
	if err != nil {
		return nil, err
	}
	ps, err := f.read("PS") // (time, ncol)
	if err != nil {
		return nil, err
	}
	p := m.newGrid()
	for c := 0; c < m.NumColumns; c++ {
		for k := 0; k < m.NumLevels; k++ {
			p.Elements[m.gridIndex(c, k)] = hyam.Elements[k]*p0 + hybm.Elements[k]*ps.Elements[c]
		}
	}
	return p, nil
}

// convective returns the grid-mean convective condensate fields.
// Convective cloud water and ice are read directly; convective rain and
// snow are derived from the precipitation fluxes at the level
// interfaces and assumed fall speeds.
func (l E3SMLoader) convective(f *ncFile, m *Model, rho *sparse.DenseArray,
	read func(string) (*sparse.DenseArray, error)) ([]gridVar, error) {
	var vars []gridVar
	for _, v := range []struct{ class, name string }{{"cl", "DP_CLDLIQ"}, {"ci", "DP_CLDICE"}} {
		if !f.has(v.name) {
			continue
		}
		q, err := read(v.name)
		if err != nil {
			return nil, err
		}
		vars = append(vars, gridVar{name: QName(v.class, Convective),
			description: fmt.Sprintf("Convective mass mixing ratio of %s", v.class), units: "kg kg-1", data: q})
	}
	if !f.has("ZMFLXPRC") {
		return vars, nil
	}
	prc, err := read("ZMFLXPRC") // total precipitation flux [kg m-2 s-1]
	if err != nil {
		return nil, err
	}
	var snw *sparse.DenseArray
	if f.has("ZMFLXSNW") {
		if snw, err = read("ZMFLXSNW"); err != nil {
			return nil, err
		}
	}
	if prc.Shape[1] != m.NumLevels+1 {
		return nil, fmt.Errorf("emc2: ZMFLXPRC has %d levels; expected %d interfaces",
			prc.Shape[1], m.NumLevels+1)
	}
	rain, snow := m.newGrid(), m.newGrid()
	for c := 0; c < m.NumColumns; c++ {
		for k := 0; k < m.NumLevels; k++ {
			gi := m.gridIndex(c, k)
			r := rho.Elements[gi]
			if r <= 0 {
				continue
			}
			i0, i1 := c*(m.NumLevels+1)+k, c*(m.NumLevels+1)+k+1
			total := (at(prc, i0) + at(prc, i1)) / 2
			s := (at(snw, i0) + at(snw, i1)) / 2
			rain.Elements[gi] = math.Max(total-s, 0) / (r * convRainVt)
			snow.Elements[gi] = s / (r * convSnowVt)
		}
	}
	vars = append(vars,
		gridVar{name: QName("pl", Convective), description: "Convective mass mixing ratio of pl",
			units: "kg kg-1", data: rain},
		gridVar{name: QName("pi", Convective), description: "Convective mass mixing ratio of pi",
			units: "kg kg-1", data: snow},
	)
	return vars, nil
}
