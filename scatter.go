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
	"sync"

	"github.com/emc2sim/emc2/science/scatter/mie"
	"github.com/emc2sim/emc2/science/scatter/rayleigh"
	"github.com/golang/groupcache/lru"
)

// numBins is the number of diameter bins in a scattering table.
const numBins = 80

// scatterTable holds single-particle properties on a grid of diameters.
type scatterTable struct {
	d    []float64 // diameter [m]
	mass []float64 // particle mass [kg]
	back []float64 // backscattering cross section, radar convention [m2]
	ext  []float64 // extinction cross section [m2]
	vt   []float64 // fall speed at the reference air density [m s-1]
}

// tableKey identifies a scattering table.
type tableKey struct {
	wavelength float64
	index      complex128
	class      HydrometeorClass
	lidar      bool
	mie        bool
}

// tables caches scattering tables, which are expensive to compute and
// are reused across chunks and simulations.
var tables = struct {
	sync.Mutex
	cache *lru.Cache
}{cache: lru.New(64)}

// getTable returns the scattering table for class c observed by inst.
// If useMie is false, ice is treated as soft spheres (radar) or
// with the class lidar ratio (lidar).
func getTable(inst Instrument, c HydrometeorClass, useMie bool) *scatterTable {
	index := inst.liquidIndex()
	if c.Ice {
		index = inst.iceIndex()
	} else {
		useMie = true
	}
	key := tableKey{
		wavelength: inst.Wavelength,
		index:      index,
		class:      c,
		lidar:      inst.Class == LidarClass,
		mie:        useMie,
	}
	tables.Lock()
	defer tables.Unlock()
	if t, ok := tables.cache.Get(key); ok {
		return t.(*scatterTable)
	}
	t := newTable(key)
	tables.cache.Add(key, t)
	return t
}

func newTable(key tableKey) *scatterTable {
	c := key.class
	t := &scatterTable{
		d:    make([]float64, numBins),
		mass: make([]float64, numBins),
		back: make([]float64, numBins),
		ext:  make([]float64, numBins),
		vt:   make([]float64, numBins),
	}
	logMin, logMax := math.Log(c.DMin), math.Log(c.DMax)
	for i := range t.d {
		d := math.Exp(logMin + (logMax-logMin)*float64(i)/float64(numBins-1))
		t.d[i] = d
		t.mass[i] = c.mass(d)
		t.vt[i] = c.fallSpeed(d)
		area := math.Pi * d * d / 4

		index := key.index
		if c.Ice {
			index = rayleigh.MaxwellGarnett(key.index, c.effectiveDensity(d)/c.Density)
		}
		switch {
		case key.mie:
			x := math.Pi * d / key.wavelength
			qext, _, qback := mie.Efficiencies(x, index)
			t.back[i] = qback * area
			t.ext[i] = qext * area
		case key.lidar:
			// Geometric optics with an assumed lidar ratio.
			t.ext[i] = 2 * area
			t.back[i] = 4 * math.Pi * t.ext[i] / c.LidarRatio
		default:
			// Soft spheres in the Rayleigh regime.
			k := rayleigh.K(index)
			t.back[i] = rayleigh.Backscatter(d, key.wavelength, k)
			t.ext[i] = rayleigh.Absorption(d, key.wavelength, k) + rayleigh.Scattering(d, key.wavelength, k)
		}
	}
	return t
}
