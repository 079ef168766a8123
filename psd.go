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

	"gonum.org/v1/gonum/integrate"
)

// Physical constants.
const (
	rd       = 287.058     // gas constant of dry air [J kg-1 K-1]
	kBoltz   = 1.380649e-23 // Boltzmann constant [J K-1]
	rho0     = 1.2          // reference air density for fall speeds [kg m-3]
	freezing = 273.15       // [K]
)

// airDensity returns the density of air [kg m-3] at pressure p [Pa] and
// temperature t [K].
func airDensity(p, t float64) float64 {
	if t <= 0 {
		return 0
	}
	return p / (rd * t)
}

// sizeDist is a gamma particle size distribution,
// N(D) = N0 D^μ exp(-λD) [m-4].
type sizeDist struct {
	n0, mu, lambda float64
}

// fitSizeDist returns the size distribution of class c with mass content
// w [kg m-3], number concentration nt [m-3] and, if positive, effective
// radius re [m]. If nt and re are both zero the class intercept N0 is
// used. The distribution is normalized over the table diameters so that
// its mass content is exactly w.
func fitSizeDist(c HydrometeorClass, t *scatterTable, w, nt, re float64, buf []float64) sizeDist {
	mu := c.Mu
	b := c.MassB
	var lambda float64
	switch {
	case re > 0:
		lambda = (mu + 3) / (2 * re)
	case nt > 0:
		lambda = math.Pow(c.MassA*math.Gamma(mu+b+1)*nt/(math.Gamma(mu+1)*w), 1/b)
	default:
		lambda = math.Pow(c.N0*c.MassA*math.Gamma(mu+b+1)/w, 1/(mu+b+1))
	}
	// Keep the mean diameter within the table.
	lmin := (mu + 1) / c.DMax
	lmax := (mu + 1) / c.DMin
	lambda = math.Max(lmin, math.Min(lmax, lambda))

	d := sizeDist{n0: 1, mu: mu, lambda: lambda}
	for i, dd := range t.d {
		buf[i] = d.at(dd) * t.mass[i]
	}
	mass := integrate.Trapezoidal(t.d, buf)
	if mass > 0 {
		d.n0 = w / mass
	} else {
		d.n0 = 0
	}
	return d
}

// at returns the number density [m-4] at diameter D [m].
func (s sizeDist) at(d float64) float64 {
	return s.n0 * math.Pow(d, s.mu) * math.Exp(-s.lambda*d)
}

// sample fills n with the size distribution at the table diameters.
func (s sizeDist) sample(t *scatterTable, n []float64) {
	for i, d := range t.d {
		n[i] = s.at(d)
	}
}

// moment returns the integral over the table diameters of f(i)·N(D_i).
func moment(t *scatterTable, n []float64, f func(i int) float64, buf []float64) float64 {
	for i := range t.d {
		buf[i] = f(i) * n[i]
	}
	return integrate.Trapezoidal(t.d, buf)
}
