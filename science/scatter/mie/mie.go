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

// Package mie calculates the scattering properties of homogeneous spheres
// using the series solution of Bohren and Huffman (1983), "Absorption and
// Scattering of Light by Small Particles", appendix A.
package mie

import (
	"math"
	"math/cmplx"
)

// MaxSizeParameter is the largest size parameter for which the series
// solution is evaluated. Larger particles use the geometric optics limit.
const MaxSizeParameter = 1e4

// Efficiencies returns the extinction, scattering, and backscattering
// efficiencies of a sphere with size parameter x = πD/λ and complex
// refractive index m relative to the surrounding medium. The
// backscattering efficiency follows the radar convention: 4π times the
// differential scattering cross section at 180° divided by the geometric
// cross section, so that it reduces to 4x⁴|K|² for small spheres.
func Efficiencies(x float64, m complex128) (qext, qsca, qback float64) {
	if x <= 0 {
		return 0, 0, 0
	}
	if x > MaxSizeParameter {
		return geometric(m)
	}
	y := m * complex(x, 0)
	xstop := x + 4*math.Cbrt(x) + 2
	nstop := int(xstop)
	nmx := int(math.Max(xstop, cmplx.Abs(y))) + 15

	// Logarithmic derivative by downward recurrence.
	d := make([]complex128, nmx+1)
	for n := nmx; n > 1; n-- {
		en := complex(float64(n), 0) / y
		d[n-1] = en - 1/(d[n]+en)
	}

	psi0, psi1 := math.Cos(x), math.Sin(x)
	chi0, chi1 := -math.Sin(x), math.Cos(x)
	xi1 := complex(psi1, -chi1)
	var sback complex128
	sign := -1.
	for n := 1; n <= nstop; n++ {
		fn := float64(n)
		psi := (2*fn-1)*psi1/x - psi0
		chi := (2*fn-1)*chi1/x - chi0
		xi := complex(psi, -chi)

		da := d[n]/m + complex(fn/x, 0)
		db := d[n]*m + complex(fn/x, 0)
		an := (da*complex(psi, 0) - complex(psi1, 0)) / (da*xi - xi1)
		bn := (db*complex(psi, 0) - complex(psi1, 0)) / (db*xi - xi1)

		w := 2*fn + 1
		qsca += w * (sq(cmplx.Abs(an)) + sq(cmplx.Abs(bn)))
		qext += w * real(an+bn)
		sback += complex(w*sign, 0) * (an - bn)

		sign = -sign
		psi0, psi1 = psi1, psi
		chi0, chi1 = chi1, chi
		xi1 = complex(psi1, -chi1)
	}
	qsca *= 2 / (x * x)
	qext *= 2 / (x * x)
	qback = sq(cmplx.Abs(sback)) / (x * x)
	return qext, qsca, qback
}

// geometric returns the large-particle limit: extinction efficiency of 2
// and specular reflection at normal incidence for backscattering.
func geometric(m complex128) (qext, qsca, qback float64) {
	r := sq(cmplx.Abs((m - 1) / (m + 1)))
	qabs := 1 - r
	if imag(m) == 0 {
		qabs = 0
	}
	return 2, 2 - qabs, r
}

func sq(v float64) float64 { return v * v }
