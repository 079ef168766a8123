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

// Package rayleigh provides scattering by spheres that are small compared
// to the wavelength, and the dielectric mixing rules used for soft
// (partly air-filled) ice particles.
//
// Refractive indices follow the convention m = n + ik with k ≥ 0 for
// absorbing materials.
package rayleigh

import (
	"math"
	"math/cmplx"
)

// K returns the dielectric factor (m²-1)/(m²+2) of a material with
// refractive index m.
func K(m complex128) complex128 {
	e := m * m
	return (e - 1) / (e + 2)
}

// K2 returns |K|² for refractive index m.
func K2(m complex128) float64 {
	a := cmplx.Abs(K(m))
	return a * a
}

// Backscatter returns the radar backscattering cross section [m²] of a
// sphere of diameter d [m] at wavelength lambda [m] with dielectric
// factor k.
func Backscatter(d, lambda float64, k complex128) float64 {
	a := cmplx.Abs(k)
	return math.Pow(math.Pi, 5) * a * a * math.Pow(d, 6) / math.Pow(lambda, 4)
}

// Absorption returns the absorption cross section [m²] of a sphere of
// diameter d [m] at wavelength lambda [m] with dielectric factor k.
func Absorption(d, lambda float64, k complex128) float64 {
	return math.Pi * math.Pi * d * d * d / lambda * imag(k)
}

// Scattering returns the total scattering cross section [m²] of a sphere
// of diameter d [m] at wavelength lambda [m] with dielectric factor k.
func Scattering(d, lambda float64, k complex128) float64 {
	return 2. / 3 * Backscatter(d, lambda, k)
}

// MaxwellGarnett returns the refractive index of a mixture of inclusions
// with refractive index m occupying volume fraction f of an air matrix.
func MaxwellGarnett(m complex128, f float64) complex128 {
	f = math.Max(0, math.Min(1, f))
	fk := complex(f, 0) * K(m)
	e := (1 + 2*fk) / (1 - fk)
	return cmplx.Sqrt(e)
}
