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
)

// Regime is a cloud regime: stratiform or convective.
type Regime int

// Cloud regimes.
const (
	Stratiform Regime = iota
	Convective
)

func (r Regime) String() string {
	if r == Convective {
		return "conv"
	}
	return "strat"
}

// HydrometeorClass holds the microphysical properties of a hydrometeor
// class. Units are SI unless otherwise noted.
type HydrometeorClass struct {
	// Name is the short name of the class, e.g. "cl".
	Name string

	Ice    bool // frozen hydrometeors
	Precip bool // precipitating hydrometeors

	// Density is the bulk density of the solid material [kg m-3].
	Density float64

	// MassA and MassB give the particle mass as a function of maximum
	// dimension: m = MassA * D^MassB [kg, m].
	MassA, MassB float64

	// Mu is the shape parameter of the gamma particle size distribution.
	Mu float64

	// FallA and FallB give the terminal fall speed as a function of
	// diameter: v = FallA * D^FallB [m s-1, m].
	FallA, FallB float64

	// Depol is the linear depolarization ratio of single scattering.
	Depol float64

	// LidarRatio is the extinction-to-backscatter ratio [sr] used where
	// backscatter is not computed from the Mie solution.
	LidarRatio float64

	// EmpiricA and EmpiricB give reflectivity as a function of water
	// content: Ze = EmpiricA * W^EmpiricB [mm6 m-3, g m-3].
	EmpiricA, EmpiricB float64

	// N0 is the size distribution intercept [m-4] used when number
	// concentrations are not available.
	N0 float64

	// SubgridShape is the shape parameter of the gamma distribution
	// of sub-grid condensate variability.
	SubgridShape float64

	// DMin and DMax are the bounds of the size distribution [m].
	DMin, DMax float64
}

// mass returns the mass [kg] of a particle with diameter d [m]. It never
// exceeds the mass of a solid sphere.
func (h HydrometeorClass) mass(d float64) float64 {
	return math.Min(h.MassA*math.Pow(d, h.MassB), math.Pi/6*h.Density*d*d*d)
}

// fallSpeed returns the terminal fall speed [m s-1] of a particle with
// diameter d [m].
func (h HydrometeorClass) fallSpeed(d float64) float64 {
	return h.FallA * math.Pow(d, h.FallB)
}

// effectiveDensity returns the density [kg m-3] of a sphere with diameter
// d [m] and the particle mass.
func (h HydrometeorClass) effectiveDensity(d float64) float64 {
	return h.mass(d) / (math.Pi / 6 * d * d * d)
}

// validate checks h for physically meaningless values.
func (h HydrometeorClass) validate() error {
	switch {
	case h.Name == "":
		return fmt.Errorf("%w: hydrometeor class has no name", ErrConfiguration)
	case h.Density <= 0 || h.MassA <= 0 || h.MassB <= 0:
		return fmt.Errorf("%w: hydrometeor class %s has invalid mass parameters", ErrConfiguration, h.Name)
	case h.DMin <= 0 || h.DMax <= h.DMin:
		return fmt.Errorf("%w: hydrometeor class %s has invalid size bounds [%g, %g]",
			ErrConfiguration, h.Name, h.DMin, h.DMax)
	case h.Mu <= -1:
		return fmt.Errorf("%w: hydrometeor class %s has invalid shape parameter %g",
			ErrConfiguration, h.Name, h.Mu)
	}
	return nil
}

// subgridClass is the class given sub-grid variability when qc_flag is
// set.
const subgridClass = "cl"

// DefaultClasses returns the standard set of hydrometeor classes:
// cloud liquid (cl), cloud ice (ci), rain (pl) and snow (pi).
func DefaultClasses() []HydrometeorClass {
	const rhoW = 1000.
	const rhoI = 917.
	return []HydrometeorClass{
		{
			Name: "cl", Density: rhoW,
			MassA: math.Pi / 6 * rhoW, MassB: 3,
			Mu:    2,
			FallA: 3e7, FallB: 2,
			Depol: 0.03, LidarRatio: 18,
			EmpiricA: 0.031, EmpiricB: 1.56,
			N0:           1e11,
			SubgridShape: 1,
			DMin:         1e-6, DMax: 1e-4,
		},
		{
			Name: "ci", Ice: true, Density: rhoI,
			MassA: 0.0185, MassB: 1.9,
			Mu:    0,
			FallA: 700, FallB: 1,
			Depol: 0.4, LidarRatio: 24,
			EmpiricA: 0.0874, EmpiricB: 1.32,
			N0:           1e9,
			SubgridShape: 1,
			DMin:         5e-6, DMax: 1e-3,
		},
		{
			Name: "pl", Precip: true, Density: rhoW,
			MassA: math.Pi / 6 * rhoW, MassB: 3,
			Mu:    0,
			FallA: 842, FallB: 0.8,
			Depol: 0.01, LidarRatio: 18,
			EmpiricA: 400, EmpiricB: 1.4,
			N0:           8e6,
			SubgridShape: 1,
			DMin:         1e-5, DMax: 6e-3,
		},
		{
			Name: "pi", Ice: true, Precip: true, Density: rhoI,
			MassA: 0.069, MassB: 2,
			Mu:    0,
			FallA: 11.72, FallB: 0.41,
			Depol: 0.4, LidarRatio: 24,
			EmpiricA: 60, EmpiricB: 1.3,
			N0:           3e6,
			SubgridShape: 1,
			DMin:         2e-5, DMax: 1e-2,
		},
	}
}

// Field names of model variables.

// QName is the grid mass mixing ratio [kg kg-1] of class c in regime r.
func QName(c string, r Regime) string { return fmt.Sprintf("q_%s_%s", r, c) }

// NName is the grid number mixing ratio [kg-1] of class c in regime r.
func NName(c string, r Regime) string { return fmt.Sprintf("n_%s_%s", r, c) }

// FracName is the grid coverage fraction of class c in regime r.
func FracName(c string, r Regime) string { return fmt.Sprintf("%s_frac_%s", r, c) }

// RadFracName is the coverage fraction of class c in regime r used by
// the model's radiation scheme.
func RadFracName(c string, r Regime) string { return fmt.Sprintf("%s_frac_rad_%s", r, c) }

// RegimeFracName is a coverage fraction shared by all classes in regime r.
func RegimeFracName(r Regime) string { return fmt.Sprintf("%s_frac", r) }

// ReName is the effective radius [m] of class c in regime r used by the
// model's radiation scheme.
func ReName(c string, r Regime) string { return fmt.Sprintf("re_%s_%s", r, c) }

// SubFracName is the subcolumn realization mask of class c in regime r.
func SubFracName(c string, r Regime) string {
	return fmt.Sprintf("%s_frac_subcolumns_%s", r, c)
}

// SubQName is the subcolumn mass mixing ratio of class c in regime r.
func SubQName(c string, r Regime) string { return fmt.Sprintf("%s_q_subcolumns_%s", r, c) }

// SubNName is the subcolumn number mixing ratio of class c in regime r.
func SubNName(c string, r Regime) string { return fmt.Sprintf("%s_n_subcolumns_%s", r, c) }
