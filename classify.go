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
	"github.com/sirupsen/logrus"
)

// Phase is a hydrometeor phase category.
type Phase int

// Phase categories.
const (
	Clear Phase = iota
	Liquid
	Ice
	Mixed
	Drizzle
	Rain
	Snow
	Undefined
)

func (p Phase) String() string {
	switch p {
	case Clear:
		return "clear"
	case Liquid:
		return "liquid"
	case Ice:
		return "ice"
	case Mixed:
		return "mixed"
	case Drizzle:
		return "drizzle"
	case Rain:
		return "rain"
	case Snow:
		return "snow"
	case Undefined:
		return "undefined"
	}
	return fmt.Sprintf("Phase(%d)", int(p))
}

// phaseDescription documents the category values in output files.
const phaseDescription = "Hydrometeor phase: 0=clear, 1=liquid, 2=ice, 3=mixed, 4=drizzle, 5=rain, 6=snow, 7=undefined"

// ClassifyOptions control phase classification.
type ClassifyOptions struct {
	// MaskHeightRng, if not nil, restricts classification to heights
	// [m] within the given range. Cells outside it are clear.
	MaskHeightRng *[2]float64

	// ConvertZerosToNaN sets clear cells to NaN.
	ConvertZerosToNaN bool

	// HydTypes, ODFromSfc and Eta control the spaceborne-style lidar
	// classification.
	HydTypes  []string
	ODFromSfc bool
	Eta       float64
	ExtOD     float64

	Log logrus.FieldLogger
}

// PhaseMaskName is the name of the moment-based phase classification of
// instrument inst.
func PhaseMaskName(inst string) string { return "phase_mask_" + inst }

// COSPPhaseMaskName is the name of the spaceborne-style phase
// classification of instrument inst.
func COSPPhaseMaskName(inst string) string { return "cosp_phase_mask_" + inst }

// Thresholds for the radar classification.
const (
	rainVd        = 2.5    // [m s-1]
	drizzleVd     = 1.0    // [m s-1]
	drizzleDBZ    = -15.0  // [dBZ]
	snowVd        = 1.0    // [m s-1]
	snowDBZ       = 0.0    // [dBZ]
	cloudDBZ      = -30.0  // [dBZ]
	cloudVd       = 0.3    // [m s-1]
	mixedSigma    = 0.4    // [m s-1]
	homogeneousFz = 233.15 // [K]
)

// radarPhase classifies a detected radar gate.
func radarPhase(ze, vd, sigma, t float64) Phase {
	if ze <= 0 {
		return Clear
	}
	z := dBZ(ze)
	if t > freezing {
		switch {
		case vd > rainVd:
			return Rain
		case vd > drizzleVd || z > drizzleDBZ:
			return Drizzle
		default:
			return Liquid
		}
	}
	switch {
	case t > homogeneousFz && z < cloudDBZ && vd < cloudVd:
		return Liquid
	case t > homogeneousFz && sigma > mixedSigma:
		return Mixed
	case vd > snowVd || z > snowDBZ:
		return Snow
	default:
		return Ice
	}
}

// RadarClassifyPhase classifies each subcolumn gate from the detected
// total reflectivity, Doppler velocity, spectral width (if present) and
// temperature, and writes the result to phase_mask_<instrument>.
func RadarClassifyPhase(m *Model, inst Instrument, o ClassifyOptions) error {
	if inst.Class != RadarClass {
		return fmt.Errorf("%w: %s is not a radar", ErrConfiguration, inst.Name)
	}
	ze, err := requireSubcol(m, "sub_col_Ze_tot", "radar phase classification")
	if err != nil {
		return err
	}
	vd, err := requireSubcol(m, "sub_col_Vd_tot", "radar phase classification")
	if err != nil {
		return err
	}
	if _, err := requireSubcol(m, "detect_mask", "radar phase classification"); err != nil {
		return err
	}
	sigma := m.subcolOrNil("sub_col_sigma_d_tot")
	th, err := m.thermo()
	if err != nil {
		return err
	}
	return writePhase(m, PhaseMaskName(inst.Name), th, o, func(si, gi int) Phase {
		return radarPhase(at(ze, si), at(vd, si), at(sigma, si), th.t.Elements[gi])
	})
}

// Thresholds for the moment-based lidar classification.
const (
	liquidLDR = 0.1
	iceLDR    = 0.2
)

// LidarClassifyPhase classifies each subcolumn gate from the particulate
// backscatter, depolarization ratio and extinction mask, and writes the
// result to phase_mask_<instrument>. Gates where the signal has been
// extinguished are undefined.
func LidarClassifyPhase(m *Model, inst Instrument, o ClassifyOptions) error {
	if inst.Class != LidarClass {
		return fmt.Errorf("%w: %s is not a lidar", ErrConfiguration, inst.Name)
	}
	beta, err := requireSubcol(m, "sub_col_beta_p_tot", "lidar phase classification")
	if err != nil {
		return err
	}
	ldr, err := requireSubcol(m, "sub_col_LDR_tot", "lidar phase classification")
	if err != nil {
		return err
	}
	ext, err := requireSubcol(m, "ext_mask", "lidar phase classification")
	if err != nil {
		return err
	}
	th, err := m.thermo()
	if err != nil {
		return err
	}
	return writePhase(m, PhaseMaskName(inst.Name), th, o, func(si, gi int) Phase {
		switch {
		case at(ext, si) > 0:
			return Undefined
		case at(beta, si) < inst.BetaMin || at(beta, si) <= 0:
			return Clear
		case at(ldr, si) < liquidLDR:
			return Liquid
		case at(ldr, si) > iceLDR:
			return Ice
		default:
			return Mixed
		}
	})
}

// Thresholds for the spaceborne-style lidar classification.
const (
	cloudSR      = 5.0  // scattering ratio above which a gate is cloudy
	cospIceDepol = 0.25 // attenuated depolarization above which cloud is ice
)

// LidarEmulateCOSPPhase classifies each subcolumn gate in the manner of
// spaceborne lidar products. Attenuated total and perpendicular
// backscatter are computed from the classes in o.HydTypes with
// multiple-scattering factor o.Eta, integrating from the surface if
// o.ODFromSfc is true. Gates with a scattering ratio above 5 are cloudy;
// cloud warmer than freezing is liquid, colder than 233.15 K is ice, and
// otherwise phase is decided by attenuated depolarization. Gates beyond
// full attenuation (η τ > o.ExtOD) are undefined. The result is written
// to cosp_phase_mask_<instrument>.
func LidarEmulateCOSPPhase(m *Model, inst Instrument, o ClassifyOptions) error {
	if inst.Class != LidarClass {
		return fmt.Errorf("%w: %s is not a lidar", ErrConfiguration, inst.Name)
	}
	type classData struct {
		depol       float64
		beta, alpha *sparse.DenseArray
	}
	var cd []classData
	for _, c := range m.Classes {
		if !selected(o.HydTypes, c.Name) {
			continue
		}
		for _, r := range []Regime{Stratiform, Convective} {
			b := m.subcolOrNil(BetaName(c.Name, r))
			a := m.subcolOrNil(AlphaName(c.Name, r))
			if b != nil && a != nil {
				cd = append(cd, classData{depol: c.Depol, beta: b, alpha: a})
			}
		}
	}
	if len(cd) == 0 {
		return fmt.Errorf("%w: spaceborne lidar phase classification requires lidar moments "+
			"for at least one of %v", ErrConfiguration, o.HydTypes)
	}
	th, err := m.thermo()
	if err != nil {
		return err
	}
	phase := make([]Phase, len(m.newSubcol().Elements))
	for col := 0; col < m.NumColumns; col++ {
		path := m.levelOrder(th.height, col, !o.ODFromSfc)
		dz := m.layerThickness(th.height, col)
		for s := 0; s < m.NumSubcolumns; s++ {
			var tauP, tauM float64
			for _, k := range path {
				gi := m.gridIndex(col, k)
				si := m.subIndex(s, col, k)
				bm, am := molecular(inst.Wavelength, th.p.Elements[gi], th.t.Elements[gi])
				var b, bPerp, a float64
				for _, c := range cd {
					bc := at(c.beta, si)
					b += bc
					bPerp += bc * c.depol / (1 + c.depol)
					a += at(c.alpha, si)
				}
				if o.Eta*tauP > o.ExtOD {
					phase[si] = Undefined
					continue
				}
				midP := tauP + 0.5*a*dz[k]
				midM := tauM + 0.5*am*dz[k]
				tauP += a * dz[k]
				tauM += am * dz[k]
				molAtt := bm * math.Exp(-2*midM)
				tr := math.Exp(-2 * (o.Eta*midP + midM))
				atb := (b + bm) * tr
				if molAtt <= 0 || atb/molAtt <= cloudSR {
					phase[si] = Clear
					continue
				}
				t := th.t.Elements[gi]
				atbPerp := (bPerp + bm*molDepol/(1+molDepol)) * tr
				switch {
				case t > freezing:
					phase[si] = Liquid
				case t < homogeneousFz:
					phase[si] = Ice
				case atbPerp/(atb-atbPerp) > cospIceDepol:
					phase[si] = Ice
				default:
					phase[si] = Liquid
				}
			}
		}
	}
	return writePhase(m, COSPPhaseMaskName(inst.Name), th, o, func(si, _ int) Phase { return phase[si] })
}

// requireSubcol returns the named subcolumn variable or a configuration
// error explaining that it is needed by the named step.
func requireSubcol(m *Model, name, step string) (*sparse.DenseArray, error) {
	if !m.Has(name) {
		return nil, fmt.Errorf("%w: %s requires %s; calculate the instrument moments first",
			ErrConfiguration, step, name)
	}
	return m.subcolData(name)
}

// writePhase evaluates f at every subcolumn gate and writes the result
// to the named mask variable, applying the height range and zero
// conversion options.
func writePhase(m *Model, name string, th thermo, o ClassifyOptions, f func(si, gi int) Phase) error {
	out := m.newSubcol()
	for s := 0; s < m.NumSubcolumns; s++ {
		for col := 0; col < m.NumColumns; col++ {
			for k := 0; k < m.NumLevels; k++ {
				si := m.subIndex(s, col, k)
				gi := m.gridIndex(col, k)
				p := f(si, gi)
				if rng := o.MaskHeightRng; rng != nil {
					h := th.height.Elements[gi]
					if h < rng[0] || h > rng[1] {
						p = Clear
					}
				}
				if p == Clear && o.ConvertZerosToNaN {
					out.Elements[si] = math.NaN()
					continue
				}
				out.Elements[si] = float64(p)
			}
		}
	}
	if o.Log != nil {
		o.Log.WithField("variable", name).Info("wrote phase classification")
	}
	return m.addMask(name, m.SubcolumnDims(), phaseDescription, out)
}
