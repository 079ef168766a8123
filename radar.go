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

// Radar computes radar moments.
type Radar struct {
	Inst Instrument
}

// Instrument implements MomentCalculator.
func (rad Radar) Instrument() Instrument { return rad.Inst }

// CalcMoments implements MomentCalculator.
func (rad Radar) CalcMoments(m *Model, r Regime, o MomentOptions) error {
	return RadarMoments(m, rad.Inst, r, o)
}

// CalcTotals implements MomentCalculator by combining the regimes,
// computing the minimum detectable reflectivity, and masking signals
// below it.
func (rad Radar) CalcTotals(m *Model, o MomentOptions) error {
	if err := TotalReflectivity(m, o.CalcSpectralWidth); err != nil {
		return err
	}
	if err := RadarZeMin(m, rad.Inst, o.RefRng); err != nil {
		return err
	}
	return ApplyDetection(m)
}

// ClassifyPhase implements MomentCalculator.
func (rad Radar) ClassifyPhase(m *Model, o ClassifyOptions) error {
	return RadarClassifyPhase(m, rad.Inst, o)
}

// Names of radar fields.

// ZeName is the reflectivity of class c in regime r.
func ZeName(c string, r Regime) string { return fmt.Sprintf("sub_col_Ze_%s_%s", c, r) }

// ZeAttName is the attenuated reflectivity of class c in regime r.
func ZeAttName(c string, r Regime) string { return fmt.Sprintf("sub_col_Ze_att_%s_%s", c, r) }

func zeTotName(r Regime) string    { return fmt.Sprintf("sub_col_Ze_tot_%s", r) }
func zeAttTotName(r Regime) string { return fmt.Sprintf("sub_col_Ze_att_tot_%s", r) }
func vdTotName(r Regime) string    { return fmt.Sprintf("sub_col_Vd_tot_%s", r) }
func sigmaTotName(r Regime) string { return fmt.Sprintf("sub_col_sigma_d_tot_%s", r) }

// RadarMoments computes the equivalent reflectivity factor, attenuated
// reflectivity, mean Doppler velocity, and Doppler spectral width of
// regime r in every subcolumn.
//
// Reflectivity is Ze = λ⁴/(π⁵|Kw|²) ∫σ_b N dD, reported in linear units
// of mm⁶ m⁻³. Attenuation by hydrometeors is integrated along the path
// from the instrument and applied two-way. Doppler velocity is the
// reflectivity-weighted fall speed, positive toward the ground.
func RadarMoments(m *Model, inst Instrument, r Regime, o MomentOptions) error {
	if inst.Class != RadarClass {
		return fmt.Errorf("%w: %s is not a radar", ErrConfiguration, inst.Name)
	}
	log := o.logger().WithFields(logrus.Fields{"instrument": inst.Name, "regime": r.String()})
	inputs, err := m.momentInputs(inst, r, o)
	if err != nil {
		return err
	}
	if len(inputs) == 0 {
		log.Info("no subcolumn hydrometeors; skipping radar moments")
		return nil
	}
	th, err := m.thermo()
	if err != nil {
		return err
	}

	ze := make([]*sparse.DenseArray, len(inputs))
	zeAtt := make([]*sparse.DenseArray, len(inputs))
	for j, in := range inputs {
		c := in.class.Name
		if ze[j], err = m.ensureSubcol(ZeName(c, r), fmt.Sprintf("%s %s equivalent reflectivity", regimeLabel(r), c), "mm6 m-3", false); err != nil {
			return err
		}
		if zeAtt[j], err = m.ensureSubcol(ZeAttName(c, r), fmt.Sprintf("%s %s attenuated equivalent reflectivity", regimeLabel(r), c), "mm6 m-3", false); err != nil {
			return err
		}
	}
	tot, err := m.ensureSubcol(zeTotName(r), regimeLabel(r)+" total equivalent reflectivity", "mm6 m-3", false)
	if err != nil {
		return err
	}
	totAtt, err := m.ensureSubcol(zeAttTotName(r), regimeLabel(r)+" total attenuated equivalent reflectivity", "mm6 m-3", false)
	if err != nil {
		return err
	}
	vd, err := m.ensureSubcol(vdTotName(r), regimeLabel(r)+" mean Doppler velocity, positive downward", "m s-1", false)
	if err != nil {
		return err
	}
	var sigma *sparse.DenseArray
	if o.CalcSpectralWidth {
		if sigma, err = m.ensureSubcol(sigmaTotName(r), regimeLabel(r)+" Doppler spectral width", "m s-1", false); err != nil {
			return err
		}
	}

	// Conversion from backscatter [m-1] to reflectivity [mm6 m-3].
	norm := 1e18 * math.Pow(inst.Wavelength, 4) / (math.Pow(math.Pi, 5) * inst.KwSquared)

	log.Info("computing radar moments")
	return forEachChunk(m.NumColumns, o.Chunk, o.Parallel, func(c0, c1 int) error {
		ws := newWorkspace()
		zeC := make([]float64, len(inputs))
		for col := c0; col < c1; col++ {
			path := m.levelOrder(th.height, col, !o.ODFromSfc)
			dz := m.layerThickness(th.height, col)
			for s := 0; s < m.NumSubcolumns; s++ {
				var tau float64
				for _, k := range path {
					gi := m.gridIndex(col, k)
					si := m.subIndex(s, col, k)
					rho := airDensity(th.p.Elements[gi], th.t.Elements[gi])
					var kappa, zSum, vSum, v2Sum float64
					for j, in := range inputs {
						zeC[j] = 0
						p, ok := in.props(ws, si, gi, rho)
						if !ok {
							continue
						}
						if o.UseEmpiricCalc {
							zeC[j] = in.class.EmpiricA * math.Pow(at(in.q, si)*rho*1000, in.class.EmpiricB)
						} else {
							zeC[j] = norm * p.back
						}
						kappa += p.ext
						if p.back > 0 {
							zSum += zeC[j]
							vSum += zeC[j] * p.vback / p.back
							v2Sum += zeC[j] * p.v2back / p.back
						}
					}
					half := 0.5 * kappa * dz[k]
					att := math.Exp(-2 * (tau + half))
					tau += 2 * half

					var t, ta float64
					for j := range inputs {
						ze[j].Elements[si] = zeC[j]
						zeAtt[j].Elements[si] = zeC[j] * att
						t += zeC[j]
						ta += zeC[j] * att
					}
					tot.Elements[si] = t
					totAtt.Elements[si] = ta
					var v, v2 float64
					if zSum > 0 {
						v = vSum / zSum
						v2 = v2Sum / zSum
					}
					vd.Elements[si] = v
					if sigma != nil {
						sigma.Elements[si] = math.Sqrt(math.Max(0, v2-v*v))
					}
				}
			}
		}
		return nil
	})
}

// TotalReflectivity combines the regime reflectivities into
// sub_col_Ze_tot and sub_col_Ze_att_tot, and the Doppler moments into
// sub_col_Vd_tot and sub_col_sigma_d_tot, weighting by reflectivity.
// The totals are recomputed from the regime fields every time.
func TotalReflectivity(m *Model, calcSpectralWidth bool) error {
	regimes := m.regimesPresent(zeTotName)
	if len(regimes) == 0 {
		return fmt.Errorf("%w: no radar moments have been calculated", ErrConfiguration)
	}
	tot, err := m.ensureSubcol("sub_col_Ze_tot", "Total equivalent reflectivity", "mm6 m-3", false)
	if err != nil {
		return err
	}
	totAtt, err := m.ensureSubcol("sub_col_Ze_att_tot", "Total attenuated equivalent reflectivity", "mm6 m-3", false)
	if err != nil {
		return err
	}
	vd, err := m.ensureSubcol("sub_col_Vd_tot", "Mean Doppler velocity, positive downward", "m s-1", false)
	if err != nil {
		return err
	}
	var sigma *sparse.DenseArray
	if calcSpectralWidth {
		if sigma, err = m.ensureSubcol("sub_col_sigma_d_tot", "Doppler spectral width", "m s-1", false); err != nil {
			return err
		}
	}
	type regimeData struct{ ze, zeAtt, vd, sigma *sparse.DenseArray }
	data := make([]regimeData, len(regimes))
	for i, r := range regimes {
		if data[i].ze, err = m.subcolData(zeTotName(r)); err != nil {
			return err
		}
		if data[i].zeAtt, err = m.subcolData(zeAttTotName(r)); err != nil {
			return err
		}
		if data[i].vd, err = m.subcolData(vdTotName(r)); err != nil {
			return err
		}
		if calcSpectralWidth {
			data[i].sigma = m.subcolOrNil(sigmaTotName(r))
		}
	}
	for i := range tot.Elements {
		var z, za, v, v2 float64
		for _, d := range data {
			zr := at(d.ze, i)
			vr := at(d.vd, i)
			sr := at(d.sigma, i)
			z += zr
			za += at(d.zeAtt, i)
			v += zr * vr
			v2 += zr * (sr*sr + vr*vr)
		}
		if z > 0 {
			v /= z
			v2 /= z
		}
		tot.Elements[i] = z
		totAtt.Elements[i] = za
		vd.Elements[i] = v
		if sigma != nil {
			sigma.Elements[i] = math.Sqrt(math.Max(0, v2-v*v))
		}
	}
	return nil
}

// subcolOrNil returns the named subcolumn variable or nil if it does not
// exist.
func (m *Model) subcolOrNil(name string) *sparse.DenseArray {
	d, err := m.subcolData(name)
	if err != nil {
		return nil
	}
	return d
}
