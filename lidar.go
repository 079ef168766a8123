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

// Lidar computes lidar moments.
type Lidar struct {
	Inst Instrument
}

// Instrument implements MomentCalculator.
func (l Lidar) Instrument() Instrument { return l.Inst }

// CalcMoments implements MomentCalculator.
func (l Lidar) CalcMoments(m *Model, r Regime, o MomentOptions) error {
	return LidarMoments(m, l.Inst, r, o)
}

// CalcTotals implements MomentCalculator by computing attenuated
// backscatter, depolarization and the extinction mask.
func (l Lidar) CalcTotals(m *Model, o MomentOptions) error {
	if err := TotalAlphaBeta(m, l.Inst, o.ODFromSfc, o.Eta); err != nil {
		return err
	}
	return LDRAndExt(m, o.ExtOD, o.HydTypes)
}

// ClassifyPhase implements MomentCalculator. Both the moment-based and
// the spaceborne-style classifications are computed.
func (l Lidar) ClassifyPhase(m *Model, o ClassifyOptions) error {
	if err := LidarClassifyPhase(m, l.Inst, o); err != nil {
		return err
	}
	return LidarEmulateCOSPPhase(m, l.Inst, o)
}

// BetaName is the particulate backscatter of class c in regime r.
func BetaName(c string, r Regime) string { return fmt.Sprintf("sub_col_beta_p_%s_%s", c, r) }

// AlphaName is the particulate extinction of class c in regime r.
func AlphaName(c string, r Regime) string { return fmt.Sprintf("sub_col_alpha_p_%s_%s", c, r) }

func betaTotName(r Regime) string  { return fmt.Sprintf("sub_col_beta_p_tot_%s", r) }
func alphaTotName(r Regime) string { return fmt.Sprintf("sub_col_alpha_p_tot_%s", r) }

// Molecular scattering at 550 nm per molecule [m2 sr-1] and the ratio of
// extinction to backscatter for Rayleigh scattering.
const (
	betaMol550 = 5.45e-32
	molRatio   = 8 * math.Pi / 3
	molDepol   = 0.0036 // molecular linear depolarization ratio
)

// LidarMoments computes the particulate backscatter [m-1 sr-1] and
// extinction [m-1] of each class in regime r, and their regime totals.
func LidarMoments(m *Model, inst Instrument, r Regime, o MomentOptions) error {
	if inst.Class != LidarClass {
		return fmt.Errorf("%w: %s is not a lidar", ErrConfiguration, inst.Name)
	}
	log := o.logger().WithFields(logrus.Fields{"instrument": inst.Name, "regime": r.String()})
	inputs, err := m.momentInputs(inst, r, o)
	if err != nil {
		return err
	}
	if len(inputs) == 0 {
		log.Info("no subcolumn hydrometeors; skipping lidar moments")
		return nil
	}
	th, err := m.thermo()
	if err != nil {
		return err
	}
	beta := make([]*sparse.DenseArray, len(inputs))
	alpha := make([]*sparse.DenseArray, len(inputs))
	for j, in := range inputs {
		c := in.class.Name
		if beta[j], err = m.ensureSubcol(BetaName(c, r), fmt.Sprintf("%s %s particulate backscatter", regimeLabel(r), c), "m-1 sr-1", false); err != nil {
			return err
		}
		if alpha[j], err = m.ensureSubcol(AlphaName(c, r), fmt.Sprintf("%s %s particulate extinction", regimeLabel(r), c), "m-1", false); err != nil {
			return err
		}
	}
	betaTot, err := m.ensureSubcol(betaTotName(r), regimeLabel(r)+" particulate backscatter", "m-1 sr-1", false)
	if err != nil {
		return err
	}
	alphaTot, err := m.ensureSubcol(alphaTotName(r), regimeLabel(r)+" particulate extinction", "m-1", false)
	if err != nil {
		return err
	}

	log.Info("computing lidar moments")
	return forEachChunk(m.NumColumns, o.Chunk, o.Parallel, func(c0, c1 int) error {
		ws := newWorkspace()
		for col := c0; col < c1; col++ {
			for k := 0; k < m.NumLevels; k++ {
				gi := m.gridIndex(col, k)
				rho := airDensity(th.p.Elements[gi], th.t.Elements[gi])
				for s := 0; s < m.NumSubcolumns; s++ {
					si := m.subIndex(s, col, k)
					var bt, xt float64
					for j, in := range inputs {
						var b, a float64
						if p, ok := in.props(ws, si, gi, rho); ok {
							b = p.back / (4 * math.Pi)
							a = p.ext
						}
						beta[j].Elements[si] = b
						alpha[j].Elements[si] = a
						bt += b
						xt += a
					}
					betaTot.Elements[si] = bt
					alphaTot.Elements[si] = xt
				}
			}
		}
		return nil
	})
}

// molecular returns the molecular backscatter [m-1 sr-1] and extinction
// [m-1] at wavelength lambda, pressure p and temperature t.
func molecular(lambda, p, t float64) (beta, alpha float64) {
	if t <= 0 {
		return 0, 0
	}
	n := p / (kBoltz * t)
	beta = betaMol550 * math.Pow(550e-9/lambda, 4) * n
	return beta, molRatio * beta
}

// TotalAlphaBeta computes the molecular backscatter and extinction
// (beta_m, alpha_m), the particulate totals over both regimes
// (sub_col_beta_p_tot, sub_col_alpha_p_tot), the particulate optical
// depth from the instrument (sub_col_OD_tot), and the attenuated total
// backscatter
//
//	sub_col_beta_att_tot = (β_p + β_m) exp(-2(η τ_p + τ_m)).
//
// Optical depths are evaluated at layer midpoints.
func TotalAlphaBeta(m *Model, inst Instrument, odFromSfc bool, eta float64) error {
	regimes := m.regimesPresent(betaTotName)
	if len(regimes) == 0 {
		return fmt.Errorf("%w: no lidar moments have been calculated", ErrConfiguration)
	}
	th, err := m.thermo()
	if err != nil {
		return err
	}
	betaM, err := m.ensureGrid("beta_m", "Molecular backscatter", "m-1 sr-1")
	if err != nil {
		return err
	}
	alphaM, err := m.ensureGrid("alpha_m", "Molecular extinction", "m-1")
	if err != nil {
		return err
	}
	betaP, err := m.ensureSubcol("sub_col_beta_p_tot", "Particulate backscatter", "m-1 sr-1", false)
	if err != nil {
		return err
	}
	alphaP, err := m.ensureSubcol("sub_col_alpha_p_tot", "Particulate extinction", "m-1", false)
	if err != nil {
		return err
	}
	od, err := m.ensureSubcol("sub_col_OD_tot", "Particulate optical depth from the instrument", "1", false)
	if err != nil {
		return err
	}
	betaAtt, err := m.ensureSubcol("sub_col_beta_att_tot", "Attenuated total backscatter", "m-1 sr-1", false)
	if err != nil {
		return err
	}
	var bs, as []*sparse.DenseArray
	for _, r := range regimes {
		b, err := m.subcolData(betaTotName(r))
		if err != nil {
			return err
		}
		a, err := m.subcolData(alphaTotName(r))
		if err != nil {
			return err
		}
		bs, as = append(bs, b), append(as, a)
	}

	for col := 0; col < m.NumColumns; col++ {
		path := m.levelOrder(th.height, col, !odFromSfc)
		dz := m.layerThickness(th.height, col)
		tauM := make([]float64, m.NumLevels)
		var t float64
		for _, k := range path {
			gi := m.gridIndex(col, k)
			b, a := molecular(inst.Wavelength, th.p.Elements[gi], th.t.Elements[gi])
			betaM.Elements[gi], alphaM.Elements[gi] = b, a
			tauM[k] = t + 0.5*a*dz[k]
			t += a * dz[k]
		}
		for s := 0; s < m.NumSubcolumns; s++ {
			var tau float64
			for _, k := range path {
				gi := m.gridIndex(col, k)
				si := m.subIndex(s, col, k)
				var b, a float64
				for i := range bs {
					b += at(bs[i], si)
					a += at(as[i], si)
				}
				betaP.Elements[si] = b
				alphaP.Elements[si] = a
				mid := tau + 0.5*a*dz[k]
				tau += a * dz[k]
				od.Elements[si] = mid
				betaAtt.Elements[si] = (b + betaM.Elements[gi]) * math.Exp(-2*(eta*mid+tauM[k]))
			}
		}
	}
	return nil
}

// LDRAndExt computes the particulate linear depolarization ratio
// (sub_col_LDR_tot) from the classes in hydTypes, and ext_mask, which is
// 1 where the particulate optical depth from the instrument exceeds
// extOD. TotalAlphaBeta must be called first.
func LDRAndExt(m *Model, extOD float64, hydTypes []string) error {
	od, err := m.subcolData("sub_col_OD_tot")
	if err != nil {
		return err
	}
	type classBeta struct {
		depol float64
		beta  *sparse.DenseArray
	}
	var cb []classBeta
	for _, c := range m.Classes {
		if !selected(hydTypes, c.Name) {
			continue
		}
		for _, r := range []Regime{Stratiform, Convective} {
			if b := m.subcolOrNil(BetaName(c.Name, r)); b != nil {
				cb = append(cb, classBeta{depol: c.Depol, beta: b})
			}
		}
	}
	ldr, err := m.ensureSubcol("sub_col_LDR_tot", "Particulate linear depolarization ratio", "1", false)
	if err != nil {
		return err
	}
	ext, err := m.ensureSubcol("ext_mask", "Lidar signal fully extinguished", "", true)
	if err != nil {
		return err
	}
	for i := range ldr.Elements {
		var perp, par float64
		for _, c := range cb {
			b := at(c.beta, i)
			perp += b * c.depol / (1 + c.depol)
			par += b / (1 + c.depol)
		}
		if par > 0 {
			ldr.Elements[i] = perp / par
		} else {
			ldr.Elements[i] = 0
		}
		if at(od, i) > extOD {
			ext.Elements[i] = 1
		} else {
			ext.Elements[i] = 0
		}
	}
	return nil
}
