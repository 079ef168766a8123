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

// MomentCalculator computes the signals observed by one kind of
// instrument.
type MomentCalculator interface {
	// Instrument returns the instrument being simulated.
	Instrument() Instrument

	// CalcMoments computes per-class and per-regime moments for regime r.
	CalcMoments(m *Model, r Regime, o MomentOptions) error

	// CalcTotals combines the regimes and applies the instrument's
	// detection limits.
	CalcTotals(m *Model, o MomentOptions) error

	// ClassifyPhase writes hydrometeor phase classifications.
	ClassifyPhase(m *Model, o ClassifyOptions) error
}

// NewMomentCalculator returns the calculator for inst's class.
func NewMomentCalculator(inst Instrument) (MomentCalculator, error) {
	if err := inst.Validate(); err != nil {
		return nil, err
	}
	switch inst.Class {
	case RadarClass:
		return Radar{Inst: inst}, nil
	case LidarClass:
		return Lidar{Inst: inst}, nil
	}
	return nil, fmt.Errorf("%w: unsupported instrument class %q", ErrConfiguration, inst.Class)
}

// MomentOptions control moment calculations.
type MomentOptions struct {
	// HydTypes restricts calculations to the named hydrometeor classes.
	// All classes are used if it is empty.
	HydTypes []string

	// MieForIce specifies whether ice is treated with Mie theory.
	MieForIce bool

	// UseRadLogic specifies whether effective radii from the model's
	// radiation scheme are used to set particle size distributions.
	UseRadLogic bool

	// UseEmpiricCalc specifies whether empirical power laws are used
	// instead of size distribution integrals.
	UseEmpiricCalc bool

	// CalcSpectralWidth specifies whether the Doppler spectral width is
	// calculated. Radar only.
	CalcSpectralWidth bool

	// ODFromSfc specifies whether paths are integrated upward from the
	// surface (true) or downward from the model top (false).
	ODFromSfc bool

	// Eta is the lidar multiple-scattering factor.
	Eta float64

	// ExtOD is the optical depth at which the lidar signal is fully
	// extinguished.
	ExtOD float64

	// RefRng is the range [m] below which the radar sensitivity no
	// longer improves.
	RefRng float64

	// Parallel specifies whether columns are processed concurrently.
	Parallel bool

	// Chunk is the number of columns given to each worker at a time. If
	// it is not positive the columns are divided evenly among the
	// processors.
	Chunk int

	Log logrus.FieldLogger
}

func (o MomentOptions) logger() logrus.FieldLogger {
	if o.Log == nil {
		return logrus.StandardLogger()
	}
	return o.Log
}

// selected returns whether class c is included in hydTypes.
func selected(hydTypes []string, c string) bool {
	if len(hydTypes) == 0 {
		return true
	}
	for _, h := range hydTypes {
		if h == c {
			return true
		}
	}
	return false
}

// classInput holds the subcolumn data for one hydrometeor class.
type classInput struct {
	class HydrometeorClass
	table *scatterTable
	q, n  *sparse.DenseArray // subcolumn mass and number mixing ratios
	re    *sparse.DenseArray // grid effective radius, may be nil
}

// momentInputs gathers the classes in regime r that have subcolumn data.
func (m *Model) momentInputs(inst Instrument, r Regime, o MomentOptions) ([]classInput, error) {
	var o2 []classInput
	for _, c := range m.Classes {
		if !selected(o.HydTypes, c.Name) || !m.Has(SubQName(c.Name, r)) {
			continue
		}
		q, err := m.subcolData(SubQName(c.Name, r))
		if err != nil {
			return nil, err
		}
		in := classInput{
			class: c,
			table: getTable(inst, c, o.MieForIce),
			q:     q,
		}
		if m.Has(SubNName(c.Name, r)) {
			if in.n, err = m.subcolData(SubNName(c.Name, r)); err != nil {
				return nil, err
			}
		}
		if o.UseRadLogic {
			in.re = m.gridOrZero(ReName(c.Name, r))
		}
		o2 = append(o2, in)
	}
	return o2, nil
}

// thermo holds the thermodynamic state.
type thermo struct {
	height, t, p *sparse.DenseArray
}

func (m *Model) thermo() (thermo, error) {
	var th thermo
	var err error
	if th.height, err = m.gridData("height"); err != nil {
		return th, err
	}
	if th.t, err = m.gridData("temperature"); err != nil {
		return th, err
	}
	if th.p, err = m.gridData("pressure"); err != nil {
		return th, err
	}
	return th, nil
}

// workspace holds scratch space for one worker.
type workspace struct {
	n, buf []float64
}

func newWorkspace() *workspace {
	return &workspace{n: make([]float64, numBins), buf: make([]float64, numBins)}
}

// classProps are bulk optical properties of one class in one cell.
type classProps struct {
	back, ext, re float64
	vback, v2back float64 // fall speed and squared fall speed weighted by back
}

// props integrates the size distribution of class in at subcolumn
// index si and grid index gi.
func (in classInput) props(ws *workspace, si, gi int, rho float64) (classProps, bool) {
	q := at(in.q, si)
	if q <= 0 || rho <= 0 {
		return classProps{}, false
	}
	w := q * rho
	nt := at(in.n, si) * rho
	re := at(in.re, gi)
	t := in.table
	d := fitSizeDist(in.class, t, w, nt, re, ws.buf)
	d.sample(t, ws.n)
	var p classProps
	p.back = moment(t, ws.n, func(i int) float64 { return t.back[i] }, ws.buf)
	p.ext = moment(t, ws.n, func(i int) float64 { return t.ext[i] }, ws.buf)
	vfac := math.Sqrt(rho0 / rho)
	p.vback = vfac * moment(t, ws.n, func(i int) float64 { return t.back[i] * t.vt[i] }, ws.buf)
	p.v2back = vfac * vfac * moment(t, ws.n, func(i int) float64 { return t.back[i] * t.vt[i] * t.vt[i] }, ws.buf)
	if re > 0 {
		p.re = re
	} else {
		m3 := moment(t, ws.n, func(i int) float64 { return t.d[i] * t.d[i] * t.d[i] }, ws.buf)
		m2 := moment(t, ws.n, func(i int) float64 { return t.d[i] * t.d[i] }, ws.buf)
		if m2 > 0 {
			p.re = m3 / (2 * m2)
		}
	}
	return p, true
}

// regimesPresent returns the regimes for which the named per-regime
// field exists.
func (m *Model) regimesPresent(name func(Regime) string) []Regime {
	var o []Regime
	for _, r := range []Regime{Stratiform, Convective} {
		if m.Has(name(r)) {
			o = append(o, r)
		}
	}
	return o
}
