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

	"github.com/emc2sim/emc2/internal/hash"
	"github.com/sirupsen/logrus"
)

// Config holds the settings of a simulation run. Use DefaultConfig to
// get a Config with the documented defaults.
type Config struct {
	// DoClassify specifies whether phase classification is carried out.
	// Default false.
	DoClassify bool

	// UnstackDims specifies whether a stacked column axis is expanded
	// into its original axes at the end of the run. Default false.
	UnstackDims bool

	// SkipSubcolGen specifies that the model already holds subcolumns
	// that should be reused. Default false.
	SkipSubcolGen bool

	// FinalizeFields specifies whether exact zeros in subcolumn fields
	// are set to NaN at the end of the run. Default false.
	FinalizeFields bool

	// CalcSpectralWidth specifies whether the radar Doppler spectral
	// width is calculated. Default true.
	CalcSpectralWidth bool

	// SubcolGenOnly stops the run after subcolumn generation.
	// Default false.
	SubcolGenOnly bool

	// UseRadLogic specifies whether the model's radiation-scheme
	// fractions and effective radii are used. Default true.
	UseRadLogic bool

	// ODFromSfc overrides the instrument's integration direction.
	ODFromSfc *bool

	// Parallel specifies whether columns are processed concurrently.
	// Default true.
	Parallel bool

	// Chunk is the number of columns per parallel chunk. Zero divides
	// the columns evenly among the processors.
	Chunk int

	// ConvertZerosToNaN sets clear gates in phase classifications to NaN.
	ConvertZerosToNaN bool

	// MaskHeightRng restricts phase classification to a range of
	// heights [m].
	MaskHeightRng *[2]float64

	// HydTypes restricts the hydrometeor classes used for moments. All
	// classes are used if it is empty.
	HydTypes []string

	// MieForIce, if not nil, specifies whether ice is treated with Mie
	// theory in both regimes. Otherwise the choice depends on
	// UseRadLogic and the microphysics scheme.
	MieForIce *bool

	// UseEmpiricCalc specifies whether empirical reflectivity power laws
	// are used. Default false.
	UseEmpiricCalc bool

	// RefRng is the radar reference range [m]. Default 1000.
	RefRng float64

	// ExtOD and Eta override the lidar instrument defaults.
	ExtOD *float64
	Eta   *float64

	// QcFlag specifies whether stratiform cloud liquid (class "cl") is
	// distributed with gamma-distributed sub-grid variability. Default
	// true.
	QcFlag bool

	// Seed is the base seed for all random numbers.
	Seed uint64

	// Log receives progress messages. The standard logger is used if
	// it is nil.
	Log logrus.FieldLogger
}

// DefaultConfig returns the default simulation settings.
func DefaultConfig() Config {
	return Config{
		CalcSpectralWidth: true,
		UseRadLogic:       true,
		Parallel:          true,
		RefRng:            1000,
		QcFlag:            true,
	}
}

// Validate checks the settings for errors.
func (c Config) Validate() error {
	if c.Chunk < 0 {
		return fmt.Errorf("%w: chunk must not be negative, not %d", ErrConfiguration, c.Chunk)
	}
	if c.RefRng <= 0 {
		return fmt.Errorf("%w: ref_rng must be positive, not %g", ErrConfiguration, c.RefRng)
	}
	if c.ExtOD != nil && *c.ExtOD <= 0 {
		return fmt.Errorf("%w: ext_OD must be positive, not %g", ErrConfiguration, *c.ExtOD)
	}
	if c.Eta != nil && (*c.Eta <= 0 || *c.Eta > 1) {
		return fmt.Errorf("%w: eta must be in (0, 1], not %g", ErrConfiguration, *c.Eta)
	}
	if r := c.MaskHeightRng; r != nil && r[0] > r[1] {
		return fmt.Errorf("%w: mask_height_rng %v is reversed", ErrConfiguration, *r)
	}
	return nil
}

func (c Config) logger() logrus.FieldLogger {
	if c.Log == nil {
		return logrus.StandardLogger()
	}
	return c.Log
}

// mieForIce returns whether ice in regime r is treated with Mie theory.
func (c Config) mieForIce(m *Model, r Regime) bool {
	switch {
	case c.MieForIce != nil:
		return *c.MieForIce
	case c.UseRadLogic:
		return false
	case m.Scheme == "p3":
		// P3 ice properties already integrate over habit.
		return false
	default:
		return r == Stratiform
	}
}

// hash returns a fingerprint of the settings that affect results.
func (c Config) hash() string {
	c.Log = nil
	return hash.Hash(c)
}

// MakeSimulatedData runs the simulator for instrument inst on m, which
// is modified in place and returned. nColumns is the number of
// subcolumns to generate; when cfg.SkipSubcolGen is true it may be zero,
// in which case it is detected from the existing subcolumns.
//
// All settings are checked before any data are written. Any error
// aborts the run; m may then hold the results of the stages that
// completed.
func MakeSimulatedData(m *Model, inst Instrument, nColumns int, cfg Config) (*Model, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if err := m.checkColumns(); err != nil {
		return nil, err
	}
	calc, err := NewMomentCalculator(inst)
	if err != nil {
		return nil, err
	}
	for _, c := range m.Classes {
		if err := c.validate(); err != nil {
			return nil, err
		}
	}
	n, err := subcolumnsToUse(m, nColumns, cfg.SkipSubcolGen)
	if err != nil {
		return nil, err
	}
	log := cfg.logger().WithFields(logrus.Fields{"instrument": inst.Name, "model": m.Name})

	m.Attributes["emc2_instrument"] = inst.Name
	m.Attributes["emc2_config_hash"] = cfg.hash()
	m.Attributes["emc2_version"] = Version
	if err := m.SetSubcolumns(n); err != nil {
		return nil, err
	}

	if cfg.SkipSubcolGen {
		log.Infof("reusing %d existing subcolumns", n)
	} else {
		if err := generateSubcolumns(m, cfg, log); err != nil {
			return nil, err
		}
	}
	m.Stage = StageSubcolGenerated
	log.WithField("stage", m.Stage).Info("subcolumns ready")

	if cfg.SubcolGenOnly {
		return m, unstack(m, cfg, log)
	}

	odFromSfc := inst.ODFromSfc
	if cfg.ODFromSfc != nil {
		odFromSfc = *cfg.ODFromSfc
	}
	o := MomentOptions{
		HydTypes:          cfg.HydTypes,
		UseRadLogic:       cfg.UseRadLogic,
		UseEmpiricCalc:    cfg.UseEmpiricCalc,
		CalcSpectralWidth: cfg.CalcSpectralWidth,
		ODFromSfc:         odFromSfc,
		Eta:               inst.Eta,
		ExtOD:             inst.ExtOD,
		RefRng:            cfg.RefRng,
		Parallel:          cfg.Parallel,
		Chunk:             cfg.Chunk,
		Log:               log,
	}
	if cfg.Eta != nil {
		o.Eta = *cfg.Eta
	}
	if cfg.ExtOD != nil {
		o.ExtOD = *cfg.ExtOD
	}
	regimes := []Regime{Stratiform}
	if m.ProcessConv {
		regimes = append(regimes, Convective)
	} else {
		log.Info("convective processing is disabled for this model")
	}
	for _, r := range regimes {
		o.MieForIce = cfg.mieForIce(m, r)
		if err := calc.CalcMoments(m, r, o); err != nil {
			return nil, err
		}
	}
	if err := calc.CalcTotals(m, o); err != nil {
		return nil, err
	}
	m.Stage = StageMomentsComputed
	log.WithField("stage", m.Stage).Info("moments computed")

	if cfg.DoClassify {
		co := ClassifyOptions{
			MaskHeightRng:     cfg.MaskHeightRng,
			ConvertZerosToNaN: cfg.ConvertZerosToNaN,
			HydTypes:          cfg.HydTypes,
			ODFromSfc:         odFromSfc,
			Eta:               o.Eta,
			ExtOD:             o.ExtOD,
			Log:               log,
		}
		if err := calc.ClassifyPhase(m, co); err != nil {
			return nil, err
		}
		m.Stage = StageClassified
		log.WithField("stage", m.Stage).Info("phase classified")
	}

	if cfg.FinalizeFields {
		m.FinalizeSubcolumnFields()
		log.WithField("stage", m.Stage).Info("fields finalized")
	}
	return m, unstack(m, cfg, log)
}

func unstack(m *Model, cfg Config, log logrus.FieldLogger) error {
	if !cfg.UnstackDims {
		return nil
	}
	return m.Unstack(log)
}

// subcolumnsToUse returns the number of subcolumns for a run.
func subcolumnsToUse(m *Model, nColumns int, skip bool) (int, error) {
	existing := m.DetectSubcolumns()
	if !skip {
		if nColumns <= 0 {
			return 0, fmt.Errorf("%w: number of subcolumns must be positive, not %d", ErrConfiguration, nColumns)
		}
		if existing > 0 && existing != nColumns {
			return 0, fmt.Errorf("%w: model already has %d subcolumns; cannot generate %d",
				ErrConsistency, existing, nColumns)
		}
		return nColumns, nil
	}
	if existing == 0 {
		return 0, fmt.Errorf("%w: skip_subcol_gen is set but the model has no subcolumns", ErrConsistency)
	}
	if nColumns > 0 && nColumns != existing {
		return 0, fmt.Errorf("%w: model has %d subcolumns, not %d", ErrConsistency, existing, nColumns)
	}
	return existing, nil
}

// generateSubcolumns assigns hydrometeors to subcolumns and distributes
// their mass and number.
func generateSubcolumns(m *Model, cfg Config, log logrus.FieldLogger) error {
	o := SubcolumnOptions{
		Seed:        cfg.Seed,
		UseRadLogic: cfg.UseRadLogic,
		Parallel:    cfg.Parallel,
		Chunk:       cfg.Chunk,
	}
	regimes := []Regime{Stratiform}
	if m.ProcessConv {
		log.Info("generating convective subcolumns")
		if err := ConvectiveSubcolumnFraction(m, o); err != nil {
			return err
		}
		regimes = append(regimes, Convective)
	}
	log.Info("generating stratiform subcolumns")
	if err := StratiformSubcolumnFraction(m, o); err != nil {
		return err
	}
	for _, r := range regimes {
		log.WithField("regime", r.String()).Info("generating precipitation subcolumns")
		if err := PrecipSubcolumnFraction(m, r, o); err != nil {
			return err
		}
	}
	for _, r := range regimes {
		for _, c := range m.Classes {
			if !m.Has(QName(c.Name, r)) {
				continue
			}
			qcFlag := cfg.QcFlag && r == Stratiform && c.Name == subgridClass
			log.WithFields(logrus.Fields{"regime": r.String(), "class": c.Name}).Debug("distributing mass and number")
			if err := DistributeMassNumber(m, c, r, qcFlag, o); err != nil {
				return err
			}
		}
	}
	return nil
}
