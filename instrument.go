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
	"io"
	"math"
	"sort"
	"strings"

	"github.com/BurntSushi/toml"
)

// InstrumentClass is the kind of instrument being simulated.
type InstrumentClass string

// Supported instrument classes.
const (
	RadarClass InstrumentClass = "radar"
	LidarClass InstrumentClass = "lidar"
)

// Instrument describes a remote sensing instrument. Instruments are
// passed by value and are not modified during a simulation.
type Instrument struct {
	Name  string          `toml:"name"`
	Class InstrumentClass `toml:"class"`

	// Wavelength [m].
	Wavelength float64 `toml:"wavelength"`

	// Altitude of the instrument above the model surface [m].
	Altitude float64 `toml:"altitude"`

	// ODFromSfc specifies whether the instrument looks up from the
	// surface (true) or down from above (false). It is the default for
	// path integrations and can be overridden per simulation.
	ODFromSfc bool `toml:"od_from_sfc"`

	// LiquidIndex and IceIndex are the real and imaginary parts of the
	// refractive indices of liquid water and ice at Wavelength.
	LiquidIndex [2]float64 `toml:"liquid_index"`
	IceIndex    [2]float64 `toml:"ice_index"`

	// KwSquared is the dielectric factor of water used to normalize
	// equivalent reflectivity. Radar only.
	KwSquared float64 `toml:"kw_squared"`

	// ZMin1km is the minimum detectable reflectivity at 1 km range [dBZ].
	// Radar only.
	ZMin1km float64 `toml:"z_min_1km"`

	// GasAttenuation is the one-way gaseous attenuation [dB km-1].
	// Radar only.
	GasAttenuation float64 `toml:"gas_attenuation"`

	// ExtOD is the optical depth at which the lidar signal is considered
	// fully extinguished. Lidar only.
	ExtOD float64 `toml:"ext_od"`

	// Eta is the multiple-scattering factor. Lidar only.
	Eta float64 `toml:"eta"`

	// BetaMin is the smallest detectable particulate backscatter
	// [m-1 sr-1]. Lidar only.
	BetaMin float64 `toml:"beta_min"`
}

func (i Instrument) liquidIndex() complex128 { return complex(i.LiquidIndex[0], i.LiquidIndex[1]) }
func (i Instrument) iceIndex() complex128    { return complex(i.IceIndex[0], i.IceIndex[1]) }

// rangeTo returns the distance [m] between the instrument and height h.
func (i Instrument) rangeTo(h float64) float64 { return math.Abs(h - i.Altitude) }

// Validate checks that i describes a supported instrument.
func (i Instrument) Validate() error {
	switch i.Class {
	case RadarClass:
		if i.KwSquared <= 0 {
			return fmt.Errorf("%w: radar %s needs a positive kw_squared", ErrConfiguration, i.Name)
		}
	case LidarClass:
		if i.ExtOD <= 0 || i.Eta <= 0 || i.Eta > 1 {
			return fmt.Errorf("%w: lidar %s needs ext_od > 0 and 0 < eta <= 1", ErrConfiguration, i.Name)
		}
	default:
		return fmt.Errorf("%w: instrument %s has unsupported class %q; valid classes are %q and %q",
			ErrConfiguration, i.Name, i.Class, RadarClass, LidarClass)
	}
	if i.Wavelength <= 0 {
		return fmt.Errorf("%w: instrument %s needs a positive wavelength", ErrConfiguration, i.Name)
	}
	if i.LiquidIndex[0] < 1 || i.IceIndex[0] < 1 {
		return fmt.Errorf("%w: instrument %s has invalid refractive indices", ErrConfiguration, i.Name)
	}
	return nil
}

// builtinInstruments are the instruments that are available by name.
var builtinInstruments = map[string]Instrument{
	"KAZR": {
		Name: "KAZR", Class: RadarClass, Wavelength: 8.6e-3, ODFromSfc: true,
		LiquidIndex: [2]float64{5.55, 2.85}, IceIndex: [2]float64{1.78, 0.0024},
		KwSquared: 0.88, ZMin1km: -51.5, GasAttenuation: 0.16,
	},
	"WACR": {
		Name: "WACR", Class: RadarClass, Wavelength: 3.15e-3, ODFromSfc: true,
		LiquidIndex: [2]float64{3.57, 2.16}, IceIndex: [2]float64{1.78, 0.0029},
		KwSquared: 0.75, ZMin1km: -52, GasAttenuation: 0.4,
	},
	"CSAPR2": {
		Name: "CSAPR2", Class: RadarClass, Wavelength: 5.5e-2, ODFromSfc: true,
		LiquidIndex: [2]float64{8.5, 1.6}, IceIndex: [2]float64{1.78, 0.0006},
		KwSquared: 0.93, ZMin1km: -35, GasAttenuation: 0.008,
	},
	"CPR": {
		Name: "CPR", Class: RadarClass, Wavelength: 3.19e-3, Altitude: 705e3,
		LiquidIndex: [2]float64{3.57, 2.16}, IceIndex: [2]float64{1.78, 0.0029},
		KwSquared: 0.75, ZMin1km: -87, GasAttenuation: 0.4,
	},
	"HSRL": {
		Name: "HSRL", Class: LidarClass, Wavelength: 532e-9, ODFromSfc: true,
		LiquidIndex: [2]float64{1.337, 1e-9}, IceIndex: [2]float64{1.312, 1e-9},
		ExtOD: 4, Eta: 1, BetaMin: 2e-7,
	},
	"MPL": {
		Name: "MPL", Class: LidarClass, Wavelength: 532e-9, ODFromSfc: true,
		LiquidIndex: [2]float64{1.337, 1e-9}, IceIndex: [2]float64{1.312, 1e-9},
		ExtOD: 4, Eta: 1, BetaMin: 1e-6,
	},
	"CEIL": {
		Name: "CEIL", Class: LidarClass, Wavelength: 910e-9, ODFromSfc: true,
		LiquidIndex: [2]float64{1.327, 4.5e-7}, IceIndex: [2]float64{1.303, 2.4e-7},
		ExtOD: 4, Eta: 1, BetaMin: 2e-6,
	},
	"CALIOP": {
		Name: "CALIOP", Class: LidarClass, Wavelength: 532e-9, Altitude: 705e3,
		LiquidIndex: [2]float64{1.337, 1e-9}, IceIndex: [2]float64{1.312, 1e-9},
		ExtOD: 3, Eta: 0.7, BetaMin: 1e-6,
	},
}

// BuiltinInstrument returns the named built-in instrument. Names are not
// case sensitive.
func BuiltinInstrument(name string) (Instrument, error) {
	i, ok := builtinInstruments[strings.ToUpper(name)]
	if !ok {
		return Instrument{}, fmt.Errorf("%w: unknown instrument %q; valid instruments are %v",
			ErrConfiguration, name, InstrumentNames())
	}
	return i, nil
}

// InstrumentNames returns the names of the built-in instruments.
func InstrumentNames() []string {
	o := make([]string, 0, len(builtinInstruments))
	for n := range builtinInstruments {
		o = append(o, n)
	}
	sort.Strings(o)
	return o
}

// LoadInstruments reads instrument definitions from TOML-formatted r,
// where each instrument is given in an [[instrument]] table. Fields that
// are not given are taken from the built-in instrument with the same name,
// if there is one.
func LoadInstruments(r io.Reader) ([]Instrument, error) {
	var raw struct {
		Instrument []toml.Primitive `toml:"instrument"`
	}
	md, err := toml.NewDecoder(r).Decode(&raw)
	if err != nil {
		return nil, fmt.Errorf("emc2: reading instrument definitions: %v", err)
	}
	o := make([]Instrument, len(raw.Instrument))
	for j, p := range raw.Instrument {
		var name struct {
			Name string `toml:"name"`
		}
		if err := md.PrimitiveDecode(p, &name); err != nil {
			return nil, fmt.Errorf("emc2: reading instrument definitions: %v", err)
		}
		inst := builtinInstruments[strings.ToUpper(name.Name)]
		if err := md.PrimitiveDecode(p, &inst); err != nil {
			return nil, fmt.Errorf("emc2: reading instrument %s: %v", name.Name, err)
		}
		if err := inst.Validate(); err != nil {
			return nil, err
		}
		o[j] = inst
	}
	return o, nil
}
