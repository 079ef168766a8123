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

// dBZ converts linear reflectivity [mm6 m-3] to decibels. Zero
// reflectivity is -Inf.
func dBZ(z float64) float64 { return 10 * math.Log10(z) }

// RadarZeMin computes the minimum detectable reflectivity Ze_min [dBZ] at
// every grid cell:
//
//	Ze_min = ZMin1km + 20 log10(max(r, refRng) / 1 km) + 2 A_gas r_gas
//
// where r is the range from the instrument and r_gas [km] is the part of
// that range that lies inside the model column. Sensitivity does not
// improve at ranges shorter than refRng [m].
func RadarZeMin(m *Model, inst Instrument, refRng float64) error {
	if inst.Class != RadarClass {
		return fmt.Errorf("%w: %s is not a radar", ErrConfiguration, inst.Name)
	}
	if refRng <= 0 {
		return fmt.Errorf("%w: ref_rng must be positive, not %g", ErrConfiguration, refRng)
	}
	height, err := m.gridData("height")
	if err != nil {
		return err
	}
	zmin, err := m.ensureGrid("Ze_min", "Minimum detectable equivalent reflectivity", "dBZ")
	if err != nil {
		return err
	}
	for col := 0; col < m.NumColumns; col++ {
		top := math.Inf(-1)
		for k := 0; k < m.NumLevels; k++ {
			top = math.Max(top, height.Elements[m.gridIndex(col, k)])
		}
		entry := math.Min(inst.Altitude, top)
		for k := 0; k < m.NumLevels; k++ {
			i := m.gridIndex(col, k)
			h := height.Elements[i]
			r := math.Max(inst.rangeTo(h), refRng)
			gas := math.Abs(h-entry) / 1000
			zmin.Elements[i] = inst.ZMin1km + 20*math.Log10(r/1000) + 2*inst.GasAttenuation*gas
		}
	}
	return nil
}

// ApplyDetection writes detect_mask, which is 1 where the total
// attenuated reflectivity is at least Ze_min, and zeroes the total
// reflectivity and Doppler moments where it is 0. RadarZeMin and
// TotalReflectivity must be called first.
func ApplyDetection(m *Model) error {
	zmin, err := m.gridData("Ze_min")
	if err != nil {
		return err
	}
	zeAtt, err := m.subcolData("sub_col_Ze_att_tot")
	if err != nil {
		return err
	}
	mask, err := m.ensureSubcol("detect_mask", "Radar detection mask", "", true)
	if err != nil {
		return err
	}
	var masked []*Variable
	for _, n := range []string{"sub_col_Ze_tot", "sub_col_Ze_att_tot", "sub_col_Vd_tot", "sub_col_sigma_d_tot"} {
		if v, ok := m.Data[n]; ok {
			masked = append(masked, v)
		}
	}
	for s := 0; s < m.NumSubcolumns; s++ {
		for col := 0; col < m.NumColumns; col++ {
			for k := 0; k < m.NumLevels; k++ {
				si := m.subIndex(s, col, k)
				z := at(zeAtt, si)
				if z > 0 && dBZ(z) >= zmin.Elements[m.gridIndex(col, k)] {
					mask.Elements[si] = 1
					continue
				}
				mask.Elements[si] = 0
				for _, v := range masked {
					v.Data.Elements[si] = 0
				}
			}
		}
	}
	return nil
}
