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
	"errors"
	"math"
	"testing"
)

func TestRadarPhase(t *testing.T) {
	lin := func(db float64) float64 { return math.Pow(10, db/10) }
	tests := []struct {
		name          string
		ze, vd, sigma float64
		t             float64
		want          Phase
	}{
		{name: "clear", ze: 0, t: 280, want: Clear},
		{name: "rain", ze: lin(20), vd: 4, t: 285, want: Rain},
		{name: "drizzle", ze: lin(-10), vd: 0.5, t: 285, want: Drizzle},
		{name: "warm cloud", ze: lin(-35), vd: 0.1, t: 285, want: Liquid},
		{name: "supercooled", ze: lin(-35), vd: 0.1, t: 260, want: Liquid},
		{name: "mixed", ze: lin(-20), vd: 0.5, sigma: 0.6, t: 260, want: Mixed},
		{name: "snow", ze: lin(5), vd: 1.2, t: 260, want: Snow},
		{name: "ice", ze: lin(-20), vd: 0.5, sigma: 0.1, t: 250, want: Ice},
		{name: "cold cloud", ze: lin(-35), vd: 0.1, t: 220, want: Ice},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			if got := radarPhase(test.ze, test.vd, test.sigma, test.t); got != test.want {
				t.Errorf("have %v, want %v", got, test.want)
			}
		})
	}
}

func TestPhaseString(t *testing.T) {
	if Undefined.String() != "undefined" || Phase(12).String() != "Phase(12)" {
		t.Error("wrong phase names")
	}
}

func TestClassifyRequiresMoments(t *testing.T) {
	m := newTestModel(t, 1)
	m.NumSubcolumns = 5
	if err := RadarClassifyPhase(m, mustInstrument(t, "KAZR"), ClassifyOptions{}); !errors.Is(err, ErrConfiguration) {
		t.Errorf("radar: have error %v, want ErrConfiguration", err)
	}
	if err := LidarClassifyPhase(m, mustInstrument(t, "HSRL"), ClassifyOptions{}); !errors.Is(err, ErrConfiguration) {
		t.Errorf("lidar: have error %v, want ErrConfiguration", err)
	}
	if err := LidarEmulateCOSPPhase(m, mustInstrument(t, "HSRL"), ClassifyOptions{Eta: 1, ExtOD: 3}); !errors.Is(err, ErrConfiguration) {
		t.Errorf("spaceborne lidar: have error %v, want ErrConfiguration", err)
	}
	if err := RadarClassifyPhase(m, mustInstrument(t, "HSRL"), ClassifyOptions{}); !errors.Is(err, ErrConfiguration) {
		t.Errorf("wrong instrument: have error %v, want ErrConfiguration", err)
	}
}

func TestRadarClassifyPhase(t *testing.T) {
	cfg := testConfig()
	cfg.DoClassify = true
	m := radarRun(t, "KAZR", cfg)
	phase := m.Data[PhaseMaskName("KAZR")].Data
	mask := m.Data["detect_mask"].Data
	th, _ := m.thermo()
	counts := make(map[Phase]int)
	for s := 0; s < m.NumSubcolumns; s++ {
		for c := 0; c < m.NumColumns; c++ {
			for k := 0; k < m.NumLevels; k++ {
				si := m.subIndex(s, c, k)
				p := Phase(phase.Elements[si])
				counts[p]++
				if (mask.Elements[si] == 0) != (p == Clear) {
					t.Fatalf("phase %v with detection %g", p, mask.Elements[si])
				}
				warm := th.t.Elements[m.gridIndex(c, k)] > freezing
				if warm && (p == Ice || p == Snow || p == Mixed) {
					t.Fatalf("frozen phase %v above freezing", p)
				}
			}
		}
	}
	for _, p := range []Phase{Clear, Liquid} {
		if counts[p] == 0 {
			t.Errorf("no %v gates in %v", p, counts)
		}
	}
	if counts[Rain]+counts[Drizzle] == 0 {
		t.Errorf("no precipitating liquid in %v", counts)
	}
	if counts[Ice]+counts[Snow]+counts[Mixed] == 0 {
		t.Errorf("no frozen gates in %v", counts)
	}
}

func TestClassifyOptions(t *testing.T) {
	cfg := testConfig()
	cfg.DoClassify = true
	cfg.ConvertZerosToNaN = true
	cfg.MaskHeightRng = &[2]float64{1000, 3000}
	m := lidarRun(t, "HSRL", cfg)
	th, _ := m.thermo()
	for _, name := range []string{PhaseMaskName("HSRL"), COSPPhaseMaskName("HSRL")} {
		v := m.Data[name]
		if !v.Mask {
			t.Errorf("%s is not a mask", name)
		}
		for s := 0; s < m.NumSubcolumns; s++ {
			for c := 0; c < m.NumColumns; c++ {
				for k := 0; k < m.NumLevels; k++ {
					p := v.Data.Elements[m.subIndex(s, c, k)]
					h := th.height.Elements[m.gridIndex(c, k)]
					if p == 0 {
						t.Fatalf("%s: clear gate was not converted to NaN", name)
					}
					if (h < 1000 || h > 3000) && !math.IsNaN(p) {
						t.Fatalf("%s: gate at %g m outside the height range has phase %g", name, h, p)
					}
				}
			}
		}
	}
}

func TestLidarPhases(t *testing.T) {
	cfg := testConfig()
	cfg.DoClassify = true
	m := lidarRun(t, "HSRL", cfg)
	phase := m.Data[PhaseMaskName("HSRL")].Data
	cosp := m.Data[COSPPhaseMaskName("HSRL")].Data
	ext := m.Data["ext_mask"].Data
	th, _ := m.thermo()
	var liquid, ice int
	for s := 0; s < m.NumSubcolumns; s++ {
		for c := 0; c < m.NumColumns; c++ {
			for k := 0; k < m.NumLevels; k++ {
				si := m.subIndex(s, c, k)
				p := Phase(phase.Elements[si])
				if ext.Elements[si] > 0 && p != Undefined {
					t.Fatalf("extinguished gate has phase %v", p)
				}
				switch p {
				case Liquid:
					liquid++
				case Ice:
					ice++
				}
				cp := Phase(cosp.Elements[si])
				tk := th.t.Elements[m.gridIndex(c, k)]
				if cp == Ice && tk > freezing {
					t.Fatalf("spaceborne classification found ice at %g K", tk)
				}
				if cp == Liquid && tk < homogeneousFz {
					t.Fatalf("spaceborne classification found liquid at %g K", tk)
				}
			}
		}
	}
	if liquid == 0 || ice == 0 {
		t.Errorf("found %d liquid and %d ice gates", liquid, ice)
	}
}
