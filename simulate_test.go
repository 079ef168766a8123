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
	"strings"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
)

// addConvection adds a convective cloud with snow aloft to m.
func addConvection(t *testing.T, m *Model) {
	between := func(lo, hi int, v float64) func(k int) float64 {
		return func(k int) float64 {
			if k >= lo && k <= hi {
				return v
			}
			return 0
		}
	}
	for name, f := range map[string]func(int) float64{
		RegimeFracName(Convective): between(4, 6, 0.2),
		QName("cl", Convective):    between(4, 5, 2e-4),
		QName("pi", Convective):    between(5, 6, 1e-4),
	} {
		if err := m.AddVariable(name, m.GridDims(), name, "", testGridField(m.NumColumns, f)); err != nil {
			t.Fatal(err)
		}
	}
	m.ProcessConv = true
}

func testConfig() Config {
	cfg := DefaultConfig()
	log, _ := test.NewNullLogger()
	cfg.Log = log
	cfg.Seed = 11
	return cfg
}

func mustInstrument(t *testing.T, name string) Instrument {
	inst, err := BuiltinInstrument(name)
	if err != nil {
		t.Fatal(err)
	}
	return inst
}

func TestScenarioB(t *testing.T) {
	m := newTestModel(t, 2)
	cfg := testConfig()
	cfg.SubcolGenOnly = true
	if _, err := MakeSimulatedData(m, mustInstrument(t, "KAZR"), 20, cfg); err != nil {
		t.Fatal(err)
	}
	if m.Stage != StageSubcolGenerated {
		t.Errorf("stage = %v, want %v", m.Stage, StageSubcolGenerated)
	}
	if !m.Has(SubQName("cl", Stratiform)) {
		t.Error("missing subcolumn mass")
	}
	for name := range m.Data {
		if strings.HasPrefix(name, "sub_col_") {
			t.Errorf("moment field %s should not exist", name)
		}
	}
}

func TestScenarioC(t *testing.T) {
	m := newTestModel(t, 2)
	before := len(m.Data)
	sonar := Instrument{Name: "sonar", Class: "sonar", Wavelength: 0.01,
		LiquidIndex: [2]float64{1.33, 0}, IceIndex: [2]float64{1.3, 0}}
	_, err := MakeSimulatedData(m, sonar, 20, testConfig())
	if !errors.Is(err, ErrConfiguration) {
		t.Fatalf("have error %v, want ErrConfiguration", err)
	}
	if len(m.Data) != before || len(m.Attributes) != 0 || m.NumSubcolumns != 0 {
		t.Errorf("model was modified: %d variables (was %d), %d attributes, %d subcolumns",
			len(m.Data), before, len(m.Attributes), m.NumSubcolumns)
	}
}

func TestConfigValidate(t *testing.T) {
	neg := -1.
	big := 2.
	tests := []struct {
		name string
		f    func(*Config)
	}{
		{"chunk", func(c *Config) { c.Chunk = -1 }},
		{"ref_rng", func(c *Config) { c.RefRng = 0 }},
		{"ext_OD", func(c *Config) { c.ExtOD = &neg }},
		{"eta", func(c *Config) { c.Eta = &big }},
		{"mask_height_rng", func(c *Config) { c.MaskHeightRng = &[2]float64{2000, 1000} }},
	}
	if err := DefaultConfig().Validate(); err != nil {
		t.Fatalf("default config: %v", err)
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			c := DefaultConfig()
			test.f(&c)
			if err := c.Validate(); !errors.Is(err, ErrConfiguration) {
				t.Errorf("have error %v, want ErrConfiguration", err)
			}
			m := newTestModel(t, 1)
			if _, err := MakeSimulatedData(m, mustInstrument(t, "KAZR"), 10, c); err == nil {
				t.Error("simulation should fail")
			}
			if m.HasSubcolumns() {
				t.Error("failed simulation wrote subcolumns")
			}
		})
	}
}

func TestSubcolumnsToUse(t *testing.T) {
	m := newTestModel(t, 1)
	if _, err := subcolumnsToUse(m, 0, false); !errors.Is(err, ErrConfiguration) {
		t.Errorf("zero subcolumns: %v", err)
	}
	if _, err := subcolumnsToUse(m, 0, true); !errors.Is(err, ErrConsistency) {
		t.Errorf("skip without subcolumns: %v", err)
	}
	if _, err := MakeSimulatedData(m, mustInstrument(t, "KAZR"), 12, testConfig()); err != nil {
		t.Fatal(err)
	}
	if n, err := subcolumnsToUse(m, 0, true); err != nil || n != 12 {
		t.Errorf("detected %d subcolumns (%v), want 12", n, err)
	}
	if _, err := subcolumnsToUse(m, 13, true); !errors.Is(err, ErrConsistency) {
		t.Errorf("wrong count: %v", err)
	}
	if _, err := subcolumnsToUse(m, 13, false); !errors.Is(err, ErrConsistency) {
		t.Errorf("regenerating with a different count: %v", err)
	}
}

// TestSkipIdempotence checks that rerunning the moments on existing
// subcolumns reproduces the first run.
func TestSkipIdempotence(t *testing.T) {
	for _, name := range []string{"KAZR", "HSRL"} {
		t.Run(name, func(t *testing.T) {
			inst := mustInstrument(t, name)
			m := newTestModel(t, 2)
			addConvection(t, m)
			cfg := testConfig()
			cfg.DoClassify = true
			if _, err := MakeSimulatedData(m, inst, 16, cfg); err != nil {
				t.Fatal(err)
			}
			first := make(map[string][]float64)
			for n, v := range m.Data {
				first[n] = append([]float64{}, v.Data.Elements...)
			}
			cfg.SkipSubcolGen = true
			if _, err := MakeSimulatedData(m, inst, 0, cfg); err != nil {
				t.Fatal(err)
			}
			for n, v := range m.Data {
				a, ok := first[n]
				if !ok {
					t.Errorf("variable %s was added by the second run", n)
					continue
				}
				for i := range a {
					if a[i] != v.Data.Elements[i] {
						t.Errorf("%s[%d] changed from %g to %g", n, i, a[i], v.Data.Elements[i])
						break
					}
				}
			}
		})
	}
}

// TestParallel checks that the results do not depend on how the columns
// are divided among workers.
func TestParallel(t *testing.T) {
	run := func(parallel bool, chunk int) *Model {
		m := newTestModel(t, 5)
		addConvection(t, m)
		cfg := testConfig()
		cfg.Parallel = parallel
		cfg.Chunk = chunk
		if _, err := MakeSimulatedData(m, mustInstrument(t, "KAZR"), 10, cfg); err != nil {
			t.Fatal(err)
		}
		return m
	}
	serial := run(false, 0)
	for _, n := range []string{SubFracName("cl", Stratiform), SubQName("cl", Stratiform),
		SubNName("cl", Stratiform), SubQName("pi", Convective)} {
		if !serial.Has(n) {
			t.Fatalf("missing subcolumn field %s", n)
		}
	}
	for _, chunk := range []int{0, 1, 2, 7} {
		p := run(true, chunk)
		for n, v := range serial.Data {
			pv := p.Data[n]
			for i, e := range v.Data.Elements {
				if pv.Data.Elements[i] != e {
					t.Fatalf("chunk %d: %s[%d] = %g, serial %g", chunk, n, i, pv.Data.Elements[i], e)
				}
			}
		}
	}
}

func TestPipelineStages(t *testing.T) {
	m := newTestModel(t, 1)
	cfg := testConfig()
	log, hook := test.NewNullLogger()
	log.SetLevel(logrus.DebugLevel)
	cfg.Log = log
	cfg.DoClassify = true
	cfg.FinalizeFields = true
	if _, err := MakeSimulatedData(m, mustInstrument(t, "KAZR"), 10, cfg); err != nil {
		t.Fatal(err)
	}
	if m.Stage != StageFinalized {
		t.Errorf("stage = %v", m.Stage)
	}
	var stages []string
	for _, e := range hook.AllEntries() {
		if s, ok := e.Data["stage"]; ok {
			stages = append(stages, s.(Stage).String())
		}
	}
	want := []string{"SUBCOL_GENERATED", "MOMENTS_COMPUTED", "CLASSIFIED", "FINALIZED"}
	if strings.Join(stages, ",") != strings.Join(want, ",") {
		t.Errorf("logged stages %v, want %v", stages, want)
	}
	for _, a := range []string{"emc2_instrument", "emc2_config_hash", "emc2_version"} {
		if m.Attributes[a] == "" {
			t.Errorf("missing attribute %s", a)
		}
	}
	if !m.Has(PhaseMaskName("KAZR")) {
		t.Error("missing phase mask")
	}
}

func TestConfigHash(t *testing.T) {
	a, b := testConfig(), testConfig()
	if a.hash() != b.hash() {
		t.Error("equal configurations have different hashes")
	}
	b.RefRng = 2000
	if a.hash() == b.hash() {
		t.Error("different configurations have the same hash")
	}
}

func TestUnstackAfterRun(t *testing.T) {
	m := NewModel("wrf", "", DimStacked, 4, testLevels, DefaultClasses())
	m.Stacked = &Stacking{Dims: []string{"Time", "south_north", "west_east"}, Lengths: []int{1, 2, 2}}
	src := newTestModel(t, 4)
	for n, v := range src.Data {
		if err := m.AddVariable(n, m.GridDims(), v.Description, v.Units, v.Data); err != nil {
			t.Fatal(err)
		}
	}
	cfg := testConfig()
	cfg.UnstackDims = true
	if _, err := MakeSimulatedData(m, mustInstrument(t, "HSRL"), 5, cfg); err != nil {
		t.Fatal(err)
	}
	v := m.Data["sub_col_beta_att_tot"]
	if !sameInts(v.Data.Shape, []int{5, 1, 2, 2, testLevels}) {
		t.Errorf("unstacked shape %v", v.Data.Shape)
	}
	if m.Stacked != nil {
		t.Error("stacking marker should be removed")
	}
}
