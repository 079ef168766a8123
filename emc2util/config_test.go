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
package emc2util

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"testing"

	"github.com/emc2sim/emc2"
	"github.com/lnashier/viper"
)

func TestSimulationConfig(t *testing.T) {
	t.Run("defaults", func(t *testing.T) {
		c, err := SimulationConfig(viper.New())
		if err != nil {
			t.Fatal(err)
		}
		if c.ODFromSfc != nil || c.MieForIce != nil || c.ExtOD != nil || c.Eta != nil || c.MaskHeightRng != nil {
			t.Errorf("unset options should be nil: %+v", c)
		}
	})
	t.Run("set", func(t *testing.T) {
		cfg := viper.New()
		cfg.Set("DoClassify", true)
		cfg.Set("RefRng", 2000.0)
		cfg.Set("Chunk", 4)
		cfg.Set("Seed", 12)
		cfg.Set("ODFromSfc", "false")
		cfg.Set("MieForIce", true)
		cfg.Set("Eta", 0.5)
		cfg.Set("HydTypes", []string{"cl", "ci"})
		cfg.Set("MaskHeightRng", "[1000, 3000]")
		c, err := SimulationConfig(cfg)
		if err != nil {
			t.Fatal(err)
		}
		if !c.DoClassify || c.RefRng != 2000 || c.Chunk != 4 || c.Seed != 12 {
			t.Errorf("config = %+v", c)
		}
		if c.ODFromSfc == nil || *c.ODFromSfc {
			t.Error("ODFromSfc should be false")
		}
		if c.MieForIce == nil || !*c.MieForIce {
			t.Error("MieForIce should be true")
		}
		if c.Eta == nil || *c.Eta != 0.5 || c.ExtOD != nil {
			t.Errorf("Eta = %v, ExtOD = %v", c.Eta, c.ExtOD)
		}
		if !reflect.DeepEqual(c.HydTypes, []string{"cl", "ci"}) {
			t.Errorf("HydTypes = %v", c.HydTypes)
		}
		if c.MaskHeightRng == nil || *c.MaskHeightRng != [2]float64{1000, 3000} {
			t.Errorf("MaskHeightRng = %v", c.MaskHeightRng)
		}
	})
	t.Run("array", func(t *testing.T) {
		cfg := viper.New()
		cfg.Set("MaskHeightRng", []interface{}{500, 1500.5})
		c, err := SimulationConfig(cfg)
		if err != nil {
			t.Fatal(err)
		}
		if *c.MaskHeightRng != [2]float64{500, 1500.5} {
			t.Errorf("MaskHeightRng = %v", *c.MaskHeightRng)
		}
	})

	bad := map[string]interface{}{
		"ODFromSfc":     "maybe",
		"MaskHeightRng": "[1000]",
		"RefRng":        -1.0,
		"Eta":           2.0,
		"Seed":          -3,
	}
	for name, val := range bad {
		t.Run(name, func(t *testing.T) {
			cfg := viper.New()
			cfg.Set("RefRng", 1000.0)
			cfg.Set(name, val)
			if _, err := SimulationConfig(cfg); !errors.Is(err, emc2.ErrConfiguration) {
				t.Errorf("have error %v, want ErrConfiguration", err)
			}
		})
	}
}

func TestGetStringMapString(t *testing.T) {
	want := map[string]string{"Ze": "dBZ(sub_col_Ze_att_tot)"}
	tests := []struct {
		name string
		val  interface{}
		want map[string]string
	}{
		{name: "json", val: `{"Ze": "dBZ(sub_col_Ze_att_tot)"}`, want: want},
		// Configuration file keys are not case sensitive.
		{name: "map", val: map[string]interface{}{"Ze": "dBZ(sub_col_Ze_att_tot)"},
			want: map[string]string{"ze": "dBZ(sub_col_Ze_att_tot)"}},
		{name: "empty", val: "  ", want: nil},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			cfg := viper.New()
			cfg.Set("OutputVariables", test.val)
			have, err := GetStringMapString("OutputVariables", cfg)
			if err != nil {
				t.Fatal(err)
			}
			if !reflect.DeepEqual(have, test.want) {
				t.Errorf("have %v, want %v", have, test.want)
			}
		})
	}
	cfg := viper.New()
	cfg.Set("OutputVariables", "{not json")
	if _, err := GetStringMapString("OutputVariables", cfg); !errors.Is(err, emc2.ErrConfiguration) {
		t.Errorf("malformed json: %v", err)
	}
}

func TestCheckOutputVars(t *testing.T) {
	os.Setenv("EMC2_TEST_VAR", "sub_col_Ze_tot")
	defer os.Unsetenv("EMC2_TEST_VAR")
	o, err := checkOutputVars(map[string]string{"Ze": "dBZ(\n$EMC2_TEST_VAR)"}, nil)
	if err != nil {
		t.Fatal(err)
	}
	if o["Ze"] != "dBZ( sub_col_Ze_tot)" {
		t.Errorf("have %q", o["Ze"])
	}
}

func TestCheckOutputFile(t *testing.T) {
	ctx := context.Background()
	if _, err := checkOutputFile(ctx, ""); !errors.Is(err, emc2.ErrConfiguration) {
		t.Errorf("empty output file: %v", err)
	}
	if _, err := checkOutputFile(ctx, "/does/not/exist/out.nc"); err == nil {
		t.Error("missing directory should fail")
	}
	dir := t.TempDir()
	f := filepath.Join(dir, "out.nc")
	if have, err := checkOutputFile(ctx, f); err != nil || have != f {
		t.Errorf("have %s, %v", have, err)
	}
	if _, err := checkOutputFile(ctx, "file://"+f); err != nil {
		t.Error(err)
	}
	if have := checkLogFile("", f); have != filepath.Join(dir, "out.log") {
		t.Errorf("log file %s", have)
	}
}

func TestInstruments(t *testing.T) {
	f := filepath.Join(t.TempDir(), "instruments.toml")
	def := "[[instrument]]\nname = \"Raman\"\nclass = \"lidar\"\nwavelength = 355e-9\nliquid_index = [1.357, 2e-9]\nice_index = [1.323, 2e-9]\next_od = 3.5\neta = 0.8\n"
	if err := os.WriteFile(f, []byte(def), 0644); err != nil {
		t.Fatal(err)
	}
	insts, err := instruments(f)
	if err != nil {
		t.Fatal(err)
	}
	if len(insts) != len(emc2.InstrumentNames())+1 {
		t.Errorf("have %d instruments", len(insts))
	}
	i, err := instrument("raman", f)
	if err != nil {
		t.Fatal(err)
	}
	if i.Wavelength != 355e-9 {
		t.Errorf("Raman wavelength %g", i.Wavelength)
	}
	if _, err := instrument("raman", ""); !errors.Is(err, emc2.ErrConfiguration) {
		t.Errorf("undefined instrument: %v", err)
	}
	if _, err := instruments(filepath.Join(t.TempDir(), "missing.toml")); err == nil {
		t.Error("missing instrument file should fail")
	}
}
