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
)

func TestBuiltinInstruments(t *testing.T) {
	for _, name := range InstrumentNames() {
		inst, err := BuiltinInstrument(strings.ToLower(name))
		if err != nil {
			t.Fatal(err)
		}
		if err := inst.Validate(); err != nil {
			t.Errorf("%s: %v", name, err)
		}
	}
	if _, err := BuiltinInstrument("sodar"); !errors.Is(err, ErrConfiguration) {
		t.Errorf("have error %v, want ErrConfiguration", err)
	}
}

func TestLoadInstruments(t *testing.T) {
	const defs = `
[[instrument]]
name = "KAZR"
z_min_1km = -45.0

[[instrument]]
name = "Raman"
class = "lidar"
wavelength = 355e-9
od_from_sfc = true
liquid_index = [1.357, 2e-9]
ice_index = [1.323, 2e-9]
ext_od = 3.5
eta = 0.8
`
	insts, err := LoadInstruments(strings.NewReader(defs))
	if err != nil {
		t.Fatal(err)
	}
	if len(insts) != 2 {
		t.Fatalf("read %d instruments", len(insts))
	}
	kazr := insts[0]
	if kazr.ZMin1km != -45 || kazr.Wavelength != 8.6e-3 || kazr.KwSquared != 0.88 {
		t.Errorf("overridden KAZR = %+v", kazr)
	}
	if builtinInstruments["KAZR"].ZMin1km != -51.5 {
		t.Error("built-in instrument was modified")
	}
	raman := insts[1]
	if raman.Class != LidarClass || raman.Wavelength != 355e-9 || raman.Eta != 0.8 || !raman.ODFromSfc {
		t.Errorf("Raman = %+v", raman)
	}

	bad := []string{
		"[[instrument]]\nname = \"x\"\nclass = \"sonar\"\nwavelength = 1.0\nliquid_index = [1.3, 0.0]\nice_index = [1.3, 0.0]\n",
		"[[instrument]]\nname = \"KAZR\"\nkw_squared = 0.0\n",
		"[[instrument]]\nname = \"HSRL\"\neta = 1.5\n",
	}
	for i, b := range bad {
		if _, err := LoadInstruments(strings.NewReader(b)); !errors.Is(err, ErrConfiguration) {
			t.Errorf("definition %d: have error %v, want ErrConfiguration", i, err)
		}
	}
	if _, err := LoadInstruments(strings.NewReader("[[instrument]\n")); err == nil {
		t.Error("malformed TOML should fail")
	}
}
