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
	"sort"
	"time"

	"github.com/ctessum/sparse"
)

// Dataset holds the contents of an observation file.
type Dataset struct {
	// Dims are the dimension lengths.
	Dims map[string]int

	// Attributes are the string-valued global attributes.
	Attributes map[string]string

	// Data holds the variables, with missing values set to NaN.
	Data map[string]*Variable
}

// LoadARM reads an ARM-standard netCDF file, such as the output of a
// cloud radar or lidar at an ARM site, for comparison with simulated
// data. Values equal to a variable's missing_value or _FillValue
// attribute are set to NaN.
func LoadARM(path string) (*Dataset, error) {
	f, err := openNCF(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	h := f.ff.Header

	d := &Dataset{
		Dims:       make(map[string]int),
		Attributes: make(map[string]string),
		Data:       make(map[string]*Variable),
	}
	for _, dim := range h.Dimensions("") {
		d.Dims[dim] = 0
	}
	for _, a := range h.Attributes("") {
		if s, ok := h.GetAttribute("", a).(string); ok {
			d.Attributes[a] = s
		}
	}
	for _, name := range h.Variables() {
		dims := h.Dimensions(name)
		var data *sparse.DenseArray
		if len(dims) == 0 {
			data, err = readScalar(f, name)
		} else {
			data, err = f.read(name)
		}
		if err != nil {
			return nil, fmt.Errorf("emc2.LoadARM: %v", err)
		}
		for i, dim := range dims {
			d.Dims[dim] = data.Shape[i]
		}
		for _, a := range []string{"missing_value", "_FillValue"} {
			missing := make([]float64, 1)
			if v := h.GetAttribute(name, a); v == nil || toFloat64(v, missing) != nil {
				continue
			}
			for i, e := range data.Elements {
				if e == missing[0] {
					data.Elements[i] = math.NaN()
				}
			}
		}
		d.Data[name] = &Variable{
			Dims:        dims,
			Description: attrString(h, name, "long_name"),
			Units:       attrString(h, name, "units"),
			Data:        data,
		}
	}
	return d, nil
}

func readScalar(f *ncFile, name string) (*sparse.DenseArray, error) {
	data := sparse.ZerosDense(1)
	r := f.ff.Reader(name, nil, nil)
	buf := r.Zero(1)
	if _, err := r.Read(buf); err != nil {
		return nil, fmt.Errorf("reading %s: %v", name, err)
	}
	if err := toFloat64(buf, data.Elements); err != nil {
		return nil, fmt.Errorf("reading %s: %v", name, err)
	}
	return data, nil
}

// Times returns the observation times, calculated from the base_time
// and time_offset variables as ARM files define them.
func (d *Dataset) Times() ([]time.Time, error) {
	base, ok := d.Data["base_time"]
	if !ok {
		return nil, fmt.Errorf("%w: dataset has no base_time variable", ErrConfiguration)
	}
	offset, ok := d.Data["time_offset"]
	if !ok {
		return nil, fmt.Errorf("%w: dataset has no time_offset variable", ErrConfiguration)
	}
	b := time.Unix(int64(base.Data.Elements[0]), 0).UTC()
	o := make([]time.Time, len(offset.Data.Elements))
	for i, s := range offset.Data.Elements {
		o[i] = b.Add(time.Duration(s * float64(time.Second)))
	}
	return o, nil
}

// Names returns the variable names in alphabetical order.
func (d *Dataset) Names() []string {
	o := make([]string, 0, len(d.Data))
	for n := range d.Data {
		o = append(o, n)
	}
	sort.Strings(o)
	return o
}
