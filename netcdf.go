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
	"os"
	"sort"
	"strings"

	"github.com/ctessum/cdf"
	"github.com/ctessum/sparse"
)

// Global attributes with special meaning in EMC2 netCDF files.
var reservedAttributes = map[string]bool{
	"comment": true, "data_version": true, "model_name": true, "scheme": true,
	"process_conv": true, "column_dim": true, "num_columns": true, "num_levels": true,
	"num_subcolumns": true, "stage": true, "classes": true,
	"stacked_dims": true, "stacked_lengths": true, "unstacked": true,
}

// classParams returns the numeric parameters of c in the order they are
// stored in netCDF files.
func classParams(c HydrometeorClass) []float64 {
	b := func(v bool) float64 {
		if v {
			return 1
		}
		return 0
	}
	return []float64{b(c.Ice), b(c.Precip), c.Density, c.MassA, c.MassB, c.Mu,
		c.FallA, c.FallB, c.Depol, c.LidarRatio, c.EmpiricA, c.EmpiricB, c.N0,
		c.SubgridShape, c.DMin, c.DMax}
}

func classFromParams(name string, p []float64) (HydrometeorClass, error) {
	if len(p) != 16 {
		return HydrometeorClass{}, fmt.Errorf("emc2: class %s has %d parameters; expected 16", name, len(p))
	}
	return HydrometeorClass{
		Name: name, Ice: p[0] != 0, Precip: p[1] != 0, Density: p[2],
		MassA: p[3], MassB: p[4], Mu: p[5], FallA: p[6], FallB: p[7],
		Depol: p[8], LidarRatio: p[9], EmpiricA: p[10], EmpiricB: p[11], N0: p[12],
		SubgridShape: p[13], DMin: p[14], DMax: p[15],
	}, nil
}

// dims returns the names and lengths of all dimensions used by the
// variables in m, in the order they first appear.
func (m *Model) dims() ([]string, []int, error) {
	names := m.sortedNames()
	var dims []string
	lengths := make(map[string]int)
	for _, n := range names {
		v := m.Data[n]
		for i, d := range v.Dims {
			l, ok := lengths[d]
			if !ok {
				dims = append(dims, d)
				lengths[d] = v.Data.Shape[i]
				continue
			}
			if l != v.Data.Shape[i] {
				return nil, nil, fmt.Errorf("%w: dimension %s has length %d in %s but %d elsewhere",
					ErrConsistency, d, v.Data.Shape[i], n, l)
			}
		}
	}
	o := make([]int, len(dims))
	for i, d := range dims {
		o[i] = lengths[d]
	}
	return dims, o, nil
}

// sortedNames returns the variable names so they write in the same order
// every time.
func (m *Model) sortedNames() []string {
	names := make([]string, 0, len(m.Data))
	for n := range m.Data {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Write writes m to netcdf file w.
func (m *Model) Write(w *os.File) error {
	dims, lengths, err := m.dims()
	if err != nil {
		return err
	}
	h := cdf.NewHeader(dims, lengths)
	h.AddAttribute("", "comment", "EMC2 simulated instrument data file")
	h.AddAttribute("", "data_version", DataVersion)
	putString := func(v, a, s string) {
		if s != "" {
			h.AddAttribute(v, a, s)
		}
	}
	putString("", "model_name", m.Name)
	putString("", "scheme", m.Scheme)
	putString("", "column_dim", m.ColumnDim)
	putString("", "stage", m.Stage.String())
	var conv int32
	if m.ProcessConv {
		conv = 1
	}
	h.AddAttribute("", "process_conv", []int32{conv})
	h.AddAttribute("", "num_columns", []int32{int32(m.NumColumns)})
	h.AddAttribute("", "num_levels", []int32{int32(m.NumLevels)})
	h.AddAttribute("", "num_subcolumns", []int32{int32(m.NumSubcolumns)})
	if m.Stacked != nil {
		h.AddAttribute("", "stacked_dims", strings.Join(m.Stacked.Dims, ","))
		l := make([]int32, len(m.Stacked.Lengths))
		for i, v := range m.Stacked.Lengths {
			l[i] = int32(v)
		}
		h.AddAttribute("", "stacked_lengths", l)
	}
	if m.Unstacked {
		h.AddAttribute("", "unstacked", []int32{1})
	}
	putString("", "classes", strings.Join(m.ClassNames(), ","))
	for _, c := range m.Classes {
		h.AddAttribute("", "class_"+c.Name, classParams(c))
	}
	attrs := make([]string, 0, len(m.Attributes))
	for a := range m.Attributes {
		if !reservedAttributes[a] && !strings.HasPrefix(a, "class_") {
			attrs = append(attrs, a)
		}
	}
	sort.Strings(attrs)
	for _, a := range attrs {
		putString("", a, m.Attributes[a])
	}

	names := m.sortedNames()
	for _, name := range names {
		v := m.Data[name]
		h.AddVariable(name, v.Dims, []float64{0})
		putString(name, "description", v.Description)
		putString(name, "units", v.Units)
		if v.Mask {
			h.AddAttribute(name, "mask", []int32{1})
		}
	}
	h.Define()

	f, err := cdf.Create(w, h) // writes the header to w
	if err != nil {
		return err
	}
	for _, name := range names {
		if err = writeNCF(f, name, m.Data[name].Data); err != nil {
			return fmt.Errorf("emc2: writing variable %s to netcdf file: %v", name, err)
		}
	}
	return cdf.UpdateNumRecs(w)
}

func writeNCF(f *cdf.File, name string, data *sparse.DenseArray) error {
	// Check that data matches dimensions.
	n := 1
	for _, v := range data.Shape {
		n *= v
	}
	if len(data.Elements) != n {
		return fmt.Errorf("dims are %d but array length is %d", n, len(data.Elements))
	}
	end := f.Header.Lengths(name)
	start := make([]int, len(end))
	w := f.Writer(name, start, end)
	_, err := w.Write(data.Elements)
	return err
}

// LoadModel reads a model from a netcdf file written by Model.Write.
func LoadModel(rw cdf.ReaderWriterAt) (*Model, error) {
	f, err := cdf.Open(rw)
	if err != nil {
		return nil, fmt.Errorf("emc2.LoadModel: %v", err)
	}
	h := f.Header
	if v := attrString(h, "", "data_version"); v != DataVersion {
		return nil, fmt.Errorf("emc2.LoadModel: data version %q is incompatible "+
			"with the required version %s", v, DataVersion)
	}
	var classes []HydrometeorClass
	if cn := attrString(h, "", "classes"); cn != "" {
		for _, name := range strings.Split(cn, ",") {
			p, _ := h.GetAttribute("", "class_"+name).([]float64)
			c, err := classFromParams(name, p)
			if err != nil {
				return nil, fmt.Errorf("emc2.LoadModel: %v", err)
			}
			classes = append(classes, c)
		}
	}
	m := NewModel(attrString(h, "", "model_name"), attrString(h, "", "scheme"),
		attrString(h, "", "column_dim"), attrInt(h, "num_columns"), attrInt(h, "num_levels"), classes)
	m.ProcessConv = attrInt(h, "process_conv") != 0
	m.NumSubcolumns = attrInt(h, "num_subcolumns")
	m.Stage = parseStage(attrString(h, "", "stage"))
	m.Unstacked = attrInt(h, "unstacked") != 0
	if sd := attrString(h, "", "stacked_dims"); sd != "" {
		l, _ := h.GetAttribute("", "stacked_lengths").([]int32)
		s := &Stacking{Dims: strings.Split(sd, ",")}
		for _, v := range l {
			s.Lengths = append(s.Lengths, int(v))
		}
		m.Stacked = s
	}
	for _, a := range h.Attributes("") {
		if reservedAttributes[a] || strings.HasPrefix(a, "class_") {
			continue
		}
		if s, ok := h.GetAttribute("", a).(string); ok {
			m.Attributes[a] = s
		}
	}

	for _, name := range h.Variables() {
		data, err := readNCF(f, name)
		if err != nil {
			return nil, fmt.Errorf("emc2.LoadModel: %v", err)
		}
		mask, _ := h.GetAttribute(name, "mask").([]int32)
		err = m.addVariable(name, h.Dimensions(name), attrString(h, name, "description"),
			attrString(h, name, "units"), len(mask) > 0 && mask[0] != 0, data)
		if err != nil {
			return nil, fmt.Errorf("emc2.LoadModel: %v", err)
		}
	}
	return m, nil
}

// readNCF reads the named variable into a dense array, converting
// numeric types to float64.
func readNCF(f *cdf.File, name string) (*sparse.DenseArray, error) {
	dims := f.Header.Lengths(name)
	if len(dims) == 0 {
		return nil, fmt.Errorf("variable %s is a scalar", name)
	}
	if f.Header.IsRecordVariable(name) {
		return nil, fmt.Errorf("variable %s is a record variable; use a format-specific loader", name)
	}
	data := sparse.ZerosDense(append([]int{}, dims...)...)
	r := f.Reader(name, nil, nil)
	buf := r.Zero(len(data.Elements))
	if _, err := r.Read(buf); err != nil {
		return nil, fmt.Errorf("reading %s: %v", name, err)
	}
	if err := toFloat64(buf, data.Elements); err != nil {
		return nil, fmt.Errorf("reading %s: %v", name, err)
	}
	return data, nil
}

// toFloat64 copies the numeric values in buf to dst.
func toFloat64(buf interface{}, dst []float64) error {
	switch b := buf.(type) {
	case []float64:
		copy(dst, b)
	case []float32:
		for i, v := range b {
			dst[i] = float64(v)
		}
	case []int32:
		for i, v := range b {
			dst[i] = float64(v)
		}
	case []int16:
		for i, v := range b {
			dst[i] = float64(v)
		}
	case []uint8:
		for i, v := range b {
			dst[i] = float64(v)
		}
	default:
		return fmt.Errorf("unsupported data type %T", buf)
	}
	return nil
}

func attrString(h *cdf.Header, v, a string) string {
	s, _ := h.GetAttribute(v, a).(string)
	return s
}

func attrInt(h *cdf.Header, a string) int {
	switch v := h.GetAttribute("", a).(type) {
	case []int32:
		if len(v) > 0 {
			return int(v[0])
		}
	case []int16:
		if len(v) > 0 {
			return int(v[0])
		}
	case []float64:
		if len(v) > 0 {
			return int(v[0])
		}
	}
	return 0
}

func parseStage(s string) Stage {
	for st := StageInit; st <= StageFinalized; st++ {
		if st.String() == s {
			return st
		}
	}
	return StageInit
}
