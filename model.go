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
	"strings"

	"github.com/ctessum/sparse"
	"github.com/sirupsen/logrus"
)

// Names of the standard dimensions.
const (
	DimSubcolumn = "subcolumn"
	DimHeight    = "height"
	DimTime      = "time"

	// DimStacked is the name given to a column axis that was created by
	// stacking several model axes together.
	DimStacked = "stacked_time"
)

// Stage is the position of a Model in the simulation pipeline.
type Stage int

// Pipeline stages, in the order they are reached.
const (
	StageInit Stage = iota
	StageSubcolGenerated
	StageMomentsComputed
	StageClassified
	StageFinalized
)

func (s Stage) String() string {
	switch s {
	case StageInit:
		return "INIT"
	case StageSubcolGenerated:
		return "SUBCOL_GENERATED"
	case StageMomentsComputed:
		return "MOMENTS_COMPUTED"
	case StageClassified:
		return "CLASSIFIED"
	case StageFinalized:
		return "FINALIZED"
	default:
		return fmt.Sprintf("Stage(%d)", int(s))
	}
}

// Variable holds a gridded variable and its metadata.
type Variable struct {
	Dims        []string           // netcdf dimensions for this variable
	Description string             // variable description
	Units       string             // variable units
	Mask        bool               // true for boolean or categorical data
	Data        *sparse.DenseArray // variable data
}

// Stacking records the axes that were combined to form a stacked
// column axis, so that the combination can be reversed.
type Stacking struct {
	Dims    []string
	Lengths []int
}

// Model holds the atmospheric state of a model simulation along with
// everything the simulator derives from it.
type Model struct {
	// Name is the name of the atmospheric model, e.g. "E3SM".
	Name string

	// Scheme is the microphysics scheme the model was run with,
	// e.g. "mg2" or "p3".
	Scheme string

	// ProcessConv specifies whether convective condensate is present and
	// should be processed.
	ProcessConv bool

	// Classes are the hydrometeor classes represented in the model.
	Classes []HydrometeorClass

	// ColumnDim is the name of the column axis.
	ColumnDim string

	NumColumns    int // number of grid columns
	NumLevels     int // number of vertical levels
	NumSubcolumns int // number of subcolumns, zero before generation

	// Stacked is non-nil when the column axis was produced by stacking
	// several axes together.
	Stacked *Stacking

	// Unstacked is true once Unstack has expanded the column axis. The
	// variables no longer have a single column axis, so no further
	// column calculations are possible.
	Unstacked bool

	Stage Stage

	// Attributes are global metadata.
	Attributes map[string]string

	// Data holds the model variables, with the keys being the variable
	// names.
	Data map[string]*Variable
}

// NewModel returns an empty model with nCols columns and nLevels levels.
func NewModel(name, scheme, colDim string, nCols, nLevels int, classes []HydrometeorClass) *Model {
	if colDim == "" {
		colDim = DimTime
	}
	return &Model{
		Name:       name,
		Scheme:     strings.ToLower(scheme),
		Classes:    classes,
		ColumnDim:  colDim,
		NumColumns: nCols,
		NumLevels:  nLevels,
		Attributes: make(map[string]string),
		Data:       make(map[string]*Variable),
	}
}

// GridDims returns the dimensions of a grid-resolution variable.
func (m *Model) GridDims() []string { return []string{m.ColumnDim, DimHeight} }

// SubcolumnDims returns the dimensions of a subcolumn-resolution variable.
func (m *Model) SubcolumnDims() []string {
	return []string{DimSubcolumn, m.ColumnDim, DimHeight}
}

// dimLength returns the expected length of dimension dim, and false if
// the model places no constraint on it.
func (m *Model) dimLength(dim string) (int, bool) {
	switch dim {
	case m.ColumnDim:
		return m.NumColumns, true
	case DimHeight:
		return m.NumLevels, true
	case DimSubcolumn:
		if m.NumSubcolumns > 0 {
			return m.NumSubcolumns, true
		}
	}
	return 0, false
}

// AddVariable adds data for a new variable to m. A variable that already
// exists may only be replaced by one with the same dimensions.
func (m *Model) AddVariable(name string, dims []string, description, units string, data *sparse.DenseArray) error {
	return m.addVariable(name, dims, description, units, false, data)
}

// addMask adds a boolean or categorical variable.
func (m *Model) addMask(name string, dims []string, description string, data *sparse.DenseArray) error {
	return m.addVariable(name, dims, description, "1", true, data)
}

func (m *Model) addVariable(name string, dims []string, description, units string, mask bool, data *sparse.DenseArray) error {
	if len(dims) != len(data.Shape) {
		return fmt.Errorf("%w: variable %s has %d dimensions but data has %d",
			ErrConsistency, name, len(dims), len(data.Shape))
	}
	for i, d := range dims {
		if n, ok := m.dimLength(d); ok && n != data.Shape[i] {
			return fmt.Errorf("%w: variable %s dimension %s has length %d; expected %d",
				ErrConsistency, name, d, data.Shape[i], n)
		}
	}
	if old, ok := m.Data[name]; ok {
		if !sameStrings(old.Dims, dims) || !sameInts(old.Data.Shape, data.Shape) {
			return fmt.Errorf("%w: variable %s already exists with dimensions %v %v",
				ErrConsistency, name, old.Dims, old.Data.Shape)
		}
	}
	for i, d := range dims {
		if d == DimSubcolumn && m.NumSubcolumns == 0 {
			m.NumSubcolumns = data.Shape[i]
		}
	}
	if m.Data == nil {
		m.Data = make(map[string]*Variable)
	}
	m.Data[name] = &Variable{
		Dims:        append([]string{}, dims...),
		Description: description,
		Units:       units,
		Mask:        mask,
		Data:        data,
	}
	return nil
}

// Variable returns the named variable.
func (m *Model) Variable(name string) (*Variable, error) {
	v, ok := m.Data[name]
	if !ok {
		return nil, fmt.Errorf("%w: missing variable %s", ErrConfiguration, name)
	}
	return v, nil
}

// Has returns whether the named variable exists.
func (m *Model) Has(name string) bool {
	_, ok := m.Data[name]
	return ok
}

// Class returns the named hydrometeor class.
func (m *Model) Class(name string) (HydrometeorClass, bool) {
	for _, c := range m.Classes {
		if c.Name == name {
			return c, true
		}
	}
	return HydrometeorClass{}, false
}

// ClassNames returns the names of the hydrometeor classes in m.
func (m *Model) ClassNames() []string {
	o := make([]string, len(m.Classes))
	for i, c := range m.Classes {
		o[i] = c.Name
	}
	return o
}

// HasSubcolumns returns whether subcolumn data are present.
func (m *Model) HasSubcolumns() bool {
	return m.DetectSubcolumns() > 0
}

// DetectSubcolumns returns the number of subcolumns in the existing model
// data, or zero if there are none.
func (m *Model) DetectSubcolumns() int {
	for _, v := range m.Data {
		for i, d := range v.Dims {
			if d == DimSubcolumn {
				return v.Data.Shape[i]
			}
		}
	}
	return 0
}

func (m *Model) newGrid() *sparse.DenseArray {
	return sparse.ZerosDense(m.NumColumns, m.NumLevels)
}

func (m *Model) newSubcol() *sparse.DenseArray {
	return sparse.ZerosDense(m.NumSubcolumns, m.NumColumns, m.NumLevels)
}

// gridIndex returns the flat index of column c, level k in a grid array.
func (m *Model) gridIndex(c, k int) int { return c*m.NumLevels + k }

// subIndex returns the flat index of subcolumn s, column c, level k in
// a subcolumn array.
func (m *Model) subIndex(s, c, k int) int { return (s*m.NumColumns+c)*m.NumLevels + k }

// gridData returns the data of a grid variable, checking its shape.
func (m *Model) gridData(name string) (*sparse.DenseArray, error) {
	if err := m.checkColumns(); err != nil {
		return nil, err
	}
	v, err := m.Variable(name)
	if err != nil {
		return nil, err
	}
	if !sameStrings(v.Dims, m.GridDims()) {
		return nil, fmt.Errorf("%w: variable %s has dimensions %v; expected %v",
			ErrConsistency, name, v.Dims, m.GridDims())
	}
	return v.Data, nil
}

// checkColumns returns an error if the column axis has been unstacked.
func (m *Model) checkColumns() error {
	if m.Unstacked {
		return fmt.Errorf("%w: the column axis of model %s has been unstacked into %s; "+
			"calculations need the stacked model", ErrConsistency, m.Name, m.ColumnDim)
	}
	return nil
}

// subcolData returns the data of a subcolumn variable, checking its shape.
func (m *Model) subcolData(name string) (*sparse.DenseArray, error) {
	if err := m.checkColumns(); err != nil {
		return nil, err
	}
	v, err := m.Variable(name)
	if err != nil {
		return nil, err
	}
	if !sameStrings(v.Dims, m.SubcolumnDims()) {
		return nil, fmt.Errorf("%w: variable %s has dimensions %v; expected %v",
			ErrConsistency, name, v.Dims, m.SubcolumnDims())
	}
	return v.Data, nil
}

// ensureSubcol returns the named subcolumn variable, creating it filled
// with zeros if it does not yet exist.
func (m *Model) ensureSubcol(name, description, units string, mask bool) (*sparse.DenseArray, error) {
	if v, ok := m.Data[name]; ok {
		return v.Data, nil
	}
	d := m.newSubcol()
	if err := m.addVariable(name, m.SubcolumnDims(), description, units, mask, d); err != nil {
		return nil, err
	}
	return d, nil
}

// ensureGrid is the grid-resolution equivalent of ensureSubcol.
func (m *Model) ensureGrid(name, description, units string) (*sparse.DenseArray, error) {
	if v, ok := m.Data[name]; ok {
		return v.Data, nil
	}
	d := m.newGrid()
	if err := m.AddVariable(name, m.GridDims(), description, units, d); err != nil {
		return nil, err
	}
	return d, nil
}

// levelOrder returns the level indices of column c ordered by height,
// descending (top down) when topDown is true and ascending otherwise.
func (m *Model) levelOrder(height *sparse.DenseArray, c int, topDown bool) []int {
	idx := make([]int, m.NumLevels)
	for k := range idx {
		idx[k] = k
	}
	h := height.Elements[c*m.NumLevels : (c+1)*m.NumLevels]
	sort.SliceStable(idx, func(i, j int) bool {
		if topDown {
			return h[idx[i]] > h[idx[j]]
		}
		return h[idx[i]] < h[idx[j]]
	})
	return idx
}

// layerThickness returns the thickness of each level of column c, in
// meters, from the midpoints between adjacent level heights.
func (m *Model) layerThickness(height *sparse.DenseArray, c int) []float64 {
	order := m.levelOrder(height, c, false)
	dz := make([]float64, m.NumLevels)
	h := func(i int) float64 { return height.Elements[m.gridIndex(c, order[i])] }
	n := len(order)
	for i, k := range order {
		var lo, hi float64
		switch {
		case n == 1:
			lo, hi = 0, 2*h(0)
		case i == 0:
			lo, hi = math.Max(0, h(0)-(h(1)-h(0))/2), (h(0)+h(1))/2
		case i == n-1:
			lo, hi = (h(i-1)+h(i))/2, h(i)+(h(i)-h(i-1))/2
		default:
			lo, hi = (h(i-1)+h(i))/2, (h(i)+h(i+1))/2
		}
		dz[k] = math.Max(hi-lo, 0)
	}
	return dz
}

// FinalizeSubcolumnFields sets exact zeros in subcolumn-resolution
// variables to NaN, so that "no hydrometeor" is distinguishable from a
// small value. Mask variables are left as they are.
func (m *Model) FinalizeSubcolumnFields() {
	for _, v := range m.Data {
		if v.Mask || !hasDim(v.Dims, DimSubcolumn) {
			continue
		}
		for i, e := range v.Data.Elements {
			if e == 0 {
				v.Data.Elements[i] = math.NaN()
			}
		}
	}
	m.Stage = StageFinalized
}

// Unstack expands the stacked column axis back into the axes it was
// created from. Because arrays are stored in row-major order the
// operation only changes array shapes. If the column axis is not stacked,
// a notice is logged and the model is left unchanged.
func (m *Model) Unstack(log logrus.FieldLogger) error {
	if m.Stacked == nil {
		if log != nil {
			log.Infof("emc2: column dimension %s is not stacked; nothing to unstack", m.ColumnDim)
		}
		return nil
	}
	n := 1
	for _, l := range m.Stacked.Lengths {
		n *= l
	}
	if n != m.NumColumns || len(m.Stacked.Dims) != len(m.Stacked.Lengths) {
		return fmt.Errorf("%w: stacked dimensions %v %v do not match %d columns",
			ErrConsistency, m.Stacked.Dims, m.Stacked.Lengths, m.NumColumns)
	}
	for _, v := range m.Data {
		var dims []string
		var shape []int
		for i, d := range v.Dims {
			if d == m.ColumnDim {
				dims = append(dims, m.Stacked.Dims...)
				shape = append(shape, m.Stacked.Lengths...)
				continue
			}
			dims = append(dims, d)
			shape = append(shape, v.Data.Shape[i])
		}
		v.Dims = dims
		v.Data = reshape(v.Data, shape)
	}
	m.ColumnDim = strings.Join(m.Stacked.Dims, ",")
	m.Stacked = nil
	m.Unstacked = true
	return nil
}

// reshape returns a copy of a with the given shape.
func reshape(a *sparse.DenseArray, shape []int) *sparse.DenseArray {
	o := sparse.ZerosDense(append([]int{}, shape...)...)
	copy(o.Elements, a.Elements)
	return o
}

func hasDim(dims []string, dim string) bool {
	for _, d := range dims {
		if d == dim {
			return true
		}
	}
	return false
}

func sameStrings(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func sameInts(a, b []int) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
