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
	"sync"

	"github.com/ctessum/cdf"
	"github.com/ctessum/sparse"
)

// A Loader reads atmospheric model output into a Model.
type Loader interface {
	// Format is the name the loader is registered under.
	Format() string

	// Version is the version of the model output format the loader reads.
	Version() string

	// Load reads the file at path.
	Load(path string) (*Model, error)
}

var loaders = struct {
	sync.RWMutex
	m map[string]Loader
}{m: make(map[string]Loader)}

// RegisterLoader makes l available by its format name. A loader
// registered later replaces an earlier one with the same name.
func RegisterLoader(l Loader) {
	loaders.Lock()
	defer loaders.Unlock()
	loaders.m[l.Format()] = l
}

// NewLoader returns the loader registered for format.
func NewLoader(format string) (Loader, error) {
	loaders.RLock()
	defer loaders.RUnlock()
	l, ok := loaders.m[format]
	if !ok {
		return nil, fmt.Errorf("%w: unknown model format %q; valid formats are %v",
			ErrConfiguration, format, loaderFormats())
	}
	return l, nil
}

// LoaderFormats returns the names of the registered loaders.
func LoaderFormats() []string {
	loaders.RLock()
	defer loaders.RUnlock()
	return loaderFormats()
}

func loaderFormats() []string {
	o := make([]string, 0, len(loaders.m))
	for f := range loaders.m {
		o = append(o, f)
	}
	sort.Strings(o)
	return o
}

func init() {
	RegisterLoader(canonicalLoader{})
	RegisterLoader(WRFLoader{})
	RegisterLoader(NewE3SMv1Loader())
	RegisterLoader(NewE3SMv2Loader())
}

// canonicalLoader reads files written by Model.Write.
type canonicalLoader struct{}

func (canonicalLoader) Format() string  { return "emc2" }
func (canonicalLoader) Version() string { return DataVersion }

func (canonicalLoader) Load(path string) (*Model, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return LoadModel(f)
}

// ncFile is an open netcdf file.
type ncFile struct {
	f    *os.File
	ff   *cdf.File
	nrec int
}

func openNCF(path string) (*ncFile, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	ff, err := cdf.Open(f)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("emc2: opening %s: %v", path, err)
	}
	fi, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, err
	}
	return &ncFile{f: f, ff: ff, nrec: int(ff.Header.NumRecs(fi.Size()))}, nil
}

func (n *ncFile) Close() error { return n.f.Close() }

func (n *ncFile) has(name string) bool { return n.ff.Header.Lengths(name) != nil }

// lengths returns the shape of the named variable, with the number of
// records filled in for record variables.
func (n *ncFile) lengths(name string) []int {
	l := append([]int{}, n.ff.Header.Lengths(name)...)
	if len(l) > 0 && l[0] == 0 {
		l[0] = n.nrec
	}
	return l
}

// read reads the whole of the named variable.
func (n *ncFile) read(name string) (*sparse.DenseArray, error) {
	dims := n.lengths(name)
	if len(dims) == 0 {
		return nil, fmt.Errorf("emc2: variable %v not in file %s", name, n.f.Name())
	}
	data := sparse.ZerosDense(dims...)
	end := append([]int{}, dims...)
	r := n.ff.Reader(name, make([]int, len(dims)), end)
	buf := r.Zero(len(data.Elements))
	if _, err := r.Read(buf); err != nil {
		return nil, fmt.Errorf("emc2: reading netcdf variable %s: %v", name, err)
	}
	if err := toFloat64(buf, data.Elements); err != nil {
		return nil, fmt.Errorf("emc2: reading netcdf variable %s: %v", name, err)
	}
	return data, nil
}

// toColumns rearranges an array with dimensions (time, level, x...) into
// grid order (column, level), where columns are ordered by time and then
// by the remaining dimensions.
func toColumns(a *sparse.DenseArray) *sparse.DenseArray {
	nt, nk := a.Shape[0], a.Shape[1]
	nr := 1
	for _, l := range a.Shape[2:] {
		nr *= l
	}
	o := sparse.ZerosDense(nt*nr, nk)
	for t := 0; t < nt; t++ {
		for k := 0; k < nk; k++ {
			for r := 0; r < nr; r++ {
				o.Elements[(t*nr+r)*nk+k] = a.Elements[(t*nk+k)*nr+r]
			}
		}
	}
	return o
}

// gridVar is a variable to be added to a model by a loader.
type gridVar struct {
	name, description, units string
	data                     *sparse.DenseArray
}

func (m *Model) addGridVars(vars ...gridVar) error {
	for _, v := range vars {
		if err := m.AddVariable(v.name, m.GridDims(), v.description, v.units, v.data); err != nil {
			return err
		}
	}
	return nil
}
