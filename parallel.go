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
	"runtime"

	"golang.org/x/sync/errgroup"
)

// forEachChunk runs fn on consecutive ranges [c0, c1) of the nCols
// columns. If parallel is true the chunks run concurrently on up to
// GOMAXPROCS goroutines and the first error is returned after all
// chunks finish. chunk is the number of columns per range; if it is
// not positive, the columns are divided evenly among the processors.
//
// Each column must be written by exactly one call of fn.
func forEachChunk(nCols, chunk int, parallel bool, fn func(c0, c1 int) error) error {
	if nCols == 0 {
		return nil
	}
	if !parallel {
		return fn(0, nCols)
	}
	nprocs := runtime.GOMAXPROCS(0) // number of processors
	if chunk <= 0 {
		chunk = (nCols + nprocs - 1) / nprocs
	}
	var g errgroup.Group
	g.SetLimit(nprocs)
	for c0 := 0; c0 < nCols; c0 += chunk {
		c0 := c0
		c1 := c0 + chunk
		if c1 > nCols {
			c1 = nCols
		}
		g.Go(func() error { return fn(c0, c1) })
	}
	return g.Wait()
}
