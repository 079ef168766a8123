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
	"sync"
	"testing"
)

func TestForEachChunk(t *testing.T) {
	for _, parallel := range []bool{false, true} {
		for _, chunk := range []int{0, 1, 3, 50} {
			var mu sync.Mutex
			seen := make([]int, 17)
			err := forEachChunk(len(seen), chunk, parallel, func(c0, c1 int) error {
				mu.Lock()
				defer mu.Unlock()
				for c := c0; c < c1; c++ {
					seen[c]++
				}
				return nil
			})
			if err != nil {
				t.Fatal(err)
			}
			for c, n := range seen {
				if n != 1 {
					t.Errorf("parallel=%v chunk=%d: column %d visited %d times", parallel, chunk, c, n)
				}
			}
		}
	}
}

func TestForEachChunkError(t *testing.T) {
	errBad := errors.New("bad column")
	for _, parallel := range []bool{false, true} {
		err := forEachChunk(10, 2, parallel, func(c0, c1 int) error {
			if c0 <= 5 && 5 < c1 {
				return errBad
			}
			return nil
		})
		if !errors.Is(err, errBad) {
			t.Errorf("parallel=%v: have error %v, want %v", parallel, err, errBad)
		}
	}
	if err := forEachChunk(0, 0, true, func(c0, c1 int) error { return errBad }); err != nil {
		t.Errorf("no columns: %v", err)
	}
}
