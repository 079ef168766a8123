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
// Command emc2 is a command-line interface for the EMC2 instrument simulator.
package main

import (
	"fmt"
	"os"

	"github.com/emc2sim/emc2/emc2util"
)

func main() {
	if err := emc2util.Root.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}
