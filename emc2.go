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

// Package emc2 is an instrument forward simulator for atmospheric models.
// It resamples gridded model output into stochastic subcolumns and
// computes the radar or lidar signals an instrument would have observed,
// along with rule-based hydrometeor phase classifications.
package emc2

import "errors"

// Version gives the version number.
const Version = "1.1.0"

// DataVersion is the version of the canonical model data file format.
// Files written by Model.Write carry this version in the data_version
// attribute.
const DataVersion = "1.0.0"

var (
	// ErrConfiguration is returned (wrapped) when the simulation options or
	// the instrument are invalid, or required input fields are missing.
	ErrConfiguration = errors.New("emc2: configuration error")

	// ErrConsistency is returned (wrapped) when the model data are
	// internally inconsistent, for example when condensate exists in a
	// grid cell that has no subcolumns to hold it.
	ErrConsistency = errors.New("emc2: data consistency error")
)
