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
	"fmt"
	"io"
	"os"
	"time"

	"github.com/emc2sim/emc2"
	"github.com/sirupsen/logrus"
)

// Run runs a simulation.
//
// stdout receives log messages, which are also written to logFile.
// logFile and outputFile can be blob storage locations, in which case
// they are uploaded when the simulation finishes.
//
// inputFile is the model output to simulate, in the format inputFormat.
// It can be a local file, an http(s) URL or a blob storage location.
//
// outputVars maps the names of output variables to expressions of model
// variables. All model variables are written if it is empty.
//
// nSubcolumns is the number of subcolumns to generate, and cfg holds the
// remaining simulation settings. cfg.Log is replaced by the run log.
func Run(ctx context.Context, stdout io.Writer, logFile, inputFile, inputFormat, outputFile string,
	outputVars map[string]string, inst emc2.Instrument, nSubcolumns int, cfg emc2.Config) error {

	startTime := time.Now()

	var upload uploader

	logfile, err := os.Create(upload.maybeUpload(logFile))
	if err != nil {
		return fmt.Errorf("emc2: problem creating log file: %v", err)
	}
	defer logfile.Close()
	log := logrus.New()
	log.SetOutput(io.MultiWriter(stdout, logfile))
	log.SetFormatter(&logrus.TextFormatter{DisableColors: true, FullTimestamp: true})
	cfg.Log = log

	o, err := emc2.NewOutputter(upload.maybeUpload(outputFile), outputVars, nil)
	if err != nil {
		return err
	}
	if upload.err != nil {
		return upload.err
	}

	loader, err := emc2.NewLoader(inputFormat)
	if err != nil {
		return err
	}
	path, err := maybeDownload(ctx, inputFile, log)
	if err != nil {
		return err
	}
	log.WithFields(logrus.Fields{"file": inputFile, "format": loader.Format()}).Info("loading model output")
	m, err := loader.Load(path)
	if err != nil {
		return err
	}
	log.WithFields(logrus.Fields{
		"model":   m.Name,
		"columns": m.NumColumns,
		"levels":  m.NumLevels,
	}).Info("model output loaded")

	if _, err := emc2.MakeSimulatedData(m, inst, nSubcolumns, cfg); err != nil {
		return err
	}

	log.WithField("file", outputFile).Info("writing output")
	if err := o.Output(m); err != nil {
		return err
	}
	log.WithField("elapsed", time.Since(startTime).Round(time.Millisecond)).Info("simulation complete")

	if err := logfile.Close(); err != nil {
		return err
	}
	return upload.uploadOutput(ctx)
}
