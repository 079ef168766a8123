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
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/emc2sim/emc2"
	"github.com/emc2sim/emc2/cloud"
	"github.com/lnashier/viper"
	"github.com/spf13/cast"
)

// expand expands any environment variables in s.
func expand(s string) string { return os.ExpandEnv(s) }

// checkOutputVars removes end lines and expands environment
// variables in the output variables.
func checkOutputVars(vars map[string]string, err error) (map[string]string, error) {
	if err != nil {
		return nil, err
	}
	o := make(map[string]string, len(vars))
	for k, v := range vars {
		v = strings.Replace(v, "\r\n", " ", -1)
		v = strings.Replace(v, "\n", " ", -1)
		o[expand(k)] = expand(v)
	}
	return o, nil
}

// checkOutputFile makes sure that the output file is specified and its
// directory exists, and expand any environment variables.
func checkOutputFile(ctx context.Context, f string) (string, error) {
	if f == "" {
		return "", fmt.Errorf("%w: you need to specify an output file "+
			"configuration variable (for example: OutputFile=\"output.nc\")", emc2.ErrConfiguration)
	}
	f = expand(f)
	if cloud.IsBlob(f) {
		bucketName, _, err := cloud.SplitBlobPath(f)
		if err != nil {
			return f, err
		}
		b, err := cloud.OpenBucket(ctx, bucketName)
		if err != nil {
			return f, fmt.Errorf("emc2: error when checking OutputFile location: %v", err)
		}
		return f, b.Close()
	}
	outdir := filepath.Dir(f)
	if _, err := os.Stat(outdir); err != nil {
		return f, fmt.Errorf("emc2: the OutputFile directory doesn't exist: %v", err)
	}
	return f, nil
}

// checkLogFile fills in a default value for the log file path if one isn't
// specified.
func checkLogFile(logFile, outputFile string) string {
	if logFile == "" {
		logFile = strings.TrimSuffix(outputFile, filepath.Ext(outputFile)) + ".log"
	}
	return expand(logFile)
}

// GetStringMapString returns a map[string]string from a viper configuration,
// accounting for the fact that it might be a json object if it was set
// from a command line argument.
func GetStringMapString(varName string, cfg *viper.Viper) (map[string]string, error) {
	i := cfg.Get(varName)
	switch v := i.(type) {
	case nil:
		return nil, nil
	case map[string]string:
		return v, nil
	case map[string]interface{}:
		return cast.ToStringMapStringE(v)
	case string:
		if strings.TrimSpace(v) == "" {
			return nil, nil
		}
		o := make(map[string]string)
		if err := json.Unmarshal([]byte(v), &o); err != nil {
			return nil, fmt.Errorf("%w: reading %s: %v", emc2.ErrConfiguration, varName, err)
		}
		return o, nil
	default:
		return nil, fmt.Errorf("%w: invalid type for variable %s: %#v", emc2.ErrConfiguration, varName, i)
	}
}

// optionalBool returns nil if the named variable is empty and the
// value of the variable otherwise.
func optionalBool(varName string, cfg *viper.Viper) (*bool, error) {
	i := cfg.Get(varName)
	if i == nil {
		return nil, nil
	}
	if s, ok := i.(string); ok && strings.TrimSpace(s) == "" {
		return nil, nil
	}
	b, err := cast.ToBoolE(i)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", emc2.ErrConfiguration, varName, err)
	}
	return &b, nil
}

// optionalFloat returns nil if the named variable is zero and the
// value of the variable otherwise.
func optionalFloat(varName string, cfg *viper.Viper) (*float64, error) {
	f, err := cast.ToFloat64E(cfg.Get(varName))
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", emc2.ErrConfiguration, varName, err)
	}
	if f == 0 {
		return nil, nil
	}
	return &f, nil
}

// float64Slice converts v to a slice of numbers. Flags hold lists as
// strings like "[1000,3000]"; configuration files hold them as arrays.
func float64Slice(v interface{}) ([]float64, error) {
	var items []interface{}
	switch vv := v.(type) {
	case nil:
		return nil, nil
	case []float64:
		return vv, nil
	case string:
		vv = strings.Trim(strings.TrimSpace(vv), "[]")
		if vv == "" {
			return nil, nil
		}
		for _, s := range strings.Split(vv, ",") {
			items = append(items, strings.TrimSpace(s))
		}
	default:
		var err error
		if items, err = cast.ToSliceE(v); err != nil {
			return nil, err
		}
	}
	o := make([]float64, len(items))
	for i, item := range items {
		f, err := cast.ToFloat64E(item)
		if err != nil {
			return nil, err
		}
		o[i] = f
	}
	return o, nil
}

// SimulationConfig reads simulation settings from cfg. Settings that are
// not present keep their default values.
func SimulationConfig(cfg *viper.Viper) (emc2.Config, error) {
	c := emc2.DefaultConfig()
	for name, b := range map[string]*bool{
		"DoClassify":        &c.DoClassify,
		"UnstackDims":       &c.UnstackDims,
		"SkipSubcolGen":     &c.SkipSubcolGen,
		"FinalizeFields":    &c.FinalizeFields,
		"CalcSpectralWidth": &c.CalcSpectralWidth,
		"SubcolGenOnly":     &c.SubcolGenOnly,
		"UseRadLogic":       &c.UseRadLogic,
		"Parallel":          &c.Parallel,
		"ConvertZerosToNaN": &c.ConvertZerosToNaN,
		"UseEmpiricCalc":    &c.UseEmpiricCalc,
		"QcFlag":            &c.QcFlag,
	} {
		if cfg.IsSet(name) {
			*b = cfg.GetBool(name)
		}
	}
	if cfg.IsSet("Chunk") {
		c.Chunk = cfg.GetInt("Chunk")
	}
	if cfg.IsSet("RefRng") {
		c.RefRng = cfg.GetFloat64("RefRng")
	}
	c.HydTypes = cfg.GetStringSlice("HydTypes")

	var err error
	if c.Seed, err = cast.ToUint64E(cfg.Get("Seed")); err != nil {
		return c, fmt.Errorf("%w: Seed: %v", emc2.ErrConfiguration, err)
	}
	if c.ODFromSfc, err = optionalBool("ODFromSfc", cfg); err != nil {
		return c, err
	}
	if c.MieForIce, err = optionalBool("MieForIce", cfg); err != nil {
		return c, err
	}
	if c.ExtOD, err = optionalFloat("ExtOD", cfg); err != nil {
		return c, err
	}
	if c.Eta, err = optionalFloat("Eta", cfg); err != nil {
		return c, err
	}
	rng, err := float64Slice(cfg.Get("MaskHeightRng"))
	if err != nil {
		return c, fmt.Errorf("%w: MaskHeightRng: %v", emc2.ErrConfiguration, err)
	}
	switch len(rng) {
	case 0:
	case 2:
		c.MaskHeightRng = &[2]float64{rng[0], rng[1]}
	default:
		return c, fmt.Errorf("%w: MaskHeightRng needs 2 values, not %d", emc2.ErrConfiguration, len(rng))
	}
	return c, c.Validate()
}

// instruments returns the built-in instruments combined with those
// defined in the TOML file instrumentFile, if it is not empty.
func instruments(instrumentFile string) ([]emc2.Instrument, error) {
	byName := make(map[string]emc2.Instrument)
	for _, n := range emc2.InstrumentNames() {
		i, err := emc2.BuiltinInstrument(n)
		if err != nil {
			return nil, err
		}
		byName[n] = i
	}
	if instrumentFile = expand(instrumentFile); instrumentFile != "" {
		f, err := os.Open(instrumentFile)
		if err != nil {
			return nil, fmt.Errorf("emc2: opening instrument file: %v", err)
		}
		defer f.Close()
		insts, err := emc2.LoadInstruments(f)
		if err != nil {
			return nil, err
		}
		for _, i := range insts {
			byName[strings.ToUpper(i.Name)] = i
		}
	}
	names := make([]string, 0, len(byName))
	for n := range byName {
		names = append(names, n)
	}
	sort.Strings(names)
	o := make([]emc2.Instrument, len(names))
	for i, n := range names {
		o[i] = byName[n]
	}
	return o, nil
}

// instrument returns the named instrument.
func instrument(name, instrumentFile string) (emc2.Instrument, error) {
	insts, err := instruments(instrumentFile)
	if err != nil {
		return emc2.Instrument{}, err
	}
	var names []string
	for _, i := range insts {
		if strings.EqualFold(i.Name, expand(name)) {
			return i, nil
		}
		names = append(names, i.Name)
	}
	return emc2.Instrument{}, fmt.Errorf("%w: unknown instrument %q; valid instruments are %v",
		emc2.ErrConfiguration, name, names)
}
