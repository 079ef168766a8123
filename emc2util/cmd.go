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
// Package emc2util implements the emc2 command line interface.
package emc2util

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"

	"github.com/emc2sim/emc2"
	"github.com/lnashier/viper"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

// Cfg holds configuration information.
var Cfg *viper.Viper

var options []struct {
	name, usage, shorthand string
	defaultVal             interface{}
	flagsets               []*pflag.FlagSet
}

func init() {
	// Options are the configuration options available to EMC2.
	options = []struct {
		name, usage, shorthand string
		defaultVal             interface{}
		flagsets               []*pflag.FlagSet
	}{
		{
			name: "config",
			usage: `
              config specifies the configuration file location.`,
			defaultVal: "",
			flagsets:   []*pflag.FlagSet{Root.PersistentFlags()},
		},
		{
			name: "InputFile",
			usage: `
              InputFile is the path to the atmospheric model output to be
              simulated. It can be a local file, an http(s) URL, or a blob
              storage location (gs://, s3://, file://).`,
			shorthand:  "i",
			defaultVal: "",
			flagsets:   []*pflag.FlagSet{simulateCmd.Flags()},
		},
		{
			name: "InputFormat",
			usage: `
              InputFormat is the format of InputFile. Use the
              'instruments' command to list the available formats.`,
			defaultVal: "emc2",
			flagsets:   []*pflag.FlagSet{simulateCmd.Flags()},
		},
		{
			name: "OutputFile",
			usage: `
              OutputFile is the path where the simulated data should be
              written in netCDF format. It can be a local file or a blob
              storage location.`,
			shorthand:  "o",
			defaultVal: "emc2_output.nc",
			flagsets:   []*pflag.FlagSet{simulateCmd.Flags()},
		},
		{
			name: "LogFile",
			usage: `
              LogFile is the path to the desired logfile location. If it is
              empty, the log is written next to OutputFile.`,
			defaultVal: "",
			flagsets:   []*pflag.FlagSet{simulateCmd.Flags()},
		},
		{
			name: "OutputVariables",
			usage: `
              OutputVariables specifies which variables should be written
              to OutputFile, as a map of variable names to expressions of
              model variables, e.g. {"Ze_dBZ": "dBZ(sub_col_Ze_att_tot)"}.
              If it is empty, all variables are written.`,
			defaultVal: map[string]string{},
			flagsets:   []*pflag.FlagSet{simulateCmd.Flags()},
		},
		{
			name: "Instrument",
			usage: `
              Instrument is the name of the instrument to simulate.`,
			defaultVal: "KAZR",
			flagsets:   []*pflag.FlagSet{simulateCmd.Flags()},
		},
		{
			name: "InstrumentFile",
			usage: `
              InstrumentFile is an optional TOML file with [[instrument]]
              tables that define new instruments or change built-in ones.`,
			defaultVal: "",
			flagsets:   []*pflag.FlagSet{simulateCmd.Flags(), instrumentsCmd.Flags()},
		},
		{
			name: "NumSubcolumns",
			usage: `
              NumSubcolumns is the number of subcolumns to generate.`,
			shorthand:  "n",
			defaultVal: 20,
			flagsets:   []*pflag.FlagSet{simulateCmd.Flags()},
		},
		{
			name: "DoClassify",
			usage: `
              DoClassify specifies whether hydrometeor phase is classified.`,
			defaultVal: false,
			flagsets:   []*pflag.FlagSet{simulateCmd.Flags()},
		},
		{
			name: "UnstackDims",
			usage: `
              UnstackDims specifies whether a stacked column axis is
              expanded into its original axes before output.`,
			defaultVal: false,
			flagsets:   []*pflag.FlagSet{simulateCmd.Flags()},
		},
		{
			name: "SkipSubcolGen",
			usage: `
              SkipSubcolGen specifies whether the subcolumns already in
              InputFile should be reused.`,
			defaultVal: false,
			flagsets:   []*pflag.FlagSet{simulateCmd.Flags()},
		},
		{
			name: "FinalizeFields",
			usage: `
              FinalizeFields specifies whether exact zeros in subcolumn
              fields are set to NaN before output.`,
			defaultVal: false,
			flagsets:   []*pflag.FlagSet{simulateCmd.Flags()},
		},
		{
			name: "CalcSpectralWidth",
			usage: `
              CalcSpectralWidth specifies whether the radar Doppler
              spectral width is calculated.`,
			defaultVal: true,
			flagsets:   []*pflag.FlagSet{simulateCmd.Flags()},
		},
		{
			name: "SubcolGenOnly",
			usage: `
              SubcolGenOnly stops the simulation after the subcolumns have
              been generated.`,
			defaultVal: false,
			flagsets:   []*pflag.FlagSet{simulateCmd.Flags()},
		},
		{
			name: "UseRadLogic",
			usage: `
              UseRadLogic specifies whether the cloud fractions and
              effective radii used by the model radiation scheme are used.`,
			defaultVal: true,
			flagsets:   []*pflag.FlagSet{simulateCmd.Flags()},
		},
		{
			name: "ODFromSfc",
			usage: `
              ODFromSfc overrides the direction in which the instrument
              integrates optical depth and attenuation: "true" for upward
              from the surface and "false" for downward from the model
              top. If it is empty the instrument default is used.`,
			defaultVal: "",
			flagsets:   []*pflag.FlagSet{simulateCmd.Flags()},
		},
		{
			name: "Parallel",
			usage: `
              Parallel specifies whether columns are processed
              concurrently.`,
			defaultVal: true,
			flagsets:   []*pflag.FlagSet{simulateCmd.Flags()},
		},
		{
			name: "Chunk",
			usage: `
              Chunk is the number of columns given to each worker at a
              time. If it is zero the columns are divided evenly among the
              processors.`,
			defaultVal: 0,
			flagsets:   []*pflag.FlagSet{simulateCmd.Flags()},
		},
		{
			name: "ConvertZerosToNaN",
			usage: `
              ConvertZerosToNaN sets clear gates in phase classifications
              to NaN.`,
			defaultVal: false,
			flagsets:   []*pflag.FlagSet{simulateCmd.Flags()},
		},
		{
			name: "MaskHeightRng",
			usage: `
              MaskHeightRng restricts phase classification to the given
              lower and upper heights [m]. It is not used if empty.`,
			defaultVal: []float64{},
			flagsets:   []*pflag.FlagSet{simulateCmd.Flags()},
		},
		{
			name: "HydTypes",
			usage: `
              HydTypes restricts the hydrometeor classes that contribute
              to the simulated moments. All classes are used if empty.`,
			defaultVal: []string{},
			flagsets:   []*pflag.FlagSet{simulateCmd.Flags()},
		},
		{
			name: "MieForIce",
			usage: `
              MieForIce specifies whether ice scattering is calculated with
              Mie theory ("true") or the Rayleigh approximation ("false").
              If it is empty the choice depends on UseRadLogic and the
              microphysics scheme.`,
			defaultVal: "",
			flagsets:   []*pflag.FlagSet{simulateCmd.Flags()},
		},
		{
			name: "UseEmpiricCalc",
			usage: `
              UseEmpiricCalc specifies whether reflectivity is calculated
              from empirical power laws instead of scattering theory.`,
			defaultVal: false,
			flagsets:   []*pflag.FlagSet{simulateCmd.Flags()},
		},
		{
			name: "RefRng",
			usage: `
              RefRng is the radar reference range [m] used to scale the
              minimum detectable reflectivity.`,
			defaultVal: 1000.0,
			flagsets:   []*pflag.FlagSet{simulateCmd.Flags()},
		},
		{
			name: "ExtOD",
			usage: `
              ExtOD overrides the optical depth at which the lidar signal is
              fully extinguished. The instrument default is used if it is
              zero.`,
			defaultVal: 0.0,
			flagsets:   []*pflag.FlagSet{simulateCmd.Flags()},
		},
		{
			name: "Eta",
			usage: `
              Eta overrides the lidar multiple-scattering factor. The
              instrument default is used if it is zero.`,
			defaultVal: 0.0,
			flagsets:   []*pflag.FlagSet{simulateCmd.Flags()},
		},
		{
			name: "QcFlag",
			usage: `
              QcFlag specifies whether stratiform cloud liquid is given
              gamma-distributed sub-grid variability.`,
			defaultVal: true,
			flagsets:   []*pflag.FlagSet{simulateCmd.Flags()},
		},
		{
			name: "Seed",
			usage: `
              Seed is the base seed for the random numbers used to
              generate subcolumns.`,
			defaultVal: 0,
			flagsets:   []*pflag.FlagSet{simulateCmd.Flags()},
		},
	}

	Cfg = viper.New()

	// Set the prefix for configuration environment variables.
	Cfg.SetEnvPrefix("EMC2")
	Cfg.AutomaticEnv()

	for _, option := range options {
		for i, set := range option.flagsets {
			if i != 0 { // We don't want to create the same flag twice.
				set.AddFlag(option.flagsets[0].Lookup(option.name))
				continue
			}
			switch option.defaultVal.(type) {
			case string:
				if option.shorthand == "" {
					set.String(option.name, option.defaultVal.(string), option.usage)
				} else {
					set.StringP(option.name, option.shorthand, option.defaultVal.(string), option.usage)
				}
			case []string:
				set.StringSlice(option.name, option.defaultVal.([]string), option.usage)
			case bool:
				set.Bool(option.name, option.defaultVal.(bool), option.usage)
			case int:
				if option.shorthand == "" {
					set.Int(option.name, option.defaultVal.(int), option.usage)
				} else {
					set.IntP(option.name, option.shorthand, option.defaultVal.(int), option.usage)
				}
			case float64:
				set.Float64(option.name, option.defaultVal.(float64), option.usage)
			case []float64:
				set.Float64Slice(option.name, option.defaultVal.([]float64), option.usage)
			case map[string]string:
				b := bytes.NewBuffer(nil)
				e := json.NewEncoder(b)
				e.Encode(option.defaultVal)
				set.String(option.name, b.String(), option.usage)
			default:
				panic("invalid argument type")
			}
			Cfg.BindPFlag(option.name, set.Lookup(option.name))
		}
	}
}

func init() {
	// Link the commands together.
	Root.AddCommand(versionCmd)
	Root.AddCommand(simulateCmd)
	Root.AddCommand(instrumentsCmd)
}

// setConfig finds and reads in the configuration file, if there is one.
func setConfig() error {
	if cfgpath := Cfg.GetString("config"); cfgpath != "" {
		Cfg.SetConfigFile(cfgpath)
		if err := Cfg.ReadInConfig(); err != nil {
			return fmt.Errorf("emc2: problem reading configuration file: %v", err)
		}
	}
	return nil
}

// Root is the main command.
var Root = &cobra.Command{
	Use:   "emc2",
	Short: "An instrument simulator for atmospheric models.",
	Long: `EMC2 simulates the measurements that ground-based and spaceborne radars
and lidars would make of the clouds and precipitation in atmospheric model
output. Use the subcommands specified below to access the simulator
functionality.

Refer to the subcommand documentation for configuration options and default settings.
Configuration can be changed by using a configuration file (and providing the
path to the file using the --config flag), by using command-line arguments,
or by setting environment variables in the format 'EMC2_var' where 'var' is the
name of the variable to be set. Many configuration variables are additionally
allowed to contain environment variables within them.`,
	DisableAutoGenTag: true,
	SilenceUsage:      true,
	PersistentPreRunE: func(*cobra.Command, []string) error { return setConfig() },
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version number",
	Long:  "version prints the version number of this version of EMC2.",
	Run: func(cmd *cobra.Command, args []string) {
		cmd.Printf("EMC2 v%s (data version %s)\n", emc2.Version, emc2.DataVersion)
	},
	DisableAutoGenTag: true,
}

// simulateCmd is a command that runs the instrument simulator.
var simulateCmd = &cobra.Command{
	Use:   "simulate",
	Short: "Simulate instrument measurements.",
	Long: `simulate reads atmospheric model output, generates subcolumns,
calculates the moments the chosen instrument would measure, optionally
classifies hydrometeor phase, and writes the results.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := context.Background()
		sc, err := SimulationConfig(Cfg)
		if err != nil {
			return err
		}
		inst, err := instrument(Cfg.GetString("Instrument"), Cfg.GetString("InstrumentFile"))
		if err != nil {
			return err
		}
		outputFile, err := checkOutputFile(ctx, Cfg.GetString("OutputFile"))
		if err != nil {
			return err
		}
		outputVars, err := checkOutputVars(GetStringMapString("OutputVariables", Cfg))
		if err != nil {
			return err
		}
		return Run(ctx, cmd.OutOrStdout(),
			checkLogFile(Cfg.GetString("LogFile"), outputFile),
			expand(Cfg.GetString("InputFile")),
			expand(Cfg.GetString("InputFormat")),
			outputFile, outputVars, inst, Cfg.GetInt("NumSubcolumns"), sc)
	},
	DisableAutoGenTag: true,
}

// instrumentsCmd is a command that lists the available instruments and
// input formats.
var instrumentsCmd = &cobra.Command{
	Use:   "instruments",
	Short: "List instruments and input formats.",
	Long: `instruments lists the instruments that can be simulated, including
any defined in InstrumentFile, and the formats of model output that can be
read.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		insts, err := instruments(Cfg.GetString("InstrumentFile"))
		if err != nil {
			return err
		}
		cmd.Println("Instruments:")
		for _, i := range insts {
			cmd.Printf("  %-8s %-5s %g m\n", i.Name, i.Class, i.Wavelength)
		}
		cmd.Println("Input formats:")
		for _, f := range emc2.LoaderFormats() {
			cmd.Printf("  %s\n", f)
		}
		return nil
	},
	DisableAutoGenTag: true,
}
