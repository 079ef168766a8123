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
	"os"
	"sort"

	"github.com/Knetic/govaluate"
	"github.com/ctessum/sparse"
)

// Outputter is a holder for output parameters.
//
// outputVariables maps the names of the variables that should be written
// to expressions that define how they are calculated. Expressions can use
// model variables, other output variables, and functions. Grid-resolution
// variables are repeated across subcolumns when they are combined with
// subcolumn-resolution variables.
//
// If outputVariables is empty, all model variables are written as they
// are.
type Outputter struct {
	fileName        string
	outputVariables map[string]string
	outputFunctions map[string]govaluate.ExpressionFunction
	expressions     map[string]*govaluate.EvaluableExpression
}

// NewOutputter initializes a new Outputter and adds a set of default
// output functions:
//
// 'exp(x)' which applies the exponential function e^x.
//
// 'log10(x)' which returns the base-10 logarithm of x.
//
// 'dBZ(x)' which converts linear reflectivity to decibels. Zero or
// negative reflectivity gives NaN.
//
// 'linear(x)' which converts decibels to linear units.
func NewOutputter(fileName string, outputVariables map[string]string, outputFunctions map[string]govaluate.ExpressionFunction) (*Outputter, error) {
	oneArg := func(name string, f func(float64) float64) govaluate.ExpressionFunction {
		return func(arg ...interface{}) (interface{}, error) {
			if len(arg) != 1 {
				return nil, fmt.Errorf("emc2: got %d arguments for function '%s', but needs 1", len(arg), name)
			}
			v, ok := arg[0].(float64)
			if !ok {
				return nil, fmt.Errorf("emc2: argument to function '%s' must be a number", name)
			}
			return f(v), nil
		}
	}
	defaultOutputFuncs := map[string]govaluate.ExpressionFunction{
		"exp":   oneArg("exp", math.Exp),
		"log10": oneArg("log10", math.Log10),
		"dBZ": oneArg("dBZ", func(z float64) float64 {
			if z <= 0 {
				return math.NaN()
			}
			return dBZ(z)
		}),
		"linear": oneArg("linear", func(db float64) float64 { return math.Pow(10, db/10) }),
	}
	for key, val := range outputFunctions {
		defaultOutputFuncs[key] = val
	}
	o := &Outputter{
		fileName:        fileName,
		outputVariables: outputVariables,
		outputFunctions: defaultOutputFuncs,
		expressions:     make(map[string]*govaluate.EvaluableExpression),
	}
	for name, expr := range outputVariables {
		e, err := govaluate.NewEvaluableExpressionWithFunctions(expr, o.outputFunctions)
		if err != nil {
			return nil, fmt.Errorf("emc2: output variable %s: %v", name, err)
		}
		o.expressions[name] = e
	}
	return o, nil
}

// modelVariables returns the model variables needed to calculate the
// output variables, checking for circular definitions.
func (o *Outputter) modelVariables() ([]string, error) {
	need := make(map[string]bool)
	var visit func(name string, path map[string]bool) error
	visit = func(name string, path map[string]bool) error {
		if path[name] {
			return fmt.Errorf("%w: output variable %s is defined in terms of itself", ErrConfiguration, name)
		}
		path[name] = true
		defer delete(path, name)
		for _, v := range o.expressions[name].Vars() {
			if _, ok := o.expressions[v]; ok && v != name {
				if err := visit(v, path); err != nil {
					return err
				}
				continue
			}
			need[v] = true
		}
		return nil
	}
	for name := range o.expressions {
		if err := visit(name, make(map[string]bool)); err != nil {
			return nil, err
		}
	}
	out := make([]string, 0, len(need))
	for v := range need {
		out = append(out, v)
	}
	sort.Strings(out)
	return out, nil
}

// CheckOutputVars ensures the output variables can be calculated from m.
func (o *Outputter) CheckOutputVars(m *Model) error {
	vars, err := o.modelVariables()
	if err != nil {
		return err
	}
	for _, v := range vars {
		if !m.Has(v) {
			return fmt.Errorf("%w: undefined variable name '%s' in output expressions", ErrConfiguration, v)
		}
	}
	return nil
}

// Results calculates the output variables from m.
func (o *Outputter) Results(m *Model) (map[string]*Variable, error) {
	if err := o.CheckOutputVars(m); err != nil {
		return nil, err
	}
	results := make(map[string]*Variable)
	var calc func(name string) (*Variable, error)
	calc = func(name string) (*Variable, error) {
		if r, ok := results[name]; ok {
			return r, nil
		}
		e := o.expressions[name]
		var inputs []string
		vars := make(map[string]*Variable)
		for _, v := range e.Vars() {
			if _, ok := vars[v]; ok {
				continue
			}
			var in *Variable
			var err error
			if _, isOutput := o.expressions[v]; isOutput && v != name {
				in, err = calc(v)
			} else {
				in, err = m.Variable(v)
			}
			if err != nil {
				return nil, err
			}
			vars[v] = in
			inputs = append(inputs, v)
		}
		r, err := evaluate(name, e, vars, inputs)
		if err != nil {
			return nil, err
		}
		results[name] = r
		return r, nil
	}
	for name := range o.expressions {
		if _, err := calc(name); err != nil {
			return nil, err
		}
	}
	return results, nil
}

// evaluate evaluates e at every element of the largest input variable,
// repeating smaller inputs whose dimensions match its trailing
// dimensions.
func evaluate(name string, e *govaluate.EvaluableExpression, vars map[string]*Variable, inputs []string) (*Variable, error) {
	var big *Variable
	for _, v := range inputs {
		if big == nil || len(vars[v].Data.Elements) > len(big.Data.Elements) {
			big = vars[v]
		}
	}
	out := &Variable{Description: fmt.Sprintf("%s = %s", name, e.String())}
	if big == nil {
		return nil, fmt.Errorf("%w: output variable %s does not use any model variables", ErrConfiguration, name)
	}
	out.Dims = append([]string{}, big.Dims...)
	for _, v := range inputs {
		in := vars[v]
		if !trailingDims(big.Dims, in.Dims) {
			return nil, fmt.Errorf("%w: cannot combine %s %v with %v in output variable %s",
				ErrConsistency, v, in.Dims, big.Dims, name)
		}
	}
	out.Data = sparse.ZerosDense(append([]int{}, big.Data.Shape...)...)
	params := make(map[string]interface{}, len(inputs))
	for i := range out.Data.Elements {
		for _, v := range inputs {
			el := vars[v].Data.Elements
			params[v] = el[i%len(el)]
		}
		r, err := e.Evaluate(params)
		if err != nil {
			return nil, fmt.Errorf("emc2: evaluating output variable %s: %v", name, err)
		}
		switch rv := r.(type) {
		case float64:
			out.Data.Elements[i] = rv
		case bool:
			if rv {
				out.Data.Elements[i] = 1
			}
		default:
			return nil, fmt.Errorf("emc2: output variable %s evaluates to %T, not a number", name, r)
		}
	}
	return out, nil
}

// trailingDims returns whether small matches the last dimensions of big.
func trailingDims(big, small []string) bool {
	if len(small) > len(big) {
		return false
	}
	return sameStrings(big[len(big)-len(small):], small)
}

// Output writes the output variables calculated from m to the
// Outputter's file in netCDF format.
func (o *Outputter) Output(m *Model) error {
	out := &Model{
		Name:          m.Name,
		Scheme:        m.Scheme,
		ProcessConv:   m.ProcessConv,
		Classes:       m.Classes,
		ColumnDim:     m.ColumnDim,
		NumColumns:    m.NumColumns,
		NumLevels:     m.NumLevels,
		NumSubcolumns: m.NumSubcolumns,
		Stacked:       m.Stacked,
		Unstacked:     m.Unstacked,
		Stage:         m.Stage,
		Attributes:    m.Attributes,
		Data:          m.Data,
	}
	if len(o.expressions) > 0 {
		results, err := o.Results(m)
		if err != nil {
			return err
		}
		out.Data = results
	}
	f, err := os.Create(o.fileName)
	if err != nil {
		return fmt.Errorf("emc2: creating output file: %v", err)
	}
	if err := out.Write(f); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
