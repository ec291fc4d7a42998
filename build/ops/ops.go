// Copyright 2024 Google LLC
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package ops defines the closed sets of operators used by tensor functions.
package ops

import (
	"math"
	"math/bits"
)

// Binary operator combining two cells.
type Binary int

// Binary operators.
const (
	InvalidBinary Binary = iota
	Add
	Sub
	Mul
	Div
	Mod
	Pow
	Min
	Max
	Equal
	NotEqual
	Less
	LessEqual
	Greater
	GreaterEqual
	And
	Or
	Atan2
	Ldexp
	Hamming
)

var binaryNames = map[Binary]string{
	Add:          "add",
	Sub:          "sub",
	Mul:          "mul",
	Div:          "div",
	Mod:          "mod",
	Pow:          "pow",
	Min:          "min",
	Max:          "max",
	Equal:        "equal",
	NotEqual:     "not_equal",
	Less:         "less",
	LessEqual:    "less_equal",
	Greater:      "greater",
	GreaterEqual: "greater_equal",
	And:          "and",
	Or:           "or",
	Atan2:        "atan2",
	Ldexp:        "ldexp",
	Hamming:      "hamming",
}

func boolToFloat(b bool) float64 {
	if b {
		return 1
	}
	return 0
}

// HammingDistance returns the number of bits differing between the int8
// representations of a and b.
func HammingDistance(a, b int8) int {
	return bits.OnesCount8(uint8(a) ^ uint8(b))
}

var binaryFuncs = map[Binary]func(float64, float64) float64{
	Add:          func(a, b float64) float64 { return a + b },
	Sub:          func(a, b float64) float64 { return a - b },
	Mul:          func(a, b float64) float64 { return a * b },
	Div:          func(a, b float64) float64 { return a / b },
	Mod:          math.Mod,
	Pow:          math.Pow,
	Min:          math.Min,
	Max:          math.Max,
	Equal:        func(a, b float64) float64 { return boolToFloat(a == b) },
	NotEqual:     func(a, b float64) float64 { return boolToFloat(a != b) },
	Less:         func(a, b float64) float64 { return boolToFloat(a < b) },
	LessEqual:    func(a, b float64) float64 { return boolToFloat(a <= b) },
	Greater:      func(a, b float64) float64 { return boolToFloat(a > b) },
	GreaterEqual: func(a, b float64) float64 { return boolToFloat(a >= b) },
	And:          func(a, b float64) float64 { return boolToFloat(a != 0 && b != 0) },
	Or:           func(a, b float64) float64 { return boolToFloat(a != 0 || b != 0) },
	Atan2:        math.Atan2,
	Ldexp:        func(a, b float64) float64 { return math.Ldexp(a, int(b)) },
	Hamming: func(a, b float64) float64 {
		return float64(HammingDistance(int8(int64(a)), int8(int64(b))))
	},
}

// Func returns the function computing the operator.
func (op Binary) Func() func(float64, float64) float64 {
	return binaryFuncs[op]
}

// IsCommutative returns true if the operands of the operator can be swapped.
func (op Binary) IsCommutative() bool {
	switch op {
	case Add, Mul, Min, Max, Equal, NotEqual, And, Or, Hamming:
		return true
	}
	return false
}

// Valid returns true if the operator is known.
func (op Binary) Valid() bool {
	_, ok := binaryFuncs[op]
	return ok
}

func (op Binary) String() string {
	if s, ok := binaryNames[op]; ok {
		return s
	}
	return "invalid"
}

// Unary function applied to all the cells of a tensor.
type Unary int

// Unary functions.
const (
	InvalidUnary Unary = iota
	Neg
	Not
	Abs
	Ceil
	Floor
	Exp
	Log
	Sqrt
	Square
	Cube
	Inv
	Sigmoid
	Relu
	Elu
	Erf
	Tanh
	Sin
	Cos
	IsNaN
)

var unaryNames = map[Unary]string{
	Neg:     "neg",
	Not:     "not",
	Abs:     "abs",
	Ceil:    "ceil",
	Floor:   "floor",
	Exp:     "exp",
	Log:     "log",
	Sqrt:    "sqrt",
	Square:  "square",
	Cube:    "cube",
	Inv:     "inv",
	Sigmoid: "sigmoid",
	Relu:    "relu",
	Elu:     "elu",
	Erf:     "erf",
	Tanh:    "tanh",
	Sin:     "sin",
	Cos:     "cos",
	IsNaN:   "isnan",
}

var unaryFuncs = map[Unary]func(float64) float64{
	Neg:    func(x float64) float64 { return -x },
	Not:    func(x float64) float64 { return boolToFloat(x == 0) },
	Abs:    math.Abs,
	Ceil:   math.Ceil,
	Floor:  math.Floor,
	Exp:    math.Exp,
	Log:    math.Log,
	Sqrt:   math.Sqrt,
	Square: func(x float64) float64 { return x * x },
	Cube:   func(x float64) float64 { return x * x * x },
	Inv:    func(x float64) float64 { return 1 / x },
	Sigmoid: func(x float64) float64 {
		return 1 / (1 + math.Exp(-x))
	},
	Relu: func(x float64) float64 { return math.Max(x, 0) },
	Elu: func(x float64) float64 {
		if x < 0 {
			return math.Exp(x) - 1
		}
		return x
	},
	Erf:   math.Erf,
	Tanh:  math.Tanh,
	Sin:   math.Sin,
	Cos:   math.Cos,
	IsNaN: func(x float64) float64 { return boolToFloat(math.IsNaN(x)) },
}

// Func returns the function computing the operator.
func (op Unary) Func() func(float64) float64 {
	return unaryFuncs[op]
}

// Valid returns true if the function is known.
func (op Unary) Valid() bool {
	_, ok := unaryFuncs[op]
	return ok
}

func (op Unary) String() string {
	if s, ok := unaryNames[op]; ok {
		return s
	}
	return "invalid"
}

// Aggr is an aggregator used to reduce dimensions.
type Aggr int

// Aggregators.
const (
	InvalidAggr Aggr = iota
	Avg
	Count
	Prod
	Sum
	AggrMax
	Median
	AggrMin
)

var aggrNames = map[Aggr]string{
	Avg:     "avg",
	Count:   "count",
	Prod:    "prod",
	Sum:     "sum",
	AggrMax: "max",
	Median:  "median",
	AggrMin: "min",
}

// Aggrs lists all the aggregators.
var Aggrs = []Aggr{Avg, Count, Prod, Sum, AggrMax, Median, AggrMin}

// Valid returns true if the aggregator is known.
func (a Aggr) Valid() bool {
	_, ok := aggrNames[a]
	return ok
}

// Empty returns the result of the aggregator over no cells.
func (a Aggr) Empty() float64 {
	if a == Prod {
		return 1
	}
	return 0
}

func (a Aggr) String() string {
	if s, ok := aggrNames[a]; ok {
		return s
	}
	return "invalid"
}
