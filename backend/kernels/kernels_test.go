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

package kernels_test

import (
	"math"
	"testing"

	"github.com/gx-org/tensoreval/backend/kernels"
	"github.com/gx-org/tensoreval/backend/value"
	"github.com/gx-org/tensoreval/build/ops"
	"github.com/gx-org/tensoreval/build/valuetype"
	"github.com/gx-org/tensoreval/interp/state"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var tp = valuetype.MustParse

func spec(typ string) *value.Spec {
	return value.NewSpec(tp(typ))
}

func scalar(x float64) *value.Spec {
	return spec("double").Add(nil, x)
}

func at(labels ...any) value.Address {
	addr := value.Address{}
	for i := 0; i < len(labels); i += 2 {
		name := labels[i].(string)
		switch label := labels[i+1].(type) {
		case string:
			addr[name] = value.L(label)
		case int:
			addr[name] = value.I(label)
		}
	}
	return addr
}

// vector returns a spec for a dense value with a single dimension.
func vector(typ string, xs ...float64) *value.Spec {
	s := spec(typ)
	name := s.Type().Dims()[0].Name
	for i, x := range xs {
		s.Add(at(name, i), x)
	}
	return s
}

var factories = []value.Factory{value.SimpleFactory, value.FastFactory}

// run executes an instruction with all the parameters pushed on the stack.
func run(t *testing.T, f value.Factory, in state.Instruction, params ...*value.Spec) *value.Spec {
	t.Helper()
	var prog []state.Instruction
	vals := make([]value.Value, len(params))
	for i, p := range params {
		prog = append(prog, kernels.Inject(i))
		vals[i] = p.MustValue(f)
	}
	prog = append(prog, in)
	return value.SpecFromValue(state.New(f).Run(prog, vals))
}

type kernelTest struct {
	name   string
	build  func() (state.Instruction, error)
	params []*value.Spec
	want   *value.Spec
}

var genericTests = []kernelTest{
	{
		name: "join sparse",
		build: func() (state.Instruction, error) {
			return kernels.Join(tp("tensor(x{},y{})"), tp("tensor(y{},z{})"), tp("tensor(x{},y{},z{})"), ops.Mul)
		},
		params: []*value.Spec{
			spec("tensor(x{},y{})").
				Add(at("x", "a", "y", "a"), 1).
				Add(at("x", "a", "y", "b"), 2).
				Add(at("x", "b", "y", "a"), 3),
			spec("tensor(y{},z{})").
				Add(at("y", "a", "z", "a"), 10).
				Add(at("y", "b", "z", "c"), 20),
		},
		want: spec("tensor(x{},y{},z{})").
			Add(at("x", "a", "y", "a", "z", "a"), 10).
			Add(at("x", "a", "y", "b", "z", "c"), 40).
			Add(at("x", "b", "y", "a", "z", "a"), 30),
	},
	{
		name: "join mixed with dense",
		build: func() (state.Instruction, error) {
			return kernels.Join(tp("tensor(x{},y[2])"), tp("tensor(y[2])"), tp("tensor(x{},y[2])"), ops.Add)
		},
		params: []*value.Spec{
			spec("tensor(x{},y[2])").Add(at("x", "a", "y", 0), 1).Add(at("x", "a", "y", 1), 2),
			vector("tensor(y[2])", 3, 4),
		},
		want: spec("tensor(x{},y[2])").Add(at("x", "a", "y", 0), 4).Add(at("x", "a", "y", 1), 6),
	},
	{
		name: "join dense outer product",
		build: func() (state.Instruction, error) {
			return kernels.Join(tp("tensor(y[2])"), tp("tensor<float>(x[2])"), tp("tensor(x[2],y[2])"), ops.Sub)
		},
		params: []*value.Spec{
			vector("tensor(y[2])", 1, 2),
			vector("tensor<float>(x[2])", 10, 20),
		},
		want: spec("tensor(x[2],y[2])").
			Add(at("x", 0, "y", 0), -9).
			Add(at("x", 0, "y", 1), -8).
			Add(at("x", 1, "y", 0), -19).
			Add(at("x", 1, "y", 1), -18),
	},
	{
		name: "join scalar",
		build: func() (state.Instruction, error) {
			return kernels.Join(tp("double"), tp("tensor<int8>(x[2])"), tp("tensor<float>(x[2])"), ops.Mul)
		},
		params: []*value.Spec{scalar(3), vector("tensor<int8>(x[2])", -2, 5)},
		want:   vector("tensor<float>(x[2])", -6, 15),
	},
	{
		name: "reduce mixed over indexed",
		build: func() (state.Instruction, error) {
			return kernels.Reduce(tp("tensor(x{},y[2])"), tp("tensor(x{})"), ops.Sum)
		},
		params: []*value.Spec{
			spec("tensor(x{},y[2])").
				Add(at("x", "a", "y", 0), 1).Add(at("x", "a", "y", 1), 2).
				Add(at("x", "b", "y", 0), 3).Add(at("x", "b", "y", 1), 4),
		},
		want: spec("tensor(x{})").Add(at("x", "a"), 3).Add(at("x", "b"), 7),
	},
	{
		name: "reduce mixed over mapped",
		build: func() (state.Instruction, error) {
			return kernels.Reduce(tp("tensor<float>(x{},y[2])"), tp("tensor<float>(y[2])"), ops.AggrMax)
		},
		params: []*value.Spec{
			spec("tensor<float>(x{},y[2])").
				Add(at("x", "a", "y", 0), 1).Add(at("x", "a", "y", 1), 5).
				Add(at("x", "b", "y", 0), 3).Add(at("x", "b", "y", 1), 4),
		},
		want: vector("tensor<float>(y[2])", 3, 5),
	},
	{
		name: "reduce empty sparse with prod",
		build: func() (state.Instruction, error) {
			return kernels.Reduce(tp("tensor(x{})"), tp("double"), ops.Prod)
		},
		params: []*value.Spec{spec("tensor(x{})")},
		want:   scalar(1),
	},
	{
		name: "merge",
		build: func() (state.Instruction, error) {
			return kernels.Merge(tp("tensor(x{})"), tp("tensor(x{})"), tp("tensor(x{})"), ops.Add)
		},
		params: []*value.Spec{
			spec("tensor(x{})").Add(at("x", "a"), 1).Add(at("x", "b"), 2),
			spec("tensor(x{})").Add(at("x", "b"), 3).Add(at("x", "c"), 4),
		},
		want: spec("tensor(x{})").Add(at("x", "a"), 1).Add(at("x", "b"), 5).Add(at("x", "c"), 4),
	},
	{
		name: "rename reorders cells",
		build: func() (state.Instruction, error) {
			return kernels.Rename(tp("tensor(x[2],y[3])"), tp("tensor(y[3],z[2])"), []string{"x"}, []string{"z"})
		},
		params: []*value.Spec{
			spec("tensor(x[2],y[3])").
				Add(at("x", 0, "y", 0), 1).Add(at("x", 0, "y", 2), 2).
				Add(at("x", 1, "y", 1), 3),
		},
		want: spec("tensor(y[3],z[2])").
			Add(at("z", 0, "y", 0), 1).Add(at("z", 0, "y", 2), 2).
			Add(at("z", 1, "y", 1), 3),
	},
	{
		name: "concat",
		build: func() (state.Instruction, error) {
			return kernels.Concat(tp("tensor(x[2])"), tp("tensor(x[3])"), tp("tensor(x[5])"), "x")
		},
		params: []*value.Spec{vector("tensor(x[2])", 1, 2), vector("tensor(x[3])", 3, 4, 5)},
		want:   vector("tensor(x[5])", 1, 2, 3, 4, 5),
	},
	{
		name: "map",
		build: func() (state.Instruction, error) {
			return kernels.Map(tp("tensor(x[2])"), tp("tensor(x[2])"), ops.Sqrt)
		},
		params: []*value.Spec{vector("tensor(x[2])", 4, 9)},
		want:   vector("tensor(x[2])", 2, 3),
	},
	{
		name: "cell cast saturates",
		build: func() (state.Instruction, error) {
			return kernels.CellCast(tp("tensor(x[4])"), tp("tensor<int8>(x[4])"))
		},
		params: []*value.Spec{vector("tensor(x[4])", 1.5, -300, 300, -2.7)},
		want:   vector("tensor<int8>(x[4])", 1, -128, 127, -2),
	},
	{
		name: "create",
		build: func() (state.Instruction, error) {
			return kernels.Create(tp("tensor(x{},y[2])"), []value.Address{at("x", "a", "y", 1), at("x", "b", "y", 0)})
		},
		params: []*value.Spec{scalar(1), scalar(2)},
		want:   spec("tensor(x{},y[2])").Add(at("x", "a", "y", 1), 1).Add(at("x", "b", "y", 0), 2),
	},
	{
		name: "peek label",
		build: func() (state.Instruction, error) {
			return kernels.Peek(tp("tensor(x{},y[3])"), tp("tensor(y[3])"), []kernels.PeekDim{{Name: "x", Label: "b", Child: -1}}, 0)
		},
		params: []*value.Spec{
			spec("tensor(x{},y[3])").
				Add(at("x", "a", "y", 0), 1).Add(at("x", "a", "y", 1), 2).Add(at("x", "a", "y", 2), 3).
				Add(at("x", "b", "y", 0), 4).Add(at("x", "b", "y", 1), 5).Add(at("x", "b", "y", 2), 6),
		},
		want: vector("tensor(y[3])", 4, 5, 6),
	},
	{
		name: "peek index",
		build: func() (state.Instruction, error) {
			return kernels.Peek(tp("tensor(x{},y[3])"), tp("tensor(x{})"), []kernels.PeekDim{{Name: "y", Index: 1, Child: -1}}, 0)
		},
		params: []*value.Spec{
			spec("tensor(x{},y[3])").
				Add(at("x", "a", "y", 0), 1).Add(at("x", "a", "y", 1), 2).Add(at("x", "a", "y", 2), 3).
				Add(at("x", "b", "y", 0), 4).Add(at("x", "b", "y", 1), 5).Add(at("x", "b", "y", 2), 6),
		},
		want: spec("tensor(x{})").Add(at("x", "a"), 2).Add(at("x", "b"), 5),
	},
}

func TestGeneric(t *testing.T) {
	for _, test := range genericTests {
		in, err := test.build()
		require.NoError(t, err, test.name)
		for _, f := range factories {
			got := run(t, f, in, test.params...)
			assert.True(t, got.Equal(test.want), "%s (%s): got %s but want %s", test.name, f, got, test.want)
		}
	}
}

func TestReduceAggregators(t *testing.T) {
	want := map[ops.Aggr]float64{
		ops.Avg:     2.5,
		ops.Count:   4,
		ops.Prod:    24,
		ops.Sum:     10,
		ops.AggrMax: 4,
		ops.Median:  2.5,
		ops.AggrMin: 1,
	}
	for _, aggr := range ops.Aggrs {
		in, err := kernels.Reduce(tp("tensor<float>(x[4])"), tp("double"), aggr)
		require.NoError(t, err)
		got := run(t, value.SimpleFactory, in, vector("tensor<float>(x[4])", 1, 4, 2, 3))
		assert.Equal(t, want[aggr], got.Cell(nil), aggr.String())
	}
}

var fusedTests = []kernelTest{
	{
		name: "dot product float",
		build: func() (state.Instruction, error) {
			return kernels.DenseDotProduct(tp("tensor<float>(x[3])"), tp("tensor<float>(x[3])"))
		},
		params: []*value.Spec{vector("tensor<float>(x[3])", 1, 2, 3), vector("tensor<float>(x[3])", 4, 5, 6)},
		want:   scalar(32),
	},
	{
		name: "dot product mixed cells",
		build: func() (state.Instruction, error) {
			return kernels.DenseDotProduct(tp("tensor<int8>(x[3])"), tp("tensor(x[3])"))
		},
		params: []*value.Spec{vector("tensor<int8>(x[3])", 1, -2, 3), vector("tensor(x[3])", 0.5, 5, 6)},
		want:   scalar(8.5),
	},
	{
		name: "xw product common inner",
		build: func() (state.Instruction, error) {
			return kernels.DenseXWProduct(tp("tensor<float>(y[3])"), tp("tensor<float>(x[2],y[3])"), tp("tensor<float>(x[2])"), 3, 2, true, true)
		},
		params: []*value.Spec{
			vector("tensor<float>(y[3])", 1, 2, 3),
			spec("tensor<float>(x[2],y[3])").
				Add(at("x", 0, "y", 0), 1).Add(at("x", 0, "y", 2), 1).
				Add(at("x", 1, "y", 0), 2).Add(at("x", 1, "y", 1), 1),
		},
		want: vector("tensor<float>(x[2])", 4, 4),
	},
	{
		name: "xw product common outer",
		build: func() (state.Instruction, error) {
			return kernels.DenseXWProduct(tp("tensor(x[2])"), tp("tensor(x[2],y[3])"), tp("tensor(y[3])"), 2, 3, false, false)
		},
		params: []*value.Spec{
			spec("tensor(x[2],y[3])").
				Add(at("x", 0, "y", 0), 1).Add(at("x", 0, "y", 2), 1).
				Add(at("x", 1, "y", 0), 2).Add(at("x", 1, "y", 1), 1),
			vector("tensor(x[2])", 1, 2),
		},
		want: vector("tensor(y[3])", 5, 2, 1),
	},
	{
		name: "xw product generic",
		build: func() (state.Instruction, error) {
			return kernels.DenseXWProduct(tp("tensor<int8>(x[2])"), tp("tensor<float>(x[2],y[3])"), tp("tensor<float>(y[3])"), 2, 3, false, true)
		},
		params: []*value.Spec{
			vector("tensor<int8>(x[2])", 1, 2),
			spec("tensor<float>(x[2],y[3])").
				Add(at("x", 0, "y", 0), 1).Add(at("x", 0, "y", 2), 1).
				Add(at("x", 1, "y", 0), 2).Add(at("x", 1, "y", 1), 1),
		},
		want: vector("tensor<float>(y[3])", 5, 2, 1),
	},
	{
		name: "simple expand inner rhs",
		build: func() (state.Instruction, error) {
			return kernels.DenseSimpleExpand(tp("tensor(x[2])"), tp("tensor(y[3])"), tp("tensor(x[2],y[3])"), ops.Sub, true)
		},
		params: []*value.Spec{vector("tensor(x[2])", 10, 20), vector("tensor(y[3])", 1, 2, 3)},
		want: spec("tensor(x[2],y[3])").
			Add(at("x", 0, "y", 0), 9).Add(at("x", 0, "y", 1), 8).Add(at("x", 0, "y", 2), 7).
			Add(at("x", 1, "y", 0), 19).Add(at("x", 1, "y", 1), 18).Add(at("x", 1, "y", 2), 17),
	},
	{
		name: "simple expand inner lhs",
		build: func() (state.Instruction, error) {
			return kernels.DenseSimpleExpand(tp("tensor(y[3])"), tp("tensor<float>(x[2])"), tp("tensor(x[2],y[3])"), ops.Sub, false)
		},
		params: []*value.Spec{vector("tensor(y[3])", 1, 2, 3), vector("tensor<float>(x[2])", 10, 20)},
		want: spec("tensor(x[2],y[3])").
			Add(at("x", 0, "y", 0), -9).Add(at("x", 0, "y", 1), -8).Add(at("x", 0, "y", 2), -7).
			Add(at("x", 1, "y", 0), -19).Add(at("x", 1, "y", 1), -18).Add(at("x", 1, "y", 2), -17),
	},
	{
		name: "sum max dot product",
		build: func() (state.Instruction, error) {
			return kernels.SumMaxDotProduct(tp("tensor<float>(qt{},x[2])"), tp("tensor<float>(dt{},x[2])"), 2, true)
		},
		params: []*value.Spec{
			spec("tensor<float>(qt{},x[2])").
				Add(at("qt", "q1", "x", 0), 1).Add(at("qt", "q1", "x", 1), 2).
				Add(at("qt", "q2", "x", 0), 0).Add(at("qt", "q2", "x", 1), 1),
			spec("tensor<float>(dt{},x[2])").
				Add(at("dt", "d1", "x", 0), 1).Add(at("dt", "d1", "x", 1), 0).
				Add(at("dt", "d2", "x", 0), 2).Add(at("dt", "d2", "x", 1), 2),
		},
		want: scalar(8),
	},
	{
		name: "sum max dot product query rhs",
		build: func() (state.Instruction, error) {
			return kernels.SumMaxDotProduct(tp("tensor<float>(qt{},x[2])"), tp("tensor<float>(dt{},x[2])"), 2, false)
		},
		params: []*value.Spec{
			spec("tensor<float>(dt{},x[2])").
				Add(at("dt", "d1", "x", 0), -1).Add(at("dt", "d1", "x", 1), -1),
			spec("tensor<float>(qt{},x[2])").
				Add(at("qt", "q1", "x", 0), 1).Add(at("qt", "q1", "x", 1), 2),
		},
		want: scalar(-3),
	},
	{
		name: "sum max dot product no documents",
		build: func() (state.Instruction, error) {
			return kernels.SumMaxDotProduct(tp("tensor<float>(qt{},x[2])"), tp("tensor<float>(dt{},x[2])"), 2, true)
		},
		params: []*value.Spec{
			spec("tensor<float>(qt{},x[2])").Add(at("qt", "q1", "x", 0), 1),
			spec("tensor<float>(dt{},x[2])"),
		},
		want: scalar(0),
	},
	{
		name: "best similarity hamming",
		build: func() (state.Instruction, error) {
			return kernels.BestSimilarity(tp("tensor<int8>(b{},d[2])"), tp("tensor<int8>(d[2],o{})"), tp("tensor<float>(o{})"), ops.Hamming, ops.AggrMin, 2, true, false)
		},
		params: []*value.Spec{
			spec("tensor<int8>(b{},d[2])").
				Add(at("b", "b1", "d", 0), 0).Add(at("b", "b1", "d", 1), 0).
				Add(at("b", "b2", "d", 0), 1).Add(at("b", "b2", "d", 1), 1),
			spec("tensor<int8>(d[2],o{})").
				Add(at("o", "o1", "d", 0), 1).Add(at("o", "o1", "d", 1), 0).
				Add(at("o", "o2", "d", 0), 3).Add(at("o", "o2", "d", 1), 3),
		},
		want: spec("tensor<float>(o{})").Add(at("o", "o1"), 1).Add(at("o", "o2"), 2),
	},
	{
		name: "best similarity hamming sum outer",
		build: func() (state.Instruction, error) {
			return kernels.BestSimilarity(tp("tensor<int8>(b{},d[2])"), tp("tensor<int8>(d[2],o{})"), tp("double"), ops.Hamming, ops.AggrMin, 2, true, true)
		},
		params: []*value.Spec{
			spec("tensor<int8>(b{},d[2])").
				Add(at("b", "b1", "d", 0), 0).Add(at("b", "b1", "d", 1), 0).
				Add(at("b", "b2", "d", 0), 1).Add(at("b", "b2", "d", 1), 1),
			spec("tensor<int8>(d[2],o{})").
				Add(at("o", "o1", "d", 0), 1).Add(at("o", "o1", "d", 1), 0).
				Add(at("o", "o2", "d", 0), 3).Add(at("o", "o2", "d", 1), 3),
		},
		want: scalar(3),
	},
	{
		name: "best similarity empty primary",
		build: func() (state.Instruction, error) {
			return kernels.BestSimilarity(tp("tensor<int8>(b{},d[2])"), tp("tensor<int8>(d[2],o{})"), tp("tensor<float>(o{})"), ops.Hamming, ops.AggrMin, 2, true, false)
		},
		params: []*value.Spec{
			spec("tensor<int8>(b{},d[2])"),
			spec("tensor<int8>(d[2],o{})").Add(at("o", "o1", "d", 0), 1),
		},
		want: spec("tensor<float>(o{})"),
	},
	{
		name: "best similarity dot product indexed best",
		build: func() (state.Instruction, error) {
			return kernels.BestSimilarity(tp("tensor<float>(b[2],d[2])"), tp("tensor<float>(d[2])"), tp("double"), ops.Mul, ops.AggrMax, 2, false, false)
		},
		params: []*value.Spec{
			vector("tensor<float>(d[2])", 3, 4),
			spec("tensor<float>(b[2],d[2])").Add(at("b", 0, "d", 0), 1).Add(at("b", 1, "d", 1), 1),
		},
		want: scalar(4),
	},
}

func TestFused(t *testing.T) {
	for _, test := range fusedTests {
		in, err := test.build()
		require.NoError(t, err, test.name)
		for _, f := range factories {
			got := run(t, f, in, test.params...)
			assert.True(t, got.Equal(test.want), "%s (%s): got %s but want %s", test.name, f, got, test.want)
		}
	}
}

func TestSumMaxInvHamming(t *testing.T) {
	in, err := kernels.SumMaxInvHamming(tp("tensor<int8>(qt{},x[2])"), tp("tensor<int8>(dt{},x[2])"), 2, true)
	require.NoError(t, err)
	query := spec("tensor<int8>(qt{},x[2])").
		Add(at("qt", "q1", "x", 0), 0).Add(at("qt", "q1", "x", 1), 0).
		Add(at("qt", "q2", "x", 0), 1).Add(at("qt", "q2", "x", 1), 1)
	doc := spec("tensor<int8>(dt{},x[2])").
		Add(at("dt", "d1", "x", 0), 1).Add(at("dt", "d1", "x", 1), 1).
		Add(at("dt", "d2", "x", 0), 3).Add(at("dt", "d2", "x", 1), 0).
		Add(at("dt", "d3", "x", 0), -1).Add(at("dt", "d3", "x", 1), 0)
	for _, f := range factories {
		got := run(t, f, in, query, doc).Cell(nil)
		// q1 is at distance 2 of d1 and d2, q2 at distance 0 of d1.
		assert.InDelta(t, 1.0/3+1, got, 1e-12, f.String())
	}
}

func TestUnsupportedCells(t *testing.T) {
	_, err := kernels.SumMaxDotProduct(tp("tensor(qt{},x[2])"), tp("tensor(dt{},x[2])"), 2, true)
	assert.Error(t, err)
	_, err = kernels.SumMaxInvHamming(tp("tensor<float>(qt{},x[2])"), tp("tensor<int8>(dt{},x[2])"), 2, true)
	assert.Error(t, err)
	_, err = kernels.BestSimilarity(tp("tensor<float>(b{},d[2])"), tp("tensor<int8>(d[2])"), tp("double"), ops.Mul, ops.AggrMax, 2, true, false)
	assert.Error(t, err)
	_, err = kernels.BestSimilarity(tp("tensor<float>(b{},d[2])"), tp("tensor<float>(d[2])"), tp("double"), ops.Hamming, ops.AggrMin, 2, true, false)
	assert.Error(t, err)
}

func TestPeekMissingLabel(t *testing.T) {
	in, err := kernels.Peek(tp("tensor<float>(x{})"), tp("double"), []kernels.PeekDim{{Name: "x", Label: "z", Child: -1}}, 0)
	require.NoError(t, err)
	for _, f := range factories {
		got := run(t, f, in, spec("tensor<float>(x{})").Add(at("x", "a"), 1))
		assert.Equal(t, 0.0, got.Cell(nil))
		assert.False(t, math.IsNaN(got.Cell(nil)))
	}
}
