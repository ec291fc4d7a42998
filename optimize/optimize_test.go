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

package optimize_test

import (
	"fmt"
	"maps"
	"slices"
	"testing"

	"github.com/gx-org/tensoreval/api/options"
	"github.com/gx-org/tensoreval/backend/value"
	"github.com/gx-org/tensoreval/build/ir"
	"github.com/gx-org/tensoreval/build/ops"
	"github.com/gx-org/tensoreval/build/valuetype"
	"github.com/gx-org/tensoreval/interp"
	"github.com/gx-org/tensoreval/optimize"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fill returns a spec with all the cells of a type set. Mapped dimensions
// have the labels a, b and c.
func fill(typ valuetype.Type, seed int) *value.Spec {
	s := value.NewSpec(typ)
	dims := typ.Dims()
	n := seed
	var rec func(i int, addr value.Address)
	rec = func(i int, addr value.Address) {
		if i == len(dims) {
			n++
			x := float64(n*7%11 - 5)
			if typ.CellType() == valuetype.Int8 {
				x = float64(n*37%256 - 128)
			}
			s.Add(maps.Clone(addr), x)
			return
		}
		dim := dims[i]
		if dim.IsMapped() {
			for _, label := range []string{"a", "b", "c"} {
				addr[dim.Name] = value.L(label)
				rec(i+1, addr)
			}
			return
		}
		for j := range dim.Size {
			addr[dim.Name] = value.I(j)
			rec(i+1, addr)
		}
	}
	rec(0, value.Address{})
	return s
}

// fused returns the names of the fused nodes reachable from root.
func fused(t *ir.Tree, root ir.NodeID) []string {
	var names []string
	for id := range t.PostOrder(root) {
		switch t.Node(id).(type) {
		case *ir.DenseDotProduct, *ir.DenseXWProduct, *ir.DenseSimpleExpand,
			*ir.SumMaxDotProduct, *ir.SumMaxInvHamming, *ir.BestSimilarity:
			names = append(names, fmt.Sprintf("%T", t.Node(id)))
		}
	}
	return names
}

type builder func(t *ir.Tree, a, b ir.NodeID) ir.NodeID

func dotProduct(t *ir.Tree, a, b ir.NodeID) ir.NodeID {
	return t.Reduce(t.Join(a, b, ops.Mul), ops.Sum)
}

func reduceMul(dim string) builder {
	return func(t *ir.Tree, a, b ir.NodeID) ir.NodeID {
		return t.Reduce(t.Join(a, b, ops.Mul), ops.Sum, dim)
	}
}

func joinOp(op ops.Binary) builder {
	return func(t *ir.Tree, a, b ir.NodeID) ir.NodeID {
		return t.Join(a, b, op)
	}
}

func sumMaxDot(t *ir.Tree, a, b ir.NodeID) ir.NodeID {
	inner := t.Reduce(t.Join(a, b, ops.Mul), ops.Sum, "x")
	return t.Reduce(t.Reduce(inner, ops.AggrMax, "dt"), ops.Sum, "qt")
}

func sumMaxInvHamming(commuted bool) builder {
	return func(t *ir.Tree, a, b ir.NodeID) ir.NodeID {
		distance := t.Reduce(t.Join(a, b, ops.Hamming), ops.Sum, "x")
		onePlus := t.Join(t.ConstScalar(1), distance, ops.Add)
		if commuted {
			onePlus = t.Join(distance, t.ConstScalar(1), ops.Add)
		}
		inverted := t.Join(t.ConstScalar(1), onePlus, ops.Div)
		return t.Reduce(t.Reduce(inverted, ops.AggrMax, "dt"), ops.Sum, "qt")
	}
}

func best(op ops.Binary, aggr ops.Aggr, inner, best string, sumOuter bool) builder {
	return func(t *ir.Tree, a, b ir.NodeID) ir.NodeID {
		similarity := t.Reduce(t.Join(a, b, op), ops.Sum, inner)
		root := t.Reduce(similarity, aggr, best)
		if sumOuter {
			root = t.Reduce(root, ops.Sum)
		}
		return root
	}
}

var optimizeTests = []struct {
	name  string
	a, b  string
	build builder
	want  []string
}{
	{
		name:  "dot product",
		a:     "tensor(x[5])",
		b:     "tensor(x[5])",
		build: dotProduct,
		want:  []string{"*ir.DenseDotProduct"},
	},
	{
		name:  "dot product float",
		a:     "tensor<float>(x[5])",
		b:     "tensor<float>(x[5])",
		build: dotProduct,
		want:  []string{"*ir.DenseDotProduct"},
	},
	{
		name:  "dot product mixed cells",
		a:     "tensor<int8>(x[5])",
		b:     "tensor<bfloat16>(x[5])",
		build: dotProduct,
		want:  []string{"*ir.DenseDotProduct"},
	},
	{
		name:  "dot product trivial dimension",
		a:     "tensor<float>(x[5],y[1])",
		b:     "tensor<float>(x[5])",
		build: dotProduct,
		want:  []string{"*ir.DenseDotProduct"},
	},
	{
		name:  "dot product different dimensions",
		a:     "tensor(x[5])",
		b:     "tensor(y[5])",
		build: dotProduct,
		want:  []string{"*ir.DenseSimpleExpand"},
	},
	{
		name:  "xw product common inner",
		a:     "tensor<float>(y[3])",
		b:     "tensor<float>(x[2],y[3])",
		build: reduceMul("y"),
		want:  []string{"*ir.DenseXWProduct"},
	},
	{
		name:  "xw product common outer",
		a:     "tensor(x[3])",
		b:     "tensor(x[3],y[2])",
		build: reduceMul("x"),
		want:  []string{"*ir.DenseXWProduct"},
	},
	{
		name:  "xw product trivial dimension",
		a:     "tensor(x[3],z[1])",
		b:     "tensor(x[3],y[2])",
		build: reduceMul("x"),
		want:  []string{"*ir.DenseXWProduct"},
	},
	{
		name:  "xw product mixed cells",
		a:     "tensor<int8>(x[3])",
		b:     "tensor<float>(x[3],y[2])",
		build: reduceMul("x"),
		want:  []string{"*ir.DenseXWProduct"},
	},
	{
		name:  "simple expand",
		a:     "tensor(a[2])",
		b:     "tensor<float>(b[3],c[2])",
		build: joinOp(ops.Sub),
		want:  []string{"*ir.DenseSimpleExpand"},
	},
	{
		name:  "interleaved expand",
		a:     "tensor(a[2],c[2])",
		b:     "tensor(b[3])",
		build: joinOp(ops.Sub),
	},
	{
		name:  "sparse join",
		a:     "tensor(a{})",
		b:     "tensor(b[3])",
		build: joinOp(ops.Mul),
	},
	{
		name:  "sum max dot product",
		a:     "tensor<float>(qt{},x[4])",
		b:     "tensor<float>(dt{},x[4])",
		build: sumMaxDot,
		want:  []string{"*ir.SumMaxDotProduct"},
	},
	{
		name: "sum max dot product trivial dimension",
		a:    "tensor<float>(qt{},x[4],z[1])",
		b:    "tensor<float>(dt{},x[4])",
		build: func(t *ir.Tree, a, b ir.NodeID) ir.NodeID {
			inner := t.Reduce(t.Join(a, b, ops.Mul), ops.Sum, "x", "z")
			return t.Reduce(t.Reduce(inner, ops.AggrMax, "dt"), ops.Sum, "qt")
		},
		want: []string{"*ir.SumMaxDotProduct"},
	},
	{
		name:  "sum max dot product double",
		a:     "tensor(qt{},x[4])",
		b:     "tensor(dt{},x[4])",
		build: sumMaxDot,
	},
	{
		name:  "sum max inverted hamming",
		a:     "tensor<int8>(qt{},x[4])",
		b:     "tensor<int8>(dt{},x[4])",
		build: sumMaxInvHamming(false),
		want:  []string{"*ir.SumMaxInvHamming"},
	},
	{
		name:  "sum max inverted hamming commuted",
		a:     "tensor<int8>(qt{},x[4])",
		b:     "tensor<int8>(dt{},x[4])",
		build: sumMaxInvHamming(true),
		want:  []string{"*ir.SumMaxInvHamming"},
	},
	{
		name:  "sum max inverted hamming double",
		a:     "tensor(qt{},x[4])",
		b:     "tensor(dt{},x[4])",
		build: sumMaxInvHamming(false),
	},
	{
		name:  "best similarity indexed best",
		a:     "tensor<float>(d[8])",
		b:     "tensor<float>(b[5],d[8])",
		build: best(ops.Mul, ops.AggrMax, "d", "b", false),
		want:  []string{"*ir.BestSimilarity"},
	},
	{
		name:  "best similarity indexed best double",
		a:     "tensor(d[8])",
		b:     "tensor(b[5],d[8])",
		build: best(ops.Mul, ops.AggrMax, "d", "b", false),
		want:  []string{"*ir.DenseXWProduct"},
	},
	{
		name:  "best similarity inner not innermost",
		a:     "tensor<float>(b[8])",
		b:     "tensor<float>(b[8],c[5])",
		build: best(ops.Mul, ops.AggrMax, "b", "c", false),
		want:  []string{"*ir.DenseXWProduct"},
	},
	{
		name:  "best similarity hamming",
		a:     "tensor<int8>(b{},d[4])",
		b:     "tensor<int8>(d[4],o{})",
		build: best(ops.Hamming, ops.AggrMin, "d", "b", false),
		want:  []string{"*ir.BestSimilarity"},
	},
	{
		name:  "best similarity hamming sum outer",
		a:     "tensor<int8>(b{},d[4])",
		b:     "tensor<int8>(d[4],o{})",
		build: best(ops.Hamming, ops.AggrMin, "d", "b", true),
		want:  []string{"*ir.BestSimilarity"},
	},
	{
		name:  "best similarity dot product sum outer",
		a:     "tensor<float>(b[3],d[4])",
		b:     "tensor<float>(d[4],o{})",
		build: best(ops.Mul, ops.AggrMax, "d", "b", true),
		want:  []string{"*ir.BestSimilarity"},
	},
	{
		name:  "best similarity hamming float",
		a:     "tensor<float>(b{},d[4])",
		b:     "tensor<float>(d[4],o{})",
		build: best(ops.Hamming, ops.AggrMin, "d", "b", false),
	},
}

func build(t *testing.T, a, b string, f builder, swap bool) (*ir.Tree, ir.NodeID) {
	tree := ir.NewTree()
	lhs := tree.Inject(0, valuetype.MustParse(a))
	rhs := tree.Inject(1, valuetype.MustParse(b))
	if swap {
		lhs, rhs = rhs, lhs
	}
	root := f(tree, lhs, rhs)
	require.NoError(t, tree.Verify(root))
	return tree, root
}

func eval(t *testing.T, f value.Factory, opt bool, tree *ir.Tree, root ir.NodeID, params ...*value.Spec) *value.Spec {
	fn, err := interp.New(f, tree, root, options.WithOptimize(opt))
	require.NoError(t, err)
	vals := make([]value.Value, len(params))
	for i, p := range params {
		vals[i] = p.MustValue(f)
	}
	got, err := fn.Eval(fn.NewContext(), vals...)
	require.NoError(t, err)
	return value.SpecFromValue(got)
}

func TestOptimize(t *testing.T) {
	for _, test := range optimizeTests {
		for _, swap := range []bool{false, true} {
			name := fmt.Sprintf("%s swap=%t", test.name, swap)
			tree, root := build(t, test.a, test.b, test.build, swap)
			optimized := optimize.Optimize(tree, root, options.New())
			assert.Equal(t, test.want, fused(tree, optimized), name)
			assert.True(t, tree.Type(optimized).Equal(tree.Type(root)), "%s: optimized type %s but want %s", name, tree.Type(optimized), tree.Type(root))

			params := []*value.Spec{
				fill(valuetype.MustParse(test.a), 0),
				fill(valuetype.MustParse(test.b), 3),
			}
			for _, f := range []value.Factory{value.SimpleFactory, value.FastFactory} {
				want := eval(t, f, false, tree, root, params...)
				got := eval(t, f, true, tree, root, params...)
				assert.True(t, got.ApproxEqual(want, 1e-6), "%s (%s): got %s but want %s", name, f, got, want)
			}
		}
	}
}

func TestIdempotent(t *testing.T) {
	for _, test := range optimizeTests {
		tree, root := build(t, test.a, test.b, test.build, false)
		once := optimize.Optimize(tree, root, options.New())
		size := tree.Len()
		twice := optimize.Optimize(tree, once, options.New())
		assert.Equal(t, once, twice, test.name)
		assert.Equal(t, size, tree.Len(), "%s: second optimization added nodes", test.name)
	}
}

func TestDotProductParams(t *testing.T) {
	for _, params := range [][2]int{{1, 3}, {3, 1}} {
		tree := ir.NewTree()
		vec := valuetype.MustParse("tensor(x[5])")
		root := dotProduct(tree, tree.Inject(params[0], vec), tree.Inject(params[1], vec))
		optimized := optimize.Optimize(tree, root, options.New())
		dot, ok := tree.Node(optimized).(*ir.DenseDotProduct)
		require.True(t, ok, "got node %s but want a dense dot product", tree.Node(optimized))
		lhs, ok := tree.Node(dot.Lhs).(*ir.Inject)
		require.True(t, ok)
		rhs, ok := tree.Node(dot.Rhs).(*ir.Inject)
		require.True(t, ok)
		assert.Equal(t, params[0], lhs.Param)
		assert.Equal(t, params[1], rhs.Param)

		fn, err := interp.New(value.SimpleFactory, tree, root)
		require.NoError(t, err)
		vals := make([]value.Value, 4)
		for i := range vals {
			vals[i] = fill(valuetype.MustParse("double"), 0).MustValue(value.SimpleFactory)
		}
		vals[1] = fill(vec, 0).MustValue(value.SimpleFactory)
		vals[3] = fill(vec, 2).MustValue(value.SimpleFactory)
		got, err := fn.Eval(fn.NewContext(), vals...)
		require.NoError(t, err)
		// [2 -2 5 1 -3] . [5 1 -3 4 0]
		assert.Equal(t, -3.0, value.AsDouble(got))
	}
}

func TestBestSimilarityNode(t *testing.T) {
	tree, root := build(t, "tensor<float>(d[8])", "tensor<float>(b[5],d[8])", best(ops.Mul, ops.AggrMax, "d", "b", false), false)
	optimized := optimize.Optimize(tree, root, options.New())
	node, ok := tree.Node(optimized).(*ir.BestSimilarity)
	require.True(t, ok, "got node %s but want a best similarity node", tree.Node(optimized))
	assert.False(t, node.PriIsLHS)
	assert.Equal(t, 8, node.InnerSize)
	assert.False(t, node.SumOuter)
	assert.Equal(t, ops.Mul, node.Op)
	assert.Equal(t, ops.AggrMax, node.Aggr)
}

func TestBestSimilarityDoubleCells(t *testing.T) {
	for _, swap := range []bool{false, true} {
		tree, root := build(t, "tensor(d[8])", "tensor(b[5],d[8])", best(ops.Mul, ops.AggrMax, "d", "b", false), swap)
		optimized := optimize.Optimize(tree, root, options.New())
		assert.NotContains(t, fused(tree, optimized), "*ir.BestSimilarity", "swap=%t", swap)
		outer, ok := tree.Node(optimized).(*ir.Reduce)
		require.True(t, ok, "got node %s but want the generic max reduce", tree.Node(optimized))
		assert.Equal(t, ops.AggrMax, outer.Aggr)
		assert.Equal(t, []string{"b"}, outer.Dims)
	}
}

func TestDisabledPasses(t *testing.T) {
	tree, root := build(t, "tensor<float>(d[8])", "tensor<float>(b[5],d[8])", best(ops.Mul, ops.AggrMax, "d", "b", false), false)
	optimized := optimize.Optimize(tree, root, options.New(options.WithoutPasses("best_similarity")))
	assert.Equal(t, []string{"*ir.DenseXWProduct"}, fused(tree, optimized))
	optimized = optimize.Optimize(tree, root, options.New(options.WithoutPasses("best_similarity", "dense_xw_product")))
	assert.Empty(t, fused(tree, optimized))
	assert.Equal(t, root, optimized)
	optimized = optimize.Optimize(tree, root, options.New(options.WithOptimize(false)))
	assert.Equal(t, root, optimized)
}

func TestPassOrder(t *testing.T) {
	var names []string
	for _, pass := range optimize.Passes {
		names = append(names, pass.Name)
	}
	want := []string{
		"sum_max_dot_product",
		"sum_max_inv_hamming",
		"best_similarity",
		"dense_dot_product",
		"dense_xw_product",
		"dense_simple_expand",
	}
	assert.True(t, slices.Equal(names, want), "got %v but want %v", names, want)
}
