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

package optimize

import (
	"github.com/gx-org/tensoreval/build/ir"
	"github.com/gx-org/tensoreval/build/ops"
	"github.com/gx-org/tensoreval/build/valuetype"
)

// sumMax matches reduce(reduce(x, max, best), sum, query) computing a scalar
// where best and query are distinct mapped dimensions.
func sumMax(t *ir.Tree, id ir.NodeID) (x ir.NodeID, query, best valuetype.Dimension, ok bool) {
	outer, ok := reduceOf(t, id, ops.Sum)
	if !ok || !t.Type(id).IsScalar() {
		return
	}
	if query, ok = reducedOne(t, id); !ok || !query.IsMapped() {
		return x, query, best, false
	}
	mid, ok := reduceOf(t, outer.Child, ops.AggrMax)
	if !ok {
		return
	}
	if best, ok = reducedOne(t, outer.Child); !ok || !best.IsMapped() || best == query {
		return x, query, best, false
	}
	return mid.Child, query, best, true
}

type sumMaxMatch struct {
	lhs, rhs   ir.NodeID
	queryIsLHS bool
	size       int
}

// sumMaxInner matches reduce(join(a, b, op), sum, inner) where inner is
// the only indexed dimension of both operands. One operand has the query
// dimension and the other the best dimension.
func sumMaxInner(t *ir.Tree, id ir.NodeID, op ops.Binary, cell valuetype.CellType, query, best valuetype.Dimension) (sumMaxMatch, bool) {
	inner, ok := reduceOf(t, id, ops.Sum)
	if !ok {
		return sumMaxMatch{}, false
	}
	dim, ok := reducedOne(t, id)
	if !ok || !dim.IsIndexed() {
		return sumMaxMatch{}, false
	}
	j, ok := joinOf(t, inner.Child, op)
	if !ok {
		return sumMaxMatch{}, false
	}
	lhs, rhs := t.Type(j.Lhs), t.Type(j.Rhs)
	if !hasCells(cell, lhs, rhs) {
		return sumMaxMatch{}, false
	}
	m := sumMaxMatch{lhs: j.Lhs, rhs: j.Rhs, size: dim.Size}
	switch {
	case hasDims(lhs, query, dim) && hasDims(rhs, best, dim):
		m.queryIsLHS = true
	case hasDims(rhs, query, dim) && hasDims(lhs, best, dim):
		m.queryIsLHS = false
	default:
		return sumMaxMatch{}, false
	}
	return m, true
}

// sumMaxDotProduct matches
//
//	reduce(reduce(reduce(join(q, d, mul), sum, inner), max, best), sum, query)
//
// with float cells.
func sumMaxDotProduct(t *ir.Tree, id ir.NodeID) (ir.NodeID, bool) {
	x, query, best, ok := sumMax(t, id)
	if !ok {
		return id, false
	}
	m, ok := sumMaxInner(t, x, ops.Mul, valuetype.Float, query, best)
	if !ok {
		return id, false
	}
	return t.SumMaxDotProduct(ir.SumMaxDotProduct{
		Lhs:        m.lhs,
		Rhs:        m.rhs,
		QueryIsLHS: m.queryIsLHS,
		Size:       m.size,
	}), true
}

// invertedOnePlus matches 1/(1+x) and 1/(x+1), returning x.
// Other equivalent expressions are not recognized.
func invertedOnePlus(t *ir.Tree, id ir.NodeID) (ir.NodeID, bool) {
	div, ok := joinOf(t, id, ops.Div)
	if !ok || !isOne(t, div.Lhs) {
		return id, false
	}
	add, ok := joinOf(t, div.Rhs, ops.Add)
	if !ok {
		return id, false
	}
	switch {
	case isOne(t, add.Lhs):
		return add.Rhs, true
	case isOne(t, add.Rhs):
		return add.Lhs, true
	}
	return id, false
}

// sumMaxInvHamming matches
//
//	reduce(reduce(1/(1+reduce(join(q, d, hamming), sum, inner)), max, best), sum, query)
//
// with int8 cells.
func sumMaxInvHamming(t *ir.Tree, id ir.NodeID) (ir.NodeID, bool) {
	x, query, best, ok := sumMax(t, id)
	if !ok {
		return id, false
	}
	distance, ok := invertedOnePlus(t, x)
	if !ok {
		return id, false
	}
	m, ok := sumMaxInner(t, distance, ops.Hamming, valuetype.Int8, query, best)
	if !ok {
		return id, false
	}
	return t.SumMaxInvHamming(ir.SumMaxInvHamming{
		Lhs:        m.lhs,
		Rhs:        m.rhs,
		QueryIsLHS: m.queryIsLHS,
		Size:       m.size,
	}), true
}

// similarities lists the supported combinations of similarity and
// aggregator selecting the best similarity.
var similarities = map[ops.Aggr]struct {
	op   ops.Binary
	cell valuetype.CellType
}{
	ops.AggrMax: {op: ops.Mul, cell: valuetype.Float},
	ops.AggrMin: {op: ops.Hamming, cell: valuetype.Int8},
}

// bestSimilarity matches
//
//	reduce(reduce(join(pri, sec, op), sum, inner), aggr, best)
//
// where the primary operand has the best and inner dimensions, and the
// secondary operand has the inner dimension and optionally an outer mapped
// dimension. It also folds a sum over the outer dimension into a previously
// matched node.
func bestSimilarity(t *ir.Tree, id ir.NodeID) (ir.NodeID, bool) {
	r, ok := t.Node(id).(*ir.Reduce)
	if !ok || t.Type(id).IsError() {
		return id, false
	}
	if folded, ok := foldSumOuter(t, id, r); ok {
		return folded, true
	}
	sim, ok := similarities[r.Aggr]
	if !ok {
		return id, false
	}
	best, ok := reducedOne(t, id)
	if !ok {
		return id, false
	}
	inner, ok := reduceOf(t, r.Child, ops.Sum)
	if !ok {
		return id, false
	}
	innerDim, ok := reducedOne(t, r.Child)
	if !ok || !innerDim.IsIndexed() {
		return id, false
	}
	j, ok := joinOf(t, inner.Child, sim.op)
	if !ok || !hasCells(sim.cell, t.Type(j.Lhs), t.Type(j.Rhs)) {
		return id, false
	}
	for _, priIsLHS := range []bool{true, false} {
		pri, sec := t.Type(j.Lhs), t.Type(j.Rhs)
		if !priIsLHS {
			pri, sec = sec, pri
		}
		if !isPrimary(pri, best, innerDim) || !isSecondary(sec, best, innerDim) {
			continue
		}
		return t.BestSimilarity(ir.BestSimilarity{
			Lhs:       j.Lhs,
			Rhs:       j.Rhs,
			Op:        sim.op,
			Aggr:      r.Aggr,
			PriIsLHS:  priIsLHS,
			InnerSize: innerDim.Size,
		}, t.Type(id)), true
	}
	return id, false
}

// isPrimary returns true if the inner dimension is the innermost dimension
// of a type with only the best and inner dimensions.
func isPrimary(pri valuetype.Type, best, inner valuetype.Dimension) bool {
	if !hasDims(pri, best, inner) {
		return false
	}
	return best.IsMapped() || best.Name < inner.Name
}

// isSecondary returns true if a type has the inner dimension and at most
// one other dimension, which must be mapped.
func isSecondary(sec valuetype.Type, best, inner valuetype.Dimension) bool {
	if hasDims(sec, inner) {
		return true
	}
	for _, dim := range nontrivial(sec) {
		if dim == inner {
			continue
		}
		return dim.IsMapped() && dim.Name != best.Name && hasDims(sec, dim, inner)
	}
	return false
}

// foldSumOuter matches reduce(best_similarity, sum) computing a scalar.
func foldSumOuter(t *ir.Tree, id ir.NodeID, r *ir.Reduce) (ir.NodeID, bool) {
	if r.Aggr != ops.Sum || !t.Type(id).IsScalar() {
		return id, false
	}
	b, ok := t.Node(r.Child).(*ir.BestSimilarity)
	if !ok || b.SumOuter {
		return id, false
	}
	folded := *b
	folded.SumOuter = true
	return t.BestSimilarity(folded, t.Type(id)), true
}
