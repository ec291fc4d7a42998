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
)

// denseDotProduct matches reduce(join(a, b, mul), sum) where a and b are
// dense vectors with the same dimension.
func denseDotProduct(t *ir.Tree, id ir.NodeID) (ir.NodeID, bool) {
	r, ok := reduceOf(t, id, ops.Sum)
	if !ok || !t.Type(id).IsScalar() {
		return id, false
	}
	j, ok := joinOf(t, r.Child, ops.Mul)
	if !ok {
		return id, false
	}
	lhs, rhs := t.Type(j.Lhs), t.Type(j.Rhs)
	if !lhs.IsDense() || !rhs.IsDense() {
		return id, false
	}
	lhsDim, lhsOK := single(lhs)
	rhsDim, rhsOK := single(rhs)
	if !lhsOK || !rhsOK || lhsDim != rhsDim {
		return id, false
	}
	return t.DenseDotProduct(j.Lhs, j.Rhs), true
}

// denseXWProduct matches reduce(join(x, w, mul), sum, common) where x is a
// dense vector and w a dense matrix. The dimension of the vector is common
// to both operands and is the only dimension reduced.
func denseXWProduct(t *ir.Tree, id ir.NodeID) (ir.NodeID, bool) {
	r, ok := reduceOf(t, id, ops.Sum)
	if !ok || !t.Type(id).IsDense() {
		return id, false
	}
	j, ok := joinOf(t, r.Child, ops.Mul)
	if !ok || !t.Type(j.Lhs).IsDense() || !t.Type(j.Rhs).IsDense() {
		return id, false
	}
	if fused, ok := matchXW(t, id, j, true); ok {
		return fused, true
	}
	return matchXW(t, id, j, false)
}

func matchXW(t *ir.Tree, id ir.NodeID, j *ir.Join, vectorIsLHS bool) (ir.NodeID, bool) {
	vector, matrix := t.Type(j.Lhs), t.Type(j.Rhs)
	if !vectorIsLHS {
		vector, matrix = matrix, vector
	}
	common, ok := single(vector)
	if !ok {
		return id, false
	}
	matrixDims := nontrivial(matrix)
	if len(matrixDims) != 2 {
		return id, false
	}
	if dim, ok := reducedOne(t, id); !ok || dim != common {
		return id, false
	}
	result, commonInner := matrixDims[0], true
	switch common {
	case matrixDims[1]:
	case matrixDims[0]:
		result, commonInner = matrixDims[1], false
	default:
		return id, false
	}
	if dim, ok := single(t.Type(id)); !ok || dim != result {
		return id, false
	}
	return t.DenseXWProduct(ir.DenseXWProduct{
		Lhs:         j.Lhs,
		Rhs:         j.Rhs,
		VectorIsLHS: vectorIsLHS,
		VectorSize:  common.Size,
		ResultSize:  result.Size,
		CommonInner: commonInner,
	}, t.Type(id)), true
}

// denseSimpleExpand matches join(a, b, op) where a and b are dense and the
// dimensions of one operand all come after the dimensions of the other.
// The result is then a sequence of blocks, one per cell of the outer
// operand, each combining the cell with all the cells of the inner operand.
func denseSimpleExpand(t *ir.Tree, id ir.NodeID) (ir.NodeID, bool) {
	j, ok := t.Node(id).(*ir.Join)
	if !ok || !t.Type(id).IsDense() {
		return id, false
	}
	lhs, rhs := t.Type(j.Lhs), t.Type(j.Rhs)
	if !lhs.IsDense() || !rhs.IsDense() {
		return id, false
	}
	lhsDims, rhsDims := nontrivial(lhs), nontrivial(rhs)
	if len(lhsDims) == 0 || len(rhsDims) == 0 {
		return id, false
	}
	var innerIsRHS bool
	switch {
	case lhsDims[len(lhsDims)-1].Name < rhsDims[0].Name:
		innerIsRHS = true
	case rhsDims[len(rhsDims)-1].Name < lhsDims[0].Name:
		innerIsRHS = false
	default:
		return id, false
	}
	return t.DenseSimpleExpand(ir.DenseSimpleExpand{
		Lhs:        j.Lhs,
		Rhs:        j.Rhs,
		Op:         j.Op,
		InnerIsRHS: innerIsRHS,
	}, t.Type(id)), true
}
