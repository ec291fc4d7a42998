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

package ir

import (
	"fmt"

	"github.com/gx-org/tensoreval/backend/kernels"
	"github.com/gx-org/tensoreval/backend/value"
	"github.com/gx-org/tensoreval/build/ops"
	"github.com/gx-org/tensoreval/build/valuetype"
	"github.com/gx-org/tensoreval/interp/state"
)

// ----------------------------------------------------------------------------
// Fused nodes.
//
// Fused nodes are created by optimization passes to replace a subtree of
// generic nodes. A fused node computes the same value, with the same type,
// than the subtree it replaces.
type (
	// DenseDotProduct computes the dot product of two dense vectors.
	DenseDotProduct struct {
		Lhs, Rhs NodeID
	}

	// DenseXWProduct multiplies a dense matrix by a dense vector.
	DenseXWProduct struct {
		Lhs, Rhs    NodeID
		VectorIsLHS bool
		VectorSize  int
		ResultSize  int
		// CommonInner is true if the dimension shared with the vector
		// is the innermost dimension of the matrix.
		CommonInner bool
		typ         valuetype.Type
	}

	// DenseSimpleExpand computes the outer product of two dense values.
	DenseSimpleExpand struct {
		Lhs, Rhs NodeID
		Op       ops.Binary
		// InnerIsRHS is true if the dimensions of the right operand are
		// the innermost dimensions of the result.
		InnerIsRHS bool
		typ        valuetype.Type
	}

	// SumMaxDotProduct sums, over all query vectors, the largest dot
	// product with any document vector.
	SumMaxDotProduct struct {
		Lhs, Rhs   NodeID
		QueryIsLHS bool
		Size       int
	}

	// SumMaxInvHamming sums, over all query vectors, 1/(1+d) where d is
	// the smallest hamming distance with any document vector.
	SumMaxInvHamming struct {
		Lhs, Rhs   NodeID
		QueryIsLHS bool
		Size       int
	}

	// BestSimilarity computes, for each vector of a secondary tensor, the
	// best similarity with any vector of a primary tensor.
	BestSimilarity struct {
		Lhs, Rhs  NodeID
		Op        ops.Binary
		Aggr      ops.Aggr
		PriIsLHS  bool
		InnerSize int
		// SumOuter is true if the similarities are summed over the
		// outer dimension of the secondary tensor.
		SumOuter bool
		typ      valuetype.Type
	}
)

// DenseDotProduct adds a node computing the dot product of two vectors.
func (t *Tree) DenseDotProduct(lhs, rhs NodeID) NodeID {
	return t.add(&DenseDotProduct{Lhs: lhs, Rhs: rhs})
}

// DenseXWProduct adds a node multiplying a matrix by a vector.
func (t *Tree) DenseXWProduct(n DenseXWProduct, typ valuetype.Type) NodeID {
	n.typ = typ
	return t.add(&n)
}

// DenseSimpleExpand adds a node computing the outer product of two values.
func (t *Tree) DenseSimpleExpand(n DenseSimpleExpand, typ valuetype.Type) NodeID {
	n.typ = typ
	return t.add(&n)
}

// SumMaxDotProduct adds a node computing a sum of max dot products.
func (t *Tree) SumMaxDotProduct(n SumMaxDotProduct) NodeID {
	return t.add(&n)
}

// SumMaxInvHamming adds a node computing a sum of inverted hamming distances.
func (t *Tree) SumMaxInvHamming(n SumMaxInvHamming) NodeID {
	return t.add(&n)
}

// BestSimilarity adds a node computing best similarities.
func (t *Tree) BestSimilarity(n BestSimilarity, typ valuetype.Type) NodeID {
	n.typ = typ
	return t.add(&n)
}

func operands(t *Tree, lhs, rhs NodeID, firstIsLHS bool) (first, second valuetype.Type) {
	if firstIsLHS {
		return t.Type(lhs), t.Type(rhs)
	}
	return t.Type(rhs), t.Type(lhs)
}

func (*DenseDotProduct) node() {}

// Type of the result.
func (n *DenseDotProduct) Type() valuetype.Type { return valuetype.Scalar() }

// Children of the node.
func (n *DenseDotProduct) Children() []NodeID { return []NodeID{n.Lhs, n.Rhs} }

func (n *DenseDotProduct) withChildren(c []NodeID) Node {
	return &DenseDotProduct{Lhs: c[0], Rhs: c[1]}
}

// CompileSelf returns the instruction computing the dot product.
func (n *DenseDotProduct) CompileSelf(t *Tree, _ value.Factory) (state.Instruction, error) {
	return kernels.DenseDotProduct(t.Type(n.Lhs), t.Type(n.Rhs))
}

func (n *DenseDotProduct) String() string { return "dense_dot_product" }

func (*DenseXWProduct) node() {}

// Type of the result.
func (n *DenseXWProduct) Type() valuetype.Type { return n.typ }

// Children of the node.
func (n *DenseXWProduct) Children() []NodeID { return []NodeID{n.Lhs, n.Rhs} }

func (n *DenseXWProduct) withChildren(c []NodeID) Node {
	cp := *n
	cp.Lhs, cp.Rhs = c[0], c[1]
	return &cp
}

// CompileSelf returns the instruction computing the matrix vector product.
func (n *DenseXWProduct) CompileSelf(t *Tree, _ value.Factory) (state.Instruction, error) {
	vector, matrix := operands(t, n.Lhs, n.Rhs, n.VectorIsLHS)
	return kernels.DenseXWProduct(vector, matrix, n.typ, n.VectorSize, n.ResultSize, n.CommonInner, n.VectorIsLHS)
}

func (n *DenseXWProduct) String() string {
	return fmt.Sprintf("dense_xw_product(vector=%d,result=%d,common_inner=%t)", n.VectorSize, n.ResultSize, n.CommonInner)
}

func (*DenseSimpleExpand) node() {}

// Type of the result.
func (n *DenseSimpleExpand) Type() valuetype.Type { return n.typ }

// Children of the node.
func (n *DenseSimpleExpand) Children() []NodeID { return []NodeID{n.Lhs, n.Rhs} }

func (n *DenseSimpleExpand) withChildren(c []NodeID) Node {
	cp := *n
	cp.Lhs, cp.Rhs = c[0], c[1]
	return &cp
}

// CompileSelf returns the instruction computing the outer product.
func (n *DenseSimpleExpand) CompileSelf(t *Tree, _ value.Factory) (state.Instruction, error) {
	return kernels.DenseSimpleExpand(t.Type(n.Lhs), t.Type(n.Rhs), n.typ, n.Op, n.InnerIsRHS)
}

func (n *DenseSimpleExpand) String() string {
	return fmt.Sprintf("dense_simple_expand(%s,inner_is_rhs=%t)", n.Op, n.InnerIsRHS)
}

func (*SumMaxDotProduct) node() {}

// Type of the result.
func (n *SumMaxDotProduct) Type() valuetype.Type { return valuetype.Scalar() }

// Children of the node.
func (n *SumMaxDotProduct) Children() []NodeID { return []NodeID{n.Lhs, n.Rhs} }

func (n *SumMaxDotProduct) withChildren(c []NodeID) Node {
	cp := *n
	cp.Lhs, cp.Rhs = c[0], c[1]
	return &cp
}

// CompileSelf returns the instruction computing the sum of max dot products.
func (n *SumMaxDotProduct) CompileSelf(t *Tree, _ value.Factory) (state.Instruction, error) {
	query, doc := operands(t, n.Lhs, n.Rhs, n.QueryIsLHS)
	return kernels.SumMaxDotProduct(query, doc, n.Size, n.QueryIsLHS)
}

func (n *SumMaxDotProduct) String() string {
	return fmt.Sprintf("sum_max_dot_product(size=%d,query_is_lhs=%t)", n.Size, n.QueryIsLHS)
}

func (*SumMaxInvHamming) node() {}

// Type of the result.
func (n *SumMaxInvHamming) Type() valuetype.Type { return valuetype.Scalar() }

// Children of the node.
func (n *SumMaxInvHamming) Children() []NodeID { return []NodeID{n.Lhs, n.Rhs} }

func (n *SumMaxInvHamming) withChildren(c []NodeID) Node {
	cp := *n
	cp.Lhs, cp.Rhs = c[0], c[1]
	return &cp
}

// CompileSelf returns the instruction computing the sum of inverted hamming distances.
func (n *SumMaxInvHamming) CompileSelf(t *Tree, _ value.Factory) (state.Instruction, error) {
	query, doc := operands(t, n.Lhs, n.Rhs, n.QueryIsLHS)
	return kernels.SumMaxInvHamming(query, doc, n.Size, n.QueryIsLHS)
}

func (n *SumMaxInvHamming) String() string {
	return fmt.Sprintf("sum_max_inv_hamming(size=%d,query_is_lhs=%t)", n.Size, n.QueryIsLHS)
}

func (*BestSimilarity) node() {}

// Type of the result.
func (n *BestSimilarity) Type() valuetype.Type { return n.typ }

// Children of the node.
func (n *BestSimilarity) Children() []NodeID { return []NodeID{n.Lhs, n.Rhs} }

func (n *BestSimilarity) withChildren(c []NodeID) Node {
	cp := *n
	cp.Lhs, cp.Rhs = c[0], c[1]
	return &cp
}

// CompileSelf returns the instruction computing the best similarities.
func (n *BestSimilarity) CompileSelf(t *Tree, _ value.Factory) (state.Instruction, error) {
	pri, sec := operands(t, n.Lhs, n.Rhs, n.PriIsLHS)
	return kernels.BestSimilarity(pri, sec, n.typ, n.Op, n.Aggr, n.InnerSize, n.PriIsLHS, n.SumOuter)
}

func (n *BestSimilarity) String() string {
	return fmt.Sprintf("best_similarity(%s,%s,inner=%d,sum_outer=%t)", n.Op, n.Aggr, n.InnerSize, n.SumOuter)
}
