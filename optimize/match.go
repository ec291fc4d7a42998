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
	"github.com/gx-org/tensoreval/backend/value"
	"github.com/gx-org/tensoreval/build/ir"
	"github.com/gx-org/tensoreval/build/ops"
	"github.com/gx-org/tensoreval/build/valuetype"
)

// nontrivial returns the dimensions of a type excluding indexed dimensions of size 1.
func nontrivial(typ valuetype.Type) []valuetype.Dimension {
	var dims []valuetype.Dimension
	for _, dim := range typ.Dims() {
		if !dim.IsTrivial() {
			dims = append(dims, dim)
		}
	}
	return dims
}

// single returns the only nontrivial dimension of a type.
func single(typ valuetype.Type) (valuetype.Dimension, bool) {
	dims := nontrivial(typ)
	if len(dims) != 1 {
		return valuetype.Dimension{}, false
	}
	return dims[0], true
}

// hasDims returns true if the nontrivial dimensions of a type are exactly
// the dimensions passed as arguments, in any order.
func hasDims(typ valuetype.Type, want ...valuetype.Dimension) bool {
	got := nontrivial(typ)
	if len(got) != len(want) {
		return false
	}
	for _, dim := range want {
		if d, ok := typ.Dim(dim.Name); !ok || d != dim {
			return false
		}
	}
	return true
}

// reduceOf returns the node as a reduce node if it uses a given aggregator.
func reduceOf(t *ir.Tree, id ir.NodeID, aggr ops.Aggr) (*ir.Reduce, bool) {
	r, ok := t.Node(id).(*ir.Reduce)
	if !ok || r.Aggr != aggr || t.Type(id).IsError() {
		return nil, false
	}
	return r, true
}

// joinOf returns the node as a join node if it uses a given operator.
func joinOf(t *ir.Tree, id ir.NodeID, op ops.Binary) (*ir.Join, bool) {
	j, ok := t.Node(id).(*ir.Join)
	if !ok || j.Op != op || t.Type(id).IsError() {
		return nil, false
	}
	return j, true
}

// reduced returns the nontrivial dimensions removed by a reduce node.
// Reducing all dimensions and reducing dimensions by name are not
// distinguished.
func reduced(t *ir.Tree, id ir.NodeID) []valuetype.Dimension {
	r := t.Node(id).(*ir.Reduce)
	out := t.Type(id)
	var dims []valuetype.Dimension
	for _, dim := range nontrivial(t.Type(r.Child)) {
		if out.DimIndex(dim.Name) < 0 {
			dims = append(dims, dim)
		}
	}
	return dims
}

// reducedOne returns the only nontrivial dimension removed by a reduce node.
func reducedOne(t *ir.Tree, id ir.NodeID) (valuetype.Dimension, bool) {
	dims := reduced(t, id)
	if len(dims) != 1 {
		return valuetype.Dimension{}, false
	}
	return dims[0], true
}

func isOne(t *ir.Tree, id ir.NodeID) bool {
	c, ok := t.Node(id).(*ir.Const)
	return ok && c.Value.Type().IsScalar() && value.AsDouble(c.Value) == 1
}

func hasCells(cell valuetype.CellType, types ...valuetype.Type) bool {
	for _, typ := range types {
		if typ.CellType() != cell {
			return false
		}
	}
	return true
}
