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

package kernels

import (
	"github.com/gx-org/tensoreval/backend/value"
	"github.com/gx-org/tensoreval/build/valuetype"
	"github.com/gx-org/tensoreval/interp/state"
)

type concatParam struct {
	out     valuetype.Type
	sparse  *sparsePlan
	lhsSize int
	rhsSize int
	// sources of each cell of the result: i >= 0 is the i-th cell of the
	// lhs subspace, ^i the i-th cell of the rhs subspace.
	sources []int
}

var concatTable = map[cells3]state.Op{}

func registerConcat[L, R value.Cell]() {
	concatTable[cells3{ct[L](), ct[R](), valuetype.Double}] = concatOp[L, R, float64]
	concatTable[cells3{ct[L](), ct[R](), valuetype.Float}] = concatOp[L, R, float32]
	concatTable[cells3{ct[L](), ct[R](), valuetype.Int8}] = concatOp[L, R, int8]
	concatTable[cells3{ct[L](), ct[R](), valuetype.BFloat16}] = concatOp[L, R, bf16]
}

func registerConcatLHS[L value.Cell]() {
	registerConcat[L, float64]()
	registerConcat[L, float32]()
	registerConcat[L, int8]()
	registerConcat[L, bf16]()
}

func init() {
	registerConcatLHS[float64]()
	registerConcatLHS[float32]()
	registerConcatLHS[int8]()
	registerConcatLHS[bf16]()
}

func concatOffset(outDims, dims []valuetype.Dimension, coord []int, concatPos, concatCoord int) int {
	st := strides(dims)
	var offset int
	for i, dim := range outDims {
		j := dimIndex(dims, dim.Name)
		if j < 0 {
			continue
		}
		c := coord[i]
		if i == concatPos {
			c = concatCoord
		}
		offset += c * st[j]
	}
	return offset
}

// Concat returns an instruction concatenating two values along a dimension.
func Concat(lhs, rhs, out valuetype.Type, dim string) (state.Instruction, error) {
	body, err := lookup("concat", concatTable, cells3{lhs.CellType(), rhs.CellType(), out.CellType()})
	if err != nil {
		return state.Instruction{}, err
	}
	lhsDims, rhsDims, outDims := lhs.IndexedDims(), rhs.IndexedDims(), out.IndexedDims()
	lhsConcatSize := 1
	if d, ok := lhs.Dim(dim); ok {
		lhsConcatSize = d.Size
	}
	concatPos := dimIndex(outDims, dim)
	p := &concatParam{
		out:     out,
		sparse:  newSparsePlan(lhs, rhs, out),
		lhsSize: lhs.DenseSubspaceSize(),
		rhsSize: rhs.DenseSubspaceSize(),
		sources: make([]int, out.DenseSubspaceSize()),
	}
	forEachCoord(outDims, func(offset int, coord []int) {
		c := coord[concatPos]
		if c < lhsConcatSize {
			p.sources[offset] = concatOffset(outDims, lhsDims, coord, concatPos, c)
		} else {
			p.sources[offset] = ^concatOffset(outDims, rhsDims, coord, concatPos, c-lhsConcatSize)
		}
	})
	return state.NewInstruction(body, p), nil
}

func concatOp[L, R, O value.Cell](st *state.State, param any) {
	p := param.(*concatParam)
	lhs, rhs := st.Peek(1), st.Peek(0)
	lCells, rCells := value.CellsOf[L](lhs), value.CellsOf[R](rhs)
	loadL, loadR, store := value.Load[L](), value.Load[R](), value.Store[O]()
	b := value.NewBuilder[O](st.Factory(), st.Stash(), p.out, max(lhs.Index().Size(), rhs.Index().Size()))
	p.sparse.each(lhs.Index(), rhs.Index(), func(l, r int, addr []string) {
		out := b.AddSubspace(addr)
		lc := lCells[l*p.lhsSize : (l+1)*p.lhsSize]
		rc := rCells[r*p.rhsSize : (r+1)*p.rhsSize]
		for i, src := range p.sources {
			if src >= 0 {
				out[i] = store(loadL(lc[src]))
			} else {
				out[i] = store(loadR(rc[^src]))
			}
		}
	})
	st.PopPush(2, b.Build())
}
