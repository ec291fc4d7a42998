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
	"github.com/gx-org/tensoreval/build/ops"
	"github.com/gx-org/tensoreval/build/valuetype"
	"github.com/gx-org/tensoreval/interp/state"
)

type mergeParam struct {
	out  valuetype.Type
	fn   func(float64, float64) float64
	size int
}

var mergeTable = map[cells3]state.Op{}

func registerMerge[L, R value.Cell]() {
	mergeTable[cells3{ct[L](), ct[R](), valuetype.Double}] = mergeOp[L, R, float64]
	mergeTable[cells3{ct[L](), ct[R](), valuetype.Float}] = mergeOp[L, R, float32]
}

func registerMergeLHS[L value.Cell]() {
	registerMerge[L, float64]()
	registerMerge[L, float32]()
	registerMerge[L, int8]()
	registerMerge[L, bf16]()
}

func init() {
	registerMergeLHS[float64]()
	registerMergeLHS[float32]()
	registerMergeLHS[int8]()
	registerMergeLHS[bf16]()
}

// Merge returns an instruction merging the subspaces of two values with the
// same dimensions. Subspaces present in both values are combined with a
// binary operator.
func Merge(lhs, rhs, out valuetype.Type, op ops.Binary) (state.Instruction, error) {
	body, err := lookup("merge", mergeTable, cells3{lhs.CellType(), rhs.CellType(), out.CellType()})
	if err != nil {
		return state.Instruction{}, err
	}
	return state.NewInstruction(body, &mergeParam{
		out:  out,
		fn:   op.Func(),
		size: out.DenseSubspaceSize(),
	}), nil
}

func mergeOp[L, R value.Cell, O outCell](st *state.State, param any) {
	p := param.(*mergeParam)
	lhs, rhs := st.Peek(1), st.Peek(0)
	lCells, rCells := value.CellsOf[L](lhs), value.CellsOf[R](rhs)
	loadL, loadR := value.Load[L](), value.Load[R]()
	b := value.NewBuilder[O](st.Factory(), st.Stash(), p.out, lhs.Index().Size()+rhs.Index().Size())
	for l, addr := range lhs.Index().All() {
		out := b.AddSubspace(addr)
		lc := lCells[l*p.size : (l+1)*p.size]
		r, ok := rhs.Index().Lookup(addr)
		if !ok {
			for i, x := range lc {
				out[i] = O(loadL(x))
			}
			continue
		}
		rc := rCells[r*p.size : (r+1)*p.size]
		for i := range out {
			out[i] = O(p.fn(loadL(lc[i]), loadR(rc[i])))
		}
	}
	for r, addr := range rhs.Index().All() {
		if _, ok := lhs.Index().Lookup(addr); ok {
			continue
		}
		out := b.AddSubspace(addr)
		for i, x := range rCells[r*p.size : (r+1)*p.size] {
			out[i] = O(loadR(x))
		}
	}
	st.PopPush(2, b.Build())
}
