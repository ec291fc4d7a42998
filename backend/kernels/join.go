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

type joinParam struct {
	out        valuetype.Type
	fn         func(float64, float64) float64
	sparse     *sparsePlan
	lhsSize    int
	rhsSize    int
	lhsOffsets []int
	rhsOffsets []int
}

var joinTable = map[cells3]state.Op{}

func registerJoin[L, R value.Cell]() {
	joinTable[cells3{ct[L](), ct[R](), valuetype.Double}] = joinOp[L, R, float64]
	joinTable[cells3{ct[L](), ct[R](), valuetype.Float}] = joinOp[L, R, float32]
}

func registerJoinLHS[L value.Cell]() {
	registerJoin[L, float64]()
	registerJoin[L, float32]()
	registerJoin[L, int8]()
	registerJoin[L, bf16]()
}

func init() {
	registerJoinLHS[float64]()
	registerJoinLHS[float32]()
	registerJoinLHS[int8]()
	registerJoinLHS[bf16]()
}

// Join returns an instruction combining the two values at the top of the
// stack with a binary operator.
func Join(lhs, rhs, out valuetype.Type, op ops.Binary) (state.Instruction, error) {
	body, err := lookup("join", joinTable, cells3{lhs.CellType(), rhs.CellType(), out.CellType()})
	if err != nil {
		return state.Instruction{}, err
	}
	outDense := out.IndexedDims()
	return state.NewInstruction(body, &joinParam{
		out:        out,
		fn:         op.Func(),
		sparse:     newSparsePlan(lhs, rhs, out),
		lhsSize:    lhs.DenseSubspaceSize(),
		rhsSize:    rhs.DenseSubspaceSize(),
		lhsOffsets: denseMap(outDense, lhs.IndexedDims(), nil),
		rhsOffsets: denseMap(outDense, rhs.IndexedDims(), nil),
	}), nil
}

func joinOp[L, R value.Cell, O outCell](st *state.State, param any) {
	p := param.(*joinParam)
	lhs, rhs := st.Peek(1), st.Peek(0)
	lCells, rCells := value.CellsOf[L](lhs), value.CellsOf[R](rhs)
	loadL, loadR := value.Load[L](), value.Load[R]()
	b := value.NewBuilder[O](st.Factory(), st.Stash(), p.out, max(lhs.Index().Size(), rhs.Index().Size()))
	p.sparse.each(lhs.Index(), rhs.Index(), func(l, r int, addr []string) {
		out := b.AddSubspace(addr)
		lc := lCells[l*p.lhsSize : (l+1)*p.lhsSize]
		rc := rCells[r*p.rhsSize : (r+1)*p.rhsSize]
		for i := range out {
			out[i] = O(p.fn(loadL(lc[p.lhsOffsets[i]]), loadR(rc[p.rhsOffsets[i]])))
		}
	})
	st.PopPush(2, b.Build())
}
