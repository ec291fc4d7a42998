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
	"github.com/gx-org/tensoreval/base/stash"
	"github.com/gx-org/tensoreval/build/ops"
	"github.com/gx-org/tensoreval/build/valuetype"
	"github.com/gx-org/tensoreval/interp/state"
)

type mapParam struct {
	out valuetype.Type
	fn  func(float64) float64
}

var (
	mapTable  = map[cells2]state.Op{}
	castTable = map[cells2]state.Op{}
)

func registerCast[I value.Cell]() {
	castTable[cells2{ct[I](), valuetype.Double}] = castOp[I, float64]
	castTable[cells2{ct[I](), valuetype.Float}] = castOp[I, float32]
	castTable[cells2{ct[I](), valuetype.Int8}] = castOp[I, int8]
	castTable[cells2{ct[I](), valuetype.BFloat16}] = castOp[I, bf16]
}

func registerMap[I value.Cell]() {
	mapTable[cells2{ct[I](), valuetype.Double}] = mapOp[I, float64]
	mapTable[cells2{ct[I](), valuetype.Float}] = mapOp[I, float32]
	registerCast[I]()
}

func init() {
	registerMap[float64]()
	registerMap[float32]()
	registerMap[int8]()
	registerMap[bf16]()
}

// Map returns an instruction applying a function to all the cells of the
// value at the top of the stack.
func Map(in, out valuetype.Type, op ops.Unary) (state.Instruction, error) {
	body, err := lookup("map", mapTable, cells2{in.CellType(), out.CellType()})
	if err != nil {
		return state.Instruction{}, err
	}
	return state.NewInstruction(body, &mapParam{out: out, fn: op.Func()}), nil
}

func mapOp[I value.Cell, O outCell](st *state.State, param any) {
	p := param.(*mapParam)
	in := st.Peek(0)
	load := value.Load[I]()
	cells := value.CellsOf[I](in)
	out := stash.Alloc[O](st.Stash(), len(cells))
	for i, x := range cells {
		out[i] = O(p.fn(load(x)))
	}
	st.PopPush(1, value.Reuse(p.out, in, out))
}

// CellCast returns an instruction converting the cells of the value at the
// top of the stack.
func CellCast(in, out valuetype.Type) (state.Instruction, error) {
	body, err := lookup("cell cast", castTable, cells2{in.CellType(), out.CellType()})
	if err != nil {
		return state.Instruction{}, err
	}
	return state.NewInstruction(body, out), nil
}

func castOp[I, O value.Cell](st *state.State, param any) {
	out := param.(valuetype.Type)
	in := st.Peek(0)
	cells := value.CellsOf[I](in)
	if same, ok := any(cells).([]O); ok {
		st.PopPush(1, value.Reuse(out, in, same))
		return
	}
	load, store := value.Load[I](), value.Store[O]()
	cast := stash.Alloc[O](st.Stash(), len(cells))
	for i, x := range cells {
		cast[i] = store(load(x))
	}
	st.PopPush(1, value.Reuse(out, in, cast))
}
