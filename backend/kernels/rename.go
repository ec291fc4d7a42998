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
	"github.com/gx-org/tensoreval/build/valuetype"
	"github.com/gx-org/tensoreval/interp/state"
)

type renameParam struct {
	out valuetype.Type
	// mapped lists, for each mapped dimension of the result,
	// the position of the dimension in the input.
	mapped       []int
	keepIndex    bool
	inOffsets    []int
	keepCells    bool
	subspaceSize int
}

var renameTable = map[cells1]state.Op{
	{valuetype.Double}:   renameOp[float64],
	{valuetype.Float}:    renameOp[float32],
	{valuetype.Int8}:     renameOp[int8],
	{valuetype.BFloat16}: renameOp[bf16],
}

// Rename returns an instruction renaming dimensions of the value at the top
// of the stack.
func Rename(in, out valuetype.Type, from, to []string) (state.Instruction, error) {
	body, err := lookup("rename", renameTable, cells1{in.CellType()})
	if err != nil {
		return state.Instruction{}, err
	}
	toFrom := make(map[string]string, len(from))
	for i, name := range from {
		toFrom[to[i]] = name
	}
	original := func(name string) string {
		if from, ok := toFrom[name]; ok {
			return from
		}
		return name
	}
	p := &renameParam{
		out:          out,
		keepIndex:    true,
		inOffsets:    denseMap(out.IndexedDims(), in.IndexedDims(), toFrom),
		subspaceSize: out.DenseSubspaceSize(),
	}
	inMapped := in.MappedDims()
	for i, dim := range out.MappedDims() {
		pos := dimIndex(inMapped, original(dim.Name))
		p.mapped = append(p.mapped, pos)
		p.keepIndex = p.keepIndex && pos == i
	}
	p.keepCells = p.keepIndex && isIdentity(p.inOffsets)
	return state.NewInstruction(body, p), nil
}

func renameOp[T value.Cell](st *state.State, param any) {
	p := param.(*renameParam)
	in := st.Peek(0)
	cells := value.CellsOf[T](in)
	if p.keepCells {
		st.PopPush(1, value.Reuse(p.out, in, cells))
		return
	}
	if p.keepIndex {
		out := stash.Alloc[T](st.Stash(), len(cells))
		for s := range in.Index().Size() {
			src := cells[s*p.subspaceSize : (s+1)*p.subspaceSize]
			dst := out[s*p.subspaceSize : (s+1)*p.subspaceSize]
			for i, o := range p.inOffsets {
				dst[i] = src[o]
			}
		}
		st.PopPush(1, value.Reuse(p.out, in, out))
		return
	}
	b := value.NewBuilder[T](st.Factory(), st.Stash(), p.out, in.Index().Size())
	addr := make([]string, len(p.mapped))
	for s, inAddr := range in.Index().All() {
		for i, pos := range p.mapped {
			addr[i] = inAddr[pos]
		}
		src := cells[s*p.subspaceSize : (s+1)*p.subspaceSize]
		dst := b.AddSubspace(addr)
		for i, o := range p.inOffsets {
			dst[i] = src[o]
		}
	}
	st.PopPush(1, b.Build())
}
