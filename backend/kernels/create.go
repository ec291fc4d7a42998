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
	"github.com/pkg/errors"
)

type createParam struct {
	out     valuetype.Type
	labels  [][]string
	offsets []int
}

var createTable = map[cells1]state.Op{
	{valuetype.Double}:   createOp[float64],
	{valuetype.Float}:    createOp[float32],
	{valuetype.Int8}:     createOp[int8],
	{valuetype.BFloat16}: createOp[bf16],
}

// Create returns an instruction building a value from scalars. The scalars
// are on the stack in the same order as their addresses.
func Create(out valuetype.Type, addrs []value.Address) (state.Instruction, error) {
	body, err := lookup("create", createTable, cells1{out.CellType()})
	if err != nil {
		return state.Instruction{}, err
	}
	p := &createParam{out: out}
	mapped, indexed := out.MappedDims(), out.IndexedDims()
	for _, addr := range addrs {
		labels := make([]string, len(mapped))
		for i, dim := range mapped {
			labels[i] = addr[dim.Name].Name
		}
		offset := 0
		for _, dim := range indexed {
			index := addr[dim.Name].Index
			if index < 0 || index >= dim.Size {
				return state.Instruction{}, errors.Errorf("index %d out of range for dimension %s", index, dim.String())
			}
			offset = offset*dim.Size + index
		}
		p.labels = append(p.labels, labels)
		p.offsets = append(p.offsets, offset)
	}
	return state.NewInstruction(body, p), nil
}

func createOp[T value.Cell](st *state.State, param any) {
	p := param.(*createParam)
	store := value.Store[T]()
	n := len(p.labels)
	b := value.NewBuilder[T](st.Factory(), st.Stash(), p.out, n)
	for i, labels := range p.labels {
		b.AddSubspace(labels)[p.offsets[i]] = store(value.AsDouble(st.Peek(n - 1 - i)))
	}
	st.PopPush(n, b.Build())
}
