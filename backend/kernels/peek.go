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
	"math"
	"strconv"

	"github.com/gx-org/tensoreval/backend/value"
	"github.com/gx-org/tensoreval/build/valuetype"
	"github.com/gx-org/tensoreval/interp/state"
)

type (
	// PeekDim selects a single label or index along a dimension.
	PeekDim struct {
		// Name of the dimension.
		Name string
		// Label selected on a mapped dimension.
		Label string
		// Index selected on an indexed dimension.
		Index int
		// Child is the position of the child expression computing the
		// label or index, or -1 if the label or index is fixed.
		Child int
	}

	peekMapped struct {
		pos   int // position in the input mapped dimensions
		label string
		child int
	}

	peekIndexed struct {
		stride int
		size   int
		index  int
		child  int
	}

	peekParam struct {
		out         valuetype.Type
		scalar      bool
		numChildren int
		mapped      []peekMapped
		indexed     []peekIndexed
		// keep lists the positions of the mapped dimensions of the input
		// kept in the result.
		keep      []int
		inSize    int
		inOffsets []int
	}
)

var peekTable = map[cells1]state.Op{
	{valuetype.Double}:   peekOp[float64],
	{valuetype.Float}:    peekOp[float32],
	{valuetype.Int8}:     peekOp[int8],
	{valuetype.BFloat16}: peekOp[bf16],
}

// Peek returns an instruction selecting a sub-tensor of a value.
// The value is below the values computed by the children on the stack.
func Peek(in, out valuetype.Type, dims []PeekDim, numChildren int) (state.Instruction, error) {
	body, err := lookup("peek", peekTable, cells1{in.CellType()})
	if err != nil {
		return state.Instruction{}, err
	}
	p := &peekParam{
		out:         out,
		scalar:      out.IsScalar(),
		numChildren: numChildren,
		inSize:      in.DenseSubspaceSize(),
	}
	inMapped, inIndexed := in.MappedDims(), in.IndexedDims()
	inStrides := strides(inIndexed)
	peeked := make(map[string]bool, len(dims))
	for _, dim := range dims {
		peeked[dim.Name] = true
		if pos := dimIndex(inMapped, dim.Name); pos >= 0 {
			p.mapped = append(p.mapped, peekMapped{pos: pos, label: dim.Label, child: dim.Child})
			continue
		}
		pos := dimIndex(inIndexed, dim.Name)
		p.indexed = append(p.indexed, peekIndexed{
			stride: inStrides[pos],
			size:   inIndexed[pos].Size,
			index:  dim.Index,
			child:  dim.Child,
		})
	}
	for i, dim := range inMapped {
		if !peeked[dim.Name] {
			p.keep = append(p.keep, i)
		}
	}
	p.inOffsets = denseMap(out.IndexedDims(), inIndexed, nil)
	return state.NewInstruction(body, p), nil
}

// childLabel converts the value computed by a child into a label.
func childLabel(x float64) string {
	return strconv.FormatInt(int64(x), 10)
}

func childIndex(x float64) int {
	if math.IsNaN(x) || x < math.MinInt32 || x > math.MaxInt32 {
		return -1
	}
	return int(x)
}

func peekOp[T value.Cell](st *state.State, param any) {
	p := param.(*peekParam)
	child := func(i int) float64 {
		return value.AsDouble(st.Peek(p.numChildren - 1 - i))
	}
	in := st.Peek(p.numChildren)
	cells := value.CellsOf[T](in)
	base, inRange := 0, true
	for _, dim := range p.indexed {
		index := dim.index
		if dim.child >= 0 {
			index = childIndex(child(dim.child))
		}
		if index < 0 || index >= dim.size {
			inRange = false
			break
		}
		base += index * dim.stride
	}
	if !inRange && p.scalar {
		st.PopPush(p.numChildren+1, value.Scalar(0))
		return
	}
	b := value.NewBuilder[T](st.Factory(), st.Stash(), p.out, 1)
	if !inRange {
		st.PopPush(p.numChildren+1, b.Build())
		return
	}
	labels := make([]string, len(p.mapped))
	for i, dim := range p.mapped {
		labels[i] = dim.label
		if dim.child >= 0 {
			labels[i] = childLabel(child(dim.child))
		}
	}
	if len(p.keep) == 0 {
		full := make([]string, len(p.mapped))
		for i, dim := range p.mapped {
			full[dim.pos] = labels[i]
		}
		s, ok := in.Index().Lookup(full)
		if p.scalar {
			// Scalars always have double cells.
			var x float64
			if ok {
				x = value.Load[T]()(cells[s*p.inSize+base])
			}
			st.PopPush(p.numChildren+1, value.Scalar(x))
			return
		}
		if ok {
			src := cells[s*p.inSize+base:]
			out := b.AddSubspace(nil)
			for i, o := range p.inOffsets {
				out[i] = src[o]
			}
		}
		st.PopPush(p.numChildren+1, b.Build())
		return
	}
	addr := make([]string, len(p.keep))
	for s, inAddr := range in.Index().All() {
		match := true
		for i, dim := range p.mapped {
			if inAddr[dim.pos] != labels[i] {
				match = false
				break
			}
		}
		if !match {
			continue
		}
		for i, pos := range p.keep {
			addr[i] = inAddr[pos]
		}
		src := cells[s*p.inSize+base:]
		out := b.AddSubspace(addr)
		for i, o := range p.inOffsets {
			out[i] = src[o]
		}
	}
	st.PopPush(p.numChildren+1, b.Build())
}
