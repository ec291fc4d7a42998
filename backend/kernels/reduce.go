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
	"github.com/pkg/errors"
)

type (
	reduceParam struct {
		out    valuetype.Type
		empty  float64
		keep   []int
		inSize int
		// outOffsets maps an offset in the input subspace to an offset in
		// the output subspace.
		outOffsets []int
		outSize    int
	}

	reduceKey struct {
		in, out valuetype.CellType
		aggr    ops.Aggr
	}
)

var reduceTable = map[reduceKey]state.Op{}

func registerReduceAggrs[I value.Cell, O outCell]() {
	in, out := ct[I](), ct[O]()
	reduceTable[reduceKey{in, out, ops.Avg}] = reduceOp[I, O, avgAggr[O]]
	reduceTable[reduceKey{in, out, ops.Count}] = reduceOp[I, O, countAggr[O]]
	reduceTable[reduceKey{in, out, ops.Prod}] = reduceOp[I, O, prodAggr[O]]
	reduceTable[reduceKey{in, out, ops.Sum}] = reduceOp[I, O, sumAggr[O]]
	reduceTable[reduceKey{in, out, ops.AggrMax}] = reduceOp[I, O, maxAggr[O]]
	reduceTable[reduceKey{in, out, ops.Median}] = reduceOp[I, O, medianAggr[O]]
	reduceTable[reduceKey{in, out, ops.AggrMin}] = reduceOp[I, O, minAggr[O]]
}

func registerReduce[I value.Cell]() {
	registerReduceAggrs[I, float64]()
	registerReduceAggrs[I, float32]()
}

func init() {
	registerReduce[float64]()
	registerReduce[float32]()
	registerReduce[int8]()
	registerReduce[bf16]()
}

// Reduce returns an instruction aggregating the value at the top of the
// stack over a set of dimensions. An empty set reduces all dimensions.
func Reduce(in, out valuetype.Type, aggr ops.Aggr) (state.Instruction, error) {
	body, ok := reduceTable[reduceKey{in.CellType(), out.CellType(), aggr}]
	if !ok {
		return state.Instruction{}, errors.Errorf("reduce(%s) not supported for cell types %s -> %s", aggr, in.CellType(), out.CellType())
	}
	p := &reduceParam{
		out:        out,
		empty:      aggr.Empty(),
		inSize:     in.DenseSubspaceSize(),
		outOffsets: denseMap(in.IndexedDims(), out.IndexedDims(), nil),
		outSize:    out.DenseSubspaceSize(),
	}
	outMapped := out.MappedDims()
	for i, dim := range in.MappedDims() {
		if dimIndex(outMapped, dim.Name) >= 0 {
			p.keep = append(p.keep, i)
		}
	}
	return state.NewInstruction(body, p), nil
}

func reduceOp[I value.Cell, O outCell, A any, P aggrPtr[A, O]](st *state.State, param any) {
	p := param.(*reduceParam)
	in := st.Peek(0)
	cells := value.CellsOf[I](in)
	load := value.Load[I]()
	// Group the input subspaces by output subspace.
	var addrs [][]string
	groups := make(map[string]int)
	subspaceOf := make([]int, in.Index().Size())
	for s, addr := range in.Index().All() {
		key := addressKey(addr, p.keep)
		g, ok := groups[key]
		if !ok {
			g = len(addrs)
			groups[key] = g
			kept := make([]string, len(p.keep))
			for i, pos := range p.keep {
				kept[i] = addr[pos]
			}
			addrs = append(addrs, kept)
		}
		subspaceOf[s] = g
	}
	states := make([]A, len(addrs)*p.outSize)
	seen := make([]bool, len(states))
	for s := range subspaceOf {
		base := subspaceOf[s] * p.outSize
		for i, x := range cells[s*p.inSize : (s+1)*p.inSize] {
			k := base + p.outOffsets[i]
			if seen[k] {
				P(&states[k]).next(O(load(x)))
			} else {
				P(&states[k]).first(O(load(x)))
				seen[k] = true
			}
		}
	}
	b := value.NewBuilder[O](st.Factory(), st.Stash(), p.out, len(addrs))
	for g, addr := range addrs {
		out := b.AddSubspace(addr)
		for i := range out {
			k := g*p.outSize + i
			if seen[k] {
				out[i] = P(&states[k]).result()
			} else {
				out[i] = O(p.empty)
			}
		}
	}
	if len(addrs) == 0 && len(p.out.MappedDims()) == 0 {
		out := b.AddSubspace(nil)
		for i := range out {
			out[i] = O(p.empty)
		}
	}
	st.PopPush(1, b.Build())
}
