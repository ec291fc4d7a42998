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

	"github.com/gx-org/tensoreval/backend/blas"
	"github.com/gx-org/tensoreval/backend/value"
	"github.com/gx-org/tensoreval/build/ops"
	"github.com/gx-org/tensoreval/build/valuetype"
	"github.com/gx-org/tensoreval/interp/state"
	"github.com/pkg/errors"
)

type sumMaxParam struct {
	size       int
	queryIsLHS bool
}

func sumMaxOperands(st *state.State, p *sumMaxParam) (query, doc value.Value) {
	if p.queryIsLHS {
		return st.Peek(1), st.Peek(0)
	}
	return st.Peek(0), st.Peek(1)
}

func checkCells(name string, want valuetype.CellType, types ...valuetype.Type) error {
	for _, tp := range types {
		if tp.CellType() != want {
			return errors.Errorf("%s requires %s cells but got %s", name, want, tp.String())
		}
	}
	return nil
}

// SumMaxDotProduct returns an instruction summing over all query vectors the
// largest dot product of the query vector with any document vector.
// Vectors have size elements.
func SumMaxDotProduct(query, doc valuetype.Type, size int, queryIsLHS bool) (state.Instruction, error) {
	if err := checkCells("sum max dot product", valuetype.Float, query, doc); err != nil {
		return state.Instruction{}, err
	}
	return state.NewInstruction(sumMaxDotOp, &sumMaxParam{size: size, queryIsLHS: queryIsLHS}), nil
}

func sumMaxDotOp(st *state.State, param any) {
	p := param.(*sumMaxParam)
	query, doc := sumMaxOperands(st, p)
	qCells, dCells := value.CellsOf[float32](query), value.CellsOf[float32](doc)
	var result float64
	if len(dCells) > 0 {
		for q := 0; q+p.size <= len(qCells); q += p.size {
			best := float32(math.Inf(-1))
			for d := 0; d+p.size <= len(dCells); d += p.size {
				best = max(best, blas.Dot32(qCells[q:q+p.size], dCells[d:d+p.size]))
			}
			result += float64(best)
		}
	}
	st.PopPush(2, value.Scalar(result))
}

func hamming(a, b []int8) int {
	var dist int
	for i, x := range a {
		dist += ops.HammingDistance(x, b[i])
	}
	return dist
}

// SumMaxInvHamming returns an instruction summing over all query vectors
// 1/(1+d) where d is the smallest hamming distance between the query vector
// and any document vector.
func SumMaxInvHamming(query, doc valuetype.Type, size int, queryIsLHS bool) (state.Instruction, error) {
	if err := checkCells("sum max inverted hamming", valuetype.Int8, query, doc); err != nil {
		return state.Instruction{}, err
	}
	return state.NewInstruction(sumMaxInvHammingOp, &sumMaxParam{size: size, queryIsLHS: queryIsLHS}), nil
}

func sumMaxInvHammingOp(st *state.State, param any) {
	p := param.(*sumMaxParam)
	query, doc := sumMaxOperands(st, p)
	qCells, dCells := value.CellsOf[int8](query), value.CellsOf[int8](doc)
	var result float64
	if len(dCells) > 0 {
		for q := 0; q+p.size <= len(qCells); q += p.size {
			best := math.MaxInt
			for d := 0; d+p.size <= len(dCells); d += p.size {
				best = min(best, hamming(qCells[q:q+p.size], dCells[d:d+p.size]))
			}
			result += 1 / (1 + float64(best))
		}
	}
	st.PopPush(2, value.Scalar(result))
}

type (
	bestKey struct {
		cell valuetype.CellType
		op   ops.Binary
		aggr ops.Aggr
		out  valuetype.CellType
	}

	bestParam struct {
		out       valuetype.Type
		innerSize int
		priIsLHS  bool
		sumOuter  bool
	}
)

var bestTable = map[bestKey]state.Op{
	{valuetype.Float, ops.Mul, ops.AggrMax, valuetype.Float}:     bestDotMaxOp[float32],
	{valuetype.Float, ops.Mul, ops.AggrMax, valuetype.Double}:    bestDotMaxOp[float64],
	{valuetype.Int8, ops.Hamming, ops.AggrMin, valuetype.Float}:  bestHammingMinOp[float32],
	{valuetype.Int8, ops.Hamming, ops.AggrMin, valuetype.Double}: bestHammingMinOp[float64],
}

// BestSimilarity returns an instruction computing, for each vector of a
// secondary value, the best similarity with any vector of a primary value.
// Vectors have innerSize elements. If sumOuter is true, the similarities of
// all the secondary vectors are summed into a scalar.
func BestSimilarity(pri, sec, out valuetype.Type, op ops.Binary, aggr ops.Aggr, innerSize int, priIsLHS, sumOuter bool) (state.Instruction, error) {
	if pri.CellType() != sec.CellType() {
		return state.Instruction{}, errors.Errorf("best similarity requires operands with the same cell type but got %s and %s", pri.String(), sec.String())
	}
	body, ok := bestTable[bestKey{pri.CellType(), op, aggr, out.CellType()}]
	if !ok {
		return state.Instruction{}, errors.Errorf("best similarity with %s and %s not supported for %s cells", op, aggr, pri.CellType())
	}
	return state.NewInstruction(body, &bestParam{
		out:       out,
		innerSize: innerSize,
		priIsLHS:  priIsLHS,
		sumOuter:  sumOuter,
	}), nil
}

func bestSimilarity[T value.Cell, O outCell](st *state.State, p *bestParam, similarity func(a, b []T) float64, better func(x, best float64) bool) {
	pri, sec := st.Peek(0), st.Peek(1)
	if p.priIsLHS {
		pri, sec = sec, pri
	}
	priCells, secCells := value.CellsOf[T](pri), value.CellsOf[T](sec)
	n := p.innerSize
	best := func(vec []T) float64 {
		result := similarity(vec, priCells[:n])
		for r := n; r+n <= len(priCells); r += n {
			if x := similarity(vec, priCells[r:r+n]); better(x, result) {
				result = x
			}
		}
		return result
	}
	if p.sumOuter {
		var sum float64
		if len(priCells) > 0 {
			for s := 0; s+n <= len(secCells); s += n {
				sum += float64(O(best(secCells[s : s+n])))
			}
		}
		st.PopPush(2, value.Scalar(sum))
		return
	}
	b := value.NewBuilder[O](st.Factory(), st.Stash(), p.out, sec.Index().Size())
	if len(priCells) > 0 {
		for s, addr := range sec.Index().All() {
			b.AddSubspace(addr)[0] = O(best(secCells[s*n : (s+1)*n]))
		}
	}
	st.PopPush(2, b.Build())
}

func dot32(a, b []float32) float64 {
	return float64(blas.Dot32(a, b))
}

func bestDotMaxOp[O outCell](st *state.State, param any) {
	bestSimilarity[float32, O](st, param.(*bestParam), dot32, func(x, best float64) bool {
		return x > best
	})
}

func bestHammingMinOp[O outCell](st *state.State, param any) {
	bestSimilarity[int8, O](st, param.(*bestParam), func(a, b []int8) float64 {
		return float64(hamming(a, b))
	}, func(x, best float64) bool {
		return x < best
	})
}
