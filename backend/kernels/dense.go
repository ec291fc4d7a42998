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
	"github.com/gx-org/tensoreval/backend/blas"
	"github.com/gx-org/tensoreval/backend/value"
	"github.com/gx-org/tensoreval/base/stash"
	"github.com/gx-org/tensoreval/build/ops"
	"github.com/gx-org/tensoreval/build/valuetype"
	"github.com/gx-org/tensoreval/interp/state"
)

var (
	dotTable    = map[cells2]state.Op{}
	xwTable     = map[cells3]state.Op{}
	expandTable = map[cells3]state.Op{}
)

func registerDense[L, R value.Cell]() {
	dotTable[cells2{ct[L](), ct[R]()}] = dotOp[L, R]
	xwTable[cells3{ct[L](), ct[R](), valuetype.Double}] = xwOp[L, R, float64]
	xwTable[cells3{ct[L](), ct[R](), valuetype.Float}] = xwOp[L, R, float32]
	expandTable[cells3{ct[L](), ct[R](), valuetype.Double}] = expandOp[L, R, float64]
	expandTable[cells3{ct[L](), ct[R](), valuetype.Float}] = expandOp[L, R, float32]
}

func registerDenseLHS[L value.Cell]() {
	registerDense[L, float64]()
	registerDense[L, float32]()
	registerDense[L, int8]()
	registerDense[L, bf16]()
}

func init() {
	registerDenseLHS[float64]()
	registerDenseLHS[float32]()
	registerDenseLHS[int8]()
	registerDenseLHS[bf16]()

	dotTable[cells2{valuetype.Float, valuetype.Float}] = dotFloat32
	dotTable[cells2{valuetype.Double, valuetype.Double}] = dotFloat64
	xwTable[cells3{valuetype.Float, valuetype.Float, valuetype.Float}] = xwFloat32
	xwTable[cells3{valuetype.Double, valuetype.Double, valuetype.Double}] = xwFloat64
}

// DenseDotProduct returns an instruction computing the dot product of two
// dense vectors with the same size.
func DenseDotProduct(lhs, rhs valuetype.Type) (state.Instruction, error) {
	body, err := lookup("dense dot product", dotTable, cells2{lhs.CellType(), rhs.CellType()})
	if err != nil {
		return state.Instruction{}, err
	}
	return state.NewInstruction(body, nil), nil
}

func dotOp[L, R value.Cell](st *state.State, _ any) {
	lhs, rhs := value.CellsOf[L](st.Peek(1)), value.CellsOf[R](st.Peek(0))
	loadL, loadR := value.Load[L](), value.Load[R]()
	var sum float64
	for i, x := range lhs {
		sum += loadL(x) * loadR(rhs[i])
	}
	st.PopPush(2, value.Scalar(sum))
}

func dotFloat32(st *state.State, _ any) {
	lhs, rhs := value.CellsOf[float32](st.Peek(1)), value.CellsOf[float32](st.Peek(0))
	st.PopPush(2, value.Scalar(float64(blas.Dot32(lhs, rhs))))
}

func dotFloat64(st *state.State, _ any) {
	lhs, rhs := value.CellsOf[float64](st.Peek(1)), value.CellsOf[float64](st.Peek(0))
	st.PopPush(2, value.Scalar(blas.Dot64(lhs, rhs)))
}

type xwParam struct {
	out         valuetype.Type
	vectorSize  int
	resultSize  int
	commonInner bool
	vectorIsLHS bool
}

// DenseXWProduct returns an instruction multiplying a matrix by a vector.
// The matrix has a common dimension with the vector and a result dimension.
// commonInner is true if the common dimension is the inner dimension of the
// matrix.
func DenseXWProduct(vector, matrix, out valuetype.Type, vectorSize, resultSize int, commonInner, vectorIsLHS bool) (state.Instruction, error) {
	body, err := lookup("dense xw product", xwTable, cells3{vector.CellType(), matrix.CellType(), out.CellType()})
	if err != nil {
		return state.Instruction{}, err
	}
	return state.NewInstruction(body, &xwParam{
		out:         out,
		vectorSize:  vectorSize,
		resultSize:  resultSize,
		commonInner: commonInner,
		vectorIsLHS: vectorIsLHS,
	}), nil
}

func xwOperands(st *state.State, p *xwParam) (vector, matrix value.Value) {
	if p.vectorIsLHS {
		return st.Peek(1), st.Peek(0)
	}
	return st.Peek(0), st.Peek(1)
}

func xwOp[V, M value.Cell, O outCell](st *state.State, param any) {
	p := param.(*xwParam)
	vector, matrix := xwOperands(st, p)
	vCells, mCells := value.CellsOf[V](vector), value.CellsOf[M](matrix)
	loadV, loadM := value.Load[V](), value.Load[M]()
	out := stash.Alloc[O](st.Stash(), p.resultSize)
	for r := range out {
		var sum float64
		for c, x := range vCells {
			var w M
			if p.commonInner {
				w = mCells[r*p.vectorSize+c]
			} else {
				w = mCells[c*p.resultSize+r]
			}
			sum += loadV(x) * loadM(w)
		}
		out[r] = O(sum)
	}
	st.PopPush(2, value.WrapDense(p.out, out))
}

func xwFloat32(st *state.State, param any) {
	p := param.(*xwParam)
	vector, matrix := xwOperands(st, p)
	out := stash.Alloc[float32](st.Stash(), p.resultSize)
	if p.commonInner {
		blas.MatVec32(value.CellsOf[float32](matrix), p.resultSize, p.vectorSize, false, value.CellsOf[float32](vector), out)
	} else {
		blas.MatVec32(value.CellsOf[float32](matrix), p.vectorSize, p.resultSize, true, value.CellsOf[float32](vector), out)
	}
	st.PopPush(2, value.WrapDense(p.out, out))
}

func xwFloat64(st *state.State, param any) {
	p := param.(*xwParam)
	vector, matrix := xwOperands(st, p)
	out := stash.Alloc[float64](st.Stash(), p.resultSize)
	if p.commonInner {
		blas.MatVec64(value.CellsOf[float64](matrix), p.resultSize, p.vectorSize, false, value.CellsOf[float64](vector), out)
	} else {
		blas.MatVec64(value.CellsOf[float64](matrix), p.vectorSize, p.resultSize, true, value.CellsOf[float64](vector), out)
	}
	st.PopPush(2, value.WrapDense(p.out, out))
}

type expandParam struct {
	out        valuetype.Type
	fn         func(float64, float64) float64
	innerIsRHS bool
}

// DenseSimpleExpand returns an instruction computing the outer product of two
// dense values whose dimensions do not overlap. All the dimensions of the
// inner value come after the dimensions of the outer value.
func DenseSimpleExpand(lhs, rhs, out valuetype.Type, op ops.Binary, innerIsRHS bool) (state.Instruction, error) {
	body, err := lookup("dense simple expand", expandTable, cells3{lhs.CellType(), rhs.CellType(), out.CellType()})
	if err != nil {
		return state.Instruction{}, err
	}
	return state.NewInstruction(body, &expandParam{out: out, fn: op.Func(), innerIsRHS: innerIsRHS}), nil
}

func expandOp[L, R value.Cell, O outCell](st *state.State, param any) {
	p := param.(*expandParam)
	lhs, rhs := value.CellsOf[L](st.Peek(1)), value.CellsOf[R](st.Peek(0))
	loadL, loadR := value.Load[L](), value.Load[R]()
	out := stash.Alloc[O](st.Stash(), len(lhs)*len(rhs))
	if p.innerIsRHS {
		for o, x := range lhs {
			row := out[o*len(rhs) : (o+1)*len(rhs)]
			for i, y := range rhs {
				row[i] = O(p.fn(loadL(x), loadR(y)))
			}
		}
	} else {
		for o, y := range rhs {
			row := out[o*len(lhs) : (o+1)*len(lhs)]
			for i, x := range lhs {
				row[i] = O(p.fn(loadL(x), loadR(y)))
			}
		}
	}
	st.PopPush(2, value.WrapDense(p.out, out))
}
