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

// Package blas exposes the matrix multiplication capability used by the
// fused kernels. The implementation is delegated to gonum.
package blas

import (
	"gonum.org/v1/gonum/blas"
	"gonum.org/v1/gonum/blas/blas32"
	"gonum.org/v1/gonum/blas/blas64"
)

// Dot32 returns the dot product of two vectors of the same length.
func Dot32(x, y []float32) float32 {
	if len(x) == 0 {
		return 0
	}
	return blas32.Dot(blas32.Vector{N: len(x), Inc: 1, Data: x}, blas32.Vector{N: len(y), Inc: 1, Data: y})
}

// Dot64 returns the dot product of two vectors of the same length.
func Dot64(x, y []float64) float64 {
	if len(x) == 0 {
		return 0
	}
	return blas64.Dot(blas64.Vector{N: len(x), Inc: 1, Data: x}, blas64.Vector{N: len(y), Inc: 1, Data: y})
}

func transpose(trans bool) blas.Transpose {
	if trans {
		return blas.Trans
	}
	return blas.NoTrans
}

// MatVec32 computes y = A*x, or y = transpose(A)*x if trans is true,
// where A is a row major matrix of size rows x cols.
func MatVec32(a []float32, rows, cols int, trans bool, x, y []float32) {
	if rows == 0 || cols == 0 {
		clear(y)
		return
	}
	blas32.Gemv(transpose(trans), 1,
		blas32.General{Rows: rows, Cols: cols, Stride: cols, Data: a},
		blas32.Vector{N: len(x), Inc: 1, Data: x},
		0,
		blas32.Vector{N: len(y), Inc: 1, Data: y})
}

// MatVec64 computes y = A*x, or y = transpose(A)*x if trans is true,
// where A is a row major matrix of size rows x cols.
func MatVec64(a []float64, rows, cols int, trans bool, x, y []float64) {
	if rows == 0 || cols == 0 {
		clear(y)
		return
	}
	blas64.Gemv(transpose(trans), 1,
		blas64.General{Rows: rows, Cols: cols, Stride: cols, Data: a},
		blas64.Vector{N: len(x), Inc: 1, Data: x},
		0,
		blas64.Vector{N: len(y), Inc: 1, Data: y})
}
