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

package value

import (
	"github.com/gx-org/backend/dtype"
	"github.com/gx-org/tensoreval/build/valuetype"
)

// Cell is the Go type storing the cells of a tensor.
type Cell interface {
	float64 | float32 | int8 | dtype.Bfloat16T
}

type cellIO[T Cell] struct {
	cell  valuetype.CellType
	load  func(T) float64
	store func(float64) T
}

func storeInt8(x float64) int8 {
	switch {
	case x != x:
		return 0
	case x <= -128:
		return -128
	case x >= 127:
		return 127
	}
	return int8(x)
}

func ioOf[T Cell]() cellIO[T] {
	var io any
	switch any(*new(T)).(type) {
	case float64:
		io = cellIO[float64]{
			cell:  valuetype.Double,
			load:  func(x float64) float64 { return x },
			store: func(x float64) float64 { return x },
		}
	case float32:
		io = cellIO[float32]{
			cell:  valuetype.Float,
			load:  func(x float32) float64 { return float64(x) },
			store: func(x float64) float32 { return float32(x) },
		}
	case int8:
		io = cellIO[int8]{
			cell:  valuetype.Int8,
			load:  func(x int8) float64 { return float64(x) },
			store: storeInt8,
		}
	case dtype.Bfloat16T:
		io = cellIO[dtype.Bfloat16T]{
			cell:  valuetype.BFloat16,
			load:  func(x dtype.Bfloat16T) float64 { return float64(x.Float32()) },
			store: dtype.BFloat16FromFloat64,
		}
	}
	return io.(cellIO[T])
}

// Load returns a function converting a cell into a float64.
func Load[T Cell]() func(T) float64 {
	return ioOf[T]().load
}

// Store returns a function converting a float64 into a cell.
// Conversions to int8 saturate.
func Store[T Cell]() func(float64) T {
	return ioOf[T]().store
}

// CellTypeOf returns the cell type stored with the Go type T.
func CellTypeOf[T Cell]() valuetype.CellType {
	return ioOf[T]().cell
}
