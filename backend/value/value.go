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

// Package value implements runtime tensor values.
//
// A value is a type, an index mapping the labels of the mapped dimensions
// to dense subspaces, and a flat typed slice storing the cells of all the
// subspaces one after the other.
package value

import (
	"github.com/gx-org/backend/dtype"
	"github.com/gx-org/tensoreval/build/valuetype"
	"github.com/pkg/errors"
)

type (
	// Value is a runtime tensor.
	Value interface {
		// Type returns the type of the value.
		Type() valuetype.Type
		// Index returns the index of the mapped dimensions.
		Index() Index
		// Cells returns the cells of all dense subspaces as a typed slice
		// ([]float64, []float32, []int8 or []dtype.Bfloat16T).
		Cells() any
	}

	tensor[T Cell] struct {
		typ   valuetype.Type
		index Index
		cells []T
	}
)

func (t *tensor[T]) Type() valuetype.Type {
	return t.typ
}

func (t *tensor[T]) Index() Index {
	return t.index
}

func (t *tensor[T]) Cells() any {
	return t.cells
}

func (t *tensor[T]) String() string {
	return SpecFromValue(t).String()
}

// CellsOf returns the cells of a value.
// The function panics if the cells are not stored as T.
func CellsOf[T Cell](v Value) []T {
	return v.Cells().([]T)
}

// New returns a value given an index and its cells.
// The index and the cells are not copied.
func New[T Cell](typ valuetype.Type, index Index, cells []T) (Value, error) {
	if typ.IsError() {
		return nil, errors.Errorf("cannot create a value of type %s", typ.String())
	}
	if want := CellTypeOf[T](); typ.CellType() != want {
		return nil, errors.Errorf("cannot store cells of type %s in a value of type %s", want.String(), typ.String())
	}
	if index.NumDims() != len(typ.MappedDims()) {
		return nil, errors.Errorf("index has %d dimensions but type %s has %d mapped dimensions", index.NumDims(), typ.String(), len(typ.MappedDims()))
	}
	if want := index.Size() * typ.DenseSubspaceSize(); len(cells) != want {
		return nil, errors.Errorf("got %d cells but type %s with %d subspaces requires %d cells", len(cells), typ.String(), index.Size(), want)
	}
	return &tensor[T]{typ: typ, index: index, cells: cells}, nil
}

// Reuse returns a new value sharing the index of another value.
func Reuse[T Cell](typ valuetype.Type, from Value, cells []T) Value {
	return &tensor[T]{typ: typ, index: from.Index(), cells: cells}
}

// NewDense returns a value of a dense type.
func NewDense[T Cell](typ valuetype.Type, cells []T) (Value, error) {
	return New(typ, denseIndex, cells)
}

// Scalar returns a scalar value.
func Scalar(x float64) Value {
	return &tensor[float64]{typ: valuetype.Scalar(), index: denseIndex, cells: []float64{x}}
}

// AsDouble returns the value of a single cell value as a float64.
// The function returns 0 if the value has no cells.
func AsDouble(v Value) float64 {
	switch cells := v.Cells().(type) {
	case []float64:
		return firstCell(cells)
	case []float32:
		return firstCell(cells)
	case []int8:
		return firstCell(cells)
	case []dtype.Bfloat16T:
		return firstCell(cells)
	}
	return 0
}

func firstCell[T Cell](cells []T) float64 {
	if len(cells) == 0 {
		return 0
	}
	return Load[T]()(cells[0])
}

// Doubles returns all the cells of a value converted to float64.
func Doubles(v Value) []float64 {
	switch cells := v.Cells().(type) {
	case []float64:
		return cells
	case []float32:
		return toDoubles(cells)
	case []int8:
		return toDoubles(cells)
	case []dtype.Bfloat16T:
		return toDoubles(cells)
	}
	return nil
}

func toDoubles[T Cell](cells []T) []float64 {
	load := Load[T]()
	out := make([]float64, len(cells))
	for i, c := range cells {
		out[i] = load(c)
	}
	return out
}

// WrapDense returns a value of a type without mapped dimensions.
// The number of cells is not checked.
func WrapDense[T Cell](typ valuetype.Type, cells []T) Value {
	return &tensor[T]{typ: typ, index: denseIndex, cells: cells}
}
