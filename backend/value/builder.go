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
	"github.com/gx-org/tensoreval/base/stash"
	"github.com/gx-org/tensoreval/build/valuetype"
)

// Builder builds a value subspace by subspace.
type Builder[T Cell] struct {
	typ          valuetype.Type
	index        indexBuilder
	subspaceSize int
	cells        []T
	dense        bool
}

// NewBuilder returns a builder for a value of a given type.
// Cells of values without mapped dimensions are allocated in the stash,
// which may be nil. expected is a hint of the number of subspaces.
func NewBuilder[T Cell](f Factory, s *stash.Stash, typ valuetype.Type, expected int) *Builder[T] {
	numMapped := len(typ.MappedDims())
	b := &Builder[T]{
		typ:          typ,
		index:        f.newIndex(numMapped, expected),
		subspaceSize: typ.DenseSubspaceSize(),
		dense:        numMapped == 0,
	}
	if b.dense {
		b.cells = stash.Alloc[T](s, b.subspaceSize)
	} else {
		b.cells = make([]T, 0, expected*b.subspaceSize)
	}
	return b
}

// AddSubspace returns the cells of the subspace at a given address, adding
// the subspace with zero cells if it does not exist yet. The returned slice
// is only valid until the next call to AddSubspace.
func (b *Builder[T]) AddSubspace(addr []string) []T {
	subspace, isNew := b.index.add(addr)
	if isNew && !b.dense {
		b.cells = append(b.cells, make([]T, b.subspaceSize)...)
	}
	start := subspace * b.subspaceSize
	return b.cells[start : start+b.subspaceSize]
}

// Build returns the value. Values without mapped dimensions always have
// exactly one subspace.
func (b *Builder[T]) Build() Value {
	return &tensor[T]{typ: b.typ, index: b.index.build(), cells: b.cells}
}
