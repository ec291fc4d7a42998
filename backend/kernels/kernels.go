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

// Package kernels implements the instructions executed by the interpreter.
//
// Each operation is implemented once as a generic function over the cell
// types of its operands. The functions are instantiated for all supported
// cell types and registered in a table keyed by the cell types. Compiling
// a node looks up the table once: no dispatch on the cell types occurs
// while an instruction is executed.
package kernels

import (
	"strings"

	"github.com/gx-org/backend/dtype"
	"github.com/gx-org/tensoreval/backend/value"
	"github.com/gx-org/tensoreval/build/valuetype"
	"github.com/gx-org/tensoreval/interp/state"
	"github.com/pkg/errors"
)

type (
	// outCell are the cell types of values computed by an operation.
	outCell interface {
		float32 | float64
	}

	cells1 [1]valuetype.CellType
	cells2 [2]valuetype.CellType
	cells3 [3]valuetype.CellType

	// bf16 is a shorter name used when registering instantiations.
	bf16 = dtype.Bfloat16T
)

func ct[T value.Cell]() valuetype.CellType {
	return value.CellTypeOf[T]()
}

func lookup[K comparable](name string, table map[K]state.Op, key K) (state.Op, error) {
	op, ok := table[key]
	if !ok {
		return nil, errors.Errorf("%s not supported for cell types %v", name, key)
	}
	return op, nil
}

func (c cells1) String() string { return join(c[:]) }
func (c cells2) String() string { return join(c[:]) }
func (c cells3) String() string { return join(c[:]) }

func join(cts []valuetype.CellType) string {
	ss := make([]string, len(cts))
	for i, c := range cts {
		ss[i] = c.String()
	}
	return "(" + strings.Join(ss, ",") + ")"
}

// strides returns the row major strides of a list of indexed dimensions.
func strides(dims []valuetype.Dimension) []int {
	st := make([]int, len(dims))
	acc := 1
	for i := len(dims) - 1; i >= 0; i-- {
		st[i] = acc
		acc *= dims[i].Size
	}
	return st
}

func denseSize(dims []valuetype.Dimension) int {
	size := 1
	for _, dim := range dims {
		size *= dim.Size
	}
	return size
}

// forEachCoord calls f for all the coordinates of a dense subspace in
// row major order. The coordinates slice is reused between calls.
func forEachCoord(dims []valuetype.Dimension, f func(offset int, coord []int)) {
	size := denseSize(dims)
	coord := make([]int, len(dims))
	for offset := range size {
		f(offset, coord)
		for i := len(dims) - 1; i >= 0; i-- {
			coord[i]++
			if coord[i] < dims[i].Size {
				break
			}
			coord[i] = 0
		}
	}
}

// denseMap returns, for each offset of a dense subspace over iter, the
// offset of the cell with the same coordinates in a dense subspace over
// target. Dimensions of iter are renamed with rename (if not nil) before
// being matched with target. Dimensions of iter missing from target are
// ignored and dimensions of target missing from iter are fixed to 0.
func denseMap(iter, target []valuetype.Dimension, rename map[string]string) []int {
	targetStrides := strides(target)
	st := make([]int, len(iter))
	for i, dim := range iter {
		name := dim.Name
		if to, ok := rename[name]; ok {
			name = to
		}
		for j, t := range target {
			if t.Name == name {
				st[i] = targetStrides[j]
			}
		}
	}
	offsets := make([]int, denseSize(iter))
	forEachCoord(iter, func(offset int, coord []int) {
		var o int
		for i, c := range coord {
			o += c * st[i]
		}
		offsets[offset] = o
	})
	return offsets
}

func isIdentity(offsets []int) bool {
	for i, o := range offsets {
		if i != o {
			return false
		}
	}
	return true
}

func dimIndex(dims []valuetype.Dimension, name string) int {
	for i, dim := range dims {
		if dim.Name == name {
			return i
		}
	}
	return -1
}

// addressKey returns a key to use the labels of an address in a map.
func addressKey(labels []string, positions []int) string {
	switch len(positions) {
	case 0:
		return ""
	case 1:
		return labels[positions[0]]
	}
	var b strings.Builder
	for i, pos := range positions {
		if i > 0 {
			b.WriteByte(0)
		}
		b.WriteString(labels[pos])
	}
	return b.String()
}
