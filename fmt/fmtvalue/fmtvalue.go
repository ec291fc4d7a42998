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

// Package fmtvalue formats tensor values into strings.
//
// Dense values are printed as nested blocks, one level per indexed
// dimension. Values with mapped dimensions print one dense block per
// address, sorted by labels.
package fmtvalue

import (
	"fmt"
	"slices"
	"strconv"
	"strings"

	"github.com/gx-org/tensoreval/backend/value"
	"github.com/gx-org/tensoreval/build/valuetype"
)

const tab = "\t"

func computeIndex(offsets []int, p []int) int {
	var index int
	for i, v := range p {
		index += offsets[i] * v
	}
	return index
}

func axesOffsets(axes []int) []int {
	offsets := make([]int, len(axes))
	for i := range offsets {
		offsets[i] = 1
		for _, d := range axes[i+1:] {
			offsets[i] *= d
		}
	}
	return offsets
}

func toPosition(parentPosition []int) []int {
	position := append([]int{}, parentPosition...)
	return append(position, 0)
}

type builder struct {
	w       *strings.Builder
	cell    valuetype.CellType
	data    []float64
	axes    []int
	offsets []int
	// Offset of the dense subspace being printed.
	base int
}

func newBuilder(v value.Value) *builder {
	typ := v.Type()
	axes := typ.DenseShape().AxisLengths
	return &builder{
		w:       &strings.Builder{},
		cell:    typ.CellType(),
		data:    value.Doubles(v),
		axes:    axes,
		offsets: axesOffsets(axes),
	}
}

func (b *builder) toValue(x float64) string {
	var result string
	switch b.cell {
	case valuetype.Int8:
		return strconv.Itoa(int(x))
	case valuetype.Double:
		result = fmt.Sprintf("%.10f", x)
	default:
		result = fmt.Sprintf("%.6f", x)
	}
	if strings.ContainsRune(result, '.') {
		result = strings.TrimRight(result, "0")
		result = strings.TrimSuffix(result, ".")
	}
	return result
}

func (b *builder) cellAt(p []int) float64 {
	return b.data[b.base+computeIndex(b.offsets, p)]
}

func (b *builder) printVector(p []int) {
	fullPos := toPosition(p)
	vecSize := b.axes[len(b.axes)-1]
	vec := make([]string, vecSize)
	for i := range vecSize {
		fullPos[len(fullPos)-1] = i
		vec[i] = b.toValue(b.cellAt(fullPos))
	}
	b.w.WriteString("{" + strings.Join(vec, ", ") + "}")
}

// printBlock prints a dense subspace. The opening brace is written at the
// current position and the closing brace is indented by indent.
func (b *builder) printBlock(indent string, parentPosition []int) {
	switch len(b.axes) - len(parentPosition) {
	case 0:
		b.w.WriteString(b.toValue(b.cellAt(parentPosition)))
		return
	case 1:
		b.printVector(parentPosition)
		return
	}
	b.w.WriteString("{\n")
	position := toPosition(parentPosition)
	for i := range b.axes[len(parentPosition)] {
		position[len(position)-1] = i
		b.w.WriteString(indent + tab)
		b.printBlock(indent+tab, position)
		b.w.WriteString(",\n")
	}
	b.w.WriteString(indent + "}")
}

func (b *builder) printDense() {
	if len(b.axes) == 0 {
		b.w.WriteString("(" + b.toValue(b.data[0]) + ")")
		return
	}
	b.printBlock("", nil)
}

func formatAddress(names, labels []string) string {
	parts := make([]string, len(names))
	for i, name := range names {
		parts[i] = name + ":" + labels[i]
	}
	return "{" + strings.Join(parts, ",") + "}"
}

func (b *builder) printSparse(v value.Value) {
	index := v.Index()
	subspaces := make([]int, 0, index.Size())
	for subspace := range index.All() {
		subspaces = append(subspaces, subspace)
	}
	slices.SortFunc(subspaces, func(x, y int) int {
		return slices.Compare(index.Address(x), index.Address(y))
	})
	if len(subspaces) == 0 {
		b.w.WriteString("{}")
		return
	}
	names := v.Type().MappedNames()
	size := v.Type().DenseSubspaceSize()
	b.w.WriteString("{\n")
	for _, subspace := range subspaces {
		b.w.WriteString(tab + formatAddress(names, index.Address(subspace)) + ": ")
		b.base = subspace * size
		b.printBlock(tab, nil)
		b.w.WriteString(",\n")
	}
	b.w.WriteString("}")
}

func (b *builder) sDataPrint(v value.Value) {
	if len(v.Type().MappedDims()) == 0 {
		b.printDense()
		return
	}
	b.printSparse(v)
}

// SDataPrint returns a string representation of the cells of a value without its type.
func SDataPrint(v value.Value) string {
	b := newBuilder(v)
	b.sDataPrint(v)
	return b.w.String()
}

// Sprint returns a string representation of a value.
func Sprint(v value.Value) string {
	b := newBuilder(v)
	b.w.WriteString(v.Type().String())
	b.sDataPrint(v)
	return b.w.String()
}
