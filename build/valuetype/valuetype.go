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

// Package valuetype defines the type of tensor values.
//
// A type is a cell type and a set of dimensions sorted by name.
// Operations combining types never fail: an invalid combination
// returns the error type which is then propagated by callers.
package valuetype

import (
	"fmt"
	"slices"
	"strings"

	"github.com/gx-org/backend/shape"
)

type (
	// Dimension of a tensor type.
	// A size of 0 marks a mapped (sparse) dimension, a size of 1 a trivial
	// dimension and any other size an indexed (dense) dimension.
	Dimension struct {
		Name string
		Size int
	}

	// Type of a tensor value. Types are immutable.
	Type struct {
		cell  CellType
		dims  []Dimension
		isErr bool
	}
)

// Mapped returns a mapped dimension.
func Mapped(name string) Dimension {
	return Dimension{Name: name}
}

// Indexed returns an indexed dimension of a given size.
func Indexed(name string, size int) Dimension {
	return Dimension{Name: name, Size: size}
}

// IsMapped returns true if the dimension is sparse.
func (d Dimension) IsMapped() bool {
	return d.Size == 0
}

// IsIndexed returns true if the dimension is dense.
func (d Dimension) IsIndexed() bool {
	return d.Size > 0
}

// IsTrivial returns true if the dimension is indexed with a single element.
func (d Dimension) IsTrivial() bool {
	return d.Size == 1
}

func (d Dimension) String() string {
	if d.IsMapped() {
		return d.Name + "{}"
	}
	return fmt.Sprintf("%s[%d]", d.Name, d.Size)
}

// Error returns the error type.
func Error() Type {
	return Type{isErr: true}
}

// Scalar returns the type of a scalar.
func Scalar() Type {
	return Type{cell: Double}
}

// Make returns a type given a cell type and a list of dimensions.
// The dimensions are sorted by name. Duplicated names, negative sizes,
// invalid cell types or a non-double scalar result in the error type.
func Make(cell CellType, dims ...Dimension) Type {
	if !cell.Valid() {
		return Error()
	}
	if len(dims) == 0 {
		if cell != Double {
			return Error()
		}
		return Scalar()
	}
	sorted := slices.Clone(dims)
	sortDims(sorted)
	for i, dim := range sorted {
		if dim.Size < 0 || dim.Name == "" {
			return Error()
		}
		if i > 0 && sorted[i-1].Name == dim.Name {
			return Error()
		}
	}
	return Type{cell: cell, dims: sorted}
}

func sortDims(dims []Dimension) {
	slices.SortFunc(dims, func(a, b Dimension) int {
		return strings.Compare(a.Name, b.Name)
	})
}

// makeSorted assumes the dimensions are already sorted and unique.
func makeSorted(cell CellType, dims []Dimension) Type {
	if len(dims) == 0 {
		return Scalar()
	}
	return Type{cell: cell, dims: dims}
}

// IsError returns true if the type is the error type.
func (t Type) IsError() bool {
	return t.isErr
}

// IsScalar returns true if the type has no dimensions.
func (t Type) IsScalar() bool {
	return !t.isErr && len(t.dims) == 0
}

// HasDimensions returns true if the type is a tensor with at least one dimension.
func (t Type) HasDimensions() bool {
	return len(t.dims) > 0
}

// IsDense returns true if all dimensions are indexed.
func (t Type) IsDense() bool {
	if len(t.dims) == 0 {
		return false
	}
	for _, dim := range t.dims {
		if dim.IsMapped() {
			return false
		}
	}
	return true
}

// IsSparse returns true if all dimensions are mapped.
func (t Type) IsSparse() bool {
	if len(t.dims) == 0 {
		return false
	}
	for _, dim := range t.dims {
		if !dim.IsMapped() {
			return false
		}
	}
	return true
}

// IsMixed returns true if the type has both mapped and indexed dimensions.
func (t Type) IsMixed() bool {
	return t.HasDimensions() && !t.IsDense() && !t.IsSparse()
}

// CellType returns the type of the cells.
func (t Type) CellType() CellType {
	return t.cell
}

// Dims returns the dimensions sorted by name.
// The returned slice must not be modified.
func (t Type) Dims() []Dimension {
	return t.dims
}

// MappedDims returns the mapped dimensions.
func (t Type) MappedDims() []Dimension {
	return t.filter(Dimension.IsMapped)
}

// IndexedDims returns the indexed dimensions.
func (t Type) IndexedDims() []Dimension {
	return t.filter(Dimension.IsIndexed)
}

// NontrivialIndexedDims returns the indexed dimensions of size greater than 1.
func (t Type) NontrivialIndexedDims() []Dimension {
	return t.filter(func(d Dimension) bool {
		return d.IsIndexed() && !d.IsTrivial()
	})
}

func (t Type) filter(keep func(Dimension) bool) []Dimension {
	var dims []Dimension
	for _, dim := range t.dims {
		if keep(dim) {
			dims = append(dims, dim)
		}
	}
	return dims
}

// MappedNames returns the names of the mapped dimensions.
func (t Type) MappedNames() []string {
	return names(t.MappedDims())
}

func names(dims []Dimension) []string {
	ss := make([]string, len(dims))
	for i, dim := range dims {
		ss[i] = dim.Name
	}
	return ss
}

// DimIndex returns the position of a dimension or -1 if the type has no
// dimension with that name.
func (t Type) DimIndex(name string) int {
	i, ok := slices.BinarySearchFunc(t.dims, name, func(d Dimension, name string) int {
		return strings.Compare(d.Name, name)
	})
	if !ok {
		return -1
	}
	return i
}

// Dim returns a dimension given its name.
func (t Type) Dim(name string) (Dimension, bool) {
	i := t.DimIndex(name)
	if i < 0 {
		return Dimension{}, false
	}
	return t.dims[i], true
}

// DenseSubspaceSize returns the number of cells of a single dense subspace,
// that is the product of the sizes of all indexed dimensions.
func (t Type) DenseSubspaceSize() int {
	size := 1
	for _, dim := range t.dims {
		if dim.IsIndexed() {
			size *= dim.Size
		}
	}
	return size
}

// DenseShape returns the shape of a dense subspace.
func (t Type) DenseShape() *shape.Shape {
	indexed := t.IndexedDims()
	axes := make([]int, len(indexed))
	for i, dim := range indexed {
		axes[i] = dim.Size
	}
	return &shape.Shape{DType: t.cell.DataType(), AxisLengths: axes}
}

// Equal returns true if both types are the same.
func (t Type) Equal(o Type) bool {
	if t.isErr || o.isErr {
		return t.isErr == o.isErr
	}
	return t.cell == o.cell && slices.Equal(t.dims, o.dims)
}

// String returns the canonical type spec of the type.
func (t Type) String() string {
	if t.isErr {
		return "error"
	}
	if len(t.dims) == 0 {
		return "double"
	}
	var b strings.Builder
	b.WriteString("tensor")
	if t.cell != Double {
		b.WriteString("<" + t.cell.String() + ">")
	}
	b.WriteString("(")
	for i, dim := range t.dims {
		if i > 0 {
			b.WriteString(",")
		}
		b.WriteString(dim.String())
	}
	b.WriteString(")")
	return b.String()
}

// resultCell returns the cell type of an operation computing new cells.
// Scalars do not participate.
func resultCell(a, b Type) CellType {
	switch {
	case a.IsScalar() && b.IsScalar():
		return Double
	case a.IsScalar():
		return b.cell.Decay()
	case b.IsScalar():
		return a.cell.Decay()
	}
	return Unify(a.cell.Decay(), b.cell.Decay())
}

// joinDims merges two sorted dimension lists.
// A name used by both lists must have the same size on both sides.
// Dimensions named skip are left out.
func joinDims(a, b []Dimension, skip string) ([]Dimension, bool) {
	dims := make([]Dimension, 0, len(a)+len(b))
	i, j := 0, 0
	for i < len(a) || j < len(b) {
		switch {
		case j == len(b) || (i < len(a) && a[i].Name < b[j].Name):
			if a[i].Name != skip {
				dims = append(dims, a[i])
			}
			i++
		case i == len(a) || b[j].Name < a[i].Name:
			if b[j].Name != skip {
				dims = append(dims, b[j])
			}
			j++
		default:
			if a[i].Name != skip {
				if a[i].Size != b[j].Size {
					return nil, false
				}
				dims = append(dims, a[i])
			}
			i++
			j++
		}
	}
	return dims, true
}

// Join returns the type of the join of two tensors.
func Join(a, b Type) Type {
	if a.isErr || b.isErr {
		return Error()
	}
	dims, ok := joinDims(a.dims, b.dims, "")
	if !ok {
		return Error()
	}
	return makeSorted(resultCell(a, b), dims)
}

// Merge returns the type of the merge of two tensors.
// Both tensors must have the same dimensions.
func Merge(a, b Type) Type {
	if a.isErr || b.isErr {
		return Error()
	}
	if !slices.Equal(a.dims, b.dims) {
		return Error()
	}
	return makeSorted(resultCell(a, b), slices.Clone(a.dims))
}

// Reduce returns the type of a tensor after aggregating a set of dimensions.
// An empty set of dimensions reduces all dimensions.
func Reduce(t Type, dims []string) Type {
	if t.isErr {
		return Error()
	}
	if len(dims) == 0 {
		return Scalar()
	}
	for _, name := range dims {
		if t.DimIndex(name) < 0 {
			return Error()
		}
	}
	kept := t.filter(func(d Dimension) bool {
		return !slices.Contains(dims, d.Name)
	})
	return makeSorted(t.cell.Decay(), kept)
}

// Map returns the type of a tensor after applying a function to all its cells.
func Map(t Type) Type {
	if t.isErr {
		return Error()
	}
	return makeSorted(t.cell.Decay(), slices.Clone(t.dims))
}

// Rename returns the type of a tensor after renaming some of its dimensions.
func Rename(t Type, from, to []string) Type {
	if t.isErr || len(from) == 0 || len(from) != len(to) {
		return Error()
	}
	dims := slices.Clone(t.dims)
	renamed := make([]bool, len(dims))
	for i, name := range from {
		idx := t.DimIndex(name)
		if idx < 0 || renamed[idx] {
			return Error()
		}
		renamed[idx] = true
		dims[idx].Name = to[i]
	}
	return Make(t.cell, dims...)
}

// Peek returns the type of a tensor after selecting a single address along
// a set of dimensions.
func Peek(t Type, dims []string) Type {
	if t.isErr || len(dims) == 0 {
		return Error()
	}
	for _, name := range dims {
		if t.DimIndex(name) < 0 {
			return Error()
		}
	}
	kept := t.filter(func(d Dimension) bool {
		return !slices.Contains(dims, d.Name)
	})
	return makeSorted(t.cell, kept)
}

// Concat returns the type of the concatenation of two tensors along a dimension.
// A tensor without the concatenation dimension is treated as if it had that
// dimension with a size of 1.
func Concat(a, b Type, dim string) Type {
	if a.isErr || b.isErr || dim == "" {
		return Error()
	}
	sizeOf := func(t Type) (int, bool) {
		d, ok := t.Dim(dim)
		if !ok {
			return 1, true
		}
		return d.Size, d.IsIndexed()
	}
	aSize, aOK := sizeOf(a)
	bSize, bOK := sizeOf(b)
	if !aOK || !bOK {
		return Error()
	}
	dims, ok := joinDims(a.dims, b.dims, dim)
	if !ok {
		return Error()
	}
	dims = append(dims, Indexed(dim, aSize+bSize))
	return Make(Unify(a.cell, b.cell), dims...)
}

// CellCast returns the type of a tensor after converting its cells.
func CellCast(t Type, cell CellType) Type {
	if t.isErr || !cell.Valid() {
		return Error()
	}
	return Make(cell, t.dims...)
}

// Either returns the type of a value which is either of type a or b.
// Both types must have the same dimensions.
func Either(a, b Type) Type {
	if a.isErr || b.isErr || !slices.Equal(a.dims, b.dims) {
		return Error()
	}
	return makeSorted(Unify(a.cell, b.cell), slices.Clone(a.dims))
}
