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
	"fmt"
	"math"
	"slices"
	"strconv"
	"strings"

	"github.com/gx-org/backend/dtype"
	"github.com/gx-org/tensoreval/build/valuetype"
	"github.com/pkg/errors"
)

type (
	// Label of a value along one dimension: a name for a mapped dimension,
	// an index for an indexed dimension.
	Label struct {
		Name  string
		Index int
	}

	// Address maps dimension names to labels.
	Address map[string]Label

	specCell struct {
		addr  Address
		value float64
	}

	// Spec is an enumeration of the cells of a value by address.
	// It is used to compare values and to exchange them with other systems.
	Spec struct {
		typ   valuetype.Type
		cells map[string]specCell
	}
)

// L returns the label of a mapped dimension.
func L(name string) Label {
	return Label{Name: name}
}

// I returns the label of an indexed dimension.
func I(index int) Label {
	return Label{Index: index}
}

// NewSpec returns an empty spec for a given type.
func NewSpec(typ valuetype.Type) *Spec {
	return &Spec{typ: typ, cells: make(map[string]specCell)}
}

// Type returns the type of the spec.
func (s *Spec) Type() valuetype.Type {
	return s.typ
}

func (s *Spec) key(addr Address) string {
	var b strings.Builder
	b.WriteString("{")
	for i, dim := range s.typ.Dims() {
		if i > 0 {
			b.WriteString(",")
		}
		label := addr[dim.Name]
		b.WriteString(dim.Name + ":")
		if dim.IsMapped() {
			b.WriteString(label.Name)
		} else {
			b.WriteString(strconv.Itoa(label.Index))
		}
	}
	b.WriteString("}")
	return b.String()
}

// Add sets the value of the cell at a given address.
func (s *Spec) Add(addr Address, v float64) *Spec {
	s.cells[s.key(addr)] = specCell{addr: addr, value: v}
	return s
}

// Len returns the number of cells in the spec.
func (s *Spec) Len() int {
	return len(s.cells)
}

func (s *Spec) sortedKeys() []string {
	keys := make([]string, 0, len(s.cells))
	for k := range s.cells {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}

// Cell returns the value at an address or 0 if the spec has no such cell.
func (s *Spec) Cell(addr Address) float64 {
	return s.cells[s.key(addr)].value
}

// String returns a canonical representation of the spec.
func (s *Spec) String() string {
	var b strings.Builder
	b.WriteString(s.typ.String())
	b.WriteString(":{")
	for i, k := range s.sortedKeys() {
		if i > 0 {
			b.WriteString(",")
		}
		fmt.Fprintf(&b, "%s:%g", k, s.cells[k].value)
	}
	b.WriteString("}")
	return b.String()
}

// Equal returns true if both specs have the same type and the same cells.
// A missing cell is equal to a cell of value 0.
func (s *Spec) Equal(o *Spec) bool {
	return s.compare(o, func(a, b float64) bool {
		return a == b || (math.IsNaN(a) && math.IsNaN(b))
	})
}

// ApproxEqual returns true if both specs have the same type and cells
// differing by at most a relative error of eps.
func (s *Spec) ApproxEqual(o *Spec, eps float64) bool {
	return s.compare(o, func(a, b float64) bool {
		if a == b || (math.IsNaN(a) && math.IsNaN(b)) {
			return true
		}
		diff := math.Abs(a - b)
		return diff <= eps*math.Max(1, math.Max(math.Abs(a), math.Abs(b)))
	})
}

func (s *Spec) compare(o *Spec, eq func(a, b float64) bool) bool {
	if !s.typ.Equal(o.typ) {
		return false
	}
	for k, c := range s.cells {
		if !eq(c.value, o.cells[k].value) {
			return false
		}
	}
	for k, c := range o.cells {
		if _, ok := s.cells[k]; !ok && !eq(c.value, 0) {
			return false
		}
	}
	return true
}

// SpecFromValue enumerates all the cells of a value.
func SpecFromValue(v Value) *Spec {
	typ := v.Type()
	spec := NewSpec(typ)
	cells := Doubles(v)
	mapped := typ.MappedDims()
	indexed := typ.IndexedDims()
	size := typ.DenseSubspaceSize()
	for subspace, labels := range v.Index().All() {
		for offset := range size {
			addr := make(Address, len(mapped)+len(indexed))
			for i, dim := range mapped {
				addr[dim.Name] = L(labels[i])
			}
			rem := offset
			for i := len(indexed) - 1; i >= 0; i-- {
				addr[indexed[i].Name] = I(rem % indexed[i].Size)
				rem /= indexed[i].Size
			}
			spec.Add(addr, cells[subspace*size+offset])
		}
	}
	return spec
}

// ToValue builds a value from the spec.
func (s *Spec) ToValue(f Factory) (Value, error) {
	if s.typ.IsError() {
		return nil, errors.Errorf("cannot build a value of type %s", s.typ.String())
	}
	switch s.typ.CellType() {
	case valuetype.Double:
		return specToValue[float64](s, f)
	case valuetype.Float:
		return specToValue[float32](s, f)
	case valuetype.Int8:
		return specToValue[int8](s, f)
	case valuetype.BFloat16:
		return specToValue[dtype.Bfloat16T](s, f)
	}
	return nil, errors.Errorf("cell type %s not supported", s.typ.CellType())
}

// MustValue builds a value from the spec and panics if the spec is invalid.
func (s *Spec) MustValue(f Factory) Value {
	v, err := s.ToValue(f)
	if err != nil {
		panic(err)
	}
	return v
}

func specToValue[T Cell](s *Spec, f Factory) (Value, error) {
	store := Store[T]()
	mapped := s.typ.MappedDims()
	indexed := s.typ.IndexedDims()
	b := NewBuilder[T](f, nil, s.typ, len(s.cells))
	labels := make([]string, len(mapped))
	for _, k := range s.sortedKeys() {
		c := s.cells[k]
		for i, dim := range mapped {
			label, ok := c.addr[dim.Name]
			if !ok {
				return nil, errors.Errorf("address %s has no label for dimension %s", k, dim.Name)
			}
			labels[i] = label.Name
		}
		offset := 0
		for _, dim := range indexed {
			label, ok := c.addr[dim.Name]
			if !ok || label.Index < 0 || label.Index >= dim.Size {
				return nil, errors.Errorf("address %s out of range for dimension %s", k, dim.String())
			}
			offset = offset*dim.Size + label.Index
		}
		b.AddSubspace(labels)[offset] = store(c.value)
	}
	return b.Build(), nil
}
