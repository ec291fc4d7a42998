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
	"iter"
	"slices"
	"strings"
)

type (
	// Index maps the labels of the mapped dimensions of a value to the
	// position of a dense subspace in the cells of that value.
	Index interface {
		// Size returns the number of subspaces.
		Size() int
		// NumDims returns the number of mapped dimensions.
		NumDims() int
		// Lookup returns the subspace of an address.
		Lookup(addr []string) (int, bool)
		// Address returns the labels of a subspace.
		// The returned slice must not be modified.
		Address(subspace int) []string
		// All iterates over all subspaces in a stable order.
		All() iter.Seq2[int, []string]
	}

	// Factory creates indices. The two factories of this package are
	// observationally identical and only differ by their performance.
	Factory interface {
		// newIndex returns a builder for an index of numDims mapped dimensions.
		newIndex(numDims, capacity int) indexBuilder
		// String returns the name of the factory.
		String() string
	}

	indexBuilder interface {
		// add returns the subspace of an address, adding the address if needed.
		add(addr []string) (int, bool)
		build() Index
	}
)

// addresses stores the addresses of all subspaces as a flat list of labels.
type addresses struct {
	numDims int
	labels  []string
	size    int
}

func (a *addresses) Size() int {
	return a.size
}

func (a *addresses) NumDims() int {
	return a.numDims
}

func (a *addresses) Address(subspace int) []string {
	start := subspace * a.numDims
	end := start + a.numDims
	return a.labels[start:end:end]
}

func (a *addresses) push(addr []string) int {
	a.labels = append(a.labels, addr...)
	a.size++
	return a.size - 1
}

// trivialIndex is the index of a value without mapped dimensions.
type trivialIndex struct{}

var denseIndex Index = trivialIndex{}

func (trivialIndex) Size() int    { return 1 }
func (trivialIndex) NumDims() int { return 0 }

func (trivialIndex) Lookup(addr []string) (int, bool) {
	return 0, len(addr) == 0
}

func (trivialIndex) Address(int) []string {
	return nil
}

func (trivialIndex) All() iter.Seq2[int, []string] {
	return func(yield func(int, []string) bool) {
		yield(0, nil)
	}
}

type trivialBuilder struct {
	added bool
}

func (b *trivialBuilder) add([]string) (int, bool) {
	isNew := !b.added
	b.added = true
	return 0, isNew
}

func (b *trivialBuilder) build() Index {
	return denseIndex
}

// SimpleFactory builds indices keeping their addresses sorted.
// Lookups use a binary search.
var SimpleFactory Factory = simpleFactory{}

type simpleFactory struct{}

func (simpleFactory) String() string {
	return "simple"
}

func (simpleFactory) newIndex(numDims, capacity int) indexBuilder {
	if numDims == 0 {
		return &trivialBuilder{}
	}
	return &simpleIndex{addresses: addresses{
		numDims: numDims,
		labels:  make([]string, 0, numDims*capacity),
	}}
}

type simpleIndex struct {
	addresses
	// sorted lists the subspaces ordered by address.
	sorted []int
}

func (idx *simpleIndex) search(addr []string) (int, bool) {
	return slices.BinarySearchFunc(idx.sorted, addr, func(subspace int, addr []string) int {
		return slices.Compare(idx.Address(subspace), addr)
	})
}

func (idx *simpleIndex) Lookup(addr []string) (int, bool) {
	if len(addr) != idx.numDims {
		return 0, false
	}
	pos, found := idx.search(addr)
	if !found {
		return 0, false
	}
	return idx.sorted[pos], true
}

func (idx *simpleIndex) All() iter.Seq2[int, []string] {
	return func(yield func(int, []string) bool) {
		for _, subspace := range idx.sorted {
			if !yield(subspace, idx.Address(subspace)) {
				return
			}
		}
	}
}

func (idx *simpleIndex) add(addr []string) (int, bool) {
	pos, found := idx.search(addr)
	if found {
		return idx.sorted[pos], false
	}
	subspace := idx.push(addr)
	idx.sorted = slices.Insert(idx.sorted, pos, subspace)
	return subspace, true
}

func (idx *simpleIndex) build() Index {
	return idx
}

// FastFactory builds indices storing their addresses in a hash table.
var FastFactory Factory = fastFactory{}

type fastFactory struct{}

func (fastFactory) String() string {
	return "fast"
}

func (fastFactory) newIndex(numDims, capacity int) indexBuilder {
	if numDims == 0 {
		return &trivialBuilder{}
	}
	return &fastIndex{
		addresses: addresses{
			numDims: numDims,
			labels:  make([]string, 0, numDims*capacity),
		},
		table: make(map[string]int, capacity),
	}
}

type fastIndex struct {
	addresses
	table map[string]int
}

func addressKey(addr []string) string {
	if len(addr) == 1 {
		return addr[0]
	}
	return strings.Join(addr, "\x00")
}

func (idx *fastIndex) Lookup(addr []string) (int, bool) {
	if len(addr) != idx.numDims {
		return 0, false
	}
	subspace, ok := idx.table[addressKey(addr)]
	return subspace, ok
}

func (idx *fastIndex) All() iter.Seq2[int, []string] {
	return func(yield func(int, []string) bool) {
		for subspace := range idx.size {
			if !yield(subspace, idx.Address(subspace)) {
				return
			}
		}
	}
}

func (idx *fastIndex) add(addr []string) (int, bool) {
	key := addressKey(addr)
	if subspace, ok := idx.table[key]; ok {
		return subspace, false
	}
	subspace := idx.push(addr)
	idx.table[key] = subspace
	return subspace, true
}

func (idx *fastIndex) build() Index {
	return idx
}
