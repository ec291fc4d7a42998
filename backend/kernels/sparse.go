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
	"github.com/gx-org/tensoreval/backend/value"
	"github.com/gx-org/tensoreval/build/valuetype"
)

// sparsePlan combines the mapped dimensions of two operands.
// Subspaces of both operands are combined when their labels are equal
// along all the mapped dimensions the operands have in common.
type sparsePlan struct {
	// sources of the mapped dimensions of the result: i >= 0 is the i-th
	// mapped dimension of lhs, ^i the i-th mapped dimension of rhs.
	sources   []int
	lhsShared []int
	rhsShared []int
}

func newSparsePlan(lhs, rhs, out valuetype.Type) *sparsePlan {
	lhsMapped, rhsMapped := lhs.MappedDims(), rhs.MappedDims()
	p := &sparsePlan{}
	for _, dim := range out.MappedDims() {
		l, r := dimIndex(lhsMapped, dim.Name), dimIndex(rhsMapped, dim.Name)
		if l >= 0 {
			p.sources = append(p.sources, l)
		} else {
			p.sources = append(p.sources, ^r)
		}
		if l >= 0 && r >= 0 {
			p.lhsShared = append(p.lhsShared, l)
			p.rhsShared = append(p.rhsShared, r)
		}
	}
	return p
}

// each calls f for all the pairs of matching subspaces with the address
// of the result. The address is reused between calls.
func (p *sparsePlan) each(lhs, rhs value.Index, f func(l, r int, addr []string)) {
	addr := make([]string, len(p.sources))
	emit := func(l int, lAddr []string, r int, rAddr []string) {
		for i, src := range p.sources {
			if src >= 0 {
				addr[i] = lAddr[src]
			} else {
				addr[i] = rAddr[^src]
			}
		}
		f(l, r, addr)
	}
	if len(p.lhsShared) == 0 {
		for l, lAddr := range lhs.All() {
			for r, rAddr := range rhs.All() {
				emit(l, lAddr, r, rAddr)
			}
		}
		return
	}
	groups := make(map[string][]int, rhs.Size())
	for r, rAddr := range rhs.All() {
		key := addressKey(rAddr, p.rhsShared)
		groups[key] = append(groups[key], r)
	}
	for l, lAddr := range lhs.All() {
		for _, r := range groups[addressKey(lAddr, p.lhsShared)] {
			emit(l, lAddr, r, rhs.Address(r))
		}
	}
}
