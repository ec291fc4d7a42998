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

package ir

import (
	"fmt"
	"strings"
)

// Dump returns a human readable representation of the tree rooted at root.
// A node shared by several parents is printed once and referred to by its
// identifier afterwards.
func (t *Tree) Dump(root NodeID) string {
	var b strings.Builder
	printed := make(map[NodeID]bool)
	var dump func(id NodeID, depth int)
	dump = func(id NodeID, depth int) {
		indent := strings.Repeat("  ", depth)
		if printed[id] {
			fmt.Fprintf(&b, "%s#%d\n", indent, id)
			return
		}
		printed[id] = true
		n := t.Node(id)
		fmt.Fprintf(&b, "%s#%d %s -> %s\n", indent, id, n.String(), n.Type())
		for _, child := range n.Children() {
			dump(child, depth+1)
		}
	}
	dump(root, 0)
	return b.String()
}
