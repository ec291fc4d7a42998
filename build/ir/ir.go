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

// Package ir is the intermediate representation (IR) of tensor functions.
//
// A tensor function is a tree of nodes stored in an arena, the Tree.
// Nodes refer to their children by NodeID, an index in the arena.
// Nodes are immutable once added to the tree: rewriting a tree adds new
// nodes and leaves the previous ones untouched so that subtrees can be
// shared.
package ir

import (
	"iter"

	"github.com/gx-org/tensoreval/backend/value"
	"github.com/gx-org/tensoreval/build/fmterr"
	"github.com/gx-org/tensoreval/build/valuetype"
	"github.com/gx-org/tensoreval/interp/state"
)

// ----------------------------------------------------------------------------
// Types of node in the tree.
type (
	// NodeID is the index of a node in a tree.
	NodeID int32

	// Node in the tree.
	Node interface {
		// node marks a structure as a node structure.
		// It prevents external implementations of the interface.
		node()

		// Type returns the type of the value computed by the node.
		Type() valuetype.Type

		// Children returns the children of the node in evaluation order.
		Children() []NodeID

		// withChildren returns a copy of the node with different children.
		withChildren([]NodeID) Node

		// CompileSelf returns the instruction computing the value of the node
		// given the values of its children on the stack.
		CompileSelf(t *Tree, f value.Factory) (state.Instruction, error)

		// String returns a short description of the node.
		String() string
	}

	// Tree is an arena of nodes.
	// A tree can be read concurrently once it has been built.
	Tree struct {
		// parent stores the nodes with an identifier lower than base.
		parent *Tree
		base   int

		nodes   []Node
		reasons map[NodeID]error
	}
)

// InvalidNode is an identifier not referring to any node.
const InvalidNode NodeID = -1

// NewTree returns a new empty tree.
func NewTree() *Tree {
	return &Tree{reasons: make(map[NodeID]error)}
}

// Overlay returns a tree adding nodes on top of t.
// Nodes of t can be used in the overlay with the same identifiers while
// nodes added to the overlay are not visible from t. Overlays of the same
// tree can be used concurrently as long as t is not modified.
func (t *Tree) Overlay() *Tree {
	return &Tree{
		parent:  t,
		base:    t.Len(),
		reasons: make(map[NodeID]error),
	}
}

// Len returns the number of nodes in the tree.
func (t *Tree) Len() int {
	return t.base + len(t.nodes)
}

// Node returns a node given its identifier.
func (t *Tree) Node(id NodeID) Node {
	if int(id) < t.base {
		return t.parent.Node(id)
	}
	return t.nodes[int(id)-t.base]
}

// Type returns the type of a node.
func (t *Tree) Type(id NodeID) valuetype.Type {
	return t.Node(id).Type()
}

// Valid returns true if the identifier refers to a node of the tree.
func (t *Tree) Valid(id NodeID) bool {
	return id >= 0 && int(id) < t.Len()
}

// Reason returns the reason why a node has the error type,
// or nil if the error comes from one of its children.
func (t *Tree) Reason(id NodeID) error {
	if int(id) < t.base {
		return t.parent.Reason(id)
	}
	return t.reasons[id]
}

func (t *Tree) add(n Node) NodeID {
	t.nodes = append(t.nodes, n)
	return NodeID(t.Len() - 1)
}

// addErr adds a node with a reason explaining why its type is the error type.
func (t *Tree) addErr(n Node, format string, a ...any) NodeID {
	id := t.add(n)
	t.reasons[id] = fmterr.Errorf(int(id), n.String(), format, a...)
	return id
}

// anyError returns true if any of the nodes has the error type.
func (t *Tree) anyError(ids ...NodeID) bool {
	for _, id := range ids {
		if t.Type(id).IsError() {
			return true
		}
	}
	return false
}

// Rebuild returns a node identical to the node id but with different
// children. The node is returned unchanged if the children are the same.
// The children must have the same types than the children they replace.
func (t *Tree) Rebuild(id NodeID, children []NodeID) NodeID {
	n := t.Node(id)
	current := n.Children()
	same := len(current) == len(children)
	for i := 0; same && i < len(children); i++ {
		same = current[i] == children[i]
	}
	if same {
		return id
	}
	return t.add(n.withChildren(children))
}

// PostOrder iterates over all the nodes reachable from root. Children are
// visited before their parent and shared nodes are visited once.
func (t *Tree) PostOrder(root NodeID) iter.Seq[NodeID] {
	return func(yield func(NodeID) bool) {
		visited := make(map[NodeID]bool)
		var visit func(NodeID) bool
		visit = func(id NodeID) bool {
			if visited[id] {
				return true
			}
			visited[id] = true
			for _, child := range t.Node(id).Children() {
				if !visit(child) {
					return false
				}
			}
			return yield(id)
		}
		visit(root)
	}
}

// Verify returns the errors of all the nodes reachable from root.
func (t *Tree) Verify(root NodeID) error {
	if !t.Valid(root) {
		return fmterr.Internalf("node %d is not part of a tree of %d nodes", root, t.Len())
	}
	var errs fmterr.Errors
	for id := range t.PostOrder(root) {
		errs.Append(t.Reason(id))
	}
	if errs.Empty() && t.Type(root).IsError() {
		errs.Append(fmterr.Errorf(int(root), t.Node(root).String(), "tensor function has the error type"))
	}
	return errs.ToError()
}
