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

// Package optimize rewrites tensor functions to use fused kernels.
//
// Each pass recognizes one computational idiom, for example the dot product
// of two vectors, and replaces the generic nodes computing it by a single
// fused node computing the same value. A pass never partially applies: if
// any of its preconditions fails, the nodes are left unchanged and the
// generic nodes compute the value.
package optimize

import (
	"log/slog"

	"github.com/gx-org/tensoreval/api/options"
	"github.com/gx-org/tensoreval/build/ir"
)

// Pass is an optimization pass.
type Pass struct {
	// Name of the pass, used to disable it in the options.
	Name string

	// rewrite returns the fused node replacing a node and true,
	// or false if the node does not match the idiom of the pass.
	rewrite func(t *ir.Tree, id ir.NodeID) (ir.NodeID, bool)
}

// Passes lists all the optimization passes in the order they run.
// Passes recognizing larger idioms run first.
var Passes = []Pass{
	{Name: "sum_max_dot_product", rewrite: sumMaxDotProduct},
	{Name: "sum_max_inv_hamming", rewrite: sumMaxInvHamming},
	{Name: "best_similarity", rewrite: bestSimilarity},
	{Name: "dense_dot_product", rewrite: denseDotProduct},
	{Name: "dense_xw_product", rewrite: denseXWProduct},
	{Name: "dense_simple_expand", rewrite: denseSimpleExpand},
}

// Optimize runs all the passes enabled by the options on the tree rooted at
// root and returns the root of the optimized tree. The nodes of the original
// tree are left unchanged.
func Optimize(t *ir.Tree, root ir.NodeID, opts *options.Options) ir.NodeID {
	if t.Type(root).IsError() {
		return root
	}
	for _, pass := range Passes {
		if !opts.PassEnabled(pass.Name) {
			continue
		}
		root = Run(t, root, pass, opts.Log())
	}
	return root
}

// Run a single pass over all the nodes of a tree, children first.
// A node is rebuilt when one of its children has been rewritten.
func Run(t *ir.Tree, root ir.NodeID, pass Pass, logger *slog.Logger) ir.NodeID {
	rewritten := make(map[ir.NodeID]ir.NodeID)
	for id := range t.PostOrder(root) {
		children := t.Node(id).Children()
		for i, child := range children {
			children[i] = rewritten[child]
		}
		current := t.Rebuild(id, children)
		if fused, ok := pass.rewrite(t, current); ok {
			logger.Debug("tensor function rewritten",
				slog.String("pass", pass.Name),
				slog.Int("node", int(current)),
				slog.String("fused", t.Node(fused).String()),
			)
			current = fused
		}
		rewritten[id] = current
	}
	return rewritten[root]
}
