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

package interp

import (
	"github.com/gx-org/tensoreval/backend/kernels"
	"github.com/gx-org/tensoreval/backend/value"
	"github.com/gx-org/tensoreval/build/ir"
	"github.com/gx-org/tensoreval/build/valuetype"
	"github.com/gx-org/tensoreval/interp/state"
	"github.com/pkg/errors"
)

type compiler struct {
	tree    *ir.Tree
	factory value.Factory
	prog    []state.Instruction
	params  []valuetype.Type
}

// compile appends the instructions computing a node to the program.
// Children are compiled before their parent such that their values are on
// the stack when the instruction of the parent is executed.
func (c *compiler) compile(id ir.NodeID) error {
	n := c.tree.Node(id)
	switch nT := n.(type) {
	case *ir.If:
		return c.compileIf(nT)
	case *ir.Inject:
		if err := c.bindParam(nT); err != nil {
			return err
		}
	}
	for _, child := range n.Children() {
		if err := c.compile(child); err != nil {
			return err
		}
	}
	in, err := n.CompileSelf(c.tree, c.factory)
	if err != nil {
		return errors.Wrapf(err, "cannot compile node #%d %s", id, n.String())
	}
	c.prog = append(c.prog, in)
	return nil
}

// compileIf compiles the condition followed by the two branches.
// Only one branch is executed:
//
//	cond
//	jump_if_false else
//	true branch
//	jump end
//	else: false branch
//	end:
func (c *compiler) compileIf(n *ir.If) error {
	if err := c.compile(n.Cond); err != nil {
		return err
	}
	jumpIfFalse := len(c.prog)
	c.prog = append(c.prog, state.Instruction{})
	if err := c.compileBranch(n.True, n.Type()); err != nil {
		return err
	}
	jump := len(c.prog)
	c.prog = append(c.prog, state.Instruction{})
	c.prog[jumpIfFalse] = kernels.JumpIfFalse(len(c.prog))
	if err := c.compileBranch(n.False, n.Type()); err != nil {
		return err
	}
	c.prog[jump] = kernels.Jump(len(c.prog))
	return nil
}

// compileBranch compiles a branch and converts its cells to the cell type
// of the If node if required.
func (c *compiler) compileBranch(id ir.NodeID, want valuetype.Type) error {
	if err := c.compile(id); err != nil {
		return err
	}
	got := c.tree.Type(id)
	if got.Equal(want) {
		return nil
	}
	cast, err := kernels.CellCast(got, want)
	if err != nil {
		return err
	}
	c.prog = append(c.prog, cast)
	return nil
}

// bindParam records the type of an injected parameter.
func (c *compiler) bindParam(n *ir.Inject) error {
	for len(c.params) <= n.Param {
		c.params = append(c.params, valuetype.Error())
	}
	current := c.params[n.Param]
	if current.IsError() {
		c.params[n.Param] = n.Type()
		return nil
	}
	if !current.Equal(n.Type()) {
		return errors.Errorf("parameter %d injected with types %s and %s", n.Param, current.String(), n.Type().String())
	}
	return nil
}
