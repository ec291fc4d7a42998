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

// Package interp compiles tensor functions into programs and evaluates them.
//
// A program is a sequence of instructions executed by a stack machine
// (see [github.com/gx-org/tensoreval/interp/state]). A function is compiled
// once and can then be evaluated concurrently, each goroutine using its own
// context.
package interp

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/gx-org/tensoreval/api/options"
	"github.com/gx-org/tensoreval/backend/value"
	"github.com/gx-org/tensoreval/build/fmterr"
	"github.com/gx-org/tensoreval/build/ir"
	"github.com/gx-org/tensoreval/build/valuetype"
	"github.com/gx-org/tensoreval/fmt/fmtvalue"
	"github.com/gx-org/tensoreval/interp/state"
	"github.com/gx-org/tensoreval/optimize"
	"github.com/pkg/errors"
	"go.uber.org/multierr"
)

type (
	// Function is a compiled tensor function.
	// A function is immutable and can be shared between goroutines.
	Function struct {
		factory value.Factory
		tree    *ir.Tree
		root    ir.NodeID
		params  []valuetype.Type
		prog    []state.Instruction
		logger  *slog.Logger
	}

	// Context owns the memory used to evaluate a function.
	// A context is used by one goroutine at a time.
	Context struct {
		st *state.State
	}
)

// New compiles the tensor function rooted at root. The function is
// optimized first unless optimizations are disabled in the options.
// Fused nodes are added to an overlay of t: t is not modified and can be
// compiled concurrently.
// Values created by the function use indices created by the factory.
func New(f value.Factory, t *ir.Tree, root ir.NodeID, opts ...options.Option) (*Function, error) {
	if !t.Valid(root) {
		return nil, errors.Errorf("invalid root node %d", root)
	}
	if err := t.Verify(root); err != nil {
		return nil, err
	}
	o := options.New(opts...)
	t = t.Overlay()
	root = optimize.Optimize(t, root, o)
	if err := t.Verify(root); err != nil {
		return nil, fmterr.Internal(err)
	}
	c := &compiler{tree: t, factory: f}
	if err := c.compile(root); err != nil {
		return nil, err
	}
	o.Log().Debug("tensor function compiled",
		slog.Int("nodes", t.Len()),
		slog.Int("instructions", len(c.prog)),
		slog.String("type", t.Type(root).String()),
	)
	return &Function{
		factory: f,
		tree:    t,
		root:    root,
		params:  c.params,
		prog:    c.prog,
		logger:  o.Log(),
	}, nil
}

// Root returns the root of the tree after optimization.
func (fn *Function) Root() ir.NodeID {
	return fn.root
}

// Tree returns the tree storing the nodes of the function,
// an overlay of the tree given to New.
func (fn *Function) Tree() *ir.Tree {
	return fn.tree
}

// Type returns the type of the value computed by the function.
func (fn *Function) Type() valuetype.Type {
	return fn.tree.Type(fn.root)
}

// NumParams returns the number of parameters expected by the function.
func (fn *Function) NumParams() int {
	return len(fn.params)
}

// NewContext returns a new context to evaluate the function.
func (fn *Function) NewContext() *Context {
	return &Context{st: state.New(fn.factory)}
}

func (fn *Function) checkParams(params []value.Value) error {
	if len(params) != len(fn.params) {
		return errors.Errorf("got %d parameters but want %d", len(params), len(fn.params))
	}
	var err error
	for i, param := range params {
		want := fn.params[i]
		if param == nil {
			err = multierr.Append(err, errors.Errorf("parameter %d is nil", i))
			continue
		}
		if want.IsError() {
			continue
		}
		if got := param.Type(); !got.Equal(want) {
			err = multierr.Append(err, errors.Errorf("parameter %d has type %s but want %s", i, got.String(), want.String()))
		}
	}
	return err
}

// Eval evaluates the function given its parameters. The result may refer
// to memory owned by the context and remains valid until the next call
// to Eval with the same context.
func (fn *Function) Eval(ctx *Context, params ...value.Value) (result value.Value, err error) {
	if err := fn.checkParams(params); err != nil {
		return nil, err
	}
	defer func() {
		r := recover()
		if r == nil {
			return
		}
		corrupt, ok := r.(*state.CorruptPlanError)
		if !ok {
			panic(r)
		}
		result, err = nil, fmterr.Internal(corrupt)
	}()
	result = ctx.st.Run(fn.prog, params)
	if fn.logger.Enabled(context.Background(), slog.LevelDebug) {
		fn.logger.Debug("tensor function evaluated", slog.String("result", fmtvalue.Sprint(result)))
	}
	return result, nil
}

// String returns the type of the function and its tree.
func (fn *Function) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s (%d instructions)\n", fn.Type(), len(fn.prog))
	b.WriteString(fn.tree.Dump(fn.root))
	return b.String()
}
