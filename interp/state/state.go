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

// Package state implements the execution state of the interpreter.
package state

import (
	"github.com/gx-org/tensoreval/backend/value"
	"github.com/gx-org/tensoreval/base/stash"
	"github.com/pkg/errors"
)

type (
	// Op is the body of an instruction.
	// param is the parameter bound to the instruction at compile time.
	Op func(st *State, param any)

	// Instruction is an operation and its parameter.
	// Instructions are immutable and can be executed concurrently.
	Instruction struct {
		op    Op
		param any
	}

	// State of one evaluation: an operand stack, the parameters,
	// the stash owning temporary values and the program counter.
	// A state is never shared between goroutines.
	State struct {
		factory value.Factory
		stash   *stash.Stash
		params  []value.Value
		stack   []value.Value
		pc      int
	}

	// CorruptPlanError is raised when the instructions do not match the stack.
	CorruptPlanError struct {
		err error
	}
)

// NewInstruction returns a new instruction.
func NewInstruction(op Op, param any) Instruction {
	return Instruction{op: op, param: param}
}

// Param returns the parameter bound to the instruction.
func (in Instruction) Param() any {
	return in.param
}

// Valid returns true if the instruction has an operation.
func (in Instruction) Valid() bool {
	return in.op != nil
}

func (err *CorruptPlanError) Error() string {
	return "corrupt plan: " + err.err.Error()
}

// Unwrap the error.
func (err *CorruptPlanError) Unwrap() error {
	return err.err
}

func corruptf(format string, a ...any) {
	panic(&CorruptPlanError{err: errors.Errorf(format, a...)})
}

// New returns a new state.
func New(f value.Factory) *State {
	return &State{factory: f, stash: stash.New()}
}

// Factory returns the factory to build new values.
func (st *State) Factory() value.Factory {
	return st.factory
}

// Stash returns the stash owning the temporary values of the evaluation.
func (st *State) Stash() *stash.Stash {
	return st.stash
}

// Param returns a parameter of the evaluation.
func (st *State) Param(i int) value.Value {
	if i < 0 || i >= len(st.params) {
		corruptf("parameter %d out of range [0, %d)", i, len(st.params))
	}
	return st.params[i]
}

// Push a value on the stack.
func (st *State) Push(v value.Value) {
	st.stack = append(st.stack, v)
}

// Pop removes the value at the top of the stack.
func (st *State) Pop() value.Value {
	v := st.Peek(0)
	st.stack[len(st.stack)-1] = nil
	st.stack = st.stack[:len(st.stack)-1]
	return v
}

// Peek returns the n-th value from the top of the stack without removing it.
// Peek(0) is the top of the stack.
func (st *State) Peek(n int) value.Value {
	if n < 0 || n >= len(st.stack) {
		corruptf("cannot peek %d values in a stack of size %d", n+1, len(st.stack))
	}
	return st.stack[len(st.stack)-1-n]
}

// PopPush removes n values from the stack and pushes v.
func (st *State) PopPush(n int, v value.Value) {
	if n > len(st.stack) {
		corruptf("cannot pop %d values in a stack of size %d", n, len(st.stack))
	}
	clear(st.stack[len(st.stack)-n:])
	st.stack = append(st.stack[:len(st.stack)-n], v)
}

// StackSize returns the number of values on the stack.
func (st *State) StackSize() int {
	return len(st.stack)
}

// Jump sets the position of the next instruction to execute.
func (st *State) Jump(pc int) {
	st.pc = pc
}

// Run executes a program from its first instruction and returns the value
// left on the stack. Values allocated by a previous run are released.
func (st *State) Run(prog []Instruction, params []value.Value) value.Value {
	st.stash.Reset()
	clear(st.stack)
	st.stack = st.stack[:0]
	st.params = params
	st.pc = 0
	for st.pc < len(prog) {
		in := prog[st.pc]
		st.pc++
		in.op(st, in.param)
	}
	st.params = nil
	if len(st.stack) != 1 {
		corruptf("program left %d values on the stack instead of 1", len(st.stack))
	}
	return st.stack[0]
}
