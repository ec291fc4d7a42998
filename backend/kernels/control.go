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
	"github.com/gx-org/tensoreval/interp/state"
)

// Inject returns an instruction pushing a parameter on the stack.
// The parameter is not copied.
func Inject(param int) state.Instruction {
	return state.NewInstruction(injectOp, param)
}

func injectOp(st *state.State, param any) {
	st.Push(st.Param(param.(int)))
}

// Const returns an instruction pushing a constant value on the stack.
func Const(v value.Value) state.Instruction {
	return state.NewInstruction(constOp, v)
}

func constOp(st *state.State, param any) {
	st.Push(param.(value.Value))
}

// JumpIfFalse returns an instruction popping a condition from the stack and
// jumping to target if the condition is 0.
func JumpIfFalse(target int) state.Instruction {
	return state.NewInstruction(jumpIfFalseOp, target)
}

func jumpIfFalseOp(st *state.State, param any) {
	if value.AsDouble(st.Pop()) == 0 {
		st.Jump(param.(int))
	}
}

// Jump returns an instruction jumping to target.
func Jump(target int) state.Instruction {
	return state.NewInstruction(jumpOp, target)
}

func jumpOp(st *state.State, param any) {
	st.Jump(param.(int))
}
