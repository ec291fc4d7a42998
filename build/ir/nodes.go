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
	"slices"
	"strconv"
	"strings"

	"github.com/gx-org/tensoreval/backend/kernels"
	"github.com/gx-org/tensoreval/backend/value"
	"github.com/gx-org/tensoreval/build/fmterr"
	"github.com/gx-org/tensoreval/build/ops"
	"github.com/gx-org/tensoreval/build/valuetype"
	"github.com/gx-org/tensoreval/interp/state"
	"github.com/pkg/errors"
)

// ----------------------------------------------------------------------------
// Generic nodes.
type (
	// Inject binds an external parameter given its index.
	Inject struct {
		Param int
		typ   valuetype.Type
	}

	// Const is a constant value.
	Const struct {
		Value value.Value
	}

	// Join combines the cells of two tensors with matching addresses.
	Join struct {
		Lhs, Rhs NodeID
		Op       ops.Binary
		typ      valuetype.Type
	}

	// Reduce aggregates a tensor over a set of dimensions.
	// An empty set of dimensions reduces all the dimensions.
	Reduce struct {
		Child NodeID
		Aggr  ops.Aggr
		Dims  []string
		typ   valuetype.Type
	}

	// Map applies a function to all the cells of a tensor.
	Map struct {
		Child NodeID
		Op    ops.Unary
		typ   valuetype.Type
	}

	// Rename renames dimensions of a tensor.
	Rename struct {
		Child    NodeID
		From, To []string
		typ      valuetype.Type
	}

	// PeekKind specifies how a peek dimension is addressed.
	PeekKind int

	// PeekDim selects a single address along a dimension.
	PeekDim struct {
		Name  string
		Kind  PeekKind
		Label string
		Index int
		Expr  NodeID
	}

	// Peek selects a sub-tensor with fixed or computed addresses.
	Peek struct {
		Child NodeID
		Dims  []PeekDim
		typ   valuetype.Type
	}

	// Merge combines two tensors with the same dimensions. Cells present
	// in both tensors are combined with a binary operator.
	Merge struct {
		Lhs, Rhs NodeID
		Op       ops.Binary
		typ      valuetype.Type
	}

	// Concat concatenates two tensors along a dimension.
	Concat struct {
		Lhs, Rhs NodeID
		Dim      string
		typ      valuetype.Type
	}

	// CellCast converts the cells of a tensor.
	CellCast struct {
		Child NodeID
		Cell  valuetype.CellType
		typ   valuetype.Type
	}

	// CreateCell is the address of a cell and the scalar expression computing it.
	CreateCell struct {
		Addr value.Address
		Expr NodeID
	}

	// Create builds a tensor from scalar expressions.
	// Cells without an expression are 0.
	Create struct {
		Cells []CreateCell
		typ   valuetype.Type
	}

	// If evaluates only one of its two branches depending on a condition.
	If struct {
		Cond, True, False NodeID
		typ               valuetype.Type
	}
)

// Kinds of peek dimensions.
const (
	PeekByLabel PeekKind = iota
	PeekByIndex
	PeekByExpr
)

// PeekLabel selects a label on a dimension.
func PeekLabel(name, label string) PeekDim {
	return PeekDim{Name: name, Kind: PeekByLabel, Label: label, Expr: InvalidNode}
}

// PeekIndex selects an index on a dimension.
func PeekIndex(name string, index int) PeekDim {
	return PeekDim{Name: name, Kind: PeekByIndex, Index: index, Expr: InvalidNode}
}

// PeekExpr selects the label or index computed by a scalar expression.
func PeekExpr(name string, expr NodeID) PeekDim {
	return PeekDim{Name: name, Kind: PeekByExpr, Expr: expr}
}

func (d PeekDim) String() string {
	switch d.Kind {
	case PeekByLabel:
		return fmt.Sprintf("%s:%q", d.Name, d.Label)
	case PeekByIndex:
		return fmt.Sprintf("%s:%d", d.Name, d.Index)
	}
	return fmt.Sprintf("%s:#%d", d.Name, d.Expr)
}

// ----------------------------------------------------------------------------
// Constructors.

// Inject adds a node binding an external parameter of a given type.
func (t *Tree) Inject(param int, typ valuetype.Type) NodeID {
	n := &Inject{Param: param, typ: typ}
	if param < 0 {
		n.typ = valuetype.Error()
		return t.addErr(n, "invalid parameter index %d", param)
	}
	if typ.IsError() {
		return t.addErr(n, "parameter %d has the error type", param)
	}
	return t.add(n)
}

// Const adds a constant value.
func (t *Tree) Const(v value.Value) NodeID {
	return t.add(&Const{Value: v})
}

// ConstScalar adds a constant scalar.
func (t *Tree) ConstScalar(x float64) NodeID {
	return t.Const(value.Scalar(x))
}

// Join adds a node joining two tensors.
func (t *Tree) Join(lhs, rhs NodeID, op ops.Binary) NodeID {
	n := &Join{Lhs: lhs, Rhs: rhs, Op: op, typ: valuetype.Error()}
	if t.anyError(lhs, rhs) {
		return t.add(n)
	}
	if !op.Valid() {
		return t.addErr(n, "invalid join operator")
	}
	lhsT, rhsT := t.Type(lhs), t.Type(rhs)
	if n.typ = valuetype.Join(lhsT, rhsT); n.typ.IsError() {
		return t.addErr(n, "cannot join %s with %s", lhsT, rhsT)
	}
	return t.add(n)
}

// Reduce adds a node aggregating a tensor over a set of dimensions.
func (t *Tree) Reduce(child NodeID, aggr ops.Aggr, dims ...string) NodeID {
	n := &Reduce{Child: child, Aggr: aggr, Dims: dims, typ: valuetype.Error()}
	if t.anyError(child) {
		return t.add(n)
	}
	if !aggr.Valid() {
		return t.addErr(n, "invalid aggregator")
	}
	childT := t.Type(child)
	if n.typ = valuetype.Reduce(childT, dims); n.typ.IsError() {
		return t.addErr(n, "cannot reduce %s over %v", childT, dims)
	}
	return t.add(n)
}

// Map adds a node applying a function to all cells of a tensor.
func (t *Tree) Map(child NodeID, op ops.Unary) NodeID {
	n := &Map{Child: child, Op: op, typ: valuetype.Error()}
	if t.anyError(child) {
		return t.add(n)
	}
	if !op.Valid() {
		return t.addErr(n, "invalid map function")
	}
	n.typ = valuetype.Map(t.Type(child))
	return t.add(n)
}

// Rename adds a node renaming dimensions of a tensor.
func (t *Tree) Rename(child NodeID, from, to []string) NodeID {
	n := &Rename{Child: child, From: from, To: to, typ: valuetype.Error()}
	if t.anyError(child) {
		return t.add(n)
	}
	childT := t.Type(child)
	if n.typ = valuetype.Rename(childT, from, to); n.typ.IsError() {
		return t.addErr(n, "cannot rename %v to %v in %s", from, to, childT)
	}
	return t.add(n)
}

// Peek adds a node selecting a sub-tensor.
func (t *Tree) Peek(child NodeID, dims ...PeekDim) NodeID {
	n := &Peek{Child: child, Dims: dims, typ: valuetype.Error()}
	if t.anyError(n.Children()...) {
		return t.add(n)
	}
	childT := t.Type(child)
	names := make([]string, len(dims))
	for i, dim := range dims {
		names[i] = dim.Name
		if dim.Kind != PeekByExpr {
			continue
		}
		if exprT := t.Type(dim.Expr); !exprT.IsScalar() {
			return t.addErr(n, "address of dimension %s computed by a non scalar expression of type %s", dim.Name, exprT)
		}
	}
	if slices.Contains(names, "") || len(slices.Compact(slices.Sorted(slices.Values(names)))) != len(names) {
		return t.addErr(n, "invalid peek dimensions %v", names)
	}
	if n.typ = valuetype.Peek(childT, names); n.typ.IsError() {
		return t.addErr(n, "cannot peek %v in %s", names, childT)
	}
	return t.add(n)
}

// Merge adds a node merging two tensors.
func (t *Tree) Merge(lhs, rhs NodeID, op ops.Binary) NodeID {
	n := &Merge{Lhs: lhs, Rhs: rhs, Op: op, typ: valuetype.Error()}
	if t.anyError(lhs, rhs) {
		return t.add(n)
	}
	if !op.Valid() {
		return t.addErr(n, "invalid merge operator")
	}
	lhsT, rhsT := t.Type(lhs), t.Type(rhs)
	if n.typ = valuetype.Merge(lhsT, rhsT); n.typ.IsError() {
		return t.addErr(n, "cannot merge %s with %s", lhsT, rhsT)
	}
	return t.add(n)
}

// Concat adds a node concatenating two tensors along a dimension.
func (t *Tree) Concat(lhs, rhs NodeID, dim string) NodeID {
	n := &Concat{Lhs: lhs, Rhs: rhs, Dim: dim, typ: valuetype.Error()}
	if t.anyError(lhs, rhs) {
		return t.add(n)
	}
	lhsT, rhsT := t.Type(lhs), t.Type(rhs)
	if n.typ = valuetype.Concat(lhsT, rhsT, dim); n.typ.IsError() {
		return t.addErr(n, "cannot concatenate %s with %s along %s", lhsT, rhsT, dim)
	}
	return t.add(n)
}

// CellCast adds a node converting the cells of a tensor.
func (t *Tree) CellCast(child NodeID, cell valuetype.CellType) NodeID {
	n := &CellCast{Child: child, Cell: cell, typ: valuetype.Error()}
	if t.anyError(child) {
		return t.add(n)
	}
	childT := t.Type(child)
	if n.typ = valuetype.CellCast(childT, cell); n.typ.IsError() {
		return t.addErr(n, "cannot cast %s to %s cells", childT, cell)
	}
	return t.add(n)
}

// Create adds a node building a tensor of a given type from scalar expressions.
func (t *Tree) Create(typ valuetype.Type, cells ...CreateCell) NodeID {
	n := &Create{Cells: cells, typ: typ}
	if t.anyError(n.Children()...) {
		n.typ = valuetype.Error()
		return t.add(n)
	}
	if typ.IsError() {
		return t.addErr(n, "cannot create a tensor of the error type")
	}
	seen := make(map[string]bool, len(cells))
	for _, cell := range cells {
		if exprT := t.Type(cell.Expr); !exprT.IsScalar() {
			n.typ = valuetype.Error()
			return t.addErr(n, "cell computed by a non scalar expression of type %s", exprT)
		}
		key, err := createKey(typ, cell.Addr)
		if err != nil {
			n.typ = valuetype.Error()
			return t.addErr(n, "%v", err)
		}
		if seen[key] {
			n.typ = valuetype.Error()
			return t.addErr(n, "duplicated address %s", key)
		}
		seen[key] = true
	}
	return t.add(n)
}

func createKey(typ valuetype.Type, addr value.Address) (string, error) {
	if len(addr) != len(typ.Dims()) {
		return "", errors.Errorf("address %v does not match type %s", addr, typ)
	}
	var b strings.Builder
	for _, dim := range typ.Dims() {
		label, ok := addr[dim.Name]
		if !ok {
			return "", errors.Errorf("address %v has no label for dimension %s", addr, dim.Name)
		}
		if dim.IsMapped() {
			b.WriteString(dim.Name + ":" + label.Name + ",")
			continue
		}
		if label.Index < 0 || label.Index >= dim.Size {
			return "", errors.Errorf("index %d out of range for dimension %s", label.Index, dim)
		}
		b.WriteString(dim.Name + ":" + strconv.Itoa(label.Index) + ",")
	}
	return b.String(), nil
}

// If adds a node evaluating one of two branches.
// The true branch is evaluated if the condition is not 0.
func (t *Tree) If(cond, ifTrue, ifFalse NodeID) NodeID {
	n := &If{Cond: cond, True: ifTrue, False: ifFalse, typ: valuetype.Error()}
	if t.anyError(cond, ifTrue, ifFalse) {
		return t.add(n)
	}
	if condT := t.Type(cond); !condT.IsScalar() {
		return t.addErr(n, "condition has type %s but want a scalar", condT)
	}
	trueT, falseT := t.Type(ifTrue), t.Type(ifFalse)
	if n.typ = valuetype.Either(trueT, falseT); n.typ.IsError() {
		return t.addErr(n, "branches have incompatible types %s and %s", trueT, falseT)
	}
	return t.add(n)
}

// ----------------------------------------------------------------------------
// Node implementations.

func (*Inject) node() {}

// Type of the parameter.
func (n *Inject) Type() valuetype.Type { return n.typ }

// Children of the node.
func (n *Inject) Children() []NodeID { return nil }

func (n *Inject) withChildren([]NodeID) Node { return n }

// CompileSelf returns the instruction pushing the parameter on the stack.
func (n *Inject) CompileSelf(*Tree, value.Factory) (state.Instruction, error) {
	return kernels.Inject(n.Param), nil
}

func (n *Inject) String() string { return fmt.Sprintf("inject(%d)", n.Param) }

func (*Const) node() {}

// Type of the constant.
func (n *Const) Type() valuetype.Type { return n.Value.Type() }

// Children of the node.
func (n *Const) Children() []NodeID { return nil }

func (n *Const) withChildren([]NodeID) Node { return n }

// CompileSelf returns the instruction pushing the constant on the stack.
// The constant is rebuilt with the factory of the plan.
func (n *Const) CompileSelf(_ *Tree, f value.Factory) (state.Instruction, error) {
	v, err := value.SpecFromValue(n.Value).ToValue(f)
	if err != nil {
		return state.Instruction{}, err
	}
	return kernels.Const(v), nil
}

func (n *Const) String() string {
	if n.Value.Type().IsScalar() {
		return fmt.Sprintf("const(%g)", value.AsDouble(n.Value))
	}
	return "const(" + n.Value.Type().String() + ")"
}

func (*Join) node() {}

// Type of the result.
func (n *Join) Type() valuetype.Type { return n.typ }

// Children of the node.
func (n *Join) Children() []NodeID { return []NodeID{n.Lhs, n.Rhs} }

func (n *Join) withChildren(c []NodeID) Node {
	cp := *n
	cp.Lhs, cp.Rhs = c[0], c[1]
	return &cp
}

// CompileSelf returns the instruction joining the two values at the top of the stack.
func (n *Join) CompileSelf(t *Tree, _ value.Factory) (state.Instruction, error) {
	return kernels.Join(t.Type(n.Lhs), t.Type(n.Rhs), n.typ, n.Op)
}

func (n *Join) String() string { return "join(" + n.Op.String() + ")" }

func (*Reduce) node() {}

// Type of the result.
func (n *Reduce) Type() valuetype.Type { return n.typ }

// Children of the node.
func (n *Reduce) Children() []NodeID { return []NodeID{n.Child} }

func (n *Reduce) withChildren(c []NodeID) Node {
	cp := *n
	cp.Child = c[0]
	return &cp
}

// CompileSelf returns the instruction aggregating the value at the top of the stack.
func (n *Reduce) CompileSelf(t *Tree, _ value.Factory) (state.Instruction, error) {
	return kernels.Reduce(t.Type(n.Child), n.typ, n.Aggr)
}

func (n *Reduce) String() string {
	return fmt.Sprintf("reduce(%s,[%s])", n.Aggr, strings.Join(n.Dims, ","))
}

func (*Map) node() {}

// Type of the result.
func (n *Map) Type() valuetype.Type { return n.typ }

// Children of the node.
func (n *Map) Children() []NodeID { return []NodeID{n.Child} }

func (n *Map) withChildren(c []NodeID) Node {
	cp := *n
	cp.Child = c[0]
	return &cp
}

// CompileSelf returns the instruction mapping the value at the top of the stack.
func (n *Map) CompileSelf(t *Tree, _ value.Factory) (state.Instruction, error) {
	return kernels.Map(t.Type(n.Child), n.typ, n.Op)
}

func (n *Map) String() string { return "map(" + n.Op.String() + ")" }

func (*Rename) node() {}

// Type of the result.
func (n *Rename) Type() valuetype.Type { return n.typ }

// Children of the node.
func (n *Rename) Children() []NodeID { return []NodeID{n.Child} }

func (n *Rename) withChildren(c []NodeID) Node {
	cp := *n
	cp.Child = c[0]
	return &cp
}

// CompileSelf returns the instruction renaming the value at the top of the stack.
func (n *Rename) CompileSelf(t *Tree, _ value.Factory) (state.Instruction, error) {
	return kernels.Rename(t.Type(n.Child), n.typ, n.From, n.To)
}

func (n *Rename) String() string {
	return fmt.Sprintf("rename([%s],[%s])", strings.Join(n.From, ","), strings.Join(n.To, ","))
}

func (*Peek) node() {}

// Type of the result.
func (n *Peek) Type() valuetype.Type { return n.typ }

// Children of the node: the peeked tensor followed by the expressions
// computing addresses.
func (n *Peek) Children() []NodeID {
	children := []NodeID{n.Child}
	for _, dim := range n.Dims {
		if dim.Kind == PeekByExpr {
			children = append(children, dim.Expr)
		}
	}
	return children
}

func (n *Peek) withChildren(c []NodeID) Node {
	cp := *n
	cp.Child = c[0]
	cp.Dims = slices.Clone(n.Dims)
	next := 1
	for i := range cp.Dims {
		if cp.Dims[i].Kind == PeekByExpr {
			cp.Dims[i].Expr = c[next]
			next++
		}
	}
	return &cp
}

// CompileSelf returns the instruction selecting a sub-tensor.
// Fixed addresses are converted to the representation of the dimension:
// a label for a mapped dimension, an index for an indexed dimension.
func (n *Peek) CompileSelf(t *Tree, _ value.Factory) (state.Instruction, error) {
	childT := t.Type(n.Child)
	dims := make([]kernels.PeekDim, len(n.Dims))
	numChildren := 0
	for i, dim := range n.Dims {
		kd := kernels.PeekDim{Name: dim.Name, Child: -1}
		d, _ := childT.Dim(dim.Name)
		switch {
		case dim.Kind == PeekByExpr:
			kd.Child = numChildren
			numChildren++
		case d.IsMapped() && dim.Kind == PeekByLabel:
			kd.Label = dim.Label
		case d.IsMapped():
			kd.Label = strconv.Itoa(dim.Index)
		case dim.Kind == PeekByIndex:
			kd.Index = dim.Index
		default:
			index, err := strconv.Atoi(dim.Label)
			if err != nil {
				index = -1
			}
			kd.Index = index
		}
		dims[i] = kd
	}
	return kernels.Peek(childT, n.typ, dims, numChildren)
}

func (n *Peek) String() string {
	ss := make([]string, len(n.Dims))
	for i, dim := range n.Dims {
		ss[i] = dim.String()
	}
	return "peek(" + strings.Join(ss, ",") + ")"
}

func (*Merge) node() {}

// Type of the result.
func (n *Merge) Type() valuetype.Type { return n.typ }

// Children of the node.
func (n *Merge) Children() []NodeID { return []NodeID{n.Lhs, n.Rhs} }

func (n *Merge) withChildren(c []NodeID) Node {
	cp := *n
	cp.Lhs, cp.Rhs = c[0], c[1]
	return &cp
}

// CompileSelf returns the instruction merging the two values at the top of the stack.
func (n *Merge) CompileSelf(t *Tree, _ value.Factory) (state.Instruction, error) {
	return kernels.Merge(t.Type(n.Lhs), t.Type(n.Rhs), n.typ, n.Op)
}

func (n *Merge) String() string { return "merge(" + n.Op.String() + ")" }

func (*Concat) node() {}

// Type of the result.
func (n *Concat) Type() valuetype.Type { return n.typ }

// Children of the node.
func (n *Concat) Children() []NodeID { return []NodeID{n.Lhs, n.Rhs} }

func (n *Concat) withChildren(c []NodeID) Node {
	cp := *n
	cp.Lhs, cp.Rhs = c[0], c[1]
	return &cp
}

// CompileSelf returns the instruction concatenating the two values at the top of the stack.
func (n *Concat) CompileSelf(t *Tree, _ value.Factory) (state.Instruction, error) {
	return kernels.Concat(t.Type(n.Lhs), t.Type(n.Rhs), n.typ, n.Dim)
}

func (n *Concat) String() string { return "concat(" + n.Dim + ")" }

func (*CellCast) node() {}

// Type of the result.
func (n *CellCast) Type() valuetype.Type { return n.typ }

// Children of the node.
func (n *CellCast) Children() []NodeID { return []NodeID{n.Child} }

func (n *CellCast) withChildren(c []NodeID) Node {
	cp := *n
	cp.Child = c[0]
	return &cp
}

// CompileSelf returns the instruction converting the value at the top of the stack.
func (n *CellCast) CompileSelf(t *Tree, _ value.Factory) (state.Instruction, error) {
	return kernels.CellCast(t.Type(n.Child), n.typ)
}

func (n *CellCast) String() string { return "cell_cast(" + n.Cell.String() + ")" }

func (*Create) node() {}

// Type of the result.
func (n *Create) Type() valuetype.Type { return n.typ }

// Children of the node: the expressions computing the cells.
func (n *Create) Children() []NodeID {
	children := make([]NodeID, len(n.Cells))
	for i, cell := range n.Cells {
		children[i] = cell.Expr
	}
	return children
}

func (n *Create) withChildren(c []NodeID) Node {
	cp := *n
	cp.Cells = slices.Clone(n.Cells)
	for i := range cp.Cells {
		cp.Cells[i].Expr = c[i]
	}
	return &cp
}

// CompileSelf returns the instruction building the tensor from the scalars on the stack.
func (n *Create) CompileSelf(*Tree, value.Factory) (state.Instruction, error) {
	addrs := make([]value.Address, len(n.Cells))
	for i, cell := range n.Cells {
		addrs[i] = cell.Addr
	}
	return kernels.Create(n.typ, addrs)
}

func (n *Create) String() string { return fmt.Sprintf("create(%d cells)", len(n.Cells)) }

func (*If) node() {}

// Type of the result.
func (n *If) Type() valuetype.Type { return n.typ }

// Children of the node.
func (n *If) Children() []NodeID { return []NodeID{n.Cond, n.True, n.False} }

func (n *If) withChildren(c []NodeID) Node {
	cp := *n
	cp.Cond, cp.True, cp.False = c[0], c[1], c[2]
	return &cp
}

// CompileSelf returns an error: only one branch of an If node is evaluated,
// which requires the interpreter to compile the jumps around the branches.
func (n *If) CompileSelf(*Tree, value.Factory) (state.Instruction, error) {
	return state.Instruction{}, fmterr.Internalf("if nodes cannot be compiled into a single instruction")
}

func (n *If) String() string { return "if" }
