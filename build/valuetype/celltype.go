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

package valuetype

import "github.com/gx-org/backend/dtype"

// CellType is the numeric representation of the cells of a tensor.
type CellType uint

// Cell types supported by the engine.
const (
	InvalidCell = CellType(dtype.Invalid)

	Double   = CellType(dtype.Float64)
	Float    = CellType(dtype.Float32)
	BFloat16 = CellType(dtype.Bfloat16)

	// Int8 has no counterpart in the backend data types.
	Int8 = CellType(iota + dtype.MaxDataType)
)

// CellTypes lists all valid cell types.
var CellTypes = []CellType{Double, Float, BFloat16, Int8}

// DataType returns the backend data type of the cell type.
// Int8 returns dtype.Invalid.
func (ct CellType) DataType() dtype.DataType {
	switch ct {
	case Double, Float, BFloat16:
		return dtype.DataType(ct)
	}
	return dtype.Invalid
}

// Valid returns true if the cell type is one of the supported cell types.
func (ct CellType) Valid() bool {
	switch ct {
	case Double, Float, BFloat16, Int8:
		return true
	}
	return false
}

// Decay returns the cell type used to store the result of a computation
// on cells of type ct.
func (ct CellType) Decay() CellType {
	if ct == Double {
		return Double
	}
	return Float
}

// String returns the name of the cell type as used in type specs.
func (ct CellType) String() string {
	switch ct {
	case Double:
		return "double"
	case Float:
		return "float"
	case BFloat16:
		return "bfloat16"
	case Int8:
		return "int8"
	}
	return "invalid"
}

// CellTypeFromString returns the cell type given its name.
func CellTypeFromString(s string) (CellType, bool) {
	for _, ct := range CellTypes {
		if ct.String() == s {
			return ct, true
		}
	}
	return InvalidCell, false
}

// Unify returns the cell type able to represent cells of both a and b.
func Unify(a, b CellType) CellType {
	if a == b {
		return a
	}
	if a == Double || b == Double {
		return Double
	}
	return Float
}
