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

package fmterr

import (
	"fmt"
	"io"

	"github.com/pkg/errors"
)

type (
	// ErrorAt is an error attached to a node of a tensor function.
	ErrorAt interface {
		error
		Node() int
		Src() string
		Err() error
	}

	errorAt struct {
		node int
		src  string
		err  error
	}
)

// At attaches an error to a node. src is a short description of the node.
func At(node int, src string, err error) ErrorAt {
	return errorAt{node: node, src: src, err: err}
}

// Errorf returns a formatted error attached to a node.
func Errorf(node int, src string, format string, a ...any) error {
	return At(node, src, errors.Errorf(format, a...))
}

// Internal marks an error as internal, potentially adding additional information.
func Internal(err error) error {
	return fmt.Errorf("tensor evaluation internal error. This is a bug. Please report it. Error:\n%+v", err)
}

// Internalf returns a formatted internal error.
func Internalf(format string, a ...any) error {
	return Internal(errors.Errorf(format, a...))
}

// Error returns a string description of the error.
func (err errorAt) Error() string {
	return fmt.Sprintf("node #%d %s: %s", err.node, err.src, err.err.Error())
}

// Unwrap the error.
func (err errorAt) Unwrap() error {
	return err.err
}

// Format writes the error into the state of the formatter.
// The verbose format (%+v) includes the stack trace of the error if any.
func (err errorAt) Format(s fmt.State, verb rune) {
	switch verb {
	case 'v':
		if s.Flag('+') {
			io.WriteString(s, err.Error())
			var withSt interface {
				StackTrace() errors.StackTrace
			}
			if errors.As(err.err, &withSt) {
				fmt.Fprintf(s, "\nError generated at:%+v\n", withSt.StackTrace())
			}
			return
		}
		fallthrough
	case 's':
		io.WriteString(s, err.Error())
	case 'q':
		fmt.Fprintf(s, "%q", err.Error())
	}
}

// Node returns the identifier of the node where the error occurred.
func (err errorAt) Node() int {
	return err.node
}

// Src returns the description of the node.
func (err errorAt) Src() string {
	return err.src
}

// Err returns the error without the node information.
func (err errorAt) Err() error {
	return err.err
}
