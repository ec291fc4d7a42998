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

package fmterr_test

import (
	"errors"
	"strings"
	"testing"

	"github.com/gx-org/tensoreval/build/fmterr"
	"go.uber.org/multierr"
)

func TestErrors(t *testing.T) {
	var errs fmterr.Errors
	if errs.ToError() != nil {
		t.Errorf("empty set of errors should convert to nil")
	}
	base := errors.New("incompatible dimensions")
	errs.Append(fmterr.At(3, "join(mul)", base))
	errs.Append(nil)
	errs.Append(fmterr.Errorf(4, "reduce(sum)", "unknown dimension %q", "z"))
	if got := errs.Len(); got != 2 {
		t.Fatalf("got %d errors but want 2", got)
	}
	err := errs.ToError()
	if got := len(multierr.Errors(err)); got != 2 {
		t.Errorf("got %d combined errors but want 2", got)
	}
	if !errors.Is(err, base) {
		t.Errorf("combined error does not wrap %v", base)
	}
	var at fmterr.ErrorAt
	if !errors.As(err, &at) || at.Node() != 3 {
		t.Errorf("cannot find the node of the error in %v", err)
	}
	if got, want := errs.Error(), "node #4 reduce(sum): unknown dimension \"z\""; !strings.Contains(got, want) {
		t.Errorf("got %q but want it to contain %q", got, want)
	}
}

func TestPrefixWith(t *testing.T) {
	err := fmterr.PrefixWith("param %d: ", 2)(errors.New("wrong type"))
	if got, want := err.Error(), "param 2: wrong type"; got != want {
		t.Errorf("got %q but want %q", got, want)
	}
}
