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

package value_test

import (
	"math"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/gx-org/backend/dtype"
	"github.com/gx-org/tensoreval/backend/value"
	"github.com/gx-org/tensoreval/build/valuetype"
)

var factories = []value.Factory{value.SimpleFactory, value.FastFactory}

func mixedSpec() *value.Spec {
	return value.NewSpec(valuetype.MustParse("tensor<float>(x{},y[2])")).
		Add(value.Address{"x": value.L("b"), "y": value.I(0)}, 3).
		Add(value.Address{"x": value.L("a"), "y": value.I(1)}, 2).
		Add(value.Address{"x": value.L("c"), "y": value.I(1)}, -1)
}

func TestIndexLookup(t *testing.T) {
	for _, f := range factories {
		v := mixedSpec().MustValue(f)
		if got := v.Index().Size(); got != 3 {
			t.Errorf("%s: got %d subspaces but want 3", f, got)
		}
		cells := value.CellsOf[float32](v)
		for _, test := range []struct {
			label string
			want  []float32
		}{
			{label: "a", want: []float32{0, 2}},
			{label: "b", want: []float32{3, 0}},
			{label: "c", want: []float32{0, -1}},
		} {
			subspace, ok := v.Index().Lookup([]string{test.label})
			if !ok {
				t.Errorf("%s: label %s not found", f, test.label)
				continue
			}
			got := cells[subspace*2 : subspace*2+2]
			if !cmp.Equal(got, test.want) {
				t.Errorf("%s: label %s: got %v but want %v", f, test.label, got, test.want)
			}
		}
		if _, ok := v.Index().Lookup([]string{"d"}); ok {
			t.Errorf("%s: label d found in %v", f, v)
		}
	}
}

func TestFactoriesAgree(t *testing.T) {
	specs := []*value.Spec{
		mixedSpec(),
		value.NewSpec(valuetype.Scalar()).Add(value.Address{}, 4.5),
		value.NewSpec(valuetype.MustParse("tensor<int8>(x[3])")).
			Add(value.Address{"x": value.I(1)}, 300),
		value.NewSpec(valuetype.MustParse("tensor(x{},y{})")),
	}
	for _, spec := range specs {
		simple := value.SpecFromValue(spec.MustValue(value.SimpleFactory))
		fast := value.SpecFromValue(spec.MustValue(value.FastFactory))
		if !simple.Equal(fast) {
			t.Errorf("factories disagree: simple=%s fast=%s", simple, fast)
		}
	}
}

func TestSimpleIndexIsSorted(t *testing.T) {
	v := mixedSpec().MustValue(value.SimpleFactory)
	var got []string
	for _, addr := range v.Index().All() {
		got = append(got, addr...)
	}
	want := []string{"a", "b", "c"}
	if !cmp.Equal(got, want) {
		t.Errorf("got %v but want %v", got, want)
	}
}

func TestCellConversions(t *testing.T) {
	storeInt8 := value.Store[int8]()
	for _, test := range []struct {
		in   float64
		want int8
	}{
		{in: 3.7, want: 3},
		{in: -3.7, want: -3},
		{in: 500, want: 127},
		{in: -500, want: -128},
		{in: math.NaN(), want: 0},
	} {
		if got := storeInt8(test.in); got != test.want {
			t.Errorf("store(%v): got %d but want %d", test.in, got, test.want)
		}
	}
	bf := value.Store[dtype.Bfloat16T]()(1.5)
	if got := value.Load[dtype.Bfloat16T]()(bf); got != 1.5 {
		t.Errorf("bfloat16 round trip: got %v but want 1.5", got)
	}
	if got := value.CellTypeOf[dtype.Bfloat16T](); got != valuetype.BFloat16 {
		t.Errorf("got cell type %s but want bfloat16", got)
	}
}

func TestSpecEqual(t *testing.T) {
	typ := valuetype.MustParse("tensor(x[2])")
	a := value.NewSpec(typ).Add(value.Address{"x": value.I(0)}, 1)
	b := value.NewSpec(typ).
		Add(value.Address{"x": value.I(0)}, 1).
		Add(value.Address{"x": value.I(1)}, 0)
	if !a.Equal(b) || !b.Equal(a) {
		t.Errorf("%s and %s should be equal", a, b)
	}
	c := value.NewSpec(typ).Add(value.Address{"x": value.I(0)}, 1.0000001)
	if a.Equal(c) {
		t.Errorf("%s and %s should not be equal", a, c)
	}
	if !a.ApproxEqual(c, 1e-6) {
		t.Errorf("%s and %s should be approximately equal", a, c)
	}
	other := value.NewSpec(valuetype.MustParse("tensor<float>(x[2])")).Add(value.Address{"x": value.I(0)}, 1)
	if a.Equal(other) {
		t.Errorf("%s and %s have different types", a, other)
	}
}

func TestBuilder(t *testing.T) {
	typ := valuetype.MustParse("tensor(x{})")
	for _, f := range factories {
		b := value.NewBuilder[float64](f, nil, typ, 0)
		b.AddSubspace([]string{"a"})[0] += 1
		b.AddSubspace([]string{"b"})[0] += 2
		b.AddSubspace([]string{"a"})[0] += 3
		got := value.SpecFromValue(b.Build()).String()
		want := "tensor(x{}):{{x:a}:4,{x:b}:2}"
		if got != want {
			t.Errorf("%s: got %s but want %s", f, got, want)
		}
	}
}

func TestDenseBuilderHasOneSubspace(t *testing.T) {
	typ := valuetype.MustParse("tensor<float>(x[3])")
	v := value.NewBuilder[float32](value.FastFactory, nil, typ, 0).Build()
	if got := v.Index().Size(); got != 1 {
		t.Errorf("got %d subspaces but want 1", got)
	}
	if got := value.CellsOf[float32](v); !cmp.Equal(got, []float32{0, 0, 0}) {
		t.Errorf("got %v but want zeros", got)
	}
}

func TestNewChecksCells(t *testing.T) {
	typ := valuetype.MustParse("tensor<float>(x[3])")
	if _, err := value.NewDense(typ, []float32{1, 2}); err == nil {
		t.Errorf("expected an error for missing cells")
	}
	if _, err := value.NewDense(typ, []float64{1, 2, 3}); err == nil {
		t.Errorf("expected an error for wrong cell type")
	}
	v, err := value.NewDense(typ, []float32{1, 2, 3})
	if err != nil {
		t.Fatal(err)
	}
	if got := value.Doubles(v); !cmp.Equal(got, []float64{1, 2, 3}) {
		t.Errorf("got %v but want [1 2 3]", got)
	}
}
