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
	"math"
	"slices"

	"golang.org/x/exp/constraints"
)

type (
	aggregator[T constraints.Float] interface {
		first(T)
		next(T)
		result() T
	}

	// aggrPtr constrains a pointer to an aggregator state.
	aggrPtr[A any, T constraints.Float] interface {
		*A
		aggregator[T]
	}

	avgAggr[T constraints.Float] struct {
		sum T
		n   int
	}

	countAggr[T constraints.Float] struct{ n int }

	prodAggr[T constraints.Float] struct{ v T }

	sumAggr[T constraints.Float] struct{ v T }

	maxAggr[T constraints.Float] struct{ v T }

	minAggr[T constraints.Float] struct{ v T }

	medianAggr[T constraints.Float] struct{ vals []T }
)

func (a *avgAggr[T]) first(x T) { a.sum, a.n = x, 1 }
func (a *avgAggr[T]) next(x T)  { a.sum += x; a.n++ }
func (a *avgAggr[T]) result() T { return a.sum / T(a.n) }

func (a *countAggr[T]) first(T)   { a.n = 1 }
func (a *countAggr[T]) next(T)    { a.n++ }
func (a *countAggr[T]) result() T { return T(a.n) }

func (a *prodAggr[T]) first(x T) { a.v = x }
func (a *prodAggr[T]) next(x T)  { a.v *= x }
func (a *prodAggr[T]) result() T { return a.v }

func (a *sumAggr[T]) first(x T) { a.v = x }
func (a *sumAggr[T]) next(x T)  { a.v += x }
func (a *sumAggr[T]) result() T { return a.v }

func (a *maxAggr[T]) first(x T) { a.v = x }
func (a *maxAggr[T]) next(x T) {
	if x > a.v || math.IsNaN(float64(x)) {
		a.v = x
	}
}
func (a *maxAggr[T]) result() T { return a.v }

func (a *minAggr[T]) first(x T) { a.v = x }
func (a *minAggr[T]) next(x T) {
	if x < a.v || math.IsNaN(float64(x)) {
		a.v = x
	}
}
func (a *minAggr[T]) result() T { return a.v }

func (a *medianAggr[T]) first(x T) { a.vals = append(a.vals[:0], x) }
func (a *medianAggr[T]) next(x T)  { a.vals = append(a.vals, x) }

func (a *medianAggr[T]) result() T {
	for _, x := range a.vals {
		if math.IsNaN(float64(x)) {
			return x
		}
	}
	slices.Sort(a.vals)
	n := len(a.vals)
	if n%2 == 1 {
		return a.vals[n/2]
	}
	return (a.vals[n/2-1] + a.vals[n/2]) / 2
}
