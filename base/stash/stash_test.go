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

package stash_test

import (
	"testing"

	"github.com/gx-org/tensoreval/base/stash"
)

func TestAllocIsZeroed(t *testing.T) {
	s := stash.New()
	for round := 0; round < 3; round++ {
		xs := stash.Alloc[float32](s, 7)
		for i, x := range xs {
			if x != 0 {
				t.Fatalf("round %d: xs[%d] = %v but want 0", round, i, x)
			}
			xs[i] = float32(i + 1)
		}
		ys := stash.Alloc[int8](s, 3)
		for i := range ys {
			ys[i] = -1
		}
		if xs[6] != 7 {
			t.Errorf("round %d: allocation of ys overwrote xs: %v", round, xs)
		}
		s.Reset()
	}
}

func TestAllocLarge(t *testing.T) {
	s := stash.New()
	small := stash.Alloc[float64](s, 10)
	large := stash.Alloc[float64](s, 1<<14)
	if got, want := len(large), 1<<14; got != want {
		t.Fatalf("got len %d but want %d", got, want)
	}
	large[len(large)-1] = 1
	small[0] = 2
	if large[0] != 0 {
		t.Errorf("buffers overlap")
	}
	size := s.Size()
	s.Reset()
	stash.Alloc[float64](s, 10)
	stash.Alloc[float64](s, 1<<14)
	if s.Size() != size {
		t.Errorf("stash grew after reset: got %d but want %d", s.Size(), size)
	}
}

func TestNilStash(t *testing.T) {
	var s *stash.Stash
	if got := len(stash.Alloc[float32](s, 4)); got != 4 {
		t.Errorf("got %d but want 4", got)
	}
}
