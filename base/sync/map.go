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

// Package sync provides typed versions of the concurrent structures of the
// standard sync package.
package sync

import (
	"iter"
	"sync"
)

// Map is a typed concurrent map.
type Map[K comparable, V any] struct {
	m sync.Map
}

// Store a key,value pair.
func (sm *Map[K, V]) Store(k K, v V) {
	sm.m.Store(k, v)
}

// Load returns a value given a key and true if the key is present.
func (sm *Map[K, V]) Load(k K) (v V, ok bool) {
	vAny, ok := sm.m.Load(k)
	if !ok {
		return
	}
	return vAny.(V), true
}

// LoadOrStore returns the existing value of a key if present.
// Otherwise, it stores and returns the given value.
// The boolean is true if the value was loaded.
func (sm *Map[K, V]) LoadOrStore(k K, v V) (V, bool) {
	actual, loaded := sm.m.LoadOrStore(k, v)
	return actual.(V), loaded
}

// Delete removes a pair given a key.
func (sm *Map[K, V]) Delete(k K) {
	sm.m.Delete(k)
}

// Size returns the number of elements in the map. This takes O(n) time.
func (sm *Map[K, V]) Size() (i int) {
	for range sm.All() {
		i++
	}
	return
}

// All returns an iterator to range over the elements of the map.
func (sm *Map[K, V]) All() iter.Seq2[K, V] {
	return func(yield func(K, V) bool) {
		sm.m.Range(func(k, v any) bool {
			return yield(k.(K), v.(V))
		})
	}
}
