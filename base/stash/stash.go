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

// Package stash implements a bump allocator for short lived cell buffers.
//
// A stash owns all the buffers allocated during one evaluation. Resetting
// the stash invalidates all these buffers at once.
package stash

import "unsafe"

const (
	word         = 8
	minChunkSize = 1 << 12 // in words
)

// Stash is a scoped allocation region. A stash is not safe for concurrent use.
type Stash struct {
	chunks [][]uint64
	cur    int
	off    int
}

// New returns a new empty stash.
func New() *Stash {
	return &Stash{}
}

func (s *Stash) words(n int) []uint64 {
	for s.cur < len(s.chunks) {
		chunk := s.chunks[s.cur]
		if s.off+n <= len(chunk) {
			buf := chunk[s.off : s.off+n : s.off+n]
			s.off += n
			return buf
		}
		s.cur++
		s.off = 0
	}
	size := max(minChunkSize, n)
	if len(s.chunks) > 0 {
		size = max(size, 2*len(s.chunks[len(s.chunks)-1]))
	}
	s.chunks = append(s.chunks, make([]uint64, size))
	s.cur = len(s.chunks) - 1
	s.off = n
	return s.chunks[s.cur][:n:n]
}

// Alloc returns a zeroed slice of n elements owned by the stash.
// T must not contain pointers. A nil stash allocates on the Go heap.
func Alloc[T any](s *Stash, n int) []T {
	if s == nil || n == 0 {
		return make([]T, n)
	}
	size := int(unsafe.Sizeof(*new(T)))
	if size == 0 || size > word || word%size != 0 {
		return make([]T, n)
	}
	buf := s.words((n*size + word - 1) / word)
	clear(buf)
	return unsafe.Slice((*T)(unsafe.Pointer(unsafe.SliceData(buf))), n)
}

// Reset releases all the buffers allocated by the stash.
// Memory is kept to be reused by the next allocations.
func (s *Stash) Reset() {
	s.cur = 0
	s.off = 0
}

// Size returns the number of bytes reserved by the stash.
func (s *Stash) Size() int {
	var n int
	for _, chunk := range s.chunks {
		n += len(chunk) * word
	}
	return n
}
