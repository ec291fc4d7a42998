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

package interp

import (
	"log/slog"

	"github.com/gx-org/tensoreval/base/sync"
)

// Cache stores compiled functions given a key chosen by the caller,
// typically the text of the expression and the types of its parameters.
// A cache can be used concurrently.
type Cache[K comparable] struct {
	logger *slog.Logger
	funcs  sync.Map[K, *Function]
}

// NewCache returns a new empty cache. A nil logger logs with the default logger.
func NewCache[K comparable](logger *slog.Logger) *Cache[K] {
	if logger == nil {
		logger = slog.Default()
	}
	return &Cache[K]{logger: logger}
}

// Get returns the function stored for a key. If the key is absent, the
// function is compiled by build and stored. When several goroutines
// compile the same key concurrently, all of them get the first stored
// function. Errors are not cached.
func (c *Cache[K]) Get(key K, build func() (*Function, error)) (*Function, error) {
	if fn, ok := c.funcs.Load(key); ok {
		return fn, nil
	}
	c.logger.Debug("tensor function cache miss", slog.Any("key", key))
	fn, err := build()
	if err != nil {
		return nil, err
	}
	fn, _ = c.funcs.LoadOrStore(key, fn)
	return fn, nil
}

// Len returns the number of functions in the cache.
func (c *Cache[K]) Len() int {
	return c.funcs.Size()
}

// Clear removes all the functions from the cache.
func (c *Cache[K]) Clear() {
	for key := range c.funcs.All() {
		c.funcs.Delete(key)
	}
}
