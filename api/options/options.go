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

// Package options specifies options to build tensor functions.
package options

import (
	"log/slog"
	"slices"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

type (
	// Option modifies the options used to build a tensor function.
	Option func(*Options)

	// Options used to build a tensor function.
	Options struct {
		// Optimize runs the optimization passes before compiling a function.
		Optimize bool `yaml:"optimize"`
		// DisabledPasses are the names of the optimization passes to skip.
		DisabledPasses []string `yaml:"disabled_passes"`
		// Logger receives debug information about the optimizer and caches.
		Logger *slog.Logger `yaml:"-"`
	}
)

// New returns options with the default values modified by a list of options.
func New(opts ...Option) *Options {
	o := &Options{Optimize: true}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// WithOptimize enables or disables all the optimization passes.
func WithOptimize(enabled bool) Option {
	return func(o *Options) {
		o.Optimize = enabled
	}
}

// WithoutPasses disables some optimization passes given their names.
func WithoutPasses(names ...string) Option {
	return func(o *Options) {
		o.DisabledPasses = append(o.DisabledPasses, names...)
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(o *Options) {
		o.Logger = logger
	}
}

// FromYAML returns an option setting the fields specified in a YAML document.
// Fields absent from the document are left unchanged.
func FromYAML(data []byte) (Option, error) {
	var doc struct {
		Optimize       *bool    `yaml:"optimize"`
		DisabledPasses []string `yaml:"disabled_passes"`
	}
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, errors.Wrap(err, "cannot parse options")
	}
	return func(o *Options) {
		if doc.Optimize != nil {
			o.Optimize = *doc.Optimize
		}
		o.DisabledPasses = append(o.DisabledPasses, doc.DisabledPasses...)
	}, nil
}

// PassEnabled returns true if an optimization pass needs to run.
func (o *Options) PassEnabled(name string) bool {
	return o.Optimize && !slices.Contains(o.DisabledPasses, name)
}

// Log returns the logger to use.
func (o *Options) Log() *slog.Logger {
	if o.Logger == nil {
		return slog.Default()
	}
	return o.Logger
}
