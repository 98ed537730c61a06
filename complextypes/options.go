// Copyright 2025 Edgeo SCADA
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

package complextypes

import "log/slog"

// DefaultMaxLoopCount bounds the structure retry loop and super-type walks.
const DefaultMaxLoopCount = 100

// Option is a functional option for configuring the type system.
type Option func(*options)

type options struct {
	logger *slog.Logger

	builderFactory BuilderFactory

	disableDataTypeDefinition bool
	disableDataTypeDictionary bool
	strictDictionaries        bool
	maxLoopCount              int

	metrics *Metrics
}

func defaultOptions() *options {
	return &options{
		logger:       slog.Default(),
		maxLoopCount: DefaultMaxLoopCount,
	}
}

func applyOptions(opts []Option) *options {
	o := defaultOptions()
	for _, opt := range opts {
		opt(o)
	}
	if o.builderFactory == nil {
		o.builderFactory = DynamicBuilderFactory{}
	}
	if o.metrics == nil {
		o.metrics = NewMetrics()
	}
	return o
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// WithBuilderFactory replaces the builder that turns definitions into
// encodeable types. The default builds data-driven types.
func WithBuilderFactory(f BuilderFactory) Option {
	return func(o *options) {
		o.builderFactory = f
	}
}

// WithDisableDataTypeDefinition skips the DataTypeDefinition attribute and
// the legacy enum properties.
func WithDisableDataTypeDefinition(disable bool) Option {
	return func(o *options) {
		o.disableDataTypeDefinition = disable
	}
}

// WithDisableDataTypeDictionary skips the schema dictionary fallback.
func WithDisableDataTypeDictionary(disable bool) Option {
	return func(o *options) {
		o.disableDataTypeDictionary = disable
	}
}

// WithStrictDictionaryValidation turns dictionary validation findings into
// load errors. By default findings are logged and the dictionary is used.
func WithStrictDictionaryValidation(strict bool) Option {
	return func(o *options) {
		o.strictDictionaries = strict
	}
}

// WithMaxLoopCount caps the structure retry passes and super-type walks.
func WithMaxLoopCount(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.maxLoopCount = n
		}
	}
}

// WithMetrics shares a metrics instance between type systems.
func WithMetrics(m *Metrics) Option {
	return func(o *options) {
		o.metrics = m
	}
}
