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

package nodecache

import "log/slog"

// Default request limits.
const (
	DefaultMaxNodesPerRead      = 1000
	DefaultMaxNodesPerBrowse    = 500
	DefaultMaxReferencesPerNode = 1000
)

// Option is a functional option for configuring the cache.
type Option func(*options)

type options struct {
	maxNodesPerRead      int
	maxNodesPerBrowse    int
	maxReferencesPerNode uint32

	logger  *slog.Logger
	metrics *Metrics
}

func defaultOptions() *options {
	return &options{
		maxNodesPerRead:      DefaultMaxNodesPerRead,
		maxNodesPerBrowse:    DefaultMaxNodesPerBrowse,
		maxReferencesPerNode: DefaultMaxReferencesPerNode,
		logger:               slog.Default(),
	}
}

// WithMaxNodesPerRead caps the number of items sent in one Read request.
func WithMaxNodesPerRead(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.maxNodesPerRead = n
		}
	}
}

// WithMaxNodesPerBrowse caps the number of nodes sent in one Browse request.
func WithMaxNodesPerBrowse(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.maxNodesPerBrowse = n
		}
	}
}

// WithMaxReferencesPerNode sets the page size requested from the server.
// Zero lets the server choose.
func WithMaxReferencesPerNode(n uint32) Option {
	return func(o *options) {
		o.maxReferencesPerNode = n
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// WithMetrics shares a metrics instance between caches.
func WithMetrics(m *Metrics) Option {
	return func(o *options) {
		o.metrics = m
	}
}
