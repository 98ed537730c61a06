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

import (
	opcua "github.com/edgeo-scada/opcua-types"
)

// Metrics holds type system load metrics.
type Metrics struct {
	Loads                opcua.Counter
	LoadErrors           opcua.Counter
	EnumTypesLoaded      opcua.Counter
	StructureTypesLoaded opcua.Counter
	DictionariesLoaded   opcua.Counter
	DictionaryErrors     opcua.Counter
	UnsupportedTypes     opcua.Counter
	UnresolvedTypes      opcua.Counter
	RetryPasses          opcua.Counter
	LoadLatency          *opcua.LatencyHistogram
}

// NewMetrics creates a new Metrics instance.
func NewMetrics() *Metrics {
	return &Metrics{
		LoadLatency: opcua.NewLatencyHistogram(),
	}
}

// Collect returns all metrics as a map.
func (m *Metrics) Collect() map[string]interface{} {
	return map[string]interface{}{
		"loads":                  m.Loads.Value(),
		"load_errors":            m.LoadErrors.Value(),
		"enum_types_loaded":      m.EnumTypesLoaded.Value(),
		"structure_types_loaded": m.StructureTypesLoaded.Value(),
		"dictionaries_loaded":    m.DictionariesLoaded.Value(),
		"dictionary_errors":      m.DictionaryErrors.Value(),
		"unsupported_types":      m.UnsupportedTypes.Value(),
		"unresolved_types":       m.UnresolvedTypes.Value(),
		"retry_passes":           m.RetryPasses.Value(),
		"load_latency":           m.LoadLatency.Stats(),
	}
}

// Reset resets all metrics.
func (m *Metrics) Reset() {
	m.Loads.Reset()
	m.LoadErrors.Reset()
	m.EnumTypesLoaded.Reset()
	m.StructureTypesLoaded.Reset()
	m.DictionariesLoaded.Reset()
	m.DictionaryErrors.Reset()
	m.UnsupportedTypes.Reset()
	m.UnresolvedTypes.Reset()
	m.RetryPasses.Reset()
	m.LoadLatency.Reset()
}
