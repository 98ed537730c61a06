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

import (
	"sync"

	opcua "github.com/edgeo-scada/opcua-types"
)

// Metrics holds round trip and cache metrics.
type Metrics struct {
	RequestsTotal  opcua.Counter
	RequestsErrors opcua.Counter
	ItemsRequested opcua.Counter
	CacheHits      opcua.Counter
	CacheMisses    opcua.Counter
	Latency        *opcua.LatencyHistogram

	// Per-service metrics
	serviceMetrics sync.Map // opcua.ServiceID -> *ServiceMetrics
}

// ServiceMetrics holds metrics for a specific service.
type ServiceMetrics struct {
	Requests opcua.Counter
	Errors   opcua.Counter
	Latency  *opcua.LatencyHistogram
}

// NewMetrics creates a new Metrics instance.
func NewMetrics() *Metrics {
	return &Metrics{
		Latency: opcua.NewLatencyHistogram(),
	}
}

// ForService returns metrics for a specific service.
func (m *Metrics) ForService(svc opcua.ServiceID) *ServiceMetrics {
	if val, ok := m.serviceMetrics.Load(svc); ok {
		return val.(*ServiceMetrics)
	}

	sm := &ServiceMetrics{
		Latency: opcua.NewLatencyHistogram(),
	}
	actual, _ := m.serviceMetrics.LoadOrStore(svc, sm)
	return actual.(*ServiceMetrics)
}

// RangeServices calls fn for every service with recorded metrics.
func (m *Metrics) RangeServices(fn func(svc opcua.ServiceID, sm *ServiceMetrics)) {
	m.serviceMetrics.Range(func(key, value interface{}) bool {
		fn(key.(opcua.ServiceID), value.(*ServiceMetrics))
		return true
	})
}

// Collect returns all metrics as a map.
func (m *Metrics) Collect() map[string]interface{} {
	result := map[string]interface{}{
		"requests_total":  m.RequestsTotal.Value(),
		"requests_errors": m.RequestsErrors.Value(),
		"items_requested": m.ItemsRequested.Value(),
		"cache_hits":      m.CacheHits.Value(),
		"cache_misses":    m.CacheMisses.Value(),
		"latency":         m.Latency.Stats(),
	}

	serviceStats := make(map[string]interface{})
	m.RangeServices(func(svc opcua.ServiceID, sm *ServiceMetrics) {
		serviceStats[svc.String()] = map[string]interface{}{
			"requests": sm.Requests.Value(),
			"errors":   sm.Errors.Value(),
			"latency":  sm.Latency.Stats(),
		}
	})
	if len(serviceStats) > 0 {
		result["services"] = serviceStats
	}

	return result
}

// Reset resets all metrics.
func (m *Metrics) Reset() {
	m.RequestsTotal.Reset()
	m.RequestsErrors.Reset()
	m.ItemsRequested.Reset()
	m.CacheHits.Reset()
	m.CacheMisses.Reset()
	m.Latency.Reset()

	m.RangeServices(func(_ opcua.ServiceID, sm *ServiceMetrics) {
		sm.Requests.Reset()
		sm.Errors.Reset()
		sm.Latency.Reset()
	})
}
