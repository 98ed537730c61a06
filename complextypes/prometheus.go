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
	"github.com/prometheus/client_golang/prometheus"

	opcua "github.com/edgeo-scada/opcua-types"
	"github.com/edgeo-scada/opcua-types/nodecache"
)

const (
	metricsNamespace = "opcua"
	metricsSubsystem = "complextypes"
)

// Collector exposes type system and node cache metrics to Prometheus.
type Collector struct {
	types *Metrics
	cache *nodecache.Metrics

	counters []counterDesc
	latency  *prometheus.Desc

	cacheRequests *prometheus.Desc
	cacheErrors   *prometheus.Desc
	cacheItems    *prometheus.Desc
	cacheHits     *prometheus.Desc
	cacheMisses   *prometheus.Desc
	cacheLatency  *prometheus.Desc
	serviceCalls  *prometheus.Desc
}

type counterDesc struct {
	desc  *prometheus.Desc
	value func(*Metrics) int64
}

func newDesc(name, help string, labels ...string) *prometheus.Desc {
	return prometheus.NewDesc(prometheus.BuildFQName(metricsNamespace, metricsSubsystem, name), help, labels, nil)
}

// NewCollector creates a collector. cache may be nil.
func NewCollector(m *Metrics, cache *nodecache.Metrics) *Collector {
	return &Collector{
		types: m,
		cache: cache,
		counters: []counterDesc{
			{newDesc("loads_total", "Type system loads."), func(m *Metrics) int64 { return m.Loads.Value() }},
			{newDesc("load_errors_total", "Type system loads that failed."), func(m *Metrics) int64 { return m.LoadErrors.Value() }},
			{newDesc("enum_types_loaded_total", "Enumeration types registered."), func(m *Metrics) int64 { return m.EnumTypesLoaded.Value() }},
			{newDesc("structure_types_loaded_total", "Structure types registered."), func(m *Metrics) int64 { return m.StructureTypesLoaded.Value() }},
			{newDesc("dictionaries_loaded_total", "Data type dictionaries loaded."), func(m *Metrics) int64 { return m.DictionariesLoaded.Value() }},
			{newDesc("dictionary_errors_total", "Data type dictionaries that failed to load."), func(m *Metrics) int64 { return m.DictionaryErrors.Value() }},
			{newDesc("unsupported_types_total", "Types using unsupported constructs."), func(m *Metrics) int64 { return m.UnsupportedTypes.Value() }},
			{newDesc("unresolved_types_total", "Types left unresolved after a load."), func(m *Metrics) int64 { return m.UnresolvedTypes.Value() }},
			{newDesc("retry_passes_total", "Structure retry passes."), func(m *Metrics) int64 { return m.RetryPasses.Value() }},
		},
		latency:       newDesc("load_duration_milliseconds", "Type system load latency."),
		cacheRequests: newDesc("node_cache_requests_total", "Node cache round trips."),
		cacheErrors:   newDesc("node_cache_request_errors_total", "Node cache round trips that failed."),
		cacheItems:    newDesc("node_cache_items_requested_total", "Nodes requested by the node cache."),
		cacheHits:     newDesc("node_cache_hits_total", "Node cache hits."),
		cacheMisses:   newDesc("node_cache_misses_total", "Node cache misses."),
		cacheLatency:  newDesc("node_cache_request_duration_milliseconds", "Node cache round trip latency."),
		serviceCalls:  newDesc("node_cache_service_requests_total", "Node cache round trips per service.", "service"),
	}
}

// Describe implements prometheus.Collector.
func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	for _, cd := range c.counters {
		ch <- cd.desc
	}
	ch <- c.latency
	if c.cache == nil {
		return
	}
	ch <- c.cacheRequests
	ch <- c.cacheErrors
	ch <- c.cacheItems
	ch <- c.cacheHits
	ch <- c.cacheMisses
	ch <- c.cacheLatency
	ch <- c.serviceCalls
}

// Collect implements prometheus.Collector.
func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	for _, cd := range c.counters {
		ch <- prometheus.MustNewConstMetric(cd.desc, prometheus.CounterValue, float64(cd.value(c.types)))
	}
	ch <- summary(c.latency, c.types.LoadLatency)
	if c.cache == nil {
		return
	}
	ch <- prometheus.MustNewConstMetric(c.cacheRequests, prometheus.CounterValue, float64(c.cache.RequestsTotal.Value()))
	ch <- prometheus.MustNewConstMetric(c.cacheErrors, prometheus.CounterValue, float64(c.cache.RequestsErrors.Value()))
	ch <- prometheus.MustNewConstMetric(c.cacheItems, prometheus.CounterValue, float64(c.cache.ItemsRequested.Value()))
	ch <- prometheus.MustNewConstMetric(c.cacheHits, prometheus.CounterValue, float64(c.cache.CacheHits.Value()))
	ch <- prometheus.MustNewConstMetric(c.cacheMisses, prometheus.CounterValue, float64(c.cache.CacheMisses.Value()))
	ch <- summary(c.cacheLatency, c.cache.Latency)
	c.cache.RangeServices(func(svc opcua.ServiceID, sm *nodecache.ServiceMetrics) {
		ch <- prometheus.MustNewConstMetric(c.serviceCalls, prometheus.CounterValue, float64(sm.Requests.Value()), svc.String())
	})
}

func summary(desc *prometheus.Desc, h *opcua.LatencyHistogram) prometheus.Metric {
	stats := h.Stats()
	return prometheus.MustNewConstSummary(desc, uint64(stats.Count), stats.Sum, nil)
}
