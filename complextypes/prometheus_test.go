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

package complextypes_test

import (
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/edgeo-scada/opcua-types/complextypes"
)

func TestCollector(t *testing.T) {
	s := newServer(t)
	machine(s)
	ts, sc := s.typeSystem()
	require.True(t, load(t, ts, false))

	c := complextypes.NewCollector(ts.Metrics(), nil)
	expected := `
# HELP opcua_complextypes_loads_total Type system loads.
# TYPE opcua_complextypes_loads_total counter
opcua_complextypes_loads_total 1
# HELP opcua_complextypes_structure_types_loaded_total Structure types registered.
# TYPE opcua_complextypes_structure_types_loaded_total counter
opcua_complextypes_structure_types_loaded_total 2
`
	require.NoError(t, testutil.CollectAndCompare(c, strings.NewReader(expected),
		"opcua_complextypes_loads_total", "opcua_complextypes_structure_types_loaded_total"))
	assert.Equal(t, 10, testutil.CollectAndCount(c))

	withCache := complextypes.NewCollector(ts.Metrics(), sc.Cache().Metrics())
	assert.Greater(t, testutil.CollectAndCount(withCache), 16, "per service counters")
	assert.Equal(t, 1, testutil.CollectAndCount(withCache, "opcua_complextypes_node_cache_request_duration_milliseconds"))

	reg := prometheus.NewPedanticRegistry()
	require.NoError(t, reg.Register(withCache))
	families, err := reg.Gather()
	require.NoError(t, err)
	assert.NotEmpty(t, families)
}
