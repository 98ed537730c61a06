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
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	opcua "github.com/edgeo-scada/opcua-types"
)

// Cache caches node attributes and references read from a Session.
// It is safe for concurrent use.
type Cache struct {
	session Session
	opts    *options
	logger  *slog.Logger
	metrics *Metrics

	mu         sync.RWMutex
	namespaces *opcua.NamespaceTable
	nodes      map[string]*Node
	refs       map[refKey][]opcua.ReferenceDescription
}

type refKey struct {
	node            string
	referenceType   string
	inverse         bool
	includeSubtypes bool
}

// New creates a cache over session. The namespace table only holds
// namespace 0 until FetchNamespaceTable is called.
func New(session Session, opts ...Option) *Cache {
	o := defaultOptions()
	for _, opt := range opts {
		opt(o)
	}
	if o.metrics == nil {
		o.metrics = NewMetrics()
	}
	return &Cache{
		session:    session,
		opts:       o,
		logger:     o.logger,
		metrics:    o.metrics,
		namespaces: opcua.NewNamespaceTable(),
		nodes:      make(map[string]*Node),
		refs:       make(map[refKey][]opcua.ReferenceDescription),
	}
}

// Metrics returns the cache metrics.
func (c *Cache) Metrics() *Metrics {
	return c.metrics
}

// NamespaceTable returns the current namespace table.
func (c *Cache) NamespaceTable() *opcua.NamespaceTable {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.namespaces
}

// FetchNamespaceTable reads Server.NamespaceArray and replaces the table.
func (c *Cache) FetchNamespaceTable(ctx context.Context) (*opcua.NamespaceTable, error) {
	v, err := c.ReadValue(ctx, opcua.VariableServerNamespaceArray)
	if err != nil {
		return nil, fmt.Errorf("read namespace array: %w", err)
	}
	values, ok := v.Value.([]interface{})
	if !ok {
		return nil, fmt.Errorf("%w: namespace array is %T", opcua.ErrInvalidResponse, v.Value)
	}
	uris := make([]string, 0, len(values))
	for _, item := range values {
		s, ok := item.(string)
		if !ok {
			return nil, fmt.Errorf("%w: namespace array item is %T", opcua.ErrInvalidResponse, item)
		}
		uris = append(uris, s)
	}
	ns := opcua.NewNamespaceTable(uris...)

	c.mu.Lock()
	c.namespaces = ns
	c.mu.Unlock()

	c.logger.Debug("namespace table fetched", slog.Int("namespaces", ns.Len()))
	return ns, nil
}

// Clear drops every cached node and reference.
func (c *Cache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.nodes = make(map[string]*Node)
	c.refs = make(map[refKey][]opcua.ReferenceDescription)
}

// call runs one round trip, checking for cancellation first.
func (c *Cache) call(ctx context.Context, svc opcua.ServiceID, items int, fn func() error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	sm := c.metrics.ForService(svc)
	c.metrics.RequestsTotal.Inc()
	c.metrics.ItemsRequested.Add(int64(items))
	sm.Requests.Inc()

	start := time.Now()
	err := fn()
	elapsed := time.Since(start)
	c.metrics.Latency.Observe(elapsed)
	sm.Latency.Observe(elapsed)

	if err != nil {
		c.metrics.RequestsErrors.Inc()
		sm.Errors.Inc()
		c.logger.Debug("request failed",
			slog.String("service", svc.String()),
			slog.Int("items", items),
			slog.String("error", err.Error()))
		return err
	}
	c.logger.Debug("request",
		slog.String("service", svc.String()),
		slog.Int("items", items),
		slog.Duration("elapsed", elapsed))
	return nil
}

// FindReferences returns the references of type referenceType of every node
// in ids, in node order. Nodes are browsed in batches and results cached per
// node. A node the server reports as bad is skipped and its status returned
// as an *opcua.OPCUAError together with the references of the other nodes.
func (c *Cache) FindReferences(ctx context.Context, ids []opcua.NodeID, referenceType opcua.NodeID, inverse, includeSubtypes bool) ([]opcua.ReferenceDescription, error) {
	keys := make([]refKey, len(ids))
	var missing []int
	c.mu.RLock()
	for i, id := range ids {
		keys[i] = refKey{
			node:            opcua.FormatNodeID(id),
			referenceType:   opcua.FormatNodeID(referenceType),
			inverse:         inverse,
			includeSubtypes: includeSubtypes,
		}
		if _, ok := c.refs[keys[i]]; !ok {
			missing = append(missing, i)
		}
	}
	c.mu.RUnlock()
	c.metrics.CacheHits.Add(int64(len(ids) - len(missing)))
	c.metrics.CacheMisses.Add(int64(len(missing)))

	var firstErr error
	if len(missing) > 0 {
		direction := opcua.BrowseDirectionForward
		if inverse {
			direction = opcua.BrowseDirectionInverse
		}
		descs := make([]opcua.BrowseDescription, len(missing))
		for j, i := range missing {
			descs[j] = opcua.BrowseDescription{
				NodeID:          ids[i],
				BrowseDirection: direction,
				ReferenceTypeID: referenceType,
				IncludeSubtypes: includeSubtypes,
				ResultMask:      opcua.BrowseResultMaskAll,
			}
		}
		refs, statuses, err := c.browse(ctx, descs)
		if err != nil {
			return nil, err
		}
		c.mu.Lock()
		for j, i := range missing {
			if statuses[j].IsBad() {
				if firstErr == nil {
					firstErr = opcua.NewOPCUAError(opcua.ServiceBrowse, statuses[j], opcua.FormatNodeID(ids[i]))
				}
				continue
			}
			c.refs[keys[i]] = refs[j]
		}
		c.mu.Unlock()
	}

	var out []opcua.ReferenceDescription
	c.mu.RLock()
	for _, k := range keys {
		out = append(out, c.refs[k]...)
	}
	c.mu.RUnlock()
	return out, firstErr
}

// References returns the references of one node.
func (c *Cache) References(ctx context.Context, id opcua.NodeID, referenceType opcua.NodeID, inverse bool) ([]opcua.ReferenceDescription, error) {
	return c.FindReferences(ctx, []opcua.NodeID{id}, referenceType, inverse, true)
}

// browse runs Browse in batches and follows continuation points.
func (c *Cache) browse(ctx context.Context, descs []opcua.BrowseDescription) ([][]opcua.ReferenceDescription, []opcua.StatusCode, error) {
	refs := make([][]opcua.ReferenceDescription, len(descs))
	statuses := make([]opcua.StatusCode, len(descs))

	for start := 0; start < len(descs); start += c.opts.maxNodesPerBrowse {
		end := min(start+c.opts.maxNodesPerBrowse, len(descs))
		batch := descs[start:end]

		var results []opcua.BrowseResult
		err := c.call(ctx, opcua.ServiceBrowse, len(batch), func() error {
			var err error
			results, err = c.session.Browse(ctx, batch, c.opts.maxReferencesPerNode)
			return err
		})
		if err != nil {
			return nil, nil, err
		}
		if len(results) != len(batch) {
			return nil, nil, fmt.Errorf("%w: browse returned %d results for %d nodes", opcua.ErrInvalidResponse, len(results), len(batch))
		}

		pending := map[int][]byte{}
		for k, r := range results {
			i := start + k
			statuses[i] = r.StatusCode
			refs[i] = append(refs[i], r.References...)
			if len(r.ContinuationPoint) > 0 && !r.StatusCode.IsBad() {
				pending[i] = r.ContinuationPoint
			}
		}
		if err := c.browseNext(ctx, pending, refs, statuses); err != nil {
			return nil, nil, err
		}
	}
	return refs, statuses, nil
}

func (c *Cache) browseNext(ctx context.Context, pending map[int][]byte, refs [][]opcua.ReferenceDescription, statuses []opcua.StatusCode) error {
	for len(pending) > 0 {
		order := make([]int, 0, len(pending))
		points := make([][]byte, 0, len(pending))
		for i, cp := range pending {
			order = append(order, i)
			points = append(points, cp)
		}

		var results []opcua.BrowseResult
		err := c.call(ctx, opcua.ServiceBrowseNext, len(points), func() error {
			var err error
			results, err = c.session.BrowseNext(ctx, false, points)
			return err
		})
		if err != nil {
			return err
		}
		if len(results) != len(points) {
			return fmt.Errorf("%w: browse next returned %d results for %d points", opcua.ErrInvalidResponse, len(results), len(points))
		}

		next := map[int][]byte{}
		for k, r := range results {
			i := order[k]
			if r.StatusCode.IsBad() {
				statuses[i] = r.StatusCode
				continue
			}
			refs[i] = append(refs[i], r.References...)
			if len(r.ContinuationPoint) > 0 {
				next[i] = r.ContinuationPoint
			}
		}
		pending = next
	}
	return nil
}

// nodeAttributes are read for every node fetched by Find.
var nodeAttributes = []opcua.AttributeID{
	opcua.AttributeNodeClass,
	opcua.AttributeBrowseName,
	opcua.AttributeDisplayName,
	opcua.AttributeIsAbstract,
	opcua.AttributeDataTypeDefinition,
}

// Find returns the node with the given id.
func (c *Cache) Find(ctx context.Context, id opcua.NodeID) (*Node, error) {
	nodes, err := c.FindNodes(ctx, []opcua.NodeID{id})
	if err != nil {
		return nil, err
	}
	if nodes[0] == nil {
		return nil, opcua.NewOPCUAError(opcua.ServiceRead, opcua.StatusBadNodeIdUnknown, opcua.FormatNodeID(id))
	}
	return nodes[0], nil
}

// FindNodes returns the nodes with the given ids in one batched read of
// their attributes. Unknown nodes yield nil entries.
func (c *Cache) FindNodes(ctx context.Context, ids []opcua.NodeID) ([]*Node, error) {
	out := make([]*Node, len(ids))
	var missing []int
	c.mu.RLock()
	for i, id := range ids {
		if n, ok := c.nodes[opcua.FormatNodeID(id)]; ok {
			out[i] = n
		} else {
			missing = append(missing, i)
		}
	}
	c.mu.RUnlock()
	c.metrics.CacheHits.Add(int64(len(ids) - len(missing)))
	c.metrics.CacheMisses.Add(int64(len(missing)))
	if len(missing) == 0 {
		return out, nil
	}

	reads := make([]opcua.ReadValueID, 0, len(missing)*len(nodeAttributes))
	for _, i := range missing {
		for _, attr := range nodeAttributes {
			reads = append(reads, opcua.ReadValueID{NodeID: ids[i], AttributeID: attr})
		}
	}
	values, err := c.read(ctx, reads)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	for j, i := range missing {
		n, err := nodeFromValues(ids[i], values[j*len(nodeAttributes):(j+1)*len(nodeAttributes)])
		if err != nil {
			c.logger.Warn("ignoring node with unreadable attributes",
				slog.String("node", opcua.FormatNodeID(ids[i])),
				slog.String("error", err.Error()))
			continue
		}
		if n == nil {
			continue
		}
		c.nodes[opcua.FormatNodeID(ids[i])] = n
		out[i] = n
	}
	return out, nil
}

// nodeFromValues builds a node from the values of nodeAttributes. It returns
// nil when the node class cannot be read.
func nodeFromValues(id opcua.NodeID, values []opcua.DataValue) (*Node, error) {
	if values[0].StatusCode.IsBad() || values[0].Value == nil {
		return nil, nil
	}
	n := &Node{NodeID: id}
	switch v := values[0].Value.Value.(type) {
	case int32:
		n.NodeClass = opcua.NodeClass(v)
	case uint32:
		n.NodeClass = opcua.NodeClass(v)
	case opcua.NodeClass:
		n.NodeClass = v
	default:
		return nil, fmt.Errorf("%w: node class is %T", opcua.ErrInvalidResponse, v)
	}
	if good(values[1]) {
		n.BrowseName, _ = values[1].Value.Value.(opcua.QualifiedName)
	}
	if good(values[2]) {
		n.DisplayName, _ = values[2].Value.Value.(opcua.LocalizedText)
	}
	if good(values[3]) {
		n.IsAbstract, _ = values[3].Value.Value.(bool)
	}
	if good(values[4]) {
		switch v := values[4].Value.Value.(type) {
		case opcua.ExtensionObject:
			n.DataTypeDefinition, _ = v.Value.(opcua.DataTypeDefinition)
		case opcua.DataTypeDefinition:
			n.DataTypeDefinition = v
		}
	}
	return n, nil
}

func good(dv opcua.DataValue) bool {
	return !dv.StatusCode.IsBad() && dv.Value != nil
}

// ReadValues reads the Value attribute of every node in batches. Per-item
// status codes are returned in the data values.
func (c *Cache) ReadValues(ctx context.Context, ids []opcua.NodeID) ([]opcua.DataValue, error) {
	reads := make([]opcua.ReadValueID, len(ids))
	for i, id := range ids {
		reads[i] = opcua.ReadValueID{NodeID: id, AttributeID: opcua.AttributeValue}
	}
	return c.read(ctx, reads)
}

// ReadValue reads the Value attribute of one node. A bad status is
// returned as an *opcua.OPCUAError.
func (c *Cache) ReadValue(ctx context.Context, id opcua.NodeID) (*opcua.Variant, error) {
	values, err := c.ReadValues(ctx, []opcua.NodeID{id})
	if err != nil {
		return nil, err
	}
	dv := values[0]
	if dv.StatusCode.IsBad() {
		return nil, opcua.NewOPCUAError(opcua.ServiceRead, dv.StatusCode, opcua.FormatNodeID(id))
	}
	if dv.Value == nil {
		return nil, opcua.NewOPCUAError(opcua.ServiceRead, opcua.StatusBadNoDataAvailable, opcua.FormatNodeID(id))
	}
	return dv.Value, nil
}

func (c *Cache) read(ctx context.Context, reads []opcua.ReadValueID) ([]opcua.DataValue, error) {
	out := make([]opcua.DataValue, 0, len(reads))
	for start := 0; start < len(reads); start += c.opts.maxNodesPerRead {
		end := min(start+c.opts.maxNodesPerRead, len(reads))
		batch := reads[start:end]

		var results []opcua.DataValue
		err := c.call(ctx, opcua.ServiceRead, len(batch), func() error {
			var err error
			results, err = c.session.Read(ctx, batch)
			return err
		})
		if err != nil {
			return nil, err
		}
		if len(results) != len(batch) {
			return nil, fmt.Errorf("%w: read returned %d results for %d items", opcua.ErrInvalidResponse, len(results), len(batch))
		}
		out = append(out, results...)
	}
	return out, nil
}
