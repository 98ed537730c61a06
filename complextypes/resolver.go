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
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	opcua "github.com/edgeo-scada/opcua-types"
	"github.com/edgeo-scada/opcua-types/nodecache"
	"github.com/edgeo-scada/opcua-types/schema"
)

// NodeCache is the view of the server address space the type system needs.
// *nodecache.Cache implements it.
type NodeCache interface {
	FindReferences(ctx context.Context, ids []opcua.NodeID, referenceType opcua.NodeID, inverse, includeSubtypes bool) ([]opcua.ReferenceDescription, error)
	Find(ctx context.Context, id opcua.NodeID) (*nodecache.Node, error)
	FindNodes(ctx context.Context, ids []opcua.NodeID) ([]*nodecache.Node, error)
	ReadValues(ctx context.Context, ids []opcua.NodeID) ([]opcua.DataValue, error)
	ReadValue(ctx context.Context, id opcua.NodeID) (*opcua.Variant, error)
}

// ServerContext bundles what a type system needs from a session.
type ServerContext interface {
	NamespaceTable() *opcua.NamespaceTable
	Factory() *opcua.EncodeableFactory
	NodeCache() NodeCache
}

// SessionContext is a ServerContext over a node cache.
type SessionContext struct {
	cache   *nodecache.Cache
	factory *opcua.EncodeableFactory
}

// NewSessionContext wraps a cache and a factory. A nil factory creates an
// empty one.
func NewSessionContext(cache *nodecache.Cache, factory *opcua.EncodeableFactory) *SessionContext {
	if factory == nil {
		factory = opcua.NewEncodeableFactory()
	}
	return &SessionContext{cache: cache, factory: factory}
}

// Connect creates a node cache over session and fetches the server
// namespace table.
func Connect(ctx context.Context, session nodecache.Session, opts ...nodecache.Option) (*SessionContext, error) {
	cache := nodecache.New(session, opts...)
	if _, err := cache.FetchNamespaceTable(ctx); err != nil {
		return nil, err
	}
	return NewSessionContext(cache, nil), nil
}

// NamespaceTable implements ServerContext.
func (s *SessionContext) NamespaceTable() *opcua.NamespaceTable { return s.cache.NamespaceTable() }

// Factory implements ServerContext.
func (s *SessionContext) Factory() *opcua.EncodeableFactory { return s.factory }

// NodeCache implements ServerContext.
func (s *SessionContext) NodeCache() NodeCache { return s.cache }

// Cache returns the underlying node cache.
func (s *SessionContext) Cache() *nodecache.Cache { return s.cache }

// Encodings are the encodings of a data type. Ids are normalized.
type Encodings struct {
	All    []opcua.ExpandedNodeID
	Binary opcua.ExpandedNodeID
	XML    opcua.ExpandedNodeID
}

// SupportedEncodings are the encoding browse names the resolver returns.
var SupportedEncodings = []string{
	opcua.BrowseNameDefaultBinary,
	opcua.BrowseNameDefaultXML,
	opcua.BrowseNameDefaultJSON,
}

// NodeCacheResolver resolves data types, encodings and dictionaries through
// the node cache of a ServerContext. Dictionaries that loaded are cached by
// node id for the lifetime of the resolver.
type NodeCacheResolver struct {
	server  ServerContext
	cache   NodeCache
	logger  *slog.Logger
	metrics *Metrics
	strict  bool

	mu           sync.RWMutex
	dictionaries map[string]*DataDictionary
}

// NewNodeCacheResolver creates a resolver. It honours WithLogger,
// WithMetrics and WithStrictDictionaryValidation.
func NewNodeCacheResolver(server ServerContext, opts ...Option) *NodeCacheResolver {
	return newNodeCacheResolver(server, applyOptions(opts))
}

func newNodeCacheResolver(server ServerContext, o *options) *NodeCacheResolver {
	return &NodeCacheResolver{
		server:       server,
		cache:        server.NodeCache(),
		logger:       o.logger,
		metrics:      o.metrics,
		strict:       o.strictDictionaries,
		dictionaries: make(map[string]*DataDictionary),
	}
}

// NamespaceTable returns the server namespace table.
func (r *NodeCacheResolver) NamespaceTable() *opcua.NamespaceTable {
	return r.server.NamespaceTable()
}

// Factory returns the encodeable type factory of the session.
func (r *NodeCacheResolver) Factory() *opcua.EncodeableFactory {
	return r.server.Factory()
}

// Metrics returns the metrics the resolver counts dictionaries in.
func (r *NodeCacheResolver) Metrics() *Metrics {
	return r.metrics
}

// Find returns one node.
func (r *NodeCacheResolver) Find(ctx context.Context, id opcua.NodeID) (*nodecache.Node, error) {
	return r.cache.Find(ctx, id)
}

// FindNodes returns nodes in one batch. Unknown nodes are nil.
func (r *NodeCacheResolver) FindNodes(ctx context.Context, ids []opcua.NodeID) ([]*nodecache.Node, error) {
	return r.cache.FindNodes(ctx, ids)
}

// references browses ids and tolerates nodes the server does not know.
func (r *NodeCacheResolver) references(ctx context.Context, ids []opcua.NodeID, referenceType opcua.NodeID, inverse bool) ([]opcua.ReferenceDescription, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	refs, err := r.cache.FindReferences(ctx, ids, referenceType, inverse, false)
	if err != nil && !opcua.IsNodeIDUnknown(err) {
		return nil, err
	}
	return refs, nil
}

// Prefetch browses the references of every id in one batch so that later
// per-node lookups are served from the cache.
func (r *NodeCacheResolver) Prefetch(ctx context.Context, ids []opcua.NodeID, referenceType opcua.NodeID, inverse bool) error {
	_, err := r.references(ctx, ids, referenceType, inverse)
	return err
}

// localID converts a reference target to a NodeID of the session.
func (r *NodeCacheResolver) localID(id opcua.ExpandedNodeID) (opcua.NodeID, error) {
	return r.NamespaceTable().ToNodeID(id)
}

// LoadDataTypes returns the DataType nodes below root following HasSubtype.
// nested walks the whole hierarchy breadth first, one batched browse per
// level; otherwise only the direct subtypes are returned. filterUATypes
// drops namespace 0 nodes from the result but still walks through them.
func (r *NodeCacheResolver) LoadDataTypes(ctx context.Context, root opcua.NodeID, nested, addRoot, filterUATypes bool) ([]*nodecache.Node, error) {
	var result []*nodecache.Node
	keep := func(n *nodecache.Node) bool {
		return n != nil && n.NodeClass == opcua.NodeClassDataType && !(filterUATypes && n.NodeID.Namespace == 0)
	}
	if addRoot {
		n, err := r.cache.Find(ctx, root)
		if err != nil {
			return nil, err
		}
		if keep(n) {
			result = append(result, n)
		}
	}

	seen := map[string]bool{opcua.FormatNodeID(root): true}
	level := []opcua.NodeID{root}
	for len(level) > 0 {
		refs, err := r.references(ctx, level, opcua.RefHasSubtype, false)
		if err != nil {
			return nil, err
		}
		var next []opcua.NodeID
		for _, ref := range refs {
			if ref.NodeClass != opcua.NodeClassUnspecified && ref.NodeClass != opcua.NodeClassDataType {
				continue
			}
			id, err := r.localID(ref.NodeID)
			if err != nil {
				r.logger.Warn("skipping data type outside the namespace table",
					slog.String("node", ref.NodeID.String()))
				continue
			}
			k := opcua.FormatNodeID(id)
			if seen[k] {
				continue
			}
			seen[k] = true
			next = append(next, id)
		}
		nodes, err := r.cache.FindNodes(ctx, next)
		if err != nil {
			return nil, err
		}
		for _, n := range nodes {
			if keep(n) {
				result = append(result, n)
			}
		}
		if !nested {
			break
		}
		level = next
	}
	r.logger.Debug("data types loaded",
		slog.String("root", opcua.FormatNodeID(root)),
		slog.Int("count", len(result)))
	return result, nil
}

// FindSuperType returns the supertype of typeID, or a null NodeID at the
// root of the hierarchy.
func (r *NodeCacheResolver) FindSuperType(ctx context.Context, typeID opcua.NodeID) (opcua.NodeID, error) {
	refs, err := r.cache.FindReferences(ctx, []opcua.NodeID{typeID}, opcua.RefHasSubtype, true, false)
	if err != nil {
		return opcua.NodeID{}, err
	}
	if len(refs) == 0 {
		return opcua.NodeID{}, nil
	}
	return r.localID(refs[0].NodeID)
}

// BrowseForEncodings returns the encodings of typeID whose browse names are
// in supported.
func (r *NodeCacheResolver) BrowseForEncodings(ctx context.Context, typeID opcua.NodeID, supported []string) (Encodings, error) {
	var enc Encodings
	refs, err := r.cache.FindReferences(ctx, []opcua.NodeID{typeID}, opcua.RefHasEncoding, false, false)
	if err != nil {
		return enc, err
	}
	ns := r.NamespaceTable()
	for _, ref := range refs {
		if !contains(supported, ref.BrowseName.Name) {
			continue
		}
		id := ns.Normalize(ref.NodeID)
		enc.All = append(enc.All, id)
		switch ref.BrowseName.Name {
		case opcua.BrowseNameDefaultBinary:
			enc.Binary = id
		case opcua.BrowseNameDefaultXML:
			enc.XML = id
		}
	}
	return enc, nil
}

func contains(list []string, s string) bool {
	for _, item := range list {
		if item == s {
			return true
		}
	}
	return false
}

// DictionaryComponent is a DataTypeDescription traced back to its data type.
type DictionaryComponent struct {
	ComponentID opcua.NodeID
	TypeID      opcua.ExpandedNodeID
	EncodingID  opcua.ExpandedNodeID
	// Node is nil when the description could not be traced.
	Node *nodecache.Node
}

// BrowseTypeIDsForDictionaryComponent walks from a DataTypeDescription back
// to its encoding and data type. When either hop does not yield exactly one
// reference the ids are null and node is nil.
func (r *NodeCacheResolver) BrowseTypeIDsForDictionaryComponent(ctx context.Context, componentID opcua.NodeID) (typeID, encodingID opcua.ExpandedNodeID, node *nodecache.Node, err error) {
	comps, err := r.BrowseTypeIDsForDictionaryComponents(ctx, []opcua.NodeID{componentID})
	if err != nil {
		return typeID, encodingID, nil, err
	}
	c := comps[0]
	return c.TypeID, c.EncodingID, c.Node, nil
}

// BrowseTypeIDsForDictionaryComponents is the batched form of
// BrowseTypeIDsForDictionaryComponent: one browse per hop and one node read
// for all components.
func (r *NodeCacheResolver) BrowseTypeIDsForDictionaryComponents(ctx context.Context, componentIDs []opcua.NodeID) ([]DictionaryComponent, error) {
	out := make([]DictionaryComponent, len(componentIDs))
	if err := r.Prefetch(ctx, componentIDs, opcua.RefHasDescription, true); err != nil {
		return nil, err
	}

	encodings := make([]opcua.NodeID, len(componentIDs))
	var encodingIDs []opcua.NodeID
	for i, id := range componentIDs {
		out[i].ComponentID = id
		refs, err := r.references(ctx, []opcua.NodeID{id}, opcua.RefHasDescription, true)
		if err != nil {
			return nil, err
		}
		if len(refs) != 1 {
			continue
		}
		enc, err := r.localID(refs[0].NodeID)
		if err != nil {
			continue
		}
		encodings[i] = enc
		encodingIDs = append(encodingIDs, enc)
	}
	if err := r.Prefetch(ctx, encodingIDs, opcua.RefHasEncoding, true); err != nil {
		return nil, err
	}

	dataTypes := make([]opcua.NodeID, len(componentIDs))
	var owners []int
	var typeIDs []opcua.NodeID
	for i, enc := range encodings {
		if enc.IsNull() {
			continue
		}
		refs, err := r.references(ctx, []opcua.NodeID{enc}, opcua.RefHasEncoding, true)
		if err != nil {
			return nil, err
		}
		if len(refs) != 1 {
			continue
		}
		dt, err := r.localID(refs[0].NodeID)
		if err != nil {
			continue
		}
		dataTypes[i] = dt
		owners = append(owners, i)
		typeIDs = append(typeIDs, dt)
	}
	if len(typeIDs) == 0 {
		return out, nil
	}

	nodes, err := r.cache.FindNodes(ctx, typeIDs)
	if err != nil {
		return nil, err
	}
	ns := r.NamespaceTable()
	for j, n := range nodes {
		if n == nil {
			continue
		}
		i := owners[j]
		out[i].TypeID = ns.ToExpanded(dataTypes[i])
		out[i].EncodingID = ns.ToExpanded(encodings[i])
		out[i].Node = n
	}
	return out, nil
}

// GetEnumTypeArray reads the EnumValues or EnumStrings property of an
// enumeration type. It returns nil when the type has neither.
func (r *NodeCacheResolver) GetEnumTypeArray(ctx context.Context, id opcua.NodeID) (interface{}, error) {
	values, err := r.GetEnumTypeArrays(ctx, []opcua.NodeID{id})
	if err != nil {
		return nil, err
	}
	return values[0], nil
}

// GetEnumTypeArrays is the batched form of GetEnumTypeArray: one browse and
// one read for every id.
func (r *NodeCacheResolver) GetEnumTypeArrays(ctx context.Context, ids []opcua.NodeID) ([]interface{}, error) {
	out := make([]interface{}, len(ids))
	if err := r.Prefetch(ctx, ids, opcua.RefHasProperty, false); err != nil {
		return nil, err
	}

	var props []opcua.NodeID
	var owners []int
	for i, id := range ids {
		refs, err := r.references(ctx, []opcua.NodeID{id}, opcua.RefHasProperty, false)
		if err != nil {
			return nil, err
		}
		ref, ok := enumProperty(refs)
		if !ok {
			continue
		}
		prop, err := r.localID(ref.NodeID)
		if err != nil {
			continue
		}
		props = append(props, prop)
		owners = append(owners, i)
	}
	if len(props) == 0 {
		return out, nil
	}

	values, err := r.cache.ReadValues(ctx, props)
	if err != nil {
		return nil, err
	}
	for j, dv := range values {
		if dv.StatusCode.IsBad() || dv.Value == nil {
			r.logger.Debug("enum property unreadable",
				slog.String("node", opcua.FormatNodeID(props[j])),
				slog.String("status", dv.StatusCode.String()))
			continue
		}
		out[owners[j]] = dv.Value.Value
	}
	return out, nil
}

// enumProperty prefers EnumValues, then EnumStrings, then a lone property.
func enumProperty(refs []opcua.ReferenceDescription) (opcua.ReferenceDescription, bool) {
	for _, name := range []string{opcua.BrowseNameEnumValues, opcua.BrowseNameEnumStrings} {
		for _, ref := range refs {
			if ref.BrowseName.Name == name {
				return ref, true
			}
		}
	}
	if len(refs) == 1 {
		return refs[0], true
	}
	return opcua.ReferenceDescription{}, false
}

// LoadDataTypeSystem loads every dictionary below a type system object
// (OPC Binary or XML Schema). All dictionary values are read in one batch
// and handed to each other as imports. A dictionary that fails to load is
// logged and skipped; it is tried again by the next call. Dictionaries in
// namespace 0 describe the standard types and are not loaded.
func (r *NodeCacheResolver) LoadDataTypeSystem(ctx context.Context, typeSystemID opcua.NodeID) (map[string]*DataDictionary, error) {
	refs, err := r.references(ctx, []opcua.NodeID{typeSystemID}, opcua.RefHasComponent, false)
	if err != nil {
		return nil, err
	}
	ns := r.NamespaceTable()
	dictionaries := make(map[string]*DataDictionary)
	imports := make(map[string][]byte)
	var ids []opcua.NodeID
	var names []string
	r.mu.RLock()
	for _, ref := range refs {
		if ref.NodeClass != opcua.NodeClassVariable {
			continue
		}
		id, err := r.localID(ref.NodeID)
		if err != nil || id.Namespace == 0 {
			continue
		}
		key := ns.ToExpanded(id).Key()
		if dict, ok := r.dictionaries[key]; ok {
			dictionaries[key] = dict
			if dict.TargetNamespace != "" {
				imports[dict.TargetNamespace] = dict.Schema
			}
			continue
		}
		ids = append(ids, id)
		names = append(names, ref.BrowseName.Name)
	}
	r.mu.RUnlock()

	raws := make([][]byte, len(ids))
	if len(ids) > 0 {
		values, err := r.cache.ReadValues(ctx, ids)
		if err != nil {
			return nil, err
		}
		for i, dv := range values {
			raw, err := dictionaryBytes(dv)
			if err != nil {
				r.logger.Warn("dictionary value unreadable",
					slog.String("dictionary", names[i]),
					slog.String("error", err.Error()))
				continue
			}
			raws[i] = normalizeDictionary(raw)
			if _, target, err := schema.Sniff(raws[i]); err == nil && target != "" {
				imports[target] = raws[i]
			}
		}
	}

	for i, id := range ids {
		if raws[i] == nil {
			r.metrics.DictionaryErrors.Inc()
			continue
		}
		dict, err := LoadDataDictionary(ctx, r, id, names[i], raws[i], imports)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return nil, ctxErr
			}
			r.metrics.DictionaryErrors.Inc()
			r.logger.Error("dictionary load failed",
				slog.String("dictionary", names[i]),
				slog.String("node", opcua.FormatNodeID(id)),
				slog.String("error", err.Error()))
			continue
		}
		r.metrics.DictionariesLoaded.Inc()
		dictionaries[dict.DictionaryID.Key()] = dict
		r.mu.Lock()
		r.dictionaries[dict.DictionaryID.Key()] = dict
		r.mu.Unlock()
	}
	return dictionaries, nil
}

func dictionaryBytes(dv opcua.DataValue) ([]byte, error) {
	if dv.StatusCode.IsBad() {
		return nil, dv.StatusCode
	}
	if dv.Value == nil {
		return nil, fmt.Errorf("%w: no value", ErrInvalidDictionary)
	}
	switch v := dv.Value.Value.(type) {
	case []byte:
		return v, nil
	case string:
		return []byte(v), nil
	}
	return nil, fmt.Errorf("%w: value is %T", ErrInvalidDictionary, dv.Value.Value)
}

// isCanceled reports whether err stems from context cancellation.
func isCanceled(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}
