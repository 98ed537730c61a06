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

// Package addrspace implements an in-memory OPC UA address space that
// answers Browse, BrowseNext and Read. It carries the standard type
// hierarchy and can be populated from code or from a YAML document.
package addrspace

import (
	"context"
	"encoding/binary"
	"fmt"
	"log/slog"
	"sync"
	"time"

	opcua "github.com/edgeo-scada/opcua-types"
	"github.com/edgeo-scada/opcua-types/nodecache"
)

var _ nodecache.Session = (*Memory)(nil)

// Memory is an in-memory address space. It is safe for concurrent use.
type Memory struct {
	mu         sync.RWMutex
	nodes      map[string]*memoryNode
	namespaces []string

	continuations map[string]continuation
	nextPoint     uint64

	wireRoundTrip bool
	logger        *slog.Logger
}

type memoryNode struct {
	nodeID      opcua.NodeID
	nodeClass   opcua.NodeClass
	browseName  opcua.QualifiedName
	displayName opcua.LocalizedText
	description opcua.LocalizedText
	isAbstract  bool
	value       *opcua.Variant
	dataType    opcua.NodeID
	definition  opcua.DataTypeDefinition
	references  []memoryReference
}

type continuation struct {
	rest     []opcua.ReferenceDescription
	pageSize uint32
}

type memoryReference struct {
	referenceType opcua.NodeID
	isForward     bool
	target        opcua.NodeID
}

// Option configures a Memory address space.
type Option func(*Memory)

// WithWireRoundTrip controls whether values returned by Read are encoded to
// the binary wire format and decoded again, as a real session would. It is
// enabled by default.
func WithWireRoundTrip(enabled bool) Option {
	return func(m *Memory) {
		m.wireRoundTrip = enabled
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(m *Memory) {
		if logger != nil {
			m.logger = logger
		}
	}
}

// NewMemory creates an address space holding the standard nodes.
func NewMemory(opts ...Option) *Memory {
	m := &Memory{
		nodes:         make(map[string]*memoryNode),
		namespaces:    []string{opcua.NamespaceURI},
		continuations: make(map[string]continuation),
		wireRoundTrip: true,
		logger:        slog.Default(),
	}
	for _, opt := range opts {
		opt(m)
	}
	m.initDefaultNodes()
	return m
}

func key(id opcua.NodeID) string {
	return opcua.FormatNodeID(id)
}

// Browse implements nodecache.Session.
func (m *Memory) Browse(ctx context.Context, nodesToBrowse []opcua.BrowseDescription, maxReferencesPerNode uint32) ([]opcua.BrowseResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	results := make([]opcua.BrowseResult, len(nodesToBrowse))
	for i, desc := range nodesToBrowse {
		node, ok := m.nodes[key(desc.NodeID)]
		if !ok {
			results[i] = opcua.BrowseResult{StatusCode: opcua.StatusBadNodeIdUnknown}
			continue
		}
		if desc.BrowseDirection > opcua.BrowseDirectionBoth {
			results[i] = opcua.BrowseResult{StatusCode: opcua.StatusBadBrowseDirectionInvalid}
			continue
		}
		if !desc.ReferenceTypeID.IsNull() {
			if rt, ok := m.nodes[key(desc.ReferenceTypeID)]; !ok || rt.nodeClass != opcua.NodeClassReferenceType {
				results[i] = opcua.BrowseResult{StatusCode: opcua.StatusBadReferenceTypeIdInvalid}
				continue
			}
		}
		refs := m.collectReferences(node, desc)
		results[i] = m.page(refs, maxReferencesPerNode)
	}
	return results, nil
}

// BrowseNext implements nodecache.Session.
func (m *Memory) BrowseNext(ctx context.Context, releaseContinuationPoints bool, continuationPoints [][]byte) ([]opcua.BrowseResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	results := make([]opcua.BrowseResult, len(continuationPoints))
	for i, cp := range continuationPoints {
		next, ok := m.continuations[string(cp)]
		if !ok {
			results[i] = opcua.BrowseResult{StatusCode: opcua.StatusBadContinuationPointInvalid}
			continue
		}
		delete(m.continuations, string(cp))
		if releaseContinuationPoints {
			results[i] = opcua.BrowseResult{StatusCode: opcua.StatusGood}
			continue
		}
		results[i] = m.page(next.rest, next.pageSize)
	}
	return results, nil
}

// page returns the first pageSize references and stores the rest under a
// new continuation point.
func (m *Memory) page(refs []opcua.ReferenceDescription, pageSize uint32) opcua.BrowseResult {
	if pageSize == 0 || uint32(len(refs)) <= pageSize {
		return opcua.BrowseResult{StatusCode: opcua.StatusGood, References: refs}
	}
	m.nextPoint++
	cp := make([]byte, 8)
	binary.LittleEndian.PutUint64(cp, m.nextPoint)
	m.continuations[string(cp)] = continuation{rest: refs[pageSize:], pageSize: pageSize}
	return opcua.BrowseResult{
		StatusCode:        opcua.StatusGood,
		ContinuationPoint: cp,
		References:        refs[:pageSize],
	}
}

func (m *Memory) collectReferences(node *memoryNode, desc opcua.BrowseDescription) []opcua.ReferenceDescription {
	var out []opcua.ReferenceDescription
	for _, ref := range node.references {
		switch desc.BrowseDirection {
		case opcua.BrowseDirectionForward:
			if !ref.isForward {
				continue
			}
		case opcua.BrowseDirectionInverse:
			if ref.isForward {
				continue
			}
		}
		if !desc.ReferenceTypeID.IsNull() && !ref.referenceType.Equal(desc.ReferenceTypeID) {
			if !desc.IncludeSubtypes || !m.isSubtypeOf(ref.referenceType, desc.ReferenceTypeID) {
				continue
			}
		}
		target, ok := m.nodes[key(ref.target)]
		if !ok {
			continue
		}
		if desc.NodeClassMask != 0 && desc.NodeClassMask&uint32(target.nodeClass) == 0 {
			continue
		}
		out = append(out, opcua.ReferenceDescription{
			ReferenceTypeID: ref.referenceType,
			IsForward:       ref.isForward,
			NodeID:          opcua.NewExpandedNodeID(target.nodeID),
			BrowseName:      target.browseName,
			DisplayName:     target.displayName,
			NodeClass:       target.nodeClass,
			TypeDefinition:  m.typeDefinition(target),
		})
	}
	return out
}

func (m *Memory) typeDefinition(n *memoryNode) opcua.ExpandedNodeID {
	for _, ref := range n.references {
		if ref.isForward && ref.referenceType.Numeric == opcua.IDHasTypeDefinition && ref.referenceType.Namespace == 0 {
			return opcua.NewExpandedNodeID(ref.target)
		}
	}
	return opcua.ExpandedNodeID{}
}

// isSubtypeOf walks the HasSubtype hierarchy from typeID up to base.
func (m *Memory) isSubtypeOf(typeID, base opcua.NodeID) bool {
	current := typeID
	for depth := 0; depth < 100; depth++ {
		if current.Equal(base) {
			return true
		}
		node, ok := m.nodes[key(current)]
		if !ok {
			return false
		}
		next, found := opcua.NodeID{}, false
		for _, ref := range node.references {
			if !ref.isForward && ref.referenceType.Equal(opcua.RefHasSubtype) {
				next, found = ref.target, true
				break
			}
		}
		if !found {
			return false
		}
		current = next
	}
	return false
}

// Read implements nodecache.Session.
func (m *Memory) Read(ctx context.Context, nodesToRead []opcua.ReadValueID) ([]opcua.DataValue, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	now := time.Now()
	results := make([]opcua.DataValue, len(nodesToRead))
	for i, req := range nodesToRead {
		node, ok := m.nodes[key(req.NodeID)]
		if !ok {
			results[i] = opcua.DataValue{StatusCode: opcua.StatusBadNodeIdUnknown}
			continue
		}
		v, status := m.readAttribute(node, req.AttributeID)
		if status.IsBad() {
			results[i] = opcua.DataValue{StatusCode: status}
			continue
		}
		dv := opcua.DataValue{Value: v, ServerTimestamp: now}
		if req.AttributeID == opcua.AttributeValue {
			dv.SourceTimestamp = now
		}
		if m.wireRoundTrip {
			dv = m.roundTrip(dv)
		}
		results[i] = dv
	}
	return results, nil
}

func (m *Memory) readAttribute(n *memoryNode, attr opcua.AttributeID) (*opcua.Variant, opcua.StatusCode) {
	isType := n.nodeClass == opcua.NodeClassDataType || n.nodeClass == opcua.NodeClassObjectType ||
		n.nodeClass == opcua.NodeClassVariableType || n.nodeClass == opcua.NodeClassReferenceType
	switch attr {
	case opcua.AttributeNodeID:
		return opcua.NewVariant(opcua.TypeNodeID, n.nodeID), opcua.StatusGood
	case opcua.AttributeNodeClass:
		return opcua.NewVariant(opcua.TypeInt32, int32(n.nodeClass)), opcua.StatusGood
	case opcua.AttributeBrowseName:
		return opcua.NewVariant(opcua.TypeQualifiedName, n.browseName), opcua.StatusGood
	case opcua.AttributeDisplayName:
		return opcua.NewVariant(opcua.TypeLocalizedText, n.displayName), opcua.StatusGood
	case opcua.AttributeDescription:
		return opcua.NewVariant(opcua.TypeLocalizedText, n.description), opcua.StatusGood
	case opcua.AttributeIsAbstract:
		if !isType {
			return nil, opcua.StatusBadAttributeIdInvalid
		}
		return opcua.NewVariant(opcua.TypeBoolean, n.isAbstract), opcua.StatusGood
	case opcua.AttributeValue:
		if n.nodeClass != opcua.NodeClassVariable && n.nodeClass != opcua.NodeClassVariableType {
			return nil, opcua.StatusBadAttributeIdInvalid
		}
		if n.value == nil {
			return &opcua.Variant{}, opcua.StatusGood
		}
		return n.value, opcua.StatusGood
	case opcua.AttributeDataType:
		if n.nodeClass != opcua.NodeClassVariable && n.nodeClass != opcua.NodeClassVariableType {
			return nil, opcua.StatusBadAttributeIdInvalid
		}
		return opcua.NewVariant(opcua.TypeNodeID, n.dataType), opcua.StatusGood
	case opcua.AttributeDataTypeDefinition:
		if n.nodeClass != opcua.NodeClassDataType || n.definition == nil {
			return nil, opcua.StatusBadAttributeIdInvalid
		}
		return opcua.NewVariant(opcua.TypeExtensionObject, opcua.ExtensionObject{Value: n.definition}), opcua.StatusGood
	}
	return nil, opcua.StatusBadAttributeIdInvalid
}

// roundTrip passes a value through the binary codec.
func (m *Memory) roundTrip(dv opcua.DataValue) opcua.DataValue {
	ns := opcua.NewNamespaceTable(m.namespaces...)
	e := opcua.NewEncoder().WithNamespaces(ns)
	if err := e.WriteDataValue(dv); err != nil {
		m.logger.Warn("cannot encode value", slog.String("error", err.Error()))
		return opcua.DataValue{StatusCode: opcua.StatusBadEncodingError}
	}
	out, err := opcua.NewDecoder(e.Bytes()).WithTypes(ns, nil).ReadDataValue()
	if err != nil {
		m.logger.Warn("cannot decode value", slog.String("error", err.Error()))
		return opcua.DataValue{StatusCode: opcua.StatusBadDecodingError}
	}
	return out
}

// NamespaceArray returns the namespace URIs of the address space.
func (m *Memory) NamespaceArray() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]string(nil), m.namespaces...)
}

// NamespaceIndex returns the index of uri, or -1.
func (m *Memory) NamespaceIndex(uri string) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for i, u := range m.namespaces {
		if u == uri {
			return i
		}
	}
	return -1
}

func (m *Memory) lookup(id opcua.NodeID) (*memoryNode, error) {
	n, ok := m.nodes[key(id)]
	if !ok {
		return nil, fmt.Errorf("%w: %s", opcua.StatusBadNodeIdUnknown, opcua.FormatNodeID(id))
	}
	return n, nil
}
