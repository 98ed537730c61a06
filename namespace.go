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

package opcua

import (
	"fmt"
	"sync"
)

// NamespaceURI is the URI of namespace 0.
const NamespaceURI = "http://opcfoundation.org/UA/"

// NamespaceTable maps namespace indexes to URIs. Index 0 is always the
// OPC UA namespace. Safe for concurrent use.
type NamespaceTable struct {
	mu   sync.RWMutex
	uris []string
}

// NewNamespaceTable creates a table from a server NamespaceArray. A missing
// or different entry 0 is replaced by the OPC UA namespace.
func NewNamespaceTable(uris ...string) *NamespaceTable {
	t := &NamespaceTable{uris: []string{NamespaceURI}}
	if len(uris) > 0 {
		t.uris = append(t.uris, uris[1:]...)
	}
	return t
}

// URIs returns a copy of the table.
func (t *NamespaceTable) URIs() []string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return append([]string(nil), t.uris...)
}

// Len returns the number of namespaces.
func (t *NamespaceTable) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.uris)
}

// GetURI returns the URI registered at index.
func (t *NamespaceTable) GetURI(index uint16) (string, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if int(index) >= len(t.uris) {
		return "", false
	}
	return t.uris[index], true
}

// GetIndex returns the index of uri, or -1 when unknown.
func (t *NamespaceTable) GetIndex(uri string) int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	for i, u := range t.uris {
		if u == uri {
			return i
		}
	}
	return -1
}

// Append adds uri if it is not present and returns its index.
func (t *NamespaceTable) Append(uri string) uint16 {
	t.mu.Lock()
	defer t.mu.Unlock()
	for i, u := range t.uris {
		if u == uri {
			return uint16(i)
		}
	}
	t.uris = append(t.uris, uri)
	return uint16(len(t.uris) - 1)
}

// ToNodeID resolves an expanded id to a local NodeID.
func (t *NamespaceTable) ToNodeID(e ExpandedNodeID) (NodeID, error) {
	if e.ServerIndex != 0 {
		return NodeID{}, fmt.Errorf("%w: %s refers to a remote server", ErrInvalidNodeID, e)
	}
	id := e.NodeID
	if e.NamespaceURI == "" {
		return id, nil
	}
	idx := t.GetIndex(e.NamespaceURI)
	if idx < 0 {
		return NodeID{}, fmt.Errorf("%w: namespace %q is not in the namespace table", ErrInvalidNodeID, e.NamespaceURI)
	}
	id.Namespace = uint16(idx)
	return id, nil
}

// ToExpanded converts a local NodeID to its absolute form.
func (t *NamespaceTable) ToExpanded(id NodeID) ExpandedNodeID {
	return t.Normalize(NewExpandedNodeID(id))
}

// Normalize returns the canonical form of e: ids outside namespace 0 carry
// the namespace URI with index 0, namespace 0 ids carry no URI. Ids whose
// namespace cannot be resolved are returned unchanged.
func (t *NamespaceTable) Normalize(e ExpandedNodeID) ExpandedNodeID {
	if e.ServerIndex != 0 {
		return e
	}
	if e.NamespaceURI != "" {
		if e.NamespaceURI == NamespaceURI {
			e.NamespaceURI = ""
		}
		e.NodeID.Namespace = 0
		return e
	}
	if e.NodeID.Namespace == 0 {
		return e
	}
	uri, ok := t.GetURI(e.NodeID.Namespace)
	if !ok {
		return e
	}
	e.NamespaceURI = uri
	e.NodeID.Namespace = 0
	return e
}

// Key returns a stable map key for a normalized id.
func (e ExpandedNodeID) Key() string {
	return e.String()
}
