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
	"sort"
	"sync"
)

// Encodeable is a decoded structure value that can write itself back.
type Encodeable interface {
	BinaryEncodingID() ExpandedNodeID
	EncodeBinary(e *Encoder) error
}

// EncodeableType describes a structure or enumeration known to the codec.
type EncodeableType interface {
	// TypeID is the normalized DataType node id.
	TypeID() ExpandedNodeID
	BinaryEncodingID() ExpandedNodeID
	XMLEncodingID() ExpandedNodeID
	Name() QualifiedName
	// DecodeBinary decodes one value of the type from d.
	DecodeBinary(d *Decoder) (interface{}, error)
}

// EncodeableFactory is the registry of encodeable types keyed by normalized
// ExpandedNodeID. A type is typically registered under its data type id
// and each of its encoding ids. Safe for concurrent use.
type EncodeableFactory struct {
	mu    sync.RWMutex
	types map[string]EncodeableType
}

// NewEncodeableFactory creates an empty factory.
func NewEncodeableFactory() *EncodeableFactory {
	return &EncodeableFactory{types: make(map[string]EncodeableType)}
}

// GetSystemType returns the type registered under id, or nil.
func (f *EncodeableFactory) GetSystemType(id ExpandedNodeID) EncodeableType {
	if id.IsNull() {
		return nil
	}
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.types[id.Key()]
}

// AddEncodeableType registers t under id. Null ids are ignored.
func (f *EncodeableFactory) AddEncodeableType(id ExpandedNodeID, t EncodeableType) {
	if id.IsNull() || t == nil {
		return
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.types[id.Key()] = t
}

// Len returns the number of registered ids.
func (f *EncodeableFactory) Len() int {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return len(f.types)
}

// Types returns the distinct registered types ordered by type id.
func (f *EncodeableFactory) Types() []EncodeableType {
	f.mu.RLock()
	seen := make(map[string]EncodeableType, len(f.types))
	for _, t := range f.types {
		seen[t.TypeID().Key()] = t
	}
	f.mu.RUnlock()

	keys := make([]string, 0, len(seen))
	for k := range seen {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	out := make([]EncodeableType, 0, len(keys))
	for _, k := range keys {
		out = append(out, seen[k])
	}
	return out
}

// builtinType adapts a hand-written codec to EncodeableType.
type builtinType struct {
	typeID   ExpandedNodeID
	binaryID ExpandedNodeID
	name     string
	decode   func(d *Decoder) (interface{}, error)
}

func (t *builtinType) TypeID() ExpandedNodeID           { return t.typeID }
func (t *builtinType) BinaryEncodingID() ExpandedNodeID { return t.binaryID }
func (t *builtinType) XMLEncodingID() ExpandedNodeID    { return ExpandedNodeID{} }
func (t *builtinType) Name() QualifiedName              { return QualifiedName{Name: t.name} }

func (t *builtinType) DecodeBinary(d *Decoder) (interface{}, error) {
	return t.decode(d)
}

// builtinTypes holds the namespace 0 types the decoder always knows.
var builtinTypes = NewEncodeableFactory()

func registerBuiltin(name string, typeID, binaryID uint32, decode func(d *Decoder) (interface{}, error)) {
	t := &builtinType{
		typeID:   NewExpandedNodeID(NewNumericNodeID(0, typeID)),
		binaryID: NewExpandedNodeID(NewNumericNodeID(0, binaryID)),
		name:     name,
		decode:   decode,
	}
	builtinTypes.AddEncodeableType(t.typeID, t)
	builtinTypes.AddEncodeableType(t.binaryID, t)
}

// BuiltinEncodeableType returns a namespace 0 type known to every decoder.
func BuiltinEncodeableType(id ExpandedNodeID) EncodeableType {
	return builtinTypes.GetSystemType(id)
}
