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
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/require"

	opcua "github.com/edgeo-scada/opcua-types"
	"github.com/edgeo-scada/opcua-types/addrspace"
	"github.com/edgeo-scada/opcua-types/complextypes"
)

const testNamespace = "urn:edgeo:test"

var discard = slog.New(slog.NewTextHandler(io.Discard, nil))

// server is an in-memory address space with one custom namespace.
type server struct {
	t   *testing.T
	mem *addrspace.Memory
	ns  uint16
}

func newServer(t *testing.T) *server {
	t.Helper()
	mem := addrspace.NewMemory(addrspace.WithLogger(discard))
	return &server{t: t, mem: mem, ns: mem.AddNamespace(testNamespace)}
}

func (s *server) id(n uint32) opcua.NodeID {
	return opcua.NewNumericNodeID(s.ns, n)
}

func (s *server) expanded(n uint32) opcua.ExpandedNodeID {
	return opcua.ExpandedNodeID{NodeID: opcua.NewNumericNodeID(0, n), NamespaceURI: testNamespace}
}

func (s *server) name(name string) opcua.QualifiedName {
	return opcua.QualifiedName{NamespaceIndex: s.ns, Name: name}
}

// addEnum adds an enumeration. def may be nil.
func (s *server) addEnum(id uint32, name string, def *opcua.EnumDefinition) opcua.NodeID {
	s.t.Helper()
	typeID := s.id(id)
	if def == nil {
		require.NoError(s.t, s.mem.AddDataType(typeID, s.name(name), opcua.DataTypeEnumeration, false, nil))
	} else {
		require.NoError(s.t, s.mem.AddDataType(typeID, s.name(name), opcua.DataTypeEnumeration, false, def))
	}
	return typeID
}

// addStruct adds a structure below superType with a Default Binary
// encoding at id+1000. def may be nil.
func (s *server) addStruct(id uint32, name string, superType opcua.NodeID, def *opcua.StructureDefinition) opcua.NodeID {
	s.t.Helper()
	typeID := s.id(id)
	encodingID := s.id(id + 1000)
	if def == nil {
		require.NoError(s.t, s.mem.AddDataType(typeID, s.name(name), superType, false, nil))
	} else {
		if def.DefaultEncodingID.IsNull() {
			def.DefaultEncodingID = encodingID
		}
		require.NoError(s.t, s.mem.AddDataType(typeID, s.name(name), superType, false, def))
	}
	require.NoError(s.t, s.mem.AddEncoding(typeID, encodingID, opcua.BrowseNameDefaultBinary))
	return typeID
}

// entry is one DataTypeDescription of a test dictionary. typeID is the
// described structure, whose encoding is at typeID+1000; 0 adds an entry
// without an encoding, as for enumerations.
type entry struct {
	name   string
	typeID uint32
}

// addDictionary adds an OPC Binary dictionary at id. Its descriptions are
// at id+1, id+2 and so on.
func (s *server) addDictionary(id uint32, name, bsd string, entries ...entry) opcua.NodeID {
	s.t.Helper()
	dictID := s.id(id)
	require.NoError(s.t, s.mem.AddDictionary(opcua.ObjectOPCBinarySchemaTypeSystem, dictID, name, []byte(bsd), testNamespace))
	for i, e := range entries {
		var encodingID opcua.NodeID
		if e.typeID != 0 {
			encodingID = s.id(e.typeID + 1000)
		}
		require.NoError(s.t, s.mem.AddDictionaryEntry(dictID, s.id(id+1+uint32(i)), e.name, encodingID))
	}
	return dictID
}

func (s *server) connect() *complextypes.SessionContext {
	s.t.Helper()
	sc, err := complextypes.Connect(context.Background(), s.mem)
	require.NoError(s.t, err)
	return sc
}

func (s *server) typeSystem(opts ...complextypes.Option) (*complextypes.ComplexTypeSystem, *complextypes.SessionContext) {
	s.t.Helper()
	sc := s.connect()
	opts = append([]complextypes.Option{complextypes.WithLogger(discard)}, opts...)
	return complextypes.New(sc, opts...), sc
}

func field(name string, dataType opcua.NodeID) opcua.StructureField {
	return opcua.StructureField{Name: name, DataType: dataType, ValueRank: opcua.ValueRankScalar}
}

func arrayField(name string, dataType opcua.NodeID) opcua.StructureField {
	return opcua.StructureField{Name: name, DataType: dataType, ValueRank: opcua.ValueRankOneDimension}
}

func enumDef(names ...string) *opcua.EnumDefinition {
	def := &opcua.EnumDefinition{}
	for i, n := range names {
		def.Fields = append(def.Fields, opcua.EnumField{Name: n, Value: int64(i), DisplayName: opcua.NewLocalizedText(n)})
	}
	return def
}

func bsd(body string) string {
	return `<?xml version="1.0" encoding="utf-8"?>
<opc:TypeDictionary
    xmlns:opc="http://opcfoundation.org/BinarySchema/"
    xmlns:ua="http://opcfoundation.org/UA/"
    xmlns:tns="` + testNamespace + `"
    DefaultByteOrder="LittleEndian"
    TargetNamespace="` + testNamespace + `">
` + body + `
</opc:TypeDictionary>`
}
