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

package addrspace

import (
	"context"
	"strings"
	"testing"
	"testing/fstest"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	opcua "github.com/edgeo-scada/opcua-types"
)

func browseOne(t *testing.T, m *Memory, desc opcua.BrowseDescription) []opcua.ReferenceDescription {
	t.Helper()
	results, err := m.Browse(context.Background(), []opcua.BrowseDescription{desc}, 0)
	require.NoError(t, err)
	require.Len(t, results, 1)
	require.Equal(t, opcua.StatusGood, results[0].StatusCode)
	return results[0].References
}

func TestBrowseUnknownNode(t *testing.T) {
	m := NewMemory()
	results, err := m.Browse(context.Background(), []opcua.BrowseDescription{
		{NodeID: opcua.NewNumericNodeID(3, 1)},
		{NodeID: opcua.DataTypeStructure, ReferenceTypeID: opcua.DataTypeInt32},
	}, 0)
	require.NoError(t, err)
	assert.Equal(t, opcua.StatusBadNodeIdUnknown, results[0].StatusCode)
	assert.Equal(t, opcua.StatusBadReferenceTypeIdInvalid, results[1].StatusCode)
}

func TestBrowseIncludeSubtypes(t *testing.T) {
	m := NewMemory()
	objType := opcua.NewNumericNodeID(1, 1)
	m.AddNode(objType, opcua.NodeClassObject, opcua.QualifiedName{NamespaceIndex: 1, Name: "Pump"}, "")
	m.AddNode(opcua.NewNumericNodeID(1, 2), opcua.NodeClassObject, opcua.QualifiedName{NamespaceIndex: 1, Name: "Motor"}, "")
	require.NoError(t, m.AddReference(objType, opcua.NewNumericNodeID(0, 49), opcua.NewNumericNodeID(1, 2)))

	exact := browseOne(t, m, opcua.BrowseDescription{NodeID: objType, ReferenceTypeID: opcua.RefHasComponent})
	assert.Empty(t, exact)

	withSubtypes := browseOne(t, m, opcua.BrowseDescription{
		NodeID:          objType,
		ReferenceTypeID: opcua.RefHasComponent,
		IncludeSubtypes: true,
	})
	require.Len(t, withSubtypes, 1)
	assert.Equal(t, "Motor", withSubtypes[0].BrowseName.Name)
	assert.True(t, withSubtypes[0].TypeDefinition.IsNull())

	both := browseOne(t, m, opcua.BrowseDescription{
		NodeID:          opcua.NewNumericNodeID(1, 2),
		BrowseDirection: opcua.BrowseDirectionBoth,
	})
	require.Len(t, both, 1)
	assert.False(t, both[0].IsForward)
}

func TestBrowseDirectionAndNodeClassMask(t *testing.T) {
	m := NewMemory()
	inverse := browseOne(t, m, opcua.BrowseDescription{
		NodeID:          opcua.DataTypeInt32,
		BrowseDirection: opcua.BrowseDirectionInverse,
		ReferenceTypeID: opcua.RefHasSubtype,
	})
	require.Len(t, inverse, 1)
	assert.Equal(t, "Integer", inverse[0].BrowseName.Name)

	objects := browseOne(t, m, opcua.BrowseDescription{
		NodeID:        opcua.NewNumericNodeID(0, 90),
		NodeClassMask: uint32(opcua.NodeClassObject),
	})
	var names []string
	for _, r := range objects {
		names = append(names, r.BrowseName.Name)
	}
	assert.ElementsMatch(t, []string{"OPC Binary", "XML Schema"}, names)
}

func TestBrowseNextPaging(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	results, err := m.Browse(ctx, []opcua.BrowseDescription{{
		NodeID:          opcua.NewNumericNodeID(0, opcua.IDNumber),
		ReferenceTypeID: opcua.RefHasSubtype,
	}}, 3)
	require.NoError(t, err)
	require.Len(t, results[0].References, 3)
	cp := results[0].ContinuationPoint
	require.NotEmpty(t, cp)

	next, err := m.BrowseNext(ctx, false, [][]byte{cp})
	require.NoError(t, err)
	assert.Len(t, next[0].References, 2)
	assert.Empty(t, next[0].ContinuationPoint)

	again, err := m.BrowseNext(ctx, false, [][]byte{cp})
	require.NoError(t, err)
	assert.Equal(t, opcua.StatusBadContinuationPointInvalid, again[0].StatusCode)
}

func TestBrowseNextRelease(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	results, err := m.Browse(ctx, []opcua.BrowseDescription{{
		NodeID:          opcua.NewNumericNodeID(0, opcua.IDNumber),
		ReferenceTypeID: opcua.RefHasSubtype,
	}}, 1)
	require.NoError(t, err)

	released, err := m.BrowseNext(ctx, true, [][]byte{results[0].ContinuationPoint})
	require.NoError(t, err)
	assert.Equal(t, opcua.StatusGood, released[0].StatusCode)
	assert.Empty(t, released[0].References)
	assert.Empty(t, m.continuations)
}

func TestReadAttributes(t *testing.T) {
	m := NewMemory()
	results, err := m.Read(context.Background(), []opcua.ReadValueID{
		{NodeID: opcua.DataTypeStructure, AttributeID: opcua.AttributeIsAbstract},
		{NodeID: opcua.DataTypeStructure, AttributeID: opcua.AttributeValue},
		{NodeID: opcua.NewNumericNodeID(0, 98), AttributeID: opcua.AttributeDataTypeDefinition},
		{NodeID: opcua.NewNumericNodeID(4, 4), AttributeID: opcua.AttributeBrowseName},
	})
	require.NoError(t, err)

	assert.Equal(t, true, results[0].Value.Value)
	assert.Equal(t, opcua.StatusBadAttributeIdInvalid, results[1].StatusCode)

	eo, ok := results[2].Value.Value.(opcua.ExtensionObject)
	require.True(t, ok)
	def, ok := eo.Value.(*opcua.EnumDefinition)
	require.True(t, ok, "got %T", eo.Value)
	assert.Len(t, def.Fields, 5)

	assert.Equal(t, opcua.StatusBadNodeIdUnknown, results[3].StatusCode)
}

func TestEnumPropertiesSurviveWireRoundTrip(t *testing.T) {
	m := NewMemory()
	typeID := opcua.NewNumericNodeID(1, 3001)
	require.NoError(t, m.AddDataType(typeID, opcua.QualifiedName{NamespaceIndex: 1, Name: "Mode"}, opcua.DataTypeEnumeration, false, nil))
	require.NoError(t, m.AddEnumValues(typeID,
		opcua.EnumValueType{Value: 1, DisplayName: opcua.NewLocalizedText("Auto")},
		opcua.EnumValueType{Value: 4, DisplayName: opcua.NewLocalizedText("Manual")},
	))

	props := browseOne(t, m, opcua.BrowseDescription{NodeID: typeID, ReferenceTypeID: opcua.RefHasProperty})
	require.Len(t, props, 1)
	assert.Equal(t, opcua.BrowseNameEnumValues, props[0].BrowseName.Name)

	results, err := m.Read(context.Background(), []opcua.ReadValueID{{NodeID: props[0].NodeID.NodeID, AttributeID: opcua.AttributeValue}})
	require.NoError(t, err)
	items := results[0].Value.Value.([]interface{})
	require.Len(t, items, 2)
	got := items[1].(opcua.ExtensionObject).Value.(*opcua.EnumValueType)
	assert.Equal(t, int64(4), got.Value)
}

func TestSetValueRejectsObjects(t *testing.T) {
	m := NewMemory()
	err := m.SetValue(opcua.NewNumericNodeID(0, 85), opcua.NewVariant(opcua.TypeInt32, int32(1)))
	assert.ErrorIs(t, err, opcua.StatusBadNotWritable)

	err = m.SetValue(opcua.NewNumericNodeID(7, 7), nil)
	assert.ErrorIs(t, err, opcua.StatusBadNodeIdUnknown)
}

const demoDocument = `
namespaces:
  - urn:demo
dataTypes:
  - nodeId: "nsu=urn:demo;i=3001"
    browseName: Color
    superType: "i=29"
    enum:
      fields:
        - {name: Red, value: 0}
        - {name: Green, value: 1}
  - nodeId: "nsu=urn:demo;i=3010"
    browseName: Point
    superType: "i=22"
    encodings:
      binary: "nsu=urn:demo;i=3011"
    structure:
      fields:
        - {name: X, dataType: "i=11"}
        - {name: Tags, dataType: "i=12", valueRank: 1}
        - {name: Color, dataType: "nsu=urn:demo;i=3001", isOptional: true}
  - nodeId: "nsu=urn:demo;i=3020"
    browseName: Legacy
    superType: "i=22"
    encodings:
      binary: "nsu=urn:demo;i=3021"
dictionaries:
  - nodeId: "nsu=urn:demo;i=4000"
    name: Demo
    namespaceUri: urn:demo
    schemaFile: demo.bsd
    entries:
      - {nodeId: "nsu=urn:demo;i=4001", name: Legacy, encoding: "nsu=urn:demo;i=3021"}
`

func TestLoadYAML(t *testing.T) {
	fsys := fstest.MapFS{
		"demo.yaml": &fstest.MapFile{Data: []byte(demoDocument)},
		"demo.bsd":  &fstest.MapFile{Data: []byte("<opc:TypeDictionary/>")},
	}
	m, err := Load(fsys, "demo.yaml")
	require.NoError(t, err)
	assert.Equal(t, 1, m.NamespaceIndex("urn:demo"))

	point := m.nodes[key(opcua.NewNumericNodeID(1, 3010))]
	require.NotNil(t, point)
	want := &opcua.StructureDefinition{
		DefaultEncodingID: opcua.NewNumericNodeID(1, 3011),
		BaseDataType:      opcua.DataTypeStructure,
		Fields: []opcua.StructureField{
			{Name: "X", DataType: opcua.NewNumericNodeID(0, 11), ValueRank: -1},
			{Name: "Tags", DataType: opcua.DataTypeString, ValueRank: 1},
			{Name: "Color", DataType: opcua.NewNumericNodeID(1, 3001), ValueRank: -1, IsOptional: true},
		},
	}
	got, ok := point.definition.(*opcua.StructureDefinition)
	require.True(t, ok, "got %T", point.definition)
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("Point definition mismatch (-want +got):\n%s", diff)
	}

	components := browseOne(t, m, opcua.BrowseDescription{
		NodeID:          opcua.ObjectOPCBinarySchemaTypeSystem,
		ReferenceTypeID: opcua.RefHasComponent,
	})
	require.Len(t, components, 1)
	assert.Equal(t, "Demo", components[0].BrowseName.Name)

	desc := browseOne(t, m, opcua.BrowseDescription{
		NodeID:          opcua.NewNumericNodeID(1, 3021),
		ReferenceTypeID: opcua.RefHasDescription,
	})
	require.Len(t, desc, 1)
	assert.Equal(t, uint32(4001), desc[0].NodeID.NodeID.Numeric)
}

func TestLoadYAMLErrors(t *testing.T) {
	tests := []struct {
		name string
		doc  string
		want string
	}{
		{"unknown field", "dataTypez: []", "field dataTypez not found"},
		{"undeclared namespace", "dataTypes:\n  - {nodeId: \"nsu=urn:x;i=1\", browseName: A}", "not declared"},
		{"unknown structure type", "dataTypes:\n  - {nodeId: \"ns=1;i=1\", browseName: A, structure: {structureType: Bogus}}", "unknown structure type"},
		{"schema file without fs", "dictionaries:\n  - {nodeId: \"ns=1;i=9\", name: D, schemaFile: x.bsd}", "without a file system"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := NewMemory().LoadYAML(strings.NewReader(tt.doc), nil)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}
