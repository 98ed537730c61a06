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
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	opcua "github.com/edgeo-scada/opcua-types"
	"github.com/edgeo-scada/opcua-types/complextypes"
)

var dataTypeDouble = opcua.NewNumericNodeID(0, opcua.IDDouble)

func load(t *testing.T, ts *complextypes.ComplexTypeSystem, onlyEnums bool) bool {
	t.Helper()
	ok, err := ts.Load(context.Background(), onlyEnums, true)
	require.NoError(t, err)
	return ok
}

func structuredType(t *testing.T, sc *complextypes.SessionContext, id opcua.ExpandedNodeID) *complextypes.StructuredType {
	t.Helper()
	et := sc.Factory().GetSystemType(id)
	require.NotNil(t, et, "type %s not registered", id)
	st, ok := et.(*complextypes.StructuredType)
	require.True(t, ok, "type %s is a %T", id, et)
	return st
}

// machine adds an enumeration Mode and two structures, Sample using Mode
// and Reading holding an array of Sample.
func machine(s *server) {
	s.addEnum(1, "Mode", enumDef("Off", "On"))
	s.addStruct(2, "Sample", opcua.DataTypeStructure, &opcua.StructureDefinition{
		BaseDataType: opcua.DataTypeStructure,
		Fields: []opcua.StructureField{
			field("Value", dataTypeDouble),
			field("Mode", s.id(1)),
		},
	})
	s.addStruct(3, "Reading", opcua.DataTypeStructure, &opcua.StructureDefinition{
		BaseDataType: opcua.DataTypeStructure,
		Fields: []opcua.StructureField{
			arrayField("Samples", s.id(2)),
			field("Label", opcua.DataTypeString),
		},
	})
}

func TestLoadFromDataTypeDefinitions(t *testing.T) {
	s := newServer(t)
	machine(s)
	ts, sc := s.typeSystem()

	require.True(t, load(t, ts, false))
	report := ts.LastReport()
	assert.Equal(t, 1, report.EnumTypes)
	assert.Equal(t, 2, report.StructureTypes)
	assert.True(t, report.Complete())

	reading := structuredType(t, sc, s.expanded(3))
	assert.Equal(t, s.name("Reading"), reading.Name())
	assert.Same(t, reading, sc.Factory().GetSystemType(s.expanded(1003)), "registered under its binary encoding")

	e := opcua.NewEncoder()
	e.WriteInt32(1)
	e.WriteDouble(2.5)
	e.WriteInt32(1)
	e.WriteString("line 1")
	v, err := reading.DecodeBinary(opcua.NewDecoder(e.Bytes()))
	require.NoError(t, err)
	samples, _ := v.(*complextypes.Structure).Get("Samples")
	require.Len(t, samples, 1)
	mode, _ := samples.([]interface{})[0].(*complextypes.Structure).Get("Mode")
	assert.Equal(t, "On", mode.(complextypes.Enum).Name)

	entries := ts.DataTypeDefinitions(s.expanded(3))
	require.Len(t, entries, 3)
	assert.Equal(t, []opcua.ExpandedNodeID{s.expanded(1), s.expanded(2), s.expanded(3)},
		[]opcua.ExpandedNodeID{entries[0].ID, entries[1].ID, entries[2].ID}, "dependencies first")

	defs := ts.GetDataTypeDefinitionsForDataType(s.expanded(3))
	assert.Len(t, defs, 3)
	assert.IsType(t, &opcua.EnumDefinition{}, defs[s.expanded(1).Key()])
	assert.Nil(t, ts.GetDataTypeDefinitionsForDataType(s.expanded(99)))

	assert.Len(t, ts.KnownTypes(), 3)
	assert.EqualValues(t, 1, ts.Metrics().Loads.Value())
	assert.EqualValues(t, 2, ts.Metrics().StructureTypesLoaded.Value())
}

func TestLoadIsIdempotent(t *testing.T) {
	s := newServer(t)
	machine(s)
	ts, sc := s.typeSystem()

	require.True(t, load(t, ts, false))
	registered := sc.Factory().Len()

	require.True(t, load(t, ts, false))
	report := ts.LastReport()
	assert.Zero(t, report.EnumTypes)
	assert.Zero(t, report.StructureTypes)
	assert.Equal(t, registered, sc.Factory().Len())
	assert.EqualValues(t, 2, ts.Metrics().Loads.Value())
}

func TestLoadRecursiveStructure(t *testing.T) {
	s := newServer(t)
	s.addStruct(10, "TreeNode", opcua.DataTypeStructure, &opcua.StructureDefinition{
		BaseDataType: opcua.DataTypeStructure,
		Fields: []opcua.StructureField{
			field("Name", opcua.DataTypeString),
			arrayField("Children", s.id(10)),
		},
	})
	ts, sc := s.typeSystem()
	require.True(t, load(t, ts, false))

	tree := structuredType(t, sc, s.expanded(10))
	assert.Same(t, tree, tree.Fields()[1].Type.Type)

	e := opcua.NewEncoder()
	e.WriteString("root")
	e.WriteInt32(1)
	e.WriteString("leaf")
	e.WriteInt32(-1)
	root := decode(t, tree, e.Bytes())
	children, _ := root.Get("Children")
	leaf := children.([]interface{})[0].(*complextypes.Structure)
	name, _ := leaf.Get("Name")
	assert.Equal(t, "leaf", name)
}

func TestLoadEnumFromProperties(t *testing.T) {
	s := newServer(t)
	states := s.addEnum(20, "State", nil)
	require.NoError(t, s.mem.AddEnumStrings(states, "Stopped", "Running"))
	levels := s.addEnum(21, "Level", nil)
	require.NoError(t, s.mem.AddEnumValues(levels,
		opcua.EnumValueType{Value: 10, DisplayName: opcua.NewLocalizedText("Low")},
		opcua.EnumValueType{Value: 20, DisplayName: opcua.NewLocalizedText("High")}))
	ts, _ := s.typeSystem()

	require.True(t, load(t, ts, true))
	assert.Equal(t, 2, ts.LastReport().EnumTypes)

	def, ok := ts.Definition(s.expanded(20))
	require.True(t, ok)
	assert.Equal(t, "Running", def.(*opcua.EnumDefinition).Fields[1].Name)

	def, ok = ts.Definition(s.expanded(21))
	require.True(t, ok)
	f, ok := def.(*opcua.EnumDefinition).FieldByValue(20)
	require.True(t, ok)
	assert.Equal(t, "High", f.Name)
}

const legacyDictionary = `
  <opc:EnumeratedType Name="Mode" LengthInBits="32">
    <opc:EnumeratedValue Name="Off" Value="0"/>
    <opc:EnumeratedValue Name="On" Value="1"/>
  </opc:EnumeratedType>
  <opc:StructuredType Name="Legacy" BaseType="ua:ExtensionObject">
    <opc:Field Name="Mode" TypeName="tns:Mode"/>
    <opc:Field Name="Count" TypeName="opc:Int32"/>
  </opc:StructuredType>`

func TestLoadEnumFromDefinitionStructureFromDictionary(t *testing.T) {
	s := newServer(t)
	s.addEnum(1, "Mode", enumDef("Off", "On"))
	s.addStruct(30, "Legacy", opcua.DataTypeStructure, nil)
	s.addDictionary(500, "TestDictionary", bsd(legacyDictionary),
		entry{name: "Mode"}, entry{name: "Legacy", typeID: 30})
	ts, sc := s.typeSystem()

	require.True(t, load(t, ts, false))
	report := ts.LastReport()
	assert.Equal(t, 1, report.EnumTypes)
	assert.Equal(t, 1, report.StructureTypes)

	legacy := structuredType(t, sc, s.expanded(30))
	assert.Equal(t, s.name("Legacy"), legacy.Name())
	assert.Equal(t, s.expanded(1030), legacy.BinaryEncodingID())
	mode := legacy.Fields()[0].Type.Type
	require.NotNil(t, mode)
	assert.Equal(t, s.expanded(1), mode.TypeID())

	def, ok := ts.Definition(s.expanded(30))
	require.True(t, ok)
	sd := def.(*opcua.StructureDefinition)
	assert.Equal(t, s.id(1), sd.Fields[0].DataType)
	assert.Equal(t, opcua.DataTypeInt32, sd.Fields[1].DataType)
	assert.Len(t, ts.GetDataTypeDefinitionsForDataType(s.expanded(30)), 2)
	assert.EqualValues(t, 1, ts.Metrics().DictionariesLoaded.Value())
}

func TestLoadDisableDataTypeDefinition(t *testing.T) {
	s := newServer(t)
	s.addEnum(1, "Mode", enumDef("Off", "On"))
	s.addStruct(30, "Legacy", opcua.DataTypeStructure, &opcua.StructureDefinition{
		BaseDataType: opcua.DataTypeStructure,
		Fields:       []opcua.StructureField{field("FromDefinition", opcua.DataTypeString)},
	})
	s.addDictionary(500, "TestDictionary", bsd(legacyDictionary),
		entry{name: "Mode"}, entry{name: "Legacy", typeID: 30})
	ts, _ := s.typeSystem(complextypes.WithDisableDataTypeDefinition(true))

	require.True(t, load(t, ts, false))
	def, ok := ts.Definition(s.expanded(30))
	require.True(t, ok)
	sd := def.(*opcua.StructureDefinition)
	require.Len(t, sd.Fields, 2)
	assert.Equal(t, "Mode", sd.Fields[0].Name)
}

func TestLoadInvalidDefinitionFallsBackToDictionary(t *testing.T) {
	s := newServer(t)
	s.addEnum(1, "Mode", enumDef("Off", "On"))
	s.addStruct(30, "Legacy", opcua.DataTypeStructure, &opcua.StructureDefinition{
		BaseDataType: opcua.DataTypeStructure,
		Fields:       []opcua.StructureField{{Name: "Broken", ValueRank: opcua.ValueRankScalar}},
	})
	s.addDictionary(500, "TestDictionary", bsd(legacyDictionary),
		entry{name: "Mode"}, entry{name: "Legacy", typeID: 30})
	ts, sc := s.typeSystem()

	require.True(t, load(t, ts, false))
	legacy := structuredType(t, sc, s.expanded(30))
	require.Len(t, legacy.Fields(), 2)
	assert.Equal(t, "Count", legacy.Fields()[1].Field.Name)
}

func TestLoadDisableDataTypeDictionary(t *testing.T) {
	s := newServer(t)
	s.addStruct(30, "Legacy", opcua.DataTypeStructure, nil)
	s.addDictionary(500, "TestDictionary", bsd(legacyDictionary), entry{name: "Legacy", typeID: 30})
	ts, _ := s.typeSystem(complextypes.WithDisableDataTypeDictionary(true))

	ok, err := ts.Load(context.Background(), false, true)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Equal(t, []opcua.ExpandedNodeID{s.expanded(30)}, ts.LastReport().Unresolved)
	assert.Zero(t, ts.Metrics().DictionariesLoaded.Value())
}

func TestLoadUnsupportedDictionaryType(t *testing.T) {
	s := newServer(t)
	s.addStruct(40, "Sized", opcua.DataTypeStructure, nil)
	s.addDictionary(500, "TestDictionary", bsd(`
  <opc:StructuredType Name="Sized" BaseType="ua:ExtensionObject">
    <opc:Field Name="Length" TypeName="opc:Int32"/>
    <opc:Field Name="Data" TypeName="opc:Byte" LengthField="Length" IsLengthInBytes="true"/>
  </opc:StructuredType>`), entry{name: "Sized", typeID: 40})

	for _, throwOnError := range []bool{false, true} {
		ts, sc := s.typeSystem()
		ok, err := ts.Load(context.Background(), false, throwOnError)
		require.NoError(t, err)
		assert.False(t, ok)
		report := ts.LastReport()
		assert.Equal(t, []opcua.ExpandedNodeID{s.expanded(40)}, report.Unsupported)
		assert.Empty(t, report.Unresolved)
		assert.Nil(t, sc.Factory().GetSystemType(s.expanded(40)))
		assert.EqualValues(t, 1, ts.Metrics().UnsupportedTypes.Value())
	}
}

func TestLoadMutualReferencesStayUnresolved(t *testing.T) {
	s := newServer(t)
	s.addStruct(50, "Left", opcua.DataTypeStructure, &opcua.StructureDefinition{
		BaseDataType: opcua.DataTypeStructure,
		Fields:       []opcua.StructureField{field("Right", s.id(51))},
	})
	s.addStruct(51, "Right", opcua.DataTypeStructure, &opcua.StructureDefinition{
		BaseDataType: opcua.DataTypeStructure,
		Fields:       []opcua.StructureField{field("Left", s.id(50))},
	})
	s.addStruct(52, "Plain", opcua.DataTypeStructure, &opcua.StructureDefinition{
		BaseDataType: opcua.DataTypeStructure,
		Fields:       []opcua.StructureField{field("Value", opcua.DataTypeInt32)},
	})
	ts, sc := s.typeSystem()

	ok, err := ts.Load(context.Background(), false, false)
	require.NoError(t, err)
	assert.False(t, ok)

	report := ts.LastReport()
	assert.Equal(t, 1, report.StructureTypes)
	assert.ElementsMatch(t, []opcua.ExpandedNodeID{s.expanded(50), s.expanded(51)}, report.Unresolved)
	require.NotEmpty(t, report.RetryLoops)
	for _, loop := range report.RetryLoops {
		assertShrinking(t, loop)
	}
	assert.NotNil(t, sc.Factory().GetSystemType(s.expanded(52)))
	assert.Nil(t, sc.Factory().GetSystemType(s.expanded(50)))
	assert.EqualValues(t, 2, ts.Metrics().UnresolvedTypes.Value())
}

func assertShrinking(t *testing.T, loop complextypes.RetryLoop) {
	t.Helper()
	require.NotEmpty(t, loop.Sizes)
	for i := 1; i < len(loop.Sizes); i++ {
		assert.LessOrEqual(t, loop.Sizes[i], loop.Sizes[i-1], "namespace %d", loop.Namespace)
	}
}

func TestLoadRetryLoopsPerNamespace(t *testing.T) {
	s := newServer(t)
	machine(s)
	other := s.mem.AddNamespace(otherNamespace)
	otherID := func(n uint32) opcua.NodeID { return opcua.NewNumericNodeID(other, n) }
	addOther := func(n uint32, name string, fields ...opcua.StructureField) {
		require.NoError(t, s.mem.AddDataType(otherID(n), opcua.QualifiedName{NamespaceIndex: other, Name: name},
			opcua.DataTypeStructure, false, &opcua.StructureDefinition{
				DefaultEncodingID: otherID(n + 1000),
				BaseDataType:      opcua.DataTypeStructure,
				Fields:            fields,
			}))
		require.NoError(t, s.mem.AddEncoding(otherID(n), otherID(n+1000), opcua.BrowseNameDefaultBinary))
	}
	addOther(1, "Outer", field("Middle", otherID(2)))
	addOther(2, "Middle", field("Inner", otherID(3)))
	addOther(3, "Inner", field("Value", opcua.DataTypeInt32))
	ts, _ := s.typeSystem()

	require.True(t, load(t, ts, false))
	report := ts.LastReport()
	assert.Equal(t, 5, report.StructureTypes)

	namespaces := make(map[uint16]bool)
	for _, loop := range report.RetryLoops {
		namespaces[loop.Namespace] = true
		assertShrinking(t, loop)
		assert.Zero(t, loop.Sizes[len(loop.Sizes)-1])
	}
	assert.Equal(t, map[uint16]bool{s.ns: true, other: true}, namespaces)
}

func TestLoadCanceled(t *testing.T) {
	s := newServer(t)
	machine(s)
	ts, _ := s.typeSystem()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	ok, err := ts.Load(ctx, false, false)
	assert.False(t, ok)
	require.ErrorIs(t, err, context.Canceled)
	assert.EqualValues(t, 1, ts.Metrics().LoadErrors.Value())
}

func TestLoadOnlyEnumTypes(t *testing.T) {
	s := newServer(t)
	machine(s)
	ts, sc := s.typeSystem()

	require.True(t, load(t, ts, true))
	report := ts.LastReport()
	assert.Equal(t, 1, report.EnumTypes)
	assert.Zero(t, report.StructureTypes)
	assert.NotNil(t, sc.Factory().GetSystemType(s.expanded(1)))
	assert.Nil(t, sc.Factory().GetSystemType(s.expanded(2)))
}

func TestLoadStandardFieldTypes(t *testing.T) {
	s := newServer(t)
	s.addStruct(60, "Span", opcua.DataTypeStructure, &opcua.StructureDefinition{
		BaseDataType: opcua.DataTypeStructure,
		Fields: []opcua.StructureField{
			field("Range", opcua.NewNumericNodeID(0, 884)),
			field("State", opcua.NewNumericNodeID(0, 852)),
			field("Any", opcua.DataTypeBaseDataType),
		},
	})
	ts, sc := s.typeSystem()

	require.True(t, load(t, ts, false))
	assert.Equal(t, 2, ts.LastReport().StructureTypes, "Range is read on demand")

	span := structuredType(t, sc, s.expanded(60))
	rangeType := structuredType(t, sc, opcua.NewExpandedNodeID(opcua.NewNumericNodeID(0, 884)))
	fields := span.Fields()
	assert.Same(t, rangeType, fields[0].Type.Type)
	assert.Equal(t, opcua.TypeUInt32, fields[1].Type.BuiltIn)
	assert.Equal(t, opcua.TypeVariant, fields[2].Type.BuiltIn)

	e := opcua.NewEncoder()
	e.WriteDouble(0)
	e.WriteDouble(100)
	e.WriteUInt32(0)
	require.NoError(t, e.WriteVariant(opcua.Variant{Type: opcua.TypeInt32, Value: int32(7)}))
	v := decode(t, span, e.Bytes())
	r, _ := v.Get("Range")
	high, _ := r.(*complextypes.Structure).Get("High")
	assert.Equal(t, 100.0, high)
}

func TestLoadDictionaryStandardFieldTypes(t *testing.T) {
	s := newServer(t)
	s.addStruct(80, "Gauge", opcua.DataTypeStructure, nil)
	s.addDictionary(500, "TestDictionary", bsd(`
  <opc:StructuredType Name="Gauge" BaseType="ua:ExtensionObject">
    <opc:Field Name="Span" TypeName="ua:Range"/>
    <opc:Field Name="State" TypeName="ua:ServerState"/>
    <opc:Field Name="Class" TypeName="ua:NodeClass"/>
  </opc:StructuredType>`), entry{name: "Gauge", typeID: 80})
	ts, sc := s.typeSystem()

	require.True(t, load(t, ts, false))
	report := ts.LastReport()
	assert.Empty(t, report.Unresolved)
	assert.Equal(t, 2, report.StructureTypes, "Range is read on demand")

	gauge := structuredType(t, sc, s.expanded(80))
	rangeType := structuredType(t, sc, opcua.NewExpandedNodeID(opcua.NewNumericNodeID(0, 884)))
	fields := gauge.Fields()
	require.Len(t, fields, 3)
	assert.Same(t, rangeType, fields[0].Type.Type)
	assert.Equal(t, opcua.TypeUInt32, fields[1].Type.BuiltIn)
	assert.Equal(t, opcua.TypeUInt32, fields[2].Type.BuiltIn)

	def, ok := ts.Definition(s.expanded(80))
	require.True(t, ok)
	sd := def.(*opcua.StructureDefinition)
	assert.Equal(t, opcua.NewNumericNodeID(0, 852), sd.Fields[1].DataType)
	assert.Equal(t, opcua.NewNumericNodeID(0, 257), sd.Fields[2].DataType)

	e := opcua.NewEncoder()
	e.WriteDouble(-1)
	e.WriteDouble(1)
	e.WriteUInt32(1)
	e.WriteUInt32(2)
	v := decode(t, gauge, e.Bytes())
	span, _ := v.Get("Span")
	low, _ := span.(*complextypes.Structure).Get("Low")
	assert.Equal(t, -1.0, low)
}

func TestLoadDictionaryAddedBetweenLoads(t *testing.T) {
	s := newServer(t)
	s.addEnum(1, "Mode", enumDef("Off", "On"))
	s.addStruct(30, "Legacy", opcua.DataTypeStructure, nil)
	ts, sc := s.typeSystem()

	ok, err := ts.Load(context.Background(), false, false)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Equal(t, []opcua.ExpandedNodeID{s.expanded(30)}, ts.LastReport().Unresolved)

	s.addDictionary(500, "TestDictionary", bsd(legacyDictionary),
		entry{name: "Mode"}, entry{name: "Legacy", typeID: 30})
	sc.Cache().Clear()

	require.True(t, load(t, ts, false))
	assert.Equal(t, 1, ts.LastReport().StructureTypes)
	assert.NotNil(t, sc.Factory().GetSystemType(s.expanded(30)))
	assert.EqualValues(t, 1, ts.Metrics().DictionariesLoaded.Value())
}

func TestLoadSubtypedField(t *testing.T) {
	s := newServer(t)
	s.addStruct(70, "Inner", opcua.DataTypeStructure, &opcua.StructureDefinition{
		BaseDataType: opcua.DataTypeStructure,
		Fields:       []opcua.StructureField{field("Value", opcua.DataTypeInt32)},
	})
	s.addStruct(71, "Holder", opcua.DataTypeStructure, &opcua.StructureDefinition{
		BaseDataType:  opcua.DataTypeStructure,
		StructureType: opcua.StructureTypeStructureWithSubtypedValues,
		Fields: []opcua.StructureField{
			{Name: "Payload", DataType: s.id(70), ValueRank: opcua.ValueRankScalar, IsOptional: true},
			field("Fixed", s.id(70)),
		},
	})
	ts, sc := s.typeSystem()

	require.True(t, load(t, ts, false))
	holder := structuredType(t, sc, s.expanded(71))
	payload := holder.Fields()[0].Type
	assert.Nil(t, payload.Type)
	assert.Equal(t, opcua.TypeExtensionObject, payload.BuiltIn)
	assert.Equal(t, s.expanded(70), holder.Fields()[1].Type.Type.TypeID())
}
