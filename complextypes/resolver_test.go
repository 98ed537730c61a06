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
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	opcua "github.com/edgeo-scada/opcua-types"
	"github.com/edgeo-scada/opcua-types/complextypes"
)

func resolver(t *testing.T, s *server, opts ...complextypes.Option) *complextypes.NodeCacheResolver {
	t.Helper()
	opts = append([]complextypes.Option{complextypes.WithLogger(discard)}, opts...)
	return complextypes.NewNodeCacheResolver(s.connect(), opts...)
}

func TestLoadDataTypes(t *testing.T) {
	s := newServer(t)
	machine(s)
	s.addStruct(4, "DerivedSample", s.id(2), nil)
	r := resolver(t, s)
	ctx := context.Background()

	names := func(nested, addRoot, filter bool) []string {
		nodes, err := r.LoadDataTypes(ctx, opcua.DataTypeStructure, nested, addRoot, filter)
		require.NoError(t, err)
		var out []string
		for _, n := range nodes {
			out = append(out, n.BrowseName.Name)
		}
		return out
	}

	assert.ElementsMatch(t, []string{"Sample", "Reading", "DerivedSample"}, names(true, false, true))
	assert.ElementsMatch(t, []string{"Sample", "Reading"}, names(false, false, true))

	all := names(true, true, false)
	assert.Contains(t, all, "Structure")
	assert.Contains(t, all, "Range")
	assert.Contains(t, all, "DerivedSample")
}

func TestFindSuperType(t *testing.T) {
	s := newServer(t)
	machine(s)
	s.addStruct(4, "DerivedSample", s.id(2), nil)
	r := resolver(t, s)
	ctx := context.Background()

	super, err := r.FindSuperType(ctx, s.id(4))
	require.NoError(t, err)
	assert.Equal(t, s.id(2), super)

	super, err = r.FindSuperType(ctx, s.id(1))
	require.NoError(t, err)
	assert.Equal(t, opcua.DataTypeEnumeration, super)

	super, err = r.FindSuperType(ctx, opcua.DataTypeBaseDataType)
	require.NoError(t, err)
	assert.True(t, super.IsNull())

	_, err = r.FindSuperType(ctx, s.id(999))
	assert.True(t, opcua.IsNodeIDUnknown(err), "got %v", err)
}

func TestBrowseForEncodings(t *testing.T) {
	s := newServer(t)
	machine(s)
	require.NoError(t, s.mem.AddEncoding(s.id(2), s.id(2002), opcua.BrowseNameDefaultXML))
	require.NoError(t, s.mem.AddEncoding(s.id(2), s.id(3002), "Default Protobuf"))
	r := resolver(t, s)

	enc, err := r.BrowseForEncodings(context.Background(), s.id(2), complextypes.SupportedEncodings)
	require.NoError(t, err)
	assert.Equal(t, s.expanded(1002), enc.Binary)
	assert.Equal(t, s.expanded(2002), enc.XML)
	assert.Len(t, enc.All, 2)

	enc, err = r.BrowseForEncodings(context.Background(), s.id(1), complextypes.SupportedEncodings)
	require.NoError(t, err)
	assert.Empty(t, enc.All)
}

func TestBrowseTypeIDsForDictionaryComponent(t *testing.T) {
	s := newServer(t)
	s.addEnum(1, "Mode", enumDef("Off", "On"))
	s.addStruct(30, "Legacy", opcua.DataTypeStructure, nil)
	s.addDictionary(500, "TestDictionary", bsd(legacyDictionary),
		entry{name: "Legacy", typeID: 30}, entry{name: "Mode"})
	r := resolver(t, s)
	ctx := context.Background()

	typeID, encodingID, node, err := r.BrowseTypeIDsForDictionaryComponent(ctx, s.id(501))
	require.NoError(t, err)
	assert.Equal(t, s.expanded(30), typeID)
	assert.Equal(t, s.expanded(1030), encodingID)
	require.NotNil(t, node)
	assert.Equal(t, s.name("Legacy"), node.BrowseName)

	comps, err := r.BrowseTypeIDsForDictionaryComponents(ctx, []opcua.NodeID{s.id(502), s.id(501)})
	require.NoError(t, err)
	require.Len(t, comps, 2)
	assert.Nil(t, comps[0].Node, "enumerations have no encoding")
	assert.True(t, comps[0].TypeID.IsNull())
	assert.Equal(t, s.id(502), comps[0].ComponentID)
	assert.Equal(t, s.expanded(30), comps[1].TypeID)
}

func TestGetEnumTypeArray(t *testing.T) {
	s := newServer(t)
	states := s.addEnum(20, "State", nil)
	require.NoError(t, s.mem.AddEnumStrings(states, "Stopped", "Running"))
	levels := s.addEnum(21, "Level", nil)
	require.NoError(t, s.mem.AddEnumStrings(levels, "Ignored"))
	require.NoError(t, s.mem.AddEnumValues(levels, opcua.EnumValueType{Value: 5, DisplayName: opcua.NewLocalizedText("Five")}))
	bare := s.addEnum(22, "Bare", nil)
	r := resolver(t, s)
	ctx := context.Background()

	v, err := r.GetEnumTypeArray(ctx, states)
	require.NoError(t, err)
	def, err := complextypes.EnumTypeArrayToEnumDefinition(v)
	require.NoError(t, err)
	require.Len(t, def.Fields, 2)
	assert.Equal(t, "Stopped", def.Fields[0].Name)

	values, err := r.GetEnumTypeArrays(ctx, []opcua.NodeID{levels, bare})
	require.NoError(t, err)
	require.Len(t, values, 2)
	def, err = complextypes.EnumTypeArrayToEnumDefinition(values[0])
	require.NoError(t, err)
	assert.Equal(t, "Five", def.Fields[0].Name, "EnumValues wins over EnumStrings")
	assert.Nil(t, values[1])
}

const otherNamespace = "urn:edgeo:other"

func TestLoadDataTypeSystem(t *testing.T) {
	s := newServer(t)
	s.addStruct(30, "Legacy", opcua.DataTypeStructure, nil)
	s.addDictionary(500, "TestDictionary", bsd(legacyDictionary), entry{name: "Legacy", typeID: 30})

	other := `<opc:TypeDictionary xmlns:opc="http://opcfoundation.org/BinarySchema/" TargetNamespace="` + otherNamespace + `">
  <opc:EnumeratedType Name="Color" LengthInBits="32"><opc:EnumeratedValue Name="Red" Value="0"/></opc:EnumeratedType>
</opc:TypeDictionary>`
	raw := append([]byte("\xef\xbb\xbf"), other...)
	raw = append(raw, 0, 0, 0)
	require.NoError(t, s.mem.AddDictionary(opcua.ObjectOPCBinarySchemaTypeSystem, s.id(600), "Padded", raw, otherNamespace))
	require.NoError(t, s.mem.AddDictionary(opcua.ObjectOPCBinarySchemaTypeSystem, s.id(700), "Broken", []byte("not a dictionary"), ""))

	r := resolver(t, s)
	dicts, err := r.LoadDataTypeSystem(context.Background(), opcua.ObjectOPCBinarySchemaTypeSystem)
	require.NoError(t, err)
	require.Len(t, dicts, 2, "the broken dictionary is skipped")
	assert.EqualValues(t, 1, r.Metrics().DictionaryErrors.Value())
	assert.EqualValues(t, 2, r.Metrics().DictionariesLoaded.Value())

	test := dicts[s.expanded(500).Key()]
	require.NotNil(t, test)
	assert.True(t, test.IsBinary())
	assert.Equal(t, testNamespace, test.TargetNamespace)
	assert.Equal(t, "OPC Binary", test.TypeSystemName)
	require.Len(t, test.Entries, 1)
	assert.Equal(t, s.name("Legacy"), test.Entries[0].Name)
	assert.Equal(t, s.name("Legacy"), test.DataTypes[s.expanded(501).Key()])
	assert.Empty(t, test.Findings)

	padded := dicts[s.expanded(600).Key()]
	require.NotNil(t, padded)
	assert.Equal(t, otherNamespace, padded.TargetNamespace)
	assert.False(t, bytes.HasPrefix(padded.Schema, []byte("\xef\xbb\xbf")))
	assert.NotContains(t, string(padded.Schema), "\x00")

	again, err := r.LoadDataTypeSystem(context.Background(), opcua.ObjectOPCBinarySchemaTypeSystem)
	require.NoError(t, err)
	assert.Len(t, again, 2)
	assert.EqualValues(t, 2, r.Metrics().DictionariesLoaded.Value(), "loaded dictionaries are reused")
	assert.EqualValues(t, 2, r.Metrics().DictionaryErrors.Value(), "failed dictionaries are tried again")

	fixed := strings.Replace(other, otherNamespace, "urn:edgeo:fixed", 1)
	require.NoError(t, s.mem.SetValue(s.id(700), opcua.NewVariant(opcua.TypeByteString, []byte(fixed))))
	dicts, err = r.LoadDataTypeSystem(context.Background(), opcua.ObjectOPCBinarySchemaTypeSystem)
	require.NoError(t, err)
	assert.Len(t, dicts, 3)
	assert.Equal(t, "urn:edgeo:fixed", dicts[s.expanded(700).Key()].TargetNamespace)
	assert.EqualValues(t, 3, r.Metrics().DictionariesLoaded.Value())

	xml, err := r.LoadDataTypeSystem(context.Background(), opcua.ObjectXMLSchemaTypeSystem)
	require.NoError(t, err)
	assert.Empty(t, xml)
}

const unresolvedDictionary = `
  <opc:StructuredType Name="Legacy" BaseType="ua:ExtensionObject">
    <opc:Field Name="Mode" TypeName="tns:Missing"/>
  </opc:StructuredType>`

func TestLoadDataTypeSystemValidation(t *testing.T) {
	s := newServer(t)
	s.addDictionary(500, "TestDictionary", bsd(unresolvedDictionary))

	dicts, err := resolver(t, s).LoadDataTypeSystem(context.Background(), opcua.ObjectOPCBinarySchemaTypeSystem)
	require.NoError(t, err)
	require.Len(t, dicts, 1)
	dict := dicts[s.expanded(500).Key()]
	require.Len(t, dict.Findings, 1)
	assert.Equal(t, "Legacy", dict.Findings[0].Type)

	strict := resolver(t, s, complextypes.WithStrictDictionaryValidation(true))
	dicts, err = strict.LoadDataTypeSystem(context.Background(), opcua.ObjectOPCBinarySchemaTypeSystem)
	require.NoError(t, err)
	assert.Empty(t, dicts)
	assert.EqualValues(t, 1, strict.Metrics().DictionaryErrors.Value())
}

func TestLoadDataDictionaryWithoutTypeSystem(t *testing.T) {
	s := newServer(t)
	orphan := s.id(800)
	require.NoError(t, s.mem.AddVariable(orphan, s.name("Orphan"), opcua.NodeID{}, opcua.RefHasComponent,
		opcua.NewVariant(opcua.TypeByteString, []byte(bsd(legacyDictionary)))))

	_, err := complextypes.LoadDataDictionary(context.Background(), resolver(t, s), orphan, "Orphan", nil, nil)
	require.ErrorIs(t, err, complextypes.ErrTypeSystemNotFound)
	assert.True(t, opcua.IsStatusCode(err, opcua.StatusBadNotFound))
}
