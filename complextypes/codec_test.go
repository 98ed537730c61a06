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
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	opcua "github.com/edgeo-scada/opcua-types"
	"github.com/edgeo-scada/opcua-types/complextypes"
)

const codecNamespace = "urn:codec"

func codecID(n uint32) opcua.ExpandedNodeID {
	return opcua.ExpandedNodeID{NodeID: opcua.NewNumericNodeID(0, n), NamespaceURI: codecNamespace}
}

// buildStruct builds a type with the dynamic builder. Field types are
// taken from types in order.
func buildStruct(t *testing.T, name string, def *opcua.StructureDefinition, types ...complextypes.FieldType) *complextypes.StructuredType {
	t.Helper()
	b := complextypes.DynamicBuilderFactory{}.Create(codecNamespace, 1, "test")
	fb := b.AddStructuredType(opcua.QualifiedName{NamespaceIndex: 1, Name: name}, def)
	for i, f := range def.Fields {
		ft := types[i]
		if ft.Self {
			ft = fb.SelfType(f.ValueRank)
		}
		require.NoError(t, fb.AddField(f, ft, i))
	}
	fb.SetTypeIDs(codecID(uint32(len(name))), codecID(uint32(len(name))+1000), opcua.ExpandedNodeID{})
	et, err := fb.CreateType()
	require.NoError(t, err)
	return et.(*complextypes.StructuredType)
}

func scalar(bt opcua.TypeID) complextypes.FieldType {
	return complextypes.FieldType{BuiltIn: bt, ValueRank: opcua.ValueRankScalar}
}

func encode(t *testing.T, s *complextypes.Structure) []byte {
	t.Helper()
	e := opcua.NewEncoder()
	require.NoError(t, s.EncodeBinary(e))
	return e.Bytes()
}

func decode(t *testing.T, st *complextypes.StructuredType, b []byte) *complextypes.Structure {
	t.Helper()
	d := opcua.NewDecoder(b)
	v, err := st.DecodeBinary(d)
	require.NoError(t, err)
	assert.Zero(t, d.Remaining())
	return v.(*complextypes.Structure)
}

var ignoreType = cmpopts.IgnoreFields(complextypes.Structure{}, "Type")

func TestOptionalFieldsEncodingMask(t *testing.T) {
	def := &opcua.StructureDefinition{
		StructureType: opcua.StructureTypeStructureWithOptionalFields,
		Fields: []opcua.StructureField{
			{Name: "Id", DataType: opcua.DataTypeInt32, ValueRank: opcua.ValueRankScalar},
			{Name: "Label", DataType: opcua.DataTypeString, ValueRank: opcua.ValueRankScalar, IsOptional: true},
			{Name: "Limit", DataType: opcua.DataTypeUInt32, ValueRank: opcua.ValueRankScalar, IsOptional: true},
		},
	}
	st := buildStruct(t, "Tagged", def, scalar(opcua.TypeInt32), scalar(opcua.TypeString), scalar(opcua.TypeUInt32))

	s := st.New()
	require.NoError(t, s.Set("Id", int32(7)))
	require.NoError(t, s.Set("Limit", uint32(9)))

	b := encode(t, s)
	assert.Equal(t, []byte{
		0x02, 0x00, 0x00, 0x00, // mask: Limit only
		0x07, 0x00, 0x00, 0x00,
		0x09, 0x00, 0x00, 0x00,
	}, b)

	got := decode(t, st, b)
	assert.Equal(t, uint32(2), got.EncodingMask)
	if diff := cmp.Diff(s, got, ignoreType); diff != "" {
		t.Errorf("round trip mismatch (-want +got):\n%s", diff)
	}
	label, ok := got.Get("Label")
	assert.True(t, ok)
	assert.Nil(t, label)
}

func TestUnionSwitchField(t *testing.T) {
	def := &opcua.StructureDefinition{
		StructureType: opcua.StructureTypeUnion,
		Fields: []opcua.StructureField{
			{Name: "Number", DataType: opcua.DataTypeInt32, ValueRank: opcua.ValueRankScalar},
			{Name: "Text", DataType: opcua.DataTypeString, ValueRank: opcua.ValueRankScalar},
		},
	}
	st := buildStruct(t, "Choice", def, scalar(opcua.TypeInt32), scalar(opcua.TypeString))

	s := st.New()
	require.NoError(t, s.Set("Text", "on"))
	b := encode(t, s)
	assert.Equal(t, []byte{0x02, 0, 0, 0, 0x02, 0, 0, 0, 'o', 'n'}, b)

	got := decode(t, st, b)
	assert.Equal(t, uint32(2), got.SwitchField)
	v, ok := got.Get("Text")
	require.True(t, ok)
	assert.Equal(t, "on", v)

	null := decode(t, st, encode(t, st.New()))
	assert.Zero(t, null.SwitchField)
	assert.Empty(t, null.Fields)

	_, err := st.DecodeBinary(opcua.NewDecoder([]byte{0x03, 0, 0, 0}))
	assert.ErrorIs(t, err, opcua.ErrInvalidMessage)
	assert.ErrorIs(t, s.Set("Missing", 1), opcua.ErrInvalidArgument)
}

func TestArraysAndMatrices(t *testing.T) {
	def := &opcua.StructureDefinition{
		Fields: []opcua.StructureField{
			{Name: "Samples", DataType: opcua.DataTypeInt32, ValueRank: opcua.ValueRankOneDimension},
			{Name: "Empty", DataType: opcua.DataTypeInt32, ValueRank: opcua.ValueRankOneDimension},
			{Name: "Grid", DataType: opcua.DataTypeUInt32, ValueRank: opcua.ValueRankTwoDimensions},
		},
	}
	st := buildStruct(t, "Series", def,
		complextypes.FieldType{BuiltIn: opcua.TypeInt32, ValueRank: opcua.ValueRankOneDimension},
		complextypes.FieldType{BuiltIn: opcua.TypeInt32, ValueRank: opcua.ValueRankOneDimension},
		complextypes.FieldType{BuiltIn: opcua.TypeUInt32, ValueRank: opcua.ValueRankTwoDimensions},
	)

	s := st.New()
	require.NoError(t, s.Set("Samples", []interface{}{int32(1), int32(2)}))
	require.NoError(t, s.Set("Empty", []interface{}(nil)))
	require.NoError(t, s.Set("Grid", &complextypes.Matrix{
		Dimensions: []int32{2, 1},
		Values:     []interface{}{uint32(3), uint32(4)},
	}))

	b := encode(t, s)
	assert.Equal(t, []byte{
		0x02, 0, 0, 0, 0x01, 0, 0, 0, 0x02, 0, 0, 0, // Samples
		0xff, 0xff, 0xff, 0xff, // Empty is null
		0x02, 0, 0, 0, 0x02, 0, 0, 0, 0x01, 0, 0, 0, // Grid dimensions
		0x03, 0, 0, 0, 0x04, 0, 0, 0,
	}, b)

	got := decode(t, st, b)
	if diff := cmp.Diff(s, got, ignoreType); diff != "" {
		t.Errorf("round trip mismatch (-want +got):\n%s", diff)
	}

	require.NoError(t, s.Set("Grid", &complextypes.Matrix{Dimensions: []int32{3}, Values: []interface{}{uint32(1)}}))
	assert.ErrorIs(t, s.EncodeBinary(opcua.NewEncoder()), opcua.ErrTypeMismatch)

	_, err := st.DecodeBinary(opcua.NewDecoder([]byte{0x10, 0, 0, 0}))
	assert.Error(t, err)
}

func TestRecursiveStructure(t *testing.T) {
	def := &opcua.StructureDefinition{
		Fields: []opcua.StructureField{
			{Name: "Value", DataType: opcua.DataTypeInt32, ValueRank: opcua.ValueRankScalar},
			{Name: "Children", ValueRank: opcua.ValueRankOneDimension},
		},
	}
	st := buildStruct(t, "Tree", def, scalar(opcua.TypeInt32), complextypes.FieldType{Self: true})
	assert.Same(t, st, st.Fields()[1].Type.Type)

	leaf := st.New()
	require.NoError(t, leaf.Set("Value", int32(2)))
	require.NoError(t, leaf.Set("Children", []interface{}(nil)))
	root := st.New()
	require.NoError(t, root.Set("Value", int32(1)))
	require.NoError(t, root.Set("Children", []interface{}{leaf}))

	got := decode(t, st, encode(t, root))
	if diff := cmp.Diff(root, got, ignoreType); diff != "" {
		t.Errorf("round trip mismatch (-want +got):\n%s", diff)
	}

	children, _ := got.Get("Children")
	require.Len(t, children, 1)
	assert.Same(t, st, children.([]interface{})[0].(*complextypes.Structure).Type)
}

func TestEnumFieldValues(t *testing.T) {
	b := complextypes.DynamicBuilderFactory{}.Create(codecNamespace, 1, "test")
	et, err := b.AddEnumType(opcua.QualifiedName{NamespaceIndex: 1, Name: "Mode"}, codecID(1), &opcua.EnumDefinition{
		Fields: []opcua.EnumField{{Name: "Auto", Value: 0}, {Name: "Manual", Value: 5}},
	})
	require.NoError(t, err)
	enum := et.(*complextypes.EnumType)

	def := &opcua.StructureDefinition{
		Fields: []opcua.StructureField{
			{Name: "Mode", DataType: codecID(1).NodeID, ValueRank: opcua.ValueRankScalar},
		},
	}
	st := buildStruct(t, "Setting", def, complextypes.FieldType{Type: enum, ValueRank: opcua.ValueRankScalar})

	s := st.New()
	require.NoError(t, s.Set("Mode", "Manual"))
	got := decode(t, st, encode(t, s))
	v, _ := got.Get("Mode")
	assert.Equal(t, complextypes.Enum{TypeID: codecID(1), Value: 5, Name: "Manual"}, v)
	assert.Equal(t, "Manual_5", v.(complextypes.Enum).String())
	assert.Equal(t, "9", enum.Value(9).String())

	require.NoError(t, s.Set("Mode", "Unknown"))
	assert.ErrorIs(t, s.EncodeBinary(opcua.NewEncoder()), opcua.ErrTypeMismatch)

	_, err = b.AddEnumType(opcua.QualifiedName{Name: "Empty"}, codecID(2), &opcua.EnumDefinition{})
	assert.ErrorIs(t, err, complextypes.ErrDataTypeNotSupported)
}

func TestFieldBuilderChecksOrder(t *testing.T) {
	b := complextypes.DynamicBuilderFactory{}.Create(codecNamespace, 1, "test")
	def := &opcua.StructureDefinition{
		Fields: []opcua.StructureField{{Name: "A"}, {Name: "B"}},
	}
	fb := b.AddStructuredType(opcua.QualifiedName{Name: "Pair"}, def)
	assert.ErrorIs(t, fb.AddField(def.Fields[1], scalar(opcua.TypeInt32), 1), opcua.ErrInvalidArgument)
	require.NoError(t, fb.AddField(def.Fields[0], scalar(opcua.TypeInt32), 0))

	fb.SetTypeIDs(codecID(3), codecID(4), opcua.ExpandedNodeID{})
	_, err := fb.CreateType()
	assert.ErrorIs(t, err, opcua.ErrInvalidArgument)
}
