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
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNodeIDEncodingForms(t *testing.T) {
	tests := []struct {
		name string
		id   NodeID
		want []byte
	}{
		{"two byte", NewNumericNodeID(0, 22), []byte{0x00, 22}},
		{"four byte", NewNumericNodeID(2, 1001), []byte{0x01, 2, 0xE9, 0x03}},
		{"numeric", NewNumericNodeID(2, 70000), []byte{0x02, 2, 0, 0x70, 0x11, 0x01, 0x00}},
		{"string", NewStringNodeID(1, "ab"), []byte{0x03, 1, 0, 2, 0, 0, 0, 'a', 'b'}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := NewEncoder()
			e.WriteNodeID(tt.id)
			assert.Equal(t, tt.want, e.Bytes())

			got, err := NewDecoder(e.Bytes()).ReadNodeID()
			require.NoError(t, err)
			assert.True(t, tt.id.Equal(got))
		})
	}
}

func TestExpandedNodeIDKeepsURIAndServerIndex(t *testing.T) {
	in := ExpandedNodeID{
		NodeID:       NewNumericNodeID(0, 5001),
		NamespaceURI: "urn:demo",
		ServerIndex:  3,
	}
	e := NewEncoder()
	e.WriteExpandedNodeID(in)

	out, err := NewDecoder(e.Bytes()).ReadExpandedNodeID()
	require.NoError(t, err)
	assert.True(t, in.Equal(out))
}

func TestDecoderTruncatedData(t *testing.T) {
	_, err := NewDecoder([]byte{1, 2}).ReadUInt32()
	assert.ErrorIs(t, err, ErrInvalidMessage)

	_, err = NewDecoder([]byte{5, 0, 0, 0, 'a'}).ReadString()
	assert.ErrorIs(t, err, ErrInvalidMessage)
}

func TestVariantArrayWithDimensions(t *testing.T) {
	in := Variant{
		Type:            TypeInt32,
		Value:           []interface{}{int32(1), int32(2), int32(3), int32(4)},
		ArrayDimensions: []int32{2, 2},
	}
	e := NewEncoder()
	require.NoError(t, e.WriteVariant(in))

	out, err := NewDecoder(e.Bytes()).ReadVariant()
	require.NoError(t, err)
	assert.Equal(t, in, out)
}

func TestDataValueRoundTrip(t *testing.T) {
	ts := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	in := DataValue{
		Value:           NewVariant(TypeString, "hello"),
		StatusCode:      StatusBadNodeIdUnknown,
		SourceTimestamp: ts,
	}
	e := NewEncoder()
	require.NoError(t, e.WriteDataValue(in))

	out, err := NewDecoder(e.Bytes()).ReadDataValue()
	require.NoError(t, err)
	assert.Equal(t, in.StatusCode, out.StatusCode)
	assert.Equal(t, "hello", out.Value.Value)
	assert.True(t, ts.Equal(out.SourceTimestamp))
}

func TestExtensionObjectDecodesBuiltinDefinitions(t *testing.T) {
	def := &StructureDefinition{
		DefaultEncodingID: NewNumericNodeID(2, 5002),
		BaseDataType:      DataTypeStructure,
		StructureType:     StructureTypeStructureWithOptionalFields,
		Fields: []StructureField{
			{Name: "A", DataType: DataTypeInt32, ValueRank: ValueRankScalar},
			{Name: "B", DataType: DataTypeString, ValueRank: ValueRankOneDimension, IsOptional: true},
		},
	}
	e := NewEncoder()
	require.NoError(t, e.WriteVariant(Variant{Type: TypeExtensionObject, Value: ExtensionObject{Value: def}}))

	v, err := NewDecoder(e.Bytes()).ReadVariant()
	require.NoError(t, err)
	eo, ok := v.Value.(ExtensionObject)
	require.True(t, ok)
	got, ok := eo.Value.(*StructureDefinition)
	require.True(t, ok, "body should decode into a StructureDefinition, got %T", eo.Value)
	assert.Equal(t, def.StructureType, got.StructureType)
	require.Len(t, got.Fields, 2)
	assert.Equal(t, "B", got.Fields[1].Name)
	assert.True(t, got.Fields[1].IsOptional)
}

func TestExtensionObjectUnknownBodyStaysRaw(t *testing.T) {
	e := NewEncoder()
	require.NoError(t, e.WriteExtensionObject(ExtensionObject{
		TypeID:   NewExpandedNodeID(NewNumericNodeID(3, 42)),
		Encoding: ExtensionObjectBinary,
		Body:     []byte{1, 2, 3},
	}))

	eo, err := NewDecoder(e.Bytes()).ReadExtensionObject()
	require.NoError(t, err)
	assert.Nil(t, eo.Value)
	assert.Equal(t, []byte{1, 2, 3}, eo.Body)
}

func TestEnumValueTypeArrayDecodes(t *testing.T) {
	values := []interface{}{
		ExtensionObject{Value: &EnumValueType{Value: 0, DisplayName: NewLocalizedText("Off")}},
		ExtensionObject{Value: &EnumValueType{Value: 5, DisplayName: NewLocalizedText("On")}},
	}
	e := NewEncoder()
	require.NoError(t, e.WriteVariant(Variant{Type: TypeExtensionObject, Value: values}))

	v, err := NewDecoder(e.Bytes()).ReadVariant()
	require.NoError(t, err)
	arr := v.Value.([]interface{})
	require.Len(t, arr, 2)
	second := arr[1].(ExtensionObject).Value.(*EnumValueType)
	assert.Equal(t, int64(5), second.Value)
	assert.Equal(t, "On", second.DisplayName.Text)
}

func TestWriteBuiltinTypeMismatch(t *testing.T) {
	err := NewEncoder().WriteBuiltin(TypeInt32, "nope")
	assert.ErrorIs(t, err, ErrTypeMismatch)
}
