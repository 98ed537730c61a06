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

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseNodeID(t *testing.T) {
	tests := []struct {
		in   string
		want NodeID
	}{
		{"i=85", NewNumericNodeID(0, 85)},
		{"85", NewNumericNodeID(0, 85)},
		{"ns=2;i=1001", NewNumericNodeID(2, 1001)},
		{"ns=3;s=Motor.Speed", NewStringNodeID(3, "Motor.Speed")},
		{"ns=1;b=AQID", NewOpaqueNodeID(1, []byte{1, 2, 3})},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseNodeID(tt.in)
			require.NoError(t, err)
			assert.True(t, tt.want.Equal(got), "got %s", FormatNodeID(got))
		})
	}
}

func TestParseNodeIDErrors(t *testing.T) {
	for _, in := range []string{"ns=x;i=1", "ns=1", "i=abc", "ns=1;g=not-a-guid", ""} {
		_, err := ParseNodeID(in)
		assert.ErrorIs(t, err, ErrInvalidNodeID, in)
	}
}

func TestFormatNodeIDRoundTrip(t *testing.T) {
	for _, in := range []string{"i=22", "ns=2;i=5001", "ns=4;s=Pump", "ns=1;g=72962b91-fa75-4ae6-8d28-b404dc7daf63"} {
		id := MustParseNodeID(in)
		assert.Equal(t, in, FormatNodeID(id))
	}
}

func TestParseExpandedNodeID(t *testing.T) {
	e, err := ParseExpandedNodeID("svr=1;nsu=urn:a;b:c;s=Speed;Set")
	require.NoError(t, err)
	assert.Equal(t, uint32(1), e.ServerIndex)
	assert.Equal(t, "urn:a;b:c", e.NamespaceURI)
	assert.Equal(t, "Speed;Set", e.NodeID.String)

	e = MustParseExpandedNodeID("nsu=urn:demo;i=7")
	assert.Equal(t, "nsu=urn:demo;i=7", e.String())
}

func TestNamespaceTableNormalize(t *testing.T) {
	ns := NewNamespaceTable("ignored", "urn:local", "urn:demo")
	assert.Equal(t, NamespaceURI, ns.URIs()[0])
	assert.Equal(t, 2, ns.GetIndex("urn:demo"))
	assert.Equal(t, -1, ns.GetIndex("urn:missing"))

	local := NewExpandedNodeID(NewNumericNodeID(2, 5001))
	abs := ns.Normalize(local)
	assert.Equal(t, "urn:demo", abs.NamespaceURI)
	assert.Equal(t, uint16(0), abs.NodeID.Namespace)
	assert.Equal(t, abs, ns.Normalize(abs))

	back, err := ns.ToNodeID(abs)
	require.NoError(t, err)
	assert.True(t, local.NodeID.Equal(back))

	// namespace 0 never carries a URI
	std := ns.Normalize(ExpandedNodeID{NodeID: NewNumericNodeID(0, 22), NamespaceURI: NamespaceURI})
	assert.Empty(t, std.NamespaceURI)
	assert.Equal(t, "i=22", std.Key())
}

func TestNamespaceTableUnknownURI(t *testing.T) {
	ns := NewNamespaceTable()
	_, err := ns.ToNodeID(MustParseExpandedNodeID("nsu=urn:x;i=1"))
	assert.ErrorIs(t, err, ErrInvalidNodeID)

	assert.Equal(t, uint16(1), ns.Append("urn:x"))
	assert.Equal(t, uint16(1), ns.Append("urn:x"))
	id, err := ns.ToNodeID(MustParseExpandedNodeID("nsu=urn:x;i=1"))
	require.NoError(t, err)
	assert.Equal(t, uint16(1), id.Namespace)
}

func TestBuiltInTypeOf(t *testing.T) {
	bt, ok := BuiltInTypeOf(DataTypeInt32)
	assert.True(t, ok)
	assert.Equal(t, TypeInt32, bt)

	bt, ok = BuiltInTypeOf(DataTypeEnumeration)
	assert.True(t, ok)
	assert.Equal(t, TypeInt32, bt)

	bt, ok = BuiltInTypeOf(NewNumericNodeID(0, IDDuration))
	assert.True(t, ok)
	assert.Equal(t, TypeDouble, bt)

	_, ok = BuiltInTypeOf(NewNumericNodeID(0, 884))
	assert.False(t, ok, "Range is a structure")
	_, ok = BuiltInTypeOf(NewNumericNodeID(2, 6))
	assert.False(t, ok)
}

func TestEncodeableFactory(t *testing.T) {
	f := NewEncodeableFactory()
	st := BuiltinEncodeableType(NewExpandedNodeID(NewNumericNodeID(0, IDStructureDef)))
	require.NotNil(t, st)

	f.AddEncodeableType(ExpandedNodeID{}, st)
	assert.Equal(t, 0, f.Len())

	f.AddEncodeableType(st.TypeID(), st)
	f.AddEncodeableType(st.BinaryEncodingID(), st)
	assert.Equal(t, 2, f.Len())
	assert.Len(t, f.Types(), 1)
	assert.Same(t, st, f.GetSystemType(NewExpandedNodeID(NewNumericNodeID(0, IDStructureDefinitionEncodingDefaultBinary))))
}
