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

import "fmt"

// DataTypeDefinition is the value of the DataTypeDefinition attribute of a
// DataType node: either a *StructureDefinition or an *EnumDefinition.
type DataTypeDefinition interface {
	Encodeable
	isDataTypeDefinition()
}

// StructureType classifies the encoding of a structure.
type StructureType int32

// Structure types.
const (
	StructureTypeStructure                   StructureType = 0
	StructureTypeStructureWithOptionalFields StructureType = 1
	StructureTypeUnion                       StructureType = 2
	StructureTypeStructureWithSubtypedValues StructureType = 3
	StructureTypeUnionWithSubtypedValues     StructureType = 4
)

// String returns the string representation of a StructureType.
func (s StructureType) String() string {
	switch s {
	case StructureTypeStructure:
		return "Structure"
	case StructureTypeStructureWithOptionalFields:
		return "StructureWithOptionalFields"
	case StructureTypeUnion:
		return "Union"
	case StructureTypeStructureWithSubtypedValues:
		return "StructureWithSubtypedValues"
	case StructureTypeUnionWithSubtypedValues:
		return "UnionWithSubtypedValues"
	default:
		return fmt.Sprintf("StructureType(%d)", int32(s))
	}
}

// ParseStructureType converts a structure type name back to its value.
func ParseStructureType(s string) (StructureType, error) {
	for st := StructureTypeStructure; st <= StructureTypeUnionWithSubtypedValues; st++ {
		if st.String() == s {
			return st, nil
		}
	}
	return 0, fmt.Errorf("%w: unknown structure type %q", ErrInvalidArgument, s)
}

// IsUnion reports whether values carry a switch field instead of all fields.
func (s StructureType) IsUnion() bool {
	return s == StructureTypeUnion || s == StructureTypeUnionWithSubtypedValues
}

// AllowsSubtypes reports whether fields may hold subtypes of their declared type.
func (s StructureType) AllowsSubtypes() bool {
	return s == StructureTypeStructureWithSubtypedValues || s == StructureTypeUnionWithSubtypedValues
}

// StructureField describes one field of a structure.
type StructureField struct {
	Name            string
	Description     LocalizedText
	DataType        NodeID
	ValueRank       int32
	ArrayDimensions []uint32
	MaxStringLength uint32
	IsOptional      bool
}

// StructureDefinition describes the layout of a structured data type.
type StructureDefinition struct {
	DefaultEncodingID NodeID
	BaseDataType      NodeID
	StructureType     StructureType
	Fields            []StructureField
}

func (*StructureDefinition) isDataTypeDefinition() {}

// BinaryEncodingID implements Encodeable.
func (*StructureDefinition) BinaryEncodingID() ExpandedNodeID {
	return NewExpandedNodeID(NewNumericNodeID(0, IDStructureDefinitionEncodingDefaultBinary))
}

// EncodeBinary implements Encodeable.
func (s *StructureDefinition) EncodeBinary(e *Encoder) error {
	e.WriteNodeID(s.DefaultEncodingID)
	e.WriteNodeID(s.BaseDataType)
	e.WriteInt32(int32(s.StructureType))
	if s.Fields == nil {
		e.WriteInt32(-1)
		return nil
	}
	e.WriteInt32(int32(len(s.Fields)))
	for i := range s.Fields {
		s.Fields[i].encode(e)
	}
	return nil
}

// Clone returns a deep copy.
func (s *StructureDefinition) Clone() *StructureDefinition {
	c := *s
	c.Fields = make([]StructureField, len(s.Fields))
	for i, f := range s.Fields {
		f.ArrayDimensions = append([]uint32(nil), f.ArrayDimensions...)
		c.Fields[i] = f
	}
	return &c
}

func (f *StructureField) encode(e *Encoder) {
	e.WriteString(f.Name)
	e.WriteLocalizedText(f.Description)
	e.WriteNodeID(f.DataType)
	e.WriteInt32(f.ValueRank)
	if f.ArrayDimensions == nil {
		e.WriteInt32(-1)
	} else {
		e.WriteInt32(int32(len(f.ArrayDimensions)))
		for _, d := range f.ArrayDimensions {
			e.WriteUInt32(d)
		}
	}
	e.WriteUInt32(f.MaxStringLength)
	e.WriteBoolean(f.IsOptional)
}

func decodeStructureField(d *Decoder) (StructureField, error) {
	var f StructureField
	var err error
	if f.Name, err = d.ReadString(); err != nil {
		return f, err
	}
	if f.Description, err = d.ReadLocalizedText(); err != nil {
		return f, err
	}
	if f.DataType, err = d.ReadNodeID(); err != nil {
		return f, err
	}
	if f.ValueRank, err = d.ReadInt32(); err != nil {
		return f, err
	}
	n, err := readArrayLength(d)
	if err != nil {
		return f, err
	}
	if n >= 0 {
		f.ArrayDimensions = make([]uint32, n)
		for i := range f.ArrayDimensions {
			if f.ArrayDimensions[i], err = d.ReadUInt32(); err != nil {
				return f, err
			}
		}
	}
	if f.MaxStringLength, err = d.ReadUInt32(); err != nil {
		return f, err
	}
	f.IsOptional, err = d.ReadBoolean()
	return f, err
}

// DecodeStructureDefinition decodes a StructureDefinition body.
func DecodeStructureDefinition(d *Decoder) (*StructureDefinition, error) {
	s := &StructureDefinition{}
	var err error
	if s.DefaultEncodingID, err = d.ReadNodeID(); err != nil {
		return nil, err
	}
	if s.BaseDataType, err = d.ReadNodeID(); err != nil {
		return nil, err
	}
	st, err := d.ReadInt32()
	if err != nil {
		return nil, err
	}
	s.StructureType = StructureType(st)
	n, err := readArrayLength(d)
	if err != nil {
		return nil, err
	}
	if n < 0 {
		return s, nil
	}
	s.Fields = make([]StructureField, n)
	for i := range s.Fields {
		if s.Fields[i], err = decodeStructureField(d); err != nil {
			return nil, fmt.Errorf("field %d: %w", i, err)
		}
	}
	return s, nil
}

// EnumValueType is one entry of the legacy EnumValues property.
type EnumValueType struct {
	Value       int64
	DisplayName LocalizedText
	Description LocalizedText
}

// BinaryEncodingID implements Encodeable.
func (*EnumValueType) BinaryEncodingID() ExpandedNodeID {
	return NewExpandedNodeID(NewNumericNodeID(0, IDEnumValueTypeEncodingDefaultBinary))
}

// EncodeBinary implements Encodeable.
func (v *EnumValueType) EncodeBinary(e *Encoder) error {
	e.WriteInt64(v.Value)
	e.WriteLocalizedText(v.DisplayName)
	e.WriteLocalizedText(v.Description)
	return nil
}

// DecodeEnumValueType decodes an EnumValueType body.
func DecodeEnumValueType(d *Decoder) (*EnumValueType, error) {
	v := &EnumValueType{}
	var err error
	if v.Value, err = d.ReadInt64(); err != nil {
		return nil, err
	}
	if v.DisplayName, err = d.ReadLocalizedText(); err != nil {
		return nil, err
	}
	if v.Description, err = d.ReadLocalizedText(); err != nil {
		return nil, err
	}
	return v, nil
}

// EnumField is one member of an enumeration.
type EnumField struct {
	Value       int64
	DisplayName LocalizedText
	Description LocalizedText
	Name        string
}

// EnumDefinition describes an enumerated data type.
type EnumDefinition struct {
	Fields []EnumField
	// IsOptionSet marks bit-flag enumerations; not part of the wire encoding.
	IsOptionSet bool
}

func (*EnumDefinition) isDataTypeDefinition() {}

// BinaryEncodingID implements Encodeable.
func (*EnumDefinition) BinaryEncodingID() ExpandedNodeID {
	return NewExpandedNodeID(NewNumericNodeID(0, IDEnumDefinitionEncodingDefaultBinary))
}

// EncodeBinary implements Encodeable.
func (s *EnumDefinition) EncodeBinary(e *Encoder) error {
	if s.Fields == nil {
		e.WriteInt32(-1)
		return nil
	}
	e.WriteInt32(int32(len(s.Fields)))
	for _, f := range s.Fields {
		e.WriteInt64(f.Value)
		e.WriteLocalizedText(f.DisplayName)
		e.WriteLocalizedText(f.Description)
		e.WriteString(f.Name)
	}
	return nil
}

// FieldByValue returns the member with the given value.
func (s *EnumDefinition) FieldByValue(v int64) (EnumField, bool) {
	for _, f := range s.Fields {
		if f.Value == v {
			return f, true
		}
	}
	return EnumField{}, false
}

// DecodeEnumDefinition decodes an EnumDefinition body.
func DecodeEnumDefinition(d *Decoder) (*EnumDefinition, error) {
	n, err := readArrayLength(d)
	if err != nil {
		return nil, err
	}
	s := &EnumDefinition{}
	if n < 0 {
		return s, nil
	}
	s.Fields = make([]EnumField, n)
	for i := range s.Fields {
		f := &s.Fields[i]
		if f.Value, err = d.ReadInt64(); err != nil {
			return nil, err
		}
		if f.DisplayName, err = d.ReadLocalizedText(); err != nil {
			return nil, err
		}
		if f.Description, err = d.ReadLocalizedText(); err != nil {
			return nil, err
		}
		if f.Name, err = d.ReadString(); err != nil {
			return nil, err
		}
	}
	return s, nil
}

// readArrayLength reads an Int32 array length and rejects lengths that
// cannot fit in the remaining message. -1 denotes a null array.
func readArrayLength(d *Decoder) (int, error) {
	n, err := d.ReadInt32()
	if err != nil {
		return 0, err
	}
	if n < -1 {
		return 0, fmt.Errorf("%w: negative array length %d", ErrInvalidMessage, n)
	}
	if int(n) > d.Remaining() {
		return 0, fmt.Errorf("%w: array length %d exceeds message", ErrInvalidMessage, n)
	}
	return int(n), nil
}

// ReadArrayLength reads an Int32 array length; -1 denotes a null array.
func (d *Decoder) ReadArrayLength() (int, error) {
	return readArrayLength(d)
}

func init() {
	registerBuiltin("StructureDefinition", IDStructureDef, IDStructureDefinitionEncodingDefaultBinary,
		func(d *Decoder) (interface{}, error) { return DecodeStructureDefinition(d) })
	registerBuiltin("EnumDefinition", IDEnumDef, IDEnumDefinitionEncodingDefaultBinary,
		func(d *Decoder) (interface{}, error) { return DecodeEnumDefinition(d) })
	registerBuiltin("EnumValueType", IDEnumValueType, IDEnumValueTypeEncodingDefaultBinary,
		func(d *Decoder) (interface{}, error) { return DecodeEnumValueType(d) })
}
