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

package complextypes

import (
	"fmt"

	opcua "github.com/edgeo-scada/opcua-types"
)

// BuilderFactory creates one Builder per namespace or dictionary.
type BuilderFactory interface {
	Create(namespaceURI string, namespaceIndex uint16, module string) Builder
}

// Builder turns validated definitions into encodeable types.
type Builder interface {
	AddEnumType(name opcua.QualifiedName, typeID opcua.ExpandedNodeID, def *opcua.EnumDefinition) (opcua.EncodeableType, error)
	AddStructuredType(name opcua.QualifiedName, def *opcua.StructureDefinition) FieldBuilder
}

// FieldBuilder collects the fields of one structure.
type FieldBuilder interface {
	SetTypeIDs(typeID, binaryEncodingID, xmlEncodingID opcua.ExpandedNodeID)
	// AddField adds the field at position order; fields are added in order.
	AddField(field opcua.StructureField, fieldType FieldType, order int) error
	// SelfType is the field type of a field holding the structure itself.
	SelfType(valueRank int32) FieldType
	CreateType() (opcua.EncodeableType, error)
}

// FieldType is the resolved type of a structure field: a built-in type,
// or another encodeable type, or the structure itself.
type FieldType struct {
	BuiltIn   opcua.TypeID
	Type      opcua.EncodeableType
	Self      bool
	ValueRank int32
}

// IsArray reports whether the field holds one or more dimensions.
func (f FieldType) IsArray() bool {
	return f.ValueRank >= opcua.ValueRankOneDimension
}

func (f FieldType) String() string {
	var s string
	switch {
	case f.Self:
		s = "self"
	case f.Type != nil:
		s = f.Type.Name().Name
	default:
		s = f.BuiltIn.String()
	}
	switch {
	case f.ValueRank == opcua.ValueRankOneDimension:
		s += "[]"
	case f.ValueRank > opcua.ValueRankOneDimension:
		s += fmt.Sprintf("[%d]", f.ValueRank)
	}
	return s
}

// DynamicBuilderFactory builds data-driven types interpreted by a generic
// codec. It is the default builder of a ComplexTypeSystem.
type DynamicBuilderFactory struct{}

// Create implements BuilderFactory.
func (DynamicBuilderFactory) Create(namespaceURI string, namespaceIndex uint16, module string) Builder {
	return &DynamicBuilder{NamespaceURI: namespaceURI, NamespaceIndex: namespaceIndex, Module: module}
}

// DynamicBuilder creates *EnumType and *StructuredType values.
type DynamicBuilder struct {
	NamespaceURI   string
	NamespaceIndex uint16
	Module         string
}

// AddEnumType implements Builder.
func (b *DynamicBuilder) AddEnumType(name opcua.QualifiedName, typeID opcua.ExpandedNodeID, def *opcua.EnumDefinition) (opcua.EncodeableType, error) {
	if def == nil || len(def.Fields) == 0 {
		return nil, notSupported("enumeration %s has no fields", name.Name)
	}
	return &EnumType{typeID: typeID, name: name, definition: def}, nil
}

// AddStructuredType implements Builder.
func (b *DynamicBuilder) AddStructuredType(name opcua.QualifiedName, def *opcua.StructureDefinition) FieldBuilder {
	return &dynamicFieldBuilder{t: &StructuredType{name: name, definition: def}}
}

type dynamicFieldBuilder struct {
	t *StructuredType
}

func (b *dynamicFieldBuilder) SetTypeIDs(typeID, binaryEncodingID, xmlEncodingID opcua.ExpandedNodeID) {
	b.t.typeID = typeID
	b.t.binaryEncodingID = binaryEncodingID
	b.t.xmlEncodingID = xmlEncodingID
}

func (b *dynamicFieldBuilder) AddField(field opcua.StructureField, fieldType FieldType, order int) error {
	if order != len(b.t.fields) {
		return fmt.Errorf("%w: %s.%s added at %d, want %d", opcua.ErrInvalidArgument, b.t.name.Name, field.Name, order, len(b.t.fields))
	}
	if !fieldType.Self && fieldType.Type == nil && !fieldType.BuiltIn.IsBuiltIn() {
		return fmt.Errorf("%w: %s.%s has no type", opcua.ErrInvalidArgument, b.t.name.Name, field.Name)
	}
	b.t.fields = append(b.t.fields, StructField{Field: field, Type: fieldType})
	return nil
}

func (b *dynamicFieldBuilder) SelfType(valueRank int32) FieldType {
	return FieldType{Self: true, ValueRank: valueRank}
}

func (b *dynamicFieldBuilder) CreateType() (opcua.EncodeableType, error) {
	t := b.t
	if t.typeID.IsNull() {
		return nil, fmt.Errorf("%w: %s has no type id", opcua.ErrInvalidArgument, t.name.Name)
	}
	if t.definition == nil || len(t.fields) != len(t.definition.Fields) {
		return nil, fmt.Errorf("%w: %s has %d of its fields", opcua.ErrInvalidArgument, t.name.Name, len(t.fields))
	}
	for i := range t.fields {
		if t.fields[i].Type.Self {
			t.fields[i].Type.Type = t
		}
	}
	return t, nil
}

// EnumType is an enumeration built from an EnumDefinition. Values decode
// to Enum.
type EnumType struct {
	typeID     opcua.ExpandedNodeID
	name       opcua.QualifiedName
	definition *opcua.EnumDefinition
}

// TypeID implements opcua.EncodeableType.
func (t *EnumType) TypeID() opcua.ExpandedNodeID { return t.typeID }

// BinaryEncodingID implements opcua.EncodeableType. Enumerations have none.
func (t *EnumType) BinaryEncodingID() opcua.ExpandedNodeID { return opcua.ExpandedNodeID{} }

// XMLEncodingID implements opcua.EncodeableType.
func (t *EnumType) XMLEncodingID() opcua.ExpandedNodeID { return opcua.ExpandedNodeID{} }

// Name implements opcua.EncodeableType.
func (t *EnumType) Name() opcua.QualifiedName { return t.name }

// Definition returns the definition the type was built from.
func (t *EnumType) Definition() *opcua.EnumDefinition { return t.definition }

// Enum is a decoded enumeration value.
type Enum struct {
	TypeID opcua.ExpandedNodeID
	Value  int32
	// Name is empty when the value is not a member of the enumeration.
	Name string
}

func (e Enum) String() string {
	if e.Name == "" {
		return fmt.Sprintf("%d", e.Value)
	}
	return fmt.Sprintf("%s_%d", e.Name, e.Value)
}

// Value returns the Enum for v.
func (t *EnumType) Value(v int32) Enum {
	e := Enum{TypeID: t.typeID, Value: v}
	if f, ok := t.definition.FieldByValue(int64(v)); ok {
		e.Name = f.Name
	}
	return e
}

// StructField is one field of a StructuredType.
type StructField struct {
	Field opcua.StructureField
	Type  FieldType
}

// StructuredType is a structure built from a StructureDefinition. Values
// decode to *Structure.
type StructuredType struct {
	typeID           opcua.ExpandedNodeID
	binaryEncodingID opcua.ExpandedNodeID
	xmlEncodingID    opcua.ExpandedNodeID
	name             opcua.QualifiedName
	definition       *opcua.StructureDefinition
	fields           []StructField
}

// TypeID implements opcua.EncodeableType.
func (t *StructuredType) TypeID() opcua.ExpandedNodeID { return t.typeID }

// BinaryEncodingID implements opcua.EncodeableType.
func (t *StructuredType) BinaryEncodingID() opcua.ExpandedNodeID { return t.binaryEncodingID }

// XMLEncodingID implements opcua.EncodeableType.
func (t *StructuredType) XMLEncodingID() opcua.ExpandedNodeID { return t.xmlEncodingID }

// Name implements opcua.EncodeableType.
func (t *StructuredType) Name() opcua.QualifiedName { return t.name }

// Definition returns the definition the type was built from.
func (t *StructuredType) Definition() *opcua.StructureDefinition { return t.definition }

// Fields returns the resolved fields.
func (t *StructuredType) Fields() []StructField { return t.fields }

// New returns an empty value of the type.
func (t *StructuredType) New() *Structure {
	s := &Structure{Type: t}
	if t.definition.StructureType.IsUnion() {
		return s
	}
	s.Fields = make([]FieldValue, len(t.fields))
	for i, f := range t.fields {
		s.Fields[i].Name = f.Field.Name
	}
	return s
}

// FieldValue is the value of one field. Absent optional fields hold nil.
type FieldValue struct {
	Name  string
	Value interface{}
}

// Structure is a decoded structure value. Scalars hold the Go value of the
// built-in type, an Enum or a nested *Structure; one-dimensional arrays hold
// []interface{}; higher ranks hold a Matrix. A union holds only its
// selected field and SwitchField is its 1-based position, 0 when null.
type Structure struct {
	Type         *StructuredType
	Fields       []FieldValue
	SwitchField  uint32
	EncodingMask uint32
}

// BinaryEncodingID implements opcua.Encodeable.
func (s *Structure) BinaryEncodingID() opcua.ExpandedNodeID {
	return s.Type.BinaryEncodingID()
}

// EncodeBinary implements opcua.Encodeable.
func (s *Structure) EncodeBinary(e *opcua.Encoder) error {
	return s.Type.encode(e, s, 0)
}

// Get returns the value of the named field.
func (s *Structure) Get(name string) (interface{}, bool) {
	for _, f := range s.Fields {
		if f.Name == name {
			return f.Value, true
		}
	}
	return nil, false
}

// Set sets the value of the named field. Setting a union member selects it.
func (s *Structure) Set(name string, value interface{}) error {
	if s.Type.definition.StructureType.IsUnion() {
		for i, f := range s.Type.fields {
			if f.Field.Name == name {
				s.SwitchField = uint32(i + 1)
				s.Fields = []FieldValue{{Name: name, Value: value}}
				return nil
			}
		}
		return fmt.Errorf("%w: %s has no field %s", opcua.ErrInvalidArgument, s.Type.name.Name, name)
	}
	for i := range s.Fields {
		if s.Fields[i].Name == name {
			s.Fields[i].Value = value
			return nil
		}
	}
	return fmt.Errorf("%w: %s has no field %s", opcua.ErrInvalidArgument, s.Type.name.Name, name)
}

// Matrix is a multi-dimensional array value in row-major order.
type Matrix struct {
	Dimensions []int32
	Values     []interface{}
}
