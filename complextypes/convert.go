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
	"github.com/edgeo-scada/opcua-types/schema"
)

// optionalFieldMaskBits is the width of the encoding mask of a structure
// with optional fields.
const optionalFieldMaskBits = 32

// ToStructureDefinition converts a binary schema structure to a
// StructureDefinition. typeDictionary maps the qualified names of every
// dictionary type known so far to their data type ids; names it does not
// hold convert to a null data type, which the caller treats as not yet
// resolvable. A field of the structure's own type resolves to selfTypeID.
func ToStructureDefinition(
	st *schema.StructuredType,
	defaultEncodingID opcua.ExpandedNodeID,
	typeDictionary map[schema.QName]opcua.NodeID,
	namespaces *opcua.NamespaceTable,
	selfTypeID opcua.NodeID,
) (*opcua.StructureDefinition, error) {
	isUnion, hasBitField := false, false
	for _, f := range st.Fields {
		if f.IsLengthInBytes {
			return nil, notSupported("%s.%s: IsLengthInBytes", st.Name, f.Name)
		}
		if f.Terminator != "" {
			return nil, notSupported("%s.%s: Terminator", st.Name, f.Name)
		}
		if f.SwitchValue != nil && *f.SwitchValue != 0 {
			isUnion = true
		}
		if f.IsBit() {
			hasBitField = true
			continue
		}
		if f.Length != nil && *f.Length != 0 {
			return nil, notSupported("%s.%s: fixed Length %d", st.Name, f.Name, *f.Length)
		}
	}
	if isUnion && hasBitField {
		return nil, notSupported("%s: union with optional fields", st.Name)
	}

	def := &opcua.StructureDefinition{
		BaseDataType:  opcua.DataTypeStructure,
		StructureType: opcua.StructureTypeStructure,
	}
	switch {
	case isUnion:
		def.BaseDataType = opcua.DataTypeUnion
		def.StructureType = opcua.StructureTypeUnion
	case hasBitField:
		def.StructureType = opcua.StructureTypeStructureWithOptionalFields
	}
	if !defaultEncodingID.IsNull() {
		id, err := namespaces.ToNodeID(defaultEncodingID)
		if err != nil {
			return nil, fmt.Errorf("%s: default encoding: %w", st.Name, err)
		}
		def.DefaultEncodingID = id
	}

	self := st.QualifiedName()
	bits := uint32(0)
	switchBits := make(map[string]bool)
	dataFields := 0
	fields := make([]opcua.StructureField, 0, len(st.Fields))

	for _, f := range st.Fields {
		if f.IsBit() {
			if dataFields > 0 {
				return nil, notSupported("%s.%s: bit field after a data field", st.Name, f.Name)
			}
			switchBits[f.Name] = true
			bits += f.BitLength()
			continue
		}
		if hasBitField && bits != optionalFieldMaskBits {
			return nil, notSupported("%s: encoding mask has %d bits, want %d", st.Name, bits, optionalFieldMaskBits)
		}
		dataFields++

		var dataType opcua.NodeID
		if f.TypeName == self {
			dataType = selfTypeID
		} else {
			dataType = dataTypeOf(f.TypeName, typeDictionary)
		}

		if f.LengthField != "" {
			if len(fields) == 0 || fields[len(fields)-1].Name != f.LengthField {
				return nil, notSupported("%s.%s: length field %q must precede the array", st.Name, f.Name, f.LengthField)
			}
			last := &fields[len(fields)-1]
			last.Name = f.Name
			last.DataType = dataType
			last.ValueRank = opcua.ValueRankOneDimension
			continue
		}

		field := opcua.StructureField{
			Name:      f.Name,
			DataType:  dataType,
			ValueRank: opcua.ValueRankScalar,
		}
		if f.Documentation != "" {
			field.Description = opcua.NewLocalizedText(f.Documentation)
		}

		switch {
		case isUnion:
			if f.SwitchField == "" {
				// the discriminator itself
				if len(fields) != 0 {
					return nil, notSupported("%s.%s: union member without a switch field", st.Name, f.Name)
				}
				continue
			}
			want := uint32(len(fields) + 1)
			if f.SwitchValue == nil || *f.SwitchValue != want {
				return nil, notSupported("%s.%s: switch value does not match member position %d", st.Name, f.Name, want)
			}
		case hasBitField:
			if f.SwitchField != "" {
				if !switchBits[f.SwitchField] {
					return nil, notSupported("%s.%s: switch field %q is not a bit field", st.Name, f.Name, f.SwitchField)
				}
				field.IsOptional = true
			}
		}
		fields = append(fields, field)
	}
	if hasBitField && bits != optionalFieldMaskBits {
		return nil, notSupported("%s: encoding mask has %d bits, want %d", st.Name, bits, optionalFieldMaskBits)
	}
	def.Fields = fields
	return def, nil
}

// dataTypeOf resolves a schema type name to a data type id.
func dataTypeOf(name schema.QName, typeDictionary map[schema.QName]opcua.NodeID) opcua.NodeID {
	if name.Namespace == schema.BinarySchemaNamespace || name.Namespace == schema.UANamespace {
		switch name.Name {
		case "CharArray", "WideString", "WideCharArray":
			return opcua.DataTypeString
		case "Variant":
			return opcua.DataTypeBaseDataType
		case "ExtensionObject":
			return opcua.DataTypeStructure
		}
		if id, ok := opcua.LookupNamespace0DataType(name.Name); ok {
			return id
		}
	}
	if id, ok := typeDictionary[name]; ok {
		return id
	}
	return opcua.NodeID{}
}

// EnumeratedTypeToEnumDefinition converts a binary schema enumeration.
func EnumeratedTypeToEnumDefinition(e *schema.EnumeratedType) *opcua.EnumDefinition {
	def := &opcua.EnumDefinition{
		Fields:      make([]opcua.EnumField, len(e.Values)),
		IsOptionSet: e.IsOptionSet,
	}
	for i, v := range e.Values {
		def.Fields[i] = opcua.EnumField{
			Name:        v.Name,
			Value:       v.Value,
			DisplayName: opcua.NewLocalizedText(v.Name),
		}
		if v.Documentation != "" {
			def.Fields[i].Description = opcua.NewLocalizedText(v.Documentation)
		}
	}
	return def
}

// EnumValueTypesToEnumDefinition converts the EnumValues property.
func EnumValueTypesToEnumDefinition(values []opcua.EnumValueType) *opcua.EnumDefinition {
	def := &opcua.EnumDefinition{Fields: make([]opcua.EnumField, len(values))}
	for i, v := range values {
		def.Fields[i] = opcua.EnumField{
			Name:        v.DisplayName.Text,
			Value:       v.Value,
			DisplayName: v.DisplayName,
			Description: v.Description,
		}
	}
	return def
}

// LocalizedTextsToEnumDefinition converts the EnumStrings property. Values
// are the ordinal positions.
func LocalizedTextsToEnumDefinition(texts []opcua.LocalizedText) *opcua.EnumDefinition {
	def := &opcua.EnumDefinition{Fields: make([]opcua.EnumField, len(texts))}
	for i, t := range texts {
		def.Fields[i] = opcua.EnumField{
			Name:        t.Text,
			Value:       int64(i),
			DisplayName: t,
		}
	}
	return def
}

// EnumTypeArrayToEnumDefinition converts the value of an EnumValues or
// EnumStrings property, as returned by GetEnumTypeArray.
func EnumTypeArrayToEnumDefinition(value interface{}) (*opcua.EnumDefinition, error) {
	switch v := value.(type) {
	case *opcua.Variant:
		if v == nil {
			break
		}
		return EnumTypeArrayToEnumDefinition(v.Value)
	case []opcua.EnumValueType:
		return EnumValueTypesToEnumDefinition(v), nil
	case []opcua.LocalizedText:
		return LocalizedTextsToEnumDefinition(v), nil
	case []interface{}:
		if len(v) == 0 {
			return &opcua.EnumDefinition{Fields: []opcua.EnumField{}}, nil
		}
		if _, ok := v[0].(opcua.LocalizedText); ok {
			texts := make([]opcua.LocalizedText, len(v))
			for i, item := range v {
				t, ok := item.(opcua.LocalizedText)
				if !ok {
					return nil, fmt.Errorf("%w: enum string %d is %T", opcua.ErrTypeMismatch, i, item)
				}
				texts[i] = t
			}
			return LocalizedTextsToEnumDefinition(texts), nil
		}
		values := make([]opcua.EnumValueType, len(v))
		for i, item := range v {
			ev, err := enumValueOf(item)
			if err != nil {
				return nil, fmt.Errorf("enum value %d: %w", i, err)
			}
			values[i] = ev
		}
		return EnumValueTypesToEnumDefinition(values), nil
	}
	return nil, fmt.Errorf("%w: enum type array is %T", opcua.ErrTypeMismatch, value)
}

func enumValueOf(item interface{}) (opcua.EnumValueType, error) {
	switch v := item.(type) {
	case opcua.ExtensionObject:
		return enumValueOf(v.Value)
	case *opcua.EnumValueType:
		if v != nil {
			return *v, nil
		}
	case opcua.EnumValueType:
		return v, nil
	}
	return opcua.EnumValueType{}, fmt.Errorf("%w: %T is not an EnumValueType", opcua.ErrTypeMismatch, item)
}
