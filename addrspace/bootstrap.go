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
	opcua "github.com/edgeo-scada/opcua-types"
)

type standardNode struct {
	id         uint32
	name       string
	class      opcua.NodeClass
	parent     uint32 // supertype for types, organizing node otherwise
	isAbstract bool
}

// referenceTypes is the standard reference type hierarchy.
var referenceTypes = []standardNode{
	{31, "References", opcua.NodeClassReferenceType, 0, true},
	{33, "HierarchicalReferences", opcua.NodeClassReferenceType, 31, true},
	{32, "NonHierarchicalReferences", opcua.NodeClassReferenceType, 31, true},
	{34, "HasChild", opcua.NodeClassReferenceType, 33, true},
	{35, "Organizes", opcua.NodeClassReferenceType, 33, false},
	{44, "Aggregates", opcua.NodeClassReferenceType, 34, true},
	{45, "HasSubtype", opcua.NodeClassReferenceType, 34, false},
	{47, "HasComponent", opcua.NodeClassReferenceType, 44, false},
	{49, "HasOrderedComponent", opcua.NodeClassReferenceType, 47, false},
	{46, "HasProperty", opcua.NodeClassReferenceType, 44, false},
	{38, "HasEncoding", opcua.NodeClassReferenceType, 32, false},
	{39, "HasDescription", opcua.NodeClassReferenceType, 32, false},
	{40, "HasTypeDefinition", opcua.NodeClassReferenceType, 32, false},
	{37, "HasModellingRule", opcua.NodeClassReferenceType, 32, false},
}

// objectAndVariableTypes are the type definitions of the nodes the
// builders create.
var objectAndVariableTypes = []standardNode{
	{58, "BaseObjectType", opcua.NodeClassObjectType, 0, false},
	{61, "FolderType", opcua.NodeClassObjectType, 58, false},
	{75, "DataTypeSystemType", opcua.NodeClassObjectType, 58, false},
	{76, "DataTypeEncodingType", opcua.NodeClassObjectType, 58, false},
	{62, "BaseVariableType", opcua.NodeClassVariableType, 0, true},
	{63, "BaseDataVariableType", opcua.NodeClassVariableType, 62, false},
	{68, "PropertyType", opcua.NodeClassVariableType, 62, false},
	{69, "DataTypeDescriptionType", opcua.NodeClassVariableType, 63, false},
	{72, "DataTypeDictionaryType", opcua.NodeClassVariableType, 63, false},
}

// dataTypes is the namespace 0 data type hierarchy, supertypes first.
var dataTypes = []standardNode{
	{24, "BaseDataType", opcua.NodeClassDataType, 0, true},
	{1, "Boolean", opcua.NodeClassDataType, 24, false},
	{12, "String", opcua.NodeClassDataType, 24, false},
	{13, "DateTime", opcua.NodeClassDataType, 24, false},
	{14, "Guid", opcua.NodeClassDataType, 24, false},
	{15, "ByteString", opcua.NodeClassDataType, 24, false},
	{16, "XmlElement", opcua.NodeClassDataType, 24, false},
	{17, "NodeId", opcua.NodeClassDataType, 24, false},
	{18, "ExpandedNodeId", opcua.NodeClassDataType, 24, false},
	{19, "StatusCode", opcua.NodeClassDataType, 24, false},
	{20, "QualifiedName", opcua.NodeClassDataType, 24, false},
	{21, "LocalizedText", opcua.NodeClassDataType, 24, false},
	{22, "Structure", opcua.NodeClassDataType, 24, true},
	{23, "DataValue", opcua.NodeClassDataType, 24, false},
	{25, "DiagnosticInfo", opcua.NodeClassDataType, 24, false},
	{26, "Number", opcua.NodeClassDataType, 24, true},
	{29, "Enumeration", opcua.NodeClassDataType, 24, true},
	{10, "Float", opcua.NodeClassDataType, 26, false},
	{11, "Double", opcua.NodeClassDataType, 26, false},
	{50, "Decimal", opcua.NodeClassDataType, 26, false},
	{27, "Integer", opcua.NodeClassDataType, 26, true},
	{28, "UInteger", opcua.NodeClassDataType, 26, true},
	{2, "SByte", opcua.NodeClassDataType, 27, false},
	{4, "Int16", opcua.NodeClassDataType, 27, false},
	{6, "Int32", opcua.NodeClassDataType, 27, false},
	{8, "Int64", opcua.NodeClassDataType, 27, false},
	{3, "Byte", opcua.NodeClassDataType, 28, false},
	{5, "UInt16", opcua.NodeClassDataType, 28, false},
	{7, "UInt32", opcua.NodeClassDataType, 28, false},
	{9, "UInt64", opcua.NodeClassDataType, 28, false},
	{30, "Image", opcua.NodeClassDataType, 15, true},
	{290, "Duration", opcua.NodeClassDataType, 11, false},
	{294, "UtcTime", opcua.NodeClassDataType, 13, false},
	{295, "LocaleId", opcua.NodeClassDataType, 12, false},
	{288, "IntegerId", opcua.NodeClassDataType, 7, false},
	{12756, "Union", opcua.NodeClassDataType, 22, true},
	{12755, "OptionSet", opcua.NodeClassDataType, 22, true},
	{97, "DataTypeDefinition", opcua.NodeClassDataType, 22, true},
	{99, "StructureDefinition", opcua.NodeClassDataType, 97, false},
	{100, "EnumDefinition", opcua.NodeClassDataType, 97, false},
	{101, "StructureField", opcua.NodeClassDataType, 22, false},
	{7594, "EnumValueType", opcua.NodeClassDataType, 22, false},
	{102, "EnumField", opcua.NodeClassDataType, 7594, false},
	{884, "Range", opcua.NodeClassDataType, 22, false},
	{887, "EUInformation", opcua.NodeClassDataType, 22, false},
	{98, "StructureType", opcua.NodeClassDataType, 29, false},
	{257, "NodeClass", opcua.NodeClassDataType, 29, false},
	{852, "ServerState", opcua.NodeClassDataType, 29, false},
}

// standardEncodings are the Default Binary encodings of namespace 0 structures.
var standardEncodings = map[uint32]uint32{
	99:   opcua.IDStructureDefinitionEncodingDefaultBinary,
	100:  opcua.IDEnumDefinitionEncodingDefaultBinary,
	101:  opcua.IDStructureFieldEncodingDefaultBinary,
	102:  opcua.IDEnumFieldEncodingDefaultBinary,
	7594: opcua.IDEnumValueTypeEncodingDefaultBinary,
	884:  886,
	887:  889,
}

func ns0(id uint32) opcua.NodeID {
	return opcua.NewNumericNodeID(0, id)
}

// initDefaultNodes builds the standard nodes. Called before the address
// space is shared, so it uses the unlocked helpers.
func (m *Memory) initDefaultNodes() {
	add := func(nodes []standardNode, parentRef opcua.NodeID) {
		for _, sn := range nodes {
			n := m.addNode(ns0(sn.id), sn.class, opcua.QualifiedName{Name: sn.name}, "")
			n.isAbstract = sn.isAbstract
			if sn.parent != 0 {
				m.mustReference(ns0(sn.parent), parentRef, ns0(sn.id))
			}
		}
	}
	add(referenceTypes, opcua.RefHasSubtype)
	add(objectAndVariableTypes, opcua.RefHasSubtype)
	add(dataTypes, opcua.RefHasSubtype)

	for typeID, encodingID := range standardEncodings {
		m.addNode(ns0(encodingID), opcua.NodeClassObject, opcua.QualifiedName{Name: opcua.BrowseNameDefaultBinary}, "")
		m.mustReference(ns0(encodingID), refHasTypeDefinition, typeDataTypeEncoding)
		m.mustReference(ns0(typeID), opcua.RefHasEncoding, ns0(encodingID))
	}

	m.nodes[key(ns0(884))].definition = &opcua.StructureDefinition{
		DefaultEncodingID: ns0(886),
		BaseDataType:      opcua.DataTypeStructure,
		Fields: []opcua.StructureField{
			{Name: "Low", DataType: ns0(opcua.IDDouble), ValueRank: opcua.ValueRankScalar},
			{Name: "High", DataType: ns0(opcua.IDDouble), ValueRank: opcua.ValueRankScalar},
		},
	}
	m.nodes[key(ns0(887))].definition = &opcua.StructureDefinition{
		DefaultEncodingID: ns0(889),
		BaseDataType:      opcua.DataTypeStructure,
		Fields: []opcua.StructureField{
			{Name: "NamespaceUri", DataType: opcua.DataTypeString, ValueRank: opcua.ValueRankScalar},
			{Name: "UnitId", DataType: opcua.DataTypeInt32, ValueRank: opcua.ValueRankScalar},
			{Name: "DisplayName", DataType: ns0(opcua.IDLocalizedText), ValueRank: opcua.ValueRankScalar},
			{Name: "Description", DataType: ns0(opcua.IDLocalizedText), ValueRank: opcua.ValueRankScalar},
		},
	}
	m.nodes[key(ns0(98))].definition = enumDefinition("Structure", "StructureWithOptionalFields", "Union",
		"StructureWithSubtypedValues", "UnionWithSubtypedValues")
	m.nodes[key(ns0(852))].definition = enumDefinition("Running", "Failed", "NoConfiguration", "Suspended",
		"Shutdown", "Test", "CommunicationFault", "Unknown")

	objects := []standardNode{
		{84, "Root", opcua.NodeClassObject, 0, false},
		{85, "Objects", opcua.NodeClassObject, 84, false},
		{86, "Types", opcua.NodeClassObject, 84, false},
		{90, "DataTypes", opcua.NodeClassObject, 86, false},
		{2253, "Server", opcua.NodeClassObject, 85, false},
		{opcua.IDOPCBinarySchemaTypeSystem, "OPC Binary", opcua.NodeClassObject, 90, false},
		{opcua.IDXMLSchemaTypeSystem, "XML Schema", opcua.NodeClassObject, 90, false},
	}
	add(objects, refOrganizes)
	for _, id := range []uint32{84, 85, 86, 90} {
		m.mustReference(ns0(id), refHasTypeDefinition, ns0(61))
	}
	m.mustReference(ns0(2253), refHasTypeDefinition, typeBaseObject)
	m.mustReference(opcua.ObjectOPCBinarySchemaTypeSystem, refHasTypeDefinition, typeDataTypeSystem)
	m.mustReference(opcua.ObjectXMLSchemaTypeSystem, refHasTypeDefinition, typeDataTypeSystem)
	m.mustReference(objectDataTypeSystemsRoot, refOrganizes, ns0(opcua.IDBaseDataType))

	ns := m.addNode(opcua.VariableServerNamespaceArray, opcua.NodeClassVariable, opcua.QualifiedName{Name: "NamespaceArray"}, "")
	ns.dataType = opcua.DataTypeString
	m.mustReference(ns0(2253), opcua.RefHasProperty, opcua.VariableServerNamespaceArray)
	m.mustReference(opcua.VariableServerNamespaceArray, refHasTypeDefinition, typeProperty)
	m.updateNamespaceArray()
}

func (m *Memory) mustReference(source, referenceType, target opcua.NodeID) {
	if err := m.addReference(source, referenceType, target); err != nil {
		panic(err)
	}
}

func enumDefinition(names ...string) *opcua.EnumDefinition {
	def := &opcua.EnumDefinition{Fields: make([]opcua.EnumField, len(names))}
	for i, n := range names {
		def.Fields[i] = opcua.EnumField{Name: n, Value: int64(i), DisplayName: opcua.NewLocalizedText(n)}
	}
	return def
}
