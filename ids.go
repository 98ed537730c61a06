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

// Numeric identifiers of well-known namespace 0 nodes.
const (
	IDBoolean        uint32 = 1
	IDSByte          uint32 = 2
	IDByte           uint32 = 3
	IDInt16          uint32 = 4
	IDUInt16         uint32 = 5
	IDInt32          uint32 = 6
	IDUInt32         uint32 = 7
	IDInt64          uint32 = 8
	IDUInt64         uint32 = 9
	IDFloat          uint32 = 10
	IDDouble         uint32 = 11
	IDString         uint32 = 12
	IDDateTime       uint32 = 13
	IDGuid           uint32 = 14
	IDByteString     uint32 = 15
	IDXmlElement     uint32 = 16
	IDNodeId         uint32 = 17
	IDExpandedNodeId uint32 = 18
	IDStatusCode     uint32 = 19
	IDQualifiedName  uint32 = 20
	IDLocalizedText  uint32 = 21
	IDStructure      uint32 = 22
	IDDataValue      uint32 = 23
	IDBaseDataType   uint32 = 24
	IDDiagnosticInfo uint32 = 25
	IDNumber         uint32 = 26
	IDInteger        uint32 = 27
	IDUInteger       uint32 = 28
	IDEnumeration    uint32 = 29
	IDImage          uint32 = 30
	IDDecimal        uint32 = 50
	IDDuration       uint32 = 290
	IDUtcTime        uint32 = 294
	IDLocaleId       uint32 = 295
	IDIntegerId      uint32 = 288
	IDCounter        uint32 = 289
	IDNumericRange   uint32 = 291
	IDDataTypeDef    uint32 = 97
	IDStructureType  uint32 = 98
	IDStructureDef   uint32 = 99
	IDEnumDef        uint32 = 100
	IDStructureField uint32 = 101
	IDEnumField      uint32 = 102
	IDEnumValueType  uint32 = 7594
	IDOptionSet      uint32 = 12755
	IDUnion          uint32 = 12756

	IDReferences             uint32 = 31
	IDHierarchicalReferences uint32 = 33
	IDHasChild               uint32 = 34
	IDOrganizes              uint32 = 35
	IDHasTypeDefinition      uint32 = 40
	IDAggregates             uint32 = 44
	IDHasSubtype             uint32 = 45
	IDHasProperty            uint32 = 46
	IDHasComponent           uint32 = 47
	IDHasEncoding            uint32 = 38
	IDHasDescription         uint32 = 39
	IDNonHierarchicalRefs    uint32 = 32

	IDXMLSchemaTypeSystem       uint32 = 92
	IDOPCBinarySchemaTypeSystem uint32 = 93
	IDDataTypeSystemType        uint32 = 75
	IDDataTypeDictionaryType    uint32 = 72
	IDDataTypeDescriptionType   uint32 = 69
	IDDataTypeEncodingType      uint32 = 76
	IDPropertyType              uint32 = 68
	IDServerNamespaceArray      uint32 = 2255

	IDStructureDefinitionEncodingDefaultBinary uint32 = 122
	IDEnumDefinitionEncodingDefaultBinary      uint32 = 123
	IDStructureFieldEncodingDefaultBinary      uint32 = 14844
	IDEnumFieldEncodingDefaultBinary           uint32 = 14845
	IDEnumValueTypeEncodingDefaultBinary       uint32 = 8251
)

// Browse names of well-known nodes.
const (
	BrowseNameDefaultBinary = "Default Binary"
	BrowseNameDefaultXML    = "Default XML"
	BrowseNameDefaultJSON   = "Default JSON"
	BrowseNameEnumValues    = "EnumValues"
	BrowseNameEnumStrings   = "EnumStrings"
)

// Namespace 0 NodeIDs used when walking the type hierarchy.
var (
	DataTypeStructure    = NewNumericNodeID(0, IDStructure)
	DataTypeEnumeration  = NewNumericNodeID(0, IDEnumeration)
	DataTypeBaseDataType = NewNumericNodeID(0, IDBaseDataType)
	DataTypeUnion        = NewNumericNodeID(0, IDUnion)
	DataTypeInt32        = NewNumericNodeID(0, IDInt32)
	DataTypeUInt32       = NewNumericNodeID(0, IDUInt32)
	DataTypeString       = NewNumericNodeID(0, IDString)

	RefHasSubtype     = NewNumericNodeID(0, IDHasSubtype)
	RefHasEncoding    = NewNumericNodeID(0, IDHasEncoding)
	RefHasDescription = NewNumericNodeID(0, IDHasDescription)
	RefHasComponent   = NewNumericNodeID(0, IDHasComponent)
	RefHasProperty    = NewNumericNodeID(0, IDHasProperty)

	ObjectXMLSchemaTypeSystem       = NewNumericNodeID(0, IDXMLSchemaTypeSystem)
	ObjectOPCBinarySchemaTypeSystem = NewNumericNodeID(0, IDOPCBinarySchemaTypeSystem)
	VariableServerNamespaceArray    = NewNumericNodeID(0, IDServerNamespaceArray)
)

// namespace0DataTypes names the namespace 0 data types that may appear as
// field types in a type dictionary or a StructureDefinition.
var namespace0DataTypes = map[string]uint32{
	"Boolean":                 IDBoolean,
	"SByte":                   IDSByte,
	"Byte":                    IDByte,
	"Int16":                   IDInt16,
	"UInt16":                  IDUInt16,
	"Int32":                   IDInt32,
	"UInt32":                  IDUInt32,
	"Int64":                   IDInt64,
	"UInt64":                  IDUInt64,
	"Float":                   IDFloat,
	"Double":                  IDDouble,
	"String":                  IDString,
	"DateTime":                IDDateTime,
	"Guid":                    IDGuid,
	"ByteString":              IDByteString,
	"XmlElement":              IDXmlElement,
	"NodeId":                  IDNodeId,
	"ExpandedNodeId":          IDExpandedNodeId,
	"StatusCode":              IDStatusCode,
	"QualifiedName":           IDQualifiedName,
	"LocalizedText":           IDLocalizedText,
	"Structure":               IDStructure,
	"DataValue":               IDDataValue,
	"BaseDataType":            IDBaseDataType,
	"DiagnosticInfo":          IDDiagnosticInfo,
	"Number":                  IDNumber,
	"Integer":                 IDInteger,
	"UInteger":                IDUInteger,
	"Enumeration":             IDEnumeration,
	"Image":                   IDImage,
	"Decimal":                 IDDecimal,
	"Duration":                IDDuration,
	"UtcTime":                 IDUtcTime,
	"LocaleId":                IDLocaleId,
	"IntegerId":               IDIntegerId,
	"Counter":                 IDCounter,
	"NumericRange":            IDNumericRange,
	"DataTypeDefinition":      IDDataTypeDef,
	"StructureType":           IDStructureType,
	"StructureDefinition":     IDStructureDef,
	"EnumDefinition":          IDEnumDef,
	"StructureField":          IDStructureField,
	"EnumField":               IDEnumField,
	"EnumValueType":           IDEnumValueType,
	"OptionSet":               IDOptionSet,
	"Union":                   IDUnion,
	"Range":                   884,
	"EUInformation":           887,
	"Argument":                296,
	"TimeZoneDataType":        8912,
	"XVType":                  12080,
	"ComplexNumberType":       12171,
	"DoubleComplexNumberType": 12172,
	"AxisInformation":         12079,
	"KeyValuePair":            14533,
	"BuildInfo":               338,
	"ServerStatusDataType":    862,
}

// LookupNamespace0DataType returns the NodeID of a namespace 0 data type by
// browse name.
func LookupNamespace0DataType(name string) (NodeID, bool) {
	id, ok := namespace0DataTypes[name]
	if !ok {
		return NodeID{}, false
	}
	return NewNumericNodeID(0, id), true
}

// namespace0SubTypes maps namespace 0 simple subtypes to their built-in type.
var namespace0SubTypes = map[uint32]TypeID{
	IDNumber:       TypeVariant,
	IDInteger:      TypeVariant,
	IDUInteger:     TypeVariant,
	IDImage:        TypeByteString,
	IDDecimal:      TypeExtensionObject,
	IDDuration:     TypeDouble,
	IDUtcTime:      TypeDateTime,
	IDLocaleId:     TypeString,
	IDIntegerId:    TypeUInt32,
	IDCounter:      TypeUInt32,
	IDNumericRange: TypeString,
	IDEnumeration:  TypeInt32,
	2000:           TypeByteString, // ImageBMP
	2001:           TypeByteString, // ImageGIF
	2002:           TypeByteString, // ImageJPG
	2003:           TypeByteString, // ImagePNG
	11737:          TypeUInt32,     // BitFieldMaskDataType
	292:            TypeString,     // Time
	293:            TypeDateTime,   // Date
	311:            TypeByteString, // ApplicationInstanceCertificate
	23751:          TypeString,     // AudioDataType
	11295:          TypeString,     // SemanticVersionString
	31918:          TypeString,     // UriString
}

// BuiltInTypeOf returns the built-in type a namespace 0 data type is encoded
// as. ok is false for structures and enumerations other than the abstract
// Enumeration and for ids outside namespace 0.
func BuiltInTypeOf(dataType NodeID) (TypeID, bool) {
	if dataType.Namespace != 0 || dataType.Type != NodeIDTypeNumeric {
		return TypeNull, false
	}
	if dataType.Numeric >= IDBoolean && dataType.Numeric <= IDDiagnosticInfo {
		return TypeID(dataType.Numeric), true
	}
	t, ok := namespace0SubTypes[dataType.Numeric]
	return t, ok
}
