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

// Package schema parses and validates the type dictionaries an OPC UA
// server publishes below its OPC Binary and XML Schema type systems.
package schema

import "errors"

// Namespaces used by type dictionaries.
const (
	BinarySchemaNamespace = "http://opcfoundation.org/BinarySchema/"
	XMLSchemaNamespace    = "http://www.w3.org/2001/XMLSchema"
	UANamespace           = "http://opcfoundation.org/UA/"
)

// Errors returned by the parsers and validators.
var (
	ErrInvalidSchema    = errors.New("schema: invalid schema document")
	ErrSchemaValidation = errors.New("schema: validation failed")
)

// QName is a namespace qualified type name.
type QName struct {
	Namespace string
	Name      string
}

func (q QName) String() string {
	if q.Namespace == "" {
		return q.Name
	}
	return "{" + q.Namespace + "}" + q.Name
}

// IsZero reports whether q is unset.
func (q QName) IsZero() bool {
	return q.Name == ""
}

// Import is an Import element of a dictionary.
type Import struct {
	Namespace string
	Location  string
}

// TypeDictionary is a parsed OPC Binary type dictionary.
type TypeDictionary struct {
	TargetNamespace  string
	DefaultByteOrder string
	Documentation    string
	Imports          []Import

	StructuredTypes []*StructuredType
	EnumeratedTypes []*EnumeratedType
	OpaqueTypes     []*OpaqueType
}

// TypeDescription is implemented by the type declarations of a dictionary.
type TypeDescription interface {
	QualifiedName() QName
}

// Lookup returns the type declared under name, or nil.
func (d *TypeDictionary) Lookup(name string) TypeDescription {
	for _, t := range d.StructuredTypes {
		if t.Name == name {
			return t
		}
	}
	for _, t := range d.EnumeratedTypes {
		if t.Name == name {
			return t
		}
	}
	for _, t := range d.OpaqueTypes {
		if t.Name == name {
			return t
		}
	}
	return nil
}

// StructuredType is a structure declaration.
type StructuredType struct {
	Name          string
	Namespace     string
	BaseType      QName
	Documentation string
	Fields        []*FieldType
}

// QualifiedName implements TypeDescription.
func (t *StructuredType) QualifiedName() QName {
	return QName{Namespace: t.Namespace, Name: t.Name}
}

// Field returns the field named name, or nil.
func (t *StructuredType) Field(name string) *FieldType {
	for _, f := range t.Fields {
		if f.Name == name {
			return f
		}
	}
	return nil
}

// FieldType is one field of a structured type. Length and SwitchValue are
// nil when the attribute is absent.
type FieldType struct {
	Name            string
	TypeName        QName
	Length          *uint32
	LengthField     string
	IsLengthInBytes bool
	SwitchField     string
	SwitchValue     *uint32
	SwitchOperand   string
	Terminator      string
	Documentation   string
}

// IsBit reports whether the field is an opc:Bit field.
func (f *FieldType) IsBit() bool {
	return f.TypeName == QName{Namespace: BinarySchemaNamespace, Name: "Bit"}
}

// BitLength returns the number of bits of a Bit field.
func (f *FieldType) BitLength() uint32 {
	if f.Length == nil {
		return 1
	}
	return *f.Length
}

// EnumeratedType is an enumeration declaration.
type EnumeratedType struct {
	Name          string
	Namespace     string
	LengthInBits  uint32
	IsOptionSet   bool
	Documentation string
	Values        []EnumeratedValue
}

// QualifiedName implements TypeDescription.
func (t *EnumeratedType) QualifiedName() QName {
	return QName{Namespace: t.Namespace, Name: t.Name}
}

// EnumeratedValue is one member of an enumeration.
type EnumeratedValue struct {
	Name          string
	Value         int64
	Documentation string
}

// OpaqueType is a type encoded as a fixed number of bits or bytes.
type OpaqueType struct {
	Name                 string
	Namespace            string
	LengthInBits         uint32
	ByteOrderSignificant bool
	Documentation        string
}

// QualifiedName implements TypeDescription.
func (t *OpaqueType) QualifiedName() QName {
	return QName{Namespace: t.Namespace, Name: t.Name}
}

// builtinBinaryTypes are the types of the BinarySchema namespace.
var builtinBinaryTypes = map[string]bool{
	"Bit": true, "Boolean": true, "SByte": true, "Byte": true,
	"Int16": true, "UInt16": true, "Int32": true, "UInt32": true,
	"Int64": true, "UInt64": true, "Float": true, "Double": true,
	"Char": true, "WideChar": true, "CharArray": true, "WideCharArray": true,
	"String": true, "CString": true, "WideString": true, "WideCString": true,
	"ByteString": true, "DateTime": true, "Guid": true,
}

// IsBuiltinBinaryType reports whether q names a BinarySchema built-in type.
func IsBuiltinBinaryType(q QName) bool {
	return q.Namespace == BinarySchemaNamespace && builtinBinaryTypes[q.Name]
}
