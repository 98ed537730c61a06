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
	"bytes"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	opcua "github.com/edgeo-scada/opcua-types"
)

// Document is the YAML description of the custom part of an address space.
// Node ids use the standard notation; "nsu=<uri>;" prefixes are resolved
// against the namespaces listed in the document.
type Document struct {
	Namespaces   []string         `yaml:"namespaces"`
	DataTypes    []DataTypeSpec   `yaml:"dataTypes"`
	Dictionaries []DictionarySpec `yaml:"dictionaries"`
}

// DataTypeSpec describes a DataType node.
type DataTypeSpec struct {
	NodeID      string            `yaml:"nodeId"`
	BrowseName  string            `yaml:"browseName"`
	SuperType   string            `yaml:"superType"`
	IsAbstract  bool              `yaml:"isAbstract"`
	Encodings   map[string]string `yaml:"encodings"`
	Structure   *StructureSpec    `yaml:"structure"`
	Enum        *EnumSpec         `yaml:"enum"`
	EnumStrings []string          `yaml:"enumStrings"`
	EnumValues  []EnumValueSpec   `yaml:"enumValues"`
}

// StructureSpec is the DataTypeDefinition of a structure.
type StructureSpec struct {
	StructureType     string      `yaml:"structureType"`
	BaseDataType      string      `yaml:"baseDataType"`
	DefaultEncodingID string      `yaml:"defaultEncodingId"`
	Fields            []FieldSpec `yaml:"fields"`
}

// FieldSpec is one structure field. ValueRank defaults to scalar.
type FieldSpec struct {
	Name            string   `yaml:"name"`
	DataType        string   `yaml:"dataType"`
	ValueRank       *int32   `yaml:"valueRank"`
	ArrayDimensions []uint32 `yaml:"arrayDimensions"`
	MaxStringLength uint32   `yaml:"maxStringLength"`
	IsOptional      bool     `yaml:"isOptional"`
	Description     string   `yaml:"description"`
}

// EnumSpec is the DataTypeDefinition of an enumeration.
type EnumSpec struct {
	IsOptionSet bool            `yaml:"isOptionSet"`
	Fields      []EnumFieldSpec `yaml:"fields"`
}

// EnumFieldSpec is one enumeration member.
type EnumFieldSpec struct {
	Name        string `yaml:"name"`
	Value       int64  `yaml:"value"`
	DisplayName string `yaml:"displayName"`
	Description string `yaml:"description"`
}

// EnumValueSpec is one entry of an EnumValues property.
type EnumValueSpec struct {
	Value       int64  `yaml:"value"`
	DisplayName string `yaml:"displayName"`
	Description string `yaml:"description"`
}

// DictionarySpec describes a type dictionary. The schema is given inline
// or as a file relative to the document.
type DictionarySpec struct {
	NodeID       string      `yaml:"nodeId"`
	Name         string      `yaml:"name"`
	TypeSystem   string      `yaml:"typeSystem"`
	NamespaceURI string      `yaml:"namespaceUri"`
	Schema       string      `yaml:"schema"`
	SchemaFile   string      `yaml:"schemaFile"`
	Entries      []EntrySpec `yaml:"entries"`
}

// EntrySpec is a DataTypeDescription inside a dictionary, linked from the
// encoding node Encoding.
type EntrySpec struct {
	NodeID   string `yaml:"nodeId"`
	Name     string `yaml:"name"`
	Encoding string `yaml:"encoding"`
}

var encodingNames = map[string]string{
	"binary": opcua.BrowseNameDefaultBinary,
	"xml":    opcua.BrowseNameDefaultXML,
	"json":   opcua.BrowseNameDefaultJSON,
}

// Load reads a YAML document from fsys and returns a new address space
// holding the standard nodes plus the document's content.
func Load(fsys fs.FS, name string, opts ...Option) (*Memory, error) {
	data, err := fs.ReadFile(fsys, name)
	if err != nil {
		return nil, err
	}
	m := NewMemory(opts...)
	if err := m.LoadYAML(bytes.NewReader(data), fsys); err != nil {
		return nil, fmt.Errorf("%s: %w", name, err)
	}
	return m, nil
}

// LoadYAML adds the content of a YAML document. fsys resolves schemaFile
// entries and may be nil when every schema is inline.
func (m *Memory) LoadYAML(r io.Reader, fsys fs.FS) error {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	var doc Document
	if err := dec.Decode(&doc); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("parse address space: %w", err)
	}
	return m.Apply(&doc, fsys)
}

// Apply adds the content of a parsed document.
func (m *Memory) Apply(doc *Document, fsys fs.FS) error {
	for _, uri := range doc.Namespaces {
		m.AddNamespace(uri)
	}

	// nodes first so that supertypes and field types may appear in any order
	ids := make([]opcua.NodeID, len(doc.DataTypes))
	for i, dt := range doc.DataTypes {
		id, err := m.resolveNodeID(dt.NodeID)
		if err != nil {
			return fmt.Errorf("data type %d: %w", i, err)
		}
		name, err := parseBrowseName(dt.BrowseName, id.Namespace)
		if err != nil {
			return fmt.Errorf("data type %s: %w", dt.NodeID, err)
		}
		ids[i] = id
		if err := m.AddDataType(id, name, opcua.NodeID{}, dt.IsAbstract, nil); err != nil {
			return err
		}
	}
	for i, dt := range doc.DataTypes {
		if err := m.applyDataType(ids[i], dt); err != nil {
			return fmt.Errorf("data type %s: %w", dt.NodeID, err)
		}
	}
	for _, dict := range doc.Dictionaries {
		if err := m.applyDictionary(dict, fsys); err != nil {
			return fmt.Errorf("dictionary %s: %w", dict.Name, err)
		}
	}
	return nil
}

func (m *Memory) applyDataType(id opcua.NodeID, dt DataTypeSpec) error {
	if dt.SuperType != "" {
		super, err := m.resolveNodeID(dt.SuperType)
		if err != nil {
			return fmt.Errorf("supertype: %w", err)
		}
		if err := m.AddReference(super, opcua.RefHasSubtype, id); err != nil {
			return err
		}
	}

	var binaryEncoding opcua.NodeID
	for kind, s := range dt.Encodings {
		name, ok := encodingNames[strings.ToLower(kind)]
		if !ok {
			return fmt.Errorf("%w: unknown encoding %q", opcua.ErrInvalidArgument, kind)
		}
		encID, err := m.resolveNodeID(s)
		if err != nil {
			return fmt.Errorf("encoding %s: %w", kind, err)
		}
		if err := m.AddEncoding(id, encID, name); err != nil {
			return err
		}
		if name == opcua.BrowseNameDefaultBinary {
			binaryEncoding = encID
		}
	}

	switch {
	case dt.Structure != nil && dt.Enum != nil:
		return fmt.Errorf("%w: both structure and enum definitions", opcua.ErrInvalidArgument)
	case dt.Structure != nil:
		def, err := m.structureDefinition(dt.Structure, binaryEncoding)
		if err != nil {
			return err
		}
		if err := m.SetDataTypeDefinition(id, def); err != nil {
			return err
		}
	case dt.Enum != nil:
		def := &opcua.EnumDefinition{IsOptionSet: dt.Enum.IsOptionSet}
		for _, f := range dt.Enum.Fields {
			display := f.DisplayName
			if display == "" {
				display = f.Name
			}
			def.Fields = append(def.Fields, opcua.EnumField{
				Name:        f.Name,
				Value:       f.Value,
				DisplayName: opcua.NewLocalizedText(display),
				Description: opcua.NewLocalizedText(f.Description),
			})
		}
		if err := m.SetDataTypeDefinition(id, def); err != nil {
			return err
		}
	}

	if len(dt.EnumStrings) > 0 {
		if err := m.AddEnumStrings(id, dt.EnumStrings...); err != nil {
			return err
		}
	}
	if len(dt.EnumValues) > 0 {
		values := make([]opcua.EnumValueType, len(dt.EnumValues))
		for i, v := range dt.EnumValues {
			values[i] = opcua.EnumValueType{
				Value:       v.Value,
				DisplayName: opcua.NewLocalizedText(v.DisplayName),
				Description: opcua.NewLocalizedText(v.Description),
			}
		}
		if err := m.AddEnumValues(id, values...); err != nil {
			return err
		}
	}
	return nil
}

func (m *Memory) structureDefinition(spec *StructureSpec, binaryEncoding opcua.NodeID) (*opcua.StructureDefinition, error) {
	def := &opcua.StructureDefinition{
		DefaultEncodingID: binaryEncoding,
		BaseDataType:      opcua.DataTypeStructure,
	}
	if spec.StructureType != "" {
		st, err := opcua.ParseStructureType(spec.StructureType)
		if err != nil {
			return nil, err
		}
		def.StructureType = st
	}
	if spec.BaseDataType != "" {
		id, err := m.resolveNodeID(spec.BaseDataType)
		if err != nil {
			return nil, fmt.Errorf("base data type: %w", err)
		}
		def.BaseDataType = id
	}
	if spec.DefaultEncodingID != "" {
		id, err := m.resolveNodeID(spec.DefaultEncodingID)
		if err != nil {
			return nil, fmt.Errorf("default encoding: %w", err)
		}
		def.DefaultEncodingID = id
	}
	for _, f := range spec.Fields {
		field := opcua.StructureField{
			Name:            f.Name,
			Description:     opcua.NewLocalizedText(f.Description),
			ValueRank:       opcua.ValueRankScalar,
			ArrayDimensions: f.ArrayDimensions,
			MaxStringLength: f.MaxStringLength,
			IsOptional:      f.IsOptional,
		}
		if f.ValueRank != nil {
			field.ValueRank = *f.ValueRank
		}
		if f.DataType != "" {
			id, err := m.resolveNodeID(f.DataType)
			if err != nil {
				return nil, fmt.Errorf("field %s: %w", f.Name, err)
			}
			field.DataType = id
		}
		def.Fields = append(def.Fields, field)
	}
	return def, nil
}

func (m *Memory) applyDictionary(spec DictionarySpec, fsys fs.FS) error {
	id, err := m.resolveNodeID(spec.NodeID)
	if err != nil {
		return err
	}
	var typeSystem opcua.NodeID
	switch strings.ToLower(spec.TypeSystem) {
	case "", "binary", "opcbinary":
		typeSystem = opcua.ObjectOPCBinarySchemaTypeSystem
	case "xml", "xmlschema":
		typeSystem = opcua.ObjectXMLSchemaTypeSystem
	default:
		return fmt.Errorf("%w: unknown type system %q", opcua.ErrInvalidArgument, spec.TypeSystem)
	}

	schema := []byte(spec.Schema)
	if spec.SchemaFile != "" {
		if fsys == nil {
			return fmt.Errorf("%w: schemaFile %q without a file system", opcua.ErrInvalidArgument, spec.SchemaFile)
		}
		if schema, err = fs.ReadFile(fsys, spec.SchemaFile); err != nil {
			return err
		}
	}
	if err := m.AddDictionary(typeSystem, id, spec.Name, schema, spec.NamespaceURI); err != nil {
		return err
	}

	for _, e := range spec.Entries {
		entryID, err := m.resolveNodeID(e.NodeID)
		if err != nil {
			return fmt.Errorf("entry %s: %w", e.Name, err)
		}
		var encoding opcua.NodeID
		if e.Encoding != "" {
			if encoding, err = m.resolveNodeID(e.Encoding); err != nil {
				return fmt.Errorf("entry %s: %w", e.Name, err)
			}
		}
		if err := m.AddDictionaryEntry(id, entryID, e.Name, encoding); err != nil {
			return fmt.Errorf("entry %s: %w", e.Name, err)
		}
	}
	return nil
}

// resolveNodeID parses s and maps a namespace URI to its local index.
func (m *Memory) resolveNodeID(s string) (opcua.NodeID, error) {
	e, err := opcua.ParseExpandedNodeID(s)
	if err != nil {
		return opcua.NodeID{}, err
	}
	if e.NamespaceURI == "" {
		return e.NodeID, nil
	}
	idx := m.NamespaceIndex(e.NamespaceURI)
	if idx < 0 {
		return opcua.NodeID{}, fmt.Errorf("%w: namespace %q is not declared", opcua.ErrInvalidNodeID, e.NamespaceURI)
	}
	id := e.NodeID
	id.Namespace = uint16(idx)
	return id, nil
}

// parseBrowseName accepts "Name" or "<ns>:Name".
func parseBrowseName(s string, defaultNamespace uint16) (opcua.QualifiedName, error) {
	if s == "" {
		return opcua.QualifiedName{}, fmt.Errorf("%w: empty browse name", opcua.ErrInvalidArgument)
	}
	if i := strings.IndexByte(s, ':'); i > 0 {
		if ns, err := strconv.ParseUint(s[:i], 10, 16); err == nil {
			return opcua.QualifiedName{NamespaceIndex: uint16(ns), Name: s[i+1:]}, nil
		}
	}
	return opcua.QualifiedName{NamespaceIndex: defaultNamespace, Name: s}, nil
}
