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
	"fmt"

	opcua "github.com/edgeo-scada/opcua-types"
)

// Type definition ids used for the nodes the builders create.
var (
	typeBaseObject            = opcua.NewNumericNodeID(0, 58)
	typeProperty              = opcua.NewNumericNodeID(0, opcua.IDPropertyType)
	typeDataTypeSystem        = opcua.NewNumericNodeID(0, opcua.IDDataTypeSystemType)
	typeDataTypeDictionary    = opcua.NewNumericNodeID(0, opcua.IDDataTypeDictionaryType)
	typeDataTypeDescription   = opcua.NewNumericNodeID(0, opcua.IDDataTypeDescriptionType)
	typeDataTypeEncoding      = opcua.NewNumericNodeID(0, opcua.IDDataTypeEncodingType)
	refHasTypeDefinition      = opcua.NewNumericNodeID(0, opcua.IDHasTypeDefinition)
	refOrganizes              = opcua.NewNumericNodeID(0, opcua.IDOrganizes)
	objectDataTypeSystemsRoot = opcua.NewNumericNodeID(0, 90)
)

// AddNamespace registers uri and returns its index.
func (m *Memory) AddNamespace(uri string) uint16 {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i, u := range m.namespaces {
		if u == uri {
			return uint16(i)
		}
	}
	m.namespaces = append(m.namespaces, uri)
	m.updateNamespaceArray()
	return uint16(len(m.namespaces) - 1)
}

func (m *Memory) updateNamespaceArray() {
	values := make([]interface{}, len(m.namespaces))
	for i, u := range m.namespaces {
		values[i] = u
	}
	if n, ok := m.nodes[key(opcua.VariableServerNamespaceArray)]; ok {
		n.value = &opcua.Variant{Type: opcua.TypeString, Value: values}
	}
}

// AddNode adds a node, replacing any node with the same id but keeping its
// references.
func (m *Memory) AddNode(nodeID opcua.NodeID, nodeClass opcua.NodeClass, browseName opcua.QualifiedName, displayName string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.addNode(nodeID, nodeClass, browseName, displayName)
}

func (m *Memory) addNode(nodeID opcua.NodeID, nodeClass opcua.NodeClass, browseName opcua.QualifiedName, displayName string) *memoryNode {
	if displayName == "" {
		displayName = browseName.Name
	}
	n := &memoryNode{
		nodeID:      nodeID,
		nodeClass:   nodeClass,
		browseName:  browseName,
		displayName: opcua.NewLocalizedText(displayName),
	}
	if old, ok := m.nodes[key(nodeID)]; ok {
		n.references = old.references
	}
	m.nodes[key(nodeID)] = n
	return n
}

// AddReference adds a forward reference from source to target and the
// matching inverse reference on target.
func (m *Memory) AddReference(source, referenceType, target opcua.NodeID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.addReference(source, referenceType, target)
}

func (m *Memory) addReference(source, referenceType, target opcua.NodeID) error {
	src, err := m.lookup(source)
	if err != nil {
		return fmt.Errorf("reference source: %w", err)
	}
	dst, err := m.lookup(target)
	if err != nil {
		return fmt.Errorf("reference target: %w", err)
	}
	for _, r := range src.references {
		if r.isForward && r.referenceType.Equal(referenceType) && r.target.Equal(target) {
			return nil
		}
	}
	src.references = append(src.references, memoryReference{referenceType: referenceType, isForward: true, target: target})
	dst.references = append(dst.references, memoryReference{referenceType: referenceType, isForward: false, target: source})
	return nil
}

// SetValue sets the value of a variable node.
func (m *Memory) SetValue(nodeID opcua.NodeID, value *opcua.Variant) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	n, err := m.lookup(nodeID)
	if err != nil {
		return err
	}
	if n.nodeClass != opcua.NodeClassVariable && n.nodeClass != opcua.NodeClassVariableType {
		return fmt.Errorf("%w: %s is a %s", opcua.StatusBadNotWritable, opcua.FormatNodeID(nodeID), n.nodeClass)
	}
	n.value = value
	return nil
}

// SetDataTypeDefinition sets or clears the DataTypeDefinition attribute.
func (m *Memory) SetDataTypeDefinition(typeID opcua.NodeID, def opcua.DataTypeDefinition) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	n, err := m.lookup(typeID)
	if err != nil {
		return err
	}
	if n.nodeClass != opcua.NodeClassDataType {
		return fmt.Errorf("%w: %s is a %s", opcua.ErrInvalidArgument, opcua.FormatNodeID(typeID), n.nodeClass)
	}
	n.definition = def
	return nil
}

// AddDataType adds a DataType node below superType. def may be nil.
func (m *Memory) AddDataType(typeID opcua.NodeID, browseName opcua.QualifiedName, superType opcua.NodeID, isAbstract bool, def opcua.DataTypeDefinition) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := m.addNode(typeID, opcua.NodeClassDataType, browseName, "")
	n.isAbstract = isAbstract
	n.definition = def
	if superType.IsNull() {
		return nil
	}
	return m.addReference(superType, opcua.RefHasSubtype, typeID)
}

// AddEncoding adds a DataTypeEncoding object named name ("Default Binary",
// "Default XML" or "Default JSON") to a data type.
func (m *Memory) AddEncoding(typeID, encodingID opcua.NodeID, name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.addNode(encodingID, opcua.NodeClassObject, opcua.QualifiedName{Name: name}, "")
	if err := m.addReference(encodingID, refHasTypeDefinition, typeDataTypeEncoding); err != nil {
		return err
	}
	return m.addReference(typeID, opcua.RefHasEncoding, encodingID)
}

// AddVariable adds a variable below parent.
func (m *Memory) AddVariable(nodeID opcua.NodeID, browseName opcua.QualifiedName, parent, referenceType opcua.NodeID, value *opcua.Variant) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := m.addNode(nodeID, opcua.NodeClassVariable, browseName, "")
	n.value = value
	if value != nil && value.Type != opcua.TypeNull {
		n.dataType = opcua.NewNumericNodeID(0, uint32(value.Type))
	}
	typeDef := typeBaseDataVariable
	if referenceType.Equal(opcua.RefHasProperty) {
		typeDef = typeProperty
	}
	if err := m.addReference(nodeID, refHasTypeDefinition, typeDef); err != nil {
		return err
	}
	if parent.IsNull() {
		return nil
	}
	return m.addReference(parent, referenceType, nodeID)
}

var typeBaseDataVariable = opcua.NewNumericNodeID(0, 63)

// AddProperty adds a property named name to parent. The property id is
// derived from the parent id.
func (m *Memory) AddProperty(parent opcua.NodeID, name string, value *opcua.Variant) (opcua.NodeID, error) {
	id := opcua.NewStringNodeID(parent.Namespace, opcua.FormatNodeID(parent)+"/"+name)
	return id, m.AddVariable(id, opcua.QualifiedName{Name: name}, parent, opcua.RefHasProperty, value)
}

// AddEnumStrings adds the EnumStrings property to an enumeration type.
func (m *Memory) AddEnumStrings(typeID opcua.NodeID, names ...string) error {
	values := make([]interface{}, len(names))
	for i, n := range names {
		values[i] = opcua.NewLocalizedText(n)
	}
	_, err := m.AddProperty(typeID, opcua.BrowseNameEnumStrings, &opcua.Variant{Type: opcua.TypeLocalizedText, Value: values})
	return err
}

// AddEnumValues adds the EnumValues property to an enumeration type.
func (m *Memory) AddEnumValues(typeID opcua.NodeID, values ...opcua.EnumValueType) error {
	items := make([]interface{}, len(values))
	for i := range values {
		items[i] = opcua.ExtensionObject{Value: &values[i]}
	}
	_, err := m.AddProperty(typeID, opcua.BrowseNameEnumValues, &opcua.Variant{Type: opcua.TypeExtensionObject, Value: items})
	return err
}

// AddDictionary adds a type dictionary below typeSystem (the OPC Binary or
// XML type system object) holding schema. namespaceURI, when set, becomes
// the dictionary's NamespaceUri property.
func (m *Memory) AddDictionary(typeSystem, dictionaryID opcua.NodeID, name string, schema []byte, namespaceURI string) error {
	if err := m.AddVariable(dictionaryID, opcua.QualifiedName{NamespaceIndex: dictionaryID.Namespace, Name: name}, typeSystem, opcua.RefHasComponent, opcua.NewVariant(opcua.TypeByteString, schema)); err != nil {
		return err
	}
	m.mu.Lock()
	err := m.retype(dictionaryID, typeDataTypeDictionary)
	m.mu.Unlock()
	if err != nil {
		return err
	}
	if namespaceURI == "" {
		return nil
	}
	_, err = m.AddProperty(dictionaryID, "NamespaceUri", opcua.NewVariant(opcua.TypeString, namespaceURI))
	return err
}

// AddDictionaryEntry adds a DataTypeDescription named name to a dictionary
// and links it from encodingID with HasDescription.
func (m *Memory) AddDictionaryEntry(dictionaryID, descriptionID opcua.NodeID, name string, encodingID opcua.NodeID) error {
	if err := m.AddVariable(descriptionID, opcua.QualifiedName{NamespaceIndex: descriptionID.Namespace, Name: name}, dictionaryID, opcua.RefHasComponent, opcua.NewVariant(opcua.TypeString, name)); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.retype(descriptionID, typeDataTypeDescription); err != nil {
		return err
	}
	if encodingID.IsNull() {
		return nil
	}
	return m.addReference(encodingID, opcua.RefHasDescription, descriptionID)
}

// retype replaces the HasTypeDefinition reference of a node.
func (m *Memory) retype(nodeID, typeDef opcua.NodeID) error {
	n, err := m.lookup(nodeID)
	if err != nil {
		return err
	}
	for i, r := range n.references {
		if r.isForward && r.referenceType.Equal(refHasTypeDefinition) {
			old := r.target
			n.references = append(n.references[:i], n.references[i+1:]...)
			if t, ok := m.nodes[key(old)]; ok {
				t.removeReference(refHasTypeDefinition, false, nodeID)
			}
			break
		}
	}
	return m.addReference(nodeID, refHasTypeDefinition, typeDef)
}

func (n *memoryNode) removeReference(referenceType opcua.NodeID, isForward bool, target opcua.NodeID) {
	for i, r := range n.references {
		if r.isForward == isForward && r.referenceType.Equal(referenceType) && r.target.Equal(target) {
			n.references = append(n.references[:i], n.references[i+1:]...)
			return
		}
	}
}
