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

package schema

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const machineXMLDictionary = `<?xml version="1.0" encoding="utf-8"?>
<xs:schema xmlns:xs="http://www.w3.org/2001/XMLSchema"
           xmlns:tns="urn:machine"
           targetNamespace="urn:machine"
           elementFormDefault="qualified">
  <xs:simpleType name="Mode">
    <xs:restriction base="xs:string">
      <xs:enumeration value="Auto_0"/>
      <xs:enumeration value="Manual_1"/>
    </xs:restriction>
  </xs:simpleType>
  <xs:complexType name="Reading">
    <xs:sequence>
      <xs:element name="Value" type="xs:double" minOccurs="0"/>
      <xs:element name="Mode" type="tns:Mode" minOccurs="0"/>
    </xs:sequence>
  </xs:complexType>
  <xs:element name="Reading" type="tns:Reading"/>
</xs:schema>`

func TestXMLSchemaValidator(t *testing.T) {
	s, err := NewXMLSchemaValidator(nil).Validate([]byte(machineXMLDictionary))
	require.NoError(t, err)
	assert.Equal(t, "urn:machine", s.TargetNamespace)
	assert.Equal(t, []string{"Mode", "Reading", "Reading"}, s.Types)
	require.True(t, s.Compiled())

	valid := `<Reading xmlns="urn:machine"><Value>1.5</Value><Mode>Auto_0</Mode></Reading>`
	assert.NoError(t, s.Validate(context.Background(), strings.NewReader(valid)))
	invalid := `<Reading xmlns="urn:machine"><Mode>Broken</Mode></Reading>`
	assert.Error(t, s.Validate(context.Background(), strings.NewReader(invalid)))
}

func TestXMLSchemaValidatorImports(t *testing.T) {
	base := `<xs:schema xmlns:xs="http://www.w3.org/2001/XMLSchema" targetNamespace="urn:base">
  <xs:simpleType name="Percent"><xs:restriction base="xs:double"/></xs:simpleType>
</xs:schema>`
	derived := []byte(`<xs:schema xmlns:xs="http://www.w3.org/2001/XMLSchema" xmlns:b="urn:base" targetNamespace="urn:derived">
  <xs:import namespace="urn:base" schemaLocation="base.xsd"/>
  <xs:complexType name="Valve">
    <xs:sequence><xs:element name="Opening" type="b:Percent"/></xs:sequence>
  </xs:complexType>
</xs:schema>`)

	s, err := NewXMLSchemaValidator(map[string][]byte{"urn:base": []byte(base)}).Validate(derived)
	require.NoError(t, err)
	assert.Equal(t, []Import{{Namespace: "urn:base", Location: "base.xsd"}}, s.Imports)

	s, err = NewXMLSchemaValidator(nil).Validate(derived)
	require.ErrorIs(t, err, ErrSchemaValidation)
	require.NotNil(t, s)
	assert.False(t, s.Compiled())
	assert.ErrorIs(t, s.Validate(context.Background(), strings.NewReader("<Valve/>")), ErrSchemaValidation)
}

func TestXMLSchemaValidatorRejectsOtherDocuments(t *testing.T) {
	_, err := NewXMLSchemaValidator(nil).Validate([]byte(machineDictionary))
	assert.ErrorIs(t, err, ErrInvalidSchema)

	_, err = NewXMLSchemaValidator(nil).Validate(nil)
	assert.ErrorIs(t, err, ErrInvalidSchema)
}
