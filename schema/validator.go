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
	"fmt"
	"strings"
)

// Finding is one semantic problem found in a dictionary.
type Finding struct {
	Type    string
	Field   string
	Message string
}

func (f Finding) String() string {
	switch {
	case f.Type == "":
		return f.Message
	case f.Field == "":
		return f.Type + ": " + f.Message
	default:
		return f.Type + "." + f.Field + ": " + f.Message
	}
}

// ValidationError lists the findings of a validator. The document itself
// was parsed; callers may keep using it.
type ValidationError struct {
	Findings []Finding
}

func (e *ValidationError) Error() string {
	parts := make([]string, len(e.Findings))
	for i, f := range e.Findings {
		parts[i] = f.String()
	}
	return fmt.Sprintf("%s: %s", ErrSchemaValidation, strings.Join(parts, "; "))
}

func (e *ValidationError) Unwrap() error {
	return ErrSchemaValidation
}

// BinarySchemaValidator parses OPC Binary dictionaries and checks that
// every referenced type is declared, either locally, in the BinarySchema
// namespace, in the OPC UA namespace or in one of the imports.
type BinarySchemaValidator struct {
	imports map[string][]byte
	parsed  map[string]*TypeDictionary
}

// NewBinarySchemaValidator creates a validator. imports maps a namespace
// URI to the raw dictionary declaring it.
func NewBinarySchemaValidator(imports map[string][]byte) *BinarySchemaValidator {
	return &BinarySchemaValidator{
		imports: imports,
		parsed:  make(map[string]*TypeDictionary),
	}
}

// Validate parses data. A parse failure returns ErrInvalidSchema and no
// dictionary. Semantic findings return the dictionary together with a
// *ValidationError.
func (v *BinarySchemaValidator) Validate(data []byte) (*TypeDictionary, error) {
	dict, err := ParseBinarySchema(data)
	if err != nil {
		return nil, err
	}
	var findings []Finding
	add := func(typeName, field, format string, args ...interface{}) {
		findings = append(findings, Finding{Type: typeName, Field: field, Message: fmt.Sprintf(format, args...)})
	}

	if dict.TargetNamespace == "" {
		add("", "", "TargetNamespace is missing")
	}
	for _, imp := range dict.Imports {
		if imp.Namespace == UANamespace || imp.Namespace == dict.TargetNamespace {
			continue
		}
		if _, err := v.importDictionary(imp.Namespace); err != nil {
			add("", "", "import %s: %v", imp.Namespace, err)
		}
	}

	seen := make(map[string]bool)
	declare := func(name string) {
		if seen[name] {
			add(name, "", "declared more than once")
		}
		seen[name] = true
	}
	for _, t := range dict.OpaqueTypes {
		declare(t.Name)
	}
	for _, t := range dict.EnumeratedTypes {
		declare(t.Name)
		switch t.LengthInBits {
		case 0, 8, 16, 32, 64:
		default:
			add(t.Name, "", "unsupported LengthInBits %d", t.LengthInBits)
		}
		values := make(map[string]bool, len(t.Values))
		for _, val := range t.Values {
			if val.Name == "" {
				add(t.Name, "", "enumerated value without a Name")
			} else if values[val.Name] {
				add(t.Name, val.Name, "declared more than once")
			}
			values[val.Name] = true
		}
	}
	for _, t := range dict.StructuredTypes {
		declare(t.Name)
	}

	for _, t := range dict.StructuredTypes {
		if !t.BaseType.IsZero() && !v.resolves(dict, t.BaseType) {
			add(t.Name, "", "unknown base type %s", t.BaseType)
		}
		fields := make(map[string]bool, len(t.Fields))
		for _, f := range t.Fields {
			if fields[f.Name] {
				add(t.Name, f.Name, "declared more than once")
			}
			if !v.resolves(dict, f.TypeName) {
				add(t.Name, f.Name, "unknown type %s", f.TypeName)
			}
			if f.LengthField != "" && !fields[f.LengthField] {
				add(t.Name, f.Name, "length field %q is not declared before the field", f.LengthField)
			}
			if f.SwitchField != "" && !fields[f.SwitchField] {
				add(t.Name, f.Name, "switch field %q is not declared before the field", f.SwitchField)
			}
			fields[f.Name] = true
		}
	}

	if len(findings) > 0 {
		return dict, &ValidationError{Findings: findings}
	}
	return dict, nil
}

// resolves reports whether q names a type the dictionary can use.
func (v *BinarySchemaValidator) resolves(dict *TypeDictionary, q QName) bool {
	switch q.Namespace {
	case BinarySchemaNamespace:
		return builtinBinaryTypes[q.Name]
	case UANamespace:
		// the standard dictionary is implied
		return q.Name != ""
	case dict.TargetNamespace:
		return dict.Lookup(q.Name) != nil
	}
	imported, err := v.importDictionary(q.Namespace)
	if err != nil {
		return false
	}
	return imported.Lookup(q.Name) != nil
}

func (v *BinarySchemaValidator) importDictionary(namespace string) (*TypeDictionary, error) {
	if d, ok := v.parsed[namespace]; ok {
		return d, nil
	}
	raw, ok := v.imports[namespace]
	if !ok {
		return nil, fmt.Errorf("namespace %s is not available", namespace)
	}
	d, err := ParseBinarySchema(raw)
	if err != nil {
		return nil, err
	}
	v.parsed[namespace] = d
	return d, nil
}
