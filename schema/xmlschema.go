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
	"encoding/xml"
	"errors"
	"fmt"
	"io"

	"github.com/jacoelho/xsd"
	"github.com/jacoelho/xsd/xsderrors"
)

const xmlDictionaryLocation = "dictionary.xsd"

// XMLSchema is an XML Schema type dictionary.
type XMLSchema struct {
	TargetNamespace string
	Imports         []Import
	// Types lists the names of the top-level complexType, simpleType and
	// element declarations in document order.
	Types []string

	compiled *xsd.Engine
}

// Compiled reports whether the schema compiled and can validate documents.
func (s *XMLSchema) Compiled() bool {
	return s.compiled != nil
}

// Validate checks an XML encoded value against the schema.
func (s *XMLSchema) Validate(ctx context.Context, r io.Reader) error {
	if s.compiled == nil {
		return fmt.Errorf("%w: schema %s did not compile", ErrSchemaValidation, s.TargetNamespace)
	}
	return s.compiled.Validate(ctx, r)
}

// XMLSchemaValidator parses and compiles XML Schema dictionaries.
type XMLSchemaValidator struct {
	imports map[string][]byte
}

// NewXMLSchemaValidator creates a validator. imports maps a namespace URI
// to the raw schema declaring it; imports whose schemaLocation is given are
// served from this map.
func NewXMLSchemaValidator(imports map[string][]byte) *XMLSchemaValidator {
	return &XMLSchemaValidator{imports: imports}
}

// Validate scans and compiles data. A document that is not an XML Schema
// returns ErrInvalidSchema. A schema that does not compile is returned
// together with a *ValidationError.
func (v *XMLSchemaValidator) Validate(data []byte) (*XMLSchema, error) {
	s, err := scanXMLSchema(data)
	if err != nil {
		return nil, err
	}

	locations := make(map[string][]byte, len(s.Imports))
	for _, imp := range s.Imports {
		if raw, ok := v.imports[imp.Namespace]; ok && imp.Location != "" {
			locations[imp.Location] = raw
		}
	}
	resolver := xsd.ResolverFunc(func(_ context.Context, _, location string) (xsd.SchemaSource, error) {
		raw, ok := locations[location]
		if !ok {
			return xsd.SchemaSource{}, xsderrors.ErrSchemaNotFound
		}
		return xsd.Bytes(location, raw), nil
	})

	src := xsd.Bytes(xmlDictionaryLocation, data).WithResolver(resolver)
	compiled, err := xsd.Compile(context.Background(), src)
	if err != nil {
		return s, &ValidationError{Findings: compileFindings(err)}
	}
	s.compiled = compiled
	return s, nil
}

func compileFindings(err error) []Finding {
	var list xsderrors.Errors
	if errors.As(err, &list) && len(list) > 0 {
		out := make([]Finding, 0, len(list))
		for _, e := range list {
			if e != nil {
				out = append(out, Finding{Message: e.Error()})
			}
		}
		return out
	}
	return []Finding{{Message: err.Error()}}
}

// scanXMLSchema reads the schema element and its top-level declarations.
func scanXMLSchema(data []byte) (*XMLSchema, error) {
	r := newXMLReader(data)
	s := &XMLSchema{}
	depth, sawRoot := 0, false
	for {
		tok, err := r.next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrInvalidSchema, err)
		}
		switch t := tok.(type) {
		case xml.StartElement:
			depth++
			a := attrs(t)
			if depth == 1 {
				if t.Name.Space != XMLSchemaNamespace || t.Name.Local != "schema" {
					return nil, fmt.Errorf("%w: root element is {%s}%s, want schema", ErrInvalidSchema, t.Name.Space, t.Name.Local)
				}
				s.TargetNamespace = a["targetNamespace"]
				sawRoot = true
				continue
			}
			if depth == 2 && t.Name.Space == XMLSchemaNamespace {
				switch t.Name.Local {
				case "import":
					s.Imports = append(s.Imports, Import{Namespace: a["namespace"], Location: a["schemaLocation"]})
				case "complexType", "simpleType", "element":
					if name := a["name"]; name != "" {
						s.Types = append(s.Types, name)
					}
				}
			}
			if err := r.skip(); err != nil {
				return nil, fmt.Errorf("%w: %w", ErrInvalidSchema, err)
			}
			depth--
		case xml.EndElement:
			depth--
		}
	}
	if !sawRoot {
		return nil, fmt.Errorf("%w: empty document", ErrInvalidSchema)
	}
	return s, nil
}
