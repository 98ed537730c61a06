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
	"encoding/xml"
	"errors"
	"fmt"
	"io"
)

// Kind is the flavour of a dictionary document.
type Kind int

// Dictionary kinds.
const (
	KindUnknown Kind = iota
	KindBinary
	KindXML
)

func (k Kind) String() string {
	switch k {
	case KindBinary:
		return "OPC Binary"
	case KindXML:
		return "XML Schema"
	default:
		return "unknown"
	}
}

// Sniff reads only the root element of data and reports the dictionary
// kind and its target namespace.
func Sniff(data []byte) (Kind, string, error) {
	r := newXMLReader(data)
	for {
		tok, err := r.next()
		if errors.Is(err, io.EOF) {
			return KindUnknown, "", fmt.Errorf("%w: empty document", ErrInvalidSchema)
		}
		if err != nil {
			return KindUnknown, "", fmt.Errorf("%w: %w", ErrInvalidSchema, err)
		}
		el, ok := tok.(xml.StartElement)
		if !ok {
			continue
		}
		a := attrs(el)
		target := a["TargetNamespace"]
		if target == "" {
			target = a["targetNamespace"]
		}
		switch {
		case el.Name.Space == BinarySchemaNamespace && el.Name.Local == "TypeDictionary":
			return KindBinary, target, nil
		case el.Name.Space == XMLSchemaNamespace && el.Name.Local == "schema":
			return KindXML, target, nil
		}
		return KindUnknown, "", fmt.Errorf("%w: root element is {%s}%s", ErrInvalidSchema, el.Name.Space, el.Name.Local)
	}
}
