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
	"strconv"
	"strings"
)

// ParseBinarySchema parses an OPC Binary type dictionary. Type names in
// TypeName and BaseType attributes are resolved against the namespace
// declarations in scope.
func ParseBinarySchema(data []byte) (*TypeDictionary, error) {
	r := newXMLReader(data)
	p := &binaryParser{r: r}
	dict, err := p.parse()
	if err != nil {
		line, col := r.pos()
		return nil, fmt.Errorf("%w: line %d column %d: %w", ErrInvalidSchema, line, col, err)
	}
	return dict, nil
}

type binaryParser struct {
	r    *xmlReader
	dict *TypeDictionary
}

func (p *binaryParser) parse() (*TypeDictionary, error) {
	var root xml.StartElement
	for {
		tok, err := p.r.next()
		if errors.Is(err, io.EOF) {
			return nil, errors.New("empty document")
		}
		if err != nil {
			return nil, err
		}
		if el, ok := tok.(xml.StartElement); ok {
			root = el
			break
		}
	}
	if root.Name.Space != BinarySchemaNamespace || root.Name.Local != "TypeDictionary" {
		return nil, fmt.Errorf("root element is {%s}%s, want TypeDictionary", root.Name.Space, root.Name.Local)
	}
	a := attrs(root)
	p.dict = &TypeDictionary{
		TargetNamespace:  a["TargetNamespace"],
		DefaultByteOrder: a["DefaultByteOrder"],
	}
	err := p.children(func(el xml.StartElement) error {
		a := attrs(el)
		switch el.Name.Local {
		case "Documentation":
			text, err := p.text()
			p.dict.Documentation = text
			return err
		case "Import":
			p.dict.Imports = append(p.dict.Imports, Import{
				Namespace: a["Namespace"],
				Location:  a["Location"],
			})
			return p.r.skip()
		case "StructuredType":
			return p.structuredType(a)
		case "EnumeratedType":
			return p.enumeratedType(a)
		case "OpaqueType":
			return p.opaqueType(a)
		default:
			return p.r.skip()
		}
	})
	if err != nil {
		return nil, err
	}
	return p.dict, nil
}

// children calls fn for every BinarySchema child element of the current
// element. fn must consume the child including its end tag.
func (p *binaryParser) children(fn func(el xml.StartElement) error) error {
	for {
		tok, err := p.r.next()
		if err != nil {
			if errors.Is(err, io.EOF) {
				return io.ErrUnexpectedEOF
			}
			return err
		}
		switch t := tok.(type) {
		case xml.StartElement:
			if t.Name.Space != BinarySchemaNamespace {
				if err := p.r.skip(); err != nil {
					return err
				}
				continue
			}
			if err := fn(t); err != nil {
				return err
			}
		case xml.EndElement:
			return nil
		}
	}
}

// text returns the character data of the current element.
func (p *binaryParser) text() (string, error) {
	var b strings.Builder
	for {
		tok, err := p.r.next()
		if err != nil {
			if errors.Is(err, io.EOF) {
				return "", io.ErrUnexpectedEOF
			}
			return "", err
		}
		switch t := tok.(type) {
		case xml.CharData:
			b.Write(t)
		case xml.StartElement:
			if err := p.r.skip(); err != nil {
				return "", err
			}
		case xml.EndElement:
			return strings.TrimSpace(b.String()), nil
		}
	}
}

// qname resolves a prefixed name in the scope of the current element.
// Unprefixed names use the default namespace, or the target namespace when
// none is declared.
func (p *binaryParser) qname(value string) (QName, error) {
	if value == "" {
		return QName{}, nil
	}
	prefix, local := "", value
	if i := strings.IndexByte(value, ':'); i >= 0 {
		prefix, local = value[:i], value[i+1:]
	}
	ns, ok := p.r.lookup(prefix)
	if !ok {
		if prefix != "" {
			return QName{}, fmt.Errorf("undeclared namespace prefix %q in %q", prefix, value)
		}
		ns = p.dict.TargetNamespace
	}
	return QName{Namespace: ns, Name: local}, nil
}

func (p *binaryParser) structuredType(a map[string]string) error {
	base, err := p.qname(a["BaseType"])
	if err != nil {
		return err
	}
	st := &StructuredType{
		Name:      a["Name"],
		Namespace: p.dict.TargetNamespace,
		BaseType:  base,
	}
	if st.Name == "" {
		return errors.New("StructuredType without a Name")
	}
	err = p.children(func(el xml.StartElement) error {
		switch el.Name.Local {
		case "Documentation":
			text, err := p.text()
			st.Documentation = text
			return err
		case "Field":
			f, err := p.field(attrs(el))
			if err != nil {
				return fmt.Errorf("%s: %w", st.Name, err)
			}
			st.Fields = append(st.Fields, f)
			return nil
		default:
			return p.r.skip()
		}
	})
	if err != nil {
		return err
	}
	p.dict.StructuredTypes = append(p.dict.StructuredTypes, st)
	return nil
}

func (p *binaryParser) field(a map[string]string) (*FieldType, error) {
	typeName, err := p.qname(a["TypeName"])
	if err != nil {
		return nil, err
	}
	f := &FieldType{
		Name:          a["Name"],
		TypeName:      typeName,
		LengthField:   a["LengthField"],
		SwitchField:   a["SwitchField"],
		SwitchOperand: a["SwitchOperand"],
		Terminator:    a["Terminator"],
	}
	if f.Name == "" {
		return nil, errors.New("Field without a Name")
	}
	if f.Length, err = optionalUint32(a, "Length"); err != nil {
		return nil, fmt.Errorf("field %s: %w", f.Name, err)
	}
	if f.SwitchValue, err = optionalUint32(a, "SwitchValue"); err != nil {
		return nil, fmt.Errorf("field %s: %w", f.Name, err)
	}
	if v, ok := a["IsLengthInBytes"]; ok {
		if f.IsLengthInBytes, err = strconv.ParseBool(v); err != nil {
			return nil, fmt.Errorf("field %s: IsLengthInBytes: %w", f.Name, err)
		}
	}
	err = p.children(func(el xml.StartElement) error {
		if el.Name.Local == "Documentation" {
			text, err := p.text()
			f.Documentation = text
			return err
		}
		return p.r.skip()
	})
	return f, err
}

func (p *binaryParser) enumeratedType(a map[string]string) error {
	et := &EnumeratedType{
		Name:      a["Name"],
		Namespace: p.dict.TargetNamespace,
	}
	if et.Name == "" {
		return errors.New("EnumeratedType without a Name")
	}
	bits, err := optionalUint32(a, "LengthInBits")
	if err != nil {
		return fmt.Errorf("%s: %w", et.Name, err)
	}
	if bits != nil {
		et.LengthInBits = *bits
	}
	if v, ok := a["IsOptionSet"]; ok {
		if et.IsOptionSet, err = strconv.ParseBool(v); err != nil {
			return fmt.Errorf("%s: IsOptionSet: %w", et.Name, err)
		}
	}
	err = p.children(func(el xml.StartElement) error {
		switch el.Name.Local {
		case "Documentation":
			text, err := p.text()
			et.Documentation = text
			return err
		case "EnumeratedValue":
			child := attrs(el)
			v := EnumeratedValue{Name: child["Name"]}
			if s, ok := child["Value"]; ok {
				n, err := strconv.ParseInt(s, 10, 64)
				if err != nil {
					return fmt.Errorf("%s.%s: Value: %w", et.Name, v.Name, err)
				}
				v.Value = n
			}
			doc, err := p.text()
			v.Documentation = doc
			et.Values = append(et.Values, v)
			return err
		default:
			return p.r.skip()
		}
	})
	if err != nil {
		return err
	}
	p.dict.EnumeratedTypes = append(p.dict.EnumeratedTypes, et)
	return nil
}

func (p *binaryParser) opaqueType(a map[string]string) error {
	ot := &OpaqueType{
		Name:      a["Name"],
		Namespace: p.dict.TargetNamespace,
	}
	if ot.Name == "" {
		return errors.New("OpaqueType without a Name")
	}
	bits, err := optionalUint32(a, "LengthInBits")
	if err != nil {
		return fmt.Errorf("%s: %w", ot.Name, err)
	}
	if bits != nil {
		ot.LengthInBits = *bits
	}
	if v, ok := a["ByteOrderSignificant"]; ok {
		if ot.ByteOrderSignificant, err = strconv.ParseBool(v); err != nil {
			return fmt.Errorf("%s: ByteOrderSignificant: %w", ot.Name, err)
		}
	}
	ot.Documentation, err = p.text()
	if err != nil {
		return err
	}
	p.dict.OpaqueTypes = append(p.dict.OpaqueTypes, ot)
	return nil
}

func optionalUint32(attrs map[string]string, name string) (*uint32, error) {
	s, ok := attrs[name]
	if !ok {
		return nil, nil
	}
	n, err := strconv.ParseUint(s, 10, 32)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", name, err)
	}
	v := uint32(n)
	return &v, nil
}
