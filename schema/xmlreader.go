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
	"bytes"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"strings"

	"golang.org/x/text/encoding/ianaindex"
)

// xmlReader is a token reader that tracks the namespace declarations in
// scope, so that prefixed names in attribute values can be resolved.
type xmlReader struct {
	d      *xml.Decoder
	scopes []map[string]string
}

func newXMLReader(data []byte) *xmlReader {
	d := xml.NewDecoder(bytes.NewReader(data))
	d.CharsetReader = charsetReader
	return &xmlReader{d: d}
}

// charsetReader decodes documents declaring a non UTF-8 encoding. A
// document that reached the decoder as ASCII compatible bytes while declaring
// UTF-16 or UTF-32 has already been transcoded to UTF-8.
func charsetReader(label string, input io.Reader) (io.Reader, error) {
	if strings.HasPrefix(strings.ToLower(label), "utf-") {
		return input, nil
	}
	enc, err := ianaindex.IANA.Encoding(label)
	if err != nil {
		return nil, err
	}
	if enc == nil {
		return nil, fmt.Errorf("unsupported encoding %q", label)
	}
	return enc.NewDecoder().Reader(input), nil
}

// next returns the next token. The returned token is only valid until the
// following call.
func (r *xmlReader) next() (xml.Token, error) {
	tok, err := r.d.Token()
	if err != nil {
		return nil, err
	}
	switch t := tok.(type) {
	case xml.StartElement:
		var scope map[string]string
		for _, a := range t.Attr {
			switch {
			case a.Name.Space == "xmlns":
				if scope == nil {
					scope = make(map[string]string)
				}
				scope[a.Name.Local] = a.Value
			case a.Name.Space == "" && a.Name.Local == "xmlns":
				if scope == nil {
					scope = make(map[string]string)
				}
				scope[""] = a.Value
			}
		}
		r.scopes = append(r.scopes, scope)
	case xml.EndElement:
		r.scopes = r.scopes[:len(r.scopes)-1]
	}
	return tok, nil
}

// skip consumes the rest of the current element including its end tag.
func (r *xmlReader) skip() error {
	for depth := 1; depth > 0; {
		tok, err := r.next()
		if err != nil {
			if errors.Is(err, io.EOF) {
				return io.ErrUnexpectedEOF
			}
			return err
		}
		switch tok.(type) {
		case xml.StartElement:
			depth++
		case xml.EndElement:
			depth--
		}
	}
	return nil
}

// lookup resolves prefix against the declarations of the innermost open
// element and its ancestors.
func (r *xmlReader) lookup(prefix string) (string, bool) {
	if prefix == "xml" {
		return "http://www.w3.org/XML/1998/namespace", true
	}
	for i := len(r.scopes) - 1; i >= 0; i-- {
		if ns, ok := r.scopes[i][prefix]; ok {
			return ns, true
		}
	}
	return "", false
}

func (r *xmlReader) pos() (line, column int) {
	return r.d.InputPos()
}

// attrs copies the attributes without a namespace.
func attrs(el xml.StartElement) map[string]string {
	out := make(map[string]string, len(el.Attr))
	for _, a := range el.Attr {
		if a.Name.Space == "" && a.Name.Local != "xmlns" {
			out[a.Name.Local] = a.Value
		}
	}
	return out
}
