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

package complextypes

import (
	"bytes"
	"fmt"

	"github.com/kaitai-io/kaitai_struct_go_runtime/kaitai"

	opcua "github.com/edgeo-scada/opcua-types"
)

// maxStructureDepth bounds recursion through nested and recursive values.
const maxStructureDepth = 100

// DecodeBinary implements opcua.EncodeableType.
func (t *EnumType) DecodeBinary(d *opcua.Decoder) (interface{}, error) {
	v, err := d.ReadInt32()
	if err != nil {
		return nil, err
	}
	return t.Value(v), nil
}

// EncodeValue writes an Enum, an int32 or a member name.
func (t *EnumType) EncodeValue(e *opcua.Encoder, v interface{}) error {
	switch x := v.(type) {
	case Enum:
		e.WriteInt32(x.Value)
	case int32:
		e.WriteInt32(x)
	case string:
		for _, f := range t.definition.Fields {
			if f.Name == x {
				e.WriteInt32(int32(f.Value))
				return nil
			}
		}
		return fmt.Errorf("%w: %q is not a member of %s", opcua.ErrTypeMismatch, x, t.name.Name)
	default:
		return fmt.Errorf("%w: %T is not a %s", opcua.ErrTypeMismatch, v, t.name.Name)
	}
	return nil
}

// DecodeBinary implements opcua.EncodeableType.
func (t *StructuredType) DecodeBinary(d *opcua.Decoder) (interface{}, error) {
	s, err := t.decode(d, 0)
	if err != nil {
		return nil, err
	}
	return s, nil
}

func (t *StructuredType) decode(d *opcua.Decoder, depth int) (*Structure, error) {
	if depth >= maxStructureDepth {
		return nil, fmt.Errorf("%w: %s nested too deeply", opcua.ErrInvalidMessage, t.name.Name)
	}
	s := &Structure{Type: t}

	switch t.definition.StructureType {
	case opcua.StructureTypeUnion, opcua.StructureTypeUnionWithSubtypedValues:
		sw, err := d.ReadUInt32()
		if err != nil {
			return nil, err
		}
		s.SwitchField = sw
		if sw == 0 {
			return s, nil
		}
		if int(sw) > len(t.fields) {
			return nil, fmt.Errorf("%w: %s switch field %d out of range", opcua.ErrInvalidMessage, t.name.Name, sw)
		}
		f := t.fields[sw-1]
		v, err := decodeField(d, f.Type, depth)
		if err != nil {
			return nil, fmt.Errorf("%s.%s: %w", t.name.Name, f.Field.Name, err)
		}
		s.Fields = []FieldValue{{Name: f.Field.Name, Value: v}}
		return s, nil

	case opcua.StructureTypeStructureWithOptionalFields:
		present, mask, err := readEncodingMask(d, t.fields)
		if err != nil {
			return nil, fmt.Errorf("%s: encoding mask: %w", t.name.Name, err)
		}
		s.EncodingMask = mask
		s.Fields = make([]FieldValue, len(t.fields))
		for i, f := range t.fields {
			s.Fields[i].Name = f.Field.Name
			if !present[i] {
				continue
			}
			if s.Fields[i].Value, err = decodeField(d, f.Type, depth); err != nil {
				return nil, fmt.Errorf("%s.%s: %w", t.name.Name, f.Field.Name, err)
			}
		}
		return s, nil
	}

	s.Fields = make([]FieldValue, len(t.fields))
	for i, f := range t.fields {
		v, err := decodeField(d, f.Type, depth)
		if err != nil {
			return nil, fmt.Errorf("%s.%s: %w", t.name.Name, f.Field.Name, err)
		}
		s.Fields[i] = FieldValue{Name: f.Field.Name, Value: v}
	}
	return s, nil
}

// readEncodingMask reads the 32-bit mask of a structure with optional
// fields. Bit n, counted from the least significant bit, flags the n-th
// optional field.
func readEncodingMask(d *opcua.Decoder, fields []StructField) ([]bool, uint32, error) {
	raw, err := d.ReadRaw(4)
	if err != nil {
		return nil, 0, err
	}
	bits := kaitai.NewStream(bytes.NewReader(raw))
	present := make([]bool, len(fields))
	var mask uint32
	bit := 0
	for i, f := range fields {
		if !f.Field.IsOptional {
			present[i] = true
			continue
		}
		if bit >= optionalFieldMaskBits {
			return nil, 0, fmt.Errorf("%w: more than %d optional fields", opcua.ErrInvalidMessage, optionalFieldMaskBits)
		}
		b, err := bits.ReadBitsIntLe(1)
		if err != nil {
			return nil, 0, err
		}
		present[i] = b == 1
		mask |= uint32(b) << bit
		bit++
	}
	return present, mask, nil
}

func decodeField(d *opcua.Decoder, ft FieldType, depth int) (interface{}, error) {
	switch {
	case ft.ValueRank == opcua.ValueRankOneDimension:
		n, err := d.ReadArrayLength()
		if err != nil {
			return nil, err
		}
		if n < 0 {
			return []interface{}(nil), nil
		}
		values := make([]interface{}, n)
		for i := range values {
			if values[i], err = decodeScalar(d, ft, depth); err != nil {
				return nil, fmt.Errorf("[%d]: %w", i, err)
			}
		}
		return values, nil

	case ft.ValueRank > opcua.ValueRankOneDimension:
		n, err := d.ReadArrayLength()
		if err != nil {
			return nil, err
		}
		if n < 0 {
			return (*Matrix)(nil), nil
		}
		m := &Matrix{Dimensions: make([]int32, n)}
		total := 1
		for i := range m.Dimensions {
			if m.Dimensions[i], err = d.ReadInt32(); err != nil {
				return nil, err
			}
			if m.Dimensions[i] < 0 {
				return nil, fmt.Errorf("%w: negative matrix dimension %d", opcua.ErrInvalidMessage, m.Dimensions[i])
			}
			total *= int(m.Dimensions[i])
			if total > d.Remaining() {
				return nil, fmt.Errorf("%w: matrix of %d values exceeds message", opcua.ErrInvalidMessage, total)
			}
		}
		m.Values = make([]interface{}, total)
		for i := range m.Values {
			if m.Values[i], err = decodeScalar(d, ft, depth); err != nil {
				return nil, fmt.Errorf("[%d]: %w", i, err)
			}
		}
		return m, nil
	}
	return decodeScalar(d, ft, depth)
}

func decodeScalar(d *opcua.Decoder, ft FieldType, depth int) (interface{}, error) {
	switch t := ft.Type.(type) {
	case nil:
		return d.ReadBuiltin(ft.BuiltIn)
	case *StructuredType:
		s, err := t.decode(d, depth+1)
		if err != nil {
			return nil, err
		}
		return s, nil
	default:
		return t.DecodeBinary(d)
	}
}

func (t *StructuredType) encode(e *opcua.Encoder, s *Structure, depth int) error {
	if depth >= maxStructureDepth {
		return fmt.Errorf("%w: %s nested too deeply", opcua.ErrInvalidArgument, t.name.Name)
	}

	switch t.definition.StructureType {
	case opcua.StructureTypeUnion, opcua.StructureTypeUnionWithSubtypedValues:
		if s.SwitchField == 0 {
			e.WriteUInt32(0)
			return nil
		}
		if int(s.SwitchField) > len(t.fields) {
			return fmt.Errorf("%w: %s switch field %d out of range", opcua.ErrTypeMismatch, t.name.Name, s.SwitchField)
		}
		f := t.fields[s.SwitchField-1]
		v, _ := s.Get(f.Field.Name)
		e.WriteUInt32(s.SwitchField)
		if err := encodeField(e, f.Type, v, depth); err != nil {
			return fmt.Errorf("%s.%s: %w", t.name.Name, f.Field.Name, err)
		}
		return nil

	case opcua.StructureTypeStructureWithOptionalFields:
		var mask uint32
		bit := 0
		for _, f := range t.fields {
			if !f.Field.IsOptional {
				continue
			}
			if v, _ := s.Get(f.Field.Name); v != nil {
				mask |= 1 << bit
			}
			bit++
		}
		s.EncodingMask = mask
		e.WriteUInt32(mask)
		for _, f := range t.fields {
			v, _ := s.Get(f.Field.Name)
			if f.Field.IsOptional && v == nil {
				continue
			}
			if err := encodeField(e, f.Type, v, depth); err != nil {
				return fmt.Errorf("%s.%s: %w", t.name.Name, f.Field.Name, err)
			}
		}
		return nil
	}

	for _, f := range t.fields {
		v, ok := s.Get(f.Field.Name)
		if !ok {
			return fmt.Errorf("%w: %s.%s is missing", opcua.ErrTypeMismatch, t.name.Name, f.Field.Name)
		}
		if err := encodeField(e, f.Type, v, depth); err != nil {
			return fmt.Errorf("%s.%s: %w", t.name.Name, f.Field.Name, err)
		}
	}
	return nil
}

func encodeField(e *opcua.Encoder, ft FieldType, v interface{}, depth int) error {
	switch {
	case ft.ValueRank == opcua.ValueRankOneDimension:
		values, ok := v.([]interface{})
		if !ok && v != nil {
			return fmt.Errorf("%w: %T is not an array", opcua.ErrTypeMismatch, v)
		}
		if values == nil {
			e.WriteInt32(-1)
			return nil
		}
		e.WriteInt32(int32(len(values)))
		for i, item := range values {
			if err := encodeScalar(e, ft, item, depth); err != nil {
				return fmt.Errorf("[%d]: %w", i, err)
			}
		}
		return nil

	case ft.ValueRank > opcua.ValueRankOneDimension:
		var m *Matrix
		switch x := v.(type) {
		case *Matrix:
			m = x
		case Matrix:
			m = &x
		case nil:
		default:
			return fmt.Errorf("%w: %T is not a matrix", opcua.ErrTypeMismatch, v)
		}
		if m == nil {
			e.WriteInt32(-1)
			return nil
		}
		total := 1
		for _, dim := range m.Dimensions {
			total *= int(dim)
		}
		if total != len(m.Values) {
			return fmt.Errorf("%w: matrix dimensions hold %d values, have %d", opcua.ErrTypeMismatch, total, len(m.Values))
		}
		e.WriteInt32(int32(len(m.Dimensions)))
		for _, dim := range m.Dimensions {
			e.WriteInt32(dim)
		}
		for i, item := range m.Values {
			if err := encodeScalar(e, ft, item, depth); err != nil {
				return fmt.Errorf("[%d]: %w", i, err)
			}
		}
		return nil
	}
	return encodeScalar(e, ft, v, depth)
}

func encodeScalar(e *opcua.Encoder, ft FieldType, v interface{}, depth int) error {
	switch t := ft.Type.(type) {
	case nil:
		return e.WriteBuiltin(ft.BuiltIn, v)
	case *StructuredType:
		s, ok := v.(*Structure)
		if !ok || s == nil || s.Type != t {
			return fmt.Errorf("%w: %T is not a %s", opcua.ErrTypeMismatch, v, t.name.Name)
		}
		return t.encode(e, s, depth+1)
	case *EnumType:
		return t.EncodeValue(e, v)
	default:
		enc, ok := v.(opcua.Encodeable)
		if !ok {
			return fmt.Errorf("%w: %T is not a %s", opcua.ErrTypeMismatch, v, t.Name().Name)
		}
		return enc.EncodeBinary(e)
	}
}
