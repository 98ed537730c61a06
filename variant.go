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

package opcua

import (
	"fmt"
	"time"
)

// ReadBuiltin reads a scalar of the given built-in type.
func (d *Decoder) ReadBuiltin(typeID TypeID) (interface{}, error) {
	switch typeID {
	case TypeNull:
		return nil, nil
	case TypeBoolean:
		return d.ReadBoolean()
	case TypeSByte:
		return d.ReadSByte()
	case TypeByte:
		return d.ReadByte()
	case TypeInt16:
		return d.ReadInt16()
	case TypeUInt16:
		return d.ReadUInt16()
	case TypeInt32:
		return d.ReadInt32()
	case TypeUInt32:
		return d.ReadUInt32()
	case TypeInt64:
		return d.ReadInt64()
	case TypeUInt64:
		return d.ReadUInt64()
	case TypeFloat:
		return d.ReadFloat()
	case TypeDouble:
		return d.ReadDouble()
	case TypeString:
		return d.ReadString()
	case TypeDateTime:
		return d.ReadDateTime()
	case TypeGUID:
		return d.ReadGUID()
	case TypeByteString:
		return d.ReadByteString()
	case TypeXMLElement:
		return d.ReadString()
	case TypeNodeID:
		return d.ReadNodeID()
	case TypeExpandedNodeID:
		return d.ReadExpandedNodeID()
	case TypeStatusCode:
		return d.ReadStatusCode()
	case TypeQualifiedName:
		return d.ReadQualifiedName()
	case TypeLocalizedText:
		return d.ReadLocalizedText()
	case TypeExtensionObject:
		return d.ReadExtensionObject()
	case TypeDataValue:
		return d.ReadDataValue()
	case TypeVariant:
		return d.ReadVariant()
	case TypeDiagnosticInfo:
		return d.ReadDiagnosticInfo()
	default:
		return nil, fmt.Errorf("%w: unsupported built-in type %d", ErrInvalidMessage, typeID)
	}
}

// WriteBuiltin writes a scalar of the given built-in type.
func (e *Encoder) WriteBuiltin(typeID TypeID, v interface{}) error {
	mismatch := func() error {
		return fmt.Errorf("%w: %T is not a %s", ErrTypeMismatch, v, typeID)
	}
	var ok bool
	switch typeID {
	case TypeNull:
		return nil
	case TypeBoolean:
		var x bool
		if x, ok = v.(bool); ok {
			e.WriteBoolean(x)
		}
	case TypeSByte:
		var x int8
		if x, ok = v.(int8); ok {
			e.WriteSByte(x)
		}
	case TypeByte:
		var x byte
		if x, ok = v.(byte); ok {
			e.WriteByte(x)
		}
	case TypeInt16:
		var x int16
		if x, ok = v.(int16); ok {
			e.WriteInt16(x)
		}
	case TypeUInt16:
		var x uint16
		if x, ok = v.(uint16); ok {
			e.WriteUInt16(x)
		}
	case TypeInt32:
		var x int32
		if x, ok = v.(int32); ok {
			e.WriteInt32(x)
		}
	case TypeUInt32:
		var x uint32
		if x, ok = v.(uint32); ok {
			e.WriteUInt32(x)
		}
	case TypeInt64:
		var x int64
		if x, ok = v.(int64); ok {
			e.WriteInt64(x)
		}
	case TypeUInt64:
		var x uint64
		if x, ok = v.(uint64); ok {
			e.WriteUInt64(x)
		}
	case TypeFloat:
		var x float32
		if x, ok = v.(float32); ok {
			e.WriteFloat(x)
		}
	case TypeDouble:
		var x float64
		if x, ok = v.(float64); ok {
			e.WriteDouble(x)
		}
	case TypeString, TypeXMLElement:
		var x string
		if x, ok = v.(string); ok {
			e.WriteString(x)
		}
	case TypeDateTime:
		var x time.Time
		if x, ok = v.(time.Time); ok {
			e.WriteDateTime(x)
		}
	case TypeGUID:
		var x [16]byte
		if x, ok = v.([16]byte); ok {
			e.WriteGUID(x)
		}
	case TypeByteString:
		var x []byte
		if x, ok = v.([]byte); ok || v == nil {
			e.WriteByteString(x)
			ok = true
		}
	case TypeNodeID:
		var x NodeID
		if x, ok = v.(NodeID); ok {
			e.WriteNodeID(x)
		}
	case TypeExpandedNodeID:
		var x ExpandedNodeID
		if x, ok = v.(ExpandedNodeID); ok {
			e.WriteExpandedNodeID(x)
		}
	case TypeStatusCode:
		var x StatusCode
		if x, ok = v.(StatusCode); ok {
			e.WriteStatusCode(x)
		}
	case TypeQualifiedName:
		var x QualifiedName
		if x, ok = v.(QualifiedName); ok {
			e.WriteQualifiedName(x)
		}
	case TypeLocalizedText:
		var x LocalizedText
		if x, ok = v.(LocalizedText); ok {
			e.WriteLocalizedText(x)
		}
	case TypeExtensionObject:
		switch x := v.(type) {
		case ExtensionObject:
			return e.WriteExtensionObject(x)
		case *ExtensionObject:
			if x == nil {
				return e.WriteExtensionObject(ExtensionObject{})
			}
			return e.WriteExtensionObject(*x)
		case nil:
			return e.WriteExtensionObject(ExtensionObject{})
		case Encodeable:
			return e.WriteExtensionObject(ExtensionObject{Value: x})
		}
	case TypeDataValue:
		switch x := v.(type) {
		case DataValue:
			return e.WriteDataValue(x)
		case *DataValue:
			return e.WriteDataValue(*x)
		}
	case TypeVariant:
		switch x := v.(type) {
		case Variant:
			return e.WriteVariant(x)
		case *Variant:
			if x == nil {
				return e.WriteVariant(Variant{})
			}
			return e.WriteVariant(*x)
		}
	case TypeDiagnosticInfo:
		var x *DiagnosticInfo
		if x, ok = v.(*DiagnosticInfo); ok || v == nil {
			e.WriteDiagnosticInfo(x)
			ok = true
		}
	default:
		return fmt.Errorf("%w: unsupported built-in type %d", ErrInvalidMessage, typeID)
	}
	if !ok {
		return mismatch()
	}
	return nil
}

// ReadVariant reads a Variant value.
func (d *Decoder) ReadVariant() (Variant, error) {
	encodingMask, err := d.ReadByte()
	if err != nil {
		return Variant{}, err
	}

	typeID := TypeID(encodingMask & 0x3F)
	isArray := encodingMask&0x80 != 0
	hasDimensions := encodingMask&0x40 != 0

	if d.depth >= maxNestingDepth {
		return Variant{}, fmt.Errorf("%w: variant nested too deeply", ErrInvalidMessage)
	}
	d.depth++
	defer func() { d.depth-- }()

	if isArray {
		return d.readVariantArray(typeID, hasDimensions)
	}
	value, err := d.ReadBuiltin(typeID)
	if err != nil {
		return Variant{}, err
	}
	return Variant{Type: typeID, Value: value}, nil
}

func (d *Decoder) readVariantArray(typeID TypeID, hasDimensions bool) (Variant, error) {
	length, err := d.ReadInt32()
	if err != nil {
		return Variant{}, err
	}

	v := Variant{Type: typeID}
	if length >= 0 {
		if int(length) > d.Remaining() {
			return Variant{}, fmt.Errorf("%w: array length %d exceeds message", ErrInvalidMessage, length)
		}
		values := make([]interface{}, length)
		for i := range values {
			if values[i], err = d.ReadBuiltin(typeID); err != nil {
				return Variant{}, err
			}
		}
		v.Value = values
	}

	if hasDimensions {
		dimCount, err := d.ReadInt32()
		if err != nil {
			return Variant{}, err
		}
		for i := int32(0); i < dimCount; i++ {
			dim, err := d.ReadInt32()
			if err != nil {
				return Variant{}, err
			}
			v.ArrayDimensions = append(v.ArrayDimensions, dim)
		}
	}

	return v, nil
}

// WriteVariant writes a Variant value. Array values must be []interface{}.
func (e *Encoder) WriteVariant(v Variant) error {
	if v.Type == TypeNull {
		e.WriteByte(0)
		return nil
	}
	mask := byte(v.Type) & 0x3F
	values, isArray := v.Value.([]interface{})
	if isArray {
		mask |= 0x80
		if len(v.ArrayDimensions) > 1 {
			mask |= 0x40
		}
	}
	e.WriteByte(mask)
	if !isArray {
		return e.WriteBuiltin(v.Type, v.Value)
	}
	if values == nil {
		e.WriteInt32(-1)
	} else {
		e.WriteInt32(int32(len(values)))
	}
	for _, item := range values {
		if err := e.WriteBuiltin(v.Type, item); err != nil {
			return err
		}
	}
	if mask&0x40 != 0 {
		e.WriteInt32(int32(len(v.ArrayDimensions)))
		for _, dim := range v.ArrayDimensions {
			e.WriteInt32(dim)
		}
	}
	return nil
}

// ReadDataValue reads a DataValue value.
func (d *Decoder) ReadDataValue() (DataValue, error) {
	encodingMask, err := d.ReadByte()
	if err != nil {
		return DataValue{}, err
	}

	var dv DataValue

	if encodingMask&0x01 != 0 {
		v, err := d.ReadVariant()
		if err != nil {
			return DataValue{}, err
		}
		dv.Value = &v
	}

	if encodingMask&0x02 != 0 {
		dv.StatusCode, err = d.ReadStatusCode()
		if err != nil {
			return DataValue{}, err
		}
	}

	if encodingMask&0x04 != 0 {
		dv.SourceTimestamp, err = d.ReadDateTime()
		if err != nil {
			return DataValue{}, err
		}
	}

	if encodingMask&0x10 != 0 {
		dv.SourcePicoseconds, err = d.ReadUInt16()
		if err != nil {
			return DataValue{}, err
		}
	}

	if encodingMask&0x08 != 0 {
		dv.ServerTimestamp, err = d.ReadDateTime()
		if err != nil {
			return DataValue{}, err
		}
	}

	if encodingMask&0x20 != 0 {
		dv.ServerPicoseconds, err = d.ReadUInt16()
		if err != nil {
			return DataValue{}, err
		}
	}

	return dv, nil
}

// WriteDataValue writes a DataValue value.
func (e *Encoder) WriteDataValue(dv DataValue) error {
	var mask byte
	if dv.Value != nil {
		mask |= 0x01
	}
	if dv.StatusCode != StatusGood {
		mask |= 0x02
	}
	if !dv.SourceTimestamp.IsZero() {
		mask |= 0x04
	}
	if !dv.ServerTimestamp.IsZero() {
		mask |= 0x08
	}
	if dv.SourcePicoseconds != 0 {
		mask |= 0x10
	}
	if dv.ServerPicoseconds != 0 {
		mask |= 0x20
	}
	e.WriteByte(mask)
	if dv.Value != nil {
		if err := e.WriteVariant(*dv.Value); err != nil {
			return err
		}
	}
	if mask&0x02 != 0 {
		e.WriteStatusCode(dv.StatusCode)
	}
	if mask&0x04 != 0 {
		e.WriteDateTime(dv.SourceTimestamp)
	}
	if mask&0x10 != 0 {
		e.WriteUInt16(dv.SourcePicoseconds)
	}
	if mask&0x08 != 0 {
		e.WriteDateTime(dv.ServerTimestamp)
	}
	if mask&0x20 != 0 {
		e.WriteUInt16(dv.ServerPicoseconds)
	}
	return nil
}

// ReadExtensionObject reads an ExtensionObject. Binary bodies with a known
// encoding id are decoded into Value; unknown bodies stay in Body.
func (d *Decoder) ReadExtensionObject() (ExtensionObject, error) {
	typeID, err := d.ReadNodeID()
	if err != nil {
		return ExtensionObject{}, err
	}
	encoding, err := d.ReadByte()
	if err != nil {
		return ExtensionObject{}, err
	}
	eo := ExtensionObject{TypeID: NewExpandedNodeID(typeID), Encoding: encoding}
	switch encoding {
	case ExtensionObjectEmpty:
		return eo, nil
	case ExtensionObjectBinary, ExtensionObjectXML:
		if eo.Body, err = d.ReadByteString(); err != nil {
			return ExtensionObject{}, err
		}
	default:
		return ExtensionObject{}, fmt.Errorf("%w: invalid extension object encoding 0x%02x", ErrInvalidMessage, encoding)
	}
	if encoding != ExtensionObjectBinary {
		return eo, nil
	}

	t := d.lookupEncoding(typeID)
	if t == nil {
		return eo, nil
	}
	if d.depth >= maxNestingDepth {
		return ExtensionObject{}, fmt.Errorf("%w: extension object nested too deeply", ErrInvalidMessage)
	}
	body := &Decoder{data: eo.Body, namespaces: d.namespaces, factory: d.factory, depth: d.depth + 1}
	value, err := t.DecodeBinary(body)
	if err != nil {
		return ExtensionObject{}, fmt.Errorf("decode %s body: %w", t.Name().Name, err)
	}
	eo.Value = value
	return eo, nil
}

func (d *Decoder) lookupEncoding(id NodeID) EncodeableType {
	if id.Namespace == 0 {
		if t := builtinTypes.GetSystemType(NewExpandedNodeID(id)); t != nil {
			return t
		}
	}
	if d.factory == nil {
		return nil
	}
	key := NewExpandedNodeID(id)
	if d.namespaces != nil {
		key = d.namespaces.Normalize(key)
	}
	return d.factory.GetSystemType(key)
}

// WriteExtensionObject writes an ExtensionObject. When Value implements
// Encodeable the body is re-encoded from it; otherwise Body is written as is.
func (e *Encoder) WriteExtensionObject(eo ExtensionObject) error {
	if enc, ok := eo.Value.(Encodeable); ok && enc != nil {
		id, err := e.localID(enc.BinaryEncodingID())
		if err != nil {
			return err
		}
		body := NewEncoder().WithNamespaces(e.namespaces)
		if err := enc.EncodeBinary(body); err != nil {
			return err
		}
		e.WriteNodeID(id)
		e.WriteByte(ExtensionObjectBinary)
		e.WriteByteString(body.Bytes())
		return nil
	}
	id, err := e.localID(eo.TypeID)
	if err != nil {
		return err
	}
	e.WriteNodeID(id)
	if eo.Encoding == ExtensionObjectEmpty || eo.Body == nil {
		e.WriteByte(ExtensionObjectEmpty)
		return nil
	}
	e.WriteByte(eo.Encoding)
	e.WriteByteString(eo.Body)
	return nil
}

func (e *Encoder) localID(id ExpandedNodeID) (NodeID, error) {
	if id.NamespaceURI == "" {
		return id.NodeID, nil
	}
	if id.NamespaceURI == NamespaceURI {
		n := id.NodeID
		n.Namespace = 0
		return n, nil
	}
	if e.namespaces == nil {
		return NodeID{}, fmt.Errorf("%w: no namespace table to resolve %s", ErrInvalidNodeID, id)
	}
	return e.namespaces.ToNodeID(id)
}
