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
	"bytes"
	"encoding/binary"
	"fmt"
	"math"
	"time"
)

// ticks between 1601-01-01 and 1970-01-01 in 100ns units
const epochDiff = 116444736000000000

// Encoder provides methods for encoding OPC UA types.
type Encoder struct {
	buf        *bytes.Buffer
	namespaces *NamespaceTable
}

// NewEncoder creates a new encoder.
func NewEncoder() *Encoder {
	return &Encoder{buf: new(bytes.Buffer)}
}

// WithNamespaces binds the namespace table used to turn absolute encoding
// ids into local NodeIDs when writing extension objects.
func (e *Encoder) WithNamespaces(ns *NamespaceTable) *Encoder {
	e.namespaces = ns
	return e
}

// Namespaces returns the bound namespace table, or nil.
func (e *Encoder) Namespaces() *NamespaceTable {
	return e.namespaces
}

// Bytes returns the encoded bytes.
func (e *Encoder) Bytes() []byte {
	return e.buf.Bytes()
}

// Len returns the number of encoded bytes.
func (e *Encoder) Len() int {
	return e.buf.Len()
}

// Reset resets the encoder.
func (e *Encoder) Reset() {
	e.buf.Reset()
}

// WriteBoolean writes a boolean value.
func (e *Encoder) WriteBoolean(v bool) {
	if v {
		e.buf.WriteByte(1)
	} else {
		e.buf.WriteByte(0)
	}
}

// WriteByte writes a byte value.
func (e *Encoder) WriteByte(v byte) {
	e.buf.WriteByte(v)
}

// WriteRaw appends bytes without a length prefix.
func (e *Encoder) WriteRaw(v []byte) {
	e.buf.Write(v)
}

// WriteSByte writes a signed byte value.
func (e *Encoder) WriteSByte(v int8) {
	e.buf.WriteByte(byte(v))
}

// WriteUInt16 writes a uint16 value.
func (e *Encoder) WriteUInt16(v uint16) {
	var buf [2]byte
	binary.LittleEndian.PutUint16(buf[:], v)
	e.buf.Write(buf[:])
}

// WriteInt16 writes an int16 value.
func (e *Encoder) WriteInt16(v int16) {
	e.WriteUInt16(uint16(v))
}

// WriteUInt32 writes a uint32 value.
func (e *Encoder) WriteUInt32(v uint32) {
	var buf [4]byte
	binary.LittleEndian.PutUint32(buf[:], v)
	e.buf.Write(buf[:])
}

// WriteInt32 writes an int32 value.
func (e *Encoder) WriteInt32(v int32) {
	e.WriteUInt32(uint32(v))
}

// WriteUInt64 writes a uint64 value.
func (e *Encoder) WriteUInt64(v uint64) {
	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], v)
	e.buf.Write(buf[:])
}

// WriteInt64 writes an int64 value.
func (e *Encoder) WriteInt64(v int64) {
	e.WriteUInt64(uint64(v))
}

// WriteFloat writes a float32 value.
func (e *Encoder) WriteFloat(v float32) {
	e.WriteUInt32(math.Float32bits(v))
}

// WriteDouble writes a float64 value.
func (e *Encoder) WriteDouble(v float64) {
	e.WriteUInt64(math.Float64bits(v))
}

// WriteString writes a string value. The empty string is written as null.
func (e *Encoder) WriteString(v string) {
	if v == "" {
		e.WriteInt32(-1)
		return
	}
	e.WriteInt32(int32(len(v)))
	e.buf.WriteString(v)
}

// WriteByteString writes a byte string value.
func (e *Encoder) WriteByteString(v []byte) {
	if v == nil {
		e.WriteInt32(-1)
		return
	}
	e.WriteInt32(int32(len(v)))
	e.buf.Write(v)
}

// WriteDateTime writes a DateTime value.
func (e *Encoder) WriteDateTime(t time.Time) {
	if t.IsZero() {
		e.WriteInt64(0)
		return
	}
	e.WriteInt64(t.UnixNano()/100 + epochDiff)
}

// WriteGUID writes a GUID value.
func (e *Encoder) WriteGUID(v [16]byte) {
	// Data1, Data2 and Data3 are little endian, Data4 is a byte array.
	e.WriteUInt32(binary.BigEndian.Uint32(v[0:4]))
	e.WriteUInt16(binary.BigEndian.Uint16(v[4:6]))
	e.WriteUInt16(binary.BigEndian.Uint16(v[6:8]))
	e.buf.Write(v[8:16])
}

// WriteNodeID writes a NodeID value.
func (e *Encoder) WriteNodeID(n NodeID) {
	e.writeNodeID(n, 0)
}

func (e *Encoder) writeNodeID(n NodeID, flags byte) {
	switch n.Type {
	case NodeIDTypeNumeric:
		if n.Namespace == 0 && n.Numeric <= 255 {
			e.WriteByte(0x00 | flags)
			e.WriteByte(byte(n.Numeric))
		} else if n.Namespace <= 255 && n.Numeric <= 65535 {
			e.WriteByte(0x01 | flags)
			e.WriteByte(byte(n.Namespace))
			e.WriteUInt16(uint16(n.Numeric))
		} else {
			e.WriteByte(0x02 | flags)
			e.WriteUInt16(n.Namespace)
			e.WriteUInt32(n.Numeric)
		}
	case NodeIDTypeString:
		e.WriteByte(0x03 | flags)
		e.WriteUInt16(n.Namespace)
		e.WriteString(n.String)
	case NodeIDTypeGUID:
		e.WriteByte(0x04 | flags)
		e.WriteUInt16(n.Namespace)
		e.WriteGUID(n.GUID)
	case NodeIDTypeOpaque:
		e.WriteByte(0x05 | flags)
		e.WriteUInt16(n.Namespace)
		e.WriteByteString(n.Opaque)
	}
}

// WriteExpandedNodeID writes an ExpandedNodeID value.
func (e *Encoder) WriteExpandedNodeID(n ExpandedNodeID) {
	var flags byte
	if n.NamespaceURI != "" {
		flags |= 0x80
	}
	if n.ServerIndex != 0 {
		flags |= 0x40
	}
	e.writeNodeID(n.NodeID, flags)
	if n.NamespaceURI != "" {
		e.WriteString(n.NamespaceURI)
	}
	if n.ServerIndex != 0 {
		e.WriteUInt32(n.ServerIndex)
	}
}

// WriteQualifiedName writes a QualifiedName value.
func (e *Encoder) WriteQualifiedName(q QualifiedName) {
	e.WriteUInt16(q.NamespaceIndex)
	e.WriteString(q.Name)
}

// WriteLocalizedText writes a LocalizedText value.
func (e *Encoder) WriteLocalizedText(l LocalizedText) {
	var encodingMask byte
	if l.Locale != "" {
		encodingMask |= 0x01
	}
	if l.Text != "" {
		encodingMask |= 0x02
	}
	e.WriteByte(encodingMask)
	if l.Locale != "" {
		e.WriteString(l.Locale)
	}
	if l.Text != "" {
		e.WriteString(l.Text)
	}
}

// WriteStatusCode writes a StatusCode value.
func (e *Encoder) WriteStatusCode(s StatusCode) {
	e.WriteUInt32(uint32(s))
}

// WriteDiagnosticInfo writes a DiagnosticInfo value.
func (e *Encoder) WriteDiagnosticInfo(di *DiagnosticInfo) {
	if di == nil {
		e.WriteByte(0)
		return
	}
	var mask byte
	if di.SymbolicID >= 0 {
		mask |= 0x01
	}
	if di.NamespaceURI >= 0 {
		mask |= 0x02
	}
	if di.LocalizedText >= 0 {
		mask |= 0x04
	}
	if di.Locale >= 0 {
		mask |= 0x08
	}
	if di.AdditionalInfo != "" {
		mask |= 0x10
	}
	if di.InnerStatusCode != StatusGood {
		mask |= 0x20
	}
	if di.InnerDiagnosticInfo != nil {
		mask |= 0x40
	}
	e.WriteByte(mask)
	if mask&0x01 != 0 {
		e.WriteInt32(di.SymbolicID)
	}
	if mask&0x02 != 0 {
		e.WriteInt32(di.NamespaceURI)
	}
	if mask&0x04 != 0 {
		e.WriteInt32(di.LocalizedText)
	}
	if mask&0x08 != 0 {
		e.WriteInt32(di.Locale)
	}
	if mask&0x10 != 0 {
		e.WriteString(di.AdditionalInfo)
	}
	if mask&0x20 != 0 {
		e.WriteStatusCode(di.InnerStatusCode)
	}
	if mask&0x40 != 0 {
		e.WriteDiagnosticInfo(di.InnerDiagnosticInfo)
	}
}

// Decoder provides methods for decoding OPC UA types.
type Decoder struct {
	data       []byte
	pos        int
	namespaces *NamespaceTable
	factory    *EncodeableFactory
	depth      int
}

// maxNestingDepth bounds recursion through nested variants and structures.
const maxNestingDepth = 100

// NewDecoder creates a new decoder.
func NewDecoder(data []byte) *Decoder {
	return &Decoder{data: data, pos: 0}
}

// WithTypes binds a namespace table and a factory so that extension object
// bodies of server-defined types are decoded. Without them only the
// built-in definition types are decoded and other bodies are kept raw.
func (d *Decoder) WithTypes(ns *NamespaceTable, f *EncodeableFactory) *Decoder {
	d.namespaces = ns
	d.factory = f
	return d
}

// Namespaces returns the bound namespace table, or nil.
func (d *Decoder) Namespaces() *NamespaceTable {
	return d.namespaces
}

// Factory returns the bound factory, or nil.
func (d *Decoder) Factory() *EncodeableFactory {
	return d.factory
}

// Remaining returns the number of remaining bytes.
func (d *Decoder) Remaining() int {
	return len(d.data) - d.pos
}

// Skip skips n bytes in the decoder.
func (d *Decoder) Skip(n int) {
	d.pos += n
	if d.pos > len(d.data) {
		d.pos = len(d.data)
	}
}

// ReadRaw reads n bytes without a length prefix.
func (d *Decoder) ReadRaw(n int) ([]byte, error) {
	if n < 0 || d.pos+n > len(d.data) {
		return nil, fmt.Errorf("%w: unexpected end of data", ErrInvalidMessage)
	}
	v := d.data[d.pos : d.pos+n]
	d.pos += n
	return v, nil
}

// ReadBoolean reads a boolean value.
func (d *Decoder) ReadBoolean() (bool, error) {
	if d.pos >= len(d.data) {
		return false, fmt.Errorf("%w: unexpected end of data", ErrInvalidMessage)
	}
	v := d.data[d.pos] != 0
	d.pos++
	return v, nil
}

// ReadByte reads a byte value.
func (d *Decoder) ReadByte() (byte, error) {
	if d.pos >= len(d.data) {
		return 0, fmt.Errorf("%w: unexpected end of data", ErrInvalidMessage)
	}
	v := d.data[d.pos]
	d.pos++
	return v, nil
}

// ReadSByte reads a signed byte value.
func (d *Decoder) ReadSByte() (int8, error) {
	b, err := d.ReadByte()
	return int8(b), err
}

// ReadUInt16 reads a uint16 value.
func (d *Decoder) ReadUInt16() (uint16, error) {
	if d.pos+2 > len(d.data) {
		return 0, fmt.Errorf("%w: unexpected end of data", ErrInvalidMessage)
	}
	v := binary.LittleEndian.Uint16(d.data[d.pos:])
	d.pos += 2
	return v, nil
}

// ReadInt16 reads an int16 value.
func (d *Decoder) ReadInt16() (int16, error) {
	v, err := d.ReadUInt16()
	return int16(v), err
}

// ReadUInt32 reads a uint32 value.
func (d *Decoder) ReadUInt32() (uint32, error) {
	if d.pos+4 > len(d.data) {
		return 0, fmt.Errorf("%w: unexpected end of data", ErrInvalidMessage)
	}
	v := binary.LittleEndian.Uint32(d.data[d.pos:])
	d.pos += 4
	return v, nil
}

// ReadInt32 reads an int32 value.
func (d *Decoder) ReadInt32() (int32, error) {
	v, err := d.ReadUInt32()
	return int32(v), err
}

// ReadUInt64 reads a uint64 value.
func (d *Decoder) ReadUInt64() (uint64, error) {
	if d.pos+8 > len(d.data) {
		return 0, fmt.Errorf("%w: unexpected end of data", ErrInvalidMessage)
	}
	v := binary.LittleEndian.Uint64(d.data[d.pos:])
	d.pos += 8
	return v, nil
}

// ReadInt64 reads an int64 value.
func (d *Decoder) ReadInt64() (int64, error) {
	v, err := d.ReadUInt64()
	return int64(v), err
}

// ReadFloat reads a float32 value.
func (d *Decoder) ReadFloat() (float32, error) {
	v, err := d.ReadUInt32()
	if err != nil {
		return 0, err
	}
	return math.Float32frombits(v), nil
}

// ReadDouble reads a float64 value.
func (d *Decoder) ReadDouble() (float64, error) {
	v, err := d.ReadUInt64()
	if err != nil {
		return 0, err
	}
	return math.Float64frombits(v), nil
}

// ReadString reads a string value.
func (d *Decoder) ReadString() (string, error) {
	length, err := d.ReadInt32()
	if err != nil {
		return "", err
	}
	if length < 0 {
		return "", nil
	}
	if d.pos+int(length) > len(d.data) {
		return "", fmt.Errorf("%w: string truncated", ErrInvalidMessage)
	}
	v := string(d.data[d.pos : d.pos+int(length)])
	d.pos += int(length)
	return v, nil
}

// ReadByteString reads a byte string value.
func (d *Decoder) ReadByteString() ([]byte, error) {
	length, err := d.ReadInt32()
	if err != nil {
		return nil, err
	}
	if length < 0 {
		return nil, nil
	}
	if d.pos+int(length) > len(d.data) {
		return nil, fmt.Errorf("%w: byte string truncated", ErrInvalidMessage)
	}
	v := make([]byte, length)
	copy(v, d.data[d.pos:d.pos+int(length)])
	d.pos += int(length)
	return v, nil
}

// ReadDateTime reads a DateTime value.
func (d *Decoder) ReadDateTime() (time.Time, error) {
	ticks, err := d.ReadInt64()
	if err != nil {
		return time.Time{}, err
	}
	if ticks == 0 {
		return time.Time{}, nil
	}
	return time.Unix(0, (ticks-epochDiff)*100).UTC(), nil
}

// ReadGUID reads a GUID value.
func (d *Decoder) ReadGUID() ([16]byte, error) {
	var guid [16]byte
	if d.pos+16 > len(d.data) {
		return guid, fmt.Errorf("%w: GUID truncated", ErrInvalidMessage)
	}
	binary.BigEndian.PutUint32(guid[0:4], binary.LittleEndian.Uint32(d.data[d.pos:]))
	binary.BigEndian.PutUint16(guid[4:6], binary.LittleEndian.Uint16(d.data[d.pos+4:]))
	binary.BigEndian.PutUint16(guid[6:8], binary.LittleEndian.Uint16(d.data[d.pos+6:]))
	copy(guid[8:16], d.data[d.pos+8:d.pos+16])
	d.pos += 16
	return guid, nil
}

// ReadNodeID reads a NodeID value.
func (d *Decoder) ReadNodeID() (NodeID, error) {
	encodingByte, err := d.ReadByte()
	if err != nil {
		return NodeID{}, err
	}
	return d.readNodeIDBody(encodingByte & 0x0F)
}

func (d *Decoder) readNodeIDBody(nodeIDType byte) (NodeID, error) {
	switch nodeIDType {
	case 0x00: // Two-byte numeric
		id, err := d.ReadByte()
		if err != nil {
			return NodeID{}, err
		}
		return NewNumericNodeID(0, uint32(id)), nil

	case 0x01: // Four-byte numeric
		ns, err := d.ReadByte()
		if err != nil {
			return NodeID{}, err
		}
		id, err := d.ReadUInt16()
		if err != nil {
			return NodeID{}, err
		}
		return NewNumericNodeID(uint16(ns), uint32(id)), nil

	case 0x02:
		ns, err := d.ReadUInt16()
		if err != nil {
			return NodeID{}, err
		}
		id, err := d.ReadUInt32()
		if err != nil {
			return NodeID{}, err
		}
		return NewNumericNodeID(ns, id), nil

	case 0x03:
		ns, err := d.ReadUInt16()
		if err != nil {
			return NodeID{}, err
		}
		str, err := d.ReadString()
		if err != nil {
			return NodeID{}, err
		}
		return NewStringNodeID(ns, str), nil

	case 0x04:
		ns, err := d.ReadUInt16()
		if err != nil {
			return NodeID{}, err
		}
		guid, err := d.ReadGUID()
		if err != nil {
			return NodeID{}, err
		}
		return NewGUIDNodeID(ns, guid), nil

	case 0x05:
		ns, err := d.ReadUInt16()
		if err != nil {
			return NodeID{}, err
		}
		opaque, err := d.ReadByteString()
		if err != nil {
			return NodeID{}, err
		}
		return NewOpaqueNodeID(ns, opaque), nil

	default:
		return NodeID{}, fmt.Errorf("%w: unknown NodeID type %d", ErrInvalidMessage, nodeIDType)
	}
}

// ReadExpandedNodeID reads an ExpandedNodeID value.
func (d *Decoder) ReadExpandedNodeID() (ExpandedNodeID, error) {
	encodingByte, err := d.ReadByte()
	if err != nil {
		return ExpandedNodeID{}, err
	}
	id, err := d.readNodeIDBody(encodingByte & 0x0F)
	if err != nil {
		return ExpandedNodeID{}, err
	}
	e := ExpandedNodeID{NodeID: id}
	if encodingByte&0x80 != 0 {
		if e.NamespaceURI, err = d.ReadString(); err != nil {
			return ExpandedNodeID{}, err
		}
	}
	if encodingByte&0x40 != 0 {
		if e.ServerIndex, err = d.ReadUInt32(); err != nil {
			return ExpandedNodeID{}, err
		}
	}
	return e, nil
}

// ReadQualifiedName reads a QualifiedName value.
func (d *Decoder) ReadQualifiedName() (QualifiedName, error) {
	ns, err := d.ReadUInt16()
	if err != nil {
		return QualifiedName{}, err
	}
	name, err := d.ReadString()
	if err != nil {
		return QualifiedName{}, err
	}
	return QualifiedName{NamespaceIndex: ns, Name: name}, nil
}

// ReadLocalizedText reads a LocalizedText value.
func (d *Decoder) ReadLocalizedText() (LocalizedText, error) {
	encodingMask, err := d.ReadByte()
	if err != nil {
		return LocalizedText{}, err
	}

	var lt LocalizedText
	if encodingMask&0x01 != 0 {
		lt.Locale, err = d.ReadString()
		if err != nil {
			return LocalizedText{}, err
		}
	}
	if encodingMask&0x02 != 0 {
		lt.Text, err = d.ReadString()
		if err != nil {
			return LocalizedText{}, err
		}
	}
	return lt, nil
}

// ReadStatusCode reads a StatusCode value.
func (d *Decoder) ReadStatusCode() (StatusCode, error) {
	v, err := d.ReadUInt32()
	return StatusCode(v), err
}

// ReadDiagnosticInfo reads a DiagnosticInfo value.
func (d *Decoder) ReadDiagnosticInfo() (*DiagnosticInfo, error) {
	mask, err := d.ReadByte()
	if err != nil {
		return nil, err
	}
	if mask == 0 {
		return nil, nil
	}
	di := &DiagnosticInfo{SymbolicID: -1, NamespaceURI: -1, LocalizedText: -1, Locale: -1}
	if mask&0x01 != 0 {
		if di.SymbolicID, err = d.ReadInt32(); err != nil {
			return nil, err
		}
	}
	if mask&0x02 != 0 {
		if di.NamespaceURI, err = d.ReadInt32(); err != nil {
			return nil, err
		}
	}
	if mask&0x04 != 0 {
		if di.LocalizedText, err = d.ReadInt32(); err != nil {
			return nil, err
		}
	}
	if mask&0x08 != 0 {
		if di.Locale, err = d.ReadInt32(); err != nil {
			return nil, err
		}
	}
	if mask&0x10 != 0 {
		if di.AdditionalInfo, err = d.ReadString(); err != nil {
			return nil, err
		}
	}
	if mask&0x20 != 0 {
		if di.InnerStatusCode, err = d.ReadStatusCode(); err != nil {
			return nil, err
		}
	}
	if mask&0x40 != 0 {
		if d.depth >= maxNestingDepth {
			return nil, fmt.Errorf("%w: diagnostic info nested too deeply", ErrInvalidMessage)
		}
		d.depth++
		di.InnerDiagnosticInfo, err = d.ReadDiagnosticInfo()
		d.depth--
		if err != nil {
			return nil, err
		}
	}
	return di, nil
}
