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
	"encoding/base64"
	"fmt"
	"strconv"
	"strings"

	"github.com/google/uuid"
)

// ParseNodeID parses the standard text notation of a NodeID:
//
//	i=85, ns=2;i=1001, ns=2;s=Motor, ns=1;g=<uuid>, ns=1;b=<base64>
//
// A bare number is read as a numeric id in namespace 0.
func ParseNodeID(s string) (NodeID, error) {
	ns := uint16(0)
	identifier := s

	if strings.HasPrefix(s, "ns=") {
		parts := strings.SplitN(s, ";", 2)
		if len(parts) != 2 {
			return NodeID{}, fmt.Errorf("%w: %q", ErrInvalidNodeID, s)
		}
		nsVal, err := strconv.ParseUint(strings.TrimPrefix(parts[0], "ns="), 10, 16)
		if err != nil {
			return NodeID{}, fmt.Errorf("%w: invalid namespace in %q", ErrInvalidNodeID, s)
		}
		ns = uint16(nsVal)
		identifier = parts[1]
	}
	return parseIdentifier(ns, identifier)
}

// MustParseNodeID is like ParseNodeID but panics on error.
func MustParseNodeID(s string) NodeID {
	id, err := ParseNodeID(s)
	if err != nil {
		panic(err)
	}
	return id
}

func parseIdentifier(ns uint16, identifier string) (NodeID, error) {
	switch {
	case strings.HasPrefix(identifier, "i="):
		id, err := strconv.ParseUint(identifier[2:], 10, 32)
		if err != nil {
			return NodeID{}, fmt.Errorf("%w: invalid numeric id %q", ErrInvalidNodeID, identifier)
		}
		return NewNumericNodeID(ns, uint32(id)), nil
	case strings.HasPrefix(identifier, "s="):
		return NewStringNodeID(ns, identifier[2:]), nil
	case strings.HasPrefix(identifier, "g="):
		guid, err := uuid.Parse(identifier[2:])
		if err != nil {
			return NodeID{}, fmt.Errorf("%w: invalid guid %q: %v", ErrInvalidNodeID, identifier, err)
		}
		return NewGUIDNodeID(ns, guid), nil
	case strings.HasPrefix(identifier, "b="):
		raw, err := base64.StdEncoding.DecodeString(identifier[2:])
		if err != nil {
			return NodeID{}, fmt.Errorf("%w: invalid opaque id %q: %v", ErrInvalidNodeID, identifier, err)
		}
		return NewOpaqueNodeID(ns, raw), nil
	}
	if id, err := strconv.ParseUint(identifier, 10, 32); err == nil {
		return NewNumericNodeID(ns, uint32(id)), nil
	}
	if identifier == "" {
		return NodeID{}, fmt.Errorf("%w: empty identifier", ErrInvalidNodeID)
	}
	return NewStringNodeID(ns, identifier), nil
}

// FormatNodeID formats a NodeID in the standard text notation.
func FormatNodeID(n NodeID) string {
	id := formatIdentifier(n)
	if n.Namespace == 0 {
		return id
	}
	return fmt.Sprintf("ns=%d;%s", n.Namespace, id)
}

func formatIdentifier(n NodeID) string {
	switch n.Type {
	case NodeIDTypeNumeric:
		return fmt.Sprintf("i=%d", n.Numeric)
	case NodeIDTypeString:
		return "s=" + n.String
	case NodeIDTypeGUID:
		return "g=" + uuid.UUID(n.GUID).String()
	case NodeIDTypeOpaque:
		return "b=" + base64.StdEncoding.EncodeToString(n.Opaque)
	default:
		return fmt.Sprintf("<unknown type %d>", n.Type)
	}
}

// ParseExpandedNodeID parses a NodeID optionally prefixed by "svr=<n>;"
// and/or a namespace URI "nsu=<uri>;".
func ParseExpandedNodeID(s string) (ExpandedNodeID, error) {
	var e ExpandedNodeID
	rest := s
	if strings.HasPrefix(rest, "svr=") {
		parts := strings.SplitN(rest, ";", 2)
		if len(parts) != 2 {
			return ExpandedNodeID{}, fmt.Errorf("%w: %q", ErrInvalidNodeID, s)
		}
		idx, err := strconv.ParseUint(strings.TrimPrefix(parts[0], "svr="), 10, 32)
		if err != nil {
			return ExpandedNodeID{}, fmt.Errorf("%w: invalid server index in %q", ErrInvalidNodeID, s)
		}
		e.ServerIndex = uint32(idx)
		rest = parts[1]
	}
	if strings.HasPrefix(rest, "nsu=") {
		// The URI may itself contain ';' so split on the last identifier prefix.
		cut := lastIdentifierStart(rest)
		if cut < 0 {
			return ExpandedNodeID{}, fmt.Errorf("%w: %q", ErrInvalidNodeID, s)
		}
		e.NamespaceURI = strings.TrimSuffix(rest[len("nsu="):cut], ";")
		id, err := parseIdentifier(0, rest[cut:])
		if err != nil {
			return ExpandedNodeID{}, err
		}
		e.NodeID = id
		return e, nil
	}
	id, err := ParseNodeID(rest)
	if err != nil {
		return ExpandedNodeID{}, err
	}
	e.NodeID = id
	return e, nil
}

// MustParseExpandedNodeID is like ParseExpandedNodeID but panics on error.
func MustParseExpandedNodeID(s string) ExpandedNodeID {
	id, err := ParseExpandedNodeID(s)
	if err != nil {
		panic(err)
	}
	return id
}

func lastIdentifierStart(s string) int {
	best := -1
	for _, p := range []string{";i=", ";s=", ";g=", ";b="} {
		if i := strings.Index(s, p); i >= 0 && (best < 0 || i < best) {
			best = i
		}
	}
	if best < 0 {
		return -1
	}
	return best + 1
}

// String formats the id in the standard text notation.
func (e ExpandedNodeID) String() string {
	var sb strings.Builder
	if e.ServerIndex != 0 {
		fmt.Fprintf(&sb, "svr=%d;", e.ServerIndex)
	}
	if e.NamespaceURI != "" {
		sb.WriteString("nsu=")
		sb.WriteString(e.NamespaceURI)
		sb.WriteByte(';')
		sb.WriteString(formatIdentifier(e.NodeID))
		return sb.String()
	}
	sb.WriteString(FormatNodeID(e.NodeID))
	return sb.String()
}
