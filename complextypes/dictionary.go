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
	"context"
	"errors"
	"fmt"
	"log/slog"

	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"

	opcua "github.com/edgeo-scada/opcua-types"
	"github.com/edgeo-scada/opcua-types/schema"
)

// DictionaryEntry is one DataTypeDescription of a dictionary.
type DictionaryEntry struct {
	ID   opcua.ExpandedNodeID
	Name opcua.QualifiedName
}

// DataDictionary is a type dictionary loaded from the server. It is not
// modified after LoadDataDictionary returns.
type DataDictionary struct {
	DictionaryID   opcua.ExpandedNodeID
	Name           string
	TypeSystemID   opcua.NodeID
	TypeSystemName string

	// TypeDictionary is set for OPC Binary dictionaries.
	TypeDictionary *schema.TypeDictionary
	// XMLSchema is set for XML Schema dictionaries.
	XMLSchema *schema.XMLSchema

	TargetNamespace string
	// DataTypes maps the normalized id of every DataTypeDescription to its
	// dictionary-local name.
	DataTypes map[string]opcua.QualifiedName
	Entries   []DictionaryEntry
	// Schema is the normalized dictionary document.
	Schema []byte
	// Findings lists the validation problems tolerated while loading.
	Findings []schema.Finding
}

// IsBinary reports whether the dictionary is an OPC Binary dictionary.
func (d *DataDictionary) IsBinary() bool {
	return d.TypeDictionary != nil
}

// Imports returns the namespaces the dictionary imports.
func (d *DataDictionary) Imports() []schema.Import {
	switch {
	case d.TypeDictionary != nil:
		return d.TypeDictionary.Imports
	case d.XMLSchema != nil:
		return d.XMLSchema.Imports
	}
	return nil
}

// QName qualifies a dictionary-local name with the target namespace.
func (d *DataDictionary) QName(name string) schema.QName {
	return schema.QName{Namespace: d.TargetNamespace, Name: name}
}

// LoadDataDictionary loads the dictionary variable dictionaryID. raw is the
// dictionary value when the caller already read it; imports maps target
// namespaces to the raw documents of other dictionaries.
func LoadDataDictionary(ctx context.Context, r *NodeCacheResolver, dictionaryID opcua.NodeID, name string, raw []byte, imports map[string][]byte) (*DataDictionary, error) {
	ns := r.NamespaceTable()
	parents, err := r.cache.FindReferences(ctx, []opcua.NodeID{dictionaryID}, opcua.RefHasComponent, true, false)
	if err != nil {
		return nil, err
	}
	if len(parents) == 0 {
		return nil, fmt.Errorf("%w: %s: %w", ErrTypeSystemNotFound, name,
			opcua.NewOPCUAError(opcua.ServiceBrowse, opcua.StatusBadNotFound, opcua.FormatNodeID(dictionaryID)))
	}
	typeSystemID, err := r.localID(parents[0].NodeID)
	if err != nil {
		return nil, err
	}

	if len(raw) == 0 {
		v, err := r.cache.ReadValue(ctx, dictionaryID)
		if err != nil {
			return nil, err
		}
		raw, err = dictionaryBytes(opcua.DataValue{Value: v})
		if err != nil {
			return nil, fmt.Errorf("%s: %w", name, err)
		}
		raw = normalizeDictionary(raw)
	}

	dict := &DataDictionary{
		DictionaryID:   ns.ToExpanded(dictionaryID),
		Name:           name,
		TypeSystemID:   typeSystemID,
		TypeSystemName: parents[0].BrowseName.Name,
		DataTypes:      make(map[string]opcua.QualifiedName),
		Schema:         raw,
	}

	var verr error
	switch {
	case typeSystemID.Equal(opcua.ObjectOPCBinarySchemaTypeSystem):
		dict.TypeDictionary, verr = schema.NewBinarySchemaValidator(imports).Validate(raw)
		if dict.TypeDictionary != nil {
			dict.TargetNamespace = dict.TypeDictionary.TargetNamespace
		}
	case typeSystemID.Equal(opcua.ObjectXMLSchemaTypeSystem):
		dict.XMLSchema, verr = schema.NewXMLSchemaValidator(imports).Validate(raw)
		if dict.XMLSchema != nil {
			dict.TargetNamespace = dict.XMLSchema.TargetNamespace
		}
	default:
		return nil, fmt.Errorf("%w: %s: unknown type system %s", ErrInvalidDictionary, name, opcua.FormatNodeID(typeSystemID))
	}
	if verr != nil {
		var findings *schema.ValidationError
		if !errors.As(verr, &findings) || r.strict {
			return nil, fmt.Errorf("%w: %s: %w", ErrInvalidDictionary, name, verr)
		}
		dict.Findings = findings.Findings
		for _, f := range findings.Findings {
			r.logger.Warn("dictionary validation",
				slog.String("dictionary", name),
				slog.String("finding", f.String()))
		}
	}

	if err := dict.loadEntries(ctx, r, dictionaryID); err != nil {
		return nil, err
	}
	r.logger.Debug("dictionary loaded",
		slog.String("dictionary", name),
		slog.String("type_system", dict.TypeSystemName),
		slog.String("target_namespace", dict.TargetNamespace),
		slog.Int("entries", len(dict.Entries)))
	return dict, nil
}

// loadEntries reads the names of every DataTypeDescription in one batch.
func (d *DataDictionary) loadEntries(ctx context.Context, r *NodeCacheResolver, dictionaryID opcua.NodeID) error {
	refs, err := r.cache.FindReferences(ctx, []opcua.NodeID{dictionaryID}, opcua.RefHasComponent, false, false)
	if err != nil {
		return err
	}
	var ids []opcua.NodeID
	var browseNames []opcua.QualifiedName
	for _, ref := range refs {
		if ref.NodeClass != opcua.NodeClassVariable {
			continue
		}
		id, err := r.localID(ref.NodeID)
		if err != nil {
			continue
		}
		ids = append(ids, id)
		browseNames = append(browseNames, ref.BrowseName)
	}
	if len(ids) == 0 {
		return nil
	}
	values, err := r.cache.ReadValues(ctx, ids)
	if err != nil {
		return err
	}
	ns := r.NamespaceTable()
	for i, dv := range values {
		name := browseNames[i].Name
		if !dv.StatusCode.IsBad() && dv.Value != nil {
			switch v := dv.Value.Value.(type) {
			case string:
				name = v
			case []byte:
				name = string(v)
			}
		}
		if name == "" {
			continue
		}
		q := opcua.QualifiedName{NamespaceIndex: dictionaryID.Namespace, Name: name}
		id := ns.ToExpanded(ids[i])
		d.DataTypes[id.Key()] = q
		d.Entries = append(d.Entries, DictionaryEntry{ID: id, Name: q})
	}
	return nil
}

// normalizeDictionary decodes a dictionary blob to UTF-8 honouring a byte
// order mark and cuts it at the first NUL byte.
func normalizeDictionary(raw []byte) []byte {
	out, _, err := transform.Bytes(unicode.BOMOverride(unicode.UTF8.NewDecoder()), raw)
	if err != nil {
		out = raw
	}
	if i := bytes.IndexByte(out, 0); i >= 0 {
		out = out[:i]
	}
	return out
}
