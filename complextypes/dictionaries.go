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
	"context"
	"errors"
	"log/slog"
	"sort"

	opcua "github.com/edgeo-scada/opcua-types"
	"github.com/edgeo-scada/opcua-types/nodecache"
	"github.com/edgeo-scada/opcua-types/schema"
)

// dictionaryType is one DataTypeDescription traced to its data type.
type dictionaryType struct {
	entry DictionaryEntry
	comp  DictionaryComponent
}

// loadFromDictionaries builds the pending types described by the OPC Binary
// dictionaries of the server. Names of every dictionary entry are shared so
// that structures can reference types of other dictionaries.
func (l *loader) loadFromDictionaries(ctx context.Context) error {
	dicts, err := l.r.LoadDataTypeSystem(ctx, opcua.ObjectOPCBinarySchemaTypeSystem)
	if err != nil {
		return err
	}
	ordered := orderDictionaries(dicts)

	var componentIDs []opcua.NodeID
	var owners []*DataDictionary
	var entries []DictionaryEntry
	for _, d := range ordered {
		for _, e := range d.Entries {
			id, err := l.ns.ToNodeID(e.ID)
			if err != nil {
				continue
			}
			componentIDs = append(componentIDs, id)
			owners = append(owners, d)
			entries = append(entries, e)
		}
	}
	if len(componentIDs) == 0 {
		return nil
	}
	comps, err := l.r.BrowseTypeIDsForDictionaryComponents(ctx, componentIDs)
	if err != nil {
		return err
	}

	typeMap := make(map[schema.QName]opcua.NodeID, len(comps))
	perDictionary := make(map[*DataDictionary][]dictionaryType)
	for i, c := range comps {
		if c.Node == nil {
			n, err := l.enumByName(ctx, owners[i], entries[i])
			if err != nil {
				return err
			}
			if n == nil {
				l.logger.Debug("dictionary entry without data type",
					slog.String("dictionary", owners[i].Name),
					slog.String("entry", entries[i].Name.Name))
				continue
			}
			c.Node = n
			c.TypeID = l.ns.ToExpanded(n.NodeID)
		}
		typeMap[owners[i].QName(entries[i].Name.Name)] = c.Node.NodeID
		perDictionary[owners[i]] = append(perDictionary[owners[i]], dictionaryType{entry: entries[i], comp: c})
	}
	if err := l.addStandardNames(ctx, ordered, typeMap); err != nil {
		return err
	}

	var residual []*structTask
	for _, d := range ordered {
		rest, err := l.loadDictionary(ctx, d, perDictionary[d], typeMap)
		if err != nil {
			if isCanceled(err) {
				return err
			}
			l.s.metrics.DictionaryErrors.Inc()
			l.logger.Error("dictionary types not loaded",
				slog.String("dictionary", d.Name),
				slog.String("error", err.Error()))
			continue
		}
		residual = append(residual, rest...)
	}
	if len(residual) == 0 {
		return nil
	}
	return l.resolve(ctx, residual)
}

// addStandardNames maps the ua: field types that are not built in to the
// namespace 0 data types of the server with the same browse name.
func (l *loader) addStandardNames(ctx context.Context, dicts []*DataDictionary, typeMap map[schema.QName]opcua.NodeID) error {
	wanted := make(map[string]bool)
	for _, d := range dicts {
		if d.TypeDictionary == nil {
			continue
		}
		for _, st := range d.TypeDictionary.StructuredTypes {
			for _, f := range st.Fields {
				if f.TypeName.Namespace != schema.UANamespace || !dataTypeOf(f.TypeName, typeMap).IsNull() {
					continue
				}
				wanted[f.TypeName.Name] = true
			}
		}
	}
	if len(wanted) == 0 {
		return nil
	}

	nodes, err := l.r.LoadDataTypes(ctx, opcua.DataTypeBaseDataType, true, false, false)
	if err != nil {
		return err
	}
	for _, n := range nodes {
		if n.NodeID.Namespace != 0 || !wanted[n.BrowseName.Name] {
			continue
		}
		typeMap[schema.QName{Namespace: schema.UANamespace, Name: n.BrowseName.Name}] = n.NodeID
		delete(wanted, n.BrowseName.Name)
	}
	for name := range wanted {
		l.logger.Warn("standard data type not found", slog.String("name", name))
	}
	return nil
}

// enumByName finds the enumeration an entry describes. Enumerations have no
// encoding, so their descriptions are matched to data types by browse name.
func (l *loader) enumByName(ctx context.Context, d *DataDictionary, e DictionaryEntry) (*nodecache.Node, error) {
	if d.TypeDictionary == nil {
		return nil, nil
	}
	if _, ok := d.TypeDictionary.Lookup(e.Name.Name).(*schema.EnumeratedType); !ok {
		return nil, nil
	}
	id, ok := l.enums[e.Name]
	if !ok {
		return nil, nil
	}
	n, err := l.r.Find(ctx, id)
	if err != nil {
		if opcua.IsNodeIDUnknown(err) {
			return nil, nil
		}
		return nil, err
	}
	return n, nil
}

// orderDictionaries sorts dictionaries with fewer imports first.
func orderDictionaries(dicts map[string]*DataDictionary) []*DataDictionary {
	out := make([]*DataDictionary, 0, len(dicts))
	for _, d := range dicts {
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool {
		ni, nj := len(out[i].Imports()), len(out[j].Imports())
		if ni != nj {
			return ni < nj
		}
		return out[i].Name < out[j].Name
	})
	return out
}

// loadDictionary builds the pending enumerations of one dictionary and
// returns its structures that are still waiting for field types.
func (l *loader) loadDictionary(ctx context.Context, d *DataDictionary, types []dictionaryType, typeMap map[schema.QName]opcua.NodeID) ([]*structTask, error) {
	td := d.TypeDictionary
	if td == nil {
		return nil, nil
	}
	dictID, err := l.ns.ToNodeID(d.DictionaryID)
	if err != nil {
		return nil, err
	}
	b := l.s.builder(d.TargetNamespace, dictID.Namespace, d.Name)

	var fallback []dictionaryType
	var structs []dictionaryType
	for _, dt := range types {
		id := dt.comp.Node.NodeID
		if !l.isPending(id) {
			continue
		}
		switch desc := td.Lookup(dt.entry.Name.Name).(type) {
		case *schema.EnumeratedType:
			if err := l.buildEnum(b, id, dt.entry.Name, EnumeratedTypeToEnumDefinition(desc)); err != nil {
				l.markUnsupported(id, err)
			}
		case *schema.StructuredType:
			structs = append(structs, dt)
		default:
			fallback = append(fallback, dt)
		}
	}
	if err := l.dictionaryEnumFallback(ctx, b, fallback); err != nil {
		return nil, err
	}

	tasks, err := l.dictionaryTasks(ctx, b, td, structs, typeMap)
	if err != nil {
		return nil, err
	}
	return l.sweep(ctx, tasks)
}

// dictionaryEnumFallback builds entries the dictionary does not describe
// from the DataTypeDefinition attribute or the enum properties.
func (l *loader) dictionaryEnumFallback(ctx context.Context, b Builder, types []dictionaryType) error {
	var ids []opcua.NodeID
	var names []opcua.QualifiedName
	for _, dt := range types {
		n := dt.comp.Node
		if def, ok := n.DataTypeDefinition.(*opcua.EnumDefinition); ok && validEnumDefinition(def) {
			if err := l.buildEnum(b, n.NodeID, dt.entry.Name, def); err != nil {
				l.markUnsupported(n.NodeID, err)
			}
			continue
		}
		ids = append(ids, n.NodeID)
		names = append(names, dt.entry.Name)
	}
	if len(ids) == 0 {
		return nil
	}
	values, err := l.r.GetEnumTypeArrays(ctx, ids)
	if err != nil {
		return err
	}
	for i, v := range values {
		if v == nil {
			continue
		}
		def, err := EnumTypeArrayToEnumDefinition(v)
		if err != nil {
			continue
		}
		if err := l.buildEnum(b, ids[i], names[i], def); err != nil {
			l.markUnsupported(ids[i], err)
		}
	}
	return nil
}

// dictionaryTasks converts the structures of a dictionary. Structures that
// reference other structures of the same dictionary are placed last.
func (l *loader) dictionaryTasks(ctx context.Context, b Builder, td *schema.TypeDictionary, types []dictionaryType, typeMap map[schema.QName]opcua.NodeID) ([]*structTask, error) {
	ids := make([]opcua.NodeID, len(types))
	for i, dt := range types {
		ids[i] = dt.comp.Node.NodeID
	}
	if err := l.r.Prefetch(ctx, ids, opcua.RefHasEncoding, false); err != nil {
		return nil, err
	}

	local := make(map[string]bool, len(types))
	for _, id := range ids {
		local[opcua.FormatNodeID(id)] = true
	}

	var tasks []*structTask
	var dependent []*structTask
	for _, dt := range types {
		st := td.Lookup(dt.entry.Name.Name).(*schema.StructuredType)
		id := dt.comp.Node.NodeID
		def, err := ToStructureDefinition(st, dt.comp.EncodingID, typeMap, l.ns, id)
		if err != nil {
			if errors.Is(err, ErrDataTypeNotSupported) {
				l.markUnsupported(id, err)
				continue
			}
			return nil, err
		}
		enc, err := l.r.BrowseForEncodings(ctx, id, SupportedEncodings)
		if err != nil {
			return nil, err
		}
		binary := enc.Binary
		if binary.IsNull() {
			binary = dt.comp.EncodingID
		}
		t := &structTask{
			id:      id,
			name:    dt.entry.Name,
			def:     def,
			binary:  binary,
			xml:     enc.XML,
			builder: b,
		}
		if dependsOnAny(def, id, local) {
			dependent = append(dependent, t)
		} else {
			tasks = append(tasks, t)
		}
	}
	return append(tasks, dependent...), nil
}

func dependsOnAny(def *opcua.StructureDefinition, self opcua.NodeID, ids map[string]bool) bool {
	for _, f := range def.Fields {
		if f.DataType.IsNull() || f.DataType.Equal(self) {
			continue
		}
		if ids[opcua.FormatNodeID(f.DataType)] {
			return true
		}
	}
	return false
}
