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
	"sync"
	"time"

	opcua "github.com/edgeo-scada/opcua-types"
	"github.com/edgeo-scada/opcua-types/nodecache"
)

// ComplexTypeSystem discovers the custom data types of a server and
// registers encodeable types for them in the session factory. Types are
// built from the DataTypeDefinition attribute first, from the EnumValues
// and EnumStrings properties for enumerations, and from OPC Binary type
// dictionaries last.
//
// Load is not meant to be called concurrently on one instance. The
// definition accessors are safe for concurrent use.
type ComplexTypeSystem struct {
	server   ServerContext
	resolver *NodeCacheResolver
	opts     *options
	logger   *slog.Logger
	metrics  *Metrics

	mu          sync.RWMutex
	definitions map[string]opcua.DataTypeDefinition
	report      *LoadReport
	builders    map[string]Builder
}

// LoadReport describes the outcome of the last Load.
type LoadReport struct {
	EnumTypes      int
	StructureTypes int
	// Unresolved lists the types that could not be built, typically
	// because of a dependency cycle or a missing dependency.
	Unresolved []opcua.ExpandedNodeID
	// Unsupported lists the types using constructs the codec cannot
	// represent.
	Unsupported []opcua.ExpandedNodeID
	Passes      int
	// RetryLoops lists every run of the retry loop in order.
	RetryLoops []RetryLoop
}

// RetryLoop is one run of the retry loop over the structures of a namespace.
type RetryLoop struct {
	Namespace uint16
	// Sizes is the number of deferred structures after each pass. It never
	// grows.
	Sizes []int
}

// Complete reports whether every discovered type was built.
func (r *LoadReport) Complete() bool {
	return len(r.Unresolved) == 0 && len(r.Unsupported) == 0
}

// DefinitionEntry pairs a data type with its definition.
type DefinitionEntry struct {
	ID         opcua.ExpandedNodeID
	Definition opcua.DataTypeDefinition
}

// New creates a type system over server.
func New(server ServerContext, opts ...Option) *ComplexTypeSystem {
	o := applyOptions(opts)
	return &ComplexTypeSystem{
		server:      server,
		resolver:    newNodeCacheResolver(server, o),
		opts:        o,
		logger:      o.logger,
		metrics:     o.metrics,
		definitions: make(map[string]opcua.DataTypeDefinition),
		builders:    make(map[string]Builder),
	}
}

// Resolver returns the resolver the type system browses with.
func (s *ComplexTypeSystem) Resolver() *NodeCacheResolver { return s.resolver }

// Metrics returns the type system metrics.
func (s *ComplexTypeSystem) Metrics() *Metrics { return s.metrics }

// LastReport returns the report of the last Load, or nil.
func (s *ComplexTypeSystem) LastReport() *LoadReport {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.report
}

// Load loads the enumeration and, unless onlyEnumTypes, the structure types
// of the server. It returns true when every discovered type was built.
// Errors are logged and only returned when throwOnError is set; context
// cancellation is always returned. Types already in the factory are
// skipped, so repeated loads only add what is new.
func (s *ComplexTypeSystem) Load(ctx context.Context, onlyEnumTypes, throwOnError bool) (bool, error) {
	start := time.Now()
	s.metrics.Loads.Inc()
	defer func() {
		s.metrics.LoadLatency.Observe(time.Since(start))
	}()

	l := s.newLoader()
	err := l.load(ctx, onlyEnumTypes)
	report := l.finish()

	s.mu.Lock()
	s.report = report
	s.mu.Unlock()

	if err != nil {
		s.metrics.LoadErrors.Inc()
		if isCanceled(err) {
			return false, err
		}
		s.logger.Error("complex type system load failed", slog.String("error", err.Error()))
		if throwOnError {
			return false, err
		}
		return false, nil
	}

	s.metrics.UnresolvedTypes.Add(int64(len(report.Unresolved)))
	s.metrics.UnsupportedTypes.Add(int64(len(report.Unsupported)))
	if !report.Complete() {
		s.logger.Warn("complex types not loaded",
			slog.Int("unresolved", len(report.Unresolved)),
			slog.Int("unsupported", len(report.Unsupported)))
		for _, id := range report.Unresolved {
			s.logger.Debug("unresolved data type", slog.String("type", id.String()))
		}
	}
	s.logger.Info("complex types loaded",
		slog.Int("enums", report.EnumTypes),
		slog.Int("structures", report.StructureTypes),
		slog.Int("passes", report.Passes),
		slog.Duration("elapsed", time.Since(start)))
	return report.Complete(), nil
}

// Definition returns the definition of a loaded type.
func (s *ComplexTypeSystem) Definition(id opcua.ExpandedNodeID) (opcua.DataTypeDefinition, bool) {
	id = s.server.NamespaceTable().Normalize(id)
	s.mu.RLock()
	defer s.mu.RUnlock()
	def, ok := s.definitions[id.Key()]
	return def, ok
}

// KnownTypes returns the ids of every loaded type, sorted.
func (s *ComplexTypeSystem) KnownTypes() []opcua.ExpandedNodeID {
	types := s.server.Factory().Types()
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []opcua.ExpandedNodeID
	for _, t := range types {
		if _, ok := s.definitions[t.TypeID().Key()]; ok {
			out = append(out, t.TypeID())
		}
	}
	return out
}

// GetDataTypeDefinitionsForDataType returns the definition of id and of
// every loaded type its fields depend on, keyed by normalized id.
func (s *ComplexTypeSystem) GetDataTypeDefinitionsForDataType(id opcua.ExpandedNodeID) map[string]opcua.DataTypeDefinition {
	entries := s.DataTypeDefinitions(id)
	if len(entries) == 0 {
		return nil
	}
	out := make(map[string]opcua.DataTypeDefinition, len(entries))
	for _, e := range entries {
		out[e.ID.Key()] = e.Definition
	}
	return out
}

// DataTypeDefinitions returns the definitions GetDataTypeDefinitionsForDataType
// returns, dependencies before the types that use them.
func (s *ComplexTypeSystem) DataTypeDefinitions(id opcua.ExpandedNodeID) []DefinitionEntry {
	ns := s.server.NamespaceTable()
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []DefinitionEntry
	visited := make(map[string]bool)
	var visit func(id opcua.ExpandedNodeID)
	visit = func(id opcua.ExpandedNodeID) {
		id = ns.Normalize(id)
		k := id.Key()
		if visited[k] {
			return
		}
		visited[k] = true
		def, ok := s.definitions[k]
		if !ok {
			return
		}
		if sd, ok := def.(*opcua.StructureDefinition); ok {
			for _, f := range sd.Fields {
				visit(ns.ToExpanded(f.DataType))
			}
		}
		out = append(out, DefinitionEntry{ID: id, Definition: def})
	}
	visit(id)
	return out
}

func (s *ComplexTypeSystem) builder(namespaceURI string, namespaceIndex uint16, module string) Builder {
	key := namespaceURI + "|" + module
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.builders[key]
	if !ok {
		b = s.opts.builderFactory.Create(namespaceURI, namespaceIndex, module)
		s.builders[key] = b
	}
	return b
}

// register adds t to the factory under its type and encoding ids.
func (s *ComplexTypeSystem) register(t opcua.EncodeableType, def opcua.DataTypeDefinition) {
	f := s.server.Factory()
	f.AddEncodeableType(t.TypeID(), t)
	f.AddEncodeableType(t.BinaryEncodingID(), t)
	f.AddEncodeableType(t.XMLEncodingID(), t)
	s.mu.Lock()
	s.definitions[t.TypeID().Key()] = def
	s.mu.Unlock()
}

// isKnown reports whether the factory already holds id.
func (s *ComplexTypeSystem) isKnown(id opcua.ExpandedNodeID) bool {
	return s.server.Factory().GetSystemType(id) != nil
}

// knownType returns the session or built-in type registered under id.
func (s *ComplexTypeSystem) knownType(id opcua.ExpandedNodeID) opcua.EncodeableType {
	if t := s.server.Factory().GetSystemType(id); t != nil {
		return t
	}
	return opcua.BuiltinEncodeableType(id)
}

// structTask is a structure waiting for its field types.
type structTask struct {
	id      opcua.NodeID
	name    opcua.QualifiedName
	def     *opcua.StructureDefinition
	binary  opcua.ExpandedNodeID
	xml     opcua.ExpandedNodeID
	builder Builder
}

// loader holds the state of one Load.
type loader struct {
	s      *ComplexTypeSystem
	r      *NodeCacheResolver
	ns     *opcua.NamespaceTable
	logger *slog.Logger

	// pending holds every discovered type not built yet.
	pending     map[string]*nodecache.Node
	order       []string
	unsupported map[string]bool
	// missing collects types reported not found during a sweep.
	missing   map[string]opcua.NodeID
	refetched map[string]bool
	// enums maps namespace index and browse name of every enumeration
	// below Enumeration, built or not, to its id.
	enums map[opcua.QualifiedName]opcua.NodeID

	report *LoadReport
}

func (s *ComplexTypeSystem) newLoader() *loader {
	return &loader{
		s:           s,
		r:           s.resolver,
		ns:          s.server.NamespaceTable(),
		logger:      s.logger,
		pending:     make(map[string]*nodecache.Node),
		unsupported: make(map[string]bool),
		missing:     make(map[string]opcua.NodeID),
		refetched:   make(map[string]bool),
		enums:       make(map[opcua.QualifiedName]opcua.NodeID),
		report:      &LoadReport{},
	}
}

func (l *loader) load(ctx context.Context, onlyEnumTypes bool) error {
	enums, err := l.discover(ctx, opcua.DataTypeEnumeration)
	if err != nil {
		return err
	}
	var structs []*nodecache.Node
	if !onlyEnumTypes {
		if structs, err = l.discover(ctx, opcua.DataTypeStructure); err != nil {
			return err
		}
	}
	if len(l.pending) == 0 {
		return nil
	}
	l.logger.Debug("data types discovered",
		slog.Int("enums", len(enums)),
		slog.Int("structures", len(structs)))

	if !l.s.opts.disableDataTypeDefinition {
		if err := l.loadEnumsFromDefinitions(ctx, enums); err != nil {
			return err
		}
		if err := l.loadStructuresFromDefinitions(ctx, structs); err != nil {
			return err
		}
	}

	if len(l.pending) > 0 && !l.s.opts.disableDataTypeDictionary {
		if err := l.loadFromDictionaries(ctx); err != nil {
			return err
		}
	}
	return nil
}

// discover returns the unknown data types below root and marks them pending.
func (l *loader) discover(ctx context.Context, root opcua.NodeID) ([]*nodecache.Node, error) {
	nodes, err := l.r.LoadDataTypes(ctx, root, true, false, true)
	if err != nil {
		return nil, err
	}
	out := nodes[:0]
	for _, n := range nodes {
		if root.Equal(opcua.DataTypeEnumeration) {
			l.enums[n.BrowseName] = n.NodeID
		}
		if l.s.isKnown(l.ns.ToExpanded(n.NodeID)) {
			continue
		}
		l.addPending(n)
		out = append(out, n)
	}
	return out, nil
}

func (l *loader) addPending(n *nodecache.Node) {
	k := opcua.FormatNodeID(n.NodeID)
	if _, ok := l.pending[k]; ok {
		return
	}
	l.pending[k] = n
	l.order = append(l.order, k)
}

func (l *loader) isPending(id opcua.NodeID) bool {
	_, ok := l.pending[opcua.FormatNodeID(id)]
	return ok
}

func (l *loader) markUnsupported(id opcua.NodeID, err error) {
	l.unsupported[opcua.FormatNodeID(id)] = true
	l.logger.Error("data type not supported",
		slog.String("type", opcua.FormatNodeID(id)),
		slog.String("error", err.Error()))
}

func (l *loader) registered(t opcua.EncodeableType, id opcua.NodeID, def opcua.DataTypeDefinition) {
	l.s.register(t, def)
	k := opcua.FormatNodeID(id)
	delete(l.pending, k)
	delete(l.unsupported, k)
	switch def.(type) {
	case *opcua.EnumDefinition:
		l.report.EnumTypes++
		l.s.metrics.EnumTypesLoaded.Inc()
	case *opcua.StructureDefinition:
		l.report.StructureTypes++
		l.s.metrics.StructureTypesLoaded.Inc()
	}
	l.logger.Debug("data type registered",
		slog.String("type", t.TypeID().String()),
		slog.String("name", t.Name().Name))
}

// finish turns what is still pending into the report.
func (l *loader) finish() *LoadReport {
	for _, k := range l.order {
		n, ok := l.pending[k]
		if !ok {
			continue
		}
		id := l.ns.ToExpanded(n.NodeID)
		if l.unsupported[k] {
			l.report.Unsupported = append(l.report.Unsupported, id)
		} else {
			l.report.Unresolved = append(l.report.Unresolved, id)
		}
	}
	return l.report
}

func (l *loader) namespaceBuilder(id opcua.NodeID) Builder {
	uri, _ := l.ns.GetURI(id.Namespace)
	return l.s.builder(uri, id.Namespace, uri)
}

func (l *loader) buildEnum(b Builder, id opcua.NodeID, name opcua.QualifiedName, def *opcua.EnumDefinition) error {
	t, err := b.AddEnumType(name, l.ns.ToExpanded(id), def)
	if err != nil {
		return err
	}
	l.registered(t, id, def)
	return nil
}

func (l *loader) loadEnumsFromDefinitions(ctx context.Context, enums []*nodecache.Node) error {
	var fallback []opcua.NodeID
	for _, n := range enums {
		if !l.isPending(n.NodeID) {
			continue
		}
		def, ok := n.DataTypeDefinition.(*opcua.EnumDefinition)
		if !ok || !validEnumDefinition(def) {
			fallback = append(fallback, n.NodeID)
			continue
		}
		if err := l.buildEnum(l.namespaceBuilder(n.NodeID), n.NodeID, n.BrowseName, def); err != nil {
			l.markUnsupported(n.NodeID, err)
		}
	}
	if len(fallback) == 0 {
		return nil
	}

	values, err := l.r.GetEnumTypeArrays(ctx, fallback)
	if err != nil {
		return err
	}
	for i, v := range values {
		if v == nil {
			continue
		}
		id := fallback[i]
		def, err := EnumTypeArrayToEnumDefinition(v)
		if err != nil {
			l.logger.Warn("enum property not usable",
				slog.String("type", opcua.FormatNodeID(id)),
				slog.String("error", err.Error()))
			continue
		}
		n := l.pending[opcua.FormatNodeID(id)]
		if err := l.buildEnum(l.namespaceBuilder(id), id, n.BrowseName, def); err != nil {
			l.markUnsupported(id, err)
		}
	}
	return nil
}

func validEnumDefinition(def *opcua.EnumDefinition) bool {
	if def == nil || len(def.Fields) == 0 {
		return false
	}
	for _, f := range def.Fields {
		if f.Name == "" {
			return false
		}
	}
	return true
}

func (l *loader) loadStructuresFromDefinitions(ctx context.Context, structs []*nodecache.Node) error {
	tasks, err := l.definitionTasks(ctx, structs)
	if err != nil {
		return err
	}
	return l.resolve(ctx, tasks)
}

// resolve builds tasks, then reads the data types reported missing and
// builds again until no new data type turns up. Missing structures are
// built from their DataTypeDefinition.
func (l *loader) resolve(ctx context.Context, tasks []*structTask) error {
	for {
		residual, err := l.sweep(ctx, tasks)
		if err != nil {
			return err
		}
		added, err := l.refetchMissing(ctx)
		if err != nil {
			return err
		}
		if len(added) == 0 {
			return nil
		}
		more, err := l.definitionTasks(ctx, added)
		if err != nil {
			return err
		}
		tasks = append(residual, more...)
	}
}

// definitionTasks validates the DataTypeDefinition of each pending structure.
// Types without a valid definition are left to the dictionaries.
func (l *loader) definitionTasks(ctx context.Context, nodes []*nodecache.Node) ([]*structTask, error) {
	var ids []opcua.NodeID
	for _, n := range nodes {
		if _, ok := n.DataTypeDefinition.(*opcua.StructureDefinition); ok && l.isPending(n.NodeID) {
			ids = append(ids, n.NodeID)
		}
	}
	if err := l.r.Prefetch(ctx, ids, opcua.RefHasEncoding, false); err != nil {
		return nil, err
	}

	var tasks []*structTask
	for _, n := range nodes {
		def, ok := n.DataTypeDefinition.(*opcua.StructureDefinition)
		if !ok || !l.isPending(n.NodeID) {
			continue
		}
		enc, err := l.r.BrowseForEncodings(ctx, n.NodeID, SupportedEncodings)
		if err != nil {
			return nil, err
		}
		binary := enc.Binary
		if binary.IsNull() && !def.DefaultEncodingID.IsNull() {
			binary = l.ns.ToExpanded(def.DefaultEncodingID)
		}
		if reason := invalidStructureDefinition(def, binary); reason != "" {
			l.logger.Warn("invalid data type definition",
				slog.String("type", opcua.FormatNodeID(n.NodeID)),
				slog.String("reason", reason))
			continue
		}
		tasks = append(tasks, &structTask{
			id:      n.NodeID,
			name:    n.BrowseName,
			def:     def,
			binary:  binary,
			xml:     enc.XML,
			builder: l.namespaceBuilder(n.NodeID),
		})
	}
	return tasks, nil
}

// invalidStructureDefinition returns why def cannot be built, or "".
func invalidStructureDefinition(def *opcua.StructureDefinition, binary opcua.ExpandedNodeID) string {
	if binary.IsNull() {
		return "no binary encoding"
	}
	for _, f := range def.Fields {
		switch {
		case f.Name == "":
			return "field without a name"
		case f.DataType.IsNull():
			return "field " + f.Name + " without a data type"
		case f.ValueRank != opcua.ValueRankScalar && f.ValueRank < opcua.ValueRankOneDimension:
			return "field " + f.Name + " has an unsupported value rank"
		}
	}
	return ""
}

// refetchMissing reads the types reported not found that were not read
// before and returns the structures among them. Enumerations are built
// right away.
func (l *loader) refetchMissing(ctx context.Context) ([]*nodecache.Node, error) {
	var ids []opcua.NodeID
	for k, id := range l.missing {
		if !l.refetched[k] {
			l.refetched[k] = true
			ids = append(ids, id)
		}
	}
	l.missing = make(map[string]opcua.NodeID)
	if len(ids) == 0 {
		return nil, nil
	}
	sort.Slice(ids, func(i, j int) bool { return opcua.FormatNodeID(ids[i]) < opcua.FormatNodeID(ids[j]) })

	nodes, err := l.r.FindNodes(ctx, ids)
	if err != nil {
		return nil, err
	}
	var structs []*nodecache.Node
	for i, n := range nodes {
		if n == nil || n.NodeClass != opcua.NodeClassDataType || l.s.isKnown(l.ns.ToExpanded(n.NodeID)) {
			l.logger.Debug("data type not found", slog.String("type", opcua.FormatNodeID(ids[i])))
			continue
		}
		switch def := n.DataTypeDefinition.(type) {
		case *opcua.EnumDefinition:
			l.addPending(n)
			if validEnumDefinition(def) {
				if err := l.buildEnum(l.namespaceBuilder(n.NodeID), n.NodeID, n.BrowseName, def); err != nil {
					l.markUnsupported(n.NodeID, err)
				}
			}
		case *opcua.StructureDefinition:
			l.addPending(n)
			structs = append(structs, n)
		}
	}
	return structs, nil
}

// sweep runs the retry loop namespace by namespace and repeats while any
// namespace makes progress, so that references across namespaces resolve.
func (l *loader) sweep(ctx context.Context, tasks []*structTask) ([]*structTask, error) {
	for len(tasks) > 0 {
		before := len(tasks)
		var residual []*structTask
		for _, group := range groupByNamespace(tasks) {
			rest, err := l.retry(ctx, group)
			if err != nil {
				return nil, err
			}
			residual = append(residual, rest...)
		}
		tasks = residual
		if len(tasks) == before {
			break
		}
	}
	return tasks, nil
}

func groupByNamespace(tasks []*structTask) [][]*structTask {
	var groups [][]*structTask
	index := make(map[uint16]int)
	for _, t := range tasks {
		i, ok := index[t.id.Namespace]
		if !ok {
			i = len(groups)
			index[t.id.Namespace] = i
			groups = append(groups, nil)
		}
		groups[i] = append(groups[i], t)
	}
	return groups
}

// retry builds tasks in passes. A structure whose field types are not all
// available is deferred to the next pass. The loop stops when a pass makes
// no progress or after the maximum number of passes.
func (l *loader) retry(ctx context.Context, tasks []*structTask) ([]*structTask, error) {
	if len(tasks) == 0 {
		return nil, nil
	}
	loop := RetryLoop{Namespace: tasks[0].id.Namespace}
	defer func() {
		if len(loop.Sizes) > 0 {
			l.report.RetryLoops = append(l.report.RetryLoops, loop)
		}
	}()
	for pass := 0; pass < l.s.opts.maxLoopCount && len(tasks) > 0; pass++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		var next []*structTask
		for _, t := range tasks {
			if !l.isPending(t.id) {
				continue
			}
			built, err := l.buildStructure(ctx, t)
			var nf *DataTypeNotFoundError
			switch {
			case err == nil && built:
			case err == nil:
				next = append(next, t)
			case errors.As(err, &nf):
				for _, id := range nf.NodeIDs {
					if local, err := l.ns.ToNodeID(id); err == nil {
						l.missing[opcua.FormatNodeID(local)] = local
					}
				}
				next = append(next, t)
			case errors.Is(err, ErrDataTypeNotSupported):
				l.markUnsupported(t.id, err)
			default:
				return nil, err
			}
		}
		l.report.Passes++
		loop.Sizes = append(loop.Sizes, len(next))
		l.s.metrics.RetryPasses.Inc()
		progress := len(next) < len(tasks)
		tasks = next
		if !progress {
			break
		}
	}
	return tasks, nil
}

// buildStructure builds one structure. It reports false without error when
// a field type is not available yet.
func (l *loader) buildStructure(ctx context.Context, t *structTask) (bool, error) {
	fb := t.builder.AddStructuredType(t.name, t.def)
	for i, f := range t.def.Fields {
		ft, ok, err := l.fieldType(ctx, fb, t, f)
		if err != nil || !ok {
			return false, err
		}
		if err := fb.AddField(f, ft, i); err != nil {
			return false, notSupported("%s.%s: %v", t.name.Name, f.Name, err)
		}
	}
	fb.SetTypeIDs(l.ns.ToExpanded(t.id), t.binary, t.xml)
	et, err := fb.CreateType()
	if err != nil {
		return false, notSupported("%s: %v", t.name.Name, err)
	}
	l.registered(et, t.id, t.def)
	return true, nil
}

// fieldType resolves the type of a field. ok is false when the field type
// is a custom type that is not built yet.
func (l *loader) fieldType(ctx context.Context, fb FieldBuilder, t *structTask, f opcua.StructureField) (FieldType, bool, error) {
	rank := f.ValueRank
	id := f.DataType
	switch {
	case id.IsNull():
		return FieldType{}, false, nil
	case id.Equal(t.id):
		return fb.SelfType(rank), true, nil
	}

	// Structure and BaseDataType map to ExtensionObject and Variant.
	if bt, ok := opcua.BuiltInTypeOf(id); ok {
		return FieldType{BuiltIn: bt, ValueRank: rank}, true, nil
	}

	subtyped := t.def.StructureType.AllowsSubtypes() && f.IsOptional
	if known := l.s.knownType(l.ns.ToExpanded(id)); known != nil {
		if subtyped && !known.BinaryEncodingID().IsNull() {
			return FieldType{BuiltIn: opcua.TypeExtensionObject, ValueRank: rank}, true, nil
		}
		return FieldType{Type: known, ValueRank: rank}, true, nil
	}
	if l.isPending(id) {
		return FieldType{}, false, nil
	}

	notFound := &DataTypeNotFoundError{NodeIDs: []opcua.ExpandedNodeID{l.ns.ToExpanded(id)}}
	cur := id
	for i := 0; i < l.s.opts.maxLoopCount; i++ {
		super, err := l.r.FindSuperType(ctx, cur)
		if err != nil {
			if opcua.IsNodeIDUnknown(err) {
				return FieldType{}, false, notFound
			}
			return FieldType{}, false, err
		}
		if super.IsNull() {
			return FieldType{}, false, notFound
		}
		switch {
		case super.Equal(opcua.DataTypeEnumeration):
			if id.Namespace == 0 {
				return FieldType{BuiltIn: opcua.TypeUInt32, ValueRank: rank}, true, nil
			}
			return FieldType{}, false, notFound
		case super.Equal(opcua.DataTypeStructure), super.Equal(opcua.DataTypeUnion):
			if subtyped {
				return FieldType{BuiltIn: opcua.TypeExtensionObject, ValueRank: rank}, true, nil
			}
			n, err := l.r.Find(ctx, id)
			if err != nil {
				if opcua.IsNodeIDUnknown(err) {
					return FieldType{}, false, notFound
				}
				return FieldType{}, false, err
			}
			if n.IsAbstract {
				return FieldType{}, false, notSupported("%s.%s: abstract type %s in a %s",
					t.name.Name, f.Name, opcua.FormatNodeID(id), t.def.StructureType)
			}
			return FieldType{}, false, notFound
		case super.Equal(opcua.DataTypeBaseDataType):
			return FieldType{BuiltIn: opcua.TypeVariant, ValueRank: rank}, true, nil
		}
		if bt, ok := opcua.BuiltInTypeOf(super); ok {
			return FieldType{BuiltIn: bt, ValueRank: rank}, true, nil
		}
		cur = super
	}
	return FieldType{}, false, notSupported("%s.%s: super type chain of %s exceeds %d steps",
		t.name.Name, f.Name, opcua.FormatNodeID(id), l.s.opts.maxLoopCount)
}
