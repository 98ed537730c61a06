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

// Package nodecache provides a caching view of a server address space on
// top of the Browse, BrowseNext and Read services. Every request is
// batched; the cache never issues one round trip per node when the set of
// nodes is known upfront.
package nodecache

import (
	"context"

	opcua "github.com/edgeo-scada/opcua-types"
)

// Session is the subset of an OPC UA client session the cache needs.
// Results must be returned in request order, one per requested item.
type Session interface {
	Read(ctx context.Context, nodesToRead []opcua.ReadValueID) ([]opcua.DataValue, error)
	Browse(ctx context.Context, nodesToBrowse []opcua.BrowseDescription, maxReferencesPerNode uint32) ([]opcua.BrowseResult, error)
	BrowseNext(ctx context.Context, releaseContinuationPoints bool, continuationPoints [][]byte) ([]opcua.BrowseResult, error)
}

// Node holds the attributes of a node the type loader looks at.
type Node struct {
	NodeID      opcua.NodeID
	NodeClass   opcua.NodeClass
	BrowseName  opcua.QualifiedName
	DisplayName opcua.LocalizedText
	IsAbstract  bool

	// DataTypeDefinition is nil when the server does not expose the attribute.
	DataTypeDefinition opcua.DataTypeDefinition
}
