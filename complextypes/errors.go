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
	"errors"
	"fmt"
	"strings"

	opcua "github.com/edgeo-scada/opcua-types"
)

// Common errors.
var (
	// ErrDataTypeNotSupported indicates a type description uses a construct
	// the codec cannot represent. It is fatal to that type only.
	ErrDataTypeNotSupported = errors.New("complextypes: data type not supported")

	// ErrTypeSystemNotFound indicates a dictionary has no parent type system.
	ErrTypeSystemNotFound = errors.New("complextypes: type system not found")

	// ErrInvalidDictionary indicates a dictionary value is not a schema.
	ErrInvalidDictionary = errors.New("complextypes: invalid data dictionary")
)

func notSupported(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrDataTypeNotSupported, fmt.Sprintf(format, args...))
}

// DataTypeNotFoundError lists referenced data types the server does not
// know. The type system re-fetches them before giving up.
type DataTypeNotFoundError struct {
	NodeIDs []opcua.ExpandedNodeID
}

func (e *DataTypeNotFoundError) Error() string {
	ids := make([]string, len(e.NodeIDs))
	for i, id := range e.NodeIDs {
		ids[i] = id.String()
	}
	return "complextypes: data types not found: " + strings.Join(ids, ", ")
}

// IsDataTypeNotFound reports whether err carries missing data type ids.
func IsDataTypeNotFound(err error) bool {
	var nf *DataTypeNotFoundError
	return errors.As(err, &nf)
}
