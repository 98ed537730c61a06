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
	"errors"
	"fmt"
)

// StatusCode severity levels.
const (
	StatusSeverityGood      uint32 = 0x00000000
	StatusSeverityUncertain uint32 = 0x40000000
	StatusSeverityBad       uint32 = 0x80000000
	StatusSeverityMask      uint32 = 0xC0000000
)

// Status codes raised while browsing, reading and decoding type information.
const (
	StatusGood                          StatusCode = 0x00000000
	StatusUncertain                     StatusCode = 0x40000000
	StatusBad                           StatusCode = 0x80000000
	StatusBadUnexpectedError            StatusCode = 0x80010000
	StatusBadInternalError              StatusCode = 0x80020000
	StatusBadEncodingError              StatusCode = 0x80060000
	StatusBadDecodingError              StatusCode = 0x80070000
	StatusBadEncodingLimitsExceeded     StatusCode = 0x80080000
	StatusBadTimeout                    StatusCode = 0x800A0000
	StatusBadServiceUnsupported         StatusCode = 0x800B0000
	StatusBadNothingToDo                StatusCode = 0x800F0000
	StatusBadTooManyOperations          StatusCode = 0x80100000
	StatusBadDataTypeIdUnknown          StatusCode = 0x80110000
	StatusBadRequestCancelledByClient   StatusCode = 0x802C0000
	StatusBadNodeIdInvalid              StatusCode = 0x80330000
	StatusBadNodeIdUnknown              StatusCode = 0x80340000
	StatusBadAttributeIdInvalid         StatusCode = 0x80350000
	StatusBadDataEncodingInvalid        StatusCode = 0x80380000
	StatusBadDataEncodingUnsupported    StatusCode = 0x80390000
	StatusBadNotReadable                StatusCode = 0x803A0000
	StatusBadNotWritable                StatusCode = 0x803B0000
	StatusBadNotSupported               StatusCode = 0x803D0000
	StatusBadNotFound                   StatusCode = 0x803E0000
	StatusBadContinuationPointInvalid   StatusCode = 0x804A0000
	StatusBadNoContinuationPoints       StatusCode = 0x804B0000
	StatusBadReferenceTypeIdInvalid     StatusCode = 0x804C0000
	StatusBadBrowseDirectionInvalid     StatusCode = 0x804D0000
	StatusBadTypeMismatch               StatusCode = 0x80740000
	StatusBadNoDataAvailable            StatusCode = 0x809B0000
	StatusBadConfigurationError         StatusCode = 0x80890000
	StatusGoodResultsMayBeIncomplete    StatusCode = 0x00BA0000
	StatusUncertainNotAllNodesAvailable StatusCode = 0x40C00000
)

// statusCodeInfo contains name and description for a status code.
type statusCodeInfo struct {
	name        string
	description string
}

// statusCodeMap maps status codes to their info.
var statusCodeMap = map[StatusCode]statusCodeInfo{
	StatusGood:                          {"Good", "The operation completed successfully"},
	StatusUncertain:                     {"Uncertain", "The operation completed with an uncertain result"},
	StatusBad:                           {"Bad", "The operation failed"},
	StatusBadUnexpectedError:            {"BadUnexpectedError", "An unexpected error occurred"},
	StatusBadInternalError:              {"BadInternalError", "An internal error occurred"},
	StatusBadEncodingError:              {"BadEncodingError", "Encoding halted because of invalid data"},
	StatusBadDecodingError:              {"BadDecodingError", "Decoding halted because of invalid data"},
	StatusBadEncodingLimitsExceeded:     {"BadEncodingLimitsExceeded", "The message encoding/decoding limits have been exceeded"},
	StatusBadTimeout:                    {"BadTimeout", "The operation timed out"},
	StatusBadServiceUnsupported:         {"BadServiceUnsupported", "The server does not support the requested service"},
	StatusBadNothingToDo:                {"BadNothingToDo", "There was nothing to do because the client passed a list of operations with no elements"},
	StatusBadTooManyOperations:          {"BadTooManyOperations", "The request could not be processed because it specified too many operations"},
	StatusBadDataTypeIdUnknown:          {"BadDataTypeIdUnknown", "The extension object cannot be (de)serialized because the data type id is not recognized"},
	StatusBadRequestCancelledByClient:   {"BadRequestCancelledByClient", "The request was cancelled by the client"},
	StatusBadNodeIdInvalid:              {"BadNodeIdInvalid", "The syntax of the node id is not valid"},
	StatusBadNodeIdUnknown:              {"BadNodeIdUnknown", "The node id refers to a node that does not exist in the server address space"},
	StatusBadAttributeIdInvalid:         {"BadAttributeIdInvalid", "The attribute is not supported for the specified Node"},
	StatusBadDataEncodingInvalid:        {"BadDataEncodingInvalid", "The data encoding is invalid"},
	StatusBadDataEncodingUnsupported:    {"BadDataEncodingUnsupported", "The server does not support the requested data encoding for the node"},
	StatusBadNotReadable:                {"BadNotReadable", "The access level does not allow reading or subscribing to the Node"},
	StatusBadNotWritable:                {"BadNotWritable", "The access level does not allow writing to the Node"},
	StatusBadNotSupported:               {"BadNotSupported", "The requested operation is not supported"},
	StatusBadNotFound:                   {"BadNotFound", "A requested item was not found or a search operation ended without success"},
	StatusBadContinuationPointInvalid:   {"BadContinuationPointInvalid", "The continuation point provide is longer valid"},
	StatusBadNoContinuationPoints:       {"BadNoContinuationPoints", "The operation could not be processed because all continuation points have been allocated"},
	StatusBadReferenceTypeIdInvalid:     {"BadReferenceTypeIdInvalid", "The reference type id does not refer to a valid reference type node"},
	StatusBadBrowseDirectionInvalid:     {"BadBrowseDirectionInvalid", "The browse direction is not valid"},
	StatusBadTypeMismatch:               {"BadTypeMismatch", "The value supplied for the attribute is not of the same type as the attribute's value"},
	StatusBadNoDataAvailable:            {"BadNoDataAvailable", "No data exists for the requested time range or event filter"},
	StatusBadConfigurationError:         {"BadConfigurationError", "There is a problem with the configuration that affects the usefulness of the value"},
	StatusGoodResultsMayBeIncomplete:    {"GoodResultsMayBeIncomplete", "The server should have followed a reference to a node in a remote server but did not"},
	StatusUncertainNotAllNodesAvailable: {"UncertainNotAllNodesAvailable", "The list of references may not be complete because the underlying system is not available"},
}

// String returns the string representation of the status code.
func (s StatusCode) String() string {
	if info, ok := statusCodeMap[s]; ok {
		return info.name
	}
	return fmt.Sprintf("StatusCode(0x%08X)", uint32(s))
}

// Description returns a human-readable description of the status code.
func (s StatusCode) Description() string {
	if info, ok := statusCodeMap[s]; ok {
		return info.description
	}
	switch {
	case s.IsGood():
		return "The operation completed successfully"
	case s.IsUncertain():
		return "The operation completed with uncertain result"
	case s.IsBad():
		return "The operation failed"
	default:
		return "Unknown status"
	}
}

// Error returns a formatted error string with code, name, and description.
func (s StatusCode) Error() string {
	if info, ok := statusCodeMap[s]; ok {
		return fmt.Sprintf("%s (0x%08X): %s", info.name, uint32(s), info.description)
	}
	return fmt.Sprintf("StatusCode 0x%08X", uint32(s))
}

// IsGood returns true if the status code indicates success.
func (s StatusCode) IsGood() bool {
	return (uint32(s) & StatusSeverityMask) == StatusSeverityGood
}

// IsUncertain returns true if the status code indicates uncertainty.
func (s StatusCode) IsUncertain() bool {
	return (uint32(s) & StatusSeverityMask) == StatusSeverityUncertain
}

// IsBad returns true if the status code indicates failure.
func (s StatusCode) IsBad() bool {
	return (uint32(s) & StatusSeverityMask) == StatusSeverityBad
}

// ServiceID names the server service an error originated from.
type ServiceID uint32

// Service IDs of the services the type loader depends on.
const (
	ServiceBrowse     ServiceID = 527
	ServiceBrowseNext ServiceID = 533
	ServiceRead       ServiceID = 631
)

// String returns the string representation of a ServiceID.
func (s ServiceID) String() string {
	switch s {
	case ServiceBrowse:
		return "Browse"
	case ServiceBrowseNext:
		return "BrowseNext"
	case ServiceRead:
		return "Read"
	default:
		return "Unknown"
	}
}

// OPCUAError represents a service-level failure reported by the server.
type OPCUAError struct {
	ServiceID  ServiceID
	StatusCode StatusCode
	Message    string
}

// Error implements the error interface.
func (e *OPCUAError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("opcua: %s (%s): %s", e.StatusCode, e.ServiceID, e.Message)
	}
	return fmt.Sprintf("opcua: %s (%s)", e.StatusCode, e.ServiceID)
}

// Is checks if the error matches the target.
func (e *OPCUAError) Is(target error) bool {
	switch t := target.(type) {
	case *OPCUAError:
		return e.StatusCode == t.StatusCode
	case StatusCode:
		return e.StatusCode == t
	}
	return false
}

// Common errors.
var (
	// ErrInvalidMessage indicates a malformed message.
	ErrInvalidMessage = errors.New("opcua: invalid message")

	// ErrInvalidNodeID indicates an invalid NodeID was specified.
	ErrInvalidNodeID = errors.New("opcua: invalid node ID")

	// ErrInvalidArgument indicates a caller supplied an unusable value.
	ErrInvalidArgument = errors.New("opcua: invalid argument")

	// ErrUnknownEncoding indicates an extension object body has no registered decoder.
	ErrUnknownEncoding = errors.New("opcua: unknown encoding")

	// ErrTypeMismatch indicates a value does not match the type it is encoded as.
	ErrTypeMismatch = errors.New("opcua: type mismatch")

	// ErrInvalidResponse indicates a server response does not match its request.
	ErrInvalidResponse = errors.New("opcua: invalid response")
)

// NewOPCUAError creates a new OPC UA error.
func NewOPCUAError(svc ServiceID, sc StatusCode, msg string) *OPCUAError {
	return &OPCUAError{
		ServiceID:  svc,
		StatusCode: sc,
		Message:    msg,
	}
}

// IsStatusCode checks if an error has a specific status code.
func IsStatusCode(err error, code StatusCode) bool {
	var opcuaErr *OPCUAError
	if errors.As(err, &opcuaErr) {
		return opcuaErr.StatusCode == code
	}
	var sc StatusCode
	if errors.As(err, &sc) {
		return sc == code
	}
	return false
}

// IsBadStatusCode checks if an error has a bad status code.
func IsBadStatusCode(err error) bool {
	var opcuaErr *OPCUAError
	if errors.As(err, &opcuaErr) {
		return opcuaErr.StatusCode.IsBad()
	}
	return false
}

// IsNodeIDUnknown checks if the error indicates an unknown node ID.
func IsNodeIDUnknown(err error) bool {
	return IsStatusCode(err, StatusBadNodeIdUnknown)
}

// IsAttributeInvalid checks if the error indicates an invalid attribute.
func IsAttributeInvalid(err error) bool {
	return IsStatusCode(err, StatusBadAttributeIdInvalid)
}
