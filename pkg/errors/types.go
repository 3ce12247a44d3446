// Copyright 2024 The Accumulate Authors
//
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file or at
// https://opensource.org/licenses/MIT.

package errors

import "strconv"

// Status is a request status code.
type Status uint64

const (
	// OK means the request completed successfully.
	OK Status = 200
	// Delivered means the state transition was applied.
	Delivered Status = 201

	// BadRequest means the request was malformed or invalid.
	BadRequest Status = 400
	// InsufficientBalance means the identity cannot pay for the request.
	InsufficientBalance Status = 402
	// NotFound means a record could not be found.
	NotFound Status = 404
	// NotAllowed means the requested action is not allowed.
	NotAllowed Status = 405
	// Conflict means the request failed due to a conflict.
	Conflict Status = 409
	// BadSignature means a signature is invalid.
	BadSignature Status = 412
	// BadTimestamp means a timestamp is outside the accepted window.
	BadTimestamp Status = 414

	// InternalError means an internal error occurred.
	InternalError Status = 500
	// UnknownError means an unknown error occurred.
	UnknownError Status = 501
	// EncodingError means something could not be encoded or decoded.
	EncodingError Status = 502
	// FatalError means something has gone seriously wrong and the node
	// cannot continue processing blocks.
	FatalError Status = 503
	// NotReady means the service is not ready.
	NotReady Status = 504
	// Timeout means an operation did not complete in time.
	Timeout Status = 505
	// Unimplemented means the operation is not implemented.
	Unimplemented Status = 506
)

var statusNames = map[Status]string{
	OK:                  "ok",
	Delivered:           "delivered",
	BadRequest:          "badRequest",
	InsufficientBalance: "insufficientBalance",
	NotFound:            "notFound",
	NotAllowed:          "notAllowed",
	Conflict:            "conflict",
	BadSignature:        "badSignature",
	BadTimestamp:        "badTimestamp",
	InternalError:       "internalError",
	UnknownError:        "unknownError",
	EncodingError:       "encodingError",
	FatalError:          "fatalError",
	NotReady:            "notReady",
	Timeout:             "timeout",
	Unimplemented:       "unimplemented",
}

// String returns the name of the status.
func (s Status) String() string {
	if name, ok := statusNames[s]; ok {
		return name
	}
	return "Status:" + strconv.FormatUint(uint64(s), 10)
}

// trackLocation records the call site of every error when enabled.
var trackLocation = true

// CallSite is a location in the source.
type CallSite struct {
	FuncName string
	File     string
	Line     int64
}

// Error is a status-coded error with an optional cause and call stack.
type Error struct {
	Message   string
	Code      Status
	Cause     *Error
	CallStack []*CallSite
}
