// Copyright 2024 The Accumulate Authors
//
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file or at
// https://opensource.org/licenses/MIT.

package protocol

import (
	"crypto/sha256"
	"fmt"

	"github.com/fxamacker/cbor/v2"
)

// MinCompatibleVersion is the oldest protocol version this node decodes.
const MinCompatibleVersion uint32 = 1

// ProtocolVersionParsingError is returned when the version prefix is
// missing.
type ProtocolVersionParsingError struct {
	Size int
}

func (e *ProtocolVersionParsingError) Error() string {
	return fmt.Sprintf("can't read protocol version from %d bytes", e.Size)
}

// UnsupportedVersionError is returned for a version outside
// [MinCompatibleVersion, LatestVersion].
type UnsupportedVersionError struct {
	Version uint32
	Minimum uint32
	Latest  uint32
}

func (e *UnsupportedVersionError) Error() string {
	return fmt.Sprintf("protocol version %d is not supported, expected %d to %d", e.Version, e.Minimum, e.Latest)
}

// ObjectParsingError is returned when the body is not a valid encoding.
type ObjectParsingError struct {
	Err error
}

func (e *ObjectParsingError) Error() string { return fmt.Sprintf("parse state transition: %v", e.Err) }
func (e *ObjectParsingError) Unwrap() error { return e.Err }

// InvalidTransitionTypeError is returned for a missing or unknown type.
type InvalidTransitionTypeError struct {
	Type uint64
}

func (e *InvalidTransitionTypeError) Error() string {
	return fmt.Sprintf("invalid state transition type %d", e.Type)
}

// MaxSizeExceededError is returned for an oversized transition.
type MaxSizeExceededError struct {
	Size int
	Max  int
}

func (e *MaxSizeExceededError) Error() string {
	return fmt.Sprintf("state transition is %d bytes, the limit is %d", e.Size, e.Max)
}

// MarshalStateTransition encodes st as a little-endian protocol version
// followed by a canonical CBOR map that includes the transition type.
func MarshalStateTransition(st StateTransition) ([]byte, error) {
	return encodeTransition(st, true)
}

// SignableBytes encodes st without its signature.
func SignableBytes(st StateTransition) ([]byte, error) {
	return encodeTransition(st, false)
}

// StateTransitionHash is the SHA-256 hash of the full encoding of st.
func StateTransitionHash(st StateTransition) ([32]byte, error) {
	b, err := MarshalStateTransition(st)
	if err != nil {
		return [32]byte{}, err
	}
	return sha256.Sum256(b), nil
}

func encodeTransition(st StateTransition, withSignature bool) ([]byte, error) {
	b, err := MarshalCBOR(st)
	if err != nil {
		return nil, err
	}

	var fields map[string]cbor.RawMessage
	err = UnmarshalCBOR(b, &fields)
	if err != nil {
		return nil, err
	}

	fields["type"], err = MarshalCBOR(uint8(st.Type()))
	if err != nil {
		return nil, err
	}
	if !withSignature {
		delete(fields, "signature")
	}
	return encodeVersioned(st.ProtocolVersion(), fields)
}

// UnmarshalStateTransition decodes a transition produced by
// [MarshalStateTransition]. Errors are one of the typed errors of this file.
func UnmarshalStateTransition(b []byte) (StateTransition, error) {
	if len(b) > MaxStateTransitionSize {
		return nil, &MaxSizeExceededError{Size: len(b), Max: MaxStateTransitionSize}
	}

	version, body, err := decodeVersioned(b)
	if err != nil {
		return nil, err
	}
	if version < MinCompatibleVersion || version > LatestVersion {
		return nil, &UnsupportedVersionError{Version: version, Minimum: MinCompatibleVersion, Latest: LatestVersion}
	}

	var header struct {
		Type *uint64 `cbor:"type"`
	}
	err = decMode.Unmarshal(body, &header)
	if err != nil {
		return nil, &ObjectParsingError{Err: err}
	}
	if header.Type == nil {
		return nil, &InvalidTransitionTypeError{Type: ^uint64(0)}
	}
	if *header.Type > 0xFF || !StateTransitionType(*header.Type).IsKnown() {
		return nil, &InvalidTransitionTypeError{Type: *header.Type}
	}

	st, _ := NewStateTransition(StateTransitionType(*header.Type))
	err = decMode.Unmarshal(body, st)
	if err != nil {
		return nil, &ObjectParsingError{Err: err}
	}
	setProtocolVersion(st, version)
	return st, nil
}

func setProtocolVersion(st StateTransition, version uint32) {
	switch st := st.(type) {
	case *DataContractCreateTransition:
		st.Version = version
	case *DataContractUpdateTransition:
		st.Version = version
	case *DocumentsBatchTransition:
		st.Version = version
	case *IdentityCreateTransition:
		st.Version = version
	case *IdentityTopUpTransition:
		st.Version = version
	case *IdentityUpdateTransition:
		st.Version = version
	}
}
