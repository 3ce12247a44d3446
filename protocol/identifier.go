// Copyright 2024 The Accumulate Authors
//
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file or at
// https://opensource.org/licenses/MIT.

package protocol

import (
	"bytes"
	"crypto/sha256"
	"encoding/json"

	"github.com/mr-tron/base58"
	"gitlab.com/accumulatenetwork/platform/pkg/errors"
)

// Identifier is a 32-byte identifier of an identity, data contract, or
// document.
type Identifier [32]byte

// IdentifierFromBytes returns an identifier if b is exactly 32 bytes.
func IdentifierFromBytes(b []byte) (Identifier, error) {
	var id Identifier
	if len(b) != len(id) {
		return id, errors.BadRequest.WithFormat("identifier must be 32 bytes, got %d", len(b))
	}
	copy(id[:], b)
	return id, nil
}

// ParseIdentifier parses the base58 form of an identifier.
func ParseIdentifier(s string) (Identifier, error) {
	b, err := base58.Decode(s)
	if err != nil {
		return Identifier{}, errors.BadRequest.WithFormat("invalid identifier %q: %w", s, err)
	}
	return IdentifierFromBytes(b)
}

func (id Identifier) Bytes() []byte { return bytes.Clone(id[:]) }

// String returns the base58 form of the identifier.
func (id Identifier) String() string { return base58.Encode(id[:]) }

func (id Identifier) IsZero() bool { return id == Identifier{} }

func (id Identifier) Compare(o Identifier) int {
	return bytes.Compare(id[:], o[:])
}

func (id Identifier) MarshalCBOR() ([]byte, error) {
	return encMode.Marshal(id[:])
}

func (id *Identifier) UnmarshalCBOR(b []byte) error {
	var v []byte
	err := decMode.Unmarshal(b, &v)
	if err != nil {
		return err
	}
	*id, err = IdentifierFromBytes(v)
	return err
}

func (id Identifier) MarshalJSON() ([]byte, error) {
	return json.Marshal(id.String())
}

func (id *Identifier) UnmarshalJSON(b []byte) error {
	var s string
	err := json.Unmarshal(b, &s)
	if err != nil {
		return err
	}
	*id, err = ParseIdentifier(s)
	return err
}

// DoubleSHA256 returns sha256(sha256(parts...)).
func DoubleSHA256(parts ...[]byte) [32]byte {
	h := sha256.New()
	for _, p := range parts {
		h.Write(p)
	}
	return sha256.Sum256(h.Sum(nil))
}
