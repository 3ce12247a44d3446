// Copyright 2024 The Accumulate Authors
//
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file or at
// https://opensource.org/licenses/MIT.

package protocol

import (
	"fmt"

	"github.com/btcsuite/btcutil"
)

// KeyType is the algorithm of an identity public key.
type KeyType uint8

const (
	KeyTypeECDSASecp256k1 KeyType = 0
	KeyTypeBLS12381       KeyType = 1
	KeyTypeECDSAHash160   KeyType = 2
)

func (t KeyType) String() string {
	switch t {
	case KeyTypeECDSASecp256k1:
		return "ECDSA_SECP256K1"
	case KeyTypeBLS12381:
		return "BLS12_381"
	case KeyTypeECDSAHash160:
		return "ECDSA_HASH160"
	}
	return fmt.Sprintf("KeyType(%d)", uint8(t))
}

// DataLength returns the required length of key data for the type, or zero
// for unknown types.
func (t KeyType) DataLength() int {
	switch t {
	case KeyTypeECDSASecp256k1:
		return 33
	case KeyTypeBLS12381:
		return 48
	case KeyTypeECDSAHash160:
		return 20
	}
	return 0
}

// KeyPurpose is what an identity public key may be used for.
type KeyPurpose uint8

const (
	KeyPurposeAuthentication KeyPurpose = 0
	KeyPurposeEncryption     KeyPurpose = 1
	KeyPurposeDecryption     KeyPurpose = 2
)

func (p KeyPurpose) String() string {
	switch p {
	case KeyPurposeAuthentication:
		return "AUTHENTICATION"
	case KeyPurposeEncryption:
		return "ENCRYPTION"
	case KeyPurposeDecryption:
		return "DECRYPTION"
	}
	return fmt.Sprintf("KeyPurpose(%d)", uint8(p))
}

// SecurityLevel of an identity public key. Lower values are stronger.
type SecurityLevel uint8

const (
	SecurityLevelMaster   SecurityLevel = 0
	SecurityLevelCritical SecurityLevel = 1
	SecurityLevelHigh     SecurityLevel = 2
	SecurityLevelMedium   SecurityLevel = 3
)

func (l SecurityLevel) String() string {
	switch l {
	case SecurityLevelMaster:
		return "MASTER"
	case SecurityLevelCritical:
		return "CRITICAL"
	case SecurityLevelHigh:
		return "HIGH"
	case SecurityLevelMedium:
		return "MEDIUM"
	}
	return fmt.Sprintf("SecurityLevel(%d)", uint8(l))
}

// Satisfies reports whether a key at level l can sign something that
// requires level required.
func (l SecurityLevel) Satisfies(required SecurityLevel) bool {
	return l <= required
}

// IdentityPublicKey is a public key of an identity.
type IdentityPublicKey struct {
	ID            uint32        `cbor:"id"`
	Type          KeyType       `cbor:"type" validate:"lte=2"`
	Purpose       KeyPurpose    `cbor:"purpose" validate:"lte=2"`
	SecurityLevel SecurityLevel `cbor:"securityLevel" validate:"lte=3"`
	Data          []byte        `cbor:"data" validate:"required"`
	ReadOnly      bool          `cbor:"readOnly"`

	// DisabledAt is the time the key was disabled, in unix milliseconds.
	DisabledAt *uint64 `cbor:"disabledAt,omitempty"`
}

func (k *IdentityPublicKey) IsDisabled() bool { return k.DisabledAt != nil }

func (k *IdentityPublicKey) Copy() *IdentityPublicKey {
	u := *k
	u.Data = append([]byte(nil), k.Data...)
	if k.DisabledAt != nil {
		v := *k.DisabledAt
		u.DisabledAt = &v
	}
	return &u
}

// Hash returns the 20-byte hash used to index the key: the key data itself
// for ECDSA_HASH160 keys, and hash160 of the data otherwise.
func (k *IdentityPublicKey) Hash() []byte {
	if k.Type == KeyTypeECDSAHash160 {
		return append([]byte(nil), k.Data...)
	}
	return btcutil.Hash160(k.Data)
}
