// Copyright 2024 The Accumulate Authors
//
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file or at
// https://opensource.org/licenses/MIT.

package protocol

// Identity is an on-chain account holding public keys and a credit balance.
type Identity struct {
	ProtocolVersion uint32               `cbor:"protocolVersion"`
	ID              Identifier           `cbor:"id"`
	PublicKeys      []*IdentityPublicKey `cbor:"publicKeys"`
	Balance         uint64               `cbor:"balance"`
	Revision        uint64               `cbor:"revision"`
}

func (i *Identity) Copy() *Identity {
	u := *i
	u.PublicKeys = make([]*IdentityPublicKey, len(i.PublicKeys))
	for j, k := range i.PublicKeys {
		u.PublicKeys[j] = k.Copy()
	}
	return &u
}

// PublicKey returns the key with the given ID, or nil.
func (i *Identity) PublicKey(id uint32) *IdentityPublicKey {
	for _, k := range i.PublicKeys {
		if k.ID == id {
			return k
		}
	}
	return nil
}

// MaxPublicKeyID returns the largest key ID, or -1 if there are no keys.
func (i *Identity) MaxPublicKeyID() int64 {
	max := int64(-1)
	for _, k := range i.PublicKeys {
		if int64(k.ID) > max {
			max = int64(k.ID)
		}
	}
	return max
}

func (i *Identity) IncreaseBalance(amount uint64) {
	i.Balance += amount
}

// ReduceBalance charges up to amount and returns what was charged. The
// balance never goes below zero.
func (i *Identity) ReduceBalance(amount uint64) uint64 {
	if amount > i.Balance {
		amount = i.Balance
	}
	i.Balance -= amount
	return amount
}

// MarshalBinary encodes the identity as canonical CBOR. The codec hands any
// BinaryMarshaler back to MarshalBinary, so the fields go through a type
// without methods.
func (i *Identity) MarshalBinary() ([]byte, error) {
	type fields Identity
	return MarshalCBOR((*fields)(i))
}

func (i *Identity) UnmarshalBinary(b []byte) error {
	type fields Identity
	return UnmarshalCBOR(b, (*fields)(i))
}
