// Copyright 2024 The Accumulate Authors
//
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file or at
// https://opensource.org/licenses/MIT.

package protocol

import "strings"

// InitialRevision is the revision of a newly created document.
const InitialRevision = 1

// System properties of a document.
const (
	PropertyID        = "$id"
	PropertyOwnerID   = "$ownerId"
	PropertyRevision  = "$revision"
	PropertyCreatedAt = "$createdAt"
	PropertyUpdatedAt = "$updatedAt"
)

// Document is a schema-conformant record owned by an identity.
type Document struct {
	ProtocolVersion uint32         `cbor:"$protocolVersion"`
	ID              Identifier     `cbor:"$id"`
	Type            string         `cbor:"$type"`
	DataContractID  Identifier     `cbor:"$dataContractId"`
	OwnerID         Identifier     `cbor:"$ownerId"`
	Revision        uint64         `cbor:"$revision"`
	CreatedAt       *uint64        `cbor:"$createdAt,omitempty"`
	UpdatedAt       *uint64        `cbor:"$updatedAt,omitempty"`
	Data            map[string]any `cbor:"data"`

	// Entropy is only known to the creating transition.
	Entropy []byte `cbor:"-"`
}

// GenerateDocumentID derives a document ID.
func GenerateDocumentID(contractID, ownerID Identifier, typ string, entropy []byte) Identifier {
	return Identifier(DoubleSHA256(contractID[:], ownerID[:], []byte(typ), entropy))
}

func (d *Document) Copy() *Document {
	u := deepCopy(d)
	u.Entropy = append([]byte(nil), d.Entropy...)
	return u
}

// Get returns a system property or a (dot separated) data property.
func (d *Document) Get(path string) (any, bool) {
	switch path {
	case PropertyID:
		return d.ID[:], true
	case PropertyOwnerID:
		return d.OwnerID[:], true
	case PropertyRevision:
		return d.Revision, true
	case PropertyCreatedAt:
		if d.CreatedAt == nil {
			return nil, false
		}
		return *d.CreatedAt, true
	case PropertyUpdatedAt:
		if d.UpdatedAt == nil {
			return nil, false
		}
		return *d.UpdatedAt, true
	}

	var v any = d.Data
	for _, part := range strings.Split(path, ".") {
		m, ok := v.(map[string]any)
		if !ok {
			return nil, false
		}
		v, ok = m[part]
		if !ok {
			return nil, false
		}
	}
	return v, true
}

func (d *Document) MarshalBinary() ([]byte, error) {
	type fields Document
	return MarshalCBOR((*fields)(d))
}

func (d *Document) UnmarshalBinary(b []byte) error {
	type fields Document
	return UnmarshalCBOR(b, (*fields)(d))
}
