// Copyright 2024 The Accumulate Authors
//
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file or at
// https://opensource.org/licenses/MIT.

package protocol_test

import (
	"testing"

	"github.com/stretchr/testify/require"
	. "gitlab.com/accumulatenetwork/platform/protocol"
)

func sampleContract() *DataContract {
	return &DataContract{
		ProtocolVersion: 1,
		ID:              GenerateDataContractID(Identifier{1}, []byte("entropy")),
		Schema:          DataContractMetaSchema,
		OwnerID:         Identifier{1},
		Version:         1,
		Documents: map[string]DocumentSchema{
			"note": {
				"type": "object",
				"properties": map[string]any{
					"message": map[string]any{"type": "string"},
				},
			},
		},
	}
}

func TestIdentityBinary(t *testing.T) {
	disabled := uint64(1000)
	identity := &Identity{
		ProtocolVersion: 1,
		ID:              Identifier{2},
		PublicKeys: []*IdentityPublicKey{
			{ID: 0, Type: KeyTypeECDSAHash160, Data: make([]byte, 20)},
			{ID: 1, Type: KeyTypeECDSAHash160, Data: make([]byte, 20), DisabledAt: &disabled},
		},
		Balance:  42,
		Revision: 3,
	}

	b, err := identity.MarshalBinary()
	require.NoError(t, err)

	decoded := new(Identity)
	require.NoError(t, decoded.UnmarshalBinary(b))
	require.Equal(t, identity, decoded)
}

func TestDataContractBinary(t *testing.T) {
	contract := sampleContract()

	b, err := contract.MarshalBinary()
	require.NoError(t, err)

	decoded := new(DataContract)
	require.NoError(t, decoded.UnmarshalBinary(b))
	require.Equal(t, contract, decoded)

	// Copying goes through the same encoding
	require.Equal(t, contract, contract.Copy())
}

func TestDocumentBinary(t *testing.T) {
	created := uint64(1700000000000)
	doc := &Document{
		ProtocolVersion: 1,
		ID:              Identifier{3},
		Type:            "note",
		DataContractID:  Identifier{4},
		OwnerID:         Identifier{5},
		Revision:        InitialRevision,
		CreatedAt:       &created,
		Data:            map[string]any{"message": "hello"},
	}

	b, err := doc.MarshalBinary()
	require.NoError(t, err)

	decoded := new(Document)
	require.NoError(t, decoded.UnmarshalBinary(b))
	require.Equal(t, doc, decoded)
}

func TestEmbeddedContractEncoding(t *testing.T) {
	type wrapper struct {
		Contract *DataContract `cbor:"contract"`
	}
	w := wrapper{Contract: sampleContract()}

	b, err := MarshalCBOR(&w)
	require.NoError(t, err)

	var decoded wrapper
	require.NoError(t, UnmarshalCBOR(b, &decoded))
	require.Equal(t, w.Contract, decoded.Contract)
}
