// Copyright 2024 The Accumulate Authors
//
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file or at
// https://opensource.org/licenses/MIT.

package protocol_test

import (
	"crypto/sha256"
	"encoding/binary"
	"testing"

	btc "github.com/btcsuite/btcd/btcec"
	"github.com/stretchr/testify/require"
	. "gitlab.com/accumulatenetwork/platform/protocol"
)

func testKey(seed string) *btc.PrivateKey {
	h := sha256.Sum256([]byte(seed))
	priv, _ := btc.PrivKeyFromBytes(btc.S256(), h[:])
	return priv
}

func testBatch() *DocumentsBatchTransition {
	owner := Identifier{1}
	contract := Identifier{2}
	return &DocumentsBatchTransition{
		Version:              LatestVersion,
		Owner:                owner,
		SignaturePublicKeyID: 1,
		Transitions: []*DocumentTransition{{
			Action:         DocumentActionCreate,
			ID:             GenerateDocumentID(contract, owner, "note", []byte("entropy")),
			Type:           "note",
			DataContractID: contract,
			Entropy:        []byte("entropy"),
			Data:           map[string]any{"message": "hello"},
		}},
	}
}

func TestStateTransitionWireFormat(t *testing.T) {
	st := testBatch()
	st.Signature = []byte{1, 2, 3}

	b, err := MarshalStateTransition(st)
	require.NoError(t, err)
	require.Equal(t, LatestVersion, binary.LittleEndian.Uint32(b))

	var fields map[string]any
	require.NoError(t, UnmarshalCBOR(b[4:], &fields))
	require.Equal(t, uint64(StateTransitionTypeDocumentsBatch), fields["type"])
	require.Contains(t, fields, "signature")

	v, err := UnmarshalStateTransition(b)
	require.NoError(t, err)
	require.IsType(t, (*DocumentsBatchTransition)(nil), v)
	batch := v.(*DocumentsBatchTransition)
	require.Equal(t, st.Owner, batch.Owner)
	require.Equal(t, st.Signature, batch.Signature)
	require.Equal(t, "hello", batch.Transitions[0].Data["message"])
	require.Equal(t, st.ModifiedDataIDs(), batch.ModifiedDataIDs())

	// Encoding is canonical
	c, err := MarshalStateTransition(batch)
	require.NoError(t, err)
	require.Equal(t, b, c)
}

func TestSignableBytesOmitSignature(t *testing.T) {
	st := testBatch()
	unsigned, err := SignableBytes(st)
	require.NoError(t, err)

	st.Signature = []byte{1, 2, 3}
	signed, err := SignableBytes(st)
	require.NoError(t, err)
	require.Equal(t, unsigned, signed)

	var fields map[string]any
	require.NoError(t, UnmarshalCBOR(signed[4:], &fields))
	require.NotContains(t, fields, "signature")
	require.Contains(t, fields, "signaturePublicKeyId")
}

func TestUnmarshalStateTransitionErrors(t *testing.T) {
	t.Run("Short", func(t *testing.T) {
		_, err := UnmarshalStateTransition([]byte{1, 0})
		require.IsType(t, (*ProtocolVersionParsingError)(nil), err)
	})

	t.Run("Unsupported version", func(t *testing.T) {
		st := testBatch()
		st.Version = LatestVersion + 1
		b, err := MarshalStateTransition(st)
		require.NoError(t, err)
		_, err = UnmarshalStateTransition(b)
		require.IsType(t, (*UnsupportedVersionError)(nil), err)
	})

	t.Run("Garbage", func(t *testing.T) {
		_, err := UnmarshalStateTransition([]byte{1, 0, 0, 0, 0xff, 0xff})
		require.IsType(t, (*ObjectParsingError)(nil), err)
	})

	t.Run("Unknown type", func(t *testing.T) {
		body, err := MarshalCBOR(map[string]any{"type": 9})
		require.NoError(t, err)
		_, err = UnmarshalStateTransition(append([]byte{1, 0, 0, 0}, body...))
		require.IsType(t, (*InvalidTransitionTypeError)(nil), err)
	})

	t.Run("Too large", func(t *testing.T) {
		_, err := UnmarshalStateTransition(make([]byte, MaxStateTransitionSize+1))
		require.IsType(t, (*MaxSizeExceededError)(nil), err)
	})
}
