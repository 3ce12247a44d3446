// Copyright 2024 The Accumulate Authors
//
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file or at
// https://opensource.org/licenses/MIT.

package testing

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"

	"github.com/btcsuite/btcd/btcec"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/txscript"
	"github.com/btcsuite/btcd/wire"
	"github.com/btcsuite/btcutil"
	"gitlab.com/accumulatenetwork/platform/internal/core/corerpc"
	"gitlab.com/accumulatenetwork/platform/protocol"
)

// AssetLock is a base chain transaction locking funds for the one-time key.
type AssetLock struct {
	Key *btcec.PrivateKey
	Tx  *wire.MsgTx
	Raw []byte
}

// NewAssetLock builds a transaction locking satoshis in output 0.
func NewAssetLock(seed string, satoshis int64) *AssetLock {
	key := GenerateKey(seed, "asset lock")
	script, err := txscript.NewScriptBuilder().
		AddOp(txscript.OP_RETURN).
		AddData(btcutil.Hash160(key.PubKey().SerializeCompressed())).
		Script()
	if err != nil {
		panic(err)
	}

	prev := chainhash.Hash(sha256.Sum256([]byte(seed)))
	tx := wire.NewMsgTx(wire.TxVersion)
	tx.AddTxIn(wire.NewTxIn(wire.NewOutPoint(&prev, 0), nil, nil))
	tx.AddTxOut(wire.NewTxOut(satoshis, script))

	buf := new(bytes.Buffer)
	err = tx.Serialize(buf)
	if err != nil {
		panic(err)
	}
	return &AssetLock{Key: key, Tx: tx, Raw: buf.Bytes()}
}

// InstantProof returns an instant proof for the lock.
func (a *AssetLock) InstantProof() *protocol.AssetLockProof {
	lock := &protocol.InstantLock{TxID: a.Tx.TxHash()}
	for _, in := range a.Tx.TxIn {
		lock.Inputs = append(lock.Inputs, in.PreviousOutPoint)
	}
	return &protocol.AssetLockProof{
		Type:        protocol.AssetLockProofInstant,
		InstantLock: lock.Encode(),
		Transaction: a.Raw,
	}
}

// ChainProof returns a chain proof for the lock.
func (a *AssetLock) ChainProof(height uint32) *protocol.AssetLockProof {
	return &protocol.AssetLockProof{
		Type:                  protocol.AssetLockProofChain,
		CoreChainLockedHeight: height,
		OutPoint:              protocol.EncodeOutPoint(a.Tx.TxHash(), 0),
	}
}

// CoreTransaction returns the lock as Core reports it.
func (a *AssetLock) CoreTransaction(height int64) *corerpc.Transaction {
	return &corerpc.Transaction{
		TxID:      a.Tx.TxHash().String(),
		Hex:       hex.EncodeToString(a.Raw),
		Height:    height,
		ChainLock: true,
	}
}

// Sign signs st with the one-time key.
func (a *AssetLock) Sign(st protocol.StateTransition) {
	err := protocol.Sign(st, a.Key)
	if err != nil {
		panic(err)
	}
}

// NoteContract returns a contract with a "note" document type. Notes have
// a unique index on name and a non-unique index on score.
func NoteContract(owner protocol.Identifier, entropy string) (*protocol.DataContract, []byte) {
	e := sha256.Sum256([]byte(entropy))
	return &protocol.DataContract{
		ProtocolVersion: protocol.LatestVersion,
		ID:              protocol.GenerateDataContractID(owner, e[:]),
		Schema:          protocol.DataContractMetaSchema,
		OwnerID:         owner,
		Version:         1,
		Documents: map[string]protocol.DocumentSchema{
			"note": {
				"type": "object",
				"properties": map[string]any{
					"name":  map[string]any{"type": "string", "maxLength": uint64(63)},
					"score": map[string]any{"type": "integer"},
				},
				"required":             []any{"name"},
				"additionalProperties": false,
				"indices": []any{
					map[string]any{
						"name":       "byName",
						"unique":     true,
						"properties": []any{map[string]any{"name": "asc"}},
					},
					map[string]any{
						"name":       "byScore",
						"properties": []any{map[string]any{"score": "asc"}},
					},
				},
			},
		},
	}, e[:]
}
