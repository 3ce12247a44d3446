// Copyright 2024 The Accumulate Authors
//
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file or at
// https://opensource.org/licenses/MIT.

package protocol_test

import (
	"bytes"
	"testing"
	"time"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/txscript"
	"github.com/btcsuite/btcd/wire"
	"github.com/btcsuite/btcutil"
	"github.com/stretchr/testify/require"
	. "gitlab.com/accumulatenetwork/platform/protocol"
)

func assetLockTx(t *testing.T, payload []byte, satoshis int64) (*wire.MsgTx, []byte) {
	t.Helper()
	script, err := txscript.NewScriptBuilder().AddOp(txscript.OP_RETURN).AddData(payload).Script()
	require.NoError(t, err)

	tx := wire.NewMsgTx(wire.TxVersion)
	tx.AddTxIn(wire.NewTxIn(wire.NewOutPoint(&chainhash.Hash{1}, 0), nil, nil))
	tx.AddTxOut(wire.NewTxOut(satoshis, script))

	buf := new(bytes.Buffer)
	require.NoError(t, tx.Serialize(buf))
	return tx, buf.Bytes()
}

func TestInstantAssetLockProof(t *testing.T) {
	priv := testKey("one-time")
	hash := btcutil.Hash160(priv.PubKey().SerializeCompressed())
	tx, raw := assetLockTx(t, hash, 5)

	proof := &AssetLockProof{Type: AssetLockProofInstant, Transaction: raw}
	op, err := proof.GetOutPoint()
	require.NoError(t, err)
	require.Equal(t, EncodeOutPoint(tx.TxHash(), 0), op)

	txid, index, err := DecodeOutPoint(op)
	require.NoError(t, err)
	require.Equal(t, tx.TxHash(), txid)
	require.Zero(t, index)

	id, err := proof.CreateIdentifier()
	require.NoError(t, err)
	require.Equal(t, Identifier(DoubleSHA256(op)), id)

	decoded, err := DecodeTransaction(raw)
	require.NoError(t, err)
	out, err := ExtractAssetLockOutput(decoded, 0)
	require.NoError(t, err)
	require.Equal(t, uint64(5), out.Satoshis)
	require.Equal(t, hash, out.PublicKeyHash)
	require.Equal(t, uint64(5000), ConvertSatoshiToCredits(out.Satoshis))
}

func TestAssetLockOutputErrors(t *testing.T) {
	tx, _ := assetLockTx(t, make([]byte, 19), 5)
	_, err := ExtractAssetLockOutput(tx, 0)
	require.IsType(t, (*AssetLockReturnSizeError)(nil), err)

	_, err = ExtractAssetLockOutput(tx, 1)
	require.ErrorIs(t, err, ErrAssetLockOutputNotFound)

	tx.TxOut[0].PkScript = []byte{txscript.OP_TRUE}
	_, err = ExtractAssetLockOutput(tx, 0)
	require.Error(t, err)

	proof := &AssetLockProof{Type: AssetLockProofChain, OutPoint: []byte{1, 2, 3}}
	_, err = proof.GetOutPoint()
	require.Error(t, err)
}

func TestInstantLockEncoding(t *testing.T) {
	lock := &InstantLock{
		Inputs: []wire.OutPoint{
			{Hash: chainhash.Hash{1}, Index: 1},
			{Hash: chainhash.Hash{2}, Index: 7},
		},
		TxID: chainhash.Hash{3},
	}
	lock.Signature[0] = 9

	decoded, err := DecodeInstantLock(lock.Encode())
	require.NoError(t, err)
	require.Equal(t, lock, decoded)
	require.Equal(t, lock.RequestID(), decoded.RequestID())

	_, err = DecodeInstantLock(lock.Encode()[:50])
	require.Error(t, err)
}

func TestBlockTimeWindowIsInclusive(t *testing.T) {
	now := time.UnixMilli(1_700_000_000_000)

	ok, start, end := IsWithinBlockTimeWindow(uint64(now.UnixMilli()), now)
	require.True(t, ok)
	require.Equal(t, uint64(now.Add(-5*time.Minute).UnixMilli()), start)
	require.Equal(t, uint64(now.Add(5*time.Minute).UnixMilli()), end)

	ok, _, _ = IsWithinBlockTimeWindow(start, now)
	require.True(t, ok)
	ok, _, _ = IsWithinBlockTimeWindow(end, now)
	require.True(t, ok)

	ok, _, _ = IsWithinBlockTimeWindow(uint64(now.Add(6*time.Minute).UnixMilli()), now)
	require.False(t, ok)
	ok, _, _ = IsWithinBlockTimeWindow(uint64(now.Add(-6*time.Minute).UnixMilli()), now)
	require.False(t, ok)
}
