// Copyright 2024 The Accumulate Authors
//
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file or at
// https://opensource.org/licenses/MIT.

package protocol

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/txscript"
	"github.com/btcsuite/btcd/wire"
	"gitlab.com/accumulatenetwork/platform/pkg/errors"
)

// AssetLockProofType distinguishes instant and chain asset lock proofs.
type AssetLockProofType uint8

const (
	AssetLockProofInstant AssetLockProofType = 0
	AssetLockProofChain   AssetLockProofType = 1
)

func (t AssetLockProofType) String() string {
	switch t {
	case AssetLockProofInstant:
		return "instant"
	case AssetLockProofChain:
		return "chain"
	}
	return fmt.Sprintf("AssetLockProofType(%d)", uint8(t))
}

// OutPointSize is the size of a serialized outpoint: txid || vout.
const OutPointSize = 36

// AssetLockProof proves that funds were locked on the base chain. Instant
// proofs carry the transaction and its instant lock; chain proofs reference
// a chain-locked transaction by outpoint.
type AssetLockProof struct {
	Type AssetLockProofType `cbor:"type" validate:"lte=1"`

	InstantLock []byte `cbor:"instantLock,omitempty"`
	Transaction []byte `cbor:"transaction,omitempty"`
	OutputIndex uint32 `cbor:"outputIndex,omitempty"`

	CoreChainLockedHeight uint32 `cbor:"coreChainLockedHeight,omitempty"`
	OutPoint              []byte `cbor:"outPoint,omitempty"`
}

// GetOutPoint returns the outpoint of the funding output.
func (p *AssetLockProof) GetOutPoint() ([]byte, error) {
	switch p.Type {
	case AssetLockProofInstant:
		tx, err := DecodeTransaction(p.Transaction)
		if err != nil {
			return nil, err
		}
		return EncodeOutPoint(tx.TxHash(), p.OutputIndex), nil

	case AssetLockProofChain:
		if len(p.OutPoint) != OutPointSize {
			return nil, errors.BadRequest.WithFormat("outpoint must be %d bytes, got %d", OutPointSize, len(p.OutPoint))
		}
		return bytes.Clone(p.OutPoint), nil
	}
	return nil, errors.BadRequest.WithFormat("unknown asset lock proof type %v", p.Type)
}

// CreateIdentifier derives the ID of the identity an asset lock funds.
func (p *AssetLockProof) CreateIdentifier() (Identifier, error) {
	op, err := p.GetOutPoint()
	if err != nil {
		return Identifier{}, err
	}
	return Identifier(DoubleSHA256(op)), nil
}

// EncodeOutPoint serializes a transaction hash and output index.
func EncodeOutPoint(txid chainhash.Hash, index uint32) []byte {
	b := make([]byte, OutPointSize)
	copy(b, txid[:])
	binary.LittleEndian.PutUint32(b[32:], index)
	return b
}

// DecodeOutPoint splits a serialized outpoint.
func DecodeOutPoint(b []byte) (chainhash.Hash, uint32, error) {
	if len(b) != OutPointSize {
		return chainhash.Hash{}, 0, errors.BadRequest.WithFormat("outpoint must be %d bytes, got %d", OutPointSize, len(b))
	}
	var h chainhash.Hash
	copy(h[:], b)
	return h, binary.LittleEndian.Uint32(b[32:]), nil
}

// DecodeTransaction decodes a serialized base chain transaction.
func DecodeTransaction(b []byte) (*wire.MsgTx, error) {
	if len(b) == 0 {
		return nil, errors.BadRequest.With("transaction is empty")
	}
	tx := wire.NewMsgTx(wire.TxVersion)
	err := tx.Deserialize(bytes.NewReader(b))
	if err != nil {
		return nil, errors.EncodingError.WithFormat("decode transaction: %w", err)
	}
	return tx, nil
}

// AssetLockOutput is a funding output: the locked amount and the hash of the
// one-time key that may spend it on the platform.
type AssetLockOutput struct {
	Satoshis      uint64
	PublicKeyHash []byte
}

// Errors describing an unusable funding output.
var (
	ErrAssetLockOutputNotFound  = errors.NotFound.With("asset lock output not found")
	ErrAssetLockOutputNotReturn = errors.BadRequest.With("asset lock output is not an OP_RETURN output")
)

// AssetLockReturnSizeError is returned when the OP_RETURN payload is not a
// 20-byte key hash.
type AssetLockReturnSizeError struct {
	OutputIndex uint32
	Size        int
}

func (e *AssetLockReturnSizeError) Error() string {
	return fmt.Sprintf("asset lock output %d carries %d bytes, expected 20", e.OutputIndex, e.Size)
}

// ExtractAssetLockOutput returns output index of tx as an asset lock output.
// The output must be OP_RETURN followed by a 20-byte push.
func ExtractAssetLockOutput(tx *wire.MsgTx, index uint32) (*AssetLockOutput, error) {
	if int(index) >= len(tx.TxOut) {
		return nil, ErrAssetLockOutputNotFound
	}
	out := tx.TxOut[index]
	if len(out.PkScript) == 0 || out.PkScript[0] != txscript.OP_RETURN {
		return nil, ErrAssetLockOutputNotReturn
	}

	pushes, err := txscript.PushedData(out.PkScript)
	if err != nil || len(pushes) != 1 {
		return nil, ErrAssetLockOutputNotReturn
	}
	if len(pushes[0]) != 20 {
		return nil, &AssetLockReturnSizeError{OutputIndex: index, Size: len(pushes[0])}
	}
	if out.Value < 0 {
		return nil, ErrAssetLockOutputNotReturn
	}

	return &AssetLockOutput{
		Satoshis:      uint64(out.Value),
		PublicKeyHash: bytes.Clone(pushes[0]),
	}, nil
}

// InstantLock is a base chain instant send lock.
type InstantLock struct {
	Inputs    []wire.OutPoint
	TxID      chainhash.Hash
	Signature [96]byte
}

// DecodeInstantLock decodes a serialized instant lock: a compact-size input
// count, the locked outpoints, the transaction hash and a BLS signature.
func DecodeInstantLock(b []byte) (*InstantLock, error) {
	r := bytes.NewReader(b)
	n, err := wire.ReadVarInt(r, 0)
	if err != nil {
		return nil, errors.EncodingError.WithFormat("decode instant lock inputs: %w", err)
	}
	if n == 0 || n > uint64(len(b)/OutPointSize) {
		return nil, errors.EncodingError.WithFormat("invalid instant lock input count %d", n)
	}

	lock := new(InstantLock)
	lock.Inputs = make([]wire.OutPoint, n)
	for i := range lock.Inputs {
		var op [OutPointSize]byte
		if _, err := io.ReadFull(r, op[:]); err != nil {
			return nil, errors.EncodingError.WithFormat("decode instant lock input: %w", err)
		}
		copy(lock.Inputs[i].Hash[:], op[:32])
		lock.Inputs[i].Index = binary.LittleEndian.Uint32(op[32:])
	}

	if _, err := io.ReadFull(r, lock.TxID[:]); err != nil {
		return nil, errors.EncodingError.With("instant lock is truncated")
	}
	if _, err := io.ReadFull(r, lock.Signature[:]); err != nil {
		return nil, errors.EncodingError.With("instant lock is truncated")
	}
	if r.Len() != 0 {
		return nil, errors.EncodingError.With("instant lock has trailing data")
	}
	return lock, nil
}

// Encode serializes the instant lock.
func (l *InstantLock) Encode() []byte {
	buf := new(bytes.Buffer)
	_ = wire.WriteVarInt(buf, 0, uint64(len(l.Inputs)))
	for _, in := range l.Inputs {
		buf.Write(EncodeOutPoint(in.Hash, in.Index))
	}
	buf.Write(l.TxID[:])
	buf.Write(l.Signature[:])
	return buf.Bytes()
}

// RequestID is the hash quorums sign for this lock.
func (l *InstantLock) RequestID() chainhash.Hash {
	buf := new(bytes.Buffer)
	_ = wire.WriteVarString(buf, 0, "islock")
	_ = wire.WriteVarInt(buf, 0, uint64(len(l.Inputs)))
	for _, in := range l.Inputs {
		buf.Write(EncodeOutPoint(in.Hash, in.Index))
	}
	return chainhash.DoubleHashH(buf.Bytes())
}
