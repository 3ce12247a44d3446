// Copyright 2024 The Accumulate Authors
//
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file or at
// https://opensource.org/licenses/MIT.

package chain

import (
	"context"
	"encoding/hex"
	"fmt"

	"gitlab.com/accumulatenetwork/platform/internal/core/validation"
	"gitlab.com/accumulatenetwork/platform/pkg/errors"
	"gitlab.com/accumulatenetwork/platform/protocol"
	"gitlab.com/accumulatenetwork/platform/protocol/consensus"
)

// validateAssetLockProofStructure checks a proof without reading state.
func validateAssetLockProofStructure(proof *protocol.AssetLockProof) []consensus.Error {
	switch proof.Type {
	case protocol.AssetLockProofInstant:
		lock, err := protocol.DecodeInstantLock(proof.InstantLock)
		if err != nil {
			return []consensus.Error{&consensus.InvalidAssetLockProofError{Reason: err.Error()}}
		}
		tx, err := protocol.DecodeTransaction(proof.Transaction)
		if err != nil {
			return []consensus.Error{&consensus.InvalidAssetLockProofError{Reason: err.Error()}}
		}
		if lock.TxID != tx.TxHash() {
			return []consensus.Error{&consensus.InvalidAssetLockProofError{Reason: "instant lock is for a different transaction"}}
		}
		_, cerr := extractOutput(tx.TxHash().String(), proof.Transaction, proof.OutputIndex)
		if cerr != nil {
			return []consensus.Error{cerr}
		}
		return nil

	case protocol.AssetLockProofChain:
		if len(proof.OutPoint) != protocol.OutPointSize {
			return []consensus.Error{&consensus.InvalidAssetLockProofError{
				Reason: fmt.Sprintf("outpoint must be %d bytes", protocol.OutPointSize),
			}}
		}
		if proof.CoreChainLockedHeight == 0 {
			return []consensus.Error{&consensus.InvalidAssetLockProofError{Reason: "core chain locked height must be set"}}
		}
		return nil
	}
	return []consensus.Error{&consensus.InvalidAssetLockProofError{Reason: fmt.Sprintf("unknown proof type %v", proof.Type)}}
}

// extractOutput decodes a funding transaction and returns its asset lock
// output.
func extractOutput(txid string, raw []byte, index uint32) (*protocol.AssetLockOutput, consensus.Error) {
	tx, err := protocol.DecodeTransaction(raw)
	if err != nil {
		return nil, &consensus.InvalidAssetLockProofError{Reason: fmt.Sprintf("transaction %s: %v", txid, err)}
	}
	out, err := protocol.ExtractAssetLockOutput(tx, index)
	var sizeErr *protocol.AssetLockReturnSizeError
	switch {
	case err == nil:
		return out, nil
	case errors.Is(err, protocol.ErrAssetLockOutputNotFound):
		return nil, &consensus.IdentityAssetLockTransactionOutputNotFoundError{OutputIndex: index}
	case errors.As(err, &sizeErr):
		return nil, &consensus.InvalidAssetLockTransactionOutputReturnSizeError{OutputIndex: index}
	default:
		return nil, &consensus.InvalidAssetLockProofError{Reason: err.Error()}
	}
}

// fetchAssetLockOutput resolves the funding output of a proof. Instant
// proofs carry the transaction. Chain proofs are resolved through Core.
func fetchAssetLockOutput(ctx context.Context, env *Env, proof *protocol.AssetLockProof, exec *protocol.ExecutionContext) (*protocol.AssetLockOutput, consensus.Error, error) {
	if proof.Type == protocol.AssetLockProofInstant {
		out, cerr := extractOutput("", proof.Transaction, proof.OutputIndex)
		return out, cerr, nil
	}

	txid, index, err := protocol.DecodeOutPoint(proof.OutPoint)
	if err != nil {
		return nil, &consensus.InvalidAssetLockProofError{Reason: err.Error()}, nil
	}
	tx, err := env.Repository.FetchTransaction(ctx, txid.String(), exec)
	if err != nil {
		return nil, nil, err
	}
	if tx == nil {
		return nil, &consensus.IdentityAssetLockTransactionIsNotFoundError{TransactionID: txid[:]}, nil
	}
	raw, err := hex.DecodeString(tx.Hex)
	if err != nil {
		return nil, &consensus.InvalidAssetLockProofError{Reason: fmt.Sprintf("transaction %s is not hex", txid)}, nil
	}
	out, cerr := extractOutput(txid.String(), raw, index)
	return out, cerr, nil
}

// validateAssetLockSignature verifies that a transition is signed by the
// one-time key locked in its funding output.
func validateAssetLockSignature(ctx context.Context, env *Env, st protocol.AssetLockTransition) (*validation.Result, error) {
	exec := st.ExecutionContext()
	result := new(validation.Result)

	out, cerr, err := fetchAssetLockOutput(ctx, env, st.LockProof(), exec)
	if err != nil {
		return nil, err
	}
	if cerr != nil {
		// An unresolvable output leaves nothing to verify against
		result.AddError(&consensus.IdentityAssetLockTransactionOutputNotFoundError{OutputIndex: outputIndex(st.LockProof())})
		return result, nil
	}
	result.Data = out

	exec.AddOperation(protocol.SignatureVerificationOperation{KeyType: protocol.KeyTypeECDSAHash160})
	err = protocol.VerifyByPublicKeyHash(st, out.PublicKeyHash)
	if err == nil {
		return result, nil
	}
	if cerr, ok := consensus.FromVerifyError(err); ok {
		result.AddError(cerr)
		return result, nil
	}
	return nil, errors.UnknownError.WithFormat("verify asset lock signature: %w", err)
}

func outputIndex(proof *protocol.AssetLockProof) uint32 {
	if proof.Type == protocol.AssetLockProofInstant {
		return proof.OutputIndex
	}
	_, index, _ := protocol.DecodeOutPoint(proof.OutPoint)
	return index
}

// validateAssetLockState checks that the outpoint of a proof is unused and
// that the proof is valid for the current chain.
func validateAssetLockState(ctx context.Context, env *Env, proof *protocol.AssetLockProof, exec *protocol.ExecutionContext) (*validation.Result, error) {
	result := new(validation.Result)

	outPoint, err := proof.GetOutPoint()
	if err != nil {
		result.AddError(&consensus.InvalidAssetLockProofError{Reason: err.Error()})
		return result, nil
	}
	used, err := env.Repository.IsAssetLockTransactionOutPointAlreadyUsed(ctx, outPoint, exec)
	if err != nil {
		return nil, err
	}
	if used {
		txid, index, _ := protocol.DecodeOutPoint(outPoint)
		result.AddError(&consensus.IdentityAssetLockTransactionOutPointAlreadyExistsError{
			TransactionID: txid[:],
			OutputIndex:   index,
		})
		return result, nil
	}

	switch proof.Type {
	case protocol.AssetLockProofInstant:
		lock, err := protocol.DecodeInstantLock(proof.InstantLock)
		if err != nil {
			result.AddError(&consensus.InvalidAssetLockProofError{Reason: err.Error()})
			return result, nil
		}
		ok, err := env.Repository.VerifyInstantLock(ctx, lock, exec)
		if err != nil {
			return nil, err
		}
		if !ok {
			result.AddError(&consensus.InvalidInstantAssetLockProofSignatureError{})
		}

	case protocol.AssetLockProofChain:
		header, err := env.header(ctx)
		if err != nil {
			return nil, err
		}
		var current uint32
		if header != nil {
			current = header.CoreChainLockedHeight
		}
		if proof.CoreChainLockedHeight > current {
			result.AddError(&consensus.InvalidAssetLockProofCoreChainHeightError{
				ProofCoreChainLockedHeight:   proof.CoreChainLockedHeight,
				CurrentCoreChainLockedHeight: current,
			})
			return result, nil
		}

		txid, _, _ := protocol.DecodeOutPoint(proof.OutPoint)
		tx, err := env.Repository.FetchTransaction(ctx, txid.String(), exec)
		if err != nil {
			return nil, err
		}
		if tx == nil {
			result.AddError(&consensus.IdentityAssetLockTransactionIsNotFoundError{TransactionID: txid[:]})
		}
	}
	return result, nil
}

// assetLockCredits returns the credits an asset lock funds.
func assetLockCredits(ctx context.Context, env *Env, st protocol.AssetLockTransition) (uint64, error) {
	out, cerr, err := fetchAssetLockOutput(ctx, env, st.LockProof(), st.ExecutionContext())
	if err != nil {
		return 0, err
	}
	if cerr != nil {
		return 0, errors.InternalError.WithFormat("asset lock output: %v", cerr)
	}
	return protocol.ConvertSatoshiToCredits(out.Satoshis), nil
}
