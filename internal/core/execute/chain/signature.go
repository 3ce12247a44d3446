// Copyright 2024 The Accumulate Authors
//
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file or at
// https://opensource.org/licenses/MIT.

package chain

import (
	"context"

	"gitlab.com/accumulatenetwork/platform/internal/core/validation"
	"gitlab.com/accumulatenetwork/platform/pkg/errors"
	"gitlab.com/accumulatenetwork/platform/protocol"
	"gitlab.com/accumulatenetwork/platform/protocol/consensus"
)

// validateIdentitySignature verifies that st is signed by a key of its
// owner that meets the required security level. On success the result
// carries the owner identity.
func validateIdentitySignature(ctx context.Context, env *Env, st protocol.IdentitySignedTransition, required protocol.SecurityLevel) (*validation.Result, error) {
	exec := st.ExecutionContext()
	result := new(validation.Result)

	identity, err := env.Repository.FetchIdentity(ctx, st.OwnerID(), exec)
	if err != nil {
		return nil, err
	}
	if identity == nil {
		result.AddError(&consensus.IdentityNotFoundError{IdentityID: st.OwnerID()})
		return result, nil
	}
	result.Data = identity

	key := identity.PublicKey(st.SignatureKeyID())
	if key == nil {
		result.AddError(&consensus.MissingPublicKeyError{PublicKeyID: st.SignatureKeyID()})
		return result, nil
	}

	if key.Type != protocol.KeyTypeECDSASecp256k1 && key.Type != protocol.KeyTypeECDSAHash160 {
		result.AddError(&consensus.InvalidIdentityPublicKeyTypeError{PublicKeyType: key.Type})
		return result, nil
	}

	// Charge for the verification even if it fails
	exec.AddOperation(protocol.SignatureVerificationOperation{KeyType: key.Type})

	err = protocol.VerifyByPublicKey(st, key, required)
	if err == nil {
		return result, nil
	}
	if cerr, ok := consensus.FromVerifyError(err); ok {
		result.AddError(cerr)
		return result, nil
	}
	return nil, errors.UnknownError.WithFormat("verify signature: %w", err)
}

// ValidateFee checks that the owner of st can pay for the operations
// recorded so far.
func ValidateFee(ctx context.Context, env *Env, st protocol.StateTransition) (*validation.Result, error) {
	exec := st.ExecutionContext()
	result := new(validation.Result)

	var balance uint64
	switch st := st.(type) {
	case *protocol.IdentityCreateTransition:
		credits, err := assetLockCredits(ctx, env, st)
		if err != nil {
			return nil, err
		}
		balance = credits

	case *protocol.IdentityTopUpTransition:
		credits, err := assetLockCredits(ctx, env, st)
		if err != nil {
			return nil, err
		}
		identity, err := env.Repository.FetchIdentity(ctx, st.IdentityID, nil)
		if err != nil {
			return nil, err
		}
		if identity != nil {
			balance = identity.Balance
		}
		balance += credits

	default:
		identity, err := env.Repository.FetchIdentity(ctx, st.OwnerID(), nil)
		if err != nil {
			return nil, err
		}
		if identity != nil {
			balance = identity.Balance
		}
	}

	fee := exec.Fee()
	if fee > balance {
		result.AddError(&consensus.BalanceIsNotEnoughError{Balance: balance, Fee: fee})
	}
	return result, nil
}
