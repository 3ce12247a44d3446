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

func cast[T protocol.StateTransition](st protocol.StateTransition) (T, error) {
	v, ok := st.(T)
	if !ok {
		return v, errors.InternalError.WithFormat("invalid transition: want %T, got %T", v, st)
	}
	return v, nil
}

func mustCast[T protocol.StateTransition](st protocol.StateTransition) T {
	v, err := cast[T](st)
	if err != nil {
		panic(err)
	}
	return v
}

func keyHashes(keys []*protocol.IdentityPublicKey) [][]byte {
	hashes := make([][]byte, len(keys))
	for i, k := range keys {
		hashes[i] = k.Hash()
	}
	return hashes
}

type IdentityCreate struct{}

func (IdentityCreate) Type() protocol.StateTransitionType {
	return protocol.StateTransitionTypeIdentityCreate
}

func (IdentityCreate) ValidateBasic(st protocol.StateTransition) *validation.Result {
	tx := mustCast[*protocol.IdentityCreateTransition](st)
	result := validation.New(validateStruct(tx)...)
	if !result.IsValid() {
		return result
	}

	result.AddError(validatePublicKeys(tx.PublicKeys, true)...)
	result.AddError(requireMasterKey(tx.PublicKeys))
	result.AddError(validateAssetLockProofStructure(tx.AssetLockProof)...)
	return result
}

func (IdentityCreate) ValidateSignature(ctx context.Context, env *Env, st protocol.StateTransition) (*validation.Result, error) {
	tx, err := cast[*protocol.IdentityCreateTransition](st)
	if err != nil {
		return nil, err
	}
	return validateAssetLockSignature(ctx, env, tx)
}

func (IdentityCreate) ValidateState(ctx context.Context, env *Env, st protocol.StateTransition) (*validation.Result, error) {
	tx, err := cast[*protocol.IdentityCreateTransition](st)
	if err != nil {
		return nil, err
	}
	exec := tx.ExecutionContext()

	id := tx.IdentityID()
	identity, err := env.Repository.FetchIdentity(ctx, id, exec)
	if err != nil {
		return nil, err
	}
	if identity != nil {
		return validation.New(&consensus.IdentityAlreadyExistsError{IdentityID: id}), nil
	}

	return validateAssetLockState(ctx, env, tx.AssetLockProof, exec)
}

func (IdentityCreate) Apply(ctx context.Context, env *Env, st protocol.StateTransition) error {
	tx, err := cast[*protocol.IdentityCreateTransition](st)
	if err != nil {
		return err
	}
	exec := tx.ExecutionContext()

	credits, err := assetLockCredits(ctx, env, tx)
	if err != nil {
		return err
	}

	identity := &protocol.Identity{
		ProtocolVersion: tx.Version,
		ID:              tx.IdentityID(),
		PublicKeys:      make([]*protocol.IdentityPublicKey, len(tx.PublicKeys)),
		Balance:         credits,
	}
	for i, k := range tx.PublicKeys {
		identity.PublicKeys[i] = k.Copy()
	}

	err = env.Repository.StoreIdentity(ctx, identity, exec)
	if err != nil {
		return errors.UnknownError.WithFormat("store identity: %w", err)
	}

	hashes := keyHashes(identity.PublicKeys)
	err = env.Repository.StoreIdentityPublicKeyHashes(ctx, identity.ID, hashes, exec)
	if err != nil {
		return errors.UnknownError.WithFormat("store public key hashes: %w", err)
	}
	env.touchPublicKeyHashes(hashes)

	outPoint, err := tx.AssetLockProof.GetOutPoint()
	if err != nil {
		return err
	}
	return env.Repository.MarkAssetLockTransactionOutPointAsUsed(ctx, outPoint, exec)
}

type IdentityTopUp struct{}

func (IdentityTopUp) Type() protocol.StateTransitionType {
	return protocol.StateTransitionTypeIdentityTopUp
}

func (IdentityTopUp) ValidateBasic(st protocol.StateTransition) *validation.Result {
	tx := mustCast[*protocol.IdentityTopUpTransition](st)
	result := validation.New(validateStruct(tx)...)
	if !result.IsValid() {
		return result
	}

	if tx.IdentityID.IsZero() {
		result.AddError(&consensus.InvalidIdentifierError{Name: "identityId", Cause: "identifier is empty"})
	}
	result.AddError(validateAssetLockProofStructure(tx.AssetLockProof)...)
	return result
}

func (IdentityTopUp) ValidateSignature(ctx context.Context, env *Env, st protocol.StateTransition) (*validation.Result, error) {
	tx, err := cast[*protocol.IdentityTopUpTransition](st)
	if err != nil {
		return nil, err
	}
	return validateAssetLockSignature(ctx, env, tx)
}

func (IdentityTopUp) ValidateState(ctx context.Context, env *Env, st protocol.StateTransition) (*validation.Result, error) {
	tx, err := cast[*protocol.IdentityTopUpTransition](st)
	if err != nil {
		return nil, err
	}
	exec := tx.ExecutionContext()

	identity, err := env.Repository.FetchIdentity(ctx, tx.IdentityID, exec)
	if err != nil {
		return nil, err
	}
	if identity == nil {
		return validation.New(&consensus.IdentityNotFoundError{IdentityID: tx.IdentityID}), nil
	}

	return validateAssetLockState(ctx, env, tx.AssetLockProof, exec)
}

func (IdentityTopUp) Apply(ctx context.Context, env *Env, st protocol.StateTransition) error {
	tx, err := cast[*protocol.IdentityTopUpTransition](st)
	if err != nil {
		return err
	}
	exec := tx.ExecutionContext()

	credits, err := assetLockCredits(ctx, env, tx)
	if err != nil {
		return err
	}

	identity, err := env.Repository.FetchIdentity(ctx, tx.IdentityID, exec)
	if err != nil {
		return err
	}
	if identity == nil {
		return errors.NotFound.WithFormat("identity %v not found", tx.IdentityID)
	}

	identity.IncreaseBalance(credits)
	err = env.Repository.StoreIdentity(ctx, identity, exec)
	if err != nil {
		return errors.UnknownError.WithFormat("store identity: %w", err)
	}

	outPoint, err := tx.AssetLockProof.GetOutPoint()
	if err != nil {
		return err
	}
	return env.Repository.MarkAssetLockTransactionOutPointAsUsed(ctx, outPoint, exec)
}

type IdentityUpdate struct{}

func (IdentityUpdate) Type() protocol.StateTransitionType {
	return protocol.StateTransitionTypeIdentityUpdate
}

func (IdentityUpdate) ValidateBasic(st protocol.StateTransition) *validation.Result {
	tx := mustCast[*protocol.IdentityUpdateTransition](st)
	result := validation.New(validateStruct(tx)...)
	if !result.IsValid() {
		return result
	}

	if tx.Revision < 1 {
		result.AddError(&consensus.JsonSchemaError{Message: "revision must be at least 1", Keyword: "minimum", Path: "/revision"})
	}
	if len(tx.AddPublicKeys) == 0 && len(tx.DisablePublicKeys) == 0 {
		result.AddError(&consensus.InvalidIdentityUpdateTransitionEmptyError{})
		return result
	}
	if (len(tx.DisablePublicKeys) > 0) != (tx.PublicKeysDisabledAt != nil) {
		result.AddError(&consensus.InvalidIdentityUpdateTransitionDisableKeysError{})
	}

	result.AddError(validatePublicKeys(tx.AddPublicKeys, true)...)

	var dup []uint32
	seen := map[uint32]bool{}
	for _, id := range tx.DisablePublicKeys {
		if seen[id] {
			dup = append(dup, id)
		}
		seen[id] = true
	}
	if len(dup) > 0 {
		result.AddError(&consensus.DuplicatedIdentityPublicKeyIDError{DuplicatedIDs: dup})
	}
	return result
}

func (IdentityUpdate) ValidateSignature(ctx context.Context, env *Env, st protocol.StateTransition) (*validation.Result, error) {
	tx, err := cast[*protocol.IdentityUpdateTransition](st)
	if err != nil {
		return nil, err
	}
	return validateIdentitySignature(ctx, env, tx, protocol.SecurityLevelMaster)
}

func (IdentityUpdate) ValidateState(ctx context.Context, env *Env, st protocol.StateTransition) (*validation.Result, error) {
	tx, err := cast[*protocol.IdentityUpdateTransition](st)
	if err != nil {
		return nil, err
	}
	exec := tx.ExecutionContext()
	result := new(validation.Result)

	stored, err := env.Repository.FetchIdentity(ctx, tx.IdentityID, exec)
	if err != nil {
		return nil, err
	}
	if stored == nil {
		return validation.New(&consensus.IdentityNotFoundError{IdentityID: tx.IdentityID}), nil
	}
	identity := stored.Copy()

	if tx.Revision != identity.Revision+1 {
		result.AddError(&consensus.InvalidIdentityRevisionError{
			IdentityID:      identity.ID,
			CurrentRevision: identity.Revision,
		})
	}

	if len(tx.DisablePublicKeys) > 0 {
		for _, id := range tx.DisablePublicKeys {
			key := identity.PublicKey(id)
			switch {
			case key == nil:
				result.AddError(&consensus.InvalidIdentityPublicKeyIDError{ID: id})
			case key.ReadOnly:
				result.AddError(&consensus.IdentityPublicKeyIsReadOnlyError{PublicKeyIndex: id})
			}
		}
		if !result.IsValid() {
			return result, nil
		}

		disabledAt := *tx.PublicKeysDisabledAt
		for _, id := range tx.DisablePublicKeys {
			v := disabledAt
			identity.PublicKey(id).DisabledAt = &v
		}

		header, err := env.header(ctx)
		if err != nil {
			return nil, err
		}
		if header == nil {
			return nil, errors.NotReady.With("no block header is available")
		}
		ok, start, end := protocol.IsWithinBlockTimeWindow(disabledAt, header.Time)
		if !ok {
			result.AddError(&consensus.IdentityPublicKeyDisabledAtWindowViolationError{
				DisabledAt:      disabledAt,
				TimeWindowStart: start,
				TimeWindowEnd:   end,
			})
		}
		if !result.IsValid() {
			return result, nil
		}
	}

	if len(tx.AddPublicKeys) > 0 {
		result.AddError(validatePublicKeys(tx.AddPublicKeys, true)...)
		if !result.IsValid() {
			return result, nil
		}
		for _, k := range tx.AddPublicKeys {
			identity.PublicKeys = append(identity.PublicKeys, k.Copy())
		}
	}

	result.AddError(requireMasterKey(identity.PublicKeys))
	if !result.IsValid() {
		return result, nil
	}

	result.AddError(validatePublicKeys(identity.PublicKeys, false)...)
	if len(identity.PublicKeys) > protocol.MaxIdentityPublicKeys {
		result.AddError(&consensus.StateMaxIdentityPublicKeyLimitReachedError{MaxItems: protocol.MaxIdentityPublicKeys})
	}
	return result, nil
}

func (IdentityUpdate) Apply(ctx context.Context, env *Env, st protocol.StateTransition) error {
	tx, err := cast[*protocol.IdentityUpdateTransition](st)
	if err != nil {
		return err
	}
	exec := tx.ExecutionContext()

	identity, err := env.Repository.FetchIdentity(ctx, tx.IdentityID, exec)
	if err != nil {
		return err
	}
	if identity == nil {
		return errors.NotFound.WithFormat("identity %v not found", tx.IdentityID)
	}

	identity.Revision = tx.Revision
	for _, id := range tx.DisablePublicKeys {
		key := identity.PublicKey(id)
		if key == nil {
			return errors.NotFound.WithFormat("identity %v key %d not found", tx.IdentityID, id)
		}
		v := *tx.PublicKeysDisabledAt
		key.DisabledAt = &v
	}
	for _, k := range tx.AddPublicKeys {
		identity.PublicKeys = append(identity.PublicKeys, k.Copy())
	}

	err = env.Repository.StoreIdentity(ctx, identity, exec)
	if err != nil {
		return errors.UnknownError.WithFormat("store identity: %w", err)
	}

	if len(tx.AddPublicKeys) == 0 {
		return nil
	}
	hashes := keyHashes(tx.AddPublicKeys)
	err = env.Repository.StoreIdentityPublicKeyHashes(ctx, identity.ID, hashes, exec)
	if err != nil {
		return errors.UnknownError.WithFormat("store public key hashes: %w", err)
	}
	env.touchPublicKeyHashes(hashes)
	return nil
}
