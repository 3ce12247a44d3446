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

// validateDataContractStructure checks a contract's schemas and indices.
func validateDataContractStructure(contract *protocol.DataContract) []consensus.Error {
	errs := validateDocumentSchemas(contract)
	if len(errs) > 0 {
		return errs
	}

	for _, typ := range contract.DocumentTypes() {
		indices, err := contract.Indices(typ)
		if err != nil {
			errs = append(errs, &consensus.JsonSchemaError{Message: err.Error(), Keyword: "indices", Path: "/documents/" + typ + "/indices"})
			continue
		}

		props := contract.DocumentProperties(typ)
		names := map[string]bool{}
		var unique int
		for _, idx := range indices {
			if idx.Name != "" {
				if names[idx.Name] {
					errs = append(errs, &consensus.DuplicateIndexNameError{DocumentType: typ, IndexName: idx.Name})
				}
				names[idx.Name] = true
			}
			if idx.Unique {
				unique++
			}

			if len(idx.Properties) == 1 && idx.Properties[0].Name == protocol.PropertyID {
				errs = append(errs, &consensus.SystemPropertyIndexAlreadyPresentError{
					DocumentType: typ,
					IndexName:    idx.Name,
					PropertyName: protocol.PropertyID,
				})
			}

			for _, p := range idx.Properties {
				if isSystemProperty(p.Name) || props[p.Name] {
					continue
				}
				errs = append(errs, &consensus.UndefinedIndexPropertyError{
					DocumentType: typ,
					IndexName:    idx.Name,
					PropertyName: p.Name,
				})
			}
		}
		if unique > protocol.MaxUniqueIndices {
			errs = append(errs, &consensus.UniqueIndicesLimitReachedError{DocumentType: typ, Limit: protocol.MaxUniqueIndices})
		}
	}
	return errs
}

func isSystemProperty(name string) bool {
	switch name {
	case protocol.PropertyID, protocol.PropertyOwnerID, protocol.PropertyRevision,
		protocol.PropertyCreatedAt, protocol.PropertyUpdatedAt:
		return true
	}
	return false
}

func storeDataContract(ctx context.Context, env *Env, st protocol.StateTransition, contract *protocol.DataContract) error {
	err := env.Repository.StoreDataContract(ctx, contract, st.ExecutionContext())
	if err != nil {
		return errors.UnknownError.WithFormat("store data contract: %w", err)
	}
	env.touchDataContract(contract)
	return nil
}

type DataContractCreate struct{}

func (DataContractCreate) Type() protocol.StateTransitionType {
	return protocol.StateTransitionTypeDataContractCreate
}

func (DataContractCreate) ValidateBasic(st protocol.StateTransition) *validation.Result {
	tx := mustCast[*protocol.DataContractCreateTransition](st)
	result := validation.New(validateStruct(tx)...)
	if !result.IsValid() {
		return result
	}

	contract := tx.DataContract
	expected := protocol.GenerateDataContractID(contract.OwnerID, tx.Entropy)
	if contract.ID != expected {
		result.AddError(&consensus.InvalidDataContractIDError{ExpectedID: expected, InvalidID: contract.ID})
	}
	result.AddError(validateDataContractStructure(contract)...)
	return result
}

func (DataContractCreate) ValidateSignature(ctx context.Context, env *Env, st protocol.StateTransition) (*validation.Result, error) {
	tx, err := cast[*protocol.DataContractCreateTransition](st)
	if err != nil {
		return nil, err
	}
	return validateIdentitySignature(ctx, env, tx, protocol.SecurityLevelHigh)
}

func (DataContractCreate) ValidateState(ctx context.Context, env *Env, st protocol.StateTransition) (*validation.Result, error) {
	tx, err := cast[*protocol.DataContractCreateTransition](st)
	if err != nil {
		return nil, err
	}

	existing, err := env.Repository.FetchDataContract(ctx, tx.DataContract.ID, tx.ExecutionContext())
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return validation.New(&consensus.DataContractAlreadyPresentError{DataContractID: tx.DataContract.ID}), nil
	}
	return new(validation.Result), nil
}

func (DataContractCreate) Apply(ctx context.Context, env *Env, st protocol.StateTransition) error {
	tx, err := cast[*protocol.DataContractCreateTransition](st)
	if err != nil {
		return err
	}
	return storeDataContract(ctx, env, tx, tx.DataContract)
}

type DataContractUpdate struct{}

func (DataContractUpdate) Type() protocol.StateTransitionType {
	return protocol.StateTransitionTypeDataContractUpdate
}

func (DataContractUpdate) ValidateBasic(st protocol.StateTransition) *validation.Result {
	tx := mustCast[*protocol.DataContractUpdateTransition](st)
	result := validation.New(validateStruct(tx)...)
	if !result.IsValid() {
		return result
	}
	result.AddError(validateDataContractStructure(tx.DataContract)...)
	return result
}

func (DataContractUpdate) ValidateSignature(ctx context.Context, env *Env, st protocol.StateTransition) (*validation.Result, error) {
	tx, err := cast[*protocol.DataContractUpdateTransition](st)
	if err != nil {
		return nil, err
	}
	return validateIdentitySignature(ctx, env, tx, protocol.SecurityLevelHigh)
}

func (DataContractUpdate) ValidateState(ctx context.Context, env *Env, st protocol.StateTransition) (*validation.Result, error) {
	tx, err := cast[*protocol.DataContractUpdateTransition](st)
	if err != nil {
		return nil, err
	}
	result := new(validation.Result)
	contract := tx.DataContract

	existing, err := env.Repository.FetchDataContract(ctx, contract.ID, tx.ExecutionContext())
	if err != nil {
		return nil, err
	}
	if existing == nil {
		result.AddError(&consensus.DataContractNotPresentError{DataContractID: contract.ID})
		return result, nil
	}

	// Only the owner may update a contract
	if contract.OwnerID != existing.OwnerID {
		result.AddError(&consensus.DataContractOwnerIDMismatchError{
			DataContractID:  contract.ID,
			OwnerID:         contract.OwnerID,
			ExistingOwnerID: existing.OwnerID,
		})
		return result, nil
	}

	if contract.Version != existing.Version+1 {
		result.AddError(&consensus.InvalidDataContractVersionError{
			ExpectedVersion: existing.Version + 1,
			Version:         contract.Version,
		})
	}

	// Indices of existing document types are immutable
	for _, typ := range existing.DocumentTypes() {
		old := existing.RawIndices(typ)
		if old == nil {
			continue
		}
		same, err := sameCBOR(old, contract.RawIndices(typ))
		if err != nil {
			return nil, errors.EncodingError.WithFormat("encode indices of %s: %w", typ, err)
		}
		if !same {
			result.AddError(&consensus.DataContractIndicesChangedError{DocumentType: typ})
		}
	}
	return result, nil
}

func (DataContractUpdate) Apply(ctx context.Context, env *Env, st protocol.StateTransition) error {
	tx, err := cast[*protocol.DataContractUpdateTransition](st)
	if err != nil {
		return err
	}
	return storeDataContract(ctx, env, tx, tx.DataContract)
}
