// Copyright 2024 The Accumulate Authors
//
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file or at
// https://opensource.org/licenses/MIT.

package chain

import (
	"context"
	"fmt"

	"gitlab.com/accumulatenetwork/platform/internal/core/execute"
	"gitlab.com/accumulatenetwork/platform/internal/core/validation"
	"gitlab.com/accumulatenetwork/platform/internal/database"
	"gitlab.com/accumulatenetwork/platform/pkg/errors"
	"gitlab.com/accumulatenetwork/platform/protocol"
	"gitlab.com/accumulatenetwork/platform/protocol/consensus"
)

// DocumentNotProvidedError is returned when a replaced document was not
// loaded before the batch was applied.
type DocumentNotProvidedError struct {
	ID protocol.Identifier
}

func (e *DocumentNotProvidedError) Error() string {
	return fmt.Sprintf("document %v was not provided for replacement", e.ID)
}

// InvalidDocumentActionError is returned when a batch with an unknown
// action is applied.
type InvalidDocumentActionError struct {
	Action protocol.DocumentAction
}

func (e *InvalidDocumentActionError) Error() string {
	return fmt.Sprintf("invalid document action %v", e.Action)
}

// DataContractNotPresentError is returned when a document is applied to a
// missing contract.
type DataContractNotPresentError struct {
	ID protocol.Identifier
}

func (e *DataContractNotPresentError) Error() string {
	return fmt.Sprintf("data contract %v is not present", e.ID)
}

func fetchDocument(ctx context.Context, env *Env, dt *protocol.DocumentTransition, exec *protocol.ExecutionContext) (*protocol.Document, error) {
	docs, err := env.Repository.FetchDocuments(ctx, dt.DataContractID, dt.Type, &database.Query{
		Where: []database.WhereClause{{Field: protocol.PropertyID, Operator: database.OpEqual, Value: dt.ID}},
	}, exec)
	if err != nil {
		return nil, err
	}
	if len(docs) == 0 {
		return nil, nil
	}
	return docs[0], nil
}

// contractCache loads each contract of a batch once.
type contractCache struct {
	env       *Env
	exec      *protocol.ExecutionContext
	contracts map[protocol.Identifier]*protocol.DataContract
}

func newContractCache(env *Env, exec *protocol.ExecutionContext) *contractCache {
	return &contractCache{env: env, exec: exec, contracts: map[protocol.Identifier]*protocol.DataContract{}}
}

func (c *contractCache) get(ctx context.Context, id protocol.Identifier) (*protocol.DataContract, error) {
	if dc, ok := c.contracts[id]; ok {
		return dc, nil
	}
	dc, err := c.env.Repository.FetchDataContract(ctx, id, c.exec)
	if err != nil {
		return nil, err
	}
	c.contracts[id] = dc
	return dc, nil
}

type DocumentsBatch struct{}

func (DocumentsBatch) Type() protocol.StateTransitionType {
	return protocol.StateTransitionTypeDocumentsBatch
}

func (DocumentsBatch) ValidateBasic(st protocol.StateTransition) *validation.Result {
	tx := mustCast[*protocol.DocumentsBatchTransition](st)
	result := validation.New(validateStruct(tx)...)
	if !result.IsValid() {
		return result
	}

	seen := map[consensus.DocumentReference]bool{}
	var dups []consensus.DocumentReference
	for _, dt := range tx.Transitions {
		if !dt.Action.IsKnown() {
			result.AddError(&consensus.InvalidDocumentTransitionActionError{Action: uint8(dt.Action)})
			continue
		}
		if dt.DataContractID.IsZero() {
			result.AddError(&consensus.MissingDataContractIDError{})
			continue
		}
		if dt.Type == "" {
			result.AddError(&consensus.MissingDocumentTransitionTypeError{})
			continue
		}

		if dt.Action == protocol.DocumentActionCreate {
			if len(dt.Entropy) != 32 {
				result.AddError(&consensus.JsonSchemaError{Message: "entropy must be 32 bytes", Keyword: "len", Path: "/transitions/$entropy"})
				continue
			}
			expected := protocol.GenerateDocumentID(dt.DataContractID, tx.Owner, dt.Type, dt.Entropy)
			if dt.ID != expected {
				result.AddError(&consensus.InvalidDocumentTransitionIDError{ExpectedID: expected, InvalidID: dt.ID})
			}
		}

		ref := consensus.DocumentReference{Type: dt.Type, ID: dt.ID}
		if seen[ref] {
			dups = append(dups, ref)
		}
		seen[ref] = true
	}
	if len(dups) > 0 {
		result.AddError(&consensus.DuplicateDocumentTransitionsWithIDsError{References: dups})
	}
	return result
}

// ValidateSignature requires the strongest security level any document
// type of the batch asks for.
func (DocumentsBatch) ValidateSignature(ctx context.Context, env *Env, st protocol.StateTransition) (*validation.Result, error) {
	tx, err := cast[*protocol.DocumentsBatchTransition](st)
	if err != nil {
		return nil, err
	}

	contracts := newContractCache(env, tx.ExecutionContext())
	required := protocol.SecurityLevelHigh
	for _, dt := range tx.Transitions {
		dc, err := contracts.get(ctx, dt.DataContractID)
		if err != nil {
			return nil, err
		}
		if dc == nil {
			continue
		}
		if level := dc.SecurityLevelRequirement(dt.Type); level < required {
			required = level
		}
	}
	return validateIdentitySignature(ctx, env, tx, required)
}

func (DocumentsBatch) ValidateState(ctx context.Context, env *Env, st protocol.StateTransition) (*validation.Result, error) {
	tx, err := cast[*protocol.DocumentsBatchTransition](st)
	if err != nil {
		return nil, err
	}
	exec := tx.ExecutionContext()
	result := new(validation.Result)
	contracts := newContractCache(env, exec)

	header, err := env.header(ctx)
	if err != nil {
		return nil, err
	}

	for _, dt := range tx.Transitions {
		if dt.DataContractID.IsZero() {
			result.AddError(&consensus.MissingDataContractIDError{})
			continue
		}
		contract, err := contracts.get(ctx, dt.DataContractID)
		if err != nil {
			return nil, err
		}
		if contract == nil {
			result.AddError(&consensus.DataContractNotPresentError{DataContractID: dt.DataContractID})
			continue
		}
		if !contract.IsDocumentTypeDefined(dt.Type) {
			result.AddError(&consensus.InvalidDocumentTypeError{Type: dt.Type, DataContractID: dt.DataContractID})
			continue
		}

		if dt.Action != protocol.DocumentActionDelete {
			errs := validateDocumentData(contract, dt.Type, dt.Data)
			if len(errs) > 0 {
				result.AddError(errs...)
				continue
			}
		}

		stored, err := fetchDocument(ctx, env, dt, exec)
		if err != nil {
			return nil, err
		}

		switch dt.Action {
		case protocol.DocumentActionCreate:
			if stored != nil {
				result.AddError(&consensus.DocumentAlreadyPresentError{DocumentID: dt.ID})
				continue
			}
			result.AddError(validateTimestamp(dt, "createdAt", dt.CreatedAt, header))
			result.AddError(validateTimestamp(dt, "updatedAt", dt.UpdatedAt, header))

		case protocol.DocumentActionReplace:
			if !validateExisting(result, tx, dt, stored) {
				continue
			}
			if dt.Revision != stored.Revision+1 {
				result.AddError(&consensus.InvalidDocumentRevisionError{DocumentID: dt.ID, CurrentRevision: stored.Revision})
			}
			result.AddError(validateTimestamp(dt, "updatedAt", dt.UpdatedAt, header))

		case protocol.DocumentActionDelete:
			validateExisting(result, tx, dt, stored)
			continue

		default:
			result.AddError(&consensus.InvalidDocumentTransitionActionError{Action: uint8(dt.Action)})
			continue
		}

		errs, err := validateUniqueIndices(ctx, env, contract, tx.Owner, dt, exec)
		if err != nil {
			return nil, err
		}
		result.AddError(errs...)
	}
	return result, nil
}

func validateExisting(result *validation.Result, tx *protocol.DocumentsBatchTransition, dt *protocol.DocumentTransition, stored *protocol.Document) bool {
	if stored == nil {
		result.AddError(&consensus.DocumentNotFoundError{DocumentID: dt.ID})
		return false
	}
	if stored.OwnerID != tx.Owner {
		result.AddError(&consensus.DocumentOwnerIDMismatchError{
			DocumentID:      dt.ID,
			DocumentOwnerID: tx.Owner,
			ExistingOwnerID: stored.OwnerID,
		})
		return false
	}
	return true
}

func validateTimestamp(dt *protocol.DocumentTransition, name string, ts *uint64, header *execute.Header) consensus.Error {
	if ts == nil || header == nil {
		return nil
	}
	ok, start, end := protocol.IsWithinBlockTimeWindow(*ts, header.Time)
	if ok {
		return nil
	}
	return &consensus.DocumentTimestampWindowViolationError{
		TimestampName:   name,
		DocumentID:      dt.ID,
		Timestamp:       *ts,
		TimeWindowStart: start,
		TimeWindowEnd:   end,
	}
}

// validateUniqueIndices checks that no other stored document has the same
// values for a unique index. Indices with a missing property are skipped.
func validateUniqueIndices(ctx context.Context, env *Env, contract *protocol.DataContract, owner protocol.Identifier, dt *protocol.DocumentTransition, exec *protocol.ExecutionContext) ([]consensus.Error, error) {
	indices, err := contract.Indices(dt.Type)
	if err != nil {
		return nil, err
	}

	doc := &protocol.Document{ID: dt.ID, OwnerID: owner, Data: dt.Data, CreatedAt: dt.CreatedAt, UpdatedAt: dt.UpdatedAt}
	var errs []consensus.Error
	for _, idx := range indices {
		if !idx.Unique {
			continue
		}

		query := new(database.Query)
		complete := true
		for _, p := range idx.Properties {
			v, ok := doc.Get(p.Name)
			if !ok {
				complete = false
				break
			}
			query.Where = append(query.Where, database.WhereClause{Field: p.Name, Operator: database.OpEqual, Value: v})
		}
		if !complete {
			continue
		}

		docs, err := env.Repository.FetchDocuments(ctx, dt.DataContractID, dt.Type, query, exec)
		if err != nil {
			return nil, err
		}
		for _, other := range docs {
			if other.ID != dt.ID {
				errs = append(errs, &consensus.DuplicateUniqueIndexError{
					DocumentID:            dt.ID,
					DuplicatingProperties: idx.PropertyNames(),
				})
				break
			}
		}
	}
	return errs, nil
}

// Apply writes the document transitions strictly in the declared order.
// Replaced documents are loaded before anything is written.
func (DocumentsBatch) Apply(ctx context.Context, env *Env, st protocol.StateTransition) error {
	tx, err := cast[*protocol.DocumentsBatchTransition](st)
	if err != nil {
		return err
	}
	exec := tx.ExecutionContext()

	replaced := map[protocol.Identifier]*protocol.Document{}
	for _, dt := range tx.Transitions {
		if dt.Action != protocol.DocumentActionReplace {
			continue
		}
		doc, err := fetchDocument(ctx, env, dt, exec)
		if err != nil {
			return errors.UnknownError.WithFormat("load document %v: %w", dt.ID, err)
		}
		if doc != nil {
			replaced[doc.ID] = doc
		}
	}

	for _, dt := range tx.Transitions {
		switch dt.Action {
		case protocol.DocumentActionCreate:
			contract, err := env.Repository.FetchDataContract(ctx, dt.DataContractID, exec)
			if err != nil {
				return err
			}
			if contract == nil {
				return &DataContractNotPresentError{ID: dt.DataContractID}
			}

			doc := &protocol.Document{
				ProtocolVersion: tx.Version,
				ID:              dt.ID,
				Type:            dt.Type,
				DataContractID:  dt.DataContractID,
				OwnerID:         tx.Owner,
				Revision:        protocol.InitialRevision,
				CreatedAt:       dt.CreatedAt,
				UpdatedAt:       dt.UpdatedAt,
				Data:            dt.Data,
				Entropy:         dt.Entropy,
			}
			err = env.Repository.StoreDocument(ctx, doc, exec)
			if err != nil {
				return errors.UnknownError.WithFormat("store document %v: %w", dt.ID, err)
			}

		case protocol.DocumentActionReplace:
			doc, ok := replaced[dt.ID]
			if !ok {
				return &DocumentNotProvidedError{ID: dt.ID}
			}
			doc.Revision = dt.Revision
			doc.Data = dt.Data
			if dt.UpdatedAt != nil {
				doc.UpdatedAt = dt.UpdatedAt
			}
			err = env.Repository.StoreDocument(ctx, doc, exec)
			if err != nil {
				return errors.UnknownError.WithFormat("store document %v: %w", dt.ID, err)
			}

		case protocol.DocumentActionDelete:
			err = env.Repository.RemoveDocument(ctx, dt.DataContractID, dt.Type, dt.ID, exec)
			if err != nil {
				return errors.UnknownError.WithFormat("remove document %v: %w", dt.ID, err)
			}

		default:
			return &InvalidDocumentActionError{Action: dt.Action}
		}
	}
	return nil
}
