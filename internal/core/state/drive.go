// Copyright 2024 The Accumulate Authors
//
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file or at
// https://opensource.org/licenses/MIT.

package state

import (
	"context"
	"encoding/hex"

	"gitlab.com/accumulatenetwork/platform/internal/core/corerpc"
	"gitlab.com/accumulatenetwork/platform/internal/core/execute"
	"gitlab.com/accumulatenetwork/platform/internal/core/sml"
	"gitlab.com/accumulatenetwork/platform/internal/database"
	"gitlab.com/accumulatenetwork/platform/internal/storage"
	"gitlab.com/accumulatenetwork/platform/pkg/errors"
	"gitlab.com/accumulatenetwork/platform/protocol"
)

// DriveOptions configures a [Drive].
type DriveOptions struct {
	Database *database.Database
	Core     corerpc.Client
	Stack    *execute.ContextStack
	SML      *sml.Store

	// UseTransaction selects the block transaction instead of the committed
	// state.
	UseTransaction bool
}

// Drive is the [Repository] backed by the platform database and Core.
type Drive struct {
	DriveOptions
}

var _ Repository = (*Drive)(nil)

func NewDrive(opts DriveOptions) *Drive {
	return &Drive{opts}
}

func (d *Drive) options(exec *protocol.ExecutionContext) storage.Options {
	return storage.Options{UseTransaction: d.UseTransaction, DryRun: exec.IsDryRun()}
}

// record adds the operations of a storage call to the execution context.
func record[T any](exec *protocol.ExecutionContext, r storage.Result[T], err error) (T, error) {
	if err != nil {
		var z T
		return z, err
	}
	exec.AddOperation(r.Operations...)
	return r.Value, nil
}

func (d *Drive) FetchIdentity(_ context.Context, id protocol.Identifier, exec *protocol.ExecutionContext) (*protocol.Identity, error) {
	r, err := d.Database.Identities.Fetch(id, d.options(exec))
	return record(exec, r, err)
}

func (d *Drive) StoreIdentity(_ context.Context, identity *protocol.Identity, exec *protocol.ExecutionContext) error {
	r, err := d.Database.Identities.Store(identity, d.options(exec))
	_, err = record(exec, r, err)
	return err
}

func (d *Drive) StoreIdentityPublicKeyHashes(_ context.Context, identityID protocol.Identifier, hashes [][]byte, exec *protocol.ExecutionContext) error {
	for _, h := range hashes {
		r, err := d.Database.PublicKeyHashes.Store(h, identityID, d.options(exec))
		_, err = record(exec, r, err)
		if err != nil {
			return err
		}
	}
	return nil
}

func (d *Drive) FetchIdentityIDsByPublicKeyHashes(_ context.Context, hashes [][]byte, exec *protocol.ExecutionContext) ([][]protocol.Identifier, error) {
	ids := make([][]protocol.Identifier, len(hashes))
	for i, h := range hashes {
		r, err := d.Database.PublicKeyHashes.Fetch(h, d.options(exec))
		ids[i], err = record(exec, r, err)
		if err != nil {
			return nil, err
		}
	}
	return ids, nil
}

func (d *Drive) FetchDataContract(_ context.Context, id protocol.Identifier, exec *protocol.ExecutionContext) (*protocol.DataContract, error) {
	r, err := d.Database.DataContracts.Fetch(id, d.options(exec))
	return record(exec, r, err)
}

func (d *Drive) StoreDataContract(_ context.Context, contract *protocol.DataContract, exec *protocol.ExecutionContext) error {
	r, err := d.Database.DataContracts.Store(contract, d.options(exec))
	_, err = record(exec, r, err)
	return err
}

// contract loads the contract of a document. The read is not charged: the
// contract is part of the transition being executed.
func (d *Drive) contract(id protocol.Identifier) (*protocol.DataContract, error) {
	r, err := d.Database.DataContracts.Fetch(id, storage.Options{UseTransaction: d.UseTransaction})
	if err != nil {
		return nil, err
	}
	if r.Value == nil {
		return nil, errors.NotFound.WithFormat("data contract %v not found", id)
	}
	return r.Value, nil
}

func (d *Drive) FetchDocuments(_ context.Context, contractID protocol.Identifier, typ string, query *database.Query, exec *protocol.ExecutionContext) ([]*protocol.Document, error) {
	contract, err := d.contract(contractID)
	if err != nil {
		return nil, err
	}
	r, err := d.Database.Documents.Find(contract, typ, query, d.options(exec))
	return record(exec, r, err)
}

func (d *Drive) StoreDocument(_ context.Context, doc *protocol.Document, exec *protocol.ExecutionContext) error {
	contract, err := d.contract(doc.DataContractID)
	if err != nil {
		return err
	}
	r, err := d.Database.Documents.Store(contract, doc, d.options(exec))
	_, err = record(exec, r, err)
	return err
}

func (d *Drive) RemoveDocument(_ context.Context, contractID protocol.Identifier, typ string, id protocol.Identifier, exec *protocol.ExecutionContext) error {
	contract, err := d.contract(contractID)
	if err != nil {
		return err
	}
	r, err := d.Database.Documents.Delete(contract, typ, id, d.options(exec))
	_, err = record(exec, r, err)
	return err
}

func (d *Drive) FetchTransaction(ctx context.Context, txid string, _ *protocol.ExecutionContext) (*corerpc.Transaction, error) {
	tx, err := d.Core.GetRawTransaction(ctx, txid)
	switch {
	case err == nil:
		return tx, nil
	case errors.Is(err, errors.NotFound):
		return nil, nil
	default:
		return nil, errors.UnknownError.WithFormat("fetch core transaction %s: %w", txid, err)
	}
}

func (d *Drive) FetchLatestPlatformBlockHeader(context.Context) (*execute.Header, error) {
	latest := d.Stack.GetFirst()
	if latest == nil {
		return nil, nil
	}
	return latest.Header(), nil
}

// VerifyInstantLock checks the lock against the quorums at the core height
// of the last committed block. Without a committed block the lock cannot
// be verified.
func (d *Drive) VerifyInstantLock(ctx context.Context, lock *protocol.InstantLock, _ *protocol.ExecutionContext) (bool, error) {
	header, err := d.FetchLatestPlatformBlockHeader(ctx)
	if err != nil || header == nil {
		return false, err
	}

	requestID := lock.RequestID()
	ok, err := d.Core.VerifyInstantLock(ctx, requestID.String(), lock.TxID.String(), hex.EncodeToString(lock.Signature[:]), header.CoreChainLockedHeight)
	switch {
	case err == nil:
		return ok, nil
	case errors.Is(err, errors.BadRequest), errors.Is(err, errors.NotFound):
		return false, nil
	default:
		return false, errors.UnknownError.WithFormat("verify instant lock: %w", err)
	}
}

func (d *Drive) IsAssetLockTransactionOutPointAlreadyUsed(_ context.Context, outPoint []byte, exec *protocol.ExecutionContext) (bool, error) {
	r, err := d.Database.SpentAssetLocks.Fetch(outPoint, d.options(exec))
	return record(exec, r, err)
}

func (d *Drive) MarkAssetLockTransactionOutPointAsUsed(_ context.Context, outPoint []byte, exec *protocol.ExecutionContext) error {
	r, err := d.Database.SpentAssetLocks.Store(outPoint, d.options(exec))
	_, err = record(exec, r, err)
	return err
}

func (d *Drive) FetchSMLStore(context.Context) (*sml.Store, error) {
	return d.SML, nil
}
