// Copyright 2024 The Accumulate Authors
//
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file or at
// https://opensource.org/licenses/MIT.

// Package state is the state repository the transition executors read and
// write through.
package state

import (
	"context"

	"gitlab.com/accumulatenetwork/platform/internal/core/corerpc"
	"gitlab.com/accumulatenetwork/platform/internal/core/execute"
	"gitlab.com/accumulatenetwork/platform/internal/core/sml"
	"gitlab.com/accumulatenetwork/platform/internal/database"
	"gitlab.com/accumulatenetwork/platform/protocol"
)

// Repository is the platform state as seen by transition validation and
// application. Every method records the fee operations it incurs in the
// execution context, which may be nil. In dry-run mode writes are not
// performed but their operations are still recorded.
type Repository interface {
	FetchIdentity(ctx context.Context, id protocol.Identifier, exec *protocol.ExecutionContext) (*protocol.Identity, error)
	StoreIdentity(ctx context.Context, identity *protocol.Identity, exec *protocol.ExecutionContext) error
	StoreIdentityPublicKeyHashes(ctx context.Context, identityID protocol.Identifier, hashes [][]byte, exec *protocol.ExecutionContext) error

	// FetchIdentityIDsByPublicKeyHashes returns the identities holding each
	// hash, in the order of the hashes.
	FetchIdentityIDsByPublicKeyHashes(ctx context.Context, hashes [][]byte, exec *protocol.ExecutionContext) ([][]protocol.Identifier, error)

	FetchDataContract(ctx context.Context, id protocol.Identifier, exec *protocol.ExecutionContext) (*protocol.DataContract, error)
	StoreDataContract(ctx context.Context, contract *protocol.DataContract, exec *protocol.ExecutionContext) error

	FetchDocuments(ctx context.Context, contractID protocol.Identifier, typ string, query *database.Query, exec *protocol.ExecutionContext) ([]*protocol.Document, error)
	StoreDocument(ctx context.Context, doc *protocol.Document, exec *protocol.ExecutionContext) error
	RemoveDocument(ctx context.Context, contractID protocol.Identifier, typ string, id protocol.Identifier, exec *protocol.ExecutionContext) error

	// FetchTransaction returns a Core transaction, or nil if Core does not
	// know it.
	FetchTransaction(ctx context.Context, txid string, exec *protocol.ExecutionContext) (*corerpc.Transaction, error)

	// FetchLatestPlatformBlockHeader returns the header of the last
	// committed block, or nil.
	FetchLatestPlatformBlockHeader(ctx context.Context) (*execute.Header, error)

	VerifyInstantLock(ctx context.Context, lock *protocol.InstantLock, exec *protocol.ExecutionContext) (bool, error)

	IsAssetLockTransactionOutPointAlreadyUsed(ctx context.Context, outPoint []byte, exec *protocol.ExecutionContext) (bool, error)
	MarkAssetLockTransactionOutPointAsUsed(ctx context.Context, outPoint []byte, exec *protocol.ExecutionContext) error

	FetchSMLStore(ctx context.Context) (*sml.Store, error)
}
