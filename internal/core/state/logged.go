// Copyright 2024 The Accumulate Authors
//
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file or at
// https://opensource.org/licenses/MIT.

package state

import (
	"context"
	"time"

	"github.com/cometbft/cometbft/libs/log"
	"gitlab.com/accumulatenetwork/platform/internal/core/corerpc"
	"gitlab.com/accumulatenetwork/platform/internal/core/execute"
	"gitlab.com/accumulatenetwork/platform/internal/core/sml"
	"gitlab.com/accumulatenetwork/platform/internal/database"
	"gitlab.com/accumulatenetwork/platform/internal/logging"
	"gitlab.com/accumulatenetwork/platform/protocol"
)

// Logged is a [Repository] that logs every call at debug level with its
// arguments, result and duration. Calls made during a block use the block's
// consensus logger.
type Logged struct {
	Repository
	block  *execute.BlockExecutionContext
	logger logging.OptionalLogger
}

var _ Repository = (*Logged)(nil)

func NewLogged(repo Repository, block *execute.BlockExecutionContext, logger log.Logger) *Logged {
	l := &Logged{Repository: repo, block: block}
	l.logger.Set(logger, "module", "state")
	return l
}

func (l *Logged) log(method string, start time.Time, err error, keyVals ...any) {
	var logger log.Logger = l.logger
	if l.block != nil && !l.block.IsEmpty() {
		logger = l.block.ConsensusLogger().With("module", "state")
	}
	keyVals = append(keyVals, "method", method, "duration", time.Since(start))
	if err != nil {
		logger.Error("State repository call failed", append(keyVals, "error", err)...)
		return
	}
	logger.Debug("State repository call", keyVals...)
}

func (l *Logged) FetchIdentity(ctx context.Context, id protocol.Identifier, exec *protocol.ExecutionContext) (*protocol.Identity, error) {
	start := time.Now()
	v, err := l.Repository.FetchIdentity(ctx, id, exec)
	l.log("fetchIdentity", start, err, "id", id, "found", v != nil)
	return v, err
}

func (l *Logged) StoreIdentity(ctx context.Context, identity *protocol.Identity, exec *protocol.ExecutionContext) error {
	start := time.Now()
	err := l.Repository.StoreIdentity(ctx, identity, exec)
	l.log("storeIdentity", start, err, "id", identity.ID, "revision", identity.Revision, "balance", identity.Balance)
	return err
}

func (l *Logged) StoreIdentityPublicKeyHashes(ctx context.Context, identityID protocol.Identifier, hashes [][]byte, exec *protocol.ExecutionContext) error {
	start := time.Now()
	err := l.Repository.StoreIdentityPublicKeyHashes(ctx, identityID, hashes, exec)
	l.log("storeIdentityPublicKeyHashes", start, err, "id", identityID, "hashes", len(hashes))
	return err
}

func (l *Logged) FetchIdentityIDsByPublicKeyHashes(ctx context.Context, hashes [][]byte, exec *protocol.ExecutionContext) ([][]protocol.Identifier, error) {
	start := time.Now()
	v, err := l.Repository.FetchIdentityIDsByPublicKeyHashes(ctx, hashes, exec)
	l.log("fetchIdentityIdsByPublicKeyHashes", start, err, "hashes", len(hashes))
	return v, err
}

func (l *Logged) FetchDataContract(ctx context.Context, id protocol.Identifier, exec *protocol.ExecutionContext) (*protocol.DataContract, error) {
	start := time.Now()
	v, err := l.Repository.FetchDataContract(ctx, id, exec)
	l.log("fetchDataContract", start, err, "id", id, "found", v != nil)
	return v, err
}

func (l *Logged) StoreDataContract(ctx context.Context, contract *protocol.DataContract, exec *protocol.ExecutionContext) error {
	start := time.Now()
	err := l.Repository.StoreDataContract(ctx, contract, exec)
	l.log("storeDataContract", start, err, "id", contract.ID, "version", contract.Version)
	return err
}

func (l *Logged) FetchDocuments(ctx context.Context, contractID protocol.Identifier, typ string, query *database.Query, exec *protocol.ExecutionContext) ([]*protocol.Document, error) {
	start := time.Now()
	v, err := l.Repository.FetchDocuments(ctx, contractID, typ, query, exec)
	l.log("fetchDocuments", start, err, "contract", contractID, "type", typ, "count", len(v))
	return v, err
}

func (l *Logged) StoreDocument(ctx context.Context, doc *protocol.Document, exec *protocol.ExecutionContext) error {
	start := time.Now()
	err := l.Repository.StoreDocument(ctx, doc, exec)
	l.log("storeDocument", start, err, "contract", doc.DataContractID, "type", doc.Type, "id", doc.ID, "revision", doc.Revision)
	return err
}

func (l *Logged) RemoveDocument(ctx context.Context, contractID protocol.Identifier, typ string, id protocol.Identifier, exec *protocol.ExecutionContext) error {
	start := time.Now()
	err := l.Repository.RemoveDocument(ctx, contractID, typ, id, exec)
	l.log("removeDocument", start, err, "contract", contractID, "type", typ, "id", id)
	return err
}

func (l *Logged) FetchTransaction(ctx context.Context, txid string, exec *protocol.ExecutionContext) (*corerpc.Transaction, error) {
	start := time.Now()
	v, err := l.Repository.FetchTransaction(ctx, txid, exec)
	l.log("fetchTransaction", start, err, "txid", txid, "found", v != nil)
	return v, err
}

func (l *Logged) FetchLatestPlatformBlockHeader(ctx context.Context) (*execute.Header, error) {
	start := time.Now()
	v, err := l.Repository.FetchLatestPlatformBlockHeader(ctx)
	var height int64
	if v != nil {
		height = v.Height
	}
	l.log("fetchLatestPlatformBlockHeader", start, err, "height", height)
	return v, err
}

func (l *Logged) VerifyInstantLock(ctx context.Context, lock *protocol.InstantLock, exec *protocol.ExecutionContext) (bool, error) {
	start := time.Now()
	v, err := l.Repository.VerifyInstantLock(ctx, lock, exec)
	l.log("verifyInstantLock", start, err, "txid", lock.TxID.String(), "valid", v)
	return v, err
}

func (l *Logged) IsAssetLockTransactionOutPointAlreadyUsed(ctx context.Context, outPoint []byte, exec *protocol.ExecutionContext) (bool, error) {
	start := time.Now()
	v, err := l.Repository.IsAssetLockTransactionOutPointAlreadyUsed(ctx, outPoint, exec)
	l.log("isAssetLockTransactionOutPointAlreadyUsed", start, err, "outpoint", logging.AsHex(outPoint), "used", v)
	return v, err
}

func (l *Logged) MarkAssetLockTransactionOutPointAsUsed(ctx context.Context, outPoint []byte, exec *protocol.ExecutionContext) error {
	start := time.Now()
	err := l.Repository.MarkAssetLockTransactionOutPointAsUsed(ctx, outPoint, exec)
	l.log("markAssetLockTransactionOutPointAsUsed", start, err, "outpoint", logging.AsHex(outPoint))
	return err
}

func (l *Logged) FetchSMLStore(ctx context.Context) (*sml.Store, error) {
	start := time.Now()
	v, err := l.Repository.FetchSMLStore(ctx)
	l.log("fetchSMLStore", start, err)
	return v, err
}
