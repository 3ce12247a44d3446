// Copyright 2024 The Accumulate Authors
//
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file or at
// https://opensource.org/licenses/MIT.

package block

import (
	"context"
	"time"

	"gitlab.com/accumulatenetwork/platform/internal/core/execute"
	"gitlab.com/accumulatenetwork/platform/pkg/errors"
)

// BeginBlockRequest is the header and vote information of a new block.
type BeginBlockRequest struct {
	Header         execute.Header
	LastCommitInfo *execute.CommitInfo
}

// BeginBlock prepares the executor for a new block and opens the block
// transaction. Beginning a block at the height of the last committed
// context, or of a block that was begun but not committed, discards that
// attempt first.
func (x *Executor) BeginBlock(ctx context.Context, req BeginBlockRequest) error {
	header := req.Header
	consensusLogger := x.logger.With("height", header.Height)
	logger := consensusLogger.With("abciMethod", "beginBlock")
	logger.Debug("Begin block", "core-chain-locked-height", header.CoreChainLockedHeight, "version", header.AppVersion)

	switch {
	case header.AppVersion == 0:
		return &NetworkProtocolVersionIsNotSetError{}
	case header.AppVersion > x.LatestProtocolVersion:
		return &NotSupportedNetworkProtocolVersionError{
			Version: header.AppVersion,
			Latest:  x.LatestProtocolVersion,
		}
	}

	err := x.waiter.Wait(ctx, header.CoreChainLockedHeight)
	if err != nil {
		return err
	}

	err = x.updater.Update(ctx, header.CoreChainLockedHeight, logger)
	if err != nil {
		return errors.UnknownError.WithFormat("update masternode list: %w", err)
	}

	err = x.recoverRound(header.Height)
	if err != nil {
		return err
	}

	x.ended = false
	x.stats = blockStats{}
	x.block.Reset()
	x.block.SetHeader(&header)
	x.block.SetLastCommitInfo(req.LastCommitInfo)
	x.block.SetConsensusLogger(consensusLogger)

	err = x.store.StartTransaction()
	if err != nil {
		return errors.FatalError.WithFormat("start block transaction: %w", err)
	}

	x.blockStart = time.Now()
	return nil
}

// recoverRound discards the effects of an earlier attempt at the same
// height.
func (x *Executor) recoverRound(height int64) error {
	if x.store.IsTransactionStarted() {
		x.logger.Info("Discarding uncommitted block", "height", height)
		err := x.store.AbortTransaction()
		if err != nil {
			return errors.FatalError.WithFormat("abort block transaction: %w", err)
		}
	}

	latest := x.stack.GetFirst()
	if latest != nil && latest.Header() != nil && latest.Header().Height == height {
		x.logger.Info("Removing block execution context of a retried height", "height", height)
		x.stack.RemoveLatest()
	}
	return nil
}
