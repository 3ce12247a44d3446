// Copyright 2024 The Accumulate Authors
//
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file or at
// https://opensource.org/licenses/MIT.

package block

import (
	"context"
	"time"

	"github.com/dustin/go-humanize"
	"gitlab.com/accumulatenetwork/platform/internal/database"
	"gitlab.com/accumulatenetwork/platform/internal/logging"
	"gitlab.com/accumulatenetwork/platform/internal/storage"
	"gitlab.com/accumulatenetwork/platform/pkg/errors"
)

type blockStats struct {
	valid   int
	invalid int
}

// EndBlockResponse is the outcome of ending a block.
type EndBlockResponse struct {
	// CumulativeFees is the sum of the fees charged in the block.
	CumulativeFees uint64

	// CreditsPool is the credits pool including the block's fees.
	CreditsPool uint64
}

// EndBlock closes the block to new transitions, adds its fees to the
// credits pool and pushes its context onto the stack. Both are written to
// the block transaction so that the working app hash is final once the
// block has ended. Validator set changes come from masternode list sync
// and are never returned here.
func (x *Executor) EndBlock(_ context.Context, height int64) (*EndBlockResponse, error) {
	header, err := x.requireBlock()
	if err != nil {
		return nil, err
	}
	if header.Height != height {
		return nil, errors.BadRequest.WithFormat("ending block %d but block %d is being executed", height, header.Height)
	}
	if x.ended {
		return nil, errors.NotAllowed.WithFormat("block %d has already ended", height)
	}
	opts := storage.Options{UseTransaction: true}

	fees := x.block.CumulativeFees()
	pool, err := x.Database.CreditsPool.Fetch(opts)
	if err != nil {
		return nil, errors.FatalError.WithFormat("load credits pool: %w", err)
	}
	_, err = x.Database.CreditsPool.Store(pool.Value+fees, opts)
	if err != nil {
		return nil, errors.FatalError.WithFormat("store credits pool: %w", err)
	}

	x.stack.Add(x.block)
	stack, err := x.stack.MarshalBinary()
	if err != nil {
		return nil, errors.FatalError.WithFormat("encode block execution context stack: %w", err)
	}
	_, err = x.Database.ContextStack.Store(stack, opts)
	if err != nil {
		return nil, errors.FatalError.WithFormat("store block execution context stack: %w", err)
	}

	x.methodLogger("endBlock").Info("Block ended",
		"valid", x.stats.valid,
		"invalid", x.stats.invalid,
		"fees", humanize.Comma(int64(fees)),
		"credits-pool", humanize.Comma(int64(pool.Value+fees)),
		"contracts", len(x.block.DataContracts()),
		"duration", time.Since(x.blockStart))
	x.ended = true
	return &EndBlockResponse{CumulativeFees: fees, CreditsPool: pool.Value + fees}, nil
}

// CommitResponse is the outcome of committing a block.
type CommitResponse struct {
	AppHash []byte
}

// Commit commits the block transaction and refreshes the caches with what
// the block touched. A returned error is fatal.
func (x *Executor) Commit(context.Context) (*CommitResponse, error) {
	start := time.Now()
	header, err := x.requireBlock()
	if err != nil {
		return nil, err
	}
	if !x.ended {
		return nil, errors.NotReady.WithFormat("block %d has not ended", header.Height)
	}
	logger := x.methodLogger("commit")

	err = x.store.CommitTransaction()
	if err != nil {
		return nil, errors.FatalError.WithFormat("commit block transaction: %w", err)
	}
	x.ended = false
	x.lastCoreHeight = header.CoreChainLockedHeight

	// Contracts written by this block replace their cached versions.
	// Key hashes are dropped so the next lookup reads the new state.
	contracts := x.block.DataContracts()
	x.deliver.RefreshDataContracts(contracts)
	x.check.RefreshDataContracts(contracts)
	x.check.InvalidatePublicKeyHashes(x.block.PublicKeyHashes())

	appHash := x.store.GetRootHash(false)
	logger.Info("Block committed", "app-hash", logging.AsUpperHex(appHash))

	err = x.Database.Metadata.Store(&database.Metadata{
		Height:                       uint64(header.Height),
		AppHash:                      appHash,
		AppVersion:                   header.AppVersion,
		InitialCoreChainLockedHeight: x.initialCoreHeight,
	}, storage.Options{})
	if err != nil {
		return nil, errors.FatalError.WithFormat("store metadata: %w", err)
	}

	blockHeight.Set(float64(header.Height))
	feesCharged.Add(float64(x.block.CumulativeFees()))
	commitDuration.Observe(time.Since(start).Seconds())
	x.stats = blockStats{}
	return &CommitResponse{AppHash: appHash}, nil
}
