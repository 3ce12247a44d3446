// Copyright 2024 The Accumulate Authors
//
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file or at
// https://opensource.org/licenses/MIT.

// Package block drives the block execution lifecycle: begin, deliver,
// end and commit.
package block

import (
	"fmt"
	"time"

	"github.com/cometbft/cometbft/libs/log"
	"gitlab.com/accumulatenetwork/platform/internal/core/corerpc"
	"gitlab.com/accumulatenetwork/platform/internal/core/execute"
	"gitlab.com/accumulatenetwork/platform/internal/core/execute/chain"
	"gitlab.com/accumulatenetwork/platform/internal/core/sml"
	"gitlab.com/accumulatenetwork/platform/internal/core/state"
	"gitlab.com/accumulatenetwork/platform/internal/database"
	"gitlab.com/accumulatenetwork/platform/internal/logging"
	"gitlab.com/accumulatenetwork/platform/internal/storage"
	"gitlab.com/accumulatenetwork/platform/pkg/errors"
	"gitlab.com/accumulatenetwork/platform/protocol"
)

// ExecutorOptions configures an [Executor].
type ExecutorOptions struct {
	Logger   log.Logger
	Database *database.Database
	Core     corerpc.Client

	// SML is the masternode list store. One is created if it is nil.
	SML *sml.Store

	// LatestProtocolVersion is the newest network protocol version the node
	// can execute.
	LatestProtocolVersion uint64

	// StackDepth is the number of committed block contexts kept.
	StackDepth int

	// DataContractCacheSize and PublicKeyHashCacheSize size the caches.
	DataContractCacheSize  int
	PublicKeyHashCacheSize int

	// ChainLockWaitBase is the initial backoff of the chain lock wait, and
	// ChainLockWaitTimeout bounds it.
	ChainLockWaitBase    time.Duration
	ChainLockWaitTimeout time.Duration

	Genesis GenesisOptions
}

// Executor executes blocks of state transitions. Its methods must be
// called from a single goroutine, in lifecycle order.
type Executor struct {
	ExecutorOptions
	logger logging.OptionalLogger

	store     *storage.Store
	block     *execute.BlockExecutionContext
	stack     *execute.ContextStack
	updater   *sml.Updater
	waiter    *sml.Waiter
	executors map[protocol.StateTransitionType]chain.TransitionExecutor

	initialCoreHeight uint32
	lastCoreHeight    uint32
	blockStart        time.Time
	ended             bool
	stats             blockStats

	// deliver reads and writes the block transaction. check reads the
	// committed state.
	deliver *state.Cached
	check   *state.Cached
}

// NewExecutor returns an executor and restores the context stack of the
// last committed block.
func NewExecutor(opts ExecutorOptions) (*Executor, error) {
	if opts.Database == nil {
		return nil, errors.BadRequest.With("missing database")
	}
	if opts.Core == nil {
		return nil, errors.BadRequest.With("missing core client")
	}
	if opts.LatestProtocolVersion == 0 {
		opts.LatestProtocolVersion = uint64(protocol.LatestVersion)
	}
	if opts.SML == nil {
		opts.SML = sml.NewStore(0)
	}

	x := new(Executor)
	x.ExecutorOptions = opts
	x.logger.Set(opts.Logger, "module", "executor")
	x.store = opts.Database.Store
	x.block = execute.NewBlockExecutionContext()
	x.stack = execute.NewContextStack(opts.StackDepth)
	x.updater = sml.NewUpdater(opts.Core, opts.SML, opts.Logger)
	x.waiter = sml.NewWaiter(opts.Core, opts.ChainLockWaitBase, opts.ChainLockWaitTimeout, opts.Logger)
	x.executors = newExecutorMap(chain.Executors())

	driveOpts := state.DriveOptions{
		Database: opts.Database,
		Core:     opts.Core,
		Stack:    x.stack,
		SML:      opts.SML,
	}
	view := state.NewDrive(driveOpts)
	driveOpts.UseTransaction = true
	tx := state.NewDrive(driveOpts)

	var err error
	x.deliver, err = state.NewCached(state.NewLogged(tx, x.block, opts.Logger), x.block, state.CacheOptions{
		DataContracts: opts.DataContractCacheSize,
	})
	if err != nil {
		return nil, err
	}
	x.check, err = state.NewCached(view, nil, state.CacheOptions{
		DataContracts:   opts.DataContractCacheSize,
		PublicKeyHashes: opts.PublicKeyHashCacheSize,
	})
	if err != nil {
		return nil, err
	}

	err = x.loadStack()
	if err != nil {
		return nil, err
	}

	x.initialCoreHeight = opts.Genesis.InitialCoreChainLockedHeight
	meta, err := x.Metadata()
	if err != nil {
		return nil, errors.UnknownError.WithFormat("load metadata: %w", err)
	}
	if meta != nil {
		x.initialCoreHeight = meta.InitialCoreChainLockedHeight
	}
	x.lastCoreHeight = x.initialCoreHeight
	if c := x.stack.GetFirst(); c != nil && c.Header() != nil {
		x.lastCoreHeight = c.Header().CoreChainLockedHeight
	}
	return x, nil
}

func newExecutorMap(list []chain.TransitionExecutor) map[protocol.StateTransitionType]chain.TransitionExecutor {
	m := map[protocol.StateTransitionType]chain.TransitionExecutor{}
	for _, x := range list {
		if _, ok := m[x.Type()]; ok {
			panic(errors.InternalError.WithFormat("duplicate executor for %v", x.Type()))
		}
		m[x.Type()] = x
	}
	return m
}

func (x *Executor) loadStack() error {
	r, err := x.Database.ContextStack.Fetch(storage.Options{})
	if err != nil {
		return errors.UnknownError.WithFormat("load block execution context stack: %w", err)
	}
	if r.Value == nil {
		// Nothing has been committed
		return nil
	}
	err = x.stack.UnmarshalBinary(r.Value)
	if err != nil {
		return errors.EncodingError.WithFormat("decode block execution context stack: %w", err)
	}
	return nil
}

// BlockContext returns the context of the block being executed.
func (x *Executor) BlockContext() *execute.BlockExecutionContext { return x.block }

// Stack returns the committed block contexts.
func (x *Executor) Stack() *execute.ContextStack { return x.stack }

// Repository returns the state repository of the committed state.
func (x *Executor) Repository() state.Repository { return x.check }

// Metadata returns the metadata of the last commit, or nil.
func (x *Executor) Metadata() (*database.Metadata, error) {
	return x.Database.Metadata.Fetch(storage.Options{})
}

// WorkingAppHash returns the root hash of the open block transaction.
func (x *Executor) WorkingAppHash() []byte {
	return x.store.GetRootHash(true)
}

// LastCoreChainLockedHeight is the core chain-locked height of the last
// committed block, or the initial core height if no block has been
// committed.
func (x *Executor) LastCoreChainLockedHeight() uint32 {
	return x.lastCoreHeight
}

// methodLogger returns the consensus logger of the block for an ABCI
// method.
func (x *Executor) methodLogger(method string) log.Logger {
	return x.block.ConsensusLogger().With("abciMethod", method)
}

// NetworkProtocolVersionIsNotSetError is returned when a block does not
// declare a protocol version. It is fatal.
type NetworkProtocolVersionIsNotSetError struct{}

func (*NetworkProtocolVersionIsNotSetError) Error() string {
	return "network protocol version is not set"
}

func (*NetworkProtocolVersionIsNotSetError) Unwrap() error { return errors.FatalError }

// NotSupportedNetworkProtocolVersionError is returned when a block
// declares a protocol version newer than the node supports. It is fatal.
type NotSupportedNetworkProtocolVersionError struct {
	Version uint64
	Latest  uint64
}

func (e *NotSupportedNetworkProtocolVersionError) Error() string {
	return fmt.Sprintf("network protocol version %d is not supported, latest is %d", e.Version, e.Latest)
}

func (*NotSupportedNetworkProtocolVersionError) Unwrap() error { return errors.FatalError }

func (x *Executor) env() *chain.Env {
	return &chain.Env{Repository: x.deliver, Block: x.block}
}

func (x *Executor) requireBlock() (*execute.Header, error) {
	header := x.block.Header()
	if header == nil || !x.store.IsTransactionStarted() {
		return nil, errors.NotReady.With("no block has begun")
	}
	return header, nil
}
