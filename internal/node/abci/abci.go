// Copyright 2024 The Accumulate Authors
//
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file or at
// https://opensource.org/licenses/MIT.

// Package abci implements the platform ABCI application.
//
// # Block Processing
//
// CometBFT drives a block through the following phases:
//
//   - PrepareProposal (proposer only), which prepends the block info
//   - ProcessProposal
//   - FinalizeBlock, which begins, delivers every transition and ends the
//     block, and returns the working app hash
//   - Commit
package abci

import (
	"bytes"
	"context"
	"encoding/json"
	"strconv"
	"time"

	abci "github.com/cometbft/cometbft/abci/types"
	"github.com/cometbft/cometbft/libs/log"
	cmtproto "github.com/cometbft/cometbft/proto/tendermint/types"
	"github.com/cometbft/cometbft/version"
	"gitlab.com/accumulatenetwork/platform"
	"gitlab.com/accumulatenetwork/platform/internal/core/execute"
	"gitlab.com/accumulatenetwork/platform/internal/core/execute/block"
	"gitlab.com/accumulatenetwork/platform/internal/logging"
	"gitlab.com/accumulatenetwork/platform/pkg/errors"
	"google.golang.org/grpc/codes"
)

// DefaultMaxIdentitiesPerRequest bounds the identities a query may ask for.
const DefaultMaxIdentitiesPerRequest = 100

// Options configures a [Platform].
type Options struct {
	Executor *block.Executor
	Logger   log.Logger

	// MaxIdentitiesPerRequest defaults to [DefaultMaxIdentitiesPerRequest].
	MaxIdentitiesPerRequest int

	// CoreTimeout bounds the chain lock lookups of proposals.
	CoreTimeout time.Duration
}

// Platform is a CometBFT ABCI application that executes state transitions
// with a block executor.
type Platform struct {
	abci.BaseApplication
	Options
	logger logging.OptionalLogger

	appVersion uint64
	queries    map[string]queryHandler

	// pendingHash is the app hash returned by FinalizeBlock. Commit must
	// produce the same hash.
	pendingHash []byte
	blockTxs    int
}

var _ abci.Application = (*Platform)(nil)

// NewPlatform returns a new Platform.
func NewPlatform(opts Options) (*Platform, error) {
	if opts.Executor == nil {
		return nil, errors.BadRequest.With("missing executor")
	}
	if opts.MaxIdentitiesPerRequest <= 0 {
		opts.MaxIdentitiesPerRequest = DefaultMaxIdentitiesPerRequest
	}
	if opts.CoreTimeout <= 0 {
		opts.CoreTimeout = 5 * time.Second
	}

	app := new(Platform)
	app.Options = opts
	app.logger.Set(opts.Logger, "module", "abci")
	app.queries = app.queryHandlers()

	app.appVersion = opts.Executor.LatestProtocolVersion
	meta, err := opts.Executor.Metadata()
	if err != nil {
		return nil, errors.UnknownError.WithFormat("load metadata: %w", err)
	}
	if meta != nil && meta.AppVersion != 0 {
		app.appVersion = meta.AppVersion
	}

	app.logger.Info("Starting ABCI application", "platform", platform.Version, "protocol", app.appVersion)
	return app, nil
}

// Info implements [abci.Application].
func (app *Platform) Info(context.Context, *abci.RequestInfo) (*abci.ResponseInfo, error) {
	// The ABCI application version may affect CometBFT. The executable
	// version tells us what commit to look at when debugging a crash log.
	data, err := json.Marshal(struct {
		Version, Commit string
	}{
		Version: platform.Version,
		Commit:  platform.Commit,
	})
	if err != nil {
		return nil, errors.EncodingError.Wrap(err)
	}

	res := &abci.ResponseInfo{
		Data:       string(data),
		Version:    version.ABCIVersion,
		AppVersion: app.appVersion,
	}

	meta, err := app.Executor.Metadata()
	if err != nil {
		return nil, errors.UnknownError.WithFormat("load metadata: %w", err)
	}
	if meta != nil && meta.Height > 0 {
		res.LastBlockHeight = int64(meta.Height)
		res.LastBlockAppHash = meta.AppHash
	}
	return res, nil
}

// InitChain implements [abci.Application]. The app state of the genesis
// document, if present, overrides the configured genesis options.
func (app *Platform) InitChain(ctx context.Context, req *abci.RequestInitChain) (*abci.ResponseInitChain, error) {
	if len(req.AppStateBytes) > 0 {
		state := new(GenesisState)
		err := json.Unmarshal(req.AppStateBytes, state)
		if err != nil {
			return nil, errors.EncodingError.WithFormat("decode app state: %w", err)
		}
		app.Executor.Genesis = state.Options()
	}

	var appVersion uint64
	if req.ConsensusParams != nil && req.ConsensusParams.Version != nil {
		appVersion = req.ConsensusParams.Version.App
	}

	res, err := app.Executor.InitChain(ctx, block.InitChainRequest{
		ChainID:       req.ChainId,
		InitialHeight: req.InitialHeight,
		Time:          req.Time,
		AppVersion:    appVersion,
	})
	if err != nil {
		return nil, err
	}

	meta, err := app.Executor.Metadata()
	if err != nil {
		return nil, errors.UnknownError.WithFormat("load metadata: %w", err)
	}
	app.appVersion = meta.AppVersion

	// Validator set changes come from masternode list sync, so the genesis
	// validators are kept as they are
	return &abci.ResponseInitChain{AppHash: res.AppHash}, nil
}

// CheckTx implements [abci.Application]. It validates the transition
// against the committed state.
func (app *Platform) CheckTx(ctx context.Context, req *abci.RequestCheckTx) (*abci.ResponseCheckTx, error) {
	res, err := app.Executor.CheckTx(ctx, req.Tx)
	if err != nil {
		app.logger.Error("Check failed", "error", err, "recheck", req.Type == abci.CheckTxType_Recheck)
		checkTxCount.WithLabelValues("error").Inc()
		return &abci.ResponseCheckTx{Code: uint32(codes.Internal), Log: err.Error(), Info: codes.Internal.String()}, nil
	}

	if !res.IsOK() {
		checkTxCount.WithLabelValues("invalid").Inc()
	} else {
		checkTxCount.WithLabelValues("valid").Inc()
	}
	return &abci.ResponseCheckTx{
		Code:      res.Code,
		Data:      res.Data,
		Log:       res.Log,
		Info:      res.Info,
		GasWanted: int64(res.Fee),
	}, nil
}

// PrepareProposal implements [abci.Application]. The proposer moves the
// core chain-locked height forward when Core has locked a newer block.
func (app *Platform) PrepareProposal(ctx context.Context, req *abci.RequestPrepareProposal) (*abci.ResponsePrepareProposal, error) {
	txs := make([][]byte, 0, len(req.Txs)+1)
	var size int64

	if info := app.proposeBlockInfo(ctx); info != nil {
		b, err := info.MarshalBinary()
		if err != nil {
			return nil, err
		}
		size += int64(len(b))
		txs = append(txs, b)
	}

	for _, tx := range req.Txs {
		if isBlockInfo(tx) {
			continue
		}
		size += int64(len(tx))
		if size > req.MaxTxBytes {
			break
		}
		txs = append(txs, tx)
	}
	return &abci.ResponsePrepareProposal{Txs: txs}, nil
}

func (app *Platform) proposeBlockInfo(ctx context.Context) *BlockInfo {
	ctx, cancel := context.WithTimeout(ctx, app.CoreTimeout)
	defer cancel()

	cl, err := app.Executor.Core.GetBestChainLock(ctx)
	if err != nil {
		app.logger.Error("Failed to get the best chain lock, keeping the core chain-locked height", "error", err)
		return nil
	}
	if cl.Height <= app.Executor.LastCoreChainLockedHeight() {
		return nil
	}
	return &BlockInfo{CoreChainLockedHeight: cl.Height}
}

// ProcessProposal implements [abci.Application]. A proposal is rejected if
// its block info is misplaced, moves the core chain-locked height
// backwards, or is ahead of what the local Core has locked.
func (app *Platform) ProcessProposal(ctx context.Context, req *abci.RequestProcessProposal) (*abci.ResponseProcessProposal, error) {
	reject := func(reason string, keyVals ...any) (*abci.ResponseProcessProposal, error) {
		app.logger.Info("Rejecting proposal", append([]any{"height", req.Height, "reason", reason}, keyVals...)...)
		rejectedProposals.Inc()
		return &abci.ResponseProcessProposal{Status: abci.ResponseProcessProposal_REJECT}, nil
	}

	info, txs, err := splitBlockInfo(req.Txs)
	if err != nil {
		return reject("invalid block info", "error", err)
	}
	for _, tx := range txs {
		if isBlockInfo(tx) {
			return reject("block info must be the first transaction")
		}
	}

	if info != nil {
		last := app.Executor.LastCoreChainLockedHeight()
		if info.CoreChainLockedHeight < last {
			return reject("core chain-locked height moved backwards", "proposed", info.CoreChainLockedHeight, "last", last)
		}

		ctx, cancel := context.WithTimeout(ctx, app.CoreTimeout)
		defer cancel()
		cl, err := app.Executor.Core.GetBestChainLock(ctx)
		if err != nil {
			return reject("core is unavailable", "error", err)
		}
		if info.CoreChainLockedHeight > cl.Height {
			return reject("core chain-locked height is not locked", "proposed", info.CoreChainLockedHeight, "locked", cl.Height)
		}
	}

	return &abci.ResponseProcessProposal{Status: abci.ResponseProcessProposal_ACCEPT}, nil
}

// FinalizeBlock implements [abci.Application]. An error halts the node.
func (app *Platform) FinalizeBlock(ctx context.Context, req *abci.RequestFinalizeBlock) (*abci.ResponseFinalizeBlock, error) {
	start := time.Now()
	info, txs, err := splitBlockInfo(req.Txs)
	if err != nil {
		return nil, errors.FatalError.Wrap(err)
	}

	header := execute.Header{
		Height:                req.Height,
		Time:                  req.Time,
		CoreChainLockedHeight: app.Executor.LastCoreChainLockedHeight(),
		ProposerProTxHash:     req.ProposerAddress,
		AppVersion:            app.appVersion,
	}
	if info != nil {
		header.CoreChainLockedHeight = info.CoreChainLockedHeight
	}

	err = app.Executor.BeginBlock(ctx, block.BeginBlockRequest{
		Header:         header,
		LastCommitInfo: commitInfo(req.DecidedLastCommit),
	})
	if err != nil {
		return nil, err
	}

	results := make([]*abci.ExecTxResult, 0, len(req.Txs))
	if info != nil {
		results = append(results, &abci.ExecTxResult{})
	}
	for _, tx := range txs {
		res, err := app.Executor.DeliverTx(ctx, tx)
		if err != nil {
			return nil, err
		}
		results = append(results, execTxResult(res))
	}

	end, err := app.Executor.EndBlock(ctx, req.Height)
	if err != nil {
		return nil, err
	}

	app.pendingHash = app.Executor.WorkingAppHash()
	app.blockTxs = len(txs)
	finalizeDuration.Observe(time.Since(start).Seconds())

	return &abci.ResponseFinalizeBlock{
		TxResults: results,
		AppHash:   app.pendingHash,
		Events: []abci.Event{{
			Type: "block",
			Attributes: []abci.EventAttribute{
				{Key: "coreChainLockedHeight", Value: strconv.FormatUint(uint64(header.CoreChainLockedHeight), 10)},
				{Key: "fees", Value: strconv.FormatUint(end.CumulativeFees, 10)},
				{Key: "creditsPool", Value: strconv.FormatUint(end.CreditsPool, 10)},
			},
		}},
	}, nil
}

// Commit implements [abci.Application]. Committing a different state than
// the one FinalizeBlock hashed is fatal.
func (app *Platform) Commit(ctx context.Context, _ *abci.RequestCommit) (*abci.ResponseCommit, error) {
	res, err := app.Executor.Commit(ctx)
	if err != nil {
		return nil, err
	}

	if !bytes.Equal(res.AppHash, app.pendingHash) {
		return nil, errors.FatalError.WithFormat("committed app hash %X does not match the finalized app hash %X", res.AppHash, app.pendingHash)
	}

	app.logger.Debug("Committed", "transactions", app.blockTxs, "app-hash", logging.AsUpperHex(res.AppHash))
	app.pendingHash = nil
	app.blockTxs = 0
	return &abci.ResponseCommit{}, nil
}

func commitInfo(info abci.CommitInfo) *execute.CommitInfo {
	c := &execute.CommitInfo{Round: info.Round}
	for _, v := range info.Votes {
		c.Votes = append(c.Votes, execute.Vote{
			Address: v.Validator.Address,
			Power:   v.Validator.Power,
			Signed:  v.BlockIdFlag == cmtproto.BlockIDFlagCommit,
		})
	}
	return c
}

func execTxResult(res *block.TxResult) *abci.ExecTxResult {
	r := &abci.ExecTxResult{
		Code:    res.Code,
		Data:    res.Data,
		Log:     res.Log,
		Info:    res.Info,
		GasUsed: int64(res.Fee),
	}
	for _, e := range res.Events {
		event := abci.Event{Type: e.Type}
		for _, a := range e.Attributes {
			event.Attributes = append(event.Attributes, abci.EventAttribute{Key: a.Key, Value: a.Value, Index: true})
		}
		r.Events = append(r.Events, event)
	}
	return r
}

// GenesisState is the app state of the genesis document.
type GenesisState struct {
	InitialCoreChainLockedHeight uint32 `json:"initialCoreChainLockedHeight"`
	FeatureFlagsOwnerPublicKey   []byte `json:"featureFlagsOwnerPublicKey"`
	DPNSOwnerPublicKey           []byte `json:"dpnsOwnerPublicKey"`
}

func (s *GenesisState) Options() block.GenesisOptions {
	return block.GenesisOptions{
		InitialCoreChainLockedHeight: s.InitialCoreChainLockedHeight,
		FeatureFlagsOwnerPublicKey:   s.FeatureFlagsOwnerPublicKey,
		DPNSOwnerPublicKey:           s.DPNSOwnerPublicKey,
	}
}
