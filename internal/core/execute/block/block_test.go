// Copyright 2024 The Accumulate Authors
//
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file or at
// https://opensource.org/licenses/MIT.

package block_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"gitlab.com/accumulatenetwork/platform/internal/core/execute"
	. "gitlab.com/accumulatenetwork/platform/internal/core/execute/block"
	"gitlab.com/accumulatenetwork/platform/internal/database"
	"gitlab.com/accumulatenetwork/platform/internal/logging"
	"gitlab.com/accumulatenetwork/platform/internal/storage"
	"gitlab.com/accumulatenetwork/platform/internal/storage/merk"
	acctesting "gitlab.com/accumulatenetwork/platform/internal/testing"
	"gitlab.com/accumulatenetwork/platform/pkg/database/keyvalue/memory"
	"gitlab.com/accumulatenetwork/platform/pkg/errors"
	"gitlab.com/accumulatenetwork/platform/protocol"
	"gitlab.com/accumulatenetwork/platform/protocol/consensus"
)

const coreHeight = 10

type harness struct {
	*Executor
	db      *database.Database
	core    *acctesting.FakeCore
	opts    ExecutorOptions
	genesis time.Time
	height  int64
}

func genesisOptions() GenesisOptions {
	return GenesisOptions{
		InitialCoreChainLockedHeight: coreHeight,
		FeatureFlagsOwnerPublicKey:   acctesting.GenerateKey("feature flags").PubKey().SerializeCompressed(),
		DPNSOwnerPublicKey:           acctesting.GenerateKey("dpns").PubKey().SerializeCompressed(),
	}
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	store := storage.New(merk.OpenMemory(), memory.New(), logging.NewTestLogger(t))

	h := new(harness)
	h.db = database.New(store)
	h.core = acctesting.NewFakeCore()
	h.core.SetChainLockedHeight(coreHeight)
	h.genesis = time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	h.opts = ExecutorOptions{
		Logger:               logging.NewTestLogger(t),
		Database:             h.db,
		Core:                 h.core,
		ChainLockWaitBase:    time.Millisecond,
		ChainLockWaitTimeout: 20 * time.Millisecond,
		Genesis:              genesisOptions(),
	}

	var err error
	h.Executor, err = NewExecutor(h.opts)
	require.NoError(t, err)
	return h
}

func setup(t *testing.T) *harness {
	t.Helper()
	h := newHarness(t)
	_, err := h.InitChain(context.Background(), InitChainRequest{ChainID: "test", InitialHeight: 1, Time: h.genesis})
	require.NoError(t, err)
	return h
}

func (h *harness) header(height int64) execute.Header {
	return execute.Header{
		Height:                height,
		Time:                  h.genesis.Add(time.Duration(height) * time.Second),
		CoreChainLockedHeight: coreHeight,
		AppVersion:            uint64(protocol.LatestVersion),
	}
}

func (h *harness) begin(t *testing.T) {
	t.Helper()
	h.height++
	require.NoError(t, h.BeginBlock(context.Background(), BeginBlockRequest{Header: h.header(h.height)}))
}

func (h *harness) deliver(t *testing.T, st protocol.StateTransition) *TxResult {
	t.Helper()
	raw, err := protocol.MarshalStateTransition(st)
	require.NoError(t, err)
	res, err := h.DeliverTx(context.Background(), raw)
	require.NoError(t, err)
	return res
}

func (h *harness) end(t *testing.T) *EndBlockResponse {
	t.Helper()
	res, err := h.EndBlock(context.Background(), h.height)
	require.NoError(t, err)
	return res
}

func (h *harness) commit(t *testing.T) []byte {
	t.Helper()
	res, err := h.Commit(context.Background())
	require.NoError(t, err)
	return res.AppHash
}

// createIdentity returns an identity creation funded by a chain-locked
// asset lock Core knows about.
func (h *harness) createIdentity(name string, satoshis int64) (*protocol.IdentityCreateTransition, *acctesting.Wallet) {
	lock := acctesting.NewAssetLock(name, satoshis)
	h.core.AddTransaction(lock.CoreTransaction(coreHeight))
	template, wallet := acctesting.NewIdentity(name, 0)
	st := &protocol.IdentityCreateTransition{
		Version:        protocol.LatestVersion,
		AssetLockProof: lock.ChainProof(coreHeight),
		PublicKeys:     template.PublicKeys,
	}
	lock.Sign(st)
	return st, wallet
}

func (h *harness) createContract(owner protocol.Identifier, wallet *acctesting.Wallet) *protocol.DataContractCreateTransition {
	contract, e := acctesting.NoteContract(owner, "notes")
	st := &protocol.DataContractCreateTransition{
		Version:              protocol.LatestVersion,
		DataContract:         contract,
		Entropy:              e,
		SignaturePublicKeyID: acctesting.HighKeyID,
	}
	wallet.Sign(st, acctesting.HighKeyID)
	return st
}

func TestInitChain(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	res, err := h.InitChain(ctx, InitChainRequest{ChainID: "test", InitialHeight: 1, Time: h.genesis})
	require.NoError(t, err)
	require.NotEmpty(t, res.AppHash)
	require.Equal(t, res.AppHash, h.db.Store.GetRootHash(false))

	meta, err := h.Metadata()
	require.NoError(t, err)
	require.NotNil(t, meta)
	require.Equal(t, res.AppHash, meta.AppHash)
	require.Equal(t, uint64(protocol.LatestVersion), meta.AppVersion)
	require.Equal(t, uint32(coreHeight), meta.InitialCoreChainLockedHeight)

	for _, name := range []string{FeatureFlagsContractName, DPNSContractName} {
		contract, err := h.Repository().FetchDataContract(ctx, SystemContractID(name), nil)
		require.NoError(t, err)
		require.NotNil(t, contract, name)
		require.Equal(t, SystemOwnerID(name), contract.OwnerID)

		owner, err := h.Repository().FetchIdentity(ctx, SystemOwnerID(name), nil)
		require.NoError(t, err)
		require.NotNil(t, owner, name)
		require.Len(t, owner.PublicKeys, 1)
		require.Equal(t, protocol.SecurityLevelMaster, owner.PublicKeys[0].SecurityLevel)
	}

	flags, err := h.Repository().FetchDocuments(ctx, SystemContractID(FeatureFlagsContractName), FeatureFlagFixCumulativeFees, &database.Query{}, nil)
	require.NoError(t, err)
	require.Len(t, flags, 1)
	require.Equal(t, true, flags[0].Data["enabled"])

	domains, err := h.Repository().FetchDocuments(ctx, SystemContractID(DPNSContractName), "domain", &database.Query{
		Where: []database.WhereClause{{Field: "normalizedLabel", Operator: database.OpEqual, Value: TopLevelDomain}},
	}, nil)
	require.NoError(t, err)
	require.Len(t, domains, 1)
	require.Equal(t, "FXyN2NZAdRFADgBQfb1XM1Qq7pWoEcgSWj1GaiQJqcrS", domains[0].ID.String())

	// A chain is only initialized once
	_, err = h.InitChain(ctx, InitChainRequest{ChainID: "test", InitialHeight: 1, Time: h.genesis})
	require.ErrorIs(t, err, errors.NotAllowed)
}

func TestInitChainRequiresOwnerKeys(t *testing.T) {
	h := newHarness(t)
	h.Genesis.DPNSOwnerPublicKey = nil
	_, err := h.InitChain(context.Background(), InitChainRequest{InitialHeight: 1, Time: h.genesis})
	require.ErrorIs(t, err, errors.BadRequest)
	require.False(t, h.db.Store.IsTransactionStarted())
}

func TestInitChainIsDeterministic(t *testing.T) {
	a, b := setup(t), setup(t)
	require.Equal(t, a.db.Store.GetRootHash(false), b.db.Store.GetRootHash(false))
}

func TestBeginBlockProtocolVersion(t *testing.T) {
	h := setup(t)
	ctx := context.Background()

	header := h.header(1)
	header.AppVersion = 0
	err := h.BeginBlock(ctx, BeginBlockRequest{Header: header})
	var notSet *NetworkProtocolVersionIsNotSetError
	require.ErrorAs(t, err, &notSet)
	require.ErrorIs(t, err, errors.FatalError)

	header.AppVersion = uint64(protocol.LatestVersion) + 1
	err = h.BeginBlock(ctx, BeginBlockRequest{Header: header})
	var notSupported *NotSupportedNetworkProtocolVersionError
	require.ErrorAs(t, err, &notSupported)
	require.ErrorIs(t, err, errors.FatalError)
	require.Equal(t, header.AppVersion, notSupported.Version)

	require.False(t, h.db.Store.IsTransactionStarted())
}

func TestBeginBlockWaitsForChainLock(t *testing.T) {
	h := setup(t)
	h.core.SetChainLockedHeight(coreHeight - 1)

	err := h.BeginBlock(context.Background(), BeginBlockRequest{Header: h.header(1)})
	require.ErrorIs(t, err, errors.FatalError)
	require.Positive(t, h.core.Calls["getbestchainlock"])
}

func TestDeliverOutsideOfBlock(t *testing.T) {
	h := setup(t)
	st, _ := h.createIdentity("alice", 1_000_000)
	raw, err := protocol.MarshalStateTransition(st)
	require.NoError(t, err)

	_, err = h.DeliverTx(context.Background(), raw)
	require.ErrorIs(t, err, errors.NotReady)
}

func TestBlockLifecycle(t *testing.T) {
	h := setup(t)
	ctx := context.Background()
	genesisHash := h.db.Store.GetRootHash(false)

	h.begin(t)
	st, _ := h.createIdentity("alice", 1_000_000)
	res := h.deliver(t, st)
	require.True(t, res.IsOK(), res.Log)
	require.Positive(t, res.Fee)
	require.Len(t, res.Events, 1)
	require.Equal(t, "stateTransition", res.Events[0].Type)

	end := h.end(t)
	require.Equal(t, res.Fee, end.CumulativeFees)
	require.Equal(t, res.Fee, end.CreditsPool)

	// The working hash is final once the block has ended
	working := h.WorkingAppHash()
	appHash := h.commit(t)
	require.Equal(t, working, appHash)
	require.NotEqual(t, genesisHash, appHash)

	// The fee is paid by the new identity
	identity, err := h.Repository().FetchIdentity(ctx, st.IdentityID(), nil)
	require.NoError(t, err)
	require.NotNil(t, identity)
	require.Equal(t, 1_000_000*protocol.CreditsPerSatoshi-res.Fee, identity.Balance)

	pool, err := h.db.CreditsPool.Fetch(storage.Options{})
	require.NoError(t, err)
	require.Equal(t, res.Fee, pool.Value)

	meta, err := h.Metadata()
	require.NoError(t, err)
	require.Equal(t, uint64(1), meta.Height)
	require.Equal(t, appHash, meta.AppHash)

	require.Equal(t, 1, h.Stack().Size())
	require.Equal(t, int64(1), h.Stack().GetFirst().Header().Height)
}

func TestFeesAccumulateInCreditsPool(t *testing.T) {
	h := setup(t)

	h.begin(t)
	create, wallet := h.createIdentity("alice", 1_000_000)
	res1 := h.deliver(t, create)
	require.True(t, res1.IsOK(), res1.Log)
	h.end(t)
	h.commit(t)

	h.begin(t)
	res2 := h.deliver(t, h.createContract(create.IdentityID(), wallet))
	require.True(t, res2.IsOK(), res2.Log)
	end := h.end(t)
	require.Equal(t, res2.Fee, end.CumulativeFees)
	require.Equal(t, res1.Fee+res2.Fee, end.CreditsPool)
	h.commit(t)

	require.Equal(t, 2, h.Stack().Size())
	require.Equal(t, int64(2), h.Stack().GetFirst().Header().Height)
	require.Equal(t, int64(1), h.Stack().GetLast().Header().Height)
}

func TestInvalidTransitionLeavesNoTrace(t *testing.T) {
	h := setup(t)

	h.begin(t)
	before := h.WorkingAppHash()

	st, _ := h.createIdentity("alice", 1_000_000)
	require.NoError(t, protocol.Sign(st, acctesting.GenerateKey("mallory")))
	res := h.deliver(t, st)
	require.False(t, res.IsOK())
	require.Equal(t, uint32(consensus.CodeInvalidStateTransitionSignature), res.Code)
	require.NotEmpty(t, res.Data)
	require.Zero(t, res.Fee)
	require.Equal(t, before, h.WorkingAppHash())

	end := h.end(t)
	require.Zero(t, end.CumulativeFees)
}

func TestMalformedTransition(t *testing.T) {
	h := setup(t)
	h.begin(t)
	before := h.WorkingAppHash()

	res, err := h.DeliverTx(context.Background(), []byte{0xff, 0x01, 0x02})
	require.NoError(t, err)
	require.False(t, res.IsOK())
	require.True(t, consensus.Code(res.Code).IsBasic(), "code %d", res.Code)
	require.Equal(t, before, h.WorkingAppHash())
}

func TestSameHeightRetry(t *testing.T) {
	h := setup(t)
	ctx := context.Background()

	h.begin(t)
	st, _ := h.createIdentity("alice", 1_000_000)
	require.True(t, h.deliver(t, st).IsOK())
	h.end(t)
	require.Equal(t, 1, h.Stack().Size())

	// The round failed and the block is proposed again
	require.NoError(t, h.BeginBlock(ctx, BeginBlockRequest{Header: h.header(h.height)}))
	require.Zero(t, h.Stack().Size())
	require.Equal(t, h.db.Store.GetRootHash(false), h.WorkingAppHash())

	// The discarded attempt did not spend the asset lock
	res := h.deliver(t, st)
	require.True(t, res.IsOK(), res.Log)
	end := h.end(t)
	require.Equal(t, res.Fee, end.CreditsPool)
	h.commit(t)
	require.Equal(t, 1, h.Stack().Size())
}

func TestLifecycleOrder(t *testing.T) {
	h := setup(t)
	ctx := context.Background()

	h.begin(t)
	_, err := h.Commit(ctx)
	require.ErrorIs(t, err, errors.NotReady)

	_, err = h.EndBlock(ctx, h.height+1)
	require.ErrorIs(t, err, errors.BadRequest)

	h.end(t)
	_, err = h.EndBlock(ctx, h.height)
	require.ErrorIs(t, err, errors.NotAllowed)

	st, _ := h.createIdentity("alice", 1_000_000)
	raw, err := protocol.MarshalStateTransition(st)
	require.NoError(t, err)
	_, err = h.DeliverTx(ctx, raw)
	require.ErrorIs(t, err, errors.NotAllowed)
}

func TestRestart(t *testing.T) {
	h := setup(t)

	h.begin(t)
	st, _ := h.createIdentity("alice", 1_000_000)
	require.True(t, h.deliver(t, st).IsOK())
	h.end(t)
	appHash := h.commit(t)

	x, err := NewExecutor(h.opts)
	require.NoError(t, err)
	require.Equal(t, 1, x.Stack().Size())
	require.Equal(t, int64(1), x.Stack().GetFirst().Header().Height)

	meta, err := x.Metadata()
	require.NoError(t, err)
	require.Equal(t, appHash, meta.AppHash)
}

func TestCheckTx(t *testing.T) {
	h := setup(t)
	ctx := context.Background()

	h.begin(t)
	create, wallet := h.createIdentity("alice", 1_000_000)
	require.True(t, h.deliver(t, create).IsOK())
	h.end(t)
	committed := h.commit(t)

	raw, err := protocol.MarshalStateTransition(h.createContract(create.IdentityID(), wallet))
	require.NoError(t, err)
	res, err := h.CheckTx(ctx, raw)
	require.NoError(t, err)
	require.True(t, res.IsOK(), res.Log)
	require.Positive(t, res.Fee)

	// Checking writes nothing
	require.Equal(t, committed, h.db.Store.GetRootHash(false))
	contract, _ := acctesting.NoteContract(create.IdentityID(), "notes")
	dc, err := h.Repository().FetchDataContract(ctx, contract.ID, nil)
	require.NoError(t, err)
	require.Nil(t, dc)

	// Signed by the wrong key
	bad := h.createContract(create.IdentityID(), wallet)
	require.NoError(t, protocol.Sign(bad, acctesting.GenerateKey("mallory")))
	raw, err = protocol.MarshalStateTransition(bad)
	require.NoError(t, err)
	res, err = h.CheckTx(ctx, raw)
	require.NoError(t, err)
	require.Equal(t, uint32(consensus.CodeInvalidStateTransitionSignature), res.Code)
}

func TestCommittedContractIsCached(t *testing.T) {
	h := setup(t)
	ctx := context.Background()

	h.begin(t)
	create, wallet := h.createIdentity("alice", 1_000_000)
	require.True(t, h.deliver(t, create).IsOK())
	h.end(t)
	h.commit(t)

	h.begin(t)
	contract := h.createContract(create.IdentityID(), wallet)
	require.True(t, h.deliver(t, contract).IsOK())
	require.True(t, h.BlockContext().HasDataContract(contract.DataContract.ID))
	h.end(t)
	h.commit(t)

	dc, err := h.Repository().FetchDataContract(ctx, contract.DataContract.ID, nil)
	require.NoError(t, err)
	require.NotNil(t, dc)
	require.Equal(t, contract.DataContract.ID, dc.ID)
}
