// Copyright 2024 The Accumulate Authors
//
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file or at
// https://opensource.org/licenses/MIT.

package abci_test

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	abcitypes "github.com/cometbft/cometbft/abci/types"
	"github.com/stretchr/testify/require"
	"gitlab.com/accumulatenetwork/platform/internal/core/execute/block"
	"gitlab.com/accumulatenetwork/platform/internal/database"
	"gitlab.com/accumulatenetwork/platform/internal/logging"
	. "gitlab.com/accumulatenetwork/platform/internal/node/abci"
	"gitlab.com/accumulatenetwork/platform/internal/storage"
	"gitlab.com/accumulatenetwork/platform/internal/storage/merk"
	acctesting "gitlab.com/accumulatenetwork/platform/internal/testing"
	"gitlab.com/accumulatenetwork/platform/pkg/database/keyvalue/memory"
	"gitlab.com/accumulatenetwork/platform/protocol"
	"google.golang.org/grpc/codes"
)

const coreHeight = 10

type node struct {
	*Platform
	db      *database.Database
	core    *acctesting.FakeCore
	genesis time.Time
	height  int64
}

func newNode(t *testing.T) *node {
	t.Helper()
	logger := logging.NewTestLogger(t)
	n := new(node)
	n.db = database.New(storage.New(merk.OpenMemory(), memory.New(), logger))
	n.core = acctesting.NewFakeCore()
	n.core.SetChainLockedHeight(coreHeight)
	n.genesis = time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)

	x, err := block.NewExecutor(block.ExecutorOptions{
		Logger:               logger,
		Database:             n.db,
		Core:                 n.core,
		ChainLockWaitBase:    time.Millisecond,
		ChainLockWaitTimeout: 20 * time.Millisecond,
	})
	require.NoError(t, err)

	n.Platform, err = NewPlatform(Options{Executor: x, Logger: logger})
	require.NoError(t, err)
	return n
}

func setup(t *testing.T) *node {
	t.Helper()
	n := newNode(t)

	state, err := json.Marshal(&GenesisState{
		InitialCoreChainLockedHeight: coreHeight,
		FeatureFlagsOwnerPublicKey:   acctesting.GenerateKey("feature flags").PubKey().SerializeCompressed(),
		DPNSOwnerPublicKey:           acctesting.GenerateKey("dpns").PubKey().SerializeCompressed(),
	})
	require.NoError(t, err)

	res, err := n.InitChain(context.Background(), &abcitypes.RequestInitChain{
		ChainId:       "test",
		InitialHeight: 1,
		Time:          n.genesis,
		AppStateBytes: state,
	})
	require.NoError(t, err)
	require.NotEmpty(t, res.AppHash)
	return n
}

// execute proposes, finalizes and commits a block of transitions.
func (n *node) execute(t *testing.T, sts ...protocol.StateTransition) *abcitypes.ResponseFinalizeBlock {
	t.Helper()
	ctx := context.Background()
	n.height++

	var txs [][]byte
	for _, st := range sts {
		raw, err := protocol.MarshalStateTransition(st)
		require.NoError(t, err)
		txs = append(txs, raw)
	}

	prep, err := n.PrepareProposal(ctx, &abcitypes.RequestPrepareProposal{Txs: txs, MaxTxBytes: 1 << 20, Height: n.height})
	require.NoError(t, err)
	proc, err := n.ProcessProposal(ctx, &abcitypes.RequestProcessProposal{Txs: prep.Txs, Height: n.height})
	require.NoError(t, err)
	require.Equal(t, abcitypes.ResponseProcessProposal_ACCEPT, proc.Status)

	res := n.finalize(t, prep.Txs)
	_, err = n.Commit(ctx, &abcitypes.RequestCommit{})
	require.NoError(t, err)
	return res
}

func (n *node) finalize(t *testing.T, txs [][]byte) *abcitypes.ResponseFinalizeBlock {
	t.Helper()
	res, err := n.FinalizeBlock(context.Background(), &abcitypes.RequestFinalizeBlock{
		Txs:    txs,
		Height: n.height,
		Time:   n.genesis.Add(time.Duration(n.height) * time.Second),
	})
	require.NoError(t, err)
	require.Len(t, res.TxResults, len(txs))
	return res
}

func (n *node) query(t *testing.T, path string, prove bool, params any) *abcitypes.ResponseQuery {
	t.Helper()
	var data []byte
	if params != nil {
		var err error
		data, err = protocol.MarshalCBOR(params)
		require.NoError(t, err)
	}
	res, err := n.Query(context.Background(), &abcitypes.RequestQuery{Path: path, Data: data, Prove: prove})
	require.NoError(t, err)
	return res
}

func createIdentity(core *acctesting.FakeCore, name string) (*protocol.IdentityCreateTransition, *acctesting.Wallet) {
	lock := acctesting.NewAssetLock(name, 1_000_000)
	core.AddTransaction(lock.CoreTransaction(coreHeight))
	template, wallet := acctesting.NewIdentity(name, 0)
	st := &protocol.IdentityCreateTransition{
		Version:        protocol.LatestVersion,
		AssetLockProof: lock.ChainProof(coreHeight),
		PublicKeys:     template.PublicKeys,
	}
	lock.Sign(st)
	return st, wallet
}

func TestInfo(t *testing.T) {
	n := newNode(t)
	info, err := n.Info(context.Background(), &abcitypes.RequestInfo{})
	require.NoError(t, err)
	require.Zero(t, info.LastBlockHeight)
	require.Empty(t, info.LastBlockAppHash)
	require.Equal(t, uint64(protocol.LatestVersion), info.AppVersion)
}

func TestBlockExecution(t *testing.T) {
	n := setup(t)
	n.core.SetChainLockedHeight(coreHeight + 2)

	st, _ := createIdentity(n.core, "alice")
	res := n.execute(t, st)

	// The proposer moved the core chain-locked height forward
	require.Len(t, res.TxResults, 2)
	require.Zero(t, res.TxResults[0].Code)
	require.Zero(t, res.TxResults[1].Code, res.TxResults[1].Log)
	require.Positive(t, res.TxResults[1].GasUsed)
	require.Equal(t, uint32(coreHeight+2), n.Executor.LastCoreChainLockedHeight())

	info, err := n.Info(context.Background(), &abcitypes.RequestInfo{})
	require.NoError(t, err)
	require.Equal(t, int64(1), info.LastBlockHeight)
	require.Equal(t, res.AppHash, info.LastBlockAppHash)
	require.Equal(t, res.AppHash, n.db.Store.GetRootHash(false))
}

func TestRejectedTransitionIsReported(t *testing.T) {
	n := setup(t)
	st, _ := createIdentity(n.core, "alice")
	require.NoError(t, protocol.Sign(st, acctesting.GenerateKey("mallory")))

	res := n.execute(t, st)
	require.Len(t, res.TxResults, 1)
	require.NotZero(t, res.TxResults[0].Code)
	require.NotEmpty(t, res.TxResults[0].Info)
}

func TestProcessProposal(t *testing.T) {
	n := setup(t)
	ctx := context.Background()
	st, _ := createIdentity(n.core, "alice")
	raw, err := protocol.MarshalStateTransition(st)
	require.NoError(t, err)

	info := func(height uint32) []byte {
		b, err := (&BlockInfo{CoreChainLockedHeight: height}).MarshalBinary()
		require.NoError(t, err)
		return b
	}

	cases := map[string]struct {
		txs    [][]byte
		status abcitypes.ResponseProcessProposal_ProposalStatus
	}{
		"no block info":      {[][]byte{raw}, abcitypes.ResponseProcessProposal_ACCEPT},
		"same height":        {[][]byte{info(coreHeight), raw}, abcitypes.ResponseProcessProposal_ACCEPT},
		"misplaced info":     {[][]byte{raw, info(coreHeight)}, abcitypes.ResponseProcessProposal_REJECT},
		"backwards":          {[][]byte{info(coreHeight - 1)}, abcitypes.ResponseProcessProposal_REJECT},
		"ahead of core":      {[][]byte{info(coreHeight + 1)}, abcitypes.ResponseProcessProposal_REJECT},
		"corrupt block info": {[][]byte{{0xFF, 0xFF, 0xFF, 0xFF, 0xFF}}, abcitypes.ResponseProcessProposal_REJECT},
	}
	for name, c := range cases {
		t.Run(name, func(t *testing.T) {
			res, err := n.ProcessProposal(ctx, &abcitypes.RequestProcessProposal{Txs: c.txs, Height: 1})
			require.NoError(t, err)
			require.Equal(t, c.status, res.Status)
		})
	}
}

func TestPrepareProposalDropsBlockInfo(t *testing.T) {
	n := setup(t)
	forged, err := (&BlockInfo{CoreChainLockedHeight: 1000}).MarshalBinary()
	require.NoError(t, err)

	res, err := n.PrepareProposal(context.Background(), &abcitypes.RequestPrepareProposal{
		Txs:        [][]byte{forged, {1, 2, 3}},
		MaxTxBytes: 1 << 20,
	})
	require.NoError(t, err)
	require.Equal(t, [][]byte{{1, 2, 3}}, res.Txs)
}

func TestSameHeightRecovery(t *testing.T) {
	n := setup(t)
	st, _ := createIdentity(n.core, "alice")
	raw, err := protocol.MarshalStateTransition(st)
	require.NoError(t, err)

	// The node stops after finalizing the block and finalizes it again
	n.height++
	first := n.finalize(t, [][]byte{raw})
	second := n.finalize(t, [][]byte{raw})
	require.Zero(t, second.TxResults[0].Code, second.TxResults[0].Log)
	require.Equal(t, first.AppHash, second.AppHash)

	_, err = n.Commit(context.Background(), &abcitypes.RequestCommit{})
	require.NoError(t, err)
	require.Equal(t, 1, n.Executor.Stack().Size())
}

func TestCheckTx(t *testing.T) {
	n := setup(t)
	st, _ := createIdentity(n.core, "alice")
	raw, err := protocol.MarshalStateTransition(st)
	require.NoError(t, err)

	res, err := n.CheckTx(context.Background(), &abcitypes.RequestCheckTx{Tx: raw})
	require.NoError(t, err)
	require.Zero(t, res.Code, res.Log)
	require.Positive(t, res.GasWanted)

	info, err := (&BlockInfo{CoreChainLockedHeight: coreHeight}).MarshalBinary()
	require.NoError(t, err)
	res, err = n.CheckTx(context.Background(), &abcitypes.RequestCheckTx{Tx: info})
	require.NoError(t, err)
	require.NotZero(t, res.Code)
}

func TestQueryIdentities(t *testing.T) {
	n := setup(t)
	st, wallet := createIdentity(n.core, "alice")
	n.execute(t, st)

	unknown := protocol.Identifier{1}
	res := n.query(t, QueryIdentities, false, &IdentitiesRequest{IDs: [][]byte{st.IdentityID().Bytes(), unknown.Bytes()}})
	require.Zero(t, res.Code, res.Log)

	body := new(IdentitiesResponse)
	require.NoError(t, protocol.UnmarshalCBOR(res.Value, body))
	require.Len(t, body.Identities, 1)
	require.Equal(t, int64(1), body.Metadata.Height)

	identity := new(protocol.Identity)
	require.NoError(t, identity.UnmarshalBinary(body.Identities[0]))
	require.Equal(t, st.IdentityID(), identity.ID)

	// By public key hash
	pub := wallet.Keys[acctesting.HighKeyID].PubKey().SerializeCompressed()
	keyHash := (&protocol.IdentityPublicKey{Type: protocol.KeyTypeECDSASecp256k1, Data: pub}).Hash()
	res = n.query(t, QueryIdentitiesByPublicKeyHash, false, &PublicKeyHashesRequest{PublicKeyHashes: [][]byte{keyHash, make([]byte, 20)}})
	require.Zero(t, res.Code, res.Log)
	byHash := new(IdentitiesByPublicKeyHashesResponse)
	require.NoError(t, protocol.UnmarshalCBOR(res.Value, byHash))
	require.Len(t, byHash.Identities, 2)

	var found, missing [][]byte
	require.NoError(t, protocol.UnmarshalCBOR(byHash.Identities[0], &found))
	require.NoError(t, protocol.UnmarshalCBOR(byHash.Identities[1], &missing))
	require.Len(t, found, 1)
	require.Empty(t, missing)

	res = n.query(t, QueryIdentityIDsByKeyHash, false, &PublicKeyHashesRequest{PublicKeyHashes: [][]byte{keyHash}})
	require.Zero(t, res.Code, res.Log)
	ids := new(IdentityIDsByPublicKeyHashesResponse)
	require.NoError(t, protocol.UnmarshalCBOR(res.Value, ids))
	var list [][]byte
	require.NoError(t, protocol.UnmarshalCBOR(ids.IdentityIDs[0], &list))
	require.Equal(t, [][]byte{st.IdentityID().Bytes()}, list)
}

func TestQueryLimits(t *testing.T) {
	n := setup(t)

	ids := make([][]byte, DefaultMaxIdentitiesPerRequest+1)
	for i := range ids {
		ids[i] = make([]byte, 32)
	}
	res := n.query(t, QueryIdentities, false, &IdentitiesRequest{IDs: ids})
	require.Equal(t, uint32(codes.InvalidArgument), res.Code)

	res = n.query(t, QueryIdentitiesByPublicKeyHash, false, &PublicKeyHashesRequest{PublicKeyHashes: ids})
	require.Equal(t, uint32(codes.InvalidArgument), res.Code)

	res = n.query(t, QueryIdentities, false, &IdentitiesRequest{IDs: [][]byte{{1, 2, 3}}})
	require.Equal(t, uint32(codes.InvalidArgument), res.Code)

	res = n.query(t, "/unknown", false, nil)
	require.Equal(t, uint32(codes.Unimplemented), res.Code)
}

func TestQueryBeforeInitChain(t *testing.T) {
	n := newNode(t)
	res := n.query(t, QueryIdentitiesByPublicKeyHash, false, &PublicKeyHashesRequest{PublicKeyHashes: [][]byte{make([]byte, 20)}})
	require.Zero(t, res.Code, res.Log)

	body := new(IdentitiesByPublicKeyHashesResponse)
	require.NoError(t, protocol.UnmarshalCBOR(res.Value, body))
	require.Len(t, body.Identities, 1)
	var list [][]byte
	require.NoError(t, protocol.UnmarshalCBOR(body.Identities[0], &list))
	require.Empty(t, list)
}

func TestQueryDataContract(t *testing.T) {
	n := setup(t)
	id := block.SystemContractID(block.DPNSContractName)

	res := n.query(t, QueryDataContract, false, &DataContractRequest{ID: id.Bytes()})
	require.Zero(t, res.Code, res.Log)
	body := new(DataContractResponse)
	require.NoError(t, protocol.UnmarshalCBOR(res.Value, body))
	contract := new(protocol.DataContract)
	require.NoError(t, contract.UnmarshalBinary(body.DataContract))
	require.Equal(t, id, contract.ID)

	unknown := protocol.Identifier{2}
	res = n.query(t, QueryDataContract, false, &DataContractRequest{ID: unknown.Bytes()})
	require.Equal(t, uint32(codes.NotFound), res.Code)
}

func TestQueryDocuments(t *testing.T) {
	n := setup(t)
	id := block.SystemContractID(block.DPNSContractName)

	req := &DocumentsRequest{ContractID: id.Bytes(), Type: "domain"}
	req.Where = []any{[]any{"normalizedParentDomainName", "==", ""}, []any{"normalizedLabel", "==", block.TopLevelDomain}}
	res := n.query(t, QueryDocuments, false, req)
	require.Zero(t, res.Code, res.Log)

	body := new(DocumentsResponse)
	require.NoError(t, protocol.UnmarshalCBOR(res.Value, body))
	require.Len(t, body.Documents, 1)
	doc := new(protocol.Document)
	require.NoError(t, doc.UnmarshalBinary(body.Documents[0]))
	require.Equal(t, block.TopLevelDomain, doc.Data["label"])

	// Only indexed fields can be queried
	req.Where = []any{[]any{"label", "==", block.TopLevelDomain}}
	res = n.query(t, QueryDocuments, false, req)
	require.Equal(t, uint32(codes.InvalidArgument), res.Code)

	req.Where = nil
	req.Limit = database.MaxQueryLimit + 1
	res = n.query(t, QueryDocuments, false, req)
	require.Equal(t, uint32(codes.InvalidArgument), res.Code)
}

func TestQueryProofs(t *testing.T) {
	n := setup(t)
	st, _ := createIdentity(n.core, "alice")
	n.execute(t, st)
	contractID := block.SystemContractID(block.DPNSContractName)

	res := n.query(t, QueryIdentities, true, &IdentitiesRequest{IDs: [][]byte{st.IdentityID().Bytes()}})
	require.Zero(t, res.Code, res.Log)
	require.NotNil(t, res.ProofOps)
	require.Len(t, res.ProofOps.Ops, 1)
	require.Equal(t, ProofOpType, res.ProofOps.Ops[0].Type)
	require.NotEmpty(t, res.ProofOps.Ops[0].Data)

	body := new(ProofResponse)
	require.NoError(t, protocol.UnmarshalCBOR(res.Value, body))
	require.Equal(t, n.db.Store.GetRootHash(false), body.RootHash)

	res = n.query(t, QueryProofs, false, &ProofsRequest{
		IdentityIDs:     [][]byte{st.IdentityID().Bytes()},
		DataContractIDs: [][]byte{contractID.Bytes()},
	})
	require.Zero(t, res.Code, res.Log)
	require.Len(t, res.ProofOps.Ops, 2)
}
