// Copyright 2024 The Accumulate Authors
//
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file or at
// https://opensource.org/licenses/MIT.

package chain_test

import (
	"context"
	"crypto/sha256"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"gitlab.com/accumulatenetwork/platform/internal/core/execute"
	. "gitlab.com/accumulatenetwork/platform/internal/core/execute/chain"
	"gitlab.com/accumulatenetwork/platform/internal/core/sml"
	"gitlab.com/accumulatenetwork/platform/internal/core/state"
	"gitlab.com/accumulatenetwork/platform/internal/database"
	"gitlab.com/accumulatenetwork/platform/internal/logging"
	"gitlab.com/accumulatenetwork/platform/internal/storage"
	"gitlab.com/accumulatenetwork/platform/internal/storage/merk"
	acctesting "gitlab.com/accumulatenetwork/platform/internal/testing"
	"gitlab.com/accumulatenetwork/platform/pkg/database/keyvalue/memory"
	"gitlab.com/accumulatenetwork/platform/protocol"
	"gitlab.com/accumulatenetwork/platform/protocol/consensus"
)

const funds = 1_000_000_000

type harness struct {
	env   *Env
	repo  state.Repository
	core  *acctesting.FakeCore
	block *execute.BlockExecutionContext
	now   time.Time
}

func setup(t *testing.T) *harness {
	t.Helper()
	store := storage.New(merk.OpenMemory(), memory.New(), logging.NewTestLogger(t))
	db := database.New(store)
	require.NoError(t, store.StartTransaction())
	_, err := db.CreateRootTrees(storage.Options{UseTransaction: true})
	require.NoError(t, err)

	h := new(harness)
	h.now = time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	h.core = acctesting.NewFakeCore()

	committed := execute.NewBlockExecutionContext()
	committed.SetHeader(&execute.Header{Height: 1, Time: h.now.Add(-time.Minute), CoreChainLockedHeight: 9})
	stack := execute.NewContextStack(0)
	stack.Add(committed)

	h.block = execute.NewBlockExecutionContext()
	h.block.SetHeader(&execute.Header{Height: 2, Time: h.now, CoreChainLockedHeight: 10})

	h.repo = state.NewDrive(state.DriveOptions{
		Database:       db,
		Core:           h.core,
		Stack:          stack,
		SML:            sml.NewStore(0),
		UseTransaction: true,
	})
	h.env = &Env{Repository: h.repo, Block: h.block}
	return h
}

func executorFor(t *testing.T, typ protocol.StateTransitionType) TransitionExecutor {
	t.Helper()
	for _, x := range Executors() {
		if x.Type() == typ {
			return x
		}
	}
	t.Fatalf("no executor for %v", typ)
	return nil
}

// validate runs every validation stage and returns the first error.
func (h *harness) validate(t *testing.T, st protocol.StateTransition) consensus.Error {
	t.Helper()
	ctx := context.Background()
	x := executorFor(t, st.Type())

	r := x.ValidateBasic(st)
	if !r.IsValid() {
		return r.FirstError()
	}
	r, err := x.ValidateSignature(ctx, h.env, st)
	require.NoError(t, err)
	if !r.IsValid() {
		return r.FirstError()
	}
	r, err = x.ValidateState(ctx, h.env, st)
	require.NoError(t, err)
	if !r.IsValid() {
		return r.FirstError()
	}
	r, err = ValidateFee(ctx, h.env, st)
	require.NoError(t, err)
	return r.FirstError()
}

func (h *harness) execute(t *testing.T, st protocol.StateTransition) {
	t.Helper()
	require.Nil(t, h.validate(t, st))
	require.NoError(t, executorFor(t, st.Type()).Apply(context.Background(), h.env, st))
}

func (h *harness) putIdentity(t *testing.T, name string) (*protocol.Identity, *acctesting.Wallet) {
	t.Helper()
	identity, wallet := acctesting.NewIdentity(name, funds)
	require.NoError(t, h.repo.StoreIdentity(context.Background(), identity, nil))
	return identity, wallet
}

func (h *harness) putContract(t *testing.T, owner protocol.Identifier) *protocol.DataContract {
	t.Helper()
	contract, _ := acctesting.NoteContract(owner, "notes")
	require.NoError(t, h.repo.StoreDataContract(context.Background(), contract, nil))
	return contract
}

func ms(t time.Time) *uint64 {
	v := uint64(t.UnixMilli())
	return &v
}

func entropy(s string) []byte {
	h := sha256.Sum256([]byte(s))
	return h[:]
}

func TestIdentityCreate(t *testing.T) {
	h := setup(t)
	ctx := context.Background()

	lock := acctesting.NewAssetLock("alice", funds/protocol.CreditsPerSatoshi)
	template, _ := acctesting.NewIdentity("alice", 0)
	st := &protocol.IdentityCreateTransition{
		Version:        protocol.LatestVersion,
		AssetLockProof: lock.InstantProof(),
		PublicKeys:     template.PublicKeys,
	}
	lock.Sign(st)
	h.execute(t, st)

	identity, err := h.repo.FetchIdentity(ctx, st.IdentityID(), nil)
	require.NoError(t, err)
	require.NotNil(t, identity)
	require.Equal(t, uint64(funds), identity.Balance)
	require.Zero(t, identity.Revision)
	require.Len(t, identity.PublicKeys, 2)
	require.Len(t, h.block.PublicKeyHashes(), 2)

	ids, err := h.repo.FetchIdentityIDsByPublicKeyHashes(ctx, [][]byte{identity.PublicKeys[0].Hash()}, nil)
	require.NoError(t, err)
	require.Equal(t, [][]protocol.Identifier{{identity.ID}}, ids)

	// The same asset lock cannot be used again
	topUp := &protocol.IdentityTopUpTransition{
		Version:        protocol.LatestVersion,
		AssetLockProof: lock.InstantProof(),
		IdentityID:     identity.ID,
	}
	lock.Sign(topUp)
	require.IsType(t, (*consensus.IdentityAssetLockTransactionOutPointAlreadyExistsError)(nil), h.validate(t, topUp))
}

func TestIdentityCreateSignedByOtherKey(t *testing.T) {
	h := setup(t)
	lock := acctesting.NewAssetLock("alice", 1000)
	template, _ := acctesting.NewIdentity("alice", 0)
	st := &protocol.IdentityCreateTransition{
		Version:        protocol.LatestVersion,
		AssetLockProof: lock.InstantProof(),
		PublicKeys:     template.PublicKeys,
	}
	require.NoError(t, protocol.Sign(st, acctesting.GenerateKey("mallory")))
	require.IsType(t, (*consensus.InvalidStateTransitionSignatureError)(nil), h.validate(t, st))

	// Verification is charged even though it failed
	var charged bool
	for _, op := range st.ExecutionContext().Operations() {
		if op.Type() == protocol.OperationSignatureVerification {
			charged = true
		}
	}
	require.True(t, charged)
}

func TestIdentityCreateInstantLockRejected(t *testing.T) {
	h := setup(t)
	h.core.InstantLockValid = false
	lock := acctesting.NewAssetLock("alice", 1000)
	template, _ := acctesting.NewIdentity("alice", 0)
	st := &protocol.IdentityCreateTransition{
		Version:        protocol.LatestVersion,
		AssetLockProof: lock.InstantProof(),
		PublicKeys:     template.PublicKeys,
	}
	lock.Sign(st)
	require.IsType(t, (*consensus.InvalidInstantAssetLockProofSignatureError)(nil), h.validate(t, st))
}

func TestIdentityTopUpWithChainProof(t *testing.T) {
	h := setup(t)
	ctx := context.Background()
	identity, _ := h.putIdentity(t, "alice")

	lock := acctesting.NewAssetLock("top up", 7)
	st := &protocol.IdentityTopUpTransition{
		Version:        protocol.LatestVersion,
		AssetLockProof: lock.ChainProof(11),
		IdentityID:     identity.ID,
	}
	lock.Sign(st)

	// Core does not know the transaction yet
	require.IsType(t, (*consensus.IdentityAssetLockTransactionOutputNotFoundError)(nil), h.validate(t, st))

	// The proof is above the chain locked height of the block
	h.core.AddTransaction(lock.CoreTransaction(11))
	require.IsType(t, (*consensus.InvalidAssetLockProofCoreChainHeightError)(nil), h.validate(t, st))

	st = &protocol.IdentityTopUpTransition{
		Version:        protocol.LatestVersion,
		AssetLockProof: lock.ChainProof(10),
		IdentityID:     identity.ID,
	}
	lock.Sign(st)
	h.execute(t, st)

	updated, err := h.repo.FetchIdentity(ctx, identity.ID, nil)
	require.NoError(t, err)
	require.Equal(t, identity.Balance+7*protocol.CreditsPerSatoshi, updated.Balance)
}

func TestIdentityCreateBasic(t *testing.T) {
	lock := acctesting.NewAssetLock("alice", 1000)
	template, wallet := acctesting.NewIdentity("alice", 0)

	cases := map[string]struct {
		Keys  []*protocol.IdentityPublicKey
		Error consensus.Error
	}{
		"no master key": {
			Keys:  template.PublicKeys[1:],
			Error: &consensus.MissingMasterPublicKeyError{},
		},
		"duplicate id": {
			Keys:  []*protocol.IdentityPublicKey{template.PublicKeys[0], wallet.AddKey(0, protocol.SecurityLevelHigh, "other")},
			Error: &consensus.DuplicatedIdentityPublicKeyIDError{DuplicatedIDs: []uint32{0}},
		},
		"duplicate data": {
			Keys: []*protocol.IdentityPublicKey{template.PublicKeys[0], func() *protocol.IdentityPublicKey {
				k := template.PublicKeys[0].Copy()
				k.ID = 5
				return k
			}()},
			Error: &consensus.DuplicatedIdentityPublicKeyError{DuplicatedIDs: []uint32{5}},
		},
		"disabled key": {
			Keys: []*protocol.IdentityPublicKey{template.PublicKeys[0], func() *protocol.IdentityPublicKey {
				k := template.PublicKeys[1].Copy()
				k.DisabledAt = new(uint64)
				return k
			}()},
			Error: &consensus.IdentityPublicKeyDisabledAtNotAllowedError{PublicKeyID: 1},
		},
	}

	for name, c := range cases {
		t.Run(name, func(t *testing.T) {
			st := &protocol.IdentityCreateTransition{
				Version:        protocol.LatestVersion,
				AssetLockProof: lock.InstantProof(),
				PublicKeys:     c.Keys,
			}
			r := IdentityCreate{}.ValidateBasic(st)
			require.False(t, r.IsValid())
			require.Equal(t, c.Error, r.FirstError())
		})
	}
}

func newUpdate(identity *protocol.Identity, wallet *acctesting.Wallet, disable []uint32, disabledAt *uint64) *protocol.IdentityUpdateTransition {
	st := &protocol.IdentityUpdateTransition{
		Version:              protocol.LatestVersion,
		IdentityID:           identity.ID,
		Revision:             identity.Revision + 1,
		DisablePublicKeys:    disable,
		PublicKeysDisabledAt: disabledAt,
		SignaturePublicKeyID: acctesting.MasterKeyID,
	}
	wallet.Sign(st, acctesting.MasterKeyID)
	return st
}

func TestIdentityUpdateDisabledAtWindow(t *testing.T) {
	h := setup(t)
	ctx := context.Background()
	identity, wallet := h.putIdentity(t, "alice")

	st := newUpdate(identity, wallet, []uint32{acctesting.HighKeyID}, ms(h.now.Add(6*time.Minute)))
	require.IsType(t, (*consensus.IdentityPublicKeyDisabledAtWindowViolationError)(nil), h.validate(t, st))

	st = newUpdate(identity, wallet, []uint32{acctesting.HighKeyID}, ms(h.now))
	h.execute(t, st)

	updated, err := h.repo.FetchIdentity(ctx, identity.ID, nil)
	require.NoError(t, err)
	require.Equal(t, uint64(1), updated.Revision)
	require.True(t, updated.PublicKey(acctesting.HighKeyID).IsDisabled())
	require.False(t, updated.PublicKey(acctesting.MasterKeyID).IsDisabled())
}

func TestIdentityUpdateReadOnlyKey(t *testing.T) {
	h := setup(t)
	identity, wallet := acctesting.NewIdentity("alice", funds)
	identity.PublicKeys[1].ReadOnly = true
	require.NoError(t, h.repo.StoreIdentity(context.Background(), identity, nil))

	st := newUpdate(identity, wallet, []uint32{acctesting.HighKeyID}, ms(h.now))
	require.Equal(t, &consensus.IdentityPublicKeyIsReadOnlyError{PublicKeyIndex: acctesting.HighKeyID}, h.validate(t, st))
}

func TestIdentityUpdateRules(t *testing.T) {
	h := setup(t)
	identity, wallet := h.putIdentity(t, "alice")

	// Only a master key may sign
	st := newUpdate(identity, wallet, []uint32{acctesting.HighKeyID}, ms(h.now))
	st.SignaturePublicKeyID = acctesting.HighKeyID
	wallet.Sign(st, acctesting.HighKeyID)
	require.IsType(t, (*consensus.PublicKeySecurityLevelNotMetError)(nil), h.validate(t, st))

	// The revision must be the next one
	st = newUpdate(identity, wallet, []uint32{acctesting.HighKeyID}, ms(h.now))
	st.Revision = 5
	wallet.Sign(st, acctesting.MasterKeyID)
	require.IsType(t, (*consensus.InvalidIdentityRevisionError)(nil), h.validate(t, st))

	// The last master key cannot be disabled
	st = newUpdate(identity, wallet, []uint32{acctesting.MasterKeyID}, ms(h.now))
	require.IsType(t, (*consensus.MissingMasterPublicKeyError)(nil), h.validate(t, st))

	// Unknown keys cannot be disabled
	st = newUpdate(identity, wallet, []uint32{9}, ms(h.now))
	require.Equal(t, &consensus.InvalidIdentityPublicKeyIDError{ID: 9}, h.validate(t, st))

	// An update must do something
	st = newUpdate(identity, wallet, nil, nil)
	require.IsType(t, (*consensus.InvalidIdentityUpdateTransitionEmptyError)(nil), h.validate(t, st))

	// Disabling requires a timestamp
	st = newUpdate(identity, wallet, []uint32{acctesting.HighKeyID}, nil)
	require.IsType(t, (*consensus.InvalidIdentityUpdateTransitionDisableKeysError)(nil), h.validate(t, st))
}

func TestIdentityUpdateAddKey(t *testing.T) {
	h := setup(t)
	ctx := context.Background()
	identity, wallet := h.putIdentity(t, "alice")

	key := wallet.AddKey(2, protocol.SecurityLevelCritical, "alice", "critical")
	st := &protocol.IdentityUpdateTransition{
		Version:              protocol.LatestVersion,
		IdentityID:           identity.ID,
		Revision:             1,
		AddPublicKeys:        []*protocol.IdentityPublicKey{key},
		SignaturePublicKeyID: acctesting.MasterKeyID,
	}
	wallet.Sign(st, acctesting.MasterKeyID)
	h.execute(t, st)

	ids, err := h.repo.FetchIdentityIDsByPublicKeyHashes(ctx, [][]byte{key.Hash()}, nil)
	require.NoError(t, err)
	require.Equal(t, [][]protocol.Identifier{{identity.ID}}, ids)
}

func TestSignatureValidation(t *testing.T) {
	h := setup(t)
	identity, wallet := acctesting.NewIdentity("alice", funds)
	disabled := uint64(1)
	identity.PublicKeys = append(identity.PublicKeys,
		func() *protocol.IdentityPublicKey {
			k := wallet.AddKey(2, protocol.SecurityLevelHigh, "alice", "disabled")
			k.DisabledAt = &disabled
			return k
		}(),
		func() *protocol.IdentityPublicKey {
			k := wallet.AddKey(3, protocol.SecurityLevelMedium, "alice", "encryption")
			k.Purpose = protocol.KeyPurposeEncryption
			return k
		}(),
	)
	require.NoError(t, h.repo.StoreIdentity(context.Background(), identity, nil))

	contract, e := acctesting.NoteContract(identity.ID, "notes")
	newCreate := func(keyID uint32) *protocol.DataContractCreateTransition {
		return &protocol.DataContractCreateTransition{
			Version:              protocol.LatestVersion,
			DataContract:         contract,
			Entropy:              e,
			SignaturePublicKeyID: keyID,
		}
	}

	cases := map[string]struct {
		KeyID  uint32
		SignAs uint32
		Error  consensus.Error
	}{
		"valid":         {KeyID: acctesting.HighKeyID, SignAs: acctesting.HighKeyID},
		"missing key":   {KeyID: 9, SignAs: acctesting.HighKeyID, Error: &consensus.MissingPublicKeyError{PublicKeyID: 9}},
		"wrong key":     {KeyID: acctesting.HighKeyID, SignAs: 2, Error: &consensus.InvalidStateTransitionSignatureError{}},
		"disabled key":  {KeyID: 2, SignAs: 2, Error: &consensus.PublicKeyIsDisabledError{PublicKeyID: 2}},
		"wrong purpose": {KeyID: 3, SignAs: 3, Error: &consensus.WrongPublicKeyPurposeError{PublicKeyPurpose: protocol.KeyPurposeEncryption, KeyPurpose: protocol.KeyPurposeAuthentication}},
		"master key": {KeyID: acctesting.MasterKeyID, SignAs: acctesting.MasterKeyID, Error: &consensus.InvalidSignaturePublicKeySecurityLevelError{
			PublicKeySecurityLevel:   protocol.SecurityLevelMaster,
			RequiredKeySecurityLevel: protocol.SecurityLevelHigh,
		}},
	}

	for name, c := range cases {
		t.Run(name, func(t *testing.T) {
			st := newCreate(c.KeyID)
			wallet.Sign(st, c.SignAs)
			r, err := DataContractCreate{}.ValidateSignature(context.Background(), h.env, st)
			require.NoError(t, err)
			if c.Error == nil {
				require.True(t, r.IsValid(), "%v", r)
				return
			}
			require.Equal(t, c.Error, r.FirstError())
		})
	}

	st := newCreate(acctesting.HighKeyID)
	r, err := DataContractCreate{}.ValidateSignature(context.Background(), h.env, st)
	require.NoError(t, err)
	require.Equal(t, &consensus.StateTransitionIsNotSignedError{}, r.FirstError())

	st.DataContract = &protocol.DataContract{OwnerID: protocol.Identifier{9}}
	r, err = DataContractCreate{}.ValidateSignature(context.Background(), h.env, st)
	require.NoError(t, err)
	require.Equal(t, &consensus.IdentityNotFoundError{IdentityID: protocol.Identifier{9}}, r.FirstError())
}

func TestDataContractCreate(t *testing.T) {
	h := setup(t)
	ctx := context.Background()
	identity, wallet := h.putIdentity(t, "alice")

	contract, e := acctesting.NoteContract(identity.ID, "notes")
	st := &protocol.DataContractCreateTransition{
		Version:              protocol.LatestVersion,
		DataContract:         contract,
		Entropy:              e,
		SignaturePublicKeyID: acctesting.HighKeyID,
	}
	wallet.Sign(st, acctesting.HighKeyID)
	h.execute(t, st)
	require.True(t, h.block.HasDataContract(contract.ID))

	stored, err := h.repo.FetchDataContract(ctx, contract.ID, nil)
	require.NoError(t, err)
	require.NotNil(t, stored)

	// Again
	st = &protocol.DataContractCreateTransition{
		Version:              protocol.LatestVersion,
		DataContract:         contract,
		Entropy:              e,
		SignaturePublicKeyID: acctesting.HighKeyID,
	}
	wallet.Sign(st, acctesting.HighKeyID)
	require.Equal(t, &consensus.DataContractAlreadyPresentError{DataContractID: contract.ID}, h.validate(t, st))
}

func TestDataContractBasic(t *testing.T) {
	owner := protocol.Identifier{1}

	cases := map[string]struct {
		Modify func(*protocol.DataContract, *[]byte)
		Error  consensus.Error
	}{
		"wrong id": {
			Modify: func(dc *protocol.DataContract, e *[]byte) { *e = entropy("other") },
		},
		"bad schema": {
			Modify: func(dc *protocol.DataContract, _ *[]byte) { dc.Documents["note"]["type"] = uint64(5) },
		},
		"undefined index property": {
			Modify: func(dc *protocol.DataContract, _ *[]byte) {
				dc.Documents["note"]["indices"] = []any{map[string]any{"name": "x", "properties": []any{map[string]any{"missing": "asc"}}}}
			},
			Error: &consensus.UndefinedIndexPropertyError{DocumentType: "note", IndexName: "x", PropertyName: "missing"},
		},
		"duplicate index name": {
			Modify: func(dc *protocol.DataContract, _ *[]byte) {
				idx := map[string]any{"name": "x", "properties": []any{map[string]any{"name": "asc"}}}
				dc.Documents["note"]["indices"] = []any{idx, idx}
			},
			Error: &consensus.DuplicateIndexNameError{DocumentType: "note", IndexName: "x"},
		},
		"id index": {
			Modify: func(dc *protocol.DataContract, _ *[]byte) {
				dc.Documents["note"]["indices"] = []any{map[string]any{"name": "x", "properties": []any{map[string]any{"$id": "asc"}}}}
			},
			Error: &consensus.SystemPropertyIndexAlreadyPresentError{DocumentType: "note", IndexName: "x", PropertyName: "$id"},
		},
		"too many unique indices": {
			Modify: func(dc *protocol.DataContract, _ *[]byte) {
				var list []any
				for _, name := range []string{"a", "b", "c", "d"} {
					list = append(list, map[string]any{"name": name, "unique": true, "properties": []any{map[string]any{"name": "asc"}}})
				}
				dc.Documents["note"]["indices"] = list
			},
			Error: &consensus.UniqueIndicesLimitReachedError{DocumentType: "note", Limit: protocol.MaxUniqueIndices},
		},
	}

	for name, c := range cases {
		t.Run(name, func(t *testing.T) {
			contract, e := acctesting.NoteContract(owner, "notes")
			c.Modify(contract, &e)
			st := &protocol.DataContractCreateTransition{
				Version:      protocol.LatestVersion,
				DataContract: contract,
				Entropy:      e,
			}
			r := DataContractCreate{}.ValidateBasic(st)
			require.False(t, r.IsValid())
			switch name {
			case "wrong id":
				require.IsType(t, (*consensus.InvalidDataContractIDError)(nil), r.FirstError())
			case "bad schema":
				require.IsType(t, (*consensus.JsonSchemaCompilationError)(nil), r.FirstError())
			default:
				require.Equal(t, c.Error, r.FirstError())
			}
		})
	}
}

func TestDataContractUpdate(t *testing.T) {
	h := setup(t)
	identity, wallet := h.putIdentity(t, "alice")
	contract := h.putContract(t, identity.ID)

	update := func(modify func(*protocol.DataContract)) *protocol.DataContractUpdateTransition {
		dc := contract.Copy()
		dc.Version++
		modify(dc)
		st := &protocol.DataContractUpdateTransition{
			Version:              protocol.LatestVersion,
			DataContract:         dc,
			SignaturePublicKeyID: acctesting.HighKeyID,
		}
		wallet.Sign(st, acctesting.HighKeyID)
		return st
	}

	st := update(func(dc *protocol.DataContract) {
		dc.Documents["note"]["indices"] = []any{}
	})
	require.Equal(t, &consensus.DataContractIndicesChangedError{DocumentType: "note"}, h.validate(t, st))

	st = update(func(dc *protocol.DataContract) { dc.Version = 3 })
	require.Equal(t, &consensus.InvalidDataContractVersionError{ExpectedVersion: 2, Version: 3}, h.validate(t, st))

	st = update(func(dc *protocol.DataContract) { dc.ID = protocol.Identifier{7} })
	require.Equal(t, &consensus.DataContractNotPresentError{DataContractID: protocol.Identifier{7}}, h.validate(t, st))

	// Adding a document type is allowed
	st = update(func(dc *protocol.DataContract) {
		dc.Documents["tag"] = protocol.DocumentSchema{
			"type":       "object",
			"properties": map[string]any{"label": map[string]any{"type": "string"}},
		}
	})
	h.execute(t, st)
	require.True(t, h.block.HasDataContract(contract.ID))
}

func TestDataContractUpdateByOtherIdentity(t *testing.T) {
	h := setup(t)
	alice, _ := h.putIdentity(t, "alice")
	mallory, wallet := h.putIdentity(t, "mallory")
	contract := h.putContract(t, alice.ID)

	// Mallory resubmits alice's contract as her own, signed with her key
	dc := contract.Copy()
	dc.Version++
	dc.OwnerID = mallory.ID
	st := &protocol.DataContractUpdateTransition{
		Version:              protocol.LatestVersion,
		DataContract:         dc,
		SignaturePublicKeyID: acctesting.HighKeyID,
	}
	wallet.Sign(st, acctesting.HighKeyID)

	require.Equal(t, &consensus.DataContractOwnerIDMismatchError{
		DataContractID:  contract.ID,
		OwnerID:         mallory.ID,
		ExistingOwnerID: alice.ID,
	}, h.validate(t, st))

	stored, err := h.repo.FetchDataContract(context.Background(), contract.ID, nil)
	require.NoError(t, err)
	require.Equal(t, alice.ID, stored.OwnerID)
	require.Equal(t, contract.Version, stored.Version)
}

func newDocument(contract *protocol.DataContract, owner protocol.Identifier, seed string, data map[string]any) *protocol.DocumentTransition {
	e := entropy(seed)
	return &protocol.DocumentTransition{
		Action:         protocol.DocumentActionCreate,
		ID:             protocol.GenerateDocumentID(contract.ID, owner, "note", e),
		Type:           "note",
		DataContractID: contract.ID,
		Entropy:        e,
		Data:           data,
	}
}

func newBatch(owner protocol.Identifier, wallet *acctesting.Wallet, transitions ...*protocol.DocumentTransition) *protocol.DocumentsBatchTransition {
	st := &protocol.DocumentsBatchTransition{
		Version:              protocol.LatestVersion,
		Owner:                owner,
		Transitions:          transitions,
		SignaturePublicKeyID: acctesting.HighKeyID,
	}
	wallet.Sign(st, acctesting.HighKeyID)
	return st
}

func (h *harness) fetchNote(t *testing.T, contract *protocol.DataContract, id protocol.Identifier) *protocol.Document {
	t.Helper()
	docs, err := h.repo.FetchDocuments(context.Background(), contract.ID, "note", &database.Query{
		Where: []database.WhereClause{{Field: protocol.PropertyID, Operator: database.OpEqual, Value: id}},
	}, nil)
	require.NoError(t, err)
	if len(docs) == 0 {
		return nil
	}
	return docs[0]
}

func TestDocumentsBatch(t *testing.T) {
	h := setup(t)
	identity, wallet := h.putIdentity(t, "alice")
	contract := h.putContract(t, identity.ID)

	create := newDocument(contract, identity.ID, "1", map[string]any{"name": "first", "score": int64(1)})
	create.CreatedAt = ms(h.now)
	h.execute(t, newBatch(identity.ID, wallet, create))

	doc := h.fetchNote(t, contract, create.ID)
	require.NotNil(t, doc)
	require.Equal(t, uint64(protocol.InitialRevision), doc.Revision)
	require.Equal(t, identity.ID, doc.OwnerID)
	require.Equal(t, "first", doc.Data["name"])

	replace := &protocol.DocumentTransition{
		Action:         protocol.DocumentActionReplace,
		ID:             create.ID,
		Type:           "note",
		DataContractID: contract.ID,
		Revision:       2,
		UpdatedAt:      ms(h.now),
		Data:           map[string]any{"name": "renamed"},
	}
	h.execute(t, newBatch(identity.ID, wallet, replace))

	doc = h.fetchNote(t, contract, create.ID)
	require.Equal(t, uint64(2), doc.Revision)
	require.Equal(t, "renamed", doc.Data["name"])
	require.NotNil(t, doc.CreatedAt)

	// The revision must be the next one
	require.Equal(t, &consensus.InvalidDocumentRevisionError{DocumentID: create.ID, CurrentRevision: 2}, h.validate(t, newBatch(identity.ID, wallet, replace)))

	// Only the owner may change a document
	other, otherWallet := h.putIdentity(t, "bob")
	del := &protocol.DocumentTransition{
		Action:         protocol.DocumentActionDelete,
		ID:             create.ID,
		Type:           "note",
		DataContractID: contract.ID,
	}
	require.IsType(t, (*consensus.DocumentOwnerIDMismatchError)(nil), h.validate(t, newBatch(other.ID, otherWallet, del)))

	h.execute(t, newBatch(identity.ID, wallet, del))
	require.Nil(t, h.fetchNote(t, contract, create.ID))
	require.IsType(t, (*consensus.DocumentNotFoundError)(nil), h.validate(t, newBatch(identity.ID, wallet, del)))
}

func TestDocumentsBatchState(t *testing.T) {
	h := setup(t)
	identity, wallet := h.putIdentity(t, "alice")
	contract := h.putContract(t, identity.ID)

	existing := newDocument(contract, identity.ID, "1", map[string]any{"name": "taken"})
	h.execute(t, newBatch(identity.ID, wallet, existing))

	late := newDocument(contract, identity.ID, "2", map[string]any{"name": "late"})
	late.CreatedAt = ms(h.now.Add(6 * time.Minute))
	early := newDocument(contract, identity.ID, "3", map[string]any{"name": "early"})
	early.UpdatedAt = ms(h.now.Add(-6 * time.Minute))
	unknownType := newDocument(contract, identity.ID, "4", map[string]any{"name": "x"})
	unknownType.Type = "missing"
	unknownType.ID = protocol.GenerateDocumentID(contract.ID, identity.ID, "missing", unknownType.Entropy)
	missingContract := newDocument(contract, identity.ID, "5", map[string]any{"name": "x"})
	missingContract.DataContractID = protocol.Identifier{9}
	missingContract.ID = protocol.GenerateDocumentID(missingContract.DataContractID, identity.ID, "note", missingContract.Entropy)

	cases := map[string]struct {
		Transition *protocol.DocumentTransition
		Error      consensus.Error
	}{
		"already present":   {existing, &consensus.DocumentAlreadyPresentError{DocumentID: existing.ID}},
		"duplicate unique":  {newDocument(contract, identity.ID, "6", map[string]any{"name": "taken"}), nil},
		"invalid data":      {newDocument(contract, identity.ID, "7", map[string]any{"name": "x", "extra": true}), nil},
		"created too late":  {late, nil},
		"updated too early": {early, nil},
		"unknown type":      {unknownType, &consensus.InvalidDocumentTypeError{Type: "missing", DataContractID: contract.ID}},
		"missing contract":  {missingContract, &consensus.DataContractNotPresentError{DataContractID: protocol.Identifier{9}}},
	}

	for name, c := range cases {
		t.Run(name, func(t *testing.T) {
			err := h.validate(t, newBatch(identity.ID, wallet, c.Transition))
			require.NotNil(t, err)
			switch name {
			case "duplicate unique":
				require.Equal(t, &consensus.DuplicateUniqueIndexError{
					DocumentID:            c.Transition.ID,
					DuplicatingProperties: []string{"name"},
				}, err)
			case "invalid data":
				require.IsType(t, (*consensus.JsonSchemaError)(nil), err)
			case "created too late", "updated too early":
				require.IsType(t, (*consensus.DocumentTimestampWindowViolationError)(nil), err)
			default:
				require.Equal(t, c.Error, err)
			}
		})
	}
}

func TestDocumentsBatchBasic(t *testing.T) {
	contract, _ := acctesting.NoteContract(protocol.Identifier{1}, "notes")
	owner := protocol.Identifier{2}
	_, wallet := acctesting.NewIdentity("alice", 0)

	doc := newDocument(contract, owner, "1", map[string]any{"name": "a"})
	badID := newDocument(contract, owner, "2", map[string]any{"name": "b"})
	badID.ID = protocol.Identifier{3}
	badAction := newDocument(contract, owner, "3", nil)
	badAction.Action = 2
	noType := newDocument(contract, owner, "4", nil)
	noType.Type = ""
	noContract := newDocument(contract, owner, "5", nil)
	noContract.DataContractID = protocol.Identifier{}

	r := DocumentsBatch{}.ValidateBasic(newBatch(owner, wallet))
	require.IsType(t, (*consensus.JsonSchemaError)(nil), r.FirstError())

	r = DocumentsBatch{}.ValidateBasic(newBatch(owner, wallet, badID))
	require.Equal(t, &consensus.InvalidDocumentTransitionIDError{ExpectedID: protocol.GenerateDocumentID(contract.ID, owner, "note", badID.Entropy), InvalidID: badID.ID}, r.FirstError())

	r = DocumentsBatch{}.ValidateBasic(newBatch(owner, wallet, badAction))
	require.Equal(t, &consensus.InvalidDocumentTransitionActionError{Action: 2}, r.FirstError())

	r = DocumentsBatch{}.ValidateBasic(newBatch(owner, wallet, noType))
	require.Equal(t, &consensus.MissingDocumentTransitionTypeError{}, r.FirstError())

	r = DocumentsBatch{}.ValidateBasic(newBatch(owner, wallet, noContract))
	require.Equal(t, &consensus.MissingDataContractIDError{}, r.FirstError())

	r = DocumentsBatch{}.ValidateBasic(newBatch(owner, wallet, doc, doc))
	require.Equal(t, &consensus.DuplicateDocumentTransitionsWithIDsError{
		References: []consensus.DocumentReference{{Type: "note", ID: doc.ID}},
	}, r.FirstError())
}

func TestDocumentsBatchApplyMissingReplace(t *testing.T) {
	h := setup(t)
	identity, wallet := h.putIdentity(t, "alice")
	contract := h.putContract(t, identity.ID)

	create := newDocument(contract, identity.ID, "1", map[string]any{"name": "first"})
	replace := &protocol.DocumentTransition{
		Action:         protocol.DocumentActionReplace,
		ID:             protocol.Identifier{42},
		Type:           "note",
		DataContractID: contract.ID,
		Revision:       2,
		Data:           map[string]any{"name": "second"},
	}

	err := DocumentsBatch{}.Apply(context.Background(), h.env, newBatch(identity.ID, wallet, create, replace))
	require.Equal(t, &DocumentNotProvidedError{ID: replace.ID}, err)

	// The create was applied before the failure
	require.NotNil(t, h.fetchNote(t, contract, create.ID))
}

func TestFeeValidation(t *testing.T) {
	h := setup(t)
	identity, wallet := acctesting.NewIdentity("poor", 10)
	require.NoError(t, h.repo.StoreIdentity(context.Background(), identity, nil))

	contract, e := acctesting.NoteContract(identity.ID, "notes")
	st := &protocol.DataContractCreateTransition{
		Version:              protocol.LatestVersion,
		DataContract:         contract,
		Entropy:              e,
		SignaturePublicKeyID: acctesting.HighKeyID,
	}
	wallet.Sign(st, acctesting.HighKeyID)

	err := h.validate(t, st)
	require.IsType(t, (*consensus.BalanceIsNotEnoughError)(nil), err)
	require.Equal(t, uint64(10), err.(*consensus.BalanceIsNotEnoughError).Balance)
}
