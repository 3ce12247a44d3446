// Copyright 2024 The Accumulate Authors
//
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file or at
// https://opensource.org/licenses/MIT.

package storage_test

import (
	"testing"

	"github.com/stretchr/testify/require"
	"gitlab.com/accumulatenetwork/platform/internal/logging"
	. "gitlab.com/accumulatenetwork/platform/internal/storage"
	"gitlab.com/accumulatenetwork/platform/internal/storage/merk"
	"gitlab.com/accumulatenetwork/platform/pkg/database/keyvalue/memory"
	"gitlab.com/accumulatenetwork/platform/pkg/errors"
	"gitlab.com/accumulatenetwork/platform/protocol"
)

var tx = Options{UseTransaction: true}

func newStore(t *testing.T) *Store {
	return New(merk.OpenMemory(), memory.New(), logging.NewTestLogger(t))
}

func TestGetMissing(t *testing.T) {
	s := newStore(t)
	r, err := s.Get(P("missing", "path"), []byte("key"), Options{})
	require.NoError(t, err)
	require.Nil(t, r.Value)
	require.Equal(t, []protocol.Operation{protocol.ReadOperation{ValueSize: 0}}, r.Operations)

	r, err = s.GetAux([]byte("key"), Options{})
	require.NoError(t, err)
	require.Nil(t, r.Value)
	require.Equal(t, []protocol.Operation{protocol.ReadOperation{ValueSize: 0}}, r.Operations)
}

func TestOperationCosts(t *testing.T) {
	s := newStore(t)
	require.NoError(t, s.StartTransaction())

	r, err := s.CreateTree(nil, []byte("root"), tx)
	require.NoError(t, err)
	require.Equal(t, []protocol.Operation{protocol.WriteOperation{KeySize: 4, ValueSize: 32}}, r.Operations)

	r, err = s.Put(P("root"), []byte("k"), []byte("value"), tx)
	require.NoError(t, err)
	require.Equal(t, []protocol.Operation{protocol.WriteOperation{KeySize: 1, ValueSize: 5}}, r.Operations)

	r, err = s.PutReference(P("root"), []byte("ref"), P("root", "k"), tx)
	require.NoError(t, err)
	require.Equal(t, []protocol.Operation{protocol.WriteOperation{KeySize: 3, ValueSize: 5}}, r.Operations)

	g, err := s.Get(P("root"), []byte("ref"), tx)
	require.NoError(t, err)
	require.Equal(t, []byte("value"), g.Value)
	require.Equal(t, []protocol.Operation{protocol.ReadOperation{ValueSize: 5}}, g.Operations)

	r, err = s.Delete(P("root"), []byte("k"), tx)
	require.NoError(t, err)
	require.Equal(t, []protocol.Operation{protocol.DeleteOperation{KeySize: 1}}, r.Operations)

	r, err = s.PutAux([]byte("aux"), []byte("data"), tx)
	require.NoError(t, err)
	require.Equal(t, []protocol.Operation{protocol.WriteOperation{KeySize: 3, ValueSize: 4}}, r.Operations)

	r, err = s.DeleteAux([]byte("aux"), tx)
	require.NoError(t, err)
	require.Equal(t, []protocol.Operation{protocol.DeleteOperation{KeySize: 3}}, r.Operations)
}

func TestTreeSemantics(t *testing.T) {
	s := newStore(t)
	require.NoError(t, s.StartTransaction())

	// Writes need a parent tree
	_, err := s.Put(P("nope"), []byte("k"), []byte("v"), tx)
	require.ErrorIs(t, err, errors.NotFound)

	_, err = s.CreateTree(nil, []byte("root"), tx)
	require.NoError(t, err)
	_, err = s.CreateTree(P("root"), []byte("sub"), tx)
	require.NoError(t, err)
	_, err = s.Put(P("root", "sub"), []byte("k"), []byte("v"), tx)
	require.NoError(t, err)

	// Get on a tree fails
	_, err = s.Get(P("root"), []byte("sub"), tx)
	require.Error(t, err)

	// Skip if exists
	_, err = s.Put(P("root", "sub"), []byte("k"), []byte("other"), Options{UseTransaction: true, SkipIfExists: true})
	require.NoError(t, err)
	g, err := s.Get(P("root", "sub"), []byte("k"), tx)
	require.NoError(t, err)
	require.Equal(t, []byte("v"), g.Value)

	// Deleting a tree removes its contents
	_, err = s.Delete(P("root"), []byte("sub"), tx)
	require.NoError(t, err)
	_, err = s.CreateTree(P("root"), []byte("sub"), tx)
	require.NoError(t, err)
	g, err = s.Get(P("root", "sub"), []byte("k"), tx)
	require.NoError(t, err)
	require.Nil(t, g.Value)
}

func TestReferenceLoop(t *testing.T) {
	s := newStore(t)
	require.NoError(t, s.StartTransaction())
	_, err := s.CreateTree(nil, []byte("root"), tx)
	require.NoError(t, err)
	_, err = s.PutReference(P("root"), []byte("a"), P("root", "b"), tx)
	require.NoError(t, err)
	_, err = s.PutReference(P("root"), []byte("b"), P("root", "a"), tx)
	require.NoError(t, err)

	_, err = s.Get(P("root"), []byte("a"), tx)
	require.Error(t, err)
}

func TestTransactionViews(t *testing.T) {
	s := newStore(t)

	// Outside of a transaction, writes commit immediately
	_, err := s.CreateTree(nil, []byte("root"), Options{})
	require.NoError(t, err)
	committed := s.GetRootHash(false)

	require.NoError(t, s.StartTransaction())
	require.True(t, s.IsTransactionStarted())

	// Non-transactional writes are refused while a transaction is open
	_, err = s.Put(P("root"), []byte("k"), []byte("v"), Options{})
	require.ErrorIs(t, err, errors.NotAllowed)

	_, err = s.Put(P("root"), []byte("k"), []byte("v"), tx)
	require.NoError(t, err)
	_, err = s.PutAux([]byte("k"), []byte("v"), tx)
	require.NoError(t, err)
	require.NotEqual(t, committed, s.GetRootHash(true))
	require.Equal(t, committed, s.GetRootHash(false))

	g, err := s.Get(P("root"), []byte("k"), Options{})
	require.NoError(t, err)
	require.Nil(t, g.Value)
	a, err := s.GetAux([]byte("k"), Options{})
	require.NoError(t, err)
	require.Nil(t, a.Value)
	a, err = s.GetAux([]byte("k"), tx)
	require.NoError(t, err)
	require.Equal(t, []byte("v"), a.Value)

	require.NoError(t, s.CommitTransaction())
	require.False(t, s.IsTransactionStarted())

	g, err = s.Get(P("root"), []byte("k"), Options{})
	require.NoError(t, err)
	require.Equal(t, []byte("v"), g.Value)
	a, err = s.GetAux([]byte("k"), Options{})
	require.NoError(t, err)
	require.Equal(t, []byte("v"), a.Value)
}

func TestSavepoints(t *testing.T) {
	s := newStore(t)
	_, err := s.CreateTree(nil, []byte("root"), Options{})
	require.NoError(t, err)
	require.NoError(t, s.StartTransaction())

	require.NoError(t, s.Savepoint())
	_, err = s.Put(P("root"), []byte("a"), []byte("1"), tx)
	require.NoError(t, err)
	_, err = s.PutAux([]byte("a"), []byte("1"), tx)
	require.NoError(t, err)
	require.NoError(t, s.ReleaseSavepoint())
	hash := s.GetRootHash(true)

	require.NoError(t, s.Savepoint())
	_, err = s.Put(P("root"), []byte("b"), []byte("2"), tx)
	require.NoError(t, err)
	_, err = s.PutAux([]byte("b"), []byte("2"), tx)
	require.NoError(t, err)
	require.NoError(t, s.RollbackToSavepoint())
	require.Equal(t, hash, s.GetRootHash(true))

	g, err := s.Get(P("root"), []byte("b"), tx)
	require.NoError(t, err)
	require.Nil(t, g.Value)
	a, err := s.GetAux([]byte("b"), tx)
	require.NoError(t, err)
	require.Nil(t, a.Value)

	require.NoError(t, s.CommitTransaction())
	a, err = s.GetAux([]byte("a"), Options{})
	require.NoError(t, err)
	require.Equal(t, []byte("1"), a.Value)
}

func TestRollbackTransaction(t *testing.T) {
	s := newStore(t)
	_, err := s.CreateTree(nil, []byte("root"), Options{})
	require.NoError(t, err)
	hash := s.GetRootHash(false)

	require.NoError(t, s.StartTransaction())
	_, err = s.Put(P("root"), []byte("a"), []byte("1"), tx)
	require.NoError(t, err)
	require.NoError(t, s.RollbackTransaction())
	require.True(t, s.IsTransactionStarted())
	require.Equal(t, hash, s.GetRootHash(true))

	require.NoError(t, s.AbortTransaction())
	require.False(t, s.IsTransactionStarted())
}

func TestScan(t *testing.T) {
	s := newStore(t)
	require.NoError(t, s.StartTransaction())
	_, err := s.CreateTree(nil, []byte("root"), tx)
	require.NoError(t, err)
	_, err = s.CreateTree(P("root"), []byte("items"), tx)
	require.NoError(t, err)
	for _, k := range []string{"b", "a", "c"} {
		_, err = s.Put(P("root", "items"), []byte(k), []byte("v"+k), tx)
		require.NoError(t, err)
	}
	_, err = s.PutReference(P("root"), []byte("ref"), P("root", "items", "c"), tx)
	require.NoError(t, err)

	var keys []string
	r, err := s.Scan(P("root", "items"), ScanOptions{UseTransaction: true}, func(e *Entry) (bool, error) {
		keys = append(keys, string(e.Key))
		return true, nil
	})
	require.NoError(t, err)
	require.Equal(t, []string{"a", "b", "c"}, keys)
	require.Len(t, r.Operations, 3)

	// Direct elements only; nested trees are reported as trees
	var kinds []ElementKind
	_, err = s.Scan(P("root"), ScanOptions{UseTransaction: true}, func(e *Entry) (bool, error) {
		kinds = append(kinds, e.Kind)
		if e.Kind == ElementReference {
			require.Equal(t, []byte("vc"), e.Value)
		}
		return true, nil
	})
	require.NoError(t, err)
	require.Equal(t, []ElementKind{ElementTree, ElementReference}, kinds)

	// Committed view is empty
	keys = nil
	_, err = s.Scan(P("root", "items"), ScanOptions{}, func(e *Entry) (bool, error) {
		keys = append(keys, string(e.Key))
		return true, nil
	})
	require.NoError(t, err)
	require.Empty(t, keys)
}

func TestProve(t *testing.T) {
	s := newStore(t)
	_, err := s.CreateTree(nil, []byte("root"), Options{})
	require.NoError(t, err)
	_, err = s.Put(P("root"), []byte("k"), []byte("v"), Options{})
	require.NoError(t, err)

	proof, err := s.Prove(P("root"), []byte("k"))
	require.NoError(t, err)
	require.Equal(t, s.GetRootHash(false), proof.RootHash)
}
