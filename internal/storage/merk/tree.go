// Copyright 2024 The Accumulate Authors
//
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file or at
// https://opensource.org/licenses/MIT.

// Package merk adapts an iavl tree into the authenticated store engine. The
// mutable working tree is the block transaction view and the immutable tree
// of the latest saved version is the committed view.
package merk

import (
	"bytes"
	"crypto/sha256"
	"sort"
	"sync"

	iavllog "cosmossdk.io/log"
	"github.com/cosmos/iavl"
	idb "github.com/cosmos/iavl/db"
	"gitlab.com/accumulatenetwork/platform/pkg/errors"
)

// Tree is an authenticated key-value tree with a block transaction and
// nested savepoints. Writes made inside a savepoint are buffered and reach
// the working tree only when the outermost savepoint is released, so rolling
// a savepoint back leaves the working hash untouched.
type Tree struct {
	mu         sync.RWMutex
	db         idb.DB
	tree       *iavl.MutableTree
	committed  *iavl.ImmutableTree
	inTx       bool
	savepoints []*overlay
}

type overlay struct {
	entries map[string]*[]byte // nil value means deleted
}

// Open opens the tree stored in db. If version is zero the latest version is
// loaded, otherwise the given version.
func Open(db idb.DB, cacheSize int, version int64) (*Tree, error) {
	t := new(Tree)
	t.db = db
	t.tree = iavl.NewMutableTree(db, cacheSize, false, iavllog.NewNopLogger())

	var err error
	if version == 0 {
		_, err = t.tree.Load()
	} else {
		_, err = t.tree.LoadVersion(version)
	}
	if err != nil {
		return nil, errors.UnknownError.WithFormat("load tree: %w", err)
	}

	err = t.loadCommitted()
	if err != nil {
		return nil, err
	}
	return t, nil
}

// OpenMemory opens an empty in-memory tree.
func OpenMemory() *Tree {
	t, err := Open(idb.NewMemDB(), 1000, 0)
	if err != nil {
		// An empty memory database cannot fail to load
		panic(err)
	}
	return t
}

// OpenLevelDB opens a tree stored in a goleveldb database in dir.
func OpenLevelDB(dir string, cacheSize int, version int64) (*Tree, error) {
	db, err := idb.NewDB("state", "goleveldb", dir)
	if err != nil {
		return nil, errors.UnknownError.WithFormat("open state database: %w", err)
	}
	t, err := Open(db, cacheSize, version)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	return t, nil
}

func (t *Tree) loadCommitted() error {
	v := t.tree.Version()
	if v == 0 {
		t.committed = nil
		return nil
	}
	c, err := t.tree.GetImmutable(v)
	if err != nil {
		return errors.UnknownError.WithFormat("load version %d: %w", v, err)
	}
	t.committed = c
	return nil
}

// Close closes the underlying database.
func (t *Tree) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.db.Close()
}

// Version is the latest saved version.
func (t *Tree) Version() int64 {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.tree.Version()
}

// Begin starts the block transaction.
func (t *Tree) Begin() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.inTx {
		return errors.Conflict.With("transaction already started")
	}
	t.inTx = true
	return nil
}

// InTransaction reports whether the block transaction is open.
func (t *Tree) InTransaction() bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.inTx
}

// Commit saves the working tree as a new version and closes the
// transaction. Savepoints must have been released.
func (t *Tree) Commit() ([]byte, int64, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.inTx {
		return nil, 0, errors.NotAllowed.With("transaction is not started")
	}
	if len(t.savepoints) > 0 {
		return nil, 0, errors.NotAllowed.WithFormat("%d savepoints are still open", len(t.savepoints))
	}
	hash, version, err := t.save()
	if err != nil {
		return nil, 0, err
	}
	t.inTx = false
	return hash, version, nil
}

func (t *Tree) save() ([]byte, int64, error) {
	hash, version, err := t.tree.SaveVersion()
	if err != nil {
		return nil, 0, errors.UnknownError.WithFormat("save version: %w", err)
	}
	err = t.loadCommitted()
	if err != nil {
		return nil, 0, err
	}
	return hash, version, nil
}

// Rollback discards the working tree and any savepoints and closes the
// transaction.
func (t *Tree) Rollback() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.inTx {
		return errors.NotAllowed.With("transaction is not started")
	}
	t.tree.Rollback()
	t.savepoints = nil
	t.inTx = false
	return nil
}

// Savepoint opens a nested savepoint.
func (t *Tree) Savepoint() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.inTx {
		return errors.NotAllowed.With("transaction is not started")
	}
	t.savepoints = append(t.savepoints, &overlay{entries: map[string]*[]byte{}})
	return nil
}

// ReleaseSavepoint keeps the writes of the innermost savepoint.
func (t *Tree) ReleaseSavepoint() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	n := len(t.savepoints)
	if n == 0 {
		return errors.NotAllowed.With("no savepoint")
	}
	top := t.savepoints[n-1]
	t.savepoints = t.savepoints[:n-1]

	if n > 1 {
		parent := t.savepoints[n-2]
		for k, v := range top.entries {
			parent.entries[k] = v
		}
		return nil
	}

	// Apply in key order so the resulting tree shape is deterministic
	keys := make([]string, 0, len(top.entries))
	for k := range top.entries {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		err := t.apply([]byte(k), top.entries[k])
		if err != nil {
			return err
		}
	}
	return nil
}

// RollbackToSavepoint drops the writes of the innermost savepoint.
func (t *Tree) RollbackToSavepoint() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	n := len(t.savepoints)
	if n == 0 {
		return errors.NotAllowed.With("no savepoint")
	}
	t.savepoints = t.savepoints[:n-1]
	return nil
}

func (t *Tree) apply(key []byte, value *[]byte) error {
	if value == nil {
		_, _, err := t.tree.Remove(key)
		if err != nil {
			return errors.UnknownError.WithFormat("remove: %w", err)
		}
		return nil
	}
	_, err := t.tree.Set(key, *value)
	if err != nil {
		return errors.UnknownError.WithFormat("set: %w", err)
	}
	return nil
}

// Set writes to the transaction view. Outside of a transaction the write is
// saved immediately as its own version.
func (t *Tree) Set(key, value []byte) error {
	v := bytes.Clone(value)
	if v == nil {
		v = []byte{}
	}
	return t.write(key, &v)
}

// Delete removes key from the transaction view. Outside of a transaction
// the removal is saved immediately.
func (t *Tree) Delete(key []byte) error {
	return t.write(key, nil)
}

func (t *Tree) write(key []byte, value *[]byte) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if n := len(t.savepoints); n > 0 {
		t.savepoints[n-1].entries[string(key)] = value
		return nil
	}

	err := t.apply(key, value)
	if err != nil {
		return err
	}
	if t.inTx {
		return nil
	}
	_, _, err = t.save()
	return err
}

// Get reads key from the transaction view, or the committed view if
// committed is set. A missing key returns nil.
func (t *Tree) Get(key []byte, committed bool) ([]byte, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	if committed {
		if t.committed == nil {
			return nil, nil
		}
		v, err := t.committed.Get(key)
		if err != nil {
			return nil, errors.UnknownError.WithFormat("get: %w", err)
		}
		return v, nil
	}

	for i := len(t.savepoints) - 1; i >= 0; i-- {
		if v, ok := t.savepoints[i].entries[string(key)]; ok {
			if v == nil {
				return nil, nil
			}
			return bytes.Clone(*v), nil
		}
	}

	v, err := t.tree.Get(key)
	if err != nil {
		return nil, errors.UnknownError.WithFormat("get: %w", err)
	}
	return v, nil
}

// Range bounds an iteration. Start is inclusive and End exclusive. A nil
// bound is open.
type Range struct {
	Start   []byte
	End     []byte
	Reverse bool
}

// PrefixRange returns the range of keys with the given prefix.
func PrefixRange(prefix []byte) Range {
	return Range{Start: prefix, End: prefixEnd(prefix)}
}

func prefixEnd(prefix []byte) []byte {
	end := bytes.Clone(prefix)
	for i := len(end) - 1; i >= 0; i-- {
		if end[i] < 0xFF {
			end[i]++
			return end[:i+1]
		}
	}
	return nil
}

func (r Range) contains(key []byte) bool {
	if r.Start != nil && bytes.Compare(key, r.Start) < 0 {
		return false
	}
	if r.End != nil && bytes.Compare(key, r.End) >= 0 {
		return false
	}
	return true
}

// Iterate visits the keys in r in order. Iteration stops early if fn returns
// false.
func (t *Tree) Iterate(r Range, committed bool, fn func(key, value []byte) (bool, error)) error {
	t.mu.RLock()
	entries, err := t.collect(r, committed)
	t.mu.RUnlock()
	if err != nil {
		return err
	}

	for _, e := range entries {
		ok, err := fn(e.key, e.value)
		if err != nil {
			return err
		}
		if !ok {
			break
		}
	}
	return nil
}

type kv struct {
	key, value []byte
}

type iterator interface {
	Valid() bool
	Next()
	Key() []byte
	Value() []byte
	Error() error
	Close() error
}

func (t *Tree) collect(r Range, committed bool) ([]kv, error) {
	var it iterator
	var err error
	switch {
	case committed && t.committed == nil:
		return nil, nil
	case committed:
		it, err = t.committed.Iterator(r.Start, r.End, !r.Reverse)
	default:
		it, err = t.tree.Iterator(r.Start, r.End, !r.Reverse)
	}
	if err != nil {
		return nil, errors.UnknownError.WithFormat("iterate: %w", err)
	}
	defer it.Close()

	var entries []kv
	for ; it.Valid(); it.Next() {
		entries = append(entries, kv{bytes.Clone(it.Key()), bytes.Clone(it.Value())})
	}
	if err := it.Error(); err != nil {
		return nil, errors.UnknownError.WithFormat("iterate: %w", err)
	}
	if committed || len(t.savepoints) == 0 {
		return entries, nil
	}

	// Merge pending savepoint writes
	merged := make(map[string][]byte, len(entries))
	for _, e := range entries {
		merged[string(e.key)] = e.value
	}
	for _, sp := range t.savepoints {
		for k, v := range sp.entries {
			if !r.contains([]byte(k)) {
				continue
			}
			if v == nil {
				delete(merged, k)
			} else {
				merged[k] = bytes.Clone(*v)
			}
		}
	}

	entries = entries[:0]
	for k, v := range merged {
		entries = append(entries, kv{[]byte(k), v})
	}
	sort.Slice(entries, func(i, j int) bool {
		c := bytes.Compare(entries[i].key, entries[j].key)
		if r.Reverse {
			return c > 0
		}
		return c < 0
	})
	return entries, nil
}

// WorkingHash is the root hash of the transaction view, excluding writes
// pending in savepoints.
func (t *Tree) WorkingHash() []byte {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.tree.WorkingHash()
}

// CommittedHash is the root hash of the latest saved version.
func (t *Tree) CommittedHash() []byte {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if t.committed == nil {
		h := sha256.Sum256(nil)
		return h[:]
	}
	return t.committed.Hash()
}

// Proof is an ICS23 proof of a key against the committed root hash.
type Proof struct {
	Key      []byte
	Value    []byte
	Version  int64
	RootHash []byte
	Proof    []byte
}

// Prove returns a membership or non-membership proof for key from the
// committed view.
func (t *Tree) Prove(key []byte) (*Proof, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if t.committed == nil {
		return nil, errors.NotFound.With("nothing has been committed")
	}

	value, err := t.committed.Get(key)
	if err != nil {
		return nil, errors.UnknownError.WithFormat("get: %w", err)
	}
	proof, err := t.committed.GetProof(key)
	if err != nil {
		return nil, errors.UnknownError.WithFormat("prove: %w", err)
	}
	b, err := proof.Marshal()
	if err != nil {
		return nil, errors.EncodingError.WithFormat("marshal proof: %w", err)
	}
	return &Proof{
		Key:      bytes.Clone(key),
		Value:    value,
		Version:  t.committed.Version(),
		RootHash: t.committed.Hash(),
		Proof:    b,
	}, nil
}
