// Copyright 2024 The Accumulate Authors
//
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file or at
// https://opensource.org/licenses/MIT.

// Package storage is the transactional storage layer. It stores items,
// references and trees in the authenticated tree and auxiliary data in a
// key-value store, and reports the fee operations of every call.
package storage

import (
	"bytes"
	"crypto/sha256"
	"sync"

	"github.com/cometbft/cometbft/libs/log"
	"gitlab.com/accumulatenetwork/platform/internal/logging"
	"gitlab.com/accumulatenetwork/platform/internal/storage/merk"
	"gitlab.com/accumulatenetwork/platform/pkg/database/keyvalue"
	"gitlab.com/accumulatenetwork/platform/pkg/errors"
	"gitlab.com/accumulatenetwork/platform/protocol"
)

// MaxReferenceHops bounds reference resolution.
const MaxReferenceHops = 10

// TreeValueSize is the value size charged for creating a tree.
const TreeValueSize = 32

// Options controls a storage call.
type Options struct {
	// UseTransaction reads from or writes to the block transaction instead
	// of the committed state.
	UseTransaction bool

	// SkipIfExists leaves an existing key untouched.
	SkipIfExists bool

	// DryRun reports the fee operations of a write without writing.
	DryRun bool
}

// Result is the value of a storage call and the fee operations it incurred.
type Result[T any] struct {
	Value      T
	Operations []protocol.Operation
}

func opResult(ops ...protocol.Operation) Result[struct{}] {
	return Result[struct{}]{Operations: ops}
}

// Store is the transactional storage layer.
type Store struct {
	mu     sync.Mutex
	tree   *merk.Tree
	aux    keyvalue.Beginner
	auxTx  []keyvalue.ChangeSet
	logger logging.OptionalLogger
}

// New returns a store over the given tree and auxiliary database. Writes
// are logged at debug level if logger is not nil.
func New(tree *merk.Tree, aux keyvalue.Beginner, logger log.Logger) *Store {
	s := new(Store)
	s.tree = tree
	s.aux = aux
	s.logger.Set(logger, "module", "storage")
	return s
}

// Tree returns the underlying tree.
func (s *Store) Tree() *merk.Tree { return s.tree }

// StartTransaction opens the block transaction.
func (s *Store) StartTransaction() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	err := s.tree.Begin()
	if err != nil {
		return err
	}
	s.auxTx = []keyvalue.ChangeSet{s.aux.Begin(nil, true)}
	return nil
}

// IsTransactionStarted reports whether the block transaction is open.
func (s *Store) IsTransactionStarted() bool {
	return s.tree.InTransaction()
}

// CommitTransaction commits the block transaction.
func (s *Store) CommitTransaction() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.auxTx) > 1 {
		return errors.NotAllowed.WithFormat("%d savepoints are still open", len(s.auxTx)-1)
	}

	hash, version, err := s.tree.Commit()
	if err != nil {
		return err
	}
	if len(s.auxTx) == 1 {
		err = s.auxTx[0].Commit()
		s.auxTx = nil
		if err != nil {
			return errors.UnknownError.WithFormat("commit aux: %w", err)
		}
	}

	s.logger.Debug("Committed", "version", version, "hash", logging.AsHex(hash))
	return nil
}

// RollbackTransaction discards the writes of the block transaction. The
// transaction remains open.
func (s *Store) RollbackTransaction() error {
	err := s.AbortTransaction()
	if err != nil {
		return err
	}
	return s.StartTransaction()
}

// AbortTransaction discards the writes of the block transaction and closes
// it.
func (s *Store) AbortTransaction() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	err := s.tree.Rollback()
	if err != nil {
		return err
	}
	for i := len(s.auxTx) - 1; i >= 0; i-- {
		s.auxTx[i].Discard()
	}
	s.auxTx = nil
	return nil
}

// Savepoint opens a savepoint within the block transaction.
func (s *Store) Savepoint() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	err := s.tree.Savepoint()
	if err != nil {
		return err
	}
	s.auxTx = append(s.auxTx, s.auxTx[len(s.auxTx)-1].Begin(nil, true))
	return nil
}

// ReleaseSavepoint keeps the writes made since the last savepoint.
func (s *Store) ReleaseSavepoint() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	err := s.tree.ReleaseSavepoint()
	if err != nil {
		return err
	}
	top := s.auxTx[len(s.auxTx)-1]
	s.auxTx = s.auxTx[:len(s.auxTx)-1]
	return top.Commit()
}

// RollbackToSavepoint discards the writes made since the last savepoint.
func (s *Store) RollbackToSavepoint() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	err := s.tree.RollbackToSavepoint()
	if err != nil {
		return err
	}
	top := s.auxTx[len(s.auxTx)-1]
	s.auxTx = s.auxTx[:len(s.auxTx)-1]
	top.Discard()
	return nil
}

// GetRootHash returns the working hash of the block transaction, or the
// committed hash.
func (s *Store) GetRootHash(useTransaction bool) []byte {
	if useTransaction {
		return s.tree.WorkingHash()
	}
	return s.tree.CommittedHash()
}

func (s *Store) checkWrite(opts Options) error {
	inTx := s.tree.InTransaction()
	switch {
	case opts.UseTransaction && !inTx:
		return errors.NotAllowed.With("transaction is not started")
	case !opts.UseTransaction && inTx:
		return errors.NotAllowed.With("cannot write outside of the transaction while it is open")
	}
	return nil
}

func (s *Store) readElement(path Path, key []byte, committed bool) (*element, []byte, error) {
	b, err := s.tree.Get(elementKey(path, key), committed)
	if err != nil || b == nil {
		return nil, nil, err
	}
	e, err := unmarshalElement(b)
	return e, b, err
}

func (s *Store) requireTree(path Path, committed bool) error {
	parent, key := path.Parent()
	if key == nil {
		return nil
	}
	e, _, err := s.readElement(parent, key, committed)
	if err != nil {
		return err
	}
	if e == nil || e.Kind != ElementTree {
		return errors.NotFound.WithFormat("tree %v not found", path)
	}
	return nil
}

func (s *Store) insert(path Path, key []byte, e *element, opts Options) error {
	if opts.DryRun {
		return nil
	}
	err := s.checkWrite(opts)
	if err != nil {
		return err
	}
	err = s.requireTree(path, false)
	if err != nil {
		return err
	}

	k := elementKey(path, key)
	if opts.SkipIfExists {
		v, err := s.tree.Get(k, false)
		if err != nil {
			return err
		}
		if v != nil {
			return nil
		}
	}

	b, err := e.marshal()
	if err != nil {
		return err
	}
	err = s.tree.Set(k, b)
	if err != nil {
		return err
	}

	if s.logger.L != nil {
		h := sha256.Sum256(e.Value)
		s.logger.Debug("Write", "kind", e.Kind.String(), "path", path.String(), "key", logging.AsHex(key),
			"value-hash", logging.AsHex(h[:]), "app-hash", logging.AsHex(s.tree.WorkingHash()))
	}
	return nil
}

// Put stores an item.
func (s *Store) Put(path Path, key, value []byte, opts Options) (Result[struct{}], error) {
	err := s.insert(path, key, &element{Kind: ElementItem, Value: value}, opts)
	if err != nil {
		return Result[struct{}]{}, errors.UnknownError.WithFormat("put %v %x: %w", path, key, err)
	}
	return opResult(protocol.WriteOperation{KeySize: len(key), ValueSize: len(value)}), nil
}

// PutReference stores a reference to the element at target. The last
// segment of target is the key of the referenced element.
func (s *Store) PutReference(path Path, key []byte, target Path, opts Options) (Result[struct{}], error) {
	if len(target) == 0 {
		return Result[struct{}]{}, errors.BadRequest.With("empty reference")
	}
	err := s.insert(path, key, &element{Kind: ElementReference, Path: target}, opts)
	if err != nil {
		return Result[struct{}]{}, errors.UnknownError.WithFormat("put reference %v %x: %w", path, key, err)
	}

	var size int
	for _, seg := range target {
		size += len(seg)
	}
	return opResult(protocol.WriteOperation{KeySize: len(key), ValueSize: size}), nil
}

// CreateTree creates an empty tree.
func (s *Store) CreateTree(path Path, key []byte, opts Options) (Result[struct{}], error) {
	err := s.insert(path, key, &element{Kind: ElementTree}, opts)
	if err != nil {
		return Result[struct{}]{}, errors.UnknownError.WithFormat("create tree %v %x: %w", path, key, err)
	}
	return opResult(protocol.WriteOperation{KeySize: len(key), ValueSize: TreeValueSize}), nil
}

// Get reads an item, resolving references. A missing item returns nil.
func (s *Store) Get(path Path, key []byte, opts Options) (Result[[]byte], error) {
	v, err := s.get(path, key, !opts.UseTransaction)
	if err != nil {
		return Result[[]byte]{}, errors.UnknownError.WithFormat("get %v %x: %w", path, key, err)
	}
	return Result[[]byte]{
		Value:      v,
		Operations: []protocol.Operation{protocol.ReadOperation{ValueSize: len(v)}},
	}, nil
}

func (s *Store) get(path Path, key []byte, committed bool) ([]byte, error) {
	for hops := 0; ; hops++ {
		e, _, err := s.readElement(path, key, committed)
		if err != nil {
			return nil, err
		}
		if e == nil {
			return nil, nil
		}

		switch e.Kind {
		case ElementItem:
			if e.Value == nil {
				return []byte{}, nil
			}
			return e.Value, nil
		case ElementTree:
			return nil, errors.BadRequest.With("key should point to item element type")
		case ElementReference:
			if hops >= MaxReferenceHops {
				return nil, errors.BadRequest.WithFormat("reference chain is longer than %d", MaxReferenceHops)
			}
			path, key = e.Path.Parent()
		default:
			return nil, errors.InternalError.WithFormat("unknown element kind %v", e.Kind)
		}
	}
}

// Delete removes an element. Deleting a tree removes everything in it.
func (s *Store) Delete(path Path, key []byte, opts Options) (Result[struct{}], error) {
	ops := opResult(protocol.DeleteOperation{KeySize: len(key)})
	if opts.DryRun {
		return ops, nil
	}
	err := s.checkWrite(opts)
	if err != nil {
		return Result[struct{}]{}, err
	}

	e, _, err := s.readElement(path, key, false)
	if err != nil {
		return Result[struct{}]{}, err
	}
	if e == nil {
		return ops, nil
	}

	if e.Kind == ElementTree {
		var keys [][]byte
		err = s.tree.Iterate(merk.PrefixRange(encodePath(path.Append(key))), false, func(k, _ []byte) (bool, error) {
			keys = append(keys, k)
			return true, nil
		})
		if err != nil {
			return Result[struct{}]{}, err
		}
		for _, k := range keys {
			err = s.tree.Delete(k)
			if err != nil {
				return Result[struct{}]{}, err
			}
		}
	}

	err = s.tree.Delete(elementKey(path, key))
	if err != nil {
		return Result[struct{}]{}, errors.UnknownError.WithFormat("delete %v %x: %w", path, key, err)
	}
	s.logger.Debug("Delete", "path", path.String(), "key", logging.AsHex(key), "app-hash", logging.AsHex(s.tree.WorkingHash()))
	return ops, nil
}

// Entry is an element visited by [Store.Scan]. References are resolved.
type Entry struct {
	Key   []byte
	Kind  ElementKind
	Value []byte
}

// ScanOptions bounds a scan. Keys are relative to the scanned tree.
type ScanOptions struct {
	Prefix         []byte
	Start          []byte
	End            []byte
	Reverse        bool
	UseTransaction bool
}

// Scan visits the elements of the tree at path in key order. Scanning stops
// early if fn returns false. Each visited element costs a read.
func (s *Store) Scan(path Path, opts ScanOptions, fn func(*Entry) (bool, error)) (Result[struct{}], error) {
	base := elementPrefix(path)
	prefix := append(bytes.Clone(base), opts.Prefix...)
	r := merk.PrefixRange(prefix)
	if opts.Start != nil {
		start := append(bytes.Clone(base), opts.Start...)
		if bytes.Compare(start, r.Start) > 0 {
			r.Start = start
		}
	}
	if opts.End != nil {
		end := append(bytes.Clone(base), opts.End...)
		if r.End == nil || bytes.Compare(end, r.End) < 0 {
			r.End = end
		}
	}
	r.Reverse = opts.Reverse

	committed := !opts.UseTransaction
	var ops []protocol.Operation
	err := s.tree.Iterate(r, committed, func(k, v []byte) (bool, error) {
		e, err := unmarshalElement(v)
		if err != nil {
			return false, err
		}
		entry := &Entry{Key: k[len(base):], Kind: e.Kind, Value: e.Value}
		if e.Kind == ElementReference {
			target, tkey := e.Path.Parent()
			entry.Value, err = s.get(target, tkey, committed)
			if err != nil {
				return false, err
			}
		}
		ops = append(ops, protocol.ReadOperation{ValueSize: len(entry.Value)})
		return fn(entry)
	})
	if err != nil {
		return Result[struct{}]{}, errors.UnknownError.WithFormat("scan %v: %w", path, err)
	}
	return Result[struct{}]{Operations: ops}, nil
}

// Prove returns a proof of the element at path and key against the
// committed root hash.
func (s *Store) Prove(path Path, key []byte) (*merk.Proof, error) {
	return s.tree.Prove(elementKey(path, key))
}
