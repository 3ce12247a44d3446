// Copyright 2024 The Accumulate Authors
//
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file or at
// https://opensource.org/licenses/MIT.

package storage

import (
	"gitlab.com/accumulatenetwork/platform/pkg/database/keyvalue"
	"gitlab.com/accumulatenetwork/platform/pkg/errors"
	"gitlab.com/accumulatenetwork/platform/protocol"
)

// auxBatch returns the change set to use for an auxiliary write and a
// function that completes it.
func (s *Store) auxBatch(opts Options) (keyvalue.ChangeSet, func() error, error) {
	err := s.checkWrite(opts)
	if err != nil {
		return nil, nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if opts.UseTransaction {
		return s.auxTx[len(s.auxTx)-1], func() error { return nil }, nil
	}

	batch := s.aux.Begin(nil, true)
	return batch, batch.Commit, nil
}

// PutAux stores auxiliary data. Auxiliary data is not part of the root
// hash.
func (s *Store) PutAux(key, value []byte, opts Options) (Result[struct{}], error) {
	ops := opResult(protocol.WriteOperation{KeySize: len(key), ValueSize: len(value)})
	if opts.DryRun {
		return ops, nil
	}

	batch, done, err := s.auxBatch(opts)
	if err != nil {
		return Result[struct{}]{}, err
	}
	if opts.SkipIfExists {
		_, err = batch.Get(key)
		switch {
		case err == nil:
			return ops, done()
		case !errors.Is(err, errors.NotFound):
			return Result[struct{}]{}, errors.UnknownError.WithFormat("get aux %x: %w", key, err)
		}
	}

	err = batch.Put(key, value)
	if err != nil {
		return Result[struct{}]{}, errors.UnknownError.WithFormat("put aux %x: %w", key, err)
	}
	err = done()
	if err != nil {
		return Result[struct{}]{}, errors.UnknownError.WithFormat("commit aux %x: %w", key, err)
	}
	return ops, nil
}

// GetAux reads auxiliary data. Missing data returns nil.
func (s *Store) GetAux(key []byte, opts Options) (Result[[]byte], error) {
	var batch keyvalue.ChangeSet
	s.mu.Lock()
	if opts.UseTransaction && len(s.auxTx) > 0 {
		batch = s.auxTx[len(s.auxTx)-1]
	}
	s.mu.Unlock()

	if batch == nil {
		batch = s.aux.Begin(nil, false)
		defer batch.Discard()
	}

	v, err := batch.Get(key)
	switch {
	case err == nil:
	case errors.Is(err, errors.NotFound):
		v = nil
	default:
		return Result[[]byte]{}, errors.UnknownError.WithFormat("get aux %x: %w", key, err)
	}
	return Result[[]byte]{
		Value:      v,
		Operations: []protocol.Operation{protocol.ReadOperation{ValueSize: len(v)}},
	}, nil
}

// DeleteAux removes auxiliary data.
func (s *Store) DeleteAux(key []byte, opts Options) (Result[struct{}], error) {
	ops := opResult(protocol.DeleteOperation{KeySize: len(key)})
	if opts.DryRun {
		return ops, nil
	}

	batch, done, err := s.auxBatch(opts)
	if err != nil {
		return Result[struct{}]{}, err
	}
	err = batch.Delete(key)
	if err != nil {
		return Result[struct{}]{}, errors.UnknownError.WithFormat("delete aux %x: %w", key, err)
	}
	err = done()
	if err != nil {
		return Result[struct{}]{}, errors.UnknownError.WithFormat("commit aux %x: %w", key, err)
	}
	return ops, nil
}
