// Copyright 2024 The Accumulate Authors
//
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file or at
// https://opensource.org/licenses/MIT.

package database

import (
	"gitlab.com/accumulatenetwork/platform/internal/storage"
	"gitlab.com/accumulatenetwork/platform/internal/storage/merk"
	"gitlab.com/accumulatenetwork/platform/pkg/errors"
	"gitlab.com/accumulatenetwork/platform/protocol"
)

// IdentityRepository stores identities by id.
type IdentityRepository struct {
	store *storage.Store
}

func (r *IdentityRepository) Store(identity *protocol.Identity, opts storage.Options) (storage.Result[struct{}], error) {
	b, err := identity.MarshalBinary()
	if err != nil {
		return storage.Result[struct{}]{}, errors.EncodingError.WithFormat("encode identity: %w", err)
	}
	return r.store.Put(storage.P(TreeIdentities), identity.ID.Bytes(), b, opts)
}

func (r *IdentityRepository) Fetch(id protocol.Identifier, opts storage.Options) (storage.Result[*protocol.Identity], error) {
	return fetchEntity[protocol.Identity](r.store, storage.P(TreeIdentities), id.Bytes(), opts)
}

// Prove proves the identity against the committed state.
func (r *IdentityRepository) Prove(id protocol.Identifier) (*merk.Proof, error) {
	return r.store.Prove(storage.P(TreeIdentities), id.Bytes())
}

// PublicKeyHashRepository maps public key hashes to the identities that
// hold them.
type PublicKeyHashRepository struct {
	store *storage.Store
}

// Store records that identity holds a key with the given hash.
func (r *PublicKeyHashRepository) Store(hash []byte, identity protocol.Identifier, opts storage.Options) (storage.Result[struct{}], error) {
	current, err := r.Fetch(hash, opts)
	if err != nil {
		return storage.Result[struct{}]{}, err
	}
	for _, id := range current.Value {
		if id == identity {
			return storage.Result[struct{}]{Operations: current.Operations}, nil
		}
	}

	ids := append(current.Value, identity)
	b, err := protocol.MarshalCBOR(ids)
	if err != nil {
		return storage.Result[struct{}]{}, err
	}
	w, err := r.store.Put(storage.P(TreePublicKeyHashes), hash, b, opts)
	if err != nil {
		return storage.Result[struct{}]{}, err
	}
	w.Operations = joinOps(current.Operations, w.Operations)
	return w, nil
}

// Fetch returns the identities holding a key with the given hash.
func (r *PublicKeyHashRepository) Fetch(hash []byte, opts storage.Options) (storage.Result[[]protocol.Identifier], error) {
	g, err := r.store.Get(storage.P(TreePublicKeyHashes), hash, opts)
	if err != nil {
		return storage.Result[[]protocol.Identifier]{}, err
	}
	out := storage.Result[[]protocol.Identifier]{Operations: g.Operations}
	if g.Value == nil {
		return out, nil
	}
	err = protocol.UnmarshalCBOR(g.Value, &out.Value)
	if err != nil {
		return storage.Result[[]protocol.Identifier]{}, errors.EncodingError.WithFormat("decode identity ids: %w", err)
	}
	return out, nil
}

// Prove proves the public key hash entry against the committed state.
func (r *PublicKeyHashRepository) Prove(hash []byte) (*merk.Proof, error) {
	return r.store.Prove(storage.P(TreePublicKeyHashes), hash)
}

// SpentAssetLockRepository records asset lock outpoints that have been
// used.
type SpentAssetLockRepository struct {
	store *storage.Store
}

var spentMarker = []byte{1}

func (r *SpentAssetLockRepository) Store(outPoint []byte, opts storage.Options) (storage.Result[struct{}], error) {
	return r.store.Put(storage.P(TreeSpentAssetLockTransactions), outPoint, spentMarker, opts)
}

func (r *SpentAssetLockRepository) Fetch(outPoint []byte, opts storage.Options) (storage.Result[bool], error) {
	g, err := r.store.Get(storage.P(TreeSpentAssetLockTransactions), outPoint, opts)
	if err != nil {
		return storage.Result[bool]{}, err
	}
	return storage.Result[bool]{Value: g.Value != nil, Operations: g.Operations}, nil
}
