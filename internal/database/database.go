// Copyright 2024 The Accumulate Authors
//
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file or at
// https://opensource.org/licenses/MIT.

// Package database stores platform entities in the storage layer.
package database

import (
	"gitlab.com/accumulatenetwork/platform/internal/storage"
	"gitlab.com/accumulatenetwork/platform/pkg/errors"
	"gitlab.com/accumulatenetwork/platform/protocol"
)

// Root trees.
var (
	TreeIdentities                 = []byte("identities")
	TreeDataContracts              = []byte("dataContracts")
	TreeDocuments                  = []byte("documents")
	TreePublicKeyHashes            = []byte("publicKeyHashes")
	TreeSpentAssetLockTransactions = []byte("spentAssetLockTransactions")
	TreeMisc                       = []byte("misc")
)

// RootTrees lists the root trees in creation order.
var RootTrees = [][]byte{
	TreeIdentities,
	TreeDataContracts,
	TreeDocuments,
	TreePublicKeyHashes,
	TreeSpentAssetLockTransactions,
	TreeMisc,
}

// Database groups the entity repositories over one store.
type Database struct {
	Store           *storage.Store
	Identities      *IdentityRepository
	PublicKeyHashes *PublicKeyHashRepository
	DataContracts   *DataContractRepository
	Documents       *DocumentRepository
	SpentAssetLocks *SpentAssetLockRepository
	CreditsPool     *CreditsPoolRepository
	ContextStack    *ContextStackRepository
	Metadata        *MetadataRepository
}

// New returns the repositories over store.
func New(store *storage.Store) *Database {
	return &Database{
		Store:           store,
		Identities:      &IdentityRepository{store},
		PublicKeyHashes: &PublicKeyHashRepository{store},
		DataContracts:   &DataContractRepository{store},
		Documents:       &DocumentRepository{store},
		SpentAssetLocks: &SpentAssetLockRepository{store},
		CreditsPool:     &CreditsPoolRepository{store},
		ContextStack:    &ContextStackRepository{store},
		Metadata:        &MetadataRepository{store},
	}
}

// CreateRootTrees creates the root trees. Existing trees are kept.
func (d *Database) CreateRootTrees(opts storage.Options) (storage.Result[struct{}], error) {
	opts.SkipIfExists = true
	var ops []protocol.Operation
	for _, name := range RootTrees {
		r, err := d.Store.CreateTree(nil, name, opts)
		if err != nil {
			return storage.Result[struct{}]{}, errors.UnknownError.WithFormat("create %s tree: %w", name, err)
		}
		ops = append(ops, r.Operations...)
	}
	return storage.Result[struct{}]{Operations: ops}, nil
}

func fetchEntity[T any, PT interface {
	*T
	UnmarshalBinary([]byte) error
}](store *storage.Store, path storage.Path, key []byte, opts storage.Options) (storage.Result[PT], error) {
	r, err := store.Get(path, key, opts)
	if err != nil {
		return storage.Result[PT]{}, err
	}
	out := storage.Result[PT]{Operations: r.Operations}
	if r.Value == nil {
		return out, nil
	}
	v := PT(new(T))
	err = v.UnmarshalBinary(r.Value)
	if err != nil {
		return storage.Result[PT]{}, errors.EncodingError.WithFormat("decode %v %x: %w", path, key, err)
	}
	out.Value = v
	return out, nil
}

func joinOps(results ...[]protocol.Operation) []protocol.Operation {
	var ops []protocol.Operation
	for _, r := range results {
		ops = append(ops, r...)
	}
	return ops
}
