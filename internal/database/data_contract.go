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

// Subtrees of a document type.
var (
	subtreePrimary = []byte("p")
	subtreeIndices = []byte("i")
)

// DataContractRepository stores data contracts and creates the document
// trees they define.
type DataContractRepository struct {
	store *storage.Store
}

// Store stores the contract and creates the trees of any document types
// and indices that do not exist yet.
func (r *DataContractRepository) Store(contract *protocol.DataContract, opts storage.Options) (storage.Result[struct{}], error) {
	b, err := contract.MarshalBinary()
	if err != nil {
		return storage.Result[struct{}]{}, errors.EncodingError.WithFormat("encode data contract: %w", err)
	}

	put, err := r.store.Put(storage.P(TreeDataContracts), contract.ID.Bytes(), b, opts)
	if err != nil {
		return storage.Result[struct{}]{}, err
	}
	ops := put.Operations

	tree := opts
	tree.SkipIfExists = true
	create := func(path storage.Path, key []byte) error {
		r, err := r.store.CreateTree(path, key, tree)
		ops = append(ops, r.Operations...)
		return err
	}

	err = create(storage.P(TreeDocuments), contract.ID.Bytes())
	if err != nil {
		return storage.Result[struct{}]{}, err
	}
	for _, typ := range contract.DocumentTypes() {
		indices, err := documentIndices(contract, typ)
		if err != nil {
			return storage.Result[struct{}]{}, err
		}

		typePath := storage.P(TreeDocuments, contract.ID, typ)
		err = create(typePath.Parent())
		if err == nil {
			err = create(typePath, subtreePrimary)
		}
		if err == nil {
			err = create(typePath, subtreeIndices)
		}
		for _, idx := range indices {
			if err != nil {
				break
			}
			err = create(typePath.Append(subtreeIndices), indexTreeKey(idx))
		}
		if err != nil {
			return storage.Result[struct{}]{}, err
		}
	}
	return storage.Result[struct{}]{Operations: ops}, nil
}

func (r *DataContractRepository) Fetch(id protocol.Identifier, opts storage.Options) (storage.Result[*protocol.DataContract], error) {
	return fetchEntity[protocol.DataContract](r.store, storage.P(TreeDataContracts), id.Bytes(), opts)
}

// Prove proves the contract against the committed state.
func (r *DataContractRepository) Prove(id protocol.Identifier) (*merk.Proof, error) {
	return r.store.Prove(storage.P(TreeDataContracts), id.Bytes())
}

// ownerIndex is maintained for every document type.
var ownerIndex = &protocol.Index{
	Name:       protocol.PropertyOwnerID,
	Properties: []protocol.IndexProperty{{Name: protocol.PropertyOwnerID, Order: "asc"}},
}

// documentIndices returns the declared indices of a type followed by the
// owner index.
func documentIndices(contract *protocol.DataContract, typ string) ([]*protocol.Index, error) {
	indices, err := contract.Indices(typ)
	if err != nil {
		return nil, errors.BadRequest.Wrap(err)
	}
	return append(indices, ownerIndex), nil
}

func indexTreeKey(idx *protocol.Index) []byte {
	if idx.Name != "" {
		return []byte(idx.Name)
	}
	var b []byte
	for i, p := range idx.Properties {
		if i > 0 {
			b = append(b, ',')
		}
		b = append(b, p.Name...)
	}
	return b
}
