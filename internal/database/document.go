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

// DocumentRepository stores documents in the primary tree of their type and
// maintains a reference per index.
type DocumentRepository struct {
	store *storage.Store
}

func typePath(contractID protocol.Identifier, typ string) storage.Path {
	return storage.P(TreeDocuments, contractID, typ)
}

func primaryPath(contractID protocol.Identifier, typ string) storage.Path {
	return typePath(contractID, typ).Append(subtreePrimary)
}

func indexPath(contractID protocol.Identifier, typ string, idx *protocol.Index) storage.Path {
	return typePath(contractID, typ).Append(subtreeIndices, indexTreeKey(idx))
}

// Store creates or replaces a document. The index entries of a replaced
// document are removed first.
func (r *DocumentRepository) Store(contract *protocol.DataContract, doc *protocol.Document, opts storage.Options) (storage.Result[struct{}], error) {
	if !contract.IsDocumentTypeDefined(doc.Type) {
		return storage.Result[struct{}]{}, errors.BadRequest.WithFormat("document type %s is not defined by %v", doc.Type, contract.ID)
	}
	indices, err := documentIndices(contract, doc.Type)
	if err != nil {
		return storage.Result[struct{}]{}, err
	}

	old, err := r.fetch(contract.ID, doc.Type, doc.ID, opts)
	if err != nil {
		return storage.Result[struct{}]{}, err
	}
	ops := old.Operations
	if old.Value != nil {
		delOps, err := r.removeIndexEntries(contract.ID, indices, old.Value, opts)
		if err != nil {
			return storage.Result[struct{}]{}, err
		}
		ops = append(ops, delOps...)
	}

	b, err := doc.MarshalBinary()
	if err != nil {
		return storage.Result[struct{}]{}, errors.EncodingError.WithFormat("encode document: %w", err)
	}
	primary := primaryPath(contract.ID, doc.Type)
	put, err := r.store.Put(primary, doc.ID.Bytes(), b, opts)
	if err != nil {
		return storage.Result[struct{}]{}, err
	}
	ops = append(ops, put.Operations...)

	target := primary.Append(doc.ID.Bytes())
	for _, idx := range indices {
		key, err := indexEntryKey(idx, doc)
		if err != nil {
			return storage.Result[struct{}]{}, err
		}
		ref, err := r.store.PutReference(indexPath(contract.ID, doc.Type, idx), key, target, opts)
		if err != nil {
			return storage.Result[struct{}]{}, err
		}
		ops = append(ops, ref.Operations...)
	}
	return storage.Result[struct{}]{Operations: ops}, nil
}

// Delete removes a document and its index entries. Deleting a missing
// document only costs the read.
func (r *DocumentRepository) Delete(contract *protocol.DataContract, typ string, id protocol.Identifier, opts storage.Options) (storage.Result[struct{}], error) {
	indices, err := documentIndices(contract, typ)
	if err != nil {
		return storage.Result[struct{}]{}, err
	}
	old, err := r.fetch(contract.ID, typ, id, opts)
	if err != nil {
		return storage.Result[struct{}]{}, err
	}
	ops := old.Operations
	if old.Value == nil {
		return storage.Result[struct{}]{Operations: ops}, nil
	}

	delOps, err := r.removeIndexEntries(contract.ID, indices, old.Value, opts)
	if err != nil {
		return storage.Result[struct{}]{}, err
	}
	ops = append(ops, delOps...)

	del, err := r.store.Delete(primaryPath(contract.ID, typ), id.Bytes(), opts)
	if err != nil {
		return storage.Result[struct{}]{}, err
	}
	ops = append(ops, del.Operations...)
	return storage.Result[struct{}]{Operations: ops}, nil
}

func (r *DocumentRepository) removeIndexEntries(contractID protocol.Identifier, indices []*protocol.Index, doc *protocol.Document, opts storage.Options) ([]protocol.Operation, error) {
	var ops []protocol.Operation
	for _, idx := range indices {
		key, err := indexEntryKey(idx, doc)
		if err != nil {
			return nil, err
		}
		del, err := r.store.Delete(indexPath(contractID, doc.Type, idx), key, opts)
		if err != nil {
			return nil, err
		}
		ops = append(ops, del.Operations...)
	}
	return ops, nil
}

func (r *DocumentRepository) fetch(contractID protocol.Identifier, typ string, id protocol.Identifier, opts storage.Options) (storage.Result[*protocol.Document], error) {
	return fetchEntity[protocol.Document](r.store, primaryPath(contractID, typ), id.Bytes(), opts)
}

// Find returns the documents of a type that match the query.
func (r *DocumentRepository) Find(contract *protocol.DataContract, typ string, query *Query, opts storage.Options) (storage.Result[[]*protocol.Document], error) {
	if !contract.IsDocumentTypeDefined(typ) {
		return storage.Result[[]*protocol.Document]{}, invalidQuery("document type %s is not defined", typ)
	}
	if query == nil {
		query = new(Query)
	}
	plan, err := query.validate(contract, typ)
	if err != nil {
		return storage.Result[[]*protocol.Document]{}, err
	}

	var docs []*protocol.Document
	var ops []protocol.Operation
	switch {
	case plan.ids != nil:
		for _, id := range plan.ids {
			d, err := r.fetch(contract.ID, typ, id, opts)
			if err != nil {
				return storage.Result[[]*protocol.Document]{}, err
			}
			ops = append(ops, d.Operations...)
			if d.Value != nil && query.matches(d.Value) {
				docs = append(docs, d.Value)
			}
		}
		sortByID(docs)

	default:
		path := primaryPath(contract.ID, typ)
		if plan.index != nil {
			path = indexPath(contract.ID, typ, plan.index)
		}
		scan, err := r.store.Scan(path, storage.ScanOptions{Prefix: plan.prefix, UseTransaction: opts.UseTransaction}, func(e *storage.Entry) (bool, error) {
			if e.Value == nil {
				return true, nil
			}
			doc := new(protocol.Document)
			err := doc.UnmarshalBinary(e.Value)
			if err != nil {
				return false, errors.EncodingError.WithFormat("decode document: %w", err)
			}
			if query.matches(doc) {
				docs = append(docs, doc)
			}
			return true, nil
		})
		if err != nil {
			return storage.Result[[]*protocol.Document]{}, err
		}
		ops = scan.Operations
	}

	query.sortDocuments(docs)
	return storage.Result[[]*protocol.Document]{Value: query.page(docs), Operations: ops}, nil
}

// Prove proves a document against the committed state.
func (r *DocumentRepository) Prove(contractID protocol.Identifier, typ string, id protocol.Identifier) (*merk.Proof, error) {
	return r.store.Prove(primaryPath(contractID, typ), id.Bytes())
}
