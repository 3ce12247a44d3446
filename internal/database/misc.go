// Copyright 2024 The Accumulate Authors
//
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file or at
// https://opensource.org/licenses/MIT.

package database

import (
	"encoding/binary"

	"gitlab.com/accumulatenetwork/platform/internal/storage"
	"gitlab.com/accumulatenetwork/platform/pkg/errors"
	"gitlab.com/accumulatenetwork/platform/protocol"
)

// Keys in the misc tree.
var (
	keyCreditsPool  = []byte("creditsPool")
	keyContextStack = []byte("blockExecutionContextStack")
)

// CreditsPoolRepository stores the accumulated fees.
type CreditsPoolRepository struct {
	store *storage.Store
}

func (r *CreditsPoolRepository) Store(credits uint64, opts storage.Options) (storage.Result[struct{}], error) {
	return r.store.Put(storage.P(TreeMisc), keyCreditsPool, binary.BigEndian.AppendUint64(nil, credits), opts)
}

// Fetch returns the credits pool, zero if it was never stored.
func (r *CreditsPoolRepository) Fetch(opts storage.Options) (storage.Result[uint64], error) {
	g, err := r.store.Get(storage.P(TreeMisc), keyCreditsPool, opts)
	if err != nil {
		return storage.Result[uint64]{}, err
	}
	out := storage.Result[uint64]{Operations: g.Operations}
	switch len(g.Value) {
	case 0:
	case 8:
		out.Value = binary.BigEndian.Uint64(g.Value)
	default:
		return storage.Result[uint64]{}, errors.EncodingError.WithFormat("credits pool is %d bytes", len(g.Value))
	}
	return out, nil
}

// ContextStackRepository stores the encoded block execution context stack.
// The encoding belongs to the block executor.
type ContextStackRepository struct {
	store *storage.Store
}

func (r *ContextStackRepository) Store(stack []byte, opts storage.Options) (storage.Result[struct{}], error) {
	return r.store.Put(storage.P(TreeMisc), keyContextStack, stack, opts)
}

// Fetch returns the encoded stack, or nil.
func (r *ContextStackRepository) Fetch(opts storage.Options) (storage.Result[[]byte], error) {
	return r.store.Get(storage.P(TreeMisc), keyContextStack, opts)
}

// Metadata is what a node needs to resume after a restart.
type Metadata struct {
	Height                       uint64 `cbor:"height"`
	AppHash                      []byte `cbor:"appHash"`
	AppVersion                   uint64 `cbor:"appVersion"`
	InitialCoreChainLockedHeight uint32 `cbor:"initialCoreChainLockedHeight"`
}

var keyMetadata = []byte("nodeMetadata")

// MetadataRepository stores node metadata in the auxiliary store.
type MetadataRepository struct {
	store *storage.Store
}

func (r *MetadataRepository) Store(m *Metadata, opts storage.Options) error {
	b, err := protocol.MarshalCBOR(m)
	if err != nil {
		return err
	}
	_, err = r.store.PutAux(keyMetadata, b, opts)
	return err
}

// Fetch returns the metadata, or nil if the node has never committed.
func (r *MetadataRepository) Fetch(opts storage.Options) (*Metadata, error) {
	g, err := r.store.GetAux(keyMetadata, opts)
	if err != nil {
		return nil, err
	}
	if g.Value == nil {
		return nil, nil
	}
	m := new(Metadata)
	err = protocol.UnmarshalCBOR(g.Value, m)
	if err != nil {
		return nil, errors.EncodingError.WithFormat("decode metadata: %w", err)
	}
	return m, nil
}
