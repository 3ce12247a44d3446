// Copyright 2024 The Accumulate Authors
//
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file or at
// https://opensource.org/licenses/MIT.

package state

import (
	"context"

	lru "github.com/hashicorp/golang-lru/v2"
	"gitlab.com/accumulatenetwork/platform/internal/core/execute"
	"gitlab.com/accumulatenetwork/platform/pkg/errors"
	"gitlab.com/accumulatenetwork/platform/protocol"
)

// CacheOptions configures a [Cached] repository.
type CacheOptions struct {
	// DataContracts is the size of the data contract cache.
	DataContracts int

	// PublicKeyHashes is the size of the public key hash cache. Zero
	// disables it. Only enable it for repositories that read committed
	// state.
	PublicKeyHashes int
}

// Cached is a [Repository] that caches data contracts and, optionally,
// public key hash lookups. Contracts touched by the current block bypass
// the cache and are never added to it. Entries are only refreshed when a
// block is committed.
type Cached struct {
	Repository
	block     *execute.BlockExecutionContext
	contracts *lru.Cache[protocol.Identifier, *protocol.DataContract]
	keyHashes *lru.Cache[string, []protocol.Identifier]
}

var _ Repository = (*Cached)(nil)

func NewCached(repo Repository, block *execute.BlockExecutionContext, opts CacheOptions) (*Cached, error) {
	if opts.DataContracts <= 0 {
		opts.DataContracts = 500
	}
	c := &Cached{Repository: repo, block: block}

	var err error
	c.contracts, err = lru.New[protocol.Identifier, *protocol.DataContract](opts.DataContracts)
	if err != nil {
		return nil, errors.BadRequest.WithFormat("data contract cache: %w", err)
	}
	if opts.PublicKeyHashes > 0 {
		c.keyHashes, err = lru.New[string, []protocol.Identifier](opts.PublicKeyHashes)
		if err != nil {
			return nil, errors.BadRequest.WithFormat("public key hash cache: %w", err)
		}
	}
	return c, nil
}

func (c *Cached) touched(id protocol.Identifier) bool {
	return c.block != nil && c.block.HasDataContract(id)
}

// FetchDataContract serves the contract from the cache. A hit is charged
// the same read as a miss so that fees do not depend on the cache.
func (c *Cached) FetchDataContract(ctx context.Context, id protocol.Identifier, exec *protocol.ExecutionContext) (*protocol.DataContract, error) {
	if c.touched(id) {
		return c.Repository.FetchDataContract(ctx, id, exec)
	}

	if dc, ok := c.contracts.Get(id); ok {
		b, err := dc.MarshalBinary()
		if err != nil {
			return nil, err
		}
		exec.AddOperation(protocol.ReadOperation{ValueSize: len(b)})
		cacheHits.WithLabelValues("dataContract").Inc()
		return dc, nil
	}

	cacheMisses.WithLabelValues("dataContract").Inc()
	dc, err := c.Repository.FetchDataContract(ctx, id, exec)
	if err != nil || dc == nil {
		return dc, err
	}
	c.contracts.Add(id, dc)
	return dc, nil
}

// FetchIdentityIDsByPublicKeyHashes serves cached hashes and fetches the
// rest.
func (c *Cached) FetchIdentityIDsByPublicKeyHashes(ctx context.Context, hashes [][]byte, exec *protocol.ExecutionContext) ([][]protocol.Identifier, error) {
	if c.keyHashes == nil {
		return c.Repository.FetchIdentityIDsByPublicKeyHashes(ctx, hashes, exec)
	}

	ids := make([][]protocol.Identifier, len(hashes))
	var missing [][]byte
	var missingAt []int
	for i, h := range hashes {
		if v, ok := c.keyHashes.Get(string(h)); ok {
			ids[i] = v
			cacheHits.WithLabelValues("publicKeyHash").Inc()
			continue
		}
		cacheMisses.WithLabelValues("publicKeyHash").Inc()
		missing = append(missing, h)
		missingAt = append(missingAt, i)
	}
	if len(missing) == 0 {
		return ids, nil
	}

	fetched, err := c.Repository.FetchIdentityIDsByPublicKeyHashes(ctx, missing, exec)
	if err != nil {
		return nil, err
	}
	for j, v := range fetched {
		ids[missingAt[j]] = v
		if len(v) > 0 {
			c.keyHashes.Add(string(missing[j]), v)
		}
	}
	return ids, nil
}

// RefreshDataContracts replaces the cached copies of the given contracts.
// Contracts that are not cached are not added.
func (c *Cached) RefreshDataContracts(contracts []*protocol.DataContract) {
	for _, dc := range contracts {
		if c.contracts.Contains(dc.ID) {
			c.contracts.Add(dc.ID, dc)
		}
	}
}

// InvalidatePublicKeyHashes drops the given hashes from the cache.
func (c *Cached) InvalidatePublicKeyHashes(hashes [][]byte) {
	if c.keyHashes == nil {
		return
	}
	for _, h := range hashes {
		c.keyHashes.Remove(string(h))
	}
}

// CachedDataContract returns a contract if it is cached.
func (c *Cached) CachedDataContract(id protocol.Identifier) (*protocol.DataContract, bool) {
	return c.contracts.Peek(id)
}
