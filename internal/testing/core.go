// Copyright 2024 The Accumulate Authors
//
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file or at
// https://opensource.org/licenses/MIT.

package testing

import (
	"context"
	"sync"

	"gitlab.com/accumulatenetwork/platform/internal/core/corerpc"
	"gitlab.com/accumulatenetwork/platform/pkg/errors"
)

// FakeCore is an in-memory [corerpc.Client].
type FakeCore struct {
	mu           sync.Mutex
	transactions map[string]*corerpc.Transaction
	chainLock    corerpc.ChainLock
	diffs        map[[2]uint32]*corerpc.MasternodeListDiff

	// InstantLockValid is the result of VerifyInstantLock.
	InstantLockValid bool

	// Calls counts requests by method.
	Calls map[string]int
}

var _ corerpc.Client = (*FakeCore)(nil)

func NewFakeCore() *FakeCore {
	return &FakeCore{
		transactions:     map[string]*corerpc.Transaction{},
		diffs:            map[[2]uint32]*corerpc.MasternodeListDiff{},
		InstantLockValid: true,
		Calls:            map[string]int{},
	}
}

// AddTransaction makes a transaction known to Core.
func (c *FakeCore) AddTransaction(tx *corerpc.Transaction) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.transactions[tx.TxID] = tx
}

// SetChainLockedHeight sets the height of the best chain lock.
func (c *FakeCore) SetChainLockedHeight(height uint32) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.chainLock.Height = height
}

// SetMasternodeListDiff sets the diff returned for the given heights.
func (c *FakeCore) SetMasternodeListDiff(base, height uint32, diff *corerpc.MasternodeListDiff) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.diffs[[2]uint32{base, height}] = diff
}

func (c *FakeCore) count(method string) {
	c.Calls[method]++
}

func (c *FakeCore) GetRawTransaction(_ context.Context, txid string) (*corerpc.Transaction, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.count("getrawtransaction")
	tx, ok := c.transactions[txid]
	if !ok {
		return nil, errors.NotFound.WithFormat("transaction %s not found", txid)
	}
	u := *tx
	return &u, nil
}

func (c *FakeCore) VerifyInstantLock(context.Context, string, string, string, uint32) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.count("verifyislock")
	return c.InstantLockValid, nil
}

func (c *FakeCore) GetBestChainLock(context.Context) (*corerpc.ChainLock, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.count("getbestchainlock")
	cl := c.chainLock
	return &cl, nil
}

// GetMasternodeListDiff returns the diff set for the heights, or an empty
// diff.
func (c *FakeCore) GetMasternodeListDiff(_ context.Context, base, height uint32) (*corerpc.MasternodeListDiff, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.count("protx diff")
	if d, ok := c.diffs[[2]uint32{base, height}]; ok {
		return d, nil
	}
	return new(corerpc.MasternodeListDiff), nil
}
