// Copyright 2024 The Accumulate Authors
//
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file or at
// https://opensource.org/licenses/MIT.

// Package execute holds the state shared by the transition and block
// executors.
package execute

import (
	"sort"
	"sync"
	"time"

	"github.com/cometbft/cometbft/libs/log"
	"gitlab.com/accumulatenetwork/platform/internal/logging"
	"gitlab.com/accumulatenetwork/platform/pkg/errors"
	"gitlab.com/accumulatenetwork/platform/protocol"
)

// Header is the header of the block being executed.
type Header struct {
	Height                int64     `cbor:"height"`
	Time                  time.Time `cbor:"time"`
	CoreChainLockedHeight uint32    `cbor:"coreChainLockedHeight"`
	ProposerProTxHash     []byte    `cbor:"proposerProTxHash,omitempty"`
	AppVersion            uint64    `cbor:"appVersion"`
}

// CommitInfo is the vote information of the previous block.
type CommitInfo struct {
	Round int32  `cbor:"round"`
	Votes []Vote `cbor:"votes,omitempty"`
}

type Vote struct {
	Address []byte `cbor:"address"`
	Power   int64  `cbor:"power"`
	Signed  bool   `cbor:"signed"`
}

// BlockExecutionContext is the state of the block being executed. It is
// reset at the start of every block.
type BlockExecutionContext struct {
	mu              sync.RWMutex
	header          *Header
	lastCommitInfo  *CommitInfo
	cumulativeFees  uint64
	dataContracts   map[protocol.Identifier]*protocol.DataContract
	publicKeyHashes map[string]bool
	consensusLogger logging.OptionalLogger
}

func NewBlockExecutionContext() *BlockExecutionContext {
	c := new(BlockExecutionContext)
	c.Reset()
	return c
}

// Reset clears the context.
func (c *BlockExecutionContext) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.header = nil
	c.lastCommitInfo = nil
	c.cumulativeFees = 0
	c.dataContracts = map[protocol.Identifier]*protocol.DataContract{}
	c.publicKeyHashes = map[string]bool{}
	c.consensusLogger = logging.OptionalLogger{}
}

// IsEmpty returns true if no block has been started.
func (c *BlockExecutionContext) IsEmpty() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.header == nil
}

// Populate copies another context into this one.
func (c *BlockExecutionContext) Populate(from *BlockExecutionContext) {
	if c == from {
		return
	}
	from.mu.RLock()
	defer from.mu.RUnlock()
	c.mu.Lock()
	defer c.mu.Unlock()

	c.header = nil
	if from.header != nil {
		h := *from.header
		c.header = &h
	}
	c.lastCommitInfo = from.lastCommitInfo
	c.cumulativeFees = from.cumulativeFees
	c.dataContracts = make(map[protocol.Identifier]*protocol.DataContract, len(from.dataContracts))
	for id, dc := range from.dataContracts {
		c.dataContracts[id] = dc
	}
	c.publicKeyHashes = make(map[string]bool, len(from.publicKeyHashes))
	for h := range from.publicKeyHashes {
		c.publicKeyHashes[h] = true
	}
	c.consensusLogger = from.consensusLogger
}

// Copy returns a copy of the context.
func (c *BlockExecutionContext) Copy() *BlockExecutionContext {
	d := NewBlockExecutionContext()
	d.Populate(c)
	return d
}

func (c *BlockExecutionContext) Header() *Header {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.header
}

func (c *BlockExecutionContext) SetHeader(h *Header) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.header = h
}

func (c *BlockExecutionContext) LastCommitInfo() *CommitInfo {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.lastCommitInfo
}

func (c *BlockExecutionContext) SetLastCommitInfo(info *CommitInfo) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lastCommitInfo = info
}

// BlockTime returns the time of the block, or the zero time.
func (c *BlockExecutionContext) BlockTime() time.Time {
	h := c.Header()
	if h == nil {
		return time.Time{}
	}
	return h.Time
}

func (c *BlockExecutionContext) CumulativeFees() uint64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.cumulativeFees
}

func (c *BlockExecutionContext) IncrementCumulativeFees(fee uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cumulativeFees += fee
}

// AddDataContract records a contract created or updated in this block.
func (c *BlockExecutionContext) AddDataContract(dc *protocol.DataContract) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.dataContracts[dc.ID] = dc
}

// HasDataContract returns true if the contract was touched in this block.
func (c *BlockExecutionContext) HasDataContract(id protocol.Identifier) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	_, ok := c.dataContracts[id]
	return ok
}

// DataContracts returns the contracts touched in this block, ordered by ID.
func (c *BlockExecutionContext) DataContracts() []*protocol.DataContract {
	c.mu.RLock()
	defer c.mu.RUnlock()
	list := make([]*protocol.DataContract, 0, len(c.dataContracts))
	for _, dc := range c.dataContracts {
		list = append(list, dc)
	}
	sort.Slice(list, func(i, j int) bool { return list[i].ID.Compare(list[j].ID) < 0 })
	return list
}

// AddPublicKeyHash records a public key hash stored in this block.
func (c *BlockExecutionContext) AddPublicKeyHash(hash []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.publicKeyHashes[string(hash)] = true
}

// PublicKeyHashes returns the public key hashes stored in this block.
func (c *BlockExecutionContext) PublicKeyHashes() [][]byte {
	c.mu.RLock()
	defer c.mu.RUnlock()
	list := make([][]byte, 0, len(c.publicKeyHashes))
	for h := range c.publicKeyHashes {
		list = append(list, []byte(h))
	}
	sort.Slice(list, func(i, j int) bool { return string(list[i]) < string(list[j]) })
	return list
}

// ConsensusLogger returns the logger of the block. It is never nil.
func (c *BlockExecutionContext) ConsensusLogger() log.Logger {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.consensusLogger
}

func (c *BlockExecutionContext) SetConsensusLogger(logger log.Logger) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.consensusLogger.L = logger
}

type contextState struct {
	Header         *Header                  `cbor:"header"`
	LastCommitInfo *CommitInfo              `cbor:"lastCommitInfo,omitempty"`
	CumulativeFees uint64                   `cbor:"cumulativeFees"`
	DataContracts  []*protocol.DataContract `cbor:"dataContracts,omitempty"`
}

// MarshalBinary encodes everything but the logger and the public key
// hashes.
func (c *BlockExecutionContext) MarshalBinary() ([]byte, error) {
	s := contextState{
		Header:         c.Header(),
		LastCommitInfo: c.LastCommitInfo(),
		CumulativeFees: c.CumulativeFees(),
		DataContracts:  c.DataContracts(),
	}
	return protocol.MarshalCBOR(&s)
}

func (c *BlockExecutionContext) UnmarshalBinary(b []byte) error {
	var s contextState
	err := protocol.UnmarshalCBOR(b, &s)
	if err != nil {
		return errors.EncodingError.WithFormat("decode block execution context: %w", err)
	}
	c.Reset()
	c.mu.Lock()
	defer c.mu.Unlock()
	c.header = s.Header
	c.lastCommitInfo = s.LastCommitInfo
	c.cumulativeFees = s.CumulativeFees
	for _, dc := range s.DataContracts {
		c.dataContracts[dc.ID] = dc
	}
	return nil
}
