// Copyright 2024 The Accumulate Authors
//
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file or at
// https://opensource.org/licenses/MIT.

// Package sml maintains the simplified masternode list and tracks the Core
// chain-locked height.
package sml

import (
	"sort"
	"sync"

	"gitlab.com/accumulatenetwork/platform/internal/core/corerpc"
)

// DefaultMaxLists is the number of lists kept.
const DefaultMaxLists = 16

// List is the masternode list at a Core height.
type List struct {
	Height    uint32
	BlockHash string
	Entries   map[string]corerpc.MasternodeEntry
}

// ValidEntries returns the valid entries ordered by ProRegTx hash.
func (l *List) ValidEntries() []corerpc.MasternodeEntry {
	var entries []corerpc.MasternodeEntry
	for _, e := range l.Entries {
		if e.IsValid {
			entries = append(entries, e)
		}
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].ProRegTxHash < entries[j].ProRegTxHash })
	return entries
}

// Store keeps the most recent masternode lists.
type Store struct {
	mu       sync.RWMutex
	maxLists int
	lists    []*List
}

func NewStore(maxLists int) *Store {
	if maxLists <= 0 {
		maxLists = DefaultMaxLists
	}
	return &Store{maxLists: maxLists}
}

// Current returns the newest list, or nil.
func (s *Store) Current() *List {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if len(s.lists) == 0 {
		return nil
	}
	return s.lists[len(s.lists)-1]
}

// ByHeight returns the newest list at or below height, or nil.
func (s *Store) ByHeight(height uint32) *List {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for i := len(s.lists) - 1; i >= 0; i-- {
		if s.lists[i].Height <= height {
			return s.lists[i]
		}
	}
	return nil
}

// Apply builds the list at height from the current list and a diff.
func (s *Store) Apply(height uint32, diff *corerpc.MasternodeListDiff) *List {
	s.mu.Lock()
	defer s.mu.Unlock()

	next := &List{Height: height, BlockHash: diff.BlockHash, Entries: map[string]corerpc.MasternodeEntry{}}
	if len(s.lists) > 0 {
		for k, e := range s.lists[len(s.lists)-1].Entries {
			next.Entries[k] = e
		}
	}
	for _, h := range diff.DeletedMNs {
		delete(next.Entries, h)
	}
	for _, e := range diff.MNList {
		next.Entries[e.ProRegTxHash] = e
	}

	s.lists = append(s.lists, next)
	if len(s.lists) > s.maxLists {
		s.lists = s.lists[len(s.lists)-s.maxLists:]
	}
	return next
}
