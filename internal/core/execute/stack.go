// Copyright 2024 The Accumulate Authors
//
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file or at
// https://opensource.org/licenses/MIT.

package execute

import (
	"sync"

	"gitlab.com/accumulatenetwork/platform/pkg/errors"
	"gitlab.com/accumulatenetwork/platform/protocol"
)

// DefaultStackDepth is the number of committed block contexts kept.
const DefaultStackDepth = 3

// ContextStack is a bounded stack of committed block execution contexts.
// The newest context is first. Adding to a full stack drops the oldest.
type ContextStack struct {
	mu       sync.RWMutex
	depth    int
	contexts []*BlockExecutionContext
}

func NewContextStack(depth int) *ContextStack {
	if depth <= 0 {
		depth = DefaultStackDepth
	}
	return &ContextStack{depth: depth}
}

// Add pushes a copy of the context.
func (s *ContextStack) Add(c *BlockExecutionContext) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.contexts = append([]*BlockExecutionContext{c.Copy()}, s.contexts...)
	if len(s.contexts) > s.depth {
		s.contexts = s.contexts[:s.depth]
	}
}

// GetFirst returns the newest context, or nil.
func (s *ContextStack) GetFirst() *BlockExecutionContext {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if len(s.contexts) == 0 {
		return nil
	}
	return s.contexts[0]
}

// GetLast returns the oldest context, or nil.
func (s *ContextStack) GetLast() *BlockExecutionContext {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if len(s.contexts) == 0 {
		return nil
	}
	return s.contexts[len(s.contexts)-1]
}

// RemoveLatest pops the newest context.
func (s *ContextStack) RemoveLatest() *BlockExecutionContext {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.contexts) == 0 {
		return nil
	}
	c := s.contexts[0]
	s.contexts = s.contexts[1:]
	return c
}

func (s *ContextStack) Size() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.contexts)
}

// Contexts returns the contexts, newest first.
func (s *ContextStack) Contexts() []*BlockExecutionContext {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]*BlockExecutionContext(nil), s.contexts...)
}

// SetContexts replaces the contexts, newest first. Contexts beyond the
// depth are dropped.
func (s *ContextStack) SetContexts(contexts []*BlockExecutionContext) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(contexts) > s.depth {
		contexts = contexts[:s.depth]
	}
	s.contexts = append([]*BlockExecutionContext(nil), contexts...)
}

func (s *ContextStack) MarshalBinary() ([]byte, error) {
	var list [][]byte
	for _, c := range s.Contexts() {
		b, err := c.MarshalBinary()
		if err != nil {
			return nil, err
		}
		list = append(list, b)
	}
	return protocol.MarshalCBOR(list)
}

func (s *ContextStack) UnmarshalBinary(b []byte) error {
	var list [][]byte
	err := protocol.UnmarshalCBOR(b, &list)
	if err != nil {
		return errors.EncodingError.WithFormat("decode context stack: %w", err)
	}
	contexts := make([]*BlockExecutionContext, len(list))
	for i, b := range list {
		contexts[i] = new(BlockExecutionContext)
		err = contexts[i].UnmarshalBinary(b)
		if err != nil {
			return err
		}
	}
	s.SetContexts(contexts)
	return nil
}
