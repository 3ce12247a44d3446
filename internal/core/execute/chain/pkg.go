// Copyright 2024 The Accumulate Authors
//
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file or at
// https://opensource.org/licenses/MIT.

// Package chain validates and applies individual state transitions.
package chain

import (
	"context"

	"gitlab.com/accumulatenetwork/platform/internal/core/execute"
	"gitlab.com/accumulatenetwork/platform/internal/core/state"
	"gitlab.com/accumulatenetwork/platform/internal/core/validation"
	"gitlab.com/accumulatenetwork/platform/protocol"
)

// TransitionExecutor validates and applies a specific type of state
// transition.
type TransitionExecutor interface {
	// Type is the transition type the executor can execute.
	Type() protocol.StateTransitionType

	// ValidateBasic checks the structure of the transition. It must not
	// read state.
	ValidateBasic(protocol.StateTransition) *validation.Result

	// ValidateSignature verifies the transition is signed by a key that
	// may sign it.
	ValidateSignature(context.Context, *Env, protocol.StateTransition) (*validation.Result, error)

	// ValidateState checks the transition against the current state.
	ValidateState(context.Context, *Env, protocol.StateTransition) (*validation.Result, error)

	// Apply writes the effects of a fully validated transition. Violated
	// preconditions are returned as errors.
	Apply(context.Context, *Env, protocol.StateTransition) error
}

// Env is the state a transition is executed against.
type Env struct {
	// Repository reads and writes platform state.
	Repository state.Repository

	// Block is the block being executed. It is empty when checking a
	// transition outside of a block.
	Block *execute.BlockExecutionContext
}

// Executors returns an executor for each transition type.
func Executors() []TransitionExecutor {
	return []TransitionExecutor{
		IdentityCreate{},
		IdentityTopUp{},
		IdentityUpdate{},
		DataContractCreate{},
		DataContractUpdate{},
		DocumentsBatch{},
	}
}

// header returns the header of the current block, or of the last committed
// block outside of a block.
func (e *Env) header(ctx context.Context) (*execute.Header, error) {
	if e.Block != nil && !e.Block.IsEmpty() {
		return e.Block.Header(), nil
	}
	return e.Repository.FetchLatestPlatformBlockHeader(ctx)
}

func (e *Env) touchDataContract(dc *protocol.DataContract) {
	if e.Block != nil {
		e.Block.AddDataContract(dc)
	}
}

func (e *Env) touchPublicKeyHashes(hashes [][]byte) {
	if e.Block == nil {
		return
	}
	for _, h := range hashes {
		e.Block.AddPublicKeyHash(h)
	}
}
