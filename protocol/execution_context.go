// Copyright 2024 The Accumulate Authors
//
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file or at
// https://opensource.org/licenses/MIT.

package protocol

import "sync"

// ExecutionContext collects the fee operations incurred while validating and
// applying one state transition.
type ExecutionContext struct {
	mu     sync.Mutex
	ops    []Operation
	dryRun bool
}

// NewExecutionContext returns an empty context.
func NewExecutionContext() *ExecutionContext {
	return new(ExecutionContext)
}

// AddOperation records ops.
func (c *ExecutionContext) AddOperation(ops ...Operation) {
	if c == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.ops = append(c.ops, ops...)
}

// Operations returns a copy of the recorded operations.
func (c *ExecutionContext) Operations() []Operation {
	if c == nil {
		return nil
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]Operation(nil), c.ops...)
}

// ClearOperations drops the recorded operations.
func (c *ExecutionContext) ClearOperations() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.ops = nil
}

// EnableDryRun makes repositories record operations without writing.
func (c *ExecutionContext) EnableDryRun() { c.dryRun = true }

// DisableDryRun restores normal writes.
func (c *ExecutionContext) DisableDryRun() { c.dryRun = false }

// IsDryRun reports whether dry run is enabled. A nil context is never in
// dry run.
func (c *ExecutionContext) IsDryRun() bool { return c != nil && c.dryRun }

// Fee is the fee for the recorded operations.
func (c *ExecutionContext) Fee() uint64 {
	return CalculateFee(c.Operations())
}
