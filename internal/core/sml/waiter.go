// Copyright 2024 The Accumulate Authors
//
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file or at
// https://opensource.org/licenses/MIT.

package sml

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/cometbft/cometbft/libs/log"
	"github.com/sethvargo/go-retry"
	"gitlab.com/accumulatenetwork/platform/internal/core/corerpc"
	"gitlab.com/accumulatenetwork/platform/internal/logging"
	"gitlab.com/accumulatenetwork/platform/pkg/errors"
)

// Waiter waits for Core to chain-lock a height.
type Waiter struct {
	core    corerpc.Client
	base    time.Duration
	timeout time.Duration
	best    atomic.Uint32
	logger  logging.OptionalLogger
}

func NewWaiter(core corerpc.Client, base, timeout time.Duration, logger log.Logger) *Waiter {
	if base <= 0 {
		base = 100 * time.Millisecond
	}
	if timeout <= 0 {
		timeout = time.Minute
	}
	w := &Waiter{core: core, base: base, timeout: timeout}
	w.logger.Set(logger, "module", "sml")
	return w
}

// Wait returns once the best chain lock is at or above height. Failing to
// get there within the timeout is fatal.
func (w *Waiter) Wait(ctx context.Context, height uint32) error {
	if height == 0 || w.best.Load() >= height {
		return nil
	}

	backoff := retry.NewExponential(w.base)
	backoff = retry.WithMaxDuration(w.timeout, backoff)

	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		cl, err := w.core.GetBestChainLock(ctx)
		if err != nil {
			return retry.RetryableError(err)
		}
		if cl.Height > w.best.Load() {
			w.best.Store(cl.Height)
		}
		if cl.Height < height {
			w.logger.Debug("Waiting for core chain-locked height", "want", height, "have", cl.Height)
			return retry.RetryableError(errors.NotReady.WithFormat("core chain-locked height is %d, want %d", cl.Height, height))
		}
		return nil
	})
	if err != nil {
		return errors.FatalError.WithFormat("wait for core chain-locked height %d: %w", height, err)
	}
	return nil
}

// BestHeight is the highest chain-locked height seen.
func (w *Waiter) BestHeight() uint32 {
	return w.best.Load()
}
