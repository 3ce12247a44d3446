// Copyright 2024 The Accumulate Authors
//
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file or at
// https://opensource.org/licenses/MIT.

package sml

import (
	"context"

	"github.com/cometbft/cometbft/libs/log"
	"gitlab.com/accumulatenetwork/platform/internal/core/corerpc"
	"gitlab.com/accumulatenetwork/platform/internal/logging"
	"gitlab.com/accumulatenetwork/platform/pkg/errors"
)

// Updater brings the store up to a Core height.
type Updater struct {
	core   corerpc.Client
	store  *Store
	logger logging.OptionalLogger
}

func NewUpdater(core corerpc.Client, store *Store, logger log.Logger) *Updater {
	u := &Updater{core: core, store: store}
	u.logger.Set(logger, "module", "sml")
	return u
}

func (u *Updater) Store() *Store { return u.store }

// Update applies the masternode list diff up to coreHeight. It does
// nothing if the store is already at or past that height.
func (u *Updater) Update(ctx context.Context, coreHeight uint32, logger log.Logger) error {
	if logger == nil {
		logger = u.logger
	}
	if coreHeight == 0 {
		return nil
	}

	base := uint32(1)
	if current := u.store.Current(); current != nil {
		if current.Height >= coreHeight {
			return nil
		}
		base = current.Height
	}

	diff, err := u.core.GetMasternodeListDiff(ctx, base, coreHeight)
	if err != nil {
		return errors.UnknownError.WithFormat("fetch masternode list diff %d..%d: %w", base, coreHeight, err)
	}
	list := u.store.Apply(coreHeight, diff)
	logger.Debug("Updated simplified masternode list", "core-height", coreHeight, "added", len(diff.MNList), "deleted", len(diff.DeletedMNs), "size", len(list.Entries))
	return nil
}
