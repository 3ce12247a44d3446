// Copyright 2024 The Accumulate Authors
//
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file or at
// https://opensource.org/licenses/MIT.

package abci

import (
	"bytes"

	"gitlab.com/accumulatenetwork/platform/pkg/errors"
	"gitlab.com/accumulatenetwork/platform/protocol"
)

// blockInfoPrefix marks the block info pseudo-transaction. State
// transitions start with their protocol version, and no version this
// large is supported, so the prefix never collides with one.
var blockInfoPrefix = []byte{0xFF, 0xFF, 0xFF, 0xFF}

// BlockInfo is placed at the front of a proposal by the proposer. It
// carries the core chain-locked height the block is executed at.
type BlockInfo struct {
	CoreChainLockedHeight uint32 `cbor:"coreChainLockedHeight"`
}

func (b *BlockInfo) MarshalBinary() ([]byte, error) {
	type fields BlockInfo
	data, err := protocol.MarshalCBOR((*fields)(b))
	if err != nil {
		return nil, err
	}
	return append(bytes.Clone(blockInfoPrefix), data...), nil
}

func (b *BlockInfo) UnmarshalBinary(data []byte) error {
	if !isBlockInfo(data) {
		return errors.EncodingError.With("not a block info transaction")
	}
	type fields BlockInfo
	return protocol.UnmarshalCBOR(data[len(blockInfoPrefix):], (*fields)(b))
}

func isBlockInfo(tx []byte) bool {
	return bytes.HasPrefix(tx, blockInfoPrefix)
}

// splitBlockInfo separates the block info from the state transitions of a
// block. The info is nil if the proposer did not include one.
func splitBlockInfo(txs [][]byte) (*BlockInfo, [][]byte, error) {
	if len(txs) == 0 || !isBlockInfo(txs[0]) {
		return nil, txs, nil
	}
	info := new(BlockInfo)
	err := info.UnmarshalBinary(txs[0])
	if err != nil {
		return nil, nil, errors.UnknownError.WithFormat("decode block info: %w", err)
	}
	return info, txs[1:], nil
}
