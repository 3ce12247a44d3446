// Copyright 2024 The Accumulate Authors
//
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file or at
// https://opensource.org/licenses/MIT.

package protocol

import "time"

// LatestVersion is the newest protocol version this node can execute.
const LatestVersion uint32 = 1

const (
	// MaxStateTransitionSize is the largest serialized state transition
	// accepted, in bytes.
	MaxStateTransitionSize = 16 * 1024

	// MaxIdentityPublicKeys is the largest number of keys an identity may
	// hold, and the largest number a single transition may add.
	MaxIdentityPublicKeys = 10

	// MaxDocumentTransitions is the largest number of document transitions
	// in a batch.
	MaxDocumentTransitions = 10

	// MaxUniqueIndices is the largest number of unique indices per document
	// type.
	MaxUniqueIndices = 3

	// MaxIdentitiesPerRequest bounds public key hash queries.
	MaxIdentitiesPerRequest = 100

	// CreditsPerSatoshi converts asset lock amounts to credits.
	CreditsPerSatoshi = 1000

	// BlockTimeWindowMinutes bounds the distance between a client supplied
	// timestamp and the block time.
	BlockTimeWindowMinutes = 5

	// BlockTimeWindow is [BlockTimeWindowMinutes] as a duration.
	BlockTimeWindow = BlockTimeWindowMinutes * time.Minute
)

// ConvertSatoshiToCredits converts a base chain amount to credits.
func ConvertSatoshiToCredits(satoshis uint64) uint64 {
	return satoshis * CreditsPerSatoshi
}

// IsWithinBlockTimeWindow reports whether ts (unix milliseconds) lies within
// [BlockTimeWindow] of blockTime, inclusive. It also returns the bounds.
func IsWithinBlockTimeWindow(ts uint64, blockTime time.Time) (ok bool, start, end uint64) {
	start = uint64(blockTime.Add(-BlockTimeWindow).UnixMilli())
	end = uint64(blockTime.Add(BlockTimeWindow).UnixMilli())
	return ts >= start && ts <= end, start, end
}
