// Copyright 2024 The Accumulate Authors
//
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file or at
// https://opensource.org/licenses/MIT.

package kvtest

import (
	"fmt"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/require"
)

func BenchmarkCommit(b *testing.B, open Opener) {
	// Populate
	db := openDb(b, open)

	batch := db.Begin(nil, true)
	defer batch.Discard()

	for i := 0; i < b.N; i++ {
		err := batch.Put(key(i), []byte(fmt.Sprintf("%x this much data ", i)))
		require.NoError(b, err, "Put")
	}

	// Commit
	b.ResetTimer()
	require.NoError(b, batch.Commit())
}

func BenchmarkReadRandom(b *testing.B, open Opener) {
	const N = 100000

	// Populate
	db := openDb(b, open)

	batch := db.Begin(nil, true)
	defer batch.Discard()

	for i := 0; i < N; i++ {
		err := batch.Put(key(i), []byte(fmt.Sprintf("%x this much data ", i)))
		require.NoError(b, err, "Put")
	}

	// Commit and create a new batch
	require.NoError(b, batch.Commit())
	batch = db.Begin(nil, false)
	defer batch.Discard()

	r := rand.New(rand.NewSource(0))
	indices := make([]int, b.N)
	for i := range indices {
		indices[i] = r.Intn(N)
	}

	// Read
	b.ResetTimer()
	for _, i := range indices {
		_, err := batch.Get(key(i))
		if err != nil {
			require.NoError(b, err)
		}
	}
}
