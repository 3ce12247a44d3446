// Copyright 2024 The Accumulate Authors
//
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file or at
// https://opensource.org/licenses/MIT.

package kvtest

import (
	"crypto/rand"
	"fmt"
	"io"
	"testing"

	"github.com/stretchr/testify/require"
	"gitlab.com/accumulatenetwork/platform/pkg/database/keyvalue"
	"gitlab.com/accumulatenetwork/platform/pkg/errors"
)

type Opener = func() (keyvalue.Beginner, error)

type closableDb struct {
	keyvalue.Beginner
	t      testing.TB
	closed bool
}

func (c *closableDb) Close() {
	if c.closed {
		return
	}
	c.closed = true

	if d, ok := c.Beginner.(io.Closer); ok {
		require.NoError(c.t, d.Close())
	}
}

func openDb(t testing.TB, open Opener) *closableDb {
	db, err := open()
	require.NoError(t, err)
	c := &closableDb{db, t, false}
	t.Cleanup(c.Close)
	return c
}

func key(i int) []byte {
	return []byte(fmt.Sprintf("answer/%08d", i))
}

// TestSuite runs the tests every driver must pass. Drivers that provide
// snapshot reads should also run [TestIsolation].
func TestSuite(t *testing.T, open Opener) {
	t.Run("Database", func(t *testing.T) { TestDatabase(t, open) })
	t.Run("SubBatch", func(t *testing.T) { TestSubBatch(t, open) })
	t.Run("Prefix", func(t *testing.T) { TestPrefix(t, open) })
	t.Run("Delete", func(t *testing.T) { TestDelete(t, open) })
}

func TestDatabase(t *testing.T, open Opener) {
	const N = 1000

	// Open and write changes
	db := openDb(t, open)

	batch := db.Begin(nil, true)
	defer batch.Discard()

	// Read when nothing exists
	_, err := batch.Get([]byte("missing"))
	require.Error(t, err)
	require.ErrorIs(t, err, errors.NotFound)

	// Write
	values := map[string]string{}
	for i := 0; i < N; i++ {
		value := fmt.Sprintf("%x this much data ", i)
		values[string(key(i))] = value
		err := batch.Put(key(i), []byte(value))
		require.NoError(t, err, "Put")
	}

	// Commit
	require.NoError(t, batch.Commit())

	// Verify with a new batch
	batch = db.Begin(nil, false)
	defer batch.Discard()

	for i := 0; i < N; i++ {
		val, err := batch.Get(key(i))
		require.NoError(t, err, "Get")
		require.Equal(t, fmt.Sprintf("%x this much data ", i), string(val))
	}

	batch.Discard()

	// Verify with a fresh instance
	db.Close()
	db = openDb(t, open)

	batch = db.Begin(nil, false)
	defer batch.Discard()

	for i := 0; i < N; i++ {
		val, err := batch.Get(key(i))
		require.NoError(t, err, "Get")
		require.Equal(t, fmt.Sprintf("%x this much data ", i), string(val))
	}

	// Verify ForEach
	require.NoError(t, batch.ForEach(func(key, value []byte) error {
		expect, ok := values[string(key)]
		if !ok {
			// Left over from another test sharing the database
			return nil
		}
		require.Equalf(t, expect, string(value), "%s should match", key)
		delete(values, string(key))
		return nil
	}))
	require.Empty(t, values, "All values should be iterated over")
}

func TestIsolation(t *testing.T, open Opener) {
	// Open and write
	db := openDb(t, open)

	batch := db.Begin(nil, true)
	defer batch.Discard()

	k := []byte("key")
	err := batch.Put(k, []byte("value"))
	require.NoError(t, err, "Put")
	require.NoError(t, batch.Commit())

	// Start two batches
	b1 := db.Begin(nil, true)
	defer b1.Discard()

	b2 := db.Begin(nil, false)
	defer b2.Discard()

	// Delete and commit in batch 1
	require.NoError(t, b1.Delete(k))
	require.NoError(t, b1.Commit())

	// Verify the change is not visible from batch 2
	v, err := b2.Get(k)
	require.NoError(t, err, "Get")
	require.Equal(t, []byte("value"), v)

	// Verify the change is now visible
	batch = db.Begin(nil, true)
	defer batch.Discard()
	_, err = batch.Get(k)
	require.ErrorIs(t, err, errors.NotFound)
}

func TestSubBatch(t *testing.T, open Opener) {
	db := openDb(t, open)

	batch := db.Begin(nil, true)
	defer batch.Discard()
	sub := batch.Begin(nil, true)
	defer sub.Discard()

	for i := 0; i < 1000; i++ {
		err := sub.Put(key(i), []byte(fmt.Sprintf("%x this much data ", i)))
		require.NoError(t, err, "Put")
	}

	// Commit and begin a new sub-batch
	require.NoError(t, sub.Commit())
	sub = batch.Begin(nil, true)
	defer sub.Discard()

	for i := 0; i < 1000; i++ {
		val, err := sub.Get(key(i))
		require.NoError(t, err, "Get")
		require.Equal(t, fmt.Sprintf("%x this much data ", i), string(val))
	}
}

func TestPrefix(t *testing.T, open Opener) {
	data := make([]byte, 10)
	_, err := io.ReadFull(rand.Reader, data)
	require.NoError(t, err)

	db := openDb(t, open)

	prefix, k := []byte("foo/"), []byte("bar")
	batch := db.Begin(prefix, true)
	defer batch.Discard()
	require.NoError(t, batch.Put(k, data))
	require.NoError(t, batch.Commit())

	batch = db.Begin(prefix, true)
	defer batch.Discard()
	v, err := batch.Get(k)
	require.NoError(t, err)
	require.Equal(t, data, v)

	// The unprefixed key holds the value
	batch = db.Begin(nil, false)
	defer batch.Discard()
	v, err = batch.Get([]byte("foo/bar"))
	require.NoError(t, err)
	require.Equal(t, data, v)
}

func TestDelete(t *testing.T, open Opener) {
	db := openDb(t, open)

	// Write a value
	batch := db.Begin(nil, true)
	defer batch.Discard()
	require.NoError(t, batch.Put([]byte("foo"), []byte("bar")))
	require.NoError(t, batch.Commit())

	// Verify it can be retrieved
	batch = db.Begin(nil, false)
	defer batch.Discard()
	v, err := batch.Get([]byte("foo"))
	require.NoError(t, err)
	require.Equal(t, "bar", string(v))
	batch.Discard()

	// Delete the value
	batch = db.Begin(nil, true)
	defer batch.Discard()
	require.NoError(t, batch.Delete([]byte("foo")))

	// Verify it returns not found from the same batch
	_, err = batch.Get([]byte("foo"))
	require.ErrorIs(t, err, errors.NotFound)

	// Commit and reopen
	require.NoError(t, batch.Commit())
	db.Close()
	db = openDb(t, open)

	// Verify it returns not found from a new batch
	batch = db.Begin(nil, false)
	defer batch.Discard()
	_, err = batch.Get([]byte("foo"))
	require.ErrorIs(t, err, errors.NotFound)
}
