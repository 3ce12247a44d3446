// Copyright 2024 The Accumulate Authors
//
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file or at
// https://opensource.org/licenses/MIT.

package execute_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	. "gitlab.com/accumulatenetwork/platform/internal/core/execute"
	"gitlab.com/accumulatenetwork/platform/protocol"
)

func contextAt(height int64) *BlockExecutionContext {
	c := NewBlockExecutionContext()
	c.SetHeader(&Header{Height: height, Time: time.Unix(1700000000+height, 0).UTC(), CoreChainLockedHeight: 42})
	return c
}

func TestBlockExecutionContext(t *testing.T) {
	c := NewBlockExecutionContext()
	require.True(t, c.IsEmpty())
	require.NotNil(t, c.ConsensusLogger())

	c.SetHeader(&Header{Height: 1})
	c.IncrementCumulativeFees(10)
	c.IncrementCumulativeFees(5)
	c.AddDataContract(&protocol.DataContract{ID: protocol.Identifier{2}})
	c.AddDataContract(&protocol.DataContract{ID: protocol.Identifier{1}})
	c.AddPublicKeyHash([]byte("hash"))
	require.False(t, c.IsEmpty())
	require.Equal(t, uint64(15), c.CumulativeFees())
	require.True(t, c.HasDataContract(protocol.Identifier{1}))
	require.False(t, c.HasDataContract(protocol.Identifier{3}))

	contracts := c.DataContracts()
	require.Len(t, contracts, 2)
	require.Equal(t, protocol.Identifier{1}, contracts[0].ID)

	d := NewBlockExecutionContext()
	d.Populate(c)
	c.Reset()
	require.True(t, c.IsEmpty())
	require.Zero(t, c.CumulativeFees())
	require.Equal(t, uint64(15), d.CumulativeFees())
	require.Equal(t, [][]byte{[]byte("hash")}, d.PublicKeyHashes())
}

func TestContextStack(t *testing.T) {
	s := NewContextStack(3)
	require.Nil(t, s.GetFirst())
	require.Nil(t, s.RemoveLatest())

	for h := int64(1); h <= 4; h++ {
		s.Add(contextAt(h))
	}
	require.Equal(t, 3, s.Size())
	require.Equal(t, int64(4), s.GetFirst().Header().Height)
	require.Equal(t, int64(2), s.GetLast().Header().Height)

	removed := s.RemoveLatest()
	require.Equal(t, int64(4), removed.Header().Height)
	require.Equal(t, int64(3), s.GetFirst().Header().Height)
	require.Equal(t, 2, s.Size())
}

func TestContextStackAddCopies(t *testing.T) {
	s := NewContextStack(0)
	c := contextAt(1)
	s.Add(c)
	c.Reset()
	require.Equal(t, int64(1), s.GetFirst().Header().Height)
}

func TestContextStackPersistence(t *testing.T) {
	s := NewContextStack(3)
	c := contextAt(7)
	c.IncrementCumulativeFees(100)
	c.AddDataContract(&protocol.DataContract{ID: protocol.Identifier{9}, Version: 1})
	s.Add(contextAt(6))
	s.Add(c)

	b, err := s.MarshalBinary()
	require.NoError(t, err)

	loaded := NewContextStack(3)
	require.NoError(t, loaded.UnmarshalBinary(b))
	require.Equal(t, 2, loaded.Size())

	first := loaded.GetFirst()
	require.Equal(t, int64(7), first.Header().Height)
	require.True(t, c.BlockTime().Equal(first.BlockTime()))
	require.Equal(t, uint32(42), first.Header().CoreChainLockedHeight)
	require.Equal(t, uint64(100), first.CumulativeFees())
	require.True(t, first.HasDataContract(protocol.Identifier{9}))
}
