// Copyright 2024 The Accumulate Authors
//
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file or at
// https://opensource.org/licenses/MIT.

package validation_test

import (
	"testing"

	"github.com/stretchr/testify/require"
	. "gitlab.com/accumulatenetwork/platform/internal/core/validation"
	"gitlab.com/accumulatenetwork/platform/protocol/consensus"
)

func TestResult(t *testing.T) {
	var nilResult *Result
	require.True(t, nilResult.IsValid())

	r := New()
	require.True(t, r.IsValid())
	require.Nil(t, r.FirstError())

	r.AddError(&consensus.MissingPublicKeyError{PublicKeyID: 1}, nil)
	require.False(t, r.IsValid())
	require.Len(t, r.Errors(), 1)

	other := New(&consensus.DocumentNotFoundError{})
	other.Data = 42
	r.Merge(other)
	require.Len(t, r.Errors(), 2)
	require.Equal(t, 42, r.Data)
	require.Equal(t, consensus.CodeMissingPublicKey, r.FirstError().Code())
	require.Contains(t, r.Error(), "public key 1")
}
