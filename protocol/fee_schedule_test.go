// Copyright 2024 The Accumulate Authors
//
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file or at
// https://opensource.org/licenses/MIT.

package protocol_test

import (
	"testing"

	"github.com/stretchr/testify/require"
	. "gitlab.com/accumulatenetwork/platform/protocol"
)

func TestOperationCosts(t *testing.T) {
	cases := []struct {
		Op         Operation
		Storage    int64
		Processing int64
	}{
		{ReadOperation{ValueSize: 0}, 0, 0},
		{ReadOperation{ValueSize: 100}, 0, 100 * StorageLoadCreditPerByte},
		{WriteOperation{KeySize: 32, ValueSize: 68}, 100 * StorageCreditPerByte, 100 * StorageProcessingCreditPerByte},
		{DeleteOperation{KeySize: 32}, -32 * StorageCreditPerByte, 32*StorageProcessingCreditPerByte + DeleteBaseProcessingCost},
		{SignatureVerificationOperation{KeyType: KeyTypeECDSASecp256k1}, 0, SignatureVerifyCostSecp256k1},
		{SignatureVerificationOperation{KeyType: KeyTypeBLS12381}, 0, SignatureVerifyCostBLS},
		{SignatureVerificationOperation{KeyType: KeyTypeECDSAHash160}, 0, SignatureVerifyCostHash160},
		{PreCalculatedOperation{Storage: 7, Processing: 11}, 7, 11},
	}
	for _, c := range cases {
		require.Equal(t, c.Storage, c.Op.StorageCost(), "%v storage", c.Op.Type())
		require.Equal(t, c.Processing, c.Op.ProcessingCost(), "%v processing", c.Op.Type())
	}
}

func TestFeeIsNeverNegative(t *testing.T) {
	ops := []Operation{DeleteOperation{KeySize: 1000}}
	storage, processing := CalculateOperationFees(ops)
	require.Negative(t, storage+processing)
	require.Zero(t, CalculateFee(ops))

	ops = append(ops, WriteOperation{KeySize: 1000, ValueSize: 1000})
	require.Equal(t, uint64(1000*StorageCreditPerByte+2000*StorageProcessingCreditPerByte+1000*StorageProcessingCreditPerByte+DeleteBaseProcessingCost), CalculateFee(ops))
}

func TestExecutionContext(t *testing.T) {
	c := NewExecutionContext()
	require.False(t, c.IsDryRun())
	c.AddOperation(ReadOperation{ValueSize: 5}, ReadOperation{ValueSize: 5})
	require.Len(t, c.Operations(), 2)
	require.Equal(t, uint64(10*StorageLoadCreditPerByte), c.Fee())

	c.EnableDryRun()
	require.True(t, c.IsDryRun())
	c.DisableDryRun()
	require.False(t, c.IsDryRun())

	c.ClearOperations()
	require.Empty(t, c.Operations())

	var nilCtx *ExecutionContext
	nilCtx.AddOperation(ReadOperation{})
	require.False(t, nilCtx.IsDryRun())
}
