// Copyright 2024 The Accumulate Authors
//
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file or at
// https://opensource.org/licenses/MIT.

package protocol

import "fmt"

// Fee schedule constants, in credits.
const (
	StorageCreditPerByte           = 5000
	StorageProcessingCreditPerByte = 10
	StorageLoadCreditPerByte       = 10
	DeleteBaseProcessingCost       = 20000

	SignatureVerifyCostSecp256k1 = 3000
	SignatureVerifyCostBLS       = 6000
	SignatureVerifyCostHash160   = 4000
)

// OperationType identifies a kind of fee operation.
type OperationType uint8

const (
	OperationRead OperationType = iota + 1
	OperationWrite
	OperationDelete
	OperationSignatureVerification
	OperationPreCalculated
)

func (t OperationType) String() string {
	switch t {
	case OperationRead:
		return "read"
	case OperationWrite:
		return "write"
	case OperationDelete:
		return "delete"
	case OperationSignatureVerification:
		return "signatureVerification"
	case OperationPreCalculated:
		return "preCalculated"
	}
	return fmt.Sprintf("OperationType(%d)", uint8(t))
}

// Operation is a unit of work that costs credits.
type Operation interface {
	Type() OperationType
	ProcessingCost() int64
	StorageCost() int64
}

// ReadOperation loads ValueSize bytes.
type ReadOperation struct {
	ValueSize int
}

// WriteOperation stores a key and value.
type WriteOperation struct {
	KeySize   int
	ValueSize int
}

// DeleteOperation removes a key and value. Deletion refunds storage.
type DeleteOperation struct {
	KeySize   int
	ValueSize int
}

// SignatureVerificationOperation verifies a signature with a key of the
// given type.
type SignatureVerificationOperation struct {
	KeyType KeyType
}

// PreCalculatedOperation carries costs computed elsewhere.
type PreCalculatedOperation struct {
	Storage    int64
	Processing int64
}

func (ReadOperation) Type() OperationType                  { return OperationRead }
func (WriteOperation) Type() OperationType                 { return OperationWrite }
func (DeleteOperation) Type() OperationType                { return OperationDelete }
func (SignatureVerificationOperation) Type() OperationType { return OperationSignatureVerification }
func (PreCalculatedOperation) Type() OperationType         { return OperationPreCalculated }

func (op ReadOperation) ProcessingCost() int64 {
	return int64(op.ValueSize) * StorageLoadCreditPerByte
}

func (ReadOperation) StorageCost() int64 { return 0 }

func (op WriteOperation) ProcessingCost() int64 {
	return int64(op.KeySize+op.ValueSize) * StorageProcessingCreditPerByte
}

func (op WriteOperation) StorageCost() int64 {
	return int64(op.KeySize+op.ValueSize) * StorageCreditPerByte
}

func (op DeleteOperation) ProcessingCost() int64 {
	return int64(op.KeySize+op.ValueSize)*StorageProcessingCreditPerByte + DeleteBaseProcessingCost
}

func (op DeleteOperation) StorageCost() int64 {
	return -int64(op.KeySize+op.ValueSize) * StorageCreditPerByte
}

func (op SignatureVerificationOperation) ProcessingCost() int64 {
	switch op.KeyType {
	case KeyTypeECDSASecp256k1:
		return SignatureVerifyCostSecp256k1
	case KeyTypeBLS12381:
		return SignatureVerifyCostBLS
	case KeyTypeECDSAHash160:
		return SignatureVerifyCostHash160
	}
	return 0
}

func (SignatureVerificationOperation) StorageCost() int64 { return 0 }

func (op PreCalculatedOperation) ProcessingCost() int64 { return op.Processing }
func (op PreCalculatedOperation) StorageCost() int64    { return op.Storage }

// CalculateOperationFees sums the storage and processing costs of ops.
func CalculateOperationFees(ops []Operation) (storage, processing int64) {
	for _, op := range ops {
		storage += op.StorageCost()
		processing += op.ProcessingCost()
	}
	return storage, processing
}

// CalculateFee returns the fee for ops. The fee is never negative.
func CalculateFee(ops []Operation) uint64 {
	storage, processing := CalculateOperationFees(ops)
	total := storage + processing
	if total < 0 {
		return 0
	}
	return uint64(total)
}
