// Copyright 2024 The Accumulate Authors
//
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file or at
// https://opensource.org/licenses/MIT.

package consensus

import (
	"fmt"

	"gitlab.com/accumulatenetwork/platform/protocol"
)

type DataContractAlreadyPresentError struct {
	DataContractID protocol.Identifier `cbor:"dataContractId"`
}

func (e *DataContractAlreadyPresentError) Code() Code { return CodeDataContractAlreadyPresent }
func (e *DataContractAlreadyPresentError) Error() string {
	return fmt.Sprintf("data contract %v is already present", e.DataContractID)
}

type DataContractNotPresentError struct {
	DataContractID protocol.Identifier `cbor:"dataContractId"`
}

func (e *DataContractNotPresentError) Code() Code { return CodeDataContractNotPresent }
func (e *DataContractNotPresentError) Error() string {
	return fmt.Sprintf("data contract %v is not present", e.DataContractID)
}

type InvalidDataContractVersionError struct {
	ExpectedVersion uint32 `cbor:"expectedVersion"`
	Version         uint32 `cbor:"version"`
}

func (e *InvalidDataContractVersionError) Code() Code { return CodeInvalidDataContractVersion }
func (e *InvalidDataContractVersionError) Error() string {
	return fmt.Sprintf("data contract version must be %d, got %d", e.ExpectedVersion, e.Version)
}

type DataContractOwnerIDMismatchError struct {
	DataContractID  protocol.Identifier `cbor:"dataContractId"`
	OwnerID         protocol.Identifier `cbor:"ownerId"`
	ExistingOwnerID protocol.Identifier `cbor:"existingOwnerId"`
}

func (e *DataContractOwnerIDMismatchError) Code() Code { return CodeDataContractOwnerIDMismatch }
func (e *DataContractOwnerIDMismatchError) Error() string {
	return fmt.Sprintf("data contract %v is owned by %v, not %v", e.DataContractID, e.ExistingOwnerID, e.OwnerID)
}

type DataContractIndicesChangedError struct {
	DocumentType string `cbor:"documentType"`
}

func (e *DataContractIndicesChangedError) Code() Code { return CodeDataContractIndicesChanged }
func (e *DataContractIndicesChangedError) Error() string {
	return fmt.Sprintf("indices of document type %q can't be changed", e.DocumentType)
}

type DocumentAlreadyPresentError struct {
	DocumentID protocol.Identifier `cbor:"documentId"`
}

func (e *DocumentAlreadyPresentError) Code() Code { return CodeDocumentAlreadyPresent }
func (e *DocumentAlreadyPresentError) Error() string {
	return fmt.Sprintf("document %v is already present", e.DocumentID)
}

type DocumentNotFoundError struct {
	DocumentID protocol.Identifier `cbor:"documentId"`
}

func (e *DocumentNotFoundError) Code() Code { return CodeDocumentNotFound }
func (e *DocumentNotFoundError) Error() string {
	return fmt.Sprintf("document %v not found", e.DocumentID)
}

type DocumentOwnerIDMismatchError struct {
	DocumentID      protocol.Identifier `cbor:"documentId"`
	DocumentOwnerID protocol.Identifier `cbor:"documentOwnerId"`
	ExistingOwnerID protocol.Identifier `cbor:"existingDocumentOwnerId"`
}

func (e *DocumentOwnerIDMismatchError) Code() Code { return CodeDocumentOwnerIDMismatch }
func (e *DocumentOwnerIDMismatchError) Error() string {
	return fmt.Sprintf("document %v is owned by %v, not %v", e.DocumentID, e.ExistingOwnerID, e.DocumentOwnerID)
}

type DocumentTimestampWindowViolationError struct {
	TimestampName   string              `cbor:"timestampName"`
	DocumentID      protocol.Identifier `cbor:"documentId"`
	Timestamp       uint64              `cbor:"timestamp"`
	TimeWindowStart uint64              `cbor:"timeWindowStart"`
	TimeWindowEnd   uint64              `cbor:"timeWindowEnd"`
}

func (e *DocumentTimestampWindowViolationError) Code() Code {
	return CodeDocumentTimestampWindowViolation
}
func (e *DocumentTimestampWindowViolationError) Error() string {
	return fmt.Sprintf("document %v %s %d is outside of the block time window [%d, %d]", e.DocumentID, e.TimestampName, e.Timestamp, e.TimeWindowStart, e.TimeWindowEnd)
}

type DuplicateUniqueIndexError struct {
	DocumentID            protocol.Identifier `cbor:"documentId"`
	DuplicatingProperties []string            `cbor:"duplicatingProperties"`
}

func (e *DuplicateUniqueIndexError) Code() Code { return CodeDuplicateUniqueIndex }
func (e *DuplicateUniqueIndexError) Error() string {
	return fmt.Sprintf("document %v has duplicate unique properties %v", e.DocumentID, e.DuplicatingProperties)
}

type InvalidDocumentRevisionError struct {
	DocumentID      protocol.Identifier `cbor:"documentId"`
	CurrentRevision uint64              `cbor:"currentRevision"`
}

func (e *InvalidDocumentRevisionError) Code() Code { return CodeInvalidDocumentRevision }
func (e *InvalidDocumentRevisionError) Error() string {
	return fmt.Sprintf("document %v has invalid revision, current is %d", e.DocumentID, e.CurrentRevision)
}

type IdentityAlreadyExistsError struct {
	IdentityID protocol.Identifier `cbor:"identityId"`
}

func (e *IdentityAlreadyExistsError) Code() Code { return CodeIdentityAlreadyExists }
func (e *IdentityAlreadyExistsError) Error() string {
	return fmt.Sprintf("identity %v already exists", e.IdentityID)
}

type IdentityPublicKeyDisabledAtWindowViolationError struct {
	DisabledAt      uint64 `cbor:"disabledAt"`
	TimeWindowStart uint64 `cbor:"timeWindowStart"`
	TimeWindowEnd   uint64 `cbor:"timeWindowEnd"`
}

func (e *IdentityPublicKeyDisabledAtWindowViolationError) Code() Code {
	return CodeIdentityPublicKeyDisabledAtWindowViolation
}
func (e *IdentityPublicKeyDisabledAtWindowViolationError) Error() string {
	return fmt.Sprintf("disabledAt %d is outside of the block time window [%d, %d]", e.DisabledAt, e.TimeWindowStart, e.TimeWindowEnd)
}

type IdentityPublicKeyIsReadOnlyError struct {
	PublicKeyIndex uint32 `cbor:"publicKeyIndex"`
}

func (e *IdentityPublicKeyIsReadOnlyError) Code() Code { return CodeIdentityPublicKeyIsReadOnly }
func (e *IdentityPublicKeyIsReadOnlyError) Error() string {
	return fmt.Sprintf("identity public key %d is read only", e.PublicKeyIndex)
}

type InvalidIdentityPublicKeyIDError struct {
	ID uint32 `cbor:"id"`
}

func (e *InvalidIdentityPublicKeyIDError) Code() Code { return CodeInvalidIdentityPublicKeyID }
func (e *InvalidIdentityPublicKeyIDError) Error() string {
	return fmt.Sprintf("identity public key %d doesn't exist or can't be added", e.ID)
}

type InvalidIdentityRevisionError struct {
	IdentityID      protocol.Identifier `cbor:"identityId"`
	CurrentRevision uint64              `cbor:"currentRevision"`
}

func (e *InvalidIdentityRevisionError) Code() Code { return CodeInvalidIdentityRevision }
func (e *InvalidIdentityRevisionError) Error() string {
	return fmt.Sprintf("identity %v has invalid revision, current is %d", e.IdentityID, e.CurrentRevision)
}

type StateMaxIdentityPublicKeyLimitReachedError struct {
	MaxItems int `cbor:"maxItems"`
}

func (e *StateMaxIdentityPublicKeyLimitReachedError) Code() Code {
	return CodeStateMaxIdentityPublicKeyLimitReached
}
func (e *StateMaxIdentityPublicKeyLimitReachedError) Error() string {
	return fmt.Sprintf("identity can't have more than %d public keys", e.MaxItems)
}

type IdentityAssetLockTransactionOutPointAlreadyExistsError struct {
	TransactionID []byte `cbor:"transactionId"`
	OutputIndex   uint32 `cbor:"outputIndex"`
}

func (e *IdentityAssetLockTransactionOutPointAlreadyExistsError) Code() Code {
	return CodeIdentityAssetLockTransactionOutPointAlreadyExists
}
func (e *IdentityAssetLockTransactionOutPointAlreadyExistsError) Error() string {
	return fmt.Sprintf("asset lock transaction %x output %d already used", e.TransactionID, e.OutputIndex)
}

type InvalidAssetLockProofCoreChainHeightError struct {
	ProofCoreChainLockedHeight   uint32 `cbor:"proofCoreChainLockedHeight"`
	CurrentCoreChainLockedHeight uint32 `cbor:"currentCoreChainLockedHeight"`
}

func (e *InvalidAssetLockProofCoreChainHeightError) Code() Code {
	return CodeInvalidAssetLockProofCoreChainHeight
}
func (e *InvalidAssetLockProofCoreChainHeightError) Error() string {
	return fmt.Sprintf("asset lock proof core chain height %d is higher than the current %d", e.ProofCoreChainLockedHeight, e.CurrentCoreChainLockedHeight)
}

type IdentityAssetLockTransactionIsNotFoundError struct {
	TransactionID []byte `cbor:"transactionId"`
}

func (e *IdentityAssetLockTransactionIsNotFoundError) Code() Code {
	return CodeIdentityAssetLockTransactionIsNotFound
}
func (e *IdentityAssetLockTransactionIsNotFoundError) Error() string {
	return fmt.Sprintf("asset lock transaction %x is not found", e.TransactionID)
}

type InvalidInstantAssetLockProofSignatureError struct{}

func (e *InvalidInstantAssetLockProofSignatureError) Code() Code {
	return CodeInvalidInstantAssetLockProofSignature
}
func (e *InvalidInstantAssetLockProofSignatureError) Error() string {
	return "instant lock proof signature is invalid or wasn't created recently"
}

type IdentityPublicKeyIsDisabledError struct {
	PublicKeyIndex uint32 `cbor:"publicKeyIndex"`
}

func (e *IdentityPublicKeyIsDisabledError) Code() Code { return CodeIdentityPublicKeyIsDisabled }
func (e *IdentityPublicKeyIsDisabledError) Error() string {
	return fmt.Sprintf("identity public key %d is already disabled", e.PublicKeyIndex)
}
