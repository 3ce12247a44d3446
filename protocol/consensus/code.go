// Copyright 2024 The Accumulate Authors
//
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file or at
// https://opensource.org/licenses/MIT.

// Package consensus defines the errors reported for rejected state
// transitions. Codes are part of the protocol and must never change.
package consensus

import (
	"fmt"

	"gitlab.com/accumulatenetwork/platform/protocol"
)

// Code is the numeric code of a consensus error.
type Code uint32

// Error is a consensus rule violation.
type Error interface {
	error
	Code() Code
}

// Basic validation errors.
const (
	CodeProtocolVersionParsing                      Code = 1000
	CodeSerializedObjectParsing                     Code = 1001
	CodeUnsupportedProtocolVersion                  Code = 1002
	CodeInvalidStateTransitionType                  Code = 1003
	CodeStateTransitionMaxSizeExceeded              Code = 1004
	CodeJsonSchema                                  Code = 1005
	CodeJsonSchemaCompilation                       Code = 1006
	CodeInvalidIdentifier                           Code = 1007
	CodeInvalidDataContractID                       Code = 1010
	CodeDuplicateIndexName                          Code = 1011
	CodeUndefinedIndexProperty                      Code = 1012
	CodeSystemPropertyIndexAlreadyPresent           Code = 1013
	CodeUniqueIndicesLimitReached                   Code = 1014
	CodeInvalidDocumentTransitionAction             Code = 1020
	CodeMissingDataContractID                       Code = 1021
	CodeMissingDocumentTransitionType               Code = 1022
	CodeInvalidDocumentTransitionID                 Code = 1023
	CodeDuplicateDocumentTransitionsWithIDs         Code = 1024
	CodeInvalidDocumentType                         Code = 1025
	CodeInvalidIdentityPublicKeyData                Code = 1030
	CodeDuplicatedIdentityPublicKeyID               Code = 1031
	CodeDuplicatedIdentityPublicKey                 Code = 1032
	CodeMissingMasterPublicKey                      Code = 1033
	CodeInvalidIdentityPublicKeySecurityLevel       Code = 1034
	CodeInvalidIdentityUpdateTransitionEmpty        Code = 1035
	CodeInvalidIdentityUpdateTransitionDisableKeys  Code = 1036
	CodeIdentityPublicKeyDisabledAtNotAllowed       Code = 1037
	CodeInvalidAssetLockProof                       Code = 1040
	CodeIdentityAssetLockTransactionOutputNotFound  Code = 1041
	CodeInvalidAssetLockTransactionOutputReturnSize Code = 1042
)

// Signature validation errors.
const (
	CodeIdentityNotFound                       Code = 2000
	CodeInvalidIdentityPublicKeyType           Code = 2001
	CodeInvalidStateTransitionSignature        Code = 2002
	CodeMissingPublicKey                       Code = 2003
	CodeInvalidSignaturePublicKeySecurityLevel Code = 2004
	CodeWrongPublicKeyPurpose                  Code = 2005
	CodePublicKeyIsDisabled                    Code = 2006
	CodePublicKeySecurityLevelNotMet           Code = 2007
	CodeStateTransitionIsNotSigned             Code = 2008
	CodePublicKeyMismatch                      Code = 2009
)

// Fee validation errors.
const (
	CodeBalanceIsNotEnough Code = 3000
)

// State validation errors.
const (
	CodeDataContractAlreadyPresent                        Code = 4000
	CodeDataContractNotPresent                            Code = 4001
	CodeInvalidDataContractVersion                        Code = 4002
	CodeDataContractIndicesChanged                        Code = 4003
	CodeDocumentAlreadyPresent                            Code = 4004
	CodeDocumentNotFound                                  Code = 4005
	CodeDocumentOwnerIDMismatch                           Code = 4006
	CodeDocumentTimestampWindowViolation                  Code = 4007
	CodeDuplicateUniqueIndex                              Code = 4008
	CodeInvalidDocumentRevision                           Code = 4009
	CodeIdentityAlreadyExists                             Code = 4010
	CodeIdentityPublicKeyDisabledAtWindowViolation        Code = 4011
	CodeIdentityPublicKeyIsReadOnly                       Code = 4012
	CodeInvalidIdentityPublicKeyID                        Code = 4013
	CodeInvalidIdentityRevision                           Code = 4014
	CodeStateMaxIdentityPublicKeyLimitReached             Code = 4015
	CodeIdentityAssetLockTransactionOutPointAlreadyExists Code = 4016
	CodeInvalidAssetLockProofCoreChainHeight              Code = 4017
	CodeIdentityAssetLockTransactionIsNotFound            Code = 4018
	CodeInvalidInstantAssetLockProofSignature             Code = 4019
	CodeIdentityPublicKeyIsDisabled                       Code = 4020
	CodeDataContractOwnerIDMismatch                       Code = 4021
)

var codeNames = map[Code]string{
	CodeProtocolVersionParsing:                            "ProtocolVersionParsing",
	CodeSerializedObjectParsing:                           "SerializedObjectParsing",
	CodeUnsupportedProtocolVersion:                        "UnsupportedProtocolVersion",
	CodeInvalidStateTransitionType:                        "InvalidStateTransitionType",
	CodeStateTransitionMaxSizeExceeded:                    "StateTransitionMaxSizeExceeded",
	CodeJsonSchema:                                        "JsonSchema",
	CodeJsonSchemaCompilation:                             "JsonSchemaCompilation",
	CodeInvalidIdentifier:                                 "InvalidIdentifier",
	CodeInvalidDataContractID:                             "InvalidDataContractId",
	CodeDuplicateIndexName:                                "DuplicateIndexName",
	CodeUndefinedIndexProperty:                            "UndefinedIndexProperty",
	CodeSystemPropertyIndexAlreadyPresent:                 "SystemPropertyIndexAlreadyPresent",
	CodeUniqueIndicesLimitReached:                         "UniqueIndicesLimitReached",
	CodeInvalidDocumentTransitionAction:                   "InvalidDocumentTransitionAction",
	CodeMissingDataContractID:                             "MissingDataContractId",
	CodeMissingDocumentTransitionType:                     "MissingDocumentTransitionType",
	CodeInvalidDocumentTransitionID:                       "InvalidDocumentTransitionId",
	CodeDuplicateDocumentTransitionsWithIDs:               "DuplicateDocumentTransitionsWithIds",
	CodeInvalidDocumentType:                               "InvalidDocumentType",
	CodeInvalidIdentityPublicKeyData:                      "InvalidIdentityPublicKeyData",
	CodeDuplicatedIdentityPublicKeyID:                     "DuplicatedIdentityPublicKeyId",
	CodeDuplicatedIdentityPublicKey:                       "DuplicatedIdentityPublicKey",
	CodeMissingMasterPublicKey:                            "MissingMasterPublicKey",
	CodeInvalidIdentityPublicKeySecurityLevel:             "InvalidIdentityPublicKeySecurityLevel",
	CodeInvalidIdentityUpdateTransitionEmpty:              "InvalidIdentityUpdateTransitionEmpty",
	CodeInvalidIdentityUpdateTransitionDisableKeys:        "InvalidIdentityUpdateTransitionDisableKeys",
	CodeIdentityPublicKeyDisabledAtNotAllowed:             "IdentityPublicKeyDisabledAtNotAllowed",
	CodeInvalidAssetLockProof:                             "InvalidAssetLockProof",
	CodeIdentityAssetLockTransactionOutputNotFound:        "IdentityAssetLockTransactionOutputNotFound",
	CodeInvalidAssetLockTransactionOutputReturnSize:       "InvalidAssetLockTransactionOutputReturnSize",
	CodeIdentityNotFound:                                  "IdentityNotFound",
	CodeInvalidIdentityPublicKeyType:                      "InvalidIdentityPublicKeyType",
	CodeInvalidStateTransitionSignature:                   "InvalidStateTransitionSignature",
	CodeMissingPublicKey:                                  "MissingPublicKey",
	CodeInvalidSignaturePublicKeySecurityLevel:            "InvalidSignaturePublicKeySecurityLevel",
	CodeWrongPublicKeyPurpose:                             "WrongPublicKeyPurpose",
	CodePublicKeyIsDisabled:                               "PublicKeyIsDisabled",
	CodePublicKeySecurityLevelNotMet:                      "PublicKeySecurityLevelNotMet",
	CodeStateTransitionIsNotSigned:                        "StateTransitionIsNotSigned",
	CodePublicKeyMismatch:                                 "PublicKeyMismatch",
	CodeBalanceIsNotEnough:                                "BalanceIsNotEnough",
	CodeDataContractAlreadyPresent:                        "DataContractAlreadyPresent",
	CodeDataContractNotPresent:                            "DataContractNotPresent",
	CodeInvalidDataContractVersion:                        "InvalidDataContractVersion",
	CodeDataContractIndicesChanged:                        "DataContractIndicesChanged",
	CodeDocumentAlreadyPresent:                            "DocumentAlreadyPresent",
	CodeDocumentNotFound:                                  "DocumentNotFound",
	CodeDocumentOwnerIDMismatch:                           "DocumentOwnerIdMismatch",
	CodeDocumentTimestampWindowViolation:                  "DocumentTimestampWindowViolation",
	CodeDuplicateUniqueIndex:                              "DuplicateUniqueIndex",
	CodeInvalidDocumentRevision:                           "InvalidDocumentRevision",
	CodeIdentityAlreadyExists:                             "IdentityAlreadyExists",
	CodeIdentityPublicKeyDisabledAtWindowViolation:        "IdentityPublicKeyDisabledAtWindowViolation",
	CodeIdentityPublicKeyIsReadOnly:                       "IdentityPublicKeyIsReadOnly",
	CodeInvalidIdentityPublicKeyID:                        "InvalidIdentityPublicKeyId",
	CodeInvalidIdentityRevision:                           "InvalidIdentityRevision",
	CodeStateMaxIdentityPublicKeyLimitReached:             "StateMaxIdentityPublicKeyLimitReached",
	CodeIdentityAssetLockTransactionOutPointAlreadyExists: "IdentityAssetLockTransactionOutPointAlreadyExists",
	CodeInvalidAssetLockProofCoreChainHeight:              "InvalidAssetLockProofCoreChainHeight",
	CodeIdentityAssetLockTransactionIsNotFound:            "IdentityAssetLockTransactionIsNotFound",
	CodeInvalidInstantAssetLockProofSignature:             "InvalidInstantAssetLockProofSignature",
	CodeIdentityPublicKeyIsDisabled:                       "IdentityPublicKeyIsDisabled",
	CodeDataContractOwnerIDMismatch:                       "DataContractOwnerIdMismatch",
}

func (c Code) String() string {
	if s, ok := codeNames[c]; ok {
		return s
	}
	return fmt.Sprintf("Code(%d)", uint32(c))
}

// IsBasic reports whether c is a basic validation code.
func (c Code) IsBasic() bool { return c >= 1000 && c < 2000 }

// IsSignature reports whether c is a signature validation code.
func (c Code) IsSignature() bool { return c >= 2000 && c < 3000 }

// IsFee reports whether c is a fee validation code.
func (c Code) IsFee() bool { return c >= 3000 && c < 4000 }

// IsState reports whether c is a state validation code.
func (c Code) IsState() bool { return c >= 4000 && c < 5000 }

// Marshal encodes the payload of err.
func Marshal(err Error) ([]byte, error) {
	return protocol.MarshalCBOR(err)
}
