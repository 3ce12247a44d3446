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

type ProtocolVersionParsingError struct {
	ParsingError string `cbor:"parsingError"`
}

func (e *ProtocolVersionParsingError) Code() Code { return CodeProtocolVersionParsing }
func (e *ProtocolVersionParsingError) Error() string {
	return "can't read protocol version: " + e.ParsingError
}

type SerializedObjectParsingError struct {
	ParsingError string `cbor:"parsingError"`
}

func (e *SerializedObjectParsingError) Code() Code { return CodeSerializedObjectParsing }
func (e *SerializedObjectParsingError) Error() string {
	return "parsing of serialized object failed: " + e.ParsingError
}

type UnsupportedProtocolVersionError struct {
	ParsedProtocolVersion uint32 `cbor:"parsedProtocolVersion"`
	LatestVersion         uint32 `cbor:"latestVersion"`
}

func (e *UnsupportedProtocolVersionError) Code() Code { return CodeUnsupportedProtocolVersion }
func (e *UnsupportedProtocolVersionError) Error() string {
	return fmt.Sprintf("protocol version %d is not supported, latest is %d", e.ParsedProtocolVersion, e.LatestVersion)
}

type InvalidStateTransitionTypeError struct {
	Type uint64 `cbor:"type"`
}

func (e *InvalidStateTransitionTypeError) Code() Code { return CodeInvalidStateTransitionType }
func (e *InvalidStateTransitionTypeError) Error() string {
	return fmt.Sprintf("invalid state transition type %d", e.Type)
}

type StateTransitionMaxSizeExceededError struct {
	ActualSizeKBytes int `cbor:"actualSizeKBytes"`
	MaxSizeKBytes    int `cbor:"maxSizeKBytes"`
}

func (e *StateTransitionMaxSizeExceededError) Code() Code { return CodeStateTransitionMaxSizeExceeded }
func (e *StateTransitionMaxSizeExceededError) Error() string {
	return fmt.Sprintf("state transition size %d KB is more than maximum %d KB", e.ActualSizeKBytes, e.MaxSizeKBytes)
}

// JsonSchemaError is a structural violation of a schema. Path is the
// location of the offending value and Keyword the failing rule.
type JsonSchemaError struct {
	Message string `cbor:"message"`
	Keyword string `cbor:"keyword"`
	Path    string `cbor:"instancePath"`
}

func (e *JsonSchemaError) Code() Code { return CodeJsonSchema }
func (e *JsonSchemaError) Error() string {
	msg := e.Message
	if msg == "" {
		msg = "JSON schema violation"
	}
	if e.Path == "" {
		return msg
	}
	return fmt.Sprintf("%s: %s", e.Path, msg)
}

type JsonSchemaCompilationError struct {
	CompilationError string `cbor:"compilationError"`
}

func (e *JsonSchemaCompilationError) Code() Code { return CodeJsonSchemaCompilation }
func (e *JsonSchemaCompilationError) Error() string {
	return "schema compilation failed: " + e.CompilationError
}

type InvalidIdentifierError struct {
	Name  string `cbor:"identifierName"`
	Cause string `cbor:"error"`
}

func (e *InvalidIdentifierError) Code() Code { return CodeInvalidIdentifier }
func (e *InvalidIdentifierError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Name, e.Cause)
}

type InvalidDataContractIDError struct {
	ExpectedID protocol.Identifier `cbor:"expectedId"`
	InvalidID  protocol.Identifier `cbor:"invalidId"`
}

func (e *InvalidDataContractIDError) Code() Code { return CodeInvalidDataContractID }
func (e *InvalidDataContractIDError) Error() string {
	return fmt.Sprintf("data contract id %v is not %v", e.InvalidID, e.ExpectedID)
}

type DuplicateIndexNameError struct {
	DocumentType string `cbor:"documentType"`
	IndexName    string `cbor:"duplicateIndexName"`
}

func (e *DuplicateIndexNameError) Code() Code { return CodeDuplicateIndexName }
func (e *DuplicateIndexNameError) Error() string {
	return fmt.Sprintf("duplicate index name %q in %s", e.IndexName, e.DocumentType)
}

type UndefinedIndexPropertyError struct {
	DocumentType string `cbor:"documentType"`
	IndexName    string `cbor:"indexName"`
	PropertyName string `cbor:"propertyName"`
}

func (e *UndefinedIndexPropertyError) Code() Code { return CodeUndefinedIndexProperty }
func (e *UndefinedIndexPropertyError) Error() string {
	return fmt.Sprintf("%s index %q uses undefined property %q", e.DocumentType, e.IndexName, e.PropertyName)
}

type SystemPropertyIndexAlreadyPresentError struct {
	DocumentType string `cbor:"documentType"`
	IndexName    string `cbor:"indexName"`
	PropertyName string `cbor:"propertyName"`
}

func (e *SystemPropertyIndexAlreadyPresentError) Code() Code {
	return CodeSystemPropertyIndexAlreadyPresent
}
func (e *SystemPropertyIndexAlreadyPresentError) Error() string {
	return fmt.Sprintf("%s index %q covers system property %q which is already indexed", e.DocumentType, e.IndexName, e.PropertyName)
}

type UniqueIndicesLimitReachedError struct {
	DocumentType string `cbor:"documentType"`
	Limit        int    `cbor:"indexLimit"`
}

func (e *UniqueIndicesLimitReachedError) Code() Code { return CodeUniqueIndicesLimitReached }
func (e *UniqueIndicesLimitReachedError) Error() string {
	return fmt.Sprintf("%s has more than %d unique indices", e.DocumentType, e.Limit)
}

type InvalidDocumentTransitionActionError struct {
	Action uint8 `cbor:"action"`
}

func (e *InvalidDocumentTransitionActionError) Code() Code { return CodeInvalidDocumentTransitionAction }
func (e *InvalidDocumentTransitionActionError) Error() string {
	return fmt.Sprintf("document transition action %d is not supported", e.Action)
}

type MissingDataContractIDError struct{}

func (e *MissingDataContractIDError) Code() Code    { return CodeMissingDataContractID }
func (e *MissingDataContractIDError) Error() string { return "$dataContractId is not present" }

type MissingDocumentTransitionTypeError struct{}

func (e *MissingDocumentTransitionTypeError) Code() Code    { return CodeMissingDocumentTransitionType }
func (e *MissingDocumentTransitionTypeError) Error() string { return "$type is not present" }

type InvalidDocumentTransitionIDError struct {
	ExpectedID protocol.Identifier `cbor:"expectedId"`
	InvalidID  protocol.Identifier `cbor:"invalidId"`
}

func (e *InvalidDocumentTransitionIDError) Code() Code { return CodeInvalidDocumentTransitionID }
func (e *InvalidDocumentTransitionIDError) Error() string {
	return fmt.Sprintf("document id %v is not %v", e.InvalidID, e.ExpectedID)
}

type DuplicateDocumentTransitionsWithIDsError struct {
	References []DocumentReference `cbor:"references"`
}

// DocumentReference names a document by type and id.
type DocumentReference struct {
	Type string              `cbor:"type"`
	ID   protocol.Identifier `cbor:"id"`
}

func (e *DuplicateDocumentTransitionsWithIDsError) Code() Code {
	return CodeDuplicateDocumentTransitionsWithIDs
}
func (e *DuplicateDocumentTransitionsWithIDsError) Error() string {
	return fmt.Sprintf("document transitions with duplicate ids %v", e.References)
}

type InvalidDocumentTypeError struct {
	Type           string              `cbor:"type"`
	DataContractID protocol.Identifier `cbor:"dataContractId"`
}

func (e *InvalidDocumentTypeError) Code() Code { return CodeInvalidDocumentType }
func (e *InvalidDocumentTypeError) Error() string {
	return fmt.Sprintf("data contract %v doesn't define document type %q", e.DataContractID, e.Type)
}

type InvalidIdentityPublicKeyDataError struct {
	PublicKeyID uint32 `cbor:"publicKeyId"`
	Validation  string `cbor:"validationError"`
}

func (e *InvalidIdentityPublicKeyDataError) Code() Code { return CodeInvalidIdentityPublicKeyData }
func (e *InvalidIdentityPublicKeyDataError) Error() string {
	return fmt.Sprintf("invalid identity public key %d data: %s", e.PublicKeyID, e.Validation)
}

type DuplicatedIdentityPublicKeyIDError struct {
	DuplicatedIDs []uint32 `cbor:"duplicatedIds"`
}

func (e *DuplicatedIdentityPublicKeyIDError) Code() Code { return CodeDuplicatedIdentityPublicKeyID }
func (e *DuplicatedIdentityPublicKeyIDError) Error() string {
	return fmt.Sprintf("duplicated public key ids %v", e.DuplicatedIDs)
}

type DuplicatedIdentityPublicKeyError struct {
	DuplicatedIDs []uint32 `cbor:"duplicatedPublicKeysIds"`
}

func (e *DuplicatedIdentityPublicKeyError) Code() Code { return CodeDuplicatedIdentityPublicKey }
func (e *DuplicatedIdentityPublicKeyError) Error() string {
	return fmt.Sprintf("duplicated public keys %v", e.DuplicatedIDs)
}

type MissingMasterPublicKeyError struct{}

func (e *MissingMasterPublicKeyError) Code() Code { return CodeMissingMasterPublicKey }
func (e *MissingMasterPublicKeyError) Error() string {
	return "identity doesn't contain an enabled master authentication key"
}

type InvalidIdentityPublicKeySecurityLevelError struct {
	PublicKeyID   uint32                 `cbor:"publicKeyId"`
	Purpose       protocol.KeyPurpose    `cbor:"purpose"`
	SecurityLevel protocol.SecurityLevel `cbor:"securityLevel"`
}

func (e *InvalidIdentityPublicKeySecurityLevelError) Code() Code {
	return CodeInvalidIdentityPublicKeySecurityLevel
}
func (e *InvalidIdentityPublicKeySecurityLevelError) Error() string {
	return fmt.Sprintf("public key %d has security level %v which is not allowed for purpose %v", e.PublicKeyID, e.SecurityLevel, e.Purpose)
}

type InvalidIdentityUpdateTransitionEmptyError struct{}

func (e *InvalidIdentityUpdateTransitionEmptyError) Code() Code {
	return CodeInvalidIdentityUpdateTransitionEmpty
}
func (e *InvalidIdentityUpdateTransitionEmptyError) Error() string {
	return "identity update doesn't add or disable any keys"
}

type InvalidIdentityUpdateTransitionDisableKeysError struct{}

func (e *InvalidIdentityUpdateTransitionDisableKeysError) Code() Code {
	return CodeInvalidIdentityUpdateTransitionDisableKeys
}
func (e *InvalidIdentityUpdateTransitionDisableKeysError) Error() string {
	return "publicKeysDisabledAt must be set if and only if keys are disabled"
}

type IdentityPublicKeyDisabledAtNotAllowedError struct {
	PublicKeyID uint32 `cbor:"publicKeyId"`
}

func (e *IdentityPublicKeyDisabledAtNotAllowedError) Code() Code {
	return CodeIdentityPublicKeyDisabledAtNotAllowed
}
func (e *IdentityPublicKeyDisabledAtNotAllowedError) Error() string {
	return fmt.Sprintf("new public key %d must not be disabled", e.PublicKeyID)
}

type InvalidAssetLockProofError struct {
	Reason string `cbor:"reason"`
}

func (e *InvalidAssetLockProofError) Code() Code    { return CodeInvalidAssetLockProof }
func (e *InvalidAssetLockProofError) Error() string { return "invalid asset lock proof: " + e.Reason }

type IdentityAssetLockTransactionOutputNotFoundError struct {
	OutputIndex uint32 `cbor:"outputIndex"`
}

func (e *IdentityAssetLockTransactionOutputNotFoundError) Code() Code {
	return CodeIdentityAssetLockTransactionOutputNotFound
}
func (e *IdentityAssetLockTransactionOutputNotFoundError) Error() string {
	return fmt.Sprintf("asset lock transaction output %d not found", e.OutputIndex)
}

type InvalidAssetLockTransactionOutputReturnSizeError struct {
	OutputIndex uint32 `cbor:"outputIndex"`
}

func (e *InvalidAssetLockTransactionOutputReturnSizeError) Code() Code {
	return CodeInvalidAssetLockTransactionOutputReturnSize
}
func (e *InvalidAssetLockTransactionOutputReturnSizeError) Error() string {
	return fmt.Sprintf("asset lock output %d return data must be 20 bytes", e.OutputIndex)
}

// FromDecodeError maps a state transition decoding failure to a consensus
// error. It returns false for failures that are not rule violations.
func FromDecodeError(err error) (Error, bool) {
	switch err := err.(type) {
	case *protocol.ProtocolVersionParsingError:
		return &ProtocolVersionParsingError{ParsingError: err.Error()}, true
	case *protocol.UnsupportedVersionError:
		return &UnsupportedProtocolVersionError{ParsedProtocolVersion: err.Version, LatestVersion: err.Latest}, true
	case *protocol.ObjectParsingError:
		return &SerializedObjectParsingError{ParsingError: err.Err.Error()}, true
	case *protocol.InvalidTransitionTypeError:
		return &InvalidStateTransitionTypeError{Type: err.Type}, true
	case *protocol.MaxSizeExceededError:
		return &StateTransitionMaxSizeExceededError{ActualSizeKBytes: err.Size / 1024, MaxSizeKBytes: err.Max / 1024}, true
	}
	return nil, false
}
