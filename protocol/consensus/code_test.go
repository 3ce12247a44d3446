// Copyright 2024 The Accumulate Authors
//
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file or at
// https://opensource.org/licenses/MIT.

package consensus_test

import (
	"testing"

	"github.com/stretchr/testify/require"
	"gitlab.com/accumulatenetwork/platform/protocol"
	. "gitlab.com/accumulatenetwork/platform/protocol/consensus"
)

var allErrors = []Error{
	&ProtocolVersionParsingError{},
	&SerializedObjectParsingError{},
	&UnsupportedProtocolVersionError{},
	&InvalidStateTransitionTypeError{},
	&StateTransitionMaxSizeExceededError{},
	&JsonSchemaError{},
	&JsonSchemaCompilationError{},
	&InvalidIdentifierError{},
	&InvalidDataContractIDError{},
	&DuplicateIndexNameError{},
	&UndefinedIndexPropertyError{},
	&SystemPropertyIndexAlreadyPresentError{},
	&UniqueIndicesLimitReachedError{},
	&InvalidDocumentTransitionActionError{},
	&MissingDataContractIDError{},
	&MissingDocumentTransitionTypeError{},
	&InvalidDocumentTransitionIDError{},
	&DuplicateDocumentTransitionsWithIDsError{},
	&InvalidDocumentTypeError{},
	&InvalidIdentityPublicKeyDataError{},
	&DuplicatedIdentityPublicKeyIDError{},
	&DuplicatedIdentityPublicKeyError{},
	&MissingMasterPublicKeyError{},
	&InvalidIdentityPublicKeySecurityLevelError{},
	&InvalidIdentityUpdateTransitionEmptyError{},
	&InvalidIdentityUpdateTransitionDisableKeysError{},
	&IdentityPublicKeyDisabledAtNotAllowedError{},
	&InvalidAssetLockProofError{},
	&IdentityAssetLockTransactionOutputNotFoundError{},
	&InvalidAssetLockTransactionOutputReturnSizeError{},
	&IdentityNotFoundError{},
	&InvalidIdentityPublicKeyTypeError{},
	&InvalidStateTransitionSignatureError{},
	&MissingPublicKeyError{},
	&InvalidSignaturePublicKeySecurityLevelError{},
	&WrongPublicKeyPurposeError{},
	&PublicKeyIsDisabledError{},
	&PublicKeySecurityLevelNotMetError{},
	&StateTransitionIsNotSignedError{},
	&PublicKeyMismatchError{},
	&BalanceIsNotEnoughError{},
	&DataContractAlreadyPresentError{},
	&DataContractNotPresentError{},
	&InvalidDataContractVersionError{},
	&DataContractIndicesChangedError{},
	&DocumentAlreadyPresentError{},
	&DocumentNotFoundError{},
	&DocumentOwnerIDMismatchError{},
	&DocumentTimestampWindowViolationError{},
	&DuplicateUniqueIndexError{},
	&InvalidDocumentRevisionError{},
	&IdentityAlreadyExistsError{},
	&IdentityPublicKeyDisabledAtWindowViolationError{},
	&IdentityPublicKeyIsReadOnlyError{},
	&InvalidIdentityPublicKeyIDError{},
	&InvalidIdentityRevisionError{},
	&StateMaxIdentityPublicKeyLimitReachedError{},
	&IdentityAssetLockTransactionOutPointAlreadyExistsError{},
	&InvalidAssetLockProofCoreChainHeightError{},
	&IdentityAssetLockTransactionIsNotFoundError{},
	&InvalidInstantAssetLockProofSignatureError{},
	&IdentityPublicKeyIsDisabledError{},
	&DataContractOwnerIDMismatchError{},
}

func TestCodesAreUnique(t *testing.T) {
	seen := map[Code]Error{}
	for _, err := range allErrors {
		prev, ok := seen[err.Code()]
		require.Falsef(t, ok, "%T and %T share code %d", prev, err, err.Code())
		seen[err.Code()] = err

		require.NotContains(t, err.Code().String(), "Code(", "%T has no name", err)
		require.NotEmpty(t, err.Error())
	}
}

func TestCodeRanges(t *testing.T) {
	require.True(t, (&JsonSchemaError{}).Code().IsBasic())
	require.True(t, (&MissingPublicKeyError{}).Code().IsSignature())
	require.True(t, (&BalanceIsNotEnoughError{}).Code().IsFee())
	require.True(t, (&DocumentNotFoundError{}).Code().IsState())
	require.Equal(t, Code(2000), CodeIdentityNotFound)
	require.Equal(t, Code(3000), CodeBalanceIsNotEnough)
}

func TestZeroValueMessages(t *testing.T) {
	require.Equal(t, "JSON schema violation", (&JsonSchemaError{}).Error())
	require.Equal(t, "/name: JSON schema violation", (&JsonSchemaError{Path: "/name"}).Error())
	require.Equal(t, "/name: too long", (&JsonSchemaError{Path: "/name", Message: "too long"}).Error())
}

func TestMarshalPayload(t *testing.T) {
	b, err := Marshal(&DataContractIndicesChangedError{DocumentType: "note"})
	require.NoError(t, err)

	var v map[string]any
	require.NoError(t, protocol.UnmarshalCBOR(b, &v))
	require.Equal(t, "note", v["documentType"])
}

func TestFromVerifyError(t *testing.T) {
	cases := []struct {
		Cause error
		Code  Code
	}{
		{&protocol.NotSignedError{}, CodeStateTransitionIsNotSigned},
		{&protocol.InvalidSignatureError{}, CodeInvalidStateTransitionSignature},
		{&protocol.PublicKeyMismatchError{KeyID: 1}, CodePublicKeyMismatch},
		{&protocol.PublicKeyDisabledError{KeyID: 1}, CodePublicKeyIsDisabled},
		{&protocol.WrongKeyPurposeError{}, CodeWrongPublicKeyPurpose},
		{&protocol.InvalidSecurityLevelError{}, CodeInvalidSignaturePublicKeySecurityLevel},
		{&protocol.SecurityLevelNotMetError{}, CodePublicKeySecurityLevelNotMet},
	}
	for _, c := range cases {
		err, ok := FromVerifyError(c.Cause)
		require.True(t, ok)
		require.Equal(t, c.Code, err.Code())
	}

	_, ok := FromVerifyError(protocol.ErrAssetLockOutputNotFound)
	require.False(t, ok)
}

func TestFromDecodeError(t *testing.T) {
	_, err := protocol.UnmarshalStateTransition([]byte{1})
	cerr, ok := FromDecodeError(err)
	require.True(t, ok)
	require.Equal(t, CodeProtocolVersionParsing, cerr.Code())

	_, err = protocol.UnmarshalStateTransition(make([]byte, protocol.MaxStateTransitionSize+1))
	cerr, ok = FromDecodeError(err)
	require.True(t, ok)
	require.Equal(t, CodeStateTransitionMaxSizeExceeded, cerr.Code())
}
