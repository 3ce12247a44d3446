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

type IdentityNotFoundError struct {
	IdentityID protocol.Identifier `cbor:"identityId"`
}

func (e *IdentityNotFoundError) Code() Code    { return CodeIdentityNotFound }
func (e *IdentityNotFoundError) Error() string { return fmt.Sprintf("identity %v not found", e.IdentityID) }

type InvalidIdentityPublicKeyTypeError struct {
	PublicKeyType protocol.KeyType `cbor:"publicKeyType"`
}

func (e *InvalidIdentityPublicKeyTypeError) Code() Code { return CodeInvalidIdentityPublicKeyType }
func (e *InvalidIdentityPublicKeyTypeError) Error() string {
	return fmt.Sprintf("invalid identity public key type %v", e.PublicKeyType)
}

type InvalidStateTransitionSignatureError struct{}

func (e *InvalidStateTransitionSignatureError) Code() Code { return CodeInvalidStateTransitionSignature }
func (e *InvalidStateTransitionSignatureError) Error() string {
	return "invalid state transition signature"
}

type MissingPublicKeyError struct {
	PublicKeyID uint32 `cbor:"publicKeyId"`
}

func (e *MissingPublicKeyError) Code() Code { return CodeMissingPublicKey }
func (e *MissingPublicKeyError) Error() string {
	return fmt.Sprintf("public key %d doesn't exist", e.PublicKeyID)
}

type InvalidSignaturePublicKeySecurityLevelError struct {
	PublicKeySecurityLevel   protocol.SecurityLevel `cbor:"publicKeySecurityLevel"`
	RequiredKeySecurityLevel protocol.SecurityLevel `cbor:"requiredKeySecurityLevel"`
}

func (e *InvalidSignaturePublicKeySecurityLevelError) Code() Code {
	return CodeInvalidSignaturePublicKeySecurityLevel
}
func (e *InvalidSignaturePublicKeySecurityLevelError) Error() string {
	return fmt.Sprintf("a %v key can't sign a transition requiring %v", e.PublicKeySecurityLevel, e.RequiredKeySecurityLevel)
}

type WrongPublicKeyPurposeError struct {
	PublicKeyPurpose protocol.KeyPurpose `cbor:"publicKeyPurpose"`
	KeyPurpose       protocol.KeyPurpose `cbor:"keyPurposeRequirement"`
}

func (e *WrongPublicKeyPurposeError) Code() Code { return CodeWrongPublicKeyPurpose }
func (e *WrongPublicKeyPurposeError) Error() string {
	return fmt.Sprintf("invalid public key purpose %v, expected %v", e.PublicKeyPurpose, e.KeyPurpose)
}

type PublicKeyIsDisabledError struct {
	PublicKeyID uint32 `cbor:"publicKeyId"`
}

func (e *PublicKeyIsDisabledError) Code() Code { return CodePublicKeyIsDisabled }
func (e *PublicKeyIsDisabledError) Error() string {
	return fmt.Sprintf("public key %d is disabled", e.PublicKeyID)
}

type PublicKeySecurityLevelNotMetError struct {
	PublicKeySecurityLevel protocol.SecurityLevel `cbor:"publicKeySecurityLevel"`
	RequiredSecurityLevel  protocol.SecurityLevel `cbor:"requiredSecurityLevel"`
}

func (e *PublicKeySecurityLevelNotMetError) Code() Code { return CodePublicKeySecurityLevelNotMet }
func (e *PublicKeySecurityLevelNotMetError) Error() string {
	return fmt.Sprintf("public key security level %v doesn't meet the required %v", e.PublicKeySecurityLevel, e.RequiredSecurityLevel)
}

type StateTransitionIsNotSignedError struct{}

func (e *StateTransitionIsNotSignedError) Code() Code    { return CodeStateTransitionIsNotSigned }
func (e *StateTransitionIsNotSignedError) Error() string { return "state transition is not signed" }

type PublicKeyMismatchError struct {
	PublicKeyID uint32 `cbor:"publicKeyId"`
}

func (e *PublicKeyMismatchError) Code() Code { return CodePublicKeyMismatch }
func (e *PublicKeyMismatchError) Error() string {
	return fmt.Sprintf("public key %d doesn't match the signature key", e.PublicKeyID)
}

// FromVerifyError maps a signature verification failure to a consensus
// error. It returns false for failures that are not rule violations.
func FromVerifyError(err error) (Error, bool) {
	switch err := err.(type) {
	case *protocol.NotSignedError:
		return &StateTransitionIsNotSignedError{}, true
	case *protocol.InvalidSignatureError:
		return &InvalidStateTransitionSignatureError{}, true
	case *protocol.PublicKeyMismatchError:
		return &PublicKeyMismatchError{PublicKeyID: err.KeyID}, true
	case *protocol.PublicKeyDisabledError:
		return &PublicKeyIsDisabledError{PublicKeyID: err.KeyID}, true
	case *protocol.WrongKeyPurposeError:
		return &WrongPublicKeyPurposeError{PublicKeyPurpose: err.Purpose, KeyPurpose: err.Required}, true
	case *protocol.InvalidSecurityLevelError:
		return &InvalidSignaturePublicKeySecurityLevelError{PublicKeySecurityLevel: err.Level, RequiredKeySecurityLevel: err.Required}, true
	case *protocol.SecurityLevelNotMetError:
		return &PublicKeySecurityLevelNotMetError{PublicKeySecurityLevel: err.Level, RequiredSecurityLevel: err.Required}, true
	case *protocol.UnsupportedKeyTypeError:
		return &InvalidIdentityPublicKeyTypeError{PublicKeyType: err.Type}, true
	}
	return nil, false
}
