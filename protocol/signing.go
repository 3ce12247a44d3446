// Copyright 2024 The Accumulate Authors
//
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file or at
// https://opensource.org/licenses/MIT.

package protocol

import (
	"bytes"
	"fmt"

	"github.com/btcsuite/btcd/btcec"
	"github.com/btcsuite/btcutil"
)

// Signature verification failures. The executor maps each to a consensus
// error. Anything else returned by a verification function is unexpected.
type (
	NotSignedError struct{}

	InvalidSignatureError struct{}

	PublicKeyMismatchError struct {
		KeyID    uint32
		Expected uint32
	}

	PublicKeyDisabledError struct {
		KeyID uint32
	}

	WrongKeyPurposeError struct {
		Purpose  KeyPurpose
		Required KeyPurpose
	}

	InvalidSecurityLevelError struct {
		Level    SecurityLevel
		Required SecurityLevel
	}

	SecurityLevelNotMetError struct {
		Level    SecurityLevel
		Required SecurityLevel
	}

	UnsupportedKeyTypeError struct {
		Type KeyType
	}
)

func (*NotSignedError) Error() string        { return "state transition is not signed" }
func (*InvalidSignatureError) Error() string { return "invalid state transition signature" }

func (e *PublicKeyMismatchError) Error() string {
	return fmt.Sprintf("public key %d does not match signature key %d", e.KeyID, e.Expected)
}

func (e *PublicKeyDisabledError) Error() string {
	return fmt.Sprintf("public key %d is disabled", e.KeyID)
}

func (e *WrongKeyPurposeError) Error() string {
	return fmt.Sprintf("public key purpose %v is not %v", e.Purpose, e.Required)
}

func (e *InvalidSecurityLevelError) Error() string {
	return fmt.Sprintf("public key security level %v cannot sign transitions requiring %v", e.Level, e.Required)
}

func (e *SecurityLevelNotMetError) Error() string {
	return fmt.Sprintf("public key security level %v does not meet %v", e.Level, e.Required)
}

func (e *UnsupportedKeyTypeError) Error() string {
	return fmt.Sprintf("key type %v cannot verify signatures", e.Type)
}

// SignatureHash is the double SHA-256 of the signable encoding of st.
func SignatureHash(st StateTransition) ([]byte, error) {
	b, err := SignableBytes(st)
	if err != nil {
		return nil, err
	}
	h := DoubleSHA256(b)
	return h[:], nil
}

// Sign signs st with a secp256k1 key and sets its signature.
func Sign(st StateTransition, key *btcec.PrivateKey) error {
	hash, err := SignatureHash(st)
	if err != nil {
		return err
	}
	sig, err := btcec.SignCompact(btcec.S256(), key, hash, true)
	if err != nil {
		return err
	}
	st.SetSignature(sig)
	return nil
}

func recoverSigner(st StateTransition) (*btcec.PublicKey, error) {
	sig := st.SignatureBytes()
	if len(sig) == 0 {
		return nil, &NotSignedError{}
	}
	hash, err := SignatureHash(st)
	if err != nil {
		return nil, err
	}
	pub, _, err := btcec.RecoverCompact(btcec.S256(), sig, hash)
	if err != nil {
		return nil, &InvalidSignatureError{}
	}
	return pub, nil
}

// VerifyByPublicKeyHash verifies that st was signed by the key whose
// HASH160 is hash.
func VerifyByPublicKeyHash(st StateTransition, hash []byte) error {
	pub, err := recoverSigner(st)
	if err != nil {
		return err
	}
	if !bytes.Equal(btcutil.Hash160(pub.SerializeCompressed()), hash) {
		return &InvalidSignatureError{}
	}
	return nil
}

// VerifyByPublicKey checks that key may sign st at the required security
// level and that the signature matches it.
func VerifyByPublicKey(st IdentitySignedTransition, key *IdentityPublicKey, required SecurityLevel) error {
	if key.ID != st.SignatureKeyID() {
		return &PublicKeyMismatchError{KeyID: key.ID, Expected: st.SignatureKeyID()}
	}
	if key.IsDisabled() {
		return &PublicKeyDisabledError{KeyID: key.ID}
	}
	if key.Purpose != KeyPurposeAuthentication {
		return &WrongKeyPurposeError{Purpose: key.Purpose, Required: KeyPurposeAuthentication}
	}
	if key.SecurityLevel == SecurityLevelMaster && required != SecurityLevelMaster {
		return &InvalidSecurityLevelError{Level: key.SecurityLevel, Required: required}
	}
	if !key.SecurityLevel.Satisfies(required) {
		return &SecurityLevelNotMetError{Level: key.SecurityLevel, Required: required}
	}

	switch key.Type {
	case KeyTypeECDSASecp256k1:
		pub, err := recoverSigner(st)
		if err != nil {
			return err
		}
		if !bytes.Equal(pub.SerializeCompressed(), key.Data) {
			return &InvalidSignatureError{}
		}
		return nil

	case KeyTypeECDSAHash160:
		return VerifyByPublicKeyHash(st, key.Data)
	}
	return &UnsupportedKeyTypeError{Type: key.Type}
}
