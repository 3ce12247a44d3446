// Copyright 2024 The Accumulate Authors
//
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file or at
// https://opensource.org/licenses/MIT.

package chain

import (
	"bytes"
	"fmt"
	"reflect"
	"strings"

	"github.com/btcsuite/btcd/btcec"
	"github.com/go-playground/validator/v10"
	"gitlab.com/accumulatenetwork/platform/protocol"
	"gitlab.com/accumulatenetwork/platform/protocol/consensus"
)

var structValidator = newStructValidator()

func newStructValidator() *validator.Validate {
	v := validator.New()

	// Report fields by their wire names
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("cbor"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// validateStruct checks the validate tags of v.
func validateStruct(v any) []consensus.Error {
	err := structValidator.Struct(v)
	if err == nil {
		return nil
	}

	fieldErrs, ok := err.(validator.ValidationErrors)
	if !ok {
		return []consensus.Error{&consensus.JsonSchemaError{Message: err.Error()}}
	}

	errs := make([]consensus.Error, 0, len(fieldErrs))
	for _, fe := range fieldErrs {
		// Drop the root type
		_, path, _ := strings.Cut(fe.Namespace(), ".")
		errs = append(errs, &consensus.JsonSchemaError{
			Message: fmt.Sprintf("failed %s=%s", fe.Tag(), fe.Param()),
			Keyword: fe.Tag(),
			Path:    "/" + strings.ReplaceAll(path, ".", "/"),
		})
	}
	return errs
}

// allowedSecurityLevels lists the levels a key of each purpose may have.
var allowedSecurityLevels = map[protocol.KeyPurpose][]protocol.SecurityLevel{
	protocol.KeyPurposeAuthentication: {
		protocol.SecurityLevelMaster,
		protocol.SecurityLevelCritical,
		protocol.SecurityLevelHigh,
		protocol.SecurityLevelMedium,
	},
	protocol.KeyPurposeEncryption: {protocol.SecurityLevelMedium},
	protocol.KeyPurposeDecryption: {protocol.SecurityLevelMedium},
}

func securityLevelAllowed(purpose protocol.KeyPurpose, level protocol.SecurityLevel) bool {
	for _, l := range allowedSecurityLevels[purpose] {
		if l == level {
			return true
		}
	}
	return false
}

// validatePublicKeys checks a key set: ids and data are unique, the data
// is valid for the key type and the security level is allowed for the
// purpose. Keys being added must not be disabled.
func validatePublicKeys(keys []*protocol.IdentityPublicKey, adding bool) []consensus.Error {
	var errs []consensus.Error

	var dupIDs, dupData []uint32
	ids := map[uint32]bool{}
	data := map[string]bool{}
	for _, k := range keys {
		if ids[k.ID] {
			dupIDs = append(dupIDs, k.ID)
		}
		ids[k.ID] = true
		if data[string(k.Data)] {
			dupData = append(dupData, k.ID)
		}
		data[string(k.Data)] = true
	}
	if len(dupIDs) > 0 {
		errs = append(errs, &consensus.DuplicatedIdentityPublicKeyIDError{DuplicatedIDs: dupIDs})
	}
	if len(dupData) > 0 {
		errs = append(errs, &consensus.DuplicatedIdentityPublicKeyError{DuplicatedIDs: dupData})
	}

	for _, k := range keys {
		if msg := checkKeyData(k); msg != "" {
			errs = append(errs, &consensus.InvalidIdentityPublicKeyDataError{PublicKeyID: k.ID, Validation: msg})
		}
		if !securityLevelAllowed(k.Purpose, k.SecurityLevel) {
			errs = append(errs, &consensus.InvalidIdentityPublicKeySecurityLevelError{
				PublicKeyID:   k.ID,
				Purpose:       k.Purpose,
				SecurityLevel: k.SecurityLevel,
			})
		}
		if adding && k.DisabledAt != nil {
			errs = append(errs, &consensus.IdentityPublicKeyDisabledAtNotAllowedError{PublicKeyID: k.ID})
		}
	}
	return errs
}

func checkKeyData(k *protocol.IdentityPublicKey) string {
	want := k.Type.DataLength()
	if want == 0 {
		return fmt.Sprintf("unknown key type %v", k.Type)
	}
	if len(k.Data) != want {
		return fmt.Sprintf("%v key must be %d bytes, got %d", k.Type, want, len(k.Data))
	}
	if k.Type == protocol.KeyTypeECDSASecp256k1 {
		_, err := btcec.ParsePubKey(k.Data, btcec.S256())
		if err != nil {
			return err.Error()
		}
	}
	return ""
}

// requireMasterKey checks that an enabled master authentication key is
// present.
func requireMasterKey(keys []*protocol.IdentityPublicKey) consensus.Error {
	for _, k := range keys {
		if k.Purpose == protocol.KeyPurposeAuthentication &&
			k.SecurityLevel == protocol.SecurityLevelMaster &&
			!k.IsDisabled() {
			return nil
		}
	}
	return &consensus.MissingMasterPublicKeyError{}
}

// sameCBOR reports whether a and b have the same canonical encoding.
func sameCBOR(a, b any) (bool, error) {
	x, err := protocol.MarshalCBOR(a)
	if err != nil {
		return false, err
	}
	y, err := protocol.MarshalCBOR(b)
	if err != nil {
		return false, err
	}
	return bytes.Equal(x, y), nil
}
