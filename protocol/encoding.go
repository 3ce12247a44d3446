// Copyright 2024 The Accumulate Authors
//
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file or at
// https://opensource.org/licenses/MIT.

package protocol

import (
	"encoding/binary"
	"reflect"

	"github.com/fxamacker/cbor/v2"
	"gitlab.com/accumulatenetwork/platform/pkg/errors"
)

var (
	encMode cbor.EncMode
	decMode cbor.DecMode
)

func init() {
	var err error
	opts := cbor.CanonicalEncOptions()
	opts.Time = cbor.TimeRFC3339Nano
	encMode, err = opts.EncMode()
	if err != nil {
		panic(err)
	}

	decMode, err = cbor.DecOptions{
		DefaultMapType:  reflect.TypeOf(map[string]any(nil)),
		MaxNestedLevels: 64,
	}.DecMode()
	if err != nil {
		panic(err)
	}
}

// MarshalCBOR encodes v with canonical CBOR. Equal values always produce
// equal bytes.
func MarshalCBOR(v any) ([]byte, error) {
	b, err := encMode.Marshal(v)
	if err != nil {
		return nil, errors.EncodingError.Wrap(err)
	}
	return b, nil
}

// UnmarshalCBOR decodes CBOR into v. Maps without a concrete type decode as
// map[string]any.
func UnmarshalCBOR(b []byte, v any) error {
	err := decMode.Unmarshal(b, v)
	if err != nil {
		return errors.EncodingError.Wrap(err)
	}
	return nil
}

// encodeVersioned prefixes the canonical CBOR encoding of v with the
// protocol version as a little-endian uint32.
func encodeVersioned(version uint32, v any) ([]byte, error) {
	b, err := MarshalCBOR(v)
	if err != nil {
		return nil, err
	}
	out := make([]byte, 4, 4+len(b))
	binary.LittleEndian.PutUint32(out, version)
	return append(out, b...), nil
}

// decodeVersioned splits a versioned encoding into its version and body.
func decodeVersioned(b []byte) (uint32, []byte, error) {
	if len(b) < 4 {
		return 0, nil, &ProtocolVersionParsingError{Size: len(b)}
	}
	return binary.LittleEndian.Uint32(b), b[4:], nil
}

// deepCopy copies a CBOR-encodable value through its encoding.
func deepCopy[T any](v T) T {
	var u T
	b, err := encMode.Marshal(v)
	if err != nil {
		panic(err)
	}
	err = decMode.Unmarshal(b, &u)
	if err != nil {
		panic(err)
	}
	return u
}
