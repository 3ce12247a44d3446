// Copyright 2024 The Accumulate Authors
//
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file or at
// https://opensource.org/licenses/MIT.

package database

import (
	"encoding/binary"
	"math"

	"gitlab.com/accumulatenetwork/platform/pkg/errors"
	"gitlab.com/accumulatenetwork/platform/protocol"
)

// Index value tags. Values of different kinds sort by tag.
const (
	tagNull   = 0x00
	tagBool   = 0x01
	tagNumber = 0x02
	tagString = 0x03
	tagBytes  = 0x04
)

// appendIndexValue appends the order-preserving encoding of v. Encodings
// are self-delimiting so that concatenated values sort field by field.
func appendIndexValue(b []byte, v any) ([]byte, error) {
	switch v := v.(type) {
	case nil:
		return append(b, tagNull), nil
	case bool:
		if v {
			return append(b, tagBool, 1), nil
		}
		return append(b, tagBool, 0), nil
	case string:
		return appendEscaped(append(b, tagString), []byte(v)), nil
	case []byte:
		return appendEscaped(append(b, tagBytes), v), nil
	case protocol.Identifier:
		return appendEscaped(append(b, tagBytes), v[:]), nil
	}

	f, ok := toFloat(v)
	if !ok {
		return nil, errors.BadRequest.WithFormat("%T cannot be indexed", v)
	}
	bits := math.Float64bits(f)
	if f < 0 {
		bits = ^bits
	} else {
		bits |= 1 << 63
	}
	b = append(b, tagNumber)
	return binary.BigEndian.AppendUint64(b, bits), nil
}

func toFloat(v any) (float64, bool) {
	switch v := v.(type) {
	case uint64:
		return float64(v), true
	case int64:
		return float64(v), true
	case float64:
		return v, !math.IsNaN(v)
	case float32:
		return float64(v), !math.IsNaN(float64(v))
	case int:
		return float64(v), true
	case uint32:
		return float64(v), true
	case int32:
		return float64(v), true
	}
	return 0, false
}

// appendEscaped escapes zero bytes as 00 FF and terminates with 00 01, so
// a value sorts before every value it is a proper prefix of.
func appendEscaped(b, v []byte) []byte {
	for _, c := range v {
		if c == 0 {
			b = append(b, 0, 0xFF)
		} else {
			b = append(b, c)
		}
	}
	return append(b, 0, 1)
}

func encodeIndexValue(v any) ([]byte, error) {
	return appendIndexValue(nil, v)
}

// indexEntryKey is the key of a document in an index tree: the encoded
// values of the index properties followed by the document ID. Missing
// properties encode as null.
func indexEntryKey(idx *protocol.Index, doc *protocol.Document) ([]byte, error) {
	var b []byte
	for _, p := range idx.Properties {
		v, _ := doc.Get(p.Name)
		var err error
		b, err = appendIndexValue(b, v)
		if err != nil {
			return nil, errors.BadRequest.WithFormat("index %s property %s: %w", idx.Name, p.Name, err)
		}
	}
	return append(b, doc.ID[:]...), nil
}
