// Copyright 2024 The Accumulate Authors
//
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file or at
// https://opensource.org/licenses/MIT.

package storage

import (
	"bytes"
	"encoding/binary"
	"fmt"

	"gitlab.com/accumulatenetwork/platform/pkg/errors"
	"gitlab.com/accumulatenetwork/platform/protocol"
)

// Path locates a tree. Each segment is the key of a tree element within the
// previous tree.
type Path [][]byte

// P builds a path from strings and byte slices.
func P(segments ...any) Path {
	p := make(Path, len(segments))
	for i, s := range segments {
		switch s := s.(type) {
		case string:
			p[i] = []byte(s)
		case []byte:
			p[i] = s
		case protocol.Identifier:
			p[i] = s.Bytes()
		default:
			panic(fmt.Errorf("invalid path segment type %T", s))
		}
	}
	return p
}

// Append returns a new path with extra segments.
func (p Path) Append(segments ...[]byte) Path {
	q := make(Path, 0, len(p)+len(segments))
	q = append(q, p...)
	return append(q, segments...)
}

// Parent splits p into its parent and last segment.
func (p Path) Parent() (Path, []byte) {
	if len(p) == 0 {
		return nil, nil
	}
	return p[:len(p)-1], p[len(p)-1]
}

func (p Path) String() string {
	buf := new(bytes.Buffer)
	for _, s := range p {
		buf.WriteByte('/')
		if isPrintable(s) {
			buf.Write(s)
		} else {
			fmt.Fprintf(buf, "%x", s)
		}
	}
	if buf.Len() == 0 {
		return "/"
	}
	return buf.String()
}

func isPrintable(b []byte) bool {
	for _, c := range b {
		if c < 0x20 || c > 0x7e {
			return false
		}
	}
	return true
}

// Tree keys: each path segment is a 0x01 marker, a uvarint length and the
// segment; an element key is the encoded path, a 0x00 marker and the raw key.
// The direct elements of a tree are contiguous and sorted by key.
const (
	markerElement = 0x00
	markerSegment = 0x01
)

func encodePath(p Path) []byte {
	buf := new(bytes.Buffer)
	var n [binary.MaxVarintLen64]byte
	for _, s := range p {
		buf.WriteByte(markerSegment)
		buf.Write(n[:binary.PutUvarint(n[:], uint64(len(s)))])
		buf.Write(s)
	}
	return buf.Bytes()
}

func elementKey(p Path, key []byte) []byte {
	b := encodePath(p)
	b = append(b, markerElement)
	return append(b, key...)
}

func elementPrefix(p Path) []byte {
	return append(encodePath(p), markerElement)
}

// ElementKind is the kind of a stored element.
type ElementKind uint8

const (
	ElementItem      ElementKind = 0
	ElementReference ElementKind = 1
	ElementTree      ElementKind = 2
)

func (k ElementKind) String() string {
	switch k {
	case ElementItem:
		return "item"
	case ElementReference:
		return "reference"
	case ElementTree:
		return "tree"
	}
	return fmt.Sprintf("ElementKind(%d)", uint8(k))
}

type element struct {
	Kind  ElementKind `cbor:"kind"`
	Value []byte      `cbor:"value,omitempty"`
	Path  Path        `cbor:"path,omitempty"`
}

func (e *element) marshal() ([]byte, error) {
	return protocol.MarshalCBOR(e)
}

func unmarshalElement(b []byte) (*element, error) {
	e := new(element)
	err := protocol.UnmarshalCBOR(b, e)
	if err != nil {
		return nil, errors.InternalError.WithFormat("corrupt element: %w", err)
	}
	return e, nil
}
