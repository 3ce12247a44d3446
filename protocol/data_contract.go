// Copyright 2024 The Accumulate Authors
//
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file or at
// https://opensource.org/licenses/MIT.

package protocol

import (
	"fmt"
	"sort"

	"gitlab.com/accumulatenetwork/platform/pkg/errors"
)

// DocumentSchema is the JSON-schema-like definition of a document type.
type DocumentSchema = map[string]any

// DataContract defines the document types an identity may create.
type DataContract struct {
	ProtocolVersion uint32                    `cbor:"protocolVersion"`
	ID              Identifier                `cbor:"$id"`
	Schema          string                    `cbor:"$schema"`
	OwnerID         Identifier                `cbor:"ownerId"`
	Version         uint32                    `cbor:"version" validate:"gte=1"`
	Documents       map[string]DocumentSchema `cbor:"documents" validate:"required,min=1"`
	Defs            map[string]any            `cbor:"$defs,omitempty"`
}

// DataContractMetaSchema is the meta-schema URI data contracts declare.
const DataContractMetaSchema = "https://schema.dash.org/dpp-0-4-0/meta/data-contract"

// GenerateDataContractID derives a contract ID from its owner and entropy.
func GenerateDataContractID(ownerID Identifier, entropy []byte) Identifier {
	return Identifier(DoubleSHA256(ownerID[:], entropy))
}

func (c *DataContract) Copy() *DataContract {
	return deepCopy(c)
}

// DocumentTypes returns the document type names in sorted order.
func (c *DataContract) DocumentTypes() []string {
	types := make([]string, 0, len(c.Documents))
	for t := range c.Documents {
		types = append(types, t)
	}
	sort.Strings(types)
	return types
}

func (c *DataContract) IsDocumentTypeDefined(typ string) bool {
	_, ok := c.Documents[typ]
	return ok
}

// RawIndices returns the indices declaration of a document type exactly as
// declared, or nil.
func (c *DataContract) RawIndices(typ string) any {
	schema, ok := c.Documents[typ]
	if !ok {
		return nil
	}
	return schema["indices"]
}

// Indices parses the indices of a document type.
func (c *DataContract) Indices(typ string) ([]*Index, error) {
	raw := c.RawIndices(typ)
	if raw == nil {
		return nil, nil
	}
	list, ok := raw.([]any)
	if !ok {
		return nil, errors.BadRequest.WithFormat("%s: indices must be a list", typ)
	}

	indices := make([]*Index, 0, len(list))
	for i, v := range list {
		m, ok := v.(map[string]any)
		if !ok {
			return nil, errors.BadRequest.WithFormat("%s: index %d must be an object", typ, i)
		}
		idx := new(Index)
		idx.Name, _ = m["name"].(string)
		idx.Unique, _ = m["unique"].(bool)
		props, ok := m["properties"].([]any)
		if !ok || len(props) == 0 {
			return nil, errors.BadRequest.WithFormat("%s: index %d has no properties", typ, i)
		}
		for _, p := range props {
			pm, ok := p.(map[string]any)
			if !ok || len(pm) != 1 {
				return nil, errors.BadRequest.WithFormat("%s: index %d has an invalid property", typ, i)
			}
			for name, order := range pm {
				o, _ := order.(string)
				idx.Properties = append(idx.Properties, IndexProperty{Name: name, Order: o})
			}
		}
		indices = append(indices, idx)
	}
	return indices, nil
}

// SecurityLevelRequirement returns the security level required to sign
// transitions of a document type. The default is HIGH.
func (c *DataContract) SecurityLevelRequirement(typ string) SecurityLevel {
	schema, ok := c.Documents[typ]
	if !ok {
		return SecurityLevelHigh
	}
	switch v := schema["signatureSecurityLevelRequirement"].(type) {
	case uint64:
		if v <= uint64(SecurityLevelMedium) {
			return SecurityLevel(v)
		}
	case int64:
		if v >= 0 && v <= int64(SecurityLevelMedium) {
			return SecurityLevel(v)
		}
	case float64:
		if v >= 0 && v <= float64(SecurityLevelMedium) {
			return SecurityLevel(v)
		}
	}
	return SecurityLevelHigh
}

// DocumentProperties returns the names of the properties a document type's
// schema declares.
func (c *DataContract) DocumentProperties(typ string) map[string]bool {
	props := map[string]bool{}
	schema, ok := c.Documents[typ]
	if !ok {
		return props
	}
	m, _ := schema["properties"].(map[string]any)
	for name := range m {
		props[name] = true
	}
	return props
}

func (c *DataContract) MarshalBinary() ([]byte, error) {
	type fields DataContract
	return MarshalCBOR((*fields)(c))
}

func (c *DataContract) UnmarshalBinary(b []byte) error {
	type fields DataContract
	return UnmarshalCBOR(b, (*fields)(c))
}

// Index is a document type index.
type Index struct {
	Name       string
	Properties []IndexProperty
	Unique     bool
}

// IndexProperty is a property of an index and its sort order.
type IndexProperty struct {
	Name  string
	Order string
}

func (i *Index) String() string {
	return fmt.Sprintf("%s%v", i.Name, i.Properties)
}

// PropertyNames returns the names of the index properties in order.
func (i *Index) PropertyNames() []string {
	names := make([]string, len(i.Properties))
	for j, p := range i.Properties {
		names[j] = p.Name
	}
	return names
}
