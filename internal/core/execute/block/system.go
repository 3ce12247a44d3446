// Copyright 2024 The Accumulate Authors
//
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file or at
// https://opensource.org/licenses/MIT.

package block

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"

	"gitlab.com/accumulatenetwork/platform/protocol"
)

// Names of the system data contracts.
const (
	FeatureFlagsContractName = "featureFlags"
	DPNSContractName         = "dpns"
)

// FeatureFlagFixCumulativeFees is the feature flag document type that
// enables the cumulative fees fix.
const FeatureFlagFixCumulativeFees = "fixCumulativeFeesBug"

// The top-level domain and its preorder.
const (
	TopLevelDomain = "dash"

	dashDomainDocumentID   = "FXyN2NZAdRFADgBQfb1XM1Qq7pWoEcgSWj1GaiQJqcrS"
	dashPreorderDocumentID = "i8QZtAJ1WshunyZg64wGYcm3jASrpeSKAbAYVHTxvsL"
	dashPreorderSalt       = "e0b508c5a36825a206693a1f414aa13edbecf43c41e3c799ea9e737b4f9aa226"

	fixCumulativeFeesDocumentID = "73qjFBuY4Zb8DqUpj6RYgG9rYDARNPFnEnyt8u4bxPcw"
)

// SystemOwnerID returns the ID of the identity that owns a system
// contract.
func SystemOwnerID(name string) protocol.Identifier {
	return protocol.Identifier(protocol.DoubleSHA256([]byte("system"), []byte(name)))
}

// SystemContractID returns the ID of a system contract.
func SystemContractID(name string) protocol.Identifier {
	e := sha256.Sum256([]byte(name))
	return protocol.GenerateDataContractID(SystemOwnerID(name), e[:])
}

func mustParseID(s string) protocol.Identifier {
	id, err := protocol.ParseIdentifier(s)
	if err != nil {
		panic(fmt.Errorf("invalid system identifier %s: %w", s, err))
	}
	return id
}

func mustDecodeHex(s string) []byte {
	b, err := hex.DecodeString(s)
	if err != nil {
		panic(fmt.Errorf("invalid system constant %s: %w", s, err))
	}
	return b
}

// systemOwner returns the owner identity of a system contract. The key is
// the only key and it is a master key.
func systemOwner(name string, publicKey []byte) *protocol.Identity {
	return &protocol.Identity{
		ProtocolVersion: protocol.LatestVersion,
		ID:              SystemOwnerID(name),
		PublicKeys: []*protocol.IdentityPublicKey{{
			ID:            0,
			Type:          protocol.KeyTypeECDSASecp256k1,
			Purpose:       protocol.KeyPurposeAuthentication,
			SecurityLevel: protocol.SecurityLevelMaster,
			Data:          publicKey,
		}},
	}
}

func byteArray(size uint64) map[string]any {
	return map[string]any{
		"type":      "array",
		"byteArray": true,
		"minItems":  size,
		"maxItems":  size,
	}
}

func systemContract(name string, documents map[string]protocol.DocumentSchema) *protocol.DataContract {
	return &protocol.DataContract{
		ProtocolVersion: protocol.LatestVersion,
		ID:              SystemContractID(name),
		Schema:          protocol.DataContractMetaSchema,
		OwnerID:         SystemOwnerID(name),
		Version:         1,
		Documents:       documents,
	}
}

func featureFlagsContract() *protocol.DataContract {
	return systemContract(FeatureFlagsContractName, map[string]protocol.DocumentSchema{
		FeatureFlagFixCumulativeFees: {
			"type": "object",
			"properties": map[string]any{
				"enabled":        map[string]any{"type": "boolean"},
				"enableAtHeight": map[string]any{"type": "integer", "minimum": uint64(1)},
			},
			"required":             []any{"enabled", "enableAtHeight"},
			"additionalProperties": false,
			"indices": []any{
				map[string]any{
					"name":       "byEnableAtHeight",
					"properties": []any{map[string]any{"enableAtHeight": "asc"}},
				},
			},
		},
	})
}

func dpnsContract() *protocol.DataContract {
	return systemContract(DPNSContractName, map[string]protocol.DocumentSchema{
		"domain": {
			"type": "object",
			"properties": map[string]any{
				"label": map[string]any{
					"type":      "string",
					"pattern":   "^[a-zA-Z0-9][a-zA-Z0-9-]{0,61}[a-zA-Z0-9]$",
					"minLength": uint64(3),
					"maxLength": uint64(63),
				},
				"normalizedLabel": map[string]any{
					"type":      "string",
					"pattern":   "^[a-z0-9][a-z0-9-]{0,61}[a-z0-9]$",
					"maxLength": uint64(63),
				},
				"normalizedParentDomainName": map[string]any{
					"type":      "string",
					"minLength": uint64(0),
					"maxLength": uint64(190),
				},
				"preorderSalt": byteArray(32),
				"records": map[string]any{
					"type": "object",
					"properties": map[string]any{
						"dashUniqueIdentityId": byteArray(32),
						"dashAliasIdentityId":  byteArray(32),
					},
					"minProperties":        uint64(1),
					"maxProperties":        uint64(1),
					"additionalProperties": false,
				},
				"subdomainRules": map[string]any{
					"type": "object",
					"properties": map[string]any{
						"allowSubdomains": map[string]any{"type": "boolean"},
					},
					"required":             []any{"allowSubdomains"},
					"additionalProperties": false,
				},
			},
			"required":             []any{"label", "normalizedLabel", "normalizedParentDomainName", "preorderSalt", "records", "subdomainRules"},
			"additionalProperties": false,
			"indices": []any{
				map[string]any{
					"name":   "parentNameAndLabel",
					"unique": true,
					"properties": []any{
						map[string]any{"normalizedParentDomainName": "asc"},
						map[string]any{"normalizedLabel": "asc"},
					},
				},
			},
		},
		"preorder": {
			"type": "object",
			"properties": map[string]any{
				"saltedDomainHash": byteArray(32),
			},
			"required":             []any{"saltedDomainHash"},
			"additionalProperties": false,
			"indices": []any{
				map[string]any{
					"name":       "saltedHash",
					"unique":     true,
					"properties": []any{map[string]any{"saltedDomainHash": "asc"}},
				},
			},
		},
	})
}

func systemDocument(contract *protocol.DataContract, typ, id string, createdAt uint64, data map[string]any) *protocol.Document {
	return &protocol.Document{
		ProtocolVersion: protocol.LatestVersion,
		ID:              mustParseID(id),
		Type:            typ,
		DataContractID:  contract.ID,
		OwnerID:         contract.OwnerID,
		Revision:        protocol.InitialRevision,
		CreatedAt:       &createdAt,
		UpdatedAt:       &createdAt,
		Data:            data,
	}
}

func featureFlagDocuments(contract *protocol.DataContract, createdAt uint64) []*protocol.Document {
	return []*protocol.Document{
		systemDocument(contract, FeatureFlagFixCumulativeFees, fixCumulativeFeesDocumentID, createdAt, map[string]any{
			"enabled":        true,
			"enableAtHeight": uint64(1),
		}),
	}
}

// dpnsDocuments returns the preorder and the registration of the top-level
// domain.
func dpnsDocuments(contract *protocol.DataContract, createdAt uint64) []*protocol.Document {
	salt := mustDecodeHex(dashPreorderSalt)
	fullName := protocol.DoubleSHA256(salt, []byte(TopLevelDomain))
	owner := contract.OwnerID

	return []*protocol.Document{
		systemDocument(contract, "preorder", dashPreorderDocumentID, createdAt, map[string]any{
			"saltedDomainHash": fullName[:],
		}),
		systemDocument(contract, "domain", dashDomainDocumentID, createdAt, map[string]any{
			"label":                      TopLevelDomain,
			"normalizedLabel":            TopLevelDomain,
			"normalizedParentDomainName": "",
			"preorderSalt":               salt,
			"records": map[string]any{
				"dashAliasIdentityId": owner[:],
			},
			"subdomainRules": map[string]any{
				"allowSubdomains": true,
			},
		}),
	}
}
