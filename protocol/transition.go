// Copyright 2024 The Accumulate Authors
//
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file or at
// https://opensource.org/licenses/MIT.

package protocol

import "fmt"

// StateTransitionType identifies the kind of a state transition.
type StateTransitionType uint8

const (
	StateTransitionTypeDataContractCreate StateTransitionType = 0
	StateTransitionTypeDocumentsBatch     StateTransitionType = 1
	StateTransitionTypeIdentityCreate     StateTransitionType = 2
	StateTransitionTypeIdentityTopUp      StateTransitionType = 3
	StateTransitionTypeDataContractUpdate StateTransitionType = 4
	StateTransitionTypeIdentityUpdate     StateTransitionType = 5
)

func (t StateTransitionType) String() string {
	switch t {
	case StateTransitionTypeDataContractCreate:
		return "dataContractCreate"
	case StateTransitionTypeDocumentsBatch:
		return "documentsBatch"
	case StateTransitionTypeIdentityCreate:
		return "identityCreate"
	case StateTransitionTypeIdentityTopUp:
		return "identityTopUp"
	case StateTransitionTypeDataContractUpdate:
		return "dataContractUpdate"
	case StateTransitionTypeIdentityUpdate:
		return "identityUpdate"
	}
	return fmt.Sprintf("StateTransitionType(%d)", uint8(t))
}

// IsKnown reports whether t is a defined type.
func (t StateTransitionType) IsKnown() bool {
	return t <= StateTransitionTypeIdentityUpdate
}

// StateTransition is a signed request to change platform state.
type StateTransition interface {
	Type() StateTransitionType
	ProtocolVersion() uint32

	// OwnerID is the identity that pays for the transition.
	OwnerID() Identifier

	// ModifiedDataIDs lists the identifiers of the objects the transition
	// creates or changes.
	ModifiedDataIDs() []Identifier

	SignatureBytes() []byte
	SetSignature([]byte)

	ExecutionContext() *ExecutionContext
	SetExecutionContext(*ExecutionContext)
}

// IdentitySignedTransition is a transition signed by one of the owner's
// identity keys.
type IdentitySignedTransition interface {
	StateTransition
	SignatureKeyID() uint32
}

// AssetLockTransition is a transition funded by an asset lock.
type AssetLockTransition interface {
	StateTransition
	LockProof() *AssetLockProof
}

// transitionBase holds the execution context, which is never serialized.
type transitionBase struct {
	execCtx *ExecutionContext
}

func (b *transitionBase) ExecutionContext() *ExecutionContext {
	if b.execCtx == nil {
		b.execCtx = NewExecutionContext()
	}
	return b.execCtx
}

func (b *transitionBase) SetExecutionContext(c *ExecutionContext) { b.execCtx = c }

// NewStateTransition returns an empty transition of the given type.
func NewStateTransition(typ StateTransitionType) (StateTransition, bool) {
	switch typ {
	case StateTransitionTypeDataContractCreate:
		return new(DataContractCreateTransition), true
	case StateTransitionTypeDocumentsBatch:
		return new(DocumentsBatchTransition), true
	case StateTransitionTypeIdentityCreate:
		return new(IdentityCreateTransition), true
	case StateTransitionTypeIdentityTopUp:
		return new(IdentityTopUpTransition), true
	case StateTransitionTypeDataContractUpdate:
		return new(DataContractUpdateTransition), true
	case StateTransitionTypeIdentityUpdate:
		return new(IdentityUpdateTransition), true
	}
	return nil, false
}

// IdentityCreateTransition creates an identity funded by an asset lock. It is
// signed by the one-time key locked in the funding output.
type IdentityCreateTransition struct {
	transitionBase
	Version        uint32               `cbor:"protocolVersion"`
	AssetLockProof *AssetLockProof      `cbor:"assetLockProof" validate:"required"`
	PublicKeys     []*IdentityPublicKey `cbor:"publicKeys" validate:"required,min=1,max=10,dive,required"`
	Signature      []byte               `cbor:"signature,omitempty"`
}

// IdentityID derives the ID of the created identity from the asset lock.
func (t *IdentityCreateTransition) IdentityID() Identifier {
	if t.AssetLockProof == nil {
		return Identifier{}
	}
	id, err := t.AssetLockProof.CreateIdentifier()
	if err != nil {
		return Identifier{}
	}
	return id
}

func (t *IdentityCreateTransition) Type() StateTransitionType     { return StateTransitionTypeIdentityCreate }
func (t *IdentityCreateTransition) ProtocolVersion() uint32       { return t.Version }
func (t *IdentityCreateTransition) OwnerID() Identifier           { return t.IdentityID() }
func (t *IdentityCreateTransition) ModifiedDataIDs() []Identifier { return []Identifier{t.IdentityID()} }
func (t *IdentityCreateTransition) SignatureBytes() []byte        { return t.Signature }
func (t *IdentityCreateTransition) SetSignature(sig []byte)       { t.Signature = sig }
func (t *IdentityCreateTransition) LockProof() *AssetLockProof    { return t.AssetLockProof }

// IdentityTopUpTransition adds asset lock funds to an existing identity.
type IdentityTopUpTransition struct {
	transitionBase
	Version        uint32          `cbor:"protocolVersion"`
	AssetLockProof *AssetLockProof `cbor:"assetLockProof" validate:"required"`
	IdentityID     Identifier      `cbor:"identityId"`
	Signature      []byte          `cbor:"signature,omitempty"`
}

func (t *IdentityTopUpTransition) Type() StateTransitionType     { return StateTransitionTypeIdentityTopUp }
func (t *IdentityTopUpTransition) ProtocolVersion() uint32       { return t.Version }
func (t *IdentityTopUpTransition) OwnerID() Identifier           { return t.IdentityID }
func (t *IdentityTopUpTransition) ModifiedDataIDs() []Identifier { return []Identifier{t.IdentityID} }
func (t *IdentityTopUpTransition) SignatureBytes() []byte        { return t.Signature }
func (t *IdentityTopUpTransition) SetSignature(sig []byte)       { t.Signature = sig }
func (t *IdentityTopUpTransition) LockProof() *AssetLockProof    { return t.AssetLockProof }

// IdentityUpdateTransition adds and disables identity keys.
type IdentityUpdateTransition struct {
	transitionBase
	Version              uint32               `cbor:"protocolVersion"`
	IdentityID           Identifier           `cbor:"identityId"`
	Revision             uint64               `cbor:"revision"`
	AddPublicKeys        []*IdentityPublicKey `cbor:"addPublicKeys,omitempty" validate:"max=10,dive,required"`
	DisablePublicKeys    []uint32             `cbor:"disablePublicKeys,omitempty" validate:"max=10"`
	PublicKeysDisabledAt *uint64              `cbor:"publicKeysDisabledAt,omitempty"`
	SignaturePublicKeyID uint32               `cbor:"signaturePublicKeyId"`
	Signature            []byte               `cbor:"signature,omitempty"`
}

func (t *IdentityUpdateTransition) Type() StateTransitionType     { return StateTransitionTypeIdentityUpdate }
func (t *IdentityUpdateTransition) ProtocolVersion() uint32       { return t.Version }
func (t *IdentityUpdateTransition) OwnerID() Identifier           { return t.IdentityID }
func (t *IdentityUpdateTransition) ModifiedDataIDs() []Identifier { return []Identifier{t.IdentityID} }
func (t *IdentityUpdateTransition) SignatureBytes() []byte        { return t.Signature }
func (t *IdentityUpdateTransition) SetSignature(sig []byte)       { t.Signature = sig }
func (t *IdentityUpdateTransition) SignatureKeyID() uint32        { return t.SignaturePublicKeyID }

// DataContractCreateTransition registers a new data contract.
type DataContractCreateTransition struct {
	transitionBase
	Version              uint32        `cbor:"protocolVersion"`
	DataContract         *DataContract `cbor:"dataContract" validate:"required"`
	Entropy              []byte        `cbor:"entropy" validate:"len=32"`
	SignaturePublicKeyID uint32        `cbor:"signaturePublicKeyId"`
	Signature            []byte        `cbor:"signature,omitempty"`
}

func (t *DataContractCreateTransition) Type() StateTransitionType {
	return StateTransitionTypeDataContractCreate
}

func (t *DataContractCreateTransition) ProtocolVersion() uint32 { return t.Version }

func (t *DataContractCreateTransition) OwnerID() Identifier {
	if t.DataContract == nil {
		return Identifier{}
	}
	return t.DataContract.OwnerID
}

func (t *DataContractCreateTransition) ModifiedDataIDs() []Identifier {
	if t.DataContract == nil {
		return nil
	}
	return []Identifier{t.DataContract.ID}
}

func (t *DataContractCreateTransition) SignatureBytes() []byte  { return t.Signature }
func (t *DataContractCreateTransition) SetSignature(sig []byte) { t.Signature = sig }
func (t *DataContractCreateTransition) SignatureKeyID() uint32  { return t.SignaturePublicKeyID }

// DataContractUpdateTransition replaces a data contract with a new version.
type DataContractUpdateTransition struct {
	transitionBase
	Version              uint32        `cbor:"protocolVersion"`
	DataContract         *DataContract `cbor:"dataContract" validate:"required"`
	SignaturePublicKeyID uint32        `cbor:"signaturePublicKeyId"`
	Signature            []byte        `cbor:"signature,omitempty"`
}

func (t *DataContractUpdateTransition) Type() StateTransitionType {
	return StateTransitionTypeDataContractUpdate
}

func (t *DataContractUpdateTransition) ProtocolVersion() uint32 { return t.Version }

func (t *DataContractUpdateTransition) OwnerID() Identifier {
	if t.DataContract == nil {
		return Identifier{}
	}
	return t.DataContract.OwnerID
}

func (t *DataContractUpdateTransition) ModifiedDataIDs() []Identifier {
	if t.DataContract == nil {
		return nil
	}
	return []Identifier{t.DataContract.ID}
}

func (t *DataContractUpdateTransition) SignatureBytes() []byte  { return t.Signature }
func (t *DataContractUpdateTransition) SetSignature(sig []byte) { t.Signature = sig }
func (t *DataContractUpdateTransition) SignatureKeyID() uint32  { return t.SignaturePublicKeyID }

// DocumentAction is the action of a document transition.
type DocumentAction uint8

const (
	DocumentActionCreate  DocumentAction = 0
	DocumentActionReplace DocumentAction = 1
	DocumentActionDelete  DocumentAction = 3
)

func (a DocumentAction) String() string {
	switch a {
	case DocumentActionCreate:
		return "create"
	case DocumentActionReplace:
		return "replace"
	case DocumentActionDelete:
		return "delete"
	}
	return fmt.Sprintf("DocumentAction(%d)", uint8(a))
}

// IsKnown reports whether a is a defined action.
func (a DocumentAction) IsKnown() bool {
	return a == DocumentActionCreate || a == DocumentActionReplace || a == DocumentActionDelete
}

// DocumentTransition creates, replaces or deletes one document.
type DocumentTransition struct {
	Action         DocumentAction `cbor:"$action"`
	ID             Identifier     `cbor:"$id"`
	Type           string         `cbor:"$type"`
	DataContractID Identifier     `cbor:"$dataContractId"`
	Entropy        []byte         `cbor:"$entropy,omitempty"`
	Revision       uint64         `cbor:"$revision,omitempty"`
	CreatedAt      *uint64        `cbor:"$createdAt,omitempty"`
	UpdatedAt      *uint64        `cbor:"$updatedAt,omitempty"`
	Data           map[string]any `cbor:"data,omitempty"`
}

// DocumentsBatchTransition applies up to [MaxDocumentTransitions] document
// transitions owned by one identity.
type DocumentsBatchTransition struct {
	transitionBase
	Version              uint32                `cbor:"protocolVersion"`
	Owner                Identifier            `cbor:"ownerId"`
	Transitions          []*DocumentTransition `cbor:"transitions" validate:"required,min=1,max=10,dive,required"`
	SignaturePublicKeyID uint32                `cbor:"signaturePublicKeyId"`
	Signature            []byte                `cbor:"signature,omitempty"`
}

func (t *DocumentsBatchTransition) Type() StateTransitionType { return StateTransitionTypeDocumentsBatch }
func (t *DocumentsBatchTransition) ProtocolVersion() uint32   { return t.Version }
func (t *DocumentsBatchTransition) OwnerID() Identifier       { return t.Owner }

func (t *DocumentsBatchTransition) ModifiedDataIDs() []Identifier {
	ids := make([]Identifier, len(t.Transitions))
	for i, dt := range t.Transitions {
		ids[i] = dt.ID
	}
	return ids
}

func (t *DocumentsBatchTransition) SignatureBytes() []byte  { return t.Signature }
func (t *DocumentsBatchTransition) SetSignature(sig []byte) { t.Signature = sig }
func (t *DocumentsBatchTransition) SignatureKeyID() uint32  { return t.SignaturePublicKeyID }

// ContractIDs returns the distinct contracts referenced by the batch, in
// order of first appearance.
func (t *DocumentsBatchTransition) ContractIDs() []Identifier {
	seen := map[Identifier]bool{}
	var ids []Identifier
	for _, dt := range t.Transitions {
		if seen[dt.DataContractID] {
			continue
		}
		seen[dt.DataContractID] = true
		ids = append(ids, dt.DataContractID)
	}
	return ids
}
