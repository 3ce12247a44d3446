// Copyright 2024 The Accumulate Authors
//
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file or at
// https://opensource.org/licenses/MIT.

package testing

import (
	"crypto/sha256"
	"fmt"

	"github.com/btcsuite/btcd/btcec"
	"gitlab.com/accumulatenetwork/platform/protocol"
)

// GenerateKey derives a deterministic secp256k1 key from the seed.
func GenerateKey(seed ...any) *btcec.PrivateKey {
	h := sha256.New()
	for _, v := range seed {
		_, _ = fmt.Fprint(h, v)
	}
	priv, _ := btcec.PrivKeyFromBytes(btcec.S256(), h.Sum(nil))
	return priv
}

// Key IDs of the keys of identities created by [NewIdentity].
const (
	MasterKeyID uint32 = 0
	HighKeyID   uint32 = 1
)

// Wallet holds the private keys of a test identity.
type Wallet struct {
	Keys map[uint32]*btcec.PrivateKey
}

// Sign signs st with the given key.
func (w *Wallet) Sign(st protocol.StateTransition, keyID uint32) {
	key, ok := w.Keys[keyID]
	if !ok {
		panic(fmt.Errorf("no key %d", keyID))
	}
	err := protocol.Sign(st, key)
	if err != nil {
		panic(err)
	}
}

// AddKey adds a key to the wallet and returns its public half.
func (w *Wallet) AddKey(id uint32, level protocol.SecurityLevel, seed ...any) *protocol.IdentityPublicKey {
	priv := GenerateKey(seed...)
	w.Keys[id] = priv
	return &protocol.IdentityPublicKey{
		ID:            id,
		Type:          protocol.KeyTypeECDSASecp256k1,
		Purpose:       protocol.KeyPurposeAuthentication,
		SecurityLevel: level,
		Data:          priv.PubKey().SerializeCompressed(),
	}
}

// NewIdentity returns an identity with a master and a high authentication
// key, and the wallet holding them.
func NewIdentity(name string, balance uint64) (*protocol.Identity, *Wallet) {
	w := &Wallet{Keys: map[uint32]*btcec.PrivateKey{}}
	identity := &protocol.Identity{
		ProtocolVersion: protocol.LatestVersion,
		ID:              sha256.Sum256([]byte(name)),
		Balance:         balance,
		PublicKeys: []*protocol.IdentityPublicKey{
			w.AddKey(MasterKeyID, protocol.SecurityLevelMaster, name, "master"),
			w.AddKey(HighKeyID, protocol.SecurityLevelHigh, name, "high"),
		},
	}
	return identity, w
}
