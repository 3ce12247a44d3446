// Copyright 2024 The Accumulate Authors
//
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file or at
// https://opensource.org/licenses/MIT.

// Package corerpc talks to the Core chain node.
package corerpc

import (
	"context"
)

// Client is the subset of the Core RPC interface the platform uses.
type Client interface {
	// GetRawTransaction returns a transaction by ID. A transaction Core does
	// not know about returns errors.NotFound.
	GetRawTransaction(ctx context.Context, txid string) (*Transaction, error)

	// VerifyInstantLock checks an instant lock signature against the quorum
	// that was active at or below maxHeight.
	VerifyInstantLock(ctx context.Context, requestID, txid, signature string, maxHeight uint32) (bool, error)

	// GetBestChainLock returns the most recent chain lock.
	GetBestChainLock(ctx context.Context) (*ChainLock, error)

	// GetMasternodeListDiff returns the masternode list changes between two
	// blocks.
	GetMasternodeListDiff(ctx context.Context, baseHeight, height uint32) (*MasternodeListDiff, error)
}

// Transaction is a verbose getrawtransaction result.
type Transaction struct {
	TxID        string `json:"txid"`
	Hex         string `json:"hex"`
	Height      int64  `json:"height"`
	ChainLock   bool   `json:"chainlock"`
	InstantLock bool   `json:"instantlock"`
}

// ChainLock is a getbestchainlock result.
type ChainLock struct {
	BlockHash string `json:"blockhash"`
	Height    uint32 `json:"height"`
	Signature string `json:"signature"`
}

// MasternodeListDiff is a protx diff result.
type MasternodeListDiff struct {
	BaseBlockHash string             `json:"baseBlockHash"`
	BlockHash     string             `json:"blockHash"`
	DeletedMNs    []string           `json:"deletedMNs"`
	MNList        []MasternodeEntry  `json:"mnList"`
}

// MasternodeEntry is an entry of the simplified masternode list.
type MasternodeEntry struct {
	ProRegTxHash   string `json:"proRegTxHash"`
	ConfirmedHash  string `json:"confirmedHash"`
	Service        string `json:"service"`
	PubKeyOperator string `json:"pubKeyOperator"`
	VotingAddress  string `json:"votingAddress"`
	IsValid        bool   `json:"isValid"`
}
