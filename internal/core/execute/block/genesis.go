// Copyright 2024 The Accumulate Authors
//
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file or at
// https://opensource.org/licenses/MIT.

package block

import (
	"context"
	"time"

	"gitlab.com/accumulatenetwork/platform/internal/core/execute"
	"gitlab.com/accumulatenetwork/platform/internal/database"
	"gitlab.com/accumulatenetwork/platform/internal/logging"
	"gitlab.com/accumulatenetwork/platform/internal/storage"
	"gitlab.com/accumulatenetwork/platform/pkg/errors"
	"gitlab.com/accumulatenetwork/platform/protocol"
)

// GenesisOptions configures the initial state of the chain.
type GenesisOptions struct {
	InitialCoreChainLockedHeight uint32

	// FeatureFlagsOwnerPublicKey and DPNSOwnerPublicKey are the compressed
	// secp256k1 master keys of the system contract owners.
	FeatureFlagsOwnerPublicKey []byte
	DPNSOwnerPublicKey         []byte
}

type InitChainRequest struct {
	ChainID       string
	InitialHeight int64
	Time          time.Time
	AppVersion    uint64
}

type InitChainResponse struct {
	AppHash []byte
}

// InitChain creates the root trees and registers the system data
// contracts and their documents.
func (x *Executor) InitChain(ctx context.Context, req InitChainRequest) (*InitChainResponse, error) {
	meta, err := x.Metadata()
	if err != nil {
		return nil, errors.UnknownError.WithFormat("load metadata: %w", err)
	}
	if meta != nil {
		return nil, errors.NotAllowed.WithFormat("chain is already initialized at height %d", meta.Height)
	}

	version := req.AppVersion
	if version == 0 {
		version = x.LatestProtocolVersion
	}
	if version > x.LatestProtocolVersion {
		return nil, &NotSupportedNetworkProtocolVersionError{Version: version, Latest: x.LatestProtocolVersion}
	}

	for name, key := range map[string][]byte{
		FeatureFlagsContractName: x.Genesis.FeatureFlagsOwnerPublicKey,
		DPNSContractName:         x.Genesis.DPNSOwnerPublicKey,
	} {
		if len(key) != protocol.KeyTypeECDSASecp256k1.DataLength() {
			return nil, errors.BadRequest.WithFormat("%s owner public key must be %d bytes, got %d", name, protocol.KeyTypeECDSASecp256k1.DataLength(), len(key))
		}
	}

	initialCoreHeight := x.Genesis.InitialCoreChainLockedHeight
	consensusLogger := x.logger.With("height", req.InitialHeight)
	logger := consensusLogger.With("abciMethod", "initChain")
	logger.Info("Initializing chain", "chain-id", req.ChainID, "version", version, "core-chain-locked-height", initialCoreHeight)

	err = x.updater.Update(ctx, initialCoreHeight, logger)
	if err != nil {
		return nil, errors.UnknownError.WithFormat("update masternode list: %w", err)
	}

	x.block.Reset()
	x.block.SetHeader(&execute.Header{
		Height:                req.InitialHeight,
		Time:                  req.Time,
		CoreChainLockedHeight: initialCoreHeight,
		AppVersion:            version,
	})
	x.block.SetConsensusLogger(consensusLogger)
	defer x.block.Reset()

	err = x.store.StartTransaction()
	if err != nil {
		return nil, errors.FatalError.WithFormat("start genesis transaction: %w", err)
	}

	err = x.writeGenesis(ctx, req.Time)
	if err != nil {
		if e2 := x.store.AbortTransaction(); e2 != nil {
			logger.Error("Failed to abort genesis transaction", "error", e2)
		}
		return nil, err
	}

	err = x.store.CommitTransaction()
	if err != nil {
		return nil, errors.FatalError.WithFormat("commit genesis transaction: %w", err)
	}

	appHash := x.store.GetRootHash(false)
	err = x.Database.Metadata.Store(&database.Metadata{
		AppHash:                      appHash,
		AppVersion:                   version,
		InitialCoreChainLockedHeight: initialCoreHeight,
	}, storage.Options{})
	if err != nil {
		return nil, errors.FatalError.WithFormat("store metadata: %w", err)
	}
	x.initialCoreHeight = initialCoreHeight
	x.lastCoreHeight = initialCoreHeight

	logger.Info("Chain initialized", "app-hash", logging.AsUpperHex(appHash))
	return &InitChainResponse{AppHash: appHash}, nil
}

func (x *Executor) writeGenesis(ctx context.Context, genesisTime time.Time) error {
	_, err := x.Database.CreateRootTrees(storage.Options{UseTransaction: true})
	if err != nil {
		return errors.UnknownError.WithFormat("create root trees: %w", err)
	}

	createdAt := uint64(genesisTime.UnixMilli())
	flags := featureFlagsContract()
	dpns := dpnsContract()

	systems := []struct {
		name      string
		key       []byte
		contract  *protocol.DataContract
		documents []*protocol.Document
	}{
		{FeatureFlagsContractName, x.Genesis.FeatureFlagsOwnerPublicKey, flags, featureFlagDocuments(flags, createdAt)},
		{DPNSContractName, x.Genesis.DPNSOwnerPublicKey, dpns, dpnsDocuments(dpns, createdAt)},
	}

	for _, sys := range systems {
		owner := systemOwner(sys.name, sys.key)
		err = x.deliver.StoreIdentity(ctx, owner, nil)
		if err != nil {
			return errors.UnknownError.WithFormat("store %s owner: %w", sys.name, err)
		}

		var hashes [][]byte
		for _, k := range owner.PublicKeys {
			hashes = append(hashes, k.Hash())
			x.block.AddPublicKeyHash(k.Hash())
		}
		err = x.deliver.StoreIdentityPublicKeyHashes(ctx, owner.ID, hashes, nil)
		if err != nil {
			return errors.UnknownError.WithFormat("store %s owner key hashes: %w", sys.name, err)
		}

		err = x.deliver.StoreDataContract(ctx, sys.contract, nil)
		if err != nil {
			return errors.UnknownError.WithFormat("store %s contract: %w", sys.name, err)
		}
		x.block.AddDataContract(sys.contract)

		for _, doc := range sys.documents {
			err = x.deliver.StoreDocument(ctx, doc, nil)
			if err != nil {
				return errors.UnknownError.WithFormat("store %s %s document: %w", sys.name, doc.Type, err)
			}
		}

		x.logger.Info("Registered system data contract", "name", sys.name, "id", sys.contract.ID, "owner", owner.ID)
	}
	return nil
}
