// Copyright 2024 The Accumulate Authors
//
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file or at
// https://opensource.org/licenses/MIT.

package node

import (
	"encoding/json"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	tmcfg "github.com/cometbft/cometbft/config"
	"github.com/cometbft/cometbft/p2p"
	"github.com/cometbft/cometbft/privval"
	"github.com/cometbft/cometbft/types"
	"gitlab.com/accumulatenetwork/platform/internal/node/abci"
	"gitlab.com/accumulatenetwork/platform/internal/node/config"
	"gitlab.com/accumulatenetwork/platform/pkg/errors"
	"gitlab.com/accumulatenetwork/platform/protocol"
)

type InitOptions struct {
	ChainID     string
	GenesisTime time.Time
	Genesis     abci.GenesisState

	// Moniker and P2PListen are written to the CometBFT configuration if
	// they are set.
	Moniker   string
	P2PListen string
}

// Init writes the configuration of a single-validator network rooted at
// cfg.RootDir: the node configuration, the CometBFT configuration, the
// validator and node keys, and a genesis document carrying the genesis
// state as its app state.
func Init(cfg *config.Config, opts InitOptions) (err error) {
	defer func() {
		if err != nil {
			_ = os.RemoveAll(cfg.RootDir)
		}
	}()

	err = cfg.Validate()
	if err != nil {
		return err
	}
	err = config.Store(cfg)
	if err != nil {
		return err
	}

	home := cfg.ConsensusHome()
	tmcfg.EnsureRoot(home)
	c := tmcfg.DefaultConfig()
	c.SetRoot(home)
	if opts.Moniker != "" {
		c.Moniker = opts.Moniker
	}
	if opts.P2PListen != "" {
		c.P2P.ListenAddress = opts.P2PListen
	}
	c.Instrumentation.Prometheus = cfg.Metrics.Enabled
	c.Instrumentation.PrometheusListenAddr = cfg.Metrics.Listen
	tmcfg.WriteConfigFile(filepath.Join(home, "config", "config.toml"), c)

	pv := privval.LoadOrGenFilePV(c.PrivValidatorKeyFile(), c.PrivValidatorStateFile())
	_, err = p2p.LoadOrGenNodeKey(c.NodeKeyFile())
	if err != nil {
		return errors.UnknownError.WithFormat("generate node key: %w", err)
	}

	pubKey, err := pv.GetPubKey()
	if err != nil {
		return errors.UnknownError.WithFormat("load validator key: %w", err)
	}

	state, err := json.Marshal(&opts.Genesis)
	if err != nil {
		return errors.EncodingError.WithFormat("encode genesis state: %w", err)
	}

	genTime := opts.GenesisTime
	if genTime.IsZero() {
		genTime = time.Now()
	}

	params := types.DefaultConsensusParams()
	params.Version.App = uint64(protocol.LatestVersion)
	if cfg.ABCI.LatestProtocolVersion != 0 {
		params.Version.App = cfg.ABCI.LatestProtocolVersion
	}

	doc := &types.GenesisDoc{
		ChainID:         opts.ChainID,
		GenesisTime:     genTime,
		InitialHeight:   1,
		ConsensusParams: params,
		AppState:        state,
		Validators: []types.GenesisValidator{{
			Address: pubKey.Address(),
			PubKey:  pubKey,
			Power:   1,
			Name:    c.Moniker,
		}},
	}
	err = doc.ValidateAndComplete()
	if err != nil {
		return errors.BadRequest.WithFormat("invalid genesis: %w", err)
	}
	err = doc.SaveAs(c.GenesisFile())
	if err != nil {
		return errors.UnknownError.WithFormat("write genesis: %w", err)
	}
	return nil
}

// Reset deletes the platform state and the CometBFT block data of a node,
// and resets the validator's last sign state. Configuration and keys are
// kept. It returns the number of bytes deleted.
func Reset(cfg *config.Config) (int64, error) {
	c, err := LoadConsensusConfig(cfg)
	if err != nil {
		return 0, err
	}

	var size int64
	for _, dir := range []string{cfg.Path(cfg.Storage.Path), c.DBDir()} {
		n, err := dirSize(dir)
		if err != nil {
			return size, err
		}
		err = os.RemoveAll(dir)
		if err != nil {
			return size, errors.UnknownError.Wrap(err)
		}
		size += n
	}

	if _, err := os.Stat(c.PrivValidatorKeyFile()); err == nil {
		privval.LoadFilePV(c.PrivValidatorKeyFile(), c.PrivValidatorStateFile()).Reset()
	}
	return size, nil
}

func dirSize(dir string) (int64, error) {
	var size int64
	err := filepath.WalkDir(dir, func(_ string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		size += info.Size()
		return nil
	})
	if errors.Is(err, fs.ErrNotExist) {
		return 0, nil
	}
	if err != nil {
		return 0, errors.UnknownError.Wrap(err)
	}
	return size, nil
}
