// Copyright 2024 The Accumulate Authors
//
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file or at
// https://opensource.org/licenses/MIT.

package node

import (
	"io"
	"os"
	"path/filepath"

	tmcfg "github.com/cometbft/cometbft/config"
	"github.com/cometbft/cometbft/libs/log"
	tmnode "github.com/cometbft/cometbft/node"
	"github.com/cometbft/cometbft/p2p"
	"github.com/cometbft/cometbft/privval"
	"github.com/cometbft/cometbft/proxy"
	"github.com/hashicorp/go-multierror"
	"github.com/spf13/viper"
	"gitlab.com/accumulatenetwork/platform/internal/core/corerpc"
	"gitlab.com/accumulatenetwork/platform/internal/core/execute/block"
	"gitlab.com/accumulatenetwork/platform/internal/database"
	"gitlab.com/accumulatenetwork/platform/internal/node/abci"
	"gitlab.com/accumulatenetwork/platform/internal/node/config"
	"gitlab.com/accumulatenetwork/platform/internal/storage"
	"gitlab.com/accumulatenetwork/platform/internal/storage/merk"
	"gitlab.com/accumulatenetwork/platform/pkg/database/keyvalue"
	"gitlab.com/accumulatenetwork/platform/pkg/database/keyvalue/badger"
	"gitlab.com/accumulatenetwork/platform/pkg/database/keyvalue/bolt"
	"gitlab.com/accumulatenetwork/platform/pkg/database/keyvalue/leveldb"
	"gitlab.com/accumulatenetwork/platform/pkg/database/keyvalue/memory"
	"gitlab.com/accumulatenetwork/platform/pkg/errors"
)

// Node is a platform node: the ABCI application, its databases and, once
// started, the CometBFT node driving it.
type Node struct {
	Config   *config.Config
	Executor *block.Executor
	App      *abci.Platform

	logger    log.Logger
	closers   []io.Closer
	consensus *tmnode.Node
}

// Open opens the databases of the node and builds the application. If core
// is nil, a Core RPC client is created from the configuration.
func Open(cfg *config.Config, core corerpc.Client, logger log.Logger) (_ *Node, err error) {
	n := new(Node)
	n.Config = cfg
	n.logger = logger
	defer func() {
		if err != nil {
			_ = n.Close()
		}
	}()

	if core == nil {
		c, err := corerpc.NewRPCClient(corerpc.Config{
			Host:     cfg.Core.Host,
			User:     cfg.Core.User,
			Password: cfg.Core.Password,
			Timeout:  cfg.Core.Timeout,
		})
		if err != nil {
			return nil, err
		}
		n.closers = append(n.closers, closeFunc(func() error { c.Close(); return nil }))
		core = c
	}

	tree, aux, err := n.openStorage()
	if err != nil {
		return nil, err
	}

	n.Executor, err = block.NewExecutor(block.ExecutorOptions{
		Logger:                 logger,
		Database:               database.New(storage.New(tree, aux, logger)),
		Core:                   core,
		LatestProtocolVersion:  cfg.ABCI.LatestProtocolVersion,
		StackDepth:             cfg.ABCI.StackDepth,
		DataContractCacheSize:  cfg.ABCI.DataContractCacheSize,
		PublicKeyHashCacheSize: cfg.ABCI.PublicKeyHashCacheSize,
		ChainLockWaitBase:      cfg.Core.ChainLockWaitBase,
		ChainLockWaitTimeout:   cfg.Core.ChainLockWaitTimeout,
	})
	if err != nil {
		return nil, errors.UnknownError.WithFormat("initialize executor: %w", err)
	}

	n.App, err = abci.NewPlatform(abci.Options{
		Executor:                n.Executor,
		Logger:                  logger,
		MaxIdentitiesPerRequest: cfg.ABCI.MaxIdentitiesPerRequest,
		CoreTimeout:             cfg.Core.Timeout,
	})
	if err != nil {
		return nil, errors.UnknownError.WithFormat("initialize ABCI application: %w", err)
	}
	return n, nil
}

func (n *Node) openStorage() (*merk.Tree, keyvalue.Beginner, error) {
	cfg := n.Config
	if cfg.Storage.Type == config.MemoryStorage {
		return merk.OpenMemory(), memory.New(), nil
	}

	dir := cfg.Path(cfg.Storage.Path)
	err := os.MkdirAll(dir, 0700)
	if err != nil {
		return nil, nil, errors.UnknownError.Wrap(err)
	}

	var aux interface {
		keyvalue.Beginner
		io.Closer
	}
	switch cfg.Storage.Type {
	case config.BadgerStorage:
		aux, err = badger.New(filepath.Join(dir, "aux"))
	case config.BoltStorage:
		aux, err = bolt.Open(filepath.Join(dir, "aux.db"))
	case config.LevelDBStorage:
		aux, err = leveldb.OpenFile(filepath.Join(dir, "aux"))
	default:
		return nil, nil, errors.BadRequest.WithFormat("unknown storage type %q", cfg.Storage.Type)
	}
	if err != nil {
		return nil, nil, errors.UnknownError.WithFormat("open %s store: %w", cfg.Storage.Type, err)
	}
	n.closers = append(n.closers, aux)

	tree, err := merk.OpenLevelDB(dir, cfg.Storage.CacheSize, 0)
	if err != nil {
		return nil, nil, err
	}
	n.closers = append(n.closers, tree)
	return tree, aux, nil
}

// Start starts CometBFT with the application as an in-process client.
func (n *Node) Start() error {
	if n.consensus != nil {
		return errors.NotAllowed.With("already started")
	}

	c, err := LoadConsensusConfig(n.Config)
	if err != nil {
		return err
	}

	nodeKey, err := p2p.LoadNodeKey(c.NodeKeyFile())
	if err != nil {
		return errors.UnknownError.WithFormat("load node key: %w", err)
	}

	n.consensus, err = tmnode.NewNode(
		c,
		privval.LoadFilePV(c.PrivValidatorKeyFile(), c.PrivValidatorStateFile()),
		nodeKey,
		proxy.NewLocalClientCreator(n.App),
		tmnode.DefaultGenesisDocProviderFunc(c),
		tmcfg.DefaultDBProvider,
		tmnode.DefaultMetricsProvider(c.Instrumentation),
		n.logger,
	)
	if err != nil {
		return errors.UnknownError.WithFormat("initialize consensus: %w", err)
	}

	err = n.consensus.Start()
	if err != nil {
		return errors.UnknownError.WithFormat("start consensus: %w", err)
	}
	return nil
}

func (n *Node) Logger() log.Logger { return n.logger }

// Done is closed when CometBFT stops.
func (n *Node) Done() <-chan struct{} {
	if n.consensus == nil {
		return nil
	}
	return n.consensus.Quit()
}

// Stop stops CometBFT and closes the databases.
func (n *Node) Stop() error {
	var errs *multierror.Error
	if n.consensus != nil && n.consensus.IsRunning() {
		errs = multierror.Append(errs, n.consensus.Stop())
		n.consensus.Wait()
	}
	errs = multierror.Append(errs, n.Close())
	return errs.ErrorOrNil()
}

// Close closes the databases.
func (n *Node) Close() error {
	var errs *multierror.Error
	for i := len(n.closers) - 1; i >= 0; i-- {
		errs = multierror.Append(errs, n.closers[i].Close())
	}
	n.closers = nil
	return errs.ErrorOrNil()
}

// LoadConsensusConfig loads the CometBFT configuration from the consensus
// home and applies the metrics settings of the node.
func LoadConsensusConfig(cfg *config.Config) (*tmcfg.Config, error) {
	home := cfg.ConsensusHome()
	c := tmcfg.DefaultConfig()

	// Load the file with Viper because that's what CometBFT does
	v := viper.New()
	v.SetConfigFile(filepath.Join(home, "config", "config.toml"))
	v.AddConfigPath(filepath.Join(home, "config"))
	err := v.ReadInConfig()
	if err != nil {
		return nil, errors.UnknownError.WithFormat("read consensus config: %w", err)
	}
	err = v.Unmarshal(c)
	if err != nil {
		return nil, errors.EncodingError.WithFormat("decode consensus config: %w", err)
	}

	c.SetRoot(home)
	c.Instrumentation.Prometheus = cfg.Metrics.Enabled
	c.Instrumentation.PrometheusListenAddr = cfg.Metrics.Listen

	err = c.ValidateBasic()
	if err != nil {
		return nil, errors.BadRequest.WithFormat("invalid consensus config: %w", err)
	}
	return c, nil
}

type closeFunc func() error

func (f closeFunc) Close() error { return f() }
