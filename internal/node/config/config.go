// Copyright 2024 The Accumulate Authors
//
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file or at
// https://opensource.org/licenses/MIT.

package config

import (
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/pelletier/go-toml"
	"github.com/spf13/viper"
	"gitlab.com/accumulatenetwork/platform/pkg/errors"
)

const (
	configDir  = "config"
	configFile = "platform.toml"
	envPrefix  = "PLATFORM"
)

type StorageType string

const (
	MemoryStorage  StorageType = "memory"
	BadgerStorage  StorageType = "badger"
	BoltStorage    StorageType = "bolt"
	LevelDBStorage StorageType = "leveldb"
)

// DefaultLogLevels is the default and per-module log level specification.
const DefaultLogLevels = "info;storage=error;state=error"

type Config struct {
	// RootDir is the node's home directory. It is not stored.
	RootDir string `toml:"-" mapstructure:"-"`

	Storage   Storage   `toml:"storage" mapstructure:"storage"`
	Core      Core      `toml:"core" mapstructure:"core"`
	ABCI      ABCI      `toml:"abci" mapstructure:"abci"`
	Logging   Logging   `toml:"logging" mapstructure:"logging"`
	Metrics   Metrics   `toml:"metrics" mapstructure:"metrics"`
	Consensus Consensus `toml:"consensus" mapstructure:"consensus"`
}

type Storage struct {
	// Type is the backend of the auxiliary store. The authenticated tree is
	// always stored in goleveldb, unless Type is memory.
	Type      StorageType `toml:"type" mapstructure:"type" validate:"oneof=memory badger bolt leveldb"`
	Path      string      `toml:"path" mapstructure:"path" validate:"required_unless=Type memory"`
	CacheSize int         `toml:"cache-size" mapstructure:"cache-size" validate:"gte=0"`
}

type Core struct {
	Host                 string        `toml:"host" mapstructure:"host" validate:"required"`
	User                 string        `toml:"user" mapstructure:"user"`
	Password             string        `toml:"password" mapstructure:"password"`
	Timeout              time.Duration `toml:"timeout" mapstructure:"timeout" validate:"gte=0"`
	ChainLockWaitBase    time.Duration `toml:"chain-lock-wait-base" mapstructure:"chain-lock-wait-base" validate:"gte=0"`
	ChainLockWaitTimeout time.Duration `toml:"chain-lock-wait-timeout" mapstructure:"chain-lock-wait-timeout" validate:"gte=0"`
}

type ABCI struct {
	LatestProtocolVersion   uint64 `toml:"latest-protocol-version" mapstructure:"latest-protocol-version"`
	StackDepth              int    `toml:"stack-depth" mapstructure:"stack-depth" validate:"gte=0"`
	DataContractCacheSize   int    `toml:"data-contract-cache-size" mapstructure:"data-contract-cache-size" validate:"gte=0"`
	PublicKeyHashCacheSize  int    `toml:"public-key-hash-cache-size" mapstructure:"public-key-hash-cache-size" validate:"gte=0"`
	MaxIdentitiesPerRequest int    `toml:"max-identities-per-request" mapstructure:"max-identities-per-request" validate:"gte=0"`
}

type Logging struct {
	// Level is a level specification such as "error;executor=info".
	Level  string `toml:"level" mapstructure:"level"`
	Format string `toml:"format" mapstructure:"format" validate:"omitempty,oneof=plain text json"`
}

type Metrics struct {
	Enabled bool   `toml:"enabled" mapstructure:"enabled"`
	Listen  string `toml:"listen" mapstructure:"listen" validate:"required_if=Enabled true"`
}

type Consensus struct {
	// Home is the CometBFT home directory, relative to the node's home.
	Home string `toml:"home" mapstructure:"home" validate:"required"`
}

// Default returns the configuration of a new node rooted at dir.
func Default(dir string) *Config {
	c := new(Config)
	c.RootDir = dir
	c.Storage.Type = BadgerStorage
	c.Storage.Path = filepath.Join("data", "platform.db")
	c.Storage.CacheSize = 10_000
	c.Core.Host = "127.0.0.1:19998"
	c.Core.Timeout = 5 * time.Second
	c.Core.ChainLockWaitBase = 100 * time.Millisecond
	c.Core.ChainLockWaitTimeout = time.Minute
	c.ABCI.StackDepth = 3
	c.ABCI.DataContractCacheSize = 500
	c.ABCI.PublicKeyHashCacheSize = 1000
	c.ABCI.MaxIdentitiesPerRequest = 100
	c.Logging.Level = DefaultLogLevels
	c.Logging.Format = "plain"
	c.Metrics.Enabled = true
	c.Metrics.Listen = ":26660"
	c.Consensus.Home = "cometbft"
	return c
}

// Validate checks the configuration.
func (c *Config) Validate() error {
	err := validator.New().Struct(c)
	if err != nil {
		return errors.BadRequest.WithFormat("invalid configuration: %w", err)
	}
	return nil
}

// Path resolves a path against the root directory.
func (c *Config) Path(path string) string {
	return MakeAbsolute(c.RootDir, path)
}

func (c *Config) ConsensusHome() string { return c.Path(c.Consensus.Home) }

func MakeAbsolute(root, path string) string {
	if filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(root, path)
}

// File returns the path of the configuration file of a node rooted at dir.
func File(dir string) string {
	return filepath.Join(dir, configDir, configFile)
}

// Load reads the configuration of the node rooted at dir. Environment
// variables prefixed with PLATFORM_ override the file, for example
// PLATFORM_CORE_HOST overrides core.host.
func Load(dir string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(File(dir))
	v.AddConfigPath(filepath.Join(dir, configDir))
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	err := v.ReadInConfig()
	if err != nil {
		return nil, errors.UnknownError.WithFormat("read %s: %w", configFile, err)
	}

	c := Default(dir)
	err = v.Unmarshal(c)
	if err != nil {
		return nil, errors.EncodingError.WithFormat("decode %s: %w", configFile, err)
	}
	c.RootDir = dir

	err = c.Validate()
	if err != nil {
		return nil, err
	}
	return c, nil
}

// Store writes the configuration to its root directory.
func Store(c *Config) error {
	err := os.MkdirAll(filepath.Join(c.RootDir, configDir), 0700)
	if err != nil {
		return errors.UnknownError.Wrap(err)
	}

	f, err := os.Create(File(c.RootDir))
	if err != nil {
		return errors.UnknownError.Wrap(err)
	}
	defer f.Close()

	err = toml.NewEncoder(f).Encode(c)
	if err != nil {
		return errors.EncodingError.WithFormat("encode %s: %w", configFile, err)
	}
	return nil
}
