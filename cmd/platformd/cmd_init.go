// Copyright 2024 The Accumulate Authors
//
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file or at
// https://opensource.org/licenses/MIT.

package main

import (
	"encoding/hex"
	"fmt"
	"os"
	"syscall"

	"github.com/spf13/cobra"
	"gitlab.com/accumulatenetwork/platform/internal/node"
	"gitlab.com/accumulatenetwork/platform/internal/node/abci"
	"gitlab.com/accumulatenetwork/platform/internal/node/config"
	"golang.org/x/term"
)

var cmdInit = &cobra.Command{
	Use:   "init <chain id>",
	Short: "Initialize a single-validator node",
	Args:  cobra.ExactArgs(1),
	Run:   initNode,
}

var flagInit struct {
	Reset              bool
	Storage            string
	CoreHost           string
	CoreUser           string
	CorePassword       string
	InitialCoreHeight  uint32
	FeatureFlagsKey    string
	DPNSKey            string
	Moniker            string
	P2PListen          string
	LogLevels          string
	NoPrometheus       bool
	PrometheusListenOn string
}

func init() {
	cmdMain.AddCommand(cmdInit)

	f := cmdInit.Flags()
	f.BoolVar(&flagInit.Reset, "reset", false, "Delete any existing configuration and data")
	f.StringVar(&flagInit.Storage, "storage", string(config.BadgerStorage), "Auxiliary store backend (memory, badger, bolt, leveldb)")
	f.StringVar(&flagInit.CoreHost, "core-host", "", "Core RPC host and port")
	f.StringVar(&flagInit.CoreUser, "core-user", "", "Core RPC user")
	f.StringVar(&flagInit.CorePassword, "core-password", "", "Core RPC password (prompted for if a user is set)")
	f.Uint32Var(&flagInit.InitialCoreHeight, "initial-core-height", 0, "Initial core chain-locked height")
	f.StringVar(&flagInit.FeatureFlagsKey, "feature-flags-key", "", "Compressed public key of the feature flags contract owner (hex)")
	f.StringVar(&flagInit.DPNSKey, "dpns-key", "", "Compressed public key of the DPNS contract owner (hex)")
	f.StringVar(&flagInit.Moniker, "moniker", "", "CometBFT moniker")
	f.StringVar(&flagInit.P2PListen, "p2p-listen", "", "CometBFT P2P listen address")
	f.StringVar(&flagInit.LogLevels, "log-levels", "", "Override the default log levels")
	f.BoolVar(&flagInit.NoPrometheus, "no-prometheus", false, "Disable the Prometheus endpoint")
	f.StringVar(&flagInit.PrometheusListenOn, "prometheus-listen", "", "Prometheus listen address")
}

func initNode(_ *cobra.Command, args []string) {
	if _, err := os.Stat(flagMain.WorkDir); err == nil {
		if !flagInit.Reset {
			fatalf("%s already exists, use --reset to overwrite it", flagMain.WorkDir)
		}
		warnf("Deleting %s", flagMain.WorkDir)
		check(os.RemoveAll(flagMain.WorkDir))
	}

	cfg := config.Default(flagMain.WorkDir)
	cfg.Storage.Type = config.StorageType(flagInit.Storage)
	if flagInit.CoreHost != "" {
		cfg.Core.Host = flagInit.CoreHost
	}
	cfg.Core.User = flagInit.CoreUser
	cfg.Core.Password = flagInit.CorePassword
	if cfg.Core.User != "" && cfg.Core.Password == "" && term.IsTerminal(int(syscall.Stdin)) {
		fmt.Fprint(os.Stderr, "Core RPC password: ")
		pw, err := term.ReadPassword(int(syscall.Stdin))
		fmt.Fprintln(os.Stderr)
		checkf(err, "read password")
		cfg.Core.Password = string(pw)
	}
	if flagInit.LogLevels != "" {
		cfg.Logging.Level = flagInit.LogLevels
	}
	if flagInit.NoPrometheus {
		cfg.Metrics.Enabled = false
	}
	if flagInit.PrometheusListenOn != "" {
		cfg.Metrics.Listen = flagInit.PrometheusListenOn
	}
	if cfg.Storage.Type == config.MemoryStorage {
		warnf("Memory storage does not survive a restart")
	}

	ffKey, err := hex.DecodeString(flagInit.FeatureFlagsKey)
	checkf(err, "--feature-flags-key")
	dpnsKey, err := hex.DecodeString(flagInit.DPNSKey)
	checkf(err, "--dpns-key")
	if len(ffKey) == 0 || len(dpnsKey) == 0 {
		warnf("System contract owner keys are not set, the system contracts cannot be updated")
	}

	err = node.Init(cfg, node.InitOptions{
		ChainID:   args[0],
		Moniker:   flagInit.Moniker,
		P2PListen: flagInit.P2PListen,
		Genesis: abci.GenesisState{
			InitialCoreChainLockedHeight: flagInit.InitialCoreHeight,
			FeatureFlagsOwnerPublicKey:   ffKey,
			DPNSOwnerPublicKey:           dpnsKey,
		},
	})
	checkf(err, "initialize node")

	fmt.Printf("Initialized %s in %s\n", args[0], flagMain.WorkDir)
}
