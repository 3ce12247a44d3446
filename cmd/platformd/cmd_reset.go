// Copyright 2024 The Accumulate Authors
//
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file or at
// https://opensource.org/licenses/MIT.

package main

import (
	"fmt"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
	"gitlab.com/accumulatenetwork/platform/internal/node"
	"gitlab.com/accumulatenetwork/platform/internal/node/config"
)

var cmdReset = &cobra.Command{
	Use:   "reset",
	Short: "Deletes the platform state and block data (UNSAFE)",
	Long:  "Deletes the platform state and the CometBFT block data, and resets the validator's sign state. Configuration and keys are kept.",
	Args:  cobra.NoArgs,
	Run:   resetNode,
}

func init() {
	cmdMain.AddCommand(cmdReset)
}

func resetNode(*cobra.Command, []string) {
	cfg, err := config.Load(flagMain.WorkDir)
	checkf(err, "load configuration")

	warnf("Deleting the state of %s", flagMain.WorkDir)
	size, err := node.Reset(cfg)
	checkf(err, "reset")

	fmt.Printf("Deleted %s\n", humanize.Bytes(uint64(size)))
}
