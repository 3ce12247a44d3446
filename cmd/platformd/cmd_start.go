// Copyright 2024 The Accumulate Authors
//
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file or at
// https://opensource.org/licenses/MIT.

package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"gitlab.com/accumulatenetwork/platform/internal/logging"
	"gitlab.com/accumulatenetwork/platform/internal/node"
	"gitlab.com/accumulatenetwork/platform/internal/node/config"
	"golang.org/x/sync/errgroup"
)

var cmdStart = &cobra.Command{
	Use:   "start",
	Short: "Run the node",
	Args:  cobra.NoArgs,
	Run:   startNode,
}

var flagStart struct {
	CiStopAfter time.Duration
}

func init() {
	cmdMain.AddCommand(cmdStart)

	cmdStart.Flags().DurationVar(&flagStart.CiStopAfter, "ci-stop-after", 0, "FOR CI ONLY - stop the node after some time")
	cmdStart.Flag("ci-stop-after").Hidden = true
}

func startNode(*cobra.Command, []string) {
	cfg, err := config.Load(flagMain.WorkDir)
	checkf(err, "load configuration")

	logger, err := logging.NewLogger(cfg.Logging.Level, cfg.Logging.Format, os.Stderr)
	checkf(err, "initialize logger")

	if !cfg.Metrics.Enabled {
		warnf("Metrics are disabled")
	}

	n, err := node.Open(cfg, nil, logger)
	checkf(err, "open node")

	err = n.Start()
	if err != nil {
		_ = n.Close()
		fatalf("start node: %v", err)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()
	if flagStart.CiStopAfter > 0 {
		ctx, cancel = context.WithTimeout(ctx, flagStart.CiStopAfter)
		defer cancel()
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		select {
		case <-ctx.Done():
			logger.Info("Shutting down")
		case <-n.Done():
			logger.Error("Consensus stopped unexpectedly")
		}
		return n.Stop()
	})
	g.Go(func() error {
		watchCore(ctx, n)
		return nil
	})
	check(g.Wait())
}

// watchCore logs when Core stops answering. Blocks cannot be executed
// without it.
func watchCore(ctx context.Context, n *node.Node) {
	tick := time.NewTicker(30 * time.Second)
	defer tick.Stop()

	healthy := true
	for {
		select {
		case <-ctx.Done():
			return
		case <-n.Done():
			return
		case <-tick.C:
		}

		lock, err := n.Executor.Core.GetBestChainLock(ctx)
		switch {
		case err != nil && healthy:
			warnf("Core is not responding: %v", err)
		case err == nil && !healthy:
			n.Logger().Info("Core is responding again", "height", lock.Height)
		}
		healthy = err == nil
	}
}
