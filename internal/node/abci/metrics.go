// Copyright 2024 The Accumulate Authors
//
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file or at
// https://opensource.org/licenses/MIT.

package abci

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	queryCount = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "platform",
		Subsystem: "abci",
		Name:      "queries_total",
		Help:      "ABCI queries, by path and response code",
	}, []string{"path", "code"})

	checkTxCount = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "platform",
		Subsystem: "abci",
		Name:      "check_tx_total",
		Help:      "Checked transactions, by result",
	}, []string{"result"})

	finalizeDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "platform",
		Subsystem: "abci",
		Name:      "finalize_block_duration_seconds",
		Help:      "Time taken to execute a block",
		Buckets:   prometheus.DefBuckets,
	})

	rejectedProposals = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "platform",
		Subsystem: "abci",
		Name:      "rejected_proposals_total",
		Help:      "Block proposals rejected by this node",
	})
)
