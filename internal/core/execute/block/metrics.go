// Copyright 2024 The Accumulate Authors
//
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file or at
// https://opensource.org/licenses/MIT.

package block

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	blockHeight = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "platform",
		Subsystem: "block",
		Name:      "height",
		Help:      "Height of the last committed block",
	})

	deliveredTxs = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "platform",
		Subsystem: "block",
		Name:      "delivered_txs_total",
		Help:      "State transitions delivered, by result",
	}, []string{"result"})

	feesCharged = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "platform",
		Subsystem: "block",
		Name:      "fees_total",
		Help:      "Credits charged as fees",
	})

	commitDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "platform",
		Subsystem: "block",
		Name:      "commit_duration_seconds",
		Help:      "Time taken to commit a block",
		Buckets:   prometheus.DefBuckets,
	})
)
