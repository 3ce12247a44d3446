// Copyright 2024 The Accumulate Authors
//
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file or at
// https://opensource.org/licenses/MIT.

package state

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	cacheHits = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "platform",
		Subsystem: "state",
		Name:      "cache_hits_total",
		Help:      "State repository cache hits",
	}, []string{"cache"})

	cacheMisses = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "platform",
		Subsystem: "state",
		Name:      "cache_misses_total",
		Help:      "State repository cache misses",
	}, []string{"cache"})
)
