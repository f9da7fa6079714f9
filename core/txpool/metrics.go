// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package txpool

import (
	"github.com/luxfi/geth/metrics"
)

var (
	// Pool residency gauges, updated under the pool lock.
	pendingGauge = metrics.GetOrRegisterGauge("txpool/pending", nil)
	gasGauge     = metrics.GetOrRegisterGauge("txpool/gas", nil)
	bytesGauge   = metrics.GetOrRegisterGauge("txpool/bytes", nil)

	// Flow meters.
	insertedMeter  = metrics.GetOrRegisterMeter("txpool/inserted", nil)
	rejectedMeter  = metrics.GetOrRegisterMeter("txpool/rejected", nil)
	squeezedMeter  = metrics.GetOrRegisterMeter("txpool/squeezed", nil)
	extractedMeter = metrics.GetOrRegisterMeter("txpool/extracted", nil)
	prunedMeter    = metrics.GetOrRegisterMeter("txpool/pruned", nil)

	// Block-build selection latency.
	extractTimer = metrics.GetOrRegisterTimer("txpool/extract/duration", nil)
)
