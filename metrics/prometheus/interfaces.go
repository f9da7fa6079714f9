// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package prometheus

// Registry is the part of a geth metrics registry the gatherer reads.
type Registry interface {
	// Each invokes the callback for every registered metric.
	Each(func(name string, i any))
	// Get returns the metric registered under the name, or nil.
	Get(name string) any
}
