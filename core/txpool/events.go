// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package txpool

import (
	"github.com/luxfi/txpool/core/types"
)

// TxStatus is the lifecycle state of a transaction as seen by the pool.
type TxStatus uint8

const (
	TxStatusUnknown TxStatus = iota

	// TxStatusSubmitted marks a transaction accepted into the pool.
	TxStatusSubmitted

	// TxStatusSqueezed marks a resident removed before block inclusion, by
	// eviction, displacement or TTL expiry.
	TxStatusSqueezed

	// TxStatusIncluded marks a transaction extracted for a block.
	TxStatusIncluded
)

// String implements fmt.Stringer.
func (s TxStatus) String() string {
	switch s {
	case TxStatusSubmitted:
		return "submitted"
	case TxStatusSqueezed:
		return "squeezed"
	case TxStatusIncluded:
		return "included"
	default:
		return "unknown"
	}
}

// TxStatusEvent is posted on every status transition. Reason is set only for
// squeezed transactions.
type TxStatusEvent struct {
	TxID   types.TxID
	Status TxStatus
	Reason error
}
