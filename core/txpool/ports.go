// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package txpool

import (
	"context"

	"github.com/luxfi/txpool/core/types"
)

// PersistentStorage is a read-only snapshot of on-chain state. A view must
// not change under the pool once obtained; every lookup of a single insert
// runs against the same view.
type PersistentStorage interface {
	// Coin returns the unspent coin for the given utxo id, or nil if the
	// utxo does not exist or is spent.
	Coin(utxo types.UtxoID) (*types.Coin, error)

	// Message returns the unspent message for the given nonce, or nil if
	// the message does not exist or was consumed.
	Message(nonce types.Nonce) (*types.Message, error)

	// ContractExists reports whether the contract is deployed on chain.
	ContractExists(id types.ContractID) (bool, error)

	// BlobExists reports whether the blob is already stored on chain.
	BlobExists(id types.BlobID) (bool, error)
}

// AtomicView provides consistent snapshots of persistent storage.
type AtomicView interface {
	LatestView() (PersistentStorage, error)
}

// AtomicViewFunc adapts a snapshot function to the AtomicView interface.
type AtomicViewFunc func() (PersistentStorage, error)

// LatestView implements AtomicView.
func (f AtomicViewFunc) LatestView() (PersistentStorage, error) { return f() }

// TxVerifier checks signatures and predicates of a candidate transaction
// against a state view. Implemented by the virtual machine collaborator.
type TxVerifier interface {
	Check(ctx context.Context, tx *types.PoolTransaction, view PersistentStorage) error
}
