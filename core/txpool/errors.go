// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package txpool

import (
	"errors"
	"fmt"

	"github.com/luxfi/txpool/core/types"
)

var (
	// ErrPoolLimitHit is returned when a transaction does not fit in the pool
	// and no eviction set can make room for it.
	ErrPoolLimitHit = errors.New("pool limit hit, no evictable work")

	// ErrBlacklistedOwner is returned when an input owner is forbidden.
	ErrBlacklistedOwner = errors.New("blacklisted owner")

	// ErrBlacklistedAsset is returned when an input asset is forbidden.
	ErrBlacklistedAsset = errors.New("blacklisted asset")

	// ErrBlacklistedContract is returned when a referenced contract is forbidden.
	ErrBlacklistedContract = errors.New("blacklisted contract")

	// ErrBlacklistedPredicate is returned when a predicate root is forbidden.
	ErrBlacklistedPredicate = errors.New("blacklisted predicate root")

	// ErrUtxoNotFound is returned when a coin input references an unknown utxo.
	ErrUtxoNotFound = errors.New("utxo not found")

	// ErrMessageNotFound is returned when a message input references an
	// unknown or already spent nonce.
	ErrMessageNotFound = errors.New("message not found")

	// ErrContractNotFound is returned when a contract input references a
	// contract that exists neither on chain nor in the pool.
	ErrContractNotFound = errors.New("contract not found")

	// ErrUtxoWrongOutput is returned when a coin input references an output
	// of a pool-resident transaction that is not a spendable coin.
	ErrUtxoWrongOutput = errors.New("utxo does not reference a spendable output")

	// ErrDatabase wraps failures from the persistent storage view.
	ErrDatabase = errors.New("database error")

	// ErrVerification wraps signature, predicate and structural failures.
	ErrVerification = errors.New("verification failed")

	// ErrTxAlreadyKnown is returned when the exact transaction is already
	// resident in the pool.
	ErrTxAlreadyKnown = errors.New("transaction already in the pool")

	// ErrZeroMaxGas is returned when a transaction declares no gas at all;
	// such a transaction has no tip/gas ratio and cannot be ranked.
	ErrZeroMaxGas = errors.New("transaction max gas is zero")

	// ErrOversized is returned when a transaction exceeds the maximum
	// metered size accepted by the pool.
	ErrOversized = errors.New("transaction exceeds maximum size")

	// ErrNoSpendableInput is returned when a transaction that must spend
	// something carries no coin or message input.
	ErrNoSpendableInput = errors.New("transaction has no spendable input")
)

// BlobIDAlreadyTakenError is returned when a blob transaction duplicates a
// blob already known on chain or resident in the pool.
type BlobIDAlreadyTakenError struct {
	BlobID types.BlobID
}

func (e *BlobIDAlreadyTakenError) Error() string {
	return fmt.Sprintf("blob id %s already taken", e.BlobID)
}

// CollisionReason describes why two transactions claim the same input.
type CollisionReason uint8

const (
	CollisionCoinUtxo CollisionReason = iota + 1
	CollisionMessageNonce
	CollisionContractCreate
	CollisionBlob
)

// String implements fmt.Stringer.
func (r CollisionReason) String() string {
	switch r {
	case CollisionCoinUtxo:
		return "coin utxo"
	case CollisionMessageNonce:
		return "message nonce"
	case CollisionContractCreate:
		return "contract creation"
	case CollisionBlob:
		return "blob id"
	default:
		return "unknown"
	}
}

// Collision rejection causes, matched with errors.Is against the Cause field
// of a CollisionError.
var (
	// ErrDependentAndColliding rejects a transaction that both depends on
	// pool residents and collides with others.
	ErrDependentAndColliding = errors.New("transaction is dependent and colliding")

	// ErrCollisionNotProfitable rejects a displacement whose tip does not
	// exceed the cumulative tip of the colliding subtree.
	ErrCollisionNotProfitable = errors.New("collision displacement not profitable")

	// ErrCollisionBreaksDependency rejects a displacement that would evict an
	// ancestor of the newcomer.
	ErrCollisionBreaksDependency = errors.New("collision displacement would break dependency")
)

// CollisionError is returned when the collision manager refuses a transaction.
type CollisionError struct {
	Cause   error
	Reasons []CollisionReason
	With    types.TxID
}

func (e *CollisionError) Error() string {
	return fmt.Sprintf("collided with %s (%v): %v", e.With, e.Reasons, e.Cause)
}

// Unwrap exposes the cause to errors.Is.
func (e *CollisionError) Unwrap() error {
	return e.Cause
}
