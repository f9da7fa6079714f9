// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package txpool

import (
	"context"
	"fmt"

	"github.com/luxfi/txpool/core/types"
)

// verifyStructure enforces the shape invariants a candidate must satisfy
// before any stateful check runs: size, gas, and input cardinality.
func verifyStructure(tx *types.PoolTransaction, maxSize uint64) error {
	if tx.MaxGas == 0 {
		return ErrZeroMaxGas
	}
	if tx.MeteredBytes > maxSize {
		return fmt.Errorf("%w: %d > %d bytes", ErrOversized, tx.MeteredBytes, maxSize)
	}
	switch tx.Kind {
	case types.Mint:
		// Mint transactions are produced by the block producer and consume
		// nothing from the pool's perspective.
	default:
		spendable := false
		for i := range tx.Inputs {
			if tx.Inputs[i].IsCoin() || tx.Inputs[i].IsMessage() {
				spendable = true
				break
			}
		}
		if !spendable {
			return ErrNoSpendableInput
		}
	}
	if tx.Kind == types.Blob && tx.BlobID == nil {
		return fmt.Errorf("%w: blob transaction without blob id", ErrVerification)
	}
	if tx.Kind == types.Create && tx.CreatedContract == nil {
		return fmt.Errorf("%w: create transaction without contract id", ErrVerification)
	}
	return nil
}

// preVerify is the heavy, pre-lock part of the verification pipeline:
// blacklist, structural checks and signature/predicate verification against
// the snapshot view. Input existence is re-checked inside the pool lock
// against the same kind of snapshot.
func preVerify(ctx context.Context, tx *types.PoolTransaction, view PersistentStorage, verifier TxVerifier, config *Config) error {
	if err := config.BlackList.Check(tx); err != nil {
		return err
	}
	if err := verifyStructure(tx, config.MaxTxSize); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if verifier != nil {
		if err := verifier.Check(ctx, tx, view); err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return ctxErr
			}
			return fmt.Errorf("%w: %v", ErrVerification, err)
		}
	}
	return nil
}
