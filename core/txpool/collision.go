// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package txpool

import (
	"sort"

	mapset "github.com/deckarep/golang-set/v2"

	"github.com/luxfi/txpool/core/types"
)

// CollisionManager indexes the input claims of the residents (spent coin
// utxos, consumed message nonces, created contract ids and blob ids) and
// arbitrates whether a newcomer may displace the residents it collides with.
// Each claim maps to at most one resident at any instant.
type CollisionManager struct {
	coinSpenders     map[types.UtxoID]StorageIndex
	messageSpenders  map[types.Nonce]StorageIndex
	contractCreators map[types.ContractID]StorageIndex
	blobUsers        map[types.BlobID]StorageIndex
}

// NewCollisionManager creates an empty claim index.
func NewCollisionManager() *CollisionManager {
	return &CollisionManager{
		coinSpenders:     make(map[types.UtxoID]StorageIndex),
		messageSpenders:  make(map[types.Nonce]StorageIndex),
		contractCreators: make(map[types.ContractID]StorageIndex),
		blobUsers:        make(map[types.BlobID]StorageIndex),
	}
}

// CollectCollidingTransactions returns the residents whose claims overlap the
// transaction's, with the reasons for each.
func (cm *CollisionManager) CollectCollidingTransactions(tx *types.PoolTransaction) map[StorageIndex][]CollisionReason {
	colliding := make(map[StorageIndex][]CollisionReason)
	for i := range tx.Inputs {
		in := &tx.Inputs[i]
		switch {
		case in.IsCoin():
			if idx, ok := cm.coinSpenders[in.UtxoID]; ok {
				colliding[idx] = append(colliding[idx], CollisionCoinUtxo)
			}
		case in.IsMessage():
			if idx, ok := cm.messageSpenders[in.Nonce]; ok {
				colliding[idx] = append(colliding[idx], CollisionMessageNonce)
			}
		}
	}
	if tx.CreatedContract != nil {
		if idx, ok := cm.contractCreators[*tx.CreatedContract]; ok {
			colliding[idx] = append(colliding[idx], CollisionContractCreate)
		}
	}
	if tx.BlobID != nil {
		if idx, ok := cm.blobUsers[*tx.BlobID]; ok {
			colliding[idx] = append(colliding[idx], CollisionBlob)
		}
	}
	return colliding
}

// CanStoreTransaction decides whether the transaction may displace the
// residents it collides with:
//
//   - a transaction with pool dependencies may not collide at all;
//   - a blob id collision is a duplicate of content-addressed work and is
//     never displaced;
//   - any other colliding resident is displaced only if the newcomer's tip
//     strictly exceeds the resident's cumulative tip and the newcomer does
//     not transitively depend on it.
func (cm *CollisionManager) CanStoreTransaction(
	tx *types.PoolTransaction,
	hasDependencies bool,
	colliding map[StorageIndex][]CollisionReason,
	deps mapset.Set[StorageIndex],
	storage *Storage,
) error {
	if len(colliding) == 0 {
		return nil
	}
	ordered := sortedCollisionKeys(colliding)
	if hasDependencies {
		idx := ordered[0]
		return &CollisionError{
			Cause:   ErrDependentAndColliding,
			Reasons: colliding[idx],
			With:    storage.Get(idx).Transaction.ID,
		}
	}
	ancestry := storage.collectAncestors(deps)
	for _, idx := range ordered {
		reasons := colliding[idx]
		data := storage.Get(idx)
		for _, reason := range reasons {
			if reason == CollisionBlob {
				return &BlobIDAlreadyTakenError{BlobID: *tx.BlobID}
			}
		}
		if ancestry.Contains(idx) {
			return &CollisionError{
				Cause:   ErrCollisionBreaksDependency,
				Reasons: reasons,
				With:    data.Transaction.ID,
			}
		}
		if tx.Tip <= data.CumulativeTip {
			return &CollisionError{
				Cause:   ErrCollisionNotProfitable,
				Reasons: reasons,
				With:    data.Transaction.ID,
			}
		}
	}
	return nil
}

// sortedCollisionKeys orders the colliding residents by storage index so the
// reported rejection is deterministic.
func sortedCollisionKeys(colliding map[StorageIndex][]CollisionReason) []StorageIndex {
	keys := make([]StorageIndex, 0, len(colliding))
	for idx := range colliding {
		keys = append(keys, idx)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })
	return keys
}

// OnStoredTransaction registers the transaction's claims.
func (cm *CollisionManager) OnStoredTransaction(tx *types.PoolTransaction, idx StorageIndex) {
	for i := range tx.Inputs {
		in := &tx.Inputs[i]
		switch {
		case in.IsCoin():
			cm.coinSpenders[in.UtxoID] = idx
		case in.IsMessage():
			cm.messageSpenders[in.Nonce] = idx
		}
	}
	if tx.CreatedContract != nil {
		cm.contractCreators[*tx.CreatedContract] = idx
	}
	if tx.BlobID != nil {
		cm.blobUsers[*tx.BlobID] = idx
	}
}

// OnRemovedTransaction frees the transaction's claims.
func (cm *CollisionManager) OnRemovedTransaction(tx *types.PoolTransaction) {
	for i := range tx.Inputs {
		in := &tx.Inputs[i]
		switch {
		case in.IsCoin():
			delete(cm.coinSpenders, in.UtxoID)
		case in.IsMessage():
			delete(cm.messageSpenders, in.Nonce)
		}
	}
	if tx.CreatedContract != nil {
		delete(cm.contractCreators, *tx.CreatedContract)
	}
	if tx.BlobID != nil {
		delete(cm.blobUsers, *tx.BlobID)
	}
}
