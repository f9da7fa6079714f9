// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package txpool

import (
	"time"

	"github.com/google/btree"
	"github.com/holiman/uint256"

	"github.com/luxfi/txpool/core/types"
)

// cmpRatio compares aTip/aGas against bTip/bGas as exact rationals via
// 128-bit cross-multiplication. Floats are never involved.
func cmpRatio(aTip, aGas, bTip, bGas uint64) int {
	left := new(uint256.Int).Mul(uint256.NewInt(aTip), uint256.NewInt(bGas))
	right := new(uint256.Int).Mul(uint256.NewInt(bTip), uint256.NewInt(aGas))
	return left.Cmp(right)
}

// selectionKey orders executable transactions: highest tip/gas ratio first,
// then oldest creation instant, then ascending tx id. The order is total.
type selectionKey struct {
	tip      uint64
	gas      uint64
	creation time.Time
	txID     types.TxID
}

type selectionItem struct {
	key selectionKey
	idx StorageIndex
}

func selectionLess(a, b selectionItem) bool {
	switch cmpRatio(a.key.tip, a.key.gas, b.key.tip, b.key.gas) {
	case 1:
		return true
	case -1:
		return false
	}
	if !a.key.creation.Equal(b.key.creation) {
		return a.key.creation.Before(b.key.creation)
	}
	return a.key.txID.Compare(b.key.txID) < 0
}

// Constraints bound a selection pass.
type Constraints struct {
	MaxGas uint64
}

// SelectionAlgorithm maintains a priority structure over the executable
// residents (those with no pool-resident parent) keyed by tip/gas ratio and
// produces gas-bounded, dependency-respecting batches for the block producer.
type SelectionAlgorithm struct {
	sorted *btree.BTreeG[selectionItem]
	keys   map[types.TxID]selectionItem
}

// NewSelectionAlgorithm creates an empty selection structure.
func NewSelectionAlgorithm() *SelectionAlgorithm {
	return &SelectionAlgorithm{
		sorted: btree.NewG[selectionItem](16, selectionLess),
		keys:   make(map[types.TxID]selectionItem),
	}
}

func keyFor(data *StorageData) selectionKey {
	return selectionKey{
		tip:      data.Transaction.Tip,
		gas:      data.Transaction.MaxGas,
		creation: data.CreationInstant,
		txID:     data.Transaction.ID,
	}
}

// NewExecutableTransaction inserts the resident into the priority structure.
// Re-inserting an already tracked transaction is a no-op.
func (sa *SelectionAlgorithm) NewExecutableTransaction(idx StorageIndex, data *StorageData) {
	txID := data.Transaction.ID
	if _, ok := sa.keys[txID]; ok {
		return
	}
	item := selectionItem{key: keyFor(data), idx: idx}
	sa.sorted.ReplaceOrInsert(item)
	sa.keys[txID] = item
}

// Contains reports whether the transaction is tracked as executable.
func (sa *SelectionAlgorithm) Contains(txID types.TxID) bool {
	_, ok := sa.keys[txID]
	return ok
}

// Len returns the number of tracked executable transactions.
func (sa *SelectionAlgorithm) Len() int {
	return sa.sorted.Len()
}

// OnRemovedTransaction drops the transaction's key if present.
func (sa *SelectionAlgorithm) OnRemovedTransaction(tx *types.PoolTransaction) {
	item, ok := sa.keys[tx.ID]
	if !ok {
		return
	}
	sa.sorted.Delete(item)
	delete(sa.keys, tx.ID)
}

// GatherBestTxs walks the priority structure best-first and selects the
// transactions that fit under the gas constraint. Direct children of a
// selected transaction are promoted into the structure once every one of
// their parents is either selected in this gather or already absent from
// storage, so a further pass can pick them up. Passes repeat while gas
// remains and the previous pass selected or promoted something.
//
// The returned indices are in selection order, which is topological: a child
// can only be selected in a later pass than its last parent.
func (sa *SelectionAlgorithm) GatherBestTxs(constraints Constraints, storage *Storage) []StorageIndex {
	gasLeft := constraints.MaxGas
	selected := make(map[StorageIndex]struct{}) // selected across all passes of this gather
	var result []StorageIndex

	for gasLeft > 0 && sa.sorted.Len() > 0 {
		var (
			best      []selectionItem
			stale     []selectionItem
			toPromote []StorageIndex
		)
		sa.sorted.Ascend(func(item selectionItem) bool {
			data := storage.Get(item.idx)
			if data == nil {
				// The structure lagged behind a storage removal; repair.
				stale = append(stale, item)
				return true
			}
			if data.Transaction.MaxGas > gasLeft {
				return true
			}
			gasLeft -= data.Transaction.MaxGas
			best = append(best, item)
			selected[item.idx] = struct{}{}
			data.Children.Each(func(c StorageIndex) bool {
				toPromote = append(toPromote, c)
				return false
			})
			return true
		})

		for _, item := range stale {
			sa.sorted.Delete(item)
			delete(sa.keys, item.key.txID)
		}
		if len(best) == 0 && len(toPromote) == 0 {
			break
		}
		for _, item := range best {
			sa.sorted.Delete(item)
			delete(sa.keys, item.key.txID)
			result = append(result, item.idx)
		}

		promoted := false
		for _, c := range toPromote {
			data := storage.Get(c)
			if data == nil || sa.Contains(data.Transaction.ID) {
				continue
			}
			if !parentsSatisfied(data, selected, storage) {
				continue
			}
			sa.NewExecutableTransaction(c, data)
			promoted = true
		}
		if len(best) == 0 && !promoted {
			break
		}
	}
	return result
}

// parentsSatisfied reports whether every parent of the candidate is either
// selected in the current gather or no longer resident.
func parentsSatisfied(data *StorageData, selected map[StorageIndex]struct{}, storage *Storage) bool {
	ok := true
	data.Parents.Each(func(p StorageIndex) bool {
		if _, sel := selected[p]; sel {
			return false
		}
		if storage.Get(p) == nil {
			return false
		}
		ok = false
		return true
	})
	return ok
}

// GetLessWorthTxs returns the tracked executable transactions worst-first.
// Advisory introspection only; eviction ranks subtree roots in storage.
func (sa *SelectionAlgorithm) GetLessWorthTxs() []StorageIndex {
	result := make([]StorageIndex, 0, sa.sorted.Len())
	sa.sorted.Descend(func(item selectionItem) bool {
		result = append(result, item.idx)
		return true
	})
	return result
}
