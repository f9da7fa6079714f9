// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package txpool

import (
	"fmt"
	"sort"
	"time"

	mapset "github.com/deckarep/golang-set/v2"

	"github.com/luxfi/txpool/core/types"
	"github.com/luxfi/txpool/utils"
)

// StorageIndex is an opaque stable handle for a resident transaction. It
// stays valid across unrelated inserts and removals and is invalidated only
// by the removal of its referent.
type StorageIndex uint64

// StorageData is the resident record of one pool transaction. The cumulative
// aggregates cover the node itself plus the transitive closure of its
// descendants and are maintained incrementally on every edge change.
type StorageData struct {
	Transaction     *types.PoolTransaction
	CreationInstant time.Time

	Parents  mapset.Set[StorageIndex]
	Children mapset.Set[StorageIndex]

	CumulativeGas   uint64
	CumulativeBytes uint64
	CumulativeTip   uint64
}

// Storage is the dependency-graph substrate of the pool. It owns the resident
// records, maintains parent/child edges derived from utxo consumption and
// keeps subtree aggregates consistent. Parent/child links are relations, not
// ownership; the arena owns every node.
type Storage struct {
	txs       map[StorageIndex]*StorageData
	nextIndex StorageIndex

	// Projection of the outputs produced by residents, keyed for dependency
	// collection and input validation.
	coinCreators     map[types.UtxoID]StorageIndex
	contractCreators map[types.ContractID]StorageIndex

	clock utils.Clock
}

// NewStorage creates an empty graph using the given clock for residency
// timestamps.
func NewStorage(clock utils.Clock) *Storage {
	return &Storage{
		txs:              make(map[StorageIndex]*StorageData),
		coinCreators:     make(map[types.UtxoID]StorageIndex),
		contractCreators: make(map[types.ContractID]StorageIndex),
		clock:            clock,
	}
}

// Count returns the number of residents.
func (s *Storage) Count() uint64 {
	return uint64(len(s.txs))
}

// Get returns the resident record for the index, or nil if it was removed.
func (s *Storage) Get(idx StorageIndex) *StorageData {
	return s.txs[idx]
}

// CoinCreator returns the resident producing the given utxo, if any.
func (s *Storage) CoinCreator(utxo types.UtxoID) (StorageIndex, bool) {
	idx, ok := s.coinCreators[utxo]
	return idx, ok
}

// ContractCreator returns the resident creating the given contract, if any.
func (s *Storage) ContractCreator(id types.ContractID) (StorageIndex, bool) {
	idx, ok := s.contractCreators[id]
	return idx, ok
}

// ValidateInputs ensures every input of the transaction references an entity
// that exists either on chain (per the snapshot view) or in the pool's output
// projection. With utxoValidation disabled, coin lookups against the view are
// skipped; pool-resident references are still checked for shape.
func (s *Storage) ValidateInputs(tx *types.PoolTransaction, view PersistentStorage, utxoValidation bool) error {
	for i := range tx.Inputs {
		in := &tx.Inputs[i]
		switch {
		case in.IsCoin():
			if creator, ok := s.coinCreators[in.UtxoID]; ok {
				data := s.txs[creator]
				outIdx := int(in.UtxoID.OutputIndex)
				if outIdx >= len(data.Transaction.Outputs) || !data.Transaction.Outputs[outIdx].IsSpendable() {
					return fmt.Errorf("%w: %s", ErrUtxoWrongOutput, in.UtxoID)
				}
				continue
			}
			// An output of a resident that the projection does not hold is
			// either out of range or not a spendable coin.
			for _, data := range s.txs {
				if data.Transaction.ID == in.UtxoID.TxID {
					return fmt.Errorf("%w: %s", ErrUtxoWrongOutput, in.UtxoID)
				}
			}
			if !utxoValidation {
				continue
			}
			coin, err := view.Coin(in.UtxoID)
			if err != nil {
				return fmt.Errorf("%w: %v", ErrDatabase, err)
			}
			if coin == nil {
				return fmt.Errorf("%w: %s", ErrUtxoNotFound, in.UtxoID)
			}
		case in.IsMessage():
			msg, err := view.Message(in.Nonce)
			if err != nil {
				return fmt.Errorf("%w: %v", ErrDatabase, err)
			}
			if msg == nil {
				return fmt.Errorf("%w: %s", ErrMessageNotFound, in.Nonce)
			}
		case in.Kind == types.InputContract:
			if _, ok := s.contractCreators[in.ContractID]; ok {
				continue
			}
			exists, err := view.ContractExists(in.ContractID)
			if err != nil {
				return fmt.Errorf("%w: %v", ErrDatabase, err)
			}
			if !exists {
				return fmt.Errorf("%w: %s", ErrContractNotFound, in.ContractID)
			}
		}
	}
	return nil
}

// CollectTransactionDependencies returns the residents producing the outputs
// and contracts the transaction consumes. The result is a set: a transaction
// spending two outputs of the same resident depends on it once.
func (s *Storage) CollectTransactionDependencies(tx *types.PoolTransaction) mapset.Set[StorageIndex] {
	deps := mapset.NewThreadUnsafeSet[StorageIndex]()
	for i := range tx.Inputs {
		in := &tx.Inputs[i]
		switch {
		case in.IsCoin():
			if creator, ok := s.coinCreators[in.UtxoID]; ok {
				deps.Add(creator)
			}
		case in.Kind == types.InputContract:
			if creator, ok := s.contractCreators[in.ContractID]; ok {
				deps.Add(creator)
			}
		}
	}
	return deps
}

// CanStoreTransaction is a pure predicate rejecting an insert whose colliding
// set overlaps the ancestry of the newcomer: removing those residents would
// also remove something the newcomer depends on. It never mutates.
func (s *Storage) CanStoreTransaction(deps mapset.Set[StorageIndex], colliding []StorageIndex) error {
	if len(colliding) == 0 || deps.Cardinality() == 0 {
		return nil
	}
	ancestry := s.collectAncestors(deps)
	for _, c := range colliding {
		if ancestry.Contains(c) {
			return ErrCollisionBreaksDependency
		}
	}
	return nil
}

// collectAncestors returns the given indices plus all their transitive
// parents. The graph is a DAG; a visited set keeps diamonds from being walked
// twice.
func (s *Storage) collectAncestors(from mapset.Set[StorageIndex]) mapset.Set[StorageIndex] {
	visited := mapset.NewThreadUnsafeSet[StorageIndex]()
	stack := from.ToSlice()
	for len(stack) > 0 {
		idx := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if !visited.Add(idx) {
			continue
		}
		if data, ok := s.txs[idx]; ok {
			data.Parents.Each(func(p StorageIndex) bool {
				stack = append(stack, p)
				return false
			})
		}
	}
	return visited
}

// StoreTransaction allocates an index for the transaction, links it to every
// dependency and folds its weight into the aggregates of all transitive
// ancestors.
func (s *Storage) StoreTransaction(tx *types.PoolTransaction, deps mapset.Set[StorageIndex]) StorageIndex {
	idx := s.nextIndex
	s.nextIndex++

	data := &StorageData{
		Transaction:     tx,
		CreationInstant: s.clock.Time(),
		Parents:         mapset.NewThreadUnsafeSet[StorageIndex](),
		Children:        mapset.NewThreadUnsafeSet[StorageIndex](),
		CumulativeGas:   tx.MaxGas,
		CumulativeBytes: tx.MeteredBytes,
		CumulativeTip:   tx.Tip,
	}
	deps.Each(func(dep StorageIndex) bool {
		data.Parents.Add(dep)
		s.txs[dep].Children.Add(idx)
		return false
	})
	s.txs[idx] = data

	// Every transitive ancestor gains this transaction as a dependent;
	// diamonds must be counted once.
	ancestors := s.collectAncestors(deps)
	ancestors.Each(func(a StorageIndex) bool {
		anc := s.txs[a]
		anc.CumulativeGas = saturatingAdd(anc.CumulativeGas, tx.MaxGas)
		anc.CumulativeBytes = saturatingAdd(anc.CumulativeBytes, tx.MeteredBytes)
		anc.CumulativeTip = saturatingAdd(anc.CumulativeTip, tx.Tip)
		return false
	})

	s.registerOutputs(tx, idx)
	return idx
}

// RemoveTransactionWithoutDependencies removes a parentless resident and
// detaches it from its children. It does not descend; the caller promotes the
// children it orphans.
func (s *Storage) RemoveTransactionWithoutDependencies(idx StorageIndex) (*StorageData, error) {
	data, ok := s.txs[idx]
	if !ok {
		return nil, fmt.Errorf("storage index %d not resident", idx)
	}
	if data.Parents.Cardinality() != 0 {
		return nil, fmt.Errorf("storage index %d still has parents", idx)
	}
	data.Children.Each(func(c StorageIndex) bool {
		s.txs[c].Parents.Remove(idx)
		return false
	})
	s.unregisterOutputs(data.Transaction)
	delete(s.txs, idx)
	return data, nil
}

// RemoveTransactionAndDependentsSubtree removes the resident and every
// transitive descendant, returning the removed transactions. Nodes are
// removed leaves-first so the ancestor aggregates stay consistent throughout.
// A missing root is not an error; it was removed by an earlier subtree.
func (s *Storage) RemoveTransactionAndDependentsSubtree(root StorageIndex) []*types.PoolTransaction {
	if _, ok := s.txs[root]; !ok {
		return nil
	}
	order := s.postOrder(root)

	removed := make([]*types.PoolTransaction, 0, len(order))
	for _, idx := range order {
		data, ok := s.txs[idx]
		if !ok {
			continue
		}
		// Subtract this node's own weight from every still-resident ancestor.
		ancestors := s.collectAncestors(data.Parents)
		ancestors.Each(func(a StorageIndex) bool {
			anc, ok := s.txs[a]
			if !ok {
				return false
			}
			anc.CumulativeGas = saturatingSub(anc.CumulativeGas, data.Transaction.MaxGas)
			anc.CumulativeBytes = saturatingSub(anc.CumulativeBytes, data.Transaction.MeteredBytes)
			anc.CumulativeTip = saturatingSub(anc.CumulativeTip, data.Transaction.Tip)
			return false
		})
		// Detach edges in both directions.
		data.Parents.Each(func(p StorageIndex) bool {
			if parent, ok := s.txs[p]; ok {
				parent.Children.Remove(idx)
			}
			return false
		})
		data.Children.Each(func(c StorageIndex) bool {
			if child, ok := s.txs[c]; ok {
				child.Parents.Remove(idx)
			}
			return false
		})
		s.unregisterOutputs(data.Transaction)
		delete(s.txs, idx)
		removed = append(removed, data.Transaction)
	}
	return removed
}

// postOrder returns the subtree rooted at root, leaves first, root last.
// Shared descendants of a diamond appear once.
func (s *Storage) postOrder(root StorageIndex) []StorageIndex {
	var order []StorageIndex
	visited := mapset.NewThreadUnsafeSet[StorageIndex]()
	var walk func(idx StorageIndex)
	walk = func(idx StorageIndex) {
		if !visited.Add(idx) {
			return
		}
		if data, ok := s.txs[idx]; ok {
			children := data.Children.ToSlice()
			sort.Slice(children, func(i, j int) bool { return children[i] < children[j] })
			for _, c := range children {
				walk(c)
			}
			order = append(order, idx)
		}
	}
	walk(root)
	return order
}

// GetWorstRatioTipGasSubtreeRoots returns the subtree roots (residents with
// no parent) ordered by ascending cumulative tip/gas ratio. Ratios are
// compared as exact rationals; on a tie the newer resident sorts first so
// eviction drops the newer work, with the tx id as the deterministic
// fallback.
func (s *Storage) GetWorstRatioTipGasSubtreeRoots() []StorageIndex {
	var roots []StorageIndex
	for idx, data := range s.txs {
		if data.Parents.Cardinality() == 0 {
			roots = append(roots, idx)
		}
	}
	sort.Slice(roots, func(i, j int) bool {
		a, b := s.txs[roots[i]], s.txs[roots[j]]
		switch cmpRatio(a.CumulativeTip, a.CumulativeGas, b.CumulativeTip, b.CumulativeGas) {
		case -1:
			return true
		case 1:
			return false
		}
		if !a.CreationInstant.Equal(b.CreationInstant) {
			return a.CreationInstant.After(b.CreationInstant)
		}
		return a.Transaction.ID.Compare(b.Transaction.ID) < 0
	})
	return roots
}

func (s *Storage) registerOutputs(tx *types.PoolTransaction, idx StorageIndex) {
	for i := range tx.Outputs {
		if tx.Outputs[i].IsSpendable() {
			s.coinCreators[tx.OutputUtxoID(i)] = idx
		}
	}
	if tx.CreatedContract != nil {
		s.contractCreators[*tx.CreatedContract] = idx
	}
}

func (s *Storage) unregisterOutputs(tx *types.PoolTransaction) {
	for i := range tx.Outputs {
		if tx.Outputs[i].IsSpendable() {
			delete(s.coinCreators, tx.OutputUtxoID(i))
		}
	}
	if tx.CreatedContract != nil {
		delete(s.contractCreators, *tx.CreatedContract)
	}
}

func saturatingAdd(a, b uint64) uint64 {
	if sum := a + b; sum >= a {
		return sum
	}
	return ^uint64(0)
}

func saturatingSub(a, b uint64) uint64 {
	if a < b {
		return 0
	}
	return a - b
}
