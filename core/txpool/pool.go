// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package txpool implements the staging area for candidate transactions of a
// utxo chain: it validates submissions against a snapshot of on-chain state,
// maintains the dependency graph among residents, arbitrates input-claim
// collisions, enforces the pool capacity envelope through eviction and
// produces gas-bounded, dependency-respecting batches for the block producer.
package txpool

import (
	"fmt"
	"sort"
	"sync"
	"time"

	mapset "github.com/deckarep/golang-set/v2"
	"github.com/luxfi/geth/log"

	"github.com/luxfi/txpool/core/types"
	"github.com/luxfi/txpool/utils"
)

// Pool orchestrates the dependency graph, the collision index and the
// selection structure. All mutation is serialized on one lock; the only
// operation that may block before taking it is the snapshot fetch.
type Pool struct {
	config Config

	mu        sync.RWMutex
	storage   *Storage
	collision *CollisionManager
	selection *SelectionAlgorithm

	stateProvider AtomicView

	txIDToIndex      map[types.TxID]StorageIndex
	currentGas       uint64
	currentBytesSize uint64

	clock utils.Clock
	log   log.Logger
}

// New creates a transaction pool with the given snapshot provider.
func New(config Config, stateProvider AtomicView, clock utils.Clock, logger log.Logger) (*Pool, error) {
	config, err := config.Sanitize()
	if err != nil {
		return nil, err
	}
	if clock == nil {
		clock = utils.RealClock{}
	}
	return &Pool{
		config:        config,
		storage:       NewStorage(clock),
		collision:     NewCollisionManager(),
		selection:     NewSelectionAlgorithm(),
		stateProvider: stateProvider,
		txIDToIndex:   make(map[types.TxID]StorageIndex),
		clock:         clock,
		log:           logger,
	}, nil
}

// Config returns the pool configuration.
func (p *Pool) Config() Config {
	return p.config
}

// Insert stages the transaction. On success it returns the residents that
// were squeezed out to make room (displaced collisions and evicted
// subtrees); on failure the pool is left unchanged.
func (p *Pool) Insert(tx *types.PoolTransaction) ([]*types.PoolTransaction, error) {
	view, err := p.stateProvider.LatestView()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDatabase, err)
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	removedIdx, deps, err := p.prepareInsert(tx, view)
	if err != nil {
		rejectedMeter.Mark(1)
		return nil, err
	}

	var removed []*types.PoolTransaction
	for _, idx := range removedIdx {
		removed = append(removed, p.storage.RemoveTransactionAndDependentsSubtree(idx)...)
	}

	idx := p.storage.StoreTransaction(tx, deps)
	p.txIDToIndex[tx.ID] = idx
	p.currentGas = saturatingAdd(p.currentGas, tx.MaxGas)
	p.currentBytesSize = saturatingAdd(p.currentBytesSize, tx.MeteredBytes)

	if deps.Cardinality() == 0 {
		p.selection.NewExecutableTransaction(idx, p.storage.Get(idx))
	}
	p.onRemoved(removed)
	p.collision.OnStoredTransaction(tx, idx)

	insertedMeter.Mark(1)
	squeezedMeter.Mark(int64(len(removed)))
	p.updateGauges()
	if p.log != nil {
		p.log.Trace("Pooled new transaction", "tx", tx.ID, "tip", tx.Tip, "gas", tx.MaxGas, "squeezed", len(removed))
	}
	return removed, nil
}

// CanInsert is a pure dry run of Insert: it runs every check up to and
// including the capacity check without mutating the pool.
func (p *Pool) CanInsert(tx *types.PoolTransaction) error {
	view, err := p.stateProvider.LatestView()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrDatabase, err)
	}

	p.mu.RLock()
	defer p.mu.RUnlock()

	_, _, err = p.prepareInsert(tx, view)
	return err
}

// prepareInsert runs the full admission sequence and returns the set of
// subtree roots to remove (evictions plus displaced collisions) and the
// dependencies of the newcomer. It performs no mutation.
func (p *Pool) prepareInsert(tx *types.PoolTransaction, view PersistentStorage) ([]StorageIndex, mapset.Set[StorageIndex], error) {
	if _, ok := p.txIDToIndex[tx.ID]; ok {
		return nil, nil, ErrTxAlreadyKnown
	}
	if err := p.config.BlackList.Check(tx); err != nil {
		return nil, nil, err
	}
	if err := p.checkBlobDoesNotExist(tx, view); err != nil {
		return nil, nil, err
	}
	if err := p.storage.ValidateInputs(tx, view, p.config.UtxoValidation); err != nil {
		return nil, nil, err
	}
	colliding := p.collision.CollectCollidingTransactions(tx)
	deps := p.storage.CollectTransactionDependencies(tx)
	hasDeps := deps.Cardinality() > 0
	if err := p.collision.CanStoreTransaction(tx, hasDeps, colliding, deps, p.storage); err != nil {
		return nil, nil, err
	}
	if err := p.storage.CanStoreTransaction(deps, sortedCollisionKeys(colliding)); err != nil {
		return nil, nil, err
	}
	evict, err := p.checkPoolSizeAvailable(tx, colliding, deps)
	if err != nil {
		return nil, nil, err
	}

	// Displaced collisions are removed whether or not the capacity check
	// needed them; union the two sets.
	toRemove := mapset.NewThreadUnsafeSet[StorageIndex](evict...)
	for idx := range colliding {
		toRemove.Add(idx)
	}
	ordered := toRemove.ToSlice()
	sortStorageIndices(ordered)
	return ordered, deps, nil
}

// checkPoolSizeAvailable computes the eviction set needed to admit the
// transaction under the capacity envelope:
//
//   - if the pool has room, nothing is evicted;
//   - crediting back the colliding residents (they are removed anyway) may
//     already suffice;
//   - a dependent transaction may not evict unrelated work;
//   - an executable transaction may evict the worst-ratio subtree roots, but
//     only those whose cumulative tip/gas ratio is strictly below its own.
func (p *Pool) checkPoolSizeAvailable(
	tx *types.PoolTransaction,
	colliding map[StorageIndex][]CollisionReason,
	deps mapset.Set[StorageIndex],
) ([]StorageIndex, error) {
	limits := p.config.PoolLimits

	gasLeft := saturatingAdd(p.currentGas, tx.MaxGas)
	bytesLeft := saturatingAdd(p.currentBytesSize, tx.MeteredBytes)
	txsLeft := p.storage.Count() + 1
	within := func() bool {
		return gasLeft <= limits.MaxGas && bytesLeft <= limits.MaxBytesSize && txsLeft <= limits.MaxTxs
	}
	if within() {
		return nil, nil
	}

	var evict []StorageIndex
	credited := mapset.NewThreadUnsafeSet[StorageIndex]()
	for _, idx := range sortedCollisionKeys(colliding) {
		data := p.storage.Get(idx)
		gasLeft = saturatingSub(gasLeft, data.CumulativeGas)
		bytesLeft = saturatingSub(bytesLeft, data.CumulativeBytes)
		txsLeft = saturatingSub(txsLeft, 1)
		evict = append(evict, idx)
		credited.Add(idx)
		if within() {
			return evict, nil
		}
	}

	if deps.Cardinality() > 0 {
		return nil, ErrPoolLimitHit
	}

	for _, idx := range p.storage.GetWorstRatioTipGasSubtreeRoots() {
		if within() {
			break
		}
		if credited.Contains(idx) {
			continue
		}
		data := p.storage.Get(idx)
		if cmpRatio(data.CumulativeTip, data.CumulativeGas, tx.Tip, tx.MaxGas) >= 0 {
			return nil, ErrPoolLimitHit
		}
		gasLeft = saturatingSub(gasLeft, data.CumulativeGas)
		bytesLeft = saturatingSub(bytesLeft, data.CumulativeBytes)
		txsLeft = saturatingSub(txsLeft, 1)
		evict = append(evict, idx)
	}
	if !within() {
		return nil, ErrPoolLimitHit
	}
	return evict, nil
}

// ExtractTransactionsForBlock selects the best batch under the configured
// block gas limit, removes it from the pool and promotes the children it
// orphans. The returned order is deterministic and topological.
func (p *Pool) ExtractTransactionsForBlock() ([]*types.PoolTransaction, error) {
	start := time.Now()
	defer func() { extractTimer.UpdateSince(start) }()

	p.mu.Lock()
	defer p.mu.Unlock()

	selected := p.selection.GatherBestTxs(Constraints{MaxGas: p.config.MaxBlockGas}, p.storage)

	extracted := make([]*types.PoolTransaction, 0, len(selected))
	for _, idx := range selected {
		data, err := p.storage.RemoveTransactionWithoutDependencies(idx)
		if err != nil {
			return nil, err
		}
		tx := data.Transaction
		p.collision.OnRemovedTransaction(tx)
		p.selection.OnRemovedTransaction(tx)
		delete(p.txIDToIndex, tx.ID)
		p.currentGas = saturatingSub(p.currentGas, tx.MaxGas)
		p.currentBytesSize = saturatingSub(p.currentBytesSize, tx.MeteredBytes)

		// Children orphaned by this removal become executable.
		data.Children.Each(func(c StorageIndex) bool {
			child := p.storage.Get(c)
			if child != nil && child.Parents.Cardinality() == 0 {
				p.selection.NewExecutableTransaction(c, child)
			}
			return false
		})
		extracted = append(extracted, tx)
	}
	extractedMeter.Mark(int64(len(extracted)))
	p.updateGauges()
	if p.log != nil && len(extracted) > 0 {
		p.log.Debug("Extracted transactions for block", "count", len(extracted))
	}
	return extracted, nil
}

// Prune removes every resident older than the configured TTL together with
// its dependent subtree. With a zero TTL it is a no-op.
func (p *Pool) Prune() ([]*types.PoolTransaction, error) {
	if p.config.TTL <= 0 {
		return nil, nil
	}
	deadline := p.clock.Time().Add(-p.config.TTL)

	p.mu.Lock()
	defer p.mu.Unlock()

	var expired []StorageIndex
	for idx, data := range p.storage.txs {
		if data.CreationInstant.Before(deadline) {
			expired = append(expired, idx)
		}
	}
	sortStorageIndices(expired)

	var removed []*types.PoolTransaction
	for _, idx := range expired {
		removed = append(removed, p.storage.RemoveTransactionAndDependentsSubtree(idx)...)
	}
	p.onRemoved(removed)
	prunedMeter.Mark(int64(len(removed)))
	p.updateGauges()
	if p.log != nil && len(removed) > 0 {
		p.log.Debug("Pruned expired transactions", "count", len(removed))
	}
	return removed, nil
}

// FindOne returns the resident transaction with the given id, or nil.
func (p *Pool) FindOne(txID types.TxID) *types.PoolTransaction {
	p.mu.RLock()
	defer p.mu.RUnlock()

	idx, ok := p.txIDToIndex[txID]
	if !ok {
		return nil
	}
	return p.storage.Get(idx).Transaction
}

// Has reports whether the transaction is resident.
func (p *Pool) Has(txID types.TxID) bool {
	p.mu.RLock()
	defer p.mu.RUnlock()

	_, ok := p.txIDToIndex[txID]
	return ok
}

// Stats returns the resident count, staged gas and staged bytes.
func (p *Pool) Stats() (count, gas, bytes uint64) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	return p.storage.Count(), p.currentGas, p.currentBytesSize
}

func (p *Pool) checkBlobDoesNotExist(tx *types.PoolTransaction, view PersistentStorage) error {
	if tx.Kind != types.Blob || tx.BlobID == nil {
		return nil
	}
	exists, err := view.BlobExists(*tx.BlobID)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrDatabase, err)
	}
	if exists {
		return &BlobIDAlreadyTakenError{BlobID: *tx.BlobID}
	}
	return nil
}

// onRemoved updates the collision index, the selection structure, the id map
// and the running totals for every removed transaction.
func (p *Pool) onRemoved(removed []*types.PoolTransaction) {
	for _, tx := range removed {
		p.collision.OnRemovedTransaction(tx)
		p.selection.OnRemovedTransaction(tx)
		delete(p.txIDToIndex, tx.ID)
		p.currentGas = saturatingSub(p.currentGas, tx.MaxGas)
		p.currentBytesSize = saturatingSub(p.currentBytesSize, tx.MeteredBytes)
	}
}

func (p *Pool) updateGauges() {
	pendingGauge.Update(int64(p.storage.Count()))
	gasGauge.Update(int64(p.currentGas))
	bytesGauge.Update(int64(p.currentBytesSize))
}

func sortStorageIndices(s []StorageIndex) {
	sort.Slice(s, func(i, j int) bool { return s[i] < s[j] })
}
