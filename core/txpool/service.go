// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package txpool

import (
	"context"
	"errors"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru"
	"github.com/luxfi/geth/event"
	"github.com/luxfi/geth/log"
	"golang.org/x/sync/semaphore"

	"github.com/luxfi/txpool/core/types"
)

// ErrServiceClosed is returned by submissions racing a shutdown.
var ErrServiceClosed = errors.New("txpool service closed")

// Service is the asynchronous front-end of the pool. Heavy verification
// (signatures, predicates, structural checks) runs on a bounded worker pool
// before the pool lock is taken; the pre-lock phase honors cancellation and
// leaves no side effects when it aborts. The service also owns the status
// event feed and the periodic TTL prune.
type Service struct {
	pool     *Pool
	verifier TxVerifier

	heavy *semaphore.Weighted

	statusFeed event.Feed
	scope      event.SubscriptionScope

	// dropped remembers why recently squeezed transactions left the pool, so
	// status queries keep answering for a while after the drop.
	dropped *lru.Cache

	wg   sync.WaitGroup
	quit chan struct{}
	once sync.Once

	log log.Logger
}

// NewService wraps the pool with the asynchronous submission front-end.
func NewService(pool *Pool, verifier TxVerifier, logger log.Logger) (*Service, error) {
	dropped, err := lru.New(pool.config.DroppedCacheSize)
	if err != nil {
		return nil, err
	}
	s := &Service{
		pool:     pool,
		verifier: verifier,
		heavy:    semaphore.NewWeighted(int64(pool.config.HeavyWorkParallelism)),
		dropped:  dropped,
		quit:     make(chan struct{}),
		log:      logger,
	}
	if ttl := pool.config.TTL; ttl > 0 {
		s.wg.Add(1)
		go s.pruneLoop(ttl)
	}
	return s, nil
}

// SubmitAndWait verifies and inserts the transaction, returning the residents
// squeezed out to admit it. Verification runs on the bounded worker pool and
// is cancellable; once the pool lock is taken the insert is not.
func (s *Service) SubmitAndWait(ctx context.Context, tx *types.PoolTransaction) ([]*types.PoolTransaction, error) {
	select {
	case <-s.quit:
		return nil, ErrServiceClosed
	default:
	}
	if err := s.heavy.Acquire(ctx, 1); err != nil {
		return nil, err
	}
	view, err := s.pool.stateProvider.LatestView()
	if err != nil {
		s.heavy.Release(1)
		return nil, err
	}
	err = preVerify(ctx, tx, view, s.verifier, &s.pool.config)
	s.heavy.Release(1)
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	removed, err := s.pool.Insert(tx)
	if err != nil {
		return nil, err
	}
	s.statusFeed.Send(TxStatusEvent{TxID: tx.ID, Status: TxStatusSubmitted})
	s.markSqueezed(removed, errDisplaced)
	return removed, nil
}

// Submit runs SubmitAndWait on its own goroutine. Failures are only logged;
// the status feed carries no event for a rejected submission.
func (s *Service) Submit(ctx context.Context, tx *types.PoolTransaction) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		if _, err := s.SubmitAndWait(ctx, tx); err != nil {
			if s.log != nil {
				s.log.Trace("Rejected transaction", "tx", tx.ID, "err", err)
			}
		}
	}()
}

// ExtractTransactionsForBlock produces the next block batch and marks every
// member included.
func (s *Service) ExtractTransactionsForBlock() ([]*types.PoolTransaction, error) {
	txs, err := s.pool.ExtractTransactionsForBlock()
	if err != nil {
		return nil, err
	}
	for _, tx := range txs {
		s.statusFeed.Send(TxStatusEvent{TxID: tx.ID, Status: TxStatusIncluded})
	}
	return txs, nil
}

// Status reports the pool's view of a transaction: submitted while resident,
// squeezed while its drop reason is still cached, unknown otherwise.
func (s *Service) Status(txID types.TxID) (TxStatus, error) {
	if s.pool.Has(txID) {
		return TxStatusSubmitted, nil
	}
	if reason, ok := s.dropped.Get(txID); ok {
		err, _ := reason.(error)
		return TxStatusSqueezed, err
	}
	return TxStatusUnknown, nil
}

// SubscribeStatusEvents registers a subscription for status transitions.
func (s *Service) SubscribeStatusEvents(ch chan<- TxStatusEvent) event.Subscription {
	return s.scope.Track(s.statusFeed.Subscribe(ch))
}

// Pool returns the wrapped pool.
func (s *Service) Pool() *Pool {
	return s.pool
}

// Close stops the prune loop, waits for in-flight submissions and tears down
// the subscriptions.
func (s *Service) Close() {
	s.once.Do(func() {
		close(s.quit)
	})
	s.wg.Wait()
	s.scope.Close()
}

func (s *Service) pruneLoop(ttl time.Duration) {
	defer s.wg.Done()

	interval := ttl / 2
	if interval < time.Second {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			removed, err := s.pool.Prune()
			if err != nil {
				if s.log != nil {
					s.log.Warn("Prune failed", "err", err)
				}
				continue
			}
			s.markSqueezed(removed, errExpired)
		case <-s.quit:
			return
		}
	}
}

var (
	errExpired   = errors.New("transaction expired")
	errDisplaced = errors.New("displaced by more valuable transaction")
)

func (s *Service) markSqueezed(removed []*types.PoolTransaction, reason error) {
	for _, tx := range removed {
		s.dropped.Add(tx.ID, reason)
		s.statusFeed.Send(TxStatusEvent{TxID: tx.ID, Status: TxStatusSqueezed, Reason: reason})
	}
}
