// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package state provides an in-memory implementation of the persistent
// storage view the pool validates against. It backs tests and development
// networks; production nodes plug their own database-backed view in.
package state

import (
	"sync"

	"github.com/luxfi/txpool/core/types"
)

// ChainState is a mutable, lock-guarded projection of on-chain entities.
// LatestView returns immutable snapshots; mutating the chain state never
// changes a view already handed out.
type ChainState struct {
	mu        sync.RWMutex
	coins     map[types.UtxoID]types.Coin
	messages  map[types.Nonce]types.Message
	contracts map[types.ContractID]struct{}
	blobs     map[types.BlobID]struct{}
}

// NewChainState creates an empty chain state.
func NewChainState() *ChainState {
	return &ChainState{
		coins:     make(map[types.UtxoID]types.Coin),
		messages:  make(map[types.Nonce]types.Message),
		contracts: make(map[types.ContractID]struct{}),
		blobs:     make(map[types.BlobID]struct{}),
	}
}

// AddCoin records an unspent coin.
func (c *ChainState) AddCoin(utxo types.UtxoID, coin types.Coin) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.coins[utxo] = coin
}

// SpendCoin removes a coin.
func (c *ChainState) SpendCoin(utxo types.UtxoID) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.coins, utxo)
}

// AddMessage records an unspent message.
func (c *ChainState) AddMessage(nonce types.Nonce, msg types.Message) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.messages[nonce] = msg
}

// SpendMessage consumes a message.
func (c *ChainState) SpendMessage(nonce types.Nonce) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.messages, nonce)
}

// AddContract records a deployed contract.
func (c *ChainState) AddContract(id types.ContractID) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.contracts[id] = struct{}{}
}

// AddBlob records a committed blob.
func (c *ChainState) AddBlob(id types.BlobID) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.blobs[id] = struct{}{}
}

// DeleteBlob removes a committed blob.
func (c *ChainState) DeleteBlob(id types.BlobID) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.blobs, id)
}

// LatestView returns a consistent snapshot of the current state. The
// snapshot is detached: later mutations of the chain state do not reach it.
func (c *ChainState) LatestView() (*Snapshot, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	snap := &Snapshot{
		coins:     make(map[types.UtxoID]types.Coin, len(c.coins)),
		messages:  make(map[types.Nonce]types.Message, len(c.messages)),
		contracts: make(map[types.ContractID]struct{}, len(c.contracts)),
		blobs:     make(map[types.BlobID]struct{}, len(c.blobs)),
	}
	for k, v := range c.coins {
		snap.coins[k] = v
	}
	for k, v := range c.messages {
		snap.messages[k] = v
	}
	for k := range c.contracts {
		snap.contracts[k] = struct{}{}
	}
	for k := range c.blobs {
		snap.blobs[k] = struct{}{}
	}
	return snap, nil
}

// Snapshot is an immutable view of the chain state.
type Snapshot struct {
	coins     map[types.UtxoID]types.Coin
	messages  map[types.Nonce]types.Message
	contracts map[types.ContractID]struct{}
	blobs     map[types.BlobID]struct{}
}

// Coin returns the unspent coin for the utxo id, or nil if absent.
func (s *Snapshot) Coin(utxo types.UtxoID) (*types.Coin, error) {
	if coin, ok := s.coins[utxo]; ok {
		return &coin, nil
	}
	return nil, nil
}

// Message returns the unspent message for the nonce, or nil if absent.
func (s *Snapshot) Message(nonce types.Nonce) (*types.Message, error) {
	if msg, ok := s.messages[nonce]; ok {
		return &msg, nil
	}
	return nil, nil
}

// ContractExists reports whether the contract is deployed.
func (s *Snapshot) ContractExists(id types.ContractID) (bool, error) {
	_, ok := s.contracts[id]
	return ok, nil
}

// BlobExists reports whether the blob is committed.
func (s *Snapshot) BlobExists(id types.BlobID) (bool, error) {
	_, ok := s.blobs[id]
	return ok, nil
}
