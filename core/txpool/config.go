// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package txpool

import (
	"errors"
	"time"

	mapset "github.com/deckarep/golang-set/v2"

	"github.com/luxfi/txpool/core/types"
)

const (
	// txMaxSize is the maximum metered size a single transaction can have.
	// Larger transactions are significantly harder and more expensive to
	// propagate and take more pool capacity to stage.
	txMaxSize = 128 * 1024
)

// PoolLimits is the capacity envelope of the pool.
type PoolLimits struct {
	MaxGas       uint64
	MaxBytesSize uint64
	MaxTxs       uint64
}

// Blacklist holds the entities the pool refuses to stage work for.
type Blacklist struct {
	Owners         mapset.Set[types.Address]
	Assets         mapset.Set[types.AssetID]
	Contracts      mapset.Set[types.ContractID]
	PredicateRoots mapset.Set[types.Bytes32]
}

// NewBlacklist returns an empty blacklist.
func NewBlacklist() Blacklist {
	return Blacklist{
		Owners:         mapset.NewThreadUnsafeSet[types.Address](),
		Assets:         mapset.NewThreadUnsafeSet[types.AssetID](),
		Contracts:      mapset.NewThreadUnsafeSet[types.ContractID](),
		PredicateRoots: mapset.NewThreadUnsafeSet[types.Bytes32](),
	}
}

// Check returns a blacklist error if any entity the transaction touches is
// forbidden.
func (b *Blacklist) Check(tx *types.PoolTransaction) error {
	for i := range tx.Inputs {
		in := &tx.Inputs[i]
		if in.IsCoin() || in.IsMessage() {
			if b.Owners.Contains(in.Owner) {
				return ErrBlacklistedOwner
			}
		}
		if in.IsCoin() && b.Assets.Contains(in.AssetID) {
			return ErrBlacklistedAsset
		}
		if in.Kind == types.InputContract && b.Contracts.Contains(in.ContractID) {
			return ErrBlacklistedContract
		}
		if in.IsPredicate() && b.PredicateRoots.Contains(in.PredicateRoot) {
			return ErrBlacklistedPredicate
		}
	}
	if tx.CreatedContract != nil && b.Contracts.Contains(*tx.CreatedContract) {
		return ErrBlacklistedContract
	}
	return nil
}

// Config are the configuration parameters of the transaction pool.
type Config struct {
	PoolLimits PoolLimits // Capacity envelope enforced through eviction

	MaxBlockGas uint64 // Gas constraint handed to the selection algorithm

	UtxoValidation bool // If false, skip utxo existence checks (test networks)

	BlackList Blacklist // Entities the pool refuses to serve

	// TTL is the maximum residency of a transaction; zero disables pruning.
	TTL time.Duration

	// HeavyWorkParallelism bounds the number of concurrent heavy
	// verifications run before the pool lock is taken.
	HeavyWorkParallelism int

	// MaxTxSize is the maximum metered size of a single transaction.
	MaxTxSize uint64

	// DroppedCacheSize bounds the recently-squeezed status cache.
	DroppedCacheSize int
}

// DefaultConfig contains the default configurations for the transaction pool.
var DefaultConfig = Config{
	PoolLimits: PoolLimits{
		MaxGas:       30_000_000 * 10,
		MaxBytesSize: 10 * 1024 * 1024,
		MaxTxs:       4096,
	},
	MaxBlockGas:          30_000_000,
	UtxoValidation:       true,
	TTL:                  5 * time.Minute,
	HeavyWorkParallelism: 4,
	MaxTxSize:            txMaxSize,
	DroppedCacheSize:     2048,
}

// Sanitize checks the provided user configurations and changes anything that
// is unreasonable or unworkable.
func (config Config) Sanitize() (Config, error) {
	conf := config
	if conf.PoolLimits.MaxGas == 0 || conf.PoolLimits.MaxTxs == 0 || conf.PoolLimits.MaxBytesSize == 0 {
		return conf, errors.New("pool limits must be non-zero")
	}
	if conf.MaxBlockGas == 0 {
		return conf, errors.New("max block gas must be non-zero")
	}
	if conf.HeavyWorkParallelism < 1 {
		conf.HeavyWorkParallelism = DefaultConfig.HeavyWorkParallelism
	}
	if conf.MaxTxSize == 0 {
		conf.MaxTxSize = DefaultConfig.MaxTxSize
	}
	if conf.DroppedCacheSize < 1 {
		conf.DroppedCacheSize = DefaultConfig.DroppedCacheSize
	}
	if conf.BlackList.Owners == nil {
		conf.BlackList = NewBlacklist()
	}
	return conf, nil
}
