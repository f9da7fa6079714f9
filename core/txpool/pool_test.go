// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package txpool

import (
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/luxfi/txpool/core/types"
)

func TestInsertAndFind(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)

	tx := makeTx(1, 10, 10, []types.Input{coinInput(utxo(0xF0, 0))}, 1)
	removed := env.insert(t, tx)
	require.Empty(t, removed)

	require.Equal(t, tx, env.pool.FindOne(txID(1)))
	require.Nil(t, env.pool.FindOne(txID(2)))
	require.True(t, env.pool.Has(txID(1)))

	// The same transaction is not staged twice.
	env.clock.Advance(time.Millisecond)
	_, err := env.pool.Insert(tx)
	require.ErrorIs(t, err, ErrTxAlreadyKnown)
}

func TestInsertMissingUtxo(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)

	tx := makeTx(1, 10, 10, []types.Input{coinInput(utxo(0xF0, 0))}, 1)
	_, err := env.pool.Insert(tx) // not funded
	require.ErrorIs(t, err, ErrUtxoNotFound)
	require.False(t, env.pool.Has(txID(1)))
}

// Displacement by tip: a lower tip is rejected as not profitable, a higher
// tip squeezes the resident out.
func TestDisplacementByTip(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)

	a := makeTx(1, 100, 10, []types.Input{coinInput(utxo(0xC0, 0))}, 1)
	env.insert(t, a)

	b := makeTx(2, 50, 10, []types.Input{coinInput(utxo(0xC0, 0))}, 1)
	env.fund(b)
	env.clock.Advance(time.Millisecond)
	_, err := env.pool.Insert(b)
	require.ErrorIs(t, err, ErrCollisionNotProfitable)

	b2 := makeTx(3, 200, 10, []types.Input{coinInput(utxo(0xC0, 0))}, 1)
	removed := env.insert(t, b2)
	require.Len(t, removed, 1)
	require.Equal(t, txID(1), removed[0].ID)

	require.False(t, env.pool.Has(txID(1)))
	require.False(t, env.pool.selection.Contains(txID(1)))
	require.True(t, env.pool.Has(txID(3)))
}

// Displacing a resident drags its dependent subtree out with it.
func TestDisplacementRemovesSubtree(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)

	parent := makeTx(1, 100, 10, []types.Input{coinInput(utxo(0xC0, 0))}, 1)
	env.insert(t, parent)
	child := makeTx(2, 10, 10, []types.Input{coinInput(parent.OutputUtxoID(0))}, 1)
	env.insert(t, child)

	// Beats the cumulative tip 110 of the resident subtree.
	usurper := makeTx(3, 200, 10, []types.Input{coinInput(utxo(0xC0, 0))}, 1)
	removed := env.insert(t, usurper)
	require.Len(t, removed, 2)
	require.False(t, env.pool.Has(txID(1)))
	require.False(t, env.pool.Has(txID(2)))
}

// Dependent cannot evict: a full pool rejects dependent work even when
// low-ratio residents exist.
func TestDependentCannotEvict(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t, func(c *Config) {
		c.PoolLimits.MaxTxs = 2
	})

	p := makeTx(1, 100, 10, []types.Input{coinInput(utxo(0xC0, 0))}, 1)
	env.insert(t, p)
	cheap := makeTx(2, 1, 10, []types.Input{coinInput(utxo(0xC1, 0))}, 1)
	env.insert(t, cheap)

	dependent := makeTx(3, 1000, 10, []types.Input{coinInput(p.OutputUtxoID(0))}, 1)
	env.fund(dependent)
	env.clock.Advance(time.Millisecond)
	_, err := env.pool.Insert(dependent)
	require.ErrorIs(t, err, ErrPoolLimitHit)
	checkInvariants(t, env.pool)
}

// Subtree eviction on limits: an executable newcomer with a better ratio
// evicts the worst subtree root and its whole subtree.
func TestSubtreeEvictionOnLimits(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t, func(c *Config) {
		c.PoolLimits.MaxGas = 105
	})

	// Worst subtree: root 5/50 plus child 5/50 => cumulative 10/100.
	root := makeTx(1, 5, 50, []types.Input{coinInput(utxo(0xC0, 0))}, 1)
	env.insert(t, root)
	child := makeTx(2, 5, 50, []types.Input{coinInput(root.OutputUtxoID(0))}, 1)
	env.insert(t, child)

	// tip/gas = 100 beats 0.1; needs the subtree's gas credited back.
	x := makeTx(3, 1000, 10, []types.Input{coinInput(utxo(0xC1, 0))}, 1)
	removed := env.insert(t, x)
	require.Len(t, removed, 2)
	require.True(t, env.pool.Has(txID(3)))
	require.False(t, env.pool.Has(txID(1)))
	require.False(t, env.pool.Has(txID(2)))
}

// No-regress eviction: a newcomer whose ratio does not beat the worst
// subtree root is refused instead of evicting it.
func TestEvictionRequiresStrictlyBetterRatio(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t, func(c *Config) {
		c.PoolLimits.MaxGas = 100
	})

	resident := makeTx(1, 10, 100, []types.Input{coinInput(utxo(0xC0, 0))}, 1)
	env.insert(t, resident)

	// Equal ratio: refused.
	equal := makeTx(2, 1, 10, []types.Input{coinInput(utxo(0xC1, 0))}, 1)
	env.fund(equal)
	env.clock.Advance(time.Millisecond)
	_, err := env.pool.Insert(equal)
	require.ErrorIs(t, err, ErrPoolLimitHit)

	// Strictly better ratio: admitted.
	better := makeTx(3, 2, 10, []types.Input{coinInput(utxo(0xC2, 0))}, 1)
	removed := env.insert(t, better)
	require.Len(t, removed, 1)
	require.Equal(t, txID(1), removed[0].ID)
}

// Blob duplicate against persistent storage, before and after deletion.
func TestBlobDuplicate(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)

	env.chain.AddBlob(blobID(0xBB))
	tx := blobTx(1, 10, 10, blobID(0xBB), []types.Input{coinInput(utxo(0xC0, 0))})
	env.fund(tx)
	env.clock.Advance(time.Millisecond)
	_, err := env.pool.Insert(tx)
	var taken *BlobIDAlreadyTakenError
	require.ErrorAs(t, err, &taken)

	env.chain.DeleteBlob(blobID(0xBB))
	removed := env.insert(t, tx)
	require.Empty(t, removed)
}

func TestBlobDuplicateAgainstResident(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)

	first := blobTx(1, 10, 10, blobID(0xBB), []types.Input{coinInput(utxo(0xC0, 0))})
	env.insert(t, first)

	second := blobTx(2, 1000, 10, blobID(0xBB), []types.Input{coinInput(utxo(0xC1, 0))})
	env.fund(second)
	env.clock.Advance(time.Millisecond)
	_, err := env.pool.Insert(second)
	var taken *BlobIDAlreadyTakenError
	require.ErrorAs(t, err, &taken)
}

func TestBlacklistedInsert(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t, func(c *Config) {
		c.BlackList = NewBlacklist()
		c.BlackList.Owners.Add(owner(0xAA))
	})

	tx := makeTx(1, 10, 10, []types.Input{coinInput(utxo(0xC0, 0))}, 1)
	env.fund(tx)
	_, err := env.pool.Insert(tx)
	require.ErrorIs(t, err, ErrBlacklistedOwner)
}

// Extract order: under a 15 gas budget only the better of two independent
// transactions is taken; the other stays.
func TestExtractOrder(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t, func(c *Config) {
		c.MaxBlockGas = 15
	})

	a := makeTx(1, 10, 10, []types.Input{coinInput(utxo(0xC0, 0))}, 1)
	env.insert(t, a)
	b := makeTx(2, 20, 10, []types.Input{coinInput(utxo(0xC1, 0))}, 1)
	env.insert(t, b)

	got, err := env.pool.ExtractTransactionsForBlock()
	require.NoError(t, err)
	require.Len(t, got, 1)
	require.Equal(t, txID(2), got[0].ID)
	require.True(t, env.pool.Has(txID(1)))
	checkInvariants(t, env.pool)
}

// Promotion on extract: the child is selected in the pass after its parent.
func TestExtractPromotesChild(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t, func(c *Config) {
		c.MaxBlockGas = 10
	})

	p := makeTx(1, 5, 5, []types.Input{coinInput(utxo(0xC0, 0))}, 1)
	env.insert(t, p)
	c := makeTx(2, 100, 5, []types.Input{coinInput(p.OutputUtxoID(0))}, 1)
	env.insert(t, c)

	got, err := env.pool.ExtractTransactionsForBlock()
	require.NoError(t, err)
	require.Len(t, got, 2)
	require.Equal(t, txID(1), got[0].ID)
	require.Equal(t, txID(2), got[1].ID)
	require.EqualValues(t, 0, env.pool.storage.Count())
	checkInvariants(t, env.pool)
}

// Extract leaves an orphaned, unselected child executable for the next block.
func TestExtractPromotesLeftoverChild(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t, func(c *Config) {
		c.MaxBlockGas = 10
	})

	p := makeTx(1, 5, 10, []types.Input{coinInput(utxo(0xC0, 0))}, 1)
	env.insert(t, p)
	// Child too big for the remaining budget of the first block.
	c := makeTx(2, 100, 10, []types.Input{coinInput(p.OutputUtxoID(0))}, 1)
	env.insert(t, c)

	got, err := env.pool.ExtractTransactionsForBlock()
	require.NoError(t, err)
	require.Len(t, got, 1)
	require.Equal(t, txID(1), got[0].ID)
	checkInvariants(t, env.pool)

	got, err = env.pool.ExtractTransactionsForBlock()
	require.NoError(t, err)
	require.Len(t, got, 1)
	require.Equal(t, txID(2), got[0].ID)
}

func TestPruneTTL(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t, func(c *Config) {
		c.TTL = time.Minute
	})

	old := makeTx(1, 10, 10, []types.Input{coinInput(utxo(0xC0, 0))}, 1)
	env.insert(t, old)
	child := makeTx(2, 10, 10, []types.Input{coinInput(old.OutputUtxoID(0))}, 1)
	env.insert(t, child)

	env.clock.Advance(2 * time.Minute)
	fresh := makeTx(3, 10, 10, []types.Input{coinInput(utxo(0xC1, 0))}, 1)
	env.insert(t, fresh)

	removed, err := env.pool.Prune()
	require.NoError(t, err)
	require.Len(t, removed, 2)
	require.False(t, env.pool.Has(txID(1)))
	require.False(t, env.pool.Has(txID(2)))
	require.True(t, env.pool.Has(txID(3)))
	checkInvariants(t, env.pool)
}

func TestPruneDisabled(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)

	tx := makeTx(1, 10, 10, []types.Input{coinInput(utxo(0xC0, 0))}, 1)
	env.insert(t, tx)
	env.clock.Advance(24 * time.Hour)

	removed, err := env.pool.Prune()
	require.NoError(t, err)
	require.Empty(t, removed)
	require.True(t, env.pool.Has(txID(1)))
}

func TestCanInsertDoesNotMutate(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)

	resident := makeTx(1, 100, 10, []types.Input{coinInput(utxo(0xC0, 0))}, 1)
	env.insert(t, resident)

	// A profitable displacement dry-runs fine and changes nothing.
	usurper := makeTx(2, 200, 10, []types.Input{coinInput(utxo(0xC0, 0))}, 1)
	env.fund(usurper)
	require.NoError(t, env.pool.CanInsert(usurper))
	require.True(t, env.pool.Has(txID(1)))
	require.False(t, env.pool.Has(txID(2)))
	checkInvariants(t, env.pool)

	// A rejection reports the same error the real insert would.
	weak := makeTx(3, 50, 10, []types.Input{coinInput(utxo(0xC0, 0))}, 1)
	env.fund(weak)
	require.ErrorIs(t, env.pool.CanInsert(weak), ErrCollisionNotProfitable)
}

// Extract determinism and topological order over randomized pools.
func TestRandomizedInvariants(t *testing.T) {
	t.Parallel()

	rng := rand.New(rand.NewSource(42))
	env := newTestEnv(t, func(c *Config) {
		c.PoolLimits = PoolLimits{MaxGas: 5000, MaxBytesSize: 100_000, MaxTxs: 64}
		c.MaxBlockGas = 300
		c.TTL = time.Hour
	})

	var nextID byte = 1
	var spendable []types.UtxoID

	for round := 0; round < 400; round++ {
		switch op := rng.Intn(10); {
		case op < 6: // insert
			var inputs []types.Input
			if len(spendable) > 0 && rng.Intn(2) == 0 {
				// Spend a pool output: a dependent transaction.
				pick := rng.Intn(len(spendable))
				inputs = append(inputs, coinInput(spendable[pick]))
				spendable = append(spendable[:pick], spendable[pick+1:]...)
			} else {
				inputs = append(inputs, coinInput(utxo(nextID, uint16(rng.Intn(3)))))
			}
			tx := makeTx(nextID, uint64(rng.Intn(100)+1), uint64(rng.Intn(90)+10), inputs, rng.Intn(2)+1)
			nextID++
			if nextID == 0 {
				nextID = 1
			}
			env.fund(tx)
			env.clock.Advance(time.Millisecond)
			if _, err := env.pool.Insert(tx); err == nil {
				for i := range tx.Outputs {
					spendable = append(spendable, tx.OutputUtxoID(i))
				}
			}
		case op < 8: // extract
			got, err := env.pool.ExtractTransactionsForBlock()
			require.NoError(t, err)
			requireTopological(t, got)
		default: // prune occasionally
			if rng.Intn(4) == 0 {
				env.clock.Advance(30 * time.Minute)
			}
			_, err := env.pool.Prune()
			require.NoError(t, err)
		}
		checkInvariants(t, env.pool)
	}
}

// requireTopological asserts no extracted child precedes a parent: every
// input spending an extracted output must appear after its producer.
func requireTopological(t *testing.T, got []*types.PoolTransaction) {
	t.Helper()

	seen := make(map[types.TxID]int)
	for i, tx := range got {
		seen[tx.ID] = i
	}
	for i, tx := range got {
		for j := range tx.Inputs {
			in := &tx.Inputs[j]
			if !in.IsCoin() {
				continue
			}
			if parentPos, ok := seen[in.UtxoID.TxID]; ok {
				require.Less(t, parentPos, i, "child %s before parent %s", tx.ID, in.UtxoID.TxID)
			}
		}
	}
}

func TestConfigSanitize(t *testing.T) {
	t.Parallel()

	_, err := Config{}.Sanitize()
	require.Error(t, err)

	conf := DefaultConfig
	conf.HeavyWorkParallelism = 0
	conf.MaxTxSize = 0
	got, err := conf.Sanitize()
	require.NoError(t, err)
	require.Equal(t, DefaultConfig.HeavyWorkParallelism, got.HeavyWorkParallelism)
	require.Equal(t, DefaultConfig.MaxTxSize, got.MaxTxSize)
}
