// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package txpool

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/luxfi/txpool/core/state"
	"github.com/luxfi/txpool/core/types"
	"github.com/luxfi/txpool/utils"
)

func id32[T ~[32]byte](n byte) T {
	var v T
	v[0] = n
	return v
}

func txID(n byte) types.TxID             { return id32[types.TxID](n) }
func owner(n byte) types.Address         { return id32[types.Address](n) }
func asset(n byte) types.AssetID         { return id32[types.AssetID](n) }
func contractID(n byte) types.ContractID { return id32[types.ContractID](n) }
func blobID(n byte) types.BlobID         { return id32[types.BlobID](n) }
func nonce(n byte) types.Nonce           { return id32[types.Nonce](n) }

func utxo(tx byte, out uint16) types.UtxoID {
	return types.UtxoID{TxID: txID(tx), OutputIndex: out}
}

func coinInput(u types.UtxoID) types.Input {
	return types.Input{
		Kind:    types.InputCoinSigned,
		UtxoID:  u,
		Owner:   owner(0xAA),
		Amount:  10,
		AssetID: asset(0xBB),
	}
}

func messageInput(n types.Nonce) types.Input {
	return types.Input{
		Kind:   types.InputMessageSigned,
		Nonce:  n,
		Owner:  owner(0xAA),
		Amount: 10,
	}
}

func contractInput(id types.ContractID) types.Input {
	return types.Input{Kind: types.InputContract, ContractID: id}
}

// makeTx builds a script transaction with the given coin inputs and
// numOutputs spendable coin outputs.
func makeTx(id byte, tip, gas uint64, inputs []types.Input, numOutputs int) *types.PoolTransaction {
	outputs := make([]types.Output, numOutputs)
	for i := range outputs {
		outputs[i] = types.Output{
			Kind:    types.OutputCoin,
			To:      owner(0xAA),
			Amount:  1,
			AssetID: asset(0xBB),
		}
	}
	return &types.PoolTransaction{
		ID:           txID(id),
		Kind:         types.Script,
		Tip:          tip,
		MaxGas:       gas,
		MeteredBytes: 100,
		Inputs:       inputs,
		Outputs:      outputs,
	}
}

func blobTx(id byte, tip, gas uint64, blob types.BlobID, inputs []types.Input) *types.PoolTransaction {
	tx := makeTx(id, tip, gas, inputs, 1)
	tx.Kind = types.Blob
	tx.BlobID = &blob
	return tx
}

func createTx(id byte, tip, gas uint64, contract types.ContractID, inputs []types.Input) *types.PoolTransaction {
	tx := makeTx(id, tip, gas, inputs, 1)
	tx.Kind = types.Create
	tx.CreatedContract = &contract
	tx.Outputs = append(tx.Outputs, types.Output{Kind: types.OutputContractCreated, ContractID: contract})
	return tx
}

type testEnv struct {
	chain *state.ChainState
	clock *utils.MockableClock
	pool  *Pool
}

func newTestEnv(t *testing.T, mods ...func(*Config)) *testEnv {
	t.Helper()

	config := DefaultConfig
	config.TTL = 0 // no background behavior unless a test wants it
	for _, mod := range mods {
		mod(&config)
	}
	chain := state.NewChainState()
	clock := utils.NewMockableClock()
	pool, err := New(config, AtomicViewFunc(func() (PersistentStorage, error) {
		return chain.LatestView()
	}), clock, nil)
	require.NoError(t, err)
	return &testEnv{chain: chain, clock: clock, pool: pool}
}

// fund registers the coins the inputs of the transaction spend, so utxo
// validation passes for chain-backed inputs.
func (env *testEnv) fund(tx *types.PoolTransaction) {
	for i := range tx.Inputs {
		in := &tx.Inputs[i]
		switch {
		case in.IsCoin():
			env.chain.AddCoin(in.UtxoID, types.Coin{Owner: in.Owner, Amount: in.Amount, AssetID: in.AssetID})
		case in.IsMessage():
			env.chain.AddMessage(in.Nonce, types.Message{Recipient: in.Owner, Amount: in.Amount})
		case in.Kind == types.InputContract:
			env.chain.AddContract(in.ContractID)
		}
	}
}

// insert funds and inserts, advancing the clock so creation instants are
// strictly ordered.
func (env *testEnv) insert(t *testing.T, tx *types.PoolTransaction) []*types.PoolTransaction {
	t.Helper()

	env.fund(tx)
	env.clock.Advance(time.Millisecond)
	removed, err := env.pool.Insert(tx)
	require.NoError(t, err)
	checkInvariants(t, env.pool)
	return removed
}

// checkInvariants verifies the structural invariants of the pool: the id map
// bijection, the aggregate sums, selection membership, the capacity envelope
// and collision claim exclusivity.
func checkInvariants(t *testing.T, p *Pool) {
	t.Helper()

	// Bijection between the id map and the residents.
	require.Equal(t, int(p.storage.Count()), len(p.txIDToIndex))
	for id, idx := range p.txIDToIndex {
		data := p.storage.Get(idx)
		require.NotNil(t, data)
		require.Equal(t, id, data.Transaction.ID)
	}

	var totalGas, totalBytes uint64
	for idx, data := range p.storage.txs {
		totalGas += data.Transaction.MaxGas
		totalBytes += data.Transaction.MeteredBytes

		// Aggregates equal a full recompute over the descendant closure.
		gas, bytes, tip := recomputeAggregates(p.storage, idx)
		require.Equal(t, gas, data.CumulativeGas, "gas aggregate of %s", data.Transaction.ID)
		require.Equal(t, bytes, data.CumulativeBytes, "bytes aggregate of %s", data.Transaction.ID)
		require.Equal(t, tip, data.CumulativeTip, "tip aggregate of %s", data.Transaction.ID)

		// Selection membership tracks executability.
		require.Equal(t,
			data.Parents.Cardinality() == 0,
			p.selection.Contains(data.Transaction.ID),
			"selection membership of %s", data.Transaction.ID)

		// Edges are symmetric.
		data.Parents.Each(func(parent StorageIndex) bool {
			require.True(t, p.storage.Get(parent).Children.Contains(idx))
			return false
		})
		data.Children.Each(func(child StorageIndex) bool {
			require.True(t, p.storage.Get(child).Parents.Contains(idx))
			return false
		})
	}

	// Running totals and the capacity envelope.
	require.Equal(t, totalGas, p.currentGas)
	require.Equal(t, totalBytes, p.currentBytesSize)
	limits := p.config.PoolLimits
	require.LessOrEqual(t, p.currentGas, limits.MaxGas)
	require.LessOrEqual(t, p.currentBytesSize, limits.MaxBytesSize)
	require.LessOrEqual(t, p.storage.Count(), limits.MaxTxs)

	// Every collision claim points at a resident.
	for _, idx := range p.collision.coinSpenders {
		require.NotNil(t, p.storage.Get(idx))
	}
	for _, idx := range p.collision.messageSpenders {
		require.NotNil(t, p.storage.Get(idx))
	}
	for _, idx := range p.collision.contractCreators {
		require.NotNil(t, p.storage.Get(idx))
	}
	for _, idx := range p.collision.blobUsers {
		require.NotNil(t, p.storage.Get(idx))
	}
}

// recomputeAggregates sums the per-tx fields over the node and its
// transitive descendants.
func recomputeAggregates(s *Storage, root StorageIndex) (gas, bytes, tip uint64) {
	visited := make(map[StorageIndex]struct{})
	stack := []StorageIndex{root}
	for len(stack) > 0 {
		idx := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if _, ok := visited[idx]; ok {
			continue
		}
		visited[idx] = struct{}{}
		data := s.Get(idx)
		gas += data.Transaction.MaxGas
		bytes += data.Transaction.MeteredBytes
		tip += data.Transaction.Tip
		data.Children.Each(func(c StorageIndex) bool {
			stack = append(stack, c)
			return false
		})
	}
	return gas, bytes, tip
}
