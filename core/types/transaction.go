// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package types

// TxKind enumerates the transaction variants accepted by the pool.
type TxKind uint8

const (
	Script TxKind = iota
	Create
	Mint
	Upgrade
	Upload
	Blob
)

// String implements fmt.Stringer.
func (k TxKind) String() string {
	switch k {
	case Script:
		return "script"
	case Create:
		return "create"
	case Mint:
		return "mint"
	case Upgrade:
		return "upgrade"
	case Upload:
		return "upload"
	case Blob:
		return "blob"
	default:
		return "unknown"
	}
}

// InputKind enumerates the input variants of a transaction.
type InputKind uint8

const (
	InputCoinSigned InputKind = iota
	InputCoinPredicate
	InputMessageSigned
	InputMessagePredicate
	InputContract
)

// Input is one consumed entity of a transaction. Which fields are meaningful
// depends on Kind: coin inputs carry UtxoID/Owner/Amount/AssetID, message
// inputs carry Nonce/Owner/Amount, contract inputs carry ContractID.
// Predicate inputs additionally carry the predicate root.
type Input struct {
	Kind          InputKind
	UtxoID        UtxoID
	Owner         Address
	Amount        uint64
	AssetID       AssetID
	Nonce         Nonce
	ContractID    ContractID
	PredicateRoot Bytes32
}

// IsCoin reports whether the input spends a coin utxo.
func (in *Input) IsCoin() bool {
	return in.Kind == InputCoinSigned || in.Kind == InputCoinPredicate
}

// IsMessage reports whether the input consumes a cross-layer message.
func (in *Input) IsMessage() bool {
	return in.Kind == InputMessageSigned || in.Kind == InputMessagePredicate
}

// IsPredicate reports whether the input is authorized by a predicate rather
// than a signature.
func (in *Input) IsPredicate() bool {
	return in.Kind == InputCoinPredicate || in.Kind == InputMessagePredicate
}

// OutputKind enumerates the output variants of a transaction.
type OutputKind uint8

const (
	OutputCoin OutputKind = iota
	OutputContract
	OutputChange
	OutputVariable
	OutputContractCreated
)

// Output is one produced entity of a transaction.
type Output struct {
	Kind       OutputKind
	To         Address
	Amount     uint64
	AssetID    AssetID
	ContractID ContractID
}

// IsSpendable reports whether the output materializes a coin that a later
// transaction can consume as an input.
func (out *Output) IsSpendable() bool {
	switch out.Kind {
	case OutputCoin, OutputChange, OutputVariable:
		return true
	default:
		return false
	}
}

// Coin is an unspent transaction output as seen by persistent storage.
type Coin struct {
	Owner   Address
	Amount  uint64
	AssetID AssetID
}

// Message is a cross-layer message as seen by persistent storage.
type Message struct {
	Recipient Address
	Amount    uint64
}

// PoolTransaction is a fully validated candidate transaction staged for block
// inclusion. It is immutable once handed to the pool.
type PoolTransaction struct {
	ID           TxID
	Kind         TxKind
	Tip          uint64
	MaxGas       uint64
	MeteredBytes uint64

	Inputs  []Input
	Outputs []Output

	// CreatedContract is set for Create transactions and names the contract
	// the transaction deploys.
	CreatedContract *ContractID

	// BlobID is set for Blob transactions; it is the content hash of the
	// carried payload.
	BlobID *BlobID
}

// InputContracts returns the contract ids referenced by contract inputs.
func (tx *PoolTransaction) InputContracts() []ContractID {
	var ids []ContractID
	for i := range tx.Inputs {
		if tx.Inputs[i].Kind == InputContract {
			ids = append(ids, tx.Inputs[i].ContractID)
		}
	}
	return ids
}

// OutputUtxoID returns the utxo id of the i-th output.
func (tx *PoolTransaction) OutputUtxoID(i int) UtxoID {
	return UtxoID{TxID: tx.ID, OutputIndex: uint16(i)}
}
