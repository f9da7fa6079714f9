// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package types provides the transaction model shared by the pool and its
// collaborators. It has no dependencies on other pool packages to avoid
// import cycles.
package types

import (
	"bytes"
	"encoding/hex"
	"fmt"
)

// TxID is the 32-byte content hash identifying a transaction.
type TxID [32]byte

// String returns the hex representation of the id.
func (id TxID) String() string {
	return hex.EncodeToString(id[:])
}

// Compare returns -1, 0 or 1 ordering ids lexicographically.
func (id TxID) Compare(other TxID) int {
	return bytes.Compare(id[:], other[:])
}

// ContractID is a 32-byte contract identifier.
type ContractID [32]byte

// String returns the hex representation of the id.
func (id ContractID) String() string {
	return hex.EncodeToString(id[:])
}

// BlobID is the content hash of a blob payload. Two blobs with the same id
// carry the same bytes.
type BlobID [32]byte

// String returns the hex representation of the id.
func (id BlobID) String() string {
	return hex.EncodeToString(id[:])
}

// Nonce uniquely identifies a cross-layer message, consumable once.
type Nonce [32]byte

// String returns the hex representation of the nonce.
func (n Nonce) String() string {
	return hex.EncodeToString(n[:])
}

// Address is a 32-byte account owner identifier.
type Address [32]byte

// String returns the hex representation of the address.
func (a Address) String() string {
	return hex.EncodeToString(a[:])
}

// AssetID is a 32-byte asset identifier.
type AssetID [32]byte

// String returns the hex representation of the id.
func (a AssetID) String() string {
	return hex.EncodeToString(a[:])
}

// Bytes32 is a generic 32-byte value, used for predicate roots.
type Bytes32 [32]byte

// String returns the hex representation of the value.
func (b Bytes32) String() string {
	return hex.EncodeToString(b[:])
}

// UtxoID identifies an unspent transaction output by its producing
// transaction and the index of the output within it.
type UtxoID struct {
	TxID        TxID
	OutputIndex uint16
}

// String returns the "<txid>:<index>" representation of the utxo id.
func (u UtxoID) String() string {
	return fmt.Sprintf("%s:%d", u.TxID, u.OutputIndex)
}
