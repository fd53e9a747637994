// Copyright (C) 2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package fhe is the boundary to the external FHE instance that owns keypair
// generation, the EIP-712 authorization payload and the user decryption
// itself. Nothing in this module performs homomorphic operations.
package fhe

import (
	"context"
	"errors"

	"github.com/luxfi/geth/common"
	"github.com/luxfi/geth/signer/core/apitypes"

	"github.com/luxfi/decrypt"
)

// ErrUnauthorized is returned when a pair's contract is not covered by the
// signature presented with it
var ErrUnauthorized = errors.New("contract not authorized by signature")

// Keypair is an ephemeral keypair the decrypted shares are sealed to
type Keypair struct {
	PublicKey  string
	PrivateKey string
}

// Instance is the FHE instance consumed by the signing and decryption flow
type Instance interface {
	// GenerateKeypair creates a fresh ephemeral keypair
	GenerateKeypair() (Keypair, error)

	// CreateEIP712 builds the typed data the user signs to authorize
	// decryption of contracts for durationDays from startTimestamp
	CreateEIP712(
		publicKey string,
		contracts []common.Address,
		startTimestamp int64,
		durationDays int64,
	) (apitypes.TypedData, error)

	// UserDecrypt resolves the handles of req.Pairs to cleartexts
	UserDecrypt(ctx context.Context, req UserDecryptRequest) (map[decrypt.Handle]decrypt.Value, error)
}

// UserDecryptRequest carries one batch of pairs authorized by one signature
type UserDecryptRequest struct {
	Pairs             []decrypt.HandleContractPair
	PrivateKey        string
	PublicKey         string
	Signature         string
	ContractAddresses []common.Address
	UserAddress       common.Address
	StartTimestamp    int64
	DurationDays      int64
}

// NewUserDecryptRequest builds the request authorizing pairs with sig
func NewUserDecryptRequest(sig *decrypt.DecryptionSignature, pairs []decrypt.HandleContractPair) UserDecryptRequest {
	return UserDecryptRequest{
		Pairs:             pairs,
		PrivateKey:        sig.PrivateKey,
		PublicKey:         sig.PublicKey,
		Signature:         sig.Signature,
		ContractAddresses: sig.ContractAddresses,
		UserAddress:       sig.UserAddress,
		StartTimestamp:    sig.StartTimestamp,
		DurationDays:      sig.DurationDays,
	}
}

// Authorized reports whether every pair's contract is covered by the request
func (r UserDecryptRequest) Authorized() bool {
	allowed := make(map[common.Address]struct{}, len(r.ContractAddresses))
	for _, c := range r.ContractAddresses {
		allowed[c] = struct{}{}
	}
	for _, p := range r.Pairs {
		if _, ok := allowed[p.ContractAddress]; !ok {
			return false
		}
	}
	return true
}
