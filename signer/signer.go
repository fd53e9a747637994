// Copyright (C) 2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package signer is the wallet boundary: whoever holds the user's key signs
// the EIP-712 authorization the decryption gateway verifies.
package signer

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"fmt"
	"strings"

	"github.com/luxfi/crypto"
	"github.com/luxfi/geth/common"
	"github.com/luxfi/geth/common/hexutil"
	"github.com/luxfi/geth/signer/core/apitypes"
)

const (
	signatureLength  = 65
	recoveryIDOffset = 64
)

var (
	_ Signer = (*LocalSigner)(nil)
	_ Signer = (*RemoteSigner)(nil)

	ErrInvalidSignature = errors.New("invalid signature")
)

// Signer signs EIP-712 typed data on behalf of one address
type Signer interface {
	// Address returns the signing account
	Address(ctx context.Context) (common.Address, error)

	// SignTypedData returns the 65 byte [R || S || V] signature over the
	// EIP-712 digest of data, with V in {27, 28}
	SignTypedData(ctx context.Context, data apitypes.TypedData) ([]byte, error)
}

// LocalSigner signs with a secp256k1 key held in memory
type LocalSigner struct {
	key     *ecdsa.PrivateKey
	address common.Address
}

// NewLocalSigner creates a new local signer
func NewLocalSigner(key *ecdsa.PrivateKey) *LocalSigner {
	return &LocalSigner{
		key:     key,
		address: PubkeyToAddress(&key.PublicKey),
	}
}

// NewLocalSignerFromHex parses a hex encoded private key, with or without 0x
func NewLocalSignerFromHex(hexKey string) (*LocalSigner, error) {
	if !strings.HasPrefix(hexKey, "0x") {
		hexKey = "0x" + hexKey
	}
	raw, err := hexutil.Decode(hexKey)
	if err != nil {
		return nil, fmt.Errorf("failed to decode private key: %w", err)
	}
	key, err := crypto.ToECDSA(raw)
	if err != nil {
		return nil, fmt.Errorf("failed to parse private key: %w", err)
	}
	return NewLocalSigner(key), nil
}

// GenerateLocalSigner creates a local signer over a fresh random key
func GenerateLocalSigner() (*LocalSigner, error) {
	key, err := crypto.GenerateKey()
	if err != nil {
		return nil, err
	}
	return NewLocalSigner(key), nil
}

func (s *LocalSigner) Address(context.Context) (common.Address, error) {
	return s.address, nil
}

func (s *LocalSigner) SignTypedData(_ context.Context, data apitypes.TypedData) ([]byte, error) {
	hash, _, err := apitypes.TypedDataAndHash(data)
	if err != nil {
		return nil, fmt.Errorf("failed to hash typed data: %w", err)
	}
	sig, err := crypto.Sign(hash, s.key)
	if err != nil {
		return nil, err
	}
	sig[recoveryIDOffset] += 27
	return sig, nil
}

// RecoverTypedData returns the address that produced sig over data
func RecoverTypedData(data apitypes.TypedData, sig []byte) (common.Address, error) {
	if len(sig) != signatureLength {
		return common.Address{}, fmt.Errorf("%w: length %d", ErrInvalidSignature, len(sig))
	}
	hash, _, err := apitypes.TypedDataAndHash(data)
	if err != nil {
		return common.Address{}, fmt.Errorf("failed to hash typed data: %w", err)
	}
	normalized := make([]byte, len(sig))
	copy(normalized, sig)
	if normalized[recoveryIDOffset] >= 27 {
		normalized[recoveryIDOffset] -= 27
	}
	pub, err := crypto.SigToPub(hash, normalized)
	if err != nil {
		return common.Address{}, fmt.Errorf("%w: %v", ErrInvalidSignature, err)
	}
	return PubkeyToAddress(pub), nil
}

// PubkeyToAddress derives the account address of pub
func PubkeyToAddress(pub *ecdsa.PublicKey) common.Address {
	return common.BytesToAddress(crypto.Keccak256(crypto.FromECDSAPub(pub)[1:])[12:])
}

// SignerClient is an interface for remote signing, for example a wallet
// connection or a key management service
type SignerClient interface {
	// Account returns the account the client signs for
	Account(ctx context.Context) (common.Address, error)

	// SignTypedData signs data remotely
	SignTypedData(ctx context.Context, data apitypes.TypedData) ([]byte, error)
}

// RemoteSigner signs through a SignerClient
type RemoteSigner struct {
	client  SignerClient
	address common.Address
}

// NewRemoteSigner creates a new remote signer
func NewRemoteSigner(ctx context.Context, client SignerClient) (*RemoteSigner, error) {
	address, err := client.Account(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get account: %w", err)
	}
	return &RemoteSigner{
		client:  client,
		address: address,
	}, nil
}

func (s *RemoteSigner) Address(context.Context) (common.Address, error) {
	return s.address, nil
}

func (s *RemoteSigner) SignTypedData(ctx context.Context, data apitypes.TypedData) ([]byte, error) {
	sig, err := s.client.SignTypedData(ctx, data)
	if err != nil {
		return nil, fmt.Errorf("failed to sign remotely: %w", err)
	}
	if len(sig) != signatureLength {
		return nil, fmt.Errorf("%w: length %d", ErrInvalidSignature, len(sig))
	}
	return sig, nil
}
