// Copyright (C) 2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package decrypttest provides fixtures shared by the package tests.
package decrypttest

import (
	"context"
	"crypto/rand"
	"sync"
	"testing"

	"github.com/luxfi/geth/common"
	"github.com/luxfi/geth/common/hexutil"
	"github.com/luxfi/geth/signer/core/apitypes"
	"github.com/stretchr/testify/require"

	"github.com/luxfi/decrypt"
	"github.com/luxfi/decrypt/fhe"
	"github.com/luxfi/decrypt/signer"
)

// Address returns a deterministic address ending in b
func Address(b byte) common.Address {
	var a common.Address
	a[common.AddressLength-1] = b
	a[0] = 0x10
	return a
}

// NewSignature returns a structurally valid signature over contracts with a
// random wallet signature, so every call has a distinct ID.
func NewSignature(
	t testing.TB,
	user common.Address,
	chainID uint64,
	start int64,
	days int64,
	contracts ...common.Address,
) *decrypt.DecryptionSignature {
	t.Helper()

	kp, err := fhe.GenerateX25519Keypair()
	require.NoError(t, err)
	td, err := fhe.EIP712Builder{ChainID: chainID}.Build(kp.PublicKey, contracts, start, days)
	require.NoError(t, err)

	raw := make([]byte, 65)
	_, err = rand.Read(raw)
	require.NoError(t, err)

	return &decrypt.DecryptionSignature{
		PublicKey:         kp.PublicKey,
		PrivateKey:        kp.PrivateKey,
		Signature:         hexutil.Encode(raw),
		StartTimestamp:    start,
		DurationDays:      days,
		UserAddress:       user,
		ContractAddresses: contracts,
		ChainID:           chainID,
		EIP712:            td,
	}
}

var _ signer.Signer = (*Signer)(nil)

// Signer is a scripted wallet. When Gate is set every SignTypedData blocks
// until it is closed or ctx is done. Err, if set, fails the signature.
type Signer struct {
	Account common.Address
	Gate    chan struct{}

	lock    sync.Mutex
	err     error
	signed  []apitypes.TypedData
	started chan struct{}
}

func NewSigner(account common.Address) *Signer {
	return &Signer{
		Account: account,
		started: make(chan struct{}, 64),
	}
}

// Fail makes subsequent signatures fail with err
func (s *Signer) Fail(err error) {
	s.lock.Lock()
	defer s.lock.Unlock()
	s.err = err
}

// Started receives one value each time a signature is requested
func (s *Signer) Started() <-chan struct{} {
	return s.started
}

// Requests returns the number of signatures requested so far
func (s *Signer) Requests() int {
	s.lock.Lock()
	defer s.lock.Unlock()
	return len(s.signed)
}

func (s *Signer) Address(context.Context) (common.Address, error) {
	return s.Account, nil
}

func (s *Signer) SignTypedData(ctx context.Context, data apitypes.TypedData) ([]byte, error) {
	s.lock.Lock()
	s.signed = append(s.signed, data)
	s.lock.Unlock()

	select {
	case s.started <- struct{}{}:
	default:
	}
	if s.Gate != nil {
		select {
		case <-s.Gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	s.lock.Lock()
	err := s.err
	s.lock.Unlock()
	if err != nil {
		return nil, err
	}
	sig := make([]byte, 65)
	if _, err := rand.Read(sig); err != nil {
		return nil, err
	}
	sig[64] = 27
	return sig, nil
}
