// Copyright (C) 2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package fhe

import (
	"context"
	"fmt"
	"sync"

	"github.com/luxfi/geth/common"
	"github.com/luxfi/geth/signer/core/apitypes"

	"github.com/luxfi/decrypt"
)

var _ Instance = (*Fake)(nil)

// Fake is an in-process Instance. It serves cleartexts registered with Set,
// rejects pairs whose contract the request does not authorize and records
// every UserDecrypt call.
type Fake struct {
	// Hook, if set, runs at the start of every UserDecrypt. A non-nil error
	// fails the call.
	Hook func(ctx context.Context, req UserDecryptRequest) error

	EIP712 EIP712Builder

	lock     sync.Mutex
	values   map[decrypt.Handle]decrypt.Value
	calls    []UserDecryptRequest
	keypairs int
}

func NewFake(chainID uint64) *Fake {
	return &Fake{
		EIP712: EIP712Builder{ChainID: chainID},
		values: make(map[decrypt.Handle]decrypt.Value),
	}
}

// Set registers the cleartext returned for handle
func (f *Fake) Set(handle decrypt.Handle, value decrypt.Value) {
	f.lock.Lock()
	defer f.lock.Unlock()
	f.values[handle] = value
}

func (f *Fake) GenerateKeypair() (Keypair, error) {
	f.lock.Lock()
	f.keypairs++
	f.lock.Unlock()
	return GenerateX25519Keypair()
}

func (f *Fake) CreateEIP712(
	publicKey string,
	contracts []common.Address,
	startTimestamp int64,
	durationDays int64,
) (apitypes.TypedData, error) {
	return f.EIP712.Build(publicKey, contracts, startTimestamp, durationDays)
}

func (f *Fake) UserDecrypt(ctx context.Context, req UserDecryptRequest) (map[decrypt.Handle]decrypt.Value, error) {
	f.lock.Lock()
	f.calls = append(f.calls, req)
	hook := f.Hook
	f.lock.Unlock()

	if hook != nil {
		if err := hook(ctx, req); err != nil {
			return nil, err
		}
	}
	if !req.Authorized() {
		return nil, ErrUnauthorized
	}
	if req.Signature == "" {
		return nil, fmt.Errorf("%w: missing signature", ErrUnauthorized)
	}

	f.lock.Lock()
	defer f.lock.Unlock()
	out := make(map[decrypt.Handle]decrypt.Value, len(req.Pairs))
	for _, p := range req.Pairs {
		if v, ok := f.values[p.Handle]; ok {
			out[p.Handle] = v
		}
	}
	return out, nil
}

// Calls returns the UserDecrypt requests received so far
func (f *Fake) Calls() []UserDecryptRequest {
	f.lock.Lock()
	defer f.lock.Unlock()
	return append([]UserDecryptRequest(nil), f.calls...)
}

// Keypairs returns the number of keypairs generated so far
func (f *Fake) Keypairs() int {
	f.lock.Lock()
	defer f.lock.Unlock()
	return f.keypairs
}
