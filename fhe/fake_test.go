// Copyright (C) 2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package fhe

import (
	"context"
	"errors"
	"testing"

	"github.com/luxfi/geth/common"
	"github.com/stretchr/testify/require"

	"github.com/luxfi/decrypt"
)

func TestFakeUserDecrypt(t *testing.T) {
	errHook := errors.New("hook failed")

	tests := []struct {
		name        string
		contracts   []common.Address
		pairs       []decrypt.HandleContractPair
		hook        func(context.Context, UserDecryptRequest) error
		expected    map[decrypt.Handle]decrypt.Value
		expectedErr error
	}{
		{
			name:      "known handles",
			contracts: []common.Address{contractA},
			pairs: []decrypt.HandleContractPair{
				{Handle: handle1, ContractAddress: contractA},
				{Handle: handle2, ContractAddress: contractA},
			},
			expected: map[decrypt.Handle]decrypt.Value{
				handle1: decrypt.Uint64Value(1),
				handle2: decrypt.BoolValue(true),
			},
		},
		{
			name:      "unknown handle omitted",
			contracts: []common.Address{contractA},
			pairs: []decrypt.HandleContractPair{
				{Handle: decrypt.MustParseHandle(uint64(99)), ContractAddress: contractA},
			},
			expected: map[decrypt.Handle]decrypt.Value{},
		},
		{
			name:      "contract not covered",
			contracts: []common.Address{contractB},
			pairs: []decrypt.HandleContractPair{
				{Handle: handle1, ContractAddress: contractA},
			},
			expectedErr: ErrUnauthorized,
		},
		{
			name:      "hook fails",
			contracts: []common.Address{contractA},
			pairs: []decrypt.HandleContractPair{
				{Handle: handle1, ContractAddress: contractA},
			},
			hook:        func(context.Context, UserDecryptRequest) error { return errHook },
			expectedErr: errHook,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require := require.New(t)

			fake := NewFake(1)
			fake.Set(handle1, decrypt.Uint64Value(1))
			fake.Set(handle2, decrypt.BoolValue(true))
			fake.Hook = tt.hook

			values, err := fake.UserDecrypt(context.Background(), testRequest(tt.contracts, tt.pairs...))
			require.ErrorIs(err, tt.expectedErr)
			if tt.expectedErr == nil {
				require.Equal(tt.expected, values)
			}
			require.Len(fake.Calls(), 1)
		})
	}
}

func TestNewUserDecryptRequest(t *testing.T) {
	require := require.New(t)

	sig := &decrypt.DecryptionSignature{
		PublicKey:         "0x02",
		PrivateKey:        "0x01",
		Signature:         "0xabcd",
		StartTimestamp:    1000,
		DurationDays:      2,
		UserAddress:       user,
		ContractAddresses: []common.Address{contractA, contractB},
		ChainID:           1,
	}
	pairs := []decrypt.HandleContractPair{{Handle: handle1, ContractAddress: contractB}}
	req := NewUserDecryptRequest(sig, pairs)
	require.Equal(pairs, req.Pairs)
	require.Equal(sig.Signature, req.Signature)
	require.Equal(sig.ContractAddresses, req.ContractAddresses)
	require.True(req.Authorized())
}
