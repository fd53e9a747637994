// Copyright (C) 2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package fhe

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/luxfi/geth/common"
	"github.com/luxfi/geth/common/hexutil"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"golang.org/x/crypto/curve25519"

	"github.com/luxfi/decrypt"
)

var (
	handle1 = decrypt.MustParseHandle(uint64(1))
	handle2 = decrypt.MustParseHandle(uint64(2))
	user    = common.HexToAddress("0x0000000000000000000000000000000000000123")
)

func testRequest(contracts []common.Address, pairs ...decrypt.HandleContractPair) UserDecryptRequest {
	return UserDecryptRequest{
		Pairs:             pairs,
		PrivateKey:        "0x01",
		PublicKey:         "0x02",
		Signature:         "0xabcd",
		ContractAddresses: contracts,
		UserAddress:       user,
		StartTimestamp:    1000,
		DurationDays:      2,
	}
}

func newTestRelayer(t *testing.T, handler http.HandlerFunc) *Relayer {
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	r, err := NewRelayer(zap.NewNop(), RelayerConfig{
		URL:     srv.URL,
		ChainID: 9000,
		Timeout: 2 * time.Second,
	})
	require.NoError(t, err)
	return r
}

func TestRelayerUserDecrypt(t *testing.T) {
	require := require.New(t)

	var received userDecryptBody
	r := newTestRelayer(t, func(w http.ResponseWriter, req *http.Request) {
		if req.URL.Path != UserDecryptPath || req.Method != http.MethodPost {
			http.NotFound(w, req)
			return
		}
		if err := json.NewDecoder(req.Body).Decode(&received); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		_, _ = w.Write([]byte(`{"results":[
			{"handle":"` + handle1.Hex() + `","type":"euint64","value":"42"},
			{"handle":"` + handle2.Hex() + `","type":"ebool","value":true}
		]}`))
	})

	values, err := r.UserDecrypt(context.Background(), testRequest(
		[]common.Address{contractA},
		decrypt.HandleContractPair{Handle: handle1, ContractAddress: contractA},
		decrypt.HandleContractPair{Handle: handle2, ContractAddress: contractA},
	))
	require.NoError(err)
	require.Equal(decrypt.Uint64Value(42), values[handle1])
	require.Equal(decrypt.BoolValue(true), values[handle2])

	require.Len(received.HandleContractPairs, 2)
	require.Equal(handle1.Hex(), received.HandleContractPairs[0].Handle)
	require.Equal("1000", received.RequestValidity.StartTimestamp)
	require.Equal("2", received.RequestValidity.DurationDays)
	require.Equal("9000", received.ContractsChainID)
	require.Equal(user.Hex(), received.UserAddress)
	require.Equal("abcd", received.Signature)
}

func TestRelayerRetriesServerErrors(t *testing.T) {
	require := require.New(t)

	var attempts atomic.Int32
	r := newTestRelayer(t, func(w http.ResponseWriter, _ *http.Request) {
		if attempts.Add(1) < 3 {
			http.Error(w, "unavailable", http.StatusServiceUnavailable)
			return
		}
		_, _ = w.Write([]byte(`{"results":[{"handle":"` + handle1.Hex() + `","type":"euint8","value":"7"}]}`))
	})

	values, err := r.UserDecrypt(context.Background(), testRequest(
		[]common.Address{contractA},
		decrypt.HandleContractPair{Handle: handle1, ContractAddress: contractA},
	))
	require.NoError(err)
	require.Equal(decrypt.Uint64Value(7), values[handle1])
	require.Equal(int32(3), attempts.Load())
}

func TestRelayerClientErrorIsPermanent(t *testing.T) {
	require := require.New(t)

	var attempts atomic.Int32
	r := newTestRelayer(t, func(w http.ResponseWriter, _ *http.Request) {
		attempts.Add(1)
		http.Error(w, "invalid signature", http.StatusBadRequest)
	})

	_, err := r.UserDecrypt(context.Background(), testRequest(
		[]common.Address{contractA},
		decrypt.HandleContractPair{Handle: handle1, ContractAddress: contractA},
	))
	require.ErrorIs(err, errRelayerStatus)
	require.Equal(int32(1), attempts.Load())
}

func TestRelayerRejectsUnauthorizedPairs(t *testing.T) {
	var attempts atomic.Int32
	r := newTestRelayer(t, func(http.ResponseWriter, *http.Request) {
		attempts.Add(1)
	})

	_, err := r.UserDecrypt(context.Background(), testRequest(
		[]common.Address{contractA},
		decrypt.HandleContractPair{Handle: handle1, ContractAddress: contractB},
	))
	require.ErrorIs(t, err, ErrUnauthorized)
	require.Zero(t, attempts.Load())
}

func TestRelayerBadResponse(t *testing.T) {
	r := newTestRelayer(t, func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"results":[{"handle":"0x01","type":"euint8","value":"not a number"}]}`))
	})

	_, err := r.UserDecrypt(context.Background(), testRequest(
		[]common.Address{contractA},
		decrypt.HandleContractPair{Handle: handle1, ContractAddress: contractA},
	))
	require.Error(t, err)
}

func TestGenerateX25519Keypair(t *testing.T) {
	require := require.New(t)

	kp, err := GenerateX25519Keypair()
	require.NoError(err)

	priv, err := hexutil.Decode(kp.PrivateKey)
	require.NoError(err)
	pub, err := hexutil.Decode(kp.PublicKey)
	require.NoError(err)
	derived, err := curve25519.X25519(priv, curve25519.Basepoint)
	require.NoError(err)
	require.Equal(derived, pub)

	other, err := GenerateX25519Keypair()
	require.NoError(err)
	require.NotEqual(kp.PrivateKey, other.PrivateKey)
}

func TestNewRelayerRequiresURL(t *testing.T) {
	_, err := NewRelayer(zap.NewNop(), RelayerConfig{})
	require.Error(t, err)
}
